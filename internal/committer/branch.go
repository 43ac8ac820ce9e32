package committer

import (
	"strings"
	"time"

	"github.com/joescharf/autocommit/internal/hook"
)

// branchTimeFormat is local time at second precision.
const branchTimeFormat = "20060102-150405"

// ProtectedBranches never receive automatic commits directly.
var ProtectedBranches = []string{"main", "master", "develop"}

// IsProtected reports whether branch is one of ProtectedBranches.
func IsProtected(branch string) bool {
	for _, b := range ProtectedBranches {
		if b == branch {
			return true
		}
	}
	return false
}

// BranchDecision says whether to leave the current branch for a session branch.
type BranchDecision struct {
	ShouldBranch bool
	Name         string
}

// DecideBranch branches only for a SessionStart that ends the previous
// session while a protected branch is checked out.
func DecideBranch(ev hook.SessionStart, current string, now time.Time, newID func() string) BranchDecision {
	if !ev.EndsPreviousSession() || !IsProtected(current) {
		return BranchDecision{}
	}
	return BranchDecision{
		ShouldBranch: true,
		Name:         SessionBranchName(ev.SessionID, now, newID),
	}
}

// SessionBranchName formats session-<timestamp>-<session id>. Characters not
// allowed in a ref name are replaced; an empty id is replaced by newID().
func SessionBranchName(sessionID string, now time.Time, newID func() string) string {
	id := sanitizeRefComponent(sessionID)
	if id == "" && newID != nil {
		id = sanitizeRefComponent(newID())
	}
	return "session-" + now.Local().Format(branchTimeFormat) + "-" + id
}

func sanitizeRefComponent(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	return strings.Trim(sb.String(), "-")
}
