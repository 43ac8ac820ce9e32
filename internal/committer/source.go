package committer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/autocommit/internal/git"
	"github.com/joescharf/autocommit/internal/hook"
)

var (
	// ErrEmptyInput indicates standalone mode received nothing to summarize.
	ErrEmptyInput = errors.New("nothing to summarize: standard input is empty")

	// ErrSourceRead indicates the changed file could not be read. The commit
	// step is skipped but the invocation is not a failure.
	ErrSourceRead = errors.New("cannot read changes")
)

// StandaloneContent returns the stdin text to summarize.
func StandaloneContent(ev hook.Standalone) (string, error) {
	if strings.TrimSpace(ev.Content) == "" {
		return "", ErrEmptyInput
	}
	return ev.Content, nil
}

// RepoContent returns the diff to summarize: one file when path is set,
// every pending change otherwise.
func RepoContent(repo Repository, path string) (string, error) {
	var (
		diff string
		err  error
	)
	if path != "" {
		diff, err = repo.Diff(path)
	} else {
		diff, err = repo.Diff()
	}
	if err != nil {
		if errors.Is(err, git.ErrReadFile) {
			return "", fmt.Errorf("%w: %w", ErrSourceRead, err)
		}
		return "", fmt.Errorf("diff %s: %w", describe(path), err)
	}
	return diff, nil
}
