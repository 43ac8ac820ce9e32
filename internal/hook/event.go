// Package hook parses Claude Code hook payloads into typed events.
package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrParse is returned for payloads that look like hook JSON but cannot be
// turned into a supported event.
var ErrParse = errors.New("unrecognized hook payload")

// Event is one of SessionStart, PostToolUse or Standalone.
type Event interface {
	isEvent()
}

// Source is the SessionStart sub-field describing why the session started.
type Source string

const (
	SourceStartup Source = "startup"
	SourceResume  Source = "resume"
	SourceClear   Source = "clear"
	SourceCompact Source = "compact"
	SourceUnknown Source = "unknown"
)

func parseSource(s string) Source {
	switch Source(s) {
	case SourceStartup, SourceResume, SourceClear, SourceCompact:
		return Source(s)
	default:
		return SourceUnknown
	}
}

// SessionStart is delivered when a session starts, resumes, or is cleared/compacted.
type SessionStart struct {
	SessionID      string
	TranscriptPath string
	Cwd            string
	Source         Source
}

// EndsPreviousSession reports whether this event marks the end of the prior
// session. The host never delivers SessionEnd, so a clear or compact is the
// only reliable signal that the previous conversation is over.
func (e SessionStart) EndsPreviousSession() bool {
	return e.Source == SourceClear || e.Source == SourceCompact
}

// PostToolUse is delivered after a tool call completes.
type PostToolUse struct {
	SessionID      string
	TranscriptPath string
	Cwd            string
	ToolName       string
	FilePath       string
	Success        bool
}

// ModifiesFile reports whether the tool writes the file named in FilePath.
func (e PostToolUse) ModifiesFile() bool {
	switch e.ToolName {
	case "Write", "Edit", "MultiEdit":
		return true
	}
	return false
}

// Standalone carries raw stdin that is not a hook payload, usually a diff.
type Standalone struct {
	Content string
}

func (SessionStart) isEvent() {}
func (PostToolUse) isEvent()  {}
func (Standalone) isEvent()   {}

// payload holds the fields decoded into events. hook_event_name is routed
// on with gjson before decoding.
type payload struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	Source         string `json:"source"`
	ToolName       string `json:"tool_name"`
	ToolInput      struct {
		FilePath string `json:"file_path"`
	} `json:"tool_input"`
	ToolResponse struct {
		Success *bool `json:"success"`
	} `json:"tool_response"`
}

// IsPayload reports whether input should be treated as a hook payload rather
// than standalone text. Diffs never start with an opening brace.
func IsPayload(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "{")
}

// Parse turns stdin into an Event. Input that is not a payload becomes
// Standalone. Payload errors wrap ErrParse.
func Parse(input string) (Event, error) {
	if !IsPayload(input) {
		return Standalone{Content: input}, nil
	}
	if !gjson.Valid(input) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrParse)
	}

	kind := gjson.Get(input, "hook_event_name").String()
	switch kind {
	case "SessionStart", "PostToolUse":
	case "":
		return nil, fmt.Errorf("%w: missing hook_event_name", ErrParse)
	default:
		return nil, fmt.Errorf("%w: unsupported event %q", ErrParse, kind)
	}

	var p payload
	if err := json.Unmarshal([]byte(input), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	switch kind {
	case "SessionStart":
		if p.SessionID == "" {
			return nil, fmt.Errorf("%w: SessionStart without session_id", ErrParse)
		}
		return SessionStart{
			SessionID:      p.SessionID,
			TranscriptPath: p.TranscriptPath,
			Cwd:            p.Cwd,
			Source:         parseSource(p.Source),
		}, nil
	case "PostToolUse":
		if p.SessionID == "" || p.ToolName == "" {
			return nil, fmt.Errorf("%w: PostToolUse without session_id or tool_name", ErrParse)
		}
		success := true
		if p.ToolResponse.Success != nil {
			success = *p.ToolResponse.Success
		}
		ev := PostToolUse{
			SessionID:      p.SessionID,
			TranscriptPath: p.TranscriptPath,
			Cwd:            p.Cwd,
			ToolName:       p.ToolName,
			FilePath:       p.ToolInput.FilePath,
			Success:        success,
		}
		if ev.ModifiesFile() && ev.FilePath == "" {
			return nil, fmt.Errorf("%w: %s without tool_input.file_path", ErrParse, ev.ToolName)
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: unsupported event %q", ErrParse, kind)
}

// Cwd returns the working directory carried by a hook event, or "" for
// standalone input.
func Cwd(ev Event) string {
	switch e := ev.(type) {
	case SessionStart:
		return e.Cwd
	case PostToolUse:
		return e.Cwd
	}
	return ""
}
