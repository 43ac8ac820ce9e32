// Package settings registers autocommit as a hook command in a Claude Code
// settings.json file.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// ErrInvalidSettings indicates the existing settings file is not a JSON object
// or has a hooks section of the wrong shape. The file is never rewritten then.
var ErrInvalidSettings = errors.New("invalid settings file")

// Hook is one hook event autocommit subscribes to.
type Hook struct {
	Event   string
	Matcher string
	Timeout int
}

// Hooks are the entries Install adds.
var Hooks = []Hook{
	{Event: "SessionStart", Matcher: "clear|compact", Timeout: 10},
	{Event: "PostToolUse", Matcher: "Write|Edit|MultiEdit", Timeout: 30},
}

// Change reports what Install did for one hook event.
type Change struct {
	Event   string
	Matcher string
	Added   bool
}

type commandHook struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

type matcherGroup struct {
	Matcher string        `json:"matcher"`
	Hooks   []commandHook `json:"hooks"`
}

// Install merges the autocommit hooks into settings and returns the new
// document. Existing keys and hook entries are kept as they are; an event
// that already runs command is left alone.
func Install(settings []byte, command string) ([]byte, []Change, error) {
	if len(bytes.TrimSpace(settings)) == 0 {
		settings = []byte("{}")
	}
	if !gjson.ValidBytes(settings) || !gjson.ParseBytes(settings).IsObject() {
		return nil, nil, fmt.Errorf("%w: not a JSON object", ErrInvalidSettings)
	}
	if hooks := gjson.GetBytes(settings, "hooks"); hooks.Exists() && !hooks.IsObject() {
		return nil, nil, fmt.Errorf("%w: \"hooks\" is not an object", ErrInvalidSettings)
	}

	out := settings
	changes := make([]Change, 0, len(Hooks))
	for _, h := range Hooks {
		path := "hooks." + h.Event
		existing := gjson.GetBytes(out, path)
		if existing.Exists() && !existing.IsArray() {
			return nil, nil, fmt.Errorf("%w: %q is not an array", ErrInvalidSettings, path)
		}

		change := Change{Event: h.Event, Matcher: h.Matcher}
		if Installed(out, h.Event, command) {
			changes = append(changes, change)
			continue
		}

		group, err := json.Marshal(matcherGroup{
			Matcher: h.Matcher,
			Hooks:   []commandHook{{Type: "command", Command: command, Timeout: h.Timeout}},
		})
		if err != nil {
			return nil, nil, err
		}
		if existing.Exists() {
			out, err = sjson.SetRawBytes(out, path+".-1", group)
		} else {
			out, err = sjson.SetRawBytes(out, path, append(append([]byte("["), group...), ']'))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("add %s hook: %w", h.Event, err)
		}
		change.Added = true
		changes = append(changes, change)
	}

	return pretty.PrettyOptions(out, &pretty.Options{Indent: "  ", Width: 80}), changes, nil
}

// Installed reports whether any matcher group of event already runs command.
func Installed(settings []byte, event, command string) bool {
	found := false
	gjson.GetBytes(settings, "hooks."+event).ForEach(func(_, group gjson.Result) bool {
		group.Get("hooks").ForEach(func(_, h gjson.Result) bool {
			if h.Get("command").String() == command {
				found = true
			}
			return !found
		})
		return !found
	})
	return found
}

// InstallFile applies Install to the file at path, creating it and its
// directory when missing. The file is only written when something was added.
func InstallFile(path, command string) ([]Change, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	out, changes, err := Install(data, command)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	added := false
	for _, c := range changes {
		added = added || c.Added
	}
	if !added {
		return changes, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return changes, nil
}

// UserPath returns ~/.claude/settings.json.
func UserPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

// ProjectPath returns <dir>/.claude/settings.json.
func ProjectPath(dir string) string {
	return filepath.Join(dir, ".claude", "settings.json")
}
