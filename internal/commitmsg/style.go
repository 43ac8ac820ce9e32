package commitmsg

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfig indicates a commit-config file that cannot be used. Callers
// recover by falling back to DefaultStyle.
var ErrConfig = errors.New("invalid commit config")

//go:embed default.yaml
var defaultStyleYAML []byte

var defaultStyle = mustParseDefault()

var typeNameRe = regexp.MustCompile(`^[a-z]+$`)

// CommitType is one allowed conventional-commit type.
type CommitType struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Style holds the declarative commit message rules.
type Style struct {
	Types            []CommitType      `yaml:"types"`
	ScopeHints       []string          `yaml:"scope_hints"`
	MaxSubjectLength int               `yaml:"max_subject_length"`
	MaxDiffChars     int               `yaml:"max_diff_chars"`
	DefaultMessage   string            `yaml:"default_message"`
	LanguageHints    map[string]string `yaml:"language_hints"`
}

func mustParseDefault() Style {
	var s Style
	if err := yaml.Unmarshal(defaultStyleYAML, &s); err != nil {
		panic(fmt.Sprintf("embedded default.yaml: %v", err))
	}
	if err := s.Validate(); err != nil {
		panic(fmt.Sprintf("embedded default.yaml: %v", err))
	}
	return s
}

// DefaultStyle returns a copy of the built-in style.
func DefaultStyle() Style {
	return defaultStyle.clone()
}

func (s Style) clone() Style {
	c := s
	c.Types = append([]CommitType(nil), s.Types...)
	c.ScopeHints = append([]string(nil), s.ScopeHints...)
	c.LanguageHints = make(map[string]string, len(s.LanguageHints))
	for k, v := range s.LanguageHints {
		c.LanguageHints[k] = v
	}
	return c
}

// Validate checks the style is usable for prompting and normalizing.
func (s Style) Validate() error {
	if len(s.Types) == 0 {
		return fmt.Errorf("%w: no commit types", ErrConfig)
	}
	for _, t := range s.Types {
		if !typeNameRe.MatchString(t.Name) {
			return fmt.Errorf("%w: commit type %q must be lower-case letters", ErrConfig, t.Name)
		}
	}
	if s.MaxSubjectLength < 20 {
		return fmt.Errorf("%w: max_subject_length %d is below 20", ErrConfig, s.MaxSubjectLength)
	}
	if s.MaxDiffChars <= 0 {
		return fmt.Errorf("%w: max_diff_chars must be positive", ErrConfig)
	}
	if !IsConventional(s.DefaultMessage) {
		return fmt.Errorf("%w: default_message %q is not a conventional commit header", ErrConfig, s.DefaultMessage)
	}
	return nil
}

// TypeNames returns the allowed type names in order.
func (s Style) TypeNames() []string {
	names := make([]string, len(s.Types))
	for i, t := range s.Types {
		names[i] = t.Name
	}
	return names
}

// LanguageHint returns the phrasing hint for language, matched case-insensitively.
func (s Style) LanguageHint(language string) string {
	for k, v := range s.LanguageHints {
		if strings.EqualFold(k, language) {
			return v
		}
	}
	return ""
}

// ParseStyle overlays data on the built-in style. Keys absent from data keep
// their defaults; lists present in data replace the default lists.
func ParseStyle(data []byte) (Style, error) {
	s := DefaultStyle()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return DefaultStyle(), fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := s.Validate(); err != nil {
		return DefaultStyle(), err
	}
	return s, nil
}

// LoadStyle reads the first existing file among paths. It always returns a
// usable style: with no file it returns the default, and with a malformed
// file it returns the default together with an ErrConfig error naming the file.
func LoadStyle(paths ...string) (Style, string, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return DefaultStyle(), path, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
		}
		s, err := ParseStyle(data)
		if err != nil {
			return s, path, fmt.Errorf("%s: %w", path, err)
		}
		return s, path, nil
	}
	return DefaultStyle(), "", nil
}
