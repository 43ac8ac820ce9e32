// Package commitmsg generates conventional commit messages from diffs with
// an LLM backend.
package commitmsg

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joescharf/autocommit/internal/llm"
)

// ErrGeneration indicates no usable message could be produced. A commit must
// never be created after this error.
var ErrGeneration = errors.New("commit message generation failed")

var conventionalRe = regexp.MustCompile(`^[a-z]+(\([^()\r\n]+\))?!?: \S`)

// IsConventional reports whether line is a conventional commit header.
func IsConventional(line string) bool {
	return conventionalRe.MatchString(strings.TrimSpace(line))
}

// Request is everything the generator needs for one message.
type Request struct {
	Content  string
	Language string
	Style    Style
}

// Message is a commit message split into subject and optional body.
type Message struct {
	Subject string
	Body    string
}

// String renders the message in git's subject/blank line/body layout.
func (m Message) String() string {
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n\n" + m.Body
}

// Generator turns a Request into a Message through a Backend.
type Generator struct {
	backend llm.Backend
	timeout time.Duration
}

// NewGenerator creates a Generator. A zero timeout leaves the call bounded
// only by ctx.
func NewGenerator(backend llm.Backend, timeout time.Duration) *Generator {
	return &Generator{backend: backend, timeout: timeout}
}

// Generate asks the backend for a message and normalizes the answer.
func (g *Generator) Generate(ctx context.Context, req Request) (Message, error) {
	if strings.TrimSpace(req.Content) == "" {
		return Message{}, fmt.Errorf("%w: no content to summarize", ErrGeneration)
	}
	if g.backend == nil {
		return Message{}, fmt.Errorf("%w: no generator backend configured", ErrGeneration)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	system, user := BuildPrompt(req)
	text, err := g.backend.Complete(ctx, system, user)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return Normalize(text, req.Style)
}

// Normalize cleans raw model output into a Message. A subject that is not a
// conventional header is replaced by the style's default message and the
// model text is kept as the body.
func Normalize(text string, style Style) (Message, error) {
	text = strings.TrimSpace(llm.StripFences(text))
	text = trimQuotes(text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: empty response", ErrGeneration)
	}

	subject, body, _ := strings.Cut(text, "\n")
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)

	if !IsConventional(subject) {
		return Message{
			Subject: style.DefaultMessage,
			Body:    text,
		}, nil
	}

	return Message{
		Subject: shorten(subject, style.MaxSubjectLength),
		Body:    body,
	}, nil
}

func trimQuotes(s string) string {
	for _, q := range []string{`"`, "'", "`"} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// shorten cuts s to max runes, preferring the last word boundary.
func shorten(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)[:max]
	cut := string(runes)
	header, rest, found := strings.Cut(cut, ": ")
	if idx := strings.LastIndex(rest, " "); found && idx > 0 {
		return header + ": " + strings.TrimRight(rest[:idx], " ,.;:")
	}
	return strings.TrimRight(cut, " ")
}
