package commitmsg

import (
	"strings"
	"text/template"
)

var systemTemplate = template.Must(template.New("system").Parse(`You write git commit messages in the Conventional Commits format.
Output only the commit message. No explanation, no markdown, no code fences, no quotes.

Format:
- First line: <type>(<scope>): <description>, at most {{.MaxSubjectLength}} characters.
- The scope is optional. Add "!" after the type or scope for breaking changes.
- Optionally a blank line followed by a short body explaining what changed and why.

Allowed types:
{{range .Types}}- {{.Name}}: {{.Description}}
{{end}}
Scope rules:
{{range .ScopeHints}}- {{.}}
{{end}}
Write the description and body in {{.Language}}.{{with .Hint}} Also {{.}}.{{end}}
`))

type promptData struct {
	Style
	Language string
	Hint     string
}

// BuildPrompt renders the system prompt (rules) and user prompt (changes) for a request.
func BuildPrompt(req Request) (system string, user string) {
	var sb strings.Builder
	data := promptData{
		Style:    req.Style,
		Language: req.Language,
		Hint:     req.Style.LanguageHint(req.Language),
	}
	// The template only reads fields of promptData, so Execute cannot fail
	// on a strings.Builder.
	_ = systemTemplate.Execute(&sb, data)
	system = sb.String()

	user = "Generate a commit message for the following changes:\n\n" +
		truncate(req.Content, req.Style.MaxDiffChars)
	return
}

const truncatedMarker = "\n\n[... truncated ...]"

// truncate cuts s to at most max bytes on a rune boundary and marks the cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
