package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RecursionEnv is set on generator subprocesses. The subprocess may itself
// fire hooks that invoke autocommit again; those invocations exit early.
const RecursionEnv = "AUTOCOMMIT_RUNNING"

// Command runs an external CLI (by default `claude -p`) with the prompt as
// its final argument and reads the answer from stdout.
type Command struct {
	Name string
	Args []string
}

// NewCommand returns a Command backend.
func NewCommand(name string, args []string) *Command {
	return &Command{Name: name, Args: args}
}

// Complete joins the system and user prompts and runs the command.
func (c *Command) Complete(ctx context.Context, system, user string) (string, error) {
	if c.Name == "" {
		return "", errors.New("generator command is not configured")
	}

	prompt := user
	if system != "" {
		prompt = system + "\n\n" + user
	}

	args := append(append([]string{}, c.Args...), prompt)
	cmd := exec.CommandContext(ctx, c.Name, args...)
	cmd.Env = append(os.Environ(), RecursionEnv+"=1")
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", c.Name, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %s: %w", c.Name, msg, err)
		}
		return "", fmt.Errorf("%s: %w", c.Name, err)
	}

	text := StripFences(stdout.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
