package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/viper"

	"github.com/joescharf/autocommit/internal/commitmsg"
	"github.com/joescharf/autocommit/internal/committer"
	"github.com/joescharf/autocommit/internal/llm"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// newBackend selects the generator backend from generator.backend:
// "anthropic" calls the Messages API, "command" runs generator.command, and
// "auto" prefers the API when a key is configured.
func newBackend() (llm.Backend, error) {
	command := func() llm.Backend {
		return llm.NewCommand(viper.GetString("generator.command"), viper.GetStringSlice("generator.args"))
	}

	switch backend := viper.GetString("generator.backend"); backend {
	case "anthropic":
		c := newLLMClient()
		if c == nil {
			return nil, fmt.Errorf("%w: generator.backend is anthropic but no API key is set (ANTHROPIC_API_KEY or anthropic.api_key)", commitmsg.ErrGeneration)
		}
		return c, nil
	case "command":
		return command(), nil
	case "", "auto":
		if c := newLLMClient(); c != nil {
			return c, nil
		}
		return command(), nil
	default:
		return nil, fmt.Errorf("%w: unknown generator.backend %q (want auto, anthropic or command)", commitmsg.ErrGeneration, backend)
	}
}

// newGenerator wires the configured backend into a commit message generator.
func newGenerator() (committer.MessageGenerator, error) {
	backend, err := newBackend()
	if err != nil {
		return nil, err
	}
	return commitmsg.NewGenerator(backend, viper.GetDuration("generator.timeout")), nil
}

// lazyGenerator builds the real generator on the first Generate call. Events
// that never reach generation do not fail on generator config.
type lazyGenerator struct {
	build func() (committer.MessageGenerator, error)

	once sync.Once
	gen  committer.MessageGenerator
	err  error
}

func (l *lazyGenerator) Generate(ctx context.Context, req commitmsg.Request) (commitmsg.Message, error) {
	l.once.Do(func() { l.gen, l.err = l.build() })
	if l.err != nil {
		return commitmsg.Message{}, l.err
	}
	return l.gen.Generate(ctx, req)
}
