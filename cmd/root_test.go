package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/autocommit/internal/commitmsg"
	"github.com/joescharf/autocommit/internal/committer"
	"github.com/joescharf/autocommit/internal/git"
	"github.com/joescharf/autocommit/internal/hook"
	"github.com/joescharf/autocommit/internal/llm"
)

type fakeGenerator struct {
	msg      commitmsg.Message
	err      error
	requests []commitmsg.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req commitmsg.Request) (commitmsg.Message, error) {
	f.requests = append(f.requests, req)
	return f.msg, f.err
}

// hookEnv extends testEnv with a fake generator and the real go-git opener.
func hookEnv(t *testing.T) (*fakeGenerator, *bytes.Buffer) {
	t.Helper()
	_, out, _ := testEnv(t)
	t.Setenv(llm.RecursionEnv, "")
	require.NoError(t, os.Unsetenv(llm.RecursionEnv))

	gen := &fakeGenerator{msg: commitmsg.Message{Subject: "feat: add greeting"}}
	origGen, origOpen := generatorFunc, openRepo
	generatorFunc = func() (committer.MessageGenerator, error) { return gen, nil }
	openRepo = committer.OpenGit
	t.Cleanup(func() { generatorFunc, openRepo = origGen, origOpen })

	return gen, out
}

// newRepo creates a repository with one commit and returns its root.
func newRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	r, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	cfg, err := r.Config()
	require.NoError(t, err)
	cfg.User.Name = "Test"
	cfg.User.Email = "test@test.com"
	require.NoError(t, r.SetConfig(cfg))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi\n"), 0644))
	repo, err := git.Open(dir)
	require.NoError(t, err)
	require.NoError(t, repo.StageFile("hello.txt"))
	_, err = repo.Commit("chore: initial")
	require.NoError(t, err)
	return repo.Root()
}

func payload(t *testing.T, v map[string]any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func headMessage(t *testing.T, root string) (string, string) {
	t.Helper()
	r, err := gogit.PlainOpen(root)
	require.NoError(t, err)
	head, err := r.Head()
	require.NoError(t, err)
	c, err := r.CommitObject(head.Hash())
	require.NoError(t, err)
	return head.Name().Short(), c.Message
}

func TestRunHook_Standalone(t *testing.T) {
	gen, out := hookEnv(t)

	err := runHook(context.Background(), strings.NewReader("diff --git a/x b/x\n+x\n"))
	require.NoError(t, err)
	assert.Equal(t, "feat: add greeting\n", out.String())
	require.Len(t, gen.requests, 1)
	assert.Equal(t, "Japanese", gen.requests[0].Language)
}

func TestRunHook_StandaloneEmpty(t *testing.T) {
	gen, out := hookEnv(t)

	err := runHook(context.Background(), strings.NewReader("  \n"))
	assert.ErrorIs(t, err, committer.ErrEmptyInput)
	assert.Empty(t, out.String())
	assert.Empty(t, gen.requests)
}

func TestRunHook_GenerationFailure(t *testing.T) {
	gen, out := hookEnv(t)
	gen.err = fmt.Errorf("%w: timed out", commitmsg.ErrGeneration)

	err := runHook(context.Background(), strings.NewReader("some change"))
	assert.ErrorIs(t, err, commitmsg.ErrGeneration)
	assert.Empty(t, out.String())
}

func TestRunHook_MalformedPayloadIsSilent(t *testing.T) {
	gen, out := hookEnv(t)

	for _, in := range []string{`{"hook_event_name": "SessionStart"`, `{"hook_event_name": "Stop", "session_id": "x"}`} {
		err := runHook(context.Background(), strings.NewReader(in))
		assert.NoError(t, err, in)
	}
	assert.Empty(t, out.String())
	assert.Empty(t, gen.requests)
}

func TestRunHook_RecursionGuard(t *testing.T) {
	gen, _ := hookEnv(t)
	t.Setenv(llm.RecursionEnv, "1")

	err := runHook(context.Background(), strings.NewReader("diff"))
	require.NoError(t, err)
	assert.Empty(t, gen.requests)
}

func TestRunHook_GeneratorBuiltOnlyWhenNeeded(t *testing.T) {
	hookEnv(t)
	root := newRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("changed\n"), 0644))

	builds := 0
	generatorFunc = func() (committer.MessageGenerator, error) {
		builds++
		return nil, fmt.Errorf("%w: generator.backend is anthropic but no API key is set", commitmsg.ErrGeneration)
	}

	noops := []string{
		payload(t, map[string]any{"hook_event_name": "PostToolUse", "session_id": "abc", "cwd": root, "tool_name": "Bash"}),
		payload(t, map[string]any{"hook_event_name": "SessionStart", "session_id": "abc", "cwd": root, "source": "startup"}),
	}
	for _, in := range noops {
		require.NoError(t, runHook(context.Background(), strings.NewReader(in)), in)
	}
	assert.Equal(t, 0, builds)

	err := runHook(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, committer.ErrEmptyInput)
	assert.Equal(t, 0, builds)

	err = runHook(context.Background(), strings.NewReader("some change"))
	assert.ErrorIs(t, err, commitmsg.ErrGeneration)
	assert.Equal(t, 1, builds)
}

func TestLazyGenerator_BuildsOnce(t *testing.T) {
	gen := &fakeGenerator{msg: commitmsg.Message{Subject: "fix: x"}}
	builds := 0
	lazy := &lazyGenerator{build: func() (committer.MessageGenerator, error) {
		builds++
		return gen, nil
	}}

	for i := 0; i < 2; i++ {
		msg, err := lazy.Generate(context.Background(), commitmsg.Request{Content: "+x"})
		require.NoError(t, err)
		assert.Equal(t, "fix: x", msg.Subject)
	}
	assert.Equal(t, 1, builds)
	assert.Len(t, gen.requests, 2)
}

func TestRunHook_NotARepositoryIsSilent(t *testing.T) {
	gen, _ := hookEnv(t)

	in := payload(t, map[string]any{
		"hook_event_name": "SessionStart",
		"session_id":      "abc",
		"cwd":             t.TempDir(),
		"source":          "clear",
	})
	require.NoError(t, runHook(context.Background(), strings.NewReader(in)))
	assert.Empty(t, gen.requests)
}

func TestRunHook_SessionStartClearOnMaster(t *testing.T) {
	gen, out := hookEnv(t)
	root := newRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello\n"), 0644))

	in := payload(t, map[string]any{
		"hook_event_name": "SessionStart",
		"session_id":      "abc",
		"cwd":             root,
		"source":          "clear",
	})
	require.NoError(t, runHook(context.Background(), strings.NewReader(in)))

	branch, msg := headMessage(t, root)
	assert.True(t, strings.HasPrefix(branch, "session-"), branch)
	assert.True(t, strings.HasSuffix(branch, "-abc"), branch)
	assert.Equal(t, "feat: add greeting", msg)
	assert.Len(t, gen.requests, 1)
	assert.Empty(t, out.String(), "hook mode prints nothing to stdout")
}

func TestRunHook_PostToolUseEdit(t *testing.T) {
	_, _ = hookEnv(t)
	root := newRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello\n"), 0644))

	in := payload(t, map[string]any{
		"hook_event_name": "PostToolUse",
		"session_id":      "abc",
		"cwd":             root,
		"tool_name":       "Edit",
		"tool_input":      map[string]any{"file_path": "hello.txt"},
		"tool_response":   map[string]any{"success": true},
	})
	require.NoError(t, runHook(context.Background(), strings.NewReader(in)))

	branch, msg := headMessage(t, root)
	assert.Equal(t, "master", branch)
	assert.Equal(t, "feat: add greeting", msg)
}

func TestRunHook_DryRunWritesNothing(t *testing.T) {
	gen, _ := hookEnv(t)
	dryRun = true
	ui.DryRun = true
	root := newRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello\n"), 0644))

	in := payload(t, map[string]any{
		"hook_event_name": "SessionStart",
		"session_id":      "abc",
		"cwd":             root,
		"source":          "compact",
	})
	require.NoError(t, runHook(context.Background(), strings.NewReader(in)))

	branch, msg := headMessage(t, root)
	assert.Equal(t, "master", branch)
	assert.Equal(t, "chore: initial", msg)
	assert.Len(t, gen.requests, 1)
}

func TestRunHook_LanguagePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		config string
		want   string
	}{
		{"default", nil, "", "Japanese"},
		{"legacy env", map[string]string{"CC_AUTO_COMMIT_LANGUAGE": "English"}, "", "English"},
		{"env beats legacy", map[string]string{"AUTOCOMMIT_LANGUAGE": "French", "CC_AUTO_COMMIT_LANGUAGE": "English"}, "", "French"},
		{"config", nil, "German", "German"},
		{"env beats config", map[string]string{"AUTOCOMMIT_LANGUAGE": "French"}, "German", "French"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, _ := hookEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.config != "" {
				viper.SetConfigType("yaml")
				require.NoError(t, viper.ReadConfig(strings.NewReader("language: "+tt.config+"\n")))
			}

			require.NoError(t, runHook(context.Background(), strings.NewReader("change")))
			require.Len(t, gen.requests, 1)
			assert.Equal(t, tt.want, gen.requests[0].Language)
		})
	}
}

func TestRunHook_LanguageFlag(t *testing.T) {
	gen, _ := hookEnv(t)
	t.Setenv("AUTOCOMMIT_LANGUAGE", "French")
	flag := rootCmd.PersistentFlags().Lookup("language")
	require.NoError(t, viper.BindPFlag("language", flag))
	require.NoError(t, flag.Value.Set("English"))
	flag.Changed = true
	t.Cleanup(func() {
		_ = flag.Value.Set("")
		flag.Changed = false
	})

	require.NoError(t, runHook(context.Background(), strings.NewReader("change")))
	assert.Equal(t, "English", gen.requests[0].Language)
}

func TestRunHook_RepoCommitConfig(t *testing.T) {
	gen, _ := hookEnv(t)
	root := newRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".autocommit.yaml"), []byte("max_subject_length: 50\n"), 0644))

	in := payload(t, map[string]any{
		"hook_event_name": "SessionStart",
		"session_id":      "abc",
		"cwd":             root,
		"source":          "clear",
	})
	require.NoError(t, runHook(context.Background(), strings.NewReader(in)))
	require.Len(t, gen.requests, 1)
	assert.Equal(t, 50, gen.requests[0].Style.MaxSubjectLength)
}

func TestLoadStyle_ExplicitBeatsRepo(t *testing.T) {
	hookEnv(t)
	root := newRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".autocommit.yaml"), []byte("max_subject_length: 50\n"), 0644))
	explicit := filepath.Join(t.TempDir(), "style.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("max_subject_length: 40\n"), 0644))
	viper.Set("commit_config", explicit)

	assert.Equal(t, 40, loadStyle(root).MaxSubjectLength)
}

func TestLoadStyle_InvalidFallsBack(t *testing.T) {
	_, _, errOut := testEnv(t)
	ui.Verbose = true
	bad := filepath.Join(t.TempDir(), "style.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("types: []\n"), 0644))
	viper.Set("commit_config", bad)

	assert.Equal(t, commitmsg.DefaultStyle(), loadStyle(t.TempDir()))
	assert.Contains(t, errOut.String(), "built-in commit config")
}

func TestExitError(t *testing.T) {
	_, _, errOut := testEnv(t)

	assert.NoError(t, exitError(nil))
	assert.NoError(t, exitError(fmt.Errorf("%w: bad", hook.ErrParse)))
	assert.NoError(t, exitError(fmt.Errorf("%w: /tmp", git.ErrNotARepository)))

	assert.NoError(t, exitError(fmt.Errorf("%w: denied", committer.ErrSourceRead)))
	assert.Contains(t, errOut.String(), "Skipping commit")

	for _, sentinel := range []error{committer.ErrEmptyInput, commitmsg.ErrGeneration, committer.ErrRepoWrite, committer.ErrCommit} {
		err := exitError(fmt.Errorf("wrapped: %w", sentinel))
		assert.True(t, errors.Is(err, sentinel), sentinel.Error())
	}
}

func TestNewBackend(t *testing.T) {
	t.Run("command", func(t *testing.T) {
		testEnv(t)
		viper.Set("generator.backend", "command")
		b, err := newBackend()
		require.NoError(t, err)
		c, ok := b.(*llm.Command)
		require.True(t, ok)
		assert.Equal(t, "claude", c.Name)
		assert.Equal(t, []string{"-p"}, c.Args)
	})

	t.Run("auto without key uses command", func(t *testing.T) {
		testEnv(t)
		b, err := newBackend()
		require.NoError(t, err)
		assert.IsType(t, &llm.Command{}, b)
	})

	t.Run("auto with key uses api", func(t *testing.T) {
		testEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "sk-test")
		b, err := newBackend()
		require.NoError(t, err)
		assert.IsType(t, &llm.Client{}, b)
	})

	t.Run("anthropic without key", func(t *testing.T) {
		testEnv(t)
		viper.Set("generator.backend", "anthropic")
		_, err := newBackend()
		assert.ErrorIs(t, err, commitmsg.ErrGeneration)
	})

	t.Run("unknown", func(t *testing.T) {
		testEnv(t)
		viper.Set("generator.backend", "magic")
		_, err := newBackend()
		assert.ErrorIs(t, err, commitmsg.ErrGeneration)
		assert.Contains(t, err.Error(), "magic")
	})
}

func TestNewGenerator(t *testing.T) {
	testEnv(t)
	gen, err := newGenerator()
	require.NoError(t, err)
	assert.IsType(t, &commitmsg.Generator{}, gen)
}
