// Package committer decides whether a hook event creates a session branch
// and a commit, and applies those decisions to the repository.
package committer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/autocommit/internal/commitmsg"
	"github.com/joescharf/autocommit/internal/git"
	"github.com/joescharf/autocommit/internal/hook"
	"github.com/joescharf/autocommit/internal/output"
)

var (
	// ErrRepoWrite indicates a branch or staging write failed.
	ErrRepoWrite = errors.New("repository write failed")

	// ErrCommit indicates the commit itself failed. The index is left as staged.
	ErrCommit = errors.New("commit failed")
)

// Repository is the subset of git.Repo the engine needs.
type Repository interface {
	Root() string
	Rel(path, cwd string) (string, error)
	CurrentBranch() (string, error)
	HasChanges() (bool, error)
	FileChanged(path string) (bool, error)
	Diff(paths ...string) (string, error)
	StageFile(path string) error
	StageAll() ([]string, error)
	CreateBranch(name string) error
	Commit(message string) (string, error)
	CommitFile(path, message string) (string, error)
}

// MessageGenerator produces a commit message for a request.
type MessageGenerator interface {
	Generate(ctx context.Context, req commitmsg.Request) (commitmsg.Message, error)
}

// OpenFunc opens the repository containing dir.
type OpenFunc func(dir string) (Repository, error)

// OpenGit opens a go-git backed repository.
func OpenGit(dir string) (Repository, error) {
	r, err := git.Open(dir)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Options configure an Engine. They are fixed for the life of the process.
type Options struct {
	Language string
	Style    commitmsg.Style
	DryRun   bool

	// Now stamps session branch names. Defaults to time.Now.
	Now func() time.Time
	// NewID replaces an unusable session id. Defaults to a ULID.
	NewID func() string
}

// State is a step of the branch/commit decision flow.
type State string

const (
	StateIdle         State = "idle"
	StateBranchCheck  State = "branch-check"
	StateBranchCreate State = "branch-create"
	StateNoBranch     State = "no-branch"
	StateStageCheck   State = "stage-check"
	StateCommit       State = "commit"
	StateNoCommit     State = "no-commit"
	StateDone         State = "done"
)

// RepoState is the repository state read during one invocation.
type RepoState struct {
	Branch     string
	HasChanges bool
}

// Result records what one invocation did.
type Result struct {
	Trace      []State
	Repo       RepoState
	Branch     string
	Staged     []string
	CommitHash string
	Message    *commitmsg.Message
}

func (r *Result) to(states ...State) {
	r.Trace = append(r.Trace, states...)
}

// Final returns the last decision state before Done.
func (r *Result) Final() State {
	for i := len(r.Trace) - 1; i >= 0; i-- {
		if r.Trace[i] != StateDone {
			return r.Trace[i]
		}
	}
	return StateIdle
}

// Committed reports whether a commit was created.
func (r *Result) Committed() bool {
	return r.CommitHash != ""
}

// Engine runs the decision flow for hook events.
type Engine struct {
	open OpenFunc
	gen  MessageGenerator
	opts Options
	ui   *output.UI
}

// New creates an Engine. A nil ui discards all output.
func New(open OpenFunc, gen MessageGenerator, opts Options, ui *output.UI) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	if ui == nil {
		ui = &output.UI{Out: io.Discard, ErrOut: io.Discard}
	}
	return &Engine{open: open, gen: gen, opts: opts, ui: ui}
}

// Handle runs the flow for one event. Every returned Result ends in StateDone.
func (e *Engine) Handle(ctx context.Context, ev hook.Event) (*Result, error) {
	res := &Result{Trace: []State{StateIdle}}
	var err error
	switch ev := ev.(type) {
	case hook.Standalone:
		err = e.handleStandalone(ctx, ev, res)
	case hook.SessionStart:
		err = e.handleSessionStart(ctx, ev, res)
	case hook.PostToolUse:
		err = e.handlePostToolUse(ctx, ev, res)
	default:
		err = fmt.Errorf("%w: unsupported event %T", hook.ErrParse, ev)
	}
	res.to(StateDone)
	return res, err
}

func (e *Engine) handleStandalone(ctx context.Context, ev hook.Standalone, res *Result) error {
	content, err := StandaloneContent(ev)
	if err != nil {
		return err
	}
	msg, err := e.generate(ctx, content)
	if err != nil {
		return err
	}
	res.Message = &msg
	return nil
}

func (e *Engine) handleSessionStart(ctx context.Context, ev hook.SessionStart, res *Result) error {
	if !ev.EndsPreviousSession() {
		e.ui.VerboseLog("SessionStart source %q does not end a session, nothing to do", ev.Source)
		return nil
	}

	repo, err := e.open(e.dir(ev.Cwd))
	if err != nil {
		return err
	}

	res.to(StateBranchCheck)
	branch, err := repo.CurrentBranch()
	if err != nil {
		return fmt.Errorf("read current branch: %w", err)
	}
	res.Repo.Branch = branch

	decision := DecideBranch(ev, branch, e.opts.Now(), e.opts.NewID)
	if decision.ShouldBranch {
		res.to(StateBranchCreate)
		if e.opts.DryRun {
			e.ui.DryRunMsg("Would create branch %s from %s", decision.Name, branch)
		} else {
			if err := repo.CreateBranch(decision.Name); err != nil {
				return fmt.Errorf("%w: %w", ErrRepoWrite, err)
			}
			e.ui.Success("Created branch %s", decision.Name)
		}
		res.Branch = decision.Name
	} else {
		res.to(StateNoBranch)
		e.ui.VerboseLog("Staying on branch %s", branch)
	}

	return e.commitChanges(ctx, repo, res, "")
}

func (e *Engine) handlePostToolUse(ctx context.Context, ev hook.PostToolUse, res *Result) error {
	if !ev.ModifiesFile() {
		e.ui.VerboseLog("Tool %s does not modify files, nothing to do", ev.ToolName)
		return nil
	}
	if !ev.Success {
		e.ui.VerboseLog("Tool %s did not succeed, nothing to commit", ev.ToolName)
		return nil
	}

	cwd := e.dir(ev.Cwd)
	repo, err := e.open(cwd)
	if err != nil {
		return err
	}

	path, err := repo.Rel(ev.FilePath, cwd)
	if err != nil {
		if errors.Is(err, git.ErrOutsideRepository) {
			e.ui.VerboseLog("%s is outside %s, nothing to commit", ev.FilePath, repo.Root())
			return nil
		}
		return err
	}

	return e.commitChanges(ctx, repo, res, path)
}

// commitChanges runs StageCheck and Commit. An empty path means every
// pending change; otherwise only that file is diffed, staged and committed,
// and an ignored file counts as unchanged. The message is generated before
// anything is staged.
func (e *Engine) commitChanges(ctx context.Context, repo Repository, res *Result, path string) error {
	res.to(StateStageCheck)
	var has bool
	var err error
	if path == "" {
		has, err = repo.HasChanges()
	} else {
		has, err = repo.FileChanged(path)
	}
	if err != nil {
		return fmt.Errorf("inspect repository: %w", err)
	}
	res.Repo.HasChanges = has
	if !has {
		res.to(StateNoCommit)
		e.ui.VerboseLog("No changes to commit in %s", describe(path))
		return nil
	}

	content, err := RepoContent(repo, path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		res.to(StateNoCommit)
		e.ui.VerboseLog("No changes in %s", describe(path))
		return nil
	}

	msg, err := e.generate(ctx, content)
	if err != nil {
		return err
	}
	res.Message = &msg
	res.to(StateCommit)

	if e.opts.DryRun {
		e.ui.DryRunMsg("Would stage %s and commit: %s", describe(path), msg.Subject)
		return nil
	}

	if path != "" {
		if err := repo.StageFile(path); err != nil {
			return fmt.Errorf("%w: %w", ErrRepoWrite, err)
		}
		res.Staged = []string{path}
	} else {
		staged, err := repo.StageAll()
		res.Staged = staged
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRepoWrite, err)
		}
	}

	var hash string
	if path != "" {
		hash, err = repo.CommitFile(path, msg.String())
	} else {
		hash, err = repo.Commit(msg.String())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	res.CommitHash = hash
	e.ui.Success("Committed %s: %s", shortHash(hash), msg.Subject)
	return nil
}

func (e *Engine) generate(ctx context.Context, content string) (commitmsg.Message, error) {
	return e.gen.Generate(ctx, commitmsg.Request{
		Content:  content,
		Language: e.opts.Language,
		Style:    e.opts.Style,
	})
}

// dir falls back to the process working directory for payloads without cwd.
func (e *Engine) dir(cwd string) string {
	if cwd != "" {
		return cwd
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func describe(path string) string {
	if path == "" {
		return "all changes"
	}
	return path
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
