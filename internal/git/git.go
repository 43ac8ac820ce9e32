// Package git inspects and writes a repository in-process with go-git.
// No git binary is spawned.
package git

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	// ErrNotARepository indicates no repository was found at or above the directory.
	ErrNotARepository = errors.New("not a git repository")

	// ErrBranchExists indicates the branch to create already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrOutsideRepository indicates a path does not belong to the worktree.
	ErrOutsideRepository = errors.New("path is outside the repository")

	// ErrNoIdentity indicates user.name or user.email is not configured.
	ErrNoIdentity = errors.New("user.name and user.email are not configured")
)

// Repo is an opened repository with a worktree.
type Repo struct {
	repo *gogit.Repository
	wt   *gogit.Worktree
	root string

	// now stamps commit signatures; replaceable in tests.
	now func() time.Time
}

// Open discovers the repository containing dir.
func Open(dir string) (*Repo, error) {
	r, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, dir)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	wt, err := r.Worktree()
	if err != nil {
		// Bare repositories have nothing to commit from.
		return nil, fmt.Errorf("%w: %v", ErrNotARepository, err)
	}

	root := wt.Filesystem.Root()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	return &Repo{repo: r, wt: wt, root: root, now: time.Now}, nil
}

// Root returns the absolute worktree root.
func (r *Repo) Root() string {
	return r.root
}

// CurrentBranch returns the short name of the checked-out branch. An unborn
// branch (no commits yet) is still reported by name; a detached HEAD is "HEAD".
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference {
		if head.Target().IsBranch() {
			return head.Target().Short(), nil
		}
		return head.Target().String(), nil
	}
	return "HEAD", nil
}

// HasChanges reports whether the worktree or index differs from HEAD,
// untracked files included.
func (r *Repo) HasChanges() (bool, error) {
	status, err := r.wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	return !status.IsClean(), nil
}

// FileChanged reports whether a worktree-relative path differs from HEAD.
// Ignored files are absent from the worktree status and report false.
func (r *Repo) FileChanged(path string) (bool, error) {
	status, err := r.wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	fs, ok := status[path]
	return ok && (fs.Staging != gogit.Unmodified || fs.Worktree != gogit.Unmodified), nil
}

// changedPaths returns the sorted slash-separated paths that differ from HEAD.
func (r *Repo) changedPaths() ([]string, gogit.Status, error) {
	status, err := r.wt.Status()
	if err != nil {
		return nil, nil, fmt.Errorf("worktree status: %w", err)
	}
	var paths []string
	for path, fs := range status {
		if fs.Worktree == gogit.Unmodified && fs.Staging == gogit.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, status, nil
}

// Change is one path that differs from HEAD, with git's short status codes.
type Change struct {
	Path     string
	Staging  string
	Worktree string
}

// Changes lists the paths that differ from HEAD, sorted by path.
func (r *Repo) Changes() ([]Change, error) {
	paths, status, err := r.changedPaths()
	if err != nil {
		return nil, err
	}
	changes := make([]Change, len(paths))
	for i, p := range paths {
		fs := status[p]
		changes[i] = Change{
			Path:     p,
			Staging:  string(rune(fs.Staging)),
			Worktree: string(rune(fs.Worktree)),
		}
	}
	return changes, nil
}

// Rel converts a path from a hook payload into a worktree-relative,
// slash-separated path. Relative paths are resolved against cwd.
func (r *Repo) Rel(path, cwd string) (string, error) {
	if !filepath.IsAbs(path) {
		if cwd == "" {
			cwd = r.root
		}
		path = filepath.Join(cwd, path)
	}
	path = filepath.Clean(path)
	if dir, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(dir, filepath.Base(path))
	}

	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRepository, path)
	}
	return filepath.ToSlash(rel), nil
}

// StageFile adds a single worktree-relative path to the index. A file that
// no longer exists on disk is staged as a deletion.
func (r *Repo) StageFile(path string) error {
	if _, err := os.Lstat(filepath.Join(r.root, filepath.FromSlash(path))); errors.Is(err, os.ErrNotExist) {
		if _, err := r.wt.Remove(path); err != nil {
			return fmt.Errorf("stage deletion of %s: %w", path, err)
		}
		return nil
	}
	if _, err := r.wt.Add(path); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	return nil
}

// StageAll stages every change in the worktree, deletions and untracked files included.
func (r *Repo) StageAll() ([]string, error) {
	paths, status, err := r.changedPaths()
	if err != nil {
		return nil, err
	}
	var staged []string
	for _, path := range paths {
		fs := status[path]
		switch fs.Worktree {
		case gogit.Unmodified:
			// already staged
		case gogit.Deleted:
			if _, err := r.wt.Remove(path); err != nil {
				return staged, fmt.Errorf("stage deletion of %s: %w", path, err)
			}
		default:
			if _, err := r.wt.Add(path); err != nil {
				return staged, fmt.Errorf("stage %s: %w", path, err)
			}
		}
		staged = append(staged, path)
	}
	return staged, nil
}

// CreateBranch creates refs/heads/<name> at HEAD and switches HEAD to it.
// The worktree and index are left untouched. On an unborn HEAD only the
// symbolic HEAD is moved, so the first commit lands on the new branch.
func (r *Repo) CreateBranch(name string) error {
	ref := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(ref, false); err == nil {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("look up branch %s: %w", name, err)
	}

	head, err := r.repo.Head()
	switch {
	case err == nil:
		if err := r.repo.Storer.SetReference(plumbing.NewHashReference(ref, head.Hash())); err != nil {
			return fmt.Errorf("create branch %s: %w", name, err)
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// unborn HEAD: nothing to point the branch at yet
	default:
		return fmt.Errorf("resolve HEAD: %w", err)
	}

	if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)); err != nil {
		return fmt.Errorf("switch to branch %s: %w", name, err)
	}
	return nil
}

// Commit records the index as a new commit on HEAD and returns its hash.
func (r *Repo) Commit(message string) (string, error) {
	sig, err := r.signature()
	if err != nil {
		return "", err
	}
	hash, err := r.wt.Commit(message, &gogit.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

// CommitFile records HEAD plus the staged state of path as a new commit.
// Anything else in the index stays staged for the user's next commit.
func (r *Repo) CommitFile(path, message string) (string, error) {
	sig, err := r.signature()
	if err != nil {
		return "", err
	}
	staged, err := r.repo.Storer.Index()
	if err != nil {
		return "", fmt.Errorf("read index: %w", err)
	}
	only, err := r.headIndex(staged.Version, path)
	if err != nil {
		return "", err
	}
	if e, err := staged.Entry(path); err == nil {
		entry := *e
		only.Entries = append(only.Entries, &entry)
	}

	if err := r.repo.Storer.SetIndex(only); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	hash, commitErr := r.wt.Commit(message, &gogit.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err := r.repo.Storer.SetIndex(staged); err != nil {
		return "", fmt.Errorf("restore index: %w", err)
	}
	if commitErr != nil {
		return "", fmt.Errorf("commit %s: %w", path, commitErr)
	}
	return hash.String(), nil
}

// headIndex builds an index holding the files of HEAD, minus skip.
func (r *Repo) headIndex(version uint32, skip string) (*index.Index, error) {
	idx := &index.Index{Version: version}
	tree, err := r.headTree()
	if err != nil || tree == nil {
		return idx, err
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return nil, fmt.Errorf("walk HEAD tree: %w", err)
		}
		if entry.Mode == filemode.Dir || name == skip {
			continue
		}
		idx.Entries = append(idx.Entries, &index.Entry{Name: name, Hash: entry.Hash, Mode: entry.Mode})
	}
}

// signature builds the commit identity from repository config merged with
// the user's global config.
func (r *Repo) signature() (*object.Signature, error) {
	cfg, err := r.repo.ConfigScoped(gitconfig.GlobalScope)
	if err != nil {
		return nil, fmt.Errorf("read git config: %w", err)
	}
	name, email := cfg.User.Name, cfg.User.Email
	if cfg.Author.Name != "" {
		name = cfg.Author.Name
	}
	if cfg.Author.Email != "" {
		email = cfg.Author.Email
	}
	if name == "" || email == "" {
		return nil, ErrNoIdentity
	}
	return &object.Signature{Name: name, Email: email, When: r.now()}, nil
}

// headTree returns the tree of HEAD, or nil for an unborn branch.
func (r *Repo) headTree() (*object.Tree, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	return commit.Tree()
}
