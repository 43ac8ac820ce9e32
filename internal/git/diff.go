package git

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

// ErrReadFile indicates a working-tree file could not be read for diffing.
var ErrReadFile = errors.New("cannot read file")

// binarySniffLen matches git's heuristic: a NUL byte in the first 8000 bytes means binary.
const binarySniffLen = 8000

// Diff renders a unified diff of the working tree against HEAD. With no
// paths every changed path is included; otherwise only the given
// worktree-relative paths are diffed. Unchanged paths produce no output.
func (r *Repo) Diff(paths ...string) (string, error) {
	if len(paths) == 0 {
		changed, _, err := r.changedPaths()
		if err != nil {
			return "", err
		}
		paths = changed
	}

	tree, err := r.headTree()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, path := range paths {
		before, err := blobContent(tree, path)
		if err != nil {
			return "", err
		}
		after, err := r.worktreeContent(path)
		if err != nil {
			return "", err
		}
		sb.WriteString(FileDiff(path, before, after))
	}
	return strings.TrimSpace(sb.String()), nil
}

// FileDiff renders one file's change in git's patch layout. A nil side
// means the file does not exist on that side.
func FileDiff(path string, before, after []byte) string {
	if bytes.Equal(before, after) && (before == nil) == (after == nil) {
		return ""
	}

	fromFile, toFile := "a/"+path, "b/"+path
	var header strings.Builder
	fmt.Fprintf(&header, "diff --git a/%s b/%s\n", path, path)
	switch {
	case before == nil:
		header.WriteString("new file\n")
		fromFile = "/dev/null"
	case after == nil:
		header.WriteString("deleted file\n")
		toFile = "/dev/null"
	}

	if isBinary(before) || isBinary(after) {
		return header.String() + fmt.Sprintf("Binary file %s changed\n", path)
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	}
	body, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return header.String() + string(after)
	}
	return header.String() + body
}

func isBinary(b []byte) bool {
	if len(b) > binarySniffLen {
		b = b[:binarySniffLen]
	}
	return bytes.IndexByte(b, 0) >= 0
}

// blobContent returns the file's content in tree, or nil if absent.
func blobContent(tree *object.Tree, path string) ([]byte, error) {
	if tree == nil {
		return nil, nil
	}
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s from HEAD: %w", path, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s from HEAD: %w", path, err)
	}
	return []byte(contents), nil
}

// worktreeContent returns the file's content on disk, or nil if it was deleted.
func (r *Repo) worktreeContent(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w %s: %v", ErrReadFile, path, err)
	}
	return data, nil
}
