package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for keys that resolve outside the configured root.
var ErrOutsideRoot = errors.New("source path is outside the source root")

// LocalFS implements ports.SourceProvider for paths on a mounted
// filesystem. With an empty root, keys are used as given. With a root,
// relative keys are joined to it and absolute keys must already lie
// beneath it; symlinks may not lead out of it either.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	if root != "" {
		root = filepath.Clean(root)
	}
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "file" }

func (l *LocalFS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("source path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("source %s is not a regular file", p)
	}
	return f, nil
}

func (l *LocalFS) resolve(key string) (string, error) {
	p := filepath.FromSlash(key)
	if l.root == "" {
		return p, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.root, p)
	}
	p = filepath.Clean(p)
	if !within(l.root, p) {
		return "", ErrOutsideRoot
	}

	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(l.root)
	if err != nil {
		return "", err
	}
	if !within(realRoot, resolved) {
		return "", ErrOutsideRoot
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
