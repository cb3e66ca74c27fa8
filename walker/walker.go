// Package walker visits every directory below a root, one directory at a
// time, following symlinks. A failure in one directory never stops the walk.
package walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/reqsercom/snippetsync/logger"
)

// Dir is one visited directory.
type Dir struct {
	// Path is the directory as reached from the root (symlinks not resolved).
	Path string
	// Rel is Path relative to the root, slash separated; "." for the root.
	Rel string
	// Files holds the regular files of the directory (symlinks to files
	// included), full paths in lexical order.
	Files []string
}

// VisitFunc processes one directory.
type VisitFunc func(ctx context.Context, d Dir) error

// Stats counts directories by fate.
type Stats struct {
	Visited  int
	Excluded int
	Failed   int
}

// Walker traverses a tree with an explicit stack.
type Walker struct {
	root    string
	exclude []string
	log     *logger.Logger

	// OnError is called for every directory that could not be read or whose
	// visit failed or panicked.
	OnError func(path string, err error)
}

// New returns a walker for root. exclude holds doublestar patterns matched
// against root-relative slash paths; invalid patterns are rejected.
func New(root string, exclude []string, log *logger.Logger) (*Walker, error) {
	var patterns []string
	for _, p := range exclude {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = filepath.ToSlash(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		patterns = append(patterns, p)
	}
	return &Walker{
		root:    root,
		exclude: patterns,
		log:     log.With("component", "walker"),
	}, nil
}

// Walk visits the root and every directory below it. Files of a directory
// are handed over before any of its subdirectories is visited; siblings are
// visited in lexical order. Each physical directory is visited once, so
// symlink cycles terminate.
func (w *Walker) Walk(ctx context.Context, visit VisitFunc) Stats {
	var stats Stats
	seen := make(map[string]bool)
	stack := []string{w.root}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rel := w.rel(dir)
		if rel != "." && w.excluded(rel) {
			w.log.Debug("directory excluded", "path", dir)
			stats.Excluded++
			continue
		}

		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			w.fail(&stats, dir, fmt.Errorf("resolving %s: %w", dir, err))
			continue
		}
		if seen[resolved] {
			w.log.Debug("directory already visited", "path", dir, "resolved", resolved)
			continue
		}
		seen[resolved] = true

		subdirs, err := w.visitDir(ctx, dir, rel, visit)
		if err != nil {
			w.fail(&stats, dir, err)
		} else {
			stats.Visited++
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return stats
}

// visitDir lists dir and runs visit on its files. It returns the
// subdirectories to descend into; they are returned even when visit fails so
// that one broken directory does not hide its children.
func (w *Walker) visitDir(ctx context.Context, dir, rel string, visit VisitFunc) (subdirs []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", dir, r)
		}
	}()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	d := Dir{Path: dir, Rel: rel}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		isDir := e.IsDir()
		if e.Type()&os.ModeSymlink != 0 {
			info, statErr := os.Stat(path)
			if statErr != nil {
				w.log.Debug("skipping dangling symlink", "path", path, "error", statErr)
				continue
			}
			isDir = info.IsDir()
		} else if !isDir && !e.Type().IsRegular() {
			continue
		}

		if isDir {
			subdirs = append(subdirs, path)
			continue
		}
		if w.excluded(w.rel(path)) {
			continue
		}
		d.Files = append(d.Files, path)
	}

	return subdirs, visit(ctx, d)
}

func (w *Walker) fail(stats *Stats, dir string, err error) {
	stats.Failed++
	w.log.Error("directory skipped", "path", dir, "error", err)
	if w.OnError != nil {
		w.OnError(dir, err)
	}
}

func (w *Walker) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Walker) excluded(rel string) bool {
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
