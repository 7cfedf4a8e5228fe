// Package camo stages the camouflage site templates served by nginx.
package camo

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/getmockd/reflector/pkg/logging"
	"github.com/getmockd/reflector/pkg/prereq"
)

// IndexPattern locates the entry page of a template.
const IndexPattern = "**/index.html"

// Config configures Stage.
type Config struct {
	// Source is the directory holding one subdirectory per template.
	Source string

	// WorkDir receives a "templates" copy of Source.
	WorkDir string

	// Owner is the account nginx workers run as. The copy is chowned to it
	// when the operator runs as root.
	Owner string

	Logger *slog.Logger
}

// Store maps template names to the directory nginx serves.
type Store struct {
	dir   string
	roots map[string]string
	log   *slog.Logger
}

// Stage copies the templates into the work directory, hands them to the
// nginx user and indexes them. Templates without an index.html are skipped.
func Stage(cfg Config) (*Store, error) {
	log := logging.Component(cfg.Logger, "camo")

	if err := prereq.Dir("camo template dir", cfg.Source); err != nil {
		return nil, err
	}
	dst := filepath.Join(cfg.WorkDir, "templates")
	if err := os.RemoveAll(dst); err != nil {
		return nil, fmt.Errorf("clearing %s: %w", dst, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dst, err)
	}
	if err := os.CopyFS(dst, os.DirFS(cfg.Source)); err != nil {
		return nil, fmt.Errorf("copying templates: %w", err)
	}
	if err := chownTree(dst, cfg.Owner, log); err != nil {
		return nil, err
	}

	s := &Store{dir: dst, roots: make(map[string]string), log: log}
	if err := s.index(); err != nil {
		return nil, err
	}
	log.Debug("templates staged", "dir", dst, "templates", s.Names())
	return s, nil
}

func (s *Store) index() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.dir, e.Name())
		matches, err := doublestar.Glob(os.DirFS(dir), IndexPattern)
		if err != nil {
			return fmt.Errorf("searching %s: %w", dir, err)
		}
		if len(matches) == 0 {
			s.log.Warn("template has no index.html, skipping", "template", e.Name())
			continue
		}
		slices.SortFunc(matches, func(a, b string) int {
			if d := strings.Count(a, "/") - strings.Count(b, "/"); d != 0 {
				return d
			}
			return strings.Compare(a, b)
		})
		s.roots[e.Name()] = filepath.Join(dir, filepath.FromSlash(path.Dir(matches[0])))
	}
	return nil
}

// Resolve returns the directory to serve for the named template.
func (s *Store) Resolve(name string) (string, error) {
	root, ok := s.roots[name]
	if !ok {
		return "", &prereq.MissingError{What: "template", Path: name}
	}
	return root, nil
}

// Names returns the available template names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.roots))
	for n := range s.roots {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Dir returns the staged templates directory.
func (s *Store) Dir() string { return s.dir }

func chownTree(root, owner string, log *slog.Logger) error {
	if owner == "" {
		return nil
	}
	if os.Geteuid() != 0 {
		log.Debug("not running as root, leaving template ownership unchanged", "owner", owner)
		return nil
	}
	u, err := user.Lookup(owner)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			log.Warn("nginx user does not exist, leaving template ownership unchanged", "owner", owner)
			return nil
		}
		return fmt.Errorf("looking up %s: %w", owner, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("uid of %s: %w", owner, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("gid of %s: %w", owner, err)
	}
	return filepath.WalkDir(root, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(p, uid, gid)
	})
}
