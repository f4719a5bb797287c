// Package store persists sessions and stage artifacts as JSON files
// under a single root directory.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/veridocs/reviewd/internal/session"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Config configures the file store.
type Config struct {
	// Root is the directory holding all session state.
	Root string `koanf:"root"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Root: "./data"}
}

// FileStore lays sessions out as
//
//	<root>/sessions/<id>/session.json
//	<root>/sessions/<id>/artifacts/<name>
//
// Writes go through a temp file and rename so readers never observe a
// partial object.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// New creates the store and its root directory.
func New(cfg Config, logger *zap.Logger) (*FileStore, error) {
	if cfg.Root == "" {
		cfg.Root = DefaultConfig().Root
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(cfg.Root, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileStore{root: cfg.Root, logger: logger.Named("store")}, nil
}

func (s *FileStore) sessionDir(id string) string {
	return filepath.Join(s.root, "sessions", id)
}

func (s *FileStore) sessionPath(id string) string {
	return filepath.Join(s.sessionDir(id), "session.json")
}

func (s *FileStore) artifactPath(id, name string) string {
	return filepath.Join(s.sessionDir(id), "artifacts", name)
}

// validName rejects names that could escape the session directory.
func validName(name string) error {
	if name == "" {
		return errors.New("empty object name")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid object name %q", name)
	}
	return nil
}

// GetSession loads a session by ID.
func (s *FileStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	if err := validName(id); err != nil {
		return nil, err
	}

	var sess session.Session
	if err := readJSON(s.sessionPath(id), &sess); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return &sess, nil
}

// PutSession writes a session atomically.
func (s *FileStore) PutSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if err := validName(sess.ID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.sessionDir(sess.ID), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return writeJSON(s.sessionPath(sess.ID), sess)
}

// ListSessions returns all session IDs in sorted order.
func (s *FileStore) ListSessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetJSON loads a stage artifact into v.
func (s *FileStore) GetJSON(ctx context.Context, sessionID, name string, v any) error {
	if err := validName(sessionID); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}

	if err := readJSON(s.artifactPath(sessionID, name), v); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, sessionID, name)
		}
		return fmt.Errorf("read artifact %s/%s: %w", sessionID, name, err)
	}
	return nil
}

// PutJSON writes a stage artifact atomically.
func (s *FileStore) PutJSON(ctx context.Context, sessionID, name string, v any) error {
	if err := validName(sessionID); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.artifactPath(sessionID, name)), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	return writeJSON(s.artifactPath(sessionID, name), v)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
