// Package fs implements core.Store on the local filesystem.
//
// Every collection lives in its own JSON file named after the store key.
// Writes go through a temp file, fsync and rename, so a crash leaves either
// the previous or the new collection on disk, never a torn file.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/casesync/pkg/core"
)

const (
	fileExt         = ".json"
	lockFileName    = ".casesync.lock"
	defaultLockWait = 5 * time.Second
)

// ErrInvalidKey is returned for keys that cannot be mapped to a file name.
var ErrInvalidKey = errors.New("invalid store key")

// ErrReadOnly is returned by Save on a read-only store.
var ErrReadOnly = errors.New("store is in read-only mode")

// Config holds the configuration for the filesystem store.
type Config struct {
	Path      string
	MustExist bool
	ReadOnly  bool
	LockWait  time.Duration // zero means 5s; older lock files are treated as abandoned
	Logger    *slog.Logger
}

// Store implements core.Store using one file per key.
type Store struct {
	Path string

	config   Config
	lock     *fileLock
	mu       sync.RWMutex
	lastSave *time.Time
}

// NewStore creates a filesystem-backed store. Call Initialize before use.
func NewStore(config Config) *Store {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.LockWait <= 0 {
		config.LockWait = defaultLockWait
	}
	return &Store{
		Path:   config.Path,
		config: config,
		lock: &fileLock{
			path:    filepath.Join(config.Path, lockFileName),
			timeout: config.LockWait,
			stale:   config.LockWait,
		},
	}
}

// Initialize ensures the store directory exists.
func (s *Store) Initialize(ctx context.Context) error {
	if s.config.MustExist || s.config.ReadOnly {
		info, err := os.Stat(s.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", s.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", s.Path)
		}
		return nil
	}

	if err := os.MkdirAll(s.Path, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return nil
}

// Load reads the collection stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Save writes the collection for key atomically.
//
// Workflow:
//  1. Validate the key.
//  2. Acquire the cross-process lock file, breaking it if its holder died.
//  3. Replace the collection file (see replaceFile).
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	unlock, err := s.lock.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.config.Logger.Debug("collection saved", "key", key, "bytes", len(data))
	s.recordSave()
	return nil
}

// Keys lists the keys of every stored collection, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, TempFilePrefix) {
			continue
		}
		if filepath.Ext(name) != fileExt {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements core.Store. The filesystem store holds no handles.
func (s *Store) Close() error {
	return nil
}

func (s *Store) pathFor(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.Path, key+fileExt), nil
}

func (s *Store) recordSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastSave = &now
}

var _ core.Store = (*Store)(nil)
