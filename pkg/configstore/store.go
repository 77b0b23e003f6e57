// Package configstore reads and writes Home Assistant configuration with
// path confinement, timestamped backups, atomic replacement and
// validation-driven rollback. Registry-backed virtual paths are dispatched
// to the Home Assistant client.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config configures a Store.
type Config struct {
	ConfigDir  string
	BackupDir  string
	MaxBackups int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ConfigDir == "" {
		return errors.New("config dir is required")
	}
	if c.BackupDir == "" {
		return errors.New("backup dir is required")
	}
	if c.MaxBackups <= 0 {
		return errors.New("max backups must be positive")
	}
	return nil
}

// Validator runs the post-write configuration check.
type Validator interface {
	CheckConfig(ctx context.Context) error
}

// WriteOptions controls WriteRaw.
type WriteOptions struct {
	Validate     bool
	CreateBackup bool
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the clock used to name backups.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the safe file store.
type Store struct {
	configDir  string
	backupDir  string
	maxBackups int
	registry   Registry
	validator  Validator
	log        *slog.Logger
	now        func() time.Time

	// mu serializes real-file writes so backup naming and rotation
	// observe a consistent backup directory.
	mu sync.Mutex
}

// New creates a Store. registry and validator may be nil: virtual writes
// then fail and validation is skipped.
func New(cfg Config, registry Registry, validator Validator, log *slog.Logger, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	configDir, err := canonicalDir(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	backupDir, err := canonicalDir(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("backup dir: %w", err)
	}

	s := &Store{
		configDir:  configDir,
		backupDir:  backupDir,
		maxBackups: cfg.MaxBackups,
		registry:   registry,
		validator:  validator,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	log.Info("config store initialized",
		"config_dir", s.configDir,
		"backup_dir", s.backupDir,
		"max_backups", s.maxBackups,
	)
	return s, nil
}

func canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// ConfigDir returns the absolute configuration root.
func (s *Store) ConfigDir() string { return s.configDir }

// BackupDir returns the absolute backup directory.
func (s *Store) BackupDir() string { return s.backupDir }

// resolve maps a relative path to an absolute path inside the config dir.
func (s *Store) resolve(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.configDir, path)
	}
	full = filepath.Clean(full)

	// Follow symlinks of the deepest existing ancestor so links cannot
	// point outside the root.
	if resolved, err := evalExisting(full); err == nil {
		full = resolved
	}

	rel, err := filepath.Rel(s.configDir, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathViolation, path)
	}
	return full, nil
}

func evalExisting(path string) (string, error) {
	var tail []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, tail...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

// Rel returns path relative to the config dir using forward slashes.
func (s *Store) Rel(full string) string {
	rel, err := filepath.Rel(s.configDir, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}

// ReadRaw returns the content of a real file under the config dir.
func (s *Store) ReadRaw(ctx context.Context, path string) (string, error) {
	content, found, err := s.ReadRawOptional(ctx, path)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return content, nil
}

// ReadRawOptional is ReadRaw where a missing file is reported through found
// instead of an error.
func (s *Store) ReadRawOptional(_ context.Context, path string) (content string, found bool, err error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	s.log.Debug("read config file", "path", path)
	return string(data), true, nil
}

// WriteRaw writes content to path. Virtual paths are sent to the registry.
// Real files are replaced atomically; an existing file is backed up first
// when requested. A failed validation restores the previous bytes and
// returns an error wrapping ErrValidationFailed.
func (s *Store) WriteRaw(ctx context.Context, path, content string, opts WriteOptions) error {
	if kind, id := ParseVirtual(path); kind != KindFile {
		return s.writeVirtual(ctx, kind, id, content)
	}

	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed, mode, err := snapshot(full)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}

	if opts.CreateBackup && existed {
		if _, err := s.createBackup(full); err != nil {
			return fmt.Errorf("%w: backup %s: %w", ErrWriteFailed, path, err)
		}
	}

	s.log.Info("writing config file", "path", path, "bytes", len(content))
	if err := atomicWrite(full, []byte(content), mode); err != nil {
		s.rollback(full, prev, existed, mode)
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}

	if opts.Validate {
		if err := s.validate(ctx); err != nil {
			s.log.Error("validation failed, rolling back", "path", path, "error", err)
			s.rollback(full, prev, existed, mode)
			return err
		}
	}

	if opts.CreateBackup {
		s.rotate(backupStem(s.Rel(full)))
	}
	return nil
}

// ValidateConfig runs one configuration check.
func (s *Store) ValidateConfig(ctx context.Context) error {
	return s.validate(ctx)
}

func (s *Store) validate(ctx context.Context) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator.CheckConfig(ctx); err != nil {
		if errors.Is(err, ErrValidationFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

func snapshot(full string) (data []byte, existed bool, mode fs.FileMode, err error) {
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, 0o644, nil
		}
		return nil, false, 0, err
	}
	if info.IsDir() {
		return nil, false, 0, fmt.Errorf("%s is a directory", full)
	}
	data, err = os.ReadFile(full)
	if err != nil {
		return nil, false, 0, err
	}
	return data, true, info.Mode().Perm(), nil
}

// rollback puts the target back to its pre-write state.
func (s *Store) rollback(full string, prev []byte, existed bool, mode fs.FileMode) {
	if !existed {
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Error("rollback remove failed", "path", full, "error", err)
		}
		return
	}
	if err := atomicWrite(full, prev, mode); err != nil {
		s.log.Error("rollback failed", "path", full, "error", err)
		return
	}
	s.log.Info("restored previous content", "path", s.Rel(full))
}

// atomicWrite writes to a sibling .tmp file and renames it over the target.
func atomicWrite(full string, data []byte, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
