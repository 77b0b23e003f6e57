package configstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	backupSuffix    = ".backup"
	timestampLayout = "20060102_150405"
)

// A stem never contains ".", so the timestamp is the "_<date>_<time>" group
// right before the first dot of a backup name.
var backupNameRe = regexp.MustCompile(`^([^.]+)_(\d{8}_\d{6})(\.[^.]*)?\.backup$`)

var (
	stemEscaper   = strings.NewReplacer("%", "%25", "/", "%2F", ".", "%2E")
	stemUnescaper = strings.NewReplacer("%25", "%", "%2F", "/", "%2E", ".")
)

// BackupInfo describes one backup file.
type BackupInfo struct {
	Name         string    `json:"name"`
	OriginalFile string    `json:"original_file"`
	Timestamp    time.Time `json:"timestamp"`
	Size         int64     `json:"size"`
}

type backupName struct {
	stem string
	ts   time.Time
	ext  string
}

func parseBackupName(name string) (backupName, bool) {
	m := backupNameRe.FindStringSubmatch(name)
	if m == nil {
		return backupName{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, m[2], time.Local)
	if err != nil {
		return backupName{}, false
	}
	bn := backupName{stem: m[1], ts: ts, ext: m[3]}
	// Stems this store did not produce would decode to a different file.
	if stem, ext := splitBackupName(bn.originalPath()); stem != bn.stem || ext != bn.ext {
		return backupName{}, false
	}
	return bn, true
}

// originalPath is the config-relative path the backup was taken from.
func (b backupName) originalPath() string {
	return stemUnescaper.Replace(b.stem) + b.ext
}

// splitBackupName derives the backup stem and extension of a config-relative
// path: "configuration.yaml" gives ("configuration", ".yaml"),
// "packages/x.yaml" gives ("packages%2Fx", ".yaml") and ".HA_VERSION" gives
// ("%2EHA_VERSION", "").
func splitBackupName(rel string) (stem, ext string) {
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	ext = path.Ext(base)
	if ext == base {
		ext = ""
	}
	return stemEscaper.Replace(strings.TrimSuffix(rel, ext)), ext
}

func backupStem(rel string) string {
	stem, _ := splitBackupName(rel)
	return stem
}

// backups lists parsed backups, newest first. An empty stem lists all.
func (s *Store) backups(stem string) ([]BackupInfo, []backupName, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read backup dir: %w", err)
	}

	type item struct {
		info BackupInfo
		name backupName
		mod  time.Time
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), backupSuffix) {
			continue
		}
		bn, ok := parseBackupName(e.Name())
		if !ok || (stem != "" && bn.stem != stem) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{
			info: BackupInfo{
				Name:         e.Name(),
				OriginalFile: bn.originalPath(),
				Timestamp:    bn.ts,
				Size:         fi.Size(),
			},
			name: bn,
			mod:  fi.ModTime(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].name.ts.Equal(items[j].name.ts) {
			return items[i].name.ts.After(items[j].name.ts)
		}
		return items[i].mod.After(items[j].mod)
	})

	infos := make([]BackupInfo, len(items))
	names := make([]backupName, len(items))
	for i, it := range items {
		infos[i] = it.info
		names[i] = it.name
	}
	return infos, names, nil
}

// createBackup copies full into the backup dir. The timestamp is strictly
// later than every existing backup of the same stem; when the clock has not
// advanced past the newest one, the next second is used.
func (s *Store) createBackup(full string) (string, error) {
	rel := s.Rel(full)
	stem, ext := splitBackupName(rel)

	ts := s.now().Truncate(time.Second)
	_, existing, err := s.backups(stem)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 && !ts.After(existing[0].ts) {
		ts = existing[0].ts.Add(time.Second)
	}

	name := stem + "_" + ts.Format(timestampLayout) + ext + backupSuffix
	dst := filepath.Join(s.backupDir, name)
	if err := copyFile(full, dst); err != nil {
		return "", err
	}
	s.log.Info("created backup", "file", rel, "backup", name)
	return dst, nil
}

// rotate keeps the newest maxBackups backups of stem.
func (s *Store) rotate(stem string) {
	infos, _, err := s.backups(stem)
	if err != nil {
		s.log.Warn("backup rotation skipped", "stem", stem, "error", err)
		return
	}
	if len(infos) <= s.maxBackups {
		return
	}
	for _, info := range infos[s.maxBackups:] {
		if err := os.Remove(filepath.Join(s.backupDir, info.Name)); err != nil {
			s.log.Warn("failed to remove old backup", "backup", info.Name, "error", err)
			continue
		}
		s.log.Info("removed old backup", "backup", info.Name)
	}
}

// ListBackups returns backups newest first. With a non-empty path only the
// backups of that file are listed.
func (s *Store) ListBackups(path string) ([]BackupInfo, error) {
	stem := ""
	if path != "" {
		full, err := s.resolve(path)
		if err != nil {
			return nil, err
		}
		stem = backupStem(s.Rel(full))
	}
	infos, _, err := s.backups(stem)
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// RestoreBackup copies a backup over its original file. The current file
// is backed up first; a failed validation puts it back.
func (s *Store) RestoreBackup(ctx context.Context, name string, validate bool) error {
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %s", ErrPathViolation, name)
	}
	bn, ok := parseBackupName(name)
	if !ok {
		return fmt.Errorf("invalid backup name format: %s", name)
	}
	src := filepath.Join(s.backupDir, name)
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: backup %s", ErrNotFound, name)
		}
		return fmt.Errorf("read backup: %w", err)
	}

	target, err := s.resolve(bn.originalPath())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed, mode, err := snapshot(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if existed {
		if _, err := s.createBackup(target); err != nil {
			return fmt.Errorf("%w: backup current file: %w", ErrWriteFailed, err)
		}
	}

	s.log.Info("restoring backup", "backup", name, "file", bn.originalPath())
	if err := atomicWrite(target, data, mode); err != nil {
		s.rollback(target, prev, existed, mode)
		return fmt.Errorf("%w: restore %s: %w", ErrWriteFailed, name, err)
	}

	if validate {
		if err := s.validate(ctx); err != nil {
			s.log.Error("restore rolled back after validation failure", "backup", name, "error", err)
			s.rollback(target, prev, existed, mode)
			return err
		}
	}

	s.rotate(bn.stem)
	return nil
}

// copyFile copies src to dst keeping permissions and modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
