// Package tempstore hands out per-request file locations for uploads and
// conversion outputs.
package tempstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

type Kind int

const (
	KindInput Kind = iota
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// OutputSuffix marks a file as a conversion output.
const OutputSuffix = "converted.mp3"

type Store struct {
	uploadDir    string
	convertedDir string

	mu   sync.Mutex
	live map[string]struct{} // allocated and not yet removed
}

func New(uploadDir, convertedDir string) *Store {
	return &Store{
		uploadDir:    uploadDir,
		convertedDir: convertedDir,
		live:         make(map[string]struct{}),
	}
}

func (s *Store) UploadDir() string    { return s.uploadDir }
func (s *Store) ConvertedDir() string { return s.convertedDir }

// Allocate returns a fresh path for an artifact of the given kind. Names
// combine a nanosecond timestamp with a UUIDv7, so no two calls in the
// lifetime of the process return the same path. The parent directory is
// created if it does not exist yet. Nothing is written at the path.
func (s *Store) Allocate(kind Kind, originalName string) (string, error) {
	var dir, tail string
	switch kind {
	case KindInput:
		dir, tail = s.uploadDir, sanitizeName(originalName)
	case KindOutput:
		dir, tail = s.convertedDir, OutputSuffix
	default:
		return "", fmt.Errorf("unknown artifact kind %v", kind)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create %s dir %s: %w", kind, dir, err)
	}

	name := fmt.Sprintf("%d-%s-%s", time.Now().UnixNano(), uuid.Must(uuid.NewV7()).String(), tail)
	path := filepath.Join(dir, name)
	s.mu.Lock()
	s.live[path] = struct{}{}
	s.mu.Unlock()
	log.Debugf("allocated %s path %s", kind, path)
	return path, nil
}

// Remove deletes path. A file that is already gone is not an error.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s.mu.Lock()
	delete(s.live, path)
	s.mu.Unlock()
	return nil
}

func (s *Store) isLive(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[path]
	return ok
}

// FreeSpace returns the free space in bytes for the filesystem containing
// the upload directory.
func (s *Store) FreeSpace() (uint64, error) {
	dir := s.uploadDir
	if _, err := os.Stat(dir); err != nil {
		dir = filepath.Dir(dir)
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("error getting filesystem stats: %v", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// sanitizeName keeps the original name recognisable while making sure it
// cannot escape the directory or break shell-unfriendly tooling.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f, r == '/', r == ':', r == '"', r == '*', r == '?', r == '<', r == '>', r == '|':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 128 {
		ext := filepath.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		cut := 128 - len(ext)
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + ext
	}
	return out
}

// Usage returns the number of files and bytes currently held in the upload
// and converted directories.
func (s *Store) Usage() (files int, bytes int64, err error) {
	for _, dir := range []string{s.uploadDir, s.convertedDir} {
		err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files++
			bytes += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, 0, fmt.Errorf("error walking directory: %v", err)
		}
	}
	return files, bytes, nil
}

// Sweep removes files older than maxAge from the upload and converted
// directories. Paths handed out by this Store and not yet removed belong to
// running requests and are skipped whatever their age, so a conversion
// without a timeout is never swept from under its job. Everything else this
// old was left behind by a process that died mid-request.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, dir := range []string{s.uploadDir, s.convertedDir} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return removed, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if s.isLive(path) {
				continue
			}
			if err := s.Remove(path); err != nil {
				log.Errorf("error deleting stale file %s: %v", path, err)
				continue
			}
			log.Infof("deleted stale file %s", path)
			removed++
		}
	}
	return removed, nil
}

// SweepPeriodically runs Sweep once immediately and then every interval
// until ctx is done.
func (s *Store) SweepPeriodically(ctx context.Context, interval, maxAge time.Duration) {
	sweep := func() {
		if n, err := s.Sweep(maxAge); err != nil {
			log.Errorf("stale file sweep: %v", err)
		} else if n > 0 {
			log.Infof("stale file sweep removed %d files", n)
		}
	}
	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
