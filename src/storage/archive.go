package storage

import (
	"fmt"
	"path"
	"sort"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/go-git/go-billy/v5"
)

// archiveStamp formats t as yyyyMMddHHmmssfff.
func archiveStamp(t time.Time) string {
	return fmt.Sprintf("%s%03d", t.Format("20060102150405"), t.Nanosecond()/int(time.Millisecond))
}

// archiveFile moves p into the archive folder under a timestamped name and
// returns the new path. The original path is free afterwards.
func archiveFile(fs billy.Filesystem, layout Layout, p string, now time.Time) (string, error) {
	if !fileExists(fs, p) {
		return "", nil
	}
	dir := layout.ArchiveDir()
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	base := archiveStamp(now) + "_" + path.Base(p)
	target := path.Join(dir, base)
	for i := 1; fileExists(fs, target); i++ {
		target = path.Join(dir, fmt.Sprintf("%s.%d", base, i))
	}

	if err := fs.Rename(p, target); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", p, err)
	}
	logs.Warnf("archived corrupted file %s -> %s", p, target)
	return target, nil
}

// ListArchived returns the archived file names, oldest first.
func (s *DualFileStore) ListArchived() ([]string, error) {
	entries, err := s.fs.ReadDir(s.layout.ArchiveDir())
	if err != nil {
		if fileExistsDir(s.fs, s.layout.ArchiveDir()) {
			return nil, fmt.Errorf("failed to read archive directory: %w", err)
		}
		return nil, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func fileExistsDir(fs billy.Basic, p string) bool {
	info, err := fs.Stat(p)
	return err == nil && info.IsDir()
}
