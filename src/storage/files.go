package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// chtimer is implemented by filesystems that can stamp modification times.
// The dual-file protocol orders copies by mtime, so stores stamp every write
// with their own clock when the filesystem allows it.
type chtimer interface {
	Chtimes(name string, atime, mtime time.Time) error
}

// syncer is implemented by files that can flush to stable storage.
type syncer interface {
	Sync() error
}

// pathSyncer is implemented by filesystems whose files hide Sync, such as
// the chroot wrapper osfs returns.
type pathSyncer interface {
	Sync(name string) error
}

// dirFS is an osfs rooted at root that can also set file times.
type dirFS struct {
	billy.Filesystem
	root string
}

// NewDirFS returns a billy filesystem rooted at dir.
func NewDirFS(dir string) billy.Filesystem {
	return &dirFS{Filesystem: osfs.New(dir), root: dir}
}

func (d *dirFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(filepath.Join(d.root, filepath.FromSlash(name)), atime, mtime)
}

func (d *dirFS) Sync(name string) error {
	f, err := os.OpenFile(filepath.Join(d.root, filepath.FromSlash(name)), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// syncFile flushes the written temp file before it is renamed into place.
func syncFile(fs billy.Filesystem, f billy.File) error {
	if s, ok := f.(syncer); ok {
		return s.Sync()
	}
	if s, ok := fs.(pathSyncer); ok {
		return s.Sync(f.Name())
	}
	return nil
}

func fileExists(fs billy.Basic, p string) bool {
	info, err := fs.Stat(p)
	return err == nil && !info.IsDir()
}

func modTime(fs billy.Basic, p string) (time.Time, bool) {
	info, err := fs.Stat(p)
	if err != nil || info.IsDir() {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// oldestPath returns the path a write should target. A missing file is
// always the oldest. Ties go to b so that oldestPath and newestPath never
// agree while both files exist.
func oldestPath(fs billy.Basic, a, b string) string {
	at, aok := modTime(fs, a)
	if !aok {
		return a
	}
	bt, bok := modTime(fs, b)
	if !bok {
		return b
	}
	if at.Before(bt) {
		return a
	}
	return b
}

// newestPath returns the most recently written existing file, or "" when
// neither exists. Ties go to a.
func newestPath(fs billy.Basic, a, b string) string {
	at, aok := modTime(fs, a)
	bt, bok := modTime(fs, b)
	switch {
	case !aok && !bok:
		return ""
	case !bok:
		return a
	case !aok:
		return b
	}
	if bt.After(at) {
		return b
	}
	return a
}

// writeFileAtomic writes data to a temp file next to target, syncs it and
// renames it into place, then stamps the mtime with now when the filesystem supports it.
func writeFileAtomic(fs billy.Filesystem, target string, data []byte, now time.Time) error {
	dir := path.Dir(target)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := util.TempFile(fs, dir, path.Base(target)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", target, err)
	}
	tmpPath := tmpFile.Name()

	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			_ = fs.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file for %s: %w", target, err)
	}
	if err := syncFile(fs, tmpFile); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temp file for %s: %w", target, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", target, err)
	}

	if err := fs.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to publish %s: %w", target, err)
	}
	cleanupTmp = false

	if ct, ok := fs.(chtimer); ok {
		if err := ct.Chtimes(target, now, now); err != nil {
			return fmt.Errorf("failed to stamp %s: %w", target, err)
		}
	}
	return nil
}

// removeIfExists deletes p and treats a missing file as success.
func removeIfExists(fs billy.Basic, p string) error {
	if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
