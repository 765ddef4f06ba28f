package storage

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
)

// syncRecorder forwards to a dirFS and records which files were synced.
type syncRecorder struct {
	billy.Filesystem
	inner  *dirFS
	synced []string
}

func (r *syncRecorder) Sync(name string) error {
	r.synced = append(r.synced, name)
	return r.inner.Sync(name)
}

func TestWriteFileAtomicSyncsBeforeRename(t *testing.T) {
	dir := t.TempDir()
	inner := NewDirFS(dir).(*dirFS)
	fs := &syncRecorder{Filesystem: inner, inner: inner}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := writeFileAtomic(fs, "saves/slot0.save", []byte("payload"), now); err != nil {
		t.Fatalf("writeFileAtomic: %v", err)
	}

	if len(fs.synced) != 1 || !strings.HasPrefix(fs.synced[0], "saves/slot0.save.tmp-") {
		t.Fatalf("synced %v, want the temp file only", fs.synced)
	}
	data, err := os.ReadFile(osPath(dir, "saves/slot0.save"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("target holds %q", data)
	}
	if _, err := os.Stat(osPath(dir, fs.synced[0])); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}
