package storage

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMetadataFlushesToOldestCopy(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, nil)
	primary := s.Layout().MetadataPath(0)
	backup := s.Layout().BackupOf(primary)

	if err := s.UpdateMetadata(0, func(m *Metadata) { m.SetString("a", "1") }); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if _, err := os.Stat(osPath(dir, primary)); err != nil {
		t.Fatalf("first flush did not create the primary: %v", err)
	}
	if _, err := os.Stat(osPath(dir, backup)); !os.IsNotExist(err) {
		t.Fatalf("first flush touched the backup")
	}

	if err := s.UpdateMetadata(0, func(m *Metadata) { m.SetString("b", "2") }); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if got := newestPath(s.fs, primary, backup); got != backup {
		t.Errorf("second flush landed on %s, want %s", got, backup)
	}

	got, err := s.ReadMetadata(0)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	want := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataReconcilesCorruptNewest(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, nil)
	primary := s.Layout().MetadataPath(0)
	backup := s.Layout().BackupOf(primary)

	_ = s.UpdateMetadata(0, func(m *Metadata) { m.SetString("a", "1") })
	_ = s.UpdateMetadata(0, func(m *Metadata) { m.SetString("b", "2") })
	if err := os.WriteFile(osPath(dir, backup), []byte("xx"), 0644); err != nil {
		t.Fatal(err)
	}

	// the read-only peek falls back without archiving
	peek, err := s.ReadMetadata(0)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, keysOf(peek)); diff != "" {
		t.Errorf("peek keys mismatch (-want +got):\n%s", diff)
	}
	if archived, _ := s.ListArchived(); len(archived) != 0 {
		t.Fatalf("ReadMetadata archived files: %v", archived)
	}

	m, err := s.OpenMetadata(0)
	if err != nil {
		t.Fatalf("OpenMetadata: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, m.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if archived, _ := s.ListArchived(); len(archived) != 1 {
		t.Errorf("archived = %v, want the corrupt backup", archived)
	}
	m.SetString("c", "3")
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// the archived backup path was free, so it is the oldest copy
	if got := newestPath(s.fs, primary, backup); got != backup {
		t.Errorf("flush landed on %s, want %s", got, backup)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMetadataFullCorruptionOpensEmpty(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, func(c *Config) { c.ArchiveOnFullCorruption = true })
	primary := s.Layout().MetadataPath(1)
	for _, p := range []string{primary, s.Layout().BackupOf(primary)} {
		if err := os.WriteFile(osPath(dir, p), []byte{0xff, 0xff, 0xff, 0x7f}, 0644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.ReadMetadata(1); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("ReadMetadata error = %v, want ErrCorrupt", err)
	}

	m, err := s.OpenMetadata(1)
	if err != nil {
		t.Fatalf("OpenMetadata: %v", err)
	}
	if len(m.Keys()) != 0 {
		t.Errorf("corrupt metadata opened with keys %v", m.Keys())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if archived, _ := s.ListArchived(); len(archived) != 2 {
		t.Errorf("archived = %v, want both copies", archived)
	}
}

func TestMetadataSettersIgnoreEmptyValues(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)
	m, err := s.OpenMetadata(0)
	if err != nil {
		t.Fatalf("OpenMetadata: %v", err)
	}
	m.Set("nil", nil)
	m.SetString("empty", "")
	m.Set("blob", []byte{0, 1, 2})
	m.Remove("missing")

	if diff := cmp.Diff([]string{"blob"}, m.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, ok := m.Get("blob"); !ok || len(v) != 3 {
		t.Errorf("Get(blob) = %v, %v", v, ok)
	}
}

func TestMetadataCodecRejectsTruncatedInput(t *testing.T) {
	raw := encodeMetadata(map[string][]byte{"key": []byte("value"), "other": {}})
	got, err := decodeMetadata(raw)
	if err != nil {
		t.Fatalf("decodeMetadata: %v", err)
	}
	if diff := cmp.Diff(map[string][]byte{"key": []byte("value"), "other": {}}, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i < len(raw); i++ {
		if _, err := decodeMetadata(raw[:i]); err == nil {
			t.Errorf("decodeMetadata accepted %d of %d bytes", i, len(raw))
		}
	}
}

func keysOf(m map[string][]byte) []string {
	md := &Metadata{data: m}
	return md.Keys()
}
