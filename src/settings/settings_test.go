package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danmuck/dps_saves/src/record"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves.toml")
	body := `
max_slot_count = 10
encoding = "binary"
spawn_throttled = true
throttled_stages = ["Dungeon"]
unknown_key = 1
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.MaxSlotCount = 10
	want.Encoding = record.EncodingBinary
	want.SpawnThrottled = true
	want.ThrottledStages = []string{"Dungeon"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves.toml")
	want := Default()
	want.UseEncryption = true
	want.SlotLoadBehaviour = LoadTemporarySlot
	want.ThrottledStages = []string{"a", "b"}

	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveReportsWriteFailures(t *testing.T) {
	dir := t.TempDir()
	if err := Default().Save(dir); err == nil {
		t.Errorf("Save onto a directory succeeded")
	}
	if err := Default().Save(filepath.Join(dir, "missing", "saves.toml")); err == nil {
		t.Errorf("Save into a missing directory succeeded")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"no slots", func(s *Settings) { s.MaxSlotCount = 0 }},
		{"default slot out of range", func(s *Settings) { s.DefaultSlot = 100 }},
		{"unknown load behaviour", func(s *Settings) { s.SlotLoadBehaviour = "sometimes" }},
		{"same extensions", func(s *Settings) { s.MetadataExtension = s.SaveExtension }},
		{"zero interval", func(s *Settings) { s.SaveOnInterval = true; s.SaveIntervalSeconds = 0 }},
		{"zero framerate", func(s *Settings) { s.SpawnThrottled = true; s.ThrottleTargetFramerate = 0 }},
		{"short key", func(s *Settings) { s.UseEncryption = true; s.EncryptionKey = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tt.name)
			}
		})
	}
}

func TestIsThrottled(t *testing.T) {
	s := Default()
	if s.IsThrottled("Town") {
		t.Errorf("throttled while spawn_throttled is off")
	}
	s.SpawnThrottled = true
	if !s.IsThrottled("Town") {
		t.Errorf("empty stage list should throttle every stage")
	}
	s.ThrottledStages = []string{"dungeon"}
	if !s.IsThrottled("Dungeon") || s.IsThrottled("Town") {
		t.Errorf("stage list not honoured")
	}
}

func TestDerivedDurations(t *testing.T) {
	s := Default()
	if got := s.FrameBudget(); got != time.Second/30 {
		t.Errorf("FrameBudget = %v", got)
	}
	s.SaveIntervalSeconds = 1.5
	if got := s.SaveInterval(); got != 1500*time.Millisecond {
		t.Errorf("SaveInterval = %v", got)
	}
}

func TestStoreConfigAttachesTransform(t *testing.T) {
	cfg, err := Default().StoreConfig()
	if err != nil {
		t.Fatalf("StoreConfig: %v", err)
	}
	if cfg.Encrypt || cfg.Transform == nil {
		t.Errorf("Encrypt = %v, Transform = %v", cfg.Encrypt, cfg.Transform)
	}

	s := Default()
	s.UseEncryption = true
	s.EncryptionIV = "bad"
	if _, err := s.StoreConfig(); err == nil {
		t.Errorf("StoreConfig accepted a bad iv with encryption on")
	}
}
