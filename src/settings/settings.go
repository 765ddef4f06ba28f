package settings

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/record"
	"github.com/danmuck/dps_saves/src/storage"
)

// SlotLoadBehaviour picks the slot activated when the host starts.
type SlotLoadBehaviour string

const (
	LoadDefaultSlot   SlotLoadBehaviour = "load-default"
	LoadTemporarySlot SlotLoadBehaviour = "load-temporary"
	DontLoadSlot      SlotLoadBehaviour = "dont-load"
)

const DefaultEncryptionKey = "1234567890123456"

// Settings is the full save system configuration. Zero values are not
// meaningful, start from Default.
type Settings struct {
	GameVersion float32 `toml:"game_version"`

	DefaultSlot       int               `toml:"default_slot"`
	MaxSlotCount      int               `toml:"max_slot_count"`
	SlotLoadBehaviour SlotLoadBehaviour `toml:"slot_load_behaviour"`

	TrackTimePlayed bool `toml:"track_time_played"`

	Directory         string `toml:"directory"` // root of the save filesystem
	FolderName        string `toml:"folder_name"`
	FileName          string `toml:"file_name"`
	SaveExtension     string `toml:"save_extension"`
	MetadataExtension string `toml:"metadata_extension"`
	BackupExtension   string `toml:"backup_extension"`

	ArchiveOnFullCorruption bool `toml:"archive_on_full_corruption"`
	CreateNewOnCorruption   bool `toml:"create_new_on_corruption"`

	Encoding      record.Encoding `toml:"encoding"`
	UseEncryption bool            `toml:"use_encryption"`
	EncryptionKey string          `toml:"encryption_key"`
	EncryptionIV  string          `toml:"encryption_iv"`

	AutoSaveOnExit       bool    `toml:"auto_save_on_exit"`
	AutoSaveOnSlotSwitch bool    `toml:"auto_save_on_slot_switch"`
	SaveOnInterval       bool    `toml:"save_on_interval"`
	SaveIntervalSeconds  float64 `toml:"save_interval_seconds"`

	ClearSpawnedOnSlotSwitch      bool     `toml:"clear_spawned_on_slot_switch"`
	IgnoreDatalessSpawns          bool     `toml:"ignore_dataless_spawns"`
	SpawnThrottled                bool     `toml:"spawn_throttled"`
	ThrottleTargetFramerate       int      `toml:"throttle_target_framerate"`
	ThrottledStages               []string `toml:"throttled_stages"` // empty throttles every stage
	DisableAutoSaveDuringThrottle bool     `toml:"disable_auto_save_during_throttle"`

	EnableLogging bool `toml:"enable_logging"`
}

func Default() Settings {
	return Settings{
		GameVersion:       1.0,
		DefaultSlot:       0,
		MaxSlotCount:      100,
		SlotLoadBehaviour: LoadDefaultSlot,
		TrackTimePlayed:   true,

		Directory:         "./local/saves",
		FolderName:        "SaveData",
		FileName:          "slot",
		SaveExtension:     ".save",
		MetadataExtension: ".info",
		BackupExtension:   ".backup",

		Encoding:      record.EncodingText,
		EncryptionKey: DefaultEncryptionKey,
		EncryptionIV:  DefaultEncryptionKey,

		AutoSaveOnExit:       true,
		AutoSaveOnSlotSwitch: true,
		SaveIntervalSeconds:  60,

		ClearSpawnedOnSlotSwitch:      true,
		IgnoreDatalessSpawns:          true,
		ThrottleTargetFramerate:       30,
		DisableAutoSaveDuringThrottle: true,
	}
}

// Load decodes path over Default, so keys missing from the file keep their
// defaults. A missing file is not an error.
func Load(path string) (Settings, error) {
	s := Default()
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("failed to decode settings %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		logs.Warnf("settings %s: unknown key %q", path, key.String())
	}
	if err := s.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path as toml.
func (s Settings) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush settings file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close settings file: %w", err)
	}
	return nil
}

func (s Settings) Validate() error {
	var errs []error
	if s.MaxSlotCount < 1 {
		errs = append(errs, fmt.Errorf("max_slot_count must be >= 1, got %d", s.MaxSlotCount))
	}
	if s.DefaultSlot < 0 || s.DefaultSlot >= s.MaxSlotCount {
		errs = append(errs, fmt.Errorf("default_slot %d outside [0, %d)", s.DefaultSlot, s.MaxSlotCount))
	}
	switch s.SlotLoadBehaviour {
	case LoadDefaultSlot, LoadTemporarySlot, DontLoadSlot:
	default:
		errs = append(errs, fmt.Errorf("unknown slot_load_behaviour %q", s.SlotLoadBehaviour))
	}
	if s.Directory == "" {
		errs = append(errs, errors.New("directory must be set"))
	}
	if err := s.Layout().Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.SaveOnInterval && s.SaveIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("save_interval_seconds must be > 0, got %g", s.SaveIntervalSeconds))
	}
	if s.SpawnThrottled && s.ThrottleTargetFramerate < 1 {
		errs = append(errs, fmt.Errorf("throttle_target_framerate must be >= 1, got %d", s.ThrottleTargetFramerate))
	}
	if s.UseEncryption {
		if _, err := s.transform(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Layout returns the slot file layout inside Directory.
func (s Settings) Layout() storage.Layout {
	return storage.Layout{
		Folder:        s.FolderName,
		FileName:      s.FileName,
		SaveExt:       s.SaveExtension,
		MetadataExt:   s.MetadataExtension,
		BackupExt:     s.BackupExtension,
		ArchiveFolder: storage.ArchiveDirName,
	}
}

// StoreConfig builds the DualFileStore config. The AES transform is always
// attached when the key is valid so slots written encrypted stay readable
// after encryption is switched off.
func (s Settings) StoreConfig() (storage.Config, error) {
	cfg := storage.Config{
		Layout:                  s.Layout(),
		Encoding:                s.Encoding,
		Encrypt:                 s.UseEncryption,
		ArchiveOnFullCorruption: s.ArchiveOnFullCorruption,
		Version:                 s.GameVersion,
		Verbose:                 s.EnableLogging,
	}
	t, err := s.transform()
	if err != nil {
		if s.UseEncryption {
			return cfg, err
		}
		logs.Warnf("encryption key unusable, encrypted slots will not load: %v", err)
		return cfg, nil
	}
	cfg.Transform = t
	return cfg, nil
}

// OpenStore opens the store described by s on the local filesystem.
func (s Settings) OpenStore() (*storage.DualFileStore, error) {
	cfg, err := s.StoreConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save root %s: %w", s.Directory, err)
	}
	return storage.OpenDir(s.Directory, cfg)
}

func (s Settings) transform() (storage.Transform, error) {
	t, err := storage.NewAESTransform([]byte(s.EncryptionKey), []byte(s.EncryptionIV))
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key or iv: %w", err)
	}
	return t, nil
}

// IsThrottled reports whether spawns restored in stage are rate limited.
func (s Settings) IsThrottled(stage string) bool {
	if !s.SpawnThrottled {
		return false
	}
	if len(s.ThrottledStages) == 0 {
		return true
	}
	return slices.ContainsFunc(s.ThrottledStages, func(name string) bool {
		return strings.EqualFold(name, stage)
	})
}

// FrameBudget is the time a throttled spawner may spend per frame.
func (s Settings) FrameBudget() time.Duration {
	fps := s.ThrottleTargetFramerate
	if fps < 1 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

func (s Settings) SaveInterval() time.Duration {
	return time.Duration(s.SaveIntervalSeconds * float64(time.Second))
}
