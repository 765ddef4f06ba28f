package storage

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	logs "github.com/danmuck/smplog"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/danmuck/dps_saves/src/record"
)

// StorageConfig records how a slot was encoded at its last write. It is kept
// in the slot's metadata under MetaStorageConfig.
type StorageConfig struct {
	Encoding  record.Encoding `toml:"encoding"`
	Encrypted bool            `toml:"encrypted"`
}

// Config controls a DualFileStore.
type Config struct {
	Layout   Layout
	Encoding record.Encoding // encoding used for new writes
	Encrypt  bool            // seal new writes with Transform
	// Transform is required when Encrypt is set or when older slots on disk
	// were written encrypted.
	Transform Transform
	// ArchiveOnFullCorruption moves both copies (and the slot metadata) aside
	// when neither decodes.
	ArchiveOnFullCorruption bool
	Version                 float32 // version stamped on fresh records
	Verbose                 bool
}

// DefaultConfig returns a text-encoded, unencrypted store config.
func DefaultConfig() Config {
	return Config{
		Layout:   DefaultLayout(),
		Encoding: record.EncodingText,
		Version:  1.0,
	}
}

// DualFileStore persists one record per slot to a primary and a backup file.
// Writes always target the older copy, so an interrupted write can damage at
// most one of them.
type DualFileStore struct {
	fs     billy.Filesystem
	layout Layout
	cfg    Config
	now    func() time.Time
}

// OpenDir returns a store rooted at dir on the local filesystem.
func OpenDir(dir string, cfg Config) (*DualFileStore, error) {
	return NewDualFileStore(NewDirFS(dir), cfg)
}

func NewDualFileStore(fs billy.Filesystem, cfg Config) (*DualFileStore, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.Encrypt && cfg.Transform == nil {
		return nil, fmt.Errorf("encryption enabled without a transform")
	}
	if err := fs.MkdirAll(cfg.Layout.Folder, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %w", err)
	}
	return &DualFileStore{
		fs:     fs,
		layout: cfg.Layout,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// SetClock replaces the clock used for timestamps, mtimes and archive names.
func (s *DualFileStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *DualFileStore) Layout() Layout { return s.layout }

func (s *DualFileStore) Config() Config { return s.cfg }

// CurrentStorageConfig describes how the next write will be encoded.
func (s *DualFileStore) CurrentStorageConfig() StorageConfig {
	return StorageConfig{Encoding: s.cfg.Encoding, Encrypted: s.cfg.Encrypt}
}

// NewRecord returns an empty record named after slot.
func (s *DualFileStore) NewRecord(slot int) *record.Record {
	r := record.New(s.cfg.Version)
	if slot >= 0 {
		r.SetName(s.layout.SlotName(slot))
	}
	return r
}

// SavePath returns the primary save path of slot.
func (s *DualFileStore) SavePath(slot int) string {
	return s.layout.SavePath(slot)
}

// Save writes r to the older copy of slot and stamps the slot metadata with
// the storage config used.
func (s *DualFileStore) Save(slot int, r *record.Record) (string, error) {
	return s.SaveWithMetadata(slot, r, nil)
}

// SaveWithMetadata is Save with a hook that can add keys to the slot
// metadata before it is flushed.
func (s *DualFileStore) SaveWithMetadata(slot int, r *record.Record, fn func(m *Metadata)) (string, error) {
	if slot == TemporarySlot {
		return "", ErrTemporarySlot
	}
	if slot < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	now := s.now()
	r.Touch(now)
	r.SetName(s.layout.SlotName(slot))

	sc := s.CurrentStorageConfig()
	data, err := record.CodecFor(sc.Encoding).Encode(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode slot %d: %w", slot, err)
	}
	if sc.Encrypted {
		if data, err = s.cfg.Transform.Seal(data); err != nil {
			return "", fmt.Errorf("failed to seal slot %d: %w", slot, err)
		}
	}

	primary := s.layout.SavePath(slot)
	target := oldestPath(s.fs, primary, s.layout.BackupOf(primary))
	if err := writeFileAtomic(s.fs, target, data, now); err != nil {
		return "", err
	}
	if s.cfg.Verbose {
		logs.Infof("saved slot %d to %s (%s, %d entries)", slot, target, sc.Encoding, r.Len())
	}

	scData, err := toml.Marshal(sc)
	if err != nil {
		return target, fmt.Errorf("failed to encode storage config: %w", err)
	}
	err = s.UpdateMetadata(slot, func(m *Metadata) {
		m.Set(MetaStorageConfig, scData)
		if fn != nil {
			fn(m)
		}
	})
	return target, err
}

// Load reads slot. The newest copy is tried first and the other copy is the
// fallback. When exactly one copy is broken it is archived and replaced with
// the good one. When both are broken Load returns an error matching
// ErrCorrupt, archiving both first if configured. A slot with no files
// returns ErrNotFound.
func (s *DualFileStore) Load(slot int) (*record.Record, error) {
	if slot == TemporarySlot {
		return nil, ErrTemporarySlot
	}
	if slot < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	primary := s.layout.SavePath(slot)
	backup := s.layout.BackupOf(primary)
	newest := newestPath(s.fs, primary, backup)
	if newest == "" {
		return nil, ErrNotFound
	}
	other := primary
	if newest == primary {
		other = backup
	}
	otherExists := fileExists(s.fs, other)
	configs := s.readConfigs(slot)

	if s.cfg.Verbose {
		logs.Infof("loading slot %d from %s", slot, newest)
	}

	r, newestErr := s.decodeFile(slot, newest, configs)
	if newestErr == nil {
		r.SetName(s.layout.SlotName(slot))
		return r, nil
	}
	logs.Warnf("%v", newestErr)

	if !otherExists {
		return nil, s.fullCorruption(slot, newestErr, newest)
	}

	r, otherErr := s.decodeFile(slot, other, configs)
	if otherErr != nil {
		logs.Warnf("%v", otherErr)
		return nil, s.fullCorruption(slot, errors.Join(newestErr, otherErr), newest, other)
	}

	s.repair(slot, other, newest)
	r.SetName(s.layout.SlotName(slot))
	return r, nil
}

// repair archives the broken copy and replaces it with the good one.
func (s *DualFileStore) repair(slot int, good, broken string) {
	if _, err := archiveFile(s.fs, s.layout, broken, s.now()); err != nil {
		logs.Warnf("slot %d: %v", slot, err)
	}
	data, err := s.readFile(good)
	if err != nil {
		logs.Warnf("slot %d: failed to read %s for repair: %v", slot, good, err)
		return
	}
	// keep the good copy newest so the next write lands on the repaired one
	stamp := s.now()
	if t, ok := modTime(s.fs, good); ok && t.Before(stamp) {
		stamp = t.Add(-time.Millisecond)
	}
	if err := writeFileAtomic(s.fs, broken, data, stamp); err != nil {
		logs.Warnf("slot %d: failed to repair %s: %v", slot, broken, err)
		return
	}
	logs.Warnf("slot %d: repaired %s from %s", slot, broken, good)
}

func (s *DualFileStore) fullCorruption(slot int, err error, paths ...string) error {
	logs.Errorf(err, "slot %d: every save copy is corrupted", slot)
	if s.cfg.ArchiveOnFullCorruption {
		now := s.now()
		meta := s.layout.MetadataPath(slot)
		for _, p := range append(paths, meta, s.layout.BackupOf(meta)) {
			if _, aerr := archiveFile(s.fs, s.layout, p, now); aerr != nil {
				logs.Warnf("slot %d: %v", slot, aerr)
			}
		}
	}
	return err
}

// readConfigs returns the storage configs to try: the one recorded for the
// slot, the current one, then every other combination the store can read.
// A copy written before an encoding change stays readable that way.
func (s *DualFileStore) readConfigs(slot int) []StorageConfig {
	return s.withFallbacks(s.preferredConfigs(slot))
}

func (s *DualFileStore) withFallbacks(preferred []StorageConfig) []StorageConfig {
	configs := preferred
	for _, enc := range []record.Encoding{record.EncodingText, record.EncodingBinary} {
		for _, encrypted := range []bool{false, true} {
			if encrypted && s.cfg.Transform == nil {
				continue
			}
			sc := StorageConfig{Encoding: enc, Encrypted: encrypted}
			if !slices.Contains(configs, sc) {
				configs = append(configs, sc)
			}
		}
	}
	return configs
}

func (s *DualFileStore) preferredConfigs(slot int) []StorageConfig {
	current := s.CurrentStorageConfig()
	meta, err := s.ReadMetadata(slot)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logs.Warnf("slot %d: no usable storage config, trying current settings: %v", slot, err)
		}
		return []StorageConfig{current}
	}
	raw, ok := meta[MetaStorageConfig]
	if !ok {
		return []StorageConfig{current}
	}
	var recorded StorageConfig
	if err := toml.Unmarshal(raw, &recorded); err != nil {
		logs.Warnf("slot %d: invalid storage config %q: %v", slot, string(raw), err)
		return []StorageConfig{current}
	}
	if recorded == current {
		return []StorageConfig{current}
	}
	return []StorageConfig{recorded, current}
}

func (s *DualFileStore) decodeFile(slot int, p string, configs []StorageConfig) (*record.Record, error) {
	raw, err := s.readFile(p)
	if err != nil {
		return nil, &CorruptionError{Slot: slot, Path: p, Err: err}
	}
	var errs []error
	for _, sc := range configs {
		r, err := s.decode(raw, sc)
		if err == nil {
			return r, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", sc.Encoding, err))
	}
	return nil, &CorruptionError{Slot: slot, Path: p, Err: errors.Join(errs...)}
}

func (s *DualFileStore) decode(raw []byte, sc StorageConfig) (*record.Record, error) {
	if sc.Encrypted {
		if s.cfg.Transform == nil {
			return nil, fmt.Errorf("file is encrypted but no transform is configured")
		}
		var err error
		if raw, err = s.cfg.Transform.Open(raw); err != nil {
			return nil, err
		}
	}
	return record.CodecFor(sc.Encoding).Decode(raw)
}

func (s *DualFileStore) readFile(p string) ([]byte, error) {
	return util.ReadFile(s.fs, p)
}

// IsSlotUsed reports whether slot has at least one save copy.
func (s *DualFileStore) IsSlotUsed(slot int) bool {
	p := s.layout.SavePath(slot)
	return fileExists(s.fs, p) || fileExists(s.fs, s.layout.BackupOf(p))
}

// UsedSlots lists every slot that has a primary or backup save file.
func (s *DualFileStore) UsedSlots() ([]int, error) {
	entries, err := s.fs.ReadDir(s.layout.Folder)
	if err != nil {
		if !fileExistsDir(s.fs, s.layout.Folder) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read save directory: %w", err)
	}
	seen := make(map[int]struct{})
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slot, ok := s.layout.ParseSlot(e.Name()); ok {
			seen[slot] = struct{}{}
		}
	}
	slots := make([]int, 0, len(seen))
	for slot := range seen {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots, nil
}

// AvailableSlot returns the lowest unused slot below max, or -1.
func (s *DualFileStore) AvailableSlot(max int) int {
	for i := 0; i < max; i++ {
		if !s.IsSlotUsed(i) {
			return i
		}
	}
	return -1
}

// Delete removes the save and metadata files of slot, backups included.
func (s *DualFileStore) Delete(slot int) error {
	save := s.layout.SavePath(slot)
	meta := s.layout.MetadataPath(slot)
	for _, p := range []string{s.layout.BackupOf(save), s.layout.BackupOf(meta), save, meta} {
		if err := removeIfExists(s.fs, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	if s.cfg.Verbose {
		logs.Infof("deleted save data for slot %d", slot)
	}
	return nil
}

// DeleteAll removes every save, metadata and backup file in the save folder.
// Archived files are left alone.
func (s *DualFileStore) DeleteAll() error {
	entries, err := s.fs.ReadDir(s.layout.Folder)
	if err != nil {
		if !fileExistsDir(s.fs, s.layout.Folder) {
			return nil
		}
		return fmt.Errorf("failed to read save directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, s.layout.SaveExt) ||
			strings.HasSuffix(name, s.layout.MetadataExt) ||
			strings.HasSuffix(name, s.layout.BackupExt) {
			p := s.fs.Join(s.layout.Folder, name)
			if err := removeIfExists(s.fs, p); err != nil {
				return fmt.Errorf("failed to delete %s: %w", p, err)
			}
		}
	}
	if s.cfg.Verbose {
		logs.Infof("deleted all save files and metadata")
	}
	return nil
}
