package storage

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	logs "github.com/danmuck/smplog"
	"google.golang.org/protobuf/encoding/protowire"
)

// Keys written next to every record.
const (
	MetaTimePlayed    = "timeplayed"
	MetaGameVersion   = "gameversion"
	MetaCreationDate  = "creationdate"
	MetaLastSavedTime = "lastsavedtime"
	MetaStorageConfig = "storageconfig"
)

// Metadata is an open key -> bytes store for one slot. It reconciles the
// primary and backup copies when opened and writes the older copy on Close.
// Do not keep one open across unrelated slot operations.
type Metadata struct {
	store  *DualFileStore
	slot   int
	path   string
	data   map[string][]byte
	closed bool
}

// OpenMetadata loads the metadata of slot. A slot without metadata files
// opens empty. Copies that fail to decode are archived the same way the
// record files are.
func (s *DualFileStore) OpenMetadata(slot int) (*Metadata, error) {
	if slot < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	m := &Metadata{
		store: s,
		slot:  slot,
		path:  s.layout.MetadataPath(slot),
		data:  make(map[string][]byte),
	}

	data, err := s.reconcileMetadata(slot, true)
	switch {
	case err == nil:
		m.data = data
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
		// open empty, Close rewrites a fresh copy
	default:
		return nil, err
	}
	return m, nil
}

// ReadMetadata returns the metadata of slot without holding it open. Nothing
// is archived and nothing is written.
func (s *DualFileStore) ReadMetadata(slot int) (map[string][]byte, error) {
	if slot < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	return s.reconcileMetadata(slot, false)
}

// UpdateMetadata opens the metadata of slot, applies fn and closes it.
func (s *DualFileStore) UpdateMetadata(slot int, fn func(m *Metadata)) error {
	m, err := s.OpenMetadata(slot)
	if err != nil {
		return err
	}
	fn(m)
	return m.Close()
}

func (s *DualFileStore) reconcileMetadata(slot int, repair bool) (map[string][]byte, error) {
	primary := s.layout.MetadataPath(slot)
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

	data, newestErr := s.readMetadataFile(slot, newest)
	if newestErr == nil {
		return data, nil
	}
	logs.Warnf("metadata %s unreadable: %v", newest, newestErr)

	var otherErr error = ErrNotFound
	if otherExists {
		data, otherErr = s.readMetadataFile(slot, other)
		if otherErr != nil {
			logs.Warnf("metadata %s unreadable: %v", other, otherErr)
		}
	}

	if repair {
		now := s.now()
		switch {
		case otherErr == nil:
			if _, err := archiveFile(s.fs, s.layout, newest, now); err != nil {
				logs.Warnf("failed to archive metadata %s: %v", newest, err)
			}
		case s.cfg.ArchiveOnFullCorruption:
			if _, err := archiveFile(s.fs, s.layout, newest, now); err != nil {
				logs.Warnf("failed to archive metadata %s: %v", newest, err)
			}
			if otherExists {
				if _, err := archiveFile(s.fs, s.layout, other, now); err != nil {
					logs.Warnf("failed to archive metadata %s: %v", other, err)
				}
			}
		}
	}

	if otherErr != nil {
		return nil, newestErr
	}
	return data, nil
}

func (s *DualFileStore) readMetadataFile(slot int, p string) (map[string][]byte, error) {
	raw, err := s.readFile(p)
	if err != nil {
		return nil, &CorruptionError{Slot: slot, Path: p, Err: err}
	}
	data, err := decodeMetadata(raw)
	if err != nil {
		return nil, &CorruptionError{Slot: slot, Path: p, Err: err}
	}
	return data, nil
}

func (m *Metadata) Slot() int { return m.slot }

func (m *Metadata) Get(key string) ([]byte, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *Metadata) GetString(key string) (string, bool) {
	v, ok := m.data[key]
	if !ok {
		return "", false
	}
	return string(v), true
}

// Set stores value under key. A nil value is ignored.
func (m *Metadata) Set(key string, value []byte) {
	if value == nil {
		return
	}
	m.data[key] = bytes.Clone(value)
}

// SetString stores value under key. An empty value is ignored.
func (m *Metadata) SetString(key, value string) {
	if value == "" {
		return
	}
	m.data[key] = []byte(value)
}

func (m *Metadata) Remove(key string) {
	delete(m.data, key)
}

// Keys returns every key in sorted order.
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close flushes every key to the older of the two copies. Closing twice is a
// no-op.
func (m *Metadata) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	s := m.store
	target := oldestPath(s.fs, m.path, s.layout.BackupOf(m.path))
	if err := writeFileAtomic(s.fs, target, encodeMetadata(m.data), s.now()); err != nil {
		return fmt.Errorf("failed to flush metadata for slot %d: %w", m.slot, err)
	}
	return nil
}

// encodeMetadata lays out [count fixed32] then count x (key string, len
// fixed32, raw bytes). Keys are sorted so equal maps encode equally.
func encodeMetadata(data map[string][]byte) []byte {
	keys := make([]string, 0, len(data))
	size := 4
	for k, v := range data {
		keys = append(keys, k)
		size += len(k) + len(v) + 9
	}
	sort.Strings(keys)

	buf := make([]byte, 0, size)
	buf = protowire.AppendFixed32(buf, uint32(len(keys)))
	for _, k := range keys {
		v := data[k]
		buf = protowire.AppendString(buf, k)
		buf = protowire.AppendFixed32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

func decodeMetadata(raw []byte) (map[string][]byte, error) {
	count, n := protowire.ConsumeFixed32(raw)
	if n < 0 {
		return nil, fmt.Errorf("failed to read entry count: %w", protowire.ParseError(n))
	}
	raw = raw[n:]
	if uint64(count)*5 > uint64(len(raw)) || count > math.MaxInt32 {
		return nil, fmt.Errorf("entry count %d exceeds remaining %d bytes", count, len(raw))
	}

	data := make(map[string][]byte, count)
	for i := uint32(0); i < count; i++ {
		key, n := protowire.ConsumeString(raw)
		if n < 0 {
			return nil, fmt.Errorf("entry %d: failed to read key: %w", i, protowire.ParseError(n))
		}
		raw = raw[n:]

		size, n := protowire.ConsumeFixed32(raw)
		if n < 0 {
			return nil, fmt.Errorf("entry %d: failed to read length: %w", i, protowire.ParseError(n))
		}
		raw = raw[n:]
		if uint64(size) > uint64(len(raw)) {
			return nil, fmt.Errorf("entry %d: value length %d exceeds remaining %d bytes", i, size, len(raw))
		}
		data[key] = bytes.Clone(raw[:size])
		raw = raw[size:]
	}
	return data, nil
}
