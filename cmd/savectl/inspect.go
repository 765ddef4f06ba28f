package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/dps_saves/src/record"
	"github.com/danmuck/dps_saves/src/storage"
	logs "github.com/danmuck/smplog"
)

const payloadPreview = 48

type entryDump struct {
	ID      string `toml:"id"`
	Group   string `toml:"group"`
	Payload string `toml:"payload"`
}

type slotDump struct {
	Slot     int                   `toml:"slot"`
	Version  float32               `toml:"version"`
	Created  time.Time             `toml:"created"`
	Modified time.Time             `toml:"modified"`
	PlayTime string                `toml:"play_time"`
	Storage  storage.StorageConfig `toml:"storage"`
	Metadata map[string]string     `toml:"metadata"`
	Entries  []entryDump           `toml:"entries"`
}

func newSlotDump(slot int, rec *record.Record, meta map[string][]byte) slotDump {
	d := slotDump{
		Slot:     slot,
		Version:  rec.Meta.Version,
		Created:  rec.Meta.Created,
		Modified: rec.Meta.Modified,
		PlayTime: rec.Meta.PlayTime.String(),
		Metadata: make(map[string]string, len(meta)),
	}
	for key, v := range meta {
		if key == storage.MetaStorageConfig {
			if _, err := toml.Decode(string(v), &d.Storage); err != nil {
				logs.Warnf("slot %d: unreadable storage config: %v", slot, err)
			}
			continue
		}
		d.Metadata[key] = printable(v)
	}
	for _, e := range rec.Entries() {
		d.Entries = append(d.Entries, entryDump{ID: e.ID, Group: e.Group, Payload: e.Payload})
	}
	return d
}

// printable keeps text values and hex encodes binary ones.
func printable(v []byte) string {
	if utf8.Valid(v) {
		return string(v)
	}
	return "hex:" + hex.EncodeToString(v)
}

// executeInspectAction loads one slot. Loading repairs a single corrupt copy
// the same way the game would.
func executeInspectAction(cfg RuntimeConfig, store *storage.DualFileStore, out io.Writer) error {
	rec, err := store.Load(cfg.Slot)
	if err != nil {
		return fmt.Errorf("load slot %d: %w", cfg.Slot, err)
	}
	meta, err := store.ReadMetadata(cfg.Slot)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logs.Warnf("slot %d metadata: %v", cfg.Slot, err)
	}
	d := newSlotDump(cfg.Slot, rec, meta)

	if cfg.DumpTOML {
		if err := toml.NewEncoder(out).Encode(d); err != nil {
			return fmt.Errorf("encode slot %d: %w", cfg.Slot, err)
		}
		return nil
	}

	logs.Titlef("\n%s\n", store.Layout().SlotName(cfg.Slot))
	logs.DataKV("Path", store.SavePath(cfg.Slot))
	logs.DataKV("Version", fmt.Sprintf("%g", d.Version))
	logs.DataKV("Created", formatTime(d.Created))
	logs.DataKV("Modified", formatTime(d.Modified))
	logs.DataKV("Play time", d.PlayTime)
	logs.DataKV("Encoding", fmt.Sprintf("%s encrypted=%v", d.Storage.Encoding, d.Storage.Encrypted))

	logs.Titlef("\nEntries (%d):\n", len(d.Entries))
	for i, e := range d.Entries {
		logs.MenuItem(i, logs.PadRight(40, e.ID)+"  group: "+e.Group, false)
		logs.Printf("\n")
		logs.Dataf("      %s\n", preview(e.Payload))
	}
	if len(d.Metadata) > 0 {
		logs.Titlef("\nMetadata (%d):\n", len(d.Metadata))
		for _, key := range sortedKeys(d.Metadata) {
			logs.DataKV(key, preview(d.Metadata[key]))
		}
	}
	return nil
}

func preview(s string) string {
	if len(s) <= payloadPreview {
		return s
	}
	return s[:payloadPreview] + fmt.Sprintf("... (%d bytes)", len(s))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
