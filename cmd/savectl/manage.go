package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/dps_saves/src/storage"
	logs "github.com/danmuck/smplog"
)

// executeVerifyAction loads every used slot. Single corrupt copies are
// repaired by the load itself; fully corrupted slots are reported.
func executeVerifyAction(store *storage.DualFileStore) error {
	slots, err := store.UsedSlots()
	if err != nil {
		return fmt.Errorf("list slots: %w", err)
	}
	logs.Println("\nRunning integrity scan...")

	bad := 0
	for _, slot := range slots {
		name := store.Layout().SlotName(slot)
		if _, err := store.Load(slot); err != nil {
			bad++
			logs.MenuItem(slot, name+": "+err.Error(), false)
			logs.Printf("\n")
			continue
		}
		if _, err := store.ReadMetadata(slot); err != nil && !errors.Is(err, storage.ErrNotFound) {
			bad++
			logs.MenuItem(slot, name+" metadata: "+err.Error(), false)
			logs.Printf("\n")
		}
	}
	if bad == 0 {
		logs.StatusInfo(fmt.Sprintf("All %d slot(s) verified: healthy.", len(slots)))
		logs.Printf("\n")
		return nil
	}
	logs.Printf("Found %d unreadable file set(s).\n", bad)
	return nil
}

func executeDeleteAction(cfg RuntimeConfig, store *storage.DualFileStore) error {
	if !store.IsSlotUsed(cfg.Slot) {
		logs.StatusWarn(fmt.Sprintf("Slot %d has no save.", cfg.Slot))
		logs.Printf("\n")
		return nil
	}
	if err := store.Delete(cfg.Slot); err != nil {
		return err
	}
	prefs, err := store.LoadPreferences()
	if err == nil && prefs.LastUsedSlot == cfg.Slot {
		if err := store.ClearPreferences(); err != nil {
			logs.Warnf("could not clear preferences: %v", err)
		}
	}
	logs.Printf("Deleted slot %d.\n", cfg.Slot)
	return nil
}

func executeWipeAction(store *storage.DualFileStore) error {
	if err := store.DeleteAll(); err != nil {
		return err
	}
	if err := store.ClearPreferences(); err != nil {
		return err
	}
	logs.Println("Deleted every save.")
	return nil
}

// executeMetaAction prints the metadata of a slot, one key with --key, or
// sets --key to --value.
func executeMetaAction(cfg RuntimeConfig, store *storage.DualFileStore) error {
	if cfg.ValueProvided {
		err := store.UpdateMetadata(cfg.Slot, func(m *storage.Metadata) {
			m.SetString(cfg.Key, cfg.Value)
		})
		if err != nil {
			return fmt.Errorf("update slot %d metadata: %w", cfg.Slot, err)
		}
		logs.Printf("Set %s on slot %d.\n", cfg.Key, cfg.Slot)
		return nil
	}

	meta, err := store.ReadMetadata(cfg.Slot)
	if errors.Is(err, storage.ErrNotFound) {
		logs.StatusWarn(fmt.Sprintf("Slot %d has no metadata.", cfg.Slot))
		logs.Printf("\n")
		return nil
	}
	if err != nil {
		return err
	}
	if cfg.Key != "" {
		v, ok := meta[cfg.Key]
		if !ok {
			return fmt.Errorf("slot %d has no metadata key %q", cfg.Slot, cfg.Key)
		}
		logs.DataKV(cfg.Key, printable(v))
		return nil
	}
	logs.Titlef("\nMetadata of slot %d (%d):\n", cfg.Slot, len(meta))
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		logs.DataKV(key, preview(printable(meta[key])))
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
