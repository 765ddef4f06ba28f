package main

import (
	"errors"
	"fmt"

	"github.com/danmuck/dps_saves/src/storage"
	logs "github.com/danmuck/smplog"
)

func executeSlotsAction(store *storage.DualFileStore) error {
	slots, err := store.UsedSlots()
	if err != nil {
		return fmt.Errorf("list slots: %w", err)
	}
	if len(slots) == 0 {
		logs.StatusWarn("No saves found under " + store.Layout().Folder + ".")
		logs.Printf("\n")
		return nil
	}

	prefs, err := store.LoadPreferences()
	if err != nil {
		logs.Warnf("could not read preferences: %v", err)
	}

	logs.Titlef("\nUsed slots (%d):\n", len(slots))
	for _, slot := range slots {
		label := store.Layout().SlotName(slot)
		if slot == prefs.LastUsedSlot {
			label += " (last used)"
		}
		logs.MenuItem(slot, label, false)
		logs.Printf("\n")

		meta, err := store.ReadMetadata(slot)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				logs.Dataf("      metadata: %v\n", err)
			}
			continue
		}
		logs.Dataf("      saved: %s  played: %s  version: %s\n",
			metaString(meta, storage.MetaLastSavedTime),
			metaString(meta, storage.MetaTimePlayed),
			metaString(meta, storage.MetaGameVersion),
		)
	}
	return nil
}

func executeArchivedAction(store *storage.DualFileStore) error {
	names, err := store.ListArchived()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logs.Println("No corrupted saves archived.")
		return nil
	}
	logs.Titlef("\nArchived files (%d):\n", len(names))
	for i, name := range names {
		logs.MenuItem(i, name, false)
		logs.Printf("\n")
	}
	return nil
}

func metaString(meta map[string][]byte, key string) string {
	if v, ok := meta[key]; ok && len(v) > 0 {
		return string(v)
	}
	return "-"
}
