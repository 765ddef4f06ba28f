package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-billy/v5/util"
)

// Preferences holds state that belongs to the installation rather than to a
// slot.
type Preferences struct {
	LastUsedSlot int `toml:"last_used_slot"`
}

// LoadPreferences reads prefs.toml. A missing file returns LastUsedSlot -1.
func (s *DualFileStore) LoadPreferences() (Preferences, error) {
	prefs := Preferences{LastUsedSlot: -1}
	raw, err := util.ReadFile(s.fs, s.layout.PreferencesPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, fmt.Errorf("failed to read preferences: %w", err)
	}
	if _, err := toml.Decode(string(raw), &prefs); err != nil {
		return Preferences{LastUsedSlot: -1}, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return prefs, nil
}

func (s *DualFileStore) SavePreferences(prefs Preferences) error {
	data, err := toml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return writeFileAtomic(s.fs, s.layout.PreferencesPath(), data, s.now())
}

// ClearPreferences removes prefs.toml.
func (s *DualFileStore) ClearPreferences() error {
	return removeIfExists(s.fs, s.layout.PreferencesPath())
}
