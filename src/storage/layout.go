package storage

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const (
	// TemporarySlot is never written to disk.
	TemporarySlot = -2

	ArchiveDirName  = "Corrupted Saves"
	PreferencesFile = "prefs.toml"
)

// Layout names the files that make up a slot. All paths are relative to the
// root of the store's filesystem.
type Layout struct {
	Folder        string // directory holding every slot file
	FileName      string // slot file prefix, "slot" gives slot3.save
	SaveExt       string
	MetadataExt   string
	BackupExt     string
	ArchiveFolder string
}

// DefaultLayout matches slot<n>.save, slot<n>.save.backup, slot<n>.info and
// slot<n>.info.backup under SaveData/.
func DefaultLayout() Layout {
	return Layout{
		Folder:        "SaveData",
		FileName:      "slot",
		SaveExt:       ".save",
		MetadataExt:   ".info",
		BackupExt:     ".backup",
		ArchiveFolder: ArchiveDirName,
	}
}

func (l Layout) SlotName(slot int) string {
	return l.FileName + strconv.Itoa(slot)
}

func (l Layout) SavePath(slot int) string {
	return path.Join(l.Folder, l.SlotName(slot)+l.SaveExt)
}

func (l Layout) MetadataPath(slot int) string {
	return path.Join(l.Folder, l.SlotName(slot)+l.MetadataExt)
}

func (l Layout) BackupOf(p string) string {
	return p + l.BackupExt
}

func (l Layout) ArchiveDir() string {
	return path.Join(l.Folder, l.ArchiveFolder)
}

func (l Layout) PreferencesPath() string {
	return path.Join(l.Folder, PreferencesFile)
}

// ParseSlot extracts the slot number from a primary or backup save file name.
func (l Layout) ParseSlot(name string) (int, bool) {
	base := path.Base(name)
	base, ok := strings.CutSuffix(base, l.BackupExt)
	if !ok {
		base = path.Base(name)
	}
	base, ok = strings.CutSuffix(base, l.SaveExt)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutPrefix(base, l.FileName)
	if !ok || digits == "" {
		return 0, false
	}
	slot, err := strconv.Atoi(digits)
	if err != nil || slot < 0 {
		return 0, false
	}
	return slot, true
}

// Validate reports a layout that cannot name slot files unambiguously.
func (l Layout) Validate() error {
	if l.Folder == "" || l.FileName == "" {
		return fmt.Errorf("layout requires a folder and file name")
	}
	if l.SaveExt == "" || l.MetadataExt == "" || l.BackupExt == "" {
		return fmt.Errorf("layout requires save, metadata and backup extensions")
	}
	if l.SaveExt == l.MetadataExt {
		return fmt.Errorf("save and metadata extensions must differ")
	}
	if l.ArchiveFolder == "" {
		return fmt.Errorf("layout requires an archive folder")
	}
	return nil
}
