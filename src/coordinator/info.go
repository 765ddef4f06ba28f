package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/record"
	"github.com/danmuck/dps_saves/src/storage"
)

// peek returns the record of slot. Slots other than the active one are read
// from disk.
func (c *Coordinator) peek(slot int) (*record.Record, bool) {
	if slot == c.slot && c.rec != nil {
		return c.rec, true
	}
	if slot < 0 || !c.store.IsSlotUsed(slot) {
		return nil, false
	}
	rec, err := c.store.Load(slot)
	if err != nil {
		logs.Warnf("failed to read slot %d: %v", slot, err)
		return nil, false
	}
	return rec, true
}

// CreationTime returns when slot was first written, zero when unknown.
func (c *Coordinator) CreationTime(slot int) time.Time {
	if rec, ok := c.peek(slot); ok {
		return rec.Meta.Created
	}
	return time.Time{}
}

func (c *Coordinator) PlayTime(slot int) time.Duration {
	if rec, ok := c.peek(slot); ok {
		return rec.Meta.PlayTime
	}
	return 0
}

// GameVersion returns the version recorded in slot, -1 when unknown.
func (c *Coordinator) GameVersion(slot int) float32 {
	if rec, ok := c.peek(slot); ok {
		return rec.Meta.Version
	}
	return -1
}

// TimeSinceLastSave reports how long ago the active record was written.
func (c *Coordinator) TimeSinceLastSave() (time.Duration, error) {
	if !c.IsSlotLoaded() {
		return 0, ErrNoActiveSlot
	}
	return c.now().Sub(c.rec.Meta.Modified), nil
}

// IsActiveSaveNew reports whether the active record has never been written.
func (c *Coordinator) IsActiveSaveNew() bool {
	return c.IsSlotLoaded() && c.rec.IsNew()
}

// ActiveSavePath returns the primary save path of the active slot, "" for
// the temporary slot or when none is active.
func (c *Coordinator) ActiveSavePath() string {
	if !c.IsSlotLoaded() || c.slot < 0 {
		return ""
	}
	return c.store.SavePath(c.slot)
}

// SaveableData returns the payload of ownerID-componentID in slot.
func (c *Coordinator) SaveableData(slot int, ownerID, componentID string) (string, bool) {
	rec, ok := c.peek(slot)
	if !ok {
		return "", false
	}
	return rec.Get(ownerID + "-" + componentID)
}

// DecodeSaveableData unmarshals a JSON payload stored in another slot.
func DecodeSaveableData[T any](c *Coordinator, slot int, ownerID, componentID string) (T, bool) {
	var v T
	raw, ok := c.SaveableData(slot, ownerID, componentID)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		logs.Warnf("payload %s-%s in slot %d: %v", ownerID, componentID, slot, err)
		return v, false
	}
	return v, true
}

// metadataSlot resolves NoSlot to the active slot.
func (c *Coordinator) metadataSlot(slot int) (int, error) {
	if slot == NoSlot {
		slot = c.slot
	}
	if slot < 0 {
		return NoSlot, fmt.Errorf("%w: metadata needs a persisted slot", ErrNoActiveSlot)
	}
	return slot, nil
}

// Metadata returns key from the metadata of slot. NoSlot means the active
// slot.
func (c *Coordinator) Metadata(slot int, key string) ([]byte, bool) {
	slot, err := c.metadataSlot(slot)
	if err != nil {
		return nil, false
	}
	data, err := c.store.ReadMetadata(slot)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logs.Warnf("failed to read metadata of slot %d: %v", slot, err)
		}
		return nil, false
	}
	v, ok := data[key]
	return v, ok
}

func (c *Coordinator) SetMetadata(slot int, key string, value []byte) error {
	return c.UpdateMetadata(slot, func(m *storage.Metadata) { m.Set(key, value) })
}

// UpdateMetadata applies several metadata changes under one open and flush.
func (c *Coordinator) UpdateMetadata(slot int, fn func(m *storage.Metadata)) error {
	slot, err := c.metadataSlot(slot)
	if err != nil {
		return err
	}
	return c.store.UpdateMetadata(slot, fn)
}

// WipeStageData removes every entry of group from the active record. With
// wipeSavers, owners in group are wiped and stop saving, and participants
// of the group forget their instances.
func (c *Coordinator) WipeStageData(group string, wipeSavers bool) error {
	if c.rec == nil {
		logs.Warnf("wipe of %q skipped: %v", group, ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	if wipeSavers {
		for _, s := range c.Savers() {
			if s.group != group {
				continue
			}
			s.WipeData(c.rec)
			s.opts.Manual = true
			c.Deregister(s, false)
		}
		for _, p := range c.Participants() {
			if p.Group() == group {
				p.ClearData()
			}
		}
	}
	n := c.rec.RemoveGroup(group)
	c.debugf("wiped %d entries of group %q", n, group)
	return nil
}

// WipeSaver removes the entries of s. With stopSaving, s is also
// deregistered and turned manual so it cannot write them back.
func (c *Coordinator) WipeSaver(s *Saver, stopSaving bool) error {
	if c.rec == nil {
		return ErrNoActiveSlot
	}
	s.WipeData(c.rec)
	if stopSaving {
		s.opts.Manual = true
		c.Deregister(s, false)
	}
	return nil
}
