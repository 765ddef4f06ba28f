package coordinator

import (
	"errors"
	"fmt"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/record"
	"github.com/danmuck/dps_saves/src/settings"
	"github.com/danmuck/dps_saves/src/storage"
)

type slotOptions struct {
	reload     bool
	rec        *record.Record
	keep       bool
	writeAfter bool
}

// SlotOption adjusts a single SetSlot call.
type SlotOption func(*slotOptions)

// WithReload controls whether registered components are loaded from the new
// record. It defaults to true.
func WithReload(reload bool) SlotOption {
	return func(o *slotOptions) { o.reload = reload }
}

// WithRecord activates rec instead of reading the slot from disk. Owners
// are not saved into rec after the switch.
func WithRecord(rec *record.Record) SlotOption {
	return func(o *slotOptions) { o.rec = rec }
}

// KeepActiveData moves the active record to the new slot untouched.
func KeepActiveData() SlotOption {
	return func(o *slotOptions) { o.keep = true }
}

// WriteAfterChange writes the record to disk once the switch is done.
func WriteAfterChange() SlotOption {
	return func(o *slotOptions) { o.writeAfter = true }
}

// IsSlotValid reports whether slot fits the configured slot count. The
// temporary slot is always valid.
func (c *Coordinator) IsSlotValid(slot int) bool {
	if slot == TemporarySlot {
		return true
	}
	return slot >= 0 && slot < c.settings.MaxSlotCount
}

// SetSlot makes slot the active slot.
//
// Unless KeepActiveData is given the outgoing record is written when
// autosave on slot switch is enabled, spawned instances are cleared when
// configured, and the incoming record is read from disk (or created). Owners
// are then reset, loaded from the new record unless WithReload(false), and
// saved back into it so the record reflects any defaults they hold. A record
// given through WithRecord is not saved into.
func (c *Coordinator) SetSlot(slot int, opts ...SlotOption) error {
	if c.closed {
		return ErrClosed
	}
	o := slotOptions{reload: true}
	for _, opt := range opts {
		opt(&o)
	}

	if o.keep && c.rec == nil {
		logs.Warnf("cannot keep active save data: %v", ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	if !c.IsSlotValid(slot) {
		err := fmt.Errorf("%w: %d (max %d)", ErrInvalidSlot, slot, c.settings.MaxSlotCount)
		logs.Errorf(err, "attempted to set invalid slot")
		return err
	}

	if !o.keep {
		if c.settings.AutoSaveOnSlotSwitch && !c.autoSaveSuspended() && c.rec != nil {
			if err := c.WriteToDisk(true); err != nil {
				logs.Warnf("autosave before slot switch failed: %v", err)
			}
		}
		if c.settings.ClearSpawnedOnSlotSwitch {
			for _, p := range c.Participants() {
				p.RemoveAndWipeAll()
			}
		}
	}

	prev := c.slot
	if slot != prev {
		c.Publish(Event{Kind: SlotChangeBegin, Slot: slot, PrevSlot: prev})
	}
	c.slot = slot

	if o.keep {
		c.rec.SetName(c.store.Layout().SlotName(slot))
	} else {
		if c.rec != nil {
			c.rec.Dispose()
			c.rec = nil
		}
		if slot != TemporarySlot || o.rec != nil {
			rec, err := c.readSlot(slot, o.rec)
			if err != nil {
				c.slot = NoSlot
				return err
			}
			c.rec = rec
		} else {
			c.rec = c.store.NewRecord(slot)
		}
		_ = c.SyncReset()
		if o.reload {
			_ = c.SyncLoad()
		}
		// an injected record is authoritative; owners must not overwrite it
		if o.rec == nil {
			_ = c.SyncSave()
		}
	}

	if o.writeAfter {
		if err := c.WriteToDisk(true); err != nil {
			logs.Warnf("write after slot change failed: %v", err)
		}
	}
	if slot >= 0 {
		if err := c.store.SavePreferences(storage.Preferences{LastUsedSlot: slot}); err != nil {
			logs.Warnf("failed to remember last used slot: %v", err)
		}
	}
	c.infof("active slot %d -> %d", prev, slot)
	c.Publish(Event{Kind: SlotChangeDone, Slot: slot, PrevSlot: prev})
	return nil
}

// readSlot loads slot between the LoadingFromDisk events. A missing slot
// yields a fresh record. A corrupted slot yields one only when
// CreateNewOnCorruption is set.
func (c *Coordinator) readSlot(slot int, injected *record.Record) (*record.Record, error) {
	c.Publish(Event{Kind: LoadingFromDiskBegin, Slot: slot})
	defer c.Publish(Event{Kind: LoadingFromDiskDone, Slot: slot})

	if injected != nil {
		return injected, nil
	}
	rec, err := c.store.Load(slot)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, storage.ErrNotFound):
		c.debugf("slot %d has no save, starting fresh", slot)
		return c.store.NewRecord(slot), nil
	case errors.Is(err, storage.ErrCorrupt):
		c.Publish(Event{Kind: LoadingFromDiskCorrupt, Slot: slot})
		if c.settings.CreateNewOnCorruption {
			logs.Warnf("slot %d is corrupted, starting a new save: %v", slot, err)
			return c.store.NewRecord(slot), nil
		}
		return nil, err
	default:
		return nil, fmt.Errorf("failed to load slot %d: %w", slot, err)
	}
}

// SetSlotWithoutSaving switches to slot without writing the outgoing record
// and pushes the current component state into the incoming one.
func (c *Coordinator) SetSlotWithoutSaving(slot int) error {
	if c.closed {
		return ErrClosed
	}
	if !c.IsSlotValid(slot) || slot == TemporarySlot {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	prev := c.slot
	c.Publish(Event{Kind: SlotChangeBegin, Slot: slot, PrevSlot: prev})
	c.slot = slot
	if c.rec != nil {
		c.rec.Dispose()
		c.rec = nil
	}
	rec, err := c.readSlot(slot, nil)
	if err != nil {
		c.slot = NoSlot
		return err
	}
	c.rec = rec
	_ = c.SyncReset()
	_ = c.SyncSave()
	c.Publish(Event{Kind: SlotChangeDone, Slot: slot, PrevSlot: prev})
	return nil
}

// SetSlotToTemporary activates the temporary slot.
func (c *Coordinator) SetSlotToTemporary(reload, keepActiveData bool) error {
	opts := []SlotOption{WithReload(reload)}
	if keepActiveData {
		opts = append(opts, KeepActiveData())
	}
	return c.SetSlot(TemporarySlot, opts...)
}

// ClearSlot deactivates the active slot. When persist is set the record is
// synced and written first. Registered owners stay registered.
func (c *Coordinator) ClearSlot(persist bool) error {
	var err error
	if persist && c.rec != nil {
		err = c.WriteToDisk(true)
	}
	c.slot = NoSlot
	if c.rec != nil {
		c.rec.Dispose()
		c.rec = nil
	}
	return err
}

// ReloadActiveSaveFromDisk drops in-memory changes and loads the active slot
// again.
func (c *Coordinator) ReloadActiveSaveFromDisk() error {
	slot := c.slot
	if slot == NoSlot {
		return ErrNoActiveSlot
	}
	_ = c.ClearSlot(false)
	return c.SetSlot(slot, WithReload(true))
}

// TrySetSlotToNew activates the lowest unused slot.
func (c *Coordinator) TrySetSlotToNew(reload bool) (int, bool) {
	slot := c.store.AvailableSlot(c.settings.MaxSlotCount)
	if slot < 0 {
		return NoSlot, false
	}
	if err := c.SetSlot(slot, WithReload(reload)); err != nil {
		return NoSlot, false
	}
	return slot, true
}

// LastUsedSlot returns the last activated slot that still has a save, or
// NoSlot.
func (c *Coordinator) LastUsedSlot() int {
	prefs, err := c.store.LoadPreferences()
	if err != nil {
		logs.Warnf("%v", err)
		return NoSlot
	}
	if prefs.LastUsedSlot < 0 || !c.store.IsSlotUsed(prefs.LastUsedSlot) {
		return NoSlot
	}
	return prefs.LastUsedSlot
}

func (c *Coordinator) TrySetSlotToLastUsed(reload bool) bool {
	slot := c.LastUsedSlot()
	if slot == NoSlot {
		return false
	}
	return c.SetSlot(slot, WithReload(reload)) == nil
}

// LoadFromOtherSlot replaces the active record with the one stored in
// other, keeping the active slot number, then reloads every owner.
func (c *Coordinator) LoadFromOtherSlot(other int, reload bool) error {
	if c.rec == nil {
		logs.Warnf("load from slot %d skipped: %v", other, ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	rec, err := c.store.Load(other)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = c.store.NewRecord(other)
	case err != nil:
		return err
	}
	if err := c.SetSlot(c.slot, WithRecord(rec), WithReload(reload)); err != nil {
		return err
	}
	rec.SetName(c.store.Layout().SlotName(c.slot))
	_ = c.SyncReset()
	return c.SyncLoad()
}

// DeleteSave removes the files of slot. Deleting the active slot deactivates
// it, falling back to the temporary slot under the load-temporary
// behaviour.
func (c *Coordinator) DeleteSave(slot int) error {
	if slot == c.slot && slot != NoSlot {
		c.slot = NoSlot
		if c.rec != nil {
			c.rec.Dispose()
			c.rec = nil
		}
		if c.settings.SlotLoadBehaviour == settings.LoadTemporarySlot {
			if err := c.SetSlotToTemporary(true, false); err != nil {
				logs.Warnf("failed to fall back to the temporary slot: %v", err)
			}
		}
	}
	if slot < 0 {
		return nil
	}
	if err := c.store.Delete(slot); err != nil {
		return err
	}
	c.Publish(Event{Kind: DeletedSave, Slot: slot})
	return nil
}

// DeleteAllSaves removes every slot and the last used slot preference.
func (c *Coordinator) DeleteAllSaves() error {
	c.slot = NoSlot
	if c.rec != nil {
		c.rec.Dispose()
		c.rec = nil
	}
	if c.settings.SlotLoadBehaviour == settings.LoadTemporarySlot {
		if err := c.SetSlotToTemporary(true, false); err != nil {
			logs.Warnf("failed to fall back to the temporary slot: %v", err)
		}
	}
	if err := c.store.DeleteAll(); err != nil {
		return err
	}
	if err := c.store.ClearPreferences(); err != nil {
		return err
	}
	c.Publish(Event{Kind: DeletedAllSaves, Slot: NoSlot})
	return nil
}

// ClearActiveSave deletes the active slot's files and activates it again
// with an empty record.
func (c *Coordinator) ClearActiveSave(removeListeners bool) error {
	slot := c.slot
	if slot == NoSlot {
		return ErrNoActiveSlot
	}
	if err := c.DeleteSave(slot); err != nil {
		return err
	}
	if removeListeners {
		c.RemoveAllListeners(false)
	}
	_ = c.ClearSlot(false)
	return c.SetSlot(slot, WithReload(false))
}

func (c *Coordinator) UsedSlots() ([]int, error) { return c.store.UsedSlots() }

func (c *Coordinator) IsSlotUsed(slot int) bool { return c.store.IsSlotUsed(slot) }

func (c *Coordinator) HasUnusedSlots() bool {
	return c.store.AvailableSlot(c.settings.MaxSlotCount) >= 0
}
