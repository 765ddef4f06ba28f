package coordinator

import (
	"fmt"
	"strconv"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/storage"
)

// WriteToDisk syncs the active record (when sync is set) and writes it to
// the active slot. The temporary slot is never written.
func (c *Coordinator) WriteToDisk(sync bool) error {
	if c.rec == nil || c.slot == NoSlot {
		logs.Warnf("write skipped: %v", ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	if c.slot == TemporarySlot {
		return nil
	}
	return c.write(c.slot, sync)
}

// WriteToOtherSlot writes the active record to slot without changing the
// active slot.
func (c *Coordinator) WriteToOtherSlot(slot int, sync bool) error {
	if c.rec == nil {
		logs.Warnf("write to slot %d skipped: %v", slot, ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	if slot < 0 || !c.IsSlotValid(slot) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	layout := c.store.Layout()
	c.rec.SetName(layout.SlotName(slot))
	defer func() {
		if c.slot >= 0 {
			c.rec.SetName(layout.SlotName(c.slot))
		}
	}()
	return c.write(slot, sync)
}

// write raises WritingToDiskBegin once per logical write. A nested write
// started from inside a sync pass reuses the outer begin and leaves Done to
// the outer call.
func (c *Coordinator) write(slot int, sync bool) error {
	outer := !c.writing
	if outer {
		c.writing = true
		c.Publish(Event{Kind: WritingToDiskBegin, Slot: slot})
		defer func() {
			c.writing = false
			c.Publish(Event{Kind: WritingToDiskDone, Slot: slot})
		}()
	}

	if sync {
		_ = c.SyncSave()
	}
	start := time.Now()
	p, err := c.store.SaveWithMetadata(slot, c.rec, c.stampMetadata)
	if err != nil {
		logs.Errorf(err, "failed to write slot %d", slot)
		return err
	}
	c.infof("wrote slot %d to %s in %s", slot, p, time.Since(start))
	return nil
}

func (c *Coordinator) stampMetadata(m *storage.Metadata) {
	meta := c.rec.Meta
	m.SetString(storage.MetaTimePlayed, meta.PlayTime.String())
	m.SetString(storage.MetaGameVersion, strconv.FormatFloat(float64(meta.Version), 'g', -1, 32))
	if !meta.Created.IsZero() {
		m.SetString(storage.MetaCreationDate, meta.Created.Format(time.RFC3339))
	}
	m.SetString(storage.MetaLastSavedTime, c.now().Format(time.RFC3339))
}

func (c *Coordinator) autoSaveSuspended() bool {
	return c.throttles > 0
}

func (c *Coordinator) autoSaveOnExit() bool {
	return c.settings.AutoSaveOnExit && !c.autoSaveSuspended()
}
