package coordinator

import (
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/settings"
)

// Start applies the configured slot load behaviour. Call it once the host
// has registered its first owners.
func (c *Coordinator) Start() error {
	if c.closed {
		return ErrClosed
	}
	switch c.settings.SlotLoadBehaviour {
	case settings.LoadDefaultSlot:
		return c.SetSlot(c.settings.DefaultSlot, WithReload(true))
	case settings.LoadTemporarySlot:
		return c.SetSlot(TemporarySlot, WithReload(true))
	default:
		return nil
	}
}

// Advance moves the coordinator's timers by dt. The host calls it once per
// tick. It accrues play time on the active record and writes the record when
// the autosave interval elapses, unless a throttled spawn suspended
// autosaving.
func (c *Coordinator) Advance(dt time.Duration) {
	if c.closed || c.paused || dt <= 0 || c.ctx.Err() != nil {
		return
	}
	if c.settings.TrackTimePlayed && c.IsSlotLoaded() {
		c.rec.AddPlayTime(dt)
	}
	if !c.settings.SaveOnInterval {
		return
	}
	interval := c.settings.SaveInterval()
	if interval <= 0 {
		return
	}
	c.sinceAutoSave += dt
	if c.sinceAutoSave < interval {
		return
	}
	c.sinceAutoSave %= interval
	if c.autoSaveSuspended() || !c.IsSlotLoaded() {
		return
	}
	if err := c.WriteToDisk(true); err != nil && err != ErrNoActiveSlot {
		logs.Warnf("interval autosave failed: %v", err)
	}
}

// Pause tells the coordinator the host was suspended or resumed. Suspending
// writes the active record when autosave on exit is enabled.
func (c *Coordinator) Pause(paused bool) error {
	c.paused = paused
	if paused && c.autoSaveOnExit() && c.IsSlotLoaded() {
		return c.WriteToDisk(true)
	}
	return nil
}

// Close cancels the shared context, writes the active record when autosave
// on exit is enabled and deactivates the slot. Registered owners are
// dropped without saving. Closing twice is a no-op.
func (c *Coordinator) Close() error {
	if c.closed {
		return nil
	}
	c.cancel()

	var err error
	if c.autoSaveOnExit() && c.IsSlotLoaded() {
		err = c.WriteToDisk(true)
	}
	c.RemoveAllListeners(false)
	c.participants = nil
	_ = c.ClearSlot(false)
	c.closed = true
	return err
}
