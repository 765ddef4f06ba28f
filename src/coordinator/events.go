package coordinator

import "fmt"

type EventKind int

const (
	SlotChangeBegin EventKind = iota
	SlotChangeDone
	SyncSaveBegin
	SyncSaveDone
	SyncLoadBegin
	SyncLoadDone
	LoadingFromDiskBegin
	LoadingFromDiskDone
	LoadingFromDiskCorrupt
	WritingToDiskBegin
	WritingToDiskDone
	DeletedSave
	DeletedAllSaves
	Spawned
	ThrottleStarted
	ThrottleSpawned
	ThrottleFinished
)

var eventNames = [...]string{
	SlotChangeBegin:        "slot-change-begin",
	SlotChangeDone:         "slot-change-done",
	SyncSaveBegin:          "sync-save-begin",
	SyncSaveDone:           "sync-save-done",
	SyncLoadBegin:          "sync-load-begin",
	SyncLoadDone:           "sync-load-done",
	LoadingFromDiskBegin:   "loading-from-disk-begin",
	LoadingFromDiskDone:    "loading-from-disk-done",
	LoadingFromDiskCorrupt: "loading-from-disk-corrupt",
	WritingToDiskBegin:     "writing-to-disk-begin",
	WritingToDiskDone:      "writing-to-disk-done",
	DeletedSave:            "deleted-save",
	DeletedAllSaves:        "deleted-all-saves",
	Spawned:                "spawned",
	ThrottleStarted:        "throttle-started",
	ThrottleSpawned:        "throttle-spawned",
	ThrottleFinished:       "throttle-finished",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is delivered to every observer in subscription order. Fields that do
// not apply to a kind are left zero.
type Event struct {
	Kind     EventKind
	Slot     int
	PrevSlot int // slot changes only

	// spawn events
	Stage     string
	Template  string
	OwnerID   string
	Count     int
	Total     int
	Progress  float64
	Cancelled bool
}

type Observer func(Event)

type subscription struct {
	id int
	fn Observer
}

// Subscribe adds o to the observer list and returns a func that removes it.
func (c *Coordinator) Subscribe(o Observer) func() {
	c.nextSub++
	id := c.nextSub
	c.observers = append(c.observers, subscription{id: id, fn: o})
	return func() {
		for i, sub := range c.observers {
			if sub.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every observer. Spawn registries publish through the
// coordinator so that throttle events can suspend autosaving.
func (c *Coordinator) Publish(e Event) {
	if c.settings.DisableAutoSaveDuringThrottle {
		switch e.Kind {
		case ThrottleStarted:
			c.throttles++
		case ThrottleFinished:
			if c.throttles > 0 {
				c.throttles--
			}
		}
	}
	c.debugf("event %s slot=%d", e.Kind, e.Slot)

	observers := append([]subscription(nil), c.observers...)
	for _, sub := range observers {
		sub.fn(e)
	}
}
