package coordinator

import (
	"context"
	"fmt"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/record"
	"github.com/danmuck/dps_saves/src/settings"
	"github.com/danmuck/dps_saves/src/storage"
)

const (
	// NoSlot means no slot is active.
	NoSlot = -1
	// TemporarySlot holds a record that is never written to disk.
	TemporarySlot = storage.TemporarySlot
)

// Participant takes part in every sync pass after the registered savers.
// Spawn registries implement it.
type Participant interface {
	Group() string
	OnSave(rec *record.Record)
	OnLoad(rec *record.Record)
	// RemoveAndWipeAll destroys every live instance the participant owns.
	RemoveAndWipeAll()
	// ClearData forgets tracked instances without touching them.
	ClearData()
}

// Coordinator owns the active slot and its record and keeps registered
// components in sync with it. It is not safe for concurrent use; every call
// is expected on the host's main loop.
type Coordinator struct {
	store    *storage.DualFileStore
	settings settings.Settings
	now      func() time.Time

	slot int
	rec  *record.Record

	savers       []*Saver
	keys         map[string]*Saver
	participants []Participant

	observers []subscription
	nextSub   int

	writing   bool // WritingToDiskBegin raised, Done pending
	throttles int  // throttled spawns in flight

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	paused bool

	sinceAutoSave time.Duration
}

// New returns an inactive coordinator over store. Call Start to apply the
// configured slot load behaviour.
func New(store *storage.DualFileStore, cfg settings.Settings) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:    store,
		settings: cfg,
		now:      time.Now,
		slot:     NoSlot,
		keys:     make(map[string]*Saver),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetClock replaces the clock used for save timestamps.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
	c.store.SetClock(now)
}

func (c *Coordinator) Store() *storage.DualFileStore { return c.store }
func (c *Coordinator) Settings() settings.Settings    { return c.settings }

// Context is cancelled when the coordinator closes. Long running loops such
// as throttled spawning stop at their next yield once it is done.
func (c *Coordinator) Context() context.Context { return c.ctx }

// ActiveSlot returns the active slot or NoSlot.
func (c *Coordinator) ActiveSlot() int { return c.slot }

// Record returns the active record, nil when no slot is active.
func (c *Coordinator) Record() *record.Record { return c.rec }

func (c *Coordinator) IsSlotLoaded() bool {
	return c.slot != NoSlot && c.rec != nil
}

// Savers returns the registered owners in registration order.
func (c *Coordinator) Savers() []*Saver {
	return append([]*Saver(nil), c.savers...)
}

// SyncSave pushes every registered component into the active record, then
// lets participants save. Destroyed components are pruned along the way.
func (c *Coordinator) SyncSave() error {
	if c.rec == nil {
		logs.Warnf("sync save skipped: %v", ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	c.Publish(Event{Kind: SyncSaveBegin, Slot: c.slot})
	for _, s := range c.Savers() {
		s.save(c.rec)
	}
	for _, p := range c.Participants() {
		p.OnSave(c.rec)
	}
	c.Publish(Event{Kind: SyncSaveDone, Slot: c.slot})
	return nil
}

// SyncLoad pulls the active record into every registered component. A
// component without stored data keeps its current state.
func (c *Coordinator) SyncLoad() error {
	if c.rec == nil {
		logs.Warnf("sync load skipped: %v", ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	c.Publish(Event{Kind: SyncLoadBegin, Slot: c.slot})
	for _, s := range c.Savers() {
		s.load(c.rec)
	}
	for _, p := range c.Participants() {
		p.OnLoad(c.rec)
	}
	c.Publish(Event{Kind: SyncLoadDone, Slot: c.slot})
	return nil
}

// SyncReset clears every owner's load and save bookkeeping without touching
// the record. Call it before SyncLoad whenever the record was swapped.
func (c *Coordinator) SyncReset() error {
	if c.rec == nil {
		logs.Warnf("sync reset skipped: %v", ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	for _, s := range c.savers {
		s.ResetState()
	}
	return nil
}

// AddParticipant includes p in every following sync pass.
func (c *Coordinator) AddParticipant(p Participant) error {
	for _, existing := range c.participants {
		if existing == p {
			return fmt.Errorf("%w: participant for group %q", ErrDuplicateRegistration, p.Group())
		}
	}
	c.participants = append(c.participants, p)
	return nil
}

func (c *Coordinator) RemoveParticipant(p Participant) {
	for i, existing := range c.participants {
		if existing == p {
			c.participants = append(c.participants[:i:i], c.participants[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) Participants() []Participant {
	return append([]Participant(nil), c.participants...)
}

func (c *Coordinator) debugf(format string, args ...any) {
	if c.settings.EnableLogging {
		logs.Debugf(format, args...)
	}
}

func (c *Coordinator) infof(format string, args ...any) {
	if c.settings.EnableLogging {
		logs.Infof(format, args...)
	}
}
