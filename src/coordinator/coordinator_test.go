package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danmuck/dps_saves/src/record"
	"github.com/danmuck/dps_saves/src/settings"
	"github.com/danmuck/dps_saves/src/storage"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

// value is a Saveable holding a single string.
type value struct {
	id         string
	v          string
	loads      []string
	skipSave   bool
	destroyed  bool
	saveCalled int
}

func (c *value) SaveableID() string { return c.id }
func (c *value) Save() string       { c.saveCalled++; return c.v }
func (c *value) Load(p string)      { c.v = p; c.loads = append(c.loads, p) }
func (c *value) ShouldSave() bool   { return !c.skipSave }
func (c *value) Destroyed() bool    { return c.destroyed }

func newTestCoordinator(t *testing.T, mutate func(*settings.Settings)) *Coordinator {
	t.Helper()
	cfg := settings.Default()
	cfg.Directory = t.TempDir()
	cfg.MaxSlotCount = 10
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	c := New(store, cfg)
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.SetClock(clock.Now)
	return c
}

func newOwner(t *testing.T, id, group string, comps ...Saveable) *Saver {
	t.Helper()
	s := NewSaver(id, group, SaverOptions{})
	for _, comp := range comps {
		if err := s.AddComponent(comp); err != nil {
			t.Fatalf("AddComponent: %v", err)
		}
	}
	return s
}

func seedSlot(t *testing.T, c *Coordinator, slot int, entries map[string]string) {
	t.Helper()
	rec := record.New(1)
	for id, payload := range entries {
		rec.Set(id, payload, "level1")
	}
	if _, err := c.Store().Save(slot, rec); err != nil {
		t.Fatalf("Save(%d): %v", slot, err)
	}
}

func recordEvents(c *Coordinator) *[]EventKind {
	var kinds []EventKind
	c.Subscribe(func(e Event) { kinds = append(kinds, e.Kind) })
	return &kinds
}

func TestRegisterLoadsFromActiveSlot(t *testing.T) {
	c := newTestCoordinator(t, nil)
	seedSlot(t, c, 3, map[string]string{"Owner1-Health": "75"})
	if err := c.SetSlot(3); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}

	health := &value{id: "Health", v: "100"}
	if err := c.Register(newOwner(t, "Owner1", "level1", health)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if diff := cmp.Diff([]string{"75"}, health.loads); diff != "" {
		t.Errorf("loads mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterWithoutSlotKeepsDefaults(t *testing.T) {
	c := newTestCoordinator(t, nil)
	health := &value{id: "Health", v: "100"}
	if err := c.Register(newOwner(t, "Owner1", "level1", health)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(health.loads) != 0 || health.v != "100" {
		t.Errorf("component changed without an active slot: %+v", health)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	c := newTestCoordinator(t, nil)
	first := newOwner(t, "Owner1", "level1", &value{id: "Health"})
	if err := c.Register(first); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := c.Register(first); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("re-registering the same owner: %v", err)
	}
	clash := newOwner(t, "Owner1", "level2", &value{id: "Health"})
	if err := c.Register(clash); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("registering a colliding identifier: %v", err)
	}
	if len(c.Savers()) != 1 {
		t.Errorf("registered %d owners, want 1", len(c.Savers()))
	}

	other := newOwner(t, "Owner2", "level1", &value{id: "Health"})
	if err := c.Register(other); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := other.SetID("Owner1"); err == nil {
		t.Errorf("renaming onto a registered identifier succeeded")
	}
	if other.ID() != "Owner2" || !c.IsRegistered("Owner2-Health") {
		t.Errorf("failed rename left owner as %q", other.ID())
	}
	if err := first.AddComponent(&value{id: "Health"}); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("adding a duplicate component: %v", err)
	}
}

func TestNoActiveSlotIsReported(t *testing.T) {
	c := newTestCoordinator(t, nil)
	checks := map[string]func() error{
		"SyncSave":      c.SyncSave,
		"SyncLoad":      c.SyncLoad,
		"SyncReset":     c.SyncReset,
		"WriteToDisk":   func() error { return c.WriteToDisk(true) },
		"WriteToOther":  func() error { return c.WriteToOtherSlot(1, true) },
		"LoadFromOther": func() error { return c.LoadFromOtherSlot(1, true) },
		"SetInt":        func() error { return c.SetInt("coins", 1) },
		"WipeStage":     func() error { return c.WipeStageData("level1", true) },
		"KeepActive":    func() error { return c.SetSlot(1, KeepActiveData()) },
	}
	for name, fn := range checks {
		if err := fn(); !errors.Is(err, ErrNoActiveSlot) {
			t.Errorf("%s: err = %v, want ErrNoActiveSlot", name, err)
		}
	}
	if got := c.GetInt("coins", 7); got != 7 {
		t.Errorf("GetInt = %d, want default", got)
	}
}

func TestSetSlotEventOrder(t *testing.T) {
	c := newTestCoordinator(t, nil)
	kinds := recordEvents(c)
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	want := []EventKind{
		SlotChangeBegin,
		LoadingFromDiskBegin, LoadingFromDiskDone,
		SyncLoadBegin, SyncLoadDone,
		SyncSaveBegin, SyncSaveDone,
		SlotChangeDone,
	}
	if diff := cmp.Diff(want, *kinds); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestObserversRunInSubscriptionOrder(t *testing.T) {
	c := newTestCoordinator(t, nil)
	var got []string
	c.Subscribe(func(e Event) { got = append(got, "a:"+e.Kind.String()) })
	unsubscribe := c.Subscribe(func(e Event) { got = append(got, "b:"+e.Kind.String()) })

	c.Publish(Event{Kind: DeletedAllSaves})
	unsubscribe()
	c.Publish(Event{Kind: DeletedSave})

	want := []string{"a:deleted-all-saves", "b:deleted-all-saves", "a:deleted-save"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
}

func TestSetSlotPushesDefaultsAndAutosavesOutgoing(t *testing.T) {
	c := newTestCoordinator(t, nil)
	health := &value{id: "Health", v: "100"}
	if err := c.Register(newOwner(t, "Owner1", "level1", health)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	if got, _ := c.Record().Get("Owner1-Health"); got != "100" {
		t.Errorf("default not pushed into the new record, got %q", got)
	}

	health.v = "50"
	if err := c.SetSlot(1); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	rec, err := c.Store().Load(0)
	if err != nil {
		t.Fatalf("outgoing slot was not written: %v", err)
	}
	if got, _ := rec.Get("Owner1-Health"); got != "50" {
		t.Errorf("outgoing slot holds %q, want 50", got)
	}
	// slot 1 is remembered but has not been written yet
	if got := c.LastUsedSlot(); got != NoSlot {
		t.Errorf("LastUsedSlot = %d, want NoSlot", got)
	}
}

func TestSyncSaveHonoursShouldSaveAndPrunesDestroyed(t *testing.T) {
	c := newTestCoordinator(t, nil)
	health := &value{id: "Health", v: "100"}
	mana := &value{id: "Mana", v: "10"}
	owner := newOwner(t, "Owner1", "level1", health, mana)
	if err := c.Register(owner); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}

	health.v = "90"
	health.skipSave = true
	mana.destroyed = true
	if err := c.SyncSave(); err != nil {
		t.Fatalf("SyncSave: %v", err)
	}

	if got, _ := c.Record().Get("Owner1-Health"); got != "100" {
		t.Errorf("unchanged component was written: %q", got)
	}
	if c.IsRegistered("Owner1-Mana") {
		t.Errorf("destroyed component still registered")
	}
	if diff := cmp.Diff([]string{"Owner1-Health"}, owner.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	// a reset forces the next save to push everything
	_ = c.SyncReset()
	_ = c.SyncSave()
	if got, _ := c.Record().Get("Owner1-Health"); got != "90" {
		t.Errorf("reset did not force a save, got %q", got)
	}
}

func TestLoadOnceOwner(t *testing.T) {
	c := newTestCoordinator(t, nil)
	seedSlot(t, c, 0, map[string]string{"Owner1-Health": "75"})
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	health := &value{id: "Health"}
	owner := NewSaver("Owner1", "level1", SaverOptions{LoadOnce: true})
	_ = owner.AddComponent(health)
	_ = c.Register(owner)
	_ = c.SyncLoad()
	if len(health.loads) != 1 {
		t.Errorf("load once owner loaded %d times", len(health.loads))
	}
	if !owner.HasLoadedAnyComponents() || !owner.IsComponentLoaded("Health") {
		t.Errorf("owner does not report its load")
	}
}

type reentrantParticipant struct {
	c       *Coordinator
	group   string
	saves   int
	nested  error
	entered bool
}

func (p *reentrantParticipant) Group() string             { return p.group }
func (p *reentrantParticipant) OnLoad(rec *record.Record) {}
func (p *reentrantParticipant) RemoveAndWipeAll()         {}
func (p *reentrantParticipant) ClearData()                {}
func (p *reentrantParticipant) OnSave(rec *record.Record) {
	p.saves++
	if !p.entered {
		p.entered = true
		p.nested = p.c.WriteToDisk(false)
	}
}

func TestWriteToDiskRaisesBeginOnce(t *testing.T) {
	c := newTestCoordinator(t, nil)
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	p := &reentrantParticipant{c: c, group: "level1"}
	if err := c.AddParticipant(p); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	kinds := recordEvents(c)

	if err := c.WriteToDisk(true); err != nil {
		t.Fatalf("WriteToDisk: %v", err)
	}
	if p.nested != nil {
		t.Fatalf("nested write: %v", p.nested)
	}

	var begins, dones int
	for _, k := range *kinds {
		switch k {
		case WritingToDiskBegin:
			begins++
		case WritingToDiskDone:
			dones++
		}
	}
	if begins != 1 || dones != 1 {
		t.Errorf("begin/done = %d/%d, want 1/1: %v", begins, dones, *kinds)
	}
	if (*kinds)[len(*kinds)-1] != WritingToDiskDone {
		t.Errorf("last event %s, want %s", (*kinds)[len(*kinds)-1], WritingToDiskDone)
	}

	meta, err := c.Store().ReadMetadata(0)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	for _, key := range []string{
		storage.MetaTimePlayed,
		storage.MetaGameVersion,
		storage.MetaCreationDate,
		storage.MetaLastSavedTime,
		storage.MetaStorageConfig,
	} {
		if _, ok := meta[key]; !ok {
			t.Errorf("metadata key %q missing", key)
		}
	}
}

func TestGlobals(t *testing.T) {
	c := newTestCoordinator(t, nil)
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	_ = c.SetInt("coins", 12)
	_ = c.SetFloat("speed", 1.25)
	_ = c.SetBool("door", true)
	_ = c.SetString("name", "ada")

	if got := c.GetInt("coins", -1); got != 12 {
		t.Errorf("GetInt = %d", got)
	}
	if got := c.GetFloat("speed", -1); got != 1.25 {
		t.Errorf("GetFloat = %g", got)
	}
	if got := c.GetBool("door", false); !got {
		t.Errorf("GetBool = %v", got)
	}
	if got := c.GetString("name", ""); got != "ada" {
		t.Errorf("GetString = %q", got)
	}
	if got := c.GetInt("missing", -1); got != -1 {
		t.Errorf("GetInt(missing) = %d", got)
	}
	if diff := cmp.Diff([]string{"BVar-door", "FVar-speed", "IVar-coins", "SVar-name"}, c.Record().Group(GlobalGroup)); diff != "" {
		t.Errorf("global group mismatch (-want +got):\n%s", diff)
	}

	c.Record().Set("IVar-broken", "twelve", GlobalGroup)
	if got := c.GetInt("broken", 3); got != 3 {
		t.Errorf("GetInt(broken) = %d, want default", got)
	}
}

func TestWipeStageData(t *testing.T) {
	c := newTestCoordinator(t, nil)
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	a := newOwner(t, "A", "level1", &value{id: "v", v: "1"})
	b := newOwner(t, "B", "level2", &value{id: "v", v: "2"})
	_ = c.Register(a)
	_ = c.Register(b)
	_ = c.SyncReset()
	_ = c.SyncSave()

	if err := c.WipeStageData("level1", true); err != nil {
		t.Fatalf("WipeStageData: %v", err)
	}
	_ = c.SyncReset()
	_ = c.SyncSave()

	if _, ok := c.Record().Get("A-v"); ok {
		t.Errorf("wiped owner saved again")
	}
	if got, _ := c.Record().Get("B-v"); got != "2" {
		t.Errorf("other group lost its data: %q", got)
	}
	if diff := cmp.Diff([]*Saver{b}, c.Savers(), cmp.Comparer(func(x, y *Saver) bool { return x == y })); diff != "" {
		t.Errorf("savers mismatch (-want +got):\n%s", diff)
	}
	if !a.Options().Manual {
		t.Errorf("wiped owner was not turned manual")
	}
}

func TestDetachSavesOnceThenStops(t *testing.T) {
	c := newTestCoordinator(t, nil)
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	health := &value{id: "Health", v: "100"}
	owner := newOwner(t, "Owner1", "level1", health)
	_ = c.Register(owner)

	health.v = "40"
	owner.Detach()
	if got, _ := c.Record().Get("Owner1-Health"); got != "40" {
		t.Errorf("detach did not save, got %q", got)
	}
	if len(c.Savers()) != 0 || !owner.Detached() {
		t.Fatalf("owner still registered after Detach")
	}

	health.v = "10"
	c.SaveListener(owner)
	if got, _ := c.Record().Get("Owner1-Health"); got != "40" {
		t.Errorf("detached owner saved again: %q", got)
	}
}

func TestSetIDReloadsOwner(t *testing.T) {
	c := newTestCoordinator(t, nil)
	seedSlot(t, c, 0, map[string]string{"Owner1-Health": "75"})
	if err := c.SetSlot(0); err != nil {
		t.Fatalf("SetSlot: %v", err)
	}
	health := &value{id: "Health", v: "100"}
	owner := newOwner(t, "", "level1", health)
	if err := c.Register(owner); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(health.loads) != 0 {
		t.Fatalf("owner without id loaded")
	}
	if err := owner.SetID("Owner1"); err != nil {
		t.Fatalf("SetID: %v", err)
	}
	if health.v != "75" {
		t.Errorf("SetID did not reload, value %q", health.v)
	}
}

func TestNewIDIsScopedToGroup(t *testing.T) {
	a, b := NewID("level1"), NewID("level1")
	if a == b {
		t.Errorf("NewID repeated %q", a)
	}
	if len(a) != len("level1-")+SaverIDLength {
		t.Errorf("NewID = %q", a)
	}
}
