package spawn

import (
	"encoding/json"
	"fmt"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/coordinator"
	"github.com/danmuck/dps_saves/src/record"
	"github.com/danmuck/dps_saves/src/settings"
)

// Options configure a registry.
type Options struct {
	// CustomID distinguishes several registries attached to the same stage.
	CustomID string
	// Throttled queues restored spawns for Pump instead of spawning them
	// during the load pass.
	Throttled bool
	// FrameBudget is how long one Pump call may keep spawning.
	FrameBudget time.Duration
	// IgnoreDataless skips descriptors whose components never stored data.
	IgnoreDataless bool
	// Now measures the frame budget. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions derives the options of stage from cfg.
func DefaultOptions(cfg settings.Settings, stage string) Options {
	return Options{
		Throttled:      cfg.IsThrottled(stage),
		FrameBudget:    cfg.FrameBudget(),
		IgnoreDataless: cfg.IgnoreDatalessSpawns,
	}
}

// Registry tracks entities spawned at runtime in one stage and stores their
// descriptors in the active record so they are spawned again on load.
type Registry struct {
	id       string
	stage    string
	coord    *coordinator.Coordinator
	resolver Resolver
	opts     Options

	templates map[string]Template // successful resolutions only
	instances []*Instance
	loaded    map[string]struct{} // owner ids of live instances
	spawned   int
	dirty     bool

	queue      []Descriptor
	throttling bool
	total      int
	count      int
}

// RegistryID returns the record id a registry for stage stores under.
func RegistryID(stage, customID string) string {
	if customID == "" {
		return fmt.Sprintf("SaveMaster-%s-SSM", stage)
	}
	return fmt.Sprintf("SaveMaster-%s-%s-SSM", stage, customID)
}

// Attach creates the registry of stage and adds it to the sync passes of
// coord. When a slot is active the stored descriptors are loaded at once.
func Attach(coord *coordinator.Coordinator, stage string, resolver Resolver, opts Options) (*Registry, error) {
	if stage == "" {
		return nil, fmt.Errorf("spawn registry needs a stage id")
	}
	if resolver == nil {
		return nil, fmt.Errorf("spawn registry for %q needs a resolver", stage)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		id:        RegistryID(stage, opts.CustomID),
		stage:     stage,
		coord:     coord,
		resolver:  resolver,
		opts:      opts,
		templates: make(map[string]Template),
		loaded:    make(map[string]struct{}),
	}
	if err := coord.AddParticipant(r); err != nil {
		return nil, fmt.Errorf("failed to attach spawn registry %s: %w", r.id, err)
	}
	if rec := coord.Record(); rec != nil {
		r.OnLoad(rec)
	}
	return r, nil
}

func (r *Registry) ID() string    { return r.id }
func (r *Registry) Stage() string { return r.stage }

// Group is the record group the registry and its instances write under.
func (r *Registry) Group() string { return r.stage }

// Dirty reports whether the stored descriptor list is out of date.
func (r *Registry) Dirty() bool { return r.dirty }

// SpawnedCount is the number of entities ever spawned in the stage. It only
// grows, so default owner ids are never reused.
func (r *Registry) SpawnedCount() int { return r.spawned }

// Instances returns the live instances in spawn order.
func (r *Registry) Instances() []*Instance {
	return append([]*Instance(nil), r.instances...)
}

// template resolves uid through the cache.
func (r *Registry) template(uid string) (Template, error) {
	if t, ok := r.templates[uid]; ok {
		return t, nil
	}
	if uid == "" {
		return nil, fmt.Errorf("%w: empty template uid", ErrInvalidDescriptor)
	}
	t, err := r.resolver.Resolve(uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: template %q resolved to nothing", ErrInvalidDescriptor, uid)
	}
	r.templates[uid] = t
	return t, nil
}

// Spawn instantiates template uid and registers its components. An empty
// ownerID gets a default of <stage>-<template name>-<count>. A template that
// does not resolve leaves the registry untouched.
func (r *Registry) Spawn(uid, tag string, source Source, ownerID string) (*Instance, error) {
	tpl, err := r.template(uid)
	if err != nil {
		logs.Warnf("spawn in %s failed: %v", r.stage, err)
		return nil, err
	}
	comps, err := tpl.Instantiate()
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %q: %w", uid, err)
	}
	if ownerID == "" {
		ownerID = fmt.Sprintf("%s-%s-%d", r.stage, tpl.Name(), r.spawned)
	}

	saver := coordinator.NewSaver(ownerID, r.stage, saverOptions(tpl))
	for _, c := range comps {
		if err := saver.AddComponent(c); err != nil {
			return nil, fmt.Errorf("template %q: %w", uid, err)
		}
	}
	if err := r.coord.Register(saver); err != nil {
		return nil, err
	}

	inst := &Instance{
		reg:        r,
		saver:      saver,
		template:   tpl,
		components: comps,
		desc: Descriptor{
			TemplateUID: tpl.UID(),
			OwnerID:     ownerID,
			Tag:         tag,
			Source:      source,
		},
	}
	r.instances = append(r.instances, inst)
	r.loaded[ownerID] = struct{}{}
	r.spawned++
	r.dirty = true

	r.debugf("spawned %s from %q (%s)", ownerID, uid, source)
	r.coord.Publish(coordinator.Event{
		Kind:     coordinator.Spawned,
		Slot:     r.coord.ActiveSlot(),
		Stage:    r.stage,
		Template: tpl.UID(),
		OwnerID:  ownerID,
	})
	return inst, nil
}

// OnSave stores the descriptors of every instance worth restoring. Nothing
// happens unless something changed since the last save. An empty set
// removes the stored entry instead of writing an empty list.
func (r *Registry) OnSave(rec *record.Record) {
	if !r.dirty {
		return
	}
	r.dirty = false

	data := saveData{
		InfoCollection:    make([]Descriptor, 0, len(r.instances)),
		SpawnedSceneCount: r.spawned,
	}
	kept := r.instances[:0]
	for _, inst := range r.instances {
		if inst.detached && !inst.saver.SaveWhenRemoved() {
			inst.saver.WipeData(rec)
			delete(r.loaded, inst.desc.OwnerID)
			continue
		}
		kept = append(kept, inst)
		if r.opts.IgnoreDataless && !r.carriesData(rec, inst) {
			continue
		}
		data.InfoCollection = append(data.InfoCollection, inst.desc)
	}
	clear(r.instances[len(kept):])
	r.instances = kept

	if len(data.InfoCollection) == 0 {
		rec.Remove(r.id)
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		logs.Errorf(err, "failed to encode spawn descriptors of %s", r.id)
		r.dirty = true
		return
	}
	rec.Set(r.id, string(b), r.stage)
	r.debugf("stored %d spawn descriptors for %s", len(data.InfoCollection), r.stage)
}

// OnLoad spawns every stored descriptor that is valid and not already live.
// Throttled registries queue them for Pump instead.
func (r *Registry) OnLoad(rec *record.Record) {
	raw, ok := rec.Get(r.id)
	if !ok {
		return
	}
	var data saveData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		logs.Warnf("dropping unreadable spawn descriptors of %s: %v", r.id, err)
		r.dirty = true
		return
	}
	r.spawned = max(r.spawned, data.SpawnedSceneCount)

	queued := 0
	for _, d := range data.InfoCollection {
		d.Source = FromPersistence
		if !d.Valid() {
			r.dirty = true
			continue
		}
		if _, live := r.loaded[d.OwnerID]; live || r.isQueued(d.OwnerID) {
			continue
		}
		tpl, err := r.template(d.TemplateUID)
		if err != nil {
			logs.Warnf("dropping spawn descriptor %s: %v", d.OwnerID, err)
			r.dirty = true
			continue
		}
		if r.opts.IgnoreDataless && !hasStoredData(rec, d.OwnerID, tpl) {
			r.dirty = true
			continue
		}
		if r.opts.Throttled {
			r.queue = append(r.queue, d)
			queued++
			continue
		}
		if _, err := r.Spawn(d.TemplateUID, d.Tag, FromPersistence, d.OwnerID); err != nil {
			logs.Warnf("failed to restore %s: %v", d.OwnerID, err)
			r.dirty = true
		}
	}
	if queued > 0 {
		r.startThrottle(queued)
	}
}

// RemoveAndWipeAll destroys every live instance and forgets the stage's
// spawn history. Queued spawns are dropped.
func (r *Registry) RemoveAndWipeAll() {
	r.Cancel()
	rec := r.coord.Record()
	for _, inst := range r.instances {
		if rec != nil {
			inst.saver.WipeData(rec)
		}
		r.coord.Deregister(inst.saver, false)
		inst.destroyed = true
	}
	r.reset()
}

// ClearData forgets every instance without touching it.
func (r *Registry) ClearData() {
	r.Cancel()
	r.reset()
}

func (r *Registry) reset() {
	r.instances = nil
	clear(r.loaded)
	r.spawned = 0
	r.dirty = true
}

// Close cancels throttled spawning, saves the descriptors into the active
// record and detaches the registry from the coordinator.
func (r *Registry) Close() {
	r.Cancel()
	if rec := r.coord.Record(); rec != nil {
		r.OnSave(rec)
	}
	r.coord.RemoveParticipant(r)
}

func (r *Registry) remove(inst *Instance) {
	for i, existing := range r.instances {
		if existing == inst {
			r.instances = append(r.instances[:i:i], r.instances[i+1:]...)
			break
		}
	}
	delete(r.loaded, inst.desc.OwnerID)
	r.dirty = true
}

// carriesData reports whether inst has data worth restoring. Components
// that skipped this pass still count when the record holds their payload.
func (r *Registry) carriesData(rec *record.Record, inst *Instance) bool {
	if inst.saver.HasLoadedAnyComponents() || inst.saver.HasSavedAnyComponents() {
		return true
	}
	return hasStoredData(rec, inst.desc.OwnerID, inst.template)
}

func hasStoredData(rec *record.Record, ownerID string, tpl Template) bool {
	for _, id := range tpl.SaveableIDs() {
		if _, ok := rec.Get(ownerID + "-" + id); ok {
			return true
		}
	}
	return false
}

func (r *Registry) debugf(format string, args ...any) {
	if r.coord.Settings().EnableLogging {
		logs.Debugf(format, args...)
	}
}
