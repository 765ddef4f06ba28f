package coordinator

import (
	"fmt"
	"strings"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"

	"github.com/danmuck/dps_saves/src/record"
)

// SaverIDLength is the number of uuid characters used by NewID.
const SaverIDLength = 8

// SaverOptions tune how an owner takes part in sync passes.
type SaverOptions struct {
	LoadOnce        bool // ignore loads after the first one
	SaveWhenRemoved bool // keep saving after Detach
	Manual          bool // Detach does not deregister
}

// NewID returns a fresh owner id scoped to group.
func NewID(group string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:SaverIDLength]
	if group == "" {
		return id
	}
	return group + "-" + id
}

type component struct {
	id string
	s  Saveable
}

// Saver owns the saveable components of one logical object and routes them
// to record entries named <ownerID>-<componentID>.
type Saver struct {
	id         string
	group      string
	opts       SaverOptions
	components []component

	coord    *Coordinator
	detached bool

	hasLoaded       bool
	hasStateReset   bool
	loadedAny       bool
	savedAny        bool
	loadedSaveables map[string]struct{}
}

// NewSaver returns an owner in group. An empty id leaves the owner inert
// until SetID is called.
func NewSaver(id, group string, opts SaverOptions) *Saver {
	return &Saver{
		id:              id,
		group:           group,
		opts:            opts,
		loadedSaveables: make(map[string]struct{}),
	}
}

func (s *Saver) ID() string    { return s.id }
func (s *Saver) Group() string { return s.group }
func (s *Saver) HasID() bool   { return s.id != "" }

func (s *Saver) Options() SaverOptions { return s.opts }

func (s *Saver) SaveWhenRemoved() bool { return s.opts.SaveWhenRemoved }

func (s *Saver) HasLoaded() bool     { return s.hasLoaded }
func (s *Saver) HasStateReset() bool { return s.hasStateReset }

// HasLoadedAnyComponents reports whether the last load found data for at
// least one component.
func (s *Saver) HasLoadedAnyComponents() bool { return s.loadedAny }

// HasSavedAnyComponents reports whether the last save wrote at least one
// component.
func (s *Saver) HasSavedAnyComponents() bool { return s.savedAny }

// IsComponentLoaded reports whether the component has received a payload
// since the owner was created.
func (s *Saver) IsComponentLoaded(componentID string) bool {
	_, ok := s.loadedSaveables[componentID]
	return ok
}

func (s *Saver) Detached() bool { return s.detached }

// Key returns the record identifier of componentID.
func (s *Saver) Key(componentID string) string {
	return s.id + "-" + componentID
}

// Keys returns the record identifiers of every component.
func (s *Saver) Keys() []string {
	if s.id == "" {
		return nil
	}
	keys := make([]string, len(s.components))
	for i, c := range s.components {
		keys[i] = s.Key(c.id)
	}
	return keys
}

// AddComponent attaches c. Component ids must be unique within the owner and,
// once registered, across the coordinator.
func (s *Saver) AddComponent(c Saveable) error {
	id := c.SaveableID()
	if id == "" {
		return fmt.Errorf("component has no saveable id")
	}
	for _, existing := range s.components {
		if existing.id == id {
			return fmt.Errorf("%w: %s", ErrDuplicateRegistration, s.Key(id))
		}
	}
	if s.coord != nil && s.id != "" {
		if err := s.coord.claimKey(s.Key(id), s); err != nil {
			return err
		}
	}
	s.components = append(s.components, component{id: id, s: c})
	return nil
}

// SetID renames the owner. An owner that had no id is reloaded so its
// components pick up data stored under the new one.
func (s *Saver) SetID(id string) error {
	if id == s.id {
		return nil
	}
	wasEmpty := s.id == ""
	if s.coord != nil {
		old := s.id
		s.coord.releaseKeys(s)
		s.id = id
		if err := s.coord.claimKeys(s); err != nil {
			s.id = old
			_ = s.coord.claimKeys(s)
			return err
		}
	} else {
		s.id = id
	}
	if wasEmpty && s.coord != nil {
		s.coord.ReloadListener(s)
	}
	return nil
}

// Detach marks the owner as removed from the world. Unless the owner is
// manual it is deregistered, saving one last time. A detached owner only
// saves afterwards when SaveWhenRemoved is set.
func (s *Saver) Detach() {
	if s.detached {
		return
	}
	if s.coord != nil && !s.opts.Manual {
		s.coord.Deregister(s, true)
	}
	s.detached = true
}

// WipeData removes every entry the owner's components wrote.
func (s *Saver) WipeData(rec *record.Record) {
	for _, key := range s.Keys() {
		rec.Remove(key)
	}
}

// ResetState forgets load and save bookkeeping so the next sync pass pulls
// and pushes every component.
func (s *Saver) ResetState() {
	s.hasLoaded = false
	s.hasStateReset = true
}

func (s *Saver) save(rec *record.Record) {
	s.savedAny = false
	if s.id == "" || (s.detached && !s.opts.SaveWhenRemoved) {
		return
	}

	kept := s.components[:0]
	for _, c := range s.components {
		if isDestroyed(c.s) {
			logs.Debugf("pruned destroyed component %s", s.Key(c.id))
			s.dropKey(c.id)
			continue
		}
		kept = append(kept, c)
		if !s.hasStateReset && !c.s.ShouldSave() {
			continue
		}
		if payload := c.s.Save(); payload != "" {
			rec.Set(s.Key(c.id), payload, s.group)
			s.savedAny = true
		}
	}
	s.components = kept
	s.hasStateReset = false
}

func (s *Saver) load(rec *record.Record) {
	s.loadedAny = false
	if s.id == "" || (s.opts.LoadOnce && s.hasLoaded) {
		return
	}
	s.hasLoaded = true

	kept := s.components[:0]
	for _, c := range s.components {
		if isDestroyed(c.s) {
			logs.Debugf("pruned destroyed component %s", s.Key(c.id))
			s.dropKey(c.id)
			continue
		}
		kept = append(kept, c)
		if payload, ok := rec.Get(s.Key(c.id)); ok {
			c.s.Load(payload)
			s.loadedAny = true
			s.loadedSaveables[c.id] = struct{}{}
		}
	}
	s.components = kept
}

func (s *Saver) dropKey(componentID string) {
	if s.coord != nil {
		s.coord.releaseKey(s.Key(componentID), s)
	}
}

// Snapshot returns the current payload of every component keyed by record
// identifier without touching any record.
func (s *Saver) Snapshot() map[string]string {
	out := make(map[string]string, len(s.components))
	for _, c := range s.components {
		out[s.Key(c.id)] = c.s.Save()
	}
	return out
}

// Restore loads payloads produced by Snapshot.
func (s *Saver) Restore(data map[string]string) {
	for _, c := range s.components {
		if payload, ok := data[s.Key(c.id)]; ok {
			c.s.Load(payload)
		}
	}
}
