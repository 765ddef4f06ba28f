package record

import (
	"sort"
	"time"
)

// Meta is the slot-level bookkeeping stored alongside the entries.
type Meta struct {
	Version  float32
	Created  time.Time
	Modified time.Time
	PlayTime time.Duration
}

// Entry is a single persisted payload. An entry with an empty payload is
// treated the same as a missing one and is dropped by Compact.
type Entry struct {
	ID      string `json:"id"`
	Group   string `json:"group"`
	Payload string `json:"payload"`
}

// Record is the in-memory state of one slot.
//
// entries keeps insertion order so overwrites stay in place; index maps an
// id to its position and groups maps an origin group to the ids it owns.
// Remove leaves a tombstone behind that only Compact reclaims.
type Record struct {
	Meta Meta

	entries []Entry
	index   map[string]int
	groups  map[string]map[string]struct{}
	name    string // slot file name without extension
}

// New returns an empty record stamped with the given game version.
func New(version float32) *Record {
	return &Record{
		Meta:    Meta{Version: version},
		entries: make([]Entry, 0),
		index:   make(map[string]int),
		groups:  make(map[string]map[string]struct{}),
	}
}

// FromEntries builds a record from decoded data and compacts it.
func FromEntries(meta Meta, entries []Entry) *Record {
	r := New(meta.Version)
	r.Meta = meta
	r.entries = append(r.entries, entries...)
	r.Compact()
	return r
}

// Get returns the payload stored for id. An empty payload reports false.
func (r *Record) Get(id string) (string, bool) {
	i, ok := r.index[id]
	if !ok {
		return "", false
	}
	payload := r.entries[i].Payload
	return payload, payload != ""
}

// Set inserts or overwrites id. Overwrites keep the entry's position.
func (r *Record) Set(id, payload, group string) {
	if i, ok := r.index[id]; ok {
		prev := r.entries[i].Group
		r.entries[i] = Entry{ID: id, Group: group, Payload: payload}
		if prev != group {
			r.dropFromGroup(prev, id)
			r.addToGroup(group, id)
		}
		return
	}
	r.entries = append(r.entries, Entry{ID: id, Group: group, Payload: payload})
	r.index[id] = len(r.entries) - 1
	r.addToGroup(group, id)
}

// Remove tombstones id. The slot in entries is reclaimed by Compact.
func (r *Record) Remove(id string) {
	i, ok := r.index[id]
	if !ok {
		return
	}
	r.dropFromGroup(r.entries[i].Group, id)
	r.entries[i] = Entry{}
	delete(r.index, id)
}

// RemoveGroup removes every entry that belongs to group and returns how many
// were removed.
func (r *Record) RemoveGroup(group string) int {
	ids, ok := r.groups[group]
	if !ok {
		return 0
	}
	removed := 0
	for id := range ids {
		if i, ok := r.index[id]; ok {
			r.entries[i] = Entry{}
			delete(r.index, id)
			removed++
		}
	}
	delete(r.groups, group)
	return removed
}

// Compact strips empty entries and rebuilds both indexes. When an id appears
// more than once the last occurrence wins and takes the first position.
func (r *Record) Compact() {
	compacted := make([]Entry, 0, len(r.entries))
	index := make(map[string]int, len(r.entries))
	groups := make(map[string]map[string]struct{})

	for _, e := range r.entries {
		if e.Payload == "" || e.ID == "" {
			continue
		}
		if i, dup := index[e.ID]; dup {
			prev := compacted[i].Group
			if prev != e.Group {
				delete(groups[prev], e.ID)
				if len(groups[prev]) == 0 {
					delete(groups, prev)
				}
			}
			compacted[i] = e
		} else {
			compacted = append(compacted, e)
			index[e.ID] = len(compacted) - 1
		}
		set, ok := groups[e.Group]
		if !ok {
			set = make(map[string]struct{})
			groups[e.Group] = set
		}
		set[e.ID] = struct{}{}
	}

	r.entries = compacted
	r.index = index
	r.groups = groups
}

// Entries returns a copy of the live entries in storage order.
func (r *Record) Entries() []Entry {
	out := make([]Entry, 0, len(r.index))
	for _, e := range r.entries {
		if e.ID == "" || e.Payload == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len reports the number of live entries.
func (r *Record) Len() int {
	return len(r.index)
}

// Group returns the ids currently indexed under group, sorted.
func (r *Record) Group(group string) []string {
	set := r.groups[group]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasGroup reports whether any live entry belongs to group.
func (r *Record) HasGroup(group string) bool {
	return len(r.groups[group]) > 0
}

// IsNew reports whether the record has never been written.
func (r *Record) IsNew() bool {
	return r.Meta.Created.IsZero()
}

// Touch stamps the record before a write.
func (r *Record) Touch(now time.Time) {
	if r.Meta.Created.IsZero() {
		r.Meta.Created = now
	}
	r.Meta.Modified = now
}

func (r *Record) AddPlayTime(d time.Duration) {
	r.Meta.PlayTime += d
}

func (r *Record) Name() string {
	return r.name
}

func (r *Record) SetName(name string) {
	r.name = name
}

// Dispose drops all entries and both indexes.
func (r *Record) Dispose() {
	r.entries = r.entries[:0]
	clear(r.index)
	clear(r.groups)
}

func (r *Record) addToGroup(group, id string) {
	set, ok := r.groups[group]
	if !ok {
		set = make(map[string]struct{})
		r.groups[group] = set
	}
	set[id] = struct{}{}
}

func (r *Record) dropFromGroup(group, id string) {
	set, ok := r.groups[group]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.groups, group)
	}
}
