package spawn

import "github.com/danmuck/dps_saves/src/coordinator"

// Instance is a live spawned entity.
type Instance struct {
	reg        *Registry
	saver      *coordinator.Saver
	template   Template
	components []coordinator.Saveable
	desc       Descriptor

	detached  bool
	destroyed bool
}

func (i *Instance) Saver() *coordinator.Saver { return i.saver }
func (i *Instance) Template() Template         { return i.template }
func (i *Instance) Descriptor() Descriptor     { return i.desc }

func (i *Instance) Components() []coordinator.Saveable {
	return append([]coordinator.Saveable(nil), i.components...)
}

func (i *Instance) Destroyed() bool { return i.destroyed }

// Destroy removes the entity for good: its stored data is wiped and its
// descriptor is dropped on the next save.
func (i *Instance) Destroy() {
	if i.destroyed {
		return
	}
	i.destroyed = true
	if rec := i.reg.coord.Record(); rec != nil {
		i.saver.WipeData(rec)
	}
	i.reg.coord.Deregister(i.saver, false)
	i.reg.remove(i)
}

// Detach is a transient removal, e.g. the entity left the loaded area. The
// owner saves one last time. Unless the template keeps saving removed
// owners, its data is wiped and the descriptor dropped on the next save.
func (i *Instance) Detach() {
	if i.detached || i.destroyed {
		return
	}
	i.detached = true
	i.saver.Detach()
	i.reg.dirty = true
}
