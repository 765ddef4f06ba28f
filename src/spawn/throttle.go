package spawn

import (
	"context"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/dps_saves/src/coordinator"
)

// Pending returns the number of queued spawns.
func (r *Registry) Pending() int { return len(r.queue) }

// Throttling reports whether a throttled restore is in progress.
func (r *Registry) Throttling() bool { return r.throttling }

func (r *Registry) startThrottle(n int) {
	if r.throttling {
		r.total += n
		return
	}
	r.throttling = true
	r.total = n
	r.count = 0
	r.debugf("throttling %d spawns in %s", n, r.stage)
	r.coord.Publish(coordinator.Event{
		Kind:  coordinator.ThrottleStarted,
		Slot:  r.coord.ActiveSlot(),
		Stage: r.stage,
		Total: r.total,
	})
}

// Pump resumes a throttled restore. The host calls it once per frame. It
// spawns queued descriptors, last queued first, until the frame budget is
// used up and reports whether work remains. Cancellation of ctx or of the
// coordinator is only observed here, never in the middle of a spawn.
func (r *Registry) Pump(ctx context.Context) bool {
	if !r.throttling {
		return false
	}
	if ctx.Err() != nil || r.coord.Context().Err() != nil {
		r.Cancel()
		return false
	}

	start := r.opts.Now()
	for len(r.queue) > 0 {
		last := len(r.queue) - 1
		d := r.queue[last]
		r.queue = r.queue[:last]
		r.count++

		if _, err := r.Spawn(d.TemplateUID, d.Tag, FromPersistence, d.OwnerID); err != nil {
			logs.Warnf("failed to restore %s: %v", d.OwnerID, err)
			r.dirty = true
		}
		r.coord.Publish(coordinator.Event{
			Kind:     coordinator.ThrottleSpawned,
			Slot:     r.coord.ActiveSlot(),
			Stage:    r.stage,
			Template: d.TemplateUID,
			OwnerID:  d.OwnerID,
			Count:    r.count,
			Total:    r.total,
			Progress: float64(r.count) / float64(r.total),
		})
		if r.opts.Now().Sub(start) >= r.opts.FrameBudget {
			break
		}
	}
	if len(r.queue) > 0 {
		return true
	}
	r.finishThrottle(false)
	return false
}

// Cancel drops every queued spawn. Instances already spawned stay.
func (r *Registry) Cancel() {
	if !r.throttling {
		r.queue = nil
		return
	}
	r.queue = nil
	r.finishThrottle(true)
}

func (r *Registry) finishThrottle(cancelled bool) {
	r.throttling = false
	r.coord.Publish(coordinator.Event{
		Kind:      coordinator.ThrottleFinished,
		Slot:      r.coord.ActiveSlot(),
		Stage:     r.stage,
		Count:     r.count,
		Total:     r.total,
		Cancelled: cancelled,
	})
	r.total, r.count = 0, 0
}

func (r *Registry) isQueued(ownerID string) bool {
	for _, d := range r.queue {
		if d.OwnerID == ownerID {
			return true
		}
	}
	return false
}
