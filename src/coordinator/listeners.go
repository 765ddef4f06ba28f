package coordinator

import (
	"fmt"

	logs "github.com/danmuck/smplog"
)

// Register adds s to the sync set and, when a slot is active, loads it right
// away so late owners catch up. Registering an owner twice, or one whose
// record identifiers collide with a registered owner, returns
// ErrDuplicateRegistration.
func (c *Coordinator) Register(s *Saver) error {
	if err := c.add(s); err != nil {
		return err
	}
	if c.rec != nil {
		s.load(c.rec)
	}
	return nil
}

// RegisterWithoutLoad adds s without loading it.
func (c *Coordinator) RegisterWithoutLoad(s *Saver) error {
	return c.add(s)
}

func (c *Coordinator) add(s *Saver) error {
	if s == nil {
		return fmt.Errorf("nil saver")
	}
	if s.coord == c && c.indexOf(s) >= 0 {
		err := fmt.Errorf("%w: owner %q", ErrDuplicateRegistration, s.id)
		logs.Warnf("%v", err)
		return err
	}
	s.coord = c
	if err := c.claimKeys(s); err != nil {
		s.coord = nil
		logs.Warnf("%v", err)
		return err
	}
	c.savers = append(c.savers, s)
	c.debugf("registered owner %q (%d components)", s.id, len(s.components))
	return nil
}

// Deregister removes s. When save is set and a slot is active, s is pushed
// into the record first.
func (c *Coordinator) Deregister(s *Saver, save bool) {
	i := c.indexOf(s)
	if i < 0 {
		return
	}
	if save && c.rec != nil {
		s.save(c.rec)
	}
	c.savers = append(c.savers[:i:i], c.savers[i+1:]...)
	c.releaseKeys(s)
	s.coord = nil
}

// RemoveAllListeners deregisters every owner.
func (c *Coordinator) RemoveAllListeners(save bool) {
	for _, s := range c.Savers() {
		c.Deregister(s, save)
	}
}

// RemoveGroupListeners deregisters every owner in group.
func (c *Coordinator) RemoveGroupListeners(group string, save bool) {
	for _, s := range c.Savers() {
		if s.group == group {
			c.Deregister(s, save)
		}
	}
}

// SaveListener pushes one owner into the active record. Meant for manual
// owners.
func (c *Coordinator) SaveListener(s *Saver) {
	if s != nil && c.rec != nil {
		s.save(c.rec)
	}
}

// LoadListener pulls the active record into one owner.
func (c *Coordinator) LoadListener(s *Saver) {
	if s != nil && c.rec != nil {
		s.load(c.rec)
	}
}

// ReloadListener resets one owner and loads it again, for owners that
// gained components after registering.
func (c *Coordinator) ReloadListener(s *Saver) {
	if s != nil && c.rec != nil {
		s.ResetState()
		s.load(c.rec)
	}
}

// IsRegistered reports whether key is owned by a registered component.
func (c *Coordinator) IsRegistered(key string) bool {
	_, ok := c.keys[key]
	return ok
}

func (c *Coordinator) indexOf(s *Saver) int {
	for i, existing := range c.savers {
		if existing == s {
			return i
		}
	}
	return -1
}

func (c *Coordinator) claimKey(key string, s *Saver) error {
	if owner, ok := c.keys[key]; ok && owner != s {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, key)
	}
	c.keys[key] = s
	return nil
}

// claimKeys indexes every key of s or none of them.
func (c *Coordinator) claimKeys(s *Saver) error {
	keys := s.Keys()
	for _, key := range keys {
		if owner, ok := c.keys[key]; ok && owner != s {
			return fmt.Errorf("%w: %s", ErrDuplicateRegistration, key)
		}
	}
	for _, key := range keys {
		c.keys[key] = s
	}
	return nil
}

func (c *Coordinator) releaseKey(key string, s *Saver) {
	if c.keys[key] == s {
		delete(c.keys, key)
	}
}

func (c *Coordinator) releaseKeys(s *Saver) {
	for _, key := range s.Keys() {
		c.releaseKey(key, s)
	}
}
