package coordinator

// Saveable is a component whose state round-trips through a string payload.
// SaveableID must be stable and unique within its owner.
type Saveable interface {
	SaveableID() string
	Save() string
	Load(payload string)
	// ShouldSave reports whether the state changed since the last save.
	ShouldSave() bool
}

// Destroyable is implemented by components whose backing object can go
// away. Destroyed components are pruned during sync passes.
type Destroyable interface {
	Destroyed() bool
}

// Funcs adapts plain functions to Saveable.
type Funcs struct {
	ID             string
	SaveFunc       func() string
	LoadFunc       func(payload string)
	ShouldSaveFunc func() bool // nil always saves
	DestroyedFunc  func() bool
}

func (f *Funcs) SaveableID() string { return f.ID }

func (f *Funcs) Save() string {
	if f.SaveFunc == nil {
		return ""
	}
	return f.SaveFunc()
}

func (f *Funcs) Load(payload string) {
	if f.LoadFunc != nil {
		f.LoadFunc(payload)
	}
}

func (f *Funcs) ShouldSave() bool {
	return f.ShouldSaveFunc == nil || f.ShouldSaveFunc()
}

func (f *Funcs) Destroyed() bool {
	return f.DestroyedFunc != nil && f.DestroyedFunc()
}

func isDestroyed(s Saveable) bool {
	if s == nil {
		return true
	}
	d, ok := s.(Destroyable)
	return ok && d.Destroyed()
}
