package spawn

import (
	"errors"
	"fmt"
)

// ErrInvalidDescriptor is returned when a template cannot be resolved or a
// descriptor has no owner id.
var ErrInvalidDescriptor = errors.New("invalid spawn descriptor")

// Source tells where a spawn request came from.
type Source int

const (
	// FromRuntime is a spawn requested by the host while playing.
	FromRuntime Source = iota
	// FromPersistence is a spawn replayed from a saved descriptor.
	FromPersistence
)

func (s Source) String() string {
	switch s {
	case FromRuntime:
		return "runtime"
	case FromPersistence:
		return "persistence"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Descriptor is everything needed to instantiate a spawned entity again.
// Field names on the wire are kept compatible with existing save files.
type Descriptor struct {
	TemplateUID string `json:"Uid"`
	OwnerID     string `json:"SaverId"`
	Tag         string `json:"Tag"`
	Source      Source `json:"-"`
}

// Valid reports whether d names a template and an owner. Whether the
// template resolves is checked by the registry.
func (d Descriptor) Valid() bool {
	return d.TemplateUID != "" && d.OwnerID != ""
}

// saveData is the payload a registry stores under its own id.
type saveData struct {
	InfoCollection    []Descriptor `json:"InfoCollection"`
	SpawnedSceneCount int          `json:"SpawnedSceneCount"`
}
