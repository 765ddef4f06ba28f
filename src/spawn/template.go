package spawn

import (
	"fmt"

	"github.com/danmuck/dps_saves/src/coordinator"
)

// Template is a resolved spawnable entity.
type Template interface {
	UID() string
	// Name is used to build default owner ids.
	Name() string
	// SaveableIDs lists the component ids an instance will expose. It is
	// used to tell whether a descriptor has stored data without
	// instantiating it.
	SaveableIDs() []string
	Instantiate() ([]coordinator.Saveable, error)
}

// Resolver turns a template uid into a Template. Resolution may be
// expensive; the registry caches successful results.
type Resolver interface {
	Resolve(uid string) (Template, error)
}

type ResolverFunc func(uid string) (Template, error)

func (f ResolverFunc) Resolve(uid string) (Template, error) { return f(uid) }

// StaticTemplate is a Template built from plain values.
type StaticTemplate struct {
	TemplateUID  string
	TemplateName string
	Components   []string
	Options      coordinator.SaverOptions
	Build        func() []coordinator.Saveable
}

func (t *StaticTemplate) UID() string           { return t.TemplateUID }
func (t *StaticTemplate) Name() string          { return t.TemplateName }
func (t *StaticTemplate) SaveableIDs() []string { return t.Components }

func (t *StaticTemplate) SaverOptions() coordinator.SaverOptions { return t.Options }

func (t *StaticTemplate) Instantiate() ([]coordinator.Saveable, error) {
	if t.Build == nil {
		return nil, fmt.Errorf("template %q has no builder", t.TemplateUID)
	}
	return t.Build(), nil
}

// Catalog resolves templates from a fixed set keyed by uid.
type Catalog map[string]Template

func (c Catalog) Resolve(uid string) (Template, error) {
	t, ok := c[uid]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", uid)
	}
	return t, nil
}

// saverOptions returns the owner options a template asks for, if any.
func saverOptions(t Template) coordinator.SaverOptions {
	if o, ok := t.(interface {
		SaverOptions() coordinator.SaverOptions
	}); ok {
		return o.SaverOptions()
	}
	return coordinator.SaverOptions{}
}
