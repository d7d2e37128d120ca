// Package flows loads the guided submission flows from embedded YAML.
package flows

import (
	"embed"
	"io/fs"
	"path"
	"slices"

	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
)

// Flow IDs shipped with the module.
const (
	FarmerRegistration   id.FlowID = "farmer_registration"
	InvestorRegistration id.FlowID = "investor_registration"
	InvestmentProject    id.FlowID = "investment_project"
	StartupCreation      id.FlowID = "startup_creation"
)

//go:embed definitions/*.yaml
var definitions embed.FS

// Catalog is an immutable set of validated flows.
type Catalog struct {
	flows map[id.FlowID]*models.Flow
}

// Load parses every embedded definition.
func Load() (*Catalog, error) {
	return LoadFS(definitions, "definitions/*.yaml")
}

// LoadFS parses every file in fsys matching pattern.
func LoadFS(fsys fs.FS, pattern string) (*Catalog, error) {
	names, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list flow definitions")
	}
	flows := make([]*models.Flow, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read flow definition "+name)
		}
		flow, err := Parse(data, path.Base(name))
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return NewCatalog(flows...)
}

// MustLoad is Load for tests and program start-up.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog builds a catalog from already parsed flows.
func NewCatalog(flows ...*models.Flow) (*Catalog, error) {
	c := &Catalog{flows: make(map[id.FlowID]*models.Flow, len(flows))}
	for _, f := range flows {
		if f == nil {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "flow cannot be nil")
		}
		if _, dup := c.flows[f.ID]; dup {
			return nil, dErrors.New(dErrors.CodeConflict, "flow "+f.ID.String()+" is defined more than once")
		}
		c.flows[f.ID] = f
	}
	return c, nil
}

// Get returns the flow with the given ID.
func (c *Catalog) Get(flowID id.FlowID) (*models.Flow, error) {
	f, ok := c.flows[flowID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown flow "+flowID.String())
	}
	return f, nil
}

// IDs lists the catalog's flows in lexical order.
func (c *Catalog) IDs() []id.FlowID {
	ids := make([]id.FlowID, 0, len(c.flows))
	for k := range c.flows {
		ids = append(ids, k)
	}
	slices.Sort(ids)
	return ids
}
