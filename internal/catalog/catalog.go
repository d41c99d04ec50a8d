// Package catalog holds the read-only form-type configuration fetched
// once per process from the backend.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/tax-intake/internal/model"
)

// Fetcher retrieves the configuration data.
type Fetcher interface {
	GetConfigurationData(ctx context.Context) (*model.ConfigurationData, error)
}

var (
	// ErrNotLoaded is returned by lookups before Load succeeded.
	ErrNotLoaded = eris.New("catalog: not loaded")
	ErrNoData    = eris.New("catalog: empty configuration response")
)

// Catalog is fetched lazily on first Load and never mutated afterwards.
// A failed fetch is not remembered, so the next Load tries again.
type Catalog struct {
	fetcher Fetcher
	flight  singleflight.Group

	mu     sync.Mutex
	byType map[string]model.FormType
	order  []string
}

// New creates an empty catalog backed by fetcher.
func New(fetcher Fetcher) *Catalog {
	return &Catalog{fetcher: fetcher}
}

// NewStatic creates a catalog that is already loaded with formTypes.
func NewStatic(formTypes []model.FormType) *Catalog {
	c := &Catalog{}
	c.install(formTypes)
	return c
}

// Load fetches the configuration if it has not been fetched yet.
// Concurrent callers share the single in-flight fetch; lookups are not
// blocked by it.
func (c *Catalog) Load(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}
	if c.fetcher == nil {
		return ErrNotLoaded
	}

	_, err, _ := c.flight.Do("load", func() (any, error) {
		if c.Loaded() {
			return nil, nil
		}
		data, err := c.fetcher.GetConfigurationData(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: load")
		}
		if data == nil {
			return nil, ErrNoData
		}

		c.mu.Lock()
		c.install(data.FormTypes)
		c.mu.Unlock()

		zap.L().Debug("catalog: loaded", zap.Int("form_types", len(data.FormTypes)))
		return nil, nil
	})
	return err
}

func (c *Catalog) install(formTypes []model.FormType) {
	c.byType = make(map[string]model.FormType, len(formTypes))
	c.order = make([]string, 0, len(formTypes))
	for _, ft := range formTypes {
		ft.FieldTypes = append([]string(nil), ft.FieldTypes...)
		c.byType[ft.FormType] = ft
		c.order = append(c.order, ft.FormType)
	}
}

// Loaded reports whether the catalog is available.
func (c *Catalog) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byType != nil
}

// Lookup returns the entry for formType.
func (c *Catalog) Lookup(formType string) (model.FormType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft, ok := c.byType[formType]
	if !ok {
		return model.FormType{}, false
	}
	ft.FieldTypes = append([]string(nil), ft.FieldTypes...)
	return ft, true
}

// FieldsFor returns the declared field names of formType in catalog order.
func (c *Catalog) FieldsFor(formType string) []string {
	ft, _ := c.Lookup(formType)
	return ft.FieldTypes
}

// Declares reports whether field belongs to formType.
func (c *Catalog) Declares(formType, field string) bool {
	ft, ok := c.Lookup(formType)
	return ok && ft.Declares(field)
}

// Creatable returns the form types users may create by hand. When counts
// is non-nil, more frequently chosen types sort first; ties keep catalog
// order.
func (c *Catalog) Creatable(counts map[string]int) []model.FormType {
	c.mu.Lock()
	var out []model.FormType
	for _, name := range c.order {
		if ft := c.byType[name]; ft.UserCanAdd {
			out = append(out, ft)
		}
	}
	c.mu.Unlock()

	if counts != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return counts[out[i].FormType] > counts[out[j].FormType]
		})
	}
	return out
}
