package registry

import (
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/store"
)

// Live queries the database on every lookup. Suitable for one-off
// administrative callers; the fleet supervisor uses Prefetched.
type Live struct {
	db  *gorm.DB
	gen atomic.Int64
}

// NewLive creates a live factory over db.
func NewLive(db *gorm.DB) *Live {
	return &Live{db: db}
}

// Update only advances the generation; lookups are always current.
func (f *Live) Update() error {
	f.gen.Add(1)
	return nil
}

// Generation implements Factory.
func (f *Live) Generation() int64 {
	return f.gen.Load()
}

// Vitals implements Factory with one query per call.
func (f *Live) Vitals(name string) (Vitals, error) {
	b, err := store.Builder(f.db, name)
	if err != nil {
		return Vitals{}, err
	}
	return vitalsOf(b), nil
}

// Names implements Factory.
func (f *Live) Names() ([]string, error) {
	builders, err := store.Builders(f.db)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(builders))
	for i, b := range builders {
		names[i] = b.Name
	}
	return names, nil
}

// Builder implements Factory.
func (f *Live) Builder(name string) (*models.Builder, error) {
	return store.Builder(f.db, name)
}

var _ Factory = (*Live)(nil)
