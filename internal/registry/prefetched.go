package registry

import (
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/store"
)

// snapshot is an immutable view of the whole fleet, built off to the side
// and published with a single pointer swap. Readers never block.
type snapshot struct {
	vitals map[string]Vitals
	names  []string
}

// Prefetched answers Vitals and Names with zero queries after a single
// Update, which performs one bulk read of all builders.
type Prefetched struct {
	db   *gorm.DB
	snap atomic.Pointer[snapshot]
	gen  atomic.Int64
}

// NewPrefetched creates a prefetched factory over db. Update must be
// called before the first lookup.
func NewPrefetched(db *gorm.DB) *Prefetched {
	p := &Prefetched{db: db}
	p.snap.Store(&snapshot{vitals: map[string]Vitals{}})
	return p
}

// Update performs the bulk read and publishes a fresh snapshot.
func (f *Prefetched) Update() error {
	builders, err := store.Builders(f.db)
	if err != nil {
		return err
	}

	snap := &snapshot{
		vitals: make(map[string]Vitals, len(builders)),
		names:  make([]string, 0, len(builders)),
	}
	for i := range builders {
		v := vitalsOf(&builders[i])
		snap.vitals[v.Name] = v
		snap.names = append(snap.names, v.Name)
	}

	f.snap.Store(snap)
	f.gen.Add(1)
	return nil
}

// Generation implements Factory.
func (f *Prefetched) Generation() int64 {
	return f.gen.Load()
}

// Vitals implements Factory from the current snapshot, issuing no queries.
func (f *Prefetched) Vitals(name string) (Vitals, error) {
	v, ok := f.snap.Load().vitals[name]
	if !ok {
		return Vitals{}, unknownBuilder(name)
	}
	return v, nil
}

// Names implements Factory from the current snapshot.
func (f *Prefetched) Names() ([]string, error) {
	return f.snap.Load().names, nil
}

// Builder implements Factory with a live lookup; the full record is needed
// only by callers that outgrow Vitals.
func (f *Prefetched) Builder(name string) (*models.Builder, error) {
	return store.Builder(f.db, name)
}

var _ Factory = (*Prefetched)(nil)
