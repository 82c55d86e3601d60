// Package registry supplies point-in-time builder snapshots (Vitals) to the
// scanner. The prefetched implementation answers every lookup from an
// immutable snapshot refreshed once per scan generation; the live
// implementation queries the database per call. Both produce identical
// results for a consistent database state.
package registry

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
)

// Vitals is an immutable snapshot of one builder's state. The scanner
// re-derives Vitals at the start of every cycle instead of trusting state
// held across RPC suspension points.
type Vitals struct {
	Name         string
	URL          string
	Arch         string
	Virtualized  bool
	VMHost       string
	OK           bool
	Manual       bool
	CleanStatus  string
	CurrentJob   string
	FailureCount int
	Version      string
}

// Clean reports whether the builder is known idle and ready.
func (v Vitals) Clean() bool {
	return v.CleanStatus == models.CleanStatusClean
}

// Factory supplies Vitals for builders by name.
type Factory interface {
	// Update refreshes the factory's view of the fleet. It must be called
	// once per scan generation, before any Vitals call of that generation.
	Update() error
	// Generation returns a counter that advances on every successful
	// Update. Scanners use it to skip cycles whose snapshot is stale.
	Generation() int64
	// Vitals returns the snapshot for one builder. Never blocks on the
	// network for prefetched factories.
	Vitals(name string) (Vitals, error)
	// Names returns every known builder name.
	Names() ([]string, error)
	// Builder returns the full live builder record, for the rare callers
	// that need more than Vitals.
	Builder(name string) (*models.Builder, error)
}

func vitalsOf(b *models.Builder) Vitals {
	return Vitals{
		Name:         b.Name,
		URL:          b.URL,
		Arch:         b.Arch,
		Virtualized:  b.Virtualized,
		VMHost:       b.VMHost,
		OK:           b.OK,
		Manual:       b.Manual,
		CleanStatus:  b.CleanStatus,
		CurrentJob:   b.CurrentJob,
		FailureCount: b.FailureCount,
		Version:      b.Version,
	}
}

// unknownBuilder is returned when a name is not in the current snapshot.
func unknownBuilder(name string) error {
	return fmt.Errorf("registry: unknown builder %q: %w", name, gorm.ErrRecordNotFound)
}
