package fleet

// Detector reports builders that have appeared in the registry since the
// previous check. Each new builder is reported exactly once over the
// detector's lifetime.
type Detector struct {
	factory factory
	known   map[string]bool
}

// factory is the slice of the registry the detector needs.
type factory interface {
	Update() error
	Names() ([]string, error)
}

// NewDetector creates a detector with an empty known set, so the first
// Check reports the whole fleet.
func NewDetector(f factory) *Detector {
	return &Detector{factory: f, known: map[string]bool{}}
}

// Check refreshes the registry and returns the names not seen before, in
// registry order. A name is marked known the moment it is returned; it
// stays known even if the builder later disappears and comes back.
func (d *Detector) Check() ([]string, error) {
	if err := d.factory.Update(); err != nil {
		return nil, err
	}
	names, err := d.factory.Names()
	if err != nil {
		return nil, err
	}

	var fresh []string
	for _, name := range names {
		if d.known[name] {
			continue
		}
		d.known[name] = true
		fresh = append(fresh, name)
	}
	return fresh, nil
}
