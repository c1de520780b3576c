// Package seed validates the reference documents that must exist after
// provisioning.
package seed

import (
	"fmt"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/registry"
)

// Loader checks seed records against a registry. It performs no I/O.
type Loader struct {
	reg     *registry.Registry
	records []ir.SeedRecord
}

// NewLoader returns a Loader over records, which are copied.
func NewLoader(reg *registry.Registry, records []ir.SeedRecord) *Loader {
	cp := make([]ir.SeedRecord, len(records))
	for i, r := range records {
		cp[i] = r.Clone()
	}
	return &Loader{reg: reg, records: cp}
}

// Load returns the records in declaration order, or the first violation:
// ErrUnknownCollection, ErrDuplicateSeed, or ErrReservedKey.
func (l *Loader) Load() ([]ir.SeedRecord, error) {
	if errs := l.Violations(); len(errs) > 0 {
		return nil, errs[0]
	}
	out := make([]ir.SeedRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.Clone()
	}
	return out, nil
}

// Violations checks every record and returns all problems in declaration
// order. A record that fails Check is not counted for duplicate detection.
func (l *Loader) Violations() []error {
	var errs []error
	seen := make(map[[2]string]bool, len(l.records))
	for i, r := range l.records {
		if err := Check(l.reg, r); err != nil {
			errs = append(errs, fmt.Errorf("seed %d: %w", i, err))
			continue
		}
		id := [2]string{r.Collection, r.Key}
		if seen[id] {
			errs = append(errs, fmt.Errorf("seed %d %s/%s: %w", i, r.Collection, r.Key, ir.ErrDuplicateSeed))
		}
		seen[id] = true
	}
	return errs
}
