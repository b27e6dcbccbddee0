// Package dataset loads the domain dataset and resolves details-route keys against it.
//
// A Dataset is loaded once at startup and never mutated afterwards, so it is
// safe to share between goroutines without locking.
package dataset

import (
	"sort"

	"github.com/domainwatch/domainwatch/domain"
)

// Dataset is an immutable, ordered sequence of domain records.
type Dataset struct {
	records []domain.DomainRecord
	source  string
}

// New returns a Dataset holding a copy of records in the given order.
func New(source string, records []domain.DomainRecord) *Dataset {
	owned := make([]domain.DomainRecord, len(records))
	copy(owned, records)
	return &Dataset{records: owned, source: source}
}

// Records returns a copy of the records in dataset order.
func (d *Dataset) Records() []domain.DomainRecord {
	if d == nil {
		return nil
	}
	out := make([]domain.DomainRecord, len(d.records))
	copy(out, d.records)
	return out
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Source returns where the dataset was loaded from.
func (d *Dataset) Source() string {
	if d == nil {
		return ""
	}
	return d.source
}

// Resolve looks key up in the dataset, see Resolve.
func (d *Dataset) Resolve(key string) (domain.DomainRecord, bool) {
	if d == nil {
		return domain.DomainRecord{}, false
	}
	return Resolve(d.records, key)
}

// Resolve returns the first record whose domain equals key.
// The comparison is exact and case-sensitive. It returns false if nothing matches,
// including when records is empty.
func Resolve(records []domain.DomainRecord, key string) (domain.DomainRecord, bool) {
	for _, record := range records {
		if record.Domain == key {
			return record, true
		}
	}
	return domain.DomainRecord{}, false
}

// Sort returns a new slice ordered by domain. Records sharing a domain keep their relative order.
func Sort(records []domain.DomainRecord) []domain.DomainRecord {
	sorted := make([]domain.DomainRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Domain < sorted[j].Domain
	})
	return sorted
}
