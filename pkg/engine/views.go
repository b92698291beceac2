package engine

import (
	"time"

	"github.com/aretw0/casesync/pkg/core"
)

// Criterion selects entities in a derived view.
type Criterion[T any] func(e core.Entity[T], now time.Time) bool

// Pending selects entities not yet confirmed by the remote.
func Pending[T any]() Criterion[T] {
	return func(e core.Entity[T], _ time.Time) bool { return !e.Synced }
}

// Synced selects entities confirmed by the remote.
func Synced[T any]() Criterion[T] {
	return func(e core.Entity[T], _ time.Time) bool { return e.Synced }
}

// FacetIs selects entities whose facet equals value.
func FacetIs[T any](kind core.Kind[T], facet, value string) Criterion[T] {
	return func(e core.Entity[T], _ time.Time) bool {
		if kind.Facets == nil {
			return false
		}
		return kind.Facets(e.Data)[facet] == value
	}
}

// Marked selects entities carrying a clock-dependent mark (e.g. "overdue").
func Marked[T any](kind core.Kind[T], mark string) Criterion[T] {
	return func(e core.Entity[T], now time.Time) bool {
		if kind.Marks == nil {
			return false
		}
		for _, m := range kind.Marks(e, now) {
			if m == mark {
				return true
			}
		}
		return false
	}
}

// Select returns the entities matching every criterion, in input order.
func Select[T any](items []core.Entity[T], now time.Time, criteria ...Criterion[T]) []core.Entity[T] {
	out := make([]core.Entity[T], 0, len(items))
next:
	for _, e := range items {
		for _, c := range criteria {
			if c != nil && !c(e, now) {
				continue next
			}
		}
		out = append(out, e)
	}
	return out
}

// Stats aggregates a collection.
type Stats struct {
	Total    int                       `json:"total" yaml:"total"`
	Unsynced int                       `json:"unsynced" yaml:"unsynced"`
	Facets   map[string]map[string]int `json:"facets" yaml:"facets"`
	Marks    map[string]int            `json:"marks,omitempty" yaml:"marks,omitempty"`
}

// Summarize computes Stats over items.
func Summarize[T any](kind core.Kind[T], items []core.Entity[T], now time.Time) Stats {
	st := Stats{
		Total:  len(items),
		Facets: make(map[string]map[string]int),
		Marks:  make(map[string]int),
	}
	for _, e := range items {
		if !e.Synced {
			st.Unsynced++
		}
		if kind.Facets != nil {
			for facet, value := range kind.Facets(e.Data) {
				if value == "" {
					continue
				}
				if st.Facets[facet] == nil {
					st.Facets[facet] = make(map[string]int)
				}
				st.Facets[facet][value]++
			}
		}
		if kind.Marks != nil {
			for _, m := range kind.Marks(e, now) {
				st.Marks[m]++
			}
		}
	}
	return st
}
