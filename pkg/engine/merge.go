package engine

import (
	"fmt"
	"sort"

	"github.com/aretw0/casesync/pkg/core"
)

// MergeInput is the material of one reconciliation.
type MergeInput[T any] struct {
	Local  []core.Entity[T]
	Remote []core.Entity[T]
	// Deleted ids are dropped from the remote snapshot (local deletes the
	// remote has not confirmed yet).
	Deleted map[string]struct{}
	// Retain keeps a local synced entity that is missing from the snapshot,
	// e.g. one acknowledged after the snapshot was taken.
	Retain func(id string) bool
}

// Merge combines a local collection with a remote snapshot.
//
// The remote wins for every id it carries; local pending entities the remote
// does not carry are kept untouched. Local synced entities missing from the
// snapshot were deleted remotely and are dropped unless Retain keeps them.
// A snapshot with empty, duplicate or foreign entries is rejected with
// core.ErrMalformedSnapshot.
func Merge[T any](kind core.Kind[T], ownerID string, in MergeInput[T]) ([]core.Entity[T], error) {
	remoteIDs := make(map[string]struct{}, len(in.Remote))
	merged := make([]core.Entity[T], 0, len(in.Remote)+len(in.Local))

	for i, e := range in.Remote {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", core.ErrMalformedSnapshot, i)
		}
		if e.OwnerID != "" && e.OwnerID != ownerID {
			return nil, fmt.Errorf("%w: item %s belongs to owner %s", core.ErrMalformedSnapshot, e.ID, e.OwnerID)
		}
		if _, dup := remoteIDs[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", core.ErrMalformedSnapshot, e.ID)
		}
		remoteIDs[e.ID] = struct{}{}

		if _, gone := in.Deleted[e.ID]; gone {
			continue
		}
		e.OwnerID = ownerID
		e.Synced = true
		e.Remote = true
		merged = append(merged, e)
	}

	seen := make(map[string]struct{}, len(in.Local))
	for _, e := range in.Local {
		if _, ok := remoteIDs[e.ID]; ok {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		if e.Synced && (in.Retain == nil || !in.Retain(e.ID)) {
			continue
		}
		seen[e.ID] = struct{}{}
		merged = append(merged, e)
	}

	Sort(kind, merged)
	return merged, nil
}

// Sort orders a collection by the kind's rule, breaking ties by id.
func Sort[T any](kind core.Kind[T], items []core.Entity[T]) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if kind.Less != nil {
			if kind.Less(a, b) {
				return true
			}
			if kind.Less(b, a) {
				return false
			}
		}
		return a.ID < b.ID
	})
}
