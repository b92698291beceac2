// Package core holds the entity model and the ports of the sync engine.
package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity is a record owned by a client/case.
// Data carries the kind-specific payload; it is flattened into the same JSON
// object as the envelope fields.
type Entity[T any] struct {
	ID        string
	OwnerID   string
	Data      T
	CreatedAt time.Time
	UpdatedAt time.Time

	// Synced is false while the local state has not been confirmed by the remote.
	Synced bool
	// Remote is true once the remote has acknowledged this id at least once.
	Remote bool
}

type envelope struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Synced    bool      `json:"synced"`
	Remote    bool      `json:"remote,omitempty"`
}

var envelopeKeys = []string{"id", "owner_id", "created_at", "updated_at", "synced", "remote"}

// MarshalJSON writes the payload fields and the envelope fields side by side.
func (e Entity[T]) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload must encode as a JSON object: %w", err)
	}
	for _, k := range envelopeKeys {
		delete(fields, k)
	}

	env, err := json.Marshal(envelope{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Synced:    e.Synced,
		Remote:    e.Remote,
	})
	if err != nil {
		return nil, err
	}
	var envFields map[string]json.RawMessage
	if err := json.Unmarshal(env, &envFields); err != nil {
		return nil, err
	}
	for k, v := range envFields {
		fields[k] = v
	}

	return json.Marshal(fields)
}

// UnmarshalJSON reads a flat JSON object into the envelope and the payload.
func (e *Entity[T]) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	e.ID = env.ID
	e.OwnerID = env.OwnerID
	e.CreatedAt = env.CreatedAt
	e.UpdatedAt = env.UpdatedAt
	e.Synced = env.Synced
	e.Remote = env.Remote
	e.Data = payload
	return nil
}

// Kind describes one entity shape handled by the engine.
type Kind[T any] struct {
	// Name is the singular name, used as the id prefix (e.g. "note").
	Name string
	// Resource is the plural name used for remote routes and store keys (e.g. "notes").
	Resource string
	// Less orders the collection. Must be a strict weak ordering.
	Less func(a, b Entity[T]) bool
	// Facets returns the groupable fields of a payload (e.g. "status" -> "open").
	Facets func(T) map[string]string
	// Marks returns derived labels that depend on the clock (e.g. "overdue").
	Marks func(e Entity[T], now time.Time) []string
	// Validate rejects payloads that must not be stored.
	Validate func(T) error
}

// Key returns the Local Store key of an owner's collection.
func (k Kind[T]) Key(ownerID string) string {
	return k.Resource + "_" + ownerID
}

// TombstoneSuffix marks the Local Store key holding an owner's unconfirmed
// remote deletes.
const TombstoneSuffix = ".deleted"

// TombstoneKey returns the Local Store key of an owner's pending deletes.
func (k Kind[T]) TombstoneKey(ownerID string) string {
	return k.Key(ownerID) + TombstoneSuffix
}

// EventType represents the type of change observed by a session.
type EventType string

const (
	EventCreate        EventType = "created"
	EventUpdate        EventType = "updated"
	EventDelete        EventType = "deleted"
	EventPushed        EventType = "pushed"
	EventPushFailed    EventType = "push_failed"
	EventMerged        EventType = "merged"
	EventMergeRejected EventType = "merge_rejected"
	EventResynced      EventType = "resynced"
)

// Event represents a change in a session.
type Event struct {
	Type      EventType
	OwnerID   string
	ID        string
	Err       error
	Timestamp int64 // Unix timestamp
}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e.ID == "" {
		return fmt.Sprintf("%s owner=%s", e.Type, e.OwnerID)
	}
	return fmt.Sprintf("%s owner=%s id=%s", e.Type, e.OwnerID, e.ID)
}
