package engine

import (
	"encoding/json"
	"fmt"
)

// Patch mutates a copy of an entity payload during Update.
type Patch[T any] func(*T) error

// MergeJSON builds a Patch from a JSON object. Fields present in raw
// overwrite the payload; absent fields are kept.
func MergeJSON[T any](raw []byte) Patch[T] {
	return func(data *T) error {
		if err := json.Unmarshal(raw, data); err != nil {
			return fmt.Errorf("invalid patch: %w", err)
		}
		return nil
	}
}

// Set builds a Patch from a plain function.
func Set[T any](fn func(*T)) Patch[T] {
	return func(data *T) error {
		fn(data)
		return nil
	}
}
