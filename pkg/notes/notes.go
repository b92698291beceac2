// Package notes defines the Note entity kind: free-text case notes ordered
// newest first.
package notes

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
)

// Note is the payload of a case note.
type Note struct {
	NoteType  string `json:"note_type,omitempty" yaml:"note_type,omitempty"`
	Content   string `json:"content" yaml:"content" validate:"required"`
	CreatedBy string `json:"created_by,omitempty" yaml:"created_by,omitempty"`
}

// Entity is a Note with its sync envelope.
type Entity = core.Entity[Note]

var validate = validator.New()

// Kind is the Note kind: id prefix "note", resource "notes", newest first.
var Kind = core.Kind[Note]{
	Name:     "note",
	Resource: "notes",
	Less: func(a, b Entity) bool {
		return a.CreatedAt.After(b.CreatedAt)
	},
	Facets: func(n Note) map[string]string {
		return map[string]string{"type": n.NoteType}
	},
	Validate: func(n Note) error {
		return validate.Struct(n)
	},
}

// NewEngine builds a Note engine.
func NewEngine(store core.Store, gateway core.Gateway[Note], opts ...engine.Option) *engine.Engine[Note] {
	return engine.New(Kind, store, gateway, opts...)
}

// TypeIs selects notes of one note_type.
func TypeIs(noteType string) engine.Criterion[Note] {
	return engine.FacetIs(Kind, "type", noteType)
}

// CreatedBy selects notes written by author.
func CreatedBy(author string) engine.Criterion[Note] {
	return func(e Entity, _ time.Time) bool {
		return e.Data.CreatedBy == author
	}
}
