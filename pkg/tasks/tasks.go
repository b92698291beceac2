// Package tasks defines the Task entity kind: case tasks ordered by due date,
// with status, priority and type facets and an "overdue" mark.
package tasks

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
)

// Status values.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Priority values.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// MarkOverdue is set on open tasks whose due date has passed.
const MarkOverdue = "overdue"

// Task is the payload of a case task. DueDate is a calendar date (YYYY-MM-DD).
type Task struct {
	Title       string `json:"title" yaml:"title" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=pending in_progress completed"`
	TaskType    string `json:"task_type,omitempty" yaml:"task_type,omitempty"`
	DueDate     string `json:"due_date,omitempty" yaml:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AssignedTo  string `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
}

// EffectiveStatus treats a missing status as pending.
func (t Task) EffectiveStatus() string {
	if t.Status == "" {
		return StatusPending
	}
	return t.Status
}

// IsOverdue reports whether the task is due before today and not completed.
func (t Task) IsOverdue(now time.Time) bool {
	if t.DueDate == "" || t.EffectiveStatus() == StatusCompleted {
		return false
	}
	return t.DueDate < now.Format(time.DateOnly)
}

// Entity is a Task with its sync envelope.
type Entity = core.Entity[Task]

var validate = validator.New()

// Kind is the Task kind: id prefix "task", resource "tasks", earliest due
// date first and undated tasks last.
var Kind = core.Kind[Task]{
	Name:     "task",
	Resource: "tasks",
	Less: func(a, b Entity) bool {
		da, db := a.Data.DueDate, b.Data.DueDate
		switch {
		case da == db:
			return false
		case da == "":
			return false
		case db == "":
			return true
		}
		return da < db
	},
	Facets: func(t Task) map[string]string {
		return map[string]string{
			"status":   t.EffectiveStatus(),
			"priority": t.Priority,
			"type":     t.TaskType,
		}
	},
	Marks: func(e Entity, now time.Time) []string {
		if e.Data.IsOverdue(now) {
			return []string{MarkOverdue}
		}
		return nil
	},
	Validate: func(t Task) error {
		return validate.Struct(t)
	},
}

// NewEngine builds a Task engine.
func NewEngine(store core.Store, gateway core.Gateway[Task], opts ...engine.Option) *engine.Engine[Task] {
	return engine.New(Kind, store, gateway, opts...)
}

// StatusIs selects tasks by effective status.
func StatusIs(status string) engine.Criterion[Task] {
	return engine.FacetIs(Kind, "status", status)
}

// PriorityIs selects tasks of one priority.
func PriorityIs(priority string) engine.Criterion[Task] {
	return engine.FacetIs(Kind, "priority", priority)
}

// TypeIs selects tasks of one task_type.
func TypeIs(taskType string) engine.Criterion[Task] {
	return engine.FacetIs(Kind, "type", taskType)
}

// Overdue selects tasks due before today that are not completed.
func Overdue() engine.Criterion[Task] {
	return engine.Marked(Kind, MarkOverdue)
}
