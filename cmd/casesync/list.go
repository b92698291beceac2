package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
	"github.com/aretw0/casesync/pkg/notes"
	"github.com/aretw0/casesync/pkg/tasks"
)

var (
	listPending  bool
	listStatus   string
	listPriority string
	listType     string
	listOverdue  bool
	listOutput   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's notes or tasks",
	Long:  `List prints the merged collection in kind order (notes newest first, tasks by due date).`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		owner := requireOwner()
		dispatch(
			func() error { return runList(notes.Kind, owner) },
			func() error { return runList(tasks.Kind, owner) },
		)
	},
}

// listCriteria turns the list flags into view criteria. Facets a kind does
// not have simply match nothing.
func listCriteria[T any](kind core.Kind[T]) []engine.Criterion[T] {
	var criteria []engine.Criterion[T]
	if listPending {
		criteria = append(criteria, engine.Pending[T]())
	}
	if listStatus != "" {
		criteria = append(criteria, engine.FacetIs(kind, "status", listStatus))
	}
	if listPriority != "" {
		criteria = append(criteria, engine.FacetIs(kind, "priority", listPriority))
	}
	if listType != "" {
		criteria = append(criteria, engine.FacetIs(kind, "type", listType))
	}
	if listOverdue {
		criteria = append(criteria, engine.Marked(kind, tasks.MarkOverdue))
	}
	return criteria
}

func runList[T any](kind core.Kind[T], owner string) error {
	return withSession(kind, owner, func(ctx context.Context, s *engine.Session[T]) error {
		items := s.Filter(listCriteria(kind)...)
		output(listOutput, items, func(w io.Writer) {
			printEntities(w, kind, items)
		})
		return nil
	})
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listPending, "pending", false, "only entities not yet synced")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (tasks)")
	listCmd.Flags().StringVar(&listPriority, "priority", "", "filter by priority (tasks)")
	listCmd.Flags().StringVar(&listType, "type", "", "filter by note_type / task_type")
	listCmd.Flags().BoolVar(&listOverdue, "overdue", false, "only overdue tasks")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "output format: text, json or yaml")
}
