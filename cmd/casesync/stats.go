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

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts by status, priority and type, and the unsynced badge",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		owner := requireOwner()
		dispatch(
			func() error { return runStats(notes.Kind, owner) },
			func() error { return runStats(tasks.Kind, owner) },
		)
	},
}

func runStats[T any](kind core.Kind[T], owner string) error {
	return withSession(kind, owner, func(ctx context.Context, s *engine.Session[T]) error {
		st := s.Stats()
		output(statsOutput, st, func(w io.Writer) { printStats(w, st) })
		return nil
	})
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "text", "output format: text, json or yaml")
}
