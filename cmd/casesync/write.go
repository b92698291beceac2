package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
	"github.com/aretw0/casesync/pkg/notes"
	"github.com/aretw0/casesync/pkg/tasks"
)

var (
	writeData   string
	writeOutput string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a note or task",
	Long: `Add stores a new entity locally and pushes it in the background.
The payload is a JSON object, e.g. --data '{"title":"Call the school","due_date":"2025-01-10"}'.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		owner := requireOwner()
		dispatch(
			func() error { return runAdd(notes.Kind, owner) },
			func() error { return runAdd(tasks.Kind, owner) },
		)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Patch a note or task",
	Long:  `Update merges the JSON object given with --data into the entity; fields not present are kept.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner := requireOwner()
		dispatch(
			func() error { return runUpdate(notes.Kind, owner, args[0]) },
			func() error { return runUpdate(tasks.Kind, owner, args[0]) },
		)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a note or task",
	Long:  `Delete removes the entity locally at once; the remote delete is best effort.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner := requireOwner()
		dispatch(
			func() error { return runDelete(notes.Kind, owner, args[0]) },
			func() error { return runDelete(tasks.Kind, owner, args[0]) },
		)
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one note or task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner := requireOwner()
		dispatch(
			func() error { return runGet(notes.Kind, owner, args[0]) },
			func() error { return runGet(tasks.Kind, owner, args[0]) },
		)
	},
}

func requireData() []byte {
	if writeData == "" {
		fatal("Missing payload", fmt.Errorf("--data is required"))
	}
	return []byte(writeData)
}

func printEntity[T any](e core.Entity[T]) {
	format := writeOutput
	if format == "" || format == "text" {
		format = "json"
	}
	output(format, e, func(io.Writer) {})
}

func runAdd[T any](kind core.Kind[T], owner string) error {
	var payload T
	if err := json.Unmarshal(requireData(), &payload); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}
	return withSession(kind, owner, func(ctx context.Context, s *engine.Session[T]) error {
		e, err := s.Create(ctx, payload)
		if err != nil {
			return err
		}
		printEntity(e)
		return nil
	})
}

func runUpdate[T any](kind core.Kind[T], owner, id string) error {
	patch := engine.MergeJSON[T](requireData())
	return withSession(kind, owner, func(ctx context.Context, s *engine.Session[T]) error {
		e, err := s.Update(ctx, id, patch)
		if err != nil {
			return err
		}
		printEntity(e)
		return nil
	})
}

func runDelete[T any](kind core.Kind[T], owner, id string) error {
	return withSession(kind, owner, func(ctx context.Context, s *engine.Session[T]) error {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", id)
		return nil
	})
}

func runGet[T any](kind core.Kind[T], owner, id string) error {
	return withSession(kind, owner, func(ctx context.Context, s *engine.Session[T]) error {
		e, err := s.Get(id)
		if err != nil {
			return err
		}
		printEntity(e)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(addCmd, updateCmd, deleteCmd, getCmd)
	for _, c := range []*cobra.Command{addCmd, updateCmd} {
		c.Flags().StringVarP(&writeData, "data", "d", "", "JSON payload")
	}
	for _, c := range []*cobra.Command{addCmd, updateCmd, getCmd} {
		c.Flags().StringVarP(&writeOutput, "output", "o", "json", "output format: json or yaml")
	}
}
