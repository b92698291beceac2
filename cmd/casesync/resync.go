package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
	"github.com/aretw0/casesync/pkg/notes"
	"github.com/aretw0/casesync/pkg/tasks"
)

var resyncOutput string

// resyncCmd represents the resync command
var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Push every pending entity to the remote",
	Long: `Resync retries every entity still marked pending, one push at a time,
and retries remote deletes that failed. --owner accepts a glob
(e.g. 'case-*' or '*') matched against the owners found in the local store.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		pattern := requireOwner()
		if !doublestar.ValidatePattern(pattern) {
			fatal("Invalid owner pattern", fmt.Errorf("%q", pattern))
		}
		dispatch(
			func() error { return runResync(notes.Kind, pattern) },
			func() error { return runResync(tasks.Kind, pattern) },
		)
	},
}

type ownerReport struct {
	Owner  string              `json:"owner" yaml:"owner"`
	Report engine.ResyncReport `json:"report" yaml:"report"`
	Error  string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// matchOwners filters owners with a doublestar pattern.
func matchOwners(pattern string, owners []string) []string {
	var out []string
	for _, o := range owners {
		if ok, _ := doublestar.Match(pattern, o); ok {
			out = append(out, o)
		}
	}
	return out
}

func runResync[T any](kind core.Kind[T], pattern string) error {
	if viper.GetString("remote") == "" {
		slog.Warn("no remote configured; every push will fail and entities stay pending")
	}

	rt, err := openRuntime(kind)
	if err != nil {
		return err
	}
	stored, err := rt.StoredOwners(context.Background())
	rt.Close()
	if err != nil {
		return fmt.Errorf("list stored owners: %w", err)
	}

	owners := matchOwners(pattern, stored)
	if len(owners) == 0 && !strings.ContainsAny(pattern, "*?[{") {
		owners = []string{pattern}
	}

	var reports []ownerReport
	for _, owner := range owners {
		r := ownerReport{Owner: owner}
		err := withSession(kind, owner, func(ctx context.Context, s *engine.Session[T]) error {
			report, err := s.ResyncAll(ctx)
			r.Report = report
			return err
		})
		if err != nil {
			r.Error = err.Error()
		}
		reports = append(reports, r)
	}

	output(resyncOutput, reports, func(w io.Writer) {
		for _, r := range reports {
			fmt.Fprintf(w, "%s\tattempted=%d synced=%d failed=%d deleted=%d",
				r.Owner, r.Report.Attempted, r.Report.Synced, r.Report.Failed, r.Report.Deleted)
			if r.Error != "" {
				fmt.Fprintf(w, "\terror=%s", r.Error)
			}
			fmt.Fprintln(w)
		}
	})
	return nil
}

func init() {
	rootCmd.AddCommand(resyncCmd)
	resyncCmd.Flags().StringVarP(&resyncOutput, "output", "o", "text", "output format: text, json or yaml")
}
