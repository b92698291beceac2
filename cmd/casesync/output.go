package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
)

// render writes v as JSON or YAML. It reports false for the text format.
func render(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so entities keep their flat field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(doc)
	case "", "text":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func syncMark(synced bool) string {
	if synced {
		return "synced"
	}
	return "pending"
}

// printEntities writes one line per entity: id, sync state and facets.
func printEntities[T any](w io.Writer, kind core.Kind[T], items []core.Entity[T]) {
	for _, e := range items {
		var facets []string
		if kind.Facets != nil {
			for name, value := range kind.Facets(e.Data) {
				if value != "" {
					facets = append(facets, name+"="+value)
				}
			}
		}
		sort.Strings(facets)
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, syncMark(e.Synced), strings.Join(facets, " "))
	}
}

func printStats(w io.Writer, st engine.Stats) {
	fmt.Fprintf(w, "total: %d\nunsynced: %d\n", st.Total, st.Unsynced)

	facets := make([]string, 0, len(st.Facets))
	for name := range st.Facets {
		facets = append(facets, name)
	}
	sort.Strings(facets)
	for _, name := range facets {
		values := make([]string, 0, len(st.Facets[name]))
		for value, n := range st.Facets[name] {
			values = append(values, fmt.Sprintf("%s=%d", value, n))
		}
		sort.Strings(values)
		fmt.Fprintf(w, "%s: %s\n", name, strings.Join(values, " "))
	}
	for mark, n := range st.Marks {
		fmt.Fprintf(w, "%s: %d\n", mark, n)
	}
}

func output(format string, v any, text func(io.Writer)) {
	handled, err := render(os.Stdout, format, v)
	if err != nil {
		fatal("Error writing output", err)
	}
	if !handled {
		text(os.Stdout)
	}
}
