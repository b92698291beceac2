// Package casesync is the composition root of a local-first sync engine for
// case notes and tasks.
//
// Every write lands in a durable Local Store before the call returns; the
// matching remote call runs in the background and a failed push only leaves
// the entity pending until the next ResyncAll. On activation the engine merges
// the remote snapshot into the local collection: the remote wins for ids it
// knows, local pending entities it does not know are kept.
//
// Local Stores: filesystem (default), BadgerDB, SQLite and memory. The remote
// is reached over HTTP (see pkg/adapters/rest); pkg/remote is an in-memory
// server for the same surface.
//
// Usage:
//
//	rt, err := casesync.OpenTasks("./data",
//		casesync.WithAdapter("sqlite"),
//		casesync.WithRemote("https://api.example.com"),
//		casesync.WithLogger(logger),
//	)
//	defer rt.Close()
//
//	s, err := rt.Activate(ctx, "case-42")
//	task, err := s.Create(ctx, casesync.Task{Title: "Call the school", DueDate: "2025-01-10"})
//	report, err := s.ResyncAll(ctx)
package casesync
