package casesync_test

import (
	"context"
	"fmt"

	"github.com/aretw0/casesync"
)

func ExampleOpenTasks() {
	rt, err := casesync.OpenTasks("", casesync.WithAdapter("memory"))
	if err != nil {
		panic(err)
	}
	defer rt.Close()

	ctx := context.Background()
	s, err := rt.Activate(ctx, "case-42")
	if err != nil {
		panic(err)
	}
	<-s.Refreshed()

	task, err := s.Create(ctx, casesync.Task{Title: "Call the school", DueDate: "2025-01-10"})
	if err != nil {
		panic(err)
	}

	// No remote configured: the task is stored and stays pending.
	fmt.Println(task.Data.Title, task.Synced)
	fmt.Println("unsynced:", s.Stats().Unsynced)
	// Output:
	// Call the school false
	// unsynced: 1
}
