package main

import (
	"context"
	"testing"

	"github.com/alim08/tradesite/pkg/database"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(ctx, database.NewConfig(database.DriverSQLite, ":memory:"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	for _, cmd := range []string{"up", "status", "down", "up"} {
		if err := run(ctx, db, cmd); err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
	}
	status, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n := database.Pending(status); n != 0 {
		t.Fatalf("pending = %d after up", n)
	}

	if err := run(ctx, db, "sideways"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}
