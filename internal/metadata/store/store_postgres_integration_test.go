//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"tokenmeta/pkg/testutil/containers"
)

func TestPostgresContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	pgStore := NewPostgres(pg.DB)
	if err := pgStore.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	suite.Run(t, &ContractSuite{newStore: func() Backend {
		if err := pg.TruncateTables(context.Background(), "metadata_entries", "metadata_scalars", "metadata_objects"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return pgStore
	}})
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	pgStore := NewPostgres(pg.DB)
	ctx := context.Background()
	if err := pgStore.Migrate(ctx); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := pgStore.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := pgStore.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
