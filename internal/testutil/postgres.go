//go:build integration

// Package testutil provides the PostgreSQL container harness for integration
// tests. Build with -tags integration; unit tests never pull Docker in.
package testutil

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/database"
)

// TestDB is a migrated PostgreSQL instance backed by a throwaway container.
type TestDB struct {
	Pool *database.ConnectionPool
	URL  string

	container *postgres.PostgresContainer
}

// NewTestDB starts a container, applies every migration and returns a ready
// connection pool. The container and pool are torn down via t.Cleanup.
func NewTestDB(t *testing.T, ctx context.Context) *TestDB {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gdpr_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
				wait.ForListeningPort(nat.Port("5432/tcp")),
			).WithDeadline(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}

	if err := applyMigrations(url); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := database.NewConnectionPool(ctx, &config.DatabaseConfig{
		URL:             url,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(pool.Close)

	return &TestDB{Pool: pool, URL: url, container: container}
}

// TruncateAll resets engine and tenant tables between tests. audit_entries
// goes through TRUNCATE too, which bypasses its row-level append-only
// trigger.
func (db *TestDB) TruncateAll(t *testing.T, ctx context.Context) {
	t.Helper()
	tables := []string{
		"webhook_logs", "webhook_subscriptions", "retention_policies",
		"processing_restrictions", "gdpr_requests", "consents",
		"users", "leads", "reviews",
	}
	for _, table := range tables {
		if _, err := db.Pool.Pool().Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	if _, err := db.Pool.Pool().Exec(ctx, "TRUNCATE TABLE audit_entries"); err != nil {
		t.Fatalf("truncate audit_entries: %v", err)
	}
}

func applyMigrations(databaseURL string) error {
	m, err := migrate.New("file://"+migrationsDir(), databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// migrationsDir resolves the migrations directory relative to this source
// file so tests work from any package directory.
func migrationsDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
