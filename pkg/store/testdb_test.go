package store_test

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/analystcopilot/core/pkg/store"
)

// Shared PostgreSQL testcontainer for every test in this package. Started
// once on first use and left running for the process lifetime; individual
// tests get isolation from a freshly created database per test instead of
// a fresh container, since store.NewClient already owns migrations.
var (
	sharedHost string
	sharedPort int
	sharedUser = "test"
	sharedPass = "test"

	containerOnce sync.Once
	containerErr  error
)

// newTestStore starts (or reuses) the shared container, creates a
// dedicated database for this test, runs store.NewClient against it
// (which applies embedded migrations), and registers cleanup that drops
// the database and closes the client.
func newTestStore(t *testing.T) *store.Client {
	t.Helper()
	ctx := context.Background()

	host, port := getOrCreateSharedContainer(t)

	admin, err := stdsql.Open("pgx", fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable",
		host, port, sharedUser, sharedPass))
	require.NoError(t, err)
	defer admin.Close()

	dbName := generateDatabaseName(t)
	_, err = admin.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %s`, dbName))
	require.NoError(t, err, "creating per-test database")

	cfg := store.Config{
		Host:         host,
		Port:         port,
		User:         sharedUser,
		Password:     sharedPass,
		Database:     dbName,
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}
	client, err := store.NewClient(ctx, cfg)
	require.NoError(t, err, "connecting to per-test database and applying migrations")

	t.Cleanup(func() {
		_ = client.Close()
		dropCtx := context.Background()
		admin2, err := stdsql.Open("pgx", fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable",
			host, port, sharedUser, sharedPass))
		if err != nil {
			t.Logf("warning: could not reopen admin connection to drop %s: %v", dbName, err)
			return
		}
		defer admin2.Close()
		if _, err := admin2.ExecContext(dropCtx, fmt.Sprintf(`DROP DATABASE IF EXISTS %s WITH (FORCE)`, dbName)); err != nil {
			t.Logf("warning: failed to drop database %s: %v", dbName, err)
		}
	})

	return client
}

// getOrCreateSharedContainer returns the host/port of the shared Postgres
// container, starting it on first call. Honors CI_DATABASE_HOST/CI_DATABASE_PORT
// so CI can point at a service container instead of paying testcontainers'
// startup cost.
func getOrCreateSharedContainer(t *testing.T) (string, int) {
	if ciHost := os.Getenv("CI_DATABASE_HOST"); ciHost != "" {
		var port int
		_, _ = fmt.Sscanf(os.Getenv("CI_DATABASE_PORT"), "%d", &port)
		if port == 0 {
			port = 5432
		}
		return ciHost, port
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername(sharedUser),
			postgres.WithPassword(sharedPass),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("starting postgres container: %w", err)
			return
		}

		host, err := pgContainer.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("resolving container host: %w", err)
			return
		}
		mapped, err := pgContainer.MappedPort(ctx, "5432/tcp")
		if err != nil {
			containerErr = fmt.Errorf("resolving mapped port: %w", err)
			return
		}

		sharedHost = host
		sharedPort = mapped.Int()
	})

	require.NoError(t, containerErr, "failed to start shared postgres container")
	return sharedHost, sharedPort
}

// generateDatabaseName builds a unique, Postgres-safe identifier for this
// test's private database.
func generateDatabaseName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)
	return fmt.Sprintf("testdb_%s_%s", name, hex.EncodeToString(suffix))
}
