// Package dbtest starts disposable Postgres containers for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"ms-perfiles/internal/config"
	"ms-perfiles/internal/database"
	"ms-perfiles/internal/logger"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "perfil"
	postgresPassword = "perfil"
	postgresDB       = "perfil"
)

// StartPostgres runs a Postgres container for the duration of t and returns a
// pooled bun handle to it. The test is skipped in short mode or when no
// container runtime is reachable.
func StartPostgres(t *testing.T) *bun.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			// the server restarts once after init, so the line appears twice
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		postgresUser, postgresPassword, net.JoinHostPort(host, port.Port()), postgresDB)

	bunDB, err := database.Open(ctx, config.DatabaseConfig{
		Driver:       config.DriverPostgres,
		MaxOpenConns: 20,
		MaxIdleConns: 20,
	}, dsn, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to connect to Postgres container: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}
