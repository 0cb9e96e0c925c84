package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// The container is shared by every test in the package and torn down in TestMain.
var (
	sharedOnce      sync.Once
	sharedPool      *pgxpool.Pool
	sharedContainer *postgres.PostgresContainer
	sharedErr       error
)

func TestMain(m *testing.M) {
	code := m.Run()

	ctx := context.Background()
	if sharedPool != nil {
		sharedPool.Close()
	}
	if sharedContainer != nil {
		if err := sharedContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
		}
	}
	os.Exit(code)
}

// startDatabase connects to TEST_DATABASE_URL when it is set, and otherwise
// starts a throwaway postgres container.
func startDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, err := postgres.Run(ctx, "postgres:15-alpine",
			postgres.WithDatabase("testdb"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
		sharedContainer = container

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			return nil, fmt.Errorf("container connection string: %w", err)
		}
	}

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// newTestStore returns a Store on a migrated, empty database. The test is
// skipped when SKIP_DB_TESTS is set or no database can be reached.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("Skipping database test (SKIP_DB_TESTS is set)")
	}

	sharedOnce.Do(func() {
		sharedPool, sharedErr = startDatabase(context.Background())
	})
	if sharedErr != nil {
		t.Skipf("Skipping database test: %v", sharedErr)
	}

	truncate(t, sharedPool)
	t.Cleanup(func() { truncate(t, sharedPool) })

	return NewStore(sharedPool, nil)
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), "TRUNCATE TABLE snapshots, watches CASCADE")
	require.NoError(t, err, "failed to clean test database")
}
