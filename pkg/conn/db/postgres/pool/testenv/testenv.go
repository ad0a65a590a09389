package testenv

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	kpool "github.com/opst/ripen/pkg/conn/db/postgres/pool"
	"github.com/opst/ripen/pkg/domain/schema/db/postgres"
)

// Environment variable giving DSN of the database for tests.
//
// Tests using the database are skipped when it is not set.
const ENV_TEST_DATABASE = "RIPEN_TEST_DATABASE"

// PoolBroaker gives pools for tests.
type PoolBroaker interface {
	// GetPool returns a pool.
	//
	// Tables are cleaned up before returning and after t.
	GetPool(ctx context.Context, t *testing.T) kpool.Pool
}

type pg struct {
	pool *pgxpool.Pool
}

func (p *pg) GetPool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Helper()
	t.Cleanup(func() {
		ClearTables(context.Background(), p.pool, t)
	})

	ClearTables(ctx, p.pool, t)
	return kpool.Wrap(p.pool)
}

// NewPoolBroaker connects to the database for tests, and upgrades its schema.
//
// If RIPEN_TEST_DATABASE is not set, the test is skipped.
func NewPoolBroaker(ctx context.Context, t *testing.T) PoolBroaker {
	t.Helper()

	dsn := os.Getenv(ENV_TEST_DATABASE)
	if dsn == "" {
		t.Skipf("%s is not set. skip tests using database.", ENV_TEST_DATABASE)
	}

	p, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)

	if err := postgres.New(kpool.Wrap(p), SchemaRepository()).Upgrade(ctx); err != nil {
		t.Fatal(err)
	}

	return &pg{pool: p}
}

// SchemaRepository returns the path to the schema repository of this module.
//
// RIPEN_SCHEMA overrides it.
func SchemaRepository() string {
	if s := os.Getenv("RIPEN_SCHEMA"); s != "" {
		return s
	}
	_, file, _, _ := runtime.Caller(0)
	// this file is at pkg/conn/db/postgres/pool/testenv
	root := filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "..", "..")
	return filepath.Join(root, "schema", "postgres")
}

func ClearTables(ctx context.Context, p *pgxpool.Pool, t *testing.T) {
	t.Helper()

	for _, command := range []string{
		`update "active_model" set "version_id" = null`,
		`delete from "model_version"`,
		`truncate "reading"`,
		`truncate "outcome_event"`,
	} {
		if _, err := p.Exec(ctx, command); err != nil {
			t.Errorf("fail to clean-up tables: %v", err)
		}
	}
}
