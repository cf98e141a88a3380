// path: database/sql.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"civicpulse/logging"
)

// sqlDrivers maps REPORT_BACKEND values to registered database/sql drivers.
var sqlDrivers = map[string]string{
	"postgres": "postgres",
	"sqlite":   "sqlite",
}

// OpenSQL opens and pings a SQL database for the given backend.
func OpenSQL(ctx context.Context, backend, dsn string) (*sql.DB, error) {
	driver, ok := sqlDrivers[backend]
	if !ok {
		return nil, fmt.Errorf("unsupported sql backend %q", backend)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}
	if backend == "sqlite" {
		// One writer at a time; sqlite returns SQLITE_BUSY otherwise.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", backend, err)
	}
	logging.New("database").Info("sql connected", "backend", backend, "dsn", redactURI(dsn))
	return db, nil
}
