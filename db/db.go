package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) the sqlite database at path and runs migrations.
// ":memory:" gives a private in-memory database, used by tests.
func Open(path string) (*DB, error) {
	log := logging.Component("db")

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		// Configure connection pool for concurrent access
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)

		var journalMode string
		err = sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Warnf("Failed to enable WAL mode: %v", err)
		} else {
			log.Infof("Database journal mode: %s", journalMode)
		}
	}

	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")

	d := &DB{db: sqlDB, log: log}
	if err := d.RunMigrations(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying connection pool
func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction.
// The callback must only use tx; with a single connection a query on
// db.db inside f would wait forever.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		db.log.Warnf("error starting transaction: %s", err)
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	err = retryBusy(func() error { return f(tx) })
	if err != nil {
		tx.Rollback()
		if !isDomainError(err) {
			db.log.Warnf("error in transaction: %s", err)
			return fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
		return err
	}
	err = tx.Commit()
	if err != nil {
		db.log.Warnf("error committing transaction: %s", err)
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return nil
}

const (
	maxBusyRetries = 10
	busyBackoff    = 10 * time.Millisecond
)

// retryBusy reruns f while sqlite reports the database as busy, up to
// maxBusyRetries attempts with a growing pause between them.
func retryBusy(f func() error) error {
	var err error
	for attempt := 1; attempt <= maxBusyRetries; attempt++ {
		err = f()
		if !isBusy(err) {
			return err
		}
		if attempt < maxBusyRetries {
			time.Sleep(time.Duration(attempt) * busyBackoff)
		}
	}
	return fmt.Errorf("%w: database still busy after %d attempts: %v", domain.ErrTransient, maxBusyRetries, err)
}

// isBusy reports whether err is sqlite's SQLITE_BUSY. *sqlite.Error carries
// the result code.
func isBusy(err error) bool {
	var coded interface{ Code() int }
	return errors.As(err, &coded) && coded.Code() == sqlitelib.SQLITE_BUSY
}
