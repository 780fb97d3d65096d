package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
)

// Key-value document queries. Every Put replaces the whole document.
const (
	sqlUpsertDocument = `INSERT INTO kv_documents(key, value, updated_at) VALUES (?, ?, ?)
                                                            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	sqlSelectDocument = `SELECT value FROM kv_documents WHERE key = ?`
	sqlExistsDocument = `SELECT 1 FROM kv_documents WHERE key = ?`
	sqlDeleteDocument = `DELETE FROM kv_documents WHERE key = ?`
)

// Get returns the document stored under key, domain.ErrNotFound when absent
func (db *DB) Get(key string) ([]byte, error) {
	var value []byte
	err := db.db.QueryRow(sqlSelectDocument, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, transient("read document", err)
	}
	return value, nil
}

// Put atomically replaces the document stored under key
func (db *DB) Put(key string, value []byte) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertDocument, key, value, time.Now())
		return err
	})
}

// Exists reports whether a document is stored under key
func (db *DB) Exists(key string) (bool, error) {
	var one int
	err := db.db.QueryRow(sqlExistsDocument, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, transient("check document", err)
	}
	return true, nil
}

// Delete removes the document under key. Absent keys are fine.
func (db *DB) Delete(key string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDocument, key)
		return err
	})
}
