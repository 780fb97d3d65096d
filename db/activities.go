package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/google/uuid"
)

// Activity queries
const (
	sqlInsertActivity      = `INSERT OR IGNORE INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, outcome, local, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateOutcome       = `UPDATE activities SET outcome = ? WHERE activity_uri = ?`
	sqlSelectActivityByURI = `SELECT id, activity_uri, activity_type, actor_uri, COALESCE(object_uri, ''), raw_json, COALESCE(outcome, ''), local, created_at FROM activities WHERE activity_uri = ?`
)

// RecordActivity logs the activity once. A replayed activity uri returns
// recorded=false and leaves the first record in place.
func (db *DB) RecordActivity(a *domain.ActivityRecord) (bool, error) {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	recorded := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertActivity,
			a.Id.String(),
			a.ActivityURI,
			a.ActivityType,
			a.ActorURI,
			a.ObjectURI,
			a.RawJSON,
			a.Outcome,
			a.Local,
			a.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		recorded = n > 0
		return nil
	})
	return recorded, err
}

// UpdateActivityOutcome stores how processing of the activity ended
func (db *DB) UpdateActivityOutcome(activityURI, outcome string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateOutcome, outcome, activityURI)
		return err
	})
}

// ReadActivityByURI loads a logged activity, domain.ErrNotFound when absent
func (db *DB) ReadActivityByURI(uri string) (*domain.ActivityRecord, error) {
	row := db.db.QueryRow(sqlSelectActivityByURI, uri)
	var a domain.ActivityRecord
	var idStr string
	err := row.Scan(&idStr, &a.ActivityURI, &a.ActivityType, &a.ActorURI, &a.ObjectURI, &a.RawJSON, &a.Outcome, &a.Local, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("activity %s: %w", uri, domain.ErrNotFound)
	}
	if err != nil {
		return nil, transient("read activity", err)
	}
	a.Id, _ = uuid.Parse(idStr)
	return &a, nil
}
