package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
)

// Actor cache queries
const (
	sqlUpsertCachedActor = `INSERT INTO actor_cache(actor_uri, username, domain, actor_type, updated_at) VALUES (?, ?, ?, ?, ?)
                                                            ON CONFLICT(actor_uri) DO UPDATE SET username = excluded.username, domain = excluded.domain, actor_type = excluded.actor_type, updated_at = excluded.updated_at`
	sqlSelectCachedActorByURI    = `SELECT actor_uri, username, domain, COALESCE(actor_type, ''), updated_at FROM actor_cache WHERE actor_uri = ?`
	sqlSelectCachedActorByHandle = `SELECT actor_uri, username, domain, COALESCE(actor_type, ''), updated_at FROM actor_cache WHERE username = ? AND domain = ? ORDER BY updated_at DESC LIMIT 1`
)

// UpsertCachedActor records what a lookup resolved about a remote actor
func (db *DB) UpsertCachedActor(a *domain.CachedActor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = time.Now()
		}
		_, err := tx.Exec(sqlUpsertCachedActor, a.ActorURI, a.Username, a.Domain, a.ActorType, a.UpdatedAt)
		return err
	})
}

// ReadCachedActor looks an actor up by its URI
func (db *DB) ReadCachedActor(actorURI string) (*domain.CachedActor, error) {
	return db.scanCachedActor(db.db.QueryRow(sqlSelectCachedActorByURI, actorURI), actorURI)
}

// ReadCachedActorByHandle looks an actor up by username and domain
func (db *DB) ReadCachedActorByHandle(username, domainName string) (*domain.CachedActor, error) {
	return db.scanCachedActor(db.db.QueryRow(sqlSelectCachedActorByHandle, username, domainName), username+"@"+domainName)
}

func (db *DB) scanCachedActor(row *sql.Row, key string) (*domain.CachedActor, error) {
	var a domain.CachedActor
	err := row.Scan(&a.ActorURI, &a.Username, &a.Domain, &a.ActorType, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("actor %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, transient("read cached actor", err)
	}
	return &a, nil
}
