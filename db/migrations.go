package db

import (
	"database/sql"
)

const (
	// Follow relationships, one row per ordered pair
	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		follower_nickname TEXT NOT NULL,
		follower_domain TEXT NOT NULL COLLATE NOCASE,
		follower_actor TEXT,
		followed_nickname TEXT NOT NULL,
		followed_domain TEXT NOT NULL COLLATE NOCASE,
		is_group INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(follower_nickname, follower_domain, followed_nickname, followed_domain)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_followed ON follows(followed_nickname, followed_domain);
		CREATE INDEX IF NOT EXISTS idx_follows_follower ON follows(follower_nickname, follower_domain);
	`

	// Ledger of relationships a local user has undone
	sqlCreateUnfollowsTable = `CREATE TABLE IF NOT EXISTS unfollows (
		follower_nickname TEXT NOT NULL,
		follower_domain TEXT NOT NULL COLLATE NOCASE,
		followed_nickname TEXT NOT NULL,
		followed_domain TEXT NOT NULL COLLATE NOCASE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(follower_nickname, follower_domain, followed_nickname, followed_domain)
	)`

	// What earlier actor lookups resolved
	sqlCreateActorCacheTable = `CREATE TABLE IF NOT EXISTS actor_cache (
		actor_uri TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL COLLATE NOCASE,
		actor_type TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActorCacheIndices = `
		CREATE INDEX IF NOT EXISTS idx_actor_cache_handle ON actor_cache(username, domain);
	`

	// Post documents, stored whole
	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		owner TEXT,
		post_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_owner ON posts(owner);
	`

	sqlCreateModerationIndexTable = `CREATE TABLE IF NOT EXISTS moderation_index (
		post_id TEXT NOT NULL PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	// Whole-document key-value store (capabilities, federation tokens, catalogs)
	sqlCreateKVTable = `CREATE TABLE IF NOT EXISTS kv_documents (
		key TEXT NOT NULL PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	// Activities log table (for deduplication & debugging)
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		outcome TEXT,
		local INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
		CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC);
	`

	// Delivery queue table
	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			name string
			sql  string
		}{
			{"follows", sqlCreateFollowsTable},
			{"unfollows", sqlCreateUnfollowsTable},
			{"actor_cache", sqlCreateActorCacheTable},
			{"posts", sqlCreatePostsTable},
			{"moderation_index", sqlCreateModerationIndexTable},
			{"kv_documents", sqlCreateKVTable},
			{"activities", sqlCreateActivitiesTable},
			{"delivery_queue", sqlCreateDeliveryQueueTable},
		}
		for _, t := range tables {
			if err := db.createTableIfNotExists(tx, t.sql, t.name); err != nil {
				return err
			}
		}

		// Create indices
		indices := map[string]string{
			"follows":        sqlCreateFollowsIndices,
			"actor_cache":    sqlCreateActorCacheIndices,
			"posts":          sqlCreatePostsIndices,
			"activities":     sqlCreateActivitiesIndices,
			"delivery_queue": sqlCreateDeliveryQueueIndices,
		}
		for name, stmt := range indices {
			if _, err := tx.Exec(stmt); err != nil {
				db.log.Warnf("Failed to create %s indices: %v", name, err)
			}
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		db.log.Errorf("Error creating table %s: %v", tableName, err)
		return err
	}
	db.log.Debugf("Table %s created or already exists", tableName)
	return nil
}
