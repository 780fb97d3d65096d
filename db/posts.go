package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
)

// Post queries
const (
	sqlUpsertPost = `INSERT INTO posts(id, owner, post_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
                                                            ON CONFLICT(id) DO UPDATE SET post_json = excluded.post_json, updated_at = excluded.updated_at`
	sqlSelectPost         = `SELECT post_json FROM posts WHERE id = ?`
	sqlSelectPostsByOwner = `SELECT post_json FROM posts WHERE owner = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlDeletePost         = `DELETE FROM posts WHERE id = ?`

	sqlInsertModerationEntry = `INSERT OR IGNORE INTO moderation_index(post_id, created_at) VALUES (?, ?)`
	sqlDeleteModerationEntry = `DELETE FROM moderation_index WHERE post_id = ?`
	sqlSelectModerationEntry = `SELECT 1 FROM moderation_index WHERE post_id = ?`
)

// SavePost stores the whole post document, replacing any previous version
func (db *DB) SavePost(p *domain.Post) error {
	if p.ID == "" {
		return fmt.Errorf("%w: post has no id", domain.ErrMalformed)
	}
	buf, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: failed to encode post: %v", domain.ErrMalformed, err)
	}

	owner := ""
	if ref, err := domain.ParseActor(p.AttributedTo); err == nil {
		owner = ref.Handle()
	}

	now := time.Now()
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertPost, p.ID, owner, string(buf), now, now)
		return err
	})
}

// ReadPost loads a post document, domain.ErrNotFound when absent
func (db *DB) ReadPost(id string) (*domain.Post, error) {
	var raw string
	err := db.db.QueryRow(sqlSelectPost, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, transient("read post", err)
	}
	var p domain.Post
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: stored post %s is corrupt: %v", domain.ErrTransient, id, err)
	}
	return &p, nil
}

// ReadPostsByOwner returns a page of the newest posts of nickname@domain
func (db *DB) ReadPostsByOwner(handle string, limit, offset int) ([]domain.Post, error) {
	rows, err := db.db.Query(sqlSelectPostsByOwner, handle, limit, offset)
	if err != nil {
		return nil, transient("query posts", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return posts, transient("scan post", err)
		}
		var p domain.Post
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			db.log.Warnf("Skipping corrupt post for %s: %v", handle, err)
			continue
		}
		posts = append(posts, p)
	}
	if err = rows.Err(); err != nil {
		return posts, transient("iterate posts", err)
	}
	return posts, nil
}

// DeletePost removes the post document, reporting whether it existed
func (db *DB) DeletePost(id string) (bool, error) {
	removed := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeletePost, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// AddModerationEntry lists the post in the moderation index
func (db *DB) AddModerationEntry(postID string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertModerationEntry, postID, time.Now())
		return err
	})
}

// RemoveModerationEntry drops the post from the moderation index. Absent entries are fine.
func (db *DB) RemoveModerationEntry(postID string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteModerationEntry, postID)
		return err
	})
}

// HasModerationEntry reports whether the post is in the moderation index
func (db *DB) HasModerationEntry(postID string) (bool, error) {
	var one int
	err := db.db.QueryRow(sqlSelectModerationEntry, postID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, transient("read moderation index", err)
	}
	return true, nil
}
