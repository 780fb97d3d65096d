package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/google/uuid"
)

// Follow queries
const (
	sqlInsertFollow = `INSERT OR IGNORE INTO follows(id, follower_nickname, follower_domain, follower_actor, followed_nickname, followed_domain, is_group, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlDeleteFollow = `DELETE FROM follows WHERE follower_nickname = ? AND follower_domain = ? AND followed_nickname = ? AND followed_domain = ?`
	sqlSelectFollow = `SELECT follower_nickname, follower_domain, COALESCE(follower_actor, ''), followed_nickname, followed_domain, is_group, created_at FROM follows
                                                            WHERE follower_nickname = ? AND follower_domain = ? AND followed_nickname = ? AND followed_domain = ?`
	sqlSelectFollowers = `SELECT follower_nickname, follower_domain, COALESCE(follower_actor, ''), followed_nickname, followed_domain, is_group, created_at FROM follows
                                                            WHERE followed_nickname = ? AND followed_domain = ?
                                                            ORDER BY created_at ASC`
	sqlSelectFollowing = `SELECT follower_nickname, follower_domain, COALESCE(follower_actor, ''), followed_nickname, followed_domain, is_group, created_at FROM follows
                                                            WHERE follower_nickname = ? AND follower_domain = ?
                                                            ORDER BY created_at ASC`

	sqlInsertUnfollow = `INSERT OR IGNORE INTO unfollows(follower_nickname, follower_domain, followed_nickname, followed_domain, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectUnfollow = `SELECT 1 FROM unfollows WHERE follower_nickname = ? AND follower_domain = ? AND followed_nickname = ? AND followed_domain = ?`
	sqlDeleteUnfollow = `DELETE FROM unfollows WHERE follower_nickname = ? AND follower_domain = ? AND followed_nickname = ? AND followed_domain = ?`
)

func pairArgs(f *domain.Follow) []any {
	return []any{f.FollowerNickname, f.FollowerDomain, f.FollowedNickname, f.FollowedDomain}
}

// CreateFollow persists the relationship. An existing row for the same
// ordered pair is left untouched and reported as created=false.
func (db *DB) CreateFollow(f *domain.Follow) (bool, error) {
	created := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		res, err := tx.Exec(sqlInsertFollow,
			uuid.New().String(),
			f.FollowerNickname,
			f.FollowerDomain,
			f.FollowerActor,
			f.FollowedNickname,
			f.FollowedDomain,
			f.IsGroup,
			f.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	})
	return created, err
}

// DeleteFollow removes the relationship, reporting whether a row existed
func (db *DB) DeleteFollow(f *domain.Follow) (bool, error) {
	removed := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteFollow, pairArgs(f)...)
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

// ReadFollow loads one relationship, domain.ErrNotFound when absent
func (db *DB) ReadFollow(f *domain.Follow) (*domain.Follow, error) {
	row := db.db.QueryRow(sqlSelectFollow, pairArgs(f)...)
	var out domain.Follow
	err := row.Scan(&out.FollowerNickname, &out.FollowerDomain, &out.FollowerActor, &out.FollowedNickname, &out.FollowedDomain, &out.IsGroup, &out.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("follow %s -> %s: %w", f.FollowerHandle(), f.FollowedHandle(), domain.ErrNotFound)
	}
	if err != nil {
		return nil, transient("read follow", err)
	}
	return &out, nil
}

// ReadFollowers returns everyone following nickname@domain
func (db *DB) ReadFollowers(nickname, domainName string) ([]domain.Follow, error) {
	return db.queryFollows(sqlSelectFollowers, nickname, domainName)
}

// ReadFollowing returns everyone nickname@domain follows
func (db *DB) ReadFollowing(nickname, domainName string) ([]domain.Follow, error) {
	return db.queryFollows(sqlSelectFollowing, nickname, domainName)
}

func (db *DB) queryFollows(query string, args ...any) ([]domain.Follow, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, transient("query follows", err)
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		var f domain.Follow
		if err := rows.Scan(&f.FollowerNickname, &f.FollowerDomain, &f.FollowerActor, &f.FollowedNickname, &f.FollowedDomain, &f.IsGroup, &f.CreatedAt); err != nil {
			return follows, transient("scan follow", err)
		}
		follows = append(follows, f)
	}
	if err = rows.Err(); err != nil {
		return follows, transient("iterate follows", err)
	}
	return follows, nil
}

// RecordUnfollow writes the pair into the unfollow ledger
func (db *DB) RecordUnfollow(f *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertUnfollow, append(pairArgs(f), time.Now())...)
		return err
	})
}

// HasUnfollowed reports whether the pair is in the unfollow ledger
func (db *DB) HasUnfollowed(f *domain.Follow) (bool, error) {
	var one int
	err := db.db.QueryRow(sqlSelectUnfollow, pairArgs(f)...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, transient("read unfollow ledger", err)
	}
	return true, nil
}

// ClearUnfollow drops the pair from the unfollow ledger
func (db *DB) ClearUnfollow(f *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteUnfollow, pairArgs(f)...)
		return err
	})
}
