package activitypub

import (
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/google/uuid"
)

// KVStore holds whole JSON documents. Get returns domain.ErrNotFound for
// absent keys and Put replaces a document atomically.
type KVStore interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Exists(key string) (bool, error)
	Delete(key string) error
}

// FollowStore persists follow relationships, the unfollow ledger and the actor cache
type FollowStore interface {
	CreateFollow(f *domain.Follow) (bool, error)
	DeleteFollow(f *domain.Follow) (bool, error)
	ReadFollowers(nickname, domainName string) ([]domain.Follow, error)
	HasUnfollowed(f *domain.Follow) (bool, error)
	RecordUnfollow(f *domain.Follow) error
	ClearUnfollow(f *domain.Follow) error
	ReadCachedActor(actorURI string) (*domain.CachedActor, error)
	ReadCachedActorByHandle(username, domainName string) (*domain.CachedActor, error)
	UpsertCachedActor(a *domain.CachedActor) error
}

// PostStore loads, saves and deletes post documents and keeps the moderation index
type PostStore interface {
	ReadPost(id string) (*domain.Post, error)
	SavePost(p *domain.Post) error
	DeletePost(id string) (bool, error)
	AddModerationEntry(postID string) error
	RemoveModerationEntry(postID string) error
}

// ActivityLog records processed activities once per activity id
type ActivityLog interface {
	RecordActivity(a *domain.ActivityRecord) (bool, error)
	UpdateActivityOutcome(activityURI, outcome string) error
	ReadActivityByURI(uri string) (*domain.ActivityRecord, error)
}

// DeliveryQueue stores outbound activities until they are delivered
type DeliveryQueue interface {
	EnqueueDelivery(item *domain.DeliveryQueueItem) error
	ReadPendingDeliveries(limit int) ([]domain.DeliveryQueueItem, error)
	UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(id uuid.UUID) error
}
