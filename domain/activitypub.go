package domain

import (
	"github.com/google/uuid"
	"time"
)

// CachedActor is what earlier lookups resolved about a remote actor
type CachedActor struct {
	Username  string
	Domain    string
	ActorURI  string
	ActorType string // Person, Group, Service, ...
	UpdatedAt time.Time
}

// Follow is one follow relationship, follower -> followed
type Follow struct {
	FollowerNickname string
	FollowerDomain   string // domain[:port]
	FollowerActor    string // resolved actor URL, may be empty
	FollowedNickname string
	FollowedDomain   string // domain[:port]
	IsGroup          bool
	CreatedAt        time.Time
}

// FollowerHandle returns nick@domain of the follower
func (f *Follow) FollowerHandle() string {
	return f.FollowerNickname + "@" + f.FollowerDomain
}

// FollowedHandle returns nick@domain of the followed actor
func (f *Follow) FollowedHandle() string {
	return f.FollowedNickname + "@" + f.FollowedDomain
}

// ActivityRecord is the processed-activity log entry (for deduplication & debugging)
type ActivityRecord struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Outcome      string
	Local        bool // true if originated from this server
	CreatedAt    time.Time
}

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string // The complete activity to deliver
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
