package web

import (
	"fmt"
	"strconv"

	"github.com/deemkeen/fedcore/activitypub"
	"github.com/deemkeen/fedcore/domain"
)

const (
	itemsPerPage = 20
	// upper bound of posts scanned when counting an outbox
	maxOutboxScan = 10000
)

// OutboxStore is what the outbox collection reads from
type OutboxStore interface {
	ReadPostsByOwner(handle string, limit, offset int) ([]domain.Post, error)
	HasModerationEntry(postID string) (bool, error)
}

// GetOutbox returns an ActivityPub OrderedCollection of a user's public posts.
// page 0 returns the collection metadata.
func GetOutbox(store OutboxStore, instance activitypub.Instance, nickname string, page int) (map[string]interface{}, error) {
	outboxURL := instance.ActorURL(nickname) + "/outbox"
	handle := nickname + "@" + instance.Domain

	if page == 0 {
		posts, err := store.ReadPostsByOwner(handle, maxOutboxScan, 0)
		if err != nil {
			return nil, err
		}
		public, err := publicPosts(store, posts)
		if err != nil {
			return nil, err
		}

		return map[string]interface{}{
			"@context":   domain.ActivityStreamsContext,
			"id":         outboxURL,
			"type":       "OrderedCollection",
			"totalItems": len(public),
			"first":      fmt.Sprintf("%s?page=1", outboxURL),
		}, nil
	}

	offset := (page - 1) * itemsPerPage
	posts, err := store.ReadPostsByOwner(handle, itemsPerPage+1, offset)
	if err != nil {
		return nil, err
	}

	// one extra row tells us whether a next page exists
	hasMore := len(posts) > itemsPerPage
	if hasMore {
		posts = posts[:itemsPerPage]
	}
	public, err := publicPosts(store, posts)
	if err != nil {
		return nil, err
	}

	collectionPage := map[string]interface{}{
		"@context":     domain.ActivityStreamsContext,
		"id":           fmt.Sprintf("%s?page=%d", outboxURL, page),
		"type":         "OrderedCollectionPage",
		"partOf":       outboxURL,
		"orderedItems": makeCreateActivities(public, instance.ActorURL(nickname)),
	}
	if hasMore {
		collectionPage["next"] = fmt.Sprintf("%s?page=%d", outboxURL, page+1)
	}
	if page > 1 {
		collectionPage["prev"] = fmt.Sprintf("%s?page=%d", outboxURL, page-1)
	}
	return collectionPage, nil
}

// publicPosts keeps the posts listed in the moderation index
func publicPosts(store OutboxStore, posts []domain.Post) ([]domain.Post, error) {
	public := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		ok, err := store.HasModerationEntry(p.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			public = append(public, p)
		}
	}
	return public, nil
}

// makeCreateActivities wraps posts in the Create activities that published them
func makeCreateActivities(posts []domain.Post, actor string) []interface{} {
	activities := make([]interface{}, 0, len(posts))
	for i := range posts {
		p := posts[i]
		activities = append(activities, map[string]interface{}{
			"id":        p.ID + "/activity",
			"type":      "Create",
			"actor":     actor,
			"published": p.Published.UTC().Format("2006-01-02T15:04:05Z"),
			"to":        []string{activitypub.PublicAddress},
			"cc":        []string{actor + "/followers"},
			"object":    &p,
		})
	}
	return activities
}

// ParsePageParam extracts the page parameter from a query string
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
