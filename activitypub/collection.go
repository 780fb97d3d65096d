package activitypub

import (
	"fmt"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
)

// MutationResult describes what Mutate did and to which post
type MutationResult struct {
	Outcome    domain.MutationOutcome
	PostID     string // the post that holds the collection
	Author     string // attributedTo of that post, the actor to notify
	Redirected bool   // the requested post was an announce of PostID
}

// Changed reports whether the stored post was modified
func (r MutationResult) Changed() bool {
	return r.Outcome == domain.OutcomeAdded || r.Outcome == domain.OutcomeRemoved
}

// CollectionMutator applies idempotent add/remove operations to the bounded
// interaction collections of a post. Each post is mutated by one writer at a time.
type CollectionMutator struct {
	posts   PostStore
	cache   *RenderCache
	locks   *util.KeyedMutex
	metrics *Metrics
	log     *zap.SugaredLogger
}

func NewCollectionMutator(posts PostStore, cache *RenderCache, locks *util.KeyedMutex, metrics *Metrics) *CollectionMutator {
	if locks == nil {
		locks = util.NewKeyedMutex()
	}
	return &CollectionMutator{
		posts:   posts,
		cache:   cache,
		locks:   locks,
		metrics: metrics,
		log:     logging.Component("collection"),
	}
}

// Mutate adds entry to or removes it from the named collection of postID.
// Duplicate adds, adds beyond the cap and removals of missing entries all
// succeed without changing anything. Announce wrappers are resolved to the
// original post.
func (m *CollectionMutator) Mutate(postID string, name domain.CollectionName, entry domain.CollectionEntry, op domain.MutationOp) (MutationResult, error) {
	if !name.Valid() {
		return MutationResult{}, fmt.Errorf("%w: unknown collection %q", domain.ErrMalformed, name)
	}
	if entry.Actor == "" {
		return MutationResult{}, fmt.Errorf("%w: collection entry without actor", domain.ErrMalformed)
	}
	if name.ContentSensitive() && entry.Content == "" {
		return MutationResult{}, fmt.Errorf("%w: %s entry without content", domain.ErrMalformed, name)
	}
	if entry.Type == "" {
		entry.Type = name.EntryType()
	}

	target, redirected, err := m.resolveTarget(postID)
	if err != nil {
		return MutationResult{}, err
	}

	unlock := m.locks.Lock(target)
	defer unlock()

	post, err := m.posts.ReadPost(target)
	if err != nil {
		return MutationResult{}, err
	}
	if post.IsAnnounce() {
		// announces of announces are not followed any further
		return MutationResult{}, fmt.Errorf("%w: %s is an announce of an announce", domain.ErrMalformed, postID)
	}
	m.cache.Evict(post.ID)
	if redirected {
		m.cache.Evict(postID)
	}

	result := MutationResult{PostID: post.ID, Author: post.AttributedTo, Redirected: redirected}

	switch op {
	case domain.OpAdd:
		result.Outcome = addEntry(post.EnsureCollection(name), name, entry)
	case domain.OpRemove:
		result.Outcome = removeEntry(post.Collection(name), name, entry)
	default:
		return MutationResult{}, fmt.Errorf("%w: unknown operation %d", domain.ErrMalformed, op)
	}

	if result.Changed() {
		if err := m.posts.SavePost(post); err != nil {
			return MutationResult{}, err
		}
	}

	m.metrics.mutation(name, result.Outcome)
	m.log.Debugf("%s %s on %s by %s: %s", op, name, post.ID, entry.Actor, result.Outcome)
	return result, nil
}

// resolveTarget follows an announce wrapper to the post it boosts
func (m *CollectionMutator) resolveTarget(postID string) (string, bool, error) {
	unlock := m.locks.Lock(postID)
	post, err := m.posts.ReadPost(postID)
	unlock()
	if err != nil {
		return "", false, err
	}
	if post.IsAnnounce() {
		return post.AnnounceOf, true, nil
	}
	return postID, false, nil
}

func sameEntry(name domain.CollectionName, a, b domain.CollectionEntry) bool {
	if a.Actor != b.Actor {
		return false
	}
	return !name.ContentSensitive() || a.Content == b.Content
}

func addEntry(c *domain.Collection, name domain.CollectionName, entry domain.CollectionEntry) domain.MutationOutcome {
	for _, existing := range c.Items {
		if sameEntry(name, existing, entry) {
			return domain.OutcomeAlreadyPresent
		}
	}
	if len(c.Items) >= name.Cap() {
		return domain.OutcomeDropped
	}
	c.Items = append(c.Items, entry)
	c.TotalItems++
	return domain.OutcomeAdded
}

func removeEntry(c *domain.Collection, name domain.CollectionName, entry domain.CollectionEntry) domain.MutationOutcome {
	if c == nil {
		return domain.OutcomeAbsent
	}
	for i, existing := range c.Items {
		if sameEntry(name, existing, entry) {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			if c.TotalItems > 0 {
				c.TotalItems--
			}
			return domain.OutcomeRemoved
		}
	}
	return domain.OutcomeAbsent
}
