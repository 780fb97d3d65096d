package activitypub

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/deemkeen/fedcore/domain"
)

const alicePost = "https://example.com/users/alice/statuses/1"

func TestEmojiReactTwiceCountsOnce(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	entry := domain.CollectionEntry{Actor: carol, Content: "🎉"}

	res, err := f.Mutator.Mutate(alicePost, domain.CollectionReactions, entry, domain.OpAdd)
	if err != nil {
		t.Fatalf("First reaction failed: %v", err)
	}
	if res.Outcome != domain.OutcomeAdded {
		t.Errorf("Expected added, got %s", res.Outcome)
	}

	res, err = f.Mutator.Mutate(alicePost, domain.CollectionReactions, entry, domain.OpAdd)
	if err != nil {
		t.Fatalf("Second reaction failed: %v", err)
	}
	if res.Outcome != domain.OutcomeAlreadyPresent {
		t.Errorf("Expected already_present, got %s", res.Outcome)
	}

	post := readPost(t, store, alicePost)
	if post.Reactions == nil || post.Reactions.TotalItems != 1 || len(post.Reactions.Items) != 1 {
		t.Fatalf("Expected exactly one reaction, got %+v", post.Reactions)
	}
	if post.Reactions.Items[0].Type != domain.TypeEmojiReact {
		t.Errorf("Expected entry type EmojiReact, got %s", post.Reactions.Items[0].Type)
	}
}

func TestDifferentEmojiAreDistinctReactions(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)

	for _, emoji := range []string{"🎉", "👍"} {
		if _, err := f.Mutator.Mutate(alicePost, domain.CollectionReactions, domain.CollectionEntry{Actor: carol, Content: emoji}, domain.OpAdd); err != nil {
			t.Fatalf("Reaction %s failed: %v", emoji, err)
		}
	}
	if got := readPost(t, store, alicePost).Reactions.TotalItems; got != 2 {
		t.Errorf("Expected 2 reactions, got %d", got)
	}
}

func TestLikesAreIdentifiedByActor(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)

	f.Mutator.Mutate(alicePost, domain.CollectionLikes, domain.CollectionEntry{Actor: carol}, domain.OpAdd)
	res, err := f.Mutator.Mutate(alicePost, domain.CollectionLikes, domain.CollectionEntry{Actor: carol, Content: "ignored"}, domain.OpAdd)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if res.Outcome != domain.OutcomeAlreadyPresent {
		t.Errorf("Expected already_present, got %s", res.Outcome)
	}
}

func TestAddAtCapIsDropped(t *testing.T) {
	f, store := setupFederation(t)
	post := savePost(t, store, alicePost, alice)
	likes := post.EnsureCollection(domain.CollectionLikes)
	for i := 0; i < domain.MaxLikes; i++ {
		likes.Items = append(likes.Items, domain.CollectionEntry{
			Type:  domain.TypeLike,
			Actor: fmt.Sprintf("https://example.net/users/u%d", i),
		})
	}
	likes.TotalItems = domain.MaxLikes
	if err := store.SavePost(post); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}

	res, err := f.Mutator.Mutate(alicePost, domain.CollectionLikes, domain.CollectionEntry{Actor: carol}, domain.OpAdd)
	if err != nil {
		t.Fatalf("Add at cap should not error: %v", err)
	}
	if res.Outcome != domain.OutcomeDropped {
		t.Errorf("Expected dropped, got %s", res.Outcome)
	}
	if got := readPost(t, store, alicePost).Likes.TotalItems; got != domain.MaxLikes {
		t.Errorf("Expected %d likes, got %d", domain.MaxLikes, got)
	}
}

func TestRemoveEntry(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)

	res, err := f.Mutator.Mutate(alicePost, domain.CollectionLikes, domain.CollectionEntry{Actor: carol}, domain.OpRemove)
	if err != nil || res.Outcome != domain.OutcomeAbsent {
		t.Fatalf("Expected absent removal, got %v, %v", res.Outcome, err)
	}

	f.Mutator.Mutate(alicePost, domain.CollectionLikes, domain.CollectionEntry{Actor: carol}, domain.OpAdd)
	f.Mutator.Mutate(alicePost, domain.CollectionLikes, domain.CollectionEntry{Actor: bob}, domain.OpAdd)

	res, err = f.Mutator.Mutate(alicePost, domain.CollectionLikes, domain.CollectionEntry{Actor: carol}, domain.OpRemove)
	if err != nil || res.Outcome != domain.OutcomeRemoved {
		t.Fatalf("Expected removal, got %v, %v", res.Outcome, err)
	}
	likes := readPost(t, store, alicePost).Likes
	if likes.TotalItems != 1 || likes.Items[0].Actor != bob {
		t.Errorf("Expected only bob to remain, got %+v", likes)
	}
}

func TestMutateValidatesInput(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)

	tests := []struct {
		name       string
		collection domain.CollectionName
		entry      domain.CollectionEntry
		want       error
	}{
		{"unknown collection", "dislikes", domain.CollectionEntry{Actor: carol}, domain.ErrMalformed},
		{"missing actor", domain.CollectionLikes, domain.CollectionEntry{}, domain.ErrMalformed},
		{"reaction without content", domain.CollectionReactions, domain.CollectionEntry{Actor: carol}, domain.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Mutator.Mutate(alicePost, tt.collection, tt.entry, domain.OpAdd)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	_, err := f.Mutator.Mutate("https://example.com/users/alice/statuses/404", domain.CollectionLikes, domain.CollectionEntry{Actor: carol}, domain.OpAdd)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing post, got %v", err)
	}
}

func TestMutateOnAnnounceRedirectsToOriginal(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	wrapper := &domain.Post{
		ID:           "https://example.net/users/carol/statuses/9/activity",
		Type:         string(domain.TypeAnnounce),
		AttributedTo: carol,
		AnnounceOf:   alicePost,
	}
	if err := store.SavePost(wrapper); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}

	res, err := f.Mutator.Mutate(wrapper.ID, domain.CollectionLikes, domain.CollectionEntry{Actor: bob}, domain.OpAdd)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !res.Redirected || res.PostID != alicePost || res.Author != alice {
		t.Errorf("Expected redirect to %s by %s, got %+v", alicePost, alice, res)
	}
	if readPost(t, store, alicePost).Likes.TotalItems != 1 {
		t.Error("Expected the like on the original post")
	}
	if readPost(t, store, wrapper.ID).Likes != nil {
		t.Error("Expected the announce wrapper to hold no collections")
	}
}

func TestMutateOnAnnounceOfAnnounceRejected(t *testing.T) {
	f, store := setupFederation(t)
	first := &domain.Post{ID: "https://example.net/users/carol/statuses/9/activity", Type: string(domain.TypeAnnounce), AttributedTo: carol, AnnounceOf: alicePost}
	second := &domain.Post{ID: "https://example.org/users/bob/statuses/3/activity", Type: string(domain.TypeAnnounce), AttributedTo: bob, AnnounceOf: first.ID}
	for _, p := range []*domain.Post{first, second} {
		if err := store.SavePost(p); err != nil {
			t.Fatalf("SavePost failed: %v", err)
		}
	}

	_, err := f.Mutator.Mutate(second.ID, domain.CollectionLikes, domain.CollectionEntry{Actor: alice}, domain.OpAdd)
	if !errors.Is(err, domain.ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestMutateEvictsRenderCache(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	f.Cache.Set(alicePost, []byte("<p>hello</p>"))

	if _, err := f.Mutator.Mutate(alicePost, domain.CollectionBookmarks, domain.CollectionEntry{Actor: alice}, domain.OpAdd); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if _, ok := f.Cache.Get(alicePost); ok {
		t.Error("Expected rendered post to be evicted")
	}
}

func TestConcurrentLikesAreNotLost(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)

	const likers = 40
	var wg sync.WaitGroup
	errs := make(chan error, likers)
	for i := 0; i < likers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := domain.CollectionEntry{Actor: fmt.Sprintf("https://example.org/users/u%d", i)}
			if _, err := f.Mutator.Mutate(alicePost, domain.CollectionLikes, entry, domain.OpAdd); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Mutate failed: %v", err)
	}

	likes := readPost(t, store, alicePost).Likes
	if likes == nil || likes.TotalItems != likers || len(likes.Items) != likers {
		t.Fatalf("Expected %d likes, got %+v", likers, likes)
	}
}
