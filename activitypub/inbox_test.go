package activitypub

import (
	"errors"
	"fmt"
	"testing"

	"github.com/deemkeen/fedcore/db"
	"github.com/deemkeen/fedcore/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInboxFollowAutoAccepts(t *testing.T) {
	f, store := setupFederation(t)
	body := []byte(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://example.org/users/bob#follows/1",
		"type": "Follow",
		"actor": "https://example.org/users/bob",
		"object": "https://example.com/users/alice"
	}`)

	if err := f.Inbox.Handle("alice", body); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	followers, err := store.ReadFollowers("alice", localDomain)
	if err != nil || len(followers) != 1 || followers[0].FollowerActor != bob {
		t.Fatalf("Expected bob to follow alice, got %v, %v", followers, err)
	}
	if _, err := store.ReadCachedActor(bob); err != nil {
		t.Errorf("Expected bob to be cached: %v", err)
	}
	c, err := f.Caps.Lookup(alice, bob)
	if err != nil {
		t.Fatalf("Expected a capability for bob: %v", err)
	}
	if !c.Has(domain.CapInboxWrite) {
		t.Errorf("Expected default capabilities, got %v", c.Capability)
	}

	accepts := queued(t, store)[bob+"/inbox"]
	if len(accepts) != 1 || accepts[0].Type != domain.TypeAccept || accepts[0].Actor != alice {
		t.Fatalf("Expected an Accept queued for bob, got %v", accepts)
	}
	if nested := accepts[0].Object.Activity; nested == nil || nested.Type != domain.TypeFollow {
		t.Errorf("Expected the Accept to embed the Follow, got %+v", accepts[0].Object)
	}
}

func TestInboxFollowForAnotherUserRejected(t *testing.T) {
	f, store := setupFederation(t)
	follow := &domain.Activity{ID: bob + "#follows/2", Type: domain.TypeFollow, Actor: bob, Object: domain.IRIRef("https://example.com/users/dave")}

	if err := f.Inbox.Process("alice", follow, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if followers, _ := store.ReadFollowers("dave", localDomain); len(followers) != 0 {
		t.Errorf("Expected no follow, got %v", followers)
	}
	record, err := store.ReadActivityByURI(follow.ID)
	if err != nil || record.Outcome != outcomeRejected {
		t.Errorf("Expected a rejected outcome, got %v, %v", record, err)
	}
}

func TestInboxReplayIsProcessedOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	f, store := setupFederation(t, func(o *Options) { o.Registerer = reg })
	savePost(t, store, alicePost, alice)
	like := &domain.Activity{ID: carol + "#likes/1", Type: domain.TypeLike, Actor: carol, Object: domain.IRIRef(alicePost)}

	for i := 0; i < 2; i++ {
		if err := f.Inbox.Process("alice", like, nil); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	if got := readPost(t, store, alicePost).Likes.TotalItems; got != 1 {
		t.Errorf("Expected 1 like, got %d", got)
	}
	record, err := store.ReadActivityByURI(like.ID)
	if err != nil || record.Outcome != outcomeApplied {
		t.Errorf("Expected applied outcome, got %v, %v", record, err)
	}
	if got := testutil.ToFloat64(f.Metrics.activities.WithLabelValues("Like", outcomeDuplicate)); got != 1 {
		t.Errorf("Expected 1 duplicate, got %v", got)
	}
}

func TestInboxDropsInvalidActivities(t *testing.T) {
	f, store := setupFederation(t, func(o *Options) { o.BlockedDomains = []string{"example.net"} })
	savePost(t, store, alicePost, alice)

	if err := f.Inbox.Handle("alice", []byte(`{not json`)); err != nil {
		t.Errorf("Expected unparseable body to be dropped, got %v", err)
	}
	blocked := &domain.Activity{ID: carol + "#likes/1", Type: domain.TypeLike, Actor: carol, Object: domain.IRIRef(alicePost)}
	if err := f.Inbox.Process("alice", blocked, nil); err != nil {
		t.Errorf("Expected blocked activity to be dropped, got %v", err)
	}
	if readPost(t, store, alicePost).Likes != nil {
		t.Error("Expected no like from a blocked domain")
	}
	if _, err := store.ReadActivityByURI(blocked.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected rejected activities not to be logged, got %v", err)
	}
}

func TestInboxUndoLike(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	like := &domain.Activity{ID: carol + "#likes/1", Type: domain.TypeLike, Actor: carol, Object: domain.IRIRef(alicePost)}
	if err := f.Inbox.Process("alice", like, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	forged := &domain.Activity{ID: bob + "#undo/1", Type: domain.TypeUndo, Actor: bob, Object: domain.ActivityRef(like)}
	if err := f.Inbox.Process("alice", forged, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Likes.TotalItems != 1 {
		t.Error("Expected an Undo by another actor to be ignored")
	}

	undo := &domain.Activity{ID: carol + "#undo/1", Type: domain.TypeUndo, Actor: carol, Object: domain.ActivityRef(like)}
	if err := f.Inbox.Process("alice", undo, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Likes.TotalItems != 0 {
		t.Error("Expected the like to be removed")
	}
}

func TestInboxEmojiReact(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	body := []byte(`{"id":"https://example.net/users/carol#reacts/1","type":"EmojiReact","actor":"https://example.net/users/carol","object":"https://example.com/users/alice/statuses/1","content":"🎉"}`)

	if err := f.Inbox.Handle("alice", body); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	reactions := readPost(t, store, alicePost).Reactions
	if reactions == nil || reactions.TotalItems != 1 || reactions.Items[0].Content != "🎉" {
		t.Errorf("Expected one 🎉 reaction, got %+v", reactions)
	}
}

func TestInboxAnnounceAndUndo(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	announce := &domain.Activity{
		ID:     "https://example.net/users/carol/statuses/9/activity",
		Type:   domain.TypeAnnounce,
		Actor:  carol,
		Object: domain.IRIRef(alicePost),
	}
	if err := f.Inbox.Process("alice", announce, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Shares.TotalItems != 1 {
		t.Error("Expected the announce to be counted")
	}
	if !readPost(t, store, announce.ID).IsAnnounce() {
		t.Fatal("Expected the announce wrapper to be stored")
	}

	like := &domain.Activity{ID: bob + "#likes/1", Type: domain.TypeLike, Actor: bob, Object: domain.IRIRef(announce.ID)}
	if err := f.Inbox.Process("", like, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Likes.TotalItems != 1 {
		t.Error("Expected a like on the wrapper to reach the original")
	}

	undo := &domain.Activity{ID: carol + "#undo/2", Type: domain.TypeUndo, Actor: carol, Object: domain.ActivityRef(announce)}
	if err := f.Inbox.Process("alice", undo, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Shares.TotalItems != 0 {
		t.Error("Expected the announce to be removed")
	}
	if _, err := store.ReadPost(announce.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected the wrapper to be deleted, got %v", err)
	}
}

func TestInboxAnnounceCannotReplacePost(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	carolPost := carol + "/statuses/5"
	savePost(t, store, carolPost, carol)

	body := []byte(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://example.com/users/alice/statuses/1",
		"type": "Announce",
		"actor": "https://example.net/users/carol",
		"object": "https://example.com/users/alice/statuses/1"
	}`)
	if err := f.Inbox.Handle("", body); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// an id on the sender's own host that already names a post
	collide := &domain.Activity{ID: carolPost, Type: domain.TypeAnnounce, Actor: carol, Object: domain.IRIRef(alicePost)}
	if err := f.Inbox.Process("", collide, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	// an id on a host other than the sender's
	foreign := &domain.Activity{ID: bob + "/statuses/77/activity", Type: domain.TypeAnnounce, Actor: carol, Object: domain.IRIRef(alicePost)}
	if err := f.Inbox.Process("", foreign, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := store.ReadPost(foreign.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected no wrapper under a foreign id, got %v", err)
	}

	post := readPost(t, store, alicePost)
	if post.Type != "Note" || post.Content != "hello" || post.AttributedTo != alice {
		t.Fatalf("Expected alice's post to be untouched, got %+v", post)
	}
	if post.Shares != nil && post.Shares.TotalItems != 0 {
		t.Errorf("Expected refused announces not to be counted, got %+v", post.Shares)
	}
	if own := readPost(t, store, carolPost); own.Type != "Note" || own.Content != "hello" {
		t.Errorf("Expected carol's post to be untouched, got %+v", own)
	}

	like := &domain.Activity{ID: bob + "#likes/9", Type: domain.TypeLike, Actor: bob, Object: domain.IRIRef(alicePost)}
	if err := f.Inbox.Process("alice", like, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Likes.TotalItems != 1 {
		t.Error("Expected later likes on the post to apply")
	}
}

func TestInboxAnnounceRedelivered(t *testing.T) {
	f, store := setupFederation(t)
	savePost(t, store, alicePost, alice)
	id := carol + "/statuses/9/activity"

	for i := 0; i < 2; i++ {
		announce := &domain.Activity{ID: id, Type: domain.TypeAnnounce, Actor: carol, Object: domain.IRIRef(alicePost)}
		if err := f.Inbox.Process("alice", announce, nil); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	if got := readPost(t, store, alicePost).Shares.TotalItems; got != 1 {
		t.Errorf("Expected one share, got %d", got)
	}
	if !readPost(t, store, id).IsAnnounce() {
		t.Error("Expected the wrapper to be kept")
	}
}

func TestInboxDelete(t *testing.T) {
	f, store := setupFederation(t)
	post := bob + "/statuses/7"
	savePost(t, store, post, bob)

	forged := &domain.Activity{ID: carol + "#delete/1", Type: domain.TypeDelete, Actor: carol, Object: domain.IRIRef(post)}
	if err := f.Inbox.Process("", forged, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	readPost(t, store, post)

	del := &domain.Activity{ID: bob + "#delete/1", Type: domain.TypeDelete, Actor: bob, Object: domain.IRIRef(post)}
	if err := f.Inbox.Process("", del, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := store.ReadPost(post); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected the post to be deleted, got %v", err)
	}

	account := &domain.Activity{ID: bob + "#delete/2", Type: domain.TypeDelete, Actor: bob, Object: domain.IRIRef(bob)}
	if err := f.Inbox.Process("", account, nil); err != nil {
		t.Errorf("Expected account deletion to be ignored, got %v", err)
	}
}

func createFrom(actor, id string, obj *domain.Object) *domain.Activity {
	obj.ID = id
	obj.Type = "Note"
	obj.AttributedTo = actor
	return &domain.Activity{
		ID:     id + "/activity",
		Type:   domain.TypeCreate,
		Actor:  actor,
		Object: domain.ObjRef(obj),
		To:     []string{PublicAddress},
	}
}

func TestInboxCreate(t *testing.T) {
	f, store := setupFederation(t)
	create := createFrom(bob, bob+"/statuses/8", &domain.Object{Content: "hi alice", InReplyTo: alicePost})

	if err := f.Inbox.Process("alice", create, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	post := readPost(t, store, bob+"/statuses/8")
	if post.AttributedTo != bob || post.Content != "hi alice" || post.InReplyTo != alicePost {
		t.Errorf("Unexpected stored post %+v", post)
	}
	if listed, _ := store.HasModerationEntry(post.ID); !listed {
		t.Error("Expected a public post to be indexed for moderation")
	}

	forged := createFrom(carol, bob+"/statuses/9", &domain.Object{Content: "not bob"})
	forged.Object.Object.AttributedTo = bob
	if err := f.Inbox.Process("alice", forged, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := store.ReadPost(bob + "/statuses/9"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected a post attributed to someone else to be refused, got %v", err)
	}
}

func TestInboxCreateRequiresSenderOrigin(t *testing.T) {
	f, store := setupFederation(t)
	tests := []struct {
		name  string
		actor string
		id    string
	}{
		{"local id from remote actor", carol, alice + "/statuses/999"},
		{"id on another remote host", carol, bob + "/statuses/999"},
		{"relative id", carol, "/statuses/999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			create := createFrom(tt.actor, tt.id, &domain.Object{Content: "I am alice"})
			if err := f.Inbox.Process("alice", create, nil); err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if _, err := store.ReadPost(tt.id); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("Expected %s to be refused, got %v", tt.id, err)
			}
			if listed, _ := store.HasModerationEntry(tt.id); listed {
				t.Errorf("Expected %s not to be indexed", tt.id)
			}
		})
	}

	local := createFrom(alice, alice+"/statuses/1000", &domain.Object{Content: "mine"})
	if err := f.Inbox.Process("", local, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	readPost(t, store, alice+"/statuses/1000")
}

func TestInboxCreateRefusedByCapability(t *testing.T) {
	f, store := setupFederation(t)
	if _, err := f.Caps.GetOrCreate(alice, bob, domain.DefaultCapabilities); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if _, err := f.Caps.Rotate(alice, bob, []string{domain.CapInboxWrite, domain.CapInboxNoReply}); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	reply := createFrom(bob, bob+"/statuses/10", &domain.Object{Content: "reply", InReplyTo: alicePost})
	if err := f.Inbox.Process("alice", reply, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := store.ReadPost(bob + "/statuses/10"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected the reply to be refused, got %v", err)
	}

	post := createFrom(bob, bob+"/statuses/11", &domain.Object{Content: "top level"})
	if err := f.Inbox.Process("alice", post, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	readPost(t, store, bob+"/statuses/11")
}

func TestInboxRequireWriteCapability(t *testing.T) {
	f, store := setupFederation(t, func(o *Options) { o.RequireWriteCapability = true })
	savePost(t, store, alicePost, alice)

	like := &domain.Activity{ID: carol + "#likes/1", Type: domain.TypeLike, Actor: carol, Object: domain.IRIRef(alicePost)}
	if err := f.Inbox.Process("alice", like, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Likes != nil {
		t.Error("Expected a like without capability to be refused")
	}

	if _, err := f.Caps.GetOrCreate(alice, carol, domain.DefaultCapabilities); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	like.ID = carol + "#likes/2"
	if err := f.Inbox.Process("alice", like, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, alicePost).Likes.TotalItems != 1 {
		t.Error("Expected a like with capability to be applied")
	}
}

func TestInboxUpdate(t *testing.T) {
	f, store := setupFederation(t)
	post := bob + "/statuses/12"
	savePost(t, store, post, bob)
	f.Cache.Set(post, []byte("old"))

	summary := "edited"
	update := &domain.Activity{
		ID:     bob + "#updates/1",
		Type:   domain.TypeUpdate,
		Actor:  bob,
		Object: domain.ObjRef(&domain.Object{ID: post, Type: "Note", Content: "new content", Summary: &summary}),
	}
	if err := f.Inbox.Process("", update, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	stored := readPost(t, store, post)
	if stored.Content != "new content" || stored.Summary != "edited" {
		t.Errorf("Expected the edit to apply, got %+v", stored)
	}
	if _, ok := f.Cache.Get(post); ok {
		t.Error("Expected the edited post to be evicted")
	}

	forged := &domain.Activity{
		ID:     carol + "#updates/1",
		Type:   domain.TypeUpdate,
		Actor:  carol,
		Object: domain.ObjRef(&domain.Object{ID: post, Type: "Note", Content: "vandalism"}),
	}
	if err := f.Inbox.Process("", forged, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, post).Content != "new content" {
		t.Error("Expected an edit by another actor to be refused")
	}

	// carol also cannot edit a local post by claiming it
	savePost(t, store, alicePost, alice)
	spoofed := &domain.Activity{
		ID:     carol + "#updates/2",
		Type:   domain.TypeUpdate,
		Actor:  carol,
		Object: domain.ObjRef(&domain.Object{ID: alicePost, Type: "Note", AttributedTo: carol, Content: "vandalism"}),
	}
	if err := f.Inbox.Process("", spoofed, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := readPost(t, store, alicePost); got.Content != "hello" || got.AttributedTo != alice {
		t.Errorf("Expected alice's post to be untouched, got %+v", got)
	}
}

func TestInboxUpdateCapability(t *testing.T) {
	f, _ := setupFederation(t)
	update := &domain.Activity{
		ID:    bob + "#updates/2",
		Type:  domain.TypeUpdate,
		Actor: bob,
		Object: domain.ObjRef(&domain.Object{
			ID:         bob + "#caps-xyz",
			Type:       "Capability",
			Actor:      bob,
			Scope:      alice,
			Capability: []string{domain.CapInboxWrite},
		}),
	}
	if err := f.Inbox.Process("alice", update, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if c, err := f.Caps.Granted(alice, bob); err != nil || c.ID != bob+"#caps-xyz" {
		t.Errorf("Expected the granted capability to be stored, got %v, %v", c, err)
	}
}

func TestInboxSharedItems(t *testing.T) {
	f, _ := setupFederation(t)
	summary := "a blue one"
	offer := &domain.Activity{
		ID:     bob + "#add/1",
		Type:   domain.TypeAdd,
		Actor:  bob,
		Object: domain.ObjRef(&domain.Object{ID: bob + "/offers/1", Type: "Offer", Content: "Bicycle", Summary: &summary}),
		Target: bob + "/shares",
	}
	if err := f.Inbox.Process("", offer, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	items, err := f.Catalog.Items(bob)
	if err != nil || len(items) != 1 || items[0].Name != "Bicycle" || items[0].Summary != summary {
		t.Fatalf("Expected the offer in bob's catalog, got %v, %v", items, err)
	}

	foreign := *offer
	foreign.ID = carol + "#add/1"
	foreign.Actor = carol
	if err := f.Inbox.Process("", &foreign, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if items, _ := f.Catalog.Items(carol); len(items) != 0 {
		t.Errorf("Expected carol not to write into bob's catalog, got %v", items)
	}

	remove := &domain.Activity{ID: bob + "#remove/1", Type: domain.TypeRemove, Actor: bob, Object: domain.IRIRef(bob + "/offers/1"), Target: bob + "/shares"}
	if err := f.Inbox.Process("", remove, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if items, _ := f.Catalog.Items(bob); len(items) != 0 {
		t.Errorf("Expected the offer to be withdrawn, got %v", items)
	}
}

func TestInboxBookmarksOnlyFromLocalActors(t *testing.T) {
	f, store := setupFederation(t)
	post := bob + "/statuses/13"
	savePost(t, store, post, bob)

	remote := &domain.Activity{ID: carol + "#add/2", Type: domain.TypeAdd, Actor: carol, Object: domain.IRIRef(post), Target: carol + "/tlbookmarks"}
	if err := f.Inbox.Process("", remote, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, post).Bookmarks != nil {
		t.Error("Expected a remote bookmark to be refused")
	}

	local := &domain.Activity{ID: alice + "#add/1", Type: domain.TypeAdd, Actor: alice, Object: domain.IRIRef(post), Target: alice + "/tlbookmarks"}
	if err := f.Inbox.Process("", local, nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if readPost(t, store, post).Bookmarks.TotalItems != 1 {
		t.Error("Expected the local bookmark to apply")
	}
}

type failingPosts struct {
	PostStore
	failures int
}

func (p *failingPosts) ReadPost(id string) (*domain.Post, error) {
	if p.failures > 0 {
		p.failures--
		return nil, fmt.Errorf("%w: disk I/O error", domain.ErrTransient)
	}
	return p.PostStore.ReadPost(id)
}

func TestInboxTransientFailureIsRetryable(t *testing.T) {
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	savePost(t, store, alicePost, alice)

	posts := &failingPosts{PostStore: store, failures: 1}
	f := New(Stores{KV: store, Follows: store, Posts: posts, Activities: store, Queue: store}, Options{Instance: testInstance()})
	like := &domain.Activity{ID: carol + "#likes/1", Type: domain.TypeLike, Actor: carol, Object: domain.IRIRef(alicePost)}

	if err := f.Inbox.Process("alice", like, nil); !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("Expected a transient error, got %v", err)
	}
	if record, _ := store.ReadActivityByURI(like.ID); record == nil || record.Outcome != outcomeFailed {
		t.Fatalf("Expected a failed outcome, got %+v", record)
	}

	if err := f.Inbox.Process("alice", like, nil); err != nil {
		t.Fatalf("Expected the retry to succeed, got %v", err)
	}
	if readPost(t, store, alicePost).Likes.TotalItems != 1 {
		t.Error("Expected the retried like to apply")
	}
}

func TestInboxAccept(t *testing.T) {
	f, store := setupFederation(t)
	body := []byte(`{
		"id": "https://example.org/users/bob#accepts/1",
		"type": "Accept",
		"actor": "https://example.org/users/bob",
		"object": {
			"id": "https://example.com/activities/1",
			"type": "Follow",
			"actor": "https://example.com/users/alice",
			"object": "https://example.org/users/bob"
		}
	}`)

	if err := f.Inbox.Handle("alice", body); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if _, err := store.ReadFollow(aliceFollowsBob()); err != nil {
		t.Errorf("Expected alice to follow bob: %v", err)
	}
}
