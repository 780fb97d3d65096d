package activitypub

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
)

// PublicAddress is the audience marking an activity public
const PublicAddress = "https://www.w3.org/ns/activitystreams#Public"

// outcomes recorded in the activity log
const (
	outcomeApplied   = "applied"
	outcomeNoop      = "noop"
	outcomeRejected  = "rejected"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
)

// Inbox validates inbound activities and dispatches them to the processors.
// Malformed and unauthorized activities are dropped silently; only storage
// failures are returned to the caller.
type Inbox struct {
	instance     Instance
	validator    *Validator
	accept       *AcceptProcessor
	mutator      *CollectionMutator
	deleter      *DeleteProcessor
	caps         *CapabilityStore
	catalog      *Catalog
	follows      FollowStore
	posts        PostStore
	activities   ActivityLog
	sender       *Sender
	cache        *RenderCache
	locks        *util.KeyedMutex
	metrics      *Metrics
	requireWrite bool
	log          *zap.SugaredLogger
}

// Handle parses and processes a raw activity delivered to nickname's inbox.
// nickname is empty for the shared inbox.
func (in *Inbox) Handle(nickname string, body []byte) error {
	a, err := domain.ParseActivity(body)
	if err != nil {
		in.log.Debugf("Inbox: Failed to parse activity: %v", err)
		in.metrics.activity("unknown", outcomeRejected)
		return nil
	}
	return in.Process(nickname, a, body)
}

// Process runs an already parsed activity through validation, deduplication and dispatch
func (in *Inbox) Process(nickname string, a *domain.Activity, raw []byte) error {
	in.log.Infof("Inbox: Received %s from %s", a.Type, a.Actor)

	if ok, kind := in.validator.Validate(a); !ok {
		in.log.Debugf("Inbox: Dropping %s from %s: %s", a.Type, a.Actor, kind)
		in.metrics.activity(a.Type, outcomeRejected)
		return nil
	}

	if a.ID != "" {
		fresh, err := in.record(a, raw)
		if err != nil {
			return err
		}
		if !fresh {
			in.log.Debugf("Inbox: Activity %s already processed, skipping", a.ID)
			in.metrics.activity(a.Type, outcomeDuplicate)
			return nil
		}
	}

	outcome, err := in.dispatch(nickname, a)
	switch domain.KindOf(err) {
	case domain.KindNone:
	case domain.KindMalformed, domain.KindUnauthorized, domain.KindNotFound, domain.KindConflict:
		in.log.Debugf("Inbox: Not applying %s from %s: %v", a.Type, a.Actor, err)
		outcome, err = outcomeRejected, nil
	default:
		in.log.Warnf("Inbox: Failed to handle %s from %s: %v", a.Type, a.Actor, err)
		outcome = outcomeFailed
	}

	if a.ID != "" {
		if uerr := in.activities.UpdateActivityOutcome(a.ID, outcome); uerr != nil {
			in.log.Warnf("Inbox: Failed to record outcome of %s: %v", a.ID, uerr)
		}
	}
	in.metrics.activity(a.Type, outcome)
	return err
}

// record logs the activity. It returns false for replays of an activity
// that was already processed; failed attempts may be retried.
func (in *Inbox) record(a *domain.Activity, raw []byte) (bool, error) {
	recorded, err := in.activities.RecordActivity(&domain.ActivityRecord{
		ActivityURI:  a.ID,
		ActivityType: string(a.Type),
		ActorURI:     a.Actor,
		ObjectURI:    a.Object.ID(),
		RawJSON:      string(raw),
		Local:        in.instance.IsLocalURI(a.Actor),
	})
	if err != nil {
		return false, err
	}
	if recorded {
		return true, nil
	}
	prev, err := in.activities.ReadActivityByURI(a.ID)
	if err != nil {
		return false, err
	}
	return prev.Outcome == outcomeFailed || prev.Outcome == "", nil
}

func (in *Inbox) dispatch(nickname string, a *domain.Activity) (string, error) {
	switch a.Type {
	case domain.TypeFollow, domain.TypeJoin:
		return in.handleFollow(nickname, a)
	case domain.TypeAccept, domain.TypeReject:
		created, err := in.accept.Process(a)
		return applied(created), err
	case domain.TypeLike:
		return in.interact(nickname, a, domain.CollectionLikes, domain.OpAdd, a.Object.ID(), "")
	case domain.TypeEmojiReact:
		return in.interact(nickname, a, domain.CollectionReactions, domain.OpAdd, a.Object.ID(), a.Content)
	case domain.TypeAnnounce:
		return in.handleAnnounce(nickname, a)
	case domain.TypeUndo:
		return in.handleUndo(nickname, a)
	case domain.TypeDelete:
		return in.handleDelete(a)
	case domain.TypeAdd:
		return in.handleAddRemove(a, domain.OpAdd)
	case domain.TypeRemove:
		return in.handleAddRemove(a, domain.OpRemove)
	case domain.TypeUpdate:
		return in.handleUpdate(a)
	case domain.TypeCreate:
		return in.handleCreate(nickname, a)
	}
	in.log.Debugf("Inbox: Unsupported activity type: %s", a.Type)
	return outcomeIgnored, nil
}

func applied(changed bool) string {
	if changed {
		return outcomeApplied
	}
	return outcomeNoop
}

// capable consults the capability nickname granted to the sender
func (in *Inbox) capable(nickname string, a *domain.Activity) error {
	if nickname == "" {
		return nil
	}
	c, err := in.caps.Lookup(in.instance.ActorURL(nickname), a.Actor)
	if errors.Is(err, domain.ErrNotFound) {
		if in.requireWrite {
			return fmt.Errorf("%w: %s holds no capability from %s", domain.ErrUnauthorized, a.Actor, nickname)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if in.requireWrite && !c.Has(domain.CapInboxWrite) {
		return fmt.Errorf("%w: %s may not write to the inbox of %s", domain.ErrUnauthorized, a.Actor, nickname)
	}
	if !in.caps.Evaluate(c.Capability, a) {
		return fmt.Errorf("%w: %s from %s refused by capability %s", domain.ErrUnauthorized, a.Type, a.Actor, c.ID)
	}
	return nil
}

func (in *Inbox) interact(nickname string, a *domain.Activity, name domain.CollectionName, op domain.MutationOp, postID, content string) (string, error) {
	if op == domain.OpAdd {
		if err := in.capable(nickname, a); err != nil {
			return outcomeRejected, err
		}
	}
	res, err := in.mutator.Mutate(postID, name, domain.CollectionEntry{Actor: a.Actor, Content: content}, op)
	if err != nil {
		return outcomeFailed, err
	}
	if res.Redirected {
		in.log.Debugf("Inbox: %s on announce redirected to %s by %s", a.Type, res.PostID, res.Author)
	}
	return applied(res.Changed()), nil
}

func (in *Inbox) handleFollow(nickname string, a *domain.Activity) (string, error) {
	followed, err := domain.ParseActor(a.Object.ID())
	if err != nil {
		return outcomeRejected, err
	}
	if !in.instance.IsLocal(followed) || (nickname != "" && followed.Nickname != nickname) {
		return outcomeRejected, fmt.Errorf("%w: follow request for %s delivered to %s", domain.ErrUnauthorized, followed.Handle(), nickname)
	}
	follower, err := domain.ParseActor(a.Actor)
	if err != nil {
		return outcomeRejected, err
	}

	follow := &domain.Follow{
		FollowerNickname: follower.Nickname,
		FollowerDomain:   follower.FullDomain(),
		FollowerActor:    a.Actor,
		FollowedNickname: followed.Nickname,
		FollowedDomain:   followed.FullDomain(),
		IsGroup:          a.Type == domain.TypeJoin,
	}
	created, err := in.follows.CreateFollow(follow)
	if err != nil {
		return outcomeFailed, err
	}

	if _, err := in.follows.ReadCachedActor(a.Actor); errors.Is(err, domain.ErrNotFound) {
		if err := in.follows.UpsertCachedActor(&domain.CachedActor{
			Username: follower.Nickname,
			Domain:   follower.FullDomain(),
			ActorURI: a.Actor,
		}); err != nil {
			in.log.Warnf("Inbox: Failed to cache actor %s: %v", a.Actor, err)
		}
	}

	local := in.instance.ActorURL(followed.Nickname)
	if _, err := in.caps.GetOrCreate(local, a.Actor, domain.DefaultCapabilities); err != nil {
		in.log.Warnf("Inbox: Failed to issue capability to %s: %v", a.Actor, err)
	}

	accept := &domain.Activity{
		ID:     in.instance.ActivityURL(),
		Type:   domain.TypeAccept,
		Actor:  local,
		Object: domain.ActivityRef(a),
		To:     []string{a.Actor},
	}
	if err := in.sender.Send(accept, a.Actor); err != nil {
		in.log.Warnf("Inbox: Failed to send Accept to %s: %v", a.Actor, err)
	}

	in.log.Infof("Inbox: Accepted follow from %s", follow.FollowerHandle())
	return applied(created), nil
}

func (in *Inbox) handleAnnounce(nickname string, a *domain.Activity) (string, error) {
	if a.ID != "" {
		if err := in.checkOrigin(a.Actor, a.ID); err != nil {
			return outcomeRejected, err
		}
		if _, err := in.wrapperExists(a); err != nil {
			return outcomeRejected, err
		}
	}
	outcome, err := in.interact(nickname, a, domain.CollectionShares, domain.OpAdd, a.Object.ID(), "")
	if err != nil || a.ID == "" {
		return outcome, err
	}

	unlock := in.locks.Lock(a.ID)
	defer unlock()

	exists, err := in.wrapperExists(a)
	if err != nil {
		return outcomeRejected, err
	}
	if exists {
		return outcome, nil
	}
	// keep the wrapper so interactions on it reach the original
	wrapper := &domain.Post{
		ID:           a.ID,
		Type:         string(domain.TypeAnnounce),
		AttributedTo: a.Actor,
		AnnounceOf:   a.Object.ID(),
		Published:    parsePublished(a.Published),
	}
	if err := in.posts.SavePost(wrapper); err != nil {
		return outcomeFailed, err
	}
	return outcome, nil
}

// wrapperExists reports whether the Announce id is already stored as this
// actor's wrapper. Any other post under that id is a conflict.
func (in *Inbox) wrapperExists(a *domain.Activity) (bool, error) {
	existing, err := in.posts.ReadPost(a.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !existing.IsAnnounce() || existing.AttributedTo != a.Actor {
		return false, fmt.Errorf("%w: %s already names another post", domain.ErrConflict, a.ID)
	}
	return true, nil
}

// checkOrigin refuses object ids that are not served from the sender's host.
// Ids under this instance's origin only come from local actors.
func (in *Inbox) checkOrigin(actor, id string) error {
	host := domain.DomainOf(id)
	if host == "" || host != domain.DomainOf(actor) {
		return fmt.Errorf("%w: %s cannot publish %s", domain.ErrUnauthorized, actor, id)
	}
	if in.instance.IsLocalURI(id) && !in.instance.IsLocalURI(actor) {
		return fmt.Errorf("%w: remote actor %s cannot publish the local id %s", domain.ErrUnauthorized, actor, id)
	}
	return nil
}

func (in *Inbox) handleUndo(nickname string, a *domain.Activity) (string, error) {
	nested := a.Object.Activity
	undoer, err := domain.ParseActor(a.Actor)
	if err != nil {
		return outcomeRejected, err
	}
	original, err := domain.ParseActor(nested.Actor)
	if err != nil {
		return outcomeRejected, err
	}
	if !undoer.SameAs(original) {
		return outcomeRejected, fmt.Errorf("%w: %s cannot undo an activity of %s", domain.ErrUnauthorized, a.Actor, nested.Actor)
	}

	switch nested.Type {
	case domain.TypeFollow:
		followed, err := domain.ParseActor(nested.Object.ID())
		if err != nil {
			return outcomeRejected, err
		}
		removed, err := in.follows.DeleteFollow(&domain.Follow{
			FollowerNickname: undoer.Nickname,
			FollowerDomain:   undoer.FullDomain(),
			FollowedNickname: followed.Nickname,
			FollowedDomain:   followed.FullDomain(),
		})
		if err != nil {
			return outcomeFailed, err
		}
		in.log.Infof("Inbox: Removed follow from %s", undoer.Handle())
		return applied(removed), nil
	case domain.TypeLike:
		return in.interact(nickname, a, domain.CollectionLikes, domain.OpRemove, nested.Object.ID(), "")
	case domain.TypeEmojiReact:
		return in.interact(nickname, a, domain.CollectionReactions, domain.OpRemove, nested.Object.ID(), nested.Content)
	case domain.TypeAnnounce:
		outcome, err := in.interact(nickname, a, domain.CollectionShares, domain.OpRemove, nested.Object.ID(), "")
		if err != nil {
			return outcome, err
		}
		if nested.ID != "" {
			if _, err := in.deleter.Delete(a.Actor, nested.ID, true); err != nil && domain.KindOf(err) == domain.KindTransient {
				return outcomeFailed, err
			}
		}
		return outcome, nil
	case domain.TypeAdd:
		return in.handleAddRemove(&domain.Activity{
			ID:     a.ID,
			Type:   domain.TypeRemove,
			Actor:  a.Actor,
			Object: nested.Object,
			Target: nested.Target,
		}, domain.OpRemove)
	}
	return outcomeIgnored, nil
}

func (in *Inbox) handleDelete(a *domain.Activity) (string, error) {
	objectID := a.Object.ID()
	if objectID == a.Actor {
		in.log.Infof("Inbox: Actor %s deleted their account", a.Actor)
		return outcomeIgnored, nil
	}
	// the ownership check still applies, so remote authors may delete their own posts
	res, err := in.deleter.Delete(a.Actor, objectID, true)
	if err != nil {
		return outcomeRejected, err
	}
	return applied(res == domain.DeleteRemoved), nil
}

// IsBookmarksTarget reports whether an Add/Remove target is a bookmarks timeline
func IsBookmarksTarget(target string) bool {
	return strings.HasSuffix(strings.TrimSuffix(target, "/"), "/tlbookmarks")
}

func (in *Inbox) handleAddRemove(a *domain.Activity, op domain.MutationOp) (string, error) {
	switch {
	case IsBookmarksTarget(a.Target):
		// bookmarks are private and only arrive from our own users
		if !in.instance.IsLocalURI(a.Actor) || !strings.HasPrefix(a.Target, a.Actor+"/") {
			return outcomeRejected, fmt.Errorf("%w: bookmark by %s into %s", domain.ErrUnauthorized, a.Actor, a.Target)
		}
		return in.interact("", a, domain.CollectionBookmarks, op, a.Object.ID(), "")
	case IsSharesTarget(a.Target):
		if !strings.HasPrefix(a.Target, a.Actor+"/") {
			return outcomeRejected, fmt.Errorf("%w: %s cannot change the catalog %s", domain.ErrUnauthorized, a.Actor, a.Target)
		}
		if op == domain.OpRemove {
			removed, err := in.catalog.Remove(a.Actor, a.Object.ID())
			return applied(removed), err
		}
		added, err := in.catalog.Add(a.Actor, sharedItemOf(a))
		return applied(added), err
	}
	in.log.Debugf("Inbox: Unsupported %s target %s", a.Type, a.Target)
	return outcomeIgnored, nil
}

func sharedItemOf(a *domain.Activity) SharedItem {
	item := SharedItem{ID: a.Object.ID(), Type: "Offer", Published: a.Published}
	if obj := a.Object.Object; obj != nil {
		if obj.Type != "" {
			item.Type = obj.Type
		}
		item.Name = obj.Content
		if obj.Summary != nil {
			item.Summary = *obj.Summary
		}
		item.URL = obj.URL
	}
	return item
}

func (in *Inbox) handleUpdate(a *domain.Activity) (string, error) {
	obj := a.Object.Object
	if obj.Type == "Capability" {
		if err := in.caps.ReceiveUpdate(a); err != nil {
			return outcomeRejected, err
		}
		return outcomeApplied, nil
	}

	author := obj.AttributedTo
	if author == "" {
		author = a.Actor
	}
	if author != a.Actor {
		return outcomeRejected, fmt.Errorf("%w: %s cannot edit a post by %s", domain.ErrUnauthorized, a.Actor, author)
	}
	if err := in.checkOrigin(a.Actor, obj.ID); err != nil {
		return outcomeRejected, err
	}

	unlock := in.locks.Lock(obj.ID)
	defer unlock()

	post, err := in.posts.ReadPost(obj.ID)
	if err != nil {
		return outcomeRejected, err
	}
	if post.AttributedTo != a.Actor {
		return outcomeRejected, fmt.Errorf("%w: %s cannot edit a post by %s", domain.ErrUnauthorized, a.Actor, post.AttributedTo)
	}
	applyObject(post, obj)
	if err := in.posts.SavePost(post); err != nil {
		return outcomeFailed, err
	}
	in.cache.Evict(post.ID)
	in.log.Infof("Inbox: Updated %s %s", obj.Type, obj.ID)
	return outcomeApplied, nil
}

func (in *Inbox) handleCreate(nickname string, a *domain.Activity) (string, error) {
	obj := a.Object.Object
	if obj.ID == "" {
		return outcomeRejected, fmt.Errorf("%w: Create without object id", domain.ErrMalformed)
	}
	if obj.AttributedTo != "" && obj.AttributedTo != a.Actor {
		return outcomeRejected, fmt.Errorf("%w: %s cannot create a post attributed to %s", domain.ErrUnauthorized, a.Actor, obj.AttributedTo)
	}
	if err := in.checkOrigin(a.Actor, obj.ID); err != nil {
		return outcomeRejected, err
	}
	if err := in.capable(nickname, a); err != nil {
		return outcomeRejected, err
	}

	unlock := in.locks.Lock(obj.ID)
	defer unlock()

	if _, err := in.posts.ReadPost(obj.ID); err == nil {
		return outcomeNoop, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return outcomeFailed, err
	}

	post := &domain.Post{
		ID:           obj.ID,
		Type:         obj.Type,
		AttributedTo: a.Actor,
		Published:    parsePublished(a.Published),
	}
	applyObject(post, obj)
	if err := in.posts.SavePost(post); err != nil {
		return outcomeFailed, err
	}
	if isPublic(a) {
		if err := in.posts.AddModerationEntry(post.ID); err != nil {
			return outcomeFailed, err
		}
	}
	in.log.Infof("Inbox: Stored %s %s from %s", obj.Type, obj.ID, a.Actor)
	return outcomeApplied, nil
}

func applyObject(post *domain.Post, obj *domain.Object) {
	post.InReplyTo = obj.InReplyTo
	post.Content = obj.Content
	post.Summary = ""
	if obj.Summary != nil {
		post.Summary = *obj.Summary
	}
	post.Sensitive = obj.Sensitive != nil && *obj.Sensitive
}

func isPublic(a *domain.Activity) bool {
	return slices.Contains(a.To, PublicAddress) || slices.Contains(a.Cc, PublicAddress)
}

func parsePublished(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
