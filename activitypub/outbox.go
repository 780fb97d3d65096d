package activitypub

import (
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"go.uber.org/zap"
)

// Outbox applies activities of local users. Local state is always changed
// first; delivery to peers is queued afterwards and may fail independently.
type Outbox struct {
	instance      Instance
	mutator       *CollectionMutator
	deleter       *DeleteProcessor
	caps          *CapabilityStore
	catalog       *Catalog
	follows       FollowStore
	posts         PostStore
	sender        *Sender
	allowDeletion bool
	log           *zap.SugaredLogger
}

// Submit dispatches an activity authored by the local user nickname
func (o *Outbox) Submit(nickname string, a *domain.Activity) error {
	actor := o.instance.ActorURL(nickname)
	if a.Actor != "" && a.Actor != actor {
		return fmt.Errorf("%w: %s cannot post as %s", domain.ErrUnauthorized, nickname, a.Actor)
	}
	a.Actor = actor
	o.log.Infof("Outbox: %s submitted %s", nickname, a.Type)

	switch a.Type {
	case domain.TypeLike:
		return o.Like(nickname, a.Object.ID())
	case domain.TypeEmojiReact:
		return o.React(nickname, a.Object.ID(), a.Content)
	case domain.TypeAnnounce:
		return o.Announce(nickname, a.Object.ID())
	case domain.TypeFollow, domain.TypeJoin:
		return o.Follow(nickname, a.Object.ID())
	case domain.TypeDelete:
		_, err := o.Delete(nickname, a.Object.ID())
		return err
	case domain.TypeCreate:
		return o.Create(nickname, a)
	case domain.TypeUndo:
		return o.undo(nickname, a)
	case domain.TypeAdd, domain.TypeRemove:
		return o.addRemove(nickname, a)
	case domain.TypeUpdate:
		obj := a.Object.Object
		if obj == nil || obj.Type != "Capability" {
			return fmt.Errorf("%w: only capability updates are supported", domain.ErrMalformed)
		}
		return o.RotateCapability(nickname, obj.Scope, obj.Capability)
	}
	return fmt.Errorf("%w: unsupported outbox activity %s", domain.ErrMalformed, a.Type)
}

func (o *Outbox) undo(nickname string, a *domain.Activity) error {
	nested := a.Object.Activity
	if nested == nil {
		return fmt.Errorf("%w: Undo without nested activity", domain.ErrMalformed)
	}
	switch nested.Type {
	case domain.TypeLike:
		return o.Unlike(nickname, nested.Object.ID())
	case domain.TypeEmojiReact:
		return o.Unreact(nickname, nested.Object.ID(), nested.Content)
	case domain.TypeFollow:
		return o.Unfollow(nickname, nested.Object.ID())
	case domain.TypeAdd:
		if IsBookmarksTarget(nested.Target) {
			return o.Bookmark(nickname, nested.Object.ID(), domain.OpRemove)
		}
	}
	return fmt.Errorf("%w: unsupported Undo of %s", domain.ErrMalformed, nested.Type)
}

func (o *Outbox) addRemove(nickname string, a *domain.Activity) error {
	op := domain.OpAdd
	if a.Type == domain.TypeRemove {
		op = domain.OpRemove
	}
	switch {
	case IsBookmarksTarget(a.Target):
		return o.Bookmark(nickname, a.Object.ID(), op)
	case IsSharesTarget(a.Target):
		if op == domain.OpRemove {
			return o.Withdraw(nickname, a.Object.ID())
		}
		return o.Offer(nickname, sharedItemOf(a))
	}
	return fmt.Errorf("%w: unsupported target %s", domain.ErrMalformed, a.Target)
}

// interact mutates the local collection and then notifies the post's author
func (o *Outbox) interact(nickname, postID string, name domain.CollectionName, op domain.MutationOp, content string, notify domain.ActivityType) error {
	actor := o.instance.ActorURL(nickname)
	res, err := o.mutator.Mutate(postID, name, domain.CollectionEntry{Actor: actor, Content: content}, op)
	if err != nil {
		return err
	}
	if !res.Changed() || notify == "" || res.Author == "" || o.instance.IsLocalURI(res.Author) {
		return nil
	}

	activity := &domain.Activity{
		ID:      o.instance.ActivityURL(),
		Type:    notify,
		Actor:   actor,
		Object:  domain.IRIRef(res.PostID),
		Content: content,
		To:      []string{res.Author},
	}
	if op == domain.OpRemove {
		activity = &domain.Activity{
			ID:     o.instance.ActivityURL(),
			Type:   domain.TypeUndo,
			Actor:  actor,
			Object: domain.ActivityRef(activity),
			To:     []string{res.Author},
		}
	}
	if err := o.sender.Send(activity, res.Author); err != nil {
		o.log.Warnf("Outbox: Failed to queue %s for %s: %v", activity.Type, res.Author, err)
	}
	return nil
}

func (o *Outbox) Like(nickname, postID string) error {
	return o.interact(nickname, postID, domain.CollectionLikes, domain.OpAdd, "", domain.TypeLike)
}

func (o *Outbox) Unlike(nickname, postID string) error {
	return o.interact(nickname, postID, domain.CollectionLikes, domain.OpRemove, "", domain.TypeLike)
}

func (o *Outbox) React(nickname, postID, emoji string) error {
	if !validEmojiContent(emoji) {
		return fmt.Errorf("%w: %q is not an emoji reaction", domain.ErrMalformed, emoji)
	}
	return o.interact(nickname, postID, domain.CollectionReactions, domain.OpAdd, emoji, domain.TypeEmojiReact)
}

func (o *Outbox) Unreact(nickname, postID, emoji string) error {
	return o.interact(nickname, postID, domain.CollectionReactions, domain.OpRemove, emoji, domain.TypeEmojiReact)
}

func (o *Outbox) Announce(nickname, postID string) error {
	return o.interact(nickname, postID, domain.CollectionShares, domain.OpAdd, "", domain.TypeAnnounce)
}

// Bookmark is private, nothing is sent
func (o *Outbox) Bookmark(nickname, postID string, op domain.MutationOp) error {
	return o.interact(nickname, postID, domain.CollectionBookmarks, op, "", "")
}

// Follow clears any earlier unfollow of target and sends a Follow request
func (o *Outbox) Follow(nickname, target string) error {
	follow, err := o.pair(nickname, target)
	if err != nil {
		return err
	}
	if err := o.follows.ClearUnfollow(follow); err != nil {
		return err
	}

	activity := &domain.Activity{
		ID:     o.instance.ActivityURL(),
		Type:   domain.TypeFollow,
		Actor:  follow.FollowerActor,
		Object: domain.IRIRef(target),
		To:     []string{target},
	}
	if err := o.sender.Send(activity, target); err != nil {
		o.log.Warnf("Outbox: Failed to queue Follow for %s: %v", target, err)
	}
	o.log.Infof("Outbox: %s requested to follow %s", follow.FollowerHandle(), follow.FollowedHandle())
	return nil
}

// Unfollow records the unfollow so late Accepts are ignored, removes the
// relationship and sends an Undo.
func (o *Outbox) Unfollow(nickname, target string) error {
	follow, err := o.pair(nickname, target)
	if err != nil {
		return err
	}
	if err := o.follows.RecordUnfollow(follow); err != nil {
		return err
	}
	if _, err := o.follows.DeleteFollow(follow); err != nil {
		return err
	}

	activity := &domain.Activity{
		ID:    o.instance.ActivityURL(),
		Type:  domain.TypeUndo,
		Actor: follow.FollowerActor,
		Object: domain.ActivityRef(&domain.Activity{
			Type:   domain.TypeFollow,
			Actor:  follow.FollowerActor,
			Object: domain.IRIRef(target),
		}),
		To: []string{target},
	}
	if err := o.sender.Send(activity, target); err != nil {
		o.log.Warnf("Outbox: Failed to queue Undo Follow for %s: %v", target, err)
	}
	o.log.Infof("Outbox: %s unfollowed %s", follow.FollowerHandle(), follow.FollowedHandle())
	return nil
}

func (o *Outbox) pair(nickname, target string) (*domain.Follow, error) {
	followed, err := domain.ParseActor(target)
	if err != nil {
		return nil, err
	}
	return &domain.Follow{
		FollowerNickname: nickname,
		FollowerDomain:   o.instance.Domain,
		FollowerActor:    o.instance.ActorURL(nickname),
		FollowedNickname: followed.Nickname,
		FollowedDomain:   followed.FullDomain(),
	}, nil
}

// Delete removes one of nickname's posts and tells the followers
func (o *Outbox) Delete(nickname, postID string) (domain.DeleteResult, error) {
	actor := o.instance.ActorURL(nickname)
	res, err := o.deleter.Delete(actor, postID, o.allowDeletion)
	if err != nil {
		return res, err
	}
	if res == domain.DeleteRemoved {
		o.toFollowers(nickname, &domain.Activity{
			ID:     o.instance.ActivityURL(),
			Type:   domain.TypeDelete,
			Actor:  actor,
			Object: domain.IRIRef(postID),
			To:     []string{PublicAddress},
		})
	}
	return res, nil
}

// Create stores a new local post and sends it to the followers
func (o *Outbox) Create(nickname string, a *domain.Activity) error {
	a.Actor = o.instance.ActorURL(nickname)
	obj := a.Object.Object
	if obj == nil || obj.ID == "" {
		return fmt.Errorf("%w: Create without object id", domain.ErrMalformed)
	}
	if !o.instance.IsLocalURI(obj.ID) {
		return fmt.Errorf("%w: %s is not a local post id", domain.ErrUnauthorized, obj.ID)
	}
	if _, err := o.posts.ReadPost(obj.ID); err == nil {
		return fmt.Errorf("%w: %s already exists", domain.ErrConflict, obj.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	post := &domain.Post{
		ID:           obj.ID,
		Type:         obj.Type,
		AttributedTo: a.Actor,
		Published:    time.Now().UTC(),
	}
	applyObject(post, obj)
	if err := o.posts.SavePost(post); err != nil {
		return err
	}
	if isPublic(a) {
		if err := o.posts.AddModerationEntry(post.ID); err != nil {
			return err
		}
	}

	if a.ID == "" {
		a.ID = o.instance.ActivityURL()
	}
	obj.AttributedTo = a.Actor
	o.toFollowers(nickname, a)
	return nil
}

func (o *Outbox) toFollowers(nickname string, a *domain.Activity) {
	followers, err := o.follows.ReadFollowers(nickname, o.instance.Domain)
	if err != nil {
		o.log.Warnf("Outbox: Failed to read followers of %s: %v", nickname, err)
		return
	}
	recipients := make([]string, 0, len(followers))
	for _, f := range followers {
		if f.FollowerActor != "" {
			recipients = append(recipients, f.FollowerActor)
		}
	}
	if err := o.sender.Send(a, recipients...); err != nil {
		o.log.Warnf("Outbox: Failed to queue %s for followers of %s: %v", a.Type, nickname, err)
	}
}

// RotateCapability reissues the capability nickname granted to grantee and sends the Update
func (o *Outbox) RotateCapability(nickname, grantee string, caps []string) error {
	update, err := o.caps.Rotate(o.instance.ActorURL(nickname), grantee, caps)
	if err != nil {
		return err
	}
	if err := o.sender.Send(update, grantee); err != nil {
		o.log.Warnf("Outbox: Failed to queue capability update for %s: %v", grantee, err)
	}
	return nil
}

// Offer adds an item to nickname's shared-item catalog
func (o *Outbox) Offer(nickname string, item SharedItem) error {
	_, err := o.catalog.Add(o.instance.ActorURL(nickname), item)
	return err
}

// Withdraw removes an item from nickname's shared-item catalog
func (o *Outbox) Withdraw(nickname, itemID string) error {
	_, err := o.catalog.Remove(o.instance.ActorURL(nickname), itemID)
	return err
}
