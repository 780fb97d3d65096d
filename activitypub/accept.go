package activitypub

import (
	"errors"
	"fmt"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"go.uber.org/zap"
)

// AcceptProcessor turns an Accept of one of our Follow (or Join) requests
// into a stored follow relationship. Rejects are only logged.
type AcceptProcessor struct {
	follows  FollowStore
	instance Instance
	log      *zap.SugaredLogger
}

func NewAcceptProcessor(follows FollowStore, instance Instance) *AcceptProcessor {
	return &AcceptProcessor{follows: follows, instance: instance, log: logging.Component("accept")}
}

// Process handles an Accept or Reject. created is true only when a new
// relationship row was written; a repeated Accept returns false, nil.
func (p *AcceptProcessor) Process(a *domain.Activity) (bool, error) {
	nested := a.Object.Activity
	if nested == nil || (nested.Type != domain.TypeFollow && nested.Type != domain.TypeJoin) {
		return false, fmt.Errorf("%w: %s does not wrap a Follow or Join", domain.ErrMalformed, a.Type)
	}

	follower, err := domain.ParseActor(nested.Actor)
	if err != nil {
		return false, fmt.Errorf("unresolvable follower: %w", err)
	}
	followedURI := nested.Object.ID()
	followed, err := domain.ParseActor(followedURI)
	if err != nil {
		return false, fmt.Errorf("unresolvable followed actor: %w", err)
	}

	// only the followed actor can answer the request
	accepter, err := domain.ParseActor(a.Actor)
	if err != nil {
		return false, fmt.Errorf("unresolvable accepting actor: %w", err)
	}
	if !accepter.SameAs(followed) {
		return false, fmt.Errorf("%w: %s answered a follow request addressed to %s", domain.ErrUnauthorized, accepter.Handle(), followed.Handle())
	}

	// the follower is us, possibly under our onion or i2p name
	follower = p.instance.canonicalDomain(follower)
	if !p.instance.IsLocal(follower) {
		return false, fmt.Errorf("%w: follower %s is not local", domain.ErrUnauthorized, follower.Handle())
	}

	if a.Type == domain.TypeReject {
		p.log.Infof("Follow request from %s was rejected by %s", follower.Handle(), followed.Handle())
		return false, nil
	}

	follow := &domain.Follow{
		FollowerNickname: follower.Nickname,
		FollowerDomain:   follower.FullDomain(),
		FollowerActor:    p.instance.ActorURL(follower.Nickname),
		FollowedNickname: followed.Nickname,
		FollowedDomain:   followed.FullDomain(),
		IsGroup:          nested.Type == domain.TypeJoin || p.isGroup(followedURI),
	}

	stale, err := p.follows.HasUnfollowed(follow)
	if err != nil {
		return false, err
	}
	if stale {
		p.log.Debugf("Dropping stale Accept, %s has unfollowed %s", follow.FollowerHandle(), follow.FollowedHandle())
		return false, nil
	}

	created, err := p.follows.CreateFollow(follow)
	if err != nil {
		return false, err
	}
	if created {
		p.log.Infof("%s now follows %s", follow.FollowerHandle(), follow.FollowedHandle())
	} else {
		p.log.Debugf("%s already follows %s", follow.FollowerHandle(), follow.FollowedHandle())
	}
	return created, nil
}

func (p *AcceptProcessor) isGroup(actorURI string) bool {
	cached, err := p.follows.ReadCachedActor(actorURI)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Warnf("Actor cache lookup for %s failed: %v", actorURI, err)
		}
		return false
	}
	return cached.ActorType == "Group"
}
