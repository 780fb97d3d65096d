package activitypub

import (
	"fmt"
	"strings"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
)

// DeleteProcessor authorizes and performs post deletion
type DeleteProcessor struct {
	posts    PostStore
	cache    *RenderCache
	locks    *util.KeyedMutex
	instance Instance
	log      *zap.SugaredLogger
}

func NewDeleteProcessor(posts PostStore, cache *RenderCache, locks *util.KeyedMutex, instance Instance) *DeleteProcessor {
	if locks == nil {
		locks = util.NewKeyedMutex()
	}
	return &DeleteProcessor{
		posts:    posts,
		cache:    cache,
		locks:    locks,
		instance: instance,
		log:      logging.Component("delete"),
	}
}

// Delete removes postID on behalf of actor. Unless allowCross is set both
// must live under this instance's origin. The post's nickname and domain
// must always match the actor's.
func (p *DeleteProcessor) Delete(actor, postID string, allowCross bool) (domain.DeleteResult, error) {
	if !allowCross {
		prefix := p.instance.Origin() + "/"
		if !strings.HasPrefix(postID, prefix) || !strings.HasPrefix(actor, prefix) {
			return 0, fmt.Errorf("%w: cross-instance deletion of %s by %s", domain.ErrUnauthorized, postID, actor)
		}
	}

	requester, err := domain.ParseActor(actor)
	if err != nil {
		return 0, err
	}
	target, err := domain.ParseActor(postID)
	if err != nil {
		return 0, err
	}
	if requester.Nickname != target.Nickname || !strings.EqualFold(requester.Domain, target.Domain) {
		return 0, fmt.Errorf("%w: %s may not delete %s", domain.ErrUnauthorized, requester.Handle(), postID)
	}

	unlock := p.locks.Lock(postID)
	defer unlock()

	if err := p.posts.RemoveModerationEntry(postID); err != nil {
		return 0, err
	}
	removed, err := p.posts.DeletePost(postID)
	if err != nil {
		return 0, err
	}
	p.cache.Evict(postID)

	if !removed {
		p.log.Debugf("Delete of %s by %s: already absent", postID, requester.Handle())
		return domain.DeleteAlreadyAbsent, nil
	}
	p.log.Infof("Deleted %s on behalf of %s", postID, requester.Handle())
	return domain.DeleteRemoved, nil
}
