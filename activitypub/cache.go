package activitypub

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// RenderCache holds rendered post documents. It is built at server start and
// handed to every component that mutates posts.
type RenderCache struct {
	c *cache.Cache
}

func NewRenderCache(ttl time.Duration) *RenderCache {
	return &RenderCache{c: cache.New(ttl, 2*ttl)}
}

func (r *RenderCache) Get(postID string) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.c.Get(postID)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (r *RenderCache) Set(postID string, rendered []byte) {
	if r == nil {
		return
	}
	r.c.SetDefault(postID, rendered)
}

// Evict forces the next read of postID to re-render
func (r *RenderCache) Evict(postID string) {
	if r == nil {
		return
	}
	r.c.Delete(postID)
}
