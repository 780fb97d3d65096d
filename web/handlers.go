package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deemkeen/fedcore/activitypub"
	"github.com/deemkeen/fedcore/domain"
	"github.com/gin-gonic/gin"
)

const activityJSON = "application/activity+json; charset=utf-8"

func renderActivity(c *gin.Context, status int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode response"})
		return
	}
	c.Data(status, activityJSON, buf)
}

// handleInbox serves both the per-user and the shared inbox. Rejected
// activities are still answered with 202 so senders do not retry them.
func (s *Server) handleInbox(c *gin.Context) {
	nickname := c.Param("actor")

	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		s.log.Debugf("Inbox: failed to read body: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if err := s.fed.Inbox.Handle(nickname, body); err != nil {
		s.log.Errorf("Inbox: processing for %q failed: %v", nickname, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporarily unable to process activity"})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleOutbox(c *gin.Context) {
	page := ParsePageParam(c.Query("page"))
	outbox, err := GetOutbox(s.store, s.fed.Instance, c.Param("actor"), page)
	if err != nil {
		s.log.Errorf("Outbox: failed to read posts of %s: %v", c.Param("actor"), err)
		c.Status(http.StatusInternalServerError)
		return
	}
	renderActivity(c, http.StatusOK, outbox)
}

// handleFollowers answers with the follower count and, for a caller whose
// domain is known, the Collection-Synchronization header covering the
// followers on that domain.
func (s *Server) handleFollowers(c *gin.Context) {
	nickname := c.Param("actor")
	followers, err := s.store.ReadFollowers(nickname, s.fed.Instance.Domain)
	if err != nil {
		s.log.Errorf("Followers: failed to read followers of %s: %v", nickname, err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if peer := callingDomain(c.Request); peer != "" {
		header, err := s.fed.Followers.Header(s.fed.Instance, nickname, peer)
		if err != nil {
			s.log.Warnf("Followers: digest for %s on %s failed: %v", nickname, peer, err)
		} else {
			c.Header(activitypub.SyncHeaderName, header.String())
		}
	}

	renderActivity(c, http.StatusOK, gin.H{
		"@context":   domain.ActivityStreamsContext,
		"id":         s.fed.Instance.ActorURL(nickname) + "/followers",
		"type":       "OrderedCollection",
		"totalItems": len(followers),
	})
}

func (s *Server) handleFollowing(c *gin.Context) {
	nickname := c.Param("actor")
	following, err := s.store.ReadFollowing(nickname, s.fed.Instance.Domain)
	if err != nil {
		s.log.Errorf("Following: failed to read follows of %s: %v", nickname, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	renderActivity(c, http.StatusOK, gin.H{
		"@context":   domain.ActivityStreamsContext,
		"id":         s.fed.Instance.ActorURL(nickname) + "/following",
		"type":       "OrderedCollection",
		"totalItems": len(following),
	})
}

// handleFollowersSync lists the followers living on the caller's domain so a
// peer whose digest differs can reconcile.
func (s *Server) handleFollowersSync(c *gin.Context) {
	nickname := c.Param("actor")
	peer := callingDomain(c.Request)
	if peer == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "calling domain unknown"})
		return
	}

	digest, list, err := s.fed.Followers.Digest(nickname, s.fed.Instance.Domain, peer)
	if err != nil {
		s.log.Errorf("Followers: synchronization of %s for %s failed: %v", nickname, peer, err)
		c.Status(http.StatusInternalServerError)
		return
	}

	actor := s.fed.Instance.ActorURL(nickname)
	c.Header(activitypub.SyncHeaderName, activitypub.SyncHeader{
		CollectionID: actor + "/followers",
		URL:          actor + "/followers_synchronization",
		Digest:       digest,
	}.String())
	renderActivity(c, http.StatusOK, gin.H{
		"@context":     domain.ActivityStreamsContext,
		"id":           actor + "/followers?domain=" + peer,
		"type":         "OrderedCollection",
		"totalItems":   len(list),
		"orderedItems": list,
	})
}

// handleCatalog serves a shared-item catalog to peers presenting their
// federation token in the Authorization header.
func (s *Server) handleCatalog(c *gin.Context) {
	nickname := c.Param("actor")
	peer := callingDomain(c.Request)
	owner := s.fed.Instance.ActorURL(nickname)

	items, err := s.fed.Catalog.ItemsFor(owner, peer, peer, c.GetHeader("Authorization"))
	if err != nil {
		if domain.KindOf(err) == domain.KindUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}
		s.log.Errorf("Catalog: failed to read catalog of %s: %v", nickname, err)
		c.Status(http.StatusInternalServerError)
		return
	}

	renderActivity(c, http.StatusOK, gin.H{
		"@context":     domain.ActivityStreamsContext,
		"id":           owner + "/catalog",
		"type":         "OrderedCollection",
		"totalItems":   len(items),
		"orderedItems": items,
	})
}

// handlePost renders a public local post, served from the render cache when
// it holds a fresh copy.
func (s *Server) handlePost(c *gin.Context) {
	postID := s.fed.Instance.ActorURL(c.Param("actor")) + "/statuses/" + c.Param("id")

	if cached, ok := s.fed.Cache.Get(postID); ok {
		c.Data(http.StatusOK, activityJSON, cached)
		return
	}

	post, err := s.store.ReadPost(postID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		s.log.Errorf("Post: failed to read %s: %v", postID, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	public, err := s.store.HasModerationEntry(postID)
	if err != nil {
		s.log.Errorf("Post: failed to check visibility of %s: %v", postID, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !public {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	rendered, err := json.Marshal(struct {
		Context string `json:"@context"`
		*domain.Post
	}{domain.ActivityStreamsContext, post})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode post"})
		return
	}
	s.fed.Cache.Set(postID, rendered)
	c.Data(http.StatusOK, activityJSON, rendered)
}
