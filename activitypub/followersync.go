package activitypub

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// SyncHeaderName is the response header carrying the follower digest
const SyncHeaderName = "Collection-Synchronization"

// emptyDigest is the digest of a set with no members
var emptyDigest = strings.Repeat("0", sha256.Size*2)

type followerDigest struct {
	digest string
	list   []string
}

// FollowerSync computes the digest two instances compare to detect whether
// their views of a follower set diverged.
type FollowerSync struct {
	follows FollowStore
	cache   *cache.Cache
	group   singleflight.Group
	metrics *Metrics
}

// NewFollowerSync creates a reconciler whose cached digests expire after ttl
func NewFollowerSync(follows FollowStore, ttl time.Duration, metrics *Metrics) *FollowerSync {
	return &FollowerSync{
		follows: follows,
		cache:   cache.New(ttl, 2*ttl),
		metrics: metrics,
	}
}

// Digest returns the hex XOR of the SHA-256 of each follower of
// nickname@domainName living on peerDomain, and the sorted follower list.
func (s *FollowerSync) Digest(nickname, domainName, peerDomain string) (string, []string, error) {
	key := nickname + "|" + strings.ToLower(peerDomain)
	if v, ok := s.cache.Get(key); ok {
		s.metrics.digestLookup(true)
		d := v.(followerDigest)
		return d.digest, append([]string(nil), d.list...), nil
	}
	s.metrics.digestLookup(false)

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		list, err := s.followersOn(nickname, domainName, peerDomain)
		if err != nil {
			return nil, err
		}
		d := followerDigest{digest: DigestOf(list), list: list}
		s.cache.SetDefault(key, d)
		return d, nil
	})
	if err != nil {
		return "", nil, err
	}
	d := v.(followerDigest)
	return d.digest, append([]string(nil), d.list...), nil
}

func (s *FollowerSync) followersOn(nickname, domainName, peerDomain string) ([]string, error) {
	followers, err := s.follows.ReadFollowers(nickname, domainName)
	if err != nil {
		return nil, err
	}

	peer := strings.ToLower(peerDomain)
	list := []string{}
	for _, f := range followers {
		actor := f.FollowerActor
		if actor == "" {
			cached, err := s.follows.ReadCachedActorByHandle(f.FollowerNickname, f.FollowerDomain)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			if cached != nil {
				actor = cached.ActorURI
			}
		}
		if !strings.EqualFold(f.FollowerDomain, peer) && !strings.EqualFold(actorHost(actor), peer) {
			continue
		}
		if actor == "" {
			actor = "https://" + f.FollowerDomain + "/users/" + f.FollowerNickname
		}
		list = append(list, actor)
	}
	sort.Strings(list)
	return list, nil
}

func actorHost(actor string) string {
	if actor == "" {
		return ""
	}
	u, err := url.Parse(actor)
	if err != nil {
		return ""
	}
	return u.Host
}

// DigestOf XORs the SHA-256 of every reference. Order does not matter and
// an empty list yields all zeros.
func DigestOf(refs []string) string {
	var acc [sha256.Size]byte
	for _, r := range refs {
		sum := sha256.Sum256([]byte(r))
		for i := range acc {
			acc[i] ^= sum[i]
		}
	}
	return hex.EncodeToString(acc[:])
}

// SyncHeader is a parsed Collection-Synchronization header
type SyncHeader struct {
	CollectionID string
	URL          string
	Digest       string
}

// String formats the header value
func (h SyncHeader) String() string {
	return fmt.Sprintf(`collectionId="%s", url="%s", digest="%s"`, h.CollectionID, h.URL, h.Digest)
}

// Matches compares the header digest to ours in constant time
func (h SyncHeader) Matches(digest string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(h.Digest)), []byte(strings.ToLower(digest))) == 1
}

// Header builds the header a followers collection response of
// nickname carries for a caller on peerDomain.
func (s *FollowerSync) Header(instance Instance, nickname, peerDomain string) (SyncHeader, error) {
	digest, _, err := s.Digest(nickname, instance.Domain, peerDomain)
	if err != nil {
		return SyncHeader{}, err
	}
	actor := instance.ActorURL(nickname)
	return SyncHeader{
		CollectionID: actor + "/followers",
		URL:          actor + "/followers_synchronization",
		Digest:       digest,
	}, nil
}

var syncParamRe = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseSyncHeader reads a Collection-Synchronization header value
func ParseSyncHeader(value string) (SyncHeader, error) {
	var h SyncHeader
	for _, m := range syncParamRe.FindAllStringSubmatch(value, -1) {
		switch m[1] {
		case "collectionId":
			h.CollectionID = m[2]
		case "url":
			h.URL = m[2]
		case "digest":
			h.Digest = m[2]
		}
	}
	if h.CollectionID == "" || h.Digest == "" {
		return SyncHeader{}, fmt.Errorf("%w: incomplete %s header", domain.ErrMalformed, SyncHeaderName)
	}
	if _, err := hex.DecodeString(h.Digest); err != nil || len(h.Digest) != sha256.Size*2 {
		return SyncHeader{}, fmt.Errorf("%w: invalid digest in %s header", domain.ErrMalformed, SyncHeaderName)
	}
	return h, nil
}
