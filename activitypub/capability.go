package activitypub

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const capabilityTokenBytes = 32

// CapabilityStore issues, rotates and evaluates object capabilities. Every
// load-modify-save of one record runs under the lock for its storage key.
type CapabilityStore struct {
	kv    KVStore
	locks *util.KeyedMutex
	log   *zap.SugaredLogger
}

func NewCapabilityStore(kv KVStore, locks *util.KeyedMutex) *CapabilityStore {
	if locks == nil {
		locks = util.NewKeyedMutex()
	}
	return &CapabilityStore{kv: kv, locks: locks, log: logging.Component("ocap")}
}

// capabilityKey derives the storage key from the owner handle, the grantee and the direction
func capabilityKey(owner, grantee string, dir domain.CapabilityDirection) (string, error) {
	if len(owner) > domain.MaxActorLength || len(grantee) > domain.MaxActorLength {
		return "", fmt.Errorf("%w: actor identifier longer than %d characters", domain.ErrMalformed, domain.MaxActorLength)
	}
	if grantee == "" {
		return "", fmt.Errorf("%w: empty grantee", domain.ErrMalformed)
	}
	ref, err := domain.ParseActor(owner)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256([]byte(grantee))
	return "ocap/" + string(dir) + "/" + ref.Handle() + "/" + hex.EncodeToString(sum[:]), nil
}

func newCapabilityID(grantor string) (string, error) {
	token, err := util.RandomToken(capabilityTokenBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return grantor + "#caps-" + token, nil
}

func (s *CapabilityStore) load(key string) (*domain.Capability, error) {
	buf, err := s.kv.Get(key)
	if err != nil {
		return nil, err
	}
	var c domain.Capability
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("%w: stored capability %s is corrupt: %v", domain.ErrTransient, key, err)
	}
	return &c, nil
}

func (s *CapabilityStore) save(key string, c *domain.Capability) error {
	buf, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode capability: %w", err)
	}
	return s.kv.Put(key, buf)
}

// GetOrCreate returns the capability owner grants to grantee, minting one
// with defaultCaps on first use. An existing record is returned verbatim.
func (s *CapabilityStore) GetOrCreate(owner, grantee string, defaultCaps []string) (*domain.Capability, error) {
	key, err := capabilityKey(owner, grantee, domain.CapabilityAccepted)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	existing, err := s.load(key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	id, err := newCapabilityID(owner)
	if err != nil {
		return nil, err
	}
	c := &domain.Capability{
		Context:    domain.ActivityStreamsContext,
		ID:         id,
		Type:       "Capability",
		Actor:      owner,
		Scope:      grantee,
		Capability: slices.Clone(defaultCaps),
	}
	if err := s.save(key, c); err != nil {
		return nil, err
	}
	s.log.Debugf("Issued capability for %s to %s", owner, grantee)
	return c, nil
}

// Lookup returns the capability owner granted to grantee, domain.ErrNotFound when none
func (s *CapabilityStore) Lookup(owner, grantee string) (*domain.Capability, error) {
	key, err := capabilityKey(owner, grantee, domain.CapabilityAccepted)
	if err != nil {
		return nil, err
	}
	return s.load(key)
}

// Rotate replaces the capability list and mints a new id. The previous id is
// never valid again. The returned Update is addressed to the grantee.
func (s *CapabilityStore) Rotate(owner, grantee string, newCaps []string) (*domain.Activity, error) {
	key, err := capabilityKey(owner, grantee, domain.CapabilityAccepted)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	c, err := s.load(key)
	if err != nil {
		return nil, err
	}

	id, err := newCapabilityID(owner)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.Capability = slices.Clone(newCaps)
	if err := s.save(key, c); err != nil {
		return nil, err
	}
	s.log.Infof("Rotated capability for %s granted to %s", owner, grantee)

	updateID, err := util.RandomToken(16)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return &domain.Activity{
		Context: domain.ActivityStreamsContext,
		ID:      owner + "#updates/" + updateID,
		Type:    domain.TypeUpdate,
		Actor:   owner,
		To:      []string{grantee},
		Object: domain.ObjRef(&domain.Object{
			ID:         c.ID,
			Type:       c.Type,
			Actor:      c.Actor,
			Scope:      c.Scope,
			Capability: c.Capability,
		}),
	}, nil
}

// Check reports whether presentedID is the current id of the capability
// owner granted to grantee. Ids replaced by Rotate fail.
func (s *CapabilityStore) Check(owner, grantee, presentedID string) bool {
	c, err := s.Lookup(owner, grantee)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.ID), []byte(presentedID)) == 1
}

// ReceiveUpdate stores a capability a peer granted to one of our actors
func (s *CapabilityStore) ReceiveUpdate(update *domain.Activity) error {
	obj := update.Object.Object
	if obj == nil || obj.Type != "Capability" || obj.ID == "" || obj.Scope == "" {
		return fmt.Errorf("%w: update does not carry a capability", domain.ErrMalformed)
	}
	grantor := obj.Actor
	if grantor == "" {
		grantor = update.Actor
	}
	if grantor != update.Actor {
		return fmt.Errorf("%w: %s cannot update a capability granted by %s", domain.ErrUnauthorized, update.Actor, grantor)
	}
	if !strings.HasPrefix(obj.ID, grantor+"#") {
		return fmt.Errorf("%w: capability id %s is not issued by %s", domain.ErrUnauthorized, obj.ID, grantor)
	}

	key, err := capabilityKey(obj.Scope, grantor, domain.CapabilityGranted)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	c := &domain.Capability{
		Context:    domain.ActivityStreamsContext,
		ID:         obj.ID,
		Type:       "Capability",
		Actor:      grantor,
		Scope:      obj.Scope,
		Capability: slices.Clone(obj.Capability),
	}
	if err := s.save(key, c); err != nil {
		return err
	}
	s.log.Infof("Stored capability granted by %s to %s", grantor, obj.Scope)
	return nil
}

// Granted returns the capability grantor granted to our actor
func (s *CapabilityStore) Granted(actor, grantor string) (*domain.Capability, error) {
	key, err := capabilityKey(actor, grantor, domain.CapabilityGranted)
	if err != nil {
		return nil, err
	}
	return s.load(key)
}

// Evaluate is the inbox policy gate. Each flag rejects one kind of post;
// a post that triggers none of them is admitted.
func (s *CapabilityStore) Evaluate(caps []string, post *domain.Activity) bool {
	has := func(flag string) bool { return slices.Contains(caps, flag) }

	switch post.Type {
	case domain.TypeAnnounce:
		if has(domain.CapInboxNoAnnounce) {
			return false
		}
	case domain.TypeLike:
		if has(domain.CapInboxNoLike) {
			return false
		}
	case domain.TypeCreate:
		obj := post.Object.Object
		if obj == nil {
			return true
		}
		if has(domain.CapInboxNoReply) && obj.InReplyTo != "" {
			return false
		}
		if has(domain.CapInboxCW) {
			if obj.Sensitive != nil && !*obj.Sensitive {
				return false
			}
			if obj.Summary != nil && utf8.RuneCountInString(*obj.Summary) < 2 {
				return false
			}
		}
	}
	return true
}
