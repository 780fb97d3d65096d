package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
)

// MaxCatalogItems bounds the shared items one actor can offer
const MaxCatalogItems = 256

// SharedItem is one entry of an actor's shared-item catalog
type SharedItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Actor     string `json:"actor"`
	Name      string `json:"name,omitempty"`
	Summary   string `json:"summary,omitempty"`
	URL       string `json:"url,omitempty"`
	Published string `json:"published,omitempty"`
}

// Catalog stores shared-item catalogs, one document per owner, and serves
// them to federated peers holding a valid token.
type Catalog struct {
	kv     KVStore
	tokens *FederationTokens
	locks  *util.KeyedMutex
	log    *zap.SugaredLogger
}

func NewCatalog(kv KVStore, tokens *FederationTokens, locks *util.KeyedMutex) *Catalog {
	if locks == nil {
		locks = util.NewKeyedMutex()
	}
	return &Catalog{kv: kv, tokens: tokens, locks: locks, log: logging.Component("catalog")}
}

func catalogKey(owner string) (string, error) {
	ref, err := domain.ParseActor(owner)
	if err != nil {
		return "", err
	}
	return "catalog/" + ref.Handle(), nil
}

// IsSharesTarget reports whether an Add/Remove target names a shares collection
func IsSharesTarget(target string) bool {
	return strings.HasSuffix(strings.TrimSuffix(target, "/"), "/shares")
}

func (c *Catalog) load(key string) ([]SharedItem, error) {
	buf, err := c.kv.Get(key)
	if errors.Is(err, domain.ErrNotFound) {
		return []SharedItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	var items []SharedItem
	if err := json.Unmarshal(buf, &items); err != nil {
		return nil, fmt.Errorf("%w: catalog %s is corrupt: %v", domain.ErrTransient, key, err)
	}
	return items, nil
}

func (c *Catalog) save(key string, items []SharedItem) error {
	buf, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return c.kv.Put(key, buf)
}

// Add offers item in owner's catalog. Re-adding an id replaces the item.
func (c *Catalog) Add(owner string, item SharedItem) (bool, error) {
	if item.ID == "" {
		return false, fmt.Errorf("%w: shared item without id", domain.ErrMalformed)
	}
	key, err := catalogKey(owner)
	if err != nil {
		return false, err
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	items, err := c.load(key)
	if err != nil {
		return false, err
	}
	item.Actor = owner
	if item.Type == "" {
		item.Type = "Offer"
	}
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return false, c.save(key, items)
		}
	}
	if len(items) >= MaxCatalogItems {
		c.log.Debugf("Catalog of %s is full, dropping %s", owner, item.ID)
		return false, nil
	}
	items = append(items, item)
	if err := c.save(key, items); err != nil {
		return false, err
	}
	c.log.Infof("Added %s to the catalog of %s", item.ID, owner)
	return true, nil
}

// Remove withdraws itemID from owner's catalog
func (c *Catalog) Remove(owner, itemID string) (bool, error) {
	key, err := catalogKey(owner)
	if err != nil {
		return false, err
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	items, err := c.load(key)
	if err != nil {
		return false, err
	}
	for i := range items {
		if items[i].ID == itemID {
			items = append(items[:i], items[i+1:]...)
			if err := c.save(key, items); err != nil {
				return false, err
			}
			c.log.Infof("Removed %s from the catalog of %s", itemID, owner)
			return true, nil
		}
	}
	return false, nil
}

// Items returns owner's catalog
func (c *Catalog) Items(owner string) ([]SharedItem, error) {
	key, err := catalogKey(owner)
	if err != nil {
		return nil, err
	}
	return c.load(key)
}

// ItemsFor returns owner's catalog to a federated peer after token authorization
func (c *Catalog) ItemsFor(owner, peerDomain, callingDomain, credential string) ([]SharedItem, error) {
	if !c.tokens.Authorize(peerDomain, callingDomain, credential) {
		return nil, fmt.Errorf("%w: catalog request from %s", domain.ErrUnauthorized, callingDomain)
	}
	return c.Items(owner)
}
