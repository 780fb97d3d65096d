package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
)

const (
	federationTokenDueKey = "federation/token_due"

	DefaultRotationCheck = 30 * time.Second
	minRotationInterval  = 7 * 24 * time.Hour
	maxRotationInterval  = 14 * 24 * time.Hour
)

type tokenDue struct {
	Due time.Time `json:"due"`
}

// TokenRotator periodically replaces this instance's own federation token.
// The next due time is persisted so the schedule survives restarts.
type TokenRotator struct {
	tokens   *FederationTokens
	kv       KVStore
	domain   string
	interval time.Duration
	metrics  *Metrics
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewTokenRotator(tokens *FederationTokens, kv KVStore, localDomain string, interval time.Duration, metrics *Metrics) *TokenRotator {
	if interval <= 0 {
		interval = DefaultRotationCheck
	}
	return &TokenRotator{
		tokens:   tokens,
		kv:       kv,
		domain:   localDomain,
		interval: interval,
		metrics:  metrics,
		now:      time.Now,
		log:      logging.Component("rotation"),
	}
}

// Run wakes every interval until ctx is cancelled
func (r *TokenRotator) Run(ctx context.Context) {
	r.log.Infof("Starting federation token rotation, checking every %s", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(); err != nil {
			r.log.Warnf("Token rotation check failed: %v", err)
		}
		select {
		case <-ctx.Done():
			r.log.Info("Stopping federation token rotation")
			return
		case <-ticker.C:
		}
	}
}

// Tick rotates the local token when the persisted due time has passed
func (r *TokenRotator) Tick() (bool, error) {
	due, err := r.loadDue()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	now := r.now()
	if err == nil && now.Before(due) {
		return false, nil
	}

	if _, err := r.tokens.CreateOrRotate(r.domain, true); err != nil {
		return false, err
	}
	next := now.Add(util.RandomDuration(minRotationInterval, maxRotationInterval))
	if err := r.saveDue(next); err != nil {
		return true, err
	}
	r.metrics.tokenRotated()
	r.log.Infof("Rotated federation token for %s, next rotation at %s", r.domain, next.Format(time.RFC3339))
	return true, nil
}

// NextDue returns the persisted due time
func (r *TokenRotator) NextDue() (time.Time, error) {
	return r.loadDue()
}

func (r *TokenRotator) loadDue() (time.Time, error) {
	buf, err := r.kv.Get(federationTokenDueKey)
	if err != nil {
		return time.Time{}, err
	}
	var d tokenDue
	if err := json.Unmarshal(buf, &d); err != nil {
		return time.Time{}, fmt.Errorf("%w: token due document is corrupt: %v", domain.ErrTransient, err)
	}
	return d.Due, nil
}

func (r *TokenRotator) saveDue(due time.Time) error {
	buf, err := json.Marshal(tokenDue{Due: due})
	if err != nil {
		return err
	}
	return r.kv.Put(federationTokenDueKey, buf)
}
