package activitypub

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
)

const (
	federationTokensKey = "federation/tokens"

	federationTokenBytes = 64
	// MinFederationTokenLength rejects anything shorter before a lookup happens
	MinFederationTokenLength = 60
)

// FederationTokens manages the bearer tokens that let peers read shared-item
// catalogs. All tokens live in one document that is replaced as a whole.
type FederationTokens struct {
	kv          KVStore
	localDomain string

	mu        sync.Mutex // serializes document read-modify-write
	allowMu   sync.RWMutex
	allowList []string

	log *zap.SugaredLogger
}

func NewFederationTokens(kv KVStore, localDomain string, allowList []string) *FederationTokens {
	return &FederationTokens{
		kv:          kv,
		localDomain: strings.ToLower(localDomain),
		allowList:   normalizeDomains(allowList),
		log:         logging.Component("federation"),
	}
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// AllowList returns the shared-items federation allow-list
func (f *FederationTokens) AllowList() []string {
	f.allowMu.RLock()
	defer f.allowMu.RUnlock()
	return append([]string(nil), f.allowList...)
}

func (f *FederationTokens) allowed(domainName string) bool {
	d := strings.ToLower(domainName)
	f.allowMu.RLock()
	defer f.allowMu.RUnlock()
	for _, a := range f.allowList {
		if a == d {
			return true
		}
	}
	return false
}

// Load returns the stored token document, empty when none exists yet
func (f *FederationTokens) Load() (domain.FederationTokens, error) {
	buf, err := f.kv.Get(federationTokensKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.FederationTokens{}, nil
	}
	if err != nil {
		return nil, err
	}
	tokens := domain.FederationTokens{}
	if err := json.Unmarshal(buf, &tokens); err != nil {
		return nil, fmt.Errorf("%w: federation tokens document is corrupt: %v", domain.ErrTransient, err)
	}
	return tokens, nil
}

func (f *FederationTokens) save(tokens domain.FederationTokens) error {
	buf, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode federation tokens: %w", err)
	}
	return f.kv.Put(federationTokensKey, buf)
}

// EnsureTokens adds an empty placeholder for every listed domain without a token
func (f *FederationTokens) EnsureTokens(peerDomains []string) (domain.FederationTokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.Load()
	if err != nil {
		return nil, err
	}
	changed := false
	for _, d := range normalizeDomains(peerDomains) {
		if _, ok := tokens[d]; !ok {
			tokens[d] = ""
			changed = true
		}
	}
	if changed {
		if err := f.save(tokens); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}

// CreateOrRotate returns the token for domainName, generating a new secret
// when force is set or no non-empty token exists.
func (f *FederationTokens) CreateOrRotate(domainName string, force bool) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domainName))
	if d == "" {
		return "", fmt.Errorf("%w: empty domain", domain.ErrMalformed)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.Load()
	if err != nil {
		return "", err
	}
	if existing := tokens[d]; existing != "" && !force {
		return existing, nil
	}

	secret, err := newFederationToken()
	if err != nil {
		return "", err
	}
	tokens[d] = secret
	if err := f.save(tokens); err != nil {
		return "", err
	}
	f.log.Infof("Generated federation token for %s", d)
	return secret, nil
}

// newFederationToken mints a secret Authorize will accept
func newFederationToken() (string, error) {
	for {
		secret, err := util.RandomToken(federationTokenBytes)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
		if !strings.Contains(strings.ToLower(secret), "basic") {
			return secret, nil
		}
	}
}

// UpdatePeerToken stores the token a peer handed us
func (f *FederationTokens) UpdatePeerToken(domainName, token string) error {
	d := strings.ToLower(strings.TrimSpace(domainName))
	if !f.allowed(d) {
		return fmt.Errorf("%w: %s is not a federated domain", domain.ErrUnauthorized, d)
	}
	if len(token) < MinFederationTokenLength {
		return fmt.Errorf("%w: token too short", domain.ErrMalformed)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.Load()
	if err != nil {
		return err
	}
	tokens[d] = token
	return f.save(tokens)
}

// Authorize decides whether presented grants catalog access. It never errors;
// every failure, including storage failures, is a rejection.
func (f *FederationTokens) Authorize(peerDomain, callingDomain, presented string) bool {
	if !f.allowed(peerDomain) {
		f.log.Debugf("Federation: %s is not in the shared items allow-list", peerDomain)
		return false
	}
	if strings.Contains(strings.ToLower(presented), "basic") {
		f.log.Debugf("Federation: basic auth presented by %s", callingDomain)
		return false
	}
	presented = strings.TrimSpace(strings.TrimPrefix(presented, "Bearer "))
	if len(presented) < MinFederationTokenLength {
		f.log.Debugf("Federation: token from %s is too short", callingDomain)
		return false
	}

	tokens, err := f.Load()
	if err != nil {
		f.log.Warnf("Federation: failed to load tokens: %v", err)
		return false
	}
	stored := tokens[strings.ToLower(callingDomain)]
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// MergeOnAllowListChange drops tokens of domains no longer allowed and adds
// placeholders for new ones. Domains of the local instance are never dropped.
func (f *FederationTokens) MergeOnAllowListChange(newAllowList []string, existing domain.FederationTokens) domain.FederationTokens {
	allow := normalizeDomains(newAllowList)
	merged := domain.FederationTokens{}
	for d, token := range existing {
		if f.localDomain != "" && strings.HasPrefix(d, f.localDomain) {
			merged[d] = token
			continue
		}
		for _, a := range allow {
			if a == d {
				merged[d] = token
				break
			}
		}
	}
	for _, d := range allow {
		if _, ok := merged[d]; !ok {
			merged[d] = ""
		}
	}
	return merged
}

// ApplyAllowList swaps in a new allow-list and rewrites the token document to match
func (f *FederationTokens) ApplyAllowList(newAllowList []string) error {
	f.allowMu.Lock()
	f.allowList = normalizeDomains(newAllowList)
	f.allowMu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.Load()
	if err != nil {
		return err
	}
	merged := f.MergeOnAllowListChange(newAllowList, tokens)
	if err := f.save(merged); err != nil {
		return err
	}
	f.log.Infof("Federation allow-list now has %d domains", len(f.AllowList()))
	return nil
}
