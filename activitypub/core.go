package activitypub

import (
	"time"

	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"github.com/prometheus/client_golang/prometheus"
)

// Stores groups the persistence the federation core runs on. *db.DB
// satisfies every interface.
type Stores struct {
	KV         KVStore
	Follows    FollowStore
	Posts      PostStore
	Activities ActivityLog
	Queue      DeliveryQueue
}

// Options configures a Federation
type Options struct {
	Instance               Instance
	AllowedDomains         []string
	BlockedDomains         []string
	SharedItemsDomains     []string
	AllowDeletion          bool
	RequireWriteCapability bool
	RenderCacheTTL         time.Duration
	DigestCacheTTL         time.Duration
	Registerer             prometheus.Registerer
}

// Federation holds the wired components. Every processor shares one lock
// table and one render cache so mutations of a post are serialized across
// inbox and outbox.
type Federation struct {
	Instance  Instance
	Validator *Validator
	Caps      *CapabilityStore
	Tokens    *FederationTokens
	Catalog   *Catalog
	Mutator   *CollectionMutator
	Deleter   *DeleteProcessor
	Accept    *AcceptProcessor
	Followers *FollowerSync
	Sender    *Sender
	Cache     *RenderCache
	Metrics   *Metrics
	Inbox     *Inbox
	Outbox    *Outbox

	stores Stores
	locks  *util.KeyedMutex
}

// New builds the federation core from its stores
func New(stores Stores, opts Options) *Federation {
	if opts.RenderCacheTTL <= 0 {
		opts.RenderCacheTTL = 10 * time.Minute
	}
	if opts.DigestCacheTTL <= 0 {
		opts.DigestCacheTTL = time.Minute
	}

	locks := util.NewKeyedMutex()
	metrics := NewMetrics(opts.Registerer)
	cache := NewRenderCache(opts.RenderCacheTTL)

	f := &Federation{
		Instance:  opts.Instance,
		Validator: NewValidator(opts.AllowedDomains, opts.BlockedDomains),
		Caps:      NewCapabilityStore(stores.KV, locks),
		Tokens:    NewFederationTokens(stores.KV, opts.Instance.Domain, opts.SharedItemsDomains),
		Mutator:   NewCollectionMutator(stores.Posts, cache, locks, metrics),
		Deleter:   NewDeleteProcessor(stores.Posts, cache, locks, opts.Instance),
		Accept:    NewAcceptProcessor(stores.Follows, opts.Instance),
		Followers: NewFollowerSync(stores.Follows, opts.DigestCacheTTL, metrics),
		Sender:    NewSender(stores.Queue),
		Cache:     cache,
		Metrics:   metrics,
		stores:    stores,
		locks:     locks,
	}
	f.Catalog = NewCatalog(stores.KV, f.Tokens, locks)

	f.Inbox = &Inbox{
		instance:     opts.Instance,
		validator:    f.Validator,
		accept:       f.Accept,
		mutator:      f.Mutator,
		deleter:      f.Deleter,
		caps:         f.Caps,
		catalog:      f.Catalog,
		follows:      stores.Follows,
		posts:        stores.Posts,
		activities:   stores.Activities,
		sender:       f.Sender,
		cache:        cache,
		locks:        locks,
		metrics:      metrics,
		requireWrite: opts.RequireWriteCapability,
		log:          logging.Component("inbox"),
	}
	f.Outbox = &Outbox{
		instance:      opts.Instance,
		mutator:       f.Mutator,
		deleter:       f.Deleter,
		caps:          f.Caps,
		catalog:       f.Catalog,
		follows:       stores.Follows,
		posts:         stores.Posts,
		sender:        f.Sender,
		allowDeletion: opts.AllowDeletion,
		log:           logging.Component("outbox"),
	}
	return f
}

// DeliveryWorker returns a worker draining the shared delivery queue
func (f *Federation) DeliveryWorker(transport Transport, interval time.Duration) *DeliveryWorker {
	return NewDeliveryWorker(f.stores.Queue, transport, interval, f.Metrics)
}

// TokenRotator returns the scheduler rotating the local federation token
func (f *Federation) TokenRotator(interval time.Duration) *TokenRotator {
	return NewTokenRotator(f.Tokens, f.stores.KV, f.Instance.Domain, interval, f.Metrics)
}

// ApplyConfig pushes the domain lists of a reloaded configuration into the
// running components. Other settings need a restart.
func (f *Federation) ApplyConfig(conf *util.AppConfig) error {
	f.Validator.SetAllowList(allowedDomains(conf))
	f.Validator.SetBlockList(conf.Conf.BlockedDomains)
	return f.Tokens.ApplyAllowList(conf.Conf.SharedItemsDomains)
}

// allowedDomains adds the local domain to a non-empty federation allow-list
func allowedDomains(conf *util.AppConfig) []string {
	if len(conf.Conf.FederationDomains) == 0 {
		return nil
	}
	return append([]string{conf.Conf.SslDomain}, conf.Conf.FederationDomains...)
}

// OptionsFromConfig derives Options from the application config
func OptionsFromConfig(conf *util.AppConfig, reg prometheus.Registerer) Options {
	return Options{
		Instance:               NewInstance(conf),
		AllowedDomains:         allowedDomains(conf),
		BlockedDomains:         conf.Conf.BlockedDomains,
		SharedItemsDomains:     conf.Conf.SharedItemsDomains,
		AllowDeletion:          conf.Conf.AllowDeletion,
		RequireWriteCapability: conf.Conf.RequireWriteCapability,
		Registerer:             reg,
	}
}
