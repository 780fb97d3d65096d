package activitypub

import (
	"strings"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/util"
	"github.com/google/uuid"
)

// Instance describes the local server's identity on every network it answers on
type Instance struct {
	Scheme      string
	Domain      string // clearnet domain[:port]
	OnionDomain string
	I2pDomain   string
}

func NewInstance(conf *util.AppConfig) Instance {
	return Instance{
		Scheme:      conf.Conf.HttpPrefix,
		Domain:      strings.ToLower(conf.Conf.SslDomain),
		OnionDomain: strings.ToLower(conf.Conf.OnionDomain),
		I2pDomain:   strings.ToLower(conf.Conf.I2pDomain),
	}
}

// Origin returns scheme://domain
func (i Instance) Origin() string {
	scheme := i.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + i.Domain
}

// ActorURL returns the actor id of a local user
func (i Instance) ActorURL(nickname string) string {
	return i.Origin() + "/users/" + nickname
}

// IsLocal reports whether ref lives on the clearnet domain of this instance
func (i Instance) IsLocal(ref domain.ActorRef) bool {
	return strings.EqualFold(ref.FullDomain(), i.Domain)
}

// ActivityURL mints a fresh id for an activity published by this instance
func (i Instance) ActivityURL() string {
	return i.Origin() + "/activities/" + uuid.New().String()
}

// IsLocalURI reports whether uri is served under this instance's origin
func (i Instance) IsLocalURI(uri string) bool {
	return strings.HasPrefix(uri, i.Origin()+"/")
}

// canonicalDomain maps the onion or i2p alias of this instance onto the
// clearnet domain. It only applies while the clearnet domain is itself not
// an onion or i2p address.
func (i Instance) canonicalDomain(ref domain.ActorRef) domain.ActorRef {
	if domain.IsOnion(i.Domain) || domain.IsI2P(i.Domain) {
		return ref
	}
	full := ref.FullDomain()
	if (i.OnionDomain != "" && strings.EqualFold(full, i.OnionDomain)) ||
		(i.I2pDomain != "" && strings.EqualFold(full, i.I2pDomain)) {
		host, port, err := domain.SplitDomainPort(i.Domain)
		if err != nil {
			return ref
		}
		ref.Domain = host
		ref.Port = port
		ref.Scheme = i.Scheme
	}
	return ref
}

// inboxFor derives a shared-path inbox URL from an actor id
func inboxFor(actor string) string {
	return strings.TrimSuffix(actor, "/") + "/inbox"
}
