package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// MaxActorLength bounds actor identifiers accepted by capability operations
const MaxActorLength = 256

// usersPaths are the path segments that precede a nickname in actor and post URLs
var usersPaths = []string{"users", "profile", "channel", "accounts", "u", "c", "video-channels"}

// ActorRef is a parsed actor or post reference
type ActorRef struct {
	Scheme   string
	Nickname string
	Domain   string // host without port
	Port     int    // 0 when absent
}

// FullDomain returns domain[:port]
func (a ActorRef) FullDomain() string {
	if a.Port == 0 || a.Port == 80 || a.Port == 443 {
		return a.Domain
	}
	return a.Domain + ":" + strconv.Itoa(a.Port)
}

// Handle returns nickname@domain[:port]
func (a ActorRef) Handle() string {
	return a.Nickname + "@" + a.FullDomain()
}

// URL rebuilds a canonical actor URL
func (a ActorRef) URL() string {
	scheme := a.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/users/%s", scheme, a.FullDomain(), a.Nickname)
}

// SameAs compares nickname and port-stripped domain
func (a ActorRef) SameAs(b ActorRef) bool {
	return a.Nickname == b.Nickname && strings.EqualFold(a.Domain, b.Domain)
}

// ParseActor resolves nickname, domain and port from an actor URL, a post URL
// under an actor path, or a nick@domain handle.
func ParseActor(ref string) (ActorRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ActorRef{}, fmt.Errorf("%w: empty actor reference", ErrMalformed)
	}

	if !strings.Contains(ref, "://") {
		return parseHandle(ref)
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ActorRef{}, fmt.Errorf("%w: invalid actor URI: %v", ErrMalformed, err)
	}
	if u.Host == "" {
		return ActorRef{}, fmt.Errorf("%w: actor URI has no host: %s", ErrMalformed, ref)
	}

	domain, port, err := SplitDomainPort(u.Host)
	if err != nil {
		return ActorRef{}, err
	}

	nickname := nicknameFromPath(u.Path)
	if nickname == "" {
		return ActorRef{}, fmt.Errorf("%w: no nickname in %s", ErrMalformed, ref)
	}

	return ActorRef{Scheme: u.Scheme, Nickname: nickname, Domain: domain, Port: port}, nil
}

func parseHandle(ref string) (ActorRef, error) {
	handle := strings.TrimPrefix(ref, "acct:")
	handle = strings.TrimPrefix(handle, "@")
	at := strings.Index(handle, "@")
	if at <= 0 || at == len(handle)-1 {
		return ActorRef{}, fmt.Errorf("%w: invalid handle %s", ErrMalformed, ref)
	}
	domain, port, err := SplitDomainPort(handle[at+1:])
	if err != nil {
		return ActorRef{}, err
	}
	return ActorRef{Scheme: "https", Nickname: handle[:at], Domain: domain, Port: port}, nil
}

func nicknameFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if strings.HasPrefix(part, "@") && len(part) > 1 {
			return part[1:]
		}
		for _, p := range usersPaths {
			if part == p && i+1 < len(parts) && parts[i+1] != "" {
				return parts[i+1]
			}
		}
	}
	return ""
}

// SplitDomainPort splits host[:port], lower-casing the host
func SplitDomainPort(hostport string) (string, int, error) {
	if hostport == "" {
		return "", 0, fmt.Errorf("%w: empty domain", ErrMalformed)
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		// no port present
		return strings.ToLower(hostport), 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("%w: invalid port in %s", ErrMalformed, hostport)
	}
	return strings.ToLower(host), port, nil
}

// StripPort removes a trailing :port from a domain
func StripPort(domain string) string {
	d, _, err := SplitDomainPort(domain)
	if err != nil {
		return domain
	}
	return d
}

// DomainOf returns the port-stripped host of any URL or handle, or "" when unparseable
func DomainOf(ref string) string {
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Hostname())
	}
	if at := strings.LastIndex(ref, "@"); at >= 0 {
		return StripPort(ref[at+1:])
	}
	return StripPort(ref)
}

// IsOnion reports whether domain is a Tor hidden service address
func IsOnion(domain string) bool {
	return strings.HasSuffix(StripPort(domain), ".onion")
}

// IsI2P reports whether domain is an I2P address
func IsI2P(domain string) bool {
	return strings.HasSuffix(StripPort(domain), ".i2p")
}
