package domain

import "slices"

// Capability flags understood by the inbox policy gate
const (
	CapInboxWrite      = "inbox:write"
	CapObjectsRead     = "objects:read"
	CapInboxNoAnnounce = "inbox:noannounce"
	CapInboxNoLike     = "inbox:nolike"
	CapInboxNoReply    = "inbox:noreply"
	CapInboxCW         = "inbox:cw"
)

// DefaultCapabilities is granted to a newly accepted follower
var DefaultCapabilities = []string{CapInboxWrite, CapObjectsRead}

// CapabilityDirection separates what we grant from what we were granted
type CapabilityDirection string

const (
	CapabilityAccepted CapabilityDirection = "accept"
	CapabilityGranted  CapabilityDirection = "granted"
)

// Capability is an object capability document
type Capability struct {
	Context    string   `json:"@context,omitempty"`
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Actor      string   `json:"actor"` // grantor
	Scope      string   `json:"scope"` // grantee
	Capability []string `json:"capability"`
}

// Has reports whether the flag is present
func (c *Capability) Has(flag string) bool {
	return slices.Contains(c.Capability, flag)
}

// FederationTokens maps peer domain -> secret. An empty secret is a placeholder.
type FederationTokens map[string]string
