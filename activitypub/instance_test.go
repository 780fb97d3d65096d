package activitypub

import (
	"strings"
	"testing"

	"github.com/deemkeen/fedcore/domain"
)

func TestCanonicalDomain(t *testing.T) {
	tests := []struct {
		name     string
		instance Instance
		ref      string
		want     string
	}{
		{"onion alias", testInstance(), "http://alicexyz.onion/users/alice", "alice@example.com"},
		{"i2p alias", Instance{Scheme: "https", Domain: "example.com:8443", I2pDomain: "alice.i2p"}, "http://alice.i2p/users/alice", "alice@example.com:8443"},
		{"clearnet untouched", testInstance(), bob, "bob@example.org"},
		{"other onion untouched", testInstance(), "http://other.onion/users/alice", "alice@other.onion"},
		{"onion instance keeps its names", Instance{Scheme: "http", Domain: "main.onion", I2pDomain: "alice.i2p"}, "http://alice.i2p/users/alice", "alice@alice.i2p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := domain.ParseActor(tt.ref)
			if err != nil {
				t.Fatalf("ParseActor failed: %v", err)
			}
			if got := tt.instance.canonicalDomain(ref).Handle(); got != tt.want {
				t.Errorf("canonicalDomain() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInstanceURLs(t *testing.T) {
	i := testInstance()
	if i.ActorURL("alice") != alice {
		t.Errorf("Unexpected actor URL %s", i.ActorURL("alice"))
	}
	if !i.IsLocalURI(alicePost) || i.IsLocalURI(bob) {
		t.Error("IsLocalURI misclassified a URI")
	}
	if id := i.ActivityURL(); !strings.HasPrefix(id, "https://example.com/activities/") || id == i.ActivityURL() {
		t.Errorf("Expected fresh local activity ids, got %s", id)
	}
	if inboxFor(bob+"/") != bob+"/inbox" {
		t.Errorf("Unexpected inbox %s", inboxFor(bob+"/"))
	}
}
