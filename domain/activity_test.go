package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestActivityObjectAsString(t *testing.T) {
	jsonData := `{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://example.com/activities/456",
		"type": "Like",
		"actor": "https://example.com/users/alice",
		"object": "https://example.org/users/bob/statuses/1"
	}`

	a, err := ParseActivity([]byte(jsonData))
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if a.Type != TypeLike {
		t.Errorf("Expected Type 'Like', got '%s'", a.Type)
	}
	if a.Object.IRI != "https://example.org/users/bob/statuses/1" {
		t.Errorf("Expected IRI object, got %+v", a.Object)
	}
	if a.Object.Activity != nil || a.Object.Object != nil {
		t.Error("Expected only the IRI arm to be set")
	}
}

func TestAcceptWithNestedFollow(t *testing.T) {
	jsonData := `{
		"type": "Accept",
		"actor": "https://example.org/users/bob",
		"object": {
			"id": "https://example.com/follows/456",
			"type": "Follow",
			"actor": "https://example.com/users/alice",
			"object": "https://example.org/users/bob"
		}
	}`

	a, err := ParseActivity([]byte(jsonData))
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	nested := a.Object.Activity
	if nested == nil {
		t.Fatalf("Expected nested activity, got %+v", a.Object)
	}
	if nested.Type != TypeFollow {
		t.Errorf("Expected nested Follow, got '%s'", nested.Type)
	}
	if nested.Actor != "https://example.com/users/alice" {
		t.Errorf("Expected follower actor, got '%s'", nested.Actor)
	}
	if nested.Object.IRI != "https://example.org/users/bob" {
		t.Errorf("Expected followed IRI, got '%s'", nested.Object.IRI)
	}
	if a.Object.ID() != "https://example.com/follows/456" {
		t.Errorf("Expected ID() of nested follow, got '%s'", a.Object.ID())
	}
}

func TestCreateWithEmbeddedNote(t *testing.T) {
	jsonData := `{
		"type": "Create",
		"actor": "https://example.org/users/bob",
		"object": {
			"id": "https://example.org/users/bob/statuses/9",
			"type": "Note",
			"inReplyTo": "https://example.com/users/alice/statuses/1",
			"sensitive": false,
			"summary": "x",
			"content": "hello"
		}
	}`

	a, err := ParseActivity([]byte(jsonData))
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	obj := a.Object.Object
	if obj == nil {
		t.Fatalf("Expected embedded object, got %+v", a.Object)
	}
	if obj.Sensitive == nil || *obj.Sensitive {
		t.Errorf("Expected explicit sensitive=false, got %v", obj.Sensitive)
	}
	if obj.Summary == nil || *obj.Summary != "x" {
		t.Errorf("Expected summary 'x', got %v", obj.Summary)
	}
	if obj.InReplyTo == "" {
		t.Error("Expected inReplyTo to be set")
	}
	if len(obj.Raw) == 0 {
		t.Error("Expected raw document to be kept")
	}
}

func TestObjectRefRoundTrip(t *testing.T) {
	a := &Activity{
		Type:  TypeUndo,
		Actor: "https://example.com/users/alice",
		Object: ActivityRef(&Activity{
			Type:   TypeLike,
			Actor:  "https://example.com/users/alice",
			Object: IRIRef("https://example.org/users/bob/statuses/1"),
		}),
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"Like"`) {
		t.Errorf("Expected nested Like in %s", data)
	}

	back, err := ParseActivity(data)
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if back.Object.Activity == nil || back.Object.Activity.Object.IRI != "https://example.org/users/bob/statuses/1" {
		t.Errorf("Nested activity lost on round trip: %+v", back.Object)
	}
}

func TestObjectRefArrayAndNull(t *testing.T) {
	a, err := ParseActivity([]byte(`{"type":"Delete","actor":"https://a.example/users/x","object":["https://a.example/users/x/statuses/1"]}`))
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if a.Object.IRI != "https://a.example/users/x/statuses/1" {
		t.Errorf("Expected first array element, got %+v", a.Object)
	}

	a, err = ParseActivity([]byte(`{"type":"Delete","actor":"https://a.example/users/x","object":null}`))
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if !a.Object.IsZero() {
		t.Errorf("Expected zero object, got %+v", a.Object)
	}
}

func TestParseActivityInvalidJSON(t *testing.T) {
	_, err := ParseActivity([]byte(`{invalid json}`))
	if err == nil {
		t.Fatal("Expected error but got none")
	}
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{ErrMalformed, KindMalformed},
		{errors.Join(errors.New("x"), ErrUnauthorized), KindUnauthorized},
		{ErrNotFound, KindNotFound},
		{errors.New("disk on fire"), KindTransient},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
