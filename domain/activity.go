package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActivityType discriminates the Activity union
type ActivityType string

const (
	TypeAccept     ActivityType = "Accept"
	TypeReject     ActivityType = "Reject"
	TypeFollow     ActivityType = "Follow"
	TypeJoin       ActivityType = "Join"
	TypeLike       ActivityType = "Like"
	TypeEmojiReact ActivityType = "EmojiReact"
	TypeAnnounce   ActivityType = "Announce"
	TypeUndo       ActivityType = "Undo"
	TypeDelete     ActivityType = "Delete"
	TypeAdd        ActivityType = "Add"
	TypeRemove     ActivityType = "Remove"
	TypeUpdate     ActivityType = "Update"
	TypeCreate     ActivityType = "Create"
)

var activityTypes = map[ActivityType]bool{
	TypeAccept: true, TypeReject: true, TypeFollow: true, TypeJoin: true,
	TypeLike: true, TypeEmojiReact: true, TypeAnnounce: true, TypeUndo: true,
	TypeDelete: true, TypeAdd: true, TypeRemove: true, TypeUpdate: true,
	TypeCreate: true,
}

// IsActivityType reports whether t is one of the activity types this core understands
func IsActivityType(t string) bool {
	return activityTypes[ActivityType(t)]
}

const ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"

// Activity is an already-verified ActivityPub activity
type Activity struct {
	Context   interface{}  `json:"@context,omitempty"`
	ID        string       `json:"id,omitempty"`
	Type      ActivityType `json:"type"`
	Actor     string       `json:"actor"`
	Object    ObjectRef    `json:"object"`
	Target    string       `json:"target,omitempty"`
	To        []string     `json:"to,omitempty"`
	Cc        []string     `json:"cc,omitempty"`
	Content   string       `json:"content,omitempty"`
	Published string       `json:"published,omitempty"`
}

// Object is an embedded, non-activity object (Note, Offer, Capability, Tombstone, ...)
type Object struct {
	ID           string   `json:"id,omitempty"`
	Type         string   `json:"type"`
	AttributedTo string   `json:"attributedTo,omitempty"`
	InReplyTo    string   `json:"inReplyTo,omitempty"`
	Sensitive    *bool    `json:"sensitive,omitempty"`
	Summary      *string  `json:"summary,omitempty"`
	Content      string   `json:"content,omitempty"`
	URL          string   `json:"url,omitempty"`
	Actor        string   `json:"actor,omitempty"`
	Scope        string   `json:"scope,omitempty"`
	Capability   []string `json:"capability,omitempty"`

	// Raw keeps the full document so type specific fields survive a round trip
	Raw json.RawMessage `json:"-"`
}

// ObjectRef is exactly one of an IRI, a nested activity or an embedded object
type ObjectRef struct {
	IRI      string
	Activity *Activity
	Object   *Object
}

// IRIRef builds an ObjectRef pointing at a remote id
func IRIRef(iri string) ObjectRef {
	return ObjectRef{IRI: iri}
}

// ActivityRef wraps a nested activity
func ActivityRef(a *Activity) ObjectRef {
	return ObjectRef{Activity: a}
}

// ObjRef wraps an embedded object
func ObjRef(o *Object) ObjectRef {
	return ObjectRef{Object: o}
}

// IsZero reports whether the reference is empty
func (r ObjectRef) IsZero() bool {
	return r.IRI == "" && r.Activity == nil && r.Object == nil
}

// ID returns the referenced id regardless of the union arm
func (r ObjectRef) ID() string {
	switch {
	case r.Activity != nil:
		return r.Activity.ID
	case r.Object != nil:
		if r.Object.ID != "" {
			return r.Object.ID
		}
		return r.Object.URL
	default:
		return r.IRI
	}
}

func (r ObjectRef) MarshalJSON() ([]byte, error) {
	switch {
	case r.Activity != nil:
		return json.Marshal(r.Activity)
	case r.Object != nil:
		if len(r.Object.Raw) > 0 {
			return r.Object.Raw, nil
		}
		type plain Object
		return json.Marshal((*plain)(r.Object))
	case r.IRI != "":
		return json.Marshal(r.IRI)
	default:
		return []byte("null"), nil
	}
}

func (r *ObjectRef) UnmarshalJSON(data []byte) error {
	*r = ObjectRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &r.IRI)
	case '{':
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return err
		}
		if IsActivityType(probe.Type) {
			var a Activity
			if err := json.Unmarshal(data, &a); err != nil {
				return fmt.Errorf("nested %s: %w", probe.Type, err)
			}
			r.Activity = &a
			return nil
		}
		type plain Object
		var o plain
		if err := json.Unmarshal(data, &o); err != nil {
			return fmt.Errorf("embedded object: %w", err)
		}
		obj := Object(o)
		obj.Raw = append(json.RawMessage(nil), data...)
		r.Object = &obj
		return nil
	case '[':
		// some servers send a single element array
		var items []ObjectRef
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		if len(items) > 0 {
			*r = items[0]
		}
		return nil
	default:
		return fmt.Errorf("unsupported object value %q", string(data))
	}
}

// ParseActivity decodes a raw activity document
func ParseActivity(body []byte) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &a, nil
}
