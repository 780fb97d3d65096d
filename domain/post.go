package domain

import (
	"time"
)

// CollectionName names a bounded interaction collection embedded in a post
type CollectionName string

const (
	CollectionLikes     CollectionName = "likes"
	CollectionReactions CollectionName = "reactions"
	CollectionBookmarks CollectionName = "bookmarks"
	CollectionShares    CollectionName = "shares"
)

// Maximum entries per collection. Entries beyond the cap are dropped, never evicted.
const (
	MaxReactions = 64
	MaxLikes     = 256
	MaxBookmarks = 256
	MaxShares    = 256
)

// Cap returns the size bound of the collection
func (n CollectionName) Cap() int {
	switch n {
	case CollectionReactions:
		return MaxReactions
	case CollectionLikes:
		return MaxLikes
	case CollectionBookmarks:
		return MaxBookmarks
	case CollectionShares:
		return MaxShares
	}
	return 0
}

// ContentSensitive reports whether entry identity includes the content
func (n CollectionName) ContentSensitive() bool {
	return n == CollectionReactions
}

// EntryType is the activity type recorded for entries of the collection
func (n CollectionName) EntryType() ActivityType {
	switch n {
	case CollectionReactions:
		return TypeEmojiReact
	case CollectionShares:
		return TypeAnnounce
	case CollectionBookmarks:
		return "Bookmark"
	}
	return TypeLike
}

// Valid reports whether n is a known collection
func (n CollectionName) Valid() bool {
	return n.Cap() > 0
}

// CollectionEntry is one interaction record
type CollectionEntry struct {
	Type    ActivityType `json:"type"`
	Actor   string       `json:"actor"`
	Content string       `json:"content,omitempty"`
}

// Collection is the bounded ordered set stored on a post
type Collection struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	TotalItems int               `json:"totalItems"`
	Items      []CollectionEntry `json:"items"`
}

// Post is a stored post document. Announce wrappers set AnnounceOf and never carry collections.
type Post struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	AttributedTo string      `json:"attributedTo"`
	AnnounceOf   string      `json:"object,omitempty"`
	InReplyTo    string      `json:"inReplyTo,omitempty"`
	Summary      string      `json:"summary,omitempty"`
	Sensitive    bool        `json:"sensitive,omitempty"`
	Content      string      `json:"content,omitempty"`
	Published    time.Time   `json:"published"`
	Likes        *Collection `json:"likes,omitempty"`
	Reactions    *Collection `json:"reactions,omitempty"`
	Bookmarks    *Collection `json:"bookmarks,omitempty"`
	Shares       *Collection `json:"shares,omitempty"`
}

// IsAnnounce reports whether the post is a boost wrapper
func (p *Post) IsAnnounce() bool {
	return p.Type == string(TypeAnnounce) && p.AnnounceOf != ""
}

// Collection returns the named sub-collection, or nil
func (p *Post) Collection(name CollectionName) *Collection {
	switch name {
	case CollectionLikes:
		return p.Likes
	case CollectionReactions:
		return p.Reactions
	case CollectionBookmarks:
		return p.Bookmarks
	case CollectionShares:
		return p.Shares
	}
	return nil
}

// EnsureCollection returns the named sub-collection, creating it when missing
func (p *Post) EnsureCollection(name CollectionName) *Collection {
	if c := p.Collection(name); c != nil {
		return c
	}
	c := &Collection{
		ID:    p.ID + "/" + string(name),
		Type:  "Collection",
		Items: []CollectionEntry{},
	}
	switch name {
	case CollectionLikes:
		p.Likes = c
	case CollectionReactions:
		p.Reactions = c
	case CollectionBookmarks:
		p.Bookmarks = c
	case CollectionShares:
		p.Shares = c
	}
	return c
}

// MutationOp selects add or remove
type MutationOp int

const (
	OpAdd MutationOp = iota
	OpRemove
)

func (op MutationOp) String() string {
	if op == OpRemove {
		return "remove"
	}
	return "add"
}

// MutationOutcome reports what a collection mutation did. Every outcome is a success.
type MutationOutcome int

const (
	OutcomeAdded MutationOutcome = iota
	OutcomeAlreadyPresent
	OutcomeDropped
	OutcomeRemoved
	OutcomeAbsent
)

func (o MutationOutcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeAlreadyPresent:
		return "already_present"
	case OutcomeDropped:
		return "dropped"
	case OutcomeRemoved:
		return "removed"
	case OutcomeAbsent:
		return "absent"
	}
	return "unknown"
}

// DeleteResult distinguishes a real removal from an idempotent no-op
type DeleteResult int

const (
	DeleteRemoved DeleteResult = iota
	DeleteAlreadyAbsent
)

func (r DeleteResult) String() string {
	if r == DeleteAlreadyAbsent {
		return "already_absent"
	}
	return "removed"
}
