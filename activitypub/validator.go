package activitypub

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/deemkeen/fedcore/domain"
)

// emojiRanges covers the code point blocks accepted as the first rune of an EmojiReact
var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00a9, Stride: 1},
		{Lo: 0x00ae, Hi: 0x00ae, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x23ff, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3299, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
	},
}

// validEmojiContent accepts one or two code points starting with an emoji
func validEmojiContent(content string) bool {
	n := utf8.RuneCountInString(content)
	if n < 1 || n > 2 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(content)
	return unicode.Is(emojiRanges, first)
}

// Validator performs structural and domain checks on inbound activities.
// The domain sets can be swapped at runtime when the config is reloaded.
type Validator struct {
	mu      sync.RWMutex
	allowed map[string]bool // nil means no allow-list
	blocked map[string]bool
}

func NewValidator(allowed, blocked []string) *Validator {
	v := &Validator{}
	v.SetAllowList(allowed)
	v.SetBlockList(blocked)
	return v
}

func domainSet(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[domain.StripPort(strings.TrimSpace(d))] = true
	}
	return set
}

// SetAllowList replaces the allow-list. An empty list disables it.
func (v *Validator) SetAllowList(domains []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowed = domainSet(domains)
}

func (v *Validator) SetBlockList(domains []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocked = domainSet(domains)
}

// Permitted reports whether activities from the domain may be processed
func (v *Validator) Permitted(domainName string) bool {
	d := domain.StripPort(domainName)
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.blocked[d] {
		return false
	}
	if v.allowed != nil && !v.allowed[d] {
		return false
	}
	return true
}

// Validate checks, in order: the actor is present and resolvable, its domain
// is permitted, and the object has the shape the activity type needs.
func (v *Validator) Validate(a *domain.Activity) (bool, domain.ErrorKind) {
	if a == nil || a.Actor == "" {
		return false, domain.KindMalformed
	}
	ref, err := domain.ParseActor(a.Actor)
	if err != nil {
		return false, domain.KindMalformed
	}

	if !v.Permitted(ref.Domain) {
		return false, domain.KindUnauthorized
	}

	switch a.Type {
	case domain.TypeAccept, domain.TypeReject:
		return checkNested(a, domain.TypeFollow, domain.TypeJoin)
	case domain.TypeUndo:
		return checkNested(a, domain.TypeFollow, domain.TypeLike, domain.TypeEmojiReact, domain.TypeAnnounce, domain.TypeAdd)
	case domain.TypeEmojiReact:
		if a.Object.ID() == "" || !validEmojiContent(a.Content) {
			return false, domain.KindMalformed
		}
	case domain.TypeLike, domain.TypeAnnounce, domain.TypeDelete, domain.TypeFollow, domain.TypeJoin:
		if a.Object.ID() == "" {
			return false, domain.KindMalformed
		}
	case domain.TypeAdd, domain.TypeRemove:
		if a.Object.ID() == "" || a.Target == "" {
			return false, domain.KindMalformed
		}
	case domain.TypeCreate, domain.TypeUpdate:
		if a.Object.Object == nil {
			return false, domain.KindMalformed
		}
	default:
		return false, domain.KindMalformed
	}
	return true, domain.KindNone
}

func checkNested(a *domain.Activity, types ...domain.ActivityType) (bool, domain.ErrorKind) {
	nested := a.Object.Activity
	if nested == nil {
		return false, domain.KindMalformed
	}
	expected := false
	for _, t := range types {
		if nested.Type == t {
			expected = true
			break
		}
	}
	if !expected {
		return false, domain.KindMalformed
	}
	if nested.Actor == "" || nested.Object.IsZero() {
		return false, domain.KindMalformed
	}
	if _, err := domain.ParseActor(nested.Actor); err != nil {
		return false, domain.KindMalformed
	}
	return true, domain.KindNone
}
