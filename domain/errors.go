package domain

import "errors"

// ErrorKind classifies why an activity or operation did not apply
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMalformed
	KindUnauthorized
	KindNotFound
	KindConflict
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformed:
		return "malformed"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

var (
	ErrMalformed    = errors.New("malformed activity")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("storage failure")
)

// KindOf maps an error chain onto its ErrorKind. Unknown errors count as transient.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindTransient
	}
}

// Err returns the sentinel error for a kind
func (k ErrorKind) Err() error {
	switch k {
	case KindMalformed:
		return ErrMalformed
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindTransient:
		return ErrTransient
	}
	return nil
}
