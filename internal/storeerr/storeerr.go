// Package storeerr defines the failure kinds the metadata store and the
// synchronizer use to classify errors. The filesystem dispatcher maps these
// onto syscall.Errno at its boundary (see internal/drivefs).
package storeerr

import "errors"

// Kind classifies a failure the way §4.1 and §7 of the design describe:
// every store operation is failable with one of these kinds.
type Kind int

const (
	// KindOther is the zero value - a plain, unclassified error.
	KindOther Kind = iota
	KindNotFound
	KindConflict
	KindIO
)

// Error wraps an underlying cause with a Kind so callers can branch with
// errors.Is against the sentinels below without losing the original message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinels usable with errors.Is(err, storeerr.NotFound).
var (
	NotFound = &Error{Kind: KindNotFound, Err: errors.New("not found")}
	Conflict = &Error{Kind: KindConflict, Err: errors.New("conflict")}
	IO       = &Error{Kind: KindIO, Err: errors.New("i/o error")}
)

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFoundf builds a NotFound error for op wrapping err (a plain "not found"
// cause when err is nil).
func NotFoundf(op string, err error) error {
	if err == nil {
		err = errors.New("not found")
	}
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// Conflictf builds a Conflict error.
func Conflictf(op string, err error) error {
	if err == nil {
		err = errors.New("conflict")
	}
	return &Error{Kind: KindConflict, Op: op, Err: err}
}

// IOf builds an IO error.
func IOf(op string, err error) error {
	if err == nil {
		err = errors.New("i/o error")
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindOther if err is not one of ours.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}
