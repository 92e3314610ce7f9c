package bib

import (
	"github.com/pkg/errors"
)

// Sentinel error kinds the core may surface. Callers compare with
// errors.Is; every wrapped error returned by this package has one of
// these as its errors.Cause.
var (
	// ErrNoSuchEntry covers a 4->6 lookup miss, a Find miss, and an rm
	// miss.
	ErrNoSuchEntry = errors.New("bib: no such entry")

	// ErrAlreadyExists is returned by AddStatic on a (src6 or src4)
	// collision that isn't the idempotent same-pair case.
	ErrAlreadyExists = errors.New("bib: already exists")

	// ErrNoFreeAddress is returned when a mask domain is exhausted
	// during 6->4 allocation.
	ErrNoFreeAddress = errors.New("bib: no free address")

	// ErrForbidden covers ADF refusal and drop-external-tcp refusal.
	ErrForbidden = errors.New("bib: forbidden")

	// ErrNoSpace is returned when the packet queue is full, for both
	// type-1 and type-2 storage attempts.
	ErrNoSpace = errors.New("bib: no space")

	// ErrStolen is an internal sentinel: the packet buffer passed in is
	// now owned by the queue or a session and must not be forwarded or
	// freed by the caller.
	ErrStolen = errors.New("bib: stolen")

	// ErrInvalid covers state-machine refusal, unsupported protocol, and
	// malformed input.
	ErrInvalid = errors.New("bib: invalid")
)

// wrapf annotates a sentinel error with call-site context while keeping it
// matchable by errors.Is.
func wrapf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}
