// Package throttle decides whether a visitor may claim now.
//
// Two gates exist. IdentityGate enforces a cooldown per (origin, category)
// pair with an atomic check-and-record in a Store. PasswordGate only checks a
// shared credential and keeps no per-origin state.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnidentified: identity mode without a caller origin. Never eligible.
	ErrUnidentified = errors.New("caller origin could not be determined")
	ErrThrottled    = errors.New("visitor is throttled")

	ErrMissingCredential = errors.New("missing credential")
	ErrBadCredential     = errors.New("invalid credential")
)

// Visitor identifies a claim attempt.
type Visitor struct {
	Origin     string
	Category   string
	Credential string
}

// Gate consumes the visitor's eligibility. A nil error means the visit has
// been recorded and the claim may proceed.
type Gate interface {
	Visit(ctx context.Context, v Visitor) error
}

// Key is the throttle key of an (origin, category) pair.
type Key struct {
	Origin   string
	Category string
}

func (k Key) String() string { return k.Category + ":" + k.Origin }

// Decision is the outcome of a Store.TryVisit call.
type Decision struct {
	Allowed   bool
	LastVisit time.Time // previous visit; zero for a first visit
}

// Store records last-visit timestamps. TryVisit must be atomic per key: the
// eligibility check and the write of now happen as one step.
type Store interface {
	TryVisit(ctx context.Context, key Key, now time.Time, cooldown time.Duration) (Decision, error)
}

// ThrottledError carries how long the visitor has to wait.
type ThrottledError struct {
	Key        Key
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrThrottled, e.RetryAfter.Round(time.Second))
}

func (e *ThrottledError) Unwrap() error { return ErrThrottled }

// IsIneligible reports whether err means "not eligible now" as opposed to a
// bad request or an internal failure.
func IsIneligible(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrBadCredential)
}

func normalizeKey(v Visitor, defaultCategory string) Key {
	cat := strings.TrimSpace(v.Category)
	if cat == "" {
		cat = defaultCategory
	}
	return Key{Origin: strings.ToLower(strings.TrimSpace(v.Origin)), Category: cat}
}
