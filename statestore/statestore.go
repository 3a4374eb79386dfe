package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrStateNotFound indicates a state token is not in the registry.
// A token disappears when it was never issued, already redeemed, or
// expired past its TTL; callers cannot distinguish the three, which is
// deliberate (replay of a redeemed state must look identical to a
// forged one).
var ErrStateNotFound = errors.New("state not found")

// Entry is a single state binding. A token, once issued, maps to
// exactly one issuer for its entire lifetime.
type Entry struct {
	// Token is the opaque, high-entropy state value round-tripped
	// through the authorization redirect.
	Token string

	// Issuer is the FHIR server base URL the token is bound to.
	Issuer string

	// IssuedAt is when the binding was created.
	IssuedAt time.Time

	// ExpiresAt is when the binding stops being redeemable.
	ExpiresAt time.Time
}

// Store persists state bindings for the duration of an authorization
// attempt. Implementations must be safe for concurrent use.
//
// Save and Redeem accept context.Context so distributed backends can
// honor cancellation; the in-memory implementation ignores it.
type Store interface {
	// Save records a new state binding. The token is minted by the
	// caller (the relay server owns entropy generation).
	Save(ctx context.Context, entry *Entry) error

	// Redeem atomically looks up and deletes a state binding,
	// returning the bound issuer. States are single-use: a second
	// Redeem of the same token returns ErrStateNotFound, as does a
	// Redeem after the entry's ExpiresAt has passed.
	Redeem(ctx context.Context, token string) (issuer string, err error)
}
