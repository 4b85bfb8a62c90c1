// Package authcheck answers "may this actor see or mutate this bill" and
// memoizes the answer for the lifetime of one request, since a single sync
// or settlement request often re-asks the same question for several
// operations against the same bill.
package authcheck

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/snapsplit/sync-core/internal/domain"
)

type contextKey string

const cacheKey contextKey = "authcheck_cache"

type cache struct {
	mu      sync.Mutex
	results map[string]bool
}

// WithCache installs a fresh, empty memoization cache on ctx. Call this once
// per inbound request, before any Checker call; nested calls without a
// cache installed still work, they simply don't memoize across calls.
func WithCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheKey, &cache{results: make(map[string]bool)})
}

func cacheFrom(ctx context.Context) *cache {
	c, _ := ctx.Value(cacheKey).(*cache)
	return c
}

// Checker answers owner-or-participant predicates against a
// MemberLinkRepository, memoizing per (bill, user) pair within a request.
type Checker struct {
	links domain.MemberLinkRepository
}

// New returns a Checker backed by links.
func New(links domain.MemberLinkRepository) *Checker {
	return &Checker{links: links}
}

// IsOwnerOrParticipant reports whether userID owns billID or is linked to
// one of its live members. A share-code-only (anonymous) access path never
// calls this; it is only meaningful for requests carrying a resolved user
// identity.
func (c *Checker) IsOwnerOrParticipant(ctx context.Context, billID, userID uuid.UUID) (bool, error) {
	key := memoKey(billID, userID)
	if ch := cacheFrom(ctx); ch != nil {
		ch.mu.Lock()
		if v, ok := ch.results[key]; ok {
			ch.mu.Unlock()
			return v, nil
		}
		ch.mu.Unlock()
	}

	ok, err := c.links.IsOwnerOrParticipant(ctx, billID, userID)
	if err != nil {
		return false, err
	}

	if ch := cacheFrom(ctx); ch != nil {
		ch.mu.Lock()
		ch.results[key] = ok
		ch.mu.Unlock()
	}
	return ok, nil
}

// IsOwnerOrParticipantInBill is the in-memory equivalent of
// IsOwnerOrParticipant for a caller that already holds the loaded Bill
// aggregate, avoiding a redundant repository round trip.
func IsOwnerOrParticipantInBill(bill *domain.Bill, userID uuid.UUID) bool {
	if bill.OwnerUserID != nil && *bill.OwnerUserID == userID {
		return true
	}
	for _, m := range bill.Members {
		if m.DeletedAt == nil && m.LinkedUserID != nil && *m.LinkedUserID == userID {
			return true
		}
	}
	return false
}

func memoKey(billID, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", billID, userID)
}
