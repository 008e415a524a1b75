// Package password hashes and verifies user passwords with bcrypt.
//
// bcrypt is CPU bound, so the number of hash operations running at once is
// capped by a weighted semaphore. Callers waiting for a slot give up when
// their context is cancelled.
package password

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher hashes and verifies passwords.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	decoy []byte
}

// Opt configures a Hasher.
type Opt func(*Hasher)

// WithCost sets the bcrypt cost. Values outside bcrypt's range fall back to bcrypt.DefaultCost.
func WithCost(cost int) Opt {
	return func(h *Hasher) {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			cost = bcrypt.DefaultCost
		}
		h.cost = cost
	}
}

// WithConcurrency sets how many hash operations may run at the same time.
func WithConcurrency(n int) Opt {
	return func(h *Hasher) {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		h.slots = semaphore.NewWeighted(int64(n))
	}
}

// New creates a Hasher. Defaults: bcrypt.DefaultCost and runtime.NumCPU() slots.
func New(opts ...Opt) (*Hasher, error) {
	h := &Hasher{
		cost:  bcrypt.DefaultCost,
		slots: semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
	for _, opt := range opts {
		opt(h)
	}

	// verifying against an unknown user still pays for one comparison
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy-password"), h.cost)
	if err != nil {
		return nil, err
	}
	h.decoy = decoy

	return h, nil
}

// Hash returns a salted bcrypt hash of the plaintext.
// Two calls with the same input never return the same output.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. The comparison is constant
// time. An empty hash is compared against an internal decoy and never matches.
// A mismatch or a malformed hash is (false, nil); only a cancelled context
// returns an error.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.decoy, []byte(plaintext))
		return false, nil
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil, nil
}
