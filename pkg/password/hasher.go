package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// ErrTooLong is returned by Hash for input bcrypt cannot digest.
var ErrTooLong = fmt.Errorf("password exceeds %d bytes", MaxPasswordBytes)

// Hasher computes and verifies bcrypt digests. Calls are bounded by a
// weighted semaphore so a burst of logins cannot occupy every CPU.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher with the given bcrypt cost running at most
// workers hashes at once. workers <= 0 uses GOMAXPROCS.
func NewHasher(cost, workers int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(workers))}
}

func (h *Hasher) Cost() int {
	return h.cost
}

func (h *Hasher) Hash(ctx context.Context, pw string) (string, error) {
	if pw == "" {
		return "", errors.New("password cannot be empty")
	}
	if len(pw) > MaxPasswordBytes {
		return "", ErrTooLong
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hash worker: %w", err)
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(pw), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether pw matches digest. A mismatch is not an error.
// Input longer than MaxPasswordBytes never matches.
func (h *Hasher) Verify(ctx context.Context, pw, digest string) (bool, error) {
	if pw == "" || digest == "" || len(pw) > MaxPasswordBytes {
		return false, nil
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for hash worker: %w", err)
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(pw))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Equalize spends the same work as a real verification against a throwaway
// digest. Used when the account does not exist so response timing does not
// reveal it.
func (h *Hasher) Equalize(ctx context.Context, pw string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("equalize-timing-placeholder"), h.cost)
	})
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer h.sem.Release(1)
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(pw))
}
