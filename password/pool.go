package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent bcrypt work. Callers wait for a slot and give up
// when their context ends.
type Pool struct {
	hasher *Hasher
	sem    *semaphore.Weighted
	size   int64
}

// NewPool wraps hasher with at most size concurrent operations. A size below 1
// selects GOMAXPROCS.
func NewPool(hasher *Hasher, size int) *Pool {
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
	}
}

// Size returns the slot count.
func (p *Pool) Size() int {
	return int(p.size)
}

// Hasher returns the wrapped hasher.
func (p *Pool) Hasher() *Hasher {
	return p.hasher
}

// Hash hashes plain once a slot is free.
func (p *Pool) Hash(ctx context.Context, plain string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.Hash(plain)
}

// Verify compares plain with digest once a slot is free. A context that ends
// before a slot frees up yields false with the context error.
func (p *Pool) Verify(ctx context.Context, plain, digest string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.hasher.Verify(plain, digest), nil
}
