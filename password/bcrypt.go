package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used when Config.Cost is zero.
	DefaultCost = 12
	// MinLength is the shortest plaintext accepted by Hash.
	MinLength = 8
	// maxBytes is the bcrypt input limit.
	maxBytes = 72
)

var (
	// ErrWeakInput is returned by Hash when the plaintext is shorter than MinLength.
	ErrWeakInput = errors.New("password must be at least 8 characters")
	// ErrTooLong is returned by Hash when the plaintext exceeds the bcrypt input limit.
	ErrTooLong = errors.New("password must be at most 72 bytes")
	// ErrLooksHashed reports a plaintext shaped like a bcrypt digest. Hash
	// would store it unchanged, so user input of this form is refused.
	ErrLooksHashed = errors.New("password must not be a bcrypt hash")
	// ErrInvalidCost is returned by New for costs bcrypt cannot produce.
	ErrInvalidCost = errors.New("bcrypt cost out of range")
)

var hashPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// Config defines hasher parameters.
type Config struct {
	Cost int
}

// Hasher defines a public type used by medAuth credential checks.
//
// Hasher instances are immutable after New and safe for concurrent use.
type Hasher struct {
	cost int
}

// New returns a bcrypt hasher. A zero cost selects DefaultCost.
func New(cfg Config) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns ErrWeakInput for inputs shorter than MinLength. An input that
// already is a bcrypt digest is returned unchanged, which lets seeding and
// record migration pass stored digests through; callers hashing user input
// must reject such input first (see ErrLooksHashed).
func (h *Hasher) Hash(plain string) (string, error) {
	if IsHashed(plain) {
		return plain, nil
	}
	if len([]rune(plain)) < MinLength {
		return "", ErrWeakInput
	}
	if len(plain) > maxBytes {
		return "", ErrTooLong
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plain matches digest. Malformed digests and any
// comparison failure yield false; Verify never returns an error.
func (h *Hasher) Verify(plain, digest string) bool {
	if digest == "" || !IsHashed(digest) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// NeedsRehash reports whether digest was produced with a cost other than
// the hasher's. Unparseable digests need rehashing.
func (h *Hasher) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != h.cost
}

// IsHashed reports whether s carries a bcrypt format prefix.
func IsHashed(s string) bool {
	if len(s) != 60 {
		return false
	}
	for _, p := range hashPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
