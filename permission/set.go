package permission

// setBits is the width of a Set. The last bit is the root grant.
const (
	setBits = 128
	rootBit = setBits - 1
)

// Set is a 128-bit permission bitmask. Bit positions come from a [Registry].
type Set struct {
	lo uint64
	hi uint64
}

// Has reports whether the given bit is set. A set carrying the root bit
// reports true for every valid bit.
func (s Set) Has(bit int) bool {
	if bit < 0 || bit >= setBits {
		return false
	}

	if (s.hi & (1 << 63)) != 0 {
		return true
	}

	if bit < 64 {
		return (s.lo & (1 << bit)) != 0
	}

	return (s.hi & (1 << (bit - 64))) != 0
}

// Add sets the given bit.
func (s *Set) Add(bit int) {
	if bit < 0 || bit >= setBits {
		return
	}

	if bit < 64 {
		s.lo |= (1 << bit)
	} else {
		s.hi |= (1 << (bit - 64))
	}
}

// Remove clears the given bit.
func (s *Set) Remove(bit int) {
	if bit < 0 || bit >= setBits {
		return
	}

	if bit < 64 {
		s.lo &^= (1 << bit)
	} else {
		s.hi &^= (1 << (bit - 64))
	}
}

// IsRoot reports whether the root grant is present.
func (s Set) IsRoot() bool {
	return (s.hi & (1 << 63)) != 0
}

// Empty reports whether no bit is set.
func (s Set) Empty() bool {
	return s.lo == 0 && s.hi == 0
}
