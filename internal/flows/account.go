package flows

import (
	"time"

	"github.com/MrEthical07/medAuth/permission"
)

// Status values mirrored from the root package.
const (
	StatusActive = "ACTIVE"
	StatusLocked = "LOCKED"
)

// Account is the flow-local view of a stored account.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         permission.Role
	Status       string
	LockedUntil  time.Time
}

// Active reports Status == ACTIVE.
func (a Account) Active() bool {
	return a.Status == StatusActive
}
