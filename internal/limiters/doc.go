// Package limiters provides domain-specific throttles built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [LoginLimiter]: per-IP and per-identifier throttle for login attempts.
//   - [RegistrationLimiter]: per-IP throttle for sign-ups.
//   - [PasswordResetLimiter]: per-identifier and per-IP throttle for reset
//     requests and confirmations.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import medAuth or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters
