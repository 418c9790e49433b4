// Package rate provides the counting primitives behind medAuth's request
// throttles.
//
// # Implementations
//
//   - [FixedWindow]: Redis INCR + conditional EXPIRE on first hit, shared by
//     every engine instance.
//   - [Local]: in-process token bucket per key, for single-instance
//     deployments and tests.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the medAuth module.
package rate
