// Package password implements credential hashing, verification and strength
// validation with bcrypt.
//
// # Output format
//
// Hashes are standard bcrypt strings ($2a$, $2b$ or $2y$ followed by the cost).
// [Hasher.Hash] recognizes its own format and returns an already hashed value
// unchanged, so a stored digest round-tripped through a generic update path is
// never hashed twice. [Hasher.NeedsRehash] reports digests produced with a
// different cost so callers can upgrade them after a successful login.
//
// # Concurrency
//
// bcrypt is CPU bound. [Pool] bounds the number of concurrent hash and verify
// calls so a burst of logins cannot starve unrelated requests.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other medAuth package.
//   - Log plaintext passwords or digests.
package password
