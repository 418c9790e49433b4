// Package internal contains helper utilities private to medAuth: sortable
// identifiers and single-use reset tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for login, refresh, authenticate and logout
//   - limiters: login, registration and password-reset throttles
//   - notify: fire-and-forget notification dispatch
//   - rate: Redis and in-process rate limit primitives
//   - httpapi: chi router exposing the Engine over HTTP
//
// # What this package must NOT do
//
//   - Export types that appear in the public medAuth API.
//   - Be imported by any package outside the medAuth module.
package internal
