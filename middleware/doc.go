// Package middleware adapts medAuth.Engine to net/http.
//
// # Gates
//
//   - [Authenticate] verifies the bearer access token, re-loads the account
//     and attaches the [medAuth.Principal] to the request context.
//   - [Protect] runs Authenticate and then a list of [Gate] values in order.
//     Each gate receives the principal explicitly.
//   - [RequireRole], [RequirePermission] and [RequirePatientDataAccess] are
//     the stock gates.
//
// A failing gate writes a JSON error and the downstream handler never runs.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token parsing,
// account state checks, patient-data decisions and their audit events all
// stay in the Engine.
package middleware
