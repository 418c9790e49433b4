// Package flows contains orchestrators for the Engine's session operations.
//
// Each flow function (RunLogin, RunAuthenticate, RunRefresh, RunLogout,
// RunStatusChange) accepts a typed dependency struct and returns a classified
// outcome. The Engine maps outcomes to its public errors, audit events and
// metrics, so the decision logic here can be tested with plain function
// fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the account store, token manager,
// revocation store and password pool. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import medAuth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
