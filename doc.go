// Package medAuth is the authentication and authorization core of a hospital
// platform: password login with account lockout, HS256 access/refresh tokens,
// role-based permissions over a closed role enumeration, patient-data access
// decisions with an audited emergency override, and password reset.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// medAuth is the public surface. It exposes [Engine], [Builder], [Config], the
// [AccountStore], [RevocationStore] and [Notifier] interfaces, and value types
// (LoginResult, Principal, MetricsSnapshot). Flow orchestration, rate
// limiting, audit dispatch and notification workers live under internal/.
// Persistence backends live under store/ and import this package, never the
// other way round.
//
// # Error contract
//
// Every error returned by an Engine method matches one of the sentinels in
// errors.go with errors.Is. Store and network failures are wrapped as
// [ErrUpstreamUnavailable]; raw driver errors never cross the boundary. Login
// failures are *[LoginError] values whose Error text is safe to show end users
// and never reveals whether an email is registered.
//
// # Consistency
//
// Lockout transitions and token revocations are written on a context detached
// from caller cancellation and bounded by Config.Store.WriteTimeout, so a
// disconnecting client cannot leave a half-applied transition. Authentication
// always re-reads the account; a token is never the sole source of role or
// status.
package medAuth
