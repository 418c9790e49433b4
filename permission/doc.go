// Package permission holds the hospital permission catalog: the closed set of
// roles, their hierarchy levels, the role to permission table and the
// patient-data access decision.
//
// # Representation
//
// Permissions are registered once into a [Registry] that assigns each name a
// bit in a 128-bit [Set]. The highest bit is reserved for the root grant held
// by [SuperAdmin], so a root set reports every permission as present. After
// [NewCatalog] returns, the registry is frozen and the catalog is immutable.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import medAuth, jwt, or middleware.
//   - Expose mutation of a built [Catalog].
package permission
