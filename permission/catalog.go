package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Catalog defines a public type used by medAuth authorization checks.
//
// Catalog instances are built once by NewCatalog and are immutable afterwards;
// all methods are safe for concurrent use.
type Catalog struct {
	registry *Registry
	sets     [roleEnd]Set
	all      []Permission
}

// NewCatalog describes the catalog construction operation and its observable behavior.
//
// NewCatalog registers every permission, then resolves table into one [Set]
// per role. The table must name every role except SuperAdmin, and may only
// reference registered permissions. SuperAdmin receives the root grant.
func NewCatalog(permissions []Permission, table Table) (*Catalog, error) {
	reg := NewRegistry()
	for _, p := range permissions {
		if _, err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("register %q: %w", p, err)
		}
	}
	reg.Freeze()

	c := &Catalog{
		registry: reg,
		all:      append([]Permission(nil), permissions...),
	}
	sort.Slice(c.all, func(i, j int) bool { return c.all[i] < c.all[j] })

	if _, ok := table[SuperAdmin]; ok {
		return nil, errors.New("SUPER_ADMIN permissions are implicit and must not be listed")
	}

	for role, perms := range table {
		if !role.Valid() {
			return nil, fmt.Errorf("table references invalid role %d", role)
		}
		var set Set
		for _, p := range perms {
			bit, ok := reg.Bit(p)
			if !ok {
				return nil, fmt.Errorf("role %s references unregistered permission %q", role, p)
			}
			set.Add(bit)
		}
		c.sets[role] = set
	}

	for _, role := range Roles() {
		if role == SuperAdmin {
			continue
		}
		if _, ok := table[role]; !ok {
			return nil, fmt.Errorf("table is missing role %s", role)
		}
	}

	var root Set
	root.Add(rootBit)
	c.sets[SuperAdmin] = root

	return c, nil
}

// HasPermission reports whether role holds perm. Unknown roles and
// unregistered permissions yield false.
func (c *Catalog) HasPermission(role Role, perm Permission) bool {
	if c == nil || !role.Valid() {
		return false
	}
	bit, ok := c.registry.Bit(perm)
	if !ok {
		return false
	}
	return c.sets[role].Has(bit)
}

// HasAnyPermission reports whether role holds at least one of perms.
func (c *Catalog) HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if c.HasPermission(role, p) {
			return true
		}
	}
	return false
}

// CanCreateRole reports whether actor may provision an account with target.
// The check is strict: a role never creates a peer or a superior.
func (c *Catalog) CanCreateRole(actor, target Role) bool {
	if !actor.Valid() || !target.Valid() {
		return false
	}
	return actor.Level() > target.Level()
}

// CreatableRoles returns every role strictly below actor, highest first.
func (c *Catalog) CreatableRoles(actor Role) []Role {
	out := make([]Role, 0, len(Roles()))
	for _, r := range Roles() {
		if c.CanCreateRole(actor, r) {
			out = append(out, r)
		}
	}
	return out
}

// RolePermissions returns a sorted copy of the permissions held by role.
func (c *Catalog) RolePermissions(role Role) []Permission {
	if c == nil || !role.Valid() {
		return nil
	}
	set := c.sets[role]
	out := make([]Permission, 0, len(c.all))
	for _, p := range c.all {
		bit, _ := c.registry.Bit(p)
		if set.Has(bit) {
			out = append(out, p)
		}
	}
	return out
}

// HasModuleAccess reports whether role holds any permission under module.
func (c *Catalog) HasModuleAccess(role Role, module string) bool {
	module = strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(module)), ".")
	if module == "" {
		return false
	}
	for _, p := range c.RolePermissions(role) {
		if p.Module() == module {
			return true
		}
	}
	return false
}

// Permissions returns every registered permission, sorted.
func (c *Catalog) Permissions() []Permission {
	return append([]Permission(nil), c.all...)
}
