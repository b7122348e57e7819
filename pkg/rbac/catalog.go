package rbac

// Catalog is the closed table of built-in roles and their permission sets.
// It is immutable after construction; lookups never fail, unknown identifiers
// simply resolve to an empty set.
type Catalog struct {
	roles map[RoleName]Role
	perms PermissionSet
}

// BuiltInRoles returns the static role definitions. This is the single source
// of truth for role permission sets; nothing else in the system hardcodes
// permission lists.
func BuiltInRoles() []Role {
	return []Role{
		{
			Name:        RoleSystemAdmin,
			DisplayName: "System Administrator",
			Description: "Platform operator with unrestricted access",
			Permissions: []Permission{PermSystemAdmin},
		},
		{
			Name:        RoleEnterpriseOwner,
			DisplayName: "Enterprise Owner",
			Description: "Full control over an enterprise and everything in it",
			Permissions: []Permission{
				PermEnterpriseView, PermEnterpriseManage, PermEnterpriseInvite,
				PermDepartmentView, PermDepartmentManage,
				PermGroupView, PermGroupCreate, PermGroupManage, PermGroupInvite,
				PermAIUse, PermAIManage,
				PermQuotaView, PermQuotaManage,
			},
		},
		{
			Name:        RoleEnterpriseAdmin,
			DisplayName: "Enterprise Admin",
			Description: "Manage departments, groups and members of an enterprise",
			Permissions: []Permission{
				PermEnterpriseView, PermEnterpriseInvite,
				PermDepartmentView, PermDepartmentManage,
				PermGroupView, PermGroupCreate, PermGroupManage, PermGroupInvite,
				PermAIUse,
				PermQuotaView, PermQuotaManage,
			},
		},
		{
			Name:        RoleEnterpriseViewer,
			DisplayName: "Enterprise Viewer",
			Description: "Read-only access to enterprise resources",
			Permissions: []Permission{
				PermEnterpriseView, PermDepartmentView, PermGroupView, PermQuotaView,
			},
		},
		{
			Name:        RoleDepartmentManager,
			DisplayName: "Department Manager",
			Description: "Manage the groups of a single department",
			Permissions: []Permission{
				PermDepartmentView, PermDepartmentManage,
				PermGroupView, PermGroupCreate, PermGroupManage, PermGroupInvite,
				PermAIUse, PermQuotaView,
			},
		},
		{
			Name:        RoleGroupOwner,
			DisplayName: "Group Owner",
			Description: "Full control over a single carpool group",
			Permissions: []Permission{
				PermGroupView, PermGroupManage, PermGroupInvite,
				PermAIUse, PermAIManage,
				PermQuotaView, PermQuotaManage,
			},
		},
		{
			Name:        RoleGroupAdmin,
			DisplayName: "Group Admin",
			Description: "Manage members and resource bindings of a group",
			Permissions: []Permission{
				PermGroupView, PermGroupManage, PermGroupInvite,
				PermAIUse, PermQuotaView,
			},
		},
		{
			Name:        RoleGroupMember,
			DisplayName: "Group Member",
			Description: "Use the group's shared AI access",
			Permissions: []Permission{
				PermGroupView, PermAIUse,
			},
		},
	}
}

// NewCatalog builds the catalog from the built-in role table.
func NewCatalog() *Catalog {
	c := &Catalog{
		roles: make(map[RoleName]Role),
		perms: make(PermissionSet),
	}
	for _, role := range BuiltInRoles() {
		c.roles[role.Name] = role
		for _, p := range role.Permissions {
			c.perms[p] = struct{}{}
		}
	}
	return c
}

// PermissionsOf returns the permission set of a role. Unknown roles yield an
// empty set, never an error.
func (c *Catalog) PermissionsOf(name RoleName) PermissionSet {
	role, ok := c.roles[name]
	if !ok {
		return PermissionSet{}
	}
	return NewPermissionSet(role.Permissions...)
}

// AllRoles returns every built-in role.
func (c *Catalog) AllRoles() []Role {
	return BuiltInRoles()
}

// IsValidRole reports whether name is a known role identifier.
func (c *Catalog) IsValidRole(name RoleName) bool {
	_, ok := c.roles[name]
	return ok
}

// IsValidPermission reports whether p appears in at least one role's
// permission set.
func (c *Catalog) IsValidPermission(p Permission) bool {
	return c.perms.Has(p)
}
