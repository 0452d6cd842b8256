package catalog

// Default kind names
const (
	Permissions    = "permissions"
	Organizations  = "organizations"
	Users          = "users"
	Documents      = "documents"
	ShareRequests  = "share_requests"
	DocumentShares = "document_shares"
	AuditLogs      = "audit_logs"
)

// PermissionKeysField carries a user's permission set in snapshots
const PermissionKeysField = "permissionKeys"

// DefaultKinds returns the kinds of the document-sharing platform
func DefaultKinds() []Kind {
	return []Kind{
		{
			Name:       Permissions,
			NaturalKey: []string{"key"},
		},
		{
			Name:       Organizations,
			NaturalKey: []string{"slug"},
		},
		{
			Name:       Users,
			NaturalKey: []string{"email"},
			References: []Reference{{Field: "organization_id", Kind: Organizations}},
			Association: &Association{
				Field:        PermissionKeysField,
				Kind:         Permissions,
				Table:        "user_permissions",
				OwnerColumn:  "user_id",
				TargetColumn: "permission_id",
			},
		},
		{
			Name:       Documents,
			NaturalKey: []string{"storage_key"},
			References: []Reference{
				{Field: "organization_id", Kind: Organizations},
				{Field: "owner_id", Kind: Users},
			},
		},
		{
			Name:       ShareRequests,
			NaturalKey: []string{"token"},
			References: []Reference{
				{Field: "document_id", Kind: Documents},
				{Field: "requester_id", Kind: Users},
			},
		},
		{
			Name:       DocumentShares,
			NaturalKey: []string{"document_id", "user_id"},
			References: []Reference{
				{Field: "document_id", Kind: Documents},
				{Field: "user_id", Kind: Users},
				{Field: "granted_by", Kind: Users},
			},
		},
		{
			Name:       AuditLogs,
			NaturalKey: []string{"actor_id", "action", "created_at"},
			References: []Reference{
				{Field: "actor_id", Kind: Users},
				{Field: "organization_id", Kind: Organizations},
			},
			Audit: true,
		},
	}
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(DefaultKinds())
	if err != nil {
		panic(err)
	}
	return c
}
