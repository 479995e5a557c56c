package models

import "time"

// System roles, fixed per the spec's RBAC triple.
const (
	RoleAdmin    = "admin"
	RoleAnalyst  = "analyst"
	RoleReviewer = "reviewer"
	RoleViewer   = "viewer"
)

// Well-known namespaced permissions. Additional permissions may be granted
// to custom roles at runtime; these are the ones the core checks by name.
const (
	PermIngestUpload        = "ingest:upload"
	PermDataViewSensitive   = "data:view_sensitive"
	PermDataViewConfidential = "data:view_confidential"
	PermDataViewRestricted  = "data:view_restricted"
	PermAdminAudit          = "admin:audit"
	PermWorkflowCreate      = "workflow:create"
	PermWorkflowRead        = "workflow:read"
)

// User is an authenticated principal. Roles are resolved to their
// permission set at authorization time by rbac.Service, from the roles its
// RoleStore returns.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Roles        StringSlice `db:"roles" json:"roles"`
	Disabled     bool      `db:"disabled" json:"disabled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Role groups a set of permission strings under a name.
type Role struct {
	Name        string      `db:"name" json:"name"`
	Permissions StringSlice `db:"permissions" json:"permissions"`
}

// APIKey is a long-lived credential: only the hash is persisted, the
// plaintext is shown once at creation time.
type APIKey struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Name       string     `db:"name" json:"name"`
	KeyHash    string     `db:"key_hash" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	Revoked    bool       `db:"revoked" json:"revoked"`
}

// Identity is the resolved caller context threaded through search,
// ingestion, and workflow operations for authorization decisions.
type Identity struct {
	UserID      string
	Roles       []string
	Permissions map[string]bool
	IsAdmin     bool
}

// HasPermission reports whether the identity carries the given permission,
// or is an admin (which implicitly carries every permission).
func (id Identity) HasPermission(perm string) bool {
	if perm == "" {
		return true
	}
	if id.IsAdmin {
		return true
	}
	return id.Permissions[perm]
}

// CanView reports whether the identity may read content at the given
// sensitivity tier, per the sensitivity access gate in §3.
func (id Identity) CanView(s Sensitivity) bool {
	required := SensitivityPermission[s]
	return id.HasPermission(required)
}
