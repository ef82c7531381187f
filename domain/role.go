package domain

// Role is the per-user-per-board permission level. The zero value means the
// caller has no membership on the board and must be treated as read-denied.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Capabilities is the set of operations a role allows on a board. Every
// mutating path consults this before touching the model or the store; a
// denied capability prevents the operation from starting rather than being
// rolled back after the fact.
type Capabilities struct {
	CanManageLanes   bool `json:"canManageLanes"`
	CanEditItems     bool `json:"canEditItems"`
	CanComment       bool `json:"canComment"`
	CanEditBoard     bool `json:"canEditBoard"`
	CanDeleteBoard   bool `json:"canDeleteBoard"`
	CanManageMembers bool `json:"canManageMembers"`
	IsOwner          bool `json:"isOwner"`
	IsAdmin          bool `json:"isAdmin"`
}

// CapabilitiesFor maps a role to its capability set. Viewer, unknown and
// absent roles all yield the empty, read-only set.
func CapabilitiesFor(role Role) Capabilities {
	switch role {
	case RoleOwner:
		return Capabilities{
			CanManageLanes:   true,
			CanEditItems:     true,
			CanComment:       true,
			CanEditBoard:     true,
			CanDeleteBoard:   true,
			CanManageMembers: true,
			IsOwner:          true,
			IsAdmin:          true,
		}
	case RoleAdmin:
		return Capabilities{
			CanManageLanes:   true,
			CanEditItems:     true,
			CanComment:       true,
			CanEditBoard:     true,
			CanManageMembers: true,
			IsAdmin:          true,
		}
	case RoleMember:
		return Capabilities{
			CanEditItems: true,
			CanComment:   true,
		}
	default:
		return Capabilities{}
	}
}

// NormalizeRole maps arbitrary stored strings onto a known role. Anything
// unrecognized degrades to the empty role, which denies all mutation.
func NormalizeRole(raw string) Role {
	switch Role(raw) {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return Role(raw)
	default:
		return ""
	}
}
