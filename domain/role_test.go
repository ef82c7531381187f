package domain

import "testing"

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want Capabilities
	}{
		{
			name: "owner",
			role: RoleOwner,
			want: Capabilities{
				CanManageLanes: true, CanEditItems: true, CanComment: true,
				CanEditBoard: true, CanDeleteBoard: true, CanManageMembers: true,
				IsOwner: true, IsAdmin: true,
			},
		},
		{
			name: "admin",
			role: RoleAdmin,
			want: Capabilities{
				CanManageLanes: true, CanEditItems: true, CanComment: true,
				CanEditBoard: true, CanManageMembers: true, IsAdmin: true,
			},
		},
		{
			name: "member",
			role: RoleMember,
			want: Capabilities{CanEditItems: true, CanComment: true},
		},
		{name: "viewer", role: RoleViewer, want: Capabilities{}},
		{name: "absent", role: "", want: Capabilities{}},
		{name: "garbage", role: Role("superuser"), want: Capabilities{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CapabilitiesFor(tt.role); got != tt.want {
				t.Fatalf("CapabilitiesFor(%q) = %+v, want %+v", tt.role, got, tt.want)
			}
		})
	}
}

func TestNormalizeRole(t *testing.T) {
	if got := NormalizeRole("admin"); got != RoleAdmin {
		t.Fatalf("NormalizeRole(admin) = %q", got)
	}
	if got := NormalizeRole("root"); got != "" {
		t.Fatalf("NormalizeRole(root) = %q, want empty", got)
	}
	if got := NormalizeRole(""); got != "" {
		t.Fatalf("NormalizeRole(empty) = %q, want empty", got)
	}
}
