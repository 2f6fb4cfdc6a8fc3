package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "user own", role: RoleUser, action: ActionOwn, allow: true},
		{name: "user admin", role: RoleUser, action: ActionAdmin, allow: false},
		{name: "admin own", role: RoleAdmin, action: ActionOwn, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionOwn, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestRoleForUsername(t *testing.T) {
	for _, name := range []string{"admin", "Admin", " ADMIN "} {
		if got := RoleForUsername(name); got != RoleAdmin {
			t.Fatalf("RoleForUsername(%q) = %q", name, got)
		}
	}
	for _, name := range []string{"administrator", "avery", ""} {
		if got := RoleForUsername(name); got != RoleUser {
			t.Fatalf("RoleForUsername(%q) = %q", name, got)
		}
	}
	if Normalize("superuser") != RoleUser {
		t.Fatal("unknown roles normalize to user")
	}
}
