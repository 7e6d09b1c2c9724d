package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestGetAdminPoliciesIncludesInheritedRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.SetAdminRoles(1, []string{"finance"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}

	policies, err := svc.GetAdminPolicies(1)
	if err != nil {
		t.Fatalf("get admin policies failed: %v", err)
	}
	want := map[string]bool{
		"GET /admin/*":                             false,
		"POST /admin/orders/:id/cancel":            false,
		"POST /admin/reconcile-issues/:id/retry":   false,
		"POST /admin/reconcile-issues/:id/resolve": false,
	}
	for _, p := range policies {
		key := p.Action + " " + p.Object
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, seen := range want {
		if !seen {
			t.Fatalf("policy %s missing from %+v", key, policies)
		}
	}

	if _, err := svc.GetAdminPolicies(0); err == nil {
		t.Fatalf("admin id 0 should be rejected")
	}
	var nilSvc *Service
	if _, err := nilSvc.EnforceAdmin(1, "/admin/orders", "GET"); err == nil {
		t.Fatalf("nil service should report unavailable")
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "finance", want: "role:finance"},
		{in: " readonly auditor ", want: "role:readonly_auditor"},
		{in: "role:support", want: "role:support"},
		{in: "role:", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizeRole(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q should fail", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: want %s got %s err=%v", tc.in, tc.want, got, err)
		}
	}
}

func TestSetAdminRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/orders", "GET"); err != nil {
		t.Fatalf("grant ops policy failed: %v", err)
	}
	if err := svc.GrantRolePolicy("finance", "/admin/reconcile-issues", "GET"); err != nil {
		t.Fatalf("grant finance policy failed: %v", err)
	}

	if err := svc.SetAdminRoles(2, []string{"ops"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	roles, err := svc.GetAdminRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:ops" {
		t.Fatalf("roles want [role:ops], got=%v", roles)
	}

	if err := svc.SetAdminRoles(2, []string{"finance"}); err != nil {
		t.Fatalf("set second role failed: %v", err)
	}
	roles, err = svc.GetAdminRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:finance" {
		t.Fatalf("roles want [role:finance], got=%v", roles)
	}

	allow, err := svc.EnforceAdmin(2, "/admin/orders", "GET")
	if err != nil {
		t.Fatalf("enforce old role failed: %v", err)
	}
	if allow {
		t.Fatalf("expected old role permission removed")
	}

	allow, err = svc.EnforceAdmin(2, "/admin/reconcile-issues", "GET")
	if err != nil {
		t.Fatalf("enforce new role failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected new role permission granted")
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/orders/:id", want: "/admin/orders/:id"},
		{in: "/admin/orders/:id", want: "/admin/orders/:id"},
		{in: "admin/orders", want: "/admin/orders"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		got := NormalizeObject(item.in)
		if got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestBootstrapBuiltinRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}

	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	wantRoles := map[string]bool{
		"role:readonly_auditor": true,
		"role:support":          true,
		"role:finance":          true,
	}
	for _, role := range roles {
		delete(wantRoles, role)
	}
	if len(wantRoles) != 0 {
		t.Fatalf("builtin roles missing: %v", wantRoles)
	}

	if err := svc.SetAdminRoles(3, []string{"support"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}
	cases := []struct {
		adminID uint
		obj     string
		act     string
		want    bool
	}{
		{adminID: 3, obj: "/api/v1/admin/orders", act: "GET", want: true},
		{adminID: 3, obj: "/api/v1/admin/orders/ALI123/cancel", act: "POST", want: true},
		{adminID: 3, obj: "/api/v1/admin/reconcile-issues/7/retry", act: "POST", want: false},
		{adminID: 4, obj: "/api/v1/admin/reconcile-issues/7/retry", act: "POST", want: true},
		{adminID: 4, obj: "/api/v1/admin/orders/ALI123/cancel", act: "POST", want: true},
		{adminID: 5, obj: "/api/v1/admin/reconcile-issues", act: "GET", want: true},
		{adminID: 5, obj: "/api/v1/admin/orders/ALI123/cancel", act: "POST", want: false},
	}
	if err := svc.SetAdminRoles(4, []string{"finance"}); err != nil {
		t.Fatalf("set finance role failed: %v", err)
	}
	if err := svc.SetAdminRoles(5, []string{"readonly_auditor"}); err != nil {
		t.Fatalf("set auditor role failed: %v", err)
	}
	for _, tc := range cases {
		allow, err := svc.EnforceAdmin(tc.adminID, tc.obj, tc.act)
		if err != nil {
			t.Fatalf("enforce %s %s failed: %v", tc.act, tc.obj, err)
		}
		if allow != tc.want {
			t.Fatalf("admin %d %s %s want %v got %v", tc.adminID, tc.act, tc.obj, tc.want, allow)
		}
	}
}
