package authz

import "fmt"

// RoleSeed 预置角色
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 后台预置角色，按权限从小到大排列
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			// 只读审计：所有后台查询
			Role:     "readonly_auditor",
			Policies: []Policy{{Object: "/admin/*", Action: "GET"}},
		},
		{
			// 客服：可关闭未支付订单
			Role:     "support",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{{Object: "/admin/orders/:id/cancel", Action: "POST"}},
		},
		{
			// 财务：处理对账异常
			Role:     "finance",
			Inherits: []string{"support"},
			Policies: []Policy{
				{Object: "/admin/reconcile-issues/:id/retry", Action: "POST"},
				{Object: "/admin/reconcile-issues/:id/resolve", Action: "POST"},
			},
		},
	}
}

// BootstrapBuiltinRoles 幂等写入预置角色、继承关系与策略
func (s *Service) BootstrapBuiltinRoles() error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, seed := range BuiltinRoleSeeds() {
		if err := s.applySeed(seed); err != nil {
			return fmt.Errorf("bootstrap role %s failed: %w", seed.Role, err)
		}
	}
	return nil
}

func (s *Service) applySeed(seed RoleSeed) error {
	role, err := NormalizeRole(seed.Role)
	if err != nil {
		return err
	}
	if _, err := s.registerRole(role); err != nil {
		return err
	}
	for _, parent := range seed.Inherits {
		parentRole, err := NormalizeRole(parent)
		if err != nil {
			return err
		}
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
			return fmt.Errorf("link parent %s: %w", parentRole, err)
		}
	}
	for _, policy := range seed.Policies {
		if err := s.GrantRolePolicy(role, policy.Object, policy.Action); err != nil {
			return err
		}
	}
	return nil
}
