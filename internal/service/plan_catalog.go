package service

import (
	"sort"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
)

// Plan 套餐定义
type Plan struct {
	Code       string           `json:"code"`
	Name       string           `json:"name"`
	PeriodDays int              `json:"period_days"`
	Prices     map[string]int64 `json:"prices"`
}

// PlanCatalog 套餐与价格表
type PlanCatalog struct {
	plans map[string]Plan
}

// NewPlanCatalog 从价格配置构建套餐表，币种统一转为大写
func NewPlanCatalog(cfg config.PricingConfig) *PlanCatalog {
	catalog := &PlanCatalog{plans: make(map[string]Plan, len(cfg.Plans))}
	for code, item := range cfg.Plans {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" || code == constants.PlanFree {
			continue
		}
		prices := make(map[string]int64, len(item.Prices))
		for currency, amount := range item.Prices {
			if amount <= 0 {
				continue
			}
			prices[strings.ToUpper(strings.TrimSpace(currency))] = amount
		}
		periodDays := item.PeriodDays
		if periodDays <= 0 {
			periodDays = defaultPeriodDays(code)
		}
		catalog.plans[code] = Plan{
			Code:       code,
			Name:       strings.TrimSpace(item.Name),
			PeriodDays: periodDays,
			Prices:     prices,
		}
	}
	return catalog
}

// Get 获取可购买套餐
func (c *PlanCatalog) Get(code string) (Plan, bool) {
	if c == nil {
		return Plan{}, false
	}
	plan, ok := c.plans[strings.ToLower(strings.TrimSpace(code))]
	return plan, ok
}

// Price 查询套餐在指定币种下的价格（最小货币单位）
func (c *PlanCatalog) Price(code, currency string) (int64, error) {
	plan, ok := c.Get(code)
	if !ok {
		return 0, ErrInvalidPlan
	}
	amount, ok := plan.Prices[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok || amount <= 0 {
		return 0, ErrPriceNotConfigured
	}
	return amount, nil
}

// List 返回按编码排序的套餐列表
func (c *PlanCatalog) List() []Plan {
	if c == nil {
		return nil
	}
	result := make([]Plan, 0, len(c.plans))
	for _, plan := range c.plans {
		result = append(result, plan)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})
	return result
}

func defaultPeriodDays(code string) int {
	if code == constants.PlanProYearly {
		return 365
	}
	return 30
}
