package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/models"
)

const (
	authStateCacheTTL    = 10 * time.Minute
	subscriptionCacheTTL = 5 * time.Minute
)

// AdminAuthState 管理员鉴权快照
type AdminAuthState struct {
	AdminID      uint   `json:"admin_id"`
	Username     string `json:"username"`
	TokenVersion uint64 `json:"token_version"`
	IsSuper      bool   `json:"is_super"`
	UpdatedAt    int64  `json:"updated_at"`
}

// SubscriptionView 用户订阅视图缓存
type SubscriptionView struct {
	UserID              string     `json:"user_id"`
	Plan                string     `json:"plan"`
	SubscriptionStatus  string     `json:"subscription_status"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date"`
}

func adminAuthStateKey(adminID uint) string {
	return fmt.Sprintf("auth:admin:%d", adminID)
}

func subscriptionKey(userID string) string {
	return fmt.Sprintf("subscription:%s", userID)
}

// BuildAdminAuthState 从管理员模型构建鉴权快照
func BuildAdminAuthState(admin *models.Admin) *AdminAuthState {
	if admin == nil {
		return nil
	}
	return &AdminAuthState{
		AdminID:      admin.ID,
		Username:     admin.Username,
		TokenVersion: admin.TokenVersion,
		IsSuper:      admin.IsSuper,
		UpdatedAt:    time.Now().Unix(),
	}
}

// GetAdminAuthState 获取管理员鉴权快照
func GetAdminAuthState(ctx context.Context, adminID uint) (*AdminAuthState, bool, error) {
	if adminID == 0 {
		return nil, false, nil
	}
	var state AdminAuthState
	hit, err := getJSON(ctx, adminAuthStateKey(adminID), &state)
	if err != nil || !hit {
		return nil, false, err
	}
	return &state, true, nil
}

// SetAdminAuthState 写入管理员鉴权快照
func SetAdminAuthState(ctx context.Context, state *AdminAuthState) error {
	if state == nil || state.AdminID == 0 {
		return nil
	}
	return setJSON(ctx, adminAuthStateKey(state.AdminID), state, authStateCacheTTL)
}

// DelAdminAuthState 删除管理员鉴权快照
func DelAdminAuthState(ctx context.Context, adminID uint) error {
	if adminID == 0 {
		return nil
	}
	return del(ctx, adminAuthStateKey(adminID))
}

// BuildSubscriptionView 从订阅视图模型构建缓存结构
func BuildSubscriptionView(profile *models.Profile) *SubscriptionView {
	if profile == nil {
		return nil
	}
	return &SubscriptionView{
		UserID:              profile.ID,
		Plan:                profile.Plan,
		SubscriptionStatus:  profile.SubscriptionStatus,
		SubscriptionEndDate: profile.SubscriptionEndDate,
	}
}

// GetSubscriptionView 获取订阅视图缓存
func GetSubscriptionView(ctx context.Context, userID string) (*SubscriptionView, bool, error) {
	if userID == "" {
		return nil, false, nil
	}
	var view SubscriptionView
	hit, err := getJSON(ctx, subscriptionKey(userID), &view)
	if err != nil || !hit {
		return nil, false, err
	}
	return &view, true, nil
}

// SetSubscriptionView 写入订阅视图缓存
func SetSubscriptionView(ctx context.Context, view *SubscriptionView) error {
	if view == nil || view.UserID == "" {
		return nil
	}
	return setJSON(ctx, subscriptionKey(view.UserID), view, subscriptionCacheTTL)
}

// DelSubscriptionView 删除订阅视图缓存，对账写入订阅后调用
func DelSubscriptionView(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return del(ctx, subscriptionKey(userID))
}
