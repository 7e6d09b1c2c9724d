package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/cache"
	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/queue"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"

	"go.uber.org/zap"
)

const defaultPaymentExpireMinutes = 30

// OrderService 订单服务
type OrderService struct {
	orderRepo     repository.OrderRepository
	profileRepo   repository.ProfileRepository
	catalog       *PlanCatalog
	gateways      GatewayProvider
	queueClient   *queue.Client
	expireMinutes int
	reusePending  bool
	defaultMethod string
	now           func() time.Time
}

// methodLister 能列出已启用支付方式的网关提供者
type methodLister interface {
	EnabledMethods() []string
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, profileRepo repository.ProfileRepository, catalog *PlanCatalog, gateways GatewayProvider, queueClient *queue.Client, cfg config.OrderConfig) *OrderService {
	expireMinutes := cfg.PaymentExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = defaultPaymentExpireMinutes
	}
	return &OrderService{
		orderRepo:     orderRepo,
		profileRepo:   profileRepo,
		catalog:       catalog,
		gateways:      gateways,
		queueClient:   queueClient,
		expireMinutes: expireMinutes,
		reusePending:  cfg.ReusePending,
		defaultMethod: strings.ToLower(strings.TrimSpace(cfg.DefaultPaymentMethod)),
		now:           time.Now,
	}
}

// CreateOrderInput 创建订单输入
type CreateOrderInput struct {
	UserID        string
	Plan          string
	PaymentMethod string
	ReturnURL     string
	ClientIP      string
}

// CreateOrderResult 创建订单结果
type CreateOrderResult struct {
	Order           *models.Order
	InteractionMode string
	PaymentURL      string
	PaymentForm     string
	QRCode          string
	Reused          bool
}

// SubscriptionStatusView 用户订阅状态
type SubscriptionStatusView struct {
	UserID              string     `json:"user_id"`
	Plan                string     `json:"plan"`
	SubscriptionStatus  string     `json:"subscription_status"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date"`
	IsActive            bool       `json:"is_active"`
}

// resolveDefaultMethod 请求未带支付方式时，优先用配置的默认方式，否则取第一个已启用的方式
func (s *OrderService) resolveDefaultMethod() string {
	if s.defaultMethod != "" {
		return s.defaultMethod
	}
	if lister, ok := s.gateways.(methodLister); ok {
		if methods := lister.EnabledMethods(); len(methods) > 0 {
			return methods[0]
		}
	}
	return ""
}

// CreateOrder 创建订单并向支付服务商发起支付
// 订单先以 pending 落库，落库失败不会调用服务商；服务商失败时本地订单转为 cancelled
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	planCode := strings.ToLower(strings.TrimSpace(input.Plan))
	plan, ok := s.catalog.Get(planCode)
	if !ok {
		return nil, ErrInvalidPlan
	}
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method == "" {
		method = s.resolveDefaultMethod()
		if method == "" {
			return nil, ErrPaymentMethodUnavailable
		}
	}
	if !IsKnownPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	log := logger.SW("user_id", userID, "plan", planCode, "provider", method)

	gateway, err := s.gateways.Gateway(method)
	if err != nil {
		if errors.Is(err, ErrInvalidPaymentMethod) {
			return nil, ErrInvalidPaymentMethod
		}
		log.Warnw("order_create_gateway_unavailable", "error", err)
		return nil, ErrPaymentMethodUnavailable
	}
	currency := gateway.Currency()
	amount, err := s.catalog.Price(planCode, currency)
	if err != nil {
		log.Warnw("order_create_price_missing", "currency", currency, "error", err)
		return nil, fmt.Errorf("%w: no %s price for plan", ErrPaymentMethodUnavailable, currency)
	}

	now := s.now()
	if s.reusePending {
		if reused := s.findReusableOrder(userID, planCode, method, amount, currency, now); reused != nil {
			log.Infow("order_create_reuse_pending", "order_id", reused.Order.ID)
			return reused, nil
		}
	}

	orderID, err := generateOrderID(OrderPrefix(method), now)
	if err != nil {
		log.Errorw("order_create_id_failed", "error", err)
		return nil, err
	}
	expiresAt := now.Add(time.Duration(s.expireMinutes) * time.Minute)
	order := &models.Order{
		ID:            orderID,
		UserID:        userID,
		PlanType:      planCode,
		PaymentMethod: method,
		Amount:        amount,
		Currency:      currency,
		Status:        constants.OrderStatusPending,
		ClientIP:      strings.TrimSpace(input.ClientIP),
		ExpiresAt:     &expiresAt,
		Metadata: models.JSON{
			"passback": buildPassback(userID, planCode),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	log = log.With("order_id", order.ID)

	if err := s.orderRepo.Create(order); err != nil {
		log.Errorw("order_create_persist_failed", "error", err, "at", now)
		return nil, ErrOrderPersistenceFailed
	}
	s.enqueueTimeoutCancel(order, log)

	subject := plan.Name
	if subject == "" {
		subject = planCode
	}
	result, err := gateway.CreatePayment(ctx, GatewayCreateInput{
		OrderID:     order.ID,
		UserID:      userID,
		Plan:        planCode,
		Subject:     subject,
		AmountMinor: amount,
		Currency:    currency,
		ReturnURL:   strings.TrimSpace(input.ReturnURL),
		ClientIP:    order.ClientIP,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		log.Errorw("order_create_provider_failed", "error", err, "config_error", isGatewayConfigError(err), "at", s.now())
		s.cancelAfterProviderFailure(order, log)
		return nil, fmt.Errorf("%w: %v", ErrPaymentProviderFailed, err)
	}

	metadata := models.JSON{"passback": buildPassback(userID, planCode)}
	if result.PaymentForm != "" {
		metadata["payment_form"] = result.PaymentForm
	}
	paymentURL := result.PaymentURL
	if paymentURL == "" {
		paymentURL = result.QRCode
	}
	updates := map[string]interface{}{
		"interaction_mode": result.InteractionMode,
		"payment_url":      paymentURL,
		"provider_ref":     result.ProviderRef,
		"metadata":         metadata,
		"updated_at":       s.now(),
	}
	if err := s.orderRepo.UpdatePendingFields(order.ID, updates); err != nil {
		log.Warnw("order_create_payment_url_save_failed", "error", err)
	}
	order.InteractionMode = result.InteractionMode
	order.PaymentURL = paymentURL
	order.ProviderRef = result.ProviderRef
	order.Metadata = metadata

	log.Infow("order_created", "amount", amount, "currency", currency, "interaction_mode", result.InteractionMode)
	return &CreateOrderResult{
		Order:           order,
		InteractionMode: result.InteractionMode,
		PaymentURL:      result.PaymentURL,
		PaymentForm:     result.PaymentForm,
		QRCode:          result.QRCode,
	}, nil
}

func (s *OrderService) findReusableOrder(userID, planCode, method string, amount int64, currency string, now time.Time) *CreateOrderResult {
	order, err := s.orderRepo.FindReusablePending(userID, planCode, method, now)
	if err != nil {
		logger.Warnw("order_reuse_lookup_failed", "user_id", userID, "error", err)
		return nil
	}
	if order == nil || order.Amount != amount || order.Currency != currency {
		return nil
	}
	result := &CreateOrderResult{
		Order:           order,
		InteractionMode: order.InteractionMode,
		PaymentURL:      order.PaymentURL,
		PaymentForm:     order.Metadata.String("payment_form"),
		Reused:          true,
	}
	if order.InteractionMode == constants.PaymentInteractionQR {
		result.QRCode = order.PaymentURL
	}
	return result
}

func (s *OrderService) cancelAfterProviderFailure(order *models.Order, log *zap.SugaredLogger) {
	now := s.now()
	ok, err := s.orderRepo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusCancelled, map[string]interface{}{
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil || !ok {
		log.Warnw("order_create_cancel_after_provider_failure_failed", "error", err, "applied", ok)
		return
	}
	order.Status = constants.OrderStatusCancelled
	order.CancelledAt = &now
}

func (s *OrderService) enqueueTimeoutCancel(order *models.Order, log *zap.SugaredLogger) {
	if s.queueClient == nil || !s.queueClient.Enabled() || order.ExpiresAt == nil {
		return
	}
	delay := order.ExpiresAt.Sub(s.now())
	if err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{OrderID: order.ID}, delay); err != nil {
		log.Warnw("order_enqueue_timeout_cancel_failed", "error", err)
	}
}

// GetOrderForUser 查询订单状态，仅当订单属于该用户时返回；不区分不存在与无权访问
func (s *OrderService) GetOrderForUser(ctx context.Context, orderID, userID string) (*models.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		logger.Errorw("order_query_fetch_failed", "order_id", orderID, "user_id", userID, "error", err)
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrdersForUser 分页查询用户订单
func (s *OrderService) ListOrdersForUser(ctx context.Context, filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return nil, 0, ErrUnauthenticated
	}
	orders, total, err := s.orderRepo.ListByUser(filter)
	if err != nil {
		logger.Errorw("order_list_fetch_failed", "user_id", filter.UserID, "error", err)
		return nil, 0, ErrOrderFetchFailed
	}
	return orders, total, nil
}

// ListOrdersForAdmin 管理端订单列表
func (s *OrderService) ListOrdersForAdmin(ctx context.Context, filter repository.OrderListFilter) ([]models.Order, int64, error) {
	orders, total, err := s.orderRepo.ListAdmin(filter)
	if err != nil {
		logger.Errorw("admin_order_list_fetch_failed", "error", err)
		return nil, 0, ErrOrderFetchFailed
	}
	return orders, total, nil
}

// GetOrderForAdmin 管理端订单详情
func (s *OrderService) GetOrderForAdmin(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(strings.TrimSpace(orderID))
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetSubscription 获取用户订阅状态，优先读取缓存
func (s *OrderService) GetSubscription(ctx context.Context, userID string) (*SubscriptionStatusView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	now := s.now()
	if cached, hit, err := cache.GetSubscriptionView(ctx, userID); err == nil && hit && cached != nil {
		return buildSubscriptionStatus(userID, cached.Plan, cached.SubscriptionStatus, cached.SubscriptionEndDate, now), nil
	}
	profile, err := s.profileRepo.GetByID(userID)
	if err != nil {
		logger.Errorw("subscription_fetch_failed", "user_id", userID, "error", err)
		return nil, ErrOrderFetchFailed
	}
	if profile == nil {
		return buildSubscriptionStatus(userID, constants.PlanFree, constants.SubscriptionStatusInactive, nil, now), nil
	}
	if err := cache.SetSubscriptionView(ctx, cache.BuildSubscriptionView(profile)); err != nil {
		logger.Debugw("subscription_cache_set_failed", "user_id", userID, "error", err)
	}
	return buildSubscriptionStatus(userID, profile.Plan, profile.SubscriptionStatus, profile.SubscriptionEndDate, now), nil
}

func buildSubscriptionStatus(userID, plan, status string, endDate *time.Time, now time.Time) *SubscriptionStatusView {
	view := &SubscriptionStatusView{
		UserID:              userID,
		Plan:                plan,
		SubscriptionStatus:  status,
		SubscriptionEndDate: endDate,
	}
	view.IsActive = status == constants.SubscriptionStatusActive && endDate != nil && endDate.After(now)
	return view
}

// CancelExpiredOrder 取消已过期的待支付订单，返回是否发生了状态变更
func (s *OrderService) CancelExpiredOrder(ctx context.Context, orderID string) (bool, error) {
	order, err := s.orderRepo.GetByID(strings.TrimSpace(orderID))
	if err != nil {
		return false, ErrOrderFetchFailed
	}
	if order == nil {
		return false, ErrOrderNotFound
	}
	now := s.now()
	if order.Status != constants.OrderStatusPending || !order.IsExpired(now) {
		return false, nil
	}
	return s.cancelPending(order, now, "expired")
}

// CancelOrderByAdmin 管理员取消待支付订单
func (s *OrderService) CancelOrderByAdmin(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(strings.TrimSpace(orderID))
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isTransitionAllowed(order.Status, constants.OrderStatusCancelled) {
		return nil, ErrOrderStatusInvalid
	}
	ok, err := s.cancelPending(order, s.now(), "admin")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderStatusInvalid
	}
	return order, nil
}

// SweepExpiredOrders 批量取消过期订单
func (s *OrderService) SweepExpiredOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.ListExpiredPending(s.now(), limit)
	if err != nil {
		return 0, ErrOrderFetchFailed
	}
	cancelled := 0
	for i := range orders {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		ok, err := s.cancelPending(&orders[i], s.now(), "sweep")
		if err != nil {
			logger.Warnw("order_sweep_cancel_failed", "order_id", orders[i].ID, "error", err)
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *OrderService) cancelPending(order *models.Order, now time.Time, reason string) (bool, error) {
	ok, err := s.orderRepo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusCancelled, map[string]interface{}{
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil {
		logger.Errorw("order_cancel_failed", "order_id", order.ID, "reason", reason, "error", err)
		return false, ErrOrderUpdateFailed
	}
	if ok {
		order.Status = constants.OrderStatusCancelled
		order.CancelledAt = &now
		logger.Infow("order_cancelled", "order_id", order.ID, "provider", order.PaymentMethod, "reason", reason)
	}
	return ok, nil
}
