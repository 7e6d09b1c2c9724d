package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/paypal"
)

// PaymentCaptureService 用户在 PayPal 完成授权后主动扣款
type PaymentCaptureService struct {
	orders    *OrderService
	factory   *GatewayFactory
	reconcile *ReconcileService
}

// NewPaymentCaptureService 创建扣款服务
func NewPaymentCaptureService(orders *OrderService, factory *GatewayFactory, reconcile *ReconcileService) *PaymentCaptureService {
	return &PaymentCaptureService{orders: orders, factory: factory, reconcile: reconcile}
}

// CapturePaypal 捕获 PayPal 订单，并以与 Webhook 相同的路径入账
func (s *PaymentCaptureService) CapturePaypal(ctx context.Context, orderID, userID string) (*ReconcileResult, error) {
	order, err := s.orders.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != constants.PaymentMethodPaypal {
		return nil, ErrInvalidPaymentMethod
	}
	if order.Status == constants.OrderStatusPaid {
		return &ReconcileResult{OrderID: order.ID, Outcome: ReconcileOutcomeAlreadyProcessed, Order: order}, nil
	}
	if order.Status != constants.OrderStatusPending || strings.TrimSpace(order.ProviderRef) == "" {
		return nil, ErrOrderStatusInvalid
	}

	cfg, _, err := s.factory.PaypalConfig()
	if err != nil {
		return nil, err
	}
	captured, err := paypal.CaptureOrder(ctx, cfg, order.ProviderRef)
	if err != nil {
		logger.WithOrder(order.ID, order.PaymentMethod).Errorw("paypal_capture_failed", "provider_ref", order.ProviderRef, "error", err)
		switch {
		case errors.Is(err, paypal.ErrConfigInvalid):
			return nil, fmt.Errorf("%w: %v", ErrPaymentMethodUnavailable, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrPaymentProviderFailed, err)
		}
	}

	status := ""
	if strings.EqualFold(captured.Status, "COMPLETED") {
		status = constants.OrderStatusPaid
	}
	return s.reconcile.Apply(ctx, &VerifiedEvent{
		Provider:      constants.PaymentMethodPaypal,
		EventType:     "CAPTURE." + strings.ToUpper(captured.Status),
		OrderID:       order.ID,
		ProviderRef:   pickFirstNonEmpty(captured.PaypalOrderID, order.ProviderRef),
		TransactionID: captured.CaptureID,
		Status:        status,
		AmountMinor:   captured.AmountMinor,
		Currency:      captured.Currency,
		PaidAt:        captured.PaidAt,
		Raw:           captured.Raw,
	})
}

func pickFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
