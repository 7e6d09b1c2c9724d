package public

import (
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	handlershared "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/shared"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	Plan          string `json:"plan"`
	PaymentMethod string `json:"payment_method"`
	ReturnURL     string `json:"return_url"`
}

// CreateOrderResponse 创建订单响应
type CreateOrderResponse struct {
	Success         bool       `json:"success"`
	OrderID         string     `json:"order_id"`
	InteractionMode string     `json:"interaction_mode"`
	PaymentURL      string     `json:"payment_url,omitempty"`
	PaymentForm     string     `json:"payment_form,omitempty"`
	QRCode          string     `json:"qr_code,omitempty"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Reused          bool       `json:"reused,omitempty"`
}

// CaptureOrderResponse 捕获结果
type CaptureOrderResponse struct {
	OrderID string        `json:"order_id"`
	Outcome string        `json:"outcome"`
	Order   *models.Order `json:"order,omitempty"`
}

// CreateOrder 创建订单并发起支付
func (h *Handler) CreateOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, response.ErrorCodeBadRequest, nil)
		return
	}

	result, err := h.OrderService.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		UserID:        uid,
		Plan:          req.Plan,
		PaymentMethod: req.PaymentMethod,
		ReturnURL:     strings.TrimSpace(req.ReturnURL),
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		respondWithMappedError(c, err, createOrderErrorRules, response.CodeInternal, response.ErrorCodeInternal)
		return
	}

	order := result.Order
	response.Success(c, CreateOrderResponse{
		Success:         true,
		OrderID:         order.ID,
		InteractionMode: result.InteractionMode,
		PaymentURL:      result.PaymentURL,
		PaymentForm:     result.PaymentForm,
		QRCode:          result.QRCode,
		Amount:          order.Amount,
		Currency:        order.Currency,
		ExpiresAt:       order.ExpiresAt,
		Reused:          result.Reused,
	})
}

// GetOrder 查询本人订单
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	order, err := h.OrderService.GetOrderForUser(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondWithMappedError(c, err, userOrderQueryErrorRules, response.CodeInternal, response.ErrorCodeInternal)
		return
	}
	response.Success(c, order)
}

// ListOrders 本人订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.PageQuery(c)

	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status != "" && !isKnownOrderStatus(status) {
		respondError(c, response.CodeBadRequest, response.ErrorCodeBadRequest, nil)
		return
	}

	orders, total, err := h.OrderService.ListOrdersForUser(c.Request.Context(), repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uid,
		Status:   status,
	})
	if err != nil {
		respondWithMappedError(c, err, userOrderQueryErrorRules, response.CodeInternal, response.ErrorCodeInternal)
		return
	}
	response.SuccessWithPage(c, orders, response.BuildPagination(page, pageSize, total))
}

// CaptureOrder 用户从 PayPal 返回后主动捕获
func (h *Handler) CaptureOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	result, err := h.CaptureService.CapturePaypal(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondWithMappedError(c, err, captureOrderErrorRules, response.CodeInternal, response.ErrorCodeInternal)
		return
	}
	response.Success(c, CaptureOrderResponse{
		OrderID: result.OrderID,
		Outcome: result.Outcome,
		Order:   result.Order,
	})
}

// GetSubscription 当前订阅状态
func (h *Handler) GetSubscription(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	view, err := h.OrderService.GetSubscription(c.Request.Context(), uid)
	if err != nil {
		respondWithMappedError(c, err, userOrderQueryErrorRules, response.CodeInternal, response.ErrorCodeInternal)
		return
	}
	response.Success(c, view)
}

// GetPlans 可购买套餐与已启用的支付方式
func (h *Handler) GetPlans(c *gin.Context) {
	response.Success(c, gin.H{
		"plans":           h.PlanCatalog.List(),
		"payment_methods": h.GatewayFactory.EnabledMethods(),
	})
}

func isKnownOrderStatus(status string) bool {
	switch status {
	case constants.OrderStatusPending, constants.OrderStatusPaid, constants.OrderStatusCancelled, constants.OrderStatusRefunded:
		return true
	default:
		return false
	}
}
