package admin

import (
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	handlershared "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/shared"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"

	"github.com/gin-gonic/gin"
)

// AdminOrderDetail 订单详情，附带交易流水与对账异常
type AdminOrderDetail struct {
	Order        *models.Order           `json:"order"`
	ProviderRef  string                  `json:"provider_ref"`
	Transactions []models.Transaction    `json:"transactions"`
	Issues       []models.ReconcileIssue `json:"issues"`
}

// AdminListOrders 订单列表
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, pageSize := handlershared.PageQuery(c)
	filter := repository.OrderListFilter{
		Page:          page,
		PageSize:      pageSize,
		UserID:        strings.TrimSpace(c.Query("user_id")),
		Status:        strings.ToLower(strings.TrimSpace(c.Query("status"))),
		PlanType:      strings.ToLower(strings.TrimSpace(c.Query("plan"))),
		PaymentMethod: strings.ToLower(strings.TrimSpace(c.Query("payment_method"))),
		Keyword:       strings.TrimSpace(c.Query("keyword")),
	}
	var ok bool
	if filter.CreatedFrom, ok = parseTimeQuery(c, "created_from"); !ok {
		return
	}
	if filter.CreatedTo, ok = parseTimeQuery(c, "created_to"); !ok {
		return
	}

	orders, total, err := h.OrderService.ListOrdersForAdmin(c.Request.Context(), filter)
	if err != nil {
		respondWithMappedError(c, err, adminOrderErrorRules)
		return
	}
	response.SuccessWithPage(c, orders, response.BuildPagination(page, pageSize, total))
}

// AdminGetOrder 订单详情
func (h *Handler) AdminGetOrder(c *gin.Context) {
	order, err := h.OrderService.GetOrderForAdmin(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithMappedError(c, err, adminOrderErrorRules)
		return
	}
	transactions, err := h.TransactionRepo.ListByOrder(order.ID)
	if err != nil {
		respondError(c, response.CodeInternal, response.ErrorCodeOrderFetchFailed, err)
		return
	}
	issues, _, err := h.ReconcileIssueRepo.ListAdmin(repository.ReconcileIssueListFilter{
		Page:     1,
		PageSize: 50,
		OrderID:  order.ID,
	})
	if err != nil {
		respondError(c, response.CodeInternal, response.ErrorCodeOrderFetchFailed, err)
		return
	}
	response.Success(c, AdminOrderDetail{
		Order:        order,
		ProviderRef:  order.ProviderRef,
		Transactions: transactions,
		Issues:       issues,
	})
}

// AdminCancelOrder 取消待支付订单
func (h *Handler) AdminCancelOrder(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	order, err := h.OrderService.CancelOrderByAdmin(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithMappedError(c, err, adminOrderErrorRules)
		return
	}
	requestLog(c).Infow("admin_order_cancelled", "admin_id", adminID, "order_id", order.ID)
	response.Success(c, order)
}

// GetUserProfile 查询用户订阅资料
func (h *Handler) GetUserProfile(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		respondError(c, response.CodeBadRequest, response.ErrorCodeBadRequest, nil)
		return
	}
	profile, err := h.ProfileRepo.GetByID(userID)
	if err != nil {
		respondError(c, response.CodeInternal, response.ErrorCodeInternal, err)
		return
	}
	if profile == nil {
		respondError(c, response.CodeNotFound, response.ErrorCodeNotFound, nil)
		return
	}
	view, err := h.OrderService.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		respondWithMappedError(c, err, adminOrderErrorRules)
		return
	}
	response.Success(c, gin.H{
		"profile":      profile,
		"subscription": view,
		"paid_orders":  h.countPaidOrders(c, userID),
	})
}

func (h *Handler) countPaidOrders(c *gin.Context, userID string) int64 {
	_, total, err := h.OrderService.ListOrdersForAdmin(c.Request.Context(), repository.OrderListFilter{
		Page:     1,
		PageSize: 1,
		UserID:   userID,
		Status:   constants.OrderStatusPaid,
	})
	if err != nil {
		return 0
	}
	return total
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(c, response.CodeBadRequest, response.ErrorCodeBadRequest, nil)
		return nil, false
	}
	return &parsed, true
}
