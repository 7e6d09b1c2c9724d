package admin

import (
	"strings"

	handlershared "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/shared"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListReconcileIssues 对账异常列表
func (h *Handler) ListReconcileIssues(c *gin.Context) {
	page, pageSize := handlershared.PageQuery(c)
	issues, total, err := h.ReconcileService.ListIssues(c.Request.Context(), repository.ReconcileIssueListFilter{
		Page:     page,
		PageSize: pageSize,
		OrderID:  strings.TrimSpace(c.Query("order_id")),
		Provider: strings.ToLower(strings.TrimSpace(c.Query("provider"))),
		Stage:    strings.ToLower(strings.TrimSpace(c.Query("stage"))),
		Status:   strings.ToLower(strings.TrimSpace(c.Query("status"))),
	})
	if err != nil {
		respondWithMappedError(c, err, reconcileIssueErrorRules)
		return
	}
	response.SuccessWithPage(c, issues, response.BuildPagination(page, pageSize, total))
}

// RetryReconcileIssue 手动重放异常记录中的回调事件
func (h *Handler) RetryReconcileIssue(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	issueID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	result, err := h.ReconcileService.RetryIssue(c.Request.Context(), issueID)
	if err != nil {
		respondWithMappedError(c, err, reconcileIssueErrorRules)
		return
	}
	requestLog(c).Infow("admin_reconcile_issue_retried", "admin_id", adminID, "issue_id", issueID, "outcome", result.Outcome)
	response.Success(c, result)
}

// ResolveReconcileIssue 人工关闭异常记录
func (h *Handler) ResolveReconcileIssue(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	issueID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	issue, err := h.ReconcileService.ResolveIssue(c.Request.Context(), issueID)
	if err != nil {
		respondWithMappedError(c, err, reconcileIssueErrorRules)
		return
	}
	requestLog(c).Infow("admin_reconcile_issue_resolved", "admin_id", adminID, "issue_id", issueID, "order_id", issue.OrderID)
	response.Success(c, issue)
}
