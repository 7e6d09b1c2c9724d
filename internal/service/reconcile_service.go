package service

import (
	"context"
	"encoding/json"
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
	"gorm.io/gorm"
)

// 对账处理结果
const (
	ReconcileOutcomeApplied          = "applied"
	ReconcileOutcomeAlreadyProcessed = "already_processed"
	ReconcileOutcomeCancelled        = "cancelled"
	ReconcileOutcomeIgnored          = "ignored"
	ReconcileOutcomeLatePayment      = "late_payment"
)

const (
	defaultCallbackLockSeconds = 30
	defaultReconcileRetryMax   = 5
	reconcileRetryBaseDelay    = 30 * time.Second
)

// ReconcileResult 对账结果
type ReconcileResult struct {
	OrderID         string        `json:"order_id"`
	Outcome         string        `json:"outcome"`
	Order           *models.Order `json:"order,omitempty"`
	SubscriptionEnd *time.Time    `json:"subscription_end,omitempty"`
}

// ReconcileService 将已验签的支付事件应用到订单、订阅与交易流水
type ReconcileService struct {
	orderRepo   repository.OrderRepository
	profileRepo repository.ProfileRepository
	txnRepo     repository.TransactionRepository
	issueRepo   repository.ReconcileIssueRepository
	catalog     *PlanCatalog
	queueClient *queue.Client
	lockTTL     time.Duration
	retryMax    int
	now         func() time.Time
}

// NewReconcileService 创建对账服务
func NewReconcileService(
	orderRepo repository.OrderRepository,
	profileRepo repository.ProfileRepository,
	txnRepo repository.TransactionRepository,
	issueRepo repository.ReconcileIssueRepository,
	catalog *PlanCatalog,
	queueClient *queue.Client,
	cfg config.ReconcileConfig,
) *ReconcileService {
	lockSeconds := cfg.CallbackLockSeconds
	if lockSeconds <= 0 {
		lockSeconds = defaultCallbackLockSeconds
	}
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = defaultReconcileRetryMax
	}
	return &ReconcileService{
		orderRepo:   orderRepo,
		profileRepo: profileRepo,
		txnRepo:     txnRepo,
		issueRepo:   issueRepo,
		catalog:     catalog,
		queueClient: queueClient,
		lockTTL:     time.Duration(lockSeconds) * time.Second,
		retryMax:    retryMax,
		now:         time.Now,
	}
}

// Apply 应用一次已验签的回调事件
// 同一订单同一流水号重复投递只会生效一次，后续返回 already_processed
func (s *ReconcileService) Apply(ctx context.Context, event *VerifiedEvent) (*ReconcileResult, error) {
	if event == nil {
		return nil, ErrCallbackPayloadInvalid
	}
	orderID, err := s.resolveOrderID(event)
	if err != nil {
		return nil, err
	}
	log := logger.WithOrder(orderID, event.Provider).With("transaction_id", event.TransactionID, "event_type", event.EventType)

	lock, err := cache.TryLock(ctx, cache.CallbackLockName(orderID), s.lockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			log.Infow("callback_lock_held")
			return nil, ErrCallbackInProgress
		}
		// 锁服务不可用时仍依赖条件更新保证只生效一次
		log.Warnw("callback_lock_failed", "error", err)
	}
	defer func() {
		if unlockErr := lock.Unlock(context.Background()); unlockErr != nil {
			log.Warnw("callback_unlock_failed", "error", unlockErr)
		}
	}()

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		log.Errorw("callback_order_fetch_failed", "error", err)
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		log.Warnw("callback_order_not_found")
		return nil, ErrOrderNotFound
	}
	if order.PaymentMethod != event.Provider {
		log.Warnw("callback_provider_mismatch", "order_provider", order.PaymentMethod)
		return nil, ErrOrderNotFound
	}

	result := &ReconcileResult{OrderID: order.ID, Order: order}
	if event.Status == "" {
		log.Infow("callback_event_ignored", "order_status", order.Status)
		result.Outcome = ReconcileOutcomeIgnored
		return result, nil
	}

	if mismatch := passbackMismatch(order, event.Passback); mismatch != "" {
		s.recordIssue(order, event, constants.ReconcileStagePassback, mismatch, false)
		log.Errorw("payment_exception", "stage", constants.ReconcileStagePassback, "detail", mismatch)
		return nil, ErrPassbackMismatch
	}

	if event.IsCancelled() {
		return s.applyCancelled(order, result, log)
	}
	return s.applyPaidEvent(ctx, order, event, result, log)
}

func (s *ReconcileService) resolveOrderID(event *VerifiedEvent) (string, error) {
	orderID := strings.TrimSpace(event.OrderID)
	if orderID != "" {
		return orderID, nil
	}
	if strings.TrimSpace(event.ProviderRef) == "" {
		return "", ErrCallbackPayloadInvalid
	}
	order, err := s.orderRepo.GetByProviderRef(event.Provider, event.ProviderRef)
	if err != nil {
		return "", ErrOrderFetchFailed
	}
	if order == nil {
		logger.Warnw("callback_order_not_found", "provider", event.Provider, "provider_ref", event.ProviderRef)
		return "", ErrOrderNotFound
	}
	event.OrderID = order.ID
	return order.ID, nil
}

func (s *ReconcileService) applyCancelled(order *models.Order, result *ReconcileResult, log *zap.SugaredLogger) (*ReconcileResult, error) {
	if order.Status != constants.OrderStatusPending {
		result.Outcome = ReconcileOutcomeIgnored
		return result, nil
	}
	now := s.now()
	ok, err := s.orderRepo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusCancelled, map[string]interface{}{
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil {
		log.Errorw("callback_cancel_failed", "error", err)
		return nil, ErrOrderUpdateFailed
	}
	if ok {
		order.Status = constants.OrderStatusCancelled
		order.CancelledAt = &now
		log.Infow("order_cancelled", "reason", "provider_closed")
		result.Outcome = ReconcileOutcomeCancelled
		return result, nil
	}
	result.Outcome = ReconcileOutcomeIgnored
	return result, nil
}

func (s *ReconcileService) applyPaidEvent(ctx context.Context, order *models.Order, event *VerifiedEvent, result *ReconcileResult, log *zap.SugaredLogger) (*ReconcileResult, error) {
	transactionID := strings.TrimSpace(event.TransactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is missing", ErrCallbackPayloadInvalid)
	}

	switch order.Status {
	case constants.OrderStatusPaid:
		if order.TransactionID == nil || *order.TransactionID == transactionID {
			log.Infow("callback_already_processed")
			result.Outcome = ReconcileOutcomeAlreadyProcessed
			return result, nil
		}
		// 同一订单出现第二笔不同流水，需要人工退款
		s.recordIssue(order, event, constants.ReconcileStageLatePayment, "order already paid by "+*order.TransactionID, false)
		log.Errorw("payment_exception", "stage", constants.ReconcileStageLatePayment, "paid_transaction_id", *order.TransactionID)
		result.Outcome = ReconcileOutcomeLatePayment
		return result, nil
	case constants.OrderStatusCancelled, constants.OrderStatusRefunded:
		s.recordIssue(order, event, constants.ReconcileStageLatePayment, "payment received for "+order.Status+" order", false)
		log.Errorw("payment_exception", "stage", constants.ReconcileStageLatePayment, "order_status", order.Status)
		result.Outcome = ReconcileOutcomeLatePayment
		return result, nil
	case constants.OrderStatusPending:
	default:
		return nil, ErrOrderStatusInvalid
	}

	if mismatch := amountMismatch(order, event); mismatch != "" {
		s.recordIssue(order, event, constants.ReconcileStageAmount, mismatch, false)
		log.Errorw("payment_exception", "stage", constants.ReconcileStageAmount, "detail", mismatch)
		return nil, ErrAmountMismatch
	}

	subscriptionEnd, err := s.applyPaid(order, transactionID, event)
	if errors.Is(err, ErrAlreadyProcessed) {
		log.Infow("callback_already_processed", "race", true)
		result.Outcome = ReconcileOutcomeAlreadyProcessed
		if latest, fetchErr := s.orderRepo.GetByID(order.ID); fetchErr == nil && latest != nil {
			result.Order = latest
		}
		return result, nil
	}
	if err != nil {
		s.recordIssue(order, event, constants.ReconcileStageApply, err.Error(), true)
		log.Errorw("payment_exception", "stage", constants.ReconcileStageApply, "error", err)
		return nil, err
	}

	s.afterPaid(ctx, order, subscriptionEnd, log)
	result.Outcome = ReconcileOutcomeApplied
	result.SubscriptionEnd = subscriptionEnd
	return result, nil
}

// applyPaid 在单个事务内完成订单流转、订阅延期与流水追加，任一步失败整体回滚
func (s *ReconcileService) applyPaid(order *models.Order, transactionID string, event *VerifiedEvent) (*time.Time, error) {
	now := s.now()
	paidAt := now
	if event.PaidAt != nil && !event.PaidAt.IsZero() {
		paidAt = *event.PaidAt
	}
	periodDays := defaultPeriodDays(order.PlanType)
	if plan, ok := s.catalog.Get(order.PlanType); ok && plan.PeriodDays > 0 {
		periodDays = plan.PeriodDays
	}

	var subscriptionEnd time.Time
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		ok, err := orderRepo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusPaid, map[string]interface{}{
			"transaction_id": transactionID,
			"paid_at":        paidAt,
			"updated_at":     now,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
		}
		if !ok {
			latest, err := orderRepo.GetByID(order.ID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
			}
			if latest != nil && latest.Status == constants.OrderStatusPaid {
				return ErrAlreadyProcessed
			}
			return ErrOrderStatusInvalid
		}

		profileRepo := s.profileRepo.WithTx(tx)
		profile, err := profileRepo.GetByIDForUpdate(order.UserID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProfileUpdateFailed, err)
		}
		base := now
		createdAt := now
		if profile != nil {
			createdAt = profile.CreatedAt
			if profile.SubscriptionEndDate != nil && profile.SubscriptionEndDate.After(now) {
				base = *profile.SubscriptionEndDate
			}
		}
		subscriptionEnd = base.AddDate(0, 0, periodDays)
		if err := profileRepo.Upsert(&models.Profile{
			ID:                  order.UserID,
			Plan:                order.PlanType,
			SubscriptionStatus:  constants.SubscriptionStatusActive,
			SubscriptionEndDate: &subscriptionEnd,
			CreatedAt:           createdAt,
			UpdatedAt:           now,
		}); err != nil {
			return fmt.Errorf("%w: %v", ErrProfileUpdateFailed, err)
		}

		err = s.txnRepo.WithTx(tx).Append(&models.Transaction{
			UserID:        order.UserID,
			OrderID:       order.ID,
			PaymentMethod: order.PaymentMethod,
			Amount:        order.Amount,
			Currency:      order.Currency,
			Status:        constants.TransactionStatusSuccess,
			TransactionID: transactionID,
			Metadata: models.JSON{
				"event_type": event.EventType,
				"paid_at":    paidAt.Format(time.RFC3339),
			},
			CreatedAt: now,
		})
		if errors.Is(err, repository.ErrTransactionDuplicate) {
			return ErrAlreadyProcessed
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransactionAppendFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Status = constants.OrderStatusPaid
	order.TransactionID = &transactionID
	order.PaidAt = &paidAt
	return &subscriptionEnd, nil
}

func (s *ReconcileService) afterPaid(ctx context.Context, order *models.Order, subscriptionEnd *time.Time, log *zap.SugaredLogger) {
	if err := cache.DelSubscriptionView(ctx, order.UserID); err != nil {
		log.Warnw("subscription_cache_invalidate_failed", "error", err)
	}
	if s.queueClient != nil && s.queueClient.Enabled() {
		payload := queue.OrderPaidPayload{
			OrderID:         order.ID,
			UserID:          order.UserID,
			Plan:            order.PlanType,
			Provider:        order.PaymentMethod,
			SubscriptionEnd: subscriptionEnd,
		}
		if err := s.queueClient.EnqueueOrderPaid(payload); err != nil {
			log.Warnw("order_paid_enqueue_failed", "error", err)
		}
	}
	log.Infow("order_paid", "user_id", order.UserID, "plan", order.PlanType, "amount", order.Amount, "currency", order.Currency, "subscription_end", subscriptionEnd)
}

// recordIssue 记录对账异常，同一订单同一流水同一阶段只保留一条未解决记录
func (s *ReconcileService) recordIssue(order *models.Order, event *VerifiedEvent, stage, detail string, retry bool) {
	if s.issueRepo == nil {
		return
	}
	transactionID := strings.TrimSpace(event.TransactionID)
	existing, err := s.issueRepo.FindOpen(order.ID, transactionID, stage)
	if err != nil {
		logger.Errorw("reconcile_issue_lookup_failed", "order_id", order.ID, "stage", stage, "error", err)
		return
	}
	if existing != nil {
		if err := s.issueRepo.RecordAttempt(existing.ID, detail); err != nil {
			logger.Errorw("reconcile_issue_attempt_failed", "issue_id", existing.ID, "error", err)
		}
		return
	}
	now := s.now()
	issue := &models.ReconcileIssue{
		OrderID:       order.ID,
		Provider:      event.Provider,
		TransactionID: transactionID,
		Stage:         stage,
		LastError:     detail,
		Attempts:      1,
		Status:        constants.ReconcileIssueStatusOpen,
		Payload:       encodeEventPayload(event),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.issueRepo.Create(issue); err != nil {
		logger.Errorw("reconcile_issue_create_failed", "order_id", order.ID, "stage", stage, "error", err)
		return
	}
	if retry && s.queueClient != nil && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueReconcileRetry(queue.ReconcileRetryPayload{IssueID: issue.ID}, reconcileRetryBaseDelay, s.retryMax); err != nil {
			logger.Warnw("reconcile_retry_enqueue_failed", "issue_id", issue.ID, "error", err)
		}
	}
}

// RetryIssue 重放异常记录中保存的事件，成功后标记为已解决
func (s *ReconcileService) RetryIssue(ctx context.Context, issueID uint) (*ReconcileResult, error) {
	issue, err := s.issueRepo.GetByID(issueID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if issue == nil {
		return nil, ErrReconcileIssueNotFound
	}
	if issue.Status != constants.ReconcileIssueStatusOpen {
		return nil, ErrReconcileIssueResolved
	}
	event, err := decodeEventPayload(issue.Payload)
	if err != nil {
		logger.Errorw("reconcile_issue_payload_invalid", "issue_id", issue.ID, "error", err)
		return nil, ErrCallbackPayloadInvalid
	}
	result, err := s.Apply(ctx, event)
	if err != nil {
		return nil, err
	}
	if result.Outcome == ReconcileOutcomeApplied || result.Outcome == ReconcileOutcomeAlreadyProcessed {
		if err := s.issueRepo.MarkResolved(issue.ID, s.now()); err != nil {
			logger.Warnw("reconcile_issue_resolve_failed", "issue_id", issue.ID, "error", err)
		}
	}
	logger.Infow("reconcile_issue_retried", "issue_id", issue.ID, "order_id", issue.OrderID, "outcome", result.Outcome)
	return result, nil
}

// ResolveIssue 人工标记异常已处理（如已线下退款）
func (s *ReconcileService) ResolveIssue(ctx context.Context, issueID uint) (*models.ReconcileIssue, error) {
	issue, err := s.issueRepo.GetByID(issueID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if issue == nil {
		return nil, ErrReconcileIssueNotFound
	}
	if issue.Status != constants.ReconcileIssueStatusOpen {
		return nil, ErrReconcileIssueResolved
	}
	now := s.now()
	if err := s.issueRepo.MarkResolved(issue.ID, now); err != nil {
		return nil, ErrOrderUpdateFailed
	}
	issue.Status = constants.ReconcileIssueStatusResolved
	issue.ResolvedAt = &now
	return issue, nil
}

// ListIssues 管理端异常列表
func (s *ReconcileService) ListIssues(ctx context.Context, filter repository.ReconcileIssueListFilter) ([]models.ReconcileIssue, int64, error) {
	issues, total, err := s.issueRepo.ListAdmin(filter)
	if err != nil {
		return nil, 0, ErrOrderFetchFailed
	}
	return issues, total, nil
}

// SweepRetryableIssues 定时重试未超过次数上限的应用失败记录
func (s *ReconcileService) SweepRetryableIssues(ctx context.Context, limit int) (int, error) {
	issues, err := s.issueRepo.ListRetryable(constants.ReconcileStageApply, s.retryMax, limit)
	if err != nil {
		return 0, ErrOrderFetchFailed
	}
	resolved := 0
	for _, issue := range issues {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if _, err := s.RetryIssue(ctx, issue.ID); err != nil {
			logger.Warnw("reconcile_sweep_retry_failed", "issue_id", issue.ID, "order_id", issue.OrderID, "error", err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

func passbackMismatch(order *models.Order, passback map[string]string) string {
	if len(passback) == 0 {
		return ""
	}
	if userID := strings.TrimSpace(passback["user_id"]); userID != "" && userID != order.UserID {
		return fmt.Sprintf("passback user %s does not own order", userID)
	}
	if plan := strings.TrimSpace(passback["plan"]); plan != "" && !strings.EqualFold(plan, order.PlanType) {
		return fmt.Sprintf("passback plan %s differs from order plan %s", plan, order.PlanType)
	}
	return ""
}

func amountMismatch(order *models.Order, event *VerifiedEvent) string {
	if event.AmountMinor <= 0 || event.AmountMinor != order.Amount {
		return fmt.Sprintf("paid %d, expected %d", event.AmountMinor, order.Amount)
	}
	if event.Currency != "" && !strings.EqualFold(event.Currency, order.Currency) {
		return fmt.Sprintf("paid in %s, expected %s", event.Currency, order.Currency)
	}
	return ""
}

func encodeEventPayload(event *VerifiedEvent) models.JSON {
	raw, err := json.Marshal(event)
	if err != nil {
		return models.JSON{}
	}
	payload := models.JSON{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.JSON{}
	}
	return payload
}

func decodeEventPayload(payload models.JSON) (*VerifiedEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var event VerifiedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	if event.OrderID == "" || event.Provider == "" {
		return nil, errors.New("event payload is incomplete")
	}
	return &event, nil
}
