package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
)

func TestTransactionRepositoryAppendRejectsDuplicate(t *testing.T) {
	db := setupRepositoryTestDB(t, "txn_dup")
	repo := NewTransactionRepository(db)

	txn := &models.Transaction{
		UserID:        "user-1",
		OrderID:       "ALI20260101000000000001",
		PaymentMethod: constants.PaymentMethodAlipay,
		Amount:        2999,
		Currency:      constants.CurrencyCNY,
		Status:        constants.TransactionStatusSuccess,
		TransactionID: "2026010122001",
	}
	if err := repo.Append(txn); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	dup := *txn
	dup.ID = 0
	if err := repo.Append(&dup); !errors.Is(err, ErrTransactionDuplicate) {
		t.Fatalf("want ErrTransactionDuplicate got %v", err)
	}

	count, err := repo.CountByOrder(txn.OrderID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("want exactly one transaction got %d", count)
	}

	same := *txn
	same.ID = 0
	same.OrderID = "ALI20260101000000000002"
	if err := repo.Append(&same); err != nil {
		t.Fatalf("same transaction id on another order should be accepted: %v", err)
	}
}

func TestTransactionRepositoryIsAppendOnly(t *testing.T) {
	db := setupRepositoryTestDB(t, "txn_immutable")
	repo := NewTransactionRepository(db)

	txn := &models.Transaction{
		UserID:        "user-1",
		OrderID:       "WXP20260101000000000001",
		PaymentMethod: constants.PaymentMethodWechat,
		Amount:        100,
		Currency:      constants.CurrencyCNY,
		Status:        constants.TransactionStatusSuccess,
		TransactionID: "4200000001",
		CreatedAt:     time.Now(),
	}
	if err := repo.Append(txn); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	err := db.Model(txn).Update("amount", 1).Error
	if !errors.Is(err, models.ErrTransactionImmutable) {
		t.Fatalf("want ErrTransactionImmutable got %v", err)
	}

	got, err := repo.GetByOrderAndTransactionID(txn.OrderID, txn.TransactionID)
	if err != nil || got == nil {
		t.Fatalf("get transaction failed: %+v %v", got, err)
	}
	if got.Amount != 100 {
		t.Fatalf("amount changed to %d", got.Amount)
	}
}

func TestProfileRepositoryUpsert(t *testing.T) {
	db := setupRepositoryTestDB(t, "profile_upsert")
	repo := NewProfileRepository(db)
	end := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)

	if err := repo.Upsert(&models.Profile{
		ID:                  "user-p",
		Plan:                constants.PlanProMonthly,
		SubscriptionStatus:  constants.SubscriptionStatusActive,
		SubscriptionEndDate: &end,
	}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	later := end.Add(365 * 24 * time.Hour)
	if err := repo.Upsert(&models.Profile{
		ID:                  "user-p",
		Plan:                constants.PlanProYearly,
		SubscriptionStatus:  constants.SubscriptionStatusActive,
		SubscriptionEndDate: &later,
	}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := repo.GetByID("user-p")
	if err != nil || got == nil {
		t.Fatalf("get profile failed: %+v %v", got, err)
	}
	if got.Plan != constants.PlanProYearly {
		t.Fatalf("plan want pro_yearly got %s", got.Plan)
	}
	if got.SubscriptionEndDate == nil || !got.SubscriptionEndDate.Equal(later) {
		t.Fatalf("end date want %v got %v", later, got.SubscriptionEndDate)
	}

	missing, err := repo.GetByID("nobody")
	if err != nil || missing != nil {
		t.Fatalf("missing profile want nil,nil got %+v %v", missing, err)
	}
}

func TestReconcileIssueRepositoryLifecycle(t *testing.T) {
	db := setupRepositoryTestDB(t, "reconcile_issue")
	repo := NewReconcileIssueRepository(db)

	issue := &models.ReconcileIssue{
		OrderID:       "PPL20260101000000000001",
		Provider:      constants.PaymentMethodPaypal,
		TransactionID: "CAP-1",
		Stage:         constants.ReconcileStageApply,
		LastError:     "db timeout",
		Status:        constants.ReconcileIssueStatusOpen,
	}
	if err := repo.Create(issue); err != nil {
		t.Fatalf("create issue failed: %v", err)
	}

	found, err := repo.FindOpen(issue.OrderID, "CAP-1", constants.ReconcileStageApply)
	if err != nil || found == nil || found.ID != issue.ID {
		t.Fatalf("find open failed: %+v %v", found, err)
	}

	if err := repo.RecordAttempt(issue.ID, "still failing"); err != nil {
		t.Fatalf("record attempt failed: %v", err)
	}
	if err := repo.RecordAttempt(issue.ID, "still failing"); err != nil {
		t.Fatalf("record attempt failed: %v", err)
	}

	rows, err := repo.ListRetryable(constants.ReconcileStageApply, 2, 10)
	if err != nil {
		t.Fatalf("list retryable failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("issue over attempt limit should not be retryable, got %d", len(rows))
	}
	rows, err = repo.ListRetryable(constants.ReconcileStageApply, 5, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("want 1 retryable issue got %d err=%v", len(rows), err)
	}
	if rows[0].Attempts != 2 || rows[0].LastError != "still failing" {
		t.Fatalf("unexpected attempt bookkeeping %+v", rows[0])
	}

	if err := repo.MarkResolved(issue.ID, time.Now()); err != nil {
		t.Fatalf("mark resolved failed: %v", err)
	}
	found, err = repo.FindOpen(issue.OrderID, "CAP-1", constants.ReconcileStageApply)
	if err != nil || found != nil {
		t.Fatalf("resolved issue should not be open: %+v %v", found, err)
	}

	list, total, err := repo.ListAdmin(ReconcileIssueListFilter{Page: 1, PageSize: 20, Status: constants.ReconcileIssueStatusResolved})
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("admin list want 1 resolved got total=%d err=%v", total, err)
	}
}
