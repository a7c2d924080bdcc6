package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"salondesk/backend/internal/domain"
	"salondesk/backend/internal/store"
)

func TestCashUpLifecycleGuardedTransitions(t *testing.T) {
	databaseURL := os.Getenv("SALONDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALONDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	cashier := fmt.Sprintf("cashier-it-%d", stamp)
	sessionDate := time.Now().UTC().Format("2006-01-02")

	var sessionID string
	t.Cleanup(func() {
		if sessionID != "" {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_up_expenses WHERE session_id = $1`, sessionID)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_up_safe_drops WHERE session_id = $1`, sessionID)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_up_sessions WHERE id = $1`, sessionID)
		}
	})

	opened, err := s.OpenCashUp(ctx, domain.CashUpSession{
		CashierUsername:   cashier,
		SessionDate:       sessionDate,
		OpeningFloatCents: 10000,
	})
	if err != nil {
		t.Fatalf("open cash-up: %v", err)
	}
	sessionID = opened.ID
	if opened.Status != domain.SessionStatusOpen {
		t.Fatalf("expected status open, got %s", opened.Status)
	}
	if opened.ExpectedCashCents != 10000 {
		t.Fatalf("expected cash should start at opening float, got %d", opened.ExpectedCashCents)
	}

	if _, err := s.OpenCashUp(ctx, domain.CashUpSession{
		CashierUsername:   cashier,
		SessionDate:       sessionDate,
		OpeningFloatCents: 5000,
	}); !errors.Is(err, store.ErrSessionAlreadyOpen) {
		t.Fatalf("expected ErrSessionAlreadyOpen for second open, got %v", err)
	}

	expense, err := s.AddExpense(ctx, domain.Expense{
		SessionID:   sessionID,
		Description: "towel delivery",
		AmountCents: 1500,
		CreatedBy:   cashier,
	})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}

	afterExpense, err := s.GetCashUp(ctx, sessionID)
	if err != nil {
		t.Fatalf("get cash-up: %v", err)
	}
	if afterExpense.Status != domain.SessionStatusActive {
		t.Fatalf("expected status active after expense, got %s", afterExpense.Status)
	}
	if afterExpense.ExpectedCashCents != 8500 {
		t.Fatalf("expected cash 8500 after expense, got %d", afterExpense.ExpectedCashCents)
	}

	if _, err := s.ReconcileCashUp(ctx, sessionID, "", "admin", time.Now().UTC()); !errors.Is(err, store.ErrSessionNotCompleted) {
		t.Fatalf("expected ErrSessionNotCompleted for active session, got %v", err)
	}

	completed, err := s.CompleteCashUp(ctx, sessionID, 8400, "end of day", cashier, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete cash-up: %v", err)
	}
	if completed.VarianceCents == nil || *completed.VarianceCents != -100 {
		t.Fatalf("expected variance -100, got %v", completed.VarianceCents)
	}

	if _, err := s.CompleteCashUp(ctx, sessionID, 8400, "", cashier, time.Now().UTC()); !errors.Is(err, store.ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted for double complete, got %v", err)
	}
	if _, err := s.AddExpense(ctx, domain.Expense{
		SessionID:   sessionID,
		Description: "late expense",
		AmountCents: 100,
		CreatedBy:   cashier,
	}); !errors.Is(err, store.ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked for expense on completed session, got %v", err)
	}

	if _, err := s.SetExpenseReceipt(ctx, sessionID, expense.ID, "https://receipts.example/towels.jpg"); err != nil {
		t.Fatalf("attach receipt after completion: %v", err)
	}

	reconciled, err := s.ReconcileCashUp(ctx, sessionID, "counted twice, short accepted", "admin", time.Now().UTC())
	if err != nil {
		t.Fatalf("reconcile cash-up: %v", err)
	}
	if reconciled.Status != domain.SessionStatusReconciled {
		t.Fatalf("expected status reconciled, got %s", reconciled.Status)
	}

	if _, err := s.ReconcileCashUp(ctx, sessionID, "", "admin", time.Now().UTC()); !errors.Is(err, store.ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted for double reconcile, got %v", err)
	}
	if _, err := s.SetExpenseReceipt(ctx, sessionID, expense.ID, "https://receipts.example/other.jpg"); !errors.Is(err, store.ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked for receipt on reconciled session, got %v", err)
	}
}

func TestAppendCreditEntryRejectsOverdraw(t *testing.T) {
	databaseURL := os.Getenv("SALONDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALONDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	clientID := fmt.Sprintf("client-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM credit_entries WHERE client_id = $1`, clientID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, loyalty_points, credit_balance_cents, created_at)
		VALUES ($1, 'Integration Client', 0, 0, now())
	`, clientID); err != nil {
		t.Fatalf("seed client: %v", err)
	}

	added, err := s.AppendCreditEntry(ctx, domain.CreditEntry{
		ClientID:    clientID,
		AmountCents: 2500,
		SourceType:  domain.CreditSourcePrepayment,
		ProcessedBy: "admin",
	})
	if err != nil {
		t.Fatalf("append credit: %v", err)
	}
	if added.BalanceBeforeCents != 0 || added.BalanceAfterCents != 2500 {
		t.Fatalf("expected balances 0 -> 2500, got %d -> %d", added.BalanceBeforeCents, added.BalanceAfterCents)
	}

	if _, err := s.AppendCreditEntry(ctx, domain.CreditEntry{
		ClientID:    clientID,
		AmountCents: -3000,
		SourceType:  domain.CreditSourceRedemption,
		ProcessedBy: "admin",
	}); !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}

	balance, err := s.GetCreditBalance(ctx, clientID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 2500 {
		t.Fatalf("balance should be untouched after rejected redemption, got %d", balance)
	}
}
