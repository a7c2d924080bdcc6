package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"salondesk/backend/internal/domain"
	"salondesk/backend/internal/store"
	"salondesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

// New connects to the database named by databaseURL. The tables it
// expects are defined in schema.sql alongside this package.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), loyalty_points, credit_balance_cents, created_at
		FROM clients
		WHERE id = $1
	`, clientID).Scan(&client.ID, &client.Name, &client.Phone, &client.Email, &client.LoyaltyPoints, &client.CreditBalanceCents, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	client.CreatedAt = client.CreatedAt.UTC()
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), loyalty_points, credit_balance_cents, created_at
		FROM clients
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		var client domain.Client
		if err := rows.Scan(&client.ID, &client.Name, &client.Phone, &client.Email, &client.LoyaltyPoints, &client.CreditBalanceCents, &client.CreatedAt); err != nil {
			return nil, err
		}
		client.CreatedAt = client.CreatedAt.UTC()
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) ListClientsWithCredit(ctx context.Context) ([]domain.ClientCreditSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, COALESCE(c.phone,''), c.credit_balance_cents, MAX(e.created_at)
		FROM clients c
		LEFT JOIN credit_entries e ON e.client_id = c.id
		WHERE c.credit_balance_cents > 0
		GROUP BY c.id, c.name, c.phone, c.credit_balance_cents
		ORDER BY c.credit_balance_cents DESC, c.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.ClientCreditSummary, 0, 32)
	for rows.Next() {
		var summary domain.ClientCreditSummary
		var lastActivity sql.NullTime
		if err := rows.Scan(&summary.ClientID, &summary.Name, &summary.Phone, &summary.BalanceCents, &lastActivity); err != nil {
			return nil, err
		}
		if lastActivity.Valid {
			at := lastActivity.Time.UTC()
			summary.LastActivityAt = &at
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

const cashUpColumns = `id, cashier_username, session_date, status, opening_float_cents,
	cash_sales_cents, card_sales_cents, credit_sales_cents, expense_total_cents,
	safe_drop_total_cents, expected_cash_cents, actual_cash_cents, variance_cents,
	COALESCE(notes,''), COALESCE(reconciliation_notes,''), opened_at,
	completed_at, COALESCE(completed_by,''), reconciled_at, COALESCE(reconciled_by,'')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCashUp(row rowScanner) (*domain.CashUpSession, error) {
	var session domain.CashUpSession
	var actualCash sql.NullInt64
	var variance sql.NullInt64
	var completedAt sql.NullTime
	var reconciledAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.CashierUsername,
		&session.SessionDate,
		&session.Status,
		&session.OpeningFloatCents,
		&session.CashSalesCents,
		&session.CardSalesCents,
		&session.CreditSalesCents,
		&session.ExpenseTotalCents,
		&session.SafeDropTotalCents,
		&session.ExpectedCashCents,
		&actualCash,
		&variance,
		&session.Notes,
		&session.ReconciliationNotes,
		&session.OpenedAt,
		&completedAt,
		&session.CompletedBy,
		&reconciledAt,
		&session.ReconciledBy,
	)
	if err != nil {
		return nil, err
	}

	session.OpenedAt = session.OpenedAt.UTC()
	if actualCash.Valid {
		v := actualCash.Int64
		session.ActualCashCents = &v
	}
	if variance.Valid {
		v := variance.Int64
		session.VarianceCents = &v
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		session.CompletedAt = &at
	}
	if reconciledAt.Valid {
		at := reconciledAt.Time.UTC()
		session.ReconciledAt = &at
	}
	return &session, nil
}

func (s *Store) OpenCashUp(ctx context.Context, session domain.CashUpSession) (*domain.CashUpSession, error) {
	if session.CashierUsername == "" || session.SessionDate == "" {
		return nil, store.ErrInvalidInput
	}
	if session.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if session.ID == "" {
		session.ID = xid.New("cashup")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.ExpectedCashCents = session.OpeningFloatCents

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_up_sessions (
			id, cashier_username, session_date, status, opening_float_cents,
			cash_sales_cents, card_sales_cents, credit_sales_cents, expense_total_cents,
			safe_drop_total_cents, expected_cash_cents, notes, opened_at
		)
		VALUES ($1,$2,$3,$4,$5,0,0,0,0,0,$6,$7,$8)
	`, session.ID, session.CashierUsername, session.SessionDate, session.Status,
		session.OpeningFloatCents, session.ExpectedCashCents, nullIfEmpty(session.Notes), session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrSessionAlreadyOpen
		}
		return nil, err
	}

	opened := session
	return &opened, nil
}

func (s *Store) GetCashUp(ctx context.Context, sessionID string) (*domain.CashUpSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cashUpColumns+`
		FROM cash_up_sessions
		WHERE id = $1
	`, sessionID)
	session, err := scanCashUp(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) GetOpenCashUpForCashier(ctx context.Context, cashierUsername string, sessionDate string) (*domain.CashUpSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cashUpColumns+`
		FROM cash_up_sessions
		WHERE cashier_username = $1 AND session_date = $2 AND status IN ('open','active')
		ORDER BY opened_at DESC
		LIMIT 1
	`, cashierUsername, sessionDate)
	session, err := scanCashUp(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) ListCashUps(ctx context.Context, filter store.CashUpFilter) ([]domain.CashUpSession, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cashUpColumns+`
		FROM cash_up_sessions
		WHERE ($1 = '' OR status = $1)
			AND ($2 = '' OR cashier_username = $2)
			AND ($3 = '' OR session_date >= $3)
			AND ($4 = '' OR session_date <= $4)
		ORDER BY session_date DESC, opened_at DESC
		LIMIT $5
	`, filter.Status, filter.CashierUsername, filter.FromDate, filter.ToDate, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashUpSession, 0, limit)
	for rows.Next() {
		session, err := scanCashUp(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) CompleteCashUp(ctx context.Context, sessionID string, actualCashCents int64, notes string, completedBy string, completedAt time.Time) (*domain.CashUpSession, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE cash_up_sessions
		SET status = 'completed',
			actual_cash_cents = $2,
			variance_cents = $2 - expected_cash_cents,
			notes = CASE WHEN $3 <> '' THEN $3 ELSE notes END,
			completed_by = $4,
			completed_at = $5
		WHERE id = $1 AND status IN ('open','active')
		RETURNING `+cashUpColumns+`
	`, sessionID, actualCashCents, notes, completedBy, completedAt)
	session, err := scanCashUp(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyCompleteConflict(ctx, sessionID)
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) ReconcileCashUp(ctx context.Context, sessionID string, notes string, reconciledBy string, reconciledAt time.Time) (*domain.CashUpSession, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE cash_up_sessions
		SET status = 'reconciled',
			reconciliation_notes = CASE WHEN $2 <> '' THEN $2 ELSE reconciliation_notes END,
			reconciled_by = $3,
			reconciled_at = $4
		WHERE id = $1 AND status = 'completed'
		RETURNING `+cashUpColumns+`
	`, sessionID, notes, reconciledBy, reconciledAt)
	session, err := scanCashUp(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyReconcileConflict(ctx, sessionID)
		}
		return nil, err
	}
	return session, nil
}

// The guarded updates above miss either because the row does not exist
// or because its status already moved past the transition. A follow-up
// status probe picks the right sentinel.
func (s *Store) classifyCompleteConflict(ctx context.Context, sessionID string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM cash_up_sessions WHERE id = $1`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return store.ErrSessionCompleted
}

func (s *Store) classifyReconcileConflict(ctx context.Context, sessionID string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM cash_up_sessions WHERE id = $1`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if status == domain.SessionStatusReconciled {
		return store.ErrSessionCompleted
	}
	return store.ErrSessionNotCompleted
}

// lockSessionForPosting locks the session row and verifies it still
// accepts money movements. The caller holds the lock until tx commit.
func lockSessionForPosting(ctx context.Context, tx *sql.Tx, sessionID string) (status string, expectedCashCents int64, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT status, expected_cash_cents
		FROM cash_up_sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID).Scan(&status, &expectedCashCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, store.ErrNotFound
		}
		return "", 0, err
	}
	if status != domain.SessionStatusOpen && status != domain.SessionStatusActive {
		return status, expectedCashCents, store.ErrSessionLocked
	}
	return status, expectedCashCents, nil
}

func (s *Store) AddExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.SessionID == "" || strings.TrimSpace(expense.Description) == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := lockSessionForPosting(ctx, tx, expense.SessionID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_up_expenses (id, session_id, description, category, amount_cents, receipt_url, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, expense.ID, expense.SessionID, strings.TrimSpace(expense.Description), nullIfEmpty(expense.Category),
		expense.AmountCents, nullIfEmpty(expense.ReceiptURL), expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := applySessionDelta(ctx, tx, expense.SessionID, sessionDelta{expenseCents: expense.AmountCents}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) UpdateExpense(ctx context.Context, sessionID string, expenseID string, req domain.ExpenseUpdateRequest) (*domain.Expense, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := lockSessionForPosting(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	var current domain.Expense
	err = tx.QueryRowContext(ctx, `
		SELECT id, session_id, description, COALESCE(category,''), amount_cents, COALESCE(receipt_url,''), created_by, created_at
		FROM cash_up_expenses
		WHERE id = $1 AND session_id = $2
		FOR UPDATE
	`, expenseID, sessionID).Scan(&current.ID, &current.SessionID, &current.Description, &current.Category,
		&current.AmountCents, &current.ReceiptURL, &current.CreatedBy, &current.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	previousAmount := current.AmountCents
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			return nil, store.ErrInvalidInput
		}
		current.Description = trimmed
	}
	if req.Category != nil {
		current.Category = strings.TrimSpace(*req.Category)
	}
	if req.AmountCents != nil {
		if *req.AmountCents < 1 {
			return nil, store.ErrInvalidInput
		}
		current.AmountCents = *req.AmountCents
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cash_up_expenses
		SET description = $3, category = $4, amount_cents = $5
		WHERE id = $1 AND session_id = $2
	`, expenseID, sessionID, current.Description, nullIfEmpty(current.Category), current.AmountCents)
	if err != nil {
		return nil, err
	}

	if delta := current.AmountCents - previousAmount; delta != 0 {
		if err := applySessionDelta(ctx, tx, sessionID, sessionDelta{expenseCents: delta}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	current.CreatedAt = current.CreatedAt.UTC()
	return &current, nil
}

func (s *Store) DeleteExpense(ctx context.Context, sessionID string, expenseID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := lockSessionForPosting(ctx, tx, sessionID); err != nil {
		return err
	}

	var amountCents int64
	err = tx.QueryRowContext(ctx, `
		DELETE FROM cash_up_expenses
		WHERE id = $1 AND session_id = $2
		RETURNING amount_cents
	`, expenseID, sessionID).Scan(&amountCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if err := applySessionDelta(ctx, tx, sessionID, sessionDelta{expenseCents: -amountCents}); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SetExpenseReceipt(ctx context.Context, sessionID string, expenseID string, receiptURL string) (*domain.Expense, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM cash_up_sessions WHERE id = $1 FOR UPDATE
	`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	// Receipts may still arrive after completion; only a reconciled
	// session refuses them.
	if status == domain.SessionStatusReconciled {
		return nil, store.ErrSessionLocked
	}

	var expense domain.Expense
	err = tx.QueryRowContext(ctx, `
		UPDATE cash_up_expenses
		SET receipt_url = $3
		WHERE id = $1 AND session_id = $2
		RETURNING id, session_id, description, COALESCE(category,''), amount_cents, COALESCE(receipt_url,''), created_by, created_at
	`, expenseID, sessionID, nullIfEmpty(receiptURL)).Scan(&expense.ID, &expense.SessionID, &expense.Description,
		&expense.Category, &expense.AmountCents, &expense.ReceiptURL, &expense.CreatedBy, &expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	expense.CreatedAt = expense.CreatedAt.UTC()
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, sessionID string) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, description, COALESCE(category,''), amount_cents, COALESCE(receipt_url,''), created_by, created_at
		FROM cash_up_expenses
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 8)
	for rows.Next() {
		var expense domain.Expense
		if err := rows.Scan(&expense.ID, &expense.SessionID, &expense.Description, &expense.Category,
			&expense.AmountCents, &expense.ReceiptURL, &expense.CreatedBy, &expense.CreatedAt); err != nil {
			return nil, err
		}
		expense.CreatedAt = expense.CreatedAt.UTC()
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) AddSafeDrop(ctx context.Context, drop domain.SafeDrop) (*domain.SafeDrop, error) {
	if drop.SessionID == "" || strings.TrimSpace(drop.Reason) == "" || drop.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if drop.ID == "" {
		drop.ID = xid.New("drop")
	}
	if drop.CreatedAt.IsZero() {
		drop.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, expectedCash, err := lockSessionForPosting(ctx, tx, drop.SessionID)
	if err != nil {
		return nil, err
	}
	if drop.AmountCents > expectedCash {
		return nil, fmt.Errorf("%w: safe drop exceeds expected drawer cash", store.ErrInvalidInput)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_up_safe_drops (id, session_id, amount_cents, reason, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, drop.ID, drop.SessionID, drop.AmountCents, strings.TrimSpace(drop.Reason), nullIfEmpty(drop.Notes), drop.CreatedBy, drop.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := applySessionDelta(ctx, tx, drop.SessionID, sessionDelta{safeDropCents: drop.AmountCents}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := drop
	return &created, nil
}

func (s *Store) UpdateSafeDrop(ctx context.Context, sessionID string, dropID string, req domain.SafeDropUpdateRequest) (*domain.SafeDrop, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, expectedCash, err := lockSessionForPosting(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	var current domain.SafeDrop
	err = tx.QueryRowContext(ctx, `
		SELECT id, session_id, amount_cents, reason, COALESCE(notes,''), created_by, created_at
		FROM cash_up_safe_drops
		WHERE id = $1 AND session_id = $2
		FOR UPDATE
	`, dropID, sessionID).Scan(&current.ID, &current.SessionID, &current.AmountCents, &current.Reason,
		&current.Notes, &current.CreatedBy, &current.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	previousAmount := current.AmountCents
	if req.Reason != nil {
		trimmed := strings.TrimSpace(*req.Reason)
		if trimmed == "" {
			return nil, store.ErrInvalidInput
		}
		current.Reason = trimmed
	}
	if req.Notes != nil {
		current.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.AmountCents != nil {
		if *req.AmountCents < 1 {
			return nil, store.ErrInvalidInput
		}
		if *req.AmountCents-previousAmount > expectedCash {
			return nil, fmt.Errorf("%w: safe drop exceeds expected drawer cash", store.ErrInvalidInput)
		}
		current.AmountCents = *req.AmountCents
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cash_up_safe_drops
		SET amount_cents = $3, reason = $4, notes = $5
		WHERE id = $1 AND session_id = $2
	`, dropID, sessionID, current.AmountCents, current.Reason, nullIfEmpty(current.Notes))
	if err != nil {
		return nil, err
	}

	if delta := current.AmountCents - previousAmount; delta != 0 {
		if err := applySessionDelta(ctx, tx, sessionID, sessionDelta{safeDropCents: delta}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	current.CreatedAt = current.CreatedAt.UTC()
	return &current, nil
}

func (s *Store) DeleteSafeDrop(ctx context.Context, sessionID string, dropID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := lockSessionForPosting(ctx, tx, sessionID); err != nil {
		return err
	}

	var amountCents int64
	err = tx.QueryRowContext(ctx, `
		DELETE FROM cash_up_safe_drops
		WHERE id = $1 AND session_id = $2
		RETURNING amount_cents
	`, dropID, sessionID).Scan(&amountCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if err := applySessionDelta(ctx, tx, sessionID, sessionDelta{safeDropCents: -amountCents}); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListSafeDrops(ctx context.Context, sessionID string) ([]domain.SafeDrop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, amount_cents, reason, COALESCE(notes,''), created_by, created_at
		FROM cash_up_safe_drops
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drops := make([]domain.SafeDrop, 0, 4)
	for rows.Next() {
		var drop domain.SafeDrop
		if err := rows.Scan(&drop.ID, &drop.SessionID, &drop.AmountCents, &drop.Reason, &drop.Notes, &drop.CreatedBy, &drop.CreatedAt); err != nil {
			return nil, err
		}
		drop.CreatedAt = drop.CreatedAt.UTC()
		drops = append(drops, drop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drops, nil
}

// sessionDelta is a signed adjustment to a session's running totals.
// expected_cash_cents moves with every component: up with cash sales,
// down with expenses and safe drops.
type sessionDelta struct {
	cashSalesCents   int64
	cardSalesCents   int64
	creditSalesCents int64
	expenseCents     int64
	safeDropCents    int64
}

func applySessionDelta(ctx context.Context, tx *sql.Tx, sessionID string, delta sessionDelta) error {
	expectedDelta := delta.cashSalesCents - delta.expenseCents - delta.safeDropCents
	_, err := tx.ExecContext(ctx, `
		UPDATE cash_up_sessions
		SET cash_sales_cents = cash_sales_cents + $2,
			card_sales_cents = card_sales_cents + $3,
			credit_sales_cents = credit_sales_cents + $4,
			expense_total_cents = expense_total_cents + $5,
			safe_drop_total_cents = safe_drop_total_cents + $6,
			expected_cash_cents = expected_cash_cents + $7,
			status = CASE WHEN status = 'open' THEN 'active' ELSE status END
		WHERE id = $1
	`, sessionID, delta.cashSalesCents, delta.cardSalesCents, delta.creditSalesCents,
		delta.expenseCents, delta.safeDropCents, expectedDelta)
	return err
}

func (s *Store) GetCashUpSummary(ctx context.Context, fromDate string, toDate string) (domain.CashUpSummary, error) {
	summary := domain.CashUpSummary{From: fromDate, To: toDate}

	var varianceSum int64
	var varianceCount int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'reconciled'),
			COALESCE(SUM(cash_sales_cents),0),
			COALESCE(SUM(card_sales_cents),0),
			COALESCE(SUM(credit_sales_cents),0),
			COALESCE(SUM(expense_total_cents),0),
			COALESCE(SUM(safe_drop_total_cents),0),
			COALESCE(SUM(ABS(variance_cents)),0),
			COALESCE(SUM(variance_cents),0),
			COUNT(variance_cents),
			COUNT(*) FILTER (WHERE variance_cents > 0),
			COUNT(*) FILTER (WHERE variance_cents < 0)
		FROM cash_up_sessions
		WHERE ($1 = '' OR session_date >= $1)
			AND ($2 = '' OR session_date <= $2)
	`, fromDate, toDate).Scan(
		&summary.SessionCount,
		&summary.CompletedCount,
		&summary.ReconciledCount,
		&summary.CashSalesCents,
		&summary.CardSalesCents,
		&summary.CreditSalesCents,
		&summary.ExpenseTotalCents,
		&summary.SafeDropTotalCents,
		&summary.VarianceAbsTotalCents,
		&varianceSum,
		&varianceCount,
		&summary.SessionsOver,
		&summary.SessionsShort,
	)
	if err != nil {
		return domain.CashUpSummary{}, err
	}
	if varianceCount > 0 {
		summary.VarianceAvgCents = varianceSum / int64(varianceCount)
	}
	return summary, nil
}

func (s *Store) AppendCreditEntry(ctx context.Context, entry domain.CreditEntry) (*domain.CreditEntry, error) {
	if entry.ClientID == "" || entry.AmountCents == 0 || entry.SourceType == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("credit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	saved, err := appendCreditEntryTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

// appendCreditEntryTx locks the client row, enforces the non-negative
// balance invariant, and writes the entry plus the new balance inside
// the caller's transaction.
func appendCreditEntryTx(ctx context.Context, tx *sql.Tx, entry domain.CreditEntry) (*domain.CreditEntry, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `
		SELECT credit_balance_cents
		FROM clients
		WHERE id = $1
		FOR UPDATE
	`, entry.ClientID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	newBalance := balance + entry.AmountCents
	if newBalance < 0 {
		return nil, store.ErrInsufficientCredit
	}
	entry.BalanceBeforeCents = balance
	entry.BalanceAfterCents = newBalance

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_entries (
			id, client_id, amount_cents, source_type, transaction_id, notes,
			processed_by, balance_before_cents, balance_after_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.ClientID, entry.AmountCents, entry.SourceType, nullIfEmpty(entry.TransactionID),
		nullIfEmpty(entry.Notes), entry.ProcessedBy, entry.BalanceBeforeCents, entry.BalanceAfterCents, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE clients SET credit_balance_cents = $2 WHERE id = $1
	`, entry.ClientID, newBalance)
	if err != nil {
		return nil, err
	}

	saved := entry
	return &saved, nil
}

func (s *Store) GetCreditBalance(ctx context.Context, clientID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT credit_balance_cents FROM clients WHERE id = $1
	`, clientID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (s *Store) ListCreditEntries(ctx context.Context, clientID string, limit int, offset int) ([]domain.CreditEntry, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, amount_cents, source_type, COALESCE(transaction_id,''), COALESCE(notes,''),
			processed_by, balance_before_cents, balance_after_cents, created_at
		FROM credit_entries
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CreditEntry, 0, limit)
	for rows.Next() {
		var entry domain.CreditEntry
		if err := rows.Scan(&entry.ID, &entry.ClientID, &entry.AmountCents, &entry.SourceType, &entry.TransactionID,
			&entry.Notes, &entry.ProcessedBy, &entry.BalanceBeforeCents, &entry.BalanceAfterCents, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetCreditActivity(ctx context.Context, date string) (domain.CreditActivityReport, error) {
	report := domain.CreditActivityReport{Date: date}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount_cents) FILTER (WHERE amount_cents > 0),0),
			COALESCE(SUM(-amount_cents) FILTER (WHERE amount_cents < 0),0)
		FROM credit_entries
		WHERE created_at >= $1::date AND created_at < $1::date + INTERVAL '1 day'
	`, date).Scan(&report.EntryCount, &report.IssuedCents, &report.RedeemedCents)
	if err != nil {
		return domain.CreditActivityReport{}, err
	}
	report.NetCents = report.IssuedCents - report.RedeemedCents

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credit_balance_cents),0) FROM clients
	`).Scan(&report.OutstandingTotalCents)
	if err != nil {
		return domain.CreditActivityReport{}, err
	}
	return report, nil
}

func (s *Store) CreateCheckout(ctx context.Context, tx domain.Transaction, posting domain.CheckoutPosting) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, _, err := lockSessionForPosting(ctx, pgTx, posting.SessionID); err != nil {
		return nil, err
	}

	if tx.ClientID != "" {
		var loyaltyPoints int64
		var creditBalance int64
		err := pgTx.QueryRowContext(ctx, `
			SELECT loyalty_points, credit_balance_cents
			FROM clients
			WHERE id = $1
			FOR UPDATE
		`, tx.ClientID).Scan(&loyaltyPoints, &creditBalance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if posting.RedeemPoints > loyaltyPoints {
			return nil, fmt.Errorf("%w: loyalty balance changed", store.ErrInvalidInput)
		}
		if posting.CreditRedeemedCents > creditBalance {
			return nil, store.ErrInsufficientCredit
		}
	} else if posting.CreditRedeemedCents > 0 || posting.ChangeToCreditCents > 0 || posting.RedeemPoints > 0 {
		return nil, store.ErrInvalidInput
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}

	linesJSON, err := json.Marshal(tx.Lines)
	if err != nil {
		return nil, err
	}
	discountJSON, err := marshalDiscount(tx.Discount)
	if err != nil {
		return nil, err
	}
	tipsJSON, err := marshalIfPresent(tx.Tips)
	if err != nil {
		return nil, err
	}
	splitsJSON, err := marshalIfPresent(tx.PaymentSplits)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, client_id, cashier_username, session_id, idempotency_key,
			lines, discount, tips, payment_method, payment_reference, payment_splits,
			cash_received_cents, change_cents, change_handling,
			subtotal_cents, discount_cents, redeemed_points, redeemed_cents,
			taxable_cents, tax_cents, tip_total_cents, total_cents, earnable_points,
			status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
	`, tx.ID, nullIfEmpty(tx.ClientID), tx.CashierUsername, tx.SessionID, tx.IdempotencyKey,
		linesJSON, discountJSON, tipsJSON, tx.PaymentMethod, nullIfEmpty(tx.PaymentReference), splitsJSON,
		tx.CashReceivedCents, tx.ChangeCents, nullIfEmpty(tx.ChangeHandling),
		tx.Settlement.SubtotalCents, tx.Settlement.DiscountCents, tx.Settlement.RedeemedPoints, tx.Settlement.RedeemedCents,
		tx.Settlement.TaxableCents, tx.Settlement.TaxCents, tx.Settlement.TipTotalCents, tx.Settlement.TotalCents,
		tx.Settlement.EarnablePoints, tx.Status, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			_ = pgTx.Rollback()
			existing, lookupErr := s.FindTransactionByIdempotency(ctx, tx.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if posting.CreditRedeemedCents > 0 {
		_, err = appendCreditEntryTx(ctx, pgTx, domain.CreditEntry{
			ID:            xid.New("credit"),
			ClientID:      tx.ClientID,
			AmountCents:   -posting.CreditRedeemedCents,
			SourceType:    domain.CreditSourceRedemption,
			TransactionID: tx.ID,
			ProcessedBy:   tx.CashierUsername,
			CreatedAt:     tx.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
	}
	if posting.ChangeToCreditCents > 0 {
		_, err = appendCreditEntryTx(ctx, pgTx, domain.CreditEntry{
			ID:            xid.New("credit"),
			ClientID:      tx.ClientID,
			AmountCents:   posting.ChangeToCreditCents,
			SourceType:    domain.CreditSourceChange,
			TransactionID: tx.ID,
			Notes:         "change converted to store credit",
			ProcessedBy:   tx.CashierUsername,
			CreatedAt:     tx.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
	}

	if tx.ClientID != "" && (posting.RedeemPoints != 0 || posting.EarnPoints != 0) {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE clients
			SET loyalty_points = loyalty_points - $2 + $3
			WHERE id = $1
		`, tx.ClientID, posting.RedeemPoints, posting.EarnPoints)
		if err != nil {
			return nil, err
		}
	}

	err = applySessionDelta(ctx, pgTx, posting.SessionID, sessionDelta{
		cashSalesCents:   posting.CashToDrawerCents,
		cardSalesCents:   posting.CardSalesCents,
		creditSalesCents: posting.CreditSalesCents,
	})
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "id", transactionID)
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "idempotency_key", key)
}

const transactionColumns = `id, COALESCE(client_id,''), cashier_username, session_id, idempotency_key,
	lines, discount, tips, payment_method, COALESCE(payment_reference,''), payment_splits,
	cash_received_cents, change_cents, COALESCE(change_handling,''),
	subtotal_cents, discount_cents, redeemed_points, redeemed_cents,
	taxable_cents, tax_cents, tip_total_cents, total_cents, earnable_points,
	status, created_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var linesJSON []byte
	var discountJSON []byte
	var tipsJSON []byte
	var splitsJSON []byte

	err := row.Scan(
		&tx.ID,
		&tx.ClientID,
		&tx.CashierUsername,
		&tx.SessionID,
		&tx.IdempotencyKey,
		&linesJSON,
		&discountJSON,
		&tipsJSON,
		&tx.PaymentMethod,
		&tx.PaymentReference,
		&splitsJSON,
		&tx.CashReceivedCents,
		&tx.ChangeCents,
		&tx.ChangeHandling,
		&tx.Settlement.SubtotalCents,
		&tx.Settlement.DiscountCents,
		&tx.Settlement.RedeemedPoints,
		&tx.Settlement.RedeemedCents,
		&tx.Settlement.TaxableCents,
		&tx.Settlement.TaxCents,
		&tx.Settlement.TipTotalCents,
		&tx.Settlement.TotalCents,
		&tx.Settlement.EarnablePoints,
		&tx.Status,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(linesJSON, &tx.Lines); err != nil {
		return nil, err
	}
	if len(discountJSON) > 0 {
		if err := json.Unmarshal(discountJSON, &tx.Discount); err != nil {
			return nil, err
		}
	}
	if len(tipsJSON) > 0 {
		if err := json.Unmarshal(tipsJSON, &tx.Tips); err != nil {
			return nil, err
		}
	}
	if len(splitsJSON) > 0 {
		if err := json.Unmarshal(splitsJSON, &tx.PaymentSplits); err != nil {
			return nil, err
		}
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func (s *Store) findTransaction(ctx context.Context, column string, value string) (*domain.Transaction, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE %s = $1
	`, column)

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR session_id = $1)
			AND ($2 = '' OR client_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, filter.SessionID, filter.ClientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (s *Store) CountTransactionsForSession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions WHERE session_id = $1
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func marshalDiscount(d *domain.Discount) (any, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func marshalIfPresent[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
