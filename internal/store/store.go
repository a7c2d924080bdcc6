package store

import (
	"context"
	"errors"
	"time"

	"salondesk/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrSessionAlreadyOpen  = errors.New("cash-up session already open")
	ErrSessionCompleted    = errors.New("cash-up session already completed")
	ErrSessionNotCompleted = errors.New("cash-up session not completed")
	ErrSessionLocked       = errors.New("cash-up session locked")
	ErrInsufficientCredit  = errors.New("insufficient credit")
)

type CashUpFilter struct {
	Status          string
	CashierUsername string
	FromDate        string
	ToDate          string
	Limit           int
}

type TransactionFilter struct {
	SessionID string
	ClientID  string
	Limit     int
}

type Repository interface {
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	ListClientsWithCredit(ctx context.Context) ([]domain.ClientCreditSummary, error)

	OpenCashUp(ctx context.Context, session domain.CashUpSession) (*domain.CashUpSession, error)
	GetCashUp(ctx context.Context, sessionID string) (*domain.CashUpSession, error)
	GetOpenCashUpForCashier(ctx context.Context, cashierUsername string, sessionDate string) (*domain.CashUpSession, error)
	ListCashUps(ctx context.Context, filter CashUpFilter) ([]domain.CashUpSession, error)
	CompleteCashUp(ctx context.Context, sessionID string, actualCashCents int64, notes string, completedBy string, completedAt time.Time) (*domain.CashUpSession, error)
	ReconcileCashUp(ctx context.Context, sessionID string, notes string, reconciledBy string, reconciledAt time.Time) (*domain.CashUpSession, error)

	AddExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, sessionID string, expenseID string, req domain.ExpenseUpdateRequest) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, sessionID string, expenseID string) error
	SetExpenseReceipt(ctx context.Context, sessionID string, expenseID string, receiptURL string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, sessionID string) ([]domain.Expense, error)

	AddSafeDrop(ctx context.Context, drop domain.SafeDrop) (*domain.SafeDrop, error)
	UpdateSafeDrop(ctx context.Context, sessionID string, dropID string, req domain.SafeDropUpdateRequest) (*domain.SafeDrop, error)
	DeleteSafeDrop(ctx context.Context, sessionID string, dropID string) error
	ListSafeDrops(ctx context.Context, sessionID string) ([]domain.SafeDrop, error)

	GetCashUpSummary(ctx context.Context, fromDate string, toDate string) (domain.CashUpSummary, error)

	AppendCreditEntry(ctx context.Context, entry domain.CreditEntry) (*domain.CreditEntry, error)
	GetCreditBalance(ctx context.Context, clientID string) (int64, error)
	ListCreditEntries(ctx context.Context, clientID string, limit int, offset int) ([]domain.CreditEntry, error)
	GetCreditActivity(ctx context.Context, date string) (domain.CreditActivityReport, error)

	CreateCheckout(ctx context.Context, tx domain.Transaction, posting domain.CheckoutPosting) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	CountTransactionsForSession(ctx context.Context, sessionID string) (int, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
