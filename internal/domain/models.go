package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Client struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone,omitempty"`
	Email              string    `json:"email,omitempty"`
	LoyaltyPoints      int64     `json:"loyalty_points"`
	CreditBalanceCents int64     `json:"credit_balance_cents"`
	CreatedAt          time.Time `json:"created_at"`
}

const (
	LineKindAppointment = "appointment"
	LineKindTreatment   = "treatment"
	LineKindProduct     = "product"
)

type CartLine struct {
	Kind           string `json:"kind"`
	Description    string `json:"description"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	StaffID        string `json:"staff_id,omitempty"`
}

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

type Discount struct {
	Type        string  `json:"type"`
	Percent     float64 `json:"percent,omitempty"`
	AmountCents int64   `json:"amount_cents,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

type TipAllocation struct {
	StaffID     string `json:"staff_id"`
	AmountCents int64  `json:"amount_cents"`
}

type SettlementRequest struct {
	ClientID string     `json:"client_id,omitempty"`
	Lines    []CartLine `json:"lines"`
	Discount *Discount  `json:"discount,omitempty"`
	// RedeemPoints is the number of loyalty points the client wants to
	// convert into a pre-tax reduction on this sale.
	RedeemPoints int64 `json:"redeem_points"`
	// AvailablePoints is only consulted when client_id is empty
	// (walk-in quote); otherwise the stored balance wins.
	AvailablePoints int64           `json:"available_points,omitempty"`
	Tips            []TipAllocation `json:"tips,omitempty"`
}

type Settlement struct {
	SubtotalCents  int64 `json:"subtotal_cents"`
	DiscountCents  int64 `json:"discount_cents"`
	RedeemedPoints int64 `json:"redeemed_points"`
	RedeemedCents  int64 `json:"redeemed_cents"`
	TaxableCents   int64 `json:"taxable_cents"`
	TaxCents       int64 `json:"tax_cents"`
	TipTotalCents  int64 `json:"tip_total_cents"`
	TotalCents     int64 `json:"total_cents"`
	EarnablePoints int64 `json:"earnable_points"`
}

const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodCredit = "credit"
	PaymentMethodSplit  = "split"
)

type PaymentSplit struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

const (
	ChangeHandlingCash   = "cash"
	ChangeHandlingCredit = "credit"
)

type CheckoutRequest struct {
	IdempotencyKey    string          `json:"idempotency_key"`
	ClientID          string          `json:"client_id,omitempty"`
	Lines             []CartLine      `json:"lines"`
	Discount          *Discount       `json:"discount,omitempty"`
	RedeemPoints      int64           `json:"redeem_points"`
	Tips              []TipAllocation `json:"tips,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit  `json:"payment_splits,omitempty"`
	CashReceivedCents int64           `json:"cash_received_cents"`
	ChangeHandling    string          `json:"change_handling,omitempty"`
}

const TxStatusCompleted = "completed"

type Transaction struct {
	ID                string          `json:"id"`
	ClientID          string          `json:"client_id,omitempty"`
	CashierUsername   string          `json:"cashier_username"`
	SessionID         string          `json:"session_id"`
	IdempotencyKey    string          `json:"idempotency_key"`
	Lines             []CartLine      `json:"lines"`
	Discount          *Discount       `json:"discount,omitempty"`
	Tips              []TipAllocation `json:"tips,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	PaymentSplits     []PaymentSplit  `json:"payment_splits,omitempty"`
	CashReceivedCents int64           `json:"cash_received_cents"`
	ChangeCents       int64           `json:"change_cents"`
	ChangeHandling    string          `json:"change_handling,omitempty"`
	Settlement        Settlement      `json:"settlement"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

type CheckoutResponse struct {
	TransactionID       string         `json:"transaction_id"`
	SessionID           string         `json:"session_id"`
	Status              string         `json:"status"`
	PaymentMethod       string         `json:"payment_method"`
	PaymentSplits       []PaymentSplit `json:"payment_splits,omitempty"`
	Settlement          Settlement     `json:"settlement"`
	CashReceivedCents   int64          `json:"cash_received_cents"`
	ChangeCents         int64          `json:"change_cents"`
	ChangeHandling      string         `json:"change_handling,omitempty"`
	CreditRedeemedCents int64          `json:"credit_redeemed_cents,omitempty"`
	ChangeToCreditCents int64          `json:"change_to_credit_cents,omitempty"`
	Duplicate           bool           `json:"duplicate"`
	CreatedAt           string         `json:"created_at"`
}

// CheckoutPosting carries the side effects a checkout applies within the
// same unit of work as the transaction insert: drawer totals on the
// cash-up session, credit ledger movements, and loyalty point deltas.
type CheckoutPosting struct {
	SessionID           string
	CashToDrawerCents   int64
	CardSalesCents      int64
	CreditSalesCents    int64
	CreditRedeemedCents int64
	ChangeToCreditCents int64
	RedeemPoints        int64
	EarnPoints          int64
}

const (
	SessionStatusOpen       = "open"
	SessionStatusActive     = "active"
	SessionStatusCompleted  = "completed"
	SessionStatusReconciled = "reconciled"
)

type CashUpSession struct {
	ID                  string     `json:"id"`
	CashierUsername     string     `json:"cashier_username"`
	SessionDate         string     `json:"session_date"`
	Status              string     `json:"status"`
	OpeningFloatCents   int64      `json:"opening_float_cents"`
	CashSalesCents      int64      `json:"cash_sales_cents"`
	CardSalesCents      int64      `json:"card_sales_cents"`
	CreditSalesCents    int64      `json:"credit_sales_cents"`
	ExpenseTotalCents   int64      `json:"expense_total_cents"`
	SafeDropTotalCents  int64      `json:"safe_drop_total_cents"`
	ExpectedCashCents   int64      `json:"expected_cash_cents"`
	ActualCashCents     *int64     `json:"actual_cash_cents,omitempty"`
	VarianceCents       *int64     `json:"variance_cents,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	ReconciliationNotes string     `json:"reconciliation_notes,omitempty"`
	OpenedAt            time.Time  `json:"opened_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CompletedBy         string     `json:"completed_by,omitempty"`
	ReconciledAt        *time.Time `json:"reconciled_at,omitempty"`
	ReconciledBy        string     `json:"reconciled_by,omitempty"`
}

type CashUpOpenRequest struct {
	CashierUsername   string `json:"cashier_username,omitempty"`
	SessionDate       string `json:"session_date,omitempty"`
	OpeningFloatCents int64  `json:"opening_float_cents"`
	Notes             string `json:"notes,omitempty"`
}

type CashUpCompleteRequest struct {
	ActualCashCents *int64 `json:"actual_cash_cents"`
	Notes           string `json:"notes,omitempty"`
}

type CashUpReconcileRequest struct {
	Notes string `json:"notes,omitempty"`
}

type CashUpDetail struct {
	Session          CashUpSession `json:"session"`
	Expenses         []Expense     `json:"expenses"`
	SafeDrops        []SafeDrop    `json:"safe_drops"`
	TransactionCount int           `json:"transaction_count"`
}

type Expense struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	ReceiptURL  string    `json:"receipt_url,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseRequest struct {
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	ReceiptURL  string `json:"receipt_url,omitempty"`
}

type ExpenseUpdateRequest struct {
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	AmountCents *int64  `json:"amount_cents,omitempty"`
}

type SafeDrop struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type SafeDropRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	Notes       string `json:"notes,omitempty"`
}

type SafeDropUpdateRequest struct {
	AmountCents *int64  `json:"amount_cents,omitempty"`
	Reason      *string `json:"reason,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type CashUpSummary struct {
	From                  string `json:"from"`
	To                    string `json:"to"`
	SessionCount          int    `json:"session_count"`
	CompletedCount        int    `json:"completed_count"`
	ReconciledCount       int    `json:"reconciled_count"`
	CashSalesCents        int64  `json:"cash_sales_cents"`
	CardSalesCents        int64  `json:"card_sales_cents"`
	CreditSalesCents      int64  `json:"credit_sales_cents"`
	ExpenseTotalCents     int64  `json:"expense_total_cents"`
	SafeDropTotalCents    int64  `json:"safe_drop_total_cents"`
	VarianceAbsTotalCents int64  `json:"variance_abs_total_cents"`
	VarianceAvgCents      int64  `json:"variance_avg_cents"`
	SessionsOver          int    `json:"sessions_over"`
	SessionsShort         int    `json:"sessions_short"`
}

const (
	CreditSourceChange     = "change"
	CreditSourcePrepayment = "prepayment"
	CreditSourceRefund     = "refund"
	CreditSourceManual     = "manual"
	CreditSourceRedemption = "redemption"
)

// CreditEntry is an append-only ledger row. AmountCents is signed:
// positive entries add store credit, negative entries redeem it.
type CreditEntry struct {
	ID                 string    `json:"id"`
	ClientID           string    `json:"client_id"`
	AmountCents        int64     `json:"amount_cents"`
	SourceType         string    `json:"source_type"`
	TransactionID      string    `json:"transaction_id,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	ProcessedBy        string    `json:"processed_by"`
	BalanceBeforeCents int64     `json:"balance_before_cents"`
	BalanceAfterCents  int64     `json:"balance_after_cents"`
	CreatedAt          time.Time `json:"created_at"`
}

type CreditAddRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	SourceType    string `json:"source_type"`
	TransactionID string `json:"transaction_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// CreditAdjustRequest carries a signed correction amount: positive to
// restore credit, negative to claw it back.
type CreditAdjustRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Notes       string `json:"notes"`
}

type CreditRedeemRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	TransactionID string `json:"transaction_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type CreditBalanceResponse struct {
	ClientID     string `json:"client_id"`
	BalanceCents int64  `json:"balance_cents"`
	AsOf         string `json:"as_of"`
}

type ClientCreditSummary struct {
	ClientID       string     `json:"client_id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone,omitempty"`
	BalanceCents   int64      `json:"balance_cents"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

type CreditActivityReport struct {
	Date                  string `json:"date"`
	IssuedCents           int64  `json:"issued_cents"`
	RedeemedCents         int64  `json:"redeemed_cents"`
	NetCents              int64  `json:"net_cents"`
	EntryCount            int    `json:"entry_count"`
	OutstandingTotalCents int64  `json:"outstanding_total_cents"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
