package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"salondesk/backend/internal/cache"
	"salondesk/backend/internal/domain"
	"salondesk/backend/internal/settlement"
	"salondesk/backend/internal/store"
	"salondesk/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	calc       *settlement.Calculator
	balances   cache.BalanceCache
	balanceTTL time.Duration
}

func New(repo store.Repository, calc *settlement.Calculator, balances cache.BalanceCache, balanceTTL time.Duration) *Service {
	if balances == nil {
		balances = cache.NoopBalanceCache{}
	}
	if balanceTTL <= 0 {
		balanceTTL = time.Minute
	}

	return &Service{
		repo:       repo,
		calc:       calc,
		balances:   balances,
		balanceTTL: balanceTTL,
	}
}

func (s *Service) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return domain.Client{}, store.ErrInvalidInput
	}
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

// ComputeSettlement prices a cart without committing anything. With a
// client_id the stored loyalty balance caps the redemption; walk-in
// quotes trust the caller-provided available_points.
func (s *Service) ComputeSettlement(ctx context.Context, req domain.SettlementRequest) (domain.Settlement, error) {
	availablePoints := req.AvailablePoints
	if req.ClientID != "" {
		client, err := s.repo.GetClient(ctx, req.ClientID)
		if err != nil {
			return domain.Settlement{}, err
		}
		availablePoints = client.LoyaltyPoints
	}
	settled, err := s.calc.Compute(req.Lines, req.Discount, req.RedeemPoints, availablePoints, req.Tips)
	if err != nil {
		return domain.Settlement{}, err
	}
	if req.ClientID == "" {
		settled.EarnablePoints = 0
	}
	return settled, nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CheckoutResponse{}, fmt.Errorf("authenticated cashier required")
	}

	if len(req.PaymentSplits) > 0 {
		req.PaymentMethod = domain.PaymentMethodSplit
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}
	if req.ChangeHandling == "" {
		req.ChangeHandling = domain.ChangeHandlingCash
	}
	if req.ChangeHandling != domain.ChangeHandlingCash && req.ChangeHandling != domain.ChangeHandlingCredit {
		return domain.CheckoutResponse{}, store.ErrInvalidInput
	}

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return toCheckoutResponse(existing, true), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	session, err := s.repo.GetOpenCashUpForCashier(ctx, actor.Username, todayUTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, fmt.Errorf("open cash-up session required")
		}
		return domain.CheckoutResponse{}, err
	}

	availablePoints := int64(0)
	if req.ClientID != "" {
		client, err := s.repo.GetClient(ctx, req.ClientID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		availablePoints = client.LoyaltyPoints
	}

	settled, err := s.calc.Compute(req.Lines, req.Discount, req.RedeemPoints, availablePoints, req.Tips)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	tender, err := settlement.VerifyPayment(settled.TotalCents, req.PaymentMethod, req.PaymentReference, req.PaymentSplits, req.CashReceivedCents)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if tender.CreditAppliedCents > 0 && req.ClientID == "" {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: store credit requires a client", store.ErrInvalidInput)
	}

	changeToCredit := int64(0)
	if req.ChangeHandling == domain.ChangeHandlingCredit && tender.ChangeCents > 0 {
		if req.ClientID == "" {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: change to credit requires a client", store.ErrInvalidInput)
		}
		changeToCredit = tender.ChangeCents
	}

	if req.ClientID == "" {
		settled.EarnablePoints = 0
	}

	tx := domain.Transaction{
		ID:                xid.New("tx"),
		ClientID:          req.ClientID,
		CashierUsername:   actor.Username,
		SessionID:         session.ID,
		IdempotencyKey:    req.IdempotencyKey,
		Lines:             req.Lines,
		Discount:          req.Discount,
		Tips:              req.Tips,
		PaymentMethod:     req.PaymentMethod,
		PaymentReference:  strings.TrimSpace(req.PaymentReference),
		PaymentSplits:     req.PaymentSplits,
		CashReceivedCents: req.CashReceivedCents,
		ChangeCents:       tender.ChangeCents,
		ChangeHandling:    req.ChangeHandling,
		Settlement:        settled,
		Status:            domain.TxStatusCompleted,
		CreatedAt:         time.Now().UTC(),
	}

	posting := domain.CheckoutPosting{
		SessionID: session.ID,
		// When change is converted to credit the drawer keeps the whole
		// tendered amount instead of paying the difference back out.
		CashToDrawerCents:   tender.CashAppliedCents + changeToCredit,
		CardSalesCents:      tender.CardAppliedCents,
		CreditSalesCents:    tender.CreditAppliedCents,
		CreditRedeemedCents: tender.CreditAppliedCents,
		ChangeToCreditCents: changeToCredit,
		RedeemPoints:        settled.RedeemedPoints,
		EarnPoints:          settled.EarnablePoints,
	}

	created, err := s.repo.CreateCheckout(ctx, tx, posting)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	// A concurrent replay that slipped past the lookup above comes back as
	// the already-stored transaction under a different ID.
	if created.ID != tx.ID {
		return toCheckoutResponse(created, true), nil
	}

	if req.ClientID != "" && (tender.CreditAppliedCents > 0 || changeToCredit > 0) {
		if err := s.balances.Invalidate(ctx, req.ClientID); err != nil {
			log.Printf("[service] WARN: failed to invalidate balance cache client=%s: %v", req.ClientID, err)
		}
	}

	s.logAudit(
		ctx,
		"checkout",
		"transaction",
		created.ID,
		fmt.Sprintf(
			"total=%d,payment=%s,discount=%d,credit_used=%d,change_to_credit=%d,session=%s",
			created.Settlement.TotalCents,
			created.PaymentMethod,
			created.Settlement.DiscountCents,
			tender.CreditAppliedCents,
			changeToCredit,
			session.ID,
		),
	)

	return toCheckoutResponse(created, false), nil
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	if transactionID == "" {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) LookupCheckoutByIdempotency(ctx context.Context, idempotencyKey string) (*domain.CheckoutResponse, error) {
	if idempotencyKey == "" {
		return nil, store.ErrInvalidInput
	}
	tx, err := s.repo.FindTransactionByIdempotency(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	resp := toCheckoutResponse(tx, false)
	return &resp, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) OpenCashUp(ctx context.Context, req domain.CashUpOpenRequest) (domain.CashUpSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CashUpSession{}, fmt.Errorf("authenticated cashier required")
	}

	cashier := strings.TrimSpace(req.CashierUsername)
	if cashier == "" {
		cashier = actor.Username
	}
	// Cashiers open their own drawer; only an admin opens on behalf of
	// someone else.
	if cashier != actor.Username && actor.Role != "admin" {
		return domain.CashUpSession{}, fmt.Errorf("admin role required to open another cashier's session")
	}

	date := strings.TrimSpace(req.SessionDate)
	if date == "" {
		date = todayUTC()
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.CashUpSession{}, fmt.Errorf("%w: session_date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	if req.OpeningFloatCents < 0 {
		return domain.CashUpSession{}, store.ErrInvalidInput
	}

	session, err := s.repo.OpenCashUp(ctx, domain.CashUpSession{
		ID:                xid.New("cashup"),
		CashierUsername:   cashier,
		SessionDate:       date,
		OpeningFloatCents: req.OpeningFloatCents,
		Notes:             strings.TrimSpace(req.Notes),
		OpenedAt:          time.Now().UTC(),
	})
	if err != nil {
		return domain.CashUpSession{}, err
	}

	s.logAudit(ctx, "cashup_open", "cashup", session.ID, fmt.Sprintf("cashier=%s,date=%s,float=%d", cashier, date, req.OpeningFloatCents))
	return *session, nil
}

func (s *Service) GetCashUpDetail(ctx context.Context, sessionID string) (domain.CashUpDetail, error) {
	if sessionID == "" {
		return domain.CashUpDetail{}, store.ErrInvalidInput
	}

	session, err := s.repo.GetCashUp(ctx, sessionID)
	if err != nil {
		return domain.CashUpDetail{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, sessionID)
	if err != nil {
		return domain.CashUpDetail{}, err
	}
	drops, err := s.repo.ListSafeDrops(ctx, sessionID)
	if err != nil {
		return domain.CashUpDetail{}, err
	}
	txCount, err := s.repo.CountTransactionsForSession(ctx, sessionID)
	if err != nil {
		return domain.CashUpDetail{}, err
	}

	return domain.CashUpDetail{
		Session:          *session,
		Expenses:         expenses,
		SafeDrops:        drops,
		TransactionCount: txCount,
	}, nil
}

func (s *Service) GetActiveCashUp(ctx context.Context, cashierUsername string) (domain.CashUpSession, error) {
	cashier := strings.TrimSpace(cashierUsername)
	if cashier == "" {
		actor, ok := ActorFromContext(ctx)
		if !ok {
			return domain.CashUpSession{}, fmt.Errorf("authenticated cashier required")
		}
		cashier = actor.Username
	}
	session, err := s.repo.GetOpenCashUpForCashier(ctx, cashier, todayUTC())
	if err != nil {
		return domain.CashUpSession{}, err
	}
	return *session, nil
}

func (s *Service) ListCashUps(ctx context.Context, filter store.CashUpFilter) ([]domain.CashUpSession, error) {
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	return s.repo.ListCashUps(ctx, filter)
}

func (s *Service) CompleteCashUp(ctx context.Context, sessionID string, req domain.CashUpCompleteRequest) (domain.CashUpSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CashUpSession{}, fmt.Errorf("authenticated cashier required")
	}
	if sessionID == "" {
		return domain.CashUpSession{}, store.ErrInvalidInput
	}
	if req.ActualCashCents == nil {
		return domain.CashUpSession{}, fmt.Errorf("%w: actual_cash_cents is required", store.ErrInvalidInput)
	}
	if *req.ActualCashCents < 0 {
		return domain.CashUpSession{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetCashUp(ctx, sessionID)
	if err != nil {
		return domain.CashUpSession{}, err
	}
	if existing.CashierUsername != actor.Username && actor.Role != "admin" {
		return domain.CashUpSession{}, fmt.Errorf("admin role required to complete another cashier's session")
	}

	session, err := s.repo.CompleteCashUp(ctx, sessionID, *req.ActualCashCents, strings.TrimSpace(req.Notes), actor.Username, time.Now().UTC())
	if err != nil {
		return domain.CashUpSession{}, err
	}

	variance := int64(0)
	if session.VarianceCents != nil {
		variance = *session.VarianceCents
	}
	s.logAudit(ctx, "cashup_complete", "cashup", session.ID, fmt.Sprintf("expected=%d,actual=%d,variance=%d", session.ExpectedCashCents, *req.ActualCashCents, variance))
	return *session, nil
}

func (s *Service) ReconcileCashUp(ctx context.Context, sessionID string, req domain.CashUpReconcileRequest) (domain.CashUpSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.CashUpSession{}, fmt.Errorf("admin role required")
	}
	if sessionID == "" {
		return domain.CashUpSession{}, store.ErrInvalidInput
	}

	session, err := s.repo.ReconcileCashUp(ctx, sessionID, strings.TrimSpace(req.Notes), actor.Username, time.Now().UTC())
	if err != nil {
		return domain.CashUpSession{}, err
	}

	s.logAudit(ctx, "cashup_reconcile", "cashup", session.ID, fmt.Sprintf("cashier=%s,date=%s", session.CashierUsername, session.SessionDate))
	return *session, nil
}

func (s *Service) AddExpense(ctx context.Context, sessionID string, req domain.ExpenseRequest) (domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Expense{}, fmt.Errorf("authenticated cashier required")
	}
	if sessionID == "" || strings.TrimSpace(req.Description) == "" || req.AmountCents < 1 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	expense, err := s.repo.AddExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		SessionID:   sessionID,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		AmountCents: req.AmountCents,
		ReceiptURL:  strings.TrimSpace(req.ReceiptURL),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_add", "expense", expense.ID, fmt.Sprintf("session=%s,amount=%d,category=%s", sessionID, expense.AmountCents, expense.Category))
	return *expense, nil
}

func (s *Service) UpdateExpense(ctx context.Context, sessionID string, expenseID string, req domain.ExpenseUpdateRequest) (domain.Expense, error) {
	if sessionID == "" || expenseID == "" {
		return domain.Expense{}, store.ErrInvalidInput
	}
	expense, err := s.repo.UpdateExpense(ctx, sessionID, expenseID, req)
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "expense_update", "expense", expenseID, fmt.Sprintf("session=%s,amount=%d", sessionID, expense.AmountCents))
	return *expense, nil
}

func (s *Service) DeleteExpense(ctx context.Context, sessionID string, expenseID string) error {
	if sessionID == "" || expenseID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteExpense(ctx, sessionID, expenseID); err != nil {
		return err
	}
	s.logAudit(ctx, "expense_delete", "expense", expenseID, fmt.Sprintf("session=%s", sessionID))
	return nil
}

func (s *Service) AttachExpenseReceipt(ctx context.Context, sessionID string, expenseID string, receiptURL string) (domain.Expense, error) {
	if sessionID == "" || expenseID == "" || strings.TrimSpace(receiptURL) == "" {
		return domain.Expense{}, store.ErrInvalidInput
	}
	expense, err := s.repo.SetExpenseReceipt(ctx, sessionID, expenseID, receiptURL)
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "expense_receipt", "expense", expenseID, fmt.Sprintf("session=%s", sessionID))
	return *expense, nil
}

func (s *Service) AddSafeDrop(ctx context.Context, sessionID string, req domain.SafeDropRequest) (domain.SafeDrop, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SafeDrop{}, fmt.Errorf("authenticated cashier required")
	}
	if sessionID == "" || strings.TrimSpace(req.Reason) == "" || req.AmountCents < 1 {
		return domain.SafeDrop{}, store.ErrInvalidInput
	}

	drop, err := s.repo.AddSafeDrop(ctx, domain.SafeDrop{
		ID:          xid.New("drop"),
		SessionID:   sessionID,
		AmountCents: req.AmountCents,
		Reason:      strings.TrimSpace(req.Reason),
		Notes:       strings.TrimSpace(req.Notes),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.SafeDrop{}, err
	}

	s.logAudit(ctx, "safedrop_add", "safedrop", drop.ID, fmt.Sprintf("session=%s,amount=%d,reason=%s", sessionID, drop.AmountCents, drop.Reason))
	return *drop, nil
}

func (s *Service) UpdateSafeDrop(ctx context.Context, sessionID string, dropID string, req domain.SafeDropUpdateRequest) (domain.SafeDrop, error) {
	if sessionID == "" || dropID == "" {
		return domain.SafeDrop{}, store.ErrInvalidInput
	}
	drop, err := s.repo.UpdateSafeDrop(ctx, sessionID, dropID, req)
	if err != nil {
		return domain.SafeDrop{}, err
	}
	s.logAudit(ctx, "safedrop_update", "safedrop", dropID, fmt.Sprintf("session=%s,amount=%d", sessionID, drop.AmountCents))
	return *drop, nil
}

func (s *Service) DeleteSafeDrop(ctx context.Context, sessionID string, dropID string) error {
	if sessionID == "" || dropID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteSafeDrop(ctx, sessionID, dropID); err != nil {
		return err
	}
	s.logAudit(ctx, "safedrop_delete", "safedrop", dropID, fmt.Sprintf("session=%s", sessionID))
	return nil
}

func (s *Service) GetCashUpSummary(ctx context.Context, fromDate string, toDate string) (domain.CashUpSummary, error) {
	for _, date := range []string{fromDate, toDate} {
		if date == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return domain.CashUpSummary{}, fmt.Errorf("%w: dates must be YYYY-MM-DD", store.ErrInvalidInput)
		}
	}
	return s.repo.GetCashUpSummary(ctx, fromDate, toDate)
}

func (s *Service) AddCredit(ctx context.Context, clientID string, req domain.CreditAddRequest) (domain.CreditEntry, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CreditEntry{}, fmt.Errorf("authenticated cashier required")
	}
	if clientID == "" || req.AmountCents < 1 {
		return domain.CreditEntry{}, store.ErrInvalidInput
	}
	if !isCreditSourceSupported(req.SourceType) {
		return domain.CreditEntry{}, store.ErrInvalidInput
	}

	entry, err := s.repo.AppendCreditEntry(ctx, domain.CreditEntry{
		ID:            xid.New("credit"),
		ClientID:      clientID,
		AmountCents:   req.AmountCents,
		SourceType:    req.SourceType,
		TransactionID: req.TransactionID,
		Notes:         strings.TrimSpace(req.Notes),
		ProcessedBy:   actor.Username,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.CreditEntry{}, err
	}

	if err := s.balances.Invalidate(ctx, clientID); err != nil {
		log.Printf("[service] WARN: failed to invalidate balance cache client=%s: %v", clientID, err)
	}
	s.logAudit(ctx, "credit_add", "credit", entry.ID, fmt.Sprintf("client=%s,amount=%d,source=%s", clientID, entry.AmountCents, entry.SourceType))
	return *entry, nil
}

func (s *Service) RedeemCredit(ctx context.Context, clientID string, req domain.CreditRedeemRequest) (domain.CreditEntry, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CreditEntry{}, fmt.Errorf("authenticated cashier required")
	}
	if clientID == "" || req.AmountCents < 1 {
		return domain.CreditEntry{}, store.ErrInvalidInput
	}

	entry, err := s.repo.AppendCreditEntry(ctx, domain.CreditEntry{
		ID:            xid.New("credit"),
		ClientID:      clientID,
		AmountCents:   -req.AmountCents,
		SourceType:    domain.CreditSourceRedemption,
		TransactionID: req.TransactionID,
		Notes:         strings.TrimSpace(req.Notes),
		ProcessedBy:   actor.Username,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.CreditEntry{}, err
	}

	if err := s.balances.Invalidate(ctx, clientID); err != nil {
		log.Printf("[service] WARN: failed to invalidate balance cache client=%s: %v", clientID, err)
	}
	s.logAudit(ctx, "credit_redeem", "credit", entry.ID, fmt.Sprintf("client=%s,amount=%d", clientID, req.AmountCents))
	return *entry, nil
}

// AdjustCredit posts a signed correction to a client's ledger. Unlike
// add/redeem, the amount may be negative; the store still refuses any
// entry that would take the balance below zero.
func (s *Service) AdjustCredit(ctx context.Context, clientID string, req domain.CreditAdjustRequest) (domain.CreditEntry, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CreditEntry{}, fmt.Errorf("authenticated cashier required")
	}
	if actor.Role != "admin" {
		return domain.CreditEntry{}, fmt.Errorf("admin role required to adjust credit")
	}
	if clientID == "" || req.AmountCents == 0 {
		return domain.CreditEntry{}, store.ErrInvalidInput
	}
	// Corrections must say why.
	if strings.TrimSpace(req.Notes) == "" {
		return domain.CreditEntry{}, fmt.Errorf("%w: adjustment notes required", store.ErrInvalidInput)
	}

	entry, err := s.repo.AppendCreditEntry(ctx, domain.CreditEntry{
		ID:          xid.New("credit"),
		ClientID:    clientID,
		AmountCents: req.AmountCents,
		SourceType:  domain.CreditSourceManual,
		Notes:       strings.TrimSpace(req.Notes),
		ProcessedBy: actor.Username,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.CreditEntry{}, err
	}

	if err := s.balances.Invalidate(ctx, clientID); err != nil {
		log.Printf("[service] WARN: failed to invalidate balance cache client=%s: %v", clientID, err)
	}
	s.logAudit(ctx, "credit_adjust", "credit", entry.ID, fmt.Sprintf("client=%s,amount=%d", clientID, entry.AmountCents))
	return *entry, nil
}

// GetCreditBalance serves reads through the balance cache. The ledger
// remains the source of truth; a miss falls through to the store.
func (s *Service) GetCreditBalance(ctx context.Context, clientID string) (domain.CreditBalanceResponse, error) {
	if clientID == "" {
		return domain.CreditBalanceResponse{}, store.ErrInvalidInput
	}

	if cents, hit, err := s.balances.GetBalance(ctx, clientID); err == nil && hit {
		return domain.CreditBalanceResponse{
			ClientID:     clientID,
			BalanceCents: cents,
			AsOf:         time.Now().UTC().Format(time.RFC3339),
		}, nil
	} else if err != nil {
		log.Printf("[service] WARN: balance cache read failed client=%s: %v", clientID, err)
	}

	cents, err := s.repo.GetCreditBalance(ctx, clientID)
	if err != nil {
		return domain.CreditBalanceResponse{}, err
	}
	if err := s.balances.SetBalance(ctx, clientID, cents, s.balanceTTL); err != nil {
		log.Printf("[service] WARN: balance cache write failed client=%s: %v", clientID, err)
	}

	return domain.CreditBalanceResponse{
		ClientID:     clientID,
		BalanceCents: cents,
		AsOf:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) ListCreditHistory(ctx context.Context, clientID string, limit int, offset int) ([]domain.CreditEntry, error) {
	if clientID == "" {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListCreditEntries(ctx, clientID, limit, offset)
}

func (s *Service) ListClientsWithCredit(ctx context.Context) ([]domain.ClientCreditSummary, error) {
	return s.repo.ListClientsWithCredit(ctx)
}

func (s *Service) GetCreditActivity(ctx context.Context, date string) (domain.CreditActivityReport, error) {
	if date == "" {
		date = todayUTC()
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.CreditActivityReport{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	return s.repo.GetCreditActivity(ctx, date)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func toCheckoutResponse(tx *domain.Transaction, duplicate bool) domain.CheckoutResponse {
	creditRedeemed := int64(0)
	switch tx.PaymentMethod {
	case domain.PaymentMethodCredit:
		creditRedeemed = tx.Settlement.TotalCents
	case domain.PaymentMethodSplit:
		for _, split := range tx.PaymentSplits {
			if split.Method == domain.PaymentMethodCredit {
				creditRedeemed += split.AmountCents
			}
		}
	}

	changeToCredit := int64(0)
	if tx.ChangeHandling == domain.ChangeHandlingCredit {
		changeToCredit = tx.ChangeCents
	}

	return domain.CheckoutResponse{
		TransactionID:       tx.ID,
		SessionID:           tx.SessionID,
		Status:              tx.Status,
		PaymentMethod:       tx.PaymentMethod,
		PaymentSplits:       tx.PaymentSplits,
		Settlement:          tx.Settlement,
		CashReceivedCents:   tx.CashReceivedCents,
		ChangeCents:         tx.ChangeCents,
		ChangeHandling:      tx.ChangeHandling,
		CreditRedeemedCents: creditRedeemed,
		ChangeToCreditCents: changeToCredit,
		Duplicate:           duplicate,
		CreatedAt:           tx.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func isCreditSourceSupported(sourceType string) bool {
	switch sourceType {
	case domain.CreditSourceChange, domain.CreditSourcePrepayment, domain.CreditSourceRefund, domain.CreditSourceManual:
		return true
	default:
		return false
	}
}

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}
