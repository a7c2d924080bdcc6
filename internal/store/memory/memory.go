package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salondesk/backend/internal/domain"
	"salondesk/backend/internal/store"
	"salondesk/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	clientsByID        map[string]domain.Client
	creditEntries      map[string][]domain.CreditEntry
	cashUpsByID        map[string]domain.CashUpSession
	openCashUpByKey    map[string]string
	expensesBySession  map[string][]domain.Expense
	safeDropsBySession map[string][]domain.SafeDrop
	transactionsByID   map[string]*domain.Transaction
	transactionsByIdem map[string]*domain.Transaction
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	clients := []domain.Client{
		{ID: "client-amelia", Name: "Amelia Hart", Phone: "+1-555-0101", Email: "amelia@example.com", LoyaltyPoints: 1200, CreatedAt: now},
		{ID: "client-bruno", Name: "Bruno Keller", Phone: "+1-555-0102", LoyaltyPoints: 430, CreatedAt: now},
		{ID: "client-carla", Name: "Carla Mendes", Email: "carla@example.com", LoyaltyPoints: 0, CreatedAt: now},
		{ID: "client-dev", Name: "Devi Sharma", Phone: "+1-555-0104", LoyaltyPoints: 8600, CreatedAt: now},
	}

	s := &Store{
		clientsByID:        make(map[string]domain.Client, len(clients)),
		creditEntries:      make(map[string][]domain.CreditEntry),
		cashUpsByID:        make(map[string]domain.CashUpSession),
		openCashUpByKey:    make(map[string]string),
		expensesBySession:  make(map[string][]domain.Expense),
		safeDropsBySession: make(map[string][]domain.SafeDrop),
		transactionsByID:   make(map[string]*domain.Transaction),
		transactionsByIdem: make(map[string]*domain.Transaction),
		usersByUsername:    seedUsers(),
	}
	for _, c := range clients {
		s.clientsByID[c.ID] = c
	}

	// Seed one outstanding credit so balance reports have data in dev mode.
	seedEntry := domain.CreditEntry{
		ID:                xid.New("credit"),
		ClientID:          "client-bruno",
		AmountCents:       1500,
		SourceType:        domain.CreditSourceChange,
		Notes:             "seed balance",
		ProcessedBy:       "system",
		BalanceAfterCents: 1500,
		CreatedAt:         now,
	}
	s.creditEntries["client-bruno"] = []domain.CreditEntry{seedEntry}
	bruno := s.clientsByID["client-bruno"]
	bruno.CreditBalanceCents = 1500
	s.clientsByID["client-bruno"] = bruno

	return s
}

func cashUpKey(cashier, date string) string {
	return cashier + "|" + date
}

func (s *Store) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clientsByID[clientID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyClient := client
	return &copyClient, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clientsByID))
	for _, client := range s.clientsByID {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
	return clients, nil
}

func (s *Store) ListClientsWithCredit(_ context.Context) ([]domain.ClientCreditSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.ClientCreditSummary, 0, 16)
	for _, client := range s.clientsByID {
		if client.CreditBalanceCents < 1 {
			continue
		}
		summary := domain.ClientCreditSummary{
			ClientID:     client.ID,
			Name:         client.Name,
			Phone:        client.Phone,
			BalanceCents: client.CreditBalanceCents,
		}
		if entries := s.creditEntries[client.ID]; len(entries) > 0 {
			last := entries[len(entries)-1].CreatedAt
			summary.LastActivityAt = &last
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].BalanceCents > summaries[j].BalanceCents
	})
	return summaries, nil
}

func (s *Store) OpenCashUp(_ context.Context, session domain.CashUpSession) (*domain.CashUpSession, error) {
	if strings.TrimSpace(session.CashierUsername) == "" || strings.TrimSpace(session.SessionDate) == "" {
		return nil, store.ErrInvalidInput
	}
	if session.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := cashUpKey(session.CashierUsername, session.SessionDate)
	if _, exists := s.openCashUpByKey[key]; exists {
		return nil, store.ErrSessionAlreadyOpen
	}
	if session.ID == "" {
		session.ID = xid.New("cashup")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.ExpectedCashCents = session.OpeningFloatCents
	session.ActualCashCents = nil
	session.VarianceCents = nil

	s.cashUpsByID[session.ID] = session
	s.openCashUpByKey[key] = session.ID
	copySession := session
	return &copySession, nil
}

func (s *Store) GetCashUp(_ context.Context, sessionID string) (*domain.CashUpSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySession := session
	return &copySession, nil
}

func (s *Store) GetOpenCashUpForCashier(_ context.Context, cashierUsername string, sessionDate string) (*domain.CashUpSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.openCashUpByKey[cashUpKey(cashierUsername, sessionDate)]
	if !exists {
		return nil, store.ErrNotFound
	}
	session, exists := s.cashUpsByID[sessionID]
	if !exists || !isSessionOpen(session.Status) {
		return nil, store.ErrNotFound
	}
	copySession := session
	return &copySession, nil
}

func (s *Store) ListCashUps(_ context.Context, filter store.CashUpFilter) ([]domain.CashUpSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.CashUpSession, 0, len(s.cashUpsByID))
	for _, session := range s.cashUpsByID {
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		if filter.CashierUsername != "" && session.CashierUsername != filter.CashierUsername {
			continue
		}
		if filter.FromDate != "" && session.SessionDate < filter.FromDate {
			continue
		}
		if filter.ToDate != "" && session.SessionDate > filter.ToDate {
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].SessionDate == sessions[j].SessionDate {
			return sessions[i].OpenedAt.After(sessions[j].OpenedAt)
		}
		return sessions[i].SessionDate > sessions[j].SessionDate
	})
	if filter.Limit > 0 && len(sessions) > filter.Limit {
		sessions = sessions[:filter.Limit]
	}
	return sessions, nil
}

func (s *Store) CompleteCashUp(_ context.Context, sessionID string, actualCashCents int64, notes string, completedBy string, completedAt time.Time) (*domain.CashUpSession, error) {
	if actualCashCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return nil, store.ErrSessionCompleted
	}
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	variance := actualCashCents - session.ExpectedCashCents
	session.Status = domain.SessionStatusCompleted
	session.ActualCashCents = &actualCashCents
	session.VarianceCents = &variance
	if notes != "" {
		session.Notes = notes
	}
	session.CompletedAt = &completedAt
	session.CompletedBy = completedBy

	delete(s.openCashUpByKey, cashUpKey(session.CashierUsername, session.SessionDate))
	s.cashUpsByID[sessionID] = session
	copySession := session
	return &copySession, nil
}

func (s *Store) ReconcileCashUp(_ context.Context, sessionID string, notes string, reconciledBy string, reconciledAt time.Time) (*domain.CashUpSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	switch session.Status {
	case domain.SessionStatusCompleted:
	case domain.SessionStatusReconciled:
		return nil, store.ErrSessionCompleted
	default:
		return nil, store.ErrSessionNotCompleted
	}
	if reconciledAt.IsZero() {
		reconciledAt = time.Now().UTC()
	}

	session.Status = domain.SessionStatusReconciled
	session.ReconciliationNotes = notes
	session.ReconciledAt = &reconciledAt
	session.ReconciledBy = reconciledBy

	s.cashUpsByID[sessionID] = session
	copySession := session
	return &copySession, nil
}

func (s *Store) AddExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.Description) == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[expense.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return nil, store.ErrSessionLocked
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	s.expensesBySession[expense.SessionID] = append(s.expensesBySession[expense.SessionID], expense)
	session.ExpenseTotalCents += expense.AmountCents
	s.touchSession(&session)
	s.cashUpsByID[session.ID] = session

	copyExpense := expense
	return &copyExpense, nil
}

func (s *Store) UpdateExpense(_ context.Context, sessionID string, expenseID string, req domain.ExpenseUpdateRequest) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return nil, store.ErrSessionLocked
	}

	expenses := s.expensesBySession[sessionID]
	for i, expense := range expenses {
		if expense.ID != expenseID {
			continue
		}
		if req.Description != nil {
			desc := strings.TrimSpace(*req.Description)
			if desc == "" {
				return nil, store.ErrInvalidInput
			}
			expense.Description = desc
		}
		if req.Category != nil {
			expense.Category = strings.TrimSpace(*req.Category)
		}
		if req.AmountCents != nil {
			if *req.AmountCents < 1 {
				return nil, store.ErrInvalidInput
			}
			session.ExpenseTotalCents += *req.AmountCents - expense.AmountCents
			expense.AmountCents = *req.AmountCents
		}
		expenses[i] = expense
		s.touchSession(&session)
		s.cashUpsByID[sessionID] = session
		copyExpense := expense
		return &copyExpense, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteExpense(_ context.Context, sessionID string, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return store.ErrSessionLocked
	}

	expenses := s.expensesBySession[sessionID]
	for i, expense := range expenses {
		if expense.ID != expenseID {
			continue
		}
		s.expensesBySession[sessionID] = append(expenses[:i:i], expenses[i+1:]...)
		session.ExpenseTotalCents -= expense.AmountCents
		s.touchSession(&session)
		s.cashUpsByID[sessionID] = session
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) SetExpenseReceipt(_ context.Context, sessionID string, expenseID string, receiptURL string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Receipts may still be attached after completion; only a reconciled
	// session is frozen for good.
	if session.Status == domain.SessionStatusReconciled {
		return nil, store.ErrSessionLocked
	}

	expenses := s.expensesBySession[sessionID]
	for i, expense := range expenses {
		if expense.ID != expenseID {
			continue
		}
		expense.ReceiptURL = strings.TrimSpace(receiptURL)
		expenses[i] = expense
		copyExpense := expense
		return &copyExpense, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListExpenses(_ context.Context, sessionID string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.cashUpsByID[sessionID]; !exists {
		return nil, store.ErrNotFound
	}
	expenses := s.expensesBySession[sessionID]
	out := make([]domain.Expense, len(expenses))
	copy(out, expenses)
	return out, nil
}

func (s *Store) AddSafeDrop(_ context.Context, drop domain.SafeDrop) (*domain.SafeDrop, error) {
	if strings.TrimSpace(drop.Reason) == "" || drop.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[drop.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return nil, store.ErrSessionLocked
	}
	// A drop cannot move more cash than the drawer holds.
	if drop.AmountCents > session.ExpectedCashCents {
		return nil, store.ErrInvalidInput
	}
	if drop.ID == "" {
		drop.ID = xid.New("drop")
	}
	if drop.CreatedAt.IsZero() {
		drop.CreatedAt = time.Now().UTC()
	}

	s.safeDropsBySession[drop.SessionID] = append(s.safeDropsBySession[drop.SessionID], drop)
	session.SafeDropTotalCents += drop.AmountCents
	s.touchSession(&session)
	s.cashUpsByID[session.ID] = session

	copyDrop := drop
	return &copyDrop, nil
}

func (s *Store) UpdateSafeDrop(_ context.Context, sessionID string, dropID string, req domain.SafeDropUpdateRequest) (*domain.SafeDrop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return nil, store.ErrSessionLocked
	}

	drops := s.safeDropsBySession[sessionID]
	for i, drop := range drops {
		if drop.ID != dropID {
			continue
		}
		if req.Reason != nil {
			reason := strings.TrimSpace(*req.Reason)
			if reason == "" {
				return nil, store.ErrInvalidInput
			}
			drop.Reason = reason
		}
		if req.Notes != nil {
			drop.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.AmountCents != nil {
			if *req.AmountCents < 1 {
				return nil, store.ErrInvalidInput
			}
			delta := *req.AmountCents - drop.AmountCents
			// Raising the drop cannot take more than the drawer holds.
			if delta > session.ExpectedCashCents {
				return nil, store.ErrInvalidInput
			}
			session.SafeDropTotalCents += delta
			drop.AmountCents = *req.AmountCents
		}
		drops[i] = drop
		s.touchSession(&session)
		s.cashUpsByID[sessionID] = session
		copyDrop := drop
		return &copyDrop, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteSafeDrop(_ context.Context, sessionID string, dropID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.cashUpsByID[sessionID]
	if !exists {
		return store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return store.ErrSessionLocked
	}

	drops := s.safeDropsBySession[sessionID]
	for i, drop := range drops {
		if drop.ID != dropID {
			continue
		}
		s.safeDropsBySession[sessionID] = append(drops[:i:i], drops[i+1:]...)
		session.SafeDropTotalCents -= drop.AmountCents
		s.touchSession(&session)
		s.cashUpsByID[sessionID] = session
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) ListSafeDrops(_ context.Context, sessionID string) ([]domain.SafeDrop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.cashUpsByID[sessionID]; !exists {
		return nil, store.ErrNotFound
	}
	drops := s.safeDropsBySession[sessionID]
	out := make([]domain.SafeDrop, len(drops))
	copy(out, drops)
	return out, nil
}

func (s *Store) GetCashUpSummary(_ context.Context, fromDate string, toDate string) (domain.CashUpSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.CashUpSummary{From: fromDate, To: toDate}
	varianceCount := 0
	varianceSum := int64(0)
	for _, session := range s.cashUpsByID {
		if fromDate != "" && session.SessionDate < fromDate {
			continue
		}
		if toDate != "" && session.SessionDate > toDate {
			continue
		}
		summary.SessionCount++
		summary.CashSalesCents += session.CashSalesCents
		summary.CardSalesCents += session.CardSalesCents
		summary.CreditSalesCents += session.CreditSalesCents
		summary.ExpenseTotalCents += session.ExpenseTotalCents
		summary.SafeDropTotalCents += session.SafeDropTotalCents

		switch session.Status {
		case domain.SessionStatusCompleted:
			summary.CompletedCount++
		case domain.SessionStatusReconciled:
			summary.ReconciledCount++
		}
		if session.VarianceCents != nil {
			v := *session.VarianceCents
			varianceCount++
			varianceSum += v
			if v > 0 {
				summary.SessionsOver++
				summary.VarianceAbsTotalCents += v
			} else if v < 0 {
				summary.SessionsShort++
				summary.VarianceAbsTotalCents += -v
			}
		}
	}
	if varianceCount > 0 {
		summary.VarianceAvgCents = varianceSum / int64(varianceCount)
	}
	return summary, nil
}

func (s *Store) AppendCreditEntry(_ context.Context, entry domain.CreditEntry) (*domain.CreditEntry, error) {
	if entry.AmountCents == 0 || strings.TrimSpace(entry.SourceType) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.appendCreditEntryLocked(entry)
	if err != nil {
		return nil, err
	}
	copyEntry := *created
	return &copyEntry, nil
}

// appendCreditEntryLocked applies a ledger entry while the write lock is
// held so the balance check and the append are one step.
func (s *Store) appendCreditEntryLocked(entry domain.CreditEntry) (*domain.CreditEntry, error) {
	client, exists := s.clientsByID[entry.ClientID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if entry.AmountCents < 0 && client.CreditBalanceCents+entry.AmountCents < 0 {
		return nil, store.ErrInsufficientCredit
	}

	if entry.ID == "" {
		entry.ID = xid.New("credit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.BalanceBeforeCents = client.CreditBalanceCents
	entry.BalanceAfterCents = client.CreditBalanceCents + entry.AmountCents

	s.creditEntries[entry.ClientID] = append(s.creditEntries[entry.ClientID], entry)
	client.CreditBalanceCents = entry.BalanceAfterCents
	s.clientsByID[entry.ClientID] = client

	return &entry, nil
}

func (s *Store) GetCreditBalance(_ context.Context, clientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clientsByID[clientID]
	if !exists {
		return 0, store.ErrNotFound
	}
	return client.CreditBalanceCents, nil
}

func (s *Store) ListCreditEntries(_ context.Context, clientID string, limit int, offset int) ([]domain.CreditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.clientsByID[clientID]; !exists {
		return nil, store.ErrNotFound
	}
	entries := s.creditEntries[clientID]
	out := make([]domain.CreditEntry, 0, len(entries))
	// Newest first.
	for i := len(entries) - 1 - offset; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetCreditActivity(_ context.Context, date string) (domain.CreditActivityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.CreditActivityReport{Date: date}
	for _, entries := range s.creditEntries {
		for _, entry := range entries {
			if entry.CreatedAt.UTC().Format("2006-01-02") != date {
				continue
			}
			report.EntryCount++
			if entry.AmountCents > 0 {
				report.IssuedCents += entry.AmountCents
			} else {
				report.RedeemedCents += -entry.AmountCents
			}
		}
	}
	report.NetCents = report.IssuedCents - report.RedeemedCents
	for _, client := range s.clientsByID {
		report.OutstandingTotalCents += client.CreditBalanceCents
	}
	return report, nil
}

func (s *Store) CreateCheckout(_ context.Context, tx domain.Transaction, posting domain.CheckoutPosting) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A key collision is a replay that raced past the service's lookup:
	// hand back the stored transaction without posting anything twice.
	if existing, exists := s.transactionsByIdem[tx.IdempotencyKey]; exists {
		replay := *existing
		return &replay, nil
	}

	session, exists := s.cashUpsByID[posting.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !isSessionOpen(session.Status) {
		return nil, store.ErrSessionLocked
	}

	var client domain.Client
	hasClient := false
	if tx.ClientID != "" {
		client, hasClient = s.clientsByID[tx.ClientID]
		if !hasClient {
			return nil, store.ErrNotFound
		}
		if posting.RedeemPoints > client.LoyaltyPoints {
			return nil, store.ErrInvalidInput
		}
		if posting.CreditRedeemedCents > client.CreditBalanceCents {
			return nil, store.ErrInsufficientCredit
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.SessionID = session.ID
	tx.Status = domain.TxStatusCompleted

	if posting.CreditRedeemedCents > 0 {
		_, err := s.appendCreditEntryLocked(domain.CreditEntry{
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
		_, err := s.appendCreditEntryLocked(domain.CreditEntry{
			ClientID:      tx.ClientID,
			AmountCents:   posting.ChangeToCreditCents,
			SourceType:    domain.CreditSourceChange,
			TransactionID: tx.ID,
			ProcessedBy:   tx.CashierUsername,
			CreatedAt:     tx.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
	}

	if hasClient {
		// The ledger writes above may have replaced the map entry.
		client = s.clientsByID[tx.ClientID]
		client.LoyaltyPoints += posting.EarnPoints - posting.RedeemPoints
		s.clientsByID[tx.ClientID] = client
	}

	session.CashSalesCents += posting.CashToDrawerCents
	session.CardSalesCents += posting.CardSalesCents
	session.CreditSalesCents += posting.CreditSalesCents
	s.touchSession(&session)
	s.cashUpsByID[session.ID] = session

	stored := tx
	s.transactionsByID[tx.ID] = &stored
	s.transactionsByIdem[tx.IdempotencyKey] = &stored

	copyTx := stored
	return &copyTx, nil
}

func (s *Store) FindTransactionByID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[transactionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTx := *tx
	return &copyTx, nil
}

func (s *Store) FindTransactionByIdempotency(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTx := *tx
	return &copyTx, nil
}

func (s *Store) ListTransactions(_ context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transactions := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if filter.SessionID != "" && tx.SessionID != filter.SessionID {
			continue
		}
		if filter.ClientID != "" && tx.ClientID != filter.ClientID {
			continue
		}
		transactions = append(transactions, *tx)
	}
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
	})
	if filter.Limit > 0 && len(transactions) > filter.Limit {
		transactions = transactions[:filter.Limit]
	}
	return transactions, nil
}

func (s *Store) CountTransactionsForSession(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.transactionsByID {
		if tx.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// touchSession recomputes the derived drawer expectation and promotes a
// freshly opened session to active once money has moved through it.
func (s *Store) touchSession(session *domain.CashUpSession) {
	session.ExpectedCashCents = session.OpeningFloatCents +
		session.CashSalesCents -
		session.ExpenseTotalCents -
		session.SafeDropTotalCents
	if session.Status == domain.SessionStatusOpen {
		session.Status = domain.SessionStatusActive
	}
}

func isSessionOpen(status string) bool {
	return status == domain.SessionStatusOpen || status == domain.SessionStatusActive
}
