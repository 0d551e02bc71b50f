package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payhub-ph/payhub-backend/internal/gateway"
	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
)

// memStore implements the repository interfaces with the same settle
// semantics as the postgres layer: terminal CAS, applied markers, and
// the balance mutation under one lock.
type memStore struct {
	mu       sync.Mutex
	txns     map[string]*models.Transaction
	balances map[string]decimal.Decimal
	effects  map[string]bool
	audits   []models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		txns:     map[string]*models.Transaction{},
		balances: map[string]decimal.Decimal{},
		effects:  map[string]bool{},
	}
}

func (m *memStore) CreateDeposit(_ context.Context, t models.Transaction) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[t.ReferenceID]; ok {
		return models.Transaction{}, repo.ErrDuplicateReference
	}
	t.ID = uuid.NewString()
	t.Kind = models.KindDeposit
	t.Status = models.TxnPending
	t.CreatedAt = time.Now()
	m.txns[t.ReferenceID] = &t
	return t, nil
}

func (m *memStore) CreateWithdrawal(_ context.Context, t models.Transaction) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[t.ReferenceID]; ok {
		return models.Transaction{}, repo.ErrDuplicateReference
	}
	if m.balances[t.UserID].LessThan(t.Amount) {
		return models.Transaction{}, repo.ErrInsufficientFunds
	}
	m.balances[t.UserID] = m.balances[t.UserID].Sub(t.Amount)
	t.ID = uuid.NewString()
	t.Kind = models.KindWithdrawal
	t.Status = models.TxnPending
	t.CreatedAt = time.Now()
	m.txns[t.ReferenceID] = &t
	return t, nil
}

func (m *memStore) GetByReference(_ context.Context, ref string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[ref]
	if !ok {
		return models.Transaction{}, repo.ErrNotFound
	}
	return *t, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.txns {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) MarkProcessing(_ context.Context, ref string, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[ref]
	if !ok {
		return repo.ErrNotFound
	}
	if t.Status == models.TxnPending {
		t.Status = models.TxnProcessing
		if t.ResponseSnapshot == nil {
			t.ResponseSnapshot = snapshot
		}
	}
	return nil
}

func (m *memStore) ListUnsettled(_ context.Context, olderThan time.Time, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.txns {
		if !t.Status.IsTerminal() && t.CreatedAt.Before(olderThan) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) RecordSweepAttempt(_ context.Context, ref string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.txns[ref]; ok {
		t.RetryCount++
		t.LastError = &lastError
	}
	return nil
}

func (m *memStore) Settle(_ context.Context, ref string, status models.TransactionStatus, snapshot []byte, reason string) (models.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[ref]
	if !ok {
		return models.Transaction{}, false, repo.ErrNotFound
	}
	if t.Status.IsTerminal() {
		return *t, false, nil
	}
	t.Status = status
	now := time.Now()
	t.CompletedAt = &now
	if reason != "" {
		t.LastError = &reason
	}
	if t.CallbackSnapshot == nil {
		t.CallbackSnapshot = snapshot
	}
	if effect, ok := repo.BalanceEffectFor(t.Kind, status); ok {
		key := t.ID + "/" + string(effect)
		if !m.effects[key] {
			m.effects[key] = true
			m.balances[t.UserID] = m.balances[t.UserID].Add(t.Amount)
		}
	}
	return *t, true, nil
}

func (m *memStore) AdminRefund(_ context.Context, ref string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[ref]
	if !ok {
		return models.Transaction{}, repo.ErrNotFound
	}
	switch t.Status {
	case models.TxnCompleted, models.TxnFailed, models.TxnCancelled:
		t.Status = models.TxnRefunded
		return *t, nil
	}
	return models.Transaction{}, repo.ErrStateConflict
}

// Balances

func (m *memStore) GetOrCreate(_ context.Context, userID string) (models.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.Balance{UserID: userID, Amount: m.balances[userID]}, nil
}

func (m *memStore) Get(ctx context.Context, userID string) (models.Balance, error) {
	return m.GetOrCreate(ctx, userID)
}

// AuditLogs

func (m *memStore) Create(_ context.Context, l models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, l)
	return nil
}

func (m *memStore) balance(userID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *memStore) setBalance(userID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = amount
}

func (m *memStore) backdate(ref string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.txns[ref]; ok {
		t.CreatedAt = t.CreatedAt.Add(-d)
	}
}

// fakeGateway stands in for the aggregator client.
type fakeGateway struct {
	mu          sync.Mutex
	depositErr  error
	withdrawErr error
	queryStatus map[string]string
	queryErr    error
	failFor     string
	failErr     error
	queried     []string
}

func (f *fakeGateway) CreateDeposit(_ context.Context, _ models.PaymentChannel, req gateway.DepositRequest) (*gateway.DepositResponse, error) {
	if f.depositErr != nil {
		return nil, f.depositErr
	}
	return &gateway.DepositResponse{
		RawStatus:      "1",
		RedirectURL:    "https://pay.example/r/" + req.ReferenceID,
		QRCodeURL:      "https://pay.example/q/" + req.ReferenceID,
		GatewayOrderID: "G-" + req.ReferenceID,
	}, nil
}

func (f *fakeGateway) CreateWithdrawal(_ context.Context, _ models.PaymentChannel, req gateway.WithdrawalRequest) (*gateway.WithdrawalResponse, error) {
	if f.withdrawErr != nil {
		return nil, f.withdrawErr
	}
	return &gateway.WithdrawalResponse{RawStatus: "1", GatewayOrderID: "T-" + req.ReferenceID}, nil
}

func (f *fakeGateway) QueryStatus(_ context.Context, ref string) (*gateway.QueryStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, ref)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.failFor != "" && ref == f.failFor {
		return nil, f.failErr
	}
	st, ok := f.queryStatus[ref]
	if !ok {
		st = "1"
	}
	return &gateway.QueryStatusResponse{RawStatus: st, RawPayload: []byte(`{"status":"` + st + `"}`)}, nil
}
