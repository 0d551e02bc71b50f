package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/payhub-ph/payhub-backend/internal/db"
	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
	"github.com/payhub-ph/payhub-backend/internal/repository/postgres"
)

func setupRepos(t *testing.T) postgres.Repositories {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.RunMigrations(ctx, pool); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	_, err = pool.Exec(ctx, `TRUNCATE transactions, balances, applied_effects, audit_logs, users`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return postgres.NewRepositories(pool)
}

func newTxn(userID, ref, amount string) models.Transaction {
	return models.Transaction{
		ReferenceID: ref,
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		Channel:     models.ChannelGCashQR,
	}
}

func fundUser(t *testing.T, repos postgres.Repositories, userID, amount string) {
	t.Helper()
	ctx := context.Background()
	// seed via a settled deposit so the balance row exists
	ref := "SEED" + uuid.NewString()[:8]
	if _, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, ref, amount)); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	if _, _, err := repos.Transactions.Settle(ctx, ref, models.TxnCompleted, nil, ""); err != nil {
		t.Fatalf("seed settle: %v", err)
	}
}

func balanceOf(t *testing.T, repos postgres.Repositories, userID string) decimal.Decimal {
	t.Helper()
	b, err := repos.Balances.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b.Amount
}

func TestSettleCreditsDepositExactlyOnce(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, "DEP001", "500.00")); err != nil {
		t.Fatal(err)
	}
	if err := repos.Transactions.MarkProcessing(ctx, "DEP001", []byte(`{"status":"1"}`)); err != nil {
		t.Fatal(err)
	}

	got, applied, err := repos.Transactions.Settle(ctx, "DEP001", models.TxnCompleted, []byte(`{"status":"5"}`), "")
	if err != nil || !applied {
		t.Fatalf("first settle: applied=%v err=%v", applied, err)
	}
	if got.Status != models.TxnCompleted || got.CompletedAt == nil {
		t.Fatalf("settled = %+v", got)
	}

	got, applied, err = repos.Transactions.Settle(ctx, "DEP001", models.TxnCompleted, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("second settle reported applied")
	}
	if got.Status != models.TxnCompleted {
		t.Fatalf("status = %s", got.Status)
	}

	if b := balanceOf(t, repos, userID); !b.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("balance = %s, want 500.00", b)
	}
}

func TestSettleConcurrentReportsApplyOnce(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, "DEP002", "250.00")); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, applied, err := repos.Transactions.Settle(ctx, "DEP002", models.TxnCompleted, nil, "")
			if err != nil {
				t.Error(err)
				return
			}
			results <- applied
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for a := range results {
		if a {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("applied %d times, want exactly 1", applied)
	}
	if b := balanceOf(t, repos, userID); !b.Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("balance = %s, want 250.00", b)
	}
}

func TestCreateWithdrawalPreDebits(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()
	fundUser(t, repos, userID, "500.00")

	w := newTxn(userID, "WDR001", "200.00")
	if _, err := repos.Transactions.CreateWithdrawal(ctx, w); err != nil {
		t.Fatal(err)
	}
	if b := balanceOf(t, repos, userID); !b.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("balance = %s, want 300.00 after pre-debit", b)
	}

	// failure refunds the pre-debit, once
	for i := 0; i < 2; i++ {
		if _, _, err := repos.Transactions.Settle(ctx, "WDR001", models.TxnFailed, nil, "gateway failure"); err != nil {
			t.Fatal(err)
		}
	}
	if b := balanceOf(t, repos, userID); !b.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("balance = %s, want 500.00 after refund", b)
	}
}

func TestCreateWithdrawalInsufficientFunds(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()
	fundUser(t, repos, userID, "50.00")

	_, err := repos.Transactions.CreateWithdrawal(ctx, newTxn(userID, "WDR002", "200.00"))
	if !errors.Is(err, repo.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if b := balanceOf(t, repos, userID); !b.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("balance = %s, want untouched 50.00", b)
	}
	if _, err := repos.Transactions.GetByReference(ctx, "WDR002"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected withdrawal left a row: %v", err)
	}
}

func TestDuplicateReference(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, "DEP003", "100.00")); err != nil {
		t.Fatal(err)
	}
	_, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, "DEP003", "100.00"))
	if !errors.Is(err, repo.ErrDuplicateReference) {
		t.Fatalf("err = %v, want ErrDuplicateReference", err)
	}
}

func TestListUnsettledFiltersTerminalAndFresh(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()

	for _, ref := range []string{"OLD1", "OLD2", "FRESH"} {
		if _, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, ref, "10.00")); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := repos.Transactions.Settle(ctx, "OLD2", models.TxnCancelled, nil, ""); err != nil {
		t.Fatal(err)
	}

	// everything was created "now"; a cutoff in the future catches the
	// open rows, a cutoff in the past catches nothing
	got, err := repos.Transactions.ListUnsettled(ctx, time.Now().Add(time.Minute), 100)
	if err != nil {
		t.Fatal(err)
	}
	refs := map[string]bool{}
	for _, tx := range got {
		refs[tx.ReferenceID] = true
	}
	if !refs["OLD1"] || !refs["FRESH"] || refs["OLD2"] {
		t.Fatalf("unsettled = %v", refs)
	}

	got, err = repos.Transactions.ListUnsettled(ctx, time.Now().Add(-time.Minute), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("past cutoff returned %d rows", len(got))
	}
}

func TestRecordSweepAttempt(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, "DEP004", "10.00")); err != nil {
		t.Fatal(err)
	}
	if err := repos.Transactions.RecordSweepAttempt(ctx, "DEP004", "probe timeout"); err != nil {
		t.Fatal(err)
	}
	got, err := repos.Transactions.GetByReference(ctx, "DEP004")
	if err != nil {
		t.Fatal(err)
	}
	if got.RetryCount != 1 || got.LastError == nil || *got.LastError != "probe timeout" {
		t.Fatalf("attempt not recorded: %+v", got)
	}
}

func TestAdminRefundRequiresTerminalStatus(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := repos.Transactions.CreateDeposit(ctx, newTxn(userID, "DEP005", "100.00")); err != nil {
		t.Fatal(err)
	}

	if _, err := repos.Transactions.AdminRefund(ctx, "DEP005"); !errors.Is(err, repo.ErrStateConflict) {
		t.Fatalf("refund of pending err = %v, want ErrStateConflict", err)
	}
	if _, err := repos.Transactions.AdminRefund(ctx, "MISSING"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("refund of missing err = %v, want ErrNotFound", err)
	}

	if _, _, err := repos.Transactions.Settle(ctx, "DEP005", models.TxnCompleted, nil, ""); err != nil {
		t.Fatal(err)
	}
	got, err := repos.Transactions.AdminRefund(ctx, "DEP005")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TxnRefunded {
		t.Fatalf("status = %s, want refunded", got.Status)
	}

	if _, err := repos.Transactions.AdminRefund(ctx, "DEP005"); !errors.Is(err, repo.ErrStateConflict) {
		t.Fatalf("double refund err = %v, want ErrStateConflict", err)
	}
}
