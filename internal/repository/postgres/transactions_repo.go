package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

const txnColumns = `id, reference_id, user_id, kind, amount::text, payment_channel, status,
	gateway_request_snapshot, gateway_response_snapshot, gateway_callback_snapshot,
	retry_count, last_error, created_at, completed_at`

func scanTxn(row pgx.Row) (models.Transaction, error) {
	var (
		t      models.Transaction
		amount string
	)
	err := row.Scan(
		&t.ID, &t.ReferenceID, &t.UserID, &t.Kind, &amount, &t.Channel, &t.Status,
		&t.RequestSnapshot, &t.ResponseSnapshot, &t.CallbackSnapshot,
		&t.RetryCount, &t.LastError, &t.CreatedAt, &t.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, repo.ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	return t, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *transactionsRepo) CreateDeposit(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, reference_id, user_id, kind, amount, payment_channel, status, gateway_request_snapshot)
		VALUES ($1,$2,$3,'deposit',$4,$5,'pending',$6)
		RETURNING `+txnColumns,
		t.ID, t.ReferenceID, t.UserID, t.Amount.StringFixed(2), t.Channel, t.RequestSnapshot,
	)
	created, err := scanTxn(row)
	if isUniqueViolation(err) {
		return models.Transaction{}, repo.ErrDuplicateReference
	}
	return created, err
}

// CreateWithdrawal pre-debits the balance and inserts the pending row in
// one database transaction: the funds check and the debit cannot race a
// concurrent withdrawal on the same user.
func (r *transactionsRepo) CreateWithdrawal(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	dbtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, err
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	_, err = dbtx.Exec(ctx,
		`INSERT INTO balances(user_id, amount, last_updated_at) VALUES($1, 0, now())
		 ON CONFLICT (user_id) DO NOTHING`, t.UserID)
	if err != nil {
		return models.Transaction{}, err
	}

	var current string
	err = dbtx.QueryRow(ctx,
		`SELECT amount::text FROM balances WHERE user_id=$1 FOR UPDATE`, t.UserID,
	).Scan(&current)
	if err != nil {
		return models.Transaction{}, err
	}
	balance, err := decimal.NewFromString(current)
	if err != nil {
		return models.Transaction{}, err
	}
	if balance.LessThan(t.Amount) {
		return models.Transaction{}, repo.ErrInsufficientFunds
	}

	_, err = dbtx.Exec(ctx,
		`UPDATE balances SET amount = amount - $2, last_updated_at = now() WHERE user_id=$1`,
		t.UserID, t.Amount.StringFixed(2),
	)
	if err != nil {
		return models.Transaction{}, err
	}

	row := dbtx.QueryRow(ctx, `
		INSERT INTO transactions (id, reference_id, user_id, kind, amount, payment_channel, status, gateway_request_snapshot)
		VALUES ($1,$2,$3,'withdrawal',$4,$5,'pending',$6)
		RETURNING `+txnColumns,
		t.ID, t.ReferenceID, t.UserID, t.Amount.StringFixed(2), t.Channel, t.RequestSnapshot,
	)
	created, err := scanTxn(row)
	if isUniqueViolation(err) {
		return models.Transaction{}, repo.ErrDuplicateReference
	}
	if err != nil {
		return models.Transaction{}, err
	}
	return created, dbtx.Commit(ctx)
}

func (r *transactionsRepo) GetByReference(ctx context.Context, ref string) (models.Transaction, error) {
	return scanTxn(r.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE reference_id=$1`, ref))
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txnColumns+` FROM transactions
		  WHERE user_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) MarkProcessing(ctx context.Context, ref string, responseSnapshot []byte) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE transactions
		    SET status='processing',
		        gateway_response_snapshot=COALESCE(gateway_response_snapshot, $2)
		  WHERE reference_id=$1 AND status='pending'`,
		ref, responseSnapshot,
	)
	return err
}

func (r *transactionsRepo) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txnColumns+` FROM transactions
		  WHERE status IN ('pending','processing') AND created_at < $1
		  ORDER BY created_at ASC
		  LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) RecordSweepAttempt(ctx context.Context, ref string, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE transactions SET retry_count = retry_count + 1, last_error=$2 WHERE reference_id=$1`,
		ref, lastError,
	)
	return err
}

// Settle is the only path into a terminal status (bar AdminRefund) and
// the only writer of balance effects. The row lock taken here serializes
// a callback racing the sweeper: the loser observes a terminal status
// and returns applied=false without touching the balance.
func (r *transactionsRepo) Settle(ctx context.Context, ref string, status models.TransactionStatus, snapshot []byte, reason string) (models.Transaction, bool, error) {
	if !status.IsTerminal() {
		return models.Transaction{}, false, errors.New("settle requires a terminal status")
	}

	dbtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, false, err
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	current, err := scanTxn(dbtx.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE reference_id=$1 FOR UPDATE`, ref))
	if err != nil {
		return models.Transaction{}, false, err
	}
	if current.Status.IsTerminal() {
		return current, false, nil
	}

	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}
	_, err = dbtx.Exec(ctx,
		`UPDATE transactions
		    SET status=$2,
		        completed_at=now(),
		        last_error=COALESCE($3, last_error),
		        gateway_callback_snapshot=COALESCE(gateway_callback_snapshot, $4)
		  WHERE id=$1`,
		current.ID, status, reasonArg, snapshot,
	)
	if err != nil {
		return models.Transaction{}, false, err
	}

	if effect, ok := repo.BalanceEffectFor(current.Kind, status); ok {
		tag, err := dbtx.Exec(ctx,
			`INSERT INTO applied_effects(transaction_id, effect_kind) VALUES($1,$2)
			 ON CONFLICT DO NOTHING`,
			current.ID, effect,
		)
		if err != nil {
			return models.Transaction{}, false, err
		}
		if tag.RowsAffected() == 1 {
			_, err = dbtx.Exec(ctx,
				`INSERT INTO balances(user_id, amount, last_updated_at) VALUES($1, $2, now())
				 ON CONFLICT (user_id) DO UPDATE
				 SET amount = balances.amount + EXCLUDED.amount, last_updated_at = now()`,
				current.UserID, current.Amount.StringFixed(2),
			)
			if err != nil {
				return models.Transaction{}, false, err
			}
		}
	}

	updated, err := scanTxn(dbtx.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id=$1`, current.ID))
	if err != nil {
		return models.Transaction{}, false, err
	}
	return updated, true, dbtx.Commit(ctx)
}

func (r *transactionsRepo) AdminRefund(ctx context.Context, ref string) (models.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE transactions SET status='refunded'
		  WHERE reference_id=$1 AND status IN ('completed','failed','cancelled')
		 RETURNING `+txnColumns,
		ref,
	)
	t, err := scanTxn(row)
	if errors.Is(err, repo.ErrNotFound) {
		if _, gerr := r.GetByReference(ctx, ref); gerr == nil {
			return models.Transaction{}, repo.ErrStateConflict
		}
		return models.Transaction{}, repo.ErrNotFound
	}
	return t, err
}
