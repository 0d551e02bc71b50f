package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/payhub-ph/payhub-backend/internal/gateway"
	"github.com/payhub-ph/payhub-backend/internal/metrics"
	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
	"github.com/payhub-ph/payhub-backend/internal/worker"
)

// StatusQuerier is the probe the sweeper needs from the gateway client.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, referenceID string) (*gateway.QueryStatusResponse, error)
}

// Sweeper converges transactions whose callback was lost or delayed.
// It shares the settlement path with the callback handler, so racing a
// live callback is harmless: whoever settles second is a no-op.
type Sweeper struct {
	trx      repo.Transactions
	settle   *SettlementService
	gw       StatusQuerier
	pool     *worker.Pool
	interval time.Duration
	minAge   time.Duration
	maxAge   time.Duration
	log      *slog.Logger
}

func NewSweeper(t repo.Transactions, settle *SettlementService, gw StatusQuerier, pool *worker.Pool, interval, minAge, maxAge time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		trx:      t,
		settle:   settle,
		gw:       gw,
		pool:     pool,
		interval: interval,
		minAge:   minAge,
		maxAge:   maxAge,
		log:      log,
	}
}

// Run loops until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce processes one batch and waits for its jobs to finish. The
// minimum age keeps it from racing callbacks of payments still in
// flight; past the maximum age a transaction is force-failed instead of
// probed forever.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := time.Now()
	batch, err := s.trx.ListUnsettled(ctx, now.Add(-s.minAge), 500)
	if err != nil {
		s.log.Error("sweep list", "err", err)
		return
	}

	var wg sync.WaitGroup
	for _, t := range batch {
		t := t
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			s.reconcile(ctx, t, now)
		})
	}
	wg.Wait()
	metrics.SweepsTotal.Inc()
}

func (s *Sweeper) reconcile(ctx context.Context, t models.Transaction, now time.Time) {
	if t.CreatedAt.Before(now.Add(-s.maxAge)) {
		_, applied, err := s.settle.ForceFail(ctx, t.ReferenceID, "reconciliation timeout")
		if err != nil {
			s.log.Error("sweep force-fail", "ref", t.ReferenceID, "err", err)
			return
		}
		if applied {
			metrics.SweepSettledTotal.WithLabelValues(string(models.TxnFailed)).Inc()
		}
		return
	}

	resp, err := s.gw.QueryStatus(ctx, t.ReferenceID)
	if err != nil {
		// Per-transaction failures never abort the sweep; the next run
		// re-probes.
		s.log.Warn("sweep query", "ref", t.ReferenceID, "err", err)
		if rerr := s.trx.RecordSweepAttempt(ctx, t.ReferenceID, err.Error()); rerr != nil {
			s.log.Error("sweep record attempt", "ref", t.ReferenceID, "err", rerr)
		}
		return
	}

	settled, applied, err := s.settle.Apply(ctx, t.ReferenceID, resp.RawStatus, resp.RawPayload, "sweeper")
	if err != nil {
		s.log.Error("sweep settle", "ref", t.ReferenceID, "err", err)
		return
	}
	if applied {
		metrics.SweepSettledTotal.WithLabelValues(string(settled.Status)).Inc()
	}
}
