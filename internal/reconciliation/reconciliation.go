package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/sacco-management/internal"
	callbackLogDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/callbacklog"
	transactionDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/transaction"
	"github.com/frahmantamala/sacco-management/internal/payment"
	"github.com/robfig/cron/v3"
)

type PendingLister interface {
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*transactionDatamodel.PendingTransaction, error)
	ListConfirmedPending(ctx context.Context, before time.Time, limit int) ([]*transactionDatamodel.PendingTransaction, error)
}

type CallbackFinder interface {
	LatestSuccess(ctx context.Context, correlationID string) (*callbackLogDatamodel.CallbackLog, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, correlationID string) (*payment.ReconcileResponse, error)
}

// Summary counts what one sweep did with the stale rows it found.
type Summary struct {
	Scanned  int
	Settled  int
	Awaiting int
	Failed   int
}

// Sweeper periodically looks for push payments that never reached a terminal
// state. Rows with a logged success confirmation are settled again; the rest
// are reported as still awaiting the gateway.
type Sweeper struct {
	cfg        internal.ReconciliationConfig
	pending    PendingLister
	callbacks  CallbackFinder
	reconciler Reconciler
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweeper(cfg internal.ReconciliationConfig, pending PendingLister, callbacks CallbackFinder, reconciler Reconciler, logger *slog.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		cfg:        cfg,
		pending:    pending,
		callbacks:  callbacks,
		reconciler: reconciler,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	var summary Summary

	// Settling only looks at confirmed rows; abandoned pushes would otherwise
	// occupy the oldest slots of every batch forever.
	list := s.pending.ListStalePending
	if s.cfg.AutoSettle {
		list = s.pending.ListConfirmedPending
	}
	cutoff := s.now().UTC().Add(-s.cfg.StaleAfter)
	rows, err := list(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("reconciliation: %w", err)
	}
	summary.Scanned = len(rows)

	for _, txn := range rows {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		logger := s.logger.With("correlation_id", txn.CorrelationID, "created_at", txn.CreatedAt)

		if _, err := s.callbacks.LatestSuccess(ctx, txn.CorrelationID); err != nil {
			if errors.Is(err, payment.ErrCallbackNotFound) {
				summary.Awaiting++
				logger.Warn("pending payment still awaiting confirmation", "age", s.now().Sub(txn.CreatedAt).Round(time.Second))
				continue
			}
			summary.Failed++
			logger.Error("failed to read callbacks during reconciliation", "error", err)
			continue
		}

		if !s.cfg.AutoSettle {
			summary.Awaiting++
			logger.Warn("pending payment has a logged confirmation; operator reconciliation required")
			continue
		}

		resp, err := s.reconciler.Reconcile(ctx, txn.CorrelationID)
		if err != nil {
			summary.Failed++
			logger.Error("automatic reconciliation failed", "error", err)
			continue
		}
		summary.Settled++
		logger.Info("pending payment reconciled", "outcome", resp.Outcome)
	}

	s.logger.Info("reconciliation sweep finished",
		"scanned", summary.Scanned,
		"settled", summary.Settled,
		"awaiting", summary.Awaiting,
		"failed", summary.Failed)
	return summary, nil
}

// Run schedules Sweep and blocks until ctx is canceled. A sweep in progress
// is allowed to finish before Run returns.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("reconciliation sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconciliation schedule %q: %w", s.cfg.Schedule, err)
	}

	s.logger.Info("reconciliation worker started",
		"schedule", s.cfg.Schedule,
		"stale_after", s.cfg.StaleAfter.String(),
		"auto_settle", s.cfg.AutoSettle)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("reconciliation worker stopped")
	return nil
}
