package anchoring

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	anchorrepo "github.com/agrobridge/backend/internal/data/repos/ledgeranchor"
	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
	"github.com/agrobridge/backend/internal/utils"
)

// WorkerConfig tunes the claim loop.
type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
}

func WorkerConfigFromEnv(log *logger.Logger) WorkerConfig {
	return WorkerConfig{
		Interval:    time.Duration(utils.GetEnvAsInt("ANCHOR_WORKER_INTERVAL_SECONDS", 5, log)) * time.Second,
		BatchSize:   utils.GetEnvAsInt("ANCHOR_WORKER_BATCH_SIZE", 10, log),
		Concurrency: utils.GetEnvAsInt("ANCHOR_WORKER_CONCURRENCY", 4, log),
		MaxAttempts: utils.GetEnvAsInt("ANCHOR_WORKER_MAX_ATTEMPTS", 5, log),
		RetryDelay:  time.Duration(utils.GetEnvAsInt("ANCHOR_WORKER_RETRY_DELAY_SECONDS", 60, log)) * time.Second,
	}
}

// Worker drains the anchor_submission queue: it claims queued rows, submits
// their payloads through the adapter and records the outcome. Multiple
// replicas can run concurrently; the claim query locks rows with SKIP LOCKED.
type Worker struct {
	log     *logger.Logger
	repo    anchorrepo.AnchorSubmissionRepo
	adapter Adapter
	cfg     WorkerConfig
}

func NewWorker(log *logger.Logger, repo anchorrepo.AnchorSubmissionRepo, adapter Adapter, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Worker{
		log:     log.With("service", "AnchorWorker"),
		repo:    repo,
		adapter: adapter,
		cfg:     cfg,
	}
}

// Start runs the claim loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Drain(ctx)
			}
		}
	}()
}

// Drain claims and submits up to BatchSize submissions. Exported so tests
// and the dev loop can run a single pass synchronously.
func (w *Worker) Drain(ctx context.Context) {
	c := dbctx.Context{Ctx: ctx}
	var claimed []*types.AnchorSubmission
	for len(claimed) < w.cfg.BatchSize {
		sub, err := w.repo.ClaimNextSubmittable(c, w.cfg.MaxAttempts, w.cfg.RetryDelay)
		if err != nil {
			w.log.Warn("claim failed", "error", err)
			break
		}
		if sub == nil {
			break
		}
		claimed = append(claimed, sub)
	}
	if len(claimed) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, sub := range claimed {
		sub := sub
		g.Go(func() error {
			w.submit(gctx, sub)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Worker) submit(ctx context.Context, sub *types.AnchorSubmission) {
	c := dbctx.Context{Ctx: ctx}
	submissionID, err := w.adapter.Submit(ctx, sub)
	if err != nil {
		w.log.Warn("submit failed",
			"error", err, "submission", sub.ID, "stage_id", sub.StageID, "attempt", sub.Attempts)
		if mErr := w.repo.MarkFailed(c, sub.ID, err); mErr != nil {
			w.log.Error("mark failed errored", "error", mErr, "submission", sub.ID)
		}
		return
	}
	if err := w.repo.MarkSubmitted(c, sub.ID, submissionID); err != nil {
		w.log.Error("mark submitted errored", "error", err, "submission", sub.ID)
		return
	}
	w.log.Info("anchor submitted",
		"submission", sub.ID, "stage_id", sub.StageID, "submission_id", submissionID)

	// Self-confirming adapters publish only after the submission id is on
	// the row, otherwise the confirmer cannot resolve the confirmation.
	if sc, ok := w.adapter.(SelfConfirmer); ok {
		sc.ConfirmSubmitted(ctx, sub, submissionID)
	}
}
