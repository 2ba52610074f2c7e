package anchoring

import (
	"context"

	"github.com/google/uuid"

	anchorrepo "github.com/agrobridge/backend/internal/data/repos/ledgeranchor"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

// AnchorApplier writes the confirmed anchor ref onto the stage record.
// Implemented by the stage engine.
type AnchorApplier interface {
	ConfirmAnchor(c dbctx.Context, stageID uuid.UUID, anchorRef string) error
}

// Confirmer consumes ledger confirmations and applies them exactly once:
// the submission row flips to confirmed and the stage's anchor_ref is set.
// Duplicate confirmations are no-ops.
type Confirmer struct {
	log     *logger.Logger
	repo    anchorrepo.AnchorSubmissionRepo
	applier AnchorApplier
}

func NewConfirmer(log *logger.Logger, repo anchorrepo.AnchorSubmissionRepo, applier AnchorApplier) *Confirmer {
	return &Confirmer{
		log:     log.With("service", "AnchorConfirmer"),
		repo:    repo,
		applier: applier,
	}
}

// Start subscribes to the confirmation bus until ctx is cancelled.
func (c *Confirmer) Start(ctx context.Context, bus Bus) error {
	return bus.Subscribe(ctx, func(conf Confirmation) {
		c.Handle(ctx, conf)
	})
}

// Handle processes one confirmation.
func (c *Confirmer) Handle(ctx context.Context, conf Confirmation) {
	if conf.SubmissionID == "" || conf.AnchorRef == "" {
		c.log.Warn("discarding malformed confirmation",
			"submission_id", conf.SubmissionID, "anchor_ref", conf.AnchorRef)
		return
	}
	dbc := dbctx.Context{Ctx: ctx}

	sub, err := c.repo.GetBySubmissionID(dbc, conf.SubmissionID)
	if err != nil {
		c.log.Warn("confirmation lookup failed", "error", err, "submission_id", conf.SubmissionID)
		return
	}
	if sub == nil {
		c.log.Warn("confirmation for unknown submission", "submission_id", conf.SubmissionID)
		return
	}

	applied, err := c.repo.MarkConfirmed(dbc, sub.ID, conf.AnchorRef)
	if err != nil {
		c.log.Error("mark confirmed failed", "error", err, "submission", sub.ID)
		return
	}
	if !applied {
		c.log.Debug("duplicate confirmation ignored", "submission", sub.ID)
		return
	}

	if err := c.applier.ConfirmAnchor(dbc, sub.StageID, conf.AnchorRef); err != nil {
		c.log.Error("anchor ref write failed",
			"error", err, "stage_id", sub.StageID, "anchor_ref", conf.AnchorRef)
		return
	}
	c.log.Info("anchor confirmed",
		"stage_id", sub.StageID, "anchor_ref", conf.AnchorRef)
}
