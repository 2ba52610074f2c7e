package ledgeranchor

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type AnchorSubmissionRepo interface {
	Create(dbc dbctx.Context, subs []*types.AnchorSubmission) ([]*types.AnchorSubmission, error)
	GetByStageIDs(dbc dbctx.Context, stageIDs []uuid.UUID) ([]*types.AnchorSubmission, error)
	GetBySubmissionID(dbc dbctx.Context, submissionID string) (*types.AnchorSubmission, error)
	// ClaimNextSubmittable locks one queued or retryable row (SKIP LOCKED)
	// and flips it to submitting so concurrent drains skip it. A submitting
	// row whose locked_at is older than retryDelay counts as abandoned and
	// may be reclaimed. Returns nil when nothing is runnable.
	ClaimNextSubmittable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration) (*types.AnchorSubmission, error)
	MarkSubmitted(dbc dbctx.Context, id uuid.UUID, submissionID string) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, submitErr error) error
	// MarkConfirmed records the anchor ref exactly once; a duplicate
	// confirmation returns false and changes nothing.
	MarkConfirmed(dbc dbctx.Context, id uuid.UUID, anchorRef string) (bool, error)
}

type anchorSubmissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnchorSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) AnchorSubmissionRepo {
	return &anchorSubmissionRepo{db: db, log: baseLog.With("repo", "AnchorSubmissionRepo")}
}

func (r *anchorSubmissionRepo) Create(dbc dbctx.Context, subs []*types.AnchorSubmission) ([]*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(subs) == 0 {
		return []*types.AnchorSubmission{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *anchorSubmissionRepo) GetByStageIDs(dbc dbctx.Context, stageIDs []uuid.UUID) ([]*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnchorSubmission
	if len(stageIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("stage_id IN ?", stageIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *anchorSubmissionRepo) GetBySubmissionID(dbc dbctx.Context, submissionID string) (*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if submissionID == "" {
		return nil, nil
	}
	var sub types.AnchorSubmission
	err := transaction.WithContext(dbc.Ctx).
		Where("submission_id = ?", submissionID).
		Limit(1).
		Find(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == uuid.Nil {
		return nil, nil
	}
	return &sub, nil
}

func (r *anchorSubmissionRepo) ClaimNextSubmittable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration) (*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-retryDelay)
	var claimed *types.AnchorSubmission
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var sub types.AnchorSubmission
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND locked_at IS NOT NULL
            AND locked_at < ?
          )
        )
      `, types.AnchorStatusQueued, types.AnchorStatusFailed, maxAttempts, retryCutoff,
				types.AnchorStatusSubmitting, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&sub).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.AnchorSubmission{}).
			Where("id = ?", sub.ID).
			Updates(map[string]any{
				"status":     types.AnchorStatusSubmitting,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		sub.Status = types.AnchorStatusSubmitting
		sub.Attempts++
		sub.LockedAt = &now
		claimed = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *anchorSubmissionRepo) MarkSubmitted(dbc dbctx.Context, id uuid.UUID, submissionID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnchorSubmission{}).
		Where("id = ? AND status IN ?", id, []string{types.AnchorStatusQueued, types.AnchorStatusSubmitting, types.AnchorStatusFailed}).
		Updates(map[string]any{
			"status":        types.AnchorStatusSubmitted,
			"submission_id": submissionID,
			"last_error":    "",
			"updated_at":    time.Now(),
		}).Error
}

func (r *anchorSubmissionRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, submitErr error) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	msg := ""
	if submitErr != nil {
		msg = submitErr.Error()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnchorSubmission{}).
		Where("id = ? AND status IN ?", id, []string{types.AnchorStatusQueued, types.AnchorStatusSubmitting, types.AnchorStatusFailed}).
		Updates(map[string]any{
			"status":        types.AnchorStatusFailed,
			"last_error":    msg,
			"last_error_at": now,
			"updated_at":    now,
		}).Error
}

func (r *anchorSubmissionRepo) MarkConfirmed(dbc dbctx.Context, id uuid.UUID, anchorRef string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.AnchorSubmission{}).
		Where("id = ? AND status <> ?", id, types.AnchorStatusConfirmed).
		Updates(map[string]any{
			"status":       types.AnchorStatusConfirmed,
			"anchor_ref":   anchorRef,
			"confirmed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
