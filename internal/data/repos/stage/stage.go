package stage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type StageRepo interface {
	Create(dbc dbctx.Context, s *types.VerificationStage) (*types.VerificationStage, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.VerificationStage, error)
	GetByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.VerificationStage, error)
	FindOne(dbc dbctx.Context, batchID uuid.UUID, stageType types.StageType) (*types.VerificationStage, error)
	// UpdateFieldsUnanchored applies updates only while anchor_ref is null.
	// Returns false when the row exists but is anchored (store-level guard,
	// defense in depth under the engine-level check).
	UpdateFieldsUnanchored(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error)
	// SetAnchorRef performs the write-once anchor transition. Returns false
	// when anchor_ref was already set; callers treat that as a no-op.
	SetAnchorRef(dbc dbctx.Context, id uuid.UUID, anchorRef string) (bool, error)
}

// IsUniqueViolation reports whether err is the postgres unique-key conflict
// raised when two writers race on (batch_id, stage_type).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type stageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageRepo(db *gorm.DB, baseLog *logger.Logger) StageRepo {
	return &stageRepo{db: db, log: baseLog.With("repo", "StageRepo")}
}

func (r *stageRepo) Create(dbc dbctx.Context, s *types.VerificationStage) (*types.VerificationStage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *stageRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.VerificationStage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VerificationStage
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stageRepo) GetByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.VerificationStage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VerificationStage
	if err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ?", batchID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stageRepo) FindOne(dbc dbctx.Context, batchID uuid.UUID, stageType types.StageType) (*types.VerificationStage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.VerificationStage
	err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ? AND stage_type = ?", batchID, stageType).
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *stageRepo) UpdateFieldsUnanchored(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		updates = map[string]any{"updated_at": time.Now()}
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.VerificationStage{}).
		Where("id = ? AND anchor_ref IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stageRepo) SetAnchorRef(dbc dbctx.Context, id uuid.UUID, anchorRef string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.VerificationStage{}).
		Where("id = ? AND anchor_ref IS NULL", id).
		Updates(map[string]any{
			"anchor_ref": anchorRef,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
