package batch

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type BatchRepo interface {
	Create(dbc dbctx.Context, batches []*types.Batch) ([]*types.Batch, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Batch, error)
	GetByProducerIDs(dbc dbctx.Context, producerIDs []uuid.UUID) ([]*types.Batch, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{db: db, log: baseLog.With("repo", "BatchRepo")}
}

func (r *batchRepo) Create(dbc dbctx.Context, batches []*types.Batch) ([]*types.Batch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(batches) == 0 {
		return []*types.Batch{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *batchRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Batch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Batch
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

func (r *batchRepo) GetByProducerIDs(dbc dbctx.Context, producerIDs []uuid.UUID) ([]*types.Batch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Batch
	if len(producerIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("producer_id IN ?", producerIDs).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Batch{}).
		Where("id = ?", id).
		Updates(updates).Error
}
