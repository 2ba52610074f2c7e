package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type ReadingRepo interface {
	// Append inserts readings. Rows are never updated afterwards.
	Append(dbc dbctx.Context, readings []*types.TemperatureReading) ([]*types.TemperatureReading, error)
	// GetByBatch returns readings ordered by timestamp ascending; when
	// limit > 0 only the most recent limit readings are returned.
	GetByBatch(dbc dbctx.Context, batchID uuid.UUID, limit int) ([]*types.TemperatureReading, error)
	GetByBatchAndRange(dbc dbctx.Context, batchID uuid.UUID, start, end time.Time) ([]*types.TemperatureReading, error)
}

type readingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReadingRepo(db *gorm.DB, baseLog *logger.Logger) ReadingRepo {
	return &readingRepo{db: db, log: baseLog.With("repo", "ReadingRepo")}
}

func (r *readingRepo) Append(dbc dbctx.Context, readings []*types.TemperatureReading) ([]*types.TemperatureReading, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(readings) == 0 {
		return []*types.TemperatureReading{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *readingRepo) GetByBatch(dbc dbctx.Context, batchID uuid.UUID, limit int) ([]*types.TemperatureReading, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TemperatureReading
	if limit > 0 {
		// Most recent limit readings, still handed back ascending.
		if err := transaction.WithContext(dbc.Ctx).
			Where("batch_id = ?", batchID).
			Order("timestamp DESC").
			Limit(limit).
			Find(&out).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ?", batchID).
		Order("timestamp ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *readingRepo) GetByBatchAndRange(dbc dbctx.Context, batchID uuid.UUID, start, end time.Time) ([]*types.TemperatureReading, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TemperatureReading
	if err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ? AND timestamp >= ? AND timestamp <= ?", batchID, start, end).
		Order("timestamp ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
