package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	batchrepo "github.com/agrobridge/backend/internal/data/repos/batch"
	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/hashing"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	apperr "github.com/agrobridge/backend/internal/pkg/errors"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

// CreateBatchInput is the intake form for a new produce lot.
type CreateBatchInput struct {
	Variety     string
	Origin      string
	WeightKg    float64
	HarvestDate time.Time
}

type BatchService interface {
	CreateBatch(c dbctx.Context, input CreateBatchInput) (*types.Batch, error)
	GetBatch(c dbctx.Context, batchID uuid.UUID) (*types.Batch, error)
	ListMyBatches(c dbctx.Context) ([]*types.Batch, error)
}

type batchService struct {
	db        *gorm.DB
	log       *logger.Logger
	batchRepo batchrepo.BatchRepo
}

func NewBatchService(db *gorm.DB, baseLog *logger.Logger, batchRepo batchrepo.BatchRepo) BatchService {
	return &batchService{
		db:        db,
		log:       baseLog.With("service", "BatchService"),
		batchRepo: batchRepo,
	}
}

func (s *batchService) CreateBatch(c dbctx.Context, input CreateBatchInput) (*types.Batch, error) {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return nil, err
	}
	if input.Variety == "" || input.Origin == "" {
		return nil, fmt.Errorf("%w: variety and origin are required", apperr.ErrInvalidArgument)
	}
	if input.WeightKg <= 0 {
		return nil, fmt.Errorf("%w: weight must be positive", apperr.ErrInvalidArgument)
	}
	harvestDate := input.HarvestDate
	if harvestDate.IsZero() {
		harvestDate = time.Now().UTC()
	}

	id := uuid.New()
	genesis, err := hashing.Digest(map[string]any{
		"batch_id":     id.String(),
		"producer_id":  rd.UserID.String(),
		"variety":      input.Variety,
		"origin":       input.Origin,
		"weight_kg":    input.WeightKg,
		"harvest_date": hashing.FormatTime(harvestDate),
	})
	if err != nil {
		return nil, err
	}

	b := &types.Batch{
		ID:          id,
		ProducerID:  rd.UserID,
		Variety:     input.Variety,
		Origin:      input.Origin,
		WeightKg:    input.WeightKg,
		HarvestDate: harvestDate,
		Status:      types.BatchStatusActive,
		GenesisHash: genesis,
		QRCode:      fmt.Sprintf("agrobridge://batch/%s?h=%s", id, genesis[:16]),
	}
	if _, err := s.batchRepo.Create(c, []*types.Batch{b}); err != nil {
		s.log.Warn("CreateBatch: create failed", "error", err, "producer_id", rd.UserID)
		return nil, err
	}
	s.log.Info("batch created", "batch_id", b.ID, "variety", b.Variety, "origin", b.Origin)
	return b, nil
}

func (s *batchService) GetBatch(c dbctx.Context, batchID uuid.UUID) (*types.Batch, error) {
	batches, err := s.batchRepo.GetByIDs(c, []uuid.UUID{batchID})
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 || batches[0] == nil {
		return nil, &apperr.NotFoundError{Kind: "batch", ID: batchID}
	}
	return batches[0], nil
}

func (s *batchService) ListMyBatches(c dbctx.Context) ([]*types.Batch, error) {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return nil, err
	}
	return s.batchRepo.GetByProducerIDs(c, []uuid.UUID{rd.UserID})
}
