package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	anchorrepo "github.com/agrobridge/backend/internal/data/repos/ledgeranchor"
	batchrepo "github.com/agrobridge/backend/internal/data/repos/batch"
	stagerepo "github.com/agrobridge/backend/internal/data/repos/stage"
	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/domain/ledgeranchor"
	"github.com/agrobridge/backend/internal/domain/stage"
	"github.com/agrobridge/backend/internal/hashing"
	"github.com/agrobridge/backend/internal/pkg/ctxutil"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	apperr "github.com/agrobridge/backend/internal/pkg/errors"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

// StageInput carries the caller-supplied fields for a new stage record.
type StageInput struct {
	LocationName string
	Lat          *float64
	Lon          *float64
	Notes        string
	EvidenceURL  string
	Completed    bool
}

// StagePatch is a partial update. Nil fields are left untouched.
type StagePatch struct {
	Status       *string
	LocationName *string
	Lat          *float64
	Lon          *float64
	Notes        *string
	EvidenceURL  *string
}

type StageEngineService interface {
	CreateNextStage(c dbctx.Context, batchID uuid.UUID, input StageInput) (*types.VerificationStage, error)
	CreateSpecificStage(c dbctx.Context, batchID uuid.UUID, stageType types.StageType, input StageInput) (*types.VerificationStage, error)
	UpdateStage(c dbctx.Context, stageID uuid.UUID, patch StagePatch) (*types.VerificationStage, error)
	GetBatchStages(c dbctx.Context, batchID uuid.UUID) ([]*types.VerificationStage, error)
	FinalizeBatch(c dbctx.Context, batchID uuid.UUID) (*types.Batch, error)
	ConfirmAnchor(c dbctx.Context, stageID uuid.UUID, anchorRef string) error
}

type stageEngineService struct {
	db         *gorm.DB
	log        *logger.Logger
	batchRepo  batchrepo.BatchRepo
	stageRepo  stagerepo.StageRepo
	anchorRepo anchorrepo.AnchorSubmissionRepo
}

func NewStageEngineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	batchRepo batchrepo.BatchRepo,
	stageRepo stagerepo.StageRepo,
	anchorRepo anchorrepo.AnchorSubmissionRepo,
) StageEngineService {
	return &stageEngineService{
		db:         db,
		log:        baseLog.With("service", "StageEngineService"),
		batchRepo:  batchRepo,
		stageRepo:  stageRepo,
		anchorRepo: anchorRepo,
	}
}

func (s *stageEngineService) CreateNextStage(c dbctx.Context, batchID uuid.UUID, input StageInput) (*types.VerificationStage, error) {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return nil, err
	}
	b, stages, err := s.loadBatchWithStages(c, batchID)
	if err != nil {
		return nil, err
	}

	next, err := nextStageType(stages)
	if err != nil {
		return nil, err
	}
	if existing := findStage(stages, next); existing != nil {
		return s.reopenOrReject(c, rd, existing, input)
	}
	return s.createStage(c, rd, b, next, input, false)
}

func (s *stageEngineService) CreateSpecificStage(c dbctx.Context, batchID uuid.UUID, stageType types.StageType, input StageInput) (*types.VerificationStage, error) {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return nil, err
	}
	if !stage.Valid(stageType) {
		return nil, fmt.Errorf("%w: unknown stage type %q", apperr.ErrInvalidArgument, stageType)
	}
	b, stages, err := s.loadBatchWithStages(c, batchID)
	if err != nil {
		return nil, err
	}

	if existing := findStage(stages, stageType); existing != nil {
		if existing.Status == stage.StatusRejected && existing.Attempts < stage.MaxAttempts {
			return s.reopenOrReject(c, rd, existing, input)
		}
		return nil, &apperr.StageAlreadyExistsError{
			BatchID:    batchID,
			StageType:  string(stageType),
			ExistingID: existing.ID,
		}
	}

	expected, nextErr := nextStageType(stages)
	outOfOrder := nextErr != nil || expected != stageType
	if outOfOrder && !canActOutOfOrder(rd) {
		exp := ""
		if nextErr == nil {
			exp = string(expected)
		}
		return nil, &apperr.OutOfOrderError{
			BatchID:   batchID,
			Requested: string(stageType),
			Expected:  exp,
		}
	}
	return s.createStage(c, rd, b, stageType, input, outOfOrder)
}

func (s *stageEngineService) UpdateStage(c dbctx.Context, stageID uuid.UUID, patch StagePatch) (*types.VerificationStage, error) {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.loadStage(c, stageID)
	if err != nil {
		return nil, err
	}
	if st.ActorID != rd.UserID && !canActOutOfOrder(rd) {
		return nil, &apperr.InsufficientPermissionsError{UserID: rd.UserID, Action: "update stage"}
	}
	if st.Anchored() {
		return nil, &apperr.ImmutableStageError{StageID: st.ID, AnchorRef: *st.AnchorRef}
	}

	updates := map[string]any{}
	if patch.Status != nil {
		status := *patch.Status
		if !stage.ValidStatus(status) {
			return nil, fmt.Errorf("%w: unknown stage status %q", apperr.ErrInvalidArgument, status)
		}
		updates["status"] = status
		if status == stage.StatusCompleted {
			updates["completed_at"] = time.Now().UTC().Truncate(time.Microsecond)
		}
	}
	if patch.LocationName != nil {
		updates["location_name"] = *patch.LocationName
	}
	if patch.Lat != nil {
		updates["lat"] = *patch.Lat
	}
	if patch.Lon != nil {
		updates["lon"] = *patch.Lon
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.EvidenceURL != nil {
		updates["evidence_url"] = *patch.EvidenceURL
	}
	if len(updates) == 0 {
		return st, nil
	}

	applied, err := s.stageRepo.UpdateFieldsUnanchored(c, stageID, updates)
	if err != nil {
		s.log.Warn("UpdateStage: update failed", "error", err, "stage_id", stageID)
		return nil, err
	}
	if !applied {
		// Lost the race with the anchor confirmer.
		st, err = s.loadStage(c, stageID)
		if err != nil {
			return nil, err
		}
		if st.Anchored() {
			return nil, &apperr.ImmutableStageError{StageID: st.ID, AnchorRef: *st.AnchorRef}
		}
		return nil, fmt.Errorf("stage %s update not applied", stageID)
	}

	st, err = s.loadStage(c, stageID)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil && *patch.Status == stage.StatusCompleted {
		if err := s.advanceBatchCursor(c, st); err != nil {
			s.log.Warn("UpdateStage: cursor advance failed", "error", err, "batch_id", st.BatchID)
		}
	}
	return st, nil
}

func (s *stageEngineService) GetBatchStages(c dbctx.Context, batchID uuid.UUID) ([]*types.VerificationStage, error) {
	if _, _, err := s.loadBatchWithStages(c, batchID); err != nil {
		return nil, err
	}
	stages, err := s.stageRepo.GetByBatch(c, batchID)
	if err != nil {
		return nil, err
	}
	sortStages(stages)
	return stages, nil
}

func (s *stageEngineService) FinalizeBatch(c dbctx.Context, batchID uuid.UUID) (*types.Batch, error) {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return nil, err
	}
	b, stages, err := s.loadBatchWithStages(c, batchID)
	if err != nil {
		return nil, err
	}
	if b.ProducerID != rd.UserID && !canActOutOfOrder(rd) {
		return nil, &apperr.InsufficientPermissionsError{UserID: rd.UserID, Action: "finalize batch"}
	}

	var incomplete []string
	for _, t := range stage.Order {
		st := findStage(stages, t)
		if st == nil || st.Status != stage.StatusCompleted {
			incomplete = append(incomplete, string(t))
		}
	}
	if len(incomplete) > 0 {
		return nil, &apperr.IncompleteLifecycleError{BatchID: batchID, Incomplete: incomplete}
	}

	if err := s.batchRepo.UpdateFields(c, batchID, map[string]any{"status": types.BatchStatusFinalized}); err != nil {
		return nil, err
	}
	b.Status = types.BatchStatusFinalized
	s.log.Info("batch finalized", "batch_id", batchID)
	return b, nil
}

// ConfirmAnchor is invoked by the anchoring confirmer once the ledger
// acknowledges a submission. The anchor ref is write-once.
func (s *stageEngineService) ConfirmAnchor(c dbctx.Context, stageID uuid.UUID, anchorRef string) error {
	if anchorRef == "" {
		return fmt.Errorf("%w: empty anchor ref", apperr.ErrInvalidArgument)
	}
	applied, err := s.stageRepo.SetAnchorRef(c, stageID, anchorRef)
	if err != nil {
		return err
	}
	if !applied {
		s.log.Debug("ConfirmAnchor: anchor ref already set", "stage_id", stageID)
	}
	return nil
}

func (s *stageEngineService) createStage(c dbctx.Context, rd *ctxutil.RequestData, b *types.Batch, stageType types.StageType, input StageInput, outOfOrder bool) (*types.VerificationStage, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	st := &types.VerificationStage{
		ID:           uuid.New(),
		BatchID:      b.ID,
		StageType:    stageType,
		Status:       stage.StatusInProgress,
		ActorID:      rd.UserID,
		ActorRole:    rd.Role,
		LocationName: input.LocationName,
		Lat:          input.Lat,
		Lon:          input.Lon,
		Notes:        input.Notes,
		EvidenceURL:  input.EvidenceURL,
		Attempts:     1,
		OutOfOrder:   outOfOrder,
	}
	if input.Completed {
		st.Status = stage.StatusCompleted
		completedAt := now
		st.CompletedAt = &completedAt
	}

	err := s.transaction(c, func(tc dbctx.Context) error {
		if _, err := s.stageRepo.Create(tc, st); err != nil {
			if stagerepo.IsUniqueViolation(err) {
				existing, ferr := s.stageRepo.FindOne(tc, b.ID, stageType)
				if ferr == nil && existing != nil {
					return &apperr.StageAlreadyExistsError{
						BatchID:    b.ID,
						StageType:  string(stageType),
						ExistingID: existing.ID,
					}
				}
			}
			return err
		}
		if err := s.enqueueAnchor(tc, st); err != nil {
			return err
		}
		return s.batchRepo.UpdateFields(tc, b.ID, map[string]any{"current_stage_type": string(stageType)})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stage created",
		"batch_id", b.ID, "stage_type", stageType, "out_of_order", outOfOrder)
	return st, nil
}

// reopenOrReject handles the single-retry rule: a rejected stage can be
// reopened once by a new attempt, a second rejection is terminal.
func (s *stageEngineService) reopenOrReject(c dbctx.Context, rd *ctxutil.RequestData, existing *types.VerificationStage, input StageInput) (*types.VerificationStage, error) {
	if existing.Status != stage.StatusRejected {
		return nil, &apperr.StageAlreadyExistsError{
			BatchID:    existing.BatchID,
			StageType:  string(existing.StageType),
			ExistingID: existing.ID,
		}
	}
	if existing.Attempts >= stage.MaxAttempts {
		s.log.Warn("stage rejected terminally, flagging batch",
			"batch_id", existing.BatchID, "stage_type", existing.StageType)
		if err := s.batchRepo.UpdateFields(c, existing.BatchID, map[string]any{"status": types.BatchStatusFlagged}); err != nil {
			return nil, err
		}
		return nil, &apperr.StageTerminallyRejectedError{
			BatchID:   existing.BatchID,
			StageType: string(existing.StageType),
		}
	}
	if existing.Anchored() {
		return nil, &apperr.ImmutableStageError{StageID: existing.ID, AnchorRef: *existing.AnchorRef}
	}

	updates := map[string]any{
		"status":     stage.StatusInProgress,
		"attempts":   existing.Attempts + 1,
		"actor_id":   rd.UserID,
		"actor_role": rd.Role,
	}
	if input.LocationName != "" {
		updates["location_name"] = input.LocationName
	}
	if input.Notes != "" {
		updates["notes"] = input.Notes
	}
	if input.EvidenceURL != "" {
		updates["evidence_url"] = input.EvidenceURL
	}
	if input.Completed {
		updates["status"] = stage.StatusCompleted
		updates["completed_at"] = time.Now().UTC().Truncate(time.Microsecond)
	}
	applied, err := s.stageRepo.UpdateFieldsUnanchored(c, existing.ID, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, &apperr.ImmutableStageError{StageID: existing.ID, AnchorRef: ""}
	}
	s.log.Info("stage reopened",
		"batch_id", existing.BatchID, "stage_type", existing.StageType, "attempt", existing.Attempts+1)
	return s.loadStage(c, existing.ID)
}

func (s *stageEngineService) enqueueAnchor(c dbctx.Context, st *types.VerificationStage) error {
	payload, digest, err := anchorPayload(st)
	if err != nil {
		return err
	}
	sub := &types.AnchorSubmission{
		ID:          uuid.New(),
		StageID:     st.ID,
		BatchID:     st.BatchID,
		Payload:     payload,
		PayloadHash: digest,
		Status:      ledgeranchor.StatusQueued,
	}
	_, err = s.anchorRepo.Create(c, []*types.AnchorSubmission{sub})
	return err
}

func (s *stageEngineService) advanceBatchCursor(c dbctx.Context, st *types.VerificationStage) error {
	b, _, err := s.loadBatchWithStages(c, st.BatchID)
	if err != nil {
		return err
	}
	if stage.Rank(types.StageType(b.CurrentStageType)) >= stage.Rank(st.StageType) {
		return nil
	}
	return s.batchRepo.UpdateFields(c, st.BatchID, map[string]any{"current_stage_type": string(st.StageType)})
}

func (s *stageEngineService) loadBatchWithStages(c dbctx.Context, batchID uuid.UUID) (*types.Batch, []*types.VerificationStage, error) {
	batches, err := s.batchRepo.GetByIDs(c, []uuid.UUID{batchID})
	if err != nil {
		return nil, nil, err
	}
	if len(batches) == 0 || batches[0] == nil {
		return nil, nil, &apperr.NotFoundError{Kind: "batch", ID: batchID}
	}
	stages, err := s.stageRepo.GetByBatch(c, batchID)
	if err != nil {
		return nil, nil, err
	}
	return batches[0], stages, nil
}

func (s *stageEngineService) loadStage(c dbctx.Context, stageID uuid.UUID) (*types.VerificationStage, error) {
	stages, err := s.stageRepo.GetByIDs(c, []uuid.UUID{stageID})
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 || stages[0] == nil {
		return nil, &apperr.NotFoundError{Kind: "stage", ID: stageID}
	}
	return stages[0], nil
}

func (s *stageEngineService) transaction(c dbctx.Context, fn func(dbctx.Context) error) error {
	if c.Tx != nil || s.db == nil {
		return fn(c)
	}
	return s.db.WithContext(c.Ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: c.Ctx, Tx: tx})
	})
}

// anchorPayload builds the canonical JSON submitted to the ledger for a
// stage, plus its digest.
func anchorPayload(st *types.VerificationStage) ([]byte, string, error) {
	doc := map[string]any{
		"stage_id":   st.ID.String(),
		"batch_id":   st.BatchID.String(),
		"stage_type": string(st.StageType),
		"status":     st.Status,
		"actor_id":   st.ActorID.String(),
		"attempt":    st.Attempts,
	}
	if st.CompletedAt != nil {
		doc["completed_at"] = hashing.FormatTime(*st.CompletedAt)
	}
	canonical, err := hashing.Canonicalize(doc)
	if err != nil {
		return nil, "", err
	}
	return canonical, hashing.HashBytes(canonical), nil
}

// nextStageType returns the smallest stage type strictly after the highest
// COMPLETED one, so a sequence with admin-skipped gaps keeps advancing from
// its frontier instead of falling back to the gap. Fails once the final
// stage has completed.
func nextStageType(stages []*types.VerificationStage) (types.StageType, error) {
	highest := -1
	for _, st := range stages {
		if st == nil || st.Status != stage.StatusCompleted {
			continue
		}
		if r := stage.Rank(st.StageType); r > highest {
			highest = r
		}
	}
	if highest >= len(stage.Order)-1 {
		return "", fmt.Errorf("%w: lifecycle already at %s", apperr.ErrInvalidArgument, stage.Order[len(stage.Order)-1])
	}
	return stage.Order[highest+1], nil
}

func findStage(stages []*types.VerificationStage, t types.StageType) *types.VerificationStage {
	for _, st := range stages {
		if st != nil && st.StageType == t {
			return st
		}
	}
	return nil
}

func sortStages(stages []*types.VerificationStage) {
	sort.SliceStable(stages, func(i, j int) bool {
		return stage.Rank(stages[i].StageType) < stage.Rank(stages[j].StageType)
	})
}

func requireActor(ctx context.Context) (*ctxutil.RequestData, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	return rd, nil
}

func canActOutOfOrder(rd *ctxutil.RequestData) bool {
	return rd != nil && rd.Role == types.RoleAdmin
}
