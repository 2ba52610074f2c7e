package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/domain/ledgeranchor"
	"github.com/agrobridge/backend/internal/pkg/ctxutil"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

func testLogger() *logger.Logger {
	log, _ := logger.New("test")
	return log
}

func actorCtx(userID uuid.UUID, role string) dbctx.Context {
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID, Role: role})
	return dbctx.Context{Ctx: ctx}
}

type fakeBatchRepo struct {
	batches map[uuid.UUID]*types.Batch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: map[uuid.UUID]*types.Batch{}}
}

func (f *fakeBatchRepo) Create(_ dbctx.Context, batches []*types.Batch) ([]*types.Batch, error) {
	for _, b := range batches {
		cp := *b
		f.batches[b.ID] = &cp
	}
	return batches, nil
}

func (f *fakeBatchRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Batch, error) {
	var out []*types.Batch
	for _, id := range ids {
		if b, ok := f.batches[id]; ok {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) GetByProducerIDs(_ dbctx.Context, producerIDs []uuid.UUID) ([]*types.Batch, error) {
	var out []*types.Batch
	for _, b := range f.batches {
		for _, pid := range producerIDs {
			if b.ProducerID == pid {
				cp := *b
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]any) error {
	b, ok := f.batches[id]
	if !ok {
		return fmt.Errorf("batch %s not found", id)
	}
	for k, v := range updates {
		switch k {
		case "status":
			b.Status = v.(string)
		case "current_stage_type":
			b.CurrentStageType = v.(string)
		}
	}
	return nil
}

type fakeStageRepo struct {
	stages    map[uuid.UUID]*types.VerificationStage
	createErr error
}

func newFakeStageRepo() *fakeStageRepo {
	return &fakeStageRepo{stages: map[uuid.UUID]*types.VerificationStage{}}
}

func (f *fakeStageRepo) Create(_ dbctx.Context, s *types.VerificationStage) (*types.VerificationStage, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.stages {
		if existing.BatchID == s.BatchID && existing.StageType == s.StageType {
			return nil, fmt.Errorf("duplicate stage %s for batch %s", s.StageType, s.BatchID)
		}
	}
	cp := *s
	f.stages[s.ID] = &cp
	return s, nil
}

func (f *fakeStageRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.VerificationStage, error) {
	var out []*types.VerificationStage
	for _, id := range ids {
		if s, ok := f.stages[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStageRepo) GetByBatch(_ dbctx.Context, batchID uuid.UUID) ([]*types.VerificationStage, error) {
	var out []*types.VerificationStage
	for _, s := range f.stages {
		if s.BatchID == batchID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStageRepo) FindOne(_ dbctx.Context, batchID uuid.UUID, stageType types.StageType) (*types.VerificationStage, error) {
	for _, s := range f.stages {
		if s.BatchID == batchID && s.StageType == stageType {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStageRepo) UpdateFieldsUnanchored(_ dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	s, ok := f.stages[id]
	if !ok {
		return false, fmt.Errorf("stage %s not found", id)
	}
	if s.AnchorRef != nil && *s.AnchorRef != "" {
		return false, nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			s.Status = v.(string)
		case "attempts":
			s.Attempts = v.(int)
		case "actor_id":
			s.ActorID = v.(uuid.UUID)
		case "actor_role":
			s.ActorRole = v.(string)
		case "location_name":
			s.LocationName = v.(string)
		case "lat":
			val := v.(float64)
			s.Lat = &val
		case "lon":
			val := v.(float64)
			s.Lon = &val
		case "notes":
			s.Notes = v.(string)
		case "evidence_url":
			s.EvidenceURL = v.(string)
		case "completed_at":
			t := v.(time.Time)
			s.CompletedAt = &t
		}
	}
	return true, nil
}

func (f *fakeStageRepo) SetAnchorRef(_ dbctx.Context, id uuid.UUID, anchorRef string) (bool, error) {
	s, ok := f.stages[id]
	if !ok {
		return false, fmt.Errorf("stage %s not found", id)
	}
	if s.AnchorRef != nil && *s.AnchorRef != "" {
		return false, nil
	}
	s.AnchorRef = &anchorRef
	return true, nil
}

// complete marks the stage row COMPLETED directly, bypassing the engine.
func (f *fakeStageRepo) complete(id uuid.UUID, at time.Time) {
	s := f.stages[id]
	s.Status = types.StageStatusCompleted
	t := at.UTC().Truncate(time.Microsecond)
	s.CompletedAt = &t
}

type fakeAnchorRepo struct {
	subs map[uuid.UUID]*types.AnchorSubmission
}

func newFakeAnchorRepo() *fakeAnchorRepo {
	return &fakeAnchorRepo{subs: map[uuid.UUID]*types.AnchorSubmission{}}
}

func (f *fakeAnchorRepo) Create(_ dbctx.Context, subs []*types.AnchorSubmission) ([]*types.AnchorSubmission, error) {
	for _, sub := range subs {
		cp := *sub
		f.subs[sub.ID] = &cp
	}
	return subs, nil
}

func (f *fakeAnchorRepo) GetByStageIDs(_ dbctx.Context, stageIDs []uuid.UUID) ([]*types.AnchorSubmission, error) {
	var out []*types.AnchorSubmission
	for _, sub := range f.subs {
		for _, sid := range stageIDs {
			if sub.StageID == sid {
				cp := *sub
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeAnchorRepo) GetBySubmissionID(_ dbctx.Context, submissionID string) (*types.AnchorSubmission, error) {
	for _, sub := range f.subs {
		if sub.SubmissionID == submissionID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAnchorRepo) ClaimNextSubmittable(_ dbctx.Context, maxAttempts int, retryDelay time.Duration) (*types.AnchorSubmission, error) {
	for _, sub := range f.subs {
		if sub.Status == ledgeranchor.StatusQueued && sub.Attempts < maxAttempts {
			sub.Attempts++
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAnchorRepo) MarkSubmitted(_ dbctx.Context, id uuid.UUID, submissionID string) error {
	sub, ok := f.subs[id]
	if !ok {
		return fmt.Errorf("submission %s not found", id)
	}
	sub.Status = ledgeranchor.StatusSubmitted
	sub.SubmissionID = submissionID
	return nil
}

func (f *fakeAnchorRepo) MarkFailed(_ dbctx.Context, id uuid.UUID, submitErr error) error {
	sub, ok := f.subs[id]
	if !ok {
		return fmt.Errorf("submission %s not found", id)
	}
	sub.Status = ledgeranchor.StatusFailed
	sub.LastError = submitErr.Error()
	return nil
}

func (f *fakeAnchorRepo) MarkConfirmed(_ dbctx.Context, id uuid.UUID, anchorRef string) (bool, error) {
	sub, ok := f.subs[id]
	if !ok {
		return false, fmt.Errorf("submission %s not found", id)
	}
	if sub.Status == ledgeranchor.StatusConfirmed {
		return false, nil
	}
	sub.Status = ledgeranchor.StatusConfirmed
	sub.AnchorRef = anchorRef
	return true, nil
}

type fakeCertRepo struct {
	certs map[uuid.UUID]*types.QualityCertificate
}

func newFakeCertRepo() *fakeCertRepo {
	return &fakeCertRepo{certs: map[uuid.UUID]*types.QualityCertificate{}}
}

func (f *fakeCertRepo) Create(_ dbctx.Context, cert *types.QualityCertificate) (*types.QualityCertificate, error) {
	for _, existing := range f.certs {
		if existing.BatchID == cert.BatchID && existing.Grade == cert.Grade && !existing.Revoked {
			return nil, fmt.Errorf("duplicate active certificate for batch %s grade %s", cert.BatchID, cert.Grade)
		}
	}
	cp := *cert
	f.certs[cert.ID] = &cp
	return cert, nil
}

func (f *fakeCertRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.QualityCertificate, error) {
	var out []*types.QualityCertificate
	for _, id := range ids {
		if c, ok := f.certs[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCertRepo) GetByBatch(_ dbctx.Context, batchID uuid.UUID, validOnly bool) ([]*types.QualityCertificate, error) {
	var out []*types.QualityCertificate
	for _, c := range f.certs {
		if c.BatchID != batchID {
			continue
		}
		if validOnly && (c.Revoked || c.ExpiresAt.Before(time.Now())) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeCertRepo) FindActive(_ dbctx.Context, batchID uuid.UUID, grade types.Grade) (*types.QualityCertificate, error) {
	for _, c := range f.certs {
		if c.BatchID == batchID && c.Grade == grade && !c.Revoked {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCertRepo) Revoke(_ dbctx.Context, id uuid.UUID) (bool, error) {
	c, ok := f.certs[id]
	if !ok || c.Revoked {
		return false, nil
	}
	c.Revoked = true
	return true, nil
}

type fakeReadingRepo struct {
	readings map[uuid.UUID][]*types.TemperatureReading
}

func newFakeReadingRepo() *fakeReadingRepo {
	return &fakeReadingRepo{readings: map[uuid.UUID][]*types.TemperatureReading{}}
}

func (f *fakeReadingRepo) Append(_ dbctx.Context, readings []*types.TemperatureReading) ([]*types.TemperatureReading, error) {
	for _, r := range readings {
		cp := *r
		f.readings[r.BatchID] = append(f.readings[r.BatchID], &cp)
	}
	return readings, nil
}

func (f *fakeReadingRepo) GetByBatch(_ dbctx.Context, batchID uuid.UUID, limit int) ([]*types.TemperatureReading, error) {
	out := append([]*types.TemperatureReading{}, f.readings[batchID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeReadingRepo) GetByBatchAndRange(_ dbctx.Context, batchID uuid.UUID, start, end time.Time) ([]*types.TemperatureReading, error) {
	all, _ := f.GetByBatch(dbctx.Context{}, batchID, 0)
	var out []*types.TemperatureReading
	for _, r := range all {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*types.User{}}
}

func (f *fakeUserRepo) Create(_ dbctx.Context, users []*types.User) ([]*types.User, error) {
	for _, u := range users {
		cp := *u
		f.users[u.ID] = &cp
	}
	return users, nil
}

func (f *fakeUserRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.User, error) {
	var out []*types.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) GetByEmails(_ dbctx.Context, emails []string) ([]*types.User, error) {
	var out []*types.User
	for _, u := range f.users {
		for _, e := range emails {
			if u.Email == e {
				cp := *u
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeUserRepo) EmailExists(_ dbctx.Context, email string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}
