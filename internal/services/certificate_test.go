package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/domain/stage"
	apperr "github.com/agrobridge/backend/internal/pkg/errors"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
)

type certFixture struct {
	certs       CertificateService
	engine      StageEngineService
	compliance  ComplianceService
	batches     *fakeBatchRepo
	stages      *fakeStageRepo
	certRepo    *fakeCertRepo
	readings    *fakeReadingRepo
	batch       *types.Batch
	producerID  uuid.UUID
	inspectorID uuid.UUID
}

func newCertFixture(t *testing.T) *certFixture {
	t.Helper()
	batches := newFakeBatchRepo()
	stages := newFakeStageRepo()
	certRepo := newFakeCertRepo()
	readings := newFakeReadingRepo()
	anchors := newFakeAnchorRepo()
	log := testLogger()

	producerID := uuid.New()
	b := &types.Batch{
		ID:          uuid.New(),
		ProducerID:  producerID,
		Variety:     "Kent",
		Origin:      "Piura",
		WeightKg:    800,
		HarvestDate: time.Now().UTC(),
		Status:      types.BatchStatusActive,
	}
	if _, err := batches.Create(actorCtx(producerID, types.RoleProducer), []*types.Batch{b}); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	compliance := NewComplianceService(nil, log, DefaultCompliancePolicy(), batches, readings)
	return &certFixture{
		certs:       NewCertificateService(nil, log, batches, stages, certRepo, compliance),
		engine:      NewStageEngineService(nil, log, batches, stages, anchors),
		compliance:  compliance,
		batches:     batches,
		stages:      stages,
		certRepo:    certRepo,
		readings:    readings,
		batch:       b,
		producerID:  producerID,
		inspectorID: uuid.New(),
	}
}

func (f *certFixture) inspectorCtx() dbctx.Context {
	return actorCtx(f.inspectorID, types.RoleInspector)
}

// completeStages walks the lifecycle through the named count of stage types.
func (f *certFixture) completeStages(t *testing.T, n int) {
	t.Helper()
	c := actorCtx(f.producerID, types.RoleProducer)
	for i := 0; i < n; i++ {
		if _, err := f.engine.CreateNextStage(c, f.batch.ID, StageInput{Completed: true}); err != nil {
			t.Fatalf("complete stage %d: %v", i, err)
		}
	}
}

func TestCanIssueCertificateMissingStages(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 2) // HARVEST, COLLECTION

	res, err := f.certs.CanIssueCertificate(f.inspectorCtx(), f.batch.ID, types.GradeStandard)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.CanIssue {
		t.Fatal("expected ineligible with stages missing")
	}
	want := []types.StageType{stage.TypeProcessing, stage.TypePackaging}
	if len(res.MissingStages) != len(want) {
		t.Fatalf("missing = %v, want %v", res.MissingStages, want)
	}
	for i := range want {
		if res.MissingStages[i] != want[i] {
			t.Fatalf("missing[%d] = %s, want %s", i, res.MissingStages[i], want[i])
		}
	}
	if res.ColdChainChecked {
		t.Fatal("STANDARD grade should not consult the cold chain")
	}
}

func TestIssueStandardCertificate(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)

	cert, err := f.certs.IssueCertificate(f.inspectorCtx(), IssueInput{
		BatchID:        f.batch.ID,
		Grade:          types.GradeStandard,
		CertifyingBody: "SENASA",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if cert.PayloadHash == "" {
		t.Fatal("certificate missing payload hash")
	}
	if len(cert.IssuedSnapshot) == 0 {
		t.Fatal("certificate missing issued snapshot")
	}
	if !cert.ExpiresAt.After(cert.IssuedAt.AddDate(0, 0, DefaultValidityDays-1)) {
		t.Fatalf("default validity not applied: %s", cert.ExpiresAt)
	}
}

func TestIssueCertificateRequiresInspector(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)

	producer := actorCtx(f.producerID, types.RoleProducer)
	_, err := f.certs.IssueCertificate(producer, IssueInput{
		BatchID:        f.batch.ID,
		Grade:          types.GradeStandard,
		CertifyingBody: "SENASA",
	})
	var permErr *apperr.InsufficientPermissionsError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected InsufficientPermissionsError, got %v", err)
	}
}

func TestIssuePremiumRequiresColdChain(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 5) // through QUALITY_CHECK

	// Two readings far outside the safe range.
	c := f.inspectorCtx()
	base := time.Now().Add(-2 * time.Hour)
	for i, v := range []float64{15.0, 16.5} {
		ts := base.Add(time.Duration(i) * time.Hour)
		if _, err := f.compliance.RecordReading(c, f.batch.ID, ReadingInput{ValueC: v, RecordedAt: &ts}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	_, err := f.certs.IssueCertificate(c, IssueInput{
		BatchID:        f.batch.ID,
		Grade:          types.GradePremium,
		CertifyingBody: "SENASA",
	})
	var inelErr *apperr.IneligibleBatchError
	if !errors.As(err, &inelErr) {
		t.Fatalf("expected IneligibleBatchError, got %v", err)
	}
	if !inelErr.ColdChain {
		t.Fatal("error should name the cold chain as the blocker")
	}
}

func TestIssueDuplicateCertificate(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)
	c := f.inspectorCtx()

	input := IssueInput{BatchID: f.batch.ID, Grade: types.GradeStandard, CertifyingBody: "SENASA"}
	if _, err := f.certs.IssueCertificate(c, input); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	_, err := f.certs.IssueCertificate(c, input)
	var dupErr *apperr.DuplicateCertificateError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateCertificateError, got %v", err)
	}
}

func TestReissueAfterRevocation(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)
	c := f.inspectorCtx()

	input := IssueInput{BatchID: f.batch.ID, Grade: types.GradeStandard, CertifyingBody: "SENASA"}
	first, err := f.certs.IssueCertificate(c, input)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if err := f.certs.RevokeCertificate(c, first.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	second, err := f.certs.IssueCertificate(c, input)
	if err != nil {
		t.Fatalf("reissue after revocation: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("reissue returned the revoked certificate")
	}

	// Both remain on record for audit.
	all, err := f.certs.ListBatchCertificates(c, f.batch.ID, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("audit trail has %d certificates, want 2", len(all))
	}
}

func TestIssueSupersedesExpiredCertificate(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)
	c := f.inspectorCtx()

	input := IssueInput{BatchID: f.batch.ID, Grade: types.GradeStandard, CertifyingBody: "SENASA"}
	first, err := f.certs.IssueCertificate(c, input)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	// Lapsed but never revoked.
	f.certRepo.certs[first.ID].ExpiresAt = time.Now().Add(-24 * time.Hour)

	second, err := f.certs.IssueCertificate(c, input)
	if err != nil {
		t.Fatalf("reissue over expired: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh certificate")
	}
	if !f.certRepo.certs[first.ID].Revoked {
		t.Fatal("expired certificate was not superseded")
	}
}

func TestVerifyCertificateDetectsTampering(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)
	c := f.inspectorCtx()

	cert, err := f.certs.IssueCertificate(c, IssueInput{
		BatchID:        f.batch.ID,
		Grade:          types.GradeStandard,
		CertifyingBody: "SENASA",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := f.certs.VerifyCertificate(c, cert.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.IsValid {
		t.Fatalf("fresh certificate reported invalid: %s", res.Message)
	}

	// Flip a qualifying stage's status behind the engine's back.
	for _, st := range f.stages.stages {
		if st.StageType == stage.TypeProcessing {
			st.Status = stage.StatusPending
		}
	}
	res, err = f.certs.VerifyCertificate(c, cert.ID)
	if err != nil {
		t.Fatalf("verify after tamper: %v", err)
	}
	if res.IsValid {
		t.Fatal("tampered stage state passed verification")
	}
	if res.IsExpired || res.IsRevoked {
		t.Fatal("tampering misreported as expiry or revocation")
	}
}

func TestVerifyCertificateUnaffectedByLateAnchoring(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)
	c := f.inspectorCtx()

	cert, err := f.certs.IssueCertificate(c, IssueInput{
		BatchID:        f.batch.ID,
		Grade:          types.GradeStandard,
		CertifyingBody: "SENASA",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Ledger confirmations landing after issuance are legitimate.
	for id := range f.stages.stages {
		if err := f.engine.ConfirmAnchor(c, id, "block:100"); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}
	res, err := f.certs.VerifyCertificate(c, cert.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.IsValid {
		t.Fatalf("late anchoring flagged as tampering: %s", res.Message)
	}
}

func TestVerifyCertificateExpiredAndRevoked(t *testing.T) {
	f := newCertFixture(t)
	f.completeStages(t, 4)
	c := f.inspectorCtx()

	cert, err := f.certs.IssueCertificate(c, IssueInput{
		BatchID:        f.batch.ID,
		Grade:          types.GradeStandard,
		CertifyingBody: "SENASA",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := f.certs.RevokeCertificate(c, cert.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	res, err := f.certs.VerifyCertificate(c, cert.ID)
	if err != nil {
		t.Fatalf("verify revoked: %v", err)
	}
	if res.IsValid || !res.IsRevoked {
		t.Fatalf("revoked certificate: valid=%v revoked=%v", res.IsValid, res.IsRevoked)
	}

	// Expiry wins over everything else.
	f.certRepo.certs[cert.ID].ExpiresAt = time.Now().Add(-time.Hour)
	res, err = f.certs.VerifyCertificate(c, cert.ID)
	if err != nil {
		t.Fatalf("verify expired: %v", err)
	}
	if res.IsValid || !res.IsExpired {
		t.Fatalf("expired certificate: valid=%v expired=%v", res.IsValid, res.IsExpired)
	}
}

func TestVerifyCertificateNotFound(t *testing.T) {
	f := newCertFixture(t)

	res, err := f.certs.VerifyCertificate(f.inspectorCtx(), uuid.New())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.IsValid || res.Certificate != nil {
		t.Fatal("unknown certificate should verify invalid with no payload")
	}
}
