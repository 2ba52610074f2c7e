package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	batchrepo "github.com/agrobridge/backend/internal/data/repos/batch"
	certrepo "github.com/agrobridge/backend/internal/data/repos/certificate"
	stagerepo "github.com/agrobridge/backend/internal/data/repos/stage"
	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/domain/certificate"
	"github.com/agrobridge/backend/internal/domain/stage"
	"github.com/agrobridge/backend/internal/hashing"
	"github.com/agrobridge/backend/internal/pkg/ctxutil"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	apperr "github.com/agrobridge/backend/internal/pkg/errors"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

// DefaultValidityDays applies when an issue request does not set a validity.
const DefaultValidityDays = 365

// gradeStages maps each grade to the stage types that must be COMPLETED
// before issuance, in verification order.
var gradeStages = map[types.Grade][]types.StageType{
	types.GradeStandard: {stage.TypeHarvest, stage.TypeCollection, stage.TypeProcessing, stage.TypePackaging},
	types.GradePremium:  {stage.TypeHarvest, stage.TypeCollection, stage.TypeProcessing, stage.TypePackaging, stage.TypeQualityCheck},
	types.GradeOrganic:  {stage.TypeHarvest, stage.TypeCollection, stage.TypeProcessing, stage.TypePackaging, stage.TypeQualityCheck},
}

// coldChainGrades require a compliant cold chain on top of their stage set.
var coldChainGrades = map[types.Grade]bool{
	types.GradePremium: true,
	types.GradeOrganic: true,
}

// EligibilityResult is the outcome of a dry-run issuance check.
type EligibilityResult struct {
	CanIssue         bool              `json:"can_issue"`
	MissingStages    []types.StageType `json:"missing_stages,omitempty"`
	ColdChainChecked bool              `json:"cold_chain_checked"`
	ColdChainOK      bool              `json:"cold_chain_ok"`
}

// IssueInput carries an issuance request.
type IssueInput struct {
	BatchID        uuid.UUID
	Grade          types.Grade
	CertifyingBody string
	ValidityDays   int
}

type CertificateService interface {
	CanIssueCertificate(c dbctx.Context, batchID uuid.UUID, grade types.Grade) (*EligibilityResult, error)
	IssueCertificate(c dbctx.Context, input IssueInput) (*types.QualityCertificate, error)
	VerifyCertificate(c dbctx.Context, certID uuid.UUID) (*types.VerificationResult, error)
	GetCertificate(c dbctx.Context, certID uuid.UUID) (*types.QualityCertificate, error)
	ListBatchCertificates(c dbctx.Context, batchID uuid.UUID, validOnly bool) ([]*types.QualityCertificate, error)
	RevokeCertificate(c dbctx.Context, certID uuid.UUID) error
}

type certificateService struct {
	db         *gorm.DB
	log        *logger.Logger
	batchRepo  batchrepo.BatchRepo
	stageRepo  stagerepo.StageRepo
	certRepo   certrepo.CertificateRepo
	compliance ComplianceService
}

func NewCertificateService(
	db *gorm.DB,
	baseLog *logger.Logger,
	batchRepo batchrepo.BatchRepo,
	stageRepo stagerepo.StageRepo,
	certRepo certrepo.CertificateRepo,
	compliance ComplianceService,
) CertificateService {
	return &certificateService{
		db:         db,
		log:        baseLog.With("service", "CertificateService"),
		batchRepo:  batchRepo,
		stageRepo:  stageRepo,
		certRepo:   certRepo,
		compliance: compliance,
	}
}

func (s *certificateService) CanIssueCertificate(c dbctx.Context, batchID uuid.UUID, grade types.Grade) (*EligibilityResult, error) {
	if !certificate.ValidGrade(grade) {
		return nil, fmt.Errorf("%w: unknown grade %q", apperr.ErrInvalidArgument, grade)
	}
	if err := s.requireBatch(c, batchID); err != nil {
		return nil, err
	}
	stages, err := s.stageRepo.GetByBatch(c, batchID)
	if err != nil {
		return nil, err
	}

	result := &EligibilityResult{CanIssue: true, ColdChainOK: true}
	for _, t := range gradeStages[grade] {
		st := findStage(stages, t)
		if st == nil || st.Status != stage.StatusCompleted {
			result.MissingStages = append(result.MissingStages, t)
		}
	}
	if len(result.MissingStages) > 0 {
		result.CanIssue = false
	}

	if coldChainGrades[grade] {
		result.ColdChainChecked = true
		check, err := s.compliance.CheckCompliance(c, batchID)
		if err != nil {
			return nil, err
		}
		if !check.IsCompliant {
			result.ColdChainOK = false
			result.CanIssue = false
		}
	}
	return result, nil
}

func (s *certificateService) IssueCertificate(c dbctx.Context, input IssueInput) (*types.QualityCertificate, error) {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return nil, err
	}
	if !canIssue(rd) {
		return nil, &apperr.InsufficientPermissionsError{UserID: rd.UserID, Action: "issue certificate"}
	}
	if input.CertifyingBody == "" {
		return nil, fmt.Errorf("%w: missing certifying body", apperr.ErrInvalidArgument)
	}
	validityDays := input.ValidityDays
	if validityDays <= 0 {
		validityDays = DefaultValidityDays
	}

	eligibility, err := s.CanIssueCertificate(c, input.BatchID, input.Grade)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanIssue {
		missing := make([]string, 0, len(eligibility.MissingStages))
		for _, t := range eligibility.MissingStages {
			missing = append(missing, string(t))
		}
		return nil, &apperr.IneligibleBatchError{
			BatchID:       input.BatchID,
			Grade:         string(input.Grade),
			MissingStages: missing,
			ColdChain:     eligibility.ColdChainChecked && !eligibility.ColdChainOK,
		}
	}

	if active, err := s.certRepo.FindActive(c, input.BatchID, input.Grade); err != nil {
		return nil, err
	} else if active != nil {
		if active.ExpiresAt.After(time.Now()) {
			return nil, &apperr.DuplicateCertificateError{BatchID: input.BatchID, Grade: string(input.Grade)}
		}
		// Expired but never revoked. Supersede it so the partial unique
		// index admits the fresh row.
		if _, err := s.certRepo.Revoke(c, active.ID); err != nil {
			return nil, err
		}
		s.log.Info("superseded expired certificate",
			"certificate_id", active.ID, "batch_id", input.BatchID, "grade", input.Grade)
	}

	stages, err := s.stageRepo.GetByBatch(c, input.BatchID)
	if err != nil {
		return nil, err
	}
	issuedAt := time.Now().UTC().Truncate(time.Microsecond)
	payload := buildCertificatePayload(input.BatchID, input.Grade, issuedAt, stages)
	digest, err := hashing.Digest(payload)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(payload.Stages)
	if err != nil {
		return nil, err
	}

	cert := &types.QualityCertificate{
		ID:             uuid.New(),
		BatchID:        input.BatchID,
		Grade:          input.Grade,
		CertifyingBody: input.CertifyingBody,
		IssuedBy:       rd.UserID,
		IssuedAt:       issuedAt,
		ExpiresAt:      issuedAt.AddDate(0, 0, validityDays),
		PayloadHash:    digest,
		IssuedSnapshot: snapshot,
	}
	if _, err := s.certRepo.Create(c, cert); err != nil {
		if certrepo.IsUniqueViolation(err) {
			return nil, &apperr.DuplicateCertificateError{BatchID: input.BatchID, Grade: string(input.Grade)}
		}
		return nil, err
	}
	s.log.Info("certificate issued",
		"certificate_id", cert.ID, "batch_id", cert.BatchID, "grade", cert.Grade)
	return cert, nil
}

// VerifyCertificate recomputes the payload hash against the batch's current
// stage state. Any post-issuance mutation of a qualifying stage shows up as
// a hash mismatch.
func (s *certificateService) VerifyCertificate(c dbctx.Context, certID uuid.UUID) (*types.VerificationResult, error) {
	cert, err := s.GetCertificate(c, certID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return &types.VerificationResult{IsValid: false, Message: "certificate not found"}, nil
	}
	if time.Now().After(cert.ExpiresAt) {
		return &types.VerificationResult{
			IsValid:     false,
			IsExpired:   true,
			Message:     "certificate expired",
			Certificate: cert,
		}, nil
	}

	stages, err := s.stageRepo.GetByBatch(c, cert.BatchID)
	if err != nil {
		return nil, err
	}
	payload := buildCertificatePayload(cert.BatchID, cert.Grade, cert.IssuedAt, stages)
	digest, err := hashing.Digest(payload)
	if err != nil {
		return nil, err
	}
	if digest != cert.PayloadHash {
		return &types.VerificationResult{
			IsValid:     false,
			Message:     "payload hash mismatch: stage records changed after issuance",
			Certificate: cert,
		}, nil
	}
	if cert.Revoked {
		return &types.VerificationResult{
			IsValid:     false,
			IsRevoked:   true,
			Message:     "certificate revoked",
			Certificate: cert,
		}, nil
	}
	return &types.VerificationResult{IsValid: true, Certificate: cert}, nil
}

func (s *certificateService) GetCertificate(c dbctx.Context, certID uuid.UUID) (*types.QualityCertificate, error) {
	certs, err := s.certRepo.GetByIDs(c, []uuid.UUID{certID})
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 || certs[0] == nil {
		return nil, nil
	}
	return certs[0], nil
}

func (s *certificateService) ListBatchCertificates(c dbctx.Context, batchID uuid.UUID, validOnly bool) ([]*types.QualityCertificate, error) {
	if err := s.requireBatch(c, batchID); err != nil {
		return nil, err
	}
	return s.certRepo.GetByBatch(c, batchID, validOnly)
}

func (s *certificateService) RevokeCertificate(c dbctx.Context, certID uuid.UUID) error {
	rd, err := requireActor(c.Ctx)
	if err != nil {
		return err
	}
	if !canIssue(rd) {
		return &apperr.InsufficientPermissionsError{UserID: rd.UserID, Action: "revoke certificate"}
	}
	revoked, err := s.certRepo.Revoke(c, certID)
	if err != nil {
		return err
	}
	if !revoked {
		cert, err := s.GetCertificate(c, certID)
		if err != nil {
			return err
		}
		if cert == nil {
			return &apperr.NotFoundError{Kind: "certificate", ID: certID}
		}
		// Already revoked, treat as idempotent success.
		return nil
	}
	s.log.Info("certificate revoked", "certificate_id", certID, "by", rd.UserID)
	return nil
}

func (s *certificateService) requireBatch(c dbctx.Context, batchID uuid.UUID) error {
	batches, err := s.batchRepo.GetByIDs(c, []uuid.UUID{batchID})
	if err != nil {
		return err
	}
	if len(batches) == 0 || batches[0] == nil {
		return &apperr.NotFoundError{Kind: "batch", ID: batchID}
	}
	return nil
}

func canIssue(rd *ctxutil.RequestData) bool {
	return rd.Role == types.RoleInspector || rd.Role == types.RoleAdmin
}

// certificatePayload is the hashed document. Field names and timestamp
// formats are part of the contract; changing either breaks verification of
// previously issued certificates.
type certificatePayload struct {
	BatchID  string              `json:"batch_id"`
	Grade    string              `json:"grade"`
	IssuedAt string              `json:"issued_at"`
	Stages   []certStageSnapshot `json:"stages"`
}

// certStageSnapshot deliberately omits anchor_ref: ledger confirmations land
// asynchronously after issuance and must not read as tampering.
type certStageSnapshot struct {
	StageType   string `json:"stage_type"`
	Status      string `json:"status"`
	ActorID     string `json:"actor_id"`
	CompletedAt string `json:"completed_at"`
}

// buildCertificatePayload assembles the canonical document over the stages
// qualifying for the grade, in fixed verification order.
func buildCertificatePayload(batchID uuid.UUID, grade types.Grade, issuedAt time.Time, stages []*types.VerificationStage) certificatePayload {
	payload := certificatePayload{
		BatchID:  batchID.String(),
		Grade:    string(grade),
		IssuedAt: hashing.FormatTime(issuedAt),
	}
	for _, t := range gradeStages[grade] {
		st := findStage(stages, t)
		if st == nil {
			continue
		}
		entry := certStageSnapshot{
			StageType: string(st.StageType),
			Status:    st.Status,
			ActorID:   st.ActorID.String(),
		}
		if st.CompletedAt != nil {
			entry.CompletedAt = hashing.FormatTime(*st.CompletedAt)
		}
		payload.Stages = append(payload.Stages, entry)
	}
	return payload
}
