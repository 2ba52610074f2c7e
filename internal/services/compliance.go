package services

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	batchrepo "github.com/agrobridge/backend/internal/data/repos/batch"
	telemetryrepo "github.com/agrobridge/backend/internal/data/repos/telemetry"
	types "github.com/agrobridge/backend/internal/domain"
	apperr "github.com/agrobridge/backend/internal/pkg/errors"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
	"github.com/agrobridge/backend/internal/utils"
)

// CompliancePolicy holds the cold-chain thresholds. Readings outside
// [MinSafeC, MaxSafeC] are violations; a swing of more than RapidDeltaC within
// RapidWindow between consecutive readings is a rapid change.
type CompliancePolicy struct {
	MinSafeC    float64
	MaxSafeC    float64
	RapidDeltaC float64
	RapidWindow time.Duration
}

func DefaultCompliancePolicy() CompliancePolicy {
	return CompliancePolicy{
		MinSafeC:    -2,
		MaxSafeC:    8,
		RapidDeltaC: 5,
		RapidWindow: 30 * time.Minute,
	}
}

// CompliancePolicyFromEnv overlays the defaults with COMPLIANCE_* env vars.
func CompliancePolicyFromEnv(log *logger.Logger) CompliancePolicy {
	p := DefaultCompliancePolicy()
	p.MinSafeC = utils.GetEnvAsFloat("COMPLIANCE_MIN_SAFE_C", p.MinSafeC, log)
	p.MaxSafeC = utils.GetEnvAsFloat("COMPLIANCE_MAX_SAFE_C", p.MaxSafeC, log)
	p.RapidDeltaC = utils.GetEnvAsFloat("COMPLIANCE_RAPID_DELTA_C", p.RapidDeltaC, log)
	windowMin := utils.GetEnvAsInt("COMPLIANCE_RAPID_WINDOW_MINUTES", int(p.RapidWindow/time.Minute), log)
	p.RapidWindow = time.Duration(windowMin) * time.Minute
	return p
}

type compliancePolicyFile struct {
	MinSafeC           *float64 `yaml:"min_safe_c"`
	MaxSafeC           *float64 `yaml:"max_safe_c"`
	RapidDeltaC        *float64 `yaml:"rapid_delta_c"`
	RapidWindowMinutes *int     `yaml:"rapid_window_minutes"`
}

// CompliancePolicyFromFile overlays the defaults with a YAML policy file.
// Absent keys keep their defaults.
func CompliancePolicyFromFile(path string) (CompliancePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CompliancePolicy{}, fmt.Errorf("read compliance policy: %w", err)
	}
	var f compliancePolicyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return CompliancePolicy{}, fmt.Errorf("parse compliance policy: %w", err)
	}
	p := DefaultCompliancePolicy()
	if f.MinSafeC != nil {
		p.MinSafeC = *f.MinSafeC
	}
	if f.MaxSafeC != nil {
		p.MaxSafeC = *f.MaxSafeC
	}
	if f.RapidDeltaC != nil {
		p.RapidDeltaC = *f.RapidDeltaC
	}
	if f.RapidWindowMinutes != nil {
		p.RapidWindow = time.Duration(*f.RapidWindowMinutes) * time.Minute
	}
	if p.MinSafeC >= p.MaxSafeC {
		return CompliancePolicy{}, fmt.Errorf("compliance policy: min_safe_c must be below max_safe_c")
	}
	return p, nil
}

// ReadingInput is one telemetry sample from a sensor or manual entry.
type ReadingInput struct {
	ValueC     float64
	Humidity   *float64
	Lat        *float64
	Lon        *float64
	DeviceID   string
	RecordedAt *time.Time
}

// RapidChange pairs two consecutive readings whose delta crossed the
// threshold inside the window.
type RapidChange struct {
	From     *types.TemperatureReading `json:"from"`
	To       *types.TemperatureReading `json:"to"`
	DeltaC   float64                   `json:"delta_c"`
	Interval time.Duration             `json:"interval"`
}

// ComplianceCheck is the boolean verdict plus its evidence.
type ComplianceCheck struct {
	BatchID           uuid.UUID                   `json:"batch_id"`
	TotalReadings     int                         `json:"total_readings"`
	Violations        []*types.TemperatureReading `json:"violations"`
	RapidChanges      []RapidChange               `json:"rapid_changes"`
	MinC              float64                     `json:"min_c"`
	MaxC              float64                     `json:"max_c"`
	OutOfRangePercent float64                     `json:"out_of_range_percent"`
	IsCompliant       bool                        `json:"is_compliant"`
}

// ComplianceReport extends the check with a score and recommendations.
// Score is nil when the batch has no readings at all.
type ComplianceReport struct {
	ComplianceCheck
	Score           *float64 `json:"score"`
	Recommendations []string `json:"recommendations"`
}

type ComplianceService interface {
	RecordReading(c dbctx.Context, batchID uuid.UUID, input ReadingInput) (*types.TemperatureReading, error)
	GetReadings(c dbctx.Context, batchID uuid.UUID, limit int) ([]*types.TemperatureReading, error)
	CheckCompliance(c dbctx.Context, batchID uuid.UUID) (*ComplianceCheck, error)
	GetComplianceReport(c dbctx.Context, batchID uuid.UUID) (*ComplianceReport, error)
	Policy() CompliancePolicy
}

type complianceService struct {
	db          *gorm.DB
	log         *logger.Logger
	policy      CompliancePolicy
	batchRepo   batchrepo.BatchRepo
	readingRepo telemetryrepo.ReadingRepo
}

func NewComplianceService(
	db *gorm.DB,
	baseLog *logger.Logger,
	policy CompliancePolicy,
	batchRepo batchrepo.BatchRepo,
	readingRepo telemetryrepo.ReadingRepo,
) ComplianceService {
	return &complianceService{
		db:          db,
		log:         baseLog.With("service", "ComplianceService"),
		policy:      policy,
		batchRepo:   batchRepo,
		readingRepo: readingRepo,
	}
}

func (s *complianceService) Policy() CompliancePolicy { return s.policy }

func (s *complianceService) RecordReading(c dbctx.Context, batchID uuid.UUID, input ReadingInput) (*types.TemperatureReading, error) {
	if err := s.requireBatch(c, batchID); err != nil {
		return nil, err
	}
	if input.Humidity != nil && (*input.Humidity < 0 || *input.Humidity > 100) {
		return nil, fmt.Errorf("%w: humidity %.1f out of range", apperr.ErrInvalidArgument, *input.Humidity)
	}
	recordedAt := time.Now().UTC()
	if input.RecordedAt != nil {
		recordedAt = input.RecordedAt.UTC()
	}
	reading := &types.TemperatureReading{
		ID:        uuid.New(),
		BatchID:   batchID,
		Timestamp: recordedAt,
		ValueC:    input.ValueC,
		Humidity:  input.Humidity,
		Lat:       input.Lat,
		Lon:       input.Lon,
		DeviceID:  input.DeviceID,
	}
	if _, err := s.readingRepo.Append(c, []*types.TemperatureReading{reading}); err != nil {
		s.log.Warn("RecordReading: append failed", "error", err, "batch_id", batchID)
		return nil, err
	}
	return reading, nil
}

func (s *complianceService) GetReadings(c dbctx.Context, batchID uuid.UUID, limit int) ([]*types.TemperatureReading, error) {
	if err := s.requireBatch(c, batchID); err != nil {
		return nil, err
	}
	return s.readingRepo.GetByBatch(c, batchID, limit)
}

func (s *complianceService) CheckCompliance(c dbctx.Context, batchID uuid.UUID) (*ComplianceCheck, error) {
	if err := s.requireBatch(c, batchID); err != nil {
		return nil, err
	}
	readings, err := s.readingRepo.GetByBatch(c, batchID, 0)
	if err != nil {
		return nil, err
	}
	return evaluate(batchID, readings, s.policy), nil
}

func (s *complianceService) GetComplianceReport(c dbctx.Context, batchID uuid.UUID) (*ComplianceReport, error) {
	check, err := s.CheckCompliance(c, batchID)
	if err != nil {
		return nil, err
	}
	report := &ComplianceReport{ComplianceCheck: *check}
	if check.TotalReadings == 0 {
		report.Recommendations = []string{
			"No temperature readings recorded. Begin cold-chain monitoring for this batch.",
		}
		return report, nil
	}

	score := 100 - check.OutOfRangePercent - 5*float64(len(check.RapidChanges))
	score = math.Max(0, math.Min(100, score))
	report.Score = &score

	if len(check.Violations) > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Review refrigeration equipment: %d readings fell outside the safe range of %.1f to %.1f C.",
				len(check.Violations), s.policy.MinSafeC, s.policy.MaxSafeC))
	}
	if len(check.RapidChanges) > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Investigate handling at transfer points: %d rapid temperature swings detected.", len(check.RapidChanges)))
	}
	if check.MaxC-check.MinC > 10 {
		report.Recommendations = append(report.Recommendations,
			"Improve container insulation: total temperature spread exceeded 10 C.")
	}
	if score < 80 {
		report.Recommendations = append(report.Recommendations,
			"Apply corrective action before export: compliance score is below 80.")
	}
	// A fully in-range history carries no recommendations.
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}
	return report, nil
}

func (s *complianceService) requireBatch(c dbctx.Context, batchID uuid.UUID) error {
	batches, err := s.batchRepo.GetByIDs(c, []uuid.UUID{batchID})
	if err != nil {
		return err
	}
	if len(batches) == 0 || batches[0] == nil {
		return &apperr.NotFoundError{Kind: "batch", ID: batchID}
	}
	return nil
}

// evaluate runs the policy over readings sorted by recorded_at ascending.
// An empty series is vacuously compliant.
func evaluate(batchID uuid.UUID, readings []*types.TemperatureReading, p CompliancePolicy) *ComplianceCheck {
	check := &ComplianceCheck{
		BatchID:       batchID,
		TotalReadings: len(readings),
		IsCompliant:   true,
	}
	if len(readings) == 0 {
		return check
	}

	check.MinC = readings[0].ValueC
	check.MaxC = readings[0].ValueC
	for i, r := range readings {
		if r.ValueC < check.MinC {
			check.MinC = r.ValueC
		}
		if r.ValueC > check.MaxC {
			check.MaxC = r.ValueC
		}
		if r.ValueC < p.MinSafeC || r.ValueC > p.MaxSafeC {
			check.Violations = append(check.Violations, r)
		}
		if i == 0 {
			continue
		}
		prev := readings[i-1]
		interval := r.Timestamp.Sub(prev.Timestamp)
		delta := math.Abs(r.ValueC - prev.ValueC)
		if interval >= 0 && interval <= p.RapidWindow && delta > p.RapidDeltaC {
			check.RapidChanges = append(check.RapidChanges, RapidChange{
				From:     prev,
				To:       r,
				DeltaC:   delta,
				Interval: interval,
			})
		}
	}
	check.OutOfRangePercent = 100 * float64(len(check.Violations)) / float64(len(readings))
	check.IsCompliant = len(check.Violations) == 0 && len(check.RapidChanges) == 0
	return check
}
