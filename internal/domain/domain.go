package domain

import (
	"github.com/agrobridge/backend/internal/domain/batch"
	"github.com/agrobridge/backend/internal/domain/certificate"
	"github.com/agrobridge/backend/internal/domain/ledgeranchor"
	"github.com/agrobridge/backend/internal/domain/stage"
	"github.com/agrobridge/backend/internal/domain/telemetry"
	"github.com/agrobridge/backend/internal/domain/user"
)

// Aliases so repos and services can import a single types package.

type (
	Batch              = batch.Batch
	VerificationStage  = stage.VerificationStage
	StageType          = stage.StageType
	QualityCertificate = certificate.QualityCertificate
	Grade              = certificate.Grade
	VerificationResult = certificate.VerificationResult
	TemperatureReading = telemetry.TemperatureReading
	AnchorSubmission   = ledgeranchor.AnchorSubmission
	User               = user.User
)

const (
	BatchStatusActive    = batch.StatusActive
	BatchStatusFinalized = batch.StatusFinalized
	BatchStatusFlagged   = batch.StatusFlagged

	StageStatusPending    = stage.StatusPending
	StageStatusInProgress = stage.StatusInProgress
	StageStatusCompleted  = stage.StatusCompleted
	StageStatusRejected   = stage.StatusRejected

	GradeStandard = certificate.GradeStandard
	GradePremium  = certificate.GradePremium
	GradeOrganic  = certificate.GradeOrganic

	AnchorStatusQueued     = ledgeranchor.StatusQueued
	AnchorStatusSubmitting = ledgeranchor.StatusSubmitting
	AnchorStatusSubmitted  = ledgeranchor.StatusSubmitted
	AnchorStatusConfirmed  = ledgeranchor.StatusConfirmed
	AnchorStatusFailed     = ledgeranchor.StatusFailed

	RoleProducer    = user.RoleProducer
	RoleCooperative = user.RoleCooperative
	RoleProcessor   = user.RoleProcessor
	RoleExporter    = user.RoleExporter
	RoleInspector   = user.RoleInspector
	RoleAdmin       = user.RoleAdmin
)
