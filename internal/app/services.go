package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/agrobridge/backend/internal/anchoring"
	"github.com/agrobridge/backend/internal/pkg/logger"
	"github.com/agrobridge/backend/internal/services"
)

type Services struct {
	Auth        services.AuthService
	Batch       services.BatchService
	StageEngine services.StageEngineService
	Compliance  services.ComplianceService
	Certificate services.CertificateService

	AnchorBus       anchoring.Bus
	AnchorWorker    *anchoring.Worker
	AnchorConfirmer *anchoring.Confirmer
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos) (Services, error) {
	log.Info("Wiring services...")

	authService := services.NewAuthService(db, log, r.User, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	batchService := services.NewBatchService(db, log, r.Batch)
	stageEngine := services.NewStageEngineService(db, log, r.Batch, r.Stage, r.AnchorSubmission)
	complianceService := services.NewComplianceService(db, log, cfg.CompliancePolicy, r.Batch, r.Reading)
	certificateService := services.NewCertificateService(db, log, r.Batch, r.Stage, r.Certificate, complianceService)

	confirmer := anchoring.NewConfirmer(log, r.AnchorSubmission, stageEngine)

	var bus anchoring.Bus
	if os.Getenv("REDIS_ADDR") != "" {
		b, err := anchoring.NewRedisBus(log)
		if err != nil {
			return Services{}, fmt.Errorf("init anchor confirmation bus: %w", err)
		}
		bus = b
	}

	var adapter anchoring.Adapter
	if os.Getenv("LEDGER_URL") != "" {
		a, err := anchoring.NewHTTPAdapter(log)
		if err != nil {
			return Services{}, fmt.Errorf("init ledger adapter: %w", err)
		}
		adapter = a
	} else {
		// Without an external ledger, confirmations come straight back:
		// through the bus when one is configured, otherwise in-process.
		publish := func(ctx context.Context, conf anchoring.Confirmation) error {
			confirmer.Handle(ctx, conf)
			return nil
		}
		if bus != nil {
			publish = bus.Publish
		}
		adapter = anchoring.NewDevAdapter(log, publish)
	}

	worker := anchoring.NewWorker(log, r.AnchorSubmission, adapter, cfg.AnchorWorker)

	return Services{
		Auth:        authService,
		Batch:       batchService,
		StageEngine: stageEngine,
		Compliance:  complianceService,
		Certificate: certificateService,

		AnchorBus:       bus,
		AnchorWorker:    worker,
		AnchorConfirmer: confirmer,
	}, nil
}
