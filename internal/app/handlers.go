package app

import (
	"github.com/agrobridge/backend/internal/http/handlers"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Batch       *handlers.BatchHandler
	Stage       *handlers.StageHandler
	Certificate *handlers.CertificateHandler
	Compliance  *handlers.ComplianceHandler
	Health      *handlers.HealthHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:        handlers.NewAuthHandler(log, services.Auth),
		Batch:       handlers.NewBatchHandler(log, services.Batch, services.StageEngine),
		Stage:       handlers.NewStageHandler(log, services.StageEngine),
		Certificate: handlers.NewCertificateHandler(log, services.Certificate),
		Compliance:  handlers.NewComplianceHandler(log, services.Compliance),
		Health:      handlers.NewHealthHandler(),
	}
}
