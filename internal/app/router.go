package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/agrobridge/backend/internal/http"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

func wireRouter(log *logger.Logger, h Handlers, mw Middleware) *gin.Engine {
	log.Info("Wiring router...")
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log: log,

		AuthHandler:        h.Auth,
		AuthMiddleware:     mw.Auth,
		BatchHandler:       h.Batch,
		StageHandler:       h.Stage,
		CertificateHandler: h.Certificate,
		ComplianceHandler:  h.Compliance,

		HealthHandler: h.Health,
	})
}
