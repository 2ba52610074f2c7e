package http

import (
	"github.com/gin-gonic/gin"

	types "github.com/agrobridge/backend/internal/domain"
	httpH "github.com/agrobridge/backend/internal/http/handlers"
	httpMW "github.com/agrobridge/backend/internal/http/middleware"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthHandler        *httpH.AuthHandler
	AuthMiddleware     *httpMW.AuthMiddleware
	BatchHandler       *httpH.BatchHandler
	StageHandler       *httpH.StageHandler
	CertificateHandler *httpH.CertificateHandler
	ComplianceHandler  *httpH.ComplianceHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
		}

		// Public verification: QR scans need no account.
		if cfg.CertificateHandler != nil {
			api.GET("/certificates/:id/verify", cfg.CertificateHandler.VerifyCertificate)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.AuthHandler != nil {
			protected.GET("/me", cfg.AuthHandler.GetMe)
		}

		// Batches
		if cfg.BatchHandler != nil {
			protected.POST("/batches", cfg.BatchHandler.CreateBatch)
			protected.GET("/batches", cfg.BatchHandler.ListMyBatches)
			protected.GET("/batches/:id", cfg.BatchHandler.GetBatch)
			protected.POST("/batches/:id/finalize", cfg.BatchHandler.FinalizeBatch)
		}

		// Stages
		if cfg.StageHandler != nil {
			protected.POST("/batches/:id/stages", cfg.StageHandler.CreateStage)
			protected.GET("/batches/:id/stages", cfg.StageHandler.ListBatchStages)
			protected.PATCH("/stages/:id", cfg.StageHandler.UpdateStage)
		}

		// Certificates
		if cfg.CertificateHandler != nil {
			protected.GET("/batches/:id/certificates", cfg.CertificateHandler.ListBatchCertificates)
			protected.GET("/batches/:id/certificates/eligibility", cfg.CertificateHandler.CheckEligibility)
			if cfg.AuthMiddleware != nil {
				issuer := protected.Group("/")
				issuer.Use(cfg.AuthMiddleware.RequireRole(types.RoleInspector, types.RoleAdmin))
				issuer.POST("/batches/:id/certificates", cfg.CertificateHandler.IssueCertificate)
				issuer.POST("/certificates/:id/revoke", cfg.CertificateHandler.RevokeCertificate)
			}
		}

		// Cold chain
		if cfg.ComplianceHandler != nil {
			protected.POST("/batches/:id/readings", cfg.ComplianceHandler.RecordReading)
			protected.GET("/batches/:id/readings", cfg.ComplianceHandler.ListReadings)
			protected.GET("/batches/:id/compliance", cfg.ComplianceHandler.CheckCompliance)
			protected.GET("/batches/:id/compliance/report", cfg.ComplianceHandler.GetComplianceReport)
		}
	}

	return r
}
