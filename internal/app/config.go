package app

import (
	"time"

	"github.com/agrobridge/backend/internal/anchoring"
	"github.com/agrobridge/backend/internal/pkg/logger"
	"github.com/agrobridge/backend/internal/services"
	"github.com/agrobridge/backend/internal/utils"
)

type Config struct {
	JWTSecretKey   string
	AccessTokenTTL time.Duration

	CompliancePolicy services.CompliancePolicy
	AnchorWorker     anchoring.WorkerConfig
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTLSeconds := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)

	policy := services.CompliancePolicyFromEnv(log)
	if path := utils.GetEnv("COMPLIANCE_POLICY_FILE", "", log); path != "" {
		p, err := services.CompliancePolicyFromFile(path)
		if err != nil {
			log.Warn("Could not load compliance policy file, keeping env policy", "path", path, "error", err)
		} else {
			policy = p
		}
	}

	return Config{
		JWTSecretKey:     jwtSecretKey,
		AccessTokenTTL:   time.Duration(accessTokenTTLSeconds) * time.Second,
		CompliancePolicy: policy,
		AnchorWorker:     anchoring.WorkerConfigFromEnv(log),
	}
}
