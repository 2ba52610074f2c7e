package app

import (
	"gorm.io/gorm"

	batchrepo "github.com/agrobridge/backend/internal/data/repos/batch"
	certrepo "github.com/agrobridge/backend/internal/data/repos/certificate"
	anchorrepo "github.com/agrobridge/backend/internal/data/repos/ledgeranchor"
	stagerepo "github.com/agrobridge/backend/internal/data/repos/stage"
	telemetryrepo "github.com/agrobridge/backend/internal/data/repos/telemetry"
	userrepo "github.com/agrobridge/backend/internal/data/repos/user"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type Repos struct {
	User             userrepo.UserRepo
	Batch            batchrepo.BatchRepo
	Stage            stagerepo.StageRepo
	Certificate      certrepo.CertificateRepo
	Reading          telemetryrepo.ReadingRepo
	AnchorSubmission anchorrepo.AnchorSubmissionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:             userrepo.NewUserRepo(db, log),
		Batch:            batchrepo.NewBatchRepo(db, log),
		Stage:            stagerepo.NewStageRepo(db, log),
		Certificate:      certrepo.NewCertificateRepo(db, log),
		Reading:          telemetryrepo.NewReadingRepo(db, log),
		AnchorSubmission: anchorrepo.NewAnchorSubmissionRepo(db, log),
	}
}
