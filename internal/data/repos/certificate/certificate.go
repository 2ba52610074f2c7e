package certificate

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type CertificateRepo interface {
	Create(dbc dbctx.Context, cert *types.QualityCertificate) (*types.QualityCertificate, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.QualityCertificate, error)
	GetByBatch(dbc dbctx.Context, batchID uuid.UUID, validOnly bool) ([]*types.QualityCertificate, error)
	// FindActive returns the unrevoked certificate for (batch, grade), expired
	// or not; the single active row is enforced by idx_certificate_active.
	FindActive(dbc dbctx.Context, batchID uuid.UUID, grade types.Grade) (*types.QualityCertificate, error)
	Revoke(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

// IsUniqueViolation reports whether err is the conflict raised by
// idx_certificate_active when two issuers race on the same (batch, grade).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type certificateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCertificateRepo(db *gorm.DB, baseLog *logger.Logger) CertificateRepo {
	return &certificateRepo{db: db, log: baseLog.With("repo", "CertificateRepo")}
}

func (r *certificateRepo) Create(dbc dbctx.Context, cert *types.QualityCertificate) (*types.QualityCertificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).Create(cert).Error; err != nil {
		return nil, err
	}
	return cert, nil
}

func (r *certificateRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.QualityCertificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QualityCertificate
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *certificateRepo) GetByBatch(dbc dbctx.Context, batchID uuid.UUID, validOnly bool) ([]*types.QualityCertificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ?", batchID)
	if validOnly {
		q = q.Where("revoked = false AND expires_at > ?", time.Now())
	}
	var out []*types.QualityCertificate
	if err := q.Order("issued_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *certificateRepo) FindActive(dbc dbctx.Context, batchID uuid.UUID, grade types.Grade) (*types.QualityCertificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var cert types.QualityCertificate
	err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ? AND grade = ? AND revoked = false", batchID, grade).
		Limit(1).
		Find(&cert).Error
	if err != nil {
		return nil, err
	}
	if cert.ID == uuid.Nil {
		return nil, nil
	}
	return &cert, nil
}

func (r *certificateRepo) Revoke(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.QualityCertificate{}).
		Where("id = ? AND revoked = false", id).
		Updates(map[string]any{
			"revoked":    true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
