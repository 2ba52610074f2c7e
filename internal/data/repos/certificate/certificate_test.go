package certificate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/agrobridge/backend/internal/data/repos/testutil"
	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
)

func newCert(batchID uuid.UUID, grade types.Grade) *types.QualityCertificate {
	now := time.Now()
	return &types.QualityCertificate{
		ID:             uuid.New(),
		BatchID:        batchID,
		Grade:          grade,
		CertifyingBody: "SENASA",
		IssuedBy:       uuid.New(),
		IssuedAt:       now,
		ExpiresAt:      now.Add(365 * 24 * time.Hour),
		PayloadHash:    "deadbeef",
	}
}

func TestCertificateRepoActiveUniquePerGrade(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewCertificateRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	batchID := uuid.New()
	if _, err := repo.Create(dbc, newCert(batchID, types.GradePremium)); err != nil {
		t.Fatalf("Create (first): %v", err)
	}

	_, err := repo.Create(dbc, newCert(batchID, types.GradePremium))
	if err == nil {
		t.Fatalf("Create (duplicate active): expected unique violation")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("Create (duplicate active): expected unique violation, got %v", err)
	}

	// A different grade is fine.
	if _, err := repo.Create(dbc, newCert(batchID, types.GradeStandard)); err != nil {
		t.Fatalf("Create (other grade): %v", err)
	}
}

func TestCertificateRepoRevokeUnblocksReissue(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewCertificateRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	batchID := uuid.New()
	first, err := repo.Create(dbc, newCert(batchID, types.GradeOrganic))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	revoked, err := repo.Revoke(dbc, first.ID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !revoked {
		t.Fatalf("Revoke: expected row to flip")
	}

	revoked, err = repo.Revoke(dbc, first.ID)
	if err != nil {
		t.Fatalf("Revoke (second): %v", err)
	}
	if revoked {
		t.Fatalf("Revoke (second): expected no-op")
	}

	active, err := repo.FindActive(dbc, batchID, types.GradeOrganic)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if active != nil {
		t.Fatalf("FindActive: expected none after revoke, got %+v", active)
	}

	if _, err := repo.Create(dbc, newCert(batchID, types.GradeOrganic)); err != nil {
		t.Fatalf("Create (reissue after revoke): %v", err)
	}

	// Revoked certificate stays queryable for audit.
	all, err := repo.GetByBatch(dbc, batchID, false)
	if err != nil {
		t.Fatalf("GetByBatch: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetByBatch: expected 2 rows, got %d", len(all))
	}

	valid, err := repo.GetByBatch(dbc, batchID, true)
	if err != nil {
		t.Fatalf("GetByBatch (validOnly): %v", err)
	}
	if len(valid) != 1 {
		t.Fatalf("GetByBatch (validOnly): expected 1 row, got %d", len(valid))
	}
}

func TestCertificateRepoValidOnlyExcludesExpired(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewCertificateRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	batchID := uuid.New()
	expired := newCert(batchID, types.GradeStandard)
	expired.IssuedAt = time.Now().Add(-48 * time.Hour)
	expired.ExpiresAt = time.Now().Add(-24 * time.Hour)
	if _, err := repo.Create(dbc, expired); err != nil {
		t.Fatalf("Create (expired): %v", err)
	}

	valid, err := repo.GetByBatch(dbc, batchID, true)
	if err != nil {
		t.Fatalf("GetByBatch (validOnly): %v", err)
	}
	if len(valid) != 0 {
		t.Fatalf("GetByBatch (validOnly): expected expired cert filtered, got %d", len(valid))
	}

	// FindActive still surfaces it so issuance can supersede it.
	active, err := repo.FindActive(dbc, batchID, types.GradeStandard)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if active == nil {
		t.Fatalf("FindActive: expected expired-but-unrevoked cert")
	}
}
