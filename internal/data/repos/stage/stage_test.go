package stage

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/agrobridge/backend/internal/data/repos/testutil"
	types "github.com/agrobridge/backend/internal/domain"
	stagedom "github.com/agrobridge/backend/internal/domain/stage"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
)

func TestStageRepoCreateAndFind(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewStageRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	batchID := uuid.New()
	created, err := repo.Create(dbc, &types.VerificationStage{
		ID:        uuid.New(),
		BatchID:   batchID,
		StageType: stagedom.TypeHarvest,
		Status:    types.StageStatusInProgress,
		ActorID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := repo.FindOne(dbc, batchID, stagedom.TypeHarvest)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("FindOne: unexpected result: %+v", found)
	}

	missing, err := repo.FindOne(dbc, batchID, stagedom.TypeExport)
	if err != nil {
		t.Fatalf("FindOne (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("FindOne (missing): expected nil, got %+v", missing)
	}

	all, err := repo.GetByBatch(dbc, batchID)
	if err != nil {
		t.Fatalf("GetByBatch: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("GetByBatch: expected 1 stage, got %d", len(all))
	}
}

func TestStageRepoUniquePerBatchAndType(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewStageRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	batchID := uuid.New()
	if _, err := repo.Create(dbc, &types.VerificationStage{
		ID:        uuid.New(),
		BatchID:   batchID,
		StageType: stagedom.TypePackaging,
		Status:    types.StageStatusInProgress,
		ActorID:   uuid.New(),
	}); err != nil {
		t.Fatalf("Create (first): %v", err)
	}

	_, err := repo.Create(dbc, &types.VerificationStage{
		ID:        uuid.New(),
		BatchID:   batchID,
		StageType: stagedom.TypePackaging,
		Status:    types.StageStatusInProgress,
		ActorID:   uuid.New(),
	})
	if err == nil {
		t.Fatalf("Create (duplicate): expected unique violation")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("Create (duplicate): expected unique violation, got %v", err)
	}
}

func TestStageRepoAnchorWriteOnce(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewStageRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	created, err := repo.Create(dbc, &types.VerificationStage{
		ID:        uuid.New(),
		BatchID:   uuid.New(),
		StageType: stagedom.TypeHarvest,
		Status:    types.StageStatusCompleted,
		ActorID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	applied, err := repo.SetAnchorRef(dbc, created.ID, "tx-abc123")
	if err != nil {
		t.Fatalf("SetAnchorRef: %v", err)
	}
	if !applied {
		t.Fatalf("SetAnchorRef: expected first write to apply")
	}

	applied, err = repo.SetAnchorRef(dbc, created.ID, "tx-other")
	if err != nil {
		t.Fatalf("SetAnchorRef (second): %v", err)
	}
	if applied {
		t.Fatalf("SetAnchorRef (second): expected no-op on anchored stage")
	}

	stages, err := repo.GetByIDs(dbc, []uuid.UUID{created.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(stages) != 1 || stages[0].AnchorRef == nil || *stages[0].AnchorRef != "tx-abc123" {
		t.Fatalf("anchor ref mismatch: %+v", stages[0])
	}
}

func TestStageRepoUpdateGuardsAnchoredRows(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewStageRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	created, err := repo.Create(dbc, &types.VerificationStage{
		ID:        uuid.New(),
		BatchID:   uuid.New(),
		StageType: stagedom.TypeCollection,
		Status:    types.StageStatusInProgress,
		ActorID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.UpdateFieldsUnanchored(dbc, created.ID, map[string]any{"notes": "weighed at depot"})
	if err != nil {
		t.Fatalf("UpdateFieldsUnanchored: %v", err)
	}
	if !ok {
		t.Fatalf("UpdateFieldsUnanchored: expected update on unanchored stage")
	}

	if _, err := repo.SetAnchorRef(dbc, created.ID, "tx-anchored"); err != nil {
		t.Fatalf("SetAnchorRef: %v", err)
	}

	ok, err = repo.UpdateFieldsUnanchored(dbc, created.ID, map[string]any{"notes": "tamper attempt"})
	if err != nil {
		t.Fatalf("UpdateFieldsUnanchored (anchored): %v", err)
	}
	if ok {
		t.Fatalf("UpdateFieldsUnanchored (anchored): store guard should refuse")
	}

	stages, err := repo.GetByIDs(dbc, []uuid.UUID{created.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if stages[0].Notes != "weighed at depot" {
		t.Fatalf("anchored stage mutated: %+v", stages[0])
	}
}
