package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/http/response"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
	"github.com/agrobridge/backend/internal/services"
)

type StageHandler struct {
	log         *logger.Logger
	stageEngine services.StageEngineService
}

func NewStageHandler(log *logger.Logger, stageEngine services.StageEngineService) *StageHandler {
	return &StageHandler{
		log:         log.With("handler", "StageHandler"),
		stageEngine: stageEngine,
	}
}

type createStageRequest struct {
	StageType    string   `json:"stage_type"`
	LocationName string   `json:"location_name"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Notes        string   `json:"notes"`
	EvidenceURL  string   `json:"evidence_url"`
	Completed    bool     `json:"completed"`
}

// CreateStage advances the batch. Without a stage_type it creates the next
// stage in the fixed order; with one it requests that specific stage, which
// only the elevated role may do out of order.
func (h *StageHandler) CreateStage(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req createStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	input := services.StageInput{
		LocationName: req.LocationName,
		Lat:          req.Lat,
		Lon:          req.Lon,
		Notes:        req.Notes,
		EvidenceURL:  req.EvidenceURL,
		Completed:    req.Completed,
	}

	dbc := dbctx.New(c.Request.Context())
	var st *types.VerificationStage
	if req.StageType == "" {
		st, err = h.stageEngine.CreateNextStage(dbc, batchID, input)
	} else {
		st, err = h.stageEngine.CreateSpecificStage(dbc, batchID, types.StageType(req.StageType), input)
	}
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"stage": st})
}

type updateStageRequest struct {
	Status       *string  `json:"status"`
	LocationName *string  `json:"location_name"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Notes        *string  `json:"notes"`
	EvidenceURL  *string  `json:"evidence_url"`
}

func (h *StageHandler) UpdateStage(c *gin.Context) {
	stageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req updateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	st, err := h.stageEngine.UpdateStage(dbctx.New(c.Request.Context()), stageID, services.StagePatch{
		Status:       req.Status,
		LocationName: req.LocationName,
		Lat:          req.Lat,
		Lon:          req.Lon,
		Notes:        req.Notes,
		EvidenceURL:  req.EvidenceURL,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"stage": st})
}

func (h *StageHandler) ListBatchStages(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	stages, err := h.stageEngine.GetBatchStages(dbctx.New(c.Request.Context()), batchID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"stages": stages})
}
