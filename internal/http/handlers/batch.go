package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agrobridge/backend/internal/http/response"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
	"github.com/agrobridge/backend/internal/services"
)

type BatchHandler struct {
	log          *logger.Logger
	batchService services.BatchService
	stageEngine  services.StageEngineService
}

func NewBatchHandler(log *logger.Logger, batchService services.BatchService, stageEngine services.StageEngineService) *BatchHandler {
	return &BatchHandler{
		log:          log.With("handler", "BatchHandler"),
		batchService: batchService,
		stageEngine:  stageEngine,
	}
}

type createBatchRequest struct {
	Variety     string  `json:"variety" binding:"required"`
	Origin      string  `json:"origin" binding:"required"`
	WeightKg    float64 `json:"weight_kg" binding:"required"`
	HarvestDate string  `json:"harvest_date"`
}

func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	var harvestDate time.Time
	if req.HarvestDate != "" {
		parsed, err := time.Parse("2006-01-02", req.HarvestDate)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_harvest_date", err)
			return
		}
		harvestDate = parsed
	}
	b, err := h.batchService.CreateBatch(dbctx.New(c.Request.Context()), services.CreateBatchInput{
		Variety:     req.Variety,
		Origin:      req.Origin,
		WeightKg:    req.WeightKg,
		HarvestDate: harvestDate,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"batch": b})
}

func (h *BatchHandler) GetBatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	b, err := h.batchService.GetBatch(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batch": b})
}

func (h *BatchHandler) ListMyBatches(c *gin.Context) {
	batches, err := h.batchService.ListMyBatches(dbctx.New(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batches": batches})
}

func (h *BatchHandler) FinalizeBatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	b, err := h.stageEngine.FinalizeBatch(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batch": b})
}
