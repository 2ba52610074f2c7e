package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agrobridge/backend/internal/http/response"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	"github.com/agrobridge/backend/internal/pkg/logger"
	"github.com/agrobridge/backend/internal/services"
)

type ComplianceHandler struct {
	log               *logger.Logger
	complianceService services.ComplianceService
}

func NewComplianceHandler(log *logger.Logger, complianceService services.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{
		log:               log.With("handler", "ComplianceHandler"),
		complianceService: complianceService,
	}
}

type recordReadingRequest struct {
	ValueC     float64  `json:"value_c"`
	Humidity   *float64 `json:"humidity"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	DeviceID   string   `json:"device_id"`
	RecordedAt *string  `json:"recorded_at"`
}

func (h *ComplianceHandler) RecordReading(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req recordReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	input := services.ReadingInput{
		ValueC:   req.ValueC,
		Humidity: req.Humidity,
		Lat:      req.Lat,
		Lon:      req.Lon,
		DeviceID: req.DeviceID,
	}
	if req.RecordedAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.RecordedAt)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_recorded_at", err)
			return
		}
		input.RecordedAt = &ts
	}
	reading, err := h.complianceService.RecordReading(dbctx.New(c.Request.Context()), batchID, input)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"reading": reading})
}

func (h *ComplianceHandler) ListReadings(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
	}
	readings, err := h.complianceService.GetReadings(dbctx.New(c.Request.Context()), batchID, limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"readings": readings})
}

func (h *ComplianceHandler) CheckCompliance(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	check, err := h.complianceService.CheckCompliance(dbctx.New(c.Request.Context()), batchID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, check)
}

func (h *ComplianceHandler) GetComplianceReport(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	report, err := h.complianceService.GetComplianceReport(dbctx.New(c.Request.Context()), batchID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, report)
}
