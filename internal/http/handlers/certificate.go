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

type CertificateHandler struct {
	log         *logger.Logger
	certService services.CertificateService
}

func NewCertificateHandler(log *logger.Logger, certService services.CertificateService) *CertificateHandler {
	return &CertificateHandler{
		log:         log.With("handler", "CertificateHandler"),
		certService: certService,
	}
}

type issueCertificateRequest struct {
	Grade          string `json:"grade" binding:"required"`
	CertifyingBody string `json:"certifying_body" binding:"required"`
	ValidityDays   int    `json:"validity_days"`
}

func (h *CertificateHandler) IssueCertificate(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req issueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	cert, err := h.certService.IssueCertificate(dbctx.New(c.Request.Context()), services.IssueInput{
		BatchID:        batchID,
		Grade:          types.Grade(req.Grade),
		CertifyingBody: req.CertifyingBody,
		ValidityDays:   req.ValidityDays,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"certificate": cert})
}

func (h *CertificateHandler) CheckEligibility(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	grade := types.Grade(c.Query("grade"))
	res, err := h.certService.CanIssueCertificate(dbctx.New(c.Request.Context()), batchID, grade)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *CertificateHandler) ListBatchCertificates(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	validOnly := c.Query("valid_only") == "true"
	certs, err := h.certService.ListBatchCertificates(dbctx.New(c.Request.Context()), batchID, validOnly)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"certificates": certs})
}

// VerifyCertificate is public: anyone scanning a QR code can check a
// certificate without an account.
func (h *CertificateHandler) VerifyCertificate(c *gin.Context) {
	certID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	res, err := h.certService.VerifyCertificate(dbctx.New(c.Request.Context()), certID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *CertificateHandler) RevokeCertificate(c *gin.Context) {
	certID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	if err := h.certService.RevokeCertificate(dbctx.New(c.Request.Context()), certID); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"revoked": true})
}
