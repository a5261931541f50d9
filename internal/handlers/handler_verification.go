package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
)

// verificationHandler handles HTTP requests for verification gates and
// attestations.
type verificationHandler struct {
	verificationService portssvc.VerificationSvcFacade
}

func newVerificationHandler(verificationService portssvc.VerificationSvcFacade) *verificationHandler {
	return &verificationHandler{verificationService: verificationService}
}

func registerVerificationRoutes(rg *gin.RouterGroup, verificationService portssvc.VerificationSvcFacade) {
	h := newVerificationHandler(verificationService)
	gates := rg.Group("/verification-gates")
	{
		gates.POST("", h.submitVerification)
		gates.GET("/:gateID", h.getGate)
		gates.POST("/:gateID/attestations", h.attest)
	}
}

// submitVerification godoc
// @Summary Open a verification gate
// @Description Opens a PENDING gate tying a retention amount to an external verification
// @Tags verification-gates
// @Accept  json
// @Produce  json
// @Param   gate body dto.SubmitVerificationRequest true "Gate details"
// @Success 201 {object} domain.VerificationGate
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to submit verification"
// @Security BearerAuth
// @Router /verification-gates [post]
func (h *verificationHandler) submitVerification(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.SubmitVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for submitVerification", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	gate, err := h.verificationService.SubmitVerification(c.Request.Context(), req, actor)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to submit verification", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit verification"})
		return
	}
	c.JSON(http.StatusCreated, gate)
}

// getGate godoc
// @Summary Get a verification gate
// @Description Retrieves a gate and its outcome if attested
// @Tags verification-gates
// @Produce  json
// @Param   gateID path string true "Gate ID"
// @Success 200 {object} domain.VerificationGate
// @Failure 404 {object} map[string]string "Verification gate not found"
// @Failure 500 {object} map[string]string "Failed to retrieve gate"
// @Security BearerAuth
// @Router /verification-gates/{gateID} [get]
func (h *verificationHandler) getGate(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	gateID := c.Param("gateID")

	gate, err := h.verificationService.GetGate(c.Request.Context(), gateID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Verification gate not found"})
			return
		}
		logger.Error("Failed to get gate", slog.String("error", err.Error()), slog.String("gate_id", gateID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve gate"})
		return
	}
	c.JSON(http.StatusOK, gate)
}

// attest godoc
// @Summary Record an attestation
// @Description Receives the external collaborator's result; a passing attestation releases the gated retention. An unknown gate is a 404 with no side effects; a duplicate delivery returns the recorded outcome
// @Tags verification-gates
// @Accept  json
// @Produce  json
// @Param   gateID path string true "Gate ID"
// @Param   attestation body dto.AttestationRequest true "Attestation result"
// @Success 200 {object} domain.VerificationAttestation
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 404 {object} map[string]string "Verification gate not found"
// @Failure 409 {object} map[string]string "Gate already attested with a different result"
// @Failure 422 {object} map[string]string "Insufficient reserved funds"
// @Router /verification-gates/{gateID}/attestations [post]
func (h *verificationHandler) attest(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	gateID := c.Param("gateID")

	var req dto.AttestationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	att, err := h.verificationService.Attest(c.Request.Context(), gateID, req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Verification gate not found"})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to record attestation", slog.String("error", err.Error()), slog.String("gate_id", gateID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record attestation"})
		}
		return
	}
	c.JSON(http.StatusOK, att)
}
