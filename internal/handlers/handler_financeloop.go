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

// financeLoopHandler handles HTTP requests for deposits, credit tokens and
// retirement receipts.
type financeLoopHandler struct {
	financeLoopService portssvc.FinanceLoopSvcFacade
}

func newFinanceLoopHandler(financeLoopService portssvc.FinanceLoopSvcFacade) *financeLoopHandler {
	return &financeLoopHandler{financeLoopService: financeLoopService}
}

func registerFinanceLoopRoutes(rg *gin.RouterGroup, financeLoopService portssvc.FinanceLoopSvcFacade) {
	h := newFinanceLoopHandler(financeLoopService)
	rg.POST("/deposits", h.deposit)
	tokens := rg.Group("/tokens")
	{
		tokens.POST("", h.mint)
		tokens.POST("/:tokenID/retire", h.retire)
	}
	receipts := rg.Group("/receipts")
	{
		receipts.GET("/:receiptID", h.getReceipt)
	}
	rg.GET("/projects/:projectID/trace", h.projectTrace)
}

// deposit godoc
// @Summary Settle a deposit
// @Description Credits the project's designated bucket; DepositID is the idempotency key and replays return the original record
// @Tags finance-loop
// @Accept  json
// @Produce  json
// @Param   deposit body dto.DepositRequest true "Deposit details"
// @Success 200 {object} domain.Deposit
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "No bucket for project and currency"
// @Security BearerAuth
// @Router /deposits [post]
func (h *financeLoopHandler) deposit(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for deposit", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	deposit, err := h.financeLoopService.Deposit(c.Request.Context(), req, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "No bucket for project and currency"})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to settle deposit", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to settle deposit"})
		}
		return
	}
	c.JSON(http.StatusOK, deposit)
}

// mint godoc
// @Summary Mint a credit token
// @Description Mints an environmental-credit token linked to its funding trail by reference; never touches bucket balances
// @Tags finance-loop
// @Accept  json
// @Produce  json
// @Param   token body dto.MintRequest true "Token details"
// @Success 200 {object} domain.CreditToken
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to mint token"
// @Security BearerAuth
// @Router /tokens [post]
func (h *financeLoopHandler) mint(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	token, err := h.financeLoopService.Mint(c.Request.Context(), req, actor)
	if err != nil {
		logger.Error("Failed to mint token", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mint token"})
		return
	}
	c.JSON(http.StatusOK, token)
}

// retire godoc
// @Summary Retire a credit token
// @Description Retires a MINTED token and generates its retirement receipt exactly once; retiring again returns the existing receipt
// @Tags finance-loop
// @Produce  json
// @Param   tokenID path string true "Token ID"
// @Success 200 {object} domain.Receipt
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Token not found"
// @Failure 500 {object} map[string]string "Failed to retire token"
// @Security BearerAuth
// @Router /tokens/{tokenID}/retire [post]
func (h *financeLoopHandler) retire(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	tokenID := c.Param("tokenID")

	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	receipt, err := h.financeLoopService.Retire(c.Request.Context(), tokenID, actor)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
			return
		}
		logger.Error("Failed to retire token", slog.String("error", err.Error()), slog.String("token_id", tokenID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retire token"})
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// getReceipt godoc
// @Summary Get a retirement receipt
// @Description Retrieves the append-only receipt with its time-ordered traceability chain
// @Tags finance-loop
// @Produce  json
// @Param   receiptID path string true "Receipt ID"
// @Success 200 {object} domain.Receipt
// @Failure 404 {object} map[string]string "Receipt not found"
// @Failure 500 {object} map[string]string "Failed to retrieve receipt"
// @Security BearerAuth
// @Router /receipts/{receiptID} [get]
func (h *financeLoopHandler) getReceipt(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	receiptID := c.Param("receiptID")

	receipt, err := h.financeLoopService.GetReceipt(c.Request.Context(), receiptID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Receipt not found"})
			return
		}
		logger.Error("Failed to get receipt", slog.String("error", err.Error()), slog.String("receipt_id", receiptID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve receipt"})
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// projectTrace godoc
// @Summary Trace a project's fund lifecycle
// @Description Lists the project's deposits, disbursements and attestations in time order
// @Tags finance-loop
// @Produce  json
// @Param   projectID path string true "Project ID"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string "Failed to trace project"
// @Security BearerAuth
// @Router /projects/{projectID}/trace [get]
func (h *financeLoopHandler) projectTrace(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	projectID := c.Param("projectID")

	events, err := h.financeLoopService.ProjectTrace(c.Request.Context(), projectID)
	if err != nil {
		logger.Error("Failed to trace project", slog.String("error", err.Error()), slog.String("project_id", projectID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to trace project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projectID": projectID, "events": events})
}
