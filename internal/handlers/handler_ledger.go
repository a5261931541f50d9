package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
	"github.com/greenledger-io/greenledger_backend/internal/utils"
)

// ledgerHandler handles HTTP requests for funding buckets and the entry log.
type ledgerHandler struct {
	ledgerService portssvc.LedgerSvcFacade
}

func newLedgerHandler(ledgerService portssvc.LedgerSvcFacade) *ledgerHandler {
	return &ledgerHandler{ledgerService: ledgerService}
}

func registerLedgerRoutes(rg *gin.RouterGroup, ledgerService portssvc.LedgerSvcFacade) {
	h := newLedgerHandler(ledgerService)
	buckets := rg.Group("/buckets")
	{
		buckets.POST("", h.createBucket)
		buckets.GET("/:bucketID", h.getBucket)
		buckets.GET("/:bucketID/entries", h.listEntries)
		buckets.GET("/:bucketID/reconciliation", h.reconcile)
		buckets.POST("/:bucketID/release", h.release)
	}
}

// requestActor resolves the acting user from the authenticated request.
func requestActor(c *gin.Context) (domain.Actor, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return domain.Actor{}, false
	}
	return domain.UserActor(userID), true
}

// createBucket godoc
// @Summary Create a funding bucket
// @Description Creates the project funding bucket for a currency; one bucket per project and currency
// @Tags buckets
// @Accept  json
// @Produce  json
// @Param   bucket body dto.CreateBucketRequest true "Bucket details"
// @Success 201 {object} domain.FundingBucket
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "Bucket already exists for project and currency"
// @Failure 500 {object} map[string]string "Failed to create bucket"
// @Security BearerAuth
// @Router /buckets [post]
func (h *ledgerHandler) createBucket(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for createBucket", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	bucket, err := h.ledgerService.CreateBucket(c.Request.Context(), req, actor)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Bucket already exists for project and currency"})
			return
		}
		logger.Error("Failed to create bucket", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create bucket"})
		return
	}

	logger.Info("Bucket created", slog.String("bucket_id", bucket.BucketID))
	c.JSON(http.StatusCreated, bucket)
}

// getBucket godoc
// @Summary Get a funding bucket
// @Description Retrieves a bucket with its five balance partitions
// @Tags buckets
// @Produce  json
// @Param   bucketID path string true "Bucket ID"
// @Success 200 {object} domain.FundingBucket
// @Failure 404 {object} map[string]string "Bucket not found"
// @Failure 500 {object} map[string]string "Failed to retrieve bucket"
// @Security BearerAuth
// @Router /buckets/{bucketID} [get]
func (h *ledgerHandler) getBucket(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	bucketID := c.Param("bucketID")

	bucket, err := h.ledgerService.GetBucket(c.Request.Context(), bucketID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bucket not found"})
			return
		}
		logger.Error("Failed to get bucket", slog.String("error", err.Error()), slog.String("bucket_id", bucketID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bucket"})
		return
	}
	c.JSON(http.StatusOK, bucket)
}

// listEntries godoc
// @Summary List ledger entries
// @Description Pages through the bucket's append-only entry log in creation order
// @Tags buckets
// @Produce  json
// @Param   bucketID path string true "Bucket ID"
// @Param   limit query int false "Page size"
// @Param   nextToken query string false "Opaque pagination token from the previous page"
// @Success 200 {object} dto.ListEntriesResponse
// @Failure 400 {object} map[string]string "Invalid limit or pagination token"
// @Failure 500 {object} map[string]string "Failed to list entries"
// @Security BearerAuth
// @Router /buckets/{bucketID}/entries [get]
func (h *ledgerHandler) listEntries(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	bucketID := c.Param("bucketID")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}
	var nextToken *string
	if raw := c.Query("nextToken"); raw != "" {
		nextToken = &raw
	}

	entries, token, err := h.ledgerService.ListEntries(c.Request.Context(), bucketID, limit, nextToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to list entries", slog.String("error", err.Error()), slog.String("bucket_id", bucketID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list entries"})
		return
	}

	resp := dto.ListEntriesResponse{NextToken: token}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, dto.LedgerEntryResponse{
			EntryID:       e.EntryID,
			EntryNumber:   e.EntryNumber,
			EntryType:     string(e.EntryType),
			Debit:         e.Debit,
			Credit:        e.Credit,
			CurrencyCode:  string(e.CurrencyCode),
			DisplayAmount: utils.FormatMinorUnits(e.Amount(), e.CurrencyCode),
			BucketID:      e.BucketID,
			ReferenceType: string(e.ReferenceType),
			ReferenceID:   e.ReferenceID,
			BalanceAfter:  e.BalanceAfter,
			CreatedAt:     e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			CreatedBy:     e.CreatedBy.String(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// reconcile godoc
// @Summary Reconcile a funding bucket
// @Description Replays the entry log against the stored balances and reports any drift
// @Tags buckets
// @Produce  json
// @Param   bucketID path string true "Bucket ID"
// @Success 200 {object} domain.ReconciliationReport
// @Failure 404 {object} map[string]string "Bucket not found"
// @Failure 500 {object} map[string]string "Failed to reconcile bucket"
// @Security BearerAuth
// @Router /buckets/{bucketID}/reconciliation [get]
func (h *ledgerHandler) reconcile(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	bucketID := c.Param("bucketID")

	report, err := h.ledgerService.Reconcile(c.Request.Context(), bucketID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bucket not found"})
			return
		}
		logger.Error("Failed to reconcile bucket", slog.String("error", err.Error()), slog.String("bucket_id", bucketID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconcile bucket"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// release godoc
// @Summary Release reserved funds
// @Description Moves reserved funds back to available for operational corrections; the normal path is the verification gate
// @Tags buckets
// @Accept  json
// @Produce  json
// @Param   bucketID path string true "Bucket ID"
// @Param   movement body dto.FundMovementRequest true "Reference and amount"
// @Success 200 {object} domain.LedgerEntry
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Bucket not found"
// @Failure 422 {object} map[string]string "Insufficient reserved funds"
// @Security BearerAuth
// @Router /buckets/{bucketID}/release [post]
func (h *ledgerHandler) release(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	bucketID := c.Param("bucketID")

	var req dto.FundMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	entry, err := h.ledgerService.Release(c.Request.Context(), bucketID, req.ReferenceID, req.Amount, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Bucket not found"})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to release funds", slog.String("error", err.Error()), slog.String("bucket_id", bucketID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to release funds"})
		}
		return
	}
	c.JSON(http.StatusOK, entry)
}
