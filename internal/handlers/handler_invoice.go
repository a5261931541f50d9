package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/core/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
)

// invoiceHandler handles HTTP requests for invoices and the per-project
// approval matrix.
type invoiceHandler struct {
	invoiceService portssvc.InvoiceSvcFacade
	vendorService  portssvc.VendorSvcFacade
}

func newInvoiceHandler(invoiceService portssvc.InvoiceSvcFacade, vendorService portssvc.VendorSvcFacade) *invoiceHandler {
	return &invoiceHandler{invoiceService: invoiceService, vendorService: vendorService}
}

func registerInvoiceRoutes(rg *gin.RouterGroup, invoiceService portssvc.InvoiceSvcFacade, vendorService portssvc.VendorSvcFacade) {
	h := newInvoiceHandler(invoiceService, vendorService)
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.createInvoice)
		invoices.GET("/:invoiceID", h.getInvoice)
		invoices.GET("/:invoiceID/validation", h.validateInvoice)
		invoices.GET("/:invoiceID/funds-check", h.checkFunds)
		invoices.POST("/:invoiceID/submit", h.submitInvoice)
		invoices.POST("/:invoiceID/route", h.routeInvoice)
		invoices.POST("/:invoiceID/approve", h.approveInvoice)
		invoices.POST("/:invoiceID/reject", h.rejectInvoice)
		invoices.POST("/:invoiceID/schedule", h.scheduleInvoice)
		invoices.POST("/:invoiceID/paid", h.markPaid)
	}
	projects := rg.Group("/projects")
	{
		projects.PUT("/:projectID/approval-matrix", h.setApprovalMatrix)
	}
	vendors := rg.Group("/vendors")
	{
		vendors.POST("", h.registerVendor)
		vendors.GET("/:vendorID", h.getVendor)
	}
}

// createInvoice godoc
// @Summary Create a new invoice
// @Description Creates a DRAFT invoice against a contract; retention, total and net payable are derived
// @Tags invoices
// @Accept  json
// @Produce  json
// @Param   invoice body dto.CreateInvoiceRequest true "Invoice details"
// @Success 201 {object} domain.Invoice
// @Failure 400 {object} map[string]string "Invalid input format or coding mismatch"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Contract not found"
// @Failure 500 {object} map[string]string "Failed to create invoice"
// @Security BearerAuth
// @Router /invoices [post]
func (h *invoiceHandler) createInvoice(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for createInvoice", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), req, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		case errors.Is(err, services.ErrCodingMismatch), errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to create invoice", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invoice"})
		}
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

// getInvoice godoc
// @Summary Get an invoice by ID
// @Description Retrieves a single invoice
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 200 {object} domain.Invoice
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 500 {object} map[string]string "Failed to retrieve invoice"
// @Security BearerAuth
// @Router /invoices/{invoiceID} [get]
func (h *invoiceHandler) getInvoice(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error("Failed to get invoice", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve invoice"})
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// validateInvoice godoc
// @Summary Validate an invoice against its contract
// @Description Aggregates every blocking error and advisory warning, including percent-complete divergence
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 200 {object} domain.ValidationResult
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 500 {object} map[string]string "Failed to validate invoice"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/validation [get]
func (h *invoiceHandler) validateInvoice(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	result, err := h.invoiceService.ValidateAgainstContract(c.Request.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error("Failed to validate invoice", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate invoice"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// checkFunds godoc
// @Summary Check funds availability for an invoice
// @Description Read-only projection of the contract's bucket against the invoice total; never moves funds
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 200 {object} domain.FundsCheck
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 500 {object} map[string]string "Failed to check funds"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/funds-check [get]
func (h *invoiceHandler) checkFunds(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	check, err := h.invoiceService.CheckFundsAvailability(c.Request.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error("Failed to check funds", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check funds"})
		return
	}
	c.JSON(http.StatusOK, check)
}

// submitInvoice godoc
// @Summary Submit an invoice
// @Description Validates the DRAFT invoice and moves it to SUBMITTED; any blocking finding rejects the submission
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 200 {object} domain.Invoice
// @Failure 400 {object} map[string]string "Validation findings block submission"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 409 {object} map[string]string "Invoice is not in DRAFT"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/submit [post]
func (h *invoiceHandler) submitInvoice(c *gin.Context) {
	h.lifecycle(c, h.invoiceService.SubmitInvoice)
}

// routeInvoice godoc
// @Summary Route an invoice for approval
// @Description Selects the approval-matrix band for the invoice's net payable and snapshots its requirements
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 200 {object} domain.Invoice
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Invoice or approval matrix not found"
// @Failure 409 {object} map[string]string "Invoice is not SUBMITTED"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/route [post]
func (h *invoiceHandler) routeInvoice(c *gin.Context) {
	h.lifecycle(c, h.invoiceService.RouteForApproval)
}

// scheduleInvoice godoc
// @Summary Schedule an invoice for payment
// @Description Moves an APPROVED invoice to SCHEDULED
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 200 {object} domain.Invoice
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 409 {object} map[string]string "Invoice is not APPROVED"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/schedule [post]
func (h *invoiceHandler) scheduleInvoice(c *gin.Context) {
	h.lifecycle(c, h.invoiceService.ScheduleInvoice)
}

// lifecycle runs one of the actor-only invoice verbs with shared error
// mapping.
func (h *invoiceHandler) lifecycle(c *gin.Context, op func(ctx context.Context, invoiceID string, actor domain.Actor) (*domain.Invoice, error)) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	invoice, err := op(c.Request.Context(), invoiceID, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error("Invoice transition failed", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Invoice transition failed"})
		}
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// approveInvoice godoc
// @Summary Approve an invoice
// @Description Records the caller's approval; when the snapshotted threshold is reached the invoice is APPROVED and its total encumbered
// @Tags invoices
// @Accept  json
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Param   decision body dto.DecideInvoiceRequest true "Optional comment"
// @Success 200 {object} domain.Invoice
// @Failure 400 {object} map[string]string "Invoice has not been routed"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Caller does not hold a required role"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 422 {object} map[string]string "Insufficient committed funds"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/approve [post]
func (h *invoiceHandler) approveInvoice(c *gin.Context) {
	h.decide(c, h.invoiceService.ApproveInvoice)
}

// rejectInvoice godoc
// @Summary Reject an invoice
// @Description Records a rejection and moves the SUBMITTED invoice to REJECTED
// @Tags invoices
// @Accept  json
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Param   decision body dto.DecideInvoiceRequest true "Optional comment"
// @Success 200 {object} domain.Invoice
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Caller does not hold a required role"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 409 {object} map[string]string "Invoice is not SUBMITTED"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/reject [post]
func (h *invoiceHandler) rejectInvoice(c *gin.Context) {
	h.decide(c, h.invoiceService.RejectInvoice)
}

func (h *invoiceHandler) decide(c *gin.Context, op func(ctx context.Context, invoiceID, approverID string, req dto.DecideInvoiceRequest) (*domain.Invoice, error)) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	var req dto.DecideInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	approverID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	invoice, err := op(c.Request.Context(), invoiceID, approverID, req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		case errors.Is(err, services.ErrRoleNotHeld):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrInvoiceNotRouted):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.Error("Invoice decision failed", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Invoice decision failed"})
		}
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// markPaid godoc
// @Summary Mark an invoice as paid
// @Description Records the payment-rail result: net payable and withholdings are disbursed, retention moves to reserved
// @Tags invoices
// @Accept  json
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Param   payment body dto.MarkPaidRequest true "Disbursement reference"
// @Success 200 {object} domain.Invoice
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 409 {object} map[string]string "Invoice is not SCHEDULED"
// @Failure 422 {object} map[string]string "Insufficient encumbered funds"
// @Security BearerAuth
// @Router /invoices/{invoiceID}/paid [post]
func (h *invoiceHandler) markPaid(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	var req dto.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	invoice, err := h.invoiceService.MarkInvoicePaid(c.Request.Context(), invoiceID, req, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to mark invoice paid", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark invoice paid"})
		}
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// setApprovalMatrix godoc
// @Summary Set a project's approval matrix
// @Description Replaces the three-band tiered approval matrix; in-flight invoices keep their snapshot
// @Tags projects
// @Accept  json
// @Produce  json
// @Param   projectID path string true "Project ID"
// @Param   matrix body dto.SetApprovalMatrixRequest true "Approval bands"
// @Success 200 {object} domain.ApprovalMatrix
// @Failure 400 {object} map[string]string "Matrix misconfigured"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to set approval matrix"
// @Security BearerAuth
// @Router /projects/{projectID}/approval-matrix [put]
func (h *invoiceHandler) setApprovalMatrix(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	projectID := c.Param("projectID")

	var req dto.SetApprovalMatrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	matrix, err := h.invoiceService.SetApprovalMatrix(c.Request.Context(), projectID, req, actor)
	if err != nil {
		if errors.Is(err, services.ErrMatrixMisconfigured) || errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to set approval matrix", slog.String("error", err.Error()), slog.String("project_id", projectID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set approval matrix"})
		return
	}
	c.JSON(http.StatusOK, matrix)
}

// registerVendor godoc
// @Summary Register a vendor
// @Description Registers a payee in PENDING with PENDING KYC
// @Tags vendors
// @Accept  json
// @Produce  json
// @Param   vendor body dto.RegisterVendorRequest true "Vendor details"
// @Success 201 {object} domain.Vendor
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to register vendor"
// @Security BearerAuth
// @Router /vendors [post]
func (h *invoiceHandler) registerVendor(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.RegisterVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	vendor, err := h.vendorService.RegisterVendor(c.Request.Context(), domain.Vendor{
		VendorID:     req.VendorID,
		Name:         req.Name,
		Eligible1099: req.Eligible1099,
	}, actor)
	if err != nil {
		logger.Error("Failed to register vendor", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register vendor"})
		return
	}
	c.JSON(http.StatusCreated, vendor)
}

// getVendor godoc
// @Summary Get a vendor by ID
// @Description Retrieves a vendor with its onboarding and KYC status
// @Tags vendors
// @Produce  json
// @Param   vendorID path string true "Vendor ID"
// @Success 200 {object} domain.Vendor
// @Failure 404 {object} map[string]string "Vendor not found"
// @Failure 500 {object} map[string]string "Failed to retrieve vendor"
// @Security BearerAuth
// @Router /vendors/{vendorID} [get]
func (h *invoiceHandler) getVendor(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	vendorID := c.Param("vendorID")

	vendor, err := h.vendorService.GetVendor(c.Request.Context(), vendorID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vendor not found"})
			return
		}
		logger.Error("Failed to get vendor", slog.String("error", err.Error()), slog.String("vendor_id", vendorID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vendor"})
		return
	}
	c.JSON(http.StatusOK, vendor)
}
