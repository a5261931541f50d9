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

// contractHandler handles HTTP requests for contracts, budget lines,
// allocations and change orders.
type contractHandler struct {
	contractService portssvc.ContractSvcFacade
}

func newContractHandler(contractService portssvc.ContractSvcFacade) *contractHandler {
	return &contractHandler{contractService: contractService}
}

func registerContractRoutes(rg *gin.RouterGroup, contractService portssvc.ContractSvcFacade) {
	h := newContractHandler(contractService)
	contracts := rg.Group("/contracts")
	{
		contracts.POST("", h.createContract)
		contracts.GET("/:contractID", h.getContract)
		contracts.POST("/:contractID/submit", h.submitContract)
		contracts.POST("/:contractID/approve", h.approveContract)
		contracts.POST("/:contractID/sign", h.signContract)
		contracts.PUT("/:contractID/allocations", h.allocateBudget)
		contracts.GET("/:contractID/allocations", h.listAllocations)
		contracts.POST("/:contractID/change-orders", h.createChangeOrder)
	}
	budgetLines := rg.Group("/budget-lines")
	{
		budgetLines.POST("", h.createBudgetLine)
	}
	changeOrders := rg.Group("/change-orders")
	{
		changeOrders.GET("/:changeOrderID/impact", h.calculateImpact)
		changeOrders.POST("/:changeOrderID/approve", h.approveChangeOrder)
		changeOrders.POST("/:changeOrderID/reject", h.rejectChangeOrder)
	}
}

// createContract godoc
// @Summary Create a new contract
// @Description Creates a contract in DRAFT against a funding bucket
// @Tags contracts
// @Accept  json
// @Produce  json
// @Param   contract body dto.CreateContractRequest true "Contract details"
// @Success 201 {object} domain.Contract
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Funding bucket not found"
// @Failure 500 {object} map[string]string "Failed to create contract"
// @Security BearerAuth
// @Router /contracts [post]
func (h *contractHandler) createContract(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for createContract", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	contract, err := h.contractService.CreateContract(c.Request.Context(), req, actor)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotToExceedBreached), errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Funding bucket not found"})
		default:
			logger.Error("Failed to create contract", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create contract"})
		}
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// getContract godoc
// @Summary Get a contract by ID
// @Description Retrieves a single contract
// @Tags contracts
// @Produce  json
// @Param   contractID path string true "Contract ID"
// @Success 200 {object} domain.Contract
// @Failure 404 {object} map[string]string "Contract not found"
// @Failure 500 {object} map[string]string "Failed to retrieve contract"
// @Security BearerAuth
// @Router /contracts/{contractID} [get]
func (h *contractHandler) getContract(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	contractID := c.Param("contractID")

	contract, err := h.contractService.GetContract(c.Request.Context(), contractID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
			return
		}
		logger.Error("Failed to get contract", slog.String("error", err.Error()), slog.String("contract_id", contractID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contract"})
		return
	}
	c.JSON(http.StatusOK, contract)
}

// transition runs one of the contract lifecycle verbs with shared error
// mapping.
func (h *contractHandler) transition(c *gin.Context, op func(ctx context.Context, contractID string, actor domain.Actor) (*domain.Contract, error)) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	contractID := c.Param("contractID")

	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	contract, err := op(c.Request.Context(), contractID, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		case errors.Is(err, services.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.Error("Contract transition failed", slog.String("error", err.Error()), slog.String("contract_id", contractID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Contract transition failed"})
		}
		return
	}
	c.JSON(http.StatusOK, contract)
}

// submitContract godoc
// @Summary Submit a contract for approval
// @Description Moves a DRAFT contract to PENDING_APPROVAL
// @Tags contracts
// @Produce  json
// @Param   contractID path string true "Contract ID"
// @Success 200 {object} domain.Contract
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Contract not found"
// @Failure 409 {object} map[string]string "Contract is not in a submittable state"
// @Security BearerAuth
// @Router /contracts/{contractID}/submit [post]
func (h *contractHandler) submitContract(c *gin.Context) {
	h.transition(c, h.contractService.SubmitContract)
}

// approveContract godoc
// @Summary Approve a contract
// @Description Approves a PENDING_APPROVAL contract and commits its amount against the funding bucket
// @Tags contracts
// @Produce  json
// @Param   contractID path string true "Contract ID"
// @Success 200 {object} domain.Contract
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Contract not found"
// @Failure 409 {object} map[string]string "Contract is not pending approval"
// @Failure 422 {object} map[string]string "Insufficient available funds"
// @Security BearerAuth
// @Router /contracts/{contractID}/approve [post]
func (h *contractHandler) approveContract(c *gin.Context) {
	h.transition(c, h.contractService.ApproveContract)
}

// signContract godoc
// @Summary Sign a contract
// @Description Moves an APPROVED contract to SIGNED, enabling invoicing
// @Tags contracts
// @Produce  json
// @Param   contractID path string true "Contract ID"
// @Success 200 {object} domain.Contract
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Contract not found"
// @Failure 409 {object} map[string]string "Contract is not approved"
// @Security BearerAuth
// @Router /contracts/{contractID}/sign [post]
func (h *contractHandler) signContract(c *gin.Context) {
	h.transition(c, h.contractService.SignContract)
}

// createBudgetLine godoc
// @Summary Create a budget line
// @Description Creates a project budget line that contract amounts can be allocated against
// @Tags budget-lines
// @Accept  json
// @Produce  json
// @Param   budgetLine body dto.CreateBudgetLineRequest true "Budget line details"
// @Success 201 {object} domain.BudgetLine
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create budget line"
// @Security BearerAuth
// @Router /budget-lines [post]
func (h *contractHandler) createBudgetLine(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateBudgetLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	line, err := h.contractService.CreateBudgetLine(c.Request.Context(), req, actor)
	if err != nil {
		logger.Error("Failed to create budget line", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create budget line"})
		return
	}
	c.JSON(http.StatusCreated, line)
}

// allocateBudget godoc
// @Summary Allocate contract budget
// @Description Replaces the contract's allocations across budget lines; validation findings come back in the result body
// @Tags contracts
// @Accept  json
// @Produce  json
// @Param   contractID path string true "Contract ID"
// @Param   allocations body dto.AllocateBudgetRequest true "Allocation lines"
// @Success 200 {object} domain.ValidationResult
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Contract not found"
// @Security BearerAuth
// @Router /contracts/{contractID}/allocations [put]
func (h *contractHandler) allocateBudget(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	contractID := c.Param("contractID")

	var req dto.AllocateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := h.contractService.AllocateBudget(c.Request.Context(), contractID, req, actor)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
			return
		}
		logger.Error("Failed to allocate budget", slog.String("error", err.Error()), slog.String("contract_id", contractID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate budget"})
		return
	}
	// Validation findings are a 200 with the result body; the caller decides
	// what to surface.
	c.JSON(http.StatusOK, result)
}

// listAllocations godoc
// @Summary List contract allocations
// @Description Lists the budget allocations recorded for a contract
// @Tags contracts
// @Produce  json
// @Param   contractID path string true "Contract ID"
// @Success 200 {array} domain.BudgetAllocation
// @Failure 500 {object} map[string]string "Failed to list allocations"
// @Security BearerAuth
// @Router /contracts/{contractID}/allocations [get]
func (h *contractHandler) listAllocations(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	contractID := c.Param("contractID")

	allocations, err := h.contractService.ListAllocations(c.Request.Context(), contractID)
	if err != nil {
		logger.Error("Failed to list allocations", slog.String("error", err.Error()), slog.String("contract_id", contractID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list allocations"})
		return
	}
	c.JSON(http.StatusOK, allocations)
}

// createChangeOrder godoc
// @Summary Create a change order
// @Description Drafts a change order adjusting the contract amount or schedule
// @Tags change-orders
// @Accept  json
// @Produce  json
// @Param   contractID path string true "Contract ID"
// @Param   changeOrder body dto.CreateChangeOrderRequest true "Change order details"
// @Success 201 {object} domain.ChangeOrder
// @Failure 400 {object} map[string]string "Invalid input format or not-to-exceed breached"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Contract not found"
// @Security BearerAuth
// @Router /contracts/{contractID}/change-orders [post]
func (h *contractHandler) createChangeOrder(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	contractID := c.Param("contractID")

	var req dto.CreateChangeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	co, err := h.contractService.CreateChangeOrder(c.Request.Context(), contractID, req, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		case errors.Is(err, services.ErrNotToExceedBreached), errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to create change order", slog.String("error", err.Error()), slog.String("contract_id", contractID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create change order"})
		}
		return
	}
	c.JSON(http.StatusCreated, co)
}

// calculateImpact godoc
// @Summary Calculate change order impact
// @Description Computes the proportional per-line allocation impact and required approver roles
// @Tags change-orders
// @Produce  json
// @Param   changeOrderID path string true "Change order ID"
// @Success 200 {object} domain.ChangeOrderImpact
// @Failure 404 {object} map[string]string "Change order not found"
// @Failure 500 {object} map[string]string "Failed to calculate impact"
// @Security BearerAuth
// @Router /change-orders/{changeOrderID}/impact [get]
func (h *contractHandler) calculateImpact(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	changeOrderID := c.Param("changeOrderID")

	impact, err := h.contractService.CalculateImpact(c.Request.Context(), changeOrderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Change order not found"})
			return
		}
		logger.Error("Failed to calculate impact", slog.String("error", err.Error()), slog.String("change_order_id", changeOrderID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate impact"})
		return
	}
	c.JSON(http.StatusOK, impact)
}

// approveChangeOrder godoc
// @Summary Approve a change order
// @Description Records the caller's role approval; when all required roles have signed, the change order is applied and the delta committed or released
// @Tags change-orders
// @Produce  json
// @Param   changeOrderID path string true "Change order ID"
// @Success 200 {object} domain.ChangeOrder
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Caller does not hold a required role"
// @Failure 404 {object} map[string]string "Change order not found"
// @Failure 409 {object} map[string]string "Change order is stale or already decided"
// @Failure 422 {object} map[string]string "Not-to-exceed breached or insufficient funds"
// @Security BearerAuth
// @Router /change-orders/{changeOrderID}/approve [post]
func (h *contractHandler) approveChangeOrder(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	changeOrderID := c.Param("changeOrderID")

	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	co, err := h.contractService.ApproveChangeOrder(c.Request.Context(), changeOrderID, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Change order not found"})
		case errors.Is(err, services.ErrRoleNotHeld), errors.Is(err, services.ErrSystemActorForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrChangeOrderStale), errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotToExceedBreached):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to approve change order", slog.String("error", err.Error()), slog.String("change_order_id", changeOrderID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve change order"})
		}
		return
	}
	c.JSON(http.StatusOK, co)
}

// rejectChangeOrder godoc
// @Summary Reject a change order
// @Description Rejects a pending change order; the contract is untouched
// @Tags change-orders
// @Produce  json
// @Param   changeOrderID path string true "Change order ID"
// @Success 200 {object} domain.ChangeOrder
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Change order not found"
// @Failure 409 {object} map[string]string "Change order is not pending"
// @Security BearerAuth
// @Router /change-orders/{changeOrderID}/reject [post]
func (h *contractHandler) rejectChangeOrder(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	changeOrderID := c.Param("changeOrderID")

	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	co, err := h.contractService.RejectChangeOrder(c.Request.Context(), changeOrderID, actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Change order not found"})
		case errors.Is(err, services.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to reject change order", slog.String("error", err.Error()), slog.String("change_order_id", changeOrderID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject change order"})
		}
		return
	}
	c.JSON(http.StatusOK, co)
}
