package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
	"github.com/greenledger-io/greenledger_backend/internal/platform/config"
	"github.com/greenledger-io/greenledger_backend/internal/utils"
)

// RegisterRoutes sets up all application routes, injecting dependencies
// through the service container interfaces.
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	limiterInstance *limiter.Limiter,
	posthogClient *utils.PosthogClientWrapper,
) {
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})
	r.GET("/", getHome)

	setupAPIV1Routes(r, cfg, services, limiterInstance, posthogClient)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to the entity
// route registrations.
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	limiterInstance *limiter.Limiter,
	posthogClient *utils.PosthogClientWrapper,
) {
	v1 := r.Group("/api/v1",
		middleware.RateLimit(limiterInstance),
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.PosthogMiddleware(posthogClient),
	)

	registerLedgerRoutes(v1, services.Ledger)
	registerContractRoutes(v1, services.Contract)
	registerInvoiceRoutes(v1, services.Invoice, services.Vendor)
	registerVerificationRoutes(v1, services.Verification)
	registerFinanceLoopRoutes(v1, services.FinanceLoop)
}
