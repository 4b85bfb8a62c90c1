package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/snapsplit/sync-core/internal/authcheck"
	"github.com/snapsplit/sync-core/internal/middleware"
)

// RegisterRoutes wires every bill-sync, operation-log, settlement, and
// websocket endpoint. Bills are reachable by share code without an owner
// token; write endpoints accept an optional owner token (OptionalAuthenticate)
// so an authenticated owner's edits carry an ActorID while an anonymous
// collaborator's do not. A resolved owner identity is further required to
// own or participate in the targeted bill; an anonymous request is granted
// by the share code alone and skips that check.
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, access *authcheck.Checker, rl *middleware.RateLimiter, sync *SyncHandler, settle *SettlementHandler, ws *WebSocketHandler) {
	api := e.Group("/api/v1")

	bills := api.Group("/bills")
	bills.Use(authMiddleware.OptionalAuthenticate())
	bills.Use(middleware.RequireBillAccess(access))
	bills.Use(middleware.RateLimitMiddleware(rl))

	bills.POST("/sync", sync.BulkSync)
	bills.POST("/:id/delta-sync", sync.DeltaSync)
	bills.POST("/:id/operations", sync.SubmitOperation)
	bills.GET("/:id/operations", sync.ListOperations)
	bills.POST("/:id/settlements/toggle", settle.ToggleSettlement)
	bills.GET("/:id/settlement", settle.GetSettlement)
	bills.GET("/:id/settlement/history", settle.GetSettlementHistory)
	bills.GET("/:id/ws", ws.Subscribe)
}
