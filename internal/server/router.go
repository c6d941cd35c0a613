package server

import (
	"time"

	bidding "night-auction/internal/biddingService"
	handler "night-auction/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService *bidding.BiddingService, defaultSessionTTL time.Duration) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	sessionHandler := handler.NewSessionHandler(biddingService, defaultSessionTTL)

	sessions := router.Group("/sessions")
	{
		sessions.POST("", sessionHandler.CreateSessionHandler)
		sessions.GET("/:session_id", sessionHandler.GetSessionHandler)
		sessions.POST("/:session_id/open", sessionHandler.OpenSessionHandler)
		sessions.POST("/:session_id/bids", sessionHandler.PlaceBidHandler)
		sessions.PUT("/:session_id/auto-bid", sessionHandler.SetMaxAutoBidHandler)
		sessions.POST("/:session_id/withdraw", sessionHandler.WithdrawHandler)
		sessions.POST("/:session_id/finalize", sessionHandler.FinalizeHandler)
		sessions.GET("/:session_id/events", sessionHandler.EventsHandler)
	}

	router.GET("/healthz", sessionHandler.HealthHandler)

	return router
}
