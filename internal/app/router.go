package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"alertrelay.io/relay/internal/api/handlers"
	"alertrelay.io/relay/internal/api/middleware"
)

func newRouter(server *handlers.Server, signingKey []byte) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", server.GetLiveness)
	router.GET("/readyz", server.GetReadiness)

	// Action gateway: public, authenticated per request by the action
	// token carried in the email link.
	notifications := router.Group("/notifications")
	{
		notifications.GET("/:id/received", server.MarkReceived)
		notifications.GET("/:id/resolved", server.MarkResolved)
		notifications.GET("/:id/cancel", server.CancelNotification)
		notifications.GET("/:id/status", server.GetNotificationStatus)
	}

	api := router.Group("/api/v1")
	{
		api.POST("/auth/login", server.Login)

		admin := api.Group("/admin", middleware.JWTAuth(signingKey))
		{
			admin.GET("/stats", server.GetStats)
			admin.POST("/notifications", server.CreateNotification)
			admin.DELETE("/notifications/:id", server.DeleteNotification)
		}
	}

	return router
}
