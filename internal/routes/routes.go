package routes

import (
	"github.com/gin-gonic/gin"

	"fielddispatch/internal/handlers"
	"fielddispatch/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	taskHandler *handlers.TaskHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	jwtSecret []byte,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	// ---- protected
	r.Use(middleware.AuthMiddleware(jwtSecret))

	// Live channel
	r.GET("/ws", wsHandler.Handle)

	// TASKS
	tasks := r.Group("/tasks")
	{
		tasks.POST("/", taskHandler.Create)
		tasks.GET("/available", taskHandler.Available)
		tasks.GET("/mine", taskHandler.Mine)
		tasks.GET("/:id", taskHandler.GetByID)
		tasks.POST("/:id/claim", taskHandler.Claim)
		tasks.PUT("/:id/status", taskHandler.UpdateStatus)
		tasks.POST("/:id/complete", taskHandler.Complete)
		tasks.POST("/:id/cancel", taskHandler.Cancel)
	}

	// NOTIFICATIONS
	notifications := r.Group("/notifications")
	{
		notifications.GET("/", notificationHandler.List)
		notifications.GET("/stats", notificationHandler.Stats)
		notifications.PUT("/read", notificationHandler.MarkManyRead)
		notifications.PUT("/:id/delivered", notificationHandler.MarkDelivered)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/cleanup", notificationHandler.Cleanup)
	}

	return r
}
