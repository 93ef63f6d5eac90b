package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"fielddispatch/internal/config"
	"fielddispatch/internal/handlers"
	"fielddispatch/internal/realtime"
	"fielddispatch/internal/repositories"
	"fielddispatch/internal/routes"
	"fielddispatch/internal/services"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func Run() {
	cfg := config.LoadConfig()

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("failed to open database: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	// === Repos ===
	taskRepo := repositories.NewTaskRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	contractorRepo := repositories.NewContractorRepository(db)

	// === Realtime ===
	hub := realtime.NewHub()

	// === Services ===
	notificationService := services.NewNotificationService(notificationRepo)
	broadcaster := realtime.NewBroadcaster(hub, notificationService, services.SkillsMatchTaskTypes)
	taskService := services.NewTaskService(taskRepo, contractorRepo, broadcaster, cfg.Tasks.DefaultRadiusKm)

	// Periodic ledger sweep: read+old records out, expired records out.
	go sweepNotifications(notificationService, cfg.Notifications)

	// === Handlers ===
	taskHandler := handlers.NewTaskHandler(taskService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, cfg.Notifications.RetentionDays)
	wsHandler := handlers.NewWSHandler(hub, contractorRepo, notificationService)

	// === Gin ===
	router := gin.Default()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	routes.SetupRoutes(router, taskHandler, notificationHandler, wsHandler, []byte(cfg.Auth.JWTSecret))

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("server listening on %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("failed to start server: ", err)
	}
}

func sweepNotifications(svc services.NotificationService, cfg config.NotificationsConfig) {
	interval := time.Duration(cfg.CleanupIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if deleted, err := svc.Cleanup(ctx, cfg.RetentionDays); err != nil {
			log.Printf("[sweep][cleanup][err] %v", err)
		} else if deleted > 0 {
			log.Printf("[sweep][cleanup][ok] deleted=%d", deleted)
		}
		if deleted, err := svc.DeleteExpired(ctx); err != nil {
			log.Printf("[sweep][expire][err] %v", err)
		} else if deleted > 0 {
			log.Printf("[sweep][expire][ok] deleted=%d", deleted)
		}
		cancel()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
