package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate/docs/swagger"
	"authgate/internal/api"
	"authgate/internal/config"
	"authgate/internal/db"
	"authgate/internal/events"
	"authgate/internal/models"
	"authgate/internal/tasks"
	"authgate/internal/utils/logger"

	"github.com/joho/godotenv"
)

// 🚀 Main function
// @Summary Main function
// @Description Main function
// @title AuthGate API
// @version 1.0
// @description Multi-tenant authentication and authorization administration API
// @host localhost:8080
// @BasePath /
// @schemes https

// @securityDefinitions.basic BasicAuth
// @in header
// @name Authorization

func main() {

	logger := logger.New("authgate")

	// check if .env file exists
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		logger.Info("No .env file found, skipping environment variable loading")
	} else {
		logger.Info("Loading environment variables from .env file")
		if err := godotenv.Load(); err != nil {
			log.Fatalf("Failed to load environment variables: %v", err)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := db.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		err := db.Close()
		if err != nil {
			log.Fatalf("Failed to close database connection: %v", err)
		}
	}()

	dbInstance := db.GetDB()

	// Task client owns the redis connection shared with the closure cache
	taskClient := tasks.NewTaskClient(
		cfg.Redis.Addr,
		cfg.Redis.Username,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Warn("Failed to close task client: %v", err)
		}
	}()

	// Initialize API server
	apiServer := api.NewServer(cfg, dbInstance, taskClient.GetRedisClient())

	// Initialize task handlers
	taskHandler := tasks.NewTaskHandler(dbInstance, apiServer.Resolver(), apiServer.Assignments(), taskClient)

	// Initialize task server
	taskServer := tasks.NewServer(
		cfg.Redis.Addr,
		cfg.Redis.Username,
		cfg.Redis.Password,
		cfg.Redis.DB,
		taskHandler,
		logger,
	)

	// Create a context for task server
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	// Start task server
	go func() {
		if err := taskServer.Start(serverCtx); err != nil {
			_ = logger.Error("Task server error", err)
		}
	}()

	// Initialize task scheduler
	taskScheduler := tasks.NewScheduler(
		cfg.Redis.Addr,
		cfg.Redis.Username,
		cfg.Redis.Password,
		cfg.Redis.DB,
		logger,
	)

	// Start task scheduler
	go func() {
		if err := taskScheduler.Start(); err != nil {
			_ = logger.Error("Task scheduler error", err)
		}
	}()

	// Warm the grantee's closure cache whenever their grants change
	events.On(events.EventGrantCreated, warmOnGrantChange(taskClient))
	events.On(events.EventGrantReactivated, warmOnGrantChange(taskClient))

	go func() {
		logger.Success("API server started")

		// Swagger documentation
		swagger.SwaggerInfo.Title = "AuthGate API Documentation"
		swagger.SwaggerInfo.Description = "Multi-tenant authentication and authorization administration API"
		swagger.SwaggerInfo.Version = "1.0"
		swagger.SwaggerInfo.Host = "localhost:8080"
		swagger.SwaggerInfo.Schemes = []string{"https"}

		if err := apiServer.Start(); err != nil {
			_ = logger.Error("API server error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the servers
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Create a deadline for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop task scheduler
	taskScheduler.Stop()

	// Stop task server
	serverCancel()
	taskServer.Shutdown()

	// Shutdown API server
	if err := apiServer.Shutdown(ctx); err != nil {
		_ = logger.Error("Failed to shutdown API server", err)
	}

	logger.Info("Servers shutdown gracefully")
}

// warmOnGrantChange enqueues a background closure re-resolution for the user
// whose grant was created or reactivated.
func warmOnGrantChange(client *tasks.TaskClient) events.EventHandler {
	return func(data interface{}) {
		grant, ok := data.(*models.AccountAccessGroup)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.EnqueueClosureWarm(ctx, grant.UserAccountID, "")
	}
}
