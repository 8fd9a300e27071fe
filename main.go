package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/campus-gate/config"
	"github.com/yeremiapane/campus-gate/database"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/router"
	"github.com/yeremiapane/campus-gate/services"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

func init() {
	utils.InitLogger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	utils.SetJWTSecret(cfg.JWTSecret)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize DB
	db, err := config.InitDB(cfg.Database)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := feed.NewHub(cfg.Engine.FeedBuffer)
	gormStore := store.NewGormStore(db, hub)

	// Change monitor membaca db_changes dan menyiarkan ke hub
	monitor := services.NewChangeMonitor(db, hub)
	monitor.Interval = cfg.Engine.FeedPollInterval
	monitor.Retention = cfg.Engine.FeedRetention
	if err := monitor.Start(ctx); err != nil {
		utils.ErrorLogger.Fatalf("Failed to start change monitor: %v", err)
	}

	deps := router.NewDependencies(gormStore, cfg)
	r := router.SetupRouter(deps)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down...")

	// sesi guard ditutup dulu supaya websocket dilepas
	deps.Sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Errorf("Server shutdown: %v", err)
	}

	monitor.Stop()
	hub.Close()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	utils.InfoLogger.Println("Server stopped")
}
