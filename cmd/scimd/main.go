// Package main is the entry point for the SCIM daemon: a standalone SCIM
// 2.0 service provider over an in-memory directory, intended for demos and
// conformance testing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openidx/scimcore/config"
	"github.com/openidx/scimcore/internal/inmem"
	"github.com/openidx/scimcore/internal/logger"
	"github.com/openidx/scimcore/registry"
	"github.com/openidx/scimcore/resources"
	"github.com/openidx/scimcore/schemas"
	"github.com/openidx/scimcore/server"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	cfg, err := config.Load("scimd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting SCIM daemon",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	// Declare resource types
	if err := schemas.User.AddExtension(schemas.EnterpriseUser, false); err != nil {
		log.Fatal("Failed to attach EnterpriseUser extension", zap.Error(err))
	}
	reg := registry.New()
	for _, decl := range []registry.ResourceTypeDecl{
		{Name: "User", Description: "User Account", Endpoint: "/Users", Definition: schemas.User},
		{Name: "Group", Description: "Group", Endpoint: "/Groups", Definition: schemas.Group},
	} {
		if err := reg.DeclareResourceType(decl); err != nil {
			log.Fatal("Failed to declare resource type", zap.String("name", decl.Name), zap.Error(err))
		}
	}

	backend := inmem.New()
	service := resources.NewService(reg, backend, cfg.BaseURL)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Metrics endpoint
	router.GET("/metrics", server.MetricsHandler())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := server.New(service, reg, cfg.ServiceProvider, cfg.BaseURL, log)
	authed := router.Group("", server.AuthMiddleware(server.AuthConfig{
		BearerToken: cfg.BearerToken,
		JWTSecret:   cfg.JWTSecret,
	}, log))
	srv.RegisterRoutes(authed)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Shutdown failed", zap.Error(err))
	}
}
