// Package server exposes the ingest, account and budget operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pennywise-dev/pennywise/internal/app"
)

// UserHeader carries the caller's user ID. Authentication happens upstream.
const UserHeader = "X-User-ID"

// NewRouter builds the gin engine with every /api route registered.
func NewRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.Log))

	origins := a.Config.Server.AllowedOrigins
	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Type", UserHeader},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := &Handler{app: a}
	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := api.Group("", requireUser())

	tx := authed.Group("/transactions")
	tx.GET("", h.ListTransactions)
	tx.GET("/:id", h.GetTransaction)
	tx.PATCH("/:id", h.UpdateTransaction)
	tx.DELETE("/:id", h.DeleteTransaction)
	tx.POST("/upload", h.Upload)
	tx.POST("/upload/mapped", h.UploadMapped)
	tx.POST("/preview", h.Preview)

	accts := authed.Group("/accounts")
	accts.POST("", h.CreateAccount)
	accts.GET("", h.ListAccounts)
	accts.GET("/:id", h.GetAccount)
	accts.PATCH("/:id", h.UpdateAccount)
	accts.DELETE("/:id", h.DeleteAccount)

	budgets := authed.Group("/budgets")
	budgets.POST("", h.CreateBudget)
	budgets.GET("", h.ListBudgets)
	budgets.GET("/:id", h.GetBudget)
	budgets.PATCH("/:id", h.UpdateBudget)
	budgets.DELETE("/:id", h.DeleteBudget)

	authed.POST("/reconcile", h.Reconcile)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, a *app.App) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           NewRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		a.Log.Info().Msg("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}
