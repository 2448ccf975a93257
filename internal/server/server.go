package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"atomsense/internal/api"
	"atomsense/internal/container"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// New builds the HTTP server for a wired container
func New(c *container.Container) *http.Server {
	if c.Config.Server.GinMode != "" {
		gin.SetMode(c.Config.Server.GinMode)
	}
	handler := api.NewSensitivityHandler(c.Sensitivity, c.Colors, c.Config.Analysis, c.Config.Server.MaxWorkers, c.Logger)
	return &http.Server{
		Addr:              ":" + c.Config.Server.Port,
		Handler:           api.NewRouter(handler, c.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func Run(ctx context.Context, c *container.Container) error {
	srv := New(c)

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
