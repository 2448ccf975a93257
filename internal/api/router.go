package api

import (
	"net/http"
	"time"

	"atomsense/internal"

	"github.com/gin-gonic/gin"
)

// NewRouter mounts the handler's routes on a fresh gin engine
func NewRouter(h *SensitivityHandler, logger *internal.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger.OrDefault()))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sensitivity", h.Analyze)
		v1.GET("/colorscales", h.ColorScales)
		v1.GET("/runs", h.ListRuns)
		v1.GET("/runs/:id", h.GetRun)
		v1.GET("/runs/:id/payload", h.GetPayload)
		v1.GET("/runs/:id/report", h.Report)
		v1.GET("/runs/:id/summary", h.Summary)
		v1.GET("/runs/:id/export.xlsx", h.Export)
		v1.POST("/runs/:id/rebin", h.Rebin)
	}

	return router
}

func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
