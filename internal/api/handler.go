package api

import (
	"bytes"
	"net/http"
	"strconv"

	"atomsense/adapters/excel"
	"atomsense/adapters/report"
	"atomsense/app"
	"atomsense/domain/core"
	domain "atomsense/domain/sensitivity"
	"atomsense/internal"
	apperrors "atomsense/internal/errors"
	"atomsense/ports"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 50

// SensitivityHandler serves analysis runs over HTTP
type SensitivityHandler struct {
	service    *app.SensitivityService
	colors     ports.ColorScalePort
	defaults   domain.Config
	maxWorkers int
	logger     *internal.Logger
}

// NewSensitivityHandler creates a handler. defaults fills options a request
// leaves out; requested workers above maxWorkers are lowered to it.
func NewSensitivityHandler(service *app.SensitivityService, colors ports.ColorScalePort, defaults domain.Config, maxWorkers int, logger *internal.Logger) *SensitivityHandler {
	return &SensitivityHandler{
		service:    service,
		colors:     colors,
		defaults:   defaults,
		maxWorkers: maxWorkers,
		logger:     logger.OrDefault(),
	}
}

// analyzeRequest carries the molecule and any option overrides
type analyzeRequest struct {
	SMILES string        `json:"smiles"`
	Config domain.Config `json:"config"`
}

// rebinRequest overrides binning options of a stored run; nil keeps the stored value
type rebinRequest struct {
	BottomQuantile *float64               `json:"bottom_quantile"`
	TopQuantile    *float64               `json:"top_quantile"`
	NBins          *int                   `json:"nbins"`
	ColorScale     *string                `json:"colorscale"`
	QuantileMethod *domain.QuantileMethod `json:"quantile_method"`
}

func (r rebinRequest) apply(cfg domain.Config) domain.Config {
	if r.BottomQuantile != nil {
		cfg.BottomQuantile = *r.BottomQuantile
	}
	if r.TopQuantile != nil {
		cfg.TopQuantile = *r.TopQuantile
	}
	if r.NBins != nil {
		cfg.NBins = *r.NBins
	}
	if r.ColorScale != nil {
		cfg.ColorScale = *r.ColorScale
	}
	if r.QuantileMethod != nil {
		cfg.QuantileMethod = *r.QuantileMethod
	}
	return cfg
}

func (h *SensitivityHandler) respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperrors.GetCode(err)})
}

func (h *SensitivityHandler) loadRun(c *gin.Context) (*ports.RunRecord, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.InvalidInput(err.Error()))
		return nil, false
	}
	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return run, true
}

// Analyze runs a new analysis
func (h *SensitivityHandler) Analyze(c *gin.Context) {
	req := analyzeRequest{Config: h.defaults}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.InvalidInput("invalid request body: "+err.Error()))
		return
	}

	if h.maxWorkers > 0 && req.Config.Workers > h.maxWorkers {
		h.logger.Debug("lowering requested workers %d to %d", req.Config.Workers, h.maxWorkers)
		req.Config.Workers = h.maxWorkers
	}

	run, err := h.service.Analyze(c.Request.Context(), req.SMILES, req.Config)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// ListRuns returns recent runs, newest first
func (h *SensitivityHandler) ListRuns(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(c, apperrors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun returns one stored run
func (h *SensitivityHandler) GetRun(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetPayload returns only the render payload of a run
func (h *SensitivityHandler) GetPayload(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run.Payload)
}

// Report renders the dispersion chart of a run
func (h *SensitivityHandler) Report(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	page, err := report.ChartHTML(run)
	if err != nil {
		h.respondError(c, apperrors.Wrap(err, "render report"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// Summary renders the markdown summary of a run as HTML
func (h *SensitivityHandler) Summary(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(run)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.SummaryHTML(run))
}

// Export streams the run as an xlsx workbook
func (h *SensitivityHandler) Export(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := excel.Write(&buf, run); err != nil {
		h.respondError(c, apperrors.Wrap(err, "export workbook"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+run.ID.String()+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Rebin re-levels a stored run under new binning options
func (h *SensitivityHandler) Rebin(c *gin.Context) {
	prev, ok := h.loadRun(c)
	if !ok {
		return
	}
	var req rebinRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, apperrors.InvalidInput("invalid request body: "+err.Error()))
			return
		}
	}

	run, err := h.service.Reassemble(c.Request.Context(), prev, req.apply(prev.Config))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// ColorScales lists the scale names a request may use
func (h *SensitivityHandler) ColorScales(c *gin.Context) {
	var names []string
	if lister, ok := h.colors.(interface{ Names() []string }); ok {
		names = lister.Names()
	}
	c.JSON(http.StatusOK, gin.H{"colorscales": names, "default": h.defaults.ColorScale})
}
