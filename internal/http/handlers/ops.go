package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/techdispatch/backend/internal/apperr"
)

type CityDateRequest struct {
	City string `json:"city" binding:"required"`
	Date string `json:"date" binding:"required"`
}

type GenerateRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *Handler) bindCityDate(c *gin.Context) (string, time.Time, bool) {
	var req CityDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, h.Logger, apperr.Wrap(err, apperr.CodeInvalidField, "city and date are required"))
		return "", time.Time{}, false
	}
	date, ok := h.parseDate(c, req.Date)
	if !ok {
		return "", time.Time{}, false
	}
	return strings.TrimSpace(req.City), date, true
}

// @Summary Ops schedule
// @Description Cities with assigned bookings, the optimization preview and per-technician assignments
// @Tags ops
// @Produce json
// @Param city query string false "City"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} service.Schedule
// @Router /api/ops/schedule [get]
func (h *Handler) Schedule(c *gin.Context) {
	out, err := h.Orchestrator.Schedule(c.Request.Context(), strings.TrimSpace(c.Query("city")), strings.TrimSpace(c.Query("date")), h.now())
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Preview optimization
// @Tags ops
// @Accept json
// @Produce json
// @Param request body CityDateRequest true "City and date"
// @Success 200 {object} service.Report
// @Failure 400 {object} ErrorResponse
// @Router /api/ops/preview [post]
func (h *Handler) Preview(c *gin.Context) {
	city, date, ok := h.bindCityDate(c)
	if !ok {
		return
	}
	report, err := h.Orchestrator.Preview(c.Request.Context(), city, date)
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Apply optimization
// @Tags ops
// @Accept json
// @Produce json
// @Param request body CityDateRequest true "City and date"
// @Success 200 {object} models.AssignmentRun
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/ops/apply [post]
func (h *Handler) Apply(c *gin.Context) {
	city, date, ok := h.bindCityDate(c)
	if !ok {
		return
	}
	run, err := h.Orchestrator.Apply(c.Request.Context(), city, date)
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary List runs
// @Tags ops
// @Produce json
// @Param city query string false "City"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param limit query int false "Limit"
// @Success 200 {object} map[string]any
// @Router /api/ops/runs [get]
func (h *Handler) Runs(c *gin.Context) {
	var date *time.Time
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		d, ok := h.parseDate(c, raw)
		if !ok {
			return
		}
		date = &d
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.Orchestrator.Runs(c.Request.Context(), strings.TrimSpace(c.Query("city")), date, limit)
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Run details
// @Tags ops
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} service.RunDetail
// @Failure 404 {object} ErrorResponse
// @Router /api/ops/runs/{id} [get]
func (h *Handler) RunDetails(c *gin.Context) {
	detail, err := h.Orchestrator.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// @Summary Generate slots
// @Description Creates the standard windows for every active technician on a date
// @Tags ops
// @Accept json
// @Produce json
// @Param request body GenerateRequest true "Date"
// @Success 200 {object} service.GenerateResult
// @Router /api/ops/slots/generate [post]
func (h *Handler) GenerateSlots(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, h.Logger, apperr.Wrap(err, apperr.CodeInvalidField, "date is required"))
		return
	}
	date, ok := h.parseDate(c, req.Date)
	if !ok {
		return
	}
	res, err := h.Slots.Generate(c.Request.Context(), date)
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
