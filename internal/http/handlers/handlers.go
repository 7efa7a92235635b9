package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/techdispatch/backend/internal/apperr"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/models"
	"github.com/techdispatch/backend/internal/service"
)

type Handler struct {
	Store        db.Store
	Dispatcher   *service.Dispatcher
	Orchestrator *service.Orchestrator
	Slots        *service.Slots
	Logger       zerolog.Logger
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Available slots
// @Description Windows with at least one free technician in the city on the date
// @Tags booking
// @Produce json
// @Param city query string true "City"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /api/available-slots [get]
func (h *Handler) AvailableSlots(c *gin.Context) {
	city := strings.TrimSpace(c.Query("city"))
	if city == "" {
		writeAppError(c, h.Logger, apperr.New(apperr.CodeInvalidField, "city is required"))
		return
	}
	date, ok := h.parseDate(c, c.Query("date"))
	if !ok {
		return
	}
	slots, err := h.Slots.AvailableSlots(c.Request.Context(), city, date)
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"city": city, "date": date.Format(models.DateLayout), "slots": slots})
}

// @Summary Book a technician
// @Description Assigns the nearest free technician in the requested window
// @Tags booking
// @Accept json
// @Produce json
// @Param booking body service.BookingRequest true "Booking"
// @Success 201 {object} service.BookingResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/book [post]
func (h *Handler) Book(c *gin.Context) {
	var req service.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, h.Logger, apperr.Wrap(err, apperr.CodeInvalidField, "Invalid JSON body"))
		return
	}
	res, err := h.Dispatcher.CreateBooking(c.Request.Context(), req)
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary List technicians
// @Tags booking
// @Produce json
// @Param city query string false "City"
// @Success 200 {object} map[string]any
// @Router /api/technicians [get]
func (h *Handler) Technicians(c *gin.Context) {
	items, err := h.Slots.Technicians(c.Request.Context(), strings.TrimSpace(c.Query("city")))
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) parseDate(c *gin.Context, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		writeAppError(c, h.Logger, apperr.New(apperr.CodeInvalidField, "date is required"))
		return time.Time{}, false
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		writeAppError(c, h.Logger, apperr.New(apperr.CodeBadDate, "Invalid date format. Please use YYYY-MM-DD format."))
		return time.Time{}, false
	}
	return date, true
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeAppError renders err with the status of its code. Causes of internal
// errors are logged, never returned.
func writeAppError(c *gin.Context, logger zerolog.Logger, err error) {
	appErr := apperr.As(err)
	md := apperr.MetadataFor(appErr.Code)
	if md.HTTPStatus >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
	}
	if md.Retryable {
		c.Header("Retry-After", "1")
	}
	writeError(c, md.HTTPStatus, string(appErr.Code), appErr.Message, appErr.Details)
}
