package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/techdispatch/backend/internal/models"
)

type ImportSummary struct {
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Errors   []string `json:"errors"`
}

// @Summary Import technicians
// @Description Upload a technicians CSV (name, city, lat, lng, active)
// @Tags ops
// @Accept multipart/form-data
// @Produce json
// @Param technicians formData file true "technicians.csv"
// @Success 200 {object} ImportSummary
// @Failure 400 {object} ErrorResponse
// @Router /api/ops/import [post]
func (h *Handler) ImportTechnicians(c *gin.Context) {
	file, err := c.FormFile("technicians")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_FIELD", "technicians file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_FIELD", "file must be .csv", nil)
		return
	}

	existing, err := h.Slots.Technicians(c.Request.Context(), "")
	if err != nil {
		writeAppError(c, h.Logger, err)
		return
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}

	techs, errs := parseTechniciansCSV(file, known)
	summary := ImportSummary{Parsed: len(techs), Errors: errs}
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	if len(techs) > 0 {
		n, err := h.Slots.ImportTechnicians(c.Request.Context(), techs)
		if err != nil {
			writeAppError(c, h.Logger, err)
			return
		}
		summary.Inserted = int(n)
	}
	c.JSON(http.StatusOK, summary)
}

func parseTechniciansCSV(file *multipart.FileHeader, known map[string]bool) ([]models.Technician, []string) {
	f, err := file.Open()
	if err != nil {
		return nil, []string{err.Error()}
	}
	defer f.Close()
	return readTechnicians(f, known)
}

// readTechnicians parses rows into technicians. Rows whose id is in known or
// repeats an earlier row are reported and skipped.
func readTechnicians(r io.Reader, known map[string]bool) ([]models.Technician, []string) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	headers, err := reader.Read()
	if err != nil {
		return nil, []string{"failed to read header"}
	}
	index := headerIndex(headers)
	var errors []string
	var out []models.Technician
	seen := map[string]int{}

	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errors = append(errors, err.Error())
			continue
		}

		name := getFieldAny(rec, index, "name", "technician", "full_name")
		city := getField(rec, index, "city")
		if name == "" || city == "" {
			errors = append(errors, fmt.Sprintf("line %d: name and city are required", line))
			continue
		}

		id := getFieldAny(rec, index, "id", "technician_id")
		if id != "" {
			if known[id] {
				errors = append(errors, fmt.Sprintf("line %d: technician %q already exists", line, id))
				continue
			}
			if first, ok := seen[id]; ok {
				errors = append(errors, fmt.Sprintf("line %d: duplicate technician id %q (first on line %d)", line, id, first))
				continue
			}
		}

		t := models.Technician{
			ID:       id,
			Name:     name,
			City:     city,
			IsActive: true,
		}
		latRaw := getFieldAny(rec, index, "lat", "latitude")
		lngRaw := getFieldAny(rec, index, "lng", "lon", "longitude")
		if latRaw != "" || lngRaw != "" {
			lat, errLat := strconv.ParseFloat(latRaw, 64)
			lng, errLng := strconv.ParseFloat(lngRaw, 64)
			if errLat != nil || errLng != nil || !models.ValidCoordinate(lat, lng) {
				errors = append(errors, fmt.Sprintf("line %d: invalid coordinates %q,%q", line, latRaw, lngRaw))
				continue
			}
			t.Position = &models.Point{Lat: lat, Lng: lng}
		}
		if raw := getFieldAny(rec, index, "active", "is_active"); raw != "" {
			active, ok := parseBool(raw)
			if !ok {
				errors = append(errors, fmt.Sprintf("line %d: invalid active flag %q", line, raw))
				continue
			}
			t.IsActive = active
		}
		if id != "" {
			seen[id] = line
		}
		out = append(out, t)
	}
	return out, errors
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}

func headerIndex(headers []string) map[string]int {
	idx := map[string]int{}
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func getField(rec []string, idx map[string]int, name string) string {
	pos, ok := idx[name]
	if !ok || pos >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[pos])
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getField(rec, idx, normalizeHeader(name)); v != "" {
			return v
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.ToLower(strings.TrimSpace(h))
}

func validateExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".csv"
}
