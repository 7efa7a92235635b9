package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdispatch/backend/internal/config"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/geocode"
	"github.com/techdispatch/backend/internal/lock"
	"github.com/techdispatch/backend/internal/models"
)

const staffKey = "staff-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{StaffKey: staffKey, CORSAllowed: "*", MaxUploadSizeMB: 1}
	table := geocode.NewStaticTable(map[string]models.Point{
		"400001": {Lat: 18.9388, Lng: 72.8354},
		"400050": {Lat: 19.0596, Lng: 72.8295},
	})
	return Router(cfg, db.NewMemory(), table, lock.NewLocal(time.Second), zerolog.Nop())
}

func do(t *testing.T, r *gin.Engine, method, path string, body any, staff bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if staff {
		req.Header.Set("X-Staff-Key", staffKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	env, ok := body["error"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return env["code"].(string)
}

func importTechnicians(t *testing.T, r *gin.Engine, csv string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("technicians", "technicians.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ops/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Staff-Key", staffKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bookingBody(pincode, slot string) map[string]string {
	return map[string]string{
		"name": "Asha", "phone": "9876543210", "city": "Mumbai", "address": "12 Marine Drive",
		"pincode": pincode, "date": "2025-01-15", "slot": slot,
	}
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestRouter(t), http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, newTestRouter(t), http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpsRequireStaffKey(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/api/ops/runs", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/api/ops/runs", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBookingFlow(t *testing.T) {
	r := newTestRouter(t)

	w := importTechnicians(t, r, "name,city,lat,lng,active\nZoya,Mumbai,18.94,72.835,true\nAarav,Mumbai,19.0596,72.8295,1\nIdle,Mumbai,,,false\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode(t, w)["inserted"])

	w = do(t, r, http.MethodPost, "/api/ops/slots/generate", map[string]string{"date": "2025-01-15"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 10, decode(t, w)["created"])

	w = do(t, r, http.MethodGet, "/api/available-slots?city=Mumbai&date=2025-01-15", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	slots := decode(t, w)["slots"].([]any)
	require.Len(t, slots, 5)
	assert.Equal(t, "09_11", slots[0].(map[string]any)["slot"])

	w = do(t, r, http.MethodPost, "/api/book", bookingBody("400001", "09_11"), false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Zoya", body["assigned_technician"])

	w = do(t, r, http.MethodPost, "/api/book", bookingBody("400001", "09_11"), false)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Aarav", decode(t, w)["assigned_technician"])

	w = do(t, r, http.MethodPost, "/api/book", bookingBody("400001", "09_11"), false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_TECHNICIAN_AVAILABLE", errorCode(t, w))

	w = do(t, r, http.MethodGet, "/api/technicians?city=Mumbai", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 3)
}

func TestBookingErrors(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/book", bookingBody("999999", "09_11"), false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "POSTAL_NOT_FOUND", errorCode(t, w))

	w = do(t, r, http.MethodPost, "/api/book", bookingBody("400001", "07_09"), false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_TIME_WINDOW", errorCode(t, w))

	w = do(t, r, http.MethodPost, "/api/book", map[string]string{"name": "A"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FIELD", errorCode(t, w))

	req := httptest.NewRequest(http.MethodPost, "/api/book", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = do(t, r, http.MethodGet, "/api/available-slots?city=Mumbai&date=15/01/2025", nil, false)
	assert.Equal(t, "BAD_DATE", errorCode(t, w))
}

func TestOpsPreviewApplyAndRuns(t *testing.T) {
	r := newTestRouter(t)
	w := importTechnicians(t, r, "id,name,city,lat,lng\nt1,T1,Mumbai,18.9388,72.8354\n")
	require.Equal(t, http.StatusOK, w.Code)
	do(t, r, http.MethodPost, "/api/ops/slots/generate", map[string]string{"date": "2025-01-15"}, true)
	w = do(t, r, http.MethodPost, "/api/book", bookingBody("400050", "11_13"), false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/ops/preview", map[string]string{"city": "Mumbai", "date": "2025-01-15"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode(t, w)
	assert.EqualValues(t, 0, preview["groups_optimized"])
	assert.Len(t, preview["changes"], 1)

	w = do(t, r, http.MethodPost, "/api/ops/preview", map[string]string{"city": "Mumbai"}, true)
	assert.Equal(t, "INVALID_FIELD", errorCode(t, w))

	w = do(t, r, http.MethodPost, "/api/ops/apply", map[string]string{"city": "Mumbai", "date": "2025-01-15"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	runID := decode(t, w)["id"].(string)

	w = do(t, r, http.MethodGet, "/api/ops/runs?city=Mumbai&date=2025-01-15", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)

	w = do(t, r, http.MethodGet, "/api/ops/runs/"+runID, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["changes"], 1)

	w = do(t, r, http.MethodGet, "/api/ops/runs/nope", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	w = do(t, r, http.MethodGet, "/api/ops/schedule?date=2025-01-15", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	schedule := decode(t, w)
	assert.Equal(t, "Mumbai", schedule["city"])
	assert.Contains(t, schedule["technician_assignments"], "T1")
}

func TestImportReportsDuplicateTechnicianIDs(t *testing.T) {
	r := newTestRouter(t)

	w := importTechnicians(t, r, "id,name,city\nt1,Asha,Mumbai\nt1,Bala,Mumbai\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 1, body["inserted"])
	assert.Len(t, body["errors"], 1)

	w = importTechnicians(t, r, "id,name,city\nt1,Asha again,Mumbai\nt2,Chandra,Mumbai\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.EqualValues(t, 1, body["inserted"])
	assert.Equal(t, []any{`line 2: technician "t1" already exists`}, body["errors"])
}
