package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdispatch/backend/internal/apperr"
)

func TestParseTechniciansCSV(t *testing.T) {
	content := "\ufeffName,City,Lat,Lng,Active\nZoya,Mumbai,18.94,72.835,yes\nBela,Pune,,,\nBad,Pune,abc,1,\n,Delhi,1,1,\nIdle,Delhi,28.6,77.2,no\n"
	fh := makeMultipartFile(t, "technicians", "technicians.csv", content)

	techs, errs := parseTechniciansCSV(fh, nil)
	require.Len(t, techs, 3)
	assert.Len(t, errs, 2)

	assert.Equal(t, "Zoya", techs[0].Name)
	require.NotNil(t, techs[0].Position)
	assert.InDelta(t, 18.94, techs[0].Position.Lat, 1e-9)
	assert.True(t, techs[0].IsActive)

	assert.Nil(t, techs[1].Position)
	assert.True(t, techs[1].IsActive)

	assert.Equal(t, "Idle", techs[2].Name)
	assert.False(t, techs[2].IsActive)
}

func TestReadTechniciansRejectsUnusableCoordinates(t *testing.T) {
	content := "name,city,lat,lng\nT1,Mumbai,NaN,Inf\nT2,Mumbai,91,72.8\nT3,Mumbai,18.9,-181\nT4,Mumbai,18.9,72.8\n"
	techs, errs := readTechnicians(strings.NewReader(content), nil)
	require.Len(t, techs, 1)
	assert.Equal(t, "T4", techs[0].Name)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "line 2: invalid coordinates")
	assert.Contains(t, errs[2], "line 4")
}

func TestReadTechniciansDuplicateIDs(t *testing.T) {
	content := "id,name,city\nt1,Asha,Mumbai\nt2,Bala,Mumbai\nt1,Chandra,Mumbai\nold,Dev,Pune\n,Esha,Pune\n,Farah,Pune\n"
	techs, errs := readTechnicians(strings.NewReader(content), map[string]bool{"old": true})

	var names []string
	for _, tech := range techs {
		names = append(names, tech.Name)
	}
	assert.Equal(t, []string{"Asha", "Bala", "Esha", "Farah"}, names)
	assert.Equal(t, []string{
		`line 4: duplicate technician id "t1" (first on line 2)`,
		`line 5: technician "old" already exists`,
	}, errs)
}

func TestReadTechniciansEmpty(t *testing.T) {
	techs, errs := readTechnicians(strings.NewReader(""), nil)
	assert.Empty(t, techs)
	assert.Equal(t, []string{"failed to read header"}, errs)
}

func TestWriteAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.New(apperr.CodePostalNotFound, "Pincode not found"), http.StatusBadRequest, "POSTAL_NOT_FOUND"},
		{apperr.New(apperr.CodeNoTechnicianAvailable, "No technicians available"), http.StatusNotFound, "NO_TECHNICIAN_AVAILABLE"},
		{apperr.New(apperr.CodeLockTimeout, "busy"), http.StatusServiceUnavailable, "LOCK_TIMEOUT"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		writeAppError(c, zerolog.Nop(), tc.err)

		assert.Equal(t, tc.status, w.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "connection reset")
	}
}

func TestValidateExt(t *testing.T) {
	assert.True(t, validateExt("techs.CSV"))
	assert.False(t, validateExt("techs.xlsx"))
}

func makeMultipartFile(t *testing.T, fieldName, filename, content string) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(&buf, writer.Boundary())
	form, err := reader.ReadForm(int64(buf.Len()))
	require.NoError(t, err)
	files := form.File[fieldName]
	require.NotEmpty(t, files)
	return files[0]
}
