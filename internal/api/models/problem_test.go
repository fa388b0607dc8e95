package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/roadpulse/internal/api/models"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_test123")

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Nil(t, p.Errors)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_abc", "invalid viewport", []models.FieldError{
		{Field: "lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"},
	})
	rec := httptest.NewRecorder()

	p.Write(rec)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_abc", rec.Header().Get("X-Request-Id"))

	var body models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invalid viewport", body.Detail)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "lat", body.Errors[0].Field)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	rec := httptest.NewRecorder()
	models.NewInternalError("", "boom").Write(rec)

	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		status  int
		typ     string
	}{
		{"not found", models.NewNotFound("t", "d"), http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", models.NewConflict("t", "d"), http.StatusConflict, models.ProblemTypeConflict},
		{"out of range", models.NewOutOfRange("t", "d"), http.StatusUnprocessableEntity, models.ProblemTypeOutOfRange},
		{"too many requests", models.NewTooManyRequests("t", "d"), http.StatusTooManyRequests, models.ProblemTypeTooManyRequests},
		{"internal", models.NewInternalError("t", "d"), http.StatusInternalServerError, models.ProblemTypeInternal},
		{"bad gateway", models.NewBadGateway("t", "d"), http.StatusBadGateway, models.ProblemTypeUpstream},
		{"unavailable", models.NewServiceUnavailable("t", "d"), http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
		{"unsupported", models.NewUnsupportedMediaType("t", "d"), http.StatusUnsupportedMediaType, models.ProblemTypeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "t", tt.problem.TraceID)
		})
	}
}

func TestNewTLSRequired(t *testing.T) {
	p := models.NewTLSRequired("req_1")
	assert.Equal(t, http.StatusForbidden, p.Status)
	assert.Equal(t, models.ProblemTypeTLSRequired, p.Type)
	assert.NotEmpty(t, p.Detail)
}
