package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestHealthEndpointIsPublic(t *testing.T) {
	router := NewRouter(Deps{Validator: validator.New()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestProtectedRouteRejectsMissingBearer(t *testing.T) {
	router := NewRouter(Deps{Validator: validator.New()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
