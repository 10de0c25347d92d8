package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func probe(h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestReadiness(t *testing.T) {
	var failing error
	h := New(func(context.Context) error { return failing })

	assert.Equal(t, http.StatusOK, probe(h.Healthz).Code)
	assert.Equal(t, http.StatusServiceUnavailable, probe(h.Readyz).Code)

	h.SetReady()
	rec := probe(h.Readyz)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	failing = errors.New("database is not connected")
	rec = probe(h.Readyz)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready: database is not connected", rec.Body.String())

	h.SetNotReady()
	assert.Equal(t, "not ready", probe(h.Readyz).Body.String())
}

func TestNilChecker(t *testing.T) {
	h := New(nil)
	h.SetReady()
	assert.Equal(t, http.StatusOK, probe(h.Readyz).Code)
}
