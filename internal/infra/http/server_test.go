package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	s := NewServer(zerolog.Nop())

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecovererTurnsPanicInto500(t *testing.T) {
	s := NewServer(zerolog.Nop())
	s.Router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := NewServer(zerolog.Nop())
	require.NoError(t, s.Shutdown(t.Context()))
	require.NoError(t, s.Start("127.0.0.1:0"))
}
