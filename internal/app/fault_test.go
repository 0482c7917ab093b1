package app

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
)

func serveWithBoundary(t *testing.T, verbose bool, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res := httptest.NewRecorder()
	FaultBoundary(templates, logger, verbose)(h).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	return res
}

func TestFaultBoundaryRecoversPanic(t *testing.T) {
	res := serveWithBoundary(t, false, func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	require.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Contains(t, res.Body.String(), "Oops!")
	assert.Contains(t, res.Body.String(), "Something went wrong. Our team has been notified.")
	assert.NotContains(t, res.Body.String(), "boom")
}

func TestFaultBoundaryRendersReportedFault(t *testing.T) {
	res := serveWithBoundary(t, true, func(_ http.ResponseWriter, r *http.Request) {
		shared.ReportFault(r.Context(), errors.New("template exploded"))
	})

	require.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Contains(t, res.Body.String(), "template exploded")
}

func TestFaultBoundaryLeavesStartedResponses(t *testing.T) {
	res := serveWithBoundary(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		shared.ReportFault(r.Context(), errors.New("late failure"))
	})

	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.Equal(t, "partial", res.Body.String())
}

func TestFaultBoundaryPassesHealthyRequests(t *testing.T) {
	res := serveWithBoundary(t, false, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fine"))
	})

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "fine", res.Body.String())
}

func TestFaultBoundaryRepanicsAbort(t *testing.T) {
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serveWithBoundary(t, false, func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		})
	})
}
