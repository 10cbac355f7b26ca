package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predly/settler/internal/domain"
)

type fakeRunner struct {
	report domain.PassReport
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context) (domain.PassReport, error) {
	f.calls++
	return f.report, f.err
}

func TestTriggerRunReturnsReport(t *testing.T) {
	runner := &fakeRunner{report: domain.PassReport{ID: "pass-1", Checked: 3, Resolved: 2}}
	h := NewResolutionHandler(nil, discardLogger()).WithPassRunner(runner)

	rec := httptest.NewRecorder()
	h.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/resolution/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)
	assert.Contains(t, rec.Body.String(), `"id":"pass-1"`)
	assert.Contains(t, rec.Body.String(), `"resolved":2`)
}

func TestTriggerRunConflictsWhenPassInFlight(t *testing.T) {
	h := NewResolutionHandler(nil, discardLogger()).WithPassRunner(&fakeRunner{err: domain.ErrLockHeld})

	rec := httptest.NewRecorder()
	h.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/resolution/run", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerRunUnavailableWithoutRunner(t *testing.T) {
	h := NewResolutionHandler(nil, discardLogger())

	rec := httptest.NewRecorder()
	h.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/resolution/run", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReportEndpointsWithoutStore(t *testing.T) {
	h := NewResolutionHandler(nil, discardLogger())

	rec := httptest.NewRecorder()
	h.ListReports(rec, httptest.NewRequest(http.MethodGet, "/api/resolution/reports", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
