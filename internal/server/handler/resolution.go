package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/predly/settler/internal/domain"
)

// PassRunner runs one resolution pass; implemented by the engine runner.
type PassRunner interface {
	Run(ctx context.Context) (domain.PassReport, error)
}

// ResolutionHandler serves resolution pass endpoints: the manual trigger and
// the report history.
type ResolutionHandler struct {
	reports domain.ReportStore
	logger  *slog.Logger
	runner  PassRunner // when non-nil, the manual trigger runs a pass
}

// NewResolutionHandler creates a ResolutionHandler. The report store may be
// nil, in which case report endpoints answer 404.
func NewResolutionHandler(reports domain.ReportStore, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		reports: reports,
		logger:  logger,
	}
}

// WithPassRunner enables the manual trigger with the given runner.
func (h *ResolutionHandler) WithPassRunner(runner PassRunner) *ResolutionHandler {
	h.runner = runner
	return h
}

// TriggerRun runs one resolution pass synchronously and returns its report.
// The pass lock makes a trigger overlapping the scheduled loop a clean 409
// rather than a double run.
// POST /api/resolution/run
func (h *ResolutionHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "resolution engine is not running in this mode")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: resolution pass requested")

	report, err := h.runner.Run(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			writeError(w, http.StatusConflict, "a resolution pass is already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: resolution pass failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "resolution pass failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListReports returns recent pass reports, newest first.
// GET /api/resolution/reports?limit=20
func (h *ResolutionHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusNotFound, "report history not configured")
		return
	}

	opts := parseListOpts(r)
	reports, err := h.reports.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list reports failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"total":   len(reports),
	})
}

// GetReport returns a single pass report by ID.
// GET /api/resolution/reports/{id}
func (h *ResolutionHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusNotFound, "report history not configured")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing report id")
		return
	}

	report, err := h.reports.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get report failed",
			slog.String("report_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
