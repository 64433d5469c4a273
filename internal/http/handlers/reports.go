package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boxoffice/backend/internal/models"
	"boxoffice/backend/internal/reports"
	"boxoffice/backend/internal/ticketing"
)

const exportTimeout = 25 * time.Second

type reportResponse struct {
	EventID  int64    `json:"eventId"`
	Statuses []string `json:"statuses"`
	After    string   `json:"after,omitempty"`
	Before   string   `json:"before,omitempty"`
	models.ReportResult
}

// EventReport returns reconciled sales and refunds of the event's tickets.
func (h *Handler) EventReport(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, ok := eventIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	statuses, dr := reportFilters(r)

	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()
	result, err := h.reports.Aggregate(ctx, eventID, statuses, dr)
	if err != nil {
		logger.Error("action", "action", "event_report", "status", "failed", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{
		EventID:      eventID,
		Statuses:     reports.NormalizeStatuses(statuses),
		After:        formatFilterBound(dr.After),
		Before:       formatFilterBound(dr.Before),
		ReportResult: result,
	})
}

// ExportEventReport streams order lines as CSV. With archive=1 the file is
// uploaded to object storage and its location returned instead.
func (h *Handler) ExportEventReport(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, ok := eventIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	statuses, dr := reportFilters(r)
	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()

	if archive := r.URL.Query().Get("archive"); archive == "1" || archive == "true" {
		if h.archive == nil {
			writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
			return
		}
		var buf bytes.Buffer
		rows, err := h.reports.WriteCSV(ctx, &buf, eventID, statuses, dr)
		if err != nil {
			logger.Error("action", "action", "export_report", "status", "failed", "event_id", eventID, "error", err)
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		archived, err := h.archive.PutReport(ctx, eventID, buf.Bytes(), h.now())
		if err != nil {
			logger.Error("action", "action", "export_report", "status", "upload_failed", "event_id", eventID, "error", err)
			writeError(w, http.StatusBadGateway, "upload failed")
			return
		}
		logger.Info("action", "action", "export_report", "status", "archived", "event_id", eventID, "rows", rows, "key", archived.Key)
		writeJSON(w, http.StatusOK, archived)
		return
	}

	fileName := fmt.Sprintf("event-%d-tickets-%s.csv", eventID, h.now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	rows, err := h.reports.WriteCSV(ctx, w, eventID, statuses, dr)
	if err != nil {
		// Headers are already sent; the truncated file is all we can do.
		logger.Error("action", "action", "export_report", "status", "failed", "event_id", eventID, "rows", rows, "error", err)
		return
	}
	logger.Info("action", "action", "export_report", "status", "success", "event_id", eventID, "rows", rows)
}

// reportFilters reads status and date range query parameters. Statuses may
// repeat or be comma separated. Malformed dates leave that side open; a
// date-only before includes that whole day.
func reportFilters(r *http.Request) ([]string, models.DateRange) {
	query := r.URL.Query()
	var statuses []string
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, part)
			}
		}
	}

	var dr models.DateRange
	if after, ok := ticketing.ParseUTC(query.Get("after")); ok {
		dr.After = after
	}
	rawBefore := strings.TrimSpace(query.Get("before"))
	if before, ok := ticketing.ParseUTC(rawBefore); ok {
		if len(rawBefore) == len("2006-01-02") {
			before = before.Add(24 * time.Hour)
		}
		dr.Before = before
	}
	return statuses, dr
}

func formatFilterBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
