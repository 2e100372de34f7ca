package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vbonduro/fgsamples/internal/report"
	"github.com/vbonduro/fgsamples/internal/session"
)

var reportTemplates = []string{"partials/report_rows.html"}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, sc session.Context) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	samples, err := s.samples.Report(r.Context(), sc, query, status)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data := map[string]any{
		"Session":   sc,
		"Query":     query,
		"Status":    status,
		"Rows":      report.Rows(samples, s.samples.Location()),
		"ActiveNav": "report",
	}
	if isHTMX(r) {
		if err := s.renderPartial(w, http.StatusOK, "report_rows", data, reportTemplates...); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}
	files := append([]string{"base.html", "pages/report.html"}, reportTemplates...)
	if err := s.renderPage(w, http.StatusOK, data, files...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// handleReportCSV downloads the same rows the report page shows.
func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request, sc session.Context) {
	samples, err := s.samples.Report(r.Context(), sc, r.URL.Query().Get("q"), r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	if err := report.WriteCSV(w, samples); err != nil {
		s.logger.Error("write csv failed", "site", sc.Site, "error", err)
	}
}
