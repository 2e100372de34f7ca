package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/search"
	"github.com/vbonduro/fgsamples/internal/service"
	"github.com/vbonduro/fgsamples/internal/session"
)

var flashes = map[string]string{
	"taken":       "Sample taken.",
	"returned":    "Sample returned.",
	"registered":  "Sample uploaded successfully.",
	"overwritten": "Existing sample overwritten.",
	"cancelled":   "Upload cancelled. The existing sample was kept.",
	"updated":     "Sample updated.",
}

// cardView is what partials/sample_card.html renders.
type cardView struct {
	Sample   *domain.Sample
	Operator session.Operator
	// Screen is "take" or "return" and picks the actions offered.
	Screen string
	Query  string
	Flash  string
	Error  string
}

func newCard(s *domain.Sample, op session.Operator, screen, query string) cardView {
	return cardView{Sample: s, Operator: op, Screen: screen, Query: query}
}

var takeTemplates = []string{"partials/take_results.html", "partials/sample_card.html", "partials/flash.html"}

func (s *Server) handleTakePage(w http.ResponseWriter, r *http.Request, sc session.Context) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))

	var res search.Result
	if brand, key := q.Get("brand"), q.Get("key"); brand != "" && key != "" {
		sample, err := s.samples.Get(r.Context(), sc, domain.Ref{Brand: brand, Key: key})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res.Selected = sample
	} else if query != "" {
		var err error
		res, err = s.samples.Search(r.Context(), sc, query)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}

	data := map[string]any{
		"Session":   sc,
		"Query":     query,
		"Result":    res,
		"Searched":  query != "",
		"Flash":     flashes[q.Get("done")],
		"ActiveNav": "take",
	}
	if isHTMX(r) {
		if err := s.renderPartial(w, http.StatusOK, "take_results", data, takeTemplates...); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}
	files := append([]string{"base.html", "pages/take.html"}, takeTemplates...)
	if err := s.renderPage(w, http.StatusOK, data, files...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

type transitionFunc func(*service.SampleService, *http.Request, session.Context, domain.Ref, session.Operator) (*domain.Sample, error)

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request, sc session.Context) {
	s.transition(w, r, sc, "take", "taken", func(svc *service.SampleService, r *http.Request, sc session.Context, ref domain.Ref, op session.Operator) (*domain.Sample, error) {
		return svc.Take(r.Context(), sc, ref, op, service.ClearOppositeAudit)
	})
}

// handleTakeScreenReturn is the Return button next to Take. It keeps the take
// audit fields and records the returner in returnBy.
func (s *Server) handleTakeScreenReturn(w http.ResponseWriter, r *http.Request, sc session.Context) {
	s.transition(w, r, sc, "take", "returned", func(svc *service.SampleService, r *http.Request, sc session.Context, ref domain.Ref, op session.Operator) (*domain.Sample, error) {
		return svc.Return(r.Context(), sc, ref, op, service.PreserveOppositeAudit)
	})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request, sc session.Context) {
	s.transition(w, r, sc, "return", "returned", func(svc *service.SampleService, r *http.Request, sc session.Context, ref domain.Ref, op session.Operator) (*domain.Sample, error) {
		return svc.Return(r.Context(), sc, ref, op, service.ClearOppositeAudit)
	})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, sc session.Context, screen, done string, apply transitionFunc) {
	ref := domain.Ref{Brand: r.FormValue("brand"), Key: r.FormValue("key")}
	op := session.Operator{
		Name: strings.TrimSpace(r.FormValue("name")),
		Line: strings.TrimSpace(r.FormValue("line")),
	}

	sample, err := apply(s.samples, r, sc, ref, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.rememberOperator(w, sc, op)

	if isHTMX(r) {
		card := newCard(sample, op, screen, r.FormValue("q"))
		card.Flash = flashes[done]
		if err := s.renderPartial(w, http.StatusOK, "sample_card", card, "partials/sample_card.html", "partials/flash.html"); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}

	v := url.Values{"done": {done}}
	if screen == "take" {
		v.Set("brand", sample.Ref.Brand)
		v.Set("key", sample.Ref.Key)
	} else if q := r.FormValue("q"); q != "" {
		v.Set("q", q)
	}
	http.Redirect(w, r, "/"+screen+"?"+v.Encode(), http.StatusSeeOther)
}

var returnTemplates = []string{"partials/return_results.html", "partials/sample_card.html", "partials/flash.html"}

func (s *Server) handleReturnPage(w http.ResponseWriter, r *http.Request, sc session.Context) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	samples, err := s.samples.ReturnCandidates(r.Context(), sc, query)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data := map[string]any{
		"Session":   sc,
		"Query":     query,
		"Samples":   samples,
		"Searched":  query != "",
		"Flash":     flashes[r.URL.Query().Get("done")],
		"ActiveNav": "return",
	}
	if isHTMX(r) {
		if err := s.renderPartial(w, http.StatusOK, "return_results", data, returnTemplates...); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}
	files := append([]string{"base.html", "pages/return.html"}, returnTemplates...)
	if err := s.renderPage(w, http.StatusOK, data, files...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}
