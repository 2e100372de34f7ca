package web

import (
	"net/http"

	"github.com/vbonduro/fgsamples/internal/session"
)

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.Read(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderLogin(w, http.StatusOK, map[string]any{"UserID": "", "Line": ""})
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, data map[string]any) {
	if err := s.renderPage(w, status, data, "base.html", "pages/login.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	userID := r.FormValue("userId")
	line := r.FormValue("line")

	sc, err := s.auth.Login(r.Context(), userID, line, r.FormValue("password"))
	if err != nil {
		s.renderLogin(w, statusFor(err), map[string]any{
			"Error":  messageFor(err),
			"UserID": userID,
			"Line":   line,
		})
		return
	}
	if err := s.sessions.Issue(w, sc); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	redirect(w, r, "/login")
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, sc session.Context) {
	s.renderHome(w, r, sc, http.StatusOK, "")
}

func (s *Server) renderHome(w http.ResponseWriter, r *http.Request, sc session.Context, status int, adminError string) {
	counts, err := s.samples.Counts(r.Context(), sc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if adminError == "" && r.URL.Query().Get("admin") == "required" {
		adminError = "Enter the admin password to register samples."
	}
	if err := s.renderPage(w, status, map[string]any{
		"Session":    sc,
		"Counts":     counts,
		"AdminError": adminError,
		"ActiveNav":  "home",
	}, "base.html", "pages/home.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleAdminUnlock(w http.ResponseWriter, r *http.Request, sc session.Context) {
	unlocked, err := s.auth.UnlockAdmin(sc, r.FormValue("password"))
	if err != nil {
		s.renderHome(w, r, sc, statusFor(err), messageFor(err))
		return
	}
	if err := s.sessions.Issue(w, unlocked); err != nil {
		s.fail(w, r, err)
		return
	}
	redirect(w, r, "/register")
}

// rememberOperator reissues the session so the next take or return form is
// prefilled with op.
func (s *Server) rememberOperator(w http.ResponseWriter, sc session.Context, op session.Operator) {
	if sc.Operator == op {
		return
	}
	sc.Operator = op
	if err := s.sessions.Issue(w, sc); err != nil {
		s.logger.Warn("failed to update session operator", "user", sc.UserID, "error", err)
	}
}
