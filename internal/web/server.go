package web

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/fgsamples/internal/blobstore"
	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/labelreader"
	"github.com/vbonduro/fgsamples/internal/service"
	"github.com/vbonduro/fgsamples/internal/session"
)

// Deps are the collaborators the HTTP layer drives. Labels and Metrics are
// optional.
type Deps struct {
	Samples  *service.SampleService
	Auth     *service.AuthService
	Sessions *session.Manager
	Blobs    blobstore.Store
	Labels   labelreader.Reader
	Metrics  http.Handler
}

type Server struct {
	samples   *service.SampleService
	auth      *service.AuthService
	sessions  *session.Manager
	blobs     blobstore.Store
	labels    labelreader.Reader
	templates fs.FS
	mux       *http.ServeMux
	tmplFuncs template.FuncMap
	logger    *slog.Logger
}

func NewServer(deps Deps, tmpl fs.FS, logger *slog.Logger) *Server {
	s := &Server{
		samples:   deps.Samples,
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		blobs:     deps.Blobs,
		labels:    deps.Labels,
		templates: tmpl,
		mux:       http.NewServeMux(),
		logger:    logger,
		tmplFuncs: template.FuncMap{
			"card":    newCard,
			"dash":    orDash,
			"inc":     func(i int) int { return i + 1 },
			"isTaken": func(s *domain.Sample) bool { return s.Status == domain.StatusTaken },
		},
	}
	s.registerRoutes(deps.Metrics)
	return s
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /photos/{key...}", s.handleGetPhoto)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}

	s.mux.HandleFunc("GET /{$}", s.authed(s.handleHome))
	s.mux.HandleFunc("POST /admin/unlock", s.authed(s.handleAdminUnlock))

	s.mux.HandleFunc("GET /take", s.authed(s.handleTakePage))
	s.mux.HandleFunc("POST /samples/take", s.authed(s.handleTake))
	s.mux.HandleFunc("POST /samples/return", s.authed(s.handleTakeScreenReturn))

	s.mux.HandleFunc("GET /return", s.authed(s.handleReturnPage))
	s.mux.HandleFunc("POST /return", s.authed(s.handleReturn))

	s.mux.HandleFunc("GET /register", s.admin(s.handleRegisterPage))
	s.mux.HandleFunc("POST /register", s.admin(s.handleRegister))
	s.mux.HandleFunc("POST /register/confirm", s.admin(s.handleConfirmRegistration))
	s.mux.HandleFunc("POST /register/cancel", s.admin(s.handleCancelRegistration))
	s.mux.HandleFunc("GET /register/lookup", s.admin(s.handleBarcodeLookup))
	s.mux.HandleFunc("POST /register/label", s.admin(s.handleReadLabel))
	s.mux.HandleFunc("GET /samples/edit", s.admin(s.handleEditPage))
	s.mux.HandleFunc("POST /samples/edit", s.admin(s.handleEdit))

	s.mux.HandleFunc("GET /report", s.authed(s.handleReport))
	s.mux.HandleFunc("GET /report.csv", s.authed(s.handleReportCSV))
}

// sessionHandler is a handler that runs with a logged-in session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sc session.Context)

// authed redirects to the login page unless the request carries a valid
// session.
func (s *Server) authed(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := s.sessions.Read(r)
		if err != nil {
			s.logger.Debug("no session", "path", r.URL.Path, "error", err)
			redirect(w, r, "/login")
			return
		}
		h(w, r.WithContext(session.WithContext(r.Context(), sc)), sc)
	}
}

// admin additionally requires the admin password to have been entered.
func (s *Server) admin(h sessionHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, sc session.Context) {
		if !sc.Admin {
			redirect(w, r, "/?admin=required")
			return
		}
		h(w, r, sc)
	})
}

// redirect sends a 303, or an HX-Redirect for HTMX requests so the whole
// page navigates.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// securityHeaders sets the security response headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data: https:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

const requestIDHeader = "X-Request-ID"

// requestID reuses a well-formed incoming X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID(requestLogger(s.logger, securityHeaders(s.mux))).ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, status int, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return tmpl.ExecuteTemplate(w, "base", data)
}

// renderPartial executes the named {{define}} block from files, for HTMX
// swaps that replace part of a page.
func (s *Server) renderPartial(w http.ResponseWriter, status int, name string, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return tmpl.ExecuteTemplate(w, name, data)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
