// Package web exposes the sync core's host surface over HTTP: status,
// manual sync trigger, occurrence listing, and the ICS export feed.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"notecal/internal/config"
	"notecal/internal/ics"
	appLog "notecal/internal/log"
	"notecal/internal/model"
	"notecal/internal/recur"
	"notecal/internal/sync"
)

// Server routes the status/control API.
type Server struct {
	cfg     *config.Config
	manager *sync.Manager
	store   sync.RecordStore
	mux     *http.ServeMux
}

// NewServer constructs a Server around the live manager and store.
func NewServer(cfg *config.Config, manager *sync.Manager, store sync.RecordStore) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		store:   store,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="notecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is cancelled.
func StartServer(ctx context.Context, cfg *config.Config, manager *sync.Manager, store sync.RecordStore) error {
	s := NewServer(cfg, manager, store)
	srv := &http.Server{Addr: cfg.Listen, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/sync", s.handleSync)
	s.mux.HandleFunc("/api/export.ics", s.handleExport)
	s.mux.HandleFunc("/api/occurrences", s.handleOccurrences)
}

type occurrenceView struct {
	ID     string `json:"id"`
	Record string `json:"record"`
	Title  string `json:"title"`
	Date   string `json:"date"`
}

// handleOccurrences expands recurring records over a date window and
// returns the derived occurrences. start/end default to the engine's
// sync window when omitted.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	win := sync.DefaultWindow(time.Now())
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start date")
			return
		}
		win.Start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end date")
			return
		}
		win.End = t
	}

	records, err := s.store.Records()
	if err != nil {
		appLog.Error("occurrence listing failed reading records", err)
		writeError(w, http.StatusInternalServerError, "failed to read records")
		return
	}

	out := make([]occurrenceView, 0)
	for _, rec := range records {
		for _, occ := range recur.ExpandRecord(rec, win.Start, win.End) {
			title := occ.Master.String(model.FieldTitle)
			if title == "" {
				title = occ.Master.String(model.FieldName)
			}
			out = append(out, occurrenceView{
				ID:     occ.ID,
				Record: occ.BaseID,
				Title:  title,
				Date:   occ.Date.Format("2006-01-02"),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

type syncResponse struct {
	Pushed    int `json:"pushed"`
	Pulled    int `json:"pulled"`
	Conflicts int `json:"conflicts"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	res, err := s.manager.Sync(r.Context())
	if err != nil {
		kind := sync.KindOf(err)
		writeError(w, httpStatusFor(kind), kind.Message())
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Pushed:    res.Pushed,
		Pulled:    res.Pulled,
		Conflicts: res.Conflicts,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	records, err := s.store.Records()
	if err != nil {
		appLog.Error("ics export failed reading records", err)
		writeError(w, http.StatusInternalServerError, "failed to read records")
		return
	}

	payload, err := ics.Export(records, s.cfg.Location(), time.Now())
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(payload))
}

// httpStatusFor maps the sync error taxonomy onto HTTP status codes.
func httpStatusFor(kind sync.Kind) int {
	switch kind {
	case sync.KindInProgress:
		return http.StatusConflict
	case sync.KindInvalidConfig, sync.KindValidation:
		return http.StatusBadRequest
	case sync.KindAuthFailed, sync.KindTokenRefresh:
		return http.StatusUnauthorized
	case sync.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case sync.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to encode JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
