package web

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rehabcal/internal/config"
	"rehabcal/internal/ics"
	"rehabcal/internal/importer"
	"rehabcal/internal/journal"
	appLog "rehabcal/internal/log"
	"rehabcal/internal/model"
	"rehabcal/internal/scheduler"
)

// Journal is the import history the API reads and appends to.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Refresher exposes the scheduled sources.
type Refresher interface {
	RunOnce(ctx context.Context) []scheduler.SourceStatus
	Latest() []scheduler.SourceStatus
}

// Server provides the HTTP import API.
type Server struct {
	cfg       *config.Config
	mux       *http.ServeMux
	engine    importer.Engine
	journal   Journal
	refresher Refresher
}

// NewServer constructs a new Server. journal and refresher may be nil, in
// which case the endpoints depending on them answer 503.
func NewServer(cfg *config.Config, j Journal, r Refresher) *Server {
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		journal:   j,
		refresher: r,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="rehabcal", charset="UTF-8"`)
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

// Serve runs an HTTP server on cfg.Listen until ctx is cancelled, then
// shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("POST /api/convert", s.handleConvert)
	s.mux.HandleFunc("GET /api/imports", s.handleImports)
	s.mux.HandleFunc("GET /api/sources", s.handleSources)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// importResponse is the JSON response shape for /api/import.
type importResponse struct {
	importer.Report
	Summary     string             `json:"summary"`
	Occurrences []model.Occurrence `json:"occurrences,omitempty"`
	Truncated   []int              `json:"truncated,omitempty"`
}

// handleImport decodes an uploaded export.
//
// POST /api/import?format=ics&source=clinic&encoding=base64&expand_days=14&expand_from=2024-06-01
//   - format:      ics, json or csv (required)
//   - source:      label stored in the journal (default "upload")
//   - encoding:    "base64" when the body is base64 encoded
//   - expand_days: if > 0, also expand recurrences over that many days
//   - expand_from: first day of the expansion window (default today)
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	text, err := s.readBody(w, r)
	if err != nil {
		s.writeImportError(w, err)
		return
	}

	format := q.Get("format")
	rep, err := s.engine.Run(text, format)
	source := q.Get("source")
	if source == "" {
		source = "upload"
	}
	s.record(ctx, source, format, rep, err)
	if err != nil {
		s.writeImportError(w, err)
		return
	}

	appLog.Info("api import", "source", source, "format", format, "summary", rep.Summary())

	resp := importResponse{Report: rep, Summary: rep.Summary()}
	if days := parseIntDefault(q.Get("expand_days"), 0); days > 0 {
		from, err := parseDay(q.Get("expand_from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "expand_from must be YYYY-MM-DD")
			return
		}
		expanded, err := ics.ExpandOccurrences(rep.Records, ics.ExpandConfig{
			RangeStart: from,
			RangeEnd:   from.AddDate(0, 0, days),
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Occurrences = expanded.Occurrences
		resp.Truncated = expanded.Truncated
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleConvert imports an export and answers with an iCalendar feed.
//
// POST /api/convert?from=csv
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	text, err := s.readBody(w, r)
	if err != nil {
		s.writeImportError(w, err)
		return
	}
	rep, err := s.engine.Run(text, r.URL.Query().Get("from"))
	if err != nil {
		s.writeImportError(w, err)
		return
	}

	feed, skipped := ics.Encode(rep.Records, ics.EncodeOptions{})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("X-Import-Summary", rep.Summary())
	w.Header().Set("X-Export-Skipped", strconv.Itoa(skipped))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, feed)
}

// handleImports lists recent journal entries.
//
// GET /api/imports?limit=20
func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	entries, err := s.journal.Recent(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 50))
	if err != nil {
		appLog.Error("api imports: journal read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.refresher.Latest())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.refresher.RunOnce(r.Context()))
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (string, error) {
	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return "", err
	}
	if r.URL.Query().Get("encoding") == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return "", &badRequestError{msg: "body is not valid base64"}
		}
		data = decoded
	}
	return string(data), nil
}

func (s *Server) record(ctx context.Context, source, format string, rep importer.Report, importErr error) {
	if s.journal == nil {
		return
	}
	e := journal.Entry{
		ID:            rep.ID,
		Source:        source,
		Format:        format,
		Found:         rep.Found,
		Imported:      rep.Imported,
		DateFallbacks: rep.DateFallbacks,
	}
	if importErr != nil {
		e.ID = uuid.NewString()
		e.Error = importErr.Error()
	}
	if err := s.journal.Record(ctx, e); err != nil {
		appLog.Error("journal record failed", err, "source", source)
	}
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

// writeImportError maps decoder and request errors to status codes.
func (s *Server) writeImportError(w http.ResponseWriter, err error) {
	var (
		ufe *model.UnsupportedFormatError
		ife *model.InvalidFormatError
		mie *model.MalformedInputError
		bre *badRequestError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ufe), errors.As(err, &ife), errors.As(err, &mie), errors.As(err, &bre):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &mbe):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		appLog.Error("api import failed", err)
		writeError(w, http.StatusInternalServerError, "import failed")
	}
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseDay(v string) (time.Time, error) {
	if v == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
