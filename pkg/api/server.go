package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/imbecility/ytmp3-gateway/pkg/downloader"
	"github.com/imbecility/ytmp3-gateway/pkg/errs"
	"github.com/imbecility/ytmp3-gateway/pkg/lyrics"
	"github.com/imbecility/ytmp3-gateway/pkg/models"
)

// Gateway is the part of gateway.Service the HTTP layer talks to.
type Gateway interface {
	Convert(ctx context.Context, rawURL, format string) (*models.ConversionResult, error)
	SearchLyrics(ctx context.Context, query string) ([]lyrics.Song, error)
	FetchLyrics(ctx context.Context, pageURL string) (*lyrics.Lyrics, error)
	PrepareAudio(ctx context.Context, rawURL, format string) (*downloader.Stream, error)
	CopyAudio(ctx context.Context, st *downloader.Stream, dst io.Writer) (int64, error)
}

type Server struct {
	Port    int
	Gateway Gateway
	// RateLimit is requests per second across all clients; zero disables it.
	RateLimit       float64
	RateBurst       int
	ShutdownTimeout time.Duration
}

var indexTmpl = template.Must(template.New("index").Parse(tmpl))

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ytmp3mobi", s.handleConvert)
	mux.HandleFunc("/api/lyrics/search", s.handleLyricsSearch)
	mux.HandleFunc("/api/lyrics", s.handleLyrics)
	mux.HandleFunc("/api/audio", s.handleAudio)
	mux.HandleFunc("/", s.handleWebIndex)

	var h http.Handler = mux
	if s.RateLimit > 0 {
		burst := s.RateBurst
		if burst <= 0 {
			burst = 1
		}
		h = rateLimit(rate.NewLimiter(rate.Limit(s.RateLimit), burst), h)
	}
	h = onlyGET(h)
	h = accessLog(h)
	return requestID(h)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", fmt.Sprintf("http://localhost:%d", s.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	slog.Info("Shutting down API server", "drain", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := q.Get("url")
	if rawURL == "" {
		s.respondError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}
	format := q.Get("format")
	if format == "" {
		format = "mp3"
	}

	slog.Info("Conversion request received", "url", rawURL, "format", format, "request_id", RequestIDFrom(r.Context()))

	res, err := s.Gateway.Convert(r.Context(), rawURL, format)
	if err != nil {
		slog.Error("Conversion failed", "url", rawURL, "err", err)
		s.respondError(w, errs.HTTPStatus(err), err.Error())
		return
	}
	s.respondOK(w, res)
}

func (s *Server) handleLyricsSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "Missing q parameter")
		return
	}

	songs, err := s.Gateway.SearchLyrics(r.Context(), query)
	if err != nil {
		slog.Error("Lyrics search failed", "q", query, "err", err)
		s.respondError(w, errs.HTTPStatus(err), err.Error())
		return
	}
	s.respondOK(w, songs)
}

func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		s.respondError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	l, err := s.Gateway.FetchLyrics(r.Context(), pageURL)
	if err != nil {
		slog.Error("Lyrics fetch failed", "url", pageURL, "err", err)
		s.respondError(w, errs.HTTPStatus(err), err.Error())
		return
	}
	s.respondOK(w, l)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := q.Get("url")
	if rawURL == "" {
		s.respondError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}
	format := q.Get("format")
	if format == "" {
		format = "mp3"
	}

	st, err := s.Gateway.PrepareAudio(r.Context(), rawURL, format)
	if err != nil {
		slog.Error("Audio prepare failed", "url", rawURL, "err", err)
		s.respondError(w, errs.HTTPStatus(err), err.Error())
		return
	}

	slog.Info("Streaming audio", "vid", st.VideoID, "format", st.Format.Name, "remote", r.RemoteAddr)

	aw := &audioWriter{w: w, st: st}
	if _, err := s.Gateway.CopyAudio(r.Context(), st, aw); err != nil {
		if !aw.started {
			slog.Error("Audio stream failed", "vid", st.VideoID, "err", err)
			s.respondError(w, errs.HTTPStatus(err), err.Error())
			return
		}
		// headers are gone, the client sees a truncated body
		slog.Warn("Audio stream interrupted", "vid", st.VideoID, "err", err)
	}
}

// audioWriter delays the audio headers until ffmpeg produces its first byte.
type audioWriter struct {
	w       http.ResponseWriter
	st      *downloader.Stream
	started bool
}

func (a *audioWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !a.started {
		a.started = true
		h := a.w.Header()
		h.Set("Content-Type", a.st.Format.ContentType)
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", a.st.Filename()))
		h.Set("Cache-Control", "no-store")
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

func (s *Server) handleWebIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTmpl.Execute(w, nil)
	if err != nil {
		slog.Error("Template execution failed", "error", err, "remote", r.RemoteAddr)
	}
}

func (s *Server) respondOK(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, models.APIResponse{Status: http.StatusOK, Success: true, Result: result})
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.APIResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jerr := json.NewEncoder(w).Encode(data)
	if jerr != nil {
		slog.Error("JSON encoding failed", "error", jerr)
	}
}
