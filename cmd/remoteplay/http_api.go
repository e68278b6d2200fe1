package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ============================================================================
// HTTP API
// ============================================================================
// The companion device talks to these routes:
//
//   POST   /upload                 multipart "file" -> media store -> arrival
//   GET    /files                  [{name, url}]
//   DELETE /delete/{fileName}
//   GET    /memory                 {memory: "<free> MB / <total> MB"}
//   GET    /control?command=<tag>  remote command channel
//   GET    /media/*                static media
//
// plus /state, /playlist, /ws/state, /metrics and /health.
// ============================================================================

// commandSink is the router as seen by HTTP handlers.
type commandSink interface {
	Submit(ctx context.Context, src Source, ev Event) error
	DispatchRemote(ctx context.Context, tag string) (bool, error)
	Snapshot(ctx context.Context) (StateSnapshot, error)
}

type apiServer struct {
	cfg      HTTPConfig
	store    *MediaStore
	sink     commandSink
	notifier ArrivalNotifier
	stateWS  http.Handler
	logger   *slog.Logger
}

type fileEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func newAPIHandler(cfg HTTPConfig, store *MediaStore, sink commandSink, notifier ArrivalNotifier, stateWS http.Handler, logger *slog.Logger) http.Handler {
	s := &apiServer{
		cfg:      cfg,
		store:    store,
		sink:     sink,
		notifier: notifier,
		stateWS:  stateWS,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer, requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitPerMinute))
		r.Post("/upload", s.handleUpload)
		r.Get("/control", s.handleControl)
	})

	r.Get("/files", s.handleFiles)
	r.Delete("/delete/{fileName}", s.handleDelete)
	r.Get("/memory", s.handleMemory)

	r.Get("/state", s.handleState)
	r.Route("/playlist", func(r chi.Router) {
		r.Get("/", s.handlePlaylist)
		r.Post("/{index}/play", s.handlePlaylistPlay)
		r.Delete("/{index}", s.handlePlaylistRemove)
	})

	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(store.Dir()))))

	if stateWS != nil {
		r.Handle(cfg.StateWSPath, stateWS)
	}

	return r
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadMB<<20)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		uploadsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			uploadsTotal.WithLabelValues("bad_request").Inc()
			writeError(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		saved, err := s.store.Save(part.FileName(), part)
		_ = part.Close()
		if err != nil {
			s.uploadFailed(w, err)
			return
		}

		s.logger.Info("file uploaded", "file", saved.Name, "bytes", saved.Size, "remote_addr", r.RemoteAddr)

		if err := s.notifier.NotifyArrival(r.Context(), saved.Name, saved.Path); err != nil {
			uploadsTotal.WithLabelValues("notify_failed").Inc()
			s.logger.Error("upload stored but not queued", "file", saved.Name, "error", err)
			writeError(w, http.StatusInternalServerError, "file stored but could not be queued")
			return
		}

		uploadsTotal.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, map[string]string{
			"message":  "File uploaded successfully",
			"fileName": saved.Name,
			"filePath": saved.Path,
		})
		return
	}
}

func (s *apiServer) uploadFailed(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errInvalidFileName):
		uploadsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &maxErr):
		uploadsTotal.WithLabelValues("too_large").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", s.cfg.MaxUploadMB))
	default:
		uploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.List()
	if err != nil {
		s.logger.Error("list media failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]fileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, fileEntry{
			Name: f.Name,
			URL:  (&url.URL{Scheme: "http", Host: r.Host, Path: "/media/" + f.Name}).String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	// chi matches against RawPath when it is set, so only then is the param still escaped.
	name := chi.URLParam(r, "fileName")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	if err := s.store.Delete(name); err != nil {
		s.logger.Warn("delete failed", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("file deleted", "file", name)
	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

func (s *apiServer) handleMemory(w http.ResponseWriter, _ *http.Request) {
	free, total, err := memoryStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"memory": fmt.Sprintf("%d MB / %d MB", free>>20, total>>20),
	})
}

func (s *apiServer) handleControl(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("command")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "missing command")
		return
	}

	dispatched, err := s.sink.DispatchRemote(r.Context(), tag)
	if err != nil {
		s.logger.Error("control dispatch failed", "command", tag, "error", err)
		writeError(w, http.StatusInternalServerError, "command could not be dispatched")
		return
	}
	if !dispatched {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "command": tag})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "command": tag})
}

func (s *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sink.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sink.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":         snap.Items,
		"current_index": snap.CurrentIndex,
	})
}

func (s *apiServer) handlePlaylistPlay(w http.ResponseWriter, r *http.Request) {
	s.submitIndexed(w, r, func(i int) Event { return Load{Index: i} })
}

func (s *apiServer) handlePlaylistRemove(w http.ResponseWriter, r *http.Request) {
	s.submitIndexed(w, r, func(i int) Event { return RemoveMedia{Index: i} })
}

// submitIndexed parses {index} and queues the event. Range checks belong to the controller.
func (s *apiServer) submitIndexed(w http.ResponseWriter, r *http.Request, build func(int) Event) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := s.sink.Submit(r.Context(), SourceRemote, build(idx)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// rateLimit limits requests per client IP. limit <= 0 disables it.
func rateLimit(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		limit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr)
		})
	}
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx
// is canceled. ready, if non-nil, receives the bound address.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, ready func(net.Addr), logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	logger.Info("HTTP server listening", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr())
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// Serve returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
