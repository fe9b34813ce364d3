package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/monitoring"
	"github.com/sells-group/vis2attr/internal/pipeline"
	"github.com/sells-group/vis2attr/internal/storage"
)

// maxUploadBytes caps a multipart analyze request.
const maxUploadBytes = 32 << 20

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Start the HTTP API",
	Args:        cobra.NoArgs,
	Annotations: withMode("serve"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := pipeline.FromConfig(ctx, cfg, monitoring.NewAccumulator())
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		port, _ := cmd.Flags().GetInt("port")
		return startServer(ctx, buildRouter(p), resolvePort(port, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx ends, then shuts down.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// buildRouter wires the HTTP API over p and its storage.
func buildRouter(p *pipeline.Pipeline) http.Handler {
	api := &apiHandler{p: p, store: p.Storage()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", api.status)
		r.Post("/analyze", api.analyze)
		r.Route("/items", func(r chi.Router) {
			r.Get("/", api.listItems)
			r.Get("/{id}", api.getItem)
			r.Get("/{id}/{kind}", api.getItem)
			r.Delete("/{id}", api.deleteItem)
		})
	})
	return r
}

type apiHandler struct {
	p     *pipeline.Pipeline
	store storage.Storage
}

func (h *apiHandler) status(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"pipeline": h.p.Status()}
	if m := h.p.Metrics(); m != nil {
		body["metrics"] = m.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

// analyze accepts a multipart form with one or more "images" parts and
// runs them as a single item.
func (h *apiHandler) analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one \"images\" file is required")
		return
	}

	dir, err := os.MkdirTemp("", "vis2attr-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not stage upload")
		return
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	for i, fh := range files {
		name := fmt.Sprintf("%02d%s", i, filepath.Ext(filepath.Base(fh.Filename)))
		if err := saveUpload(fh, filepath.Join(dir, name)); err != nil {
			writeError(w, http.StatusInternalServerError, "could not stage upload")
			return
		}
	}

	res := h.p.Process(r.Context(), dir)
	status := http.StatusOK
	if !res.Success {
		status = statusForKind(res.ErrorKind)
	}
	writeJSON(w, status, res)
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return eris.Wrap(err, "serve: open upload")
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "serve: create upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close() //nolint:errcheck
		return eris.Wrap(err, "serve: copy upload")
	}
	return eris.Wrap(dst.Close(), "serve: close upload file")
}

func (h *apiHandler) listItems(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListItems(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ids})
}

func (h *apiHandler) getItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := storage.ValidateItemID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := storage.KindAttributes
	if k := chi.URLParam(r, "kind"); k != "" {
		kind = storage.Kind(k)
	}

	var (
		doc *storage.Document
		err error
	)
	switch kind {
	case storage.KindAttributes:
		doc, err = h.store.RetrieveAttributes(r.Context(), id)
	case storage.KindRawResponse:
		doc, err = h.store.RetrieveRawResponse(r.Context(), id)
	case storage.KindLineage:
		doc, err = h.store.RetrieveLineage(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown document kind %q", kind))
		return
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *apiHandler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := storage.ValidateItemID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.DeleteItem(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindIngest, apperr.KindPrompt:
		return http.StatusUnprocessableEntity
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindAPI, apperr.KindMalformedJSON, apperr.KindSchemaMismatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case apperr.Is(err, apperr.KindStorage):
		writeError(w, http.StatusInternalServerError, "storage error")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
