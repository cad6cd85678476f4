package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"starweaved/internal/manager"
	"starweaved/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListStatuses() []types.ModelStatus
	Status() types.StatusResponse
	GetOrLoad(id string) (manager.Snapshot, error)
	Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error)
	GenerateVariations(ctx context.Context, req types.VariationsRequest, emit func(types.GenerateResponse) error) error
	Ready() bool
}

// NewMux builds the router: /models, /status, /generate,
// /generate/variations, /healthz, /readyz, /metrics.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// ListModels godoc
	// @Summary List models
	// @Description Registry catalog with live runtime status per model.
	// @Produce json
	// @Success 200 {object} types.ModelsResponse
	// @Router /models [get]
	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListStatuses()})
	})

	// Status godoc
	// @Summary Manager status
	// @Produce json
	// @Success 200 {object} types.StatusResponse
	// @Router /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	// Preload triggers a load without generating; the response is the
	// current snapshot, so callers poll until status becomes "loaded".
	r.Post("/models/{id}/load", func(w http.ResponseWriter, r *http.Request) {
		// Model ids contain slashes, so they arrive percent-encoded.
		id, err := url.PathUnescape(chi.URLParam(r, "id"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid model id")
			return
		}
		snap, err := svc.GetOrLoad(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"id":     snap.ID,
			"status": string(snap.Phase),
			"error":  snap.LastErr,
		})
	})

	// Generate godoc
	// @Summary Generate one image
	// @Accept json
	// @Produce json
	// @Param request body types.GenerateRequest true "generation request"
	// @Success 200 {object} types.GenerateResponse
	// @Failure 400 {object} types.ErrorResponse
	// @Failure 404 {object} types.ErrorResponse
	// @Failure 503 {object} types.ErrorResponse
	// @Router /generate [post]
	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeJSON[types.GenerateRequest](w, r)
		if !ok {
			return
		}
		start := time.Now()
		logGenerateStart(r, req.Model)
		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		resp, err := svc.Generate(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeServiceError(w, err)
			logGenerateEnd(r, statusForError(err), time.Since(start), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		logGenerateEnd(r, http.StatusOK, time.Since(start), nil)
	})

	// Variations stream as NDJSON, one GenerateResponse per line.
	r.Post("/generate/variations", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeJSON[types.VariationsRequest](w, r)
		if !ok {
			return
		}
		start := time.Now()
		logGenerateStart(r, req.Base.Model)
		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		enc := json.NewEncoder(w)
		wrote := false
		err := svc.GenerateVariations(ctx, req, func(resp types.GenerateResponse) error {
			if err := enc.Encode(resp); err != nil {
				return err
			}
			wrote = true
			if flush != nil {
				flush()
			}
			return nil
		})
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			if !wrote {
				// Nothing streamed yet, a proper status is still possible.
				writeServiceError(w, err)
			}
			logGenerateEnd(r, statusForError(err), time.Since(start), err)
			return
		}
		logGenerateEnd(r, http.StatusOK, time.Since(start), nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodeJSON enforces content type and body limits, then decodes into T.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing more to do than log.
		logEncodeFailure(err)
	}
}
