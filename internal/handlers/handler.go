package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/app"
	"github.com/shrimpsizemoose/gradeinsight/internal/ingest"
	"github.com/shrimpsizemoose/gradeinsight/internal/metrics"
	"github.com/shrimpsizemoose/gradeinsight/internal/roster"
	"github.com/shrimpsizemoose/gradeinsight/internal/tenant"
)

type Handler struct {
	service *app.Service
	// tenants already known to exist in the store
	known sync.Map
}

func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Routes registers every endpoint. Everything except /health and /metrics
// runs behind the tenant middleware.
func (h *Handler) Routes() http.Handler {
	tenantMux := http.NewServeMux()
	tenantMux.HandleFunc("GET /dashboard", h.instrument(h.HandleDashboard))
	tenantMux.HandleFunc("GET /upload", h.instrument(h.HandleUploadForm))
	tenantMux.HandleFunc("POST /upload", h.instrument(h.HandleUpload))
	tenantMux.HandleFunc("GET /api/grades-table", h.instrument(h.HandleGradesTable))
	tenantMux.HandleFunc("GET /api/student/{email}", h.instrument(h.HandleStudent))
	tenantMux.HandleFunc("GET /api/dashboard/stats", h.instrument(h.HandleStats))
	tenantMux.HandleFunc("GET /api/downloadTemplate", h.instrument(h.HandleTemplate))
	tenantMux.HandleFunc("GET /api/students", h.instrument(h.HandleStudents))
	tenantMux.HandleFunc("GET /api/search-students", h.instrument(h.HandleSearchStudents))
	tenantMux.HandleFunc("GET /api/assignments", h.instrument(h.HandleAssignments))
	tenantMux.HandleFunc("GET /api/tags", h.instrument(h.HandleTags))
	tenantMux.HandleFunc("GET /api/export/grades.csv", h.instrument(h.HandleExport))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", h.RequireTenant(tenantMux))
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			metrics.APIRequestDuration.WithLabelValues(
				r.Pattern,
				r.Method,
				strconv.Itoa(rec.status),
			).Observe(time.Since(start).Seconds())
		}()
		next(rec, r)
	}
}

// RequireTenant resolves the tenant from the Host header and makes sure it
// exists before passing the request on.
func (h *Handler) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := h.service.Resolver.Resolve(r.Host)
		if err != nil {
			logger.Debug.Printf("Rejecting host %q: %v", r.Host, err)
			writeError(w, err)
			return
		}

		if _, ok := h.known.Load(tenantID); !ok {
			_, created, err := h.service.Store.GetOrCreateTenant(r.Context(), tenantID, tenantID)
			if err != nil {
				logger.Error.Printf("Failed to get or create tenant %s: %v", tenantID, err)
				writeError(w, err)
				return
			}
			if created {
				logger.Info.Printf("Created tenant %s", tenantID)
			}
			h.known.Store(tenantID, true)
		}

		next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), tenantID)))
	})
}

func tenantID(r *http.Request) string {
	id, _ := tenant.FromContext(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	var perr *ingest.PersistenceError
	var maxBytes *http.MaxBytesError
	switch {
	case roster.IsInputError(err):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, tenant.ErrInvalidHost),
		errors.Is(err, tenant.ErrReservedSubdomain),
		errors.Is(err, tenant.ErrInvalidTenantFormat):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &maxBytes):
		status, message = http.StatusRequestEntityTooLarge, "upload is too large"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "upload timed out and was rolled back"
	case errors.As(err, &perr):
		message = "failed to save upload, nothing was changed"
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.service.Store.Ping(ctx); err != nil {
		logger.Error.Printf("Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": now,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "timestamp": now})
}
