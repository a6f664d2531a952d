package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/domain"
	"github.com/kailas-cloud/vfields/internal/domain/filter"
	"github.com/kailas-cloud/vfields/internal/logger"
	healthuc "github.com/kailas-cloud/vfields/internal/usecase/health"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
)

const (
	maxEvaluateRecords = 10000
	maxBodyBytes       = 32 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the virtual field HTTP API.
type Server struct {
	processor     Processor
	fields        FieldLister
	stats         StatsReader
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	processor Processor,
	fields FieldLister,
	stats StatsReader,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		processor: processor,
		fields:    fields,
		stats:     stats,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		computationErrorHandler,
		resourceExhaustedHandler,
		sentinelHandler(domain.ErrFieldNotFound, http.StatusNotFound, CodeFieldNotFound),
		sentinelHandler(domain.ErrInvalidPredicate, http.StatusBadRequest, CodeInvalidPredicate),
		sentinelHandler(domain.ErrUnsupportedOperator, http.StatusBadRequest, CodeUnsupportedOperator),
		sentinelHandler(domain.ErrConfiguration, http.StatusBadRequest, CodeConfiguration),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/evaluate/{entityType}", s.Evaluate)
		r.Get("/fields", s.ListFields)
		r.Get("/stats", s.GetStats)
		r.Get("/stats/fields/{name}", s.GetFieldStats)
		r.Post("/cache/invalidate", s.InvalidateCache)
	})
}

// Evaluate handles POST /v1/evaluate/{entityType}: filter, then sort, then
// decorate the surviving records with the selected fields.
func (s *Server) Evaluate(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")

	var req EvaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Records) > maxEvaluateRecords {
		writeError(w, http.StatusBadRequest, CodeBadRequest,
			fmt.Sprintf("at most %d records per request", maxEvaluateRecords))
		return
	}
	for i, rec := range req.Records {
		if rec.ID == "" {
			writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("records[%d].id is required", i))
			return
		}
	}

	var dir filter.Direction
	if req.Sort != nil {
		d, err := filter.ParseDirection(req.Sort.Direction)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		dir = d
	}

	ctx := r.Context()
	entities := recordsFromInput(entityType, req.Records)

	out, err := s.processor.Filter(ctx, entities, req.Filters)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if req.Sort != nil {
		if out, err = s.processor.Sort(ctx, out, req.Sort.Field, dir); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
	}
	if out, err = s.processor.ComputeForSelection(ctx, out, req.Select); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := EvaluateResponse{
		Records: make([]RecordOutput, len(out)),
		Total:   len(out),
		Input:   len(entities),
	}
	for i, e := range out {
		resp.Records[i] = recordToOutput(e, req.Select)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListFields handles GET /v1/fields.
func (s *Server) ListFields(w http.ResponseWriter, _ *http.Request) {
	defs := s.fields.All()
	items := make([]FieldResponse, len(defs))
	for i, d := range defs {
		items[i] = fieldToResponse(d)
	}
	writeJSON(w, http.StatusOK, FieldListResponse{Items: items})
}

// GetStats handles GET /v1/stats.
func (s *Server) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsToResponse(s.stats.Statistics()))
}

// GetFieldStats handles GET /v1/stats/fields/{name}.
func (s *Server) GetFieldStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.fields.Get(name); !ok {
		s.handleDomainError(w, r, fmt.Errorf("stats for %q: %w", name, domain.ErrFieldNotFound))
		return
	}
	fs, ok := s.stats.FieldMetrics(name)
	if !ok {
		fs.Field = name
	}
	writeJSON(w, http.StatusOK, fieldStatsToResponse(fs))
}

// InvalidateCache handles POST /v1/cache/invalidate.
func (s *Server) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.EntityType == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "entity_type is required")
		return
	}
	for _, name := range req.Fields {
		if _, ok := s.fields.Get(name); !ok {
			s.handleDomainError(w, r, fmt.Errorf("invalidate %q: %w", name, domain.ErrFieldNotFound))
			return
		}
	}

	ctx := r.Context()
	if len(req.IDs) == 0 {
		s.processor.InvalidateType(ctx, req.EntityType, req.Fields...)
	} else {
		for _, e := range recordsFromInput(req.EntityType, idsToRecords(req.IDs)) {
			s.processor.Invalidate(ctx, e, req.Fields...)
		}
	}

	logger.FromContext(ctx).Info("Virtual field cache invalidated",
		zap.String("entity_type", req.EntityType),
		zap.Int("ids", len(req.IDs)),
		zap.Strings("fields", req.Fields),
	)
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
		Fields: report.Fields,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func idsToRecords(ids []string) []RecordInput {
	out := make([]RecordInput, len(ids))
	for i, id := range ids {
		out[i] = RecordInput{ID: id}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a message for the client without exposing internals.
// Request validation errors describe the caller's own input and are returned in full.
func safeDomainMessage(err error) string {
	for _, s := range []error{
		domain.ErrFieldNotFound,
		domain.ErrInvalidPredicate,
		domain.ErrUnsupportedOperator,
		domain.ErrConfiguration,
		domain.ErrResourceExhausted,
	} {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	if errors.Is(err, domain.ErrComputation) {
		return domain.ErrComputation.Error()
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// computationErrorHandler reports which field failed for which record.
func computationErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var ce *domain.ComputationError
	if !errors.As(err, &ce) {
		return false
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"code":    CodeComputationFailed,
		"message": msg,
		"field":   ce.Field,
		"id":      ce.EntityKey,
	})
	return true
}

// resourceExhaustedHandler maps an oversized sort to 413 and memory/time breaches to 503.
func resourceExhaustedHandler(w http.ResponseWriter, err error, msg string) bool {
	var re *domain.ResourceExhaustedError
	if !errors.As(err, &re) {
		return false
	}
	status := http.StatusServiceUnavailable
	if re.Resource == guard.ResourceSortRecords {
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, map[string]any{
		"code":     CodeResourceExhausted,
		"message":  msg,
		"resource": re.Resource,
		"limit":    re.Limit,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("domain error",
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
