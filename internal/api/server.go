// Package api exposes the HTTP interface for the crawl job service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/config"
	"github.com/crawlkit/crawld/internal/crawler"
	"github.com/crawlkit/crawld/internal/manager"
	"github.com/crawlkit/crawld/internal/metrics"
)

const (
	defaultResultsLimit = 100
	requestBodyLimit    = 10 << 20 // 10mb, matching the batch size bound
)

// Server wires HTTP handlers to the job manager. It only ever reads job
// state; the worker owns all writes past creation.
type Server struct {
	router  chi.Router
	manager *manager.Manager
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(mgr *manager.Manager, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		manager: mgr,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/", s.index)
	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/crawl", s.createJob)
	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Get("/", s.getJob)
		r.Get("/results", s.getResults)
		r.Get("/results/all", s.getAllResults)
		r.Delete("/", s.deleteJob)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "crawld",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":        "GET /health",
			"createJob":     "POST /crawl",
			"getJobStatus":  "GET /jobs/{jobId}",
			"getJobResults": "GET /jobs/{jobId}/results",
			"getAllResults": "GET /jobs/{jobId}/results/all",
			"deleteJob":     "DELETE /jobs/{jobId}",
		},
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"error":     s.faultDetail(err),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type createJobRequest struct {
	URLs        []string `json:"urls"`
	MaxRequests int      `json:"maxRequests"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestBodyLimit))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "Please provide an array of URLs to crawl.")
		return
	}
	if len(req.URLs) > s.cfg.Jobs.MaxURLsPerRequest {
		writeError(w, http.StatusBadRequest,
			"Maximum "+strconv.Itoa(s.cfg.Jobs.MaxURLsPerRequest)+" URLs per request.")
		return
	}

	validURLs := filterValidURLs(req.URLs)
	if len(validURLs) == 0 {
		writeError(w, http.StatusBadRequest, "No valid URLs provided.")
		return
	}

	job, err := s.manager.CreateJob(r.Context(), validURLs, req.MaxRequests)
	if err != nil {
		if errors.Is(err, manager.ErrNoURLs) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to create crawl job.", err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":       job.ID,
		"message":     "Job created successfully",
		"status":      job.Status,
		"urls":        job.URLs,
		"checkStatus": "/jobs/" + job.ID,
		"getResults":  "/jobs/" + job.ID + "/results",
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok, err := s.manager.GetJob(r.Context(), jobID)
	if err != nil {
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to get job status.", err))
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}

	resultsCount, err := s.manager.GetResultsCount(r.Context(), jobID)
	if err != nil {
		s.logger.Error("count results failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to get job status.", err))
		return
	}

	writeJSON(w, http.StatusOK, jobStatusResponse{
		Job:          job,
		ResultsCount: resultsCount,
		Links: jobLinks{
			Self:       "/jobs/" + jobID,
			Results:    "/jobs/" + jobID + "/results",
			AllResults: "/jobs/" + jobID + "/results/all",
		},
	})
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultResultsLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	job, ok, err := s.manager.GetJob(r.Context(), jobID)
	if err != nil {
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to get results.", err))
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}

	page, err := s.manager.GetResults(r.Context(), jobID, offset, limit)
	if err != nil {
		s.logger.Error("list results failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to get results.", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":   jobID,
		"results": page.Results,
		"pagination": map[string]any{
			"offset":  offset,
			"limit":   limit,
			"count":   len(page.Results),
			"total":   page.Total,
			"hasMore": page.HasMore,
		},
		"job": jobProgress(job),
	})
}

func (s *Server) getAllResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, ok, err := s.manager.GetJob(r.Context(), jobID)
	if err != nil {
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to get all results.", err))
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}

	results, err := s.manager.GetAllResults(r.Context(), jobID)
	if err != nil {
		s.logger.Error("list all results failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to get all results.", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":   jobID,
		"results": results,
		"count":   len(results),
		"job":     jobProgress(job),
	})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ok, err := s.manager.DeleteJob(r.Context(), jobID)
	if err != nil {
		s.logger.Error("delete job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, s.serverFault("Failed to delete job.", err))
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Job deleted successfully",
		"jobId":   jobID,
	})
}

type jobStatusResponse struct {
	crawler.Job
	ResultsCount int64    `json:"resultsCount"`
	Links        jobLinks `json:"links"`
}

type jobLinks struct {
	Self       string `json:"self"`
	Results    string `json:"results"`
	AllResults string `json:"allResults"`
}

func jobProgress(job crawler.Job) map[string]any {
	return map[string]any{
		"status":        job.Status,
		"processedUrls": job.ProcessedURLs,
		"failedUrls":    job.FailedURLs,
	}
}

// filterValidURLs keeps only syntactically valid absolute http(s) URLs,
// preserving order.
func filterValidURLs(urls []string) []string {
	valid := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		valid = append(valid, raw)
	}
	return valid
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// serverFault pairs a stable message with fault detail in development mode.
func (s *Server) serverFault(msg string, err error) string {
	if s.cfg.Logging.Development {
		return msg + " " + err.Error()
	}
	return msg
}

func (s *Server) faultDetail(err error) string {
	if s.cfg.Logging.Development {
		return err.Error()
	}
	return "store unavailable"
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		metrics.ObserveHTTPRequest(r.Method, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":   "Job not found",
		"message": "This job may have expired or does not exist.",
	})
}
