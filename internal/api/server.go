// Package api implements the HTTP request handlers for analyze,
// history, train, pipelines/:name, pipeline-log listing, and health.
// Routing follows backend/orchestrator/internal/rollout's gorilla/mux
// usage.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/config"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/detector"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/metrics"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/store"
)

// maxRequestBody caps request bodies to keep an oversized upload from
// exhausting server memory.
const maxRequestBody = 10 << 20 // 10 MiB

// Server wires the pipeline components into HTTP handlers.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	router    *mux.Router
	store     store.AnalysisStore
	baselines *baseline.Store
	detector  detector.Detector
	metrics   *metrics.Metrics
	publisher EventPublisher
	startedAt time.Time
}

// New constructs a Server and registers all routes.
func New(cfg *config.Config, logger *slog.Logger, analysisStore store.AnalysisStore, baselines *baseline.Store, det detector.Detector, reg prometheus.Registerer, publisher EventPublisher) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    mux.NewRouter(),
		store:     analysisStore,
		baselines: baselines,
		detector:  det,
		metrics:   metrics.New(reg),
		publisher: publisher,
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

// Handler returns the top-level http.Handler, with CORS and body-size
// middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.withBodyLimit(s.router))
}

func (s *Server) routes() {
	s.router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/train", s.handleTrain).Methods(http.MethodPost)
	s.router.HandleFunc("/pipelines/{name}", s.handlePipeline).Methods(http.MethodGet)
	s.router.HandleFunc("/pipeline-logs", s.handleListLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/pipeline-logs/{filename}", s.handleGetLog).Methods(http.MethodGet)
	s.router.HandleFunc("/pipeline-logs/{filename}/process", s.handleProcessLog).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.FrontendURL)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}
