package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/analyser"
	"github.com/IliaW/name-check-worker/internal/cache"
	"github.com/IliaW/name-check-worker/internal/crawler"
	"github.com/IliaW/name-check-worker/internal/llm"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/IliaW/name-check-worker/internal/worker"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxNames = 50

type StatusChecker interface {
	Check(ctx context.Context) *crawler.Status
}

// Server exposes the name check over HTTP. Checks are queued to the worker pool.
type Server struct {
	tasks    chan<- *model.NameCheckTask
	analyser worker.Analyser
	cache    cache.CachedClient
	status   StatusChecker
	cfg      *config.Config
	log      *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewServer(tasks chan<- *model.NameCheckTask, analyser worker.Analyser, cache cache.CachedClient,
	status StatusChecker, cfg *config.Config, log *slog.Logger) *Server {
	return &Server{tasks: tasks, analyser: analyser, cache: cache, status: status, cfg: cfg, log: log}
}

type CheckNameRequest struct {
	Names     []string        `json:"names"`
	CheckType model.CheckType `json:"check_type"`
	NicCode   string          `json:"nic_code"`
}

func (r *CheckNameRequest) validate() error {
	if len(r.Names) == 0 {
		return errors.New("no names provided")
	}
	if len(r.Names) > maxNames {
		return errors.New("too many names provided")
	}
	for _, n := range r.Names {
		if strings.TrimSpace(n) == "" {
			return errors.New("name cannot be empty or whitespace")
		}
	}
	return nil
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/check_name", s.handleCheckName).Methods(http.MethodPost)
	router.HandleFunc("/conflict-check", s.handleConflictCheck).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.Use(s.logRequests)
	return router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting http server.", slog.String("port", s.cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("stopping http server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleCheckName runs the portal check for the first name and waits for the worker's result.
func (s *Server) handleCheckName(w http.ResponseWriter, r *http.Request) {
	var req CheckNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, model.Envelope{Error: "invalid request body"})
		return
	}
	if err := req.validate(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, model.Envelope{Error: err.Error()})
		return
	}

	task := &model.NameCheckTask{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Names[0]),
		NicCode:   req.NicCode,
		CheckType: req.CheckType,
		Reply:     make(chan *model.NameCheckResult, 1),
	}
	if err := s.enqueue(task); err != nil {
		s.log.Warn("name check not queued.", slog.String("id", task.ID), slog.String("err", err.Error()))
		s.writeJSON(w, http.StatusServiceUnavailable, model.Envelope{Error: err.Error()})
		return
	}
	s.log.Info("name check queued.", slog.String("id", task.ID), slog.String("name", task.Name))

	select {
	case result := <-task.Reply:
		s.writeJSON(w, http.StatusOK, result.Envelope())
	case <-r.Context().Done():
		s.log.Warn("client went away before the check finished.", slog.String("id", task.ID))
	}
}

var (
	errQueueFull    = errors.New("The server is busy. Please try again later.")
	errShuttingDown = errors.New("The service is shutting down. Please try again later.")
)

func (s *Server) enqueue(task *model.NameCheckTask) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errShuttingDown
	}
	select {
	case s.tasks <- task:
		return nil
	default:
		return errQueueFull
	}
}

// Stop makes the server refuse new checks. After Stop returns no handler sends to the task channel,
// so the caller may close it.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// handleConflictCheck analyses result tables the caller already scraped.
func (s *Server) handleConflictCheck(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, model.Envelope{Error: "invalid request body"})
		return
	}
	record, err := analyser.Decode(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, model.Envelope{Error: err.Error()})
		return
	}

	key := map[string]any{"conflict_json": record}
	if cached, ok := s.cache.Get(key); ok {
		s.writeJSON(w, http.StatusOK, cached.Envelope())
		return
	}

	start := time.Now()
	result := &model.NameCheckResult{ID: uuid.NewString(), CheckType: model.ConflictCheck, WorkerVers: s.cfg.Version}
	analysis, err := s.analyser.Analyse(r.Context(), record, model.ConflictCheck)
	if err != nil {
		s.log.Error("conflict analysis failed.", slog.String("err", err.Error()))
		result.Error = worker.UserMessage(err)
		s.writeJSON(w, http.StatusUnprocessableEntity, result.Envelope())
		return
	}
	if analysis.Verdict == model.NotValid {
		analysis.RecommendedNames = llm.Validate([]string{analysis.BaseName}, analysis.RecommendedNames,
			analysis.BaseName)
	}
	result.Name = analysis.BaseName
	result.Analysis = analysis
	result.Success = true
	result.Duration = time.Since(start)
	result.CheckedAt = time.Now().UTC()
	s.cache.Set(key, result)
	s.writeJSON(w, http.StatusOK, result.Envelope())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, model.Envelope{Success: true, Data: map[string]string{
		"status":  "healthy",
		"version": s.cfg.Version,
	}})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.status.Check(r.Context())
	s.writeJSON(w, http.StatusOK, model.Envelope{Success: status.Online, Data: status})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to write response.", slog.String("err", err.Error()))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request served.", slog.String("method", r.Method), slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)))
	})
}
