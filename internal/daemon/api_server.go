package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cutline/internal/api"
	"cutline/internal/config"
	"cutline/internal/logging"
	"cutline/internal/render"
	"cutline/internal/renderqueue"
	"cutline/internal/services"
)

const (
	maxRequestBody   = 4 << 20
	eventBuffer      = 64
	eventKeepalive   = 25 * time.Second
	shutdownDeadline = 5 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	mux    http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("POST /api/projects/{id}/edits", s.handleAppend)
	mux.HandleFunc("GET /api/projects/{id}/edits", s.handleHistory)
	mux.HandleFunc("POST /api/projects/{id}/renders", s.handleRender)
	mux.HandleFunc("GET /api/projects/{id}/exports", s.handleListExports)
	mux.HandleFunc("GET /api/projects/{id}/exports/latest", s.handleLatestExport)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("POST /api/exports/{id}/pin", s.handlePin)
	mux.HandleFunc("POST /api/exports/{id}/unpin", s.handleUnpin)
	mux.HandleFunc("GET /api/gc/candidates", s.handleCandidates)
	mux.HandleFunc("POST /api/gc/mark", s.handleMark)
	mux.HandleFunc("POST /api/gc/unmark", s.handleUnmark)
	mux.HandleFunc("POST /api/gc/archive", s.handleArchive)
	mux.HandleFunc("POST /api/gc/delete", s.handleDelete)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.Handle("GET /metrics", d.metrics.Handler())
	s.mux = requestIDMiddleware(authMiddleware(strings.TrimSpace(cfg.Paths.APIToken), mux))
	return s
}

func (s *apiServer) handler() http.Handler {
	return s.mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String(logging.FieldEventType, "api_disabled"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req api.CreateProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	project, err := s.daemon.store.CreateProject(r.Context(), req.SourceRef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("project created",
		logging.String(logging.FieldProjectID, project.ID),
		logging.String("source_ref", project.SourceRef),
		logging.String(logging.FieldEventType, "project_created"),
	)
	s.writeJSON(w, http.StatusCreated, api.ProjectResponse{Project: api.FromProject(project)})
}

func (s *apiServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.daemon.store.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProjectListResponse{Projects: api.FromProjects(projects)})
}

func (s *apiServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.daemon.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProjectResponse{Project: api.FromProject(project)})
}

func (s *apiServer) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req api.AppendRequest
	if !s.decode(w, r, &req) {
		return
	}
	version, jobID, err := s.daemon.queue.SubmitEdit(r.Context(), r.PathValue("id"), req.Ops, req.BaseVersion)
	if err != nil && version == 0 {
		s.writeError(w, r, err)
		return
	}
	resp := api.AppendResponse{Version: version, JobID: jobID}
	if err != nil {
		resp.ProxyError = err.Error()
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.store.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := api.HistoryResponse{Entries: make([]api.EditEntry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, api.FromEdit(entry))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRender(w http.ResponseWriter, r *http.Request) {
	var req api.RenderRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := render.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	projectID := r.PathValue("id")
	version := req.Version
	if version <= 0 {
		project, err := s.daemon.store.GetProject(r.Context(), projectID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		version = project.CurrentVersion
	}
	jobID, err := s.daemon.queue.Enqueue(r.Context(), projectID, version, kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.daemon.queue.Get(jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleListExports(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := s.daemon.store.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, err)
		return
	}
	exports, err := s.daemon.store.ListExports(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExportListResponse{Exports: api.FromExports(exports)})
}

func (s *apiServer) handleLatestExport(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	export, err := s.daemon.store.FindLatestExport(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if export == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "api", "latest export", "project "+projectID+" has no live export", nil))
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExportResponse{Export: api.FromExport(export)})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := renderqueue.Filter{ProjectID: strings.TrimSpace(query.Get("project"))}
	if kind := strings.TrimSpace(query.Get("kind")); kind != "" {
		parsed, err := render.ParseKind(kind)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.Kind = parsed
	}
	for _, raw := range query["state"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.States = append(filter.States, renderqueue.State(strings.ToLower(part)))
			}
		}
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(s.daemon.queue.List(filter))})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.queue.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.queue.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handlePin(w http.ResponseWriter, r *http.Request) {
	export, err := s.daemon.store.Pin(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("export pinned",
		logging.String(logging.FieldExportID, export.ID),
		logging.String(logging.FieldProjectID, export.ProjectID),
		logging.String(logging.FieldEventType, "export_pinned"),
	)
	s.writeJSON(w, http.StatusOK, api.ExportResponse{Export: api.FromExport(export)})
}

func (s *apiServer) handleUnpin(w http.ResponseWriter, r *http.Request) {
	export, err := s.daemon.store.Unpin(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("export unpinned",
		logging.String(logging.FieldExportID, export.ID),
		logging.String(logging.FieldProjectID, export.ProjectID),
		logging.String(logging.FieldEventType, "export_unpinned"),
	)
	s.writeJSON(w, http.StatusOK, api.ExportResponse{Export: api.FromExport(export)})
}

func (s *apiServer) handleCandidates(w http.ResponseWriter, r *http.Request) {
	policy := s.daemon.gc.Policy()
	ttlDays, ok := s.intParam(w, r, "ttlDays", policy.TTLDays)
	if !ok {
		return
	}
	keepLatest, ok := s.intParam(w, r, "keepLatest", policy.KeepLatest)
	if !ok {
		return
	}
	candidates, err := s.daemon.gc.CalcCandidates(r.Context(), ttlDays, keepLatest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CandidatesResponse{TTLDays: ttlDays, KeepLatest: keepLatest, Candidates: candidates})
}

func (s *apiServer) handleMark(w http.ResponseWriter, r *http.Request) {
	var req api.IDsRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReportResponse{Report: s.daemon.gc.Mark(r.Context(), req.IDs)})
}

func (s *apiServer) handleUnmark(w http.ResponseWriter, r *http.Request) {
	var req api.IDsRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReportResponse{Report: s.daemon.gc.Unmark(r.Context(), req.IDs)})
}

func (s *apiServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.gc.Archive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReportResponse{Report: report})
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	minDays, ok := s.intParam(w, r, "minDays", s.daemon.gc.Policy().MinDaysInArchive)
	if !ok {
		return
	}
	report, err := s.daemon.gc.DeleteArchived(r.Context(), minDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReportResponse{Report: report})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.TestNotification(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "test notification sent"})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.daemon.hub == nil {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "api", "events", "event stream unavailable", nil))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New("streaming unsupported"))
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	messages, cancel := s.daemon.hub.Subscribe(eventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(eventKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-messages:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("failed to encode event", logging.String("event", string(msg.Event)), logging.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body: " + err.Error(), Kind: "validation"})
		return false
	}
	return true
}

func (s *apiServer) intParam(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: fmt.Sprintf("invalid %s %q", name, raw), Kind: "validation"})
		return 0, false
	}
	return value, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.StatusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}
