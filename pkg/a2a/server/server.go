package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

const (
	maxBodyBytes            = 10 << 20
	defaultExecutionTimeout = 5 * time.Minute
	queueSize               = 64
)

// Config contains configuration for the A2A server
type Config struct {
	Card     *a2a.AgentCard
	Executor AgentExecutor
	// TaskStore defaults to an InMemoryTaskStore.
	TaskStore TaskStore
	Logger    *zap.Logger
	// Registry receives the server's metrics and backs /metrics. A fresh registry
	// is created when nil.
	Registry *prometheus.Registry
	// AllowedOrigins defaults to every origin.
	AllowedOrigins   []string
	ExecutionTimeout time.Duration
}

// Server wraps one AgentExecutor as an A2A endpoint.
type Server struct {
	card     *a2a.AgentCard
	executor AgentExecutor
	store    TaskStore
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics
	timeout  time.Duration
	handler  http.Handler

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewServer creates a new A2A server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Card == nil {
		return nil, fmt.Errorf("agent card is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("agent executor is required")
	}
	if cfg.TaskStore == nil {
		cfg.TaskStore = NewInMemoryTaskStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaultExecutionTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		card:     cfg.Card,
		executor: cfg.Executor,
		store:    cfg.TaskStore,
		logger:   cfg.Logger.With(zap.String("component", "a2a_server"), zap.String("agent", cfg.Card.Name)),
		registry: cfg.Registry,
		metrics:  newMetrics(cfg.Registry),
		timeout:  cfg.ExecutionTimeout,
		running:  make(map[string]context.CancelFunc),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+a2a.AgentCardPath, s.handleAgentCard)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	s.handler = c.Handler(mux)
	return s, nil
}

// Card returns the served agent card.
func (s *Server) Card() *a2a.AgentCard {
	return s.card
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Starting A2A server", zap.String("addr", addr), zap.String("url", s.card.URL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("a2a server on %s: %w", addr, err)
	}
	return nil
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleRPC dispatches one JSON-RPC request.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	method := "invalid"
	status := "ok"
	defer func() {
		s.metrics.requestsTotal.WithLabelValues(method, status).Inc()
		s.metrics.requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	fail := func(id any, rpcErr *a2a.JSONRPCError) {
		status = "error"
		writeJSON(w, http.StatusOK, a2a.NewErrorResponse(id, rpcErr))
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		fail(nil, a2a.NewJSONParseError(nil))
		return
	}

	var req a2a.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		fail(nil, a2a.NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		fail(req.ID, a2a.NewInvalidRequestError(err.Error()))
		return
	}

	var (
		result any
		rpcErr *a2a.JSONRPCError
	)
	switch req.Method {
	case a2a.MethodSendMessage:
		method = req.Method
		result, rpcErr = s.onSendMessage(r.Context(), req.Params)
	case a2a.MethodStreamMessage:
		method = req.Method
		if !s.card.Capabilities.Streaming {
			rpcErr = a2a.NewUnsupportedOperationError()
			break
		}
		if rpcErr = s.onStreamMessage(r.Context(), w, req.ID, req.Params); rpcErr == nil {
			return
		}
	case a2a.MethodGetTask:
		method = req.Method
		result, rpcErr = s.onGetTask(r.Context(), req.Params)
	case a2a.MethodCancelTask:
		method = req.Method
		result, rpcErr = s.onCancelTask(r.Context(), req.Params)
	default:
		method = "unknown"
		rpcErr = a2a.NewMethodNotFoundError(req.Method)
	}

	if rpcErr != nil {
		s.logger.Debug("Request failed", zap.String("method", req.Method), zap.Error(rpcErr))
		fail(req.ID, rpcErr)
		return
	}
	writeJSON(w, http.StatusOK, a2a.NewResultResponse(req.ID, result))
}

func decodeParams(raw json.RawMessage, out any) *a2a.JSONRPCError {
	if len(raw) == 0 {
		return a2a.NewInvalidParamsError("params are required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return a2a.NewInvalidParamsError(err.Error())
	}
	return nil
}

// prepare resolves the task and context a message belongs to, minting ids when
// the client sent none.
func (s *Server) prepare(ctx context.Context, params *a2a.MessageSendParams) (*RequestContext, *a2a.JSONRPCError) {
	msg := params.Message
	if msg.MessageID == "" {
		return nil, a2a.NewInvalidParamsError("message.messageId is required")
	}
	if len(msg.Parts) == 0 {
		return nil, a2a.NewInvalidParamsError("message.parts cannot be empty")
	}

	reqCtx := &RequestContext{Message: &msg, Metadata: params.Metadata}
	if msg.TaskID != "" {
		task, err := s.store.Get(ctx, msg.TaskID)
		if err != nil {
			return nil, a2a.NewInternalError(err.Error())
		}
		if task != nil {
			if task.Status.State.IsTerminal() {
				return nil, a2a.NewInvalidParamsError(fmt.Sprintf("task %s is in terminal state %s", task.ID, task.Status.State))
			}
			if msg.ContextID != "" && msg.ContextID != task.ContextID {
				return nil, a2a.NewInvalidParamsError("message contextId does not match the task")
			}
			reqCtx.CurrentTask = task
			reqCtx.ContextID = task.ContextID
		}
		reqCtx.TaskID = msg.TaskID
	} else {
		reqCtx.TaskID = uuid.NewString()
	}
	if reqCtx.ContextID == "" {
		reqCtx.ContextID = msg.ContextID
	}
	if reqCtx.ContextID == "" {
		reqCtx.ContextID = uuid.NewString()
	}

	msg.TaskID = reqCtx.TaskID
	msg.ContextID = reqCtx.ContextID
	if msg.Kind == "" {
		msg.Kind = a2a.KindMessage
	}
	return reqCtx, nil
}

// run starts fn in the background. The returned queue is closed when fn returns,
// and fn's error is then available on the channel.
func (s *Server) run(ctx context.Context, taskID string, fn func(context.Context, EventQueue) error) (*ChannelQueue, <-chan error) {
	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	if taskID != "" {
		s.mu.Lock()
		s.running[taskID] = cancel
		s.mu.Unlock()
	}

	queue := NewEventQueue(queueSize)
	errCh := make(chan error, 1)
	go func() {
		defer cancel()
		defer queue.Close()
		defer func() {
			if taskID != "" {
				s.mu.Lock()
				delete(s.running, taskID)
				s.mu.Unlock()
			}
		}()
		defer func() {
			if rec := recover(); rec != nil {
				errCh <- fmt.Errorf("agent executor panicked: %v", rec)
			}
		}()
		errCh <- fn(execCtx, queue)
	}()
	return queue, errCh
}

func (s *Server) execute(ctx context.Context, reqCtx *RequestContext) (*ChannelQueue, <-chan error) {
	return s.run(ctx, reqCtx.TaskID, func(ctx context.Context, q EventQueue) error {
		return s.executor.Execute(ctx, reqCtx, q)
	})
}

func (s *Server) onSendMessage(ctx context.Context, raw json.RawMessage) (any, *a2a.JSONRPCError) {
	var params a2a.MessageSendParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	reqCtx, rpcErr := s.prepare(ctx, &params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	tm := newTaskManager(s.store, s.metrics, reqCtx)
	if err := tm.save(ctx); err != nil {
		return nil, a2a.NewInternalError(err.Error())
	}

	logger := s.logger.With(zap.String("task_id", reqCtx.TaskID), zap.String("context_id", reqCtx.ContextID))
	logger.Debug("Executing message", zap.String("input", reqCtx.GetUserInput()))

	queue, errCh := s.execute(ctx, reqCtx)
	for ev := range queue.Events() {
		if err := tm.apply(ctx, ev); err != nil {
			logger.Warn("Failed to apply event", zap.String("kind", ev.EventKind()), zap.Error(err))
		}
	}

	var historyLength *int
	if params.Configuration != nil {
		historyLength = params.Configuration.HistoryLength
	}

	if err := <-errCh; err != nil {
		if task := s.canceledTask(ctx, reqCtx.TaskID); task != nil {
			return trimHistory(task, historyLength), nil
		}
		logger.Error("Agent execution failed", zap.Error(err))
		if saveErr := tm.fail(ctx, err); saveErr != nil {
			logger.Error("Failed to record task failure", zap.Error(saveErr))
		}
		return nil, a2a.AsJSONRPCError(err)
	}
	return tm.result(historyLength), nil
}

// onStreamMessage answers with server-sent events. Errors found before the stream
// starts are returned; later ones are sent as events.
func (s *Server) onStreamMessage(ctx context.Context, w http.ResponseWriter, id any, raw json.RawMessage) *a2a.JSONRPCError {
	var params a2a.MessageSendParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return rpcErr
	}
	reqCtx, rpcErr := s.prepare(ctx, &params)
	if rpcErr != nil {
		return rpcErr
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return a2a.NewInternalError("streaming not supported by response writer")
	}

	tm := newTaskManager(s.store, s.metrics, reqCtx)
	if err := tm.save(ctx); err != nil {
		return a2a.NewInternalError(err.Error())
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.logger.With(zap.String("task_id", reqCtx.TaskID), zap.String("context_id", reqCtx.ContextID))
	queue, errCh := s.execute(ctx, reqCtx)

	clientGone := false
	for ev := range queue.Events() {
		if err := tm.apply(ctx, ev); err != nil {
			logger.Warn("Failed to apply event", zap.String("kind", ev.EventKind()), zap.Error(err))
		}
		if clientGone {
			continue
		}
		if err := writeSSE(w, flusher, a2a.NewResultResponse(id, ev)); err != nil {
			logger.Debug("Stream client went away", zap.Error(err))
			clientGone = true
			queue.Abort()
		}
	}

	if err := <-errCh; err != nil {
		if task := s.canceledTask(ctx, reqCtx.TaskID); task != nil {
			if !clientGone {
				_ = writeSSE(w, flusher, a2a.NewResultResponse(id, &a2a.TaskStatusUpdateEvent{
					TaskID:    task.ID,
					ContextID: task.ContextID,
					Kind:      a2a.KindStatusUpdate,
					Status:    task.Status,
					Final:     true,
				}))
			}
			return nil
		}
		logger.Error("Agent execution failed", zap.Error(err))
		if saveErr := tm.fail(ctx, err); saveErr != nil {
			logger.Error("Failed to record task failure", zap.Error(saveErr))
		}
		if !clientGone {
			_ = writeSSE(w, flusher, a2a.NewErrorResponse(id, a2a.AsJSONRPCError(err)))
		}
	}
	return nil
}

// canceledTask returns the stored task when tasks/cancel already ended it. An
// execution interrupted by a cancel must not be recorded as failed.
func (s *Server) canceledTask(ctx context.Context, taskID string) *a2a.Task {
	task, err := s.store.Get(context.WithoutCancel(ctx), taskID)
	if err != nil || task == nil || task.Status.State != a2a.TaskStateCanceled {
		return nil
	}
	return task
}

func (s *Server) onGetTask(ctx context.Context, raw json.RawMessage) (any, *a2a.JSONRPCError) {
	var params a2a.TaskQueryParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	task, err := s.store.Get(ctx, params.ID)
	if err != nil {
		return nil, a2a.NewInternalError(err.Error())
	}
	if task == nil {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}
	return trimHistory(task, params.HistoryLength), nil
}

func (s *Server) onCancelTask(ctx context.Context, raw json.RawMessage) (any, *a2a.JSONRPCError) {
	var params a2a.TaskIDParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	task, err := s.store.Get(ctx, params.ID)
	if err != nil {
		return nil, a2a.NewInternalError(err.Error())
	}
	if task == nil {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}
	if task.Status.State.IsTerminal() {
		return nil, a2a.NewTaskNotCancelableError(params.ID)
	}

	reqCtx := &RequestContext{TaskID: task.ID, ContextID: task.ContextID, CurrentTask: task, Metadata: params.Metadata}
	tm := &taskManager{store: s.store, metrics: s.metrics, task: task}

	queue, errCh := s.run(ctx, "", func(ctx context.Context, q EventQueue) error {
		return s.executor.Cancel(ctx, reqCtx, q)
	})
	for ev := range queue.Events() {
		if err := tm.apply(ctx, ev); err != nil {
			s.logger.Warn("Failed to apply cancel event", zap.Error(err))
		}
	}
	if err := <-errCh; err != nil {
		return nil, a2a.AsJSONRPCError(err)
	}

	if tm.task.Status.State != a2a.TaskStateCanceled {
		tm.setStatus(a2a.NewTaskStatus(a2a.TaskStateCanceled, nil))
		if err := tm.save(ctx); err != nil {
			return nil, a2a.NewInternalError(err.Error())
		}
	}

	// Stop the execution only once the canceled state is stored.
	s.mu.Lock()
	if cancel, ok := s.running[task.ID]; ok {
		cancel()
	}
	s.mu.Unlock()
	return tm.task, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w io.Writer, flusher http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
