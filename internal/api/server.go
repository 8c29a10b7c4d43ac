package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/observability/metrics"
	"hedera-swap-plugin/internal/task"
	"hedera-swap-plugin/pkg/logger"
	"hedera-swap-plugin/pkg/plugin"
)

// Tools 是 API 层依赖的工具目录，由 plugin.Manager 实现。
type Tools interface {
	Tools() []plugin.Descriptor
	Invoke(ctx context.Context, method string, call plugin.Call, params json.RawMessage) (plugin.Result, error)
}

// Jobs 是异步任务服务，由 task.Service 实现。
type Jobs interface {
	Submit(ctx context.Context, req task.Request) (*task.Job, error)
	Get(ctx context.Context, id string) (*task.Job, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Job, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.Stats, error)
}

// Server 负责暴露 REST 接口，供外部调用工具。
type Server struct {
	addr           string
	tools          Tools
	jobs           Jobs
	metrics        *metrics.Metrics
	log            *slog.Logger
	allowedOrigins []string
	ratePerMinute  int
	maxConcurrent  int
	requestTimeout time.Duration
}

// Option 定义可选配置。
type Option func(*Server)

// WithJobs 启用异步任务接口。
func WithJobs(jobs Jobs) Option {
	return func(s *Server) { s.jobs = jobs }
}

// WithMetrics 启用 /metrics 与请求指标。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAllowedOrigins 配置 CORS 白名单，为空时允许任意来源。
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithRateLimit 按客户端 IP 限制每分钟请求数。
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.ratePerMinute = perMinute }
}

// WithMaxConcurrent 限制同时处理的请求数。
func WithMaxConcurrent(n int) Option {
	return func(s *Server) { s.maxConcurrent = n }
}

// WithRequestTimeout 设置单个请求的超时时间。
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, tools Tools, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		tools:          tools,
		log:            logger.Named("api"),
		requestTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 构建带中间件的路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}
	if s.ratePerMinute > 0 {
		r.Use(httprate.LimitByIP(s.ratePerMinute, time.Minute))
	}
	if s.maxConcurrent > 0 {
		r.Use(middleware.Throttle(s.maxConcurrent))
	}

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{method}", s.handleInvokeTool)
		if s.jobs != nil {
			r.Post("/jobs", s.handleSubmitJob)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/stats", s.handleJobStats)
			r.Get("/jobs/{id}", s.handleJobDetail)
		}
	})

	return newCORSHandler(s.allowedOrigins, r)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API 服务启动", slog.String("address", s.addr))
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}).Handler(next)
}

// invokeRequest 是同步与异步调用共用的请求体。
type invokeRequest struct {
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params"`
	Mode      string          `json:"mode,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	ID        string          `json:"id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tools": len(s.tools.Tools())})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Tools()})
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	var req invokeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.tools.Invoke(r.Context(), method, plugin.Call{Mode: req.Mode, AccountID: req.AccountID}, req.Params)
	if err != nil {
		if stdErrors.Is(err, plugin.ErrToolNotFound) {
			writeError(w, http.StatusNotFound, string(task.CodeToolNotFound), err.Error())
			return
		}
		s.log.Error("工具调用失败", slog.String("method", method), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, string(xerrors.CodeOf(err)), err.Error())
		return
	}
	// 工具层面的失败属于业务结果，依旧返回 200。
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := s.jobs.Submit(r.Context(), task.Request{
		ID:        req.ID,
		Method:    req.Method,
		Params:    req.Params,
		Mode:      req.Mode,
		AccountID: req.AccountID,
	})
	if err != nil {
		writeCodedError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.Context(), listOptions(r)...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Stats(r.Context(), listOptions(r)...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func listOptions(r *http.Request) []task.ListOption {
	query := r.URL.Query()
	opts := make([]task.ListOption, 0, 4)
	if raw := query.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithLimit(limit))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithOffset(offset))
		}
	}
	if statuses := query["status"]; len(statuses) > 0 {
		converted := make([]task.Status, 0, len(statuses))
		for _, status := range statuses {
			converted = append(converted, task.Status(status))
		}
		opts = append(opts, task.WithStatuses(converted...))
	}
	if method := query.Get("method"); method != "" {
		opts = append(opts, task.WithMethod(method))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败: "+err.Error())
		return false
	}
	return true
}

func writeCodedError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeError(w, statusFor(code), string(code), err.Error())
}

func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeNotFound, task.CodeToolNotFound:
		return http.StatusNotFound
	case xerrors.CodeInvalidArgument, task.CodeJobValidation:
		return http.StatusBadRequest
	case xerrors.CodeConflict:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
