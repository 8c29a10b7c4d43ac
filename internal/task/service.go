package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/pkg/logger"
	"hedera-swap-plugin/pkg/plugin"
)

// Request 描述一次异步工具调用请求。
type Request struct {
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	Mode      string          `json:"mode,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
}

// Catalog 用于在入队前确认工具存在。
type Catalog interface {
	Tool(method string) (plugin.Descriptor, bool)
}

// Service 负责任务的创建与查询。
type Service struct {
	store    Store
	producer Producer
	catalog  Catalog
	audit    *slog.Logger
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithCatalog 在提交时校验工具方法。
func WithCatalog(c Catalog) ServiceOption {
	return func(s *Service) { s.catalog = c }
}

// WithServiceAuditLogger 指定审计日志。
func WithServiceAuditLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.audit = l
		}
	}
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, opts ...ServiceOption) *Service {
	s := &Service{store: store, producer: producer, audit: logger.Audit()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit 创建一个新的任务并推送到队列。相同 ID 的重复提交返回已有任务。
func (s *Service) Submit(ctx context.Context, req Request) (*Job, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return nil, xerrors.New(CodeJobValidation, "工具方法不能为空")
	}
	if s.catalog != nil {
		if _, ok := s.catalog.Tool(method); !ok {
			return nil, xerrors.Newf(CodeToolNotFound, "tool %s is not registered", method)
		}
	}
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if !json.Valid(params) {
		return nil, xerrors.New(CodeJobValidation, "params 必须是合法的 JSON")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		existing, err := s.store.Get(ctx, jobID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	job := &Job{
		ID:        jobID,
		Method:    method,
		Params:    cloneRaw(params),
		Mode:      strings.TrimSpace(req.Mode),
		AccountID: strings.TrimSpace(req.AccountID),
		Status:    StatusPending,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			if existing, getErr := s.store.Get(ctx, jobID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布任务到队列失败")
		_ = s.store.Complete(ctx, jobID, Outcome{Code: string(CodeJobPublish), Error: wrapped.Error()})
		return nil, wrapped
	}
	s.audit.Info("任务入队成功",
		slog.String("job_id", jobID),
		slog.String("method", job.Method),
		slog.String("mode", job.Mode),
		slog.String("account_id", job.AccountID),
	)
	return job, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 释放资源。
func (s *Service) Close() error {
	var err error
	if s.store != nil {
		err = stdErrors.Join(err, s.store.Close())
	}
	if s.producer != nil {
		err = stdErrors.Join(err, s.producer.Close())
	}
	return err
}

// WaitUntilCompleted 在上下文有效期内轮询任务状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
