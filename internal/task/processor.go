package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/observability/alerting"
	"hedera-swap-plugin/pkg/logger"
	"hedera-swap-plugin/pkg/plugin"
)

// Invoker 定义了处理器执行任务所需的能力，由 plugin.Manager 实现。
type Invoker interface {
	Invoke(ctx context.Context, method string, call plugin.Call, params json.RawMessage) (plugin.Result, error)
}

// Observer 在任务到达终态时被调用。
type Observer func(method string, status Status)

// Processor 负责从队列消费任务并调用工具。
type Processor struct {
	invoker     Invoker
	store       Store
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	audit       *slog.Logger
	observer    Observer
	alerts      alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithProcessorAuditLogger 指定审计日志。
func WithProcessorAuditLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.audit = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithObserver 注册终态回调，通常用于指标。
func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) { p.observer = o }
}

// WithAlerts 在任务以需要告警的错误码失败时通知 d。
func WithAlerts(d alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerts = d }
}

// NewProcessor 构造 Processor。
func NewProcessor(invoker Invoker, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		invoker:     invoker,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
		logger:      logger.Named("jobs"),
		audit:       logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞直到上下文取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.invoker == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobClaimed) {
			p.logger.Debug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	outcome := p.invoke(ctx, job)
	if err := p.store.Complete(ctx, job.ID, outcome); err != nil {
		p.logger.Error("写入任务结果失败", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}

	status := StatusSucceeded
	level := slog.LevelInfo
	if !outcome.Succeeded {
		status = StatusFailed
		level = slog.LevelWarn
	}
	p.audit.Log(ctx, level, "任务执行完成",
		slog.String("job_id", job.ID),
		slog.String("method", job.Method),
		slog.String("status", string(status)),
		slog.String("error_code", outcome.Code),
	)
	if p.observer != nil {
		p.observer(job.Method, status)
	}
	if !outcome.Succeeded {
		p.alert(ctx, job, outcome)
	}
	return nil
}

func (p *Processor) alert(ctx context.Context, job *Job, outcome Outcome) {
	code := xerrors.Code(outcome.Code)
	if p.alerts == nil || !alerting.ShouldAlert(code) {
		return
	}
	event := alerting.NewEvent(code, outcome.Error)
	event.JobID = job.ID
	event.Method = job.Method
	event.AccountID = job.AccountID
	if err := p.alerts.Notify(ctx, event); err != nil {
		p.logger.Warn("发送告警失败", slog.Any("error", err), slog.String("job_id", job.ID))
	}
}

func (p *Processor) invoke(ctx context.Context, job *Job) Outcome {
	result, err := p.invoker.Invoke(ctx, job.Method, job.Call(), job.Params)
	if err != nil {
		code := CodeToolNotFound
		if !stdErrors.Is(err, plugin.ErrToolNotFound) {
			code = xerrors.CodeOf(err)
		}
		return Outcome{Code: string(code), Error: err.Error()}
	}

	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return Outcome{Code: string(xerrors.CodeUnknown), Error: "编码工具结果失败: " + err.Error()}
	}
	outcome := Outcome{Succeeded: result.Succeeded, Code: result.Code, Result: payload}
	if !result.Succeeded {
		outcome.Error = failureMessage(payload)
	}
	return outcome
}

// failureMessage 从工具结果中提取面向人的错误信息。
func failureMessage(payload json.RawMessage) string {
	var view struct {
		HumanMessage string `json:"humanMessage"`
	}
	if err := json.Unmarshal(payload, &view); err != nil {
		return ""
	}
	return view.HumanMessage
}
