package task

import (
	"encoding/json"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/pkg/plugin"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job 描述一次排队执行的工具调用。任务只会被执行一次。
type Job struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	Mode      string          `json:"mode,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	Status    Status          `json:"status"`
	ErrorCode string          `json:"error_code,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// Call 还原调用上下文。
func (j *Job) Call() plugin.Call {
	return plugin.Call{Mode: j.Mode, AccountID: j.AccountID}
}

// Finished 判断任务是否已到达终态。
func (j *Job) Finished() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Outcome 是写回存储的执行结果。
type Outcome struct {
	Succeeded bool
	Code      string
	Error     string
	Result    json.RawMessage
}

const (
	CodeJobClaimed    xerrors.Code = "JOB_ALREADY_CLAIMED"
	CodeJobValidation xerrors.Code = "JOB_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeToolNotFound  xerrors.Code = "TOOL_NOT_FOUND"
)

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(xerrors.CodeNotFound, "job not found")
	// ErrJobConflict 表示任务 ID 已被占用。
	ErrJobConflict = xerrors.New(xerrors.CodeConflict, "job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobClaimed 表示任务已经被某个 worker 领取过。
	ErrJobClaimed = xerrors.New(CodeJobClaimed, "job already claimed", xerrors.WithSeverity(xerrors.SeverityInfo))
)

func init() {
	xerrors.Register(CodeJobClaimed, xerrors.Attributes{
		Message:  "job already claimed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:  "job validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:  "failed to publish job",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeToolNotFound, xerrors.Attributes{
		Message:  "tool not found",
		Severity: xerrors.SeverityInfo,
	})
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(job *Job) *Job {
	clone := *job
	clone.Params = cloneRaw(job.Params)
	clone.Result = cloneRaw(job.Result)
	return &clone
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
