package task

import "context"

// Store 抽象了任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 将 pending 任务切换为 running；其他状态返回 ErrJobClaimed。
	Claim(ctx context.Context, id string) (*Job, error)
	Complete(ctx context.Context, id string, outcome Outcome) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}
