package task

import (
	"context"
	"sync"
	"sync/atomic"

	xerrors "hedera-swap-plugin/internal/errors"
)

const defaultMemoryQueueSize = 64

// MemoryQueue 是单进程部署使用的有界队列。每个任务 ID 只投递一次：
// Handler 返回错误时任务被计入 Dropped，不会重新入队。
type MemoryQueue struct {
	pending   chan string
	done      chan struct{}
	closeOnce sync.Once

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewMemoryQueue 创建容量为 size 的内存队列，size 非正时使用默认容量。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryQueue{
		pending: make(chan string, size),
		done:    make(chan struct{}),
	}
}

// Publish 投递任务 ID。队列已满时阻塞，直到有空位、ctx 结束或队列关闭。
func (q *MemoryQueue) Publish(ctx context.Context, jobID string) error {
	select {
	case <-q.done:
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	default:
	}
	select {
	case q.pending <- jobID:
		return nil
	case <-q.done:
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len 返回等待消费的任务数量。
func (q *MemoryQueue) Len() int { return len(q.pending) }

// Delivered 返回已交给 Handler 的任务数量。
func (q *MemoryQueue) Delivered() int64 { return q.delivered.Load() }

// Dropped 返回 Handler 返回错误后被丢弃的任务数量。
func (q *MemoryQueue) Dropped() int64 { return q.dropped.Load() }

// Consume 启动 workerCount 个消费协程，阻塞到 ctx 结束或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			q.work(ctx, handler)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) work(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case jobID := <-q.pending:
			q.delivered.Add(1)
			if err := handler(ctx, jobID); err != nil {
				q.dropped.Add(1)
			}
		}
	}
}

// Close 停止接收新任务并让消费协程退出，未消费的任务留在队列中被丢弃。
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
