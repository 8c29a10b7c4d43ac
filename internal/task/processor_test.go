package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/observability/alerting"
	"hedera-swap-plugin/pkg/plugin"
)

type fakeInvoker struct {
	calls   atomic.Int32
	latency time.Duration
	fail    bool
}

func (f *fakeInvoker) Invoke(ctx context.Context, method string, call plugin.Call, params json.RawMessage) (plugin.Result, error) {
	if method != "SWAP_HBAR_FOR_TOKEN" {
		return plugin.Result{}, fmt.Errorf("%w: %s", plugin.ErrToolNotFound, method)
	}
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return plugin.Result{}, ctx.Err()
		}
	}
	f.calls.Add(1)
	if f.fail {
		return plugin.Result{
			Payload: map[string]any{"humanMessage": "mirror node lookup failed"},
			Code:    string(xerrors.CodeLookupFailed),
		}, nil
	}
	return plugin.Result{Payload: map[string]any{"humanMessage": "ok", "account": call.AccountID}, Succeeded: true}, nil
}

type catalog map[string]bool

func (c catalog) Tool(method string) (plugin.Descriptor, bool) {
	return plugin.Descriptor{}, c[method]
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startProcessor(t *testing.T, invoker Invoker, store Store, queue *MemoryQueue, opts ...ProcessorOption) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	opts = append(opts, WithProcessorLogger(quiet()), WithProcessorAuditLogger(quiet()))
	processor := NewProcessor(invoker, store, queue, opts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	invoker := &fakeInvoker{latency: 5 * time.Millisecond}

	var mu sync.Mutex
	observed := map[Status]int{}
	startProcessor(t, invoker, store, queue, WithWorkerCount(8), WithObserver(func(method string, status Status) {
		mu.Lock()
		observed[status]++
		mu.Unlock()
	}))
	service := NewService(store, queue, WithServiceAuditLogger(quiet()))

	total := 100
	submitted := make([]string, 0, total)
	for i := 0; i < total; i++ {
		job, err := service.Submit(ctx, Request{Method: "SWAP_HBAR_FOR_TOKEN", Params: json.RawMessage(`{"hbarAmount":1}`), AccountID: fmt.Sprintf("0.0.%d", i+1000)})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		submitted = append(submitted, job.ID)
	}

	for _, id := range submitted {
		job, err := service.WaitUntilCompleted(ctx, id, 10*time.Millisecond)
		if err != nil {
			t.Fatalf("wait %s: %v", id, err)
		}
		if job.Status != StatusSucceeded || len(job.Result) == 0 {
			t.Fatalf("unexpected job %+v", job)
		}
	}
	if got := invoker.calls.Load(); int(got) != total {
		t.Fatalf("expected exactly %d invocations, got %d", total, got)
	}
	// The observer runs after the store write, so give the last workers a moment.
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		seen := observed[StatusSucceeded]
		mu.Unlock()
		if seen == total {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("observer saw %d of %d jobs", seen, total)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProcessorDoesNotRetryFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	invoker := &fakeInvoker{fail: true}
	startProcessor(t, invoker, store, queue, WithWorkerCount(2))
	service := NewService(store, queue, WithServiceAuditLogger(quiet()))

	job, err := service.Submit(ctx, Request{Method: "SWAP_HBAR_FOR_TOKEN", Params: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// A duplicate delivery must not trigger a second invocation.
	if err := queue.Publish(ctx, job.ID); err != nil {
		t.Fatalf("republish: %v", err)
	}

	done, err := service.WaitUntilCompleted(ctx, job.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusFailed || done.ErrorCode != string(xerrors.CodeLookupFailed) || done.LastError != "mirror node lookup failed" {
		t.Fatalf("unexpected job %+v", done)
	}
	time.Sleep(50 * time.Millisecond)
	if got := invoker.calls.Load(); got != 1 {
		t.Fatalf("expected a single invocation, got %d", got)
	}
}

func TestProcessorRecordsUnknownTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	startProcessor(t, &fakeInvoker{}, store, queue)
	service := NewService(store, queue, WithServiceAuditLogger(quiet()))

	job, err := service.Submit(ctx, Request{Method: "UNKNOWN_TOOL"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done, err := service.WaitUntilCompleted(ctx, job.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusFailed || done.ErrorCode != string(CodeToolNotFound) {
		t.Fatalf("unexpected job %+v", done)
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, WithCatalog(catalog{"SWAP_HBAR_FOR_TOKEN": true}), WithServiceAuditLogger(quiet()))

	if _, err := service.Submit(ctx, Request{}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := service.Submit(ctx, Request{Method: "NOPE"}); xerrors.CodeOf(err) != CodeToolNotFound {
		t.Fatalf("expected tool not found, got %v", err)
	}
	if _, err := service.Submit(ctx, Request{Method: "SWAP_HBAR_FOR_TOKEN", Params: json.RawMessage(`{`)}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected invalid params, got %v", err)
	}

	first, err := service.Submit(ctx, Request{ID: "fixed", Method: "SWAP_HBAR_FOR_TOKEN"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := service.Submit(ctx, Request{ID: "fixed", Method: "SWAP_HBAR_FOR_TOKEN"})
	if err != nil || second.ID != first.ID {
		t.Fatalf("expected idempotent submit, got %+v %v", second, err)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected one published job, got %d", queue.Len())
	}
	if string(first.Params) != `{}` {
		t.Fatalf("expected empty params object, got %s", first.Params)
	}
}

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                          { return nil }

func TestServiceMarksPublishFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	service := NewService(store, failingProducer{}, WithServiceAuditLogger(quiet()))

	_, err := service.Submit(ctx, Request{ID: "j1", Method: "SWAP_HBAR_FOR_TOKEN"})
	if xerrors.CodeOf(err) != CodeJobPublish {
		t.Fatalf("expected publish failure, got %v", err)
	}
	job, _ := store.Get(ctx, "j1")
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobPublish) {
		t.Fatalf("unexpected job %+v", job)
	}
}

type alertInvoker struct{ code xerrors.Code }

func (a alertInvoker) Invoke(context.Context, string, plugin.Call, json.RawMessage) (plugin.Result, error) {
	return plugin.Result{
		Payload: map[string]any{"humanMessage": "token association failed"},
		Code:    string(a.code),
	}, nil
}

type chanDispatcher chan alerting.Event

func (c chanDispatcher) Notify(_ context.Context, event alerting.Event) error {
	c <- event
	return nil
}

func TestProcessorAlertsOnAlertingCodes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerts := make(chanDispatcher, 4)
	startProcessor(t, alertInvoker{code: xerrors.CodeAssociationFailed}, store, queue, WithAlerts(alerts))
	service := NewService(store, queue, WithServiceAuditLogger(quiet()))

	job, err := service.Submit(ctx, Request{Method: "SWAP_HBAR_FOR_TOKEN", AccountID: "0.0.6006"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case event := <-alerts:
		if event.JobID != job.ID || event.Code != xerrors.CodeAssociationFailed || event.AccountID != "0.0.6006" {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.Message != "token association failed" {
			t.Fatalf("unexpected message %q", event.Message)
		}
	case <-ctx.Done():
		t.Fatal("no alert delivered")
	}
}

func TestProcessorSkipsAlertForCallerErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerts := make(chanDispatcher, 4)
	startProcessor(t, alertInvoker{code: xerrors.CodeMissingAccount}, store, queue, WithAlerts(alerts))
	service := NewService(store, queue, WithServiceAuditLogger(quiet()))

	job, err := service.Submit(ctx, Request{Method: "SWAP_HBAR_FOR_TOKEN"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.WaitUntilCompleted(ctx, job.ID, 10*time.Millisecond); err != nil {
		t.Fatalf("wait: %v", err)
	}
	select {
	case event := <-alerts:
		t.Fatalf("unexpected alert %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}
