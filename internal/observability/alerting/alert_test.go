package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "hedera-swap-plugin/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestShouldAlertFollowsRegistry(t *testing.T) {
	if !ShouldAlert(xerrors.CodeAssociationFailed) {
		t.Fatal("association failures must alert")
	}
	if !ShouldAlert(xerrors.CodeTransactionFailed) {
		t.Fatal("reverted transactions must alert")
	}
	if ShouldAlert(xerrors.CodeMissingAccount) {
		t.Fatal("missing account is a caller error and must not alert")
	}
	if ShouldAlert("") {
		t.Fatal("empty code must not alert")
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{channel: ChannelLog}
	bad := &recordingNotifier{channel: ChannelSlack, err: errors.New("boom")}
	d := NewFanout(ok, nil, bad)

	if got := d.Channels(); len(got) != 2 || got[0] != ChannelLog || got[1] != ChannelSlack {
		t.Fatalf("unexpected channels %v", got)
	}
	err := d.Notify(context.Background(), NewEvent(xerrors.CodeUnexpectedMode, "wrong mode"))
	if err == nil || !strings.Contains(err.Error(), "channel slack: boom") {
		t.Fatalf("expected joined slack error, got %v", err)
	}
	if len(ok.events) != 1 || ok.events[0].Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected delivered events %+v", ok.events)
	}

	var nilDispatcher *FanoutDispatcher
	if err := nilDispatcher.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher must be a no-op, got %v", err)
	}
}

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	event := NewEvent(xerrors.CodeAssociationFailed, "associate failed")
	event.JobID = "job-1"
	event.Method = "SWAP_HBAR_FOR_TOKEN"
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["code"] != "ASSOCIATION_FAILED" || line["job_id"] != "job-1" || line["level"] != "ERROR" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestSlackWebhookDelivery(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		if strings.Contains(got["text"], "fail-me") {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	n := &SlackNotifier{Sender: &WebhookSender{URL: srv.URL, Client: srv.Client()}, ChannelID: "#swaps"}
	event := NewEvent(xerrors.CodeTimeout, "mirror timed out")
	event.JobID = "job-2"
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["channel"] != "#swaps" || !strings.Contains(got["text"], "TIMEOUT") || !strings.Contains(got["text"], "job-2") {
		t.Fatalf("unexpected webhook body %v", got)
	}

	event.Message = "fail-me"
	if err := n.Notify(context.Background(), event); err == nil {
		t.Fatal("expected non-2xx webhook response to fail")
	}
}
