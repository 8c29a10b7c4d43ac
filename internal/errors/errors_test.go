package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestIsComparesByCode(t *testing.T) {
	err := Newf(CodeUnsupportedNetwork, "network %q is not configured", "previewnet")
	wrapped := fmt.Errorf("resolve router: %w", err)

	if !stdErrors.Is(wrapped, ErrUnsupportedNetwork) {
		t.Fatalf("expected wrapped error to match ErrUnsupportedNetwork")
	}
	if stdErrors.Is(wrapped, ErrLookupFailed) {
		t.Fatalf("did not expect match against a different code")
	}
	if got := CodeOf(wrapped); got != CodeUnsupportedNetwork {
		t.Fatalf("unexpected code %s", got)
	}
}

func TestDefaultMessageAndMetadata(t *testing.T) {
	err := New(CodeAssociationFailed, "", WithMetadata("status", "INVALID_SIGNATURE"))
	if err.Message() != "token association failed" {
		t.Fatalf("unexpected default message %q", err.Message())
	}
	if got := MetadataOf(err)["status"]; got != "INVALID_SIGNATURE" {
		t.Fatalf("unexpected metadata %q", got)
	}
	if err.Retryable() {
		t.Fatalf("swap errors must not be retryable")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeLookupFailed, cause, "GET /tokens/0.0.1 failed")
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "GET /tokens/0.0.1 failed: connection refused" {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	if SeverityOf(err) != SeverityWarning {
		t.Fatalf("unexpected severity %s", SeverityOf(err))
	}
}
