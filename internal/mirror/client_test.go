package mirror

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	xerrors "hedera-swap-plugin/internal/errors"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, `{"_status":{"messages":[{"message":"Not found"}]}}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenInfoDecimalsAsStringOrNumber(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/api/v1/tokens/0.0.1001": `{"token_id":"0.0.1001","type":"FUNGIBLE_COMMON","symbol":"SAUCE","decimals":"6"}`,
		"/api/v1/tokens/0.0.1002": `{"token_id":"0.0.1002","type":"NON_FUNGIBLE_UNIQUE","decimals":0}`,
	})
	client := NewClient(Config{HTTPClient: srv.Client()})
	base := srv.URL + "/api/v1/"

	info, err := client.TokenInfo(context.Background(), base, "0.0.1001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Decimals != 6 || info.Symbol != "SAUCE" || !info.IsFungible() {
		t.Fatalf("unexpected token info: %+v", info)
	}

	nft, err := client.TokenInfo(context.Background(), base, "0.0.1002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nft.Decimals != 0 || nft.IsFungible() {
		t.Fatalf("unexpected token info: %+v", nft)
	}
}

func TestTokenInfoWithoutDecimalsIsLookupError(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/tokens/0.0.1003": `{"token_id":"0.0.1003","type":"FUNGIBLE_COMMON"}`,
		"/tokens/0.0.1004": `{"token_id":"0.0.1004","decimals":"six"}`,
	})
	client := NewClient(Config{HTTPClient: srv.Client()})

	for _, id := range []string{"0.0.1003", "0.0.1004"} {
		_, err := client.TokenInfo(context.Background(), srv.URL, id)
		var lookupErr *LookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("%s: expected LookupError, got %v", id, err)
		}
		if !errors.Is(err, xerrors.ErrLookupFailed) {
			t.Fatalf("%s: expected LOOKUP_FAILED code", id)
		}
	}
}

func TestNonSuccessStatusTruncatesBody(t *testing.T) {
	long := strings.Repeat("x", 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, long, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{HTTPClient: srv.Client()})
	_, err := client.TokenInfo(context.Background(), srv.URL, "0.0.5")

	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupError, got %v", err)
	}
	if lookupErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", lookupErr.StatusCode)
	}
	if len(lookupErr.Body) != 200 {
		t.Fatalf("expected body preview of 200 characters, got %d", len(lookupErr.Body))
	}
	if xerrors.CodeOf(err) != xerrors.CodeLookupFailed {
		t.Fatalf("unexpected code %s", xerrors.CodeOf(err))
	}
}

func TestAccountHasTokenAcceptsBothShapes(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/accounts/0.0.10/tokens":
			_, _ = w.Write([]byte(`{"tokens":[{"token_id":"0.0.77","balance":5}]}`))
		case "/accounts/0.0.11/tokens":
			_, _ = w.Write([]byte(`{"balances":[{"token_id":"0.0.77"}]}`))
		default:
			_, _ = w.Write([]byte(`{"tokens":[],"links":{"next":null}}`))
		}
	}))
	defer srv.Close()

	client := NewClient(Config{HTTPClient: srv.Client()})
	cases := map[string]bool{"0.0.10": true, "0.0.11": true, "0.0.12": false}
	for account, want := range cases {
		got, err := client.AccountHasToken(context.Background(), srv.URL, account, "0.0.77")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", account, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", account, want, got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, q := range queries {
		if q != "limit=1&token.id=0.0.77" {
			t.Fatalf("unexpected query %q", q)
		}
	}
}

func TestMaxAutoAssociationsDefaultsToZero(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/accounts/0.0.20": `{"account":"0.0.20","max_automatic_token_associations":-1}`,
		"/accounts/0.0.21": `{"account":"0.0.21"}`,
		"/accounts/0.0.22": `{"account":"0.0.22","max_automatic_token_associations":"many"}`,
	})
	client := NewClient(Config{HTTPClient: srv.Client()})

	cases := map[string]int{"0.0.20": -1, "0.0.21": 0, "0.0.22": 0}
	for account, want := range cases {
		got, err := client.MaxAutoAssociations(context.Background(), srv.URL, account)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", account, err)
		}
		if got != want {
			t.Fatalf("%s: expected %d, got %d", account, want, got)
		}
	}

	if _, err := client.MaxAutoAssociations(context.Background(), srv.URL, "0.0.404"); !errors.Is(err, xerrors.ErrLookupFailed) {
		t.Fatalf("expected lookup failure for unknown account, got %v", err)
	}
}

func TestAccountEVMAddress(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/accounts/0.0.30": `{"account":"0.0.30","evm_address":"0xABCDEF0000000000000000000000000000000001"}`,
		"/accounts/0.0.31": `{"account":"0.0.31","evm_address":null}`,
	})
	client := NewClient(Config{HTTPClient: srv.Client()})

	addr, err := client.AccountEVMAddress(context.Background(), srv.URL, "0.0.30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "0xabcdef0000000000000000000000000000000001" {
		t.Fatalf("unexpected address %q", addr)
	}

	empty, err := client.AccountEVMAddress(context.Background(), srv.URL, "0.0.31")
	if err != nil || empty != "" {
		t.Fatalf("expected empty address, got %q (%v)", empty, err)
	}
}

func TestObserverSeesEveryRequest(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/accounts/0.0.40": `{"account":"0.0.40"}`,
	})

	var mu sync.Mutex
	seen := map[string]int{}
	client := NewClient(Config{
		HTTPClient: srv.Client(),
		Observer: func(endpoint string, status int, elapsed time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			seen[endpoint] = status
		},
	})

	_, _ = client.MaxAutoAssociations(context.Background(), srv.URL, "0.0.40")
	_, _ = client.TokenInfo(context.Background(), srv.URL, "0.0.404")

	mu.Lock()
	defer mu.Unlock()
	if seen[EndpointAccount] != http.StatusOK {
		t.Fatalf("expected 200 for accounts, got %d", seen[EndpointAccount])
	}
	if seen[EndpointToken] != http.StatusNotFound {
		t.Fatalf("expected 404 for tokens, got %d", seen[EndpointToken])
	}
}
