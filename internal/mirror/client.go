// Package mirror 提供 Hedera Mirror Node REST API 的只读查询客户端。
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	xerrors "hedera-swap-plugin/internal/errors"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyPreview = 200
	maxErrorBody   = 4096
)

// FungibleCommon 是 Mirror Node 对同质化代币的类型标记。
const FungibleCommon = "FUNGIBLE_COMMON"

// Endpoint labels reported to the Observer.
const (
	EndpointToken         = "tokens"
	EndpointAccountTokens = "account_tokens"
	EndpointAccount       = "accounts"
)

// Observer 在每次请求结束后被调用，status 为 0 表示请求未拿到响应。
type Observer func(endpoint string, status int, elapsed time.Duration)

// Config 描述客户端的可选参数。
type Config struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   Observer
}

// Client 通过 HTTP GET 调用 Mirror Node。Base URL 按请求传入，同一个客户端可服务多个网络。
type Client struct {
	httpClient *http.Client
	observer   Observer
}

// TokenInfo 是 /tokens/{id} 响应中关心的字段。
type TokenInfo struct {
	TokenID  string
	Type     string
	Name     string
	Symbol   string
	Decimals int
}

// IsFungible reports whether the declared type allows a swap. An absent type
// is accepted.
func (t TokenInfo) IsFungible() bool {
	return t.Type == "" || t.Type == FungibleCommon
}

// LookupError 表示 Mirror Node 请求失败或返回了无法解析的数据。
type LookupError struct {
	Endpoint   string
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *LookupError) Error() string {
	switch {
	case e.StatusCode != 0:
		if e.Body == "" {
			return fmt.Sprintf("mirror node GET %s returned %d", e.URL, e.StatusCode)
		}
		return fmt.Sprintf("mirror node GET %s returned %d: %s", e.URL, e.StatusCode, e.Body)
	case e.Cause != nil:
		return fmt.Sprintf("mirror node GET %s failed: %v", e.URL, e.Cause)
	default:
		return fmt.Sprintf("mirror node GET %s failed", e.URL)
	}
}

// Unwrap exposes both the LOOKUP_FAILED code and the underlying cause.
func (e *LookupError) Unwrap() []error {
	if e.Cause == nil {
		return []error{xerrors.ErrLookupFailed}
	}
	return []error{xerrors.ErrLookupFailed, e.Cause}
}

// NewClient 创建 Mirror Node 客户端。
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: httpClient, observer: cfg.Observer}
}

// TokenInfo 查询代币类型与精度。缺失或非数字的 decimals 视为数据异常。
func (c *Client) TokenInfo(ctx context.Context, baseURL, tokenID string) (TokenInfo, error) {
	endpoint := joinURL(baseURL, "tokens", tokenID)

	var decoded struct {
		TokenID  string          `json:"token_id"`
		Type     string          `json:"type"`
		Name     string          `json:"name"`
		Symbol   string          `json:"symbol"`
		Decimals json.RawMessage `json:"decimals"`
	}
	if err := c.getJSON(ctx, EndpointToken, endpoint, &decoded); err != nil {
		return TokenInfo{}, err
	}

	decimals, ok := parseInt(decoded.Decimals)
	if !ok {
		return TokenInfo{}, &LookupError{
			Endpoint: EndpointToken,
			URL:      endpoint,
			Cause:    fmt.Errorf("token %s has no numeric decimals", tokenID),
		}
	}

	info := TokenInfo{
		TokenID:  decoded.TokenID,
		Type:     strings.TrimSpace(decoded.Type),
		Name:     decoded.Name,
		Symbol:   decoded.Symbol,
		Decimals: decimals,
	}
	if info.TokenID == "" {
		info.TokenID = tokenID
	}
	return info, nil
}

// AccountHasToken 判断账户是否已与代币建立关联。
func (c *Client) AccountHasToken(ctx context.Context, baseURL, accountID, tokenID string) (bool, error) {
	query := url.Values{}
	query.Set("token.id", tokenID)
	query.Set("limit", "1")
	endpoint := joinURL(baseURL, "accounts", accountID, "tokens") + "?" + query.Encode()

	// 不同版本的 Mirror Node 返回 tokens 或 balances。
	var decoded struct {
		Tokens   []json.RawMessage `json:"tokens"`
		Balances []json.RawMessage `json:"balances"`
	}
	if err := c.getJSON(ctx, EndpointAccountTokens, endpoint, &decoded); err != nil {
		return false, err
	}
	return len(decoded.Tokens) > 0 || len(decoded.Balances) > 0, nil
}

// MaxAutoAssociations 返回账户的自动关联上限，-1 表示不限。字段缺失或非数字时返回 0。
func (c *Client) MaxAutoAssociations(ctx context.Context, baseURL, accountID string) (int, error) {
	account, err := c.account(ctx, baseURL, accountID)
	if err != nil {
		return 0, err
	}
	value, ok := parseInt(account.MaxAutomaticTokenAssociations)
	if !ok {
		return 0, nil
	}
	return value, nil
}

// AccountEVMAddress returns the account's EVM address with a 0x prefix, or an
// empty string when the mirror node does not report one.
func (c *Client) AccountEVMAddress(ctx context.Context, baseURL, accountID string) (string, error) {
	account, err := c.account(ctx, baseURL, accountID)
	if err != nil {
		return "", err
	}
	addr := strings.TrimSpace(account.EVMAddress)
	if addr == "" {
		return "", nil
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		addr = "0x" + addr
	}
	return strings.ToLower(addr), nil
}

type accountRecord struct {
	Account                       string          `json:"account"`
	EVMAddress                    string          `json:"evm_address"`
	MaxAutomaticTokenAssociations json.RawMessage `json:"max_automatic_token_associations"`
}

func (c *Client) account(ctx context.Context, baseURL, accountID string) (accountRecord, error) {
	var decoded accountRecord
	err := c.getJSON(ctx, EndpointAccount, joinURL(baseURL, "accounts", accountID), &decoded)
	return decoded, err
}

func (c *Client) getJSON(ctx context.Context, label, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &LookupError{Endpoint: label, URL: endpoint, Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(label, 0, started)
		return &LookupError{Endpoint: label, URL: endpoint, Cause: err}
	}
	defer resp.Body.Close()
	c.observe(label, resp.StatusCode, started)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &LookupError{
			Endpoint:   label,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       preview(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &LookupError{Endpoint: label, URL: endpoint, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(label string, status int, started time.Time) {
	if c.observer != nil {
		c.observer(label, status, time.Since(started))
	}
}

func joinURL(baseURL string, segments ...string) string {
	out := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	for _, segment := range segments {
		out += "/" + url.PathEscape(segment)
	}
	return out
}

// parseInt 接受 JSON 数字或数字字符串。
func parseInt(raw json.RawMessage) (int, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, false
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return value, true
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) > maxBodyPreview {
		return string(runes[:maxBodyPreview])
	}
	return body
}
