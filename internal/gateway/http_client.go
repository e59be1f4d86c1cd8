package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// HTTPClient talks JSON to the gateway adapter, which owns request signing and tokens.
type HTTPClient struct {
	httpClient  *http.Client
	baseURL     string
	shortCode   string
	callbackURL string
	loc         *time.Location
}

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLocation sets the zone used to read adapter timestamps.
func WithLocation(loc *time.Location) Option {
	return func(c *HTTPClient) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// NewHTTPClient builds the adapter client from configuration.
func NewHTTPClient(cfg config.GatewayConfig, opts ...Option) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%s is required", config.EnvGatewayBaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &HTTPClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     base,
		shortCode:   cfg.ShortCode,
		callbackURL: cfg.CallbackURL,
		loc:         time.UTC,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *HTTPClient) InitiateDeposit(ctx context.Context, req DepositRequest) (*InitiateResponse, error) {
	body := map[string]any{
		"transfer_id":       req.TransferID,
		"phone":             req.Phone,
		"amount":            req.Amount.StringFixed(0),
		"account_reference": req.AccountReference,
		"description":       req.Description,
		"short_code":        c.shortCode,
		"callback_url":      c.callback("stk", req.Kind),
	}
	var resp InitiateResponse
	if err := c.post(ctx, "stk/push", body, &resp); err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayTerminal, "stk push response missing request id")
	}
	return &resp, nil
}

func (c *HTTPClient) InitiateWithdrawal(ctx context.Context, req WithdrawalRequest) (*InitiateResponse, error) {
	body := map[string]any{
		"transfer_id":  req.TransferID,
		"phone":        req.Phone,
		"amount":       req.Amount.StringFixed(0),
		"remarks":      req.Remarks,
		"short_code":   c.shortCode,
		"result_url":   c.callback("b2c/result", ""),
		"timeout_url":  c.callback("b2c/timeout", ""),
	}
	var resp InitiateResponse
	if err := c.post(ctx, "b2c/payment", body, &resp); err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayTerminal, "b2c response missing request id")
	}
	return &resp, nil
}

type statusResponse struct {
	Status          string   `json:"status"`
	ResultCode      rawValue `json:"result_code"`
	ResultDesc      string   `json:"result_desc"`
	Receipt         string   `json:"receipt"`
	Amount          string   `json:"amount"`
	Phone           string   `json:"phone"`
	TransactionTime string   `json:"transaction_time"`
}

func (c *HTTPClient) QueryStatus(ctx context.Context, query StatusQuery) (*Result, error) {
	if strings.TrimSpace(query.RequestID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	path := "stk/query"
	if query.Kind == enums.TransferKindWithdrawal {
		path = "b2c/status"
	}
	var resp statusResponse
	if err := c.post(ctx, path, query, &resp); err != nil {
		return nil, err
	}

	res := &Result{
		Kind:       query.Kind,
		Code:       query.RequestID,
		ResultDesc: resp.ResultDesc,
		Receipt:    resp.Receipt,
	}
	switch strings.ToLower(resp.Status) {
	case "pending", "processing":
		res.Pending = true
		return res, nil
	}
	code, err := resp.ResultCode.Int()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "status response ResultCode is not numeric")
	}
	res.ResultCode = code
	if resp.Amount != "" {
		amount, err := decimal.NewFromString(resp.Amount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "status response amount is invalid")
		}
		res.Amount = amount.Round(2)
	}
	if resp.Phone != "" {
		if res.Phone, err = NormalizePhone(resp.Phone); err != nil {
			return nil, err
		}
	}
	if resp.TransactionTime != "" {
		if at, err := time.ParseInLocation(stkTimestampLayout, resp.TransactionTime, c.loc); err == nil {
			res.TransactionAt = at
		}
	}
	return res, nil
}

// callback joins path onto the configured callback base. STK callbacks carry the
// transfer kind because deposits and registration fees share one payload shape.
func (c *HTTPClient) callback(path string, kind enums.TransferKind) string {
	if c.callbackURL == "" {
		return ""
	}
	u, err := url.Parse(c.callbackURL)
	if err != nil {
		return c.callbackURL
	}
	u = u.JoinPath(path)
	if kind != "" {
		q := u.Query()
		q.Set("kind", kind.String())
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal gateway request")
	}
	url := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "execute gateway request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "gateway unavailable")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTerminal, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "gateway rejected request").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, "decode gateway response")
	}
	return nil
}
