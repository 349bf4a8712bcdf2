package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"neo-trader/internal/config"
	apperrors "neo-trader/internal/errors"
	"neo-trader/internal/logging"
	"neo-trader/internal/models"
)

// DefaultNeoFinKey is the fixed application key the Neo trade API expects.
const DefaultNeoFinKey = "neotradeapi"

// NeoClient implements TradingClient against the Kotak Neo trade API.
// It forwards requests and keeps the session tokens the API hands back;
// all authentication logic stays on the broker side.
type NeoClient struct {
	env         models.Environment
	consumerKey string
	finKey      string
	endpoints   config.NeoEndpoints
	httpClient  *http.Client
	logger      zerolog.Logger

	viewToken  string
	tradeToken string
	sid        string
	baseURL    string

	mu sync.RWMutex
}

// NeoConfig holds configuration for the Neo client.
type NeoConfig struct {
	Environment models.Environment
	ConsumerKey string
	FinKey      string
	Endpoints   config.NeoEndpoints
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// NeoAPIError is returned when the API answers with an error status or an
// error body.
type NeoAPIError struct {
	Status int
	Body   string
}

func (e *NeoAPIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("neo api error [%d]: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("neo api error: %s", e.Body)
}

// NewNeoClient creates a Neo client for one environment.
func NewNeoClient(cfg NeoConfig) (*NeoClient, error) {
	if cfg.ConsumerKey == "" {
		return nil, fmt.Errorf("consumer key is required")
	}
	if !cfg.Environment.Valid() {
		return nil, fmt.Errorf("unsupported environment: %q", cfg.Environment)
	}
	if cfg.Endpoints.LoginURL == "" || cfg.Endpoints.ValidateURL == "" {
		return nil, fmt.Errorf("login and validate endpoints are required for %s", cfg.Environment)
	}
	if _, err := url.ParseRequestURI(cfg.Endpoints.LoginURL); err != nil {
		return nil, apperrors.Wrap(err, "invalid login endpoint")
	}

	finKey := cfg.FinKey
	if finKey == "" {
		finKey = DefaultNeoFinKey
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &NeoClient{
		env:         cfg.Environment,
		consumerKey: cfg.ConsumerKey,
		finKey:      finKey,
		endpoints:   cfg.Endpoints,
		httpClient:  httpClient,
		logger:      logging.WithEnvironment(cfg.Logger, cfg.Environment.String()),
	}, nil
}

// LoginTOTP performs the first login step and keeps the view token and sid.
func (n *NeoClient) LoginTOTP(ctx context.Context, mobileNumber, ucc, totp string) (models.Response, error) {
	body, err := json.Marshal(map[string]string{
		"mobileNumber": mobileNumber,
		"ucc":          ucc,
		"totp":         totp,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding login request")
	}

	headers := map[string]string{
		"Authorization": n.consumerKey,
		"Content-Type":  "application/json",
	}
	resp, err := n.do(ctx, http.MethodPost, n.endpoints.LoginURL, headers, bytes.NewReader(body))
	if err != nil {
		return resp, err
	}

	token := stringAt(resp, "data", "token")
	sid := stringAt(resp, "data", "sid")
	if token == "" || sid == "" {
		return resp, fmt.Errorf("login response did not contain a view token and sid")
	}

	n.mu.Lock()
	n.viewToken = token
	n.sid = sid
	n.tradeToken = ""
	n.baseURL = ""
	n.mu.Unlock()

	return resp, nil
}

// ValidateTOTP performs the MPIN step and keeps the trade token and base URL.
func (n *NeoClient) ValidateTOTP(ctx context.Context, mpin string) (models.Response, error) {
	n.mu.RLock()
	viewToken, sid := n.viewToken, n.sid
	n.mu.RUnlock()
	if viewToken == "" {
		return nil, fmt.Errorf("totp login required before validate")
	}

	body, err := json.Marshal(map[string]string{"mpin": mpin})
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding validate request")
	}

	headers := map[string]string{
		"Authorization": n.consumerKey,
		"Content-Type":  "application/json",
		"sid":           sid,
		"Auth":          viewToken,
	}
	resp, err := n.do(ctx, http.MethodPost, n.endpoints.ValidateURL, headers, bytes.NewReader(body))
	if err != nil {
		return resp, err
	}

	token := stringAt(resp, "data", "token")
	if token == "" {
		return resp, fmt.Errorf("validate response did not contain a trade token")
	}
	baseURL := stringAt(resp, "data", "baseUrl")
	if baseURL == "" {
		baseURL = n.endpoints.BaseURL
	}
	if baseURL == "" {
		return resp, fmt.Errorf("validate response did not contain a base url")
	}

	n.mu.Lock()
	n.tradeToken = token
	if s := stringAt(resp, "data", "sid"); s != "" {
		n.sid = s
	}
	n.baseURL = strings.TrimRight(baseURL, "/")
	n.mu.Unlock()

	return resp, nil
}

// Logout discards the session tokens, calling the logout endpoint first
// when one is configured.
func (n *NeoClient) Logout(ctx context.Context) (models.Response, error) {
	n.mu.Lock()
	token, sid := n.tradeToken, n.sid
	if token == "" {
		token = n.viewToken
	}
	n.viewToken, n.tradeToken, n.sid, n.baseURL = "", "", "", ""
	n.mu.Unlock()

	if token == "" {
		return nil, fmt.Errorf("no active session")
	}
	if n.endpoints.LogoutURL == "" {
		return map[string]interface{}{"message": "session tokens discarded"}, nil
	}

	headers := map[string]string{
		"Authorization": n.consumerKey,
		"Auth":          token,
		"Sid":           sid,
	}
	return n.do(ctx, http.MethodPost, n.endpoints.LogoutURL, headers, nil)
}

// PlaceOrder posts the order as the jData form field.
func (n *NeoClient) PlaceOrder(ctx context.Context, fields models.OrderFields) (models.Response, error) {
	jData, err := json.Marshal(neoOrderPayload(fields))
	if err != nil {
		return nil, apperrors.Wrapf(err, "encoding order for %s", fields.TradingSymbol)
	}
	form := url.Values{}
	form.Set("jData", string(jData))

	return n.tradeCall(ctx, http.MethodPost, n.endpoints.OrderPath, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// OrderReport fetches the order book.
func (n *NeoClient) OrderReport(ctx context.Context) (models.Response, error) {
	return n.tradeCall(ctx, http.MethodGet, n.endpoints.OrderReportPath, nil, "")
}

// Positions fetches the day's positions.
func (n *NeoClient) Positions(ctx context.Context) (models.Response, error) {
	return n.tradeCall(ctx, http.MethodGet, n.endpoints.PositionsPath, nil, "")
}

// Holdings fetches the portfolio holdings.
func (n *NeoClient) Holdings(ctx context.Context) (models.Response, error) {
	return n.tradeCall(ctx, http.MethodGet, n.endpoints.HoldingsPath, nil, "")
}

func (n *NeoClient) tradeCall(ctx context.Context, method, path string, body io.Reader, contentType string) (models.Response, error) {
	n.mu.RLock()
	token, sid, baseURL := n.tradeToken, n.sid, n.baseURL
	n.mu.RUnlock()

	if token == "" {
		return nil, fmt.Errorf("trade session required: complete totp login and validate")
	}

	headers := map[string]string{
		"Auth": token,
		"Sid":  sid,
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return n.do(ctx, method, baseURL+path, headers, body)
}

func (n *NeoClient) do(ctx context.Context, method, endpoint string, headers map[string]string, body io.Reader) (resp models.Response, err error) {
	start := time.Now()
	defer func() {
		logging.LogAPICall(logging.FromContextOr(ctx, n.logger), method, endpoint, time.Since(start), err)
	}()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, apperrors.Wrapf(err, "creating %s request", method)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("neo-fin-key", n.finKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpResp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(err, "%s %s failed", method, endpoint)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading response from %s", endpoint)
	}

	var payload interface{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &NeoAPIError{Status: httpResp.StatusCode, Body: string(raw)}
		}
	}

	if httpResp.StatusCode >= 400 {
		return payload, &NeoAPIError{Status: httpResp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if msg := errorMessage(payload); msg != "" {
		return payload, &NeoAPIError{Body: msg}
	}

	return payload, nil
}

// neoOrderPayload maps order fields to the short keys of the order API.
// Unset optional fields are omitted.
func neoOrderPayload(f models.OrderFields) map[string]string {
	p := map[string]string{
		"am": f.AMO,
		"dq": f.DisclosedQuantity,
		"es": string(f.ExchangeSegment),
		"mp": f.MarketProtection,
		"pc": string(f.Product),
		"pf": f.PF,
		"pr": f.Price,
		"pt": string(f.OrderType),
		"qt": fmt.Sprintf("%d", f.Quantity),
		"rt": string(f.Validity),
		"tp": f.TriggerPrice,
		"ts": f.TradingSymbol,
		"tt": string(f.TransactionType),
	}
	optional := map[string]*string{
		"ig":  f.Tag,
		"tk":  f.ScripToken,
		"sot": f.SquareOffType,
		"slt": f.StopLossType,
		"slv": f.StopLossValue,
		"sov": f.SquareOffValue,
		"lat": f.LastTradedPrice,
		"tlt": f.TrailingStopLoss,
		"tsv": f.TrailingSLValue,
	}
	for k, v := range optional {
		if v != nil {
			p[k] = *v
		}
	}
	return p
}

// stringAt walks nested JSON objects and returns the string at path.
func stringAt(payload interface{}, path ...string) string {
	cur := payload
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}

// errorMessage extracts an error reported inside a 2xx body.
func errorMessage(payload interface{}) string {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	if stat, _ := m["stat"].(string); strings.EqualFold(stat, "not_ok") {
		if msg, _ := m["emsg"].(string); msg != "" {
			return msg
		}
		return "request rejected"
	}
	switch e := m["error"].(type) {
	case string:
		return e
	case []interface{}:
		if len(e) == 0 {
			return ""
		}
		if first, ok := e[0].(map[string]interface{}); ok {
			if msg, _ := first["message"].(string); msg != "" {
				return msg
			}
		}
		return fmt.Sprintf("%v", e)
	case map[string]interface{}:
		if msg, _ := e["message"].(string); msg != "" {
			return msg
		}
		return fmt.Sprintf("%v", e)
	}
	return ""
}

// String describes the client without exposing credentials or tokens.
func (n *NeoClient) String() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	state := "logged out"
	switch {
	case n.tradeToken != "":
		state = "trade session"
	case n.viewToken != "":
		state = "view session"
	}
	return fmt.Sprintf("NeoClient{env=%s, login=%s, base=%s, state=%s}", n.env, n.endpoints.LoginURL, n.baseURL, state)
}
