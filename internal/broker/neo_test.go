package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"neo-trader/internal/config"
	"neo-trader/internal/models"
)

// neoStub mimics the Neo login, validate, order and report endpoints.
type neoStub struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string

	validateStatus int
	orderBody      string
}

func (s *neoStub) handler(t *testing.T, baseURL *string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login/1.0/tradeApiLogin", func(w http.ResponseWriter, r *http.Request) {
		s.capture(r)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["totp"] != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":[{"code":"10522","message":"Invalid TOTP"}]}`)
			return
		}
		io.WriteString(w, `{"data":{"token":"view-token","sid":"sid-1","kType":"View","status":"success"}}`)
	})

	mux.HandleFunc("/login/1.0/tradeApiValidate", func(w http.ResponseWriter, r *http.Request) {
		s.capture(r)
		if s.validateStatus != 0 {
			w.WriteHeader(s.validateStatus)
			io.WriteString(w, `{"error":[{"message":"Invalid MPIN"}]}`)
			return
		}
		io.WriteString(w, `{"data":{"token":"trade-token","sid":"sid-2","kType":"Trade","baseUrl":"`+*baseURL+`/api"}}`)
	})

	mux.HandleFunc("/api/quick/order/rule/ms/place", func(w http.ResponseWriter, r *http.Request) {
		s.capture(r)
		if s.orderBody != "" {
			io.WriteString(w, s.orderBody)
			return
		}
		io.WriteString(w, `{"nOrdNo":"240115000000123","stat":"Ok","stCode":200}`)
	})

	mux.HandleFunc("/api/quick/user/orders", func(w http.ResponseWriter, r *http.Request) {
		s.capture(r)
		io.WriteString(w, `{"stat":"Ok","data":[{"nOrdNo":"240115000000123"}]}`)
	})

	mux.HandleFunc("/api/portfolio/v1/holdings", func(w http.ResponseWriter, r *http.Request) {
		s.capture(r)
		io.WriteString(w, `<html>maintenance</html>`)
	})

	return mux
}

func (s *neoStub) capture(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.bodies = append(s.bodies, string(body))
	s.mu.Unlock()
}

func (s *neoStub) last() (*http.Request, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1], s.bodies[len(s.bodies)-1]
}

func newTestNeoClient(t *testing.T) (*NeoClient, *neoStub) {
	t.Helper()
	stub := &neoStub{}
	var baseURL string
	srv := httptest.NewServer(stub.handler(t, &baseURL))
	t.Cleanup(srv.Close)
	baseURL = srv.URL

	client, err := NewNeoClient(NeoConfig{
		Environment: models.EnvUAT,
		ConsumerKey: "consumer-key",
		Endpoints: config.NeoEndpoints{
			LoginURL:        srv.URL + "/login/1.0/tradeApiLogin",
			ValidateURL:     srv.URL + "/login/1.0/tradeApiValidate",
			OrderPath:       config.DefaultOrderPath,
			OrderReportPath: config.DefaultOrderReportPath,
			PositionsPath:   config.DefaultPositionsPath,
			HoldingsPath:    config.DefaultHoldingsPath,
		},
		HTTPClient: srv.Client(),
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewNeoClient() error = %v", err)
	}
	return client, stub
}

func TestNewNeoClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  NeoConfig
	}{
		{"no key", NeoConfig{Environment: models.EnvProd, Endpoints: config.NeoEndpoints{LoginURL: "https://x/l", ValidateURL: "https://x/v"}}},
		{"bad env", NeoConfig{Environment: "dev", ConsumerKey: "k", Endpoints: config.NeoEndpoints{LoginURL: "https://x/l", ValidateURL: "https://x/v"}}},
		{"no endpoints", NeoConfig{Environment: models.EnvProd, ConsumerKey: "k"}},
		{"bad url", NeoConfig{Environment: models.EnvProd, ConsumerKey: "k", Endpoints: config.NeoEndpoints{LoginURL: "not a url", ValidateURL: "https://x/v"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewNeoClient(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNeoClient_LoginValidateOrderFlow(t *testing.T) {
	ctx := context.Background()
	client, stub := newTestNeoClient(t)

	if _, err := client.PlaceOrder(ctx, models.DefaultOrderFields()); err == nil {
		t.Fatal("order before login should fail")
	}

	resp, err := client.LoginTOTP(ctx, "+919999999999", "UCC1", "123456")
	if err != nil {
		t.Fatalf("LoginTOTP() error = %v", err)
	}
	if resp.(map[string]interface{})["data"] == nil {
		t.Errorf("login response = %v", resp)
	}
	req, body := stub.last()
	if req.Header.Get("Authorization") != "consumer-key" || req.Header.Get("neo-fin-key") != DefaultNeoFinKey {
		t.Errorf("login headers = %v", req.Header)
	}
	var loginBody map[string]string
	if err := json.Unmarshal([]byte(body), &loginBody); err != nil || loginBody["mobileNumber"] != "+919999999999" || loginBody["ucc"] != "UCC1" {
		t.Errorf("login body = %s", body)
	}

	if _, err := client.ValidateTOTP(ctx, "0000"); err != nil {
		t.Fatalf("ValidateTOTP() error = %v", err)
	}
	req, body = stub.last()
	if req.Header.Get("sid") != "sid-1" || req.Header.Get("Auth") != "view-token" {
		t.Errorf("validate headers = %v", req.Header)
	}
	if !strings.Contains(body, `"mpin":"0000"`) {
		t.Errorf("validate body = %s", body)
	}

	resp, err = client.PlaceOrder(ctx, models.DefaultOrderFields())
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if resp.(map[string]interface{})["nOrdNo"] != "240115000000123" {
		t.Errorf("order response = %v", resp)
	}
	req, body = stub.last()
	if req.Header.Get("Auth") != "trade-token" || req.Header.Get("Sid") != "sid-2" {
		t.Errorf("order headers = %v", req.Header)
	}
	form, err := url.ParseQuery(body)
	if err != nil {
		t.Fatalf("order body is not a form: %v", err)
	}
	var jData map[string]string
	if err := json.Unmarshal([]byte(form.Get("jData")), &jData); err != nil {
		t.Fatalf("jData = %q: %v", form.Get("jData"), err)
	}
	want := map[string]string{"es": "nse_cm", "pc": "CNC", "ts": "RELIANCE", "tt": "B", "qt": "1", "pr": "0", "pt": "MKT", "rt": "DAY", "am": "NO", "pf": "N"}
	for k, v := range want {
		if jData[k] != v {
			t.Errorf("jData[%s] = %q, want %q", k, jData[k], v)
		}
	}
	if _, ok := jData["ig"]; ok {
		t.Error("unset optional field was sent")
	}

	if _, err := client.OrderReport(ctx); err != nil {
		t.Errorf("OrderReport() error = %v", err)
	}
	if !strings.Contains(client.String(), "trade session") {
		t.Errorf("String() = %q", client.String())
	}
}

func TestNeoClient_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("login rejected", func(t *testing.T) {
		client, _ := newTestNeoClient(t)
		resp, err := client.LoginTOTP(ctx, "m", "u", "999999")
		var apiErr *NeoAPIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || !strings.Contains(apiErr.Body, "Invalid TOTP") {
			t.Fatalf("err = %v", err)
		}
		if resp == nil {
			t.Error("error body should still be returned as the response")
		}
	})

	t.Run("validate rejected", func(t *testing.T) {
		client, stub := newTestNeoClient(t)
		stub.validateStatus = http.StatusForbidden
		if _, err := client.LoginTOTP(ctx, "m", "u", "123456"); err != nil {
			t.Fatal(err)
		}
		if _, err := client.ValidateTOTP(ctx, "1"); err == nil {
			t.Fatal("expected validate error")
		}
		if _, err := client.Positions(ctx); err == nil {
			t.Error("positions without trade session should fail")
		}
	})

	t.Run("error in 2xx body", func(t *testing.T) {
		client, stub := newTestNeoClient(t)
		stub.orderBody = `{"stat":"Not_Ok","emsg":"RMS:Rule: Check circuit limit"}`
		client.LoginTOTP(ctx, "m", "u", "123456")
		client.ValidateTOTP(ctx, "1")
		_, err := client.PlaceOrder(ctx, models.DefaultOrderFields())
		if err == nil || !strings.Contains(err.Error(), "circuit limit") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("non-json body", func(t *testing.T) {
		client, _ := newTestNeoClient(t)
		client.LoginTOTP(ctx, "m", "u", "123456")
		client.ValidateTOTP(ctx, "1")
		_, err := client.Holdings(ctx)
		var apiErr *NeoAPIError
		if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Body, "maintenance") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		loginURL := srv.URL + "/login"
		srv.Close()

		client, err := NewNeoClient(NeoConfig{
			Environment: models.EnvProd,
			ConsumerKey: "consumer-key",
			Endpoints:   config.NeoEndpoints{LoginURL: loginURL, ValidateURL: srv.URL + "/validate"},
			Logger:      zerolog.Nop(),
		})
		if err != nil {
			t.Fatal(err)
		}
		_, err = client.LoginTOTP(ctx, "m", "u", "123456")
		var urlErr *url.Error
		if !errors.As(err, &urlErr) {
			t.Fatalf("err = %v, want wrapped *url.Error", err)
		}
		if !strings.Contains(err.Error(), "POST "+loginURL+" failed") {
			t.Errorf("err = %q, missing request context", err)
		}
	})

	t.Run("logout without session", func(t *testing.T) {
		client, _ := newTestNeoClient(t)
		if _, err := client.Logout(ctx); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("logout discards tokens", func(t *testing.T) {
		client, _ := newTestNeoClient(t)
		client.LoginTOTP(ctx, "m", "u", "123456")
		client.ValidateTOTP(ctx, "1")
		if _, err := client.Logout(ctx); err != nil {
			t.Fatalf("Logout() error = %v", err)
		}
		if _, err := client.OrderReport(ctx); err == nil {
			t.Error("report after logout should fail")
		}
	})
}

func TestNewFactory(t *testing.T) {
	cfg := config.Default()

	cfg.Broker.Mode = ModePaper
	f, err := NewFactory(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFactory(paper) error = %v", err)
	}
	c, err := f.New(models.EnvUAT, "key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.(*PaperClient); !ok {
		t.Errorf("client = %T, want *PaperClient", c)
	}

	cfg.Broker.Mode = ModeNeo
	f, err = NewFactory(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFactory(neo) error = %v", err)
	}
	c, err = f.New(models.EnvProd, "key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.(*NeoClient); !ok {
		t.Errorf("client = %T, want *NeoClient", c)
	}

	cfg.Broker.Mode = "kite"
	if _, err := NewFactory(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown mode")
	}
}
