package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"neo-trader/internal/broker"
	"neo-trader/internal/config"
	"neo-trader/internal/models"
	"neo-trader/internal/session"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Broker.Mode = broker.ModePaper
	cfg.Panel.ColorEnabled = false
	cfg.Panel.OutputFormat = FormatText
	cfg.Security.AuditEnabled = false
	cfg.Telemetry.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	app, err := NewApp(cfg, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { app.Close(context.Background()) })
	return app
}

func runScript(t *testing.T, app *App, format string, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	p, err := NewPanel(app, in, &out, PanelOptions{Format: format, Environment: "uat"})
	if err != nil {
		t.Fatalf("NewPanel() error = %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out.String()
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q\n--- output ---\n%s", w, out)
		}
	}
}

func TestPanel_FullWorkflow(t *testing.T) {
	app := newTestApp(t, nil)

	out := runScript(t, app, FormatText,
		"client --key=test-key",
		"login --mobile=+919999999999 --ucc=UCC1 --totp=123456 --mpin=1234",
		"order --symbol=TCS --qty=2 --type=L --price=3500",
		"report holdings",
		"report orderbook",
		"logout",
		"exit",
		"client --key=never-run",
	)

	assertContains(t, out,
		"Client created for uat",
		"Authenticated with uat",
		"Placing BUY 2 TCS on uat",
		"₹3,500.00",
		"Order submitted to uat",
		"PAPER_",
		"Report fetched from uat",
		`"displaySymbol": "TCS"`,
		"Logged out of uat",
	)
	if strings.Contains(out, "never-run") {
		t.Error("lines after exit were executed")
	}

	if got := app.Controller.Session(models.EnvUAT).State; got != session.StateClientReady {
		t.Errorf("uat state = %s, want %s", got, session.StateClientReady)
	}
	if got := app.Controller.Session(models.EnvProd).State; got != session.StateNoClient {
		t.Errorf("prod state = %s, want %s", got, session.StateNoClient)
	}
}

func TestPanel_ErrorsDoNotEndThePanel(t *testing.T) {
	app := newTestApp(t, nil)

	out := runScript(t, app, FormatText,
		"order",
		"report positions",
		"login --totp=123456",
		"frobnicate",
		"env dev",
		"order --qty=0",
		"order --symbol=' '",
		"order --side=X",
		"report trades",
		`client --key="unterminated`,
		"logout",
		"client --key=k",
		"login --mobile=m --ucc=u --totp=12 --mpin=1",
		"status",
	)

	assertContains(t, out,
		"not_authenticated error [place_order@uat]",
		"not_authenticated error [fetch_report@uat]",
		"validation error [authenticate@uat] client",
		`unknown command "frobnicate"`,
		`unknown environment "dev"`,
		"quantity must be at least 1",
		"trading symbol is required",
		"invalid transaction type",
		`unknown report "trades"`,
		"unterminated",
		"No client for uat; nothing to log out",
		"Client created for uat",
		"authentication error [authenticate@uat] (login)",
		"LOGIN_FAILED",
	)
}

func TestPanel_PromptsForMissingInputs(t *testing.T) {
	app := newTestApp(t, nil)

	out := runScript(t, app, FormatText,
		"client",
		"prompted-key",
		"login",
		"+919999999999",
		"UCC1",
		"654321",
		"1234",
	)

	assertContains(t, out,
		"Consumer key: ",
		"Mobile number: ",
		"UCC: ",
		"TOTP: ",
		"MPIN: ",
		"Authenticated with uat",
	)
	if !strings.Contains(app.Controller.Session(models.EnvUAT).Client, "ucc=UCC1") {
		t.Errorf("client = %s", app.Controller.Session(models.EnvUAT).Client)
	}
}

func TestPanel_SecretPromptsReadWithoutEcho(t *testing.T) {
	app := newTestApp(t, nil)

	var out bytes.Buffer
	in := strings.NewReader("client --key=test-key\nlogin\n+919999999999\nUCC1\n")
	p, err := NewPanel(app, in, &out, PanelOptions{Format: FormatText, Environment: "uat"})
	if err != nil {
		t.Fatalf("NewPanel() error = %v", err)
	}

	// Simulate a terminal: secrets come from the no-echo reader, in order.
	secrets := []string{"654321", "1234"}
	p.prompter.tty = true
	p.prompter.readPassword = func(int) ([]byte, error) {
		if len(secrets) == 0 {
			return nil, io.EOF
		}
		s := secrets[0]
		secrets = secrets[1:]
		return []byte(s), nil
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	assertContains(t, out.String(), "TOTP: ", "MPIN: ", "Authenticated with uat")
	if len(secrets) != 0 {
		t.Errorf("unused secrets %v: TOTP or MPIN was not read without echo", secrets)
	}
	if strings.Contains(out.String(), "654321") {
		t.Error("TOTP was echoed")
	}
}

func TestPanel_UsesConfiguredCredentials(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.Credentials.Neo = config.NeoCredentials{
			ConsumerKey:  "configured-key",
			MobileNumber: "+919999999999",
			UCC:          "UCC9",
			MPIN:         "4321",
			TOTPSecret:   "JBSWY3DPEHPK3PXP",
		}
	})

	out := runScript(t, app, FormatText, "client", "login", "debug")

	assertContains(t, out,
		"Client created for uat",
		"Using TOTP generated from the configured secret",
		"Authenticated with uat",
		"Last login response",
		`"kType": "View"`,
		`"kType": "Trade"`,
	)
	if strings.Contains(out, "Consumer key: ") || strings.Contains(out, "MPIN: ") {
		t.Error("prompted although credentials are configured")
	}
}

func TestPanel_EnvironmentsAreSeparate(t *testing.T) {
	app := newTestApp(t, nil)

	out := runScript(t, app, FormatText,
		"client --key=k1",
		"login --mobile=m --ucc=u --totp=123456 --mpin=1",
		"env prod",
		"order",
		"env",
		"history --env=uat",
	)

	assertContains(t, out,
		"Active environment: prod (NO_CLIENT)",
		"not_authenticated error [place_order@prod]",
		"prod (NO_CLIENT)",
		"create_client",
		"authenticate",
	)
	if app.Controller.Session(models.EnvUAT).State != session.StateAuthenticated {
		t.Error("uat session should still be authenticated")
	}
}

func TestPanel_ReadOnlyBlocksOrders(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.Security.ReadOnlyMode = true
	})

	out := runScript(t, app, FormatText,
		"client --key=k",
		"login --mobile=m --ucc=u --totp=123456 --mpin=1",
		"order --symbol=TCS",
		"report orders",
	)

	assertContains(t, out, "read_only error [place_order@uat]", "Report fetched from uat")
	if strings.Contains(out, "Order submitted") {
		t.Error("order was submitted in read-only mode")
	}
}

func TestPanel_JSONOutput(t *testing.T) {
	app := newTestApp(t, nil)

	out := runScript(t, app, FormatJSON,
		"client --key=k",
		"login --mobile=m --ucc=u --totp=123456 --mpin=1",
		"order --symbol=INFY",
		"report positions",
		"logout",
		"logout",
	)

	dec := json.NewDecoder(strings.NewReader(out))
	var got []resultView
	for {
		var v resultView
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("output is not a JSON stream: %v\n%s", err, out)
		}
		got = append(got, v)
	}

	wantOps := []session.Operation{
		session.OpCreateClient, session.OpAuthenticate, session.OpPlaceOrder,
		session.OpFetchReport, session.OpLogout, session.OpLogout,
	}
	if len(got) != len(wantOps) {
		t.Fatalf("got %d results, want %d\n%s", len(got), len(wantOps), out)
	}
	for i, op := range wantOps {
		if got[i].Operation != op || got[i].Environment != models.EnvUAT {
			t.Errorf("result %d = %s@%s, want %s@uat", i, got[i].Operation, got[i].Environment, op)
		}
	}
	for i := 0; i < 5; i++ {
		if !got[i].OK {
			t.Errorf("result %d failed: %s", i, got[i].Message)
		}
	}
	if got[5].OK || got[5].Kind != "logout" {
		t.Errorf("second logout = %+v, want logout error", got[5])
	}
	if got[2].Response == nil {
		t.Error("order response missing")
	}
}

func TestPanel_YAMLStatus(t *testing.T) {
	app := newTestApp(t, nil)
	out := runScript(t, app, FormatYAML, "status")
	assertContains(t, out, "active_environment: uat", "broker_mode: paper", "state: NO_CLIENT")
}

func TestNewPanel_Validation(t *testing.T) {
	app := newTestApp(t, nil)
	if _, err := NewPanel(app, strings.NewReader(""), io.Discard, PanelOptions{Environment: "dev"}); err == nil {
		t.Error("expected error for unknown environment")
	}
	if _, err := NewPanel(app, strings.NewReader(""), io.Discard, PanelOptions{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	p, err := NewPanel(app, strings.NewReader(""), io.Discard, PanelOptions{Environment: "production"})
	if err != nil {
		t.Fatalf("NewPanel() error = %v", err)
	}
	if p.Environment() != models.EnvProd {
		t.Errorf("Environment() = %s, want prod", p.Environment())
	}
}

func TestRootCmd(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.Credentials.Neo.ConsumerKey = "abcd1234efgh5678"
	})

	run := func(stdin string, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := NewRootCmd(app)
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetArgs(args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("Execute(%v) error = %v", args, err)
		}
		return out.String()
	}

	assertContains(t, run("", "version"), "neo-trader v"+Version)

	show := run("", "config", "show")
	assertContains(t, show, "abcd********5678", "paper")
	if strings.Contains(show, "abcd1234efgh5678") {
		t.Error("config show leaked the consumer key")
	}

	assertContains(t, run("", "config", "validate"), "Configuration is valid")

	out := run("env\nexit\n", "--env", "uat")
	assertContains(t, out, "neo-trader v", "uat (NO_CLIENT)")

	out = run("client\nlogin --mobile=m --ucc=u --totp=123456 --mpin=1\norder\n", "--read-only", "panel", "--env=uat")
	assertContains(t, out, "read-only", "read_only error")
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"status", []string{"status"}, false},
		{"  order   --qty=5\t--symbol=TCS ", []string{"order", "--qty=5", "--symbol=TCS"}, false},
		{`order --tag="my tag"`, []string{"order", "--tag=my tag"}, false},
		{`client --key 'a b"c'`, []string{"client", "--key", `a b"c`}, false},
		{`login --mpin=12\ 34`, []string{"login", "--mpin=12 34"}, false},
		{`order --tag=""`, []string{"order", "--tag="}, false},
		{`order "unterminated`, nil, true},
		{`order \`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitArgs(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrderFieldsFromFlags(t *testing.T) {
	p := &Panel{}
	cmd := newOrderCmd(p)
	if err := cmd.ParseFlags([]string{"--symbol=SBIN", "--side=sell", "--qty=3", "--type=SL", "--price=600", "--trigger=598", "--tag=swing"}); err != nil {
		t.Fatal(err)
	}

	fields, err := orderFieldsFromFlags(cmd)
	if err != nil {
		t.Fatalf("orderFieldsFromFlags() error = %v", err)
	}
	if fields.TradingSymbol != "SBIN" || fields.TransactionType != models.TransactionSell ||
		fields.Quantity != 3 || fields.OrderType != models.OrderTypeStopLoss || fields.TriggerPrice != "598" {
		t.Errorf("fields = %+v", fields)
	}
	if fields.Tag == nil || *fields.Tag != "swing" {
		t.Errorf("tag = %v, want swing", fields.Tag)
	}
	if fields.ScripToken != nil || fields.StopLossValue != nil {
		t.Error("unset optional fields should stay nil")
	}
	if fields.AMO != models.DefaultAMO || fields.PF != models.DefaultPF {
		t.Errorf("defaults not applied: %+v", fields)
	}
}

func TestPanel_Help(t *testing.T) {
	app := newTestApp(t, nil)
	out := runScript(t, app, FormatText, "help", "help order", "help nothing")
	assertContains(t, out,
		"Session",
		"report orders|positions|holdings",
		"exit, quit",
		"Every field has a default",
		"--symbol",
		`unknown command "nothing"`,
	)
}
