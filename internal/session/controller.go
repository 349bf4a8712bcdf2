package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"neo-trader/internal/broker"
	apperrors "neo-trader/internal/errors"
	"neo-trader/internal/logging"
	"neo-trader/internal/models"
	"neo-trader/internal/security"
	"neo-trader/internal/store"
	"neo-trader/internal/telemetry"
)

// Recorder receives the outcome of every operation.
type Recorder interface {
	Record(ctx context.Context, entry store.Entry) error
}

// Options configures a Controller. Every field is optional.
type Options struct {
	Logger   zerolog.Logger
	Tracer   *telemetry.Tracer
	Recorder Recorder
	Audit    *security.AuditLogger
	Access   *security.AccessController
	Clock    func() time.Time
}

// Credentials are the four authentication inputs.
type Credentials struct {
	MobileNumber string
	UCC          string
	TOTP         string
	MPIN         string
}

func (c Credentials) trimmed() Credentials {
	return Credentials{
		MobileNumber: strings.TrimSpace(c.MobileNumber),
		UCC:          strings.TrimSpace(c.UCC),
		TOTP:         strings.TrimSpace(c.TOTP),
		MPIN:         strings.TrimSpace(c.MPIN),
	}
}

// Controller owns one Session per environment and mediates every call to
// the trading client. Operations never panic and never return a bare
// error; failures are reported in the Result.
type Controller struct {
	factory broker.Factory

	mu       sync.RWMutex
	sessions map[models.Environment]*Session

	logger   zerolog.Logger
	safe     *security.SafeLogger
	tracer   *telemetry.Tracer
	recorder Recorder
	audit    *security.AuditLogger
	access   *security.AccessController
	now      func() time.Time
}

// NewController creates a controller that builds clients with factory.
func NewController(factory broker.Factory, opts Options) *Controller {
	c := &Controller{
		factory:  factory,
		sessions: make(map[models.Environment]*Session),
		logger:   opts.Logger,
		safe:     security.NewSafeLogger(opts.Logger),
		tracer:   opts.Tracer,
		recorder: opts.Recorder,
		audit:    opts.Audit,
		access:   opts.Access,
		now:      opts.Clock,
	}
	if c.tracer == nil {
		c.tracer = telemetry.Noop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// session returns the Session for env, creating it on first use.
func (c *Controller) session(env models.Environment) *Session {
	c.mu.RLock()
	s, ok := c.sessions[env]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.sessions[env]; !ok {
		s = newSession(env)
		c.sessions[env] = s
	}
	return s
}

// Session returns a snapshot of env's session. An environment that has not
// been addressed yet reports NO_CLIENT.
func (c *Controller) Session(env models.Environment) SessionView {
	c.mu.RLock()
	s, ok := c.sessions[env]
	c.mu.RUnlock()
	if !ok {
		return SessionView{Environment: env, State: StateNoClient}
	}
	return s.Snapshot()
}

// Sessions returns snapshots of every addressed environment, by name.
func (c *Controller) Sessions() []SessionView {
	c.mu.RLock()
	envs := make([]models.Environment, 0, len(c.sessions))
	for env := range c.sessions {
		envs = append(envs, env)
	}
	c.mu.RUnlock()

	models.SortEnvironments(envs)
	views := make([]SessionView, 0, len(envs))
	for _, env := range envs {
		views = append(views, c.Session(env))
	}
	return views
}

// CreateClient builds a trading client for env and resets its session.
// On failure the previous session is left as it was.
func (c *Controller) CreateClient(ctx context.Context, env models.Environment, consumerKey string) Result {
	key := strings.TrimSpace(consumerKey)
	return c.run(ctx, OpCreateClient, env, security.MaskCredential(key), func(ctx context.Context, s *Session) Result {
		if key == "" {
			return failed(OpCreateClient, env, apperrors.NewValidationError(string(OpCreateClient), env.String(), "consumer_key", "must not be empty"))
		}

		var client broker.TradingClient
		_, err := c.call(ctx, env, "New", func(context.Context) (models.Response, error) {
			var err error
			client, err = c.factory.New(env, key)
			return nil, err
		})
		if err == nil && client == nil {
			err = fmt.Errorf("factory returned no client")
		}
		if err != nil {
			c.auditClientCreated(ctx, env, key, err)
			return failed(OpCreateClient, env, apperrors.NewCollaboratorError(apperrors.KindClientCreation, string(OpCreateClient), env.String(), err))
		}

		s.mu.Lock()
		s.resetLocked(client, c.now())
		s.mu.Unlock()

		c.auditClientCreated(ctx, env, key, nil)
		return Result{Op: OpCreateClient, Env: env}
	})
}

// Authenticate runs the TOTP login and MPIN validate steps. The session is
// authenticated only if both succeed. A step's response is cached on the
// session only when that step succeeds; a failing step's payload travels
// in the Result alone.
func (c *Controller) Authenticate(ctx context.Context, env models.Environment, creds Credentials) Result {
	creds = creds.trimmed()
	return c.run(ctx, OpAuthenticate, env, creds.UCC, func(ctx context.Context, s *Session) Result {
		s.mu.Lock()
		defer s.mu.Unlock()

		op := string(OpAuthenticate)
		if s.client == nil {
			return failed(OpAuthenticate, env, apperrors.NewValidationError(op, env.String(), "client", "create a client first"))
		}
		for _, f := range []struct{ name, value string }{
			{"mobile_number", creds.MobileNumber},
			{"ucc", creds.UCC},
			{"totp", creds.TOTP},
			{"mpin", creds.MPIN},
		} {
			if f.value == "" {
				return failed(OpAuthenticate, env, apperrors.NewValidationError(op, env.String(), f.name, "must not be empty"))
			}
		}

		client := s.client
		s.authenticated = false
		s.loginFailed = false
		s.authenticatedAt = time.Time{}
		s.lastLoginResponse = nil
		s.lastValidateResponse = nil

		loginResp, err := c.call(ctx, env, "LoginTOTP", func(ctx context.Context) (models.Response, error) {
			return client.LoginTOTP(ctx, creds.MobileNumber, creds.UCC, creds.TOTP)
		})
		if err != nil {
			s.loginFailed = true
			c.auditLogin(ctx, env, creds.UCC, apperrors.StageLogin, err)
			return Result{Op: OpAuthenticate, Env: env, Response: AuthResponses{Login: loginResp},
				Err: apperrors.NewAuthenticationError(op, env.String(), apperrors.StageLogin, err)}
		}
		s.lastLoginResponse = loginResp

		validateResp, err := c.call(ctx, env, "ValidateTOTP", func(ctx context.Context) (models.Response, error) {
			return client.ValidateTOTP(ctx, creds.MPIN)
		})
		responses := AuthResponses{Login: loginResp, Validate: validateResp}
		if err != nil {
			s.loginFailed = true
			c.auditLogin(ctx, env, creds.UCC, apperrors.StageValidate, err)
			return Result{Op: OpAuthenticate, Env: env, Response: responses,
				Err: apperrors.NewAuthenticationError(op, env.String(), apperrors.StageValidate, err)}
		}
		s.lastValidateResponse = validateResp

		s.authenticated = true
		s.authenticatedAt = c.now()
		c.auditLogin(ctx, env, creds.UCC, apperrors.StageNone, nil)
		return Result{Op: OpAuthenticate, Env: env, Response: responses}
	})
}

// PlaceOrder submits fields, with broker defaults filled in, through exactly
// one client call. The broker's response is returned unmodified.
func (c *Controller) PlaceOrder(ctx context.Context, env models.Environment, fields models.OrderFields) Result {
	fields = fields.WithDefaults()
	detail := fmt.Sprintf("%s %d %s %s/%s %s @%s", fields.Side(), fields.Quantity, fields.TradingSymbol,
		fields.ExchangeSegment, fields.Product, fields.OrderType, fields.Price)

	return c.run(ctx, OpPlaceOrder, env, detail, func(ctx context.Context, s *Session) Result {
		s.mu.Lock()
		defer s.mu.Unlock()

		client, err := s.authenticatedClientLocked(OpPlaceOrder)
		if err != nil {
			return failed(OpPlaceOrder, env, err)
		}

		if c.access != nil {
			if err := c.access.CheckPermission(ctx, security.OpPlaceOrder); err != nil {
				return failed(OpPlaceOrder, env, &apperrors.OperationError{
					Kind: apperrors.KindReadOnly,
					Op:   string(OpPlaceOrder),
					Env:  env.String(),
					Err:  err,
				})
			}
		}

		resp, err := c.call(ctx, env, "PlaceOrder", func(ctx context.Context) (models.Response, error) {
			return client.PlaceOrder(ctx, fields)
		})
		c.auditOrder(ctx, env, fields, err)
		if err != nil {
			return Result{Op: OpPlaceOrder, Env: env, Response: resp,
				Err: apperrors.NewCollaboratorError(apperrors.KindOrderPlacement, string(OpPlaceOrder), env.String(), err)}
		}
		return Result{Op: OpPlaceOrder, Env: env, Response: resp}
	})
}

// FetchReport fetches one account report with a single client call.
func (c *Controller) FetchReport(ctx context.Context, env models.Environment, kind models.ReportKind) Result {
	return c.run(ctx, OpFetchReport, env, string(kind), func(ctx context.Context, s *Session) Result {
		s.mu.Lock()
		defer s.mu.Unlock()

		client, err := s.authenticatedClientLocked(OpFetchReport)
		if err != nil {
			return failed(OpFetchReport, env, err)
		}

		var name string
		var fetch func(context.Context) (models.Response, error)
		switch kind {
		case models.ReportOrders:
			name, fetch = "OrderReport", client.OrderReport
		case models.ReportPositions:
			name, fetch = "Positions", client.Positions
		case models.ReportHoldings:
			name, fetch = "Holdings", client.Holdings
		default:
			return failed(OpFetchReport, env, apperrors.NewValidationError(string(OpFetchReport), env.String(), "kind",
				fmt.Sprintf("unknown report %q", kind)))
		}

		resp, err := c.call(ctx, env, name, fetch)
		if err != nil {
			return Result{Op: OpFetchReport, Env: env, Response: resp,
				Err: apperrors.NewCollaboratorError(apperrors.KindReportFetch, string(OpFetchReport), env.String(), err)}
		}
		return Result{Op: OpFetchReport, Env: env, Response: resp}
	})
}

// Logout ends the broker session. The local session is unauthenticated
// afterwards whether or not the remote call succeeded; the client handle
// is kept so the user can log in again.
func (c *Controller) Logout(ctx context.Context, env models.Environment) Result {
	return c.run(ctx, OpLogout, env, "", func(ctx context.Context, s *Session) Result {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.client == nil {
			return Result{Op: OpLogout, Env: env, Warning: fmt.Sprintf("No client for %s; nothing to log out", env)}
		}

		client := s.client
		resp, err := c.call(ctx, env, "Logout", client.Logout)

		s.authenticated = false
		s.loginFailed = false
		s.authenticatedAt = time.Time{}

		c.auditLogout(ctx, env, err)
		if err != nil {
			return Result{Op: OpLogout, Env: env, Response: resp,
				Err: apperrors.NewCollaboratorError(apperrors.KindLogout, string(OpLogout), env.String(), err)}
		}
		return Result{Op: OpLogout, Env: env, Response: resp}
	})
}

// authenticatedClientLocked returns the client if the session may trade.
func (s *Session) authenticatedClientLocked(op Operation) (broker.TradingClient, error) {
	if s.client == nil {
		return nil, apperrors.NewNotAuthenticatedError(string(op), s.env.String(), "no client; create a client and log in first")
	}
	if !s.authenticated {
		return nil, apperrors.NewNotAuthenticatedError(string(op), s.env.String(), "log in first")
	}
	return s.client, nil
}

// run validates env, executes fn against env's session and records the
// outcome.
func (c *Controller) run(ctx context.Context, op Operation, env models.Environment, detail string, fn func(context.Context, *Session) Result) Result {
	requestID := uuid.NewString()
	logger := logging.WithRequestID(logging.WithOperation(logging.WithEnvironment(c.logger, env.String()), string(op)), requestID)
	ctx = logging.WithLogger(ctx, logger)
	ctx = security.WithRequestID(ctx, requestID)

	var res Result
	if !env.Valid() {
		res = failed(op, env, apperrors.NewValidationError(string(op), env.String(), "environment",
			fmt.Sprintf("unknown environment %q", env)))
	} else {
		res = fn(ctx, c.session(env))
	}

	c.record(ctx, logger, res, requestID, detail)
	return res
}

// call invokes one trading client method inside a span. A panic in the
// client is converted to an error.
func (c *Controller) call(ctx context.Context, env models.Environment, name string, fn func(context.Context) (models.Response, error)) (resp models.Response, err error) {
	ctx, span := c.tracer.StartSpan(ctx, "broker."+name, attribute.String("env", env.String()))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &apperrors.PanicError{Call: name, Value: r}
		}
		telemetry.EndSpan(span, err)
		logger := logging.FromContextOr(ctx, c.logger)
		if traceID, spanID, ok := telemetry.TraceFields(ctx); ok {
			logger = logger.With().Str("trace_id", traceID).Str("span_id", spanID).Logger()
		}
		logging.LogAPICall(logger, "client", name, time.Since(start), err)
	}()

	return fn(ctx)
}

func (c *Controller) record(ctx context.Context, logger zerolog.Logger, res Result, requestID, detail string) {
	safe := security.NewSafeLogger(logger)
	if res.OK() {
		event := safe.Info().Str("event", "operation").Str("detail", detail)
		if res.Warning != "" {
			event = event.Str("warning", res.Warning)
		}
		event.Msg("Operation completed")
	} else {
		safe.Warn().Str("event", "operation").Str("kind", string(res.Kind())).Str("detail", detail).Err(res.Err).Msg("Operation failed")
	}

	if c.recorder == nil {
		return
	}
	entry := store.Entry{
		ID:          requestID,
		Timestamp:   c.now(),
		Environment: res.Env.String(),
		Operation:   string(res.Op),
		Success:     res.OK(),
		Kind:        string(res.Kind()),
		Message:     security.MaskSensitive(res.Message()),
		Warning:     res.Warning,
		Detail:      detail,
	}
	if err := c.recorder.Record(ctx, entry); err != nil {
		c.safe.Error().Err(err).Msg("Failed to journal operation")
	}
}

func (c *Controller) auditClientCreated(ctx context.Context, env models.Environment, key string, err error) {
	if c.audit == nil {
		return
	}
	if aerr := c.audit.LogClientCreated(ctx, env.String(), key, err == nil, errString(err)); aerr != nil {
		c.safe.Error().Err(aerr).Msg("Failed to write audit event")
	}
}

func (c *Controller) auditLogin(ctx context.Context, env models.Environment, ucc string, stage apperrors.Stage, err error) {
	if c.audit == nil {
		return
	}
	if aerr := c.audit.LogLogin(ctx, env.String(), ucc, string(stage), err == nil, errString(err)); aerr != nil {
		c.safe.Error().Err(aerr).Msg("Failed to write audit event")
	}
}

func (c *Controller) auditOrder(ctx context.Context, env models.Environment, f models.OrderFields, err error) {
	if c.audit == nil {
		return
	}
	if aerr := c.audit.LogOrderPlaced(ctx, env.String(), f.TradingSymbol, string(f.TransactionType), f.Quantity,
		f.Price, string(f.OrderType), string(f.Product), err == nil, errString(err)); aerr != nil {
		c.safe.Error().Err(aerr).Msg("Failed to write audit event")
	}
}

func (c *Controller) auditLogout(ctx context.Context, env models.Environment, err error) {
	if c.audit == nil {
		return
	}
	if aerr := c.audit.LogLogout(ctx, env.String(), err == nil, errString(err)); aerr != nil {
		c.safe.Error().Err(aerr).Msg("Failed to write audit event")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
