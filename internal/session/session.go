// Package session implements the per-environment session workflow: client
// creation, two-step authentication, orders, reports and logout.
package session

import (
	"sync"
	"time"

	"neo-trader/internal/broker"
	"neo-trader/internal/models"
)

// State is the workflow state of a Session, derived from its fields.
type State string

const (
	StateNoClient      State = "NO_CLIENT"
	StateClientReady   State = "CLIENT_READY"
	StateAuthenticated State = "AUTHENTICATED"
	StateLoginFailed   State = "LOGIN_FAILED"
)

// Session holds the state of one environment. client and authenticated
// only change together, under mu.
type Session struct {
	mu sync.Mutex

	env                  models.Environment
	client               broker.TradingClient
	authenticated        bool
	loginFailed          bool
	lastLoginResponse    models.Response
	lastValidateResponse models.Response
	createdAt            time.Time
	authenticatedAt      time.Time
}

func newSession(env models.Environment) *Session {
	return &Session{env: env}
}

func (s *Session) stateLocked() State {
	switch {
	case s.client == nil:
		return StateNoClient
	case s.authenticated:
		return StateAuthenticated
	case s.loginFailed:
		return StateLoginFailed
	default:
		return StateClientReady
	}
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// SessionView is a point-in-time copy of a Session for display.
type SessionView struct {
	Environment          models.Environment `json:"environment" yaml:"environment"`
	State                State              `json:"state" yaml:"state"`
	HasClient            bool               `json:"has_client" yaml:"has_client"`
	Client               string             `json:"client,omitempty" yaml:"client,omitempty"`
	Authenticated        bool               `json:"authenticated" yaml:"authenticated"`
	LastLoginResponse    models.Response    `json:"last_login_response,omitempty" yaml:"last_login_response,omitempty"`
	LastValidateResponse models.Response    `json:"last_validate_response,omitempty" yaml:"last_validate_response,omitempty"`
	CreatedAt            time.Time          `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	AuthenticatedAt      time.Time          `json:"authenticated_at,omitempty" yaml:"authenticated_at,omitempty"`
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		Environment:          s.env,
		State:                s.stateLocked(),
		HasClient:            s.client != nil,
		Authenticated:        s.authenticated,
		LastLoginResponse:    s.lastLoginResponse,
		LastValidateResponse: s.lastValidateResponse,
		CreatedAt:            s.createdAt,
		AuthenticatedAt:      s.authenticatedAt,
	}
	if s.client != nil {
		v.Client = s.client.String()
	}
	return v
}

// resetLocked installs a new client and clears everything derived from the
// previous one.
func (s *Session) resetLocked(client broker.TradingClient, now time.Time) {
	s.client = client
	s.authenticated = false
	s.loginFailed = false
	s.lastLoginResponse = nil
	s.lastValidateResponse = nil
	s.createdAt = now
	s.authenticatedAt = time.Time{}
}
