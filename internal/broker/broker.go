// Package broker provides the trading client contract and its implementations.
package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"neo-trader/internal/config"
	"neo-trader/internal/models"
)

// TradingClient is the collaborator that owns all wire-level communication
// with the broker. Responses are returned as opaque payloads.
type TradingClient interface {
	// Authentication
	LoginTOTP(ctx context.Context, mobileNumber, ucc, totp string) (models.Response, error)
	ValidateTOTP(ctx context.Context, mpin string) (models.Response, error)
	Logout(ctx context.Context) (models.Response, error)

	// Orders
	PlaceOrder(ctx context.Context, fields models.OrderFields) (models.Response, error)

	// Reports
	OrderReport(ctx context.Context) (models.Response, error)
	Positions(ctx context.Context) (models.Response, error)
	Holdings(ctx context.Context) (models.Response, error)

	// String describes the client for the debug view. It must not leak secrets.
	String() string
}

// Factory constructs a trading client scoped to one environment.
type Factory interface {
	New(env models.Environment, consumerKey string) (TradingClient, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(env models.Environment, consumerKey string) (TradingClient, error)

// New calls f.
func (f FactoryFunc) New(env models.Environment, consumerKey string) (TradingClient, error) {
	return f(env, consumerKey)
}

// Broker modes.
const (
	ModeNeo   = "neo"
	ModePaper = "paper"
)

// NewFactory returns the factory selected by cfg.Broker.Mode.
func NewFactory(cfg *config.Config, logger zerolog.Logger) (Factory, error) {
	switch cfg.Broker.Mode {
	case ModeNeo, "":
		httpClient := &http.Client{Timeout: cfg.Broker.Timeout}
		return FactoryFunc(func(env models.Environment, consumerKey string) (TradingClient, error) {
			endpoints, ok := cfg.Broker.Endpoints[env.String()]
			if !ok {
				return nil, fmt.Errorf("no endpoints configured for environment %s", env)
			}
			return NewNeoClient(NeoConfig{
				Environment: env,
				ConsumerKey: consumerKey,
				Endpoints:   endpoints,
				FinKey:      cfg.Broker.NeoFinKey,
				HTTPClient:  httpClient,
				Logger:      logger,
			})
		}), nil
	case ModePaper:
		creds := cfg.Credentials.Neo
		return FactoryFunc(func(env models.Environment, consumerKey string) (TradingClient, error) {
			return NewPaperClient(PaperConfig{
				Environment:    env,
				ConsumerKey:    consumerKey,
				TOTPSecret:     creds.TOTPSecret,
				MPIN:           creds.MPIN,
				ReferencePrice: cfg.Broker.Paper.ReferencePrice,
				Clock:          time.Now,
			})
		}), nil
	default:
		return nil, fmt.Errorf("unknown broker mode: %s", cfg.Broker.Mode)
	}
}
