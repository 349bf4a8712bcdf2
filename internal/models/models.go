// Package models provides domain models for the trading panel.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// Environment identifies the broker deployment a session targets.
type Environment string

const (
	EnvProd Environment = "prod"
	EnvUAT  Environment = "uat"
)

// Environments returns every supported environment in display order.
func Environments() []Environment {
	return []Environment{EnvProd, EnvUAT}
}

// Valid reports whether e is a supported environment.
func (e Environment) Valid() bool {
	return e == EnvProd || e == EnvUAT
}

func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment converts user input to an Environment.
// "production" is accepted as an alias for prod.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return EnvProd, nil
	case "uat":
		return EnvUAT, nil
	default:
		return "", fmt.Errorf("unknown environment %q (must be prod or uat)", s)
	}
}

// SortEnvironments orders environments by name in place.
func SortEnvironments(envs []Environment) {
	sort.Slice(envs, func(i, j int) bool { return envs[i] < envs[j] })
}

// Response is an opaque payload returned by the trading client.
// It is displayed as-is and never interpreted.
type Response any

// ReportKind selects one of the read-only account reports.
type ReportKind string

const (
	ReportOrders    ReportKind = "orders"
	ReportPositions ReportKind = "positions"
	ReportHoldings  ReportKind = "holdings"
)

// ReportKinds returns all report kinds.
func ReportKinds() []ReportKind {
	return []ReportKind{ReportOrders, ReportPositions, ReportHoldings}
}

// Valid reports whether k is a known report kind.
func (k ReportKind) Valid() bool {
	switch k {
	case ReportOrders, ReportPositions, ReportHoldings:
		return true
	}
	return false
}

// ParseReportKind converts user input to a ReportKind, accepting the
// panel aliases ("orderbook", "order-book", "order").
func ParseReportKind(s string) (ReportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orders", "order", "orderbook", "order-book":
		return ReportOrders, nil
	case "positions", "position":
		return ReportPositions, nil
	case "holdings", "holding":
		return ReportHoldings, nil
	default:
		return "", fmt.Errorf("unknown report %q (must be orders, positions or holdings)", s)
	}
}

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen             MarketStatus = "OPEN"
	MarketPreOpen          MarketStatus = "PRE_OPEN"
	MarketClosed           MarketStatus = "CLOSED"
	MarketMISSquareOffWarn MarketStatus = "MIS_SQUAREOFF_WARNING"
)
