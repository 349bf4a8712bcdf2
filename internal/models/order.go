package models

import (
	"fmt"
	"strings"
)

// ExchangeSegment represents a Neo market segment.
type ExchangeSegment string

const (
	SegmentNSECash ExchangeSegment = "nse_cm"
	SegmentBSECash ExchangeSegment = "bse_cm"
	SegmentNSEFO   ExchangeSegment = "nse_fo"
	SegmentBSEFO   ExchangeSegment = "bse_fo"
	SegmentMCXFO   ExchangeSegment = "mcx_fo"
	SegmentCDEFO   ExchangeSegment = "cde_fo"
)

// ProductType represents the product code of an order.
type ProductType string

const (
	ProductCNC  ProductType = "CNC"  // Delivery
	ProductNRML ProductType = "NRML" // F&O Normal
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductCO   ProductType = "CO"   // Cover order
	ProductBO   ProductType = "BO"   // Bracket order
	ProductMTF  ProductType = "MTF"  // Margin trading
)

// TransactionType represents the side of an order.
type TransactionType string

const (
	TransactionBuy  TransactionType = "B"
	TransactionSell TransactionType = "S"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MKT"
	OrderTypeLimit     OrderType = "L"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
)

// Validity represents how long an order stays live.
type Validity string

const (
	ValidityDay Validity = "DAY"
	ValidityIOC Validity = "IOC"
	ValidityGTC Validity = "GTC"
	ValidityEOS Validity = "EOS"
	ValidityGTD Validity = "GTD"
)

var (
	segments   = []ExchangeSegment{SegmentNSECash, SegmentBSECash, SegmentNSEFO, SegmentBSEFO, SegmentMCXFO, SegmentCDEFO}
	products   = []ProductType{ProductCNC, ProductNRML, ProductMIS, ProductCO, ProductBO, ProductMTF}
	sides      = []TransactionType{TransactionBuy, TransactionSell}
	orderTypes = []OrderType{OrderTypeMarket, OrderTypeLimit, OrderTypeStopLoss, OrderTypeStopLossM}
	validities = []Validity{ValidityDay, ValidityIOC, ValidityGTC, ValidityEOS, ValidityGTD}
)

// Segments returns the selectable exchange segments.
func Segments() []ExchangeSegment { return segments }

// Products returns the selectable product codes.
func Products() []ProductType { return products }

// OrderTypes returns the selectable order types.
func OrderTypes() []OrderType { return orderTypes }

// Validities returns the selectable validities.
func Validities() []Validity { return validities }

// ParseSegment matches s against the known segments, case-insensitively.
func ParseSegment(s string) (ExchangeSegment, error) {
	return parseEnum(s, segments, strings.ToLower, "exchange segment")
}

// ParseProduct matches s against the known product codes.
func ParseProduct(s string) (ProductType, error) {
	return parseEnum(s, products, strings.ToUpper, "product")
}

// ParseTransactionType accepts B/S as well as BUY/SELL.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "B", "BUY":
		return TransactionBuy, nil
	case "S", "SELL":
		return TransactionSell, nil
	}
	return "", fmt.Errorf("invalid transaction type %q (must be one of %s)", s, joinEnum(sides))
}

// ParseOrderType matches s against the known order types.
func ParseOrderType(s string) (OrderType, error) {
	return parseEnum(s, orderTypes, strings.ToUpper, "order type")
}

// ParseValidity matches s against the known validities.
func ParseValidity(s string) (Validity, error) {
	return parseEnum(s, validities, strings.ToUpper, "validity")
}

func parseEnum[T ~string](s string, values []T, norm func(string) string, what string) (T, error) {
	v := T(norm(strings.TrimSpace(s)))
	for _, known := range values {
		if v == known {
			return known, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q (must be one of %s)", what, s, joinEnum(values))
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// OrderFields is the bundle handed to the trading client's order entry
// point. It is passed through without validation; the broker decides.
type OrderFields struct {
	ExchangeSegment ExchangeSegment `json:"exchange_segment" yaml:"exchange_segment"`
	Product         ProductType     `json:"product" yaml:"product"`
	TradingSymbol   string          `json:"trading_symbol" yaml:"trading_symbol"`
	TransactionType TransactionType `json:"transaction_type" yaml:"transaction_type"`
	Quantity        int             `json:"quantity" yaml:"quantity"`
	Price           string          `json:"price" yaml:"price"`
	OrderType       OrderType       `json:"order_type" yaml:"order_type"`
	Validity        Validity        `json:"validity" yaml:"validity"`

	// Broker-required optional fields.
	AMO               string `json:"amo" yaml:"amo"`
	DisclosedQuantity string `json:"disclosed_quantity" yaml:"disclosed_quantity"`
	MarketProtection  string `json:"market_protection" yaml:"market_protection"`
	PF                string `json:"pf" yaml:"pf"`
	TriggerPrice      string `json:"trigger_price" yaml:"trigger_price"`

	// Unset unless the caller provides them.
	Tag              *string `json:"tag,omitempty" yaml:"tag,omitempty"`
	ScripToken       *string `json:"scrip_token,omitempty" yaml:"scrip_token,omitempty"`
	SquareOffType    *string `json:"square_off_type,omitempty" yaml:"square_off_type,omitempty"`
	StopLossType     *string `json:"stop_loss_type,omitempty" yaml:"stop_loss_type,omitempty"`
	StopLossValue    *string `json:"stop_loss_value,omitempty" yaml:"stop_loss_value,omitempty"`
	SquareOffValue   *string `json:"square_off_value,omitempty" yaml:"square_off_value,omitempty"`
	LastTradedPrice  *string `json:"last_traded_price,omitempty" yaml:"last_traded_price,omitempty"`
	TrailingStopLoss *string `json:"trailing_stop_loss,omitempty" yaml:"trailing_stop_loss,omitempty"`
	TrailingSLValue  *string `json:"trailing_sl_value,omitempty" yaml:"trailing_sl_value,omitempty"`
}

// Broker defaults for the optional order fields.
const (
	DefaultAMO               = "NO"
	DefaultDisclosedQuantity = "0"
	DefaultMarketProtection  = "0"
	DefaultPF                = "N"
	DefaultTriggerPrice      = "0"
)

// DefaultOrderFields returns the panel's initial order entry values.
func DefaultOrderFields() OrderFields {
	return OrderFields{
		ExchangeSegment: SegmentNSECash,
		Product:         ProductCNC,
		TradingSymbol:   "RELIANCE",
		TransactionType: TransactionBuy,
		Quantity:        1,
		Price:           "0",
		OrderType:       OrderTypeMarket,
		Validity:        ValidityDay,
	}.WithDefaults()
}

// WithDefaults returns a copy with every empty broker-optional field set
// to its default. Fields already set are left alone.
func (o OrderFields) WithDefaults() OrderFields {
	if o.AMO == "" {
		o.AMO = DefaultAMO
	}
	if o.DisclosedQuantity == "" {
		o.DisclosedQuantity = DefaultDisclosedQuantity
	}
	if o.MarketProtection == "" {
		o.MarketProtection = DefaultMarketProtection
	}
	if o.PF == "" {
		o.PF = DefaultPF
	}
	if o.TriggerPrice == "" {
		o.TriggerPrice = DefaultTriggerPrice
	}
	return o
}

// Side returns a human label for the transaction type.
func (o OrderFields) Side() string {
	switch o.TransactionType {
	case TransactionBuy:
		return "BUY"
	case TransactionSell:
		return "SELL"
	}
	return string(o.TransactionType)
}
