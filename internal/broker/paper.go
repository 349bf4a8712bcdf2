package broker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	apperrors "neo-trader/internal/errors"
	"neo-trader/internal/models"
)

// PaperClient implements TradingClient as an in-memory simulation of the
// Neo session flow. Orders fill immediately.
type PaperClient struct {
	env            models.Environment
	consumerKey    string
	totpSecret     string
	mpin           string
	referencePrice float64
	clock          func() time.Time

	// Session tokens, set by the two login steps.
	viewToken  string
	tradeToken string
	sid        string
	ucc        string

	orders       []paperOrder
	orderCounter int

	mu sync.Mutex
}

// PaperConfig holds configuration for the paper client.
type PaperConfig struct {
	Environment    models.Environment
	ConsumerKey    string
	TOTPSecret     string // when set, TOTP codes are verified against it
	MPIN           string // when set, the MPIN must match
	ReferencePrice float64
	Clock          func() time.Time
}

type paperOrder struct {
	ID       string
	Fields   models.OrderFields
	Price    float64
	Status   string
	PlacedAt time.Time
}

// NewPaperClient creates a new paper trading client.
func NewPaperClient(cfg PaperConfig) (*PaperClient, error) {
	if cfg.ConsumerKey == "" {
		return nil, fmt.Errorf("consumer key is required")
	}
	if !cfg.Environment.Valid() {
		return nil, fmt.Errorf("unsupported environment: %q", cfg.Environment)
	}

	referencePrice := cfg.ReferencePrice
	if referencePrice <= 0 {
		referencePrice = 100
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &PaperClient{
		env:            cfg.Environment,
		consumerKey:    cfg.ConsumerKey,
		totpSecret:     cfg.TOTPSecret,
		mpin:           cfg.MPIN,
		referencePrice: referencePrice,
		clock:          clock,
	}, nil
}

// LoginTOTP checks the TOTP and issues a view token.
func (p *PaperClient) LoginTOTP(ctx context.Context, mobileNumber, ucc, code string) (models.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.checkTOTP(code); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.viewToken = uuid.NewString()
	p.tradeToken = ""
	p.sid = uuid.NewString()
	p.ucc = ucc

	return map[string]interface{}{
		"data": map[string]interface{}{
			"token":  p.viewToken,
			"sid":    p.sid,
			"kType":  "View",
			"status": "success",
			"ucc":    ucc,
		},
	}, nil
}

func (p *PaperClient) checkTOTP(code string) error {
	if p.totpSecret == "" {
		if len(code) != 6 {
			return fmt.Errorf("invalid totp: expected 6 digits")
		}
		if _, err := strconv.Atoi(code); err != nil {
			return fmt.Errorf("invalid totp: expected 6 digits")
		}
		return nil
	}

	ok, err := totp.ValidateCustom(code, p.totpSecret, p.clock(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return apperrors.Wrap(err, "invalid totp")
	}
	if !ok {
		return fmt.Errorf("invalid totp")
	}
	return nil
}

// ValidateTOTP upgrades the view session to a trade session.
func (p *PaperClient) ValidateTOTP(ctx context.Context, mpin string) (models.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.viewToken == "" {
		return nil, fmt.Errorf("totp login required before validate")
	}
	if p.mpin != "" && mpin != p.mpin {
		return nil, fmt.Errorf("invalid mpin")
	}

	p.tradeToken = uuid.NewString()

	return map[string]interface{}{
		"data": map[string]interface{}{
			"token":   p.tradeToken,
			"sid":     p.sid,
			"kType":   "Trade",
			"status":  "success",
			"baseUrl": "paper://" + p.env.String(),
		},
	}, nil
}

// Logout invalidates the simulated session.
func (p *PaperClient) Logout(ctx context.Context) (models.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.viewToken == "" {
		return nil, fmt.Errorf("no active session")
	}
	p.viewToken = ""
	p.tradeToken = ""
	p.sid = ""

	return map[string]interface{}{
		"stat":    "Ok",
		"stCode":  200,
		"message": "session invalidated",
	}, nil
}

// PlaceOrder simulates order placement. Every order fills at its limit
// price, or at the reference price for market orders.
func (p *PaperClient) PlaceOrder(ctx context.Context, fields models.OrderFields) (models.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireTradeSession(); err != nil {
		return nil, err
	}
	if fields.Quantity <= 0 {
		return nil, fmt.Errorf("order rejected: quantity must be positive")
	}

	price, err := strconv.ParseFloat(fields.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("order rejected: invalid price %q", fields.Price)
	}
	if fields.OrderType == models.OrderTypeMarket || price == 0 {
		price = p.referencePrice
	}

	p.orderCounter++
	order := paperOrder{
		ID:       fmt.Sprintf("PAPER_%d_%d", p.clock().Unix(), p.orderCounter),
		Fields:   fields,
		Price:    price,
		Status:   "complete",
		PlacedAt: p.clock(),
	}
	p.orders = append(p.orders, order)

	return map[string]interface{}{
		"nOrdNo": order.ID,
		"stat":   "Ok",
		"stCode": 200,
	}, nil
}

func (p *PaperClient) requireTradeSession() error {
	if p.tradeToken == "" {
		return fmt.Errorf("trade session required: complete totp login and validate")
	}
	return nil
}

// OrderReport returns all simulated orders, oldest first.
func (p *PaperClient) OrderReport(ctx context.Context) (models.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireTradeSession(); err != nil {
		return nil, err
	}

	data := make([]interface{}, 0, len(p.orders))
	for _, o := range p.orders {
		data = append(data, map[string]interface{}{
			"nOrdNo":  o.ID,
			"trdSym":  o.Fields.TradingSymbol,
			"exSeg":   string(o.Fields.ExchangeSegment),
			"prod":    string(o.Fields.Product),
			"trnsTp":  string(o.Fields.TransactionType),
			"qty":     o.Fields.Quantity,
			"avgPrc":  strconv.FormatFloat(o.Price, 'f', 2, 64),
			"prcTp":   string(o.Fields.OrderType),
			"vldt":    string(o.Fields.Validity),
			"ordSt":   o.Status,
			"ordDtTm": o.PlacedAt.Format("02-Jan-2006 15:04:05"),
		})
	}

	return map[string]interface{}{"stat": "Ok", "stCode": 200, "data": data}, nil
}

type positionKey struct {
	symbol  string
	segment models.ExchangeSegment
	product models.ProductType
}

type positionAgg struct {
	buyQty, sellQty int
	buyAmt, sellAmt float64
}

// Positions aggregates fills by symbol, segment and product.
func (p *PaperClient) Positions(ctx context.Context) (models.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireTradeSession(); err != nil {
		return nil, err
	}

	agg := make(map[positionKey]*positionAgg)
	var keys []positionKey
	for _, o := range p.orders {
		k := positionKey{o.Fields.TradingSymbol, o.Fields.ExchangeSegment, o.Fields.Product}
		a, ok := agg[k]
		if !ok {
			a = &positionAgg{}
			agg[k] = a
			keys = append(keys, k)
		}
		value := o.Price * float64(o.Fields.Quantity)
		if o.Fields.TransactionType == models.TransactionSell {
			a.sellQty += o.Fields.Quantity
			a.sellAmt += value
		} else {
			a.buyQty += o.Fields.Quantity
			a.buyAmt += value
		}
	}

	data := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		a := agg[k]
		data = append(data, map[string]interface{}{
			"trdSym":    k.symbol,
			"exSeg":     string(k.segment),
			"prod":      string(k.product),
			"flBuyQty":  a.buyQty,
			"flSellQty": a.sellQty,
			"buyAmt":    strconv.FormatFloat(a.buyAmt, 'f', 2, 64),
			"sellAmt":   strconv.FormatFloat(a.sellAmt, 'f', 2, 64),
		})
	}

	return map[string]interface{}{"stat": "Ok", "stCode": 200, "data": data}, nil
}

// Holdings returns net delivery (CNC) quantities with average buy price.
func (p *PaperClient) Holdings(ctx context.Context) (models.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireTradeSession(); err != nil {
		return nil, err
	}

	type holding struct {
		qty     int
		buyQty  int
		buyCost float64
	}
	bySymbol := make(map[string]*holding)
	for _, o := range p.orders {
		if o.Fields.Product != models.ProductCNC {
			continue
		}
		h, ok := bySymbol[o.Fields.TradingSymbol]
		if !ok {
			h = &holding{}
			bySymbol[o.Fields.TradingSymbol] = h
		}
		if o.Fields.TransactionType == models.TransactionSell {
			h.qty -= o.Fields.Quantity
		} else {
			h.qty += o.Fields.Quantity
			h.buyQty += o.Fields.Quantity
			h.buyCost += o.Price * float64(o.Fields.Quantity)
		}
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	data := make([]interface{}, 0, len(symbols))
	for _, s := range symbols {
		h := bySymbol[s]
		if h.qty <= 0 {
			continue
		}
		avg := 0.0
		if h.buyQty > 0 {
			avg = h.buyCost / float64(h.buyQty)
		}
		data = append(data, map[string]interface{}{
			"displaySymbol": s,
			"quantity":      h.qty,
			"averagePrice":  strconv.FormatFloat(avg, 'f', 2, 64),
		})
	}

	return map[string]interface{}{"data": data}, nil
}

// String describes the client without exposing the consumer key.
func (p *PaperClient) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := "logged out"
	switch {
	case p.tradeToken != "":
		state = "trade session"
	case p.viewToken != "":
		state = "view session"
	}
	return fmt.Sprintf("PaperClient{env=%s, ucc=%s, orders=%d, state=%s}", p.env, p.ucc, len(p.orders), state)
}
