package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"neo-trader/internal/models"
)

// optionalOrderFlags are sent only when given on the command line.
var optionalOrderFlags = []struct {
	name  string
	usage string
	field func(*models.OrderFields) **string
}{
	{"tag", "order tag", func(f *models.OrderFields) **string { return &f.Tag }},
	{"token", "scrip token", func(f *models.OrderFields) **string { return &f.ScripToken }},
	{"square-off-type", "square-off type (bracket orders)", func(f *models.OrderFields) **string { return &f.SquareOffType }},
	{"square-off-value", "square-off value (bracket orders)", func(f *models.OrderFields) **string { return &f.SquareOffValue }},
	{"stop-loss-type", "stop-loss type (bracket orders)", func(f *models.OrderFields) **string { return &f.StopLossType }},
	{"stop-loss-value", "stop-loss value (bracket orders)", func(f *models.OrderFields) **string { return &f.StopLossValue }},
	{"ltp", "last traded price", func(f *models.OrderFields) **string { return &f.LastTradedPrice }},
	{"trailing-sl", "trailing stop-loss flag", func(f *models.OrderFields) **string { return &f.TrailingStopLoss }},
	{"trailing-sl-value", "trailing stop-loss value", func(f *models.OrderFields) **string { return &f.TrailingSLValue }},
}

func newOrderCmd(p *Panel) *cobra.Command {
	defaults := models.DefaultOrderFields()

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place an order in the active environment",
		Long: `Place an order in the active environment.

Every field has a default, so 'order' alone buys 1 RELIANCE on nse_cm as a
CNC market order. The order is passed to the broker as entered; its
response is shown unmodified.`,
		Example: `  order --symbol=TCS --qty=10
  order --symbol=INFY --side=S --qty=5 --type=L --price=1450.50
  order --segment=nse_fo --product=NRML --symbol=NIFTY24JANFUT --qty=50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := orderFieldsFromFlags(cmd)
			if err != nil {
				return err
			}

			if !p.out.IsStructured() {
				p.out.Info("Placing %s %s %s on %s (%s/%s, %s, %s, %s)",
					fields.Side(), FormatQuantity(fields.Quantity), fields.TradingSymbol, p.env,
					fields.ExchangeSegment, fields.Product, fields.OrderType, fields.Validity,
					FormatOrderPrice(fields.Price))
			}

			ctx, cancel := p.actionContext(cmd.Context())
			defer cancel()
			p.show(p.app.Controller.PlaceOrder(ctx, p.env, fields))
			return nil
		},
	}

	f := cmd.Flags()
	f.String("segment", string(defaults.ExchangeSegment), "exchange segment: "+joinValues(models.Segments()))
	f.String("product", string(defaults.Product), "product: "+joinValues(models.Products()))
	f.String("symbol", defaults.TradingSymbol, "trading symbol")
	f.String("side", string(defaults.TransactionType), "transaction type: B or S")
	f.Int("qty", defaults.Quantity, "quantity (at least 1)")
	f.String("price", defaults.Price, "price (0 for market orders)")
	f.String("type", string(defaults.OrderType), "order type: "+joinValues(models.OrderTypes()))
	f.String("validity", string(defaults.Validity), "validity: "+joinValues(models.Validities()))
	f.String("trigger", defaults.TriggerPrice, "trigger price")
	f.String("amo", defaults.AMO, "after-market order: YES or NO")
	f.String("disclosed", defaults.DisclosedQuantity, "disclosed quantity")
	f.String("market-protection", defaults.MarketProtection, "market protection")
	f.String("pf", defaults.PF, "portfolio flag")
	for _, o := range optionalOrderFlags {
		f.String(o.name, "", o.usage)
	}
	return cmd
}

// orderFieldsFromFlags builds the order bundle. Only the presence checks
// the order form makes are applied: quantity at least 1 and a symbol.
func orderFieldsFromFlags(cmd *cobra.Command) (models.OrderFields, error) {
	var fields models.OrderFields
	var err error

	if fields.ExchangeSegment, err = models.ParseSegment(flagString(cmd, "segment")); err != nil {
		return fields, err
	}
	if fields.Product, err = models.ParseProduct(flagString(cmd, "product")); err != nil {
		return fields, err
	}
	if fields.TransactionType, err = models.ParseTransactionType(flagString(cmd, "side")); err != nil {
		return fields, err
	}
	if fields.OrderType, err = models.ParseOrderType(flagString(cmd, "type")); err != nil {
		return fields, err
	}
	if fields.Validity, err = models.ParseValidity(flagString(cmd, "validity")); err != nil {
		return fields, err
	}

	fields.TradingSymbol = flagString(cmd, "symbol")
	if fields.TradingSymbol == "" {
		return fields, fmt.Errorf("trading symbol is required")
	}
	fields.Quantity, _ = cmd.Flags().GetInt("qty")
	if fields.Quantity < 1 {
		return fields, fmt.Errorf("quantity must be at least 1")
	}

	fields.Price = flagString(cmd, "price")
	fields.TriggerPrice = flagString(cmd, "trigger")
	fields.AMO = flagString(cmd, "amo")
	fields.DisclosedQuantity = flagString(cmd, "disclosed")
	fields.MarketProtection = flagString(cmd, "market-protection")
	fields.PF = flagString(cmd, "pf")

	for _, o := range optionalOrderFlags {
		if !cmd.Flags().Changed(o.name) {
			continue
		}
		v := flagString(cmd, o.name)
		*o.field(&fields) = &v
	}

	return fields.WithDefaults(), nil
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func newReportCmd(p *Panel) *cobra.Command {
	return &cobra.Command{
		Use:   "report orders|positions|holdings",
		Short: "Fetch an account report",
		Long: `Fetch an account report from the active environment.

  orders     order book (aliases: orderbook, order-book)
  positions  today's positions
  holdings   portfolio holdings`,
		Example: `  report orders
  report holdings`,
		ValidArgs: []string{"orders", "orderbook", "positions", "holdings"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseReportKind(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := p.actionContext(cmd.Context())
			defer cancel()
			p.show(p.app.Controller.FetchReport(ctx, p.env, kind))
			return nil
		},
	}
}
