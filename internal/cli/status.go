package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"neo-trader/internal/models"
	"neo-trader/internal/session"
	"neo-trader/internal/store"
	"neo-trader/pkg/utils"
)

func newEnvCmd(p *Panel) *cobra.Command {
	return &cobra.Command{
		Use:       "env [prod|uat]",
		Short:     "Show or switch the active environment",
		Long:      "Show the active environment, or switch to another one. Each environment keeps its own session.",
		ValidArgs: []string{"prod", "uat"},
		Args:      cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				env, err := models.ParseEnvironment(args[0])
				if err != nil {
					return err
				}
				p.env = env
			}

			view := p.app.Controller.Session(p.env)
			if p.out.IsStructured() {
				return p.out.Structured(map[string]string{
					"environment": p.env.String(),
					"state":       string(view.State),
				})
			}
			if len(args) == 1 {
				p.out.Success("Active environment: %s (%s)", p.env, p.out.State(view.State))
			} else {
				p.out.Printf("%s (%s)\n", p.env, p.out.State(view.State))
			}
			return nil
		},
	}
}

// statusView is the structured form of the status command.
type statusView struct {
	Active       models.Environment  `json:"active_environment" yaml:"active_environment"`
	BrokerMode   string              `json:"broker_mode" yaml:"broker_mode"`
	ReadOnly     bool                `json:"read_only" yaml:"read_only"`
	MarketStatus models.MarketStatus `json:"market_status" yaml:"market_status"`
	Sessions     []sessionStatus     `json:"sessions" yaml:"sessions"`
}

type sessionStatus struct {
	Environment     models.Environment `json:"environment" yaml:"environment"`
	State           session.State      `json:"state" yaml:"state"`
	Authenticated   bool               `json:"authenticated" yaml:"authenticated"`
	CreatedAt       *time.Time         `json:"client_created_at,omitempty" yaml:"client_created_at,omitempty"`
	AuthenticatedAt *time.Time         `json:"authenticated_at,omitempty" yaml:"authenticated_at,omitempty"`
}

func newStatusCmd(p *Panel) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every session and the market status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := p.now()
			market := utils.MarketStatusAt(now)
			readOnly := p.app.Access != nil && p.app.Access.IsReadOnly()

			views := make([]session.SessionView, 0, len(models.Environments()))
			for _, env := range models.Environments() {
				views = append(views, p.app.Controller.Session(env))
			}

			if p.out.IsStructured() {
				sv := statusView{
					Active:       p.env,
					BrokerMode:   p.app.Config.Broker.Mode,
					ReadOnly:     readOnly,
					MarketStatus: market,
				}
				for _, v := range views {
					sv.Sessions = append(sv.Sessions, sessionStatus{
						Environment:     v.Environment,
						State:           v.State,
						Authenticated:   v.Authenticated,
						CreatedAt:       timePtr(v.CreatedAt),
						AuthenticatedAt: timePtr(v.AuthenticatedAt),
					})
				}
				return p.out.Structured(sv)
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				active := ""
				if v.Environment == p.env {
					active = "*"
				}
				rows = append(rows, []string{
					active,
					v.Environment.String(),
					p.out.State(v.State),
					yesNo(v.Authenticated),
					since(now, v.CreatedAt),
					since(now, v.AuthenticatedAt),
				})
			}
			if err := p.out.Table([]string{"", "Environment", "State", "Authenticated", "Client age", "Session age"}, rows); err != nil {
				return err
			}

			pairs := [][2]string{
				{"Broker", p.app.Config.Broker.Mode},
				{"Read-only", yesNo(readOnly)},
				{"Market", p.out.MarketStatus(market)},
			}
			switch market {
			case models.MarketOpen, models.MarketMISSquareOffWarn:
				pairs = append(pairs, [2]string{"Closes in", FormatDuration(utils.MarketCloseOn(now).Sub(now))})
			default:
				pairs = append(pairs, [2]string{"Next open", FormatDateTime(utils.NextMarketOpenAfter(now))})
			}
			p.out.KeyValue(pairs)
			return nil
		},
	}
}

func newDebugCmd(p *Panel) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Show the client and raw authentication responses",
		Long: `Show the active environment's client and the raw responses of the
last TOTP login and MPIN validate calls.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := p.app.Controller.Session(p.env)
			if p.out.IsStructured() {
				return p.out.Structured(view)
			}

			p.out.Header("Session %s", p.env)
			client := view.Client
			if client == "" {
				client = "none"
			}
			p.out.KeyValue([][2]string{
				{"State", p.out.State(view.State)},
				{"Authenticated", yesNo(view.Authenticated)},
				{"Client", client},
				{"Client created", timestamp(view.CreatedAt)},
				{"Authenticated at", timestamp(view.AuthenticatedAt)},
			})

			for _, r := range []struct {
				title string
				resp  models.Response
			}{
				{"Last login response", view.LastLoginResponse},
				{"Last validate response", view.LastValidateResponse},
			} {
				p.out.Println()
				p.out.Header("%s", r.title)
				if r.resp == nil {
					p.out.Dim("(none)")
					continue
				}
				p.out.Payload(r.resp)
			}
			return nil
		},
	}
}

func newHistoryCmd(p *Panel) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the actions taken in this run",
		Long:  "Show the outcome of each panel action since the panel started. History is not kept across runs.",
		Example: `  history
  history --limit=5 --env=uat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.app.Journal == nil {
				return fmt.Errorf("history is unavailable")
			}

			limit, _ := cmd.Flags().GetInt("limit")
			filter := store.JournalFilter{Limit: limit}
			if e := flagString(cmd, "env"); e != "" {
				env, err := models.ParseEnvironment(e)
				if err != nil {
					return err
				}
				filter.Environment = env.String()
			}

			entries, err := p.app.Journal.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			if p.out.IsStructured() {
				return p.out.Structured(entries)
			}
			if len(entries) == 0 {
				p.out.Dim("No actions yet")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					FormatDateTime(e.Timestamp),
					e.Environment,
					e.Operation,
					outcome(e),
					TruncateString(e.Detail, 40),
					TruncateString(e.Message, 60),
				})
			}
			return p.out.Table([]string{"Time", "Env", "Operation", "Result", "Detail", "Message"}, rows)
		},
	}
	cmd.Flags().Int("limit", 20, "number of most recent entries (0 for all)")
	cmd.Flags().String("env", "", "only this environment")
	return cmd
}

func outcome(e store.Entry) string {
	switch {
	case !e.Success:
		return e.Kind
	case e.Warning != "":
		return "warning"
	default:
		return "ok"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func since(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return FormatDuration(now.Sub(t))
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return FormatDateTime(t)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
