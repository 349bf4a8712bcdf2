package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"neo-trader/internal/models"
	"neo-trader/internal/session"
)

// PanelOptions configures a Panel. Empty fields fall back to the app config.
type PanelOptions struct {
	Format      string
	Environment string
	Clock       func() time.Time
}

// Panel is the interactive session panel. It holds the active environment
// and runs each input line through a fresh command tree, so flags never
// carry over from one line to the next.
type Panel struct {
	app      *App
	env      models.Environment
	prompter *Prompter
	out      *Output
	now      func() time.Time
}

// NewPanel creates a panel reading commands from in and writing to out.
func NewPanel(app *App, in io.Reader, out io.Writer, opts PanelOptions) (*Panel, error) {
	envName := opts.Environment
	if envName == "" {
		envName = app.Config.Panel.DefaultEnvironment
	}
	env, err := models.ParseEnvironment(envName)
	if err != nil {
		return nil, err
	}

	format := opts.Format
	if format == "" {
		format = app.Config.Panel.OutputFormat
	}
	switch format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("invalid output format %q (must be text, json or yaml)", format)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Panel{
		app:      app,
		env:      env,
		prompter: NewPrompter(in, out),
		out:      NewOutput(out, format, colorEnabled(app.Config)),
		now:      now,
	}, nil
}

// Environment returns the active environment.
func (p *Panel) Environment() models.Environment {
	return p.env
}

// Run reads and executes lines until exit, quit, end of input or ctx is
// done. Action failures are printed and never end the loop.
func (p *Panel) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.banner()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !p.out.IsStructured() || p.prompter.IsTerminal() {
			fmt.Fprint(p.out.Writer(), p.prompt())
		}

		line, err := p.prompter.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		if p.Exec(ctx, line) {
			return nil
		}
	}
}

func (p *Panel) prompt() string {
	return p.out.Bold(fmt.Sprintf("neo[%s]> ", p.env))
}

func (p *Panel) banner() {
	if p.out.IsStructured() {
		return
	}
	p.out.Header("neo-trader v%s", Version)
	mode := p.app.Config.Broker.Mode
	if p.app.Access != nil && p.app.Access.IsReadOnly() {
		mode += ", read-only"
	}
	p.out.Dim("Environment %s (%s). Type 'help' for commands, 'exit' to quit.", p.env, mode)
}

// Exec runs one panel line. It reports whether the panel should exit.
func (p *Panel) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}

	args, err := splitArgs(line)
	if err != nil {
		p.out.Error("%v", err)
		return false
	}
	if len(args) == 0 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "exit", "quit":
		return true
	}

	cmd := p.newCommandTree()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		p.out.Error("%v", err)
	}
	return false
}

func (p *Panel) newCommandTree() *cobra.Command {
	root := &cobra.Command{
		Use:           "neo",
		Short:         "Kotak Neo session panel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(p.out.Writer())
	root.SetErr(p.out.Writer())
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetHelpCommand(newHelpCmd(p))

	root.AddCommand(
		newEnvCmd(p),
		newClientCmd(p),
		newLoginCmd(p),
		newOrderCmd(p),
		newReportCmd(p),
		newLogoutCmd(p),
		newStatusCmd(p),
		newDebugCmd(p),
		newHistoryCmd(p),
	)
	return root
}

// actionContext bounds one broker action by the configured timeout.
func (p *Panel) actionContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, actionTimeout(p.app.Config))
}

// show prints a controller result.
func (p *Panel) show(res session.Result) {
	p.out.Result(res)
}

func newHelpCmd(p *Panel) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Show panel commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				target, _, err := cmd.Root().Find(args)
				if err != nil || target == cmd.Root() {
					return fmt.Errorf("unknown command %q", strings.Join(args, " "))
				}
				return target.Help()
			}
			showPanelHelp(p.out)
			return nil
		},
	}
}

func showPanelHelp(output *Output) {
	categories := []struct {
		name     string
		commands [][2]string
	}{
		{
			name: "Session",
			commands: [][2]string{
				{"env [prod|uat]", "Show or switch the active environment"},
				{"client [--key K]", "Create a trading client (resets the session)"},
				{"login [--mobile --ucc --totp --mpin]", "TOTP login, then MPIN validate"},
				{"logout", "End the broker session"},
			},
		},
		{
			name: "Trading",
			commands: [][2]string{
				{"order [--symbol --side --qty --price ...]", "Place an order (defaults: RELIANCE, B, 1, MKT)"},
				{"report orders|positions|holdings", "Fetch a report"},
			},
		},
		{
			name: "Panel",
			commands: [][2]string{
				{"status", "Sessions and market status"},
				{"debug", "Client and raw authentication responses"},
				{"history [--limit N]", "Actions taken in this run"},
				{"help [command]", "Show help"},
				{"exit, quit", "Leave the panel"},
			},
		},
	}

	for i, cat := range categories {
		if i > 0 {
			output.Println()
		}
		output.Header("%s", cat.name)
		output.KeyValue(cat.commands)
	}
}
