package cli

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"

	"neo-trader/internal/session"
)

func newClientCmd(p *Panel) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Create a trading client for the active environment",
		Long: `Create a trading client for the active environment.

The consumer key comes from --key, else from credentials.toml or
NEO_CONSUMER_KEY, else it is prompted for. Creating a client discards any
previous login for this environment.`,
		Example: `  client
  client --key=<consumer-key>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := flagString(cmd, "key")
			if key == "" {
				key = p.app.Config.Credentials.Neo.ConsumerKey
			}
			if strings.TrimSpace(key) == "" {
				var err error
				if key, err = p.prompter.Secret("Consumer key: "); err != nil {
					return err
				}
			}

			ctx, cancel := p.actionContext(cmd.Context())
			defer cancel()
			p.show(p.app.Controller.CreateClient(ctx, p.env, key))
			return nil
		},
	}
	cmd.Flags().String("key", "", "consumer key (default: from credentials)")
	return cmd
}

func newLoginCmd(p *Panel) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with TOTP and MPIN",
		Long: `Authenticate the active environment's client.

Runs the TOTP login followed by MPIN validation; the session is
authenticated only if both succeed.

Missing values are taken from credentials.toml (or NEO_* variables). If a
TOTP secret is configured the current code is generated; otherwise it is
prompted for.`,
		Example: `  login
  login --totp=123456
  login --mobile=+919999999999 --ucc=AB123 --totp=123456 --mpin=1234`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := p.loginCredentials(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := p.actionContext(cmd.Context())
			defer cancel()
			p.show(p.app.Controller.Authenticate(ctx, p.env, creds))
			return nil
		},
	}
	cmd.Flags().String("mobile", "", "mobile number (default: from credentials)")
	cmd.Flags().String("ucc", "", "unique client code (default: from credentials)")
	cmd.Flags().String("totp", "", "current TOTP code (default: generated or prompted)")
	cmd.Flags().String("mpin", "", "MPIN (default: from credentials or prompted)")
	return cmd
}

// loginCredentials collects the four login inputs from flags, configured
// credentials and prompts, in that order. Prompts are skipped when the
// environment has no client yet, since login would be refused anyway.
func (p *Panel) loginCredentials(cmd *cobra.Command) (session.Credentials, error) {
	stored := p.app.Config.Credentials.Neo
	creds := session.Credentials{
		MobileNumber: firstNonEmpty(flagString(cmd, "mobile"), stored.MobileNumber),
		UCC:          firstNonEmpty(flagString(cmd, "ucc"), stored.UCC),
		TOTP:         flagString(cmd, "totp"),
		MPIN:         firstNonEmpty(flagString(cmd, "mpin"), stored.MPIN),
	}

	if !p.app.Controller.Session(p.env).HasClient {
		return creds, nil
	}

	if creds.TOTP == "" && stored.TOTPSecret != "" {
		code, err := totp.GenerateCode(stored.TOTPSecret, p.now())
		if err != nil {
			return creds, fmt.Errorf("generating totp from configured secret: %w", err)
		}
		creds.TOTP = code
		if !p.out.IsStructured() {
			p.out.Dim("Using TOTP generated from the configured secret")
		}
	}

	var err error
	if creds.MobileNumber == "" {
		if creds.MobileNumber, err = p.prompter.Ask("Mobile number: "); err != nil {
			return creds, err
		}
	}
	if creds.UCC == "" {
		if creds.UCC, err = p.prompter.Ask("UCC: "); err != nil {
			return creds, err
		}
	}
	if creds.TOTP == "" {
		if creds.TOTP, err = p.prompter.Secret("TOTP: "); err != nil {
			return creds, err
		}
	}
	if creds.MPIN == "" {
		if creds.MPIN, err = p.prompter.Secret("MPIN: "); err != nil {
			return creds, err
		}
	}
	return creds, nil
}

func newLogoutCmd(p *Panel) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the broker session for the active environment",
		Long: `End the broker session for the active environment.

The session is marked unauthenticated even if the broker call fails. The
client is kept, so 'login' can be run again without 'client'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := p.actionContext(cmd.Context())
			defer cancel()
			p.show(p.app.Controller.Logout(ctx, p.env))
			return nil
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
