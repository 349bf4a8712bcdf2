package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Neo Trader Panel Configuration

[panel]
# Environment selected at start: "prod" or "uat"
default_environment = "prod"
# Output format: "text", "json" or "yaml"
output_format = "text"
# Enable colored output
color_enabled = true

[broker]
# Trading client: "neo" (Kotak Neo API) or "paper" (offline simulator)
mode = "neo"
# Timeout for each API request
timeout = "30s"
neo_fin_key = "neotradeapi"

[broker.endpoints.prod]
login_url = "https://mis.kotaksecurities.com/login/1.0/tradeApiLogin"
validate_url = "https://mis.kotaksecurities.com/login/1.0/tradeApiValidate"
# Optional: called on logout; tokens are discarded locally either way
logout_url = ""
# Used only when the validate response carries no baseUrl
base_url = ""

[broker.endpoints.uat]
login_url = "https://mis.kotaksecurities.com/login/1.0/tradeApiLogin"
validate_url = "https://mis.kotaksecurities.com/login/1.0/tradeApiValidate"
logout_url = ""
base_url = ""

[broker.paper]
# Fill price for market orders in paper mode
reference_price = 100.0

[security]
# Enable read-only mode (blocks order placement)
read_only_mode = false
# Write authentication, order and logout events to the audit log
audit_enabled = false

[logging]
level = "info"
# Log to stderr as well as the log file
console = false
file = true

[telemetry]
# Export a span for every broker API call
enabled = false
`

const credentialsTemplate = `# Neo Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.
# Leave a value empty to be prompted for it in the panel.

[neo]
consumer_key = ""
mobile_number = ""
ucc = ""
mpin = ""
# Base32 TOTP secret; when set the panel generates the TOTP itself
totp_secret = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
