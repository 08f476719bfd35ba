package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# NEPSE Trade Journal Configuration

[database]
# SQLite database file (defaults to journal.db in this directory)
# path = "/home/me/.config/nepse-journal/journal.db"
# How long a writer waits for the database lock
busy_timeout = "5s"
# Retries for a ledger write that hit a busy database
max_retries = 3
retry_interval = "50ms"

[log]
# Log level: debug, info, warn, error, disabled
level = "info"
console = true
file = true
max_size = 100
max_backups = 5
max_age = 30

[server]
# Listen address for 'journal serve'
addr = "127.0.0.1:8080"
allowed_origins = ["http://localhost:3000"]
read_timeout = "15s"
write_timeout = "15s"
# Requests per second allowed per client (0 disables rate limiting)
rate_limit = 20.0
rate_burst = 40

[security]
# Block every ledger write (reads keep working)
read_only_mode = false
# Write a JSON audit trail of ledger mutations
audit_enabled = true
# Reject zero or negative transaction amounts
strict_validation = true

[admin]
# Cron expression for a periodic balance repair while serving, e.g. "0 3 * * *".
# Leave empty to disable.
repair_schedule = ""

[ui]
color_enabled = true
date_format = "02-Jan-2006"
# Number of transactions shown on the dashboard
recent_transactions = 10
# Time zone that defines calendar days in the balance history
timezone = "Asia/Kathmandu"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
