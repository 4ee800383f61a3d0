// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/hamed0406/uptimewatch/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fail(err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fail(e.Error())
		}
		os.Exit(1)
	}

	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; reads need an admin key.")
	}
	// Normalize and sanity-check lists (no spaces around commas).
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(strings.Trim(os.Getenv(name), " "), ", ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	ok("ADDR=" + cfg.Addr)

	switch cfg.Driver() {
	case config.DriverMemory:
		warn("no DATABASE_URL; history is lost on restart.")
	default:
		ok("store: " + cfg.Driver())
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.SlackWebhook == "" && cfg.WebhookURL == "" {
		warn("no SLACK_WEBHOOK or WEBHOOK_URL; status changes only reach the log and /ws.")
	}
	if cfg.ResyncSchedule == "" {
		warn("RESYNC_SCHEDULE empty; monitors changed outside the API are not picked up.")
	}

	ok(fmt.Sprintf("scheduler: tick=%s workers=%d timeout<=%s", cfg.TickInterval, cfg.MaxConcurrent, cfg.CheckTimeoutCap))
	ok("preflight passed")
}
