package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/uptimewatch/internal/probe"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr       string `yaml:"addr"`    // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir     string `yaml:"log_dir"` // logs directory
	LogLevel   string `yaml:"log_level"`
	LogConsole bool   `yaml:"log_console"` // also log to stderr

	DatabaseDriver string `yaml:"database_driver"` // memory | postgres | sqlite
	DatabaseURL    string `yaml:"database_url"`    // postgres DSN or sqlite file path

	TickInterval    time.Duration `yaml:"tick_interval"`
	MaxConcurrent   int           `yaml:"max_concurrent_checks"`
	CheckTimeoutCap time.Duration `yaml:"check_timeout_cap"`
	TimeoutRatio    float64       `yaml:"timeout_ratio"`
	AcceptStatus    string        `yaml:"accept_status"` // e.g. "200-399"
	DiagnoseDNS     bool          `yaml:"diagnose_dns"`
	ResyncSchedule  string        `yaml:"resync_schedule"`
	IncidentWindow  time.Duration `yaml:"incident_window"` // 0 = whole history

	NotifyTimeout time.Duration `yaml:"notify_timeout"`
	SlackWebhook  string        `yaml:"slack_webhook"`
	WebhookURL    string        `yaml:"webhook_url"`

	PublicAPIKeys  []string `yaml:"public_api_keys"`
	AdminAPIKeys   []string `yaml:"admin_api_keys"`
	PublicRPM      int      `yaml:"public_rpm"`
	PublicBurst    int      `yaml:"public_burst"`
	AdminRPM       int      `yaml:"admin_rpm"`
	AdminBurst     int      `yaml:"admin_burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

func Defaults() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		LogDir:          "logs",
		LogLevel:        "info",
		TickInterval:    2 * time.Second,
		MaxConcurrent:   10,
		CheckTimeoutCap: 30 * time.Second,
		TimeoutRatio:    0.8,
		AcceptStatus:    probe.DefaultAccept.String(),
		ResyncSchedule:  "@every 5m",
		NotifyTimeout:   10 * time.Second,
		PublicRPM:       60,
		PublicBurst:     20,
		AdminRPM:        30,
		AdminBurst:      10,
		ShutdownGrace:   15 * time.Second,
	}
}

// Load builds the config from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.overlayEnv()
	return cfg, nil
}

// FromEnv is Load without the config file.
func FromEnv() Config {
	cfg := Defaults()
	cfg.overlayEnv()
	return cfg
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	// Bind address; API_ADDR kept for older deployments
	if v := firstEnv("ADDR", "API_ADDR"); v != "" {
		c.Addr = v
	}
	setString(&c.LogDir, "LOG_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setBool(&c.LogConsole, "LOG_CONSOLE")

	setString(&c.DatabaseDriver, "DATABASE_DRIVER")
	setString(&c.DatabaseURL, "DATABASE_URL")

	setDuration(&c.TickInterval, "TICK_INTERVAL")
	setInt(&c.MaxConcurrent, "MAX_CONCURRENT_CHECKS")
	setDuration(&c.CheckTimeoutCap, "CHECK_TIMEOUT_CAP")
	if v := os.Getenv("HTTP_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.CheckTimeoutCap = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("TIMEOUT_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TimeoutRatio = f
		}
	}
	setString(&c.AcceptStatus, "ACCEPT_STATUS")
	setBool(&c.DiagnoseDNS, "DIAGNOSE_DNS")
	if v, ok := os.LookupEnv("RESYNC_SCHEDULE"); ok {
		c.ResyncSchedule = strings.TrimSpace(v) // empty disables
	}
	setDuration(&c.IncidentWindow, "INCIDENT_WINDOW")

	setDuration(&c.NotifyTimeout, "NOTIFY_TIMEOUT")
	setString(&c.SlackWebhook, "SLACK_WEBHOOK")
	setString(&c.WebhookURL, "WEBHOOK_URL")

	setList(&c.PublicAPIKeys, "PUBLIC_API_KEYS")
	setList(&c.AdminAPIKeys, "ADMIN_API_KEYS")
	setInt(&c.PublicRPM, "PUBLIC_RPM")
	setInt(&c.PublicBurst, "PUBLIC_BURST")
	setInt(&c.AdminRPM, "ADMIN_RPM")
	setInt(&c.AdminBurst, "ADMIN_BURST")
	setList(&c.AllowedOrigins, "ALLOWED_ORIGINS")

	setDuration(&c.ShutdownGrace, "SHUTDOWN_GRACE")
}

// Driver resolves the store driver. Without an explicit driver a
// DATABASE_URL means postgres and no URL means in-memory.
func (c Config) Driver() string {
	if c.DatabaseDriver != "" {
		return strings.ToLower(c.DatabaseDriver)
	}
	if c.DatabaseURL != "" {
		return DriverPostgres
	}
	return DriverMemory
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("ADDR is empty"))
	}
	switch c.Driver() {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.DatabaseURL == "" {
			err = multierr.Append(err, fmt.Errorf("DATABASE_URL is required for driver %q", c.Driver()))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("TICK_INTERVAL must be > 0"))
	}
	if c.MaxConcurrent < 1 {
		err = multierr.Append(err, errors.New("MAX_CONCURRENT_CHECKS must be >= 1"))
	}
	if c.CheckTimeoutCap <= 0 {
		err = multierr.Append(err, errors.New("CHECK_TIMEOUT_CAP must be > 0"))
	}
	if c.TimeoutRatio <= 0 || c.TimeoutRatio >= 1 {
		err = multierr.Append(err, fmt.Errorf("TIMEOUT_RATIO must be in (0,1), got %v", c.TimeoutRatio))
	}
	if _, perr := probe.ParseStatusRange(c.AcceptStatus); perr != nil {
		err = multierr.Append(err, perr)
	}
	if c.IncidentWindow < 0 {
		err = multierr.Append(err, errors.New("INCIDENT_WINDOW must be >= 0"))
	}
	if len(c.AdminAPIKeys) == 0 {
		err = multierr.Append(err, errors.New("ADMIN_API_KEYS is empty; admin routes would be unreachable"))
	}
	return err
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go durations ("5s") or plain milliseconds.
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
