// Package config loads server settings from flags, the environment and an
// optional .env file.
//
// Flags take precedence over environment variables. Variables defined in the
// .env file never override ones already present in the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"expense-ledger/internal/storage"
)

// Config holds all server settings.
type Config struct {
	Port int

	DBDriver storage.Driver
	DBDSN    string

	JWTSecret string
	TokenTTL  time.Duration

	ResetBaseURL string
	ResetTTL     time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	CashfreeAppID         string
	CashfreeSecretKey     string
	CashfreeEnv           string
	CashfreeWebhookSecret string
	PremiumPrice          decimal.Decimal
	PaymentReturnURL      string

	// TrustedProxies are the peers whose forwarding headers identify the client.
	TrustedProxies []netip.Prefix

	LogLevel  slog.Level
	LogFormat string
}

// Parse builds a Config from args, falling back to the environment.
func Parse(args []string) (Config, error) {
	var cfg Config
	var (
		envFile  string
		driver   string
		tokenTTL string
		resetTTL string
	)

	fset := flag.NewFlagSet("expense-ledger", flag.ContinueOnError)
	fset.StringVar(&envFile, "env-file", ".env", "Path to an optional .env file")
	fset.IntVar(&cfg.Port, "p", 0, "Server port")
	fset.StringVar(&driver, "driver", "", "Database driver (sqlite or postgres)")
	fset.StringVar(&cfg.DBDSN, "db", "", "SQLite path or postgres connection URL")
	fset.StringVar(&cfg.JWTSecret, "jwt-secret", "", "Token signing secret (prefer env)")
	fset.StringVar(&tokenTTL, "token-ttl", "", "Access token lifetime")
	fset.StringVar(&resetTTL, "reset-ttl", "", "Password reset link lifetime")

	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var err error
	if cfg.Port == 0 {
		if cfg.Port, err = envInt("PORT", 8080); err != nil {
			return Config{}, err
		}
	}

	if driver == "" {
		driver = os.Getenv("DB_DRIVER")
	}
	if cfg.DBDriver, err = storage.ParseDriver(driver); err != nil {
		return Config{}, err
	}
	if cfg.DBDSN == "" {
		if cfg.DBDriver == storage.Postgres {
			cfg.DBDSN = os.Getenv("DATABASE_URL")
		} else {
			cfg.DBDSN = envString("DB_PATH", "expenses.db")
		}
	}
	if cfg.DBDSN == "" {
		return Config{}, errors.New("database URL required (use -db or DATABASE_URL env)")
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	if cfg.TokenTTL, err = duration(tokenTTL, "TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ResetTTL, err = duration(resetTTL, "RESET_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	cfg.ResetBaseURL = strings.TrimRight(envString("RESET_BASE_URL", "http://localhost:8080/password/reset"), "/")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = envInt("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = envString("SMTP_FROM", "no-reply@expense-ledger.local")

	cfg.CashfreeAppID = os.Getenv("CASHFREE_APP_ID")
	cfg.CashfreeSecretKey = os.Getenv("CASHFREE_SECRET_KEY")
	cfg.CashfreeEnv = envString("CASHFREE_ENV", "sandbox")
	if cfg.CashfreeEnv != "sandbox" && cfg.CashfreeEnv != "production" {
		return Config{}, fmt.Errorf("invalid CASHFREE_ENV %q", cfg.CashfreeEnv)
	}
	cfg.CashfreeWebhookSecret = envString("CASHFREE_WEBHOOK_SECRET", cfg.CashfreeSecretKey)
	if cfg.PremiumPrice, err = decimal.NewFromString(envString("PREMIUM_PRICE", "1200")); err != nil || !cfg.PremiumPrice.IsPositive() {
		return Config{}, errors.New("invalid PREMIUM_PRICE env variable")
	}
	cfg.PaymentReturnURL = os.Getenv("PAYMENT_RETURN_URL")

	if cfg.TrustedProxies, err = parsePrefixes(os.Getenv("TRUSTED_PROXIES")); err != nil {
		return Config{}, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envString("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = strings.ToLower(envString("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}

	return cfg, nil
}

// PaymentsEnabled reports whether gateway credentials are configured.
func (c Config) PaymentsEnabled() bool {
	return c.CashfreeAppID != "" && c.CashfreeSecretKey != ""
}

// Logger builds the process logger described by LogLevel and LogFormat.
func (c Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// parsePrefixes reads a comma-separated list of IPs and CIDR ranges.
func parsePrefixes(s string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, err
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}

func duration(flagValue, key string, fallback time.Duration) (time.Duration, error) {
	v := flagValue
	if v == "" {
		v = os.Getenv(key)
	}
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
