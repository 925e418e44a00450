package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
	"gopkg.in/yaml.v3"
)

// settings are process level options that do not belong to core.Config.
type settings struct {
	Addr            string
	ConfigFile      string
	DatabaseURL     string
	RedisURL        string
	SecretKey       string
	DeliveryTTL     time.Duration
	ShutdownTimeout time.Duration
}

func parseSettings(args []string, getenv func(string) string) (settings, error) {
	fs := flag.NewFlagSet("tiktokshop", flag.ContinueOnError)
	s := settings{}
	fs.StringVar(&s.Addr, "addr", envOr(getenv, "TIKTOKSHOP_ADDR", ":8080"), "http listen address")
	fs.StringVar(&s.ConfigFile, "config", envOr(getenv, "TIKTOKSHOP_CONFIG", ""), "yaml config file")
	fs.StringVar(&s.DatabaseURL, "database-url", envOr(getenv, "DATABASE_URL", "file:tiktokshop.db?cache=shared&_foreign_keys=on"), "postgres url or sqlite dsn")
	fs.StringVar(&s.RedisURL, "redis-url", envOr(getenv, "REDIS_URL", ""), "redis url for authorization state")
	fs.StringVar(&s.SecretKey, "secret-key", envOr(getenv, "TIKTOKSHOP_SECRET_KEY", ""), "key used to encrypt tokens at rest")
	fs.DurationVar(&s.DeliveryTTL, "delivery-ttl", 7*24*time.Hour, "how long webhook delivery records are kept")
	fs.DurationVar(&s.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return settings{}, err
	}
	return s, nil
}

func envOr(getenv func(string) string, key string, fallback string) string {
	if value := strings.TrimSpace(getenv(key)); value != "" {
		return value
	}
	return fallback
}

// envOverrides maps environment variables onto config keys. Secrets are
// usually supplied this way rather than through the YAML file.
var envOverrides = map[string][]string{
	"TIKTOKSHOP_APP_KEY":        {"auth", "app_key"},
	"TIKTOKSHOP_APP_SECRET":     {"auth", "app_secret"},
	"TIKTOKSHOP_REDIRECT_URI":   {"auth", "redirect_uri"},
	"TIKTOKSHOP_AUTH_BASE_URL":  {"auth", "base_url"},
	"TIKTOKSHOP_BASE_URL":       {"base_url"},
	"TIKTOKSHOP_DEFAULT_TENANT": {"default_tenant"},
	"TIKTOKSHOP_WEBHOOK_SECRET": {"webhook", "secret"},
}

// fileConfigLoader reads the YAML config file and applies environment
// overrides on top of it.
type fileConfigLoader struct {
	path   string
	getenv func(string) string
}

func (l fileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	if path := strings.TrimSpace(l.path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, core.WrapError(err, core.ErrorConfigInvalid, "tiktokshop: read config file", map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, core.WrapError(err, core.ErrorConfigInvalid, "tiktokshop: parse config file", map[string]any{"path": path})
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}
	getenv := l.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for key, path := range envOverrides {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			setPath(raw, path, value)
		}
	}
	return raw, nil
}

func setPath(raw map[string]any, path []string, value any) {
	current := raw
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

var _ core.RawConfigLoader = fileConfigLoader{}
