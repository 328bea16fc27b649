package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the broadcast service.
type Config struct {
	App      AppConfig
	Provider ProviderConfig
	Dispatch DispatchConfig
	Webhook  WebhookConfig
	Accounts AccountsConfig
	Kafka    KafkaConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// ProviderConfig holds connection settings for the Graph messaging API.
type ProviderConfig struct {
	BaseURL        string
	APIVersion     string
	TimeoutSeconds int
}

// DispatchConfig controls batch partitioning and inter-batch pacing.
type DispatchConfig struct {
	BatchSize         int
	BatchDelayMS      int
	MaxConnections    int
	ResponseBodyLimit int
}

// WebhookConfig identifies the completion webhook endpoint.
type WebhookConfig struct {
	NotifyURL string
}

// AccountsConfig selects and configures the credential/coin lookup source.
type AccountsConfig struct {
	Source     string
	BaseURL    string
	SQLitePath string
}

// KafkaConfig enables the optional job lifecycle event stream. An empty
// broker list disables publishing entirely.
type KafkaConfig struct {
	Brokers        []string
	JobEventsTopic string
}

// AccountsSource values accepted by ACCOUNTS_SOURCE.
const (
	AccountsSourceRemote = "remote"
	AccountsSourceSQLite = "sqlite"
)

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Provider.BaseURL = ldr.getString("GRAPH_BASE_URL", "https://graph.facebook.com", false)
	cfg.Provider.APIVersion = ldr.getString("GRAPH_API_VERSION", "v20.0", false)
	cfg.Provider.TimeoutSeconds = ldr.getInt("PROVIDER_TIMEOUT_SECONDS", 30, false)

	cfg.Dispatch.BatchSize = ldr.getInt("DISPATCH_BATCH_SIZE", 78, false)
	cfg.Dispatch.BatchDelayMS = ldr.getInt("DISPATCH_BATCH_DELAY_MS", 200, false)
	cfg.Dispatch.MaxConnections = ldr.getInt("DISPATCH_MAX_CONNS", 1000, false)
	cfg.Dispatch.ResponseBodyLimit = ldr.getInt("DISPATCH_BODY_LIMIT", 16*1024, false)

	cfg.Webhook.NotifyURL = ldr.getString("NOTIFY_WEBHOOK_URL", "", true)

	cfg.Accounts.Source = ldr.getString("ACCOUNTS_SOURCE", AccountsSourceRemote, false)
	cfg.Accounts.BaseURL = ldr.getString("ACCOUNTS_BASE_URL", "", false)
	cfg.Accounts.SQLitePath = ldr.getString("SQLITE_PATH", "broadcast.db", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.JobEventsTopic = ldr.getString("KAFKA_JOB_EVENTS_TOPIC", "broadcast.job.events", false)

	switch cfg.Accounts.Source {
	case AccountsSourceRemote:
		if cfg.Accounts.BaseURL == "" {
			ldr.addError("ACCOUNTS_BASE_URL is required when ACCOUNTS_SOURCE=remote")
		}
	case AccountsSourceSQLite:
	default:
		ldr.addError(fmt.Sprintf("ACCOUNTS_SOURCE must be %q or %q", AccountsSourceRemote, AccountsSourceSQLite))
	}
	if cfg.Dispatch.BatchSize < 1 {
		ldr.addError("DISPATCH_BATCH_SIZE must be >= 1")
	}
	if cfg.Dispatch.BatchDelayMS < 0 {
		ldr.addError("DISPATCH_BATCH_DELAY_MS cannot be negative")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
