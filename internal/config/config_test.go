package config

import (
	"errors"
	"testing"

	"github.com/TimurManjosov/gorules/internal/rules"
)

var allKeys = []string{
	"APP_ENV", "APP_HTTP_ADDR", "METRICS_ADDR", "STORE_TYPE", "DB_DSN", "DB_AUTO_MIGRATE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_PREFIX", "ADMIN_API_KEY",
	"CORS_ALLOWED_ORIGINS", "RATE_LIMIT_PER_IP", "COMBINE_STRATEGY", "SCHEMA_FILE",
	"LOG_LEVEL", "LOG_FORMAT", "EVENTS_SINK", "EVENTS_QUEUE_SIZE", "WEBHOOK_URL",
	"WEBHOOK_SECRET", "KAFKA_BROKERS", "KAFKA_TOPIC", "AMQP_URL", "AMQP_EXCHANGE",
	"AMQP_ROUTING_KEY",
}

// clearEnv blanks every key for the duration of the test. viper ignores
// empty environment values, so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("Expected AppEnv='dev', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":3020" {
		t.Errorf("Expected HTTPAddr=':3020', got '%s'", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("Expected MetricsAddr=':9090', got '%s'", cfg.MetricsAddr)
	}
	if cfg.StoreType != StoreMemory {
		t.Errorf("Expected StoreType='memory', got '%s'", cfg.StoreType)
	}
	if !cfg.DBAutoMigrate {
		t.Error("Expected DBAutoMigrate=true")
	}
	if cfg.RateLimitPerIP != 100 {
		t.Errorf("Expected RateLimitPerIP=100, got %d", cfg.RateLimitPerIP)
	}
	if cfg.CombineStrategy() != rules.Or {
		t.Errorf("Expected OR combine strategy, got %s", cfg.CombineStrategy())
	}
	if cfg.AdminAPIKey != "" {
		t.Errorf("Expected empty AdminAPIKey, got '%s'", cfg.AdminAPIKey)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("Expected default CORS origin, got %v", cfg.CORSOrigins)
	}
	if cfg.EventsSink != SinkNone {
		t.Errorf("Expected EventsSink='none', got '%s'", cfg.EventsSink)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_HTTP_ADDR", ":9999")
	t.Setenv("STORE_TYPE", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("COMBINE_STRATEGY", "AND")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATE_LIMIT_PER_IP", "200")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "test" {
		t.Errorf("Expected AppEnv='test', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("Expected HTTPAddr=':9999', got '%s'", cfg.HTTPAddr)
	}
	if cfg.StoreType != StoreRedis || cfg.RedisDB != 3 {
		t.Errorf("Expected redis store on db 3, got %s/%d", cfg.StoreType, cfg.RedisDB)
	}
	if cfg.CombineStrategy() != rules.And {
		t.Errorf("Expected AND combine strategy, got %s", cfg.CombineStrategy())
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Expected two CORS origins, got %v", cfg.CORSOrigins)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("Expected two brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.RateLimitPerIP != 200 {
		t.Errorf("Expected RateLimitPerIP=200, got %d", cfg.RateLimitPerIP)
	}
	if cfg.DBAutoMigrate {
		t.Error("Expected DBAutoMigrate=false")
	}
}

func validConfig() *Config {
	return &Config{
		AppEnv:         "dev",
		HTTPAddr:       ":3020",
		MetricsAddr:    ":9090",
		StoreType:      StoreMemory,
		RateLimitPerIP: 100,
		CombineOp:      "or",
		LogLevel:       "info",
		LogFormat:      "json",
		EventsSink:     SinkNone,
		EventsQueue:    100,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.StoreType = "mysql" }, wantField: "STORE_TYPE"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreType = StorePostgres }, wantField: "DB_DSN"},
		{name: "postgres with dsn", mutate: func(c *Config) { c.StoreType = StorePostgres; c.DatabaseDSN = "postgres://x" }},
		{name: "redis without addr", mutate: func(c *Config) { c.StoreType = StoreRedis }, wantField: "REDIS_ADDR"},
		{name: "negative redis db", mutate: func(c *Config) { c.StoreType = StoreRedis; c.RedisAddr = "r:6379"; c.RedisDB = -1 }, wantField: "REDIS_DB"},
		{name: "empty http addr", mutate: func(c *Config) { c.HTTPAddr = "" }, wantField: "APP_HTTP_ADDR"},
		{name: "empty metrics addr", mutate: func(c *Config) { c.MetricsAddr = "" }, wantField: "METRICS_ADDR"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimitPerIP = 0 }, wantField: "RATE_LIMIT_PER_IP"},
		{name: "bad combine strategy", mutate: func(c *Config) { c.CombineOp = "xor" }, wantField: "COMBINE_STRATEGY"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantField: "LOG_LEVEL"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantField: "LOG_FORMAT"},
		{name: "unknown sink", mutate: func(c *Config) { c.EventsSink = "sqs" }, wantField: "EVENTS_SINK"},
		{name: "webhook without url", mutate: func(c *Config) { c.EventsSink = SinkWebhook }, wantField: "WEBHOOK_URL"},
		{name: "webhook without secret", mutate: func(c *Config) { c.EventsSink = SinkWebhook; c.WebhookURL = "http://x" }, wantField: "WEBHOOK_SECRET"},
		{name: "kafka without topic", mutate: func(c *Config) { c.EventsSink = SinkKafka; c.KafkaBrokers = []string{"k:9092"} }, wantField: "KAFKA_TOPIC"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.EventsSink = SinkKafka; c.KafkaTopic = "t" }, wantField: "KAFKA_BROKERS"},
		{name: "amqp without url", mutate: func(c *Config) { c.EventsSink = SinkAMQP }, wantField: "AMQP_URL"},
		{name: "sink with zero queue", mutate: func(c *Config) { c.EventsSink = SinkAMQP; c.AMQPURL = "amqp://x"; c.EventsQueue = 0 }, wantField: "EVENTS_QUEUE_SIZE"},
		{name: "prod without admin key", mutate: func(c *Config) { c.AppEnv = "prod" }, wantField: "ADMIN_API_KEY"},
		{name: "prod with wildcard cors", mutate: func(c *Config) { c.AppEnv = "production"; c.AdminAPIKey = "k"; c.CORSOrigins = []string{"*"} }, wantField: "CORS_ALLOWED_ORIGINS"},
		{name: "prod valid", mutate: func(c *Config) { c.AppEnv = "prod"; c.AdminAPIKey = "k" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %s, got %s (%v)", tt.wantField, verr.Field, verr)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := ValidationError{Field: "STORE_TYPE", Message: "bad"}
	if err.Error() != "config validation failed [STORE_TYPE]: bad" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
