package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "marketplace"
	ServiceVersion = "0.1.0"
)

const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"

	LedgerStore = "store"
	LedgerRedis = "redis"
)

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	HTTPAddr string
	GRPCAddr string

	StoreBackend  string
	LedgerBackend string
	MySQLDSN      string
	RedisAddr     string

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint string
	OtelInsecure bool

	StoreTimeout           time.Duration
	RetryMaxElapsed        time.Duration
	CompensationMaxElapsed time.Duration
	ReconcileWorkers       int
	ReconcileQueueSize     int
	ShutdownTimeout        time.Duration
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(get(key, def))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", key))
		}
		return d
	}
	integer := func(key, def string) int {
		n, err := strconv.Atoi(get(key, def))
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer", key))
		}
		return n
	}
	boolean := func(key, def string) bool {
		v := strings.ToLower(get(key, def))
		return v == "1" || v == "true" || v == "yes"
	}

	cfg := &Config{
		ServiceName:            get("SERVICE_NAME", ServiceName),
		Env:                    get("ENV", "dev"),
		LogLevel:               get("LOG_LEVEL", "info"),
		HTTPAddr:               get("HTTP_ADDR", ":8080"),
		GRPCAddr:               get("GRPC_ADDR", ":50051"),
		StoreBackend:           strings.ToLower(get("STORE_BACKEND", StoreMemory)),
		LedgerBackend:          strings.ToLower(get("LEDGER_BACKEND", LedgerStore)),
		MySQLDSN:               get("MYSQL_DSN", ""),
		RedisAddr:              get("REDIS_ADDR", ""),
		KafkaBrokers:           splitList(get("KAFKA_BROKERS", "")),
		KafkaTopic:             get("KAFKA_TOPIC", "marketplace.events"),
		OtelEndpoint:           get("OTEL_ENDPOINT", ""),
		OtelInsecure:           boolean("OTEL_INSECURE", "false"),
		StoreTimeout:           duration("STORE_TIMEOUT", "2s"),
		RetryMaxElapsed:        duration("RETRY_MAX_ELAPSED", "3s"),
		CompensationMaxElapsed: duration("COMPENSATION_MAX_ELAPSED", "30s"),
		ReconcileWorkers:       integer("RECONCILE_WORKERS", "2"),
		ReconcileQueueSize:     integer("RECONCILE_QUEUE_SIZE", "1024"),
		ShutdownTimeout:        duration("SHUTDOWN_TIMEOUT", "10s"),
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreMySQL:
		if cfg.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required when STORE_BACKEND=mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend))
	}

	switch cfg.LedgerBackend {
	case LedgerStore:
	case LedgerRedis:
		if cfg.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when LEDGER_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
