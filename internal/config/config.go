// Package config loads router settings from flags, environment, .env files and
// an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"solana-dex-router/internal/filter"
)

// EnvPrefix is the prefix of environment overrides, e.g. DEXROUTER_WS_URL.
const EnvPrefix = "DEXROUTER"

// Source kinds.
const (
	SourceWS    = "ws"
	SourceJSONL = "jsonl"
)

// Broker kinds.
const (
	BrokerLog       = "log"
	BrokerRedis     = "redis"
	BrokerNATS      = "nats"
	BrokerWatermill = "watermill"
	BrokerPostgres  = "postgres"
)

// Config holds every setting of the run command.
type Config struct {
	LogLevel string
	LogFile  string

	Source     string
	WSURL      string
	RPCURL     string
	Programs   []string
	WSMode     string
	Commitment string
	ReplayFile string
	ReplayRate float64

	Broker        string
	TopicPrefix   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	PGDSN         string

	DecodeTables string

	Filter filter.Config

	ProgressEvery     int
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration

	HTTPAddr         string
	ClickhouseDSN    string
	Instance         string
	SnapshotInterval time.Duration
}

// RegisterFlags adds the run flags with their defaults to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-file", "", "optional rotated log file")

	fs.String("source", SourceWS, "event source (ws, jsonl)")
	fs.String("ws-url", "", "Solana websocket endpoint")
	fs.String("rpc-url", "", "Solana JSON-RPC endpoint used in logs mode")
	fs.StringSlice("programs", nil, "program ids to subscribe to (comma-separated)")
	fs.String("ws-mode", "transaction", "subscription mode (transaction, logs)")
	fs.String("commitment", "confirmed", "commitment level")
	fs.String("replay-file", "", "JSONL file of raw events")
	fs.Float64("replay-rate", 0, "replay events per second, 0 is unpaced")

	fs.String("broker", BrokerLog, "publish target (log, redis, nats, watermill over NATS, postgres)")
	fs.String("topic-prefix", "events", "topic namespace")
	fs.String("redis-addr", "localhost:6379", "Redis address")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database")
	fs.String("nats-url", "nats://localhost:4222", "NATS server URL")
	fs.String("pg-dsn", "", "Postgres DSN of the event outbox")

	fs.String("decode-tables", "", "YAML decode tables, empty uses the built-in set")

	fs.Duration("max-age", 30*time.Second, "recency window, 0 disables")
	fs.Uint64("min-value", 0, "minimum event value")
	fs.StringSlice("allowed-programs", nil, "admitted program ids, empty admits all")
	fs.Float64("admission-fraction", 1, "deterministic sampling fraction in [0,1]")

	fs.Int("progress-every", 1000, "log progress every N admitted events")
	fs.Duration("heartbeat-interval", 10*time.Second, "stall check interval")
	fs.Duration("stale-after", 60*time.Second, "idle time before the upstream is flagged stalled")

	fs.String("http-addr", ":9090", "metrics and health listen address, empty disables")
	fs.String("clickhouse-dsn", "", "ClickHouse DSN for metrics snapshots, empty disables")
	fs.String("instance", "", "instance name in snapshots, defaults to hostname")
	fs.Duration("snapshot-interval", 30*time.Second, "metrics snapshot interval")
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load merges config file, environment variables and flags into Config and
// validates the result.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel: v.GetString("log-level"),
		LogFile:  v.GetString("log-file"),

		Source:     v.GetString("source"),
		WSURL:      v.GetString("ws-url"),
		RPCURL:     v.GetString("rpc-url"),
		Programs:   getStringSlice(v, "programs"),
		WSMode:     v.GetString("ws-mode"),
		Commitment: v.GetString("commitment"),
		ReplayFile: v.GetString("replay-file"),
		ReplayRate: v.GetFloat64("replay-rate"),

		Broker:        v.GetString("broker"),
		TopicPrefix:   v.GetString("topic-prefix"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		NATSURL:       v.GetString("nats-url"),
		PGDSN:         v.GetString("pg-dsn"),

		DecodeTables: v.GetString("decode-tables"),

		Filter: filterConfig(v),

		ProgressEvery:     v.GetInt("progress-every"),
		HeartbeatInterval: v.GetDuration("heartbeat-interval"),
		StaleAfter:        v.GetDuration("stale-after"),

		HTTPAddr:         v.GetString("http-addr"),
		ClickhouseDSN:    v.GetString("clickhouse-dsn"),
		Instance:         v.GetString("instance"),
		SnapshotInterval: v.GetDuration("snapshot-interval"),
	}

	if cfg.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Instance = host
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c Config) Validate() error {
	switch c.Source {
	case SourceWS:
		if c.WSURL == "" {
			return fmt.Errorf("ws-url is required for source %q", SourceWS)
		}
		if len(c.Programs) == 0 {
			return fmt.Errorf("programs are required for source %q", SourceWS)
		}
		switch c.WSMode {
		case "transaction":
		case "logs":
			if c.RPCURL == "" {
				return fmt.Errorf("rpc-url is required in logs mode")
			}
		default:
			return fmt.Errorf("unknown ws-mode %q", c.WSMode)
		}
	case SourceJSONL:
		if c.ReplayFile == "" {
			return fmt.Errorf("replay-file is required for source %q", SourceJSONL)
		}
		if c.ReplayRate < 0 {
			return fmt.Errorf("replay-rate must not be negative")
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	switch c.Broker {
	case BrokerLog, BrokerRedis:
	case BrokerNATS, BrokerWatermill:
		if c.NATSURL == "" {
			return fmt.Errorf("nats-url is required for broker %q", c.Broker)
		}
	case BrokerPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for broker %q", BrokerPostgres)
		}
	default:
		return fmt.Errorf("unknown broker %q", c.Broker)
	}

	if c.TopicPrefix == "" {
		return fmt.Errorf("topic-prefix must not be empty")
	}
	if err := c.Filter.Validate(); err != nil {
		return err
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress-every must be positive")
	}
	if c.HeartbeatInterval <= 0 || c.StaleAfter <= 0 {
		return fmt.Errorf("heartbeat-interval and stale-after must be positive")
	}
	if c.ClickhouseDSN != "" && c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot-interval must be positive")
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("dexrouter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func filterConfig(v *viper.Viper) filter.Config {
	return filter.Config{
		MaxAge:            v.GetDuration("max-age"),
		MinValue:          v.GetUint64("min-value"),
		AllowedPrograms:   getStringSlice(v, "allowed-programs"),
		AdmissionFraction: v.GetFloat64("admission-fraction"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
