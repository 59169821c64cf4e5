package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dex-router/internal/filter"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_FlagsAndDefaults(t *testing.T) {
	fs := newFlags(t, "--ws-url", "wss://example", "--programs", "progA, progB", "--admission-fraction", "0.25")

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, SourceWS, cfg.Source)
	assert.Equal(t, "wss://example", cfg.WSURL)
	assert.Equal(t, []string{"progA", "progB"}, cfg.Programs)
	assert.Equal(t, BrokerLog, cfg.Broker)
	assert.Equal(t, "events", cfg.TopicPrefix)
	assert.Equal(t, 30*time.Second, cfg.Filter.MaxAge)
	assert.Equal(t, 0.25, cfg.Filter.AdmissionFraction)
	assert.Nil(t, cfg.Filter.AllowedPrograms)
	assert.Equal(t, 1000, cfg.ProgressEvery)
	assert.NotEmpty(t, cfg.Instance)
}

func TestLoad_FileEnvAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dexrouter.yaml")
	writeFile(t, path, `
source: jsonl
replay-file: events.jsonl
broker: nats
min-value: 500
max-age: 45s
allowed-programs:
  - progA
  - progB
topic-prefix: file
`)

	t.Setenv("DEXROUTER_TOPIC_PREFIX", "env")
	t.Setenv("DEXROUTER_MIN_VALUE", "700")
	fs := newFlags(t, "--min-value", "900")

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, SourceJSONL, cfg.Source)
	assert.Equal(t, "events.jsonl", cfg.ReplayFile)
	assert.Equal(t, BrokerNATS, cfg.Broker)
	assert.Equal(t, "env", cfg.TopicPrefix)
	assert.Equal(t, uint64(900), cfg.Filter.MinValue)
	assert.Equal(t, 45*time.Second, cfg.Filter.MaxAge)
	assert.Equal(t, []string{"progA", "progB"}, cfg.Filter.AllowedPrograms)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), newFlags(t))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Source:            SourceWS,
			WSURL:             "wss://x",
			Programs:          []string{"p"},
			WSMode:            "transaction",
			Broker:            BrokerLog,
			TopicPrefix:       "events",
			Filter:            filter.Config{AdmissionFraction: 1},
			ProgressEvery:     1,
			HeartbeatInterval: time.Second,
			StaleAfter:        time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown source", func(c *Config) { c.Source = "kafka" }},
		{"ws without url", func(c *Config) { c.WSURL = "" }},
		{"ws without programs", func(c *Config) { c.Programs = nil }},
		{"logs mode without rpc", func(c *Config) { c.WSMode = "logs" }},
		{"unknown ws mode", func(c *Config) { c.WSMode = "blocks" }},
		{"jsonl without file", func(c *Config) { c.Source = SourceJSONL }},
		{"unknown broker", func(c *Config) { c.Broker = "kafka" }},
		{"postgres without dsn", func(c *Config) { c.Broker = BrokerPostgres }},
		{"watermill without nats url", func(c *Config) { c.Broker = BrokerWatermill; c.NATSURL = "" }},
		{"empty prefix", func(c *Config) { c.TopicPrefix = "" }},
		{"fraction above one", func(c *Config) { c.Filter.AdmissionFraction = 1.5 }},
		{"fraction below zero", func(c *Config) { c.Filter.AdmissionFraction = -0.1 }},
		{"zero progress", func(c *Config) { c.ProgressEvery = 0 }},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"snapshot interval", func(c *Config) { c.ClickhouseDSN = "clickhouse://x/db" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "DEXROUTER_TEST_DOTENV=from-file\n")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	t.Cleanup(func() { os.Unsetenv("DEXROUTER_TEST_DOTENV") })
	assert.Equal(t, "from-file", os.Getenv("DEXROUTER_TEST_DOTENV"))
}

type recordingTarget struct {
	mu   sync.Mutex
	cfgs []filter.Config
}

func (r *recordingTarget) Store(cfg filter.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
}

func (r *recordingTarget) all() []filter.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]filter.Config(nil), r.cfgs...)
}

func (r *recordingTarget) last() (filter.Config, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfgs) == 0 {
		return filter.Config{}, 0
	}
	return r.cfgs[len(r.cfgs)-1], len(r.cfgs)
}

func TestWatch_ReloadsFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dexrouter.yaml")
	writeFile(t, path, "admission-fraction: 0.5\nmin-value: 10\n")

	target := &recordingTarget{}
	require.NoError(t, Watch(path, newFlags(t), target, nil))

	writeFile(t, path, "admission-fraction: 2\nmin-value: 10\n")
	time.Sleep(300 * time.Millisecond)
	for _, cfg := range target.all() {
		assert.LessOrEqual(t, cfg.AdmissionFraction, 1.0, "invalid reload must not be stored")
	}

	writeFile(t, path, "admission-fraction: 0.1\nmin-value: 20\n")
	require.Eventually(t, func() bool {
		cfg, n := target.last()
		return n > 0 && cfg.AdmissionFraction == 0.1 && cfg.MinValue == 20
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatch_RequiresFile(t *testing.T) {
	assert.Error(t, Watch("", nil, &recordingTarget{}, nil))
}
