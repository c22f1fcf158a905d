package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
database: "/var/lib/routerd/retry.db"
node_url: "http://localhost:8000"
router:
  identifier: "vectorRouter"
  signer: "0x00000000000000000000000000000000000000D0"
oracle:
  timeout: "5s"
  rates:
    - from_asset: "0x0000000000000000000000000000000000000001"
      from_chain: 1337
      to_asset: "0x0000000000000000000000000000000000000002"
      to_chain: 1337
      rate: "1/2"
rebalance:
  profiles:
    - asset: "0x0000000000000000000000000000000000000001"
      target: "50"
    - channel: "0x00000000000000000000000000000000000000CB"
      asset: "0x0000000000000000000000000000000000000001"
      target: "500"
retry:
  max_attempts: 3
  replays_per_second: 2.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, "http://localhost:8000", cfg.NodeURL)
	require.Equal(t, "vectorRouter", cfg.Router.Identifier)
	require.Equal(t, "0x00000000000000000000000000000000000000D0", cfg.Router.SignerAddress().Hex())
	require.Equal(t, 5*time.Second, cfg.Oracle.Timeout.Duration)
	require.Len(t, cfg.Oracle.Rates, 1)
	require.Equal(t, "1/2", cfg.Oracle.Rates[0].Rate)
	require.Len(t, cfg.Rebalance.Profiles, 2)
	require.Empty(t, cfg.Rebalance.Profiles[0].Channel)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, 2.5, cfg.Retry.ReplaysPerSecond)
}

func TestLoadDefaultsListenAddress(t *testing.T) {
	path := writeConfig(t, `
database: "retry.db"
node_url: "http://localhost:8000"
router:
  identifier: "vectorRouter"
  signer: "0x00000000000000000000000000000000000000D0"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8010", cfg.ListenAddress)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
database: "retry.db"
node_url: "http://localhost:8000"
router:
  identifier: "vectorRouter"
  signer: "0x00000000000000000000000000000000000000D0"
surprise: true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateFailures(t *testing.T) {
	base := func() Config {
		return Config{
			DatabasePath: "retry.db",
			NodeURL:      "http://localhost:8000",
			Router: RouterConfig{
				Identifier: "vectorRouter",
				Signer:     "0x00000000000000000000000000000000000000D0",
			},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.DatabasePath = " " }},
		{"missing node url", func(c *Config) { c.NodeURL = "" }},
		{"missing identifier", func(c *Config) { c.Router.Identifier = "" }},
		{"bad signer", func(c *Config) { c.Router.Signer = "not-an-address" }},
		{"bad rate asset", func(c *Config) {
			c.Oracle.Rates = []RateEntry{{FromAsset: "nope", ToAsset: "0x0000000000000000000000000000000000000002", Rate: "1"}}
		}},
		{"zero rate", func(c *Config) {
			c.Oracle.Rates = []RateEntry{{
				FromAsset: "0x0000000000000000000000000000000000000001",
				ToAsset:   "0x0000000000000000000000000000000000000002",
				Rate:      "0",
			}}
		}},
		{"bad profile channel", func(c *Config) {
			c.Rebalance.Profiles = []ProfileEntry{{Channel: "nope", Asset: "0x0000000000000000000000000000000000000001", Target: "1"}}
		}},
		{"negative target", func(c *Config) {
			c.Rebalance.Profiles = []ProfileEntry{{Asset: "0x0000000000000000000000000000000000000001", Target: "-1"}}
		}},
		{"negative attempts", func(c *Config) { c.Retry.MaxAttempts = -1 }},
		{"negative replay rate", func(c *Config) { c.Retry.ReplaysPerSecond = -0.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	path := writeConfig(t, `
database: "retry.db"
node_url: "http://localhost:8000"
router:
  identifier: "vectorRouter"
  signer: "0x00000000000000000000000000000000000000D0"
oracle:
  timeout: "250ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.Oracle.Timeout.Duration)

	bad := writeConfig(t, `
database: "retry.db"
node_url: "http://localhost:8000"
router:
  identifier: "vectorRouter"
  signer: "0x00000000000000000000000000000000000000D0"
oracle:
  timeout: "soon"
`)
	_, err = Load(bad)
	require.Error(t, err)
}
