package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"billfactor/crypto"
)

func testAddress(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.FromBytes20(raw).String()
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"USDC", "USDT"}, cfg.Currencies)
	require.Equal(t, uint32(8_500), cfg.DefaultConditions.UpfrontBps)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
	require.Equal(t, cfg.DefaultConditions, reloaded.DefaultConditions)
}

func TestLoadParsesFactoringSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9090"
DataDir = "./data"
Env = "staging"
RPCAuthToken = "s3cret"
Currencies = ["usdc", "eurc"]
VaultAddress = "` + testAddress(0xEE) + `"
Owner = "` + testAddress(0x01) + `"
Admins = ["` + testAddress(0x02) + `"]
Operators = ["` + testAddress(0x03) + `"]

[DefaultConditions]
FeeBps = 200
UpfrontBps = 8000
OwnerBps = 1000

[Pauses]
Factoring = true

[[Genesis.Allocations]]
Address = "` + testAddress(0x04) + `"
Token = "usdc"
Amount = "1000000"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.RPCAddress)
	require.Equal(t, []string{"USDC", "EURC"}, cfg.Currencies)
	require.True(t, cfg.Pauses.Factoring)
	require.Equal(t, Conditions{FeeBps: 200, UpfrontBps: 8_000, OwnerBps: 1_000}, cfg.DefaultConditions)
	require.Len(t, cfg.Genesis.Allocations, 1)
	require.Equal(t, "USDC", cfg.Genesis.Allocations[0].Token)
	require.Equal(t, "s3cret", cfg.AuthToken())
	require.Equal(t, 100, cfg.LogMaxSizeMB)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]func(*Config){
		"one currency":       func(c *Config) { c.Currencies = []string{"USDC"} },
		"duplicate currency": func(c *Config) { c.Currencies = []string{"USDC", "USDC"} },
		"zero fee":           func(c *Config) { c.DefaultConditions.FeeBps = 0 },
		"over 100%":          func(c *Config) { c.DefaultConditions.UpfrontBps = 9_000 },
		"bad owner":          func(c *Config) { c.Owner = "nhb1xyz" },
		"bad admin":          func(c *Config) { c.Admins = []string{"bogus"} },
		"bad allocation token": func(c *Config) {
			c.Genesis.Allocations = []Allocation{{Address: testAddress(0x01), Token: "DAI", Amount: "1"}}
		},
		"negative allocation": func(c *Config) {
			c.Genesis.Allocations = []Allocation{{Address: testAddress(0x01), Token: "USDC", Amount: "-1"}}
		},
		"bad trusted proxy": func(c *Config) {
			c.TrustedProxies = []string{"proxy.internal"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestAuthTokenFallsBackToEnv(t *testing.T) {
	t.Setenv(RPCTokenEnv, "from-env")
	cfg := Default()
	require.Equal(t, "from-env", cfg.AuthToken())
	cfg.RPCAuthToken = "explicit"
	require.Equal(t, "explicit", cfg.AuthToken())
}

func TestParseProxyAcceptsAddressesAndRanges(t *testing.T) {
	single, err := ParseProxy(" 10.1.2.3 ")
	require.NoError(t, err)
	require.Equal(t, "10.1.2.3/32", single.String())

	ranged, err := ParseProxy("192.168.7.9/16")
	require.NoError(t, err)
	require.Equal(t, "192.168.0.0/16", ranged.String())

	v6, err := ParseProxy("fd00::1")
	require.NoError(t, err)
	require.Equal(t, 128, v6.Bits())

	_, err = ParseProxy("10.0.0.0/40")
	require.Error(t, err)
}
