package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// RPCTokenEnv is consulted when RPCAuthToken is left empty.
const RPCTokenEnv = "BILLFACTOR_RPC_TOKEN"

type Config struct {
	RPCAddress         string     `toml:"RPCAddress"`
	DataDir            string     `toml:"DataDir"`
	Env                string     `toml:"Env"`
	LogFile            string     `toml:"LogFile"`
	LogMaxSizeMB       int        `toml:"LogMaxSizeMB"`
	LogMaxBackups      int        `toml:"LogMaxBackups"`
	RPCAuthToken       string     `toml:"RPCAuthToken"`
	RateLimitPerMinute int        `toml:"RateLimitPerMinute"`
	RateLimitBurst     int        `toml:"RateLimitBurst"`
	TrustedProxies     []string   `toml:"TrustedProxies"`
	OTLPEndpoint       string     `toml:"OTLPEndpoint"`
	OTLPInsecure       bool       `toml:"OTLPInsecure"`
	OTLPHeaders        string     `toml:"OTLPHeaders"`
	OTLPTraces         bool       `toml:"OTLPTraces"`
	OTLPMetrics        bool       `toml:"OTLPMetrics"`
	Currencies         []string   `toml:"Currencies"`
	VaultAddress       string     `toml:"VaultAddress"`
	Owner              string     `toml:"Owner"`
	Admins             []string   `toml:"Admins"`
	Operators          []string   `toml:"Operators"`
	DefaultConditions  Conditions `toml:"DefaultConditions"`
	Pauses             Pauses     `toml:"Pauses"`
	Genesis            Genesis    `toml:"Genesis"`
}

// Load loads the configuration from the given path. A default configuration
// is written when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AuthToken returns the bearer token required by mutating RPC calls.
func (c *Config) AuthToken() string {
	if token := strings.TrimSpace(c.RPCAuthToken); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv(RPCTokenEnv))
}

// Default returns the configuration written by Load for a new node.
func Default() *Config {
	return &Config{
		RPCAddress:         ":8080",
		DataDir:            "./billfactor-data",
		Env:                "dev",
		LogMaxSizeMB:       100,
		LogMaxBackups:      5,
		RateLimitPerMinute: 120,
		RateLimitBurst:     20,
		OTLPTraces:         true,
		Currencies:         []string{"USDC", "USDT"},
		TrustedProxies:     []string{},
		Admins:             []string{},
		Operators:          []string{},
		DefaultConditions:  Conditions{FeeBps: 300, UpfrontBps: 8_500, OwnerBps: 1_200},
	}
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./billfactor-data"
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "dev"
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = 100
	}
	if len(c.Currencies) == 0 {
		c.Currencies = []string{"USDC", "USDT"}
	}
	for i, symbol := range c.Currencies {
		c.Currencies[i] = strings.ToUpper(strings.TrimSpace(symbol))
	}
	if c.Admins == nil {
		c.Admins = []string{}
	}
	if c.Operators == nil {
		c.Operators = []string{}
	}
	for i := range c.Genesis.Allocations {
		c.Genesis.Allocations[i].Token = strings.ToUpper(strings.TrimSpace(c.Genesis.Allocations[i].Token))
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
