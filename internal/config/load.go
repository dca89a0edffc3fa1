package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file base name searched for when no path is given.
const FileName = "palmdeploy"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PALMDEPLOY"

// DeployerKeyEnv is the environment variable the default network reads its
// signing key from.
const DeployerKeyEnv = "PALMDEPLOY_DEPLOYER_KEY"

var literalKeyPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// Default returns the built-in configuration: the JBC network, solc 0.8.20
// with the optimizer enabled and "deployer" bound to account 0.
func Default() *Config {
	return &Config{
		Solidity: Solidity{
			Version:   "0.8.20",
			Optimizer: Optimizer{Enabled: true, Runs: 200},
		},
		DefaultNetwork: "JBC",
		NamedAccounts: map[string]any{
			"deployer": 0,
		},
		Networks: map[string]*Network{
			"jbc": {
				URL:           "https://rpc-l1.jibchain.net",
				ChainID:       8899,
				Accounts:      []string{"${" + DeployerKeyEnv + "}"},
				GasMultiplier: 1,
				Live:          true,
			},
		},
		Paths: Paths{
			Artifacts:   "artifacts",
			Deployments: "deployments",
		},
		Registry: Registry{Driver: DriverFile},
		Lock:     Lock{TTL: 10 * time.Minute},
	}
}

// Load reads the config at path, or searches the working directory and the
// home directory when path is empty. A missing file is only an error when a
// path was given explicitly.
func Load(path string) (*Config, error) {
	return LoadWithViper(viper.New(), path)
}

// LoadWithViper is Load with a caller-supplied viper instance.
func LoadWithViper(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("default_network", EnvPrefix+"_NETWORK")
	_ = v.BindEnv("registry.driver", EnvPrefix+"_REGISTRY_DRIVER")
	_ = v.BindEnv("registry.dsn", EnvPrefix+"_REGISTRY_DSN")
	_ = v.BindEnv("lock.redis_url", EnvPrefix+"_REDIS_URL")
	_ = v.BindEnv("paths.artifacts", EnvPrefix+"_ARTIFACTS")
	_ = v.BindEnv("paths.deployments", EnvPrefix+"_DEPLOYMENTS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	cfg.expandSecrets(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, w := range cfg.warnings {
		slog.Warn(w, slog.String("config_file", v.ConfigFileUsed()))
	}

	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := c.Network(""); err != nil {
		return fmt.Errorf("validate config: default_network: %w", err)
	}
	return nil
}

// normalize lower-cases network keys so defaults and file entries merge the
// way viper reports them.
func (c *Config) normalize() {
	networks := make(map[string]*Network, len(c.Networks))
	for key, n := range c.Networks {
		if n == nil {
			continue
		}
		networks[strings.ToLower(key)] = n
	}
	c.Networks = networks
}

// expandSecrets substitutes ${VAR} references in URLs, accounts and signer
// keys. Literal private keys are kept but reported, and accounts that expand
// to nothing are dropped.
func (c *Config) expandSecrets(lookup func(string) (string, bool)) {
	expand := func(s string) string {
		return os.Expand(s, func(name string) string {
			v, _ := lookup(name)
			return v
		})
	}

	for key, n := range c.Networks {
		n.URL = expand(n.URL)

		accounts := make([]string, 0, len(n.Accounts))
		for i, raw := range n.Accounts {
			if !strings.Contains(raw, "$") && literalKeyPattern.MatchString(strings.TrimSpace(raw)) {
				c.warnings = append(c.warnings, fmt.Sprintf(
					"network %s: account %d is a plain-text private key; load it from the environment instead (e.g. ${%s})",
					key, i, DeployerKeyEnv))
			}
			v := strings.TrimSpace(expand(raw))
			if v == "" {
				c.warnings = append(c.warnings, fmt.Sprintf("network %s: account %d (%s) is empty, skipping", key, i, raw))
				continue
			}
			accounts = append(accounts, v)
		}
		n.Accounts = accounts

		if n.Signer != nil {
			n.Signer.URL = expand(n.Signer.URL)
			n.Signer.APIKey = expand(n.Signer.APIKey)
		}
	}

	c.Registry.DSN = expand(c.Registry.DSN)
	c.Lock.RedisURL = expand(c.Lock.RedisURL)
}

// Template returns the config written by `palmdeploy config init`.
func Template() *Config {
	cfg := Default()
	cfg.Networks = map[string]*Network{
		"JBC": cfg.Networks["jbc"],
	}
	return cfg
}

// WriteYAML encodes the config as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
