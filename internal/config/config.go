// Package config loads runtime configuration from the environment, with an
// optional .env file for development and an optional YAML seed file for the
// per-suffix price table.
package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP struct {
		Addr            string        `env:"HTTP_ADDR,default=:8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	}

	Log struct {
		Level  string `env:"LOG_LEVEL,default=info"`
		Format string `env:"LOG_FORMAT,default=json"`
	}

	// DatabaseURL selects the postgres store when set; empty means the
	// in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`

	// Ledger identities. Peer-service entry points authenticate callers
	// against these addresses.
	Identity struct {
		Admin    string `env:"ADMIN_ADDRESS,default=admin"`
		Registry string `env:"REGISTRY_ADDRESS,default=registry-contract"`
		Treasury string `env:"TREASURY_ADDRESS,default=treasury-contract"`
		Fraction string `env:"FRACTION_ADDRESS,default=fraction-contract"`
	}

	Oracle struct {
		FeedURL      string        `env:"ORACLE_FEED_URL"`
		FeedDecimals int           `env:"ORACLE_FEED_DECIMALS,default=8"`
		Staleness    time.Duration `env:"ORACLE_STALENESS,default=1h"`
		RateFloor    string        `env:"ORACLE_RATE_FLOOR,default=0"`
	}

	Treasury struct {
		DefaultFeeBps int `env:"TREASURY_DEFAULT_FEE_BPS,default=100"`
	}

	Fraction struct {
		GracePeriod time.Duration `env:"FRACTION_GRACE_PERIOD,default=168h"`
	}

	Sweeper struct {
		Enabled  bool          `env:"SWEEPER_ENABLED,default=true"`
		Schedule string        `env:"SWEEPER_SCHEDULE,default=@every 1h"`
		Window   time.Duration `env:"SWEEPER_WINDOW,default=720h"`
		Years    int           `env:"SWEEPER_YEARS,default=1"`
	}

	Auth struct {
		// JWTSecret signs and verifies admin tokens. Empty disables the
		// admin HTTP surface.
		JWTSecret string `env:"JWT_SECRET"`
	}

	// PriceSeedFile optionally points at a YAML file of per-suffix prices
	// applied at startup.
	PriceSeedFile string `env:"PRICE_SEED_FILE"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// PriceSeed is one per-suffix price entry from the seed file.
type PriceSeed struct {
	Suffix  string `yaml:"suffix"`
	PerYear string `yaml:"per_year"`
}

// LoadPriceSeeds parses the YAML seed file into suffix→price pairs.
func LoadPriceSeeds(path string) (map[string]*big.Int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Prices []PriceSeed `yaml:"prices"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make(map[string]*big.Int, len(doc.Prices))
	for _, seed := range doc.Prices {
		price, ok := new(big.Int).SetString(seed.PerYear, 10)
		if !ok || price.Sign() < 0 {
			return nil, fmt.Errorf("invalid price %q for suffix %q", seed.PerYear, seed.Suffix)
		}
		out[seed.Suffix] = price
	}
	return out, nil
}
