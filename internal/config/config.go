package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

type Config struct {
	Service  string `yaml:"service"`
	Env      string `yaml:"env"`
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Store selects the persistence adapter: memory or mongo.
	Store string `yaml:"store"`
	Mongo Mongo  `yaml:"mongo"`

	Stripe Stripe `yaml:"stripe"`

	// PublicURL is where the gateway sends buyers back to.
	PublicURL     string `yaml:"public_url"`
	AdminPassword string `yaml:"admin_password"`

	SeedProducts []SeedProduct `yaml:"seed_products"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type Stripe struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	Currency      string `yaml:"currency"`
}

type SeedProduct struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Price       string `yaml:"price"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image"`
	Stock       int    `yaml:"stock"`
}

// Load reads the YAML file named by CONFIG_FILE (optional) and overlays the
// process environment.
func Load() (*Config, error) {
	return load(os.Getenv("CONFIG_FILE"), os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	overlayEnv(cfg, getenv)
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	cfg.Store = strings.ToLower(cfg.Store)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Service:   "minishop-storefront",
		Env:       "dev",
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		Store:     StoreMemory,
		Mongo:     Mongo{Database: "storefront"},
		Stripe:    Stripe{Currency: "try"},
		PublicURL: "http://localhost:8080",
	}
}

func overlayEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Service, "SERVICE_NAME")
	set(&cfg.Env, "ENV")
	set(&cfg.HTTPAddr, "HTTP_ADDR")
	set(&cfg.LogLevel, "LOG_LEVEL")
	set(&cfg.LogFile, "LOG_FILE")
	set(&cfg.Store, "STORE")
	set(&cfg.Mongo.URI, "MONGO_URI")
	set(&cfg.Mongo.Database, "MONGO_DATABASE")
	set(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	set(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	set(&cfg.Stripe.Currency, "CURRENCY")
	set(&cfg.PublicURL, "PUBLIC_URL")
	set(&cfg.AdminPassword, "ADMIN_PASSWORD")
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("config: mongo store needs MONGO_URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store %q", c.Store))
	}
	if c.AdminPassword == "" {
		errs = append(errs, errors.New("config: ADMIN_PASSWORD is required"))
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("config: STRIPE_WEBHOOK_SECRET is required with a Stripe key"))
	}
	for i, p := range c.SeedProducts {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("config: seed_products[%d] has no name", i))
		}
		if _, err := p.Amount(); err != nil {
			errs = append(errs, fmt.Errorf("config: seed_products[%d]: %w", i, err))
		}
		if p.Stock < 0 {
			errs = append(errs, fmt.Errorf("config: seed_products[%d] has negative stock", i))
		}
	}
	return errors.Join(errs...)
}

// Amount parses the seed price.
func (p SeedProduct) Amount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", p.Price)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", p.Price)
	}
	return d, nil
}
