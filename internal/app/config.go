package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/product"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix) or YAML config files.
type Config struct {
	Storage     string `default:"postgres" validate:"required,oneof=memory postgres" usage:"Storage backend: memory or postgres"`
	DatabaseURL string `validate:"required_if=Storage postgres" usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)"`
	Migrate     bool   `default:"true" usage:"Apply the embedded schema on start"`
	// CatalogFile seeds the memory store with a JSON-lines catalog.
	CatalogFile string `usage:"Catalog file loaded into the memory store"`

	Currency string `default:"USD" validate:"required,len=3,uppercase" usage:"Default currency code"`
	TaxRate  string `default:"0" validate:"numeric" usage:"Tax rate applied by quotes, e.g. 0.2"`
	Shipping ShippingConfig
	Cache    CacheConfig
}

// ShippingConfig holds the physical shipping policy.
type ShippingConfig struct {
	Base  string `default:"5.00" validate:"numeric" usage:"Flat shipping fee per physical unit"`
	PerKg string `default:"2.00" validate:"numeric" usage:"Shipping fee per kilogram"`
}

// CacheConfig controls the product lookup cache.
type CacheConfig struct {
	Enabled bool          `default:"true" usage:"Cache product lookups"`
	Size    int           `default:"1024" validate:"gte=1" usage:"Maximum cached products"`
	TTL     time.Duration `default:"5m" validate:"gt=0" usage:"Cached product lifetime"`
}

// Pricing is the parsed form of the pricing settings.
type Pricing struct {
	Currency string
	TaxRate  decimal.Decimal
	Shipping product.ShippingRates
}

// LoadConfig loads configuration from environment variables and YAML
// config files, then validates it.
func LoadConfig() (*Config, error) {
	return loadConfig([]string{"config.yaml", "/etc/orders/config.yaml"})
}

func loadConfig(files []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL variable to the
// ORDERS_-prefixed setting.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
}

// Validate checks field constraints and that the pricing settings parse.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "validate config")
	}
	if _, err := c.Pricing(); err != nil {
		return errors.Wrap(err, "validate config")
	}
	return nil
}

// Pricing parses the pricing settings.
func (c *Config) Pricing() (Pricing, error) {
	tax, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return Pricing{}, errors.Wrap(err, "tax rate")
	}
	if tax.IsNegative() {
		return Pricing{}, errors.New("tax rate cannot be negative")
	}
	base, err := decimal.NewFromString(c.Shipping.Base)
	if err != nil {
		return Pricing{}, errors.Wrap(err, "shipping base")
	}
	perKg, err := decimal.NewFromString(c.Shipping.PerKg)
	if err != nil {
		return Pricing{}, errors.Wrap(err, "shipping per kg")
	}
	rates := product.ShippingRates{Base: base, PerKg: perKg}
	if err := rates.Validate(); err != nil {
		return Pricing{}, err
	}
	return Pricing{Currency: c.Currency, TaxRate: tax, Shipping: rates}, nil
}
