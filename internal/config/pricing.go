package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingConfig is the checkout pricing policy. Amounts are integer
// minor currency units; VATPercent applies to the order subtotal.
type PricingConfig struct {
	Currency              string `mapstructure:"currency"`
	VATPercent            int64  `mapstructure:"vatPercent"`
	AssemblyFeePercent    int64  `mapstructure:"assemblyFeePercent"`
	DeliveryPrice         int64  `mapstructure:"deliveryPrice"`
	FreeDeliveryThreshold int64  `mapstructure:"freeDeliveryThreshold"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Currency:              "UZS",
		VATPercent:            12,
		AssemblyFeePercent:    5,
		DeliveryPrice:         3_000_000,
		FreeDeliveryThreshold: 100_000_000,
	}
}

// PricingConfigHolder keeps the active pricing policy and hot-reloads
// it when the mounted config file changes.
type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingConfigHolder() (*PricingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/shafran/config")
	v.AddConfigPath("/etc/shafran")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHAFRAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPricingConfig()
		v.SetDefault("pricing.currency", defaults.Currency)
		v.SetDefault("pricing.vatPercent", defaults.VATPercent)
		v.SetDefault("pricing.assemblyFeePercent", defaults.AssemblyFeePercent)
		v.SetDefault("pricing.deliveryPrice", defaults.DeliveryPrice)
		v.SetDefault("pricing.freeDeliveryThreshold", defaults.FreeDeliveryThreshold)
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPricingConfigHolder is a fixed-policy holder for tests.
func NewStaticPricingConfigHolder(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("pricing.currency cannot be empty")
	}
	if cfg.VATPercent < 0 || cfg.VATPercent > 100 {
		return errors.New("pricing.vatPercent must be between 0 and 100")
	}
	if cfg.AssemblyFeePercent < 0 || cfg.AssemblyFeePercent > 100 {
		return errors.New("pricing.assemblyFeePercent must be between 0 and 100")
	}
	if cfg.DeliveryPrice < 0 {
		return errors.New("pricing.deliveryPrice cannot be negative")
	}
	if cfg.FreeDeliveryThreshold < 0 {
		return errors.New("pricing.freeDeliveryThreshold cannot be negative")
	}
	return nil
}
