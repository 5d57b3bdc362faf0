package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPricingConfigIsValid(t *testing.T) {
	cfg := DefaultPricingConfig()
	require.NoError(t, validatePricingConfig(cfg))

	assert.Equal(t, "UZS", cfg.Currency)
	assert.Equal(t, int64(12), cfg.VATPercent)
	assert.Equal(t, int64(5), cfg.AssemblyFeePercent)
}

func TestValidatePricingConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PricingConfig)
	}{
		{"empty currency", func(c *PricingConfig) { c.Currency = " " }},
		{"negative vat", func(c *PricingConfig) { c.VATPercent = -1 }},
		{"vat above 100", func(c *PricingConfig) { c.VATPercent = 101 }},
		{"negative assembly fee", func(c *PricingConfig) { c.AssemblyFeePercent = -1 }},
		{"assembly fee above 100", func(c *PricingConfig) { c.AssemblyFeePercent = 101 }},
		{"negative delivery price", func(c *PricingConfig) { c.DeliveryPrice = -1 }},
		{"negative free delivery threshold", func(c *PricingConfig) { c.FreeDeliveryThreshold = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPricingConfig()
			tc.mutate(&cfg)
			assert.Error(t, validatePricingConfig(cfg))
		})
	}
}

func TestStaticHolderReturnsStoredPolicy(t *testing.T) {
	cfg := PricingConfig{
		Currency:              "UZS",
		VATPercent:            15,
		AssemblyFeePercent:    7,
		DeliveryPrice:         25_000,
		FreeDeliveryThreshold: 1_000_000,
	}

	holder := NewStaticPricingConfigHolder(cfg)
	assert.Equal(t, cfg, holder.Get())
}
