package nanoquery

import (
	"fmt"

	"github.com/arthur-debert/nanoquery/nanoquery/exec"
	"github.com/arthur-debert/nanoquery/nanoquery/plan"
)

// Config holds the tunables of an Engine. Field tags match the keys read by
// the CLI configuration loader.
type Config struct {
	// FanOut bounds how many rows of a list are assembled concurrently;
	// 1 assembles sequentially
	FanOut int `mapstructure:"fan_out" json:"fan_out" yaml:"fan_out"`

	// MaxLimit is the largest Limit a List node may ask for
	MaxLimit int `mapstructure:"max_limit" json:"max_limit" yaml:"max_limit"`

	// Singleton is "null" (no row yields null) or "required" (no row is an
	// execution error)
	Singleton string `mapstructure:"singleton" json:"singleton" yaml:"singleton"`
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		FanOut:    1,
		MaxLimit:  plan.DefaultMaxLimit,
		Singleton: exec.SingletonNull.String(),
	}
}

// Validate checks the configuration values
func (c Config) Validate() error {
	if c.FanOut < 1 {
		return fmt.Errorf("fan_out must be at least 1, got %d", c.FanOut)
	}
	if c.MaxLimit < 1 {
		return fmt.Errorf("max_limit must be at least 1, got %d", c.MaxLimit)
	}
	if _, err := exec.ParseSingletonPolicy(c.Singleton); err != nil {
		return err
	}
	return nil
}
