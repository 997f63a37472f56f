package main

import (
	"os"
	"time"

	"github.com/agentuity/go-memocache/env"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var errInvalidConfig = errors.New("invalid bench configuration")

type benchConfig struct {
	Workers         int          `yaml:"workers"`
	Requests        int          `yaml:"requests"`
	Keys            int          `yaml:"keys"`
	Latency         env.Duration `yaml:"latency"`
	TTL             env.Duration `yaml:"ttl"`
	CleanupInterval env.Duration `yaml:"cleanup_interval"`
	InvalidateEvery int          `yaml:"invalidate_every"`
	Serialize       bool         `yaml:"serialize"`
	Debug           bool         `yaml:"debug"`
}

func defaultBenchConfig() benchConfig {
	return benchConfig{
		Workers:  8,
		Requests: 1000,
		Keys:     32,
		Latency:  env.Duration(5 * time.Millisecond),
		TTL:      env.Duration(time.Minute),
	}
}

func (c benchConfig) validate() error {
	switch {
	case c.Workers <= 0:
		return errors.Wrapf(errInvalidConfig, "workers must be positive, got %d", c.Workers)
	case c.Requests <= 0:
		return errors.Wrapf(errInvalidConfig, "requests must be positive, got %d", c.Requests)
	case c.Keys <= 0:
		return errors.Wrapf(errInvalidConfig, "keys must be positive, got %d", c.Keys)
	case c.InvalidateEvery < 0:
		return errors.Wrapf(errInvalidConfig, "invalidate-every must not be negative, got %d", c.InvalidateEvery)
	}
	return nil
}

func addBenchFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML file with bench settings")
	cmd.Flags().Int("workers", 0, "concurrent workers")
	cmd.Flags().Int("requests", 0, "requests per worker")
	cmd.Flags().Int("keys", 0, "distinct keys")
	cmd.Flags().String("latency", "", "simulated producer latency (e.g. 5ms)")
	cmd.Flags().String("ttl", "", "entry ttl (e.g. 1m, 1d)")
	cmd.Flags().String("cleanup-interval", "", "background sweep interval, empty disables")
	cmd.Flags().Int("invalidate-every", 0, "invalidate the bench prefix every N requests, 0 disables")
	cmd.Flags().Bool("serialize", false, "store values msgpack encoded")
	cmd.Flags().Bool("debug", false, "trace every cache operation")
}

// loadBenchConfig layers defaults, the optional YAML file and any flags
// set explicitly on the command line, in that order.
func loadBenchConfig(cmd *cobra.Command) (benchConfig, error) {
	cfg := defaultBenchConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	flags := cmd.Flags()
	ints := map[string]*int{
		"workers":          &cfg.Workers,
		"requests":         &cfg.Requests,
		"keys":             &cfg.Keys,
		"invalidate-every": &cfg.InvalidateEvery,
	}
	for name, dst := range ints {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	durations := map[string]*env.Duration{
		"latency":          &cfg.Latency,
		"ttl":              &cfg.TTL,
		"cleanup-interval": &cfg.CleanupInterval,
	}
	for name, dst := range durations {
		if !flags.Changed(name) {
			continue
		}
		s, _ := flags.GetString(name)
		d, err := env.ParseDuration(s)
		if err != nil {
			return cfg, errors.Wrapf(err, "--%s", name)
		}
		*dst = env.Duration(d)
	}
	bools := map[string]*bool{
		"serialize": &cfg.Serialize,
		"debug":     &cfg.Debug,
	}
	for name, dst := range bools {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	return cfg, cfg.validate()
}
