package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: for any non-positive policy value, ApplyDefaults replaces it with
// the documented default so a sparse yaml file still yields a runnable config.
func TestProperty_NonPositiveValuesFallBackToDefaults(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive queue settings fall back to defaults", prop.ForAll(
		func(v int) bool {
			cfg := &Config{}
			cfg.Queue.MaxRetry = v
			cfg.Queue.Concurrency = v
			cfg.Queue.TaskTimeout = v
			cfg.ApplyDefaults()
			return cfg.Queue.MaxRetry == 3 &&
				cfg.Queue.Concurrency == 20 &&
				cfg.Queue.TaskTimeout == 60
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive autoscaler settings fall back to defaults", prop.ForAll(
		func(v int) bool {
			cfg := &Config{}
			cfg.AutoScaler.IntervalSec = v
			cfg.AutoScaler.CooldownSec = v
			cfg.AutoScaler.HistoryCap = v
			cfg.ApplyDefaults()
			return cfg.AutoScaler.IntervalSec == 30 &&
				cfg.AutoScaler.CooldownSec == 300 &&
				cfg.AutoScaler.HistoryCap == 100
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive optimizer settings fall back to defaults", prop.ForAll(
		func(v int) bool {
			cfg := &Config{}
			cfg.Optimizer.BatchSize = v
			cfg.Optimizer.UsageWindowDays = v
			cfg.Optimizer.TargetReduction = float64(v)
			cfg.ApplyDefaults()
			return cfg.Optimizer.BatchSize == 10 &&
				cfg.Optimizer.UsageWindowDays == 30 &&
				cfg.Optimizer.TargetReduction == 0.75
		},
		gen.IntRange(-1000, 0),
	))

	properties.TestingRun(t)
}

// Property: values an operator set explicitly are never overwritten.
func TestProperty_ExplicitValuesArePreserved(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("positive queue settings are preserved", prop.ForAll(
		func(retry, concurrency int) bool {
			cfg := &Config{}
			cfg.Queue.MaxRetry = retry
			cfg.Queue.Concurrency = concurrency
			cfg.ApplyDefaults()
			return cfg.Queue.MaxRetry == retry && cfg.Queue.Concurrency == concurrency
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 200),
	))

	properties.Property("positive rate limits are preserved", prop.ForAll(
		func(std, pro, ent int) bool {
			cfg := &Config{}
			cfg.Queue.RateLimits.Standard = std
			cfg.Queue.RateLimits.Professional = pro
			cfg.Queue.RateLimits.Enterprise = ent
			cfg.ApplyDefaults()
			return cfg.Queue.RateLimits.Standard == std &&
				cfg.Queue.RateLimits.Professional == pro &&
				cfg.Queue.RateLimits.Enterprise == ent
		},
		gen.IntRange(1, 10000),
		gen.IntRange(1, 10000),
		gen.IntRange(1, 10000),
	))

	properties.Property("explicit worker work dir is preserved", prop.ForAll(
		func(keep bool) bool {
			cfg := &Config{}
			if keep {
				cfg.Worker.WorkDir = "/srv/tenants"
			}
			cfg.ApplyDefaults()
			if keep {
				return cfg.Worker.WorkDir == "/srv/tenants"
			}
			return cfg.Worker.WorkDir == "data/tenants"
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: applying defaults twice is the same as applying them once.
func TestProperty_ApplyDefaultsIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("apply defaults is idempotent", prop.ForAll(
		func(retry, interval, batch int) bool {
			cfg := &Config{}
			cfg.Queue.MaxRetry = retry
			cfg.AutoScaler.IntervalSec = interval
			cfg.Optimizer.BatchSize = batch

			cfg.ApplyDefaults()
			first := *cfg
			cfg.ApplyDefaults()

			return cfg.Queue.MaxRetry == first.Queue.MaxRetry &&
				cfg.AutoScaler.IntervalSec == first.AutoScaler.IntervalSec &&
				cfg.Optimizer.BatchSize == first.Optimizer.BatchSize &&
				cfg.Worker.InactivityEvictMin == first.Worker.InactivityEvictMin
		},
		gen.IntRange(-100, 100),
		gen.IntRange(-100, 100),
		gen.IntRange(-100, 100),
	))

	properties.TestingRun(t)
}
