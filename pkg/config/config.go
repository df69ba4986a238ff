package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	MySQL      MySQLConfig      `yaml:"mysql"`
	Queue      QueueConfig      `yaml:"queue"`
	Worker     WorkerConfig     `yaml:"worker"`
	AutoScaler AutoScalerConfig `yaml:"autoscaler"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Logger     LoggerConfig     `yaml:"logger"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for command-surface auth (optional, empty disables auth)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN builds the gorm MySQL DSN.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// QueueConfig priority event router configuration
type QueueConfig struct {
	MaxRetry         int            `yaml:"max_retry"`          // attempts before an event is parked as failed
	RetryBaseSeconds int            `yaml:"retry_base_seconds"` // exponential backoff base
	TaskTimeout      int            `yaml:"task_timeout"`       // per-event handler timeout (seconds)
	RetentionHours   int            `yaml:"retention_hours"`    // completed-entry retention
	Concurrency      int            `yaml:"concurrency"`        // total worker slots across lanes
	LaneWeights      map[string]int `yaml:"lane_weights"`       // per-lane slot weights; defaults applied when empty
	RateLimits       RateLimits     `yaml:"rate_limits"`
}

// RateLimits per-tier event budgets (events per minute).
type RateLimits struct {
	Standard     int `yaml:"standard"`
	Professional int `yaml:"professional"`
	Enterprise   int `yaml:"enterprise"`
}

// WorkerConfig supervisor configuration
type WorkerConfig struct {
	Command            string   `yaml:"command"`              // worker binary to spawn per tenant
	Args               []string `yaml:"args"`                 // extra args placed before the generated ones
	WorkDir            string   `yaml:"work_dir"`             // root for per-tenant working directories
	StartupGraceSec    int      `yaml:"startup_grace_sec"`    // crash-on-start detection window
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_sec"` // graceful exit wait before SIGKILL
	CommandTimeoutSec  int      `yaml:"command_timeout_sec"`  // IPC round-trip deadline
	InactivityEvictMin int      `yaml:"inactivity_evict_min"` // sweep threshold (minutes)
}

// AutoScalerConfig resource allocator configuration
type AutoScalerConfig struct {
	Enabled             bool    `yaml:"enabled"`
	IntervalSec         int     `yaml:"interval_sec"`            // control loop interval
	CooldownSec         int     `yaml:"cooldown_sec"`            // per-action cooldown window
	HistoryCap          int     `yaml:"history_cap"`             // decision ring buffer size
	RebalanceThreshold  float64 `yaml:"rebalance_threshold"`     // cost-efficiency floor triggering rebalance
	ScaleUpErrorRate    float64 `yaml:"scale_up_error_rate"`     // percent
	ScaleUpResponseMs   float64 `yaml:"scale_up_response_ms"`    // average response time ceiling
	ScaleDownMsgsPerDay float64 `yaml:"scale_down_msgs_per_day"` // dedicated tenants below this are candidates
	ScaleDownResponseMs float64 `yaml:"scale_down_response_ms"`  // and faster than this
	ScaleUpBatch        int     `yaml:"scale_up_batch"`
	ScaleDownBatch      int     `yaml:"scale_down_batch"`
	RebalanceBatch      int     `yaml:"rebalance_batch"`
	SettleDelaySec      int     `yaml:"settle_delay_sec"` // pause between deallocate and reallocate
	CallTimeoutSec      int     `yaml:"call_timeout_sec"` // bound on supervisor/optimizer calls from the loop
}

// OptimizerConfig cost optimizer configuration
type OptimizerConfig struct {
	TargetReduction float64 `yaml:"target_reduction"` // vs all-dedicated baseline, e.g. 0.75
	SavingsFloor    float64 `yaml:"savings_floor"`    // minimum monthly savings for auto-execution
	BatchSize       int     `yaml:"batch_size"`       // optimizeAll batch size
	BatchDelaySec   int     `yaml:"batch_delay_sec"`  // inter-batch delay
	UsageWindowDays int     `yaml:"usage_window_days"`
}

// AlertingConfig monitoring loop configuration
type AlertingConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalSec int  `yaml:"interval_sec"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.ApplyDefaults()
	GlobalConfig = &cfg
	return nil
}

// ApplyDefaults fills unset fields with policy defaults. Exported so tests
// can build configs without a yaml file.
func (c *Config) ApplyDefaults() {
	if c.Queue.MaxRetry <= 0 {
		c.Queue.MaxRetry = 3
	}
	if c.Queue.RetryBaseSeconds <= 0 {
		c.Queue.RetryBaseSeconds = 2
	}
	if c.Queue.TaskTimeout <= 0 {
		c.Queue.TaskTimeout = 60
	}
	if c.Queue.RetentionHours <= 0 {
		c.Queue.RetentionHours = 24
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 20
	}
	if c.Queue.RateLimits.Standard <= 0 {
		c.Queue.RateLimits.Standard = 60
	}
	if c.Queue.RateLimits.Professional <= 0 {
		c.Queue.RateLimits.Professional = 300
	}
	if c.Queue.RateLimits.Enterprise <= 0 {
		c.Queue.RateLimits.Enterprise = 1200
	}
	if c.Worker.StartupGraceSec <= 0 {
		c.Worker.StartupGraceSec = 3
	}
	if c.Worker.ShutdownTimeoutSec <= 0 {
		c.Worker.ShutdownTimeoutSec = 10
	}
	if c.Worker.CommandTimeoutSec <= 0 {
		c.Worker.CommandTimeoutSec = 5
	}
	if c.Worker.InactivityEvictMin <= 0 {
		c.Worker.InactivityEvictMin = 30
	}
	if c.Worker.WorkDir == "" {
		c.Worker.WorkDir = "data/tenants"
	}
	if c.AutoScaler.IntervalSec <= 0 {
		c.AutoScaler.IntervalSec = 30
	}
	if c.AutoScaler.CooldownSec <= 0 {
		c.AutoScaler.CooldownSec = 300
	}
	if c.AutoScaler.HistoryCap <= 0 {
		c.AutoScaler.HistoryCap = 100
	}
	if c.AutoScaler.RebalanceThreshold <= 0 {
		c.AutoScaler.RebalanceThreshold = 0.5
	}
	if c.AutoScaler.ScaleUpErrorRate <= 0 {
		c.AutoScaler.ScaleUpErrorRate = 5
	}
	if c.AutoScaler.ScaleUpResponseMs <= 0 {
		c.AutoScaler.ScaleUpResponseMs = 3000
	}
	if c.AutoScaler.ScaleDownMsgsPerDay <= 0 {
		c.AutoScaler.ScaleDownMsgsPerDay = 100
	}
	if c.AutoScaler.ScaleDownResponseMs <= 0 {
		c.AutoScaler.ScaleDownResponseMs = 1000
	}
	if c.AutoScaler.ScaleUpBatch <= 0 {
		c.AutoScaler.ScaleUpBatch = 5
	}
	if c.AutoScaler.ScaleDownBatch <= 0 {
		c.AutoScaler.ScaleDownBatch = 3
	}
	if c.AutoScaler.RebalanceBatch <= 0 {
		c.AutoScaler.RebalanceBatch = 10
	}
	if c.AutoScaler.SettleDelaySec <= 0 {
		c.AutoScaler.SettleDelaySec = 2
	}
	if c.AutoScaler.CallTimeoutSec <= 0 {
		c.AutoScaler.CallTimeoutSec = 15
	}
	if c.Optimizer.TargetReduction <= 0 {
		c.Optimizer.TargetReduction = 0.75
	}
	if c.Optimizer.SavingsFloor <= 0 {
		c.Optimizer.SavingsFloor = 5
	}
	if c.Optimizer.BatchSize <= 0 {
		c.Optimizer.BatchSize = 10
	}
	if c.Optimizer.BatchDelaySec <= 0 {
		c.Optimizer.BatchDelaySec = 1
	}
	if c.Optimizer.UsageWindowDays <= 0 {
		c.Optimizer.UsageWindowDays = 30
	}
	if c.Alerting.IntervalSec <= 0 {
		c.Alerting.IntervalSec = 60
	}
}
