package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration, resolved from defaults, an
// optional config file, and ENGINE_* environment variables.
type Config struct {
	QueueDepth int `mapstructure:"queue_depth"`

	Feed struct {
		Delimiter        string        `mapstructure:"delimiter"`
		RetryCount       int           `mapstructure:"retry_count"`
		RetrySleep       time.Duration `mapstructure:"retry_sleep"`
		DefaultMarketQty int64         `mapstructure:"default_market_qty"`
	} `mapstructure:"feed"`

	Kafka struct {
		Brokers          []string `mapstructure:"brokers"`
		InstructionTopic string   `mapstructure:"instruction_topic"`
		ExecutionTopic   string   `mapstructure:"execution_topic"`
		GroupID          string   `mapstructure:"group_id"`
	} `mapstructure:"kafka"`

	Outbox struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"outbox"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	PublishInterval time.Duration `mapstructure:"publish_interval"`
}

// Load resolves configuration. path may name a config file; when empty, only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("queue_depth", 1<<14)
	v.SetDefault("feed.delimiter", ";")
	v.SetDefault("feed.retry_count", 3)
	v.SetDefault("feed.retry_sleep", 100*time.Millisecond)
	v.SetDefault("feed.default_market_qty", 100)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.instruction_topic", "instructions")
	v.SetDefault("kafka.execution_topic", "executions")
	v.SetDefault("kafka.group_id", "matching-engine")
	v.SetDefault("outbox.dir", "data/outbox")
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("publish_interval", time.Second)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
