package kafka

import (
	"fmt"
	"strings"

	"multiactivity/internal/config"
)

// Config holds Kafka producer settings
type Config struct {
	Brokers           string
	EmailEventsTopic  string
	EmailDLQTopic     string
	ConsumerGroup     string
	EnableIdempotence bool
	Acks              string
}

// NewConfig builds producer settings from the application config
func NewConfig(cfg config.KafkaConfig) (*Config, error) {
	if strings.TrimSpace(cfg.Brokers) == "" {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}

	return &Config{
		Brokers:           cfg.Brokers,
		EmailEventsTopic:  cfg.EmailTopic,
		EmailDLQTopic:     cfg.EmailDLQTopic,
		ConsumerGroup:     cfg.ConsumerGroup,
		EnableIdempotence: true,
		Acks:              "all",
	}, nil
}

// GetBrokersList returns brokers as a slice
func (c *Config) GetBrokersList() []string {
	parts := strings.Split(c.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
