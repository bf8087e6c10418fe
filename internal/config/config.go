// Package config loads the runtime configuration from the environment once
// at cold start. Every knob has the default the deployment templates assume.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Config represents the runtime configuration
type Config struct {
	// PolicyBucket is the S3 bucket holding policies and the mapping file.
	PolicyBucket string `validate:"required"`
	// AccountMappingKey is the S3 key of the account policy mapping file.
	AccountMappingKey string `validate:"required"`
	// PolicyPrefix is the key prefix under which policy files live.
	PolicyPrefix string `validate:"required"`
	// CrossAccountRoleName is the IAM role assumed in tenant accounts.
	CrossAccountRoleName string `validate:"required"`
	// ExternalIDPrefix prefixes the deterministic assume-role external ID.
	ExternalIDPrefix string `validate:"required"`
	// NotifyQueueURL is the internal SQS queue written by notify actions.
	NotifyQueueURL string `validate:"omitempty,url"`
	// NotifyTopicARN is the SNS topic real-time notifications publish to.
	NotifyTopicARN string
	// LogLevel controls logging verbosity.
	LogLevel string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		PolicyBucket:         os.Getenv("POLICY_BUCKET"),
		AccountMappingKey:    getEnv("ACCOUNT_MAPPING_KEY", "config/account-policy-mapping.json"),
		PolicyPrefix:         getEnv("POLICY_PREFIX", "policies/"),
		CrossAccountRoleName: getEnv("CROSS_ACCOUNT_ROLE_NAME", "CloudCustodianExecutionRole"),
		ExternalIDPrefix:     getEnv("EXTERNAL_ID_PREFIX", "cloud-custodian"),
		NotifyQueueURL:       os.Getenv("NOTIFY_QUEUE_URL"),
		NotifyTopicARN:       os.Getenv("NOTIFY_TOPIC_ARN"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
