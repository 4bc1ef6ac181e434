// Package config loads and validates environment configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// minJWTSecretLength is the shortest HS256 key accepted outside development
const minJWTSecretLength = 32

// ValidateEnv validates that all required environment variables are set
func ValidateEnv(requiredVars []string) error {
	var missing []string

	for _, varName := range requiredVars {
		value := os.Getenv(varName)
		if value == "" {
			missing = append(missing, varName)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

// ValidateJWTSecret ensures the token signing secret meets minimum requirements
func (c *Config) ValidateJWTSecret() error {
	secret := c.Auth.JWTSecret
	if secret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.IsProduction() && len(secret) < minJWTSecretLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters in production", minJWTSecretLength)
	}

	return nil
}

// ValidateServer checks everything cmd/server needs before it starts
func (c *Config) ValidateServer() error {
	if err := ValidateEnv([]string{"DATABASE_URL", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY"}); err != nil {
		return err
	}
	if err := c.ValidateJWTSecret(); err != nil {
		return err
	}
	if c.Kafka.Enabled && c.Kafka.Brokers == "" {
		return errors.New("KAFKA_BROKERS is required when ENABLE_KAFKA is true")
	}
	if c.Email.Mode != "log" && c.Email.Mode != "smtp" {
		return fmt.Errorf("EMAIL_MODE must be log or smtp, got %q", c.Email.Mode)
	}

	return nil
}
