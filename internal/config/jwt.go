package config

import (
	"fmt"
	"os"
	"time"
)

// JWTConfig holds the settings for verifying bearer tokens on the API.
type JWTConfig struct {
	Secret string
	Issuer string        // Expected "iss" claim; empty accepts any issuer
	Leeway time.Duration // Clock skew tolerated on exp/nbf
}

// NewJWTConfig reads JWT_SECRET, JWT_ISSUER and JWT_LEEWAY (default: 30s).
// It returns nil without error when JWT_SECRET is unset, which disables bearer auth.
func NewJWTConfig() (*JWTConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, nil
	}

	leeway := 30 * time.Second
	if raw := os.Getenv("JWT_LEEWAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_LEEWAY: %v", err)
		}
		leeway = d
	}

	cfg := &JWTConfig{
		Secret: secret,
		Issuer: os.Getenv("JWT_ISSUER"),
		Leeway: leeway,
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *JWTConfig) normalize() error {
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.Leeway < 0 || c.Leeway > 5*time.Minute {
		return fmt.Errorf("JWT_LEEWAY must be between 0 and 5m, got: %s", c.Leeway)
	}
	return nil
}
