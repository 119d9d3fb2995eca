package config

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyConfig holds the bcrypt hash that callers' API keys are checked against.
type APIKeyConfig struct {
	Hash       string
	BcryptCost int
}

// NewAPIKeyConfig reads API_KEY_HASH and BCRYPT_COST (default: 12).
// It returns nil without error when no hash is configured.
func NewAPIKeyConfig() (*APIKeyConfig, error) {
	hash := os.Getenv("API_KEY_HASH")

	costStr := os.Getenv("BCRYPT_COST")
	if costStr == "" {
		costStr = "12"
	}
	cost, err := strconv.Atoi(costStr)
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %v", err)
	}

	cfg := &APIKeyConfig{Hash: hash, BcryptCost: cost}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, nil
	}
	return cfg, nil
}

func (c *APIKeyConfig) normalize() error {
	if c.BcryptCost < 10 || c.BcryptCost > 14 {
		return fmt.Errorf("bcrypt cost out of range: %d (must be 10-14)", c.BcryptCost)
	}
	if c.Hash != "" {
		if _, err := bcrypt.Cost([]byte(c.Hash)); err != nil {
			return fmt.Errorf("API_KEY_HASH is not a bcrypt hash: %w", err)
		}
	}
	return nil
}

// HashAPIKey produces the value to store in API_KEY_HASH
func (c *APIKeyConfig) HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("API key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether key matches the configured hash
func (c *APIKeyConfig) Verify(key string) bool {
	if c == nil || c.Hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.Hash), []byte(key)) == nil
}

// NewAPIKeyHasher returns a config that hashes keys at cost without verifying any
func NewAPIKeyHasher(cost int) (*APIKeyConfig, error) {
	cfg := &APIKeyConfig{BcryptCost: cost}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}
