// Package config provides configuration loading and validation for the filing validator.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Prompt sources
const (
	PromptSourceEmbedded = "embedded"
	PromptSourceBlob     = "blob"
	PromptSourceDB       = "db"
)

// Config represents the service configuration. It can be loaded from a JSON file
// and is then overridden by environment variables.
type Config struct {
	// Storage
	StorageBackend      string `json:"storage_backend,omitempty" validate:"omitempty,oneof=memory fs azure"`
	StorageRoot         string `json:"storage_root,omitempty"`
	AzureStorageAccount string `json:"azure_storage_account,omitempty" validate:"required_if=StorageBackend azure"`
	TaxonomyContainer   string `json:"taxonomy_container,omitempty"`
	ResultsContainer    string `json:"results_container,omitempty"`

	// Prompts
	PromptSource string `json:"prompt_source,omitempty" validate:"omitempty,oneof=embedded blob db"`
	PromptFile   string `json:"prompt_file,omitempty" validate:"required_if=PromptSource blob"`

	// LLM
	APIKey string `json:"api_key,omitempty"` // Gemini API key
	Model  string `json:"model,omitempty"`   // Overrides the standard-tier model

	// Pipeline
	MaxWorkers               int  `json:"max_workers,omitempty" validate:"gte=0,lte=64"`
	BatchSize                int  `json:"batch_size,omitempty" validate:"gte=0,lte=100"`
	DisableTaxonomyMatch     bool `json:"disable_taxonomy_match,omitempty"`
	DisablePageImages        bool `json:"disable_page_images,omitempty"`
	DisablePeriodValidation  bool `json:"disable_period_validation,omitempty"`
	SkipMatchedRowValidation bool `json:"skip_matched_row_validation,omitempty"`

	// Service
	Port        int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	Verbose     bool   `json:"verbose,omitempty"`
}

// Defaults returns the configuration used for unset fields
func Defaults() Config {
	return Config{
		StorageBackend:    "fs",
		StorageRoot:       "./data",
		TaxonomyContainer: "taxonomy",
		ResultsContainer:  "gold",
		PromptSource:      PromptSourceEmbedded,
		MaxWorkers:        8,
		BatchSize:         10,
		Port:              8080,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
// Unparseable numeric or boolean values are reported as errors.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("STORAGE_BACKEND", &c.StorageBackend)
	str("STORAGE_ROOT", &c.StorageRoot)
	str("AZURE_STORAGE_ACCOUNT", &c.AzureStorageAccount)
	str("TAXONOMY_CONTAINER", &c.TaxonomyContainer)
	str("RESULTS_CONTAINER", &c.ResultsContainer)
	str("PROMPT_SOURCE", &c.PromptSource)
	str("PROMPT_FILE", &c.PromptFile)
	str("GEMINI_API_KEY", &c.APIKey)
	str("GEMINI_MODEL", &c.Model)
	str("DATABASE_URL", &c.DatabaseURL)

	for key, dst := range map[string]*int{
		"MAX_WORKERS": &c.MaxWorkers,
		"BATCH_SIZE":  &c.BatchSize,
		"PORT":        &c.Port,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*bool{
		"DISABLE_TAXONOMY_MATCH":      &c.DisableTaxonomyMatch,
		"DISABLE_PAGE_IMAGES":         &c.DisablePageImages,
		"DISABLE_PERIOD_VALIDATION":   &c.DisablePeriodValidation,
		"SKIP_MATCHED_ROW_VALIDATION": &c.SkipMatchedRowValidation,
	} {
		if err := flag(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks field ranges and cross-field requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.StorageBackend == "fs" && c.StorageRoot == "" {
		return fmt.Errorf("config error: 'storage_root' is required for the fs backend")
	}
	if c.PromptSource == PromptSourceDB && c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required when prompts come from the database")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
// Booleans are not merged because unset and false cannot be told apart.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	for _, f := range []struct{ dst, def *string }{
		{&result.StorageBackend, &defaults.StorageBackend},
		{&result.StorageRoot, &defaults.StorageRoot},
		{&result.AzureStorageAccount, &defaults.AzureStorageAccount},
		{&result.TaxonomyContainer, &defaults.TaxonomyContainer},
		{&result.ResultsContainer, &defaults.ResultsContainer},
		{&result.PromptSource, &defaults.PromptSource},
		{&result.PromptFile, &defaults.PromptFile},
		{&result.APIKey, &defaults.APIKey},
		{&result.Model, &defaults.Model},
		{&result.DatabaseURL, &defaults.DatabaseURL},
	} {
		if *f.dst == "" {
			*f.dst = *f.def
		}
	}

	if result.MaxWorkers == 0 {
		result.MaxWorkers = defaults.MaxWorkers
	}
	if result.BatchSize == 0 {
		result.BatchSize = defaults.BatchSize
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	return result
}

// Load reads the optional config file, applies the environment and fills defaults
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}
