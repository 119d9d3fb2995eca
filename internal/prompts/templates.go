// Package prompts loads the named prompt templates used for LLM validation.
// Templates can come from the compiled-in defaults, a YAML document in object
// storage, or the live prompt row in Postgres.
package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/filing-validator/internal/schemas"
)

// Template keys
const (
	KeySystemPrompt         = "system_prompt"
	KeyUserPrompt           = "user_prompt"
	KeyTaxonomy             = "taxonomy"
	KeySystemPromptTaxonomy = "system_prompt_taxonomy"
	KeySystemPromptPeriod   = "system_prompt_period_validation"
	KeyUserPromptPeriod     = "user_prompt_period_validation"
)

// RequiredKeys lists the templates every source must provide
var RequiredKeys = []string{
	KeySystemPrompt,
	KeyUserPrompt,
	KeyTaxonomy,
	KeySystemPromptTaxonomy,
	KeySystemPromptPeriod,
	KeyUserPromptPeriod,
}

// Templates maps template names to template text
type Templates map[string]string

// Get returns the named template, or "" when absent
func (t Templates) Get(key string) string {
	return t[key]
}

// Validate checks the templates against the prompt template schema
func (t Templates) Validate() error {
	doc, err := json.Marshal(map[string]string(t))
	if err != nil {
		return &TemplateError{Message: "templates are not encodable", Cause: err}
	}
	if err := schemas.Validate(schemas.PromptTemplates, doc); err != nil {
		return &TemplateError{Missing: t.missing(), Message: "templates failed validation", Cause: err}
	}
	return nil
}

func (t Templates) missing() []string {
	var out []string
	for _, key := range RequiredKeys {
		if strings.TrimSpace(t[key]) == "" {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// Format replaces {{.Key}} placeholders with values from data.
// Unknown placeholders are left in place.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{.%s}}", key), value)
	}
	return result
}
