// Package steps defines the stages of a validation run and the dependencies
// between them.
package steps

import (
	"fmt"
)

// Step statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
	StatusBlocked    = "blocked"
)

// Step categories
const (
	CategoryIngestion  = "ingestion"
	CategoryExtraction = "extraction"
	CategoryMatching   = "matching"
	CategoryValidation = "validation"
	CategoryOutput     = "output"
)

// Step names
const (
	ValidateRequest  = "validate_request"
	LoadPrompts      = "load_prompts"
	ListTaxonomy     = "list_taxonomy"
	ExtractBlobs     = "extract_blobs"
	ValidateTaxonomy = "validate_taxonomy"
	ValidatePeriods  = "validate_periods"
	MatchTaxonomy    = "match_taxonomy"
	ValidateRows     = "validate_rows"
	WriteOutput      = "write_output"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Category     string
	Dependencies []string
	Optional     []string
}

// Order lists every step in execution order
var Order = []string{
	ValidateRequest,
	LoadPrompts,
	ListTaxonomy,
	ExtractBlobs,
	ValidateTaxonomy,
	ValidatePeriods,
	MatchTaxonomy,
	ValidateRows,
	WriteOutput,
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	ValidateRequest: {
		Name:     ValidateRequest,
		Category: CategoryIngestion,
	},
	LoadPrompts: {
		Name:         LoadPrompts,
		Category:     CategoryIngestion,
		Dependencies: []string{ValidateRequest},
	},
	ListTaxonomy: {
		Name:         ListTaxonomy,
		Category:     CategoryIngestion,
		Dependencies: []string{ValidateRequest},
	},
	ExtractBlobs: {
		Name:         ExtractBlobs,
		Category:     CategoryExtraction,
		Dependencies: []string{ValidateRequest},
	},
	ValidateTaxonomy: {
		Name:         ValidateTaxonomy,
		Category:     CategoryValidation,
		Dependencies: []string{LoadPrompts, ExtractBlobs},
	},
	ValidatePeriods: {
		Name:         ValidatePeriods,
		Category:     CategoryValidation,
		Dependencies: []string{LoadPrompts, ExtractBlobs},
	},
	MatchTaxonomy: {
		Name:         MatchTaxonomy,
		Category:     CategoryMatching,
		Dependencies: []string{ListTaxonomy, ExtractBlobs},
	},
	ValidateRows: {
		Name:         ValidateRows,
		Category:     CategoryValidation,
		Dependencies: []string{LoadPrompts, ExtractBlobs},
		Optional:     []string{MatchTaxonomy},
	},
	WriteOutput: {
		Name:         WriteOutput,
		Category:     CategoryOutput,
		Dependencies: []string{ValidateRows},
		Optional:     []string{ValidateTaxonomy, ValidatePeriods},
	},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// ValidateDependencies checks that every required dependency of stepName has
// completed, given the statuses recorded so far in a run.
func ValidateDependencies(statuses map[string]string, stepName string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if statuses[dep] != StatusCompleted {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Step: stepName, MissingDependencies: missing}
	}
	return nil
}

// AvailableSteps returns the steps not yet started whose dependencies are met, in Order
func AvailableSteps(statuses map[string]string) []string {
	var available []string
	for _, name := range Order {
		if s, ok := statuses[name]; ok && s != StatusPending {
			continue
		}
		if ValidateDependencies(statuses, name) == nil {
			available = append(available, name)
		}
	}
	return available
}

// BlockedSteps returns the steps not yet started whose dependencies are unmet, in Order
func BlockedSteps(statuses map[string]string) []string {
	var blocked []string
	for _, name := range Order {
		if s, ok := statuses[name]; ok && s != StatusPending {
			continue
		}
		if ValidateDependencies(statuses, name) != nil {
			blocked = append(blocked, name)
		}
	}
	return blocked
}
