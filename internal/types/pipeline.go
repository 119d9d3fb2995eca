package types

// Pipeline statuses reported to callers
const (
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
)

// Request is the input to one validation run
type Request struct {
	Blobs         []BlobRef `json:"blobs" validate:"required,min=1"`
	SelectedDates []any     `json:"selectedDates,omitempty"`
}

// PipelineResult is the summary returned to the caller and the shape of the HTTP response
type PipelineResult struct {
	RunID          string   `json:"runId,omitempty"`
	ProcessedFiles []string `json:"processedFiles"`
	Errors         []string `json:"errors"`
	OutputFile     string   `json:"outputFile"`
	Status         string   `json:"status"`
}

// StatusFor returns the overall status for a set of accumulated errors
func StatusFor(errs []string) string {
	if len(errs) == 0 {
		return StatusCompleted
	}
	return StatusCompletedWithErrors
}
