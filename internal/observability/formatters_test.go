package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/filing-validator/internal/pipeline"
	"github.com/jonathan/filing-validator/internal/types"
)

func TestPrintTaxonomyMatch(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintTaxonomyMatch(&types.TaxonomyMatch{
		TaxonomyName: "FRC 2023 FRS 101",
		TaxonomyType: types.TaxonomyFRS101,
		Jurisdiction: types.JurisdictionUK,
		MatchedFile:  "FRC-2023-FRS-101.xlsx",
		Score:        7,
	})
	output := buf.String()

	assert.Contains(t, output, "TAXONOMY MATCH")
	assert.Contains(t, output, "FRC 2023 FRS 101")
	assert.Contains(t, output, "FRC-2023-FRS-101.xlsx (score 7)")
}

func TestPrintTaxonomyMatch_NotFound(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintTaxonomyMatch(&types.TaxonomyMatch{TaxonomyName: "Custom", TaxonomyType: "custom", Jurisdiction: "custom"})

	assert.Contains(t, buf.String(), "Reference:     none")
}

func TestPrintTaxonomyMatch_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintTaxonomyMatch(nil)
	assert.Empty(t, buf.String())
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunSummary(&types.PipelineResult{
		RunID:          "run-1",
		ProcessedFiles: []string{"a.xlsx", "b.xlsx", "c.xlsx", "d.xlsx", "e.xlsx", "f.xlsx", "g.xlsx"},
		Errors:         []string{"Error processing blob b.xlsx: missing sheet"},
		OutputFile:     "a-validated-output-2024-03-05T10-20-30.json",
		Status:         types.StatusCompletedWithErrors,
	})
	output := buf.String()

	assert.Contains(t, output, "VALIDATION RUN")
	assert.Contains(t, output, "run-1")
	assert.Contains(t, output, "Processed 7 files")
	assert.Contains(t, output, "... and 2 more")
	assert.NotContains(t, output, "g.xlsx")
	assert.Contains(t, output, "Found 1 errors")
	assert.Contains(t, output, "⚠ Error processing blob b.xlsx")
}

func TestPrintRunSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintErrors_None(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintErrors(nil)
	assert.Contains(t, buf.String(), "NO ERRORS")
}

func TestPrintErrors_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintErrors([]string{strings.Repeat("x", 200)})

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestPrintStep(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	var cb pipeline.ProgressCallback = p.PrintStep
	cb(pipeline.ProgressEvent{Step: "extract", Category: "ingestion", Status: "completed"})
	cb(pipeline.ProgressEvent{Step: "write_output", Category: "output", Status: "failed", Message: "upload refused"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "✓ [ingestion] extract", lines[0])
	assert.Equal(t, "✗ [output] write_output: upload refused", lines[1])
}
