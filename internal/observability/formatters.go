// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/filing-validator/internal/pipeline"
	"github.com/jonathan/filing-validator/internal/pipeline/steps"
	"github.com/jonathan/filing-validator/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

//nolint:errcheck // terminal output; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintStep outputs one progress line. It can be passed as a pipeline.ProgressCallback.
//
//nolint:errcheck // terminal output; errors are not recoverable
func (p *Printer) PrintStep(event pipeline.ProgressEvent) {
	marker := "·"
	switch event.Status {
	case steps.StatusCompleted:
		marker = "✓"
	case steps.StatusFailed:
		marker = "✗"
	case steps.StatusSkipped:
		marker = "-"
	}
	line := fmt.Sprintf("%s [%s] %s", marker, event.Category, event.Step)
	if event.Message != "" {
		line += ": " + event.Message
	}
	fmt.Fprintln(p.out, line)
}

// PrintTaxonomyMatch outputs the classification and selected reference workbook.
func (p *Printer) PrintTaxonomyMatch(match *types.TaxonomyMatch) {
	if match == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Declared:      %s\n", match.TaxonomyName))
	sb.WriteString(fmt.Sprintf("Type:          %s\n", match.TaxonomyType))
	sb.WriteString(fmt.Sprintf("Jurisdiction:  %s\n", match.Jurisdiction))
	if match.Found() {
		sb.WriteString(fmt.Sprintf("Reference:     %s (score %d)", match.MatchedFile, match.Score))
	} else {
		sb.WriteString("Reference:     none")
	}

	p.printBox("TAXONOMY MATCH", sb.String())
}

// PrintRunSummary outputs the processed files, output document and status of a run.
func (p *Printer) PrintRunSummary(result *types.PipelineResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	if result.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run:     %s\n", result.RunID))
	}
	sb.WriteString(fmt.Sprintf("Status:  %s\n", result.Status))
	sb.WriteString(fmt.Sprintf("Output:  %s\n", result.OutputFile))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Processed %d files:\n", len(result.ProcessedFiles)))
	count := min(len(result.ProcessedFiles), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", result.ProcessedFiles[i]))
	}
	if len(result.ProcessedFiles) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(result.ProcessedFiles)-maxItemsToShow))
	}

	p.printBox("VALIDATION RUN", strings.TrimSuffix(sb.String(), "\n"))
	p.PrintErrors(result.Errors)
}

// PrintErrors outputs per-blob and per-stage errors collected during a run.
//
//nolint:errcheck // terminal output; errors are not recoverable
func (p *Printer) PrintErrors(errs []string) {
	if len(errs) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO ERRORS")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d errors:\n\n", len(errs)))
	for i, e := range errs {
		sb.WriteString(fmt.Sprintf("⚠ %s", e))
		if i < len(errs)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("ERRORS", sb.String())
}
