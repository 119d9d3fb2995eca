package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/filing-validator/internal/observability"
	"github.com/jonathan/filing-validator/internal/pipeline"
	"github.com/jonathan/filing-validator/internal/types"
)

var (
	validateBlobs     []string
	validateContainer string
	validateDates     []string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the validation pipeline once and print the summary",
	Long: `Run the validation pipeline over one or more blobs and print the run summary as JSON.

Example:
  filing_validator validate --blob acme-2024.xlsx --blob acme-2024.html --container silver`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringArrayVarP(&validateBlobs, "blob", "b", nil, "Blob name to validate (repeatable)")
	validateCmd.Flags().StringVarP(&validateContainer, "container", "c", "silver", "Container holding the blobs")
	validateCmd.Flags().StringArrayVar(&validateDates, "date", nil, "Selected reporting period (repeatable)")
	_ = validateCmd.MarkFlagRequired("blob")
	rootCmd.AddCommand(validateCmd)
}

// buildRequest turns flag values into a pipeline request
func buildRequest(blobs []string, container string, dates []string) types.Request {
	req := types.Request{Blobs: make([]types.BlobRef, 0, len(blobs))}
	for _, name := range blobs {
		req.Blobs = append(req.Blobs, types.BlobRef{Name: name, Container: container})
	}
	for _, d := range dates {
		req.SelectedDates = append(req.SelectedDates, d)
	}
	return req
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}

	var printer *observability.Printer
	if a.cfg.Verbose {
		printer = observability.NewPrinter(cmd.ErrOrStderr())
		ctx = pipeline.WithProgress(ctx, printer.PrintStep)
	}

	result, err := p.Run(ctx, buildRequest(validateBlobs, validateContainer, validateDates))
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if printer != nil {
		printer.PrintRunSummary(result)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
