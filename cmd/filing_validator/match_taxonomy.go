package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/filing-validator/internal/observability"
	"github.com/jonathan/filing-validator/internal/taxonomy"
)

var (
	matchContainer  string
	matchCandidates []string
)

var matchTaxonomyCmd = &cobra.Command{
	Use:   "match-taxonomy NAME",
	Short: "Classify a taxonomy name and pick the best reference workbook",
	Long: `Classify a declared taxonomy name and select the best reference workbook.

Candidates come from --candidate flags, or from listing the taxonomy container
when none are given.

Example:
  filing_validator match-taxonomy "FRC 2023 FRS 102"`,
	Args: cobra.ExactArgs(1),
	RunE: runMatchTaxonomy,
}

func init() {
	matchTaxonomyCmd.Flags().StringVar(&matchContainer, "container", "", "Taxonomy container (default from config)")
	matchTaxonomyCmd.Flags().StringArrayVar(&matchCandidates, "candidate", nil, "Candidate file name (repeatable)")
	rootCmd.AddCommand(matchTaxonomyCmd)
}

func runMatchTaxonomy(cmd *cobra.Command, args []string) error {
	candidates := matchCandidates
	if len(candidates) == 0 {
		ctx := commandContext(cmd)
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		container := matchContainer
		if container == "" {
			container = a.cfg.TaxonomyContainer
		}
		blobs, err := a.store.List(ctx, container)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", container, err)
		}
		for _, b := range blobs {
			candidates = append(candidates, b.Name)
		}
	}

	match := taxonomy.Match(args[0], candidates)
	if verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintTaxonomyMatch(&match)
	}
	out, err := json.MarshalIndent(match, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !match.Found() {
		return fmt.Errorf("no reference workbook matched %q", args[0])
	}
	return nil
}
