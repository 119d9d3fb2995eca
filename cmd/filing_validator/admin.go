package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/filing-validator/internal/prompts"
)

var promptVersion string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the run history and prompt tables",
	RunE:  runMigrate,
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage validation prompt templates",
}

var promptsPublishCmd = &cobra.Command{
	Use:   "publish FILE",
	Short: "Store a YAML prompt document as the live prompt version",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsPublish,
}

var promptsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load templates from the configured source and list their keys",
	RunE:  runPromptsCheck,
}

func init() {
	promptsPublishCmd.Flags().StringVar(&promptVersion, "version", "", "Version label (required)")
	_ = promptsPublishCmd.MarkFlagRequired("version")

	promptsCmd.AddCommand(promptsPublishCmd)
	promptsCmd.AddCommand(promptsCheckCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(promptsCmd)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.database == nil {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if err := a.database.Migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("cli: migrations applied")
	return nil
}

func runPromptsPublish(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	templates, err := prompts.ParseYAML(data)
	if err != nil {
		return err
	}
	if err := templates.Validate(); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.database == nil {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if err := a.database.SavePromptVersion(ctx, promptVersion, templates); err != nil {
		return err
	}
	a.logger.Info("cli: prompt version published",
		zap.String("version", promptVersion),
		zap.Int("templates", len(templates)),
	)
	return nil
}

func runPromptsCheck(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.promptStore()
	if err != nil {
		return err
	}
	templates, err := store.Load(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d templates\n", a.cfg.PromptSource, len(keys))
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d chars)\n", k, len(templates[k]))
	}
	return nil
}
