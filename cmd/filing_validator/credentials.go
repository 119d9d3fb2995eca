package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/filing-validator/internal/config"
	"github.com/jonathan/filing-validator/internal/server"
)

var (
	hashCost     int
	tokenSubject string
	tokenTTL     time.Duration
)

var hashAPIKeyCmd = &cobra.Command{
	Use:   "hash-api-key [KEY]",
	Short: "Print the bcrypt hash of an API key for API_KEY_HASH",
	Long: `Print the bcrypt hash of an API key. The key is read from the argument, or from
the first line of stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashAPIKey,
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue a bearer token signed with JWT_SECRET",
	RunE:  runIssueToken,
}

func init() {
	hashAPIKeyCmd.Flags().IntVar(&hashCost, "cost", 12, "bcrypt cost (10-14)")
	issueTokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject (required)")
	issueTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = issueTokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(hashAPIKeyCmd)
	rootCmd.AddCommand(issueTokenCmd)
}

// readKey returns the key argument or the first stdin line
func readKey(args []string, in io.Reader) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("no API key given")
	}
	return key, nil
}

func runHashAPIKey(cmd *cobra.Command, args []string) error {
	key, err := readKey(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	hasher, err := config.NewAPIKeyHasher(hashCost)
	if err != nil {
		return err
	}
	hash, err := hasher.HashAPIKey(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func runIssueToken(cmd *cobra.Command, _ []string) error {
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}
	if jwtCfg == nil {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
