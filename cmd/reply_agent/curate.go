package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/observability"
	"github.com/spf13/cobra"
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Show the curated voice set for an organization",
	Long:  "Reads an organization's recent replies from the database, scores them and prints the bounded, diverse reference set the drafter would use.",
	RunE:  runCurate,
}

var (
	curateOrgID      string
	curateOutputFile string
	curateMaxItems   int
)

func init() {
	curateCmd.Flags().StringVar(&curateOrgID, "org", "", "Organization ID (required)")
	curateCmd.Flags().StringVarP(&curateOutputFile, "out", "o", "", "Path to output JSON file (default stdout)")
	curateCmd.Flags().IntVar(&curateMaxItems, "max-items", 0, "Maximum samples to select (overrides config)")

	if err := curateCmd.MarkFlagRequired("org"); err != nil {
		panic(fmt.Sprintf("failed to mark org flag as required: %v", err))
	}

	rootCmd.AddCommand(curateCmd)
}

func runCurate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	orgID, err := uuid.Parse(curateOrgID)
	if err != nil {
		return fmt.Errorf("invalid --org: %w", err)
	}

	pol, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	database, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	params := curationParams(cfg)
	if curateMaxItems > 0 {
		params.MaxItems = curateMaxItems
	}

	drafter := drafting.New(drafting.Deps{Policy: pol, Samples: database, Logger: logger}, drafterOptions(cfg))
	set := drafter.VoiceSet(ctx, orgID, params)

	if cfg.Verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintCuratedSet(set)
	}
	return writeJSON(curateOutputFile, cmd.OutOrStdout(), set)
}
