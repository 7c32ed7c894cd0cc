package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/observability"
	"github.com/spf13/cobra"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft one reply end to end",
	Long: `Draft a reply for the review in a request JSON file using Gemini.

With --org the organization's stored samples, settings and voice override are
read from DATABASE_URL and the draft is audited. Without it the default voice
is used and nothing touches the database.`,
	RunE: runDraft,
}

var (
	draftInputFile  string
	draftOutputFile string
	draftOrgID      string
	draftAPIKey     string
)

func init() {
	draftCmd.Flags().StringVarP(&draftInputFile, "in", "i", "", "Path to draft request JSON file, or - for stdin (required)")
	draftCmd.Flags().StringVarP(&draftOutputFile, "out", "o", "", "Path to output JSON file (default stdout)")
	draftCmd.Flags().StringVar(&draftOrgID, "org", "", "Organization ID for stored voice and settings")
	draftCmd.Flags().StringVar(&draftAPIKey, "api-key", "", "Gemini API key (overrides GEMINI_API_KEY env var)")

	if err := draftCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}

	rootCmd.AddCommand(draftCmd)
}

func runDraft(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	req, err := readDraftRequest(draftInputFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	orgID := uuid.Nil
	if draftOrgID != "" {
		orgID, err = uuid.Parse(draftOrgID)
		if err != nil {
			return fmt.Errorf("invalid --org: %w", err)
		}
	}

	pol, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	generator, err := newGenerator(ctx, cfg, draftAPIKey)
	if err != nil {
		return err
	}
	defer func() { _ = generator.Close() }()

	deps := drafting.Deps{
		Policy:    pol,
		Generator: generator,
		Logger:    logger,
	}
	if orgID != uuid.Nil {
		database, err := connectDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		deps.Samples = database
		deps.Settings = database
		deps.Audit = database
	}

	drafter := drafting.New(deps, drafterOptions(cfg))
	reply, err := drafter.Draft(ctx, orgID, req)
	if err != nil {
		return fmt.Errorf("failed to draft reply: %w", err)
	}

	if cfg.Verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintDraft(reply)
	}

	return writeJSON(draftOutputFile, cmd.OutOrStdout(), reply.Response())
}
