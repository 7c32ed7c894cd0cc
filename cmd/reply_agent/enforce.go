package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/enforcement"
	"github.com/jonathan/reply-drafter/internal/observability"
	"github.com/spf13/cobra"
)

var enforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Run the enforcement pipeline over a draft",
	Long:  "Reads a raw draft from stdin (or --in) and prints the text after every enforcement stage has run. With --trace the per-stage output is printed to stderr.",
	Args:  cobra.NoArgs,
	RunE:  runEnforce,
}

var (
	enforceInputFile        string
	enforceRating           int
	enforceReview           string
	enforceBudget           int
	enforceAllowExclamation bool
	enforceSignature        string
	enforceTrace            bool
)

func init() {
	enforceCmd.Flags().StringVarP(&enforceInputFile, "in", "i", "-", "Path to raw draft text, or - for stdin")
	enforceCmd.Flags().IntVar(&enforceRating, "rating", 5, "Review rating 1-5")
	enforceCmd.Flags().StringVar(&enforceReview, "review", "", "Review text (drives the sentence budget and excuse removal)")
	enforceCmd.Flags().IntVar(&enforceBudget, "budget", 0, "Sentence budget (0 derives it from --review)")
	enforceCmd.Flags().BoolVar(&enforceAllowExclamation, "allow-exclamation", false, "Keep the first exclamation mark")
	enforceCmd.Flags().StringVar(&enforceSignature, "signature", "", "Signature appended on its own line")
	enforceCmd.Flags().BoolVar(&enforceTrace, "trace", false, "Print the output of every stage to stderr")

	rootCmd.AddCommand(enforceCmd)
}

func runEnforce(cmd *cobra.Command, _ []string) error {
	if enforceRating < 1 || enforceRating > 5 {
		return fmt.Errorf("--rating must be between 1 and 5, got %d", enforceRating)
	}

	var (
		raw []byte
		err error
	)
	if enforceInputFile == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(enforceInputFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read draft: %w", err)
	}

	pol, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	in := enforcement.Input{
		Rating:           enforceRating,
		ReviewText:       enforceReview,
		SentenceBudget:   enforceBudget,
		AllowExclamation: enforceAllowExclamation,
	}
	if sig := strings.TrimSpace(enforceSignature); sig != "" {
		in.Signature = &sig
	}

	result, steps := drafting.New(drafting.Deps{Policy: pol, Logger: logger}, drafterOptions(cfg)).Enforce(string(raw), in)

	if enforceTrace || cfg.Verbose {
		printer := observability.NewPrinter(cmd.ErrOrStderr())
		printer.PrintTrace(steps, result)
	}

	_, err = io.WriteString(cmd.OutOrStdout(), result.Text+"\n")
	return err
}
