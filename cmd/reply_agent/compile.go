package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/observability"
	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Print the compiled generation instruction for a request",
	Long:  "Resolves the default voice (plus optional past replies from --samples) and prints the instruction that would be sent to the provider. Nothing is generated and no database is used.",
	RunE:  runCompile,
}

var (
	compileInputFile   string
	compileSamplesFile string
	compileJSON        bool
)

func init() {
	compileCmd.Flags().StringVarP(&compileInputFile, "in", "i", "", "Path to draft request JSON file, or - for stdin (required)")
	compileCmd.Flags().StringVar(&compileSamplesFile, "samples", "", "JSON array of past replies, most recent first")
	compileCmd.Flags().BoolVar(&compileJSON, "json", false, "Print the compiled request as JSON")

	if err := compileCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}

	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, _ []string) error {
	req, err := readDraftRequest(compileInputFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	pol, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	deps := drafting.Deps{Policy: pol, Logger: logger}
	if compileSamplesFile != "" {
		samples, err := loadSampleFile(compileSamplesFile, time.Now())
		if err != nil {
			return err
		}
		deps.Samples = samples
	}

	preview, err := drafting.New(deps, drafterOptions(cfg)).Preview(cmd.Context(), uuid.Nil, req)
	if err != nil {
		return fmt.Errorf("failed to compile request: %w", err)
	}

	if cfg.Verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintCompiledRequest(preview.Request)
	}
	if compileJSON {
		return writeJSON("", cmd.OutOrStdout(), preview)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), preview.Request.Text()+"\n")
	return err
}
