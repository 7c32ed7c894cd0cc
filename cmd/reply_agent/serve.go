package main

import (
	"fmt"

	"github.com/jonathan/reply-drafter/internal/config"
	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/server"
	"github.com/jonathan/reply-drafter/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the draft, preview and voice-set endpoints. Requests are authenticated with organization bearer tokens.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT and config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Create missing tables before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if servePort != 0 {
		cfg.Port = servePort
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
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

	if serveMigrate {
		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	generator, err := newGenerator(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer func() { _ = generator.Close() }()

	drafter := drafting.New(drafting.Deps{
		Policy:       pol,
		Samples:      database,
		Settings:     database,
		Entitlements: database,
		Generator:    generator,
		Audit:        database,
		Logger:       logger,
	}, drafterOptions(cfg))

	srv := server.New(server.Config{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   ratelimit.LoadConfig(cfg.RateLimitPerMinute),
		Curation:    curationParams(cfg),
	}, server.Options{
		Drafter: drafter,
		Tokens:  server.NewJWTService(jwtConfig).AsTokenValidator(),
		Health:  database,
		Logger:  logger,
	})

	logger.Info("serving",
		zap.Int("port", cfg.Port),
		zap.String("model", generator.GetModel(modelTier(cfg))),
		zap.String("prompt_version", pol.PromptVersion()),
	)
	return srv.Start(ctx)
}
