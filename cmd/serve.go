package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/api"
	"github.com/sells-group/deep-research/internal/config"
	"github.com/sells-group/deep-research/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initResearch(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Pricing edits in the config file apply without a restart.
		watching, err := config.Watch(configFile, func(c *config.Config) {
			p := pricingFrom(c)
			env.Pricing.Set(p)
			zap.L().Info("pricing reloaded",
				zap.Float64("per_search", p.TavilyPerSearch),
				zap.Float64("per_1k_tokens", p.LLMPer1KTokens),
			)
		})
		if err != nil {
			zap.L().Warn("config watch disabled", zap.Error(err))
		} else if watching {
			zap.L().Info("watching config file for pricing changes")
		}

		collector := monitoring.NewCollector(env.Store)
		checker := monitoring.NewChecker(collector, env.Alerter, cfg.Monitoring)
		go checker.Run(ctx)

		srv := api.NewServer(ctx, api.Deps{
			Runner:   env.Controller,
			Store:    env.Store,
			Keyword:  env.Keyword,
			Pricing:  env.Pricing,
			Metrics:  collector,
			Lookback: cfg.Monitoring.LookbackWindowHours,
		}, cfg.Server)

		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
