package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/datanooblol/leonidas/internal/app"
	"github.com/datanooblol/leonidas/internal/config"
)

func main() {
	var logLevel string

	loadConfig := func() *config.Config {
		cfg := config.LoadConfig()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		return cfg
	}

	serve := func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// Handle SIGINT/SIGTERM for graceful shutdown
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.NewApp(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("startup failed: %w", err)
		}
		defer application.Close()

		log.Info("leonidas is running; database connected and bootstrapped")
		if err := application.Run(ctx); err != nil {
			return err
		}
		log.Info("shut down cleanly")
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           "leonidas",
		Short:         "Data analysis chat backend over uploaded CSV and Parquet files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the file profiling workers",
		RunE:  serve,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List the models this deployment can route chat turns to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			specs, err := config.LoadModelCatalog(cfg.ModelsFile)
			if err != nil {
				return err
			}
			sort.Slice(specs, func(i, j int) bool { return specs[i].Key < specs[j].Key })

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Key", "Provider", "Model ID", "Default"})
			for _, s := range specs {
				def := ""
				if s.Key == cfg.DefaultModel {
					def = "*"
				}
				t.AppendRow(table.Row{s.Key, s.Provider, s.ModelID, def})
			}
			t.Render()
			return nil
		},
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
