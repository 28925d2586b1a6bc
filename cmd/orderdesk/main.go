package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"orderdesk/app"
	"orderdesk/server"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "orderdesk",
		Short:         "Order intake back office: webhook ingestion, CRUD and dashboard",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var opts app.Options
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := server.NewEngine(app.New(opts), server.WithVersion(Version))
			return engine.StartContext(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "Generate demo orders after startup")
	cmd.Flags().IntVar(&opts.SeedCount, "seed-count", 0, "Number of demo orders (defaults to seed.count)")

	return cmd
}

func seedCmd() *cobra.Command {
	var (
		opts  app.Options
		count int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Push generated webhook events through the ingestion pipeline",
		Long: `Generate demo webhook events and process them in-process against
the configured storage. Use storage.driver=sqlite to keep the data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSeed(ctx, cmd, opts, count)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of events (defaults to seed.count)")
	cmd.Flags().Uint64Var(&opts.SeedValue, "rand-seed", 0, "Random seed, 0 picks one from the clock")

	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, opts app.Options, count int) error {
	application := app.New(opts)
	if err := application.LoadConfig(); err != nil {
		return err
	}
	if err := application.SetupDependencies(ctx); err != nil {
		return err
	}
	defer func() { _ = application.Shutdown(context.Background()) }()
	if err := application.StartBackgroundTasks(ctx); err != nil {
		return err
	}

	if count <= 0 {
		count = application.Config().Seed.Count
	}
	report, err := application.Seed(ctx, count)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Seeded %d orders (%d failed)\n", report.Succeeded, report.Failed)
	fmt.Fprintf(out, "  buyers:  %d\n", report.Buyers)
	fmt.Fprintf(out, "  catalog: %d products\n", report.Catalog)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
