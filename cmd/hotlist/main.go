package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hotlist",
		Short:         "Discover breakout videos from small channels, once a day",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(daemonCmd())
	root.AddCommand(listCmd())
	root.AddCommand(datesCmd())
	root.AddCommand(trendsCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(purgeCmd())

	return root
}

func runCmd() *cobra.Command {
	var (
		date       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), date, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to rank, YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the run summary as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API; runs are triggered by an external cron",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, false)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func daemonCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start the HTTP API with the built-in daily scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, true)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		opts       listOptions
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the hot list of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&opts.date, "date", "", "day, YYYY-MM-DD (default: today)")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max items")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "items to skip")
	cmd.Flags().StringVar(&opts.sort, "sort", "score", "score, velocity, performance or views")
	cmd.Flags().Int64Var(&opts.minSubs, "min-subs", 0, "minimum subscribers")
	cmd.Flags().Int64Var(&opts.maxSubs, "max-subs", 0, "maximum subscribers (0: no limit)")
	cmd.Flags().Float64Var(&opts.minPerf, "min-perf", 0, "minimum performance rate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func datesCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List days with ranked data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDates(cmd.Context(), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max days (0: all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func trendsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Compare the two most recent ranked days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrends(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func purgeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete snapshots older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd.Context(), days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: from config)")
	return cmd
}
