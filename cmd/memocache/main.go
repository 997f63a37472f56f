package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentuity/go-memocache/env"
	"github.com/agentuity/go-memocache/logger"
	"github.com/agentuity/go-memocache/tui"
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "memocache",
		Short:         "Exercise the in-process memoizing cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")

	bench := &cobra.Command{
		Use:   "bench",
		Short: "Drive concurrent memoized lookups and report cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadBenchConfig(cmd)
			if err != nil {
				return err
			}
			var floor []logger.LogLevel
			if cfg.Debug {
				floor = append(floor, logger.LevelDebug)
			}
			log := env.NewLogger(cmd, floor...)
			result, err := runBench(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if tui.HasTTY {
				fmt.Fprintln(out, tui.Table([]string{"metric", "value"}, result.rows()))
			} else {
				for _, row := range result.rows() {
					fmt.Fprintf(out, "%s\t%s\n", row[0], row[1])
				}
			}
			if result.Errors > 0 {
				fmt.Fprintln(out, tui.Warning("%d requests failed", result.Errors))
			} else {
				fmt.Fprintln(out, tui.Success("%d producer calls for %d requests", result.Invocations, result.Requests))
			}
			return nil
		},
	}
	addBenchFlags(bench)

	root.AddCommand(bench, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, tui.Warning("%v", err))
		os.Exit(1)
	}
}
