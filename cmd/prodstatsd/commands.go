package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/xtxerr/prodstats/internal/server"
	"github.com/xtxerr/prodstats/internal/validation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp(cfg)
		defer a.Close()

		srv := server.New(server.Config{
			Listen:       cfg.Server.Listen,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			Warmup:       cfg.Server.LoadOnStart,
		}, a.cache, a.engine)

		return srv.Run(ctx)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache and snapshot state without loading",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		return printJSON(a.cache.Info())
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached dataset and snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		if err := a.cache.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := cfg.Dump()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var (
	statsThreshold string
	statsLimit     string
)

// statsQueries maps the stats subcommand argument to an engine query.
var statsQueries = map[string]func(ctx context.Context, a *app) (any, error){
	"category": func(ctx context.Context, a *app) (any, error) {
		return a.engine.CategoryStats(ctx)
	},
	"outliers": func(ctx context.Context, a *app) (any, error) {
		t, err := validation.Threshold(statsThreshold)
		if err != nil {
			return nil, err
		}
		return a.engine.ZScoreOutliers(ctx, t)
	},
	"high": func(ctx context.Context, a *app) (any, error) {
		n, err := validation.Limit(statsLimit)
		if err != nil {
			return nil, err
		}
		return a.engine.HighVariability(ctx, n)
	},
	"low": func(ctx context.Context, a *app) (any, error) {
		n, err := validation.Limit(statsLimit)
		if err != nil {
			return nil, err
		}
		return a.engine.LowVariability(ctx, n)
	},
	"global": func(ctx context.Context, a *app) (any, error) {
		return a.engine.GlobalStats(ctx)
	},
	"distribution": func(ctx context.Context, a *app) (any, error) {
		return a.engine.CategoryDistribution(ctx)
	},
	"summary": func(ctx context.Context, a *app) (any, error) {
		return a.engine.Summary(ctx)
	},
}

func statsNames() []string {
	names := make([]string, 0, len(statsQueries))
	for name := range statsQueries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var statsCmd = &cobra.Command{
	Use:   "stats <query>",
	Short: "Load the dataset and print one statistics query as JSON",
	Long:  "Queries: " + strings.Join(statsNames(), ", "),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, ok := statsQueries[args[0]]
		if !ok {
			return fmt.Errorf("unknown query %q (want one of %s)", args[0], strings.Join(statsNames(), ", "))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp(cfg)
		defer a.Close()

		if err := a.cache.EnsureReady(ctx); err != nil {
			return err
		}
		res, err := query(ctx, a)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsThreshold, "threshold", "", "z-score threshold for outliers (default 1.75)")
	statsCmd.Flags().StringVar(&statsLimit, "limit", "", "result limit for high/low (default 20)")
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}
