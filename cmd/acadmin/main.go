// acadmin manages the Redis index out of band: bulk (re)indexing of an
// autocompleter's fixtures, bulk teardown, and cache purges.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ara818/autocompleter/internal/autocomplete"
	"github.com/ara818/autocompleter/internal/config"
	"github.com/ara818/autocompleter/internal/fixture"
	redisx "github.com/ara818/autocompleter/internal/redis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath    string
	skipDeleteOld bool
)

func main() {
	root := &cobra.Command{
		Use:           "acadmin",
		Short:         "Manage the autocomplete Redis index",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", config.Version, config.GitCommit, config.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "acserver.yaml", "path to config file")

	store := &cobra.Command{
		Use:   "store <autocompleter>",
		Short: "Index every item of the autocompleter's providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexer(func(ctx context.Context, ix *autocomplete.Indexer) error {
				return ix.StoreAll(ctx, args[0], !skipDeleteOld)
			})
		},
	}
	store.Flags().BoolVar(&skipDeleteOld, "skip-delete-old", false, "do not retract stale postings of changed items (faster, requires a clean index)")

	remove := &cobra.Command{
		Use:   "remove <autocompleter>",
		Short: "Delete every key of the autocompleter's providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexer(func(ctx context.Context, ix *autocomplete.Indexer) error {
				return ix.RemoveAll(ctx, args[0])
			})
		},
	}

	clearCache := &cobra.Command{
		Use:   "clear-cache <autocompleter>",
		Short: "Purge the autocompleter's cached query results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexer(func(ctx context.Context, ix *autocomplete.Indexer) error {
				return ix.ClearCache(ctx, args[0])
			})
		},
	}

	root.AddCommand(store, remove, clearCache)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "acadmin: %v\n", err)
		os.Exit(1)
	}
}

// withIndexer wires config, logger, Redis and the registry, then runs fn
// against the indexer.
func withIndexer(fn func(context.Context, *autocomplete.Indexer) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger()
	defer log.Sync()
	log = log.Named("acadmin")

	global, err := cfg.GlobalSettings()
	if err != nil {
		return err
	}
	registry, err := autocomplete.NewRegistry(global)
	if err != nil {
		return err
	}
	for providerName, oc := range cfg.Providers {
		o, err := oc.Override()
		if err != nil {
			return fmt.Errorf("provider %s: %w", providerName, err)
		}
		registry.SetProviderOverride(providerName, o)
	}
	for name, paths := range cfg.Fixtures {
		providers, err := fixture.LoadAll(paths)
		if err != nil {
			return fmt.Errorf("autocompleter %s: %w", name, err)
		}
		for _, p := range providers {
			registry.Register(name, p)
		}
	}

	rdb := redisx.NewClient(cfg.RedisAddr, cfg.RedisDB, log)
	defer rdb.Close()

	start := time.Now()
	if err := fn(context.Background(), autocomplete.NewIndexer(log, rdb.Client, registry, cfg.KeyRoot)); err != nil {
		return err
	}
	log.Info("done", zap.Duration("took", time.Since(start)))
	return nil
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
