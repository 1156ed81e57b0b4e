package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Domusgpt/parserator-sub000/internal/architect"
	"github.com/Domusgpt/parserator-sub000/internal/extractor"
	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/parse"
	"github.com/Domusgpt/parserator-sub000/internal/server"
	"github.com/Domusgpt/parserator-sub000/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the parsing HTTP API",
	Long: `Start the HTTP server exposing POST /v1/parse, GET /v1/usage and
GET /healthz.

Callers authenticate with an X-API-Key header (or bearer token); requests
without a key are admitted under the anonymous tier, rate-limited per
client IP.

Examples:
  # Serve with in-memory usage counters
  parserator serve --addr :8080

  # Persist usage counters and load API keys
  parserator serve --usage-db /var/lib/parserator/usage.db \
      --api-keys keys.yaml --tiers tiers.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("usage-db", "", "SQLite file for usage counters (default: in-memory)")
	flags.String("tiers", "", "YAML file overriding the built-in tier limits")
	flags.String("api-keys", "", "YAML file mapping API keys to accounts")
	flags.Int("cache-size", 100, "max cached search plans")
	flags.Float64("min-confidence", 0.5, "log results below this combined confidence")

	addProviderFlags(serveCmd)

	_ = viper.BindPFlag("addr", flags.Lookup("addr"))
	_ = viper.BindPFlag("usage_db", flags.Lookup("usage-db"))
}

// keyEntry is one record of the --api-keys file.
type keyEntry struct {
	Account string `yaml:"account"`
	Tier    string `yaml:"tier"`
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := buildProvider(ctx)
	if err != nil {
		logError("%v", err)
		return err
	}

	cacheSize, _ := cmd.Flags().GetInt("cache-size")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	svc := parse.NewService(
		architect.New(provider),
		extractor.New(provider),
		parse.WithCacheSize(cacheSize),
		parse.WithMinOverallConfidence(minConfidence),
	)

	store, closeStore, err := buildStore(viper.GetString("usage_db"))
	if err != nil {
		logError("%v", err)
		return err
	}
	defer closeStore()

	governorOpts := []usage.GovernorOption{}
	if tiersPath, _ := cmd.Flags().GetString("tiers"); tiersPath != "" {
		tiers, err := usage.LoadTiers(tiersPath)
		if err != nil {
			logError("%v", err)
			return err
		}
		governorOpts = append(governorOpts, usage.WithTiers(tiers))
		logger.Info("tier overrides loaded", "path", tiersPath, "tiers", len(tiers))
	}
	governor := usage.NewGovernor(store, governorOpts...)

	resolver, err := buildResolver(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}

	cfg := server.DefaultConfig()
	cfg.Addr = viper.GetString("addr")
	srv := server.New(cfg, svc, governor, resolver)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		logError("server failed: %v", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func buildStore(path string) (usage.Store, func(), error) {
	if path == "" {
		logger.Info("using in-memory usage counters")
		return usage.NewMemoryStore(), func() {}, nil
	}
	store, err := usage.OpenSQLiteStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening usage database: %w", err)
	}
	logger.Info("usage counters persisted", "path", path)
	return store, func() { _ = store.Close() }, nil
}

func buildResolver(cmd *cobra.Command) (server.KeyResolver, error) {
	path, _ := cmd.Flags().GetString("api-keys")
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- operator-specified config file
	if err != nil {
		return nil, fmt.Errorf("reading api key file: %w", err)
	}
	var entries map[string]keyEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing api key file: %w", err)
	}

	keys := make(map[string]server.Subject, len(entries))
	for apiKey, entry := range entries {
		keys[apiKey] = server.Subject{ID: entry.Account, Tier: entry.Tier}
	}
	logger.Info("api keys loaded", "path", path, "count", len(keys))
	return server.NewStaticKeyResolver(keys), nil
}
