// Package cmd provides the command-line interface for Spinneret.
// It handles flag parsing, configuration loading, and engine wiring.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masato-kano/spinneret/internal/config"
	"github.com/masato-kano/spinneret/internal/crawler"
	"github.com/masato-kano/spinneret/internal/logging"
	"github.com/masato-kano/spinneret/internal/storage"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

var rootCmd = &cobra.Command{
	Use:   "spinneret [URLs...]",
	Short: "A polite, resumable web crawl engine",
	Long: `Spinneret crawls from a set of seed URLs with per-host politeness
limits, atomic deduplication, and retry with exponential backoff.
Crawl state is persisted so interrupted sessions can resume.`,
	Args: cobra.ArbitraryArgs,
	RunE: runCrawl,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI.
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./spinneret.yml)")
	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	rootCmd.Flags().IntP("concurrency", "c", 8, "Number of concurrent workers")
	rootCmd.Flags().Int("host-parallel", 2, "Maximum concurrent requests per host")
	rootCmd.Flags().DurationP("delay", "r", 500*time.Millisecond, "Minimum interval between requests to one host")
	rootCmd.Flags().DurationP("timeout", "t", 30*time.Second, "HTTP request timeout")
	rootCmd.Flags().Int("max-retries", 4, "Attempts per URL before giving up")
	rootCmd.Flags().Int("max-depth", 0, "Maximum link depth from seeds (0=unlimited)")
	rootCmd.Flags().IntP("limit", "l", 0, "Stop after N pages (0=unlimited)")
	rootCmd.Flags().StringP("user-agent", "u", "Spinneret/1.0", "HTTP User-Agent header")
	rootCmd.Flags().Bool("ignore-robots", false, "Ignore robots.txt rules")
	rootCmd.Flags().Bool("follow-external-hosts", false, "Follow links to hosts outside the seed set")

	rootCmd.Flags().String("auth-type", "", "Authentication type: 'basic' or 'bearer'")
	rootCmd.Flags().String("auth-username", "", "Username for basic authentication")
	rootCmd.Flags().String("auth-password", "", "Password for basic authentication")
	rootCmd.Flags().String("auth-token", "", "Bearer token for the Authorization header")

	rootCmd.Flags().StringSlice("include-patterns", []string{}, "Regex patterns for URLs to include")
	rootCmd.Flags().StringSlice("exclude-patterns", []string{}, "Regex patterns for URLs to exclude")

	rootCmd.Flags().StringP("database", "d", "./spinneret.db", "Path to SQLite database file ('' disables persistence)")
	rootCmd.Flags().String("redis-addr", "", "Redis address for the dedup index (overrides SQLite dedup)")

	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().String("log-file", "", "Log file path (console only when empty)")

	bindings := []struct {
		viperKey string
		flagName string
	}{
		{"concurrency", "concurrency"},
		{"host_parallelism", "host-parallel"},
		{"request_delay", "delay"},
		{"request_timeout", "timeout"},
		{"max_retries", "max-retries"},
		{"max_depth", "max-depth"},
		{"limit", "limit"},
		{"user_agent", "user-agent"},
		{"ignore_robots", "ignore-robots"},
		{"follow_external_hosts", "follow-external-hosts"},
		{"include_patterns", "include-patterns"},
		{"exclude_patterns", "exclude-patterns"},
		{"database_path", "database"},
		{"redis_addr", "redis-addr"},
		{"log_level", "log-level"},
		{"log_file", "log-file"},
		{"auth.type", "auth-type"},
		{"auth.basic.username", "auth-username"},
		{"auth.basic.password", "auth-password"},
		{"auth.bearer.token", "auth-token"},
	}
	for _, bind := range bindings {
		if err := viper.BindPFlag(bind.viperKey, rootCmd.Flags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads the config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("spinneret")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SPN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func showCurrentConfig(cfg *config.Config) error {
	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	fmt.Printf("# Current Spinneret configuration\n")
	fmt.Printf("# Config file search path: ./spinneret.yml, environment prefix: SPN_\n\n")
	fmt.Print(string(yamlData))
	return nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg := config.Default()
	cfg.SeedURLs = args
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if showConfig {
		return showCurrentConfig(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Setup(logging.Options{
		Level:      logging.ParseLevel(cfg.LogLevel),
		FilePath:   cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		Console:    true,
	}); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if len(cfg.SeedURLs) == 0 && cfg.DatabasePath == "" {
		return fmt.Errorf("no URLs provided and no database to resume from\nUsage: %s [URLs...]", os.Args[0])
	}

	var opts []crawler.Option
	var store *storage.Store

	if cfg.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		var err error
		store, err = storage.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, crawler.WithSink(store), crawler.WithDedup(store))
	}

	if cfg.RedisAddr != "" {
		dedup := storage.NewRedisDedup(cfg.RedisAddr, "spinneret:")
		defer func() { _ = dedup.Close() }()
		opts = append(opts, crawler.WithDedup(dedup))
	}

	engine, err := crawler.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}

	// With no seeds, pick up whatever an earlier session left unfinished.
	if len(cfg.SeedURLs) == 0 && store != nil && cfg.RedisAddr == "" {
		pending, err := store.PendingTasks()
		if err != nil {
			return fmt.Errorf("failed to load pending tasks: %w", err)
		}
		if len(pending) == 0 {
			fmt.Println("No URLs provided and nothing to resume. Exiting.")
			return nil
		}
		restored := engine.Resume(pending)
		fmt.Printf("Resuming crawl: %d pending URLs from %s\n", restored, cfg.DatabasePath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = engine.Run(ctx, cfg.SeedURLs)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
