package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/agents"
	"github.com/joescharf/cr/internal/analyzer"
	"github.com/joescharf/cr/internal/custom"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/review"
	"github.com/joescharf/cr/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cr",
	Short: "Code review pipeline for git diffs",
	Long: `cr reviews git diffs with a pipeline of specialist agents.
It analyzes the diff for risk, dispatches role-scoped reviewers,
grounds every finding in evidence from the changed lines, and
deduplicates the results into one report.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/cr/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "cr")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CR")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "cr")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "cr.db"))
	viper.SetDefault("agents_dir", filepath.Join(defaultConfigDir, "agents.d"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("review.concurrency", 3)
	viper.SetDefault("review.max_retries", 2)
	viper.SetDefault("review.base_delay", "1s")
	viper.SetDefault("review.max_tokens_per_batch", 12000)
	viper.SetDefault("history.enabled", true)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The store is opened lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newProvider creates the Anthropic provider from config/env, or returns nil
// when no API key is configured.
func newProvider() llm.Provider {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewAnthropic(apiKey, viper.GetString("anthropic.model"))
}

// newRunner assembles the review pipeline from config. provider may be nil
// for offline runs.
func newRunner(provider llm.Provider) *review.Runner {
	concurrency := viper.GetInt("review.concurrency")
	maxRetries := viper.GetInt("review.max_retries")
	baseDelay := viper.GetDuration("review.base_delay")
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	r := &review.Runner{
		Provider: provider,
		UI:       ui,
		Analyzer: analyzer.Config{
			MaxTokensPerBatch: viper.GetInt("review.max_tokens_per_batch"),
			Concurrency:       concurrency,
			MaxRetries:        maxRetries,
			BaseDelay:         baseDelay,
		},
		Agents: agents.Config{
			Concurrency: concurrency,
			MaxRetries:  maxRetries,
			BaseDelay:   baseDelay,
		},
		Custom: custom.Config{
			MaxRetries: maxRetries,
			BaseDelay:  baseDelay,
		},
	}

	if viper.GetBool("history.enabled") {
		if s, err := getStore(); err == nil {
			r.Store = s
		} else {
			ui.Warning("review history disabled: %v", err)
		}
	}
	return r
}
