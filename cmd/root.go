// Package cmd wires the cardforge commands: augment, cleanup, stats,
// export and watch all share the configuration and runtime built here.
package cmd

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/cardforge/internal/config"
	"github.com/zjrosen/cardforge/internal/engine"
	"github.com/zjrosen/cardforge/internal/log"
	"github.com/zjrosen/cardforge/internal/registry"
	"github.com/zjrosen/cardforge/internal/state"
	"github.com/zjrosen/cardforge/internal/tracing"
)

var (
	version   = "dev"
	cfgFile   string
	debugMode bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:     "cardforge",
	Short:   "Incremental augmentation pipeline for card scans",
	Long: `cardforge derives augmented training images from labeled card scans.

Source files named <set>_<number>[_<variant>].<ext> are copied into a
canonical output tree and expanded into randomized variants. Runs are
incremental: unchanged sources are skipped based on content hashes.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .cardforge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"write debug logs to .cardforge/debug.log")
	rootCmd.PersistentFlags().String("source", "", "source image directory")
	rootCmd.PersistentFlags().String("output", "", "output directory")

	_ = viper.BindPFlag("source_dir", rootCmd.PersistentFlags().Lookup("source"))
	_ = viper.BindPFlag("output_dir", rootCmd.PersistentFlags().Lookup("output"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("source_dir", defaults.SourceDir)
	viper.SetDefault("output_dir", defaults.OutputDir)
	viper.SetDefault("augmentation.count", defaults.Augmentation.Count)
	viper.SetDefault("augmentation.types", defaults.Augmentation.Types)
	viper.SetDefault("augmentation.quality", defaults.Augmentation.Quality)
	viper.SetDefault("augmentation.seed", defaults.Augmentation.Seed)
	viper.SetDefault("augmentation.backend", defaults.Augmentation.Backend)
	viper.SetDefault("watch.debounce", defaults.Watch.Debounce)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .cardforge/config.yaml (current directory)
		// 2. ~/.config/cardforge/config.yaml (user config)
		if _, err := os.Stat(".cardforge/config.yaml"); err == nil {
			viper.SetConfigFile(".cardforge/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "cardforge"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .cardforge/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := filepath.Join(".cardforge", "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setup enables debug logging when requested and validates the merged
// configuration before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	if debugMode || os.Getenv("CARDFORGE_DEBUG") != "" {
		logPath := filepath.Join(".cardforge", "debug.log")
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err == nil {
			if _, err := log.Init(logPath); err == nil {
				log.SetEnabled(true)
			}
		}
	}
	return cfg.Validate()
}

// runtime bundles the collaborators a pipeline command needs.
type runtime struct {
	cfg      config.Config
	store    *state.Store
	db       *sql.DB
	repo     *registry.Repository
	provider *tracing.Provider
	eng      *engine.Engine
}

// newRuntime opens the registry, loads the state index and builds the
// engine from the active configuration.
func newRuntime() (*runtime, error) {
	db, err := registry.NewDB(cfg.RegistryDBPath())
	if err != nil {
		return nil, err
	}

	tcfg := cfg.Tracing
	if tcfg.Enabled && tcfg.Exporter == "file" && tcfg.FilePath == "" {
		tcfg.FilePath = filepath.Join(".cardforge", "trace.jsonl")
	}
	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      tcfg.Enabled,
		Exporter:     tcfg.Exporter,
		FilePath:     tcfg.FilePath,
		OTLPEndpoint: tcfg.OTLPEndpoint,
		SampleRate:   tcfg.SampleRate,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store := state.Load(cfg.StateFilePath())
	repo := registry.NewRepository(db)

	eng, err := engine.New(cfg, store,
		engine.WithRepository(repo),
		engine.WithTracer(provider.Tracer()),
	)
	if err != nil {
		db.Close()
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		store:    store,
		db:       db,
		repo:     repo,
		provider: provider,
		eng:      eng,
	}, nil
}

func (r *runtime) close(ctx context.Context) {
	r.eng.Close()
	_ = r.db.Close()
	_ = r.provider.Shutdown(ctx)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
