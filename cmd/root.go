// Package cmd implements the gto command-line interface. Commands map
// one-to-one onto registry queries and mutations; everything here is
// boundary code, the engine lives under internal/registry.
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/state"
	"github.com/zjrosen/gto/internal/tracing"
)

var (
	version  = "dev"
	repoPath string
	cfgFile  string
	debug    bool
	jsonOut  bool
	cfg      config.Config

	tracerProvider *tracing.Provider
)

var rootCmd = &cobra.Command{
	Use:   "gto",
	Short: "Git tag ops: turn a git repository into an artifact registry",
	Long: `gto versions artifacts and assigns them to lifecycle stages by
creating annotated git tags in a standard naming scheme. The registry
state lives entirely in the repository: tags plus an optional
artifacts.yaml index file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			if _, err := log.Init(filepath.Join(os.TempDir(), "gto-debug.log")); err == nil {
				log.SetMinLevel(log.LevelDebug)
			}
		} else {
			log.SetEnabled(false)
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}
		var err error
		tracerProvider, err = tracing.NewProvider(cfg.Tracing)
		if err != nil {
			log.ErrorErr(log.CatTrace, "Tracing disabled", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tracerProvider != nil {
			_ = tracerProvider.Shutdown(context.Background())
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "C", ".",
		"path to the git repository")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: <repo>/.gto)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", os.Getenv("GTO_DEBUG") != "",
		"write debug logs")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false,
		"print machine-readable JSON instead of tables")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("version_convention", defaults.VersionConvention)
	viper.SetDefault("emojis", defaults.Emojis)
	viper.SetDefault("index", defaults.Index)
	viper.SetDefault("sort", defaults.Sort)
	viper.SetDefault("versions_per_stage", defaults.VersionsPerStage)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	viper.SetEnvPrefix("gto")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile(filepath.Join(repoPath, config.FileName))
		viper.SetConfigType("yaml")
	}

	// A missing .gto file just means defaults.
	_ = viper.ReadInConfig()
	_ = viper.Unmarshal(&cfg)
}

// openRegistry builds the engine for the selected repository.
func openRegistry() (*registry.Registry, error) {
	return registry.Open(repoPath, cfg)
}

// assembleScope builds the engine and assembles state for the scope.
func assembleScope(ctx context.Context, scope collector.Scope) (*registry.Registry, *state.Registry, error) {
	reg, err := openRegistry()
	if err != nil {
		return nil, nil, err
	}
	st, err := reg.Assemble(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	return reg, st, nil
}

// scopeFromFlags maps the --all-branches/--all-commits flags onto a
// collector scope.
func scopeFromFlags(allBranches, allCommits bool) collector.Scope {
	switch {
	case allCommits:
		return collector.Scope{Kind: collector.ScopeAll}
	case allBranches:
		return collector.Scope{Kind: collector.ScopeBranches}
	default:
		return collector.Scope{Kind: collector.ScopeHead}
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
