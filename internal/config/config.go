// Package config provides configuration types and defaults for gto.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/version"
)

// FileName is the registry config file, looked up at the repo root.
const FileName = ".gto"

// DefaultIndex is the in-tree artifact index file.
const DefaultIndex = "artifacts.yaml"

// Sort selects how "greatest version" queries order candidates.
type Sort string

const (
	// SortByTime orders by event timestamp.
	SortByTime Sort = "by_time"
	// SortBySemVer orders by the version algebra.
	SortBySemVer Sort = "by_semver"
)

// Config holds all configuration options for gto.
type Config struct {
	// Types is the allow-list of artifact types. Empty allows any.
	Types []string `mapstructure:"types"`

	// Stages is the allow-list of stage names. Empty allows any.
	Stages []string `mapstructure:"stages"`

	// VersionConvention is "numbers" or "semver".
	VersionConvention string `mapstructure:"version_convention"`

	// Emojis renders decorative glyphs in output. Boundary-only, the
	// core ignores it.
	Emojis bool `mapstructure:"emojis"`

	// Index is the path of the artifact index file, relative to the
	// repo root.
	Index string `mapstructure:"index"`

	// Sort is "by_time" or "by_semver".
	Sort string `mapstructure:"sort"`

	// Kanban allows at most one stage per version: assigning a stage to
	// a version displaces the version's other stages in the computed view.
	Kanban bool `mapstructure:"kanban"`

	// VersionsPerStage caps how many versions may hold a stage
	// concurrently. 1 (default) keeps the single-holder behavior,
	// -1 means unlimited.
	VersionsPerStage int `mapstructure:"versions_per_stage"`

	// Tracing configures the optional OpenTelemetry pipeline.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active. Default: false.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp". Default: "file".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0). Default: 1.0.
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		VersionConvention: string(version.Numbers),
		Emojis:            true,
		Index:             DefaultIndex,
		Sort:              string(SortByTime),
		VersionsPerStage:  1,
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// DefaultTracesFilePath returns the default path for trace file export,
// or empty string if the home dir is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gto", "traces", "traces.jsonl")
}

// Convention returns the typed version convention.
func (c Config) Convention() version.Convention {
	if c.VersionConvention == string(version.SemVer) {
		return version.SemVer
	}
	return version.Numbers
}

// SortOrder returns the typed sort order.
func (c Config) SortOrder() Sort {
	if c.Sort == string(SortBySemVer) {
		return SortBySemVer
	}
	return SortByTime
}

// IndexPath returns the configured index file path, defaulting to
// artifacts.yaml.
func (c Config) IndexPath() string {
	if c.Index == "" {
		return DefaultIndex
	}
	return c.Index
}

// CheckStage validates a stage name against the name rule and the
// allow-list.
func (c Config) CheckStage(stage string) error {
	if !event.ValidName(stage) {
		return errs.New(errs.KindValidation, "invalid stage name %q", stage).WithInput(stage)
	}
	if len(c.Stages) == 0 {
		return nil
	}
	for _, s := range c.Stages {
		if s == stage {
			return nil
		}
	}
	return errs.New(errs.KindValidation, "stage %q is not allowed, expected one of %v", stage, c.Stages).WithInput(stage)
}

// CheckType validates an artifact type against the allow-list.
func (c Config) CheckType(t string) error {
	if t == "" || len(c.Types) == 0 {
		return nil
	}
	for _, allowed := range c.Types {
		if allowed == t {
			return nil
		}
	}
	return errs.New(errs.KindValidation, "type %q is not allowed, expected one of %v", t, c.Types).WithInput(t)
}

// CheckName validates an artifact name against the name rule.
func (c Config) CheckName(name string) error {
	if !event.ValidName(name) {
		return errs.New(errs.KindValidation,
			"invalid artifact name %q: names must be non-empty without whitespace or @ # ! :", name).WithInput(name)
	}
	return nil
}

// Validate checks the whole configuration for errors.
func Validate(c Config) error {
	switch c.VersionConvention {
	case "", string(version.Numbers), string(version.SemVer):
	default:
		return errs.New(errs.KindConfig, "version_convention must be %q or %q, got %q",
			version.Numbers, version.SemVer, c.VersionConvention).WithInput(c.VersionConvention)
	}
	switch c.Sort {
	case "", string(SortByTime), string(SortBySemVer):
	default:
		return errs.New(errs.KindConfig, "sort must be %q or %q, got %q",
			SortByTime, SortBySemVer, c.Sort).WithInput(c.Sort)
	}
	for _, s := range c.Stages {
		if !event.ValidName(s) {
			return errs.New(errs.KindConfig, "invalid stage name %q in allow-list", s).WithInput(s)
		}
	}
	if c.VersionsPerStage < -1 {
		return errs.New(errs.KindConfig, "versions_per_stage must be >= -1, got %d", c.VersionsPerStage)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return errs.New(errs.KindConfig, "tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}
	switch tracing.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return errs.New(errs.KindConfig, "tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
	}
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return errs.New(errs.KindConfig, "tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return errs.New(errs.KindConfig, "tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string
// with comments.
func DefaultConfigTemplate() string {
	return `# gto configuration

# Allow-list of artifact types. Empty allows any type.
# types: [model, dataset]

# Allow-list of stage names. Empty allows any stage.
# stages: [dev, staging, prod]

# Version convention: "numbers" (v1, v2, ...) or "semver" (v1.2.3)
version_convention: numbers

# Render emojis in table output
emojis: true

# Path to the artifact index file
index: artifacts.yaml

# Greatest-version ordering: "by_time" or "by_semver"
sort: by_time

# Allow at most one stage per version
# kanban: false

# How many versions may hold a stage concurrently (-1 = unlimited)
# versions_per_stage: 1

# Tracing configuration
# tracing:
#   enabled: false
#   exporter: file        # none, file, stdout, otlp
#   file_path: ~/.config/gto/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with
// default settings and comments.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
