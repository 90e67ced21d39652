// Package loader provides multi-source configuration loading
package loader

import (
	"sort"

	"folio-core/internal/config/schema"
	"folio-core/internal/config/source"
	"folio-core/internal/config/validator"
	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
)

// EnvPrefix is the default environment variable prefix
const EnvPrefix = "FOLIO"

// Loader loads configuration from multiple sources in priority order
type Loader struct {
	sources []source.Source
}

// NewLoader creates a new Loader
func NewLoader() *Loader {
	return &Loader{
		sources: make([]source.Source, 0),
	}
}

// AddSource adds a configuration source
func (l *Loader) AddSource(s source.Source) {
	l.sources = append(l.sources, s)
}

// Load loads configuration from all sources in priority order
// Lower priority sources are loaded first, then higher priority sources override
func (l *Loader) Load() (*schema.Root, error) {
	if len(l.sources) == 0 {
		return nil, coreerrors.New(coreerrors.CodeInvalidParam, "no configuration sources registered")
	}

	sorted := make([]source.Source, len(l.sources))
	copy(sorted, l.sources)
	sort.Stable(source.ByPriority(sorted))

	cfg := &schema.Root{}
	for _, s := range sorted {
		corelog.Debugf("Loading configuration from source: %s (priority %d)", s.Name(), s.Priority())
		if err := s.LoadInto(cfg); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError,
				"failed to load configuration from source %s", s.Name())
		}
	}

	return cfg, nil
}

// LoadAndValidate loads configuration and runs the default validation rules
func (l *Loader) LoadAndValidate() (*schema.Root, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}
	if result := validator.ValidateConfig(cfg); !result.IsValid() {
		return nil, coreerrors.New(coreerrors.CodeConfigError, result.Error())
	}
	return cfg, nil
}

// LoaderBuilder helps build a Loader with common configurations
type LoaderBuilder struct {
	loader     *Loader
	prefix     string
	configFile string
	overrides  *source.CLIOverrides
}

// NewLoaderBuilder creates a new LoaderBuilder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{
		loader: NewLoader(),
		prefix: EnvPrefix,
	}
}

// WithPrefix sets the environment variable prefix
func (b *LoaderBuilder) WithPrefix(prefix string) *LoaderBuilder {
	b.prefix = prefix
	return b
}

// WithConfigFile sets the configuration file path
func (b *LoaderBuilder) WithConfigFile(path string) *LoaderBuilder {
	b.configFile = path
	return b
}

// WithOverrides sets command-line overrides
func (b *LoaderBuilder) WithOverrides(o source.CLIOverrides) *LoaderBuilder {
	b.overrides = &o
	return b
}

// Build creates the configured Loader
func (b *LoaderBuilder) Build() *Loader {
	b.loader.AddSource(source.NewDefaultSource())

	if configFile := source.FindConfigFile(b.configFile); configFile != "" {
		b.loader.AddSource(source.NewYAMLSource(configFile))
		corelog.Debugf("Using config file: %s", configFile)
	}

	b.loader.AddSource(source.NewEnvSource(b.prefix))

	if b.overrides != nil {
		b.loader.AddSource(source.NewCLISource(*b.overrides))
	}

	return b.loader
}

// Load is a convenience function that builds a loader, loads and validates
func Load(configFile string, overrides source.CLIOverrides) (*schema.Root, error) {
	return NewLoaderBuilder().
		WithConfigFile(configFile).
		WithOverrides(overrides).
		Build().
		LoadAndValidate()
}
