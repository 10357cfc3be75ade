// Package config loads duckql settings from files, the environment and
// .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/marshal"
)

// AppFs is the filesystem configuration is read from.
var AppFs = afero.NewOsFs()

// Supported drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite3"
)

// Config holds the application configuration.
type Config struct {
	Driver           string
	Path             string
	UUIDAsString     bool
	TableMappings    map[string]TableMapping
	Engine           map[string]any
	FallbackReader   string
	StrictSources    bool
	PlaceholderStyle string
	StatementCache   int
	Debug            bool

	// File is the config file that was read, if any.
	File string
}

// Load reads configuration from AppFs. An explicit path must exist;
// otherwise .duckql.{yaml,json,toml} is searched for in the working
// directory and the home directory.
func Load(path string) (*Config, error) {
	return LoadFs(AppFs, path)
}

// LoadFs is Load over an explicit filesystem.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName(".duckql")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "duckql"))
		}
	}

	// Environment variables override file values.
	v.SetEnvPrefix("DUCKQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("driver", DriverDuckDB)
	v.SetDefault("path", ":memory:")
	v.SetDefault("placeholder_style", "dollar")
	v.SetDefault("uuid_as_string", false)
	v.SetDefault("strict_sources", false)
	v.SetDefault("statement_cache", 0)
	v.SetDefault("debug", false)

	if err := loadDotEnv(fs); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Driver:           v.GetString("driver"),
		Path:             v.GetString("path"),
		UUIDAsString:     v.GetBool("uuid_as_string"),
		Engine:           v.GetStringMap("engine"),
		FallbackReader:   v.GetString("fallback_reader"),
		StrictSources:    v.GetBool("strict_sources"),
		PlaceholderStyle: v.GetString("placeholder_style"),
		StatementCache:   v.GetInt("statement_cache"),
		Debug:            v.GetBool("debug"),
		File:             v.ConfigFileUsed(),
	}
	if p, err := homedir.Expand(cfg.Path); err == nil {
		cfg.Path = p
	}

	cfg.TableMappings = make(map[string]TableMapping)
	for name, raw := range v.GetStringMap("table_mappings") {
		m, err := parseMapping(name, raw)
		if err != nil {
			return nil, err
		}
		if m.Source, err = homedir.Expand(m.Source); err != nil {
			return nil, err
		}
		cfg.TableMappings[name] = m
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv applies .env without overriding the environment, then
// .env.local with override.
func loadDotEnv(fs afero.Fs) error {
	for _, f := range []struct {
		name     string
		override bool
	}{{".env", false}, {".env.local", true}} {
		file, err := fs.Open(f.name)
		if err != nil {
			continue
		}
		vars, err := godotenv.Parse(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		for k, val := range vars {
			if _, set := os.LookupEnv(k); set && !f.override {
				continue
			}
			if err := os.Setenv(k, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks the configuration shape.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverDuckDB, DriverSQLite:
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if _, err := compiler.ParsePlaceholderStyle(c.PlaceholderStyle); err != nil {
		return err
	}
	if c.StatementCache < 0 {
		return fmt.Errorf("statement_cache must not be negative, got %d", c.StatementCache)
	}
	for name, m := range c.TableMappings {
		if strings.TrimSpace(name) == "" {
			return errors.New("table mapping with empty name")
		}
		if strings.TrimSpace(m.Source) == "" {
			return fmt.Errorf("table mapping %s has no source", name)
		}
		if _, _, err := m.SourceOptions(); err != nil {
			return fmt.Errorf("table mapping %s: %w", name, err)
		}
	}
	return nil
}

// MappingNames returns the table mapping names in sorted order.
func (c *Config) MappingNames() []string {
	names := make([]string, 0, len(c.TableMappings))
	for name := range c.TableMappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EngineOptions renders the engine pass-through settings as strings.
func (c *Config) EngineOptions() map[string]string {
	out := make(map[string]string, len(c.Engine))
	for k, v := range c.Engine {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// CompilerOptions returns the compiler settings.
func (c *Config) CompilerOptions() ([]compiler.Option, error) {
	style, err := compiler.ParsePlaceholderStyle(c.PlaceholderStyle)
	if err != nil {
		return nil, err
	}
	opts := []compiler.Option{compiler.WithPlaceholder(style)}
	if c.FallbackReader != "" {
		opts = append(opts, compiler.WithFallbackReader(c.FallbackReader))
	}
	if c.StrictSources {
		opts = append(opts, compiler.WithStrictSources())
	}
	if c.Driver == DriverSQLite {
		opts = append(opts, compiler.WithPlaceholder(compiler.Question))
	}
	return opts, nil
}

// Marshaller returns a marshaller for the configured engine.
func (c *Config) Marshaller() *marshal.Marshaller {
	return marshal.New(marshal.Options{
		UUIDAsString: c.UUIDAsString,
		TextFraming:  c.Driver == DriverSQLite,
	})
}
