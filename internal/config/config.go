// Package config loads and validates the configuration structure the
// core consumes: per-table CSV sources and field schemas, optional
// compression settings, and optional truncation limits.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/pkg/types"
)

// FieldConfig describes one declared field of a table source.
type FieldConfig struct {
	Name       string            `yaml:"name" json:"name"`
	Type       types.LogicalType `yaml:"type" json:"type"`
	Format     string            `yaml:"format,omitempty" json:"format,omitempty"`
	PrimaryKey bool              `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
}

// TableConfig describes one CSV-backed table source.
type TableConfig struct {
	Name           string        `yaml:"name" json:"name"`
	Source         string        `yaml:"source" json:"source"`
	HeadersPresent bool          `yaml:"headers,omitempty" json:"headers,omitempty"`
	Fields         []FieldConfig `yaml:"fields" json:"fields"`
}

// CompressionConfig holds the compression settings read from the
// configuration file and LEECH_COMPRESSION_ENABLED. No encoder consults
// it: STATE and published patches are always written with the raw
// (uncompressed) envelope, whatever Enabled says.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	// Level is codec-specific; 0 selects a codec default. Snappy has no
	// tunable level, so this is carried only for configuration-shape
	// compatibility with codecs that do.
	Level int `yaml:"level,omitempty" json:"level,omitempty"`
}

// TruncateConfig controls the truncator's optional count/age rules.
// Both are optional; their presence enables the corresponding rule.
type TruncateConfig struct {
	MaxBlocks int    `yaml:"max_blocks,omitempty" json:"max_blocks,omitempty"`
	MaxAge    string `yaml:"max_age,omitempty" json:"max_age,omitempty"`
}

// StorageConfig selects and configures the Store backend. Type is
// "local" (default) or "s3"; the S3 fields are only consulted when
// Type is "s3".
type StorageConfig struct {
	Type         string `yaml:"type,omitempty" json:"type,omitempty"`
	Bucket       string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix       string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty" json:"use_path_style,omitempty"`
}

// Config is the validated configuration handed to every core
// operation. Callers own a single *Config instance built at startup;
// the core never reaches for ambient or package-level configuration.
type Config struct {
	WorkDir     string            `yaml:"work_dir" json:"work_dir"`
	Tables      []TableConfig     `yaml:"tables" json:"tables"`
	Compression CompressionConfig `yaml:"compression,omitempty" json:"compression,omitempty"`
	Truncate    TruncateConfig    `yaml:"truncate,omitempty" json:"truncate,omitempty"`
	Storage     StorageConfig     `yaml:"storage,omitempty" json:"storage,omitempty"`
}

// DefaultConfig returns a Config with no tables and no optional
// settings enabled.
func DefaultConfig() *Config {
	return &Config{WorkDir: "."}
}

// Validate checks the rules §6 imposes before the core sees a
// configuration: at least one primary-key field per table, unique
// field names within a table, max-blocks ≥ 1 when present, a
// parseable max-age duration when present.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return errors.NewConfigError(errors.CodeMissingPrimaryKey, "work_dir is required")
	}

	seenTables := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if seenTables[t.Name] {
			return errors.NewConfigError(errors.CodeDuplicateField, "duplicate table name "+t.Name)
		}
		seenTables[t.Name] = true
		if err := t.Validate(); err != nil {
			return err
		}
	}

	if c.Truncate.MaxBlocks != 0 && c.Truncate.MaxBlocks < 1 {
		return errors.NewConfigError(errors.CodeInvalidMaxBlocks, "max_blocks must be >= 1")
	}
	if c.Truncate.MaxAge != "" {
		if _, err := ParseMaxAge(c.Truncate.MaxAge); err != nil {
			return err
		}
	}
	if c.Storage.Type == "s3" && c.Storage.Bucket == "" {
		return errors.NewConfigError(errors.CodeInvalidStorage, "storage.bucket is required when storage.type is s3")
	}
	return nil
}

// Validate checks one table's field declarations.
func (t TableConfig) Validate() error {
	if t.Name == "" {
		return errors.NewConfigError(errors.CodeMissingPrimaryKey, "table name is required")
	}
	seen := make(map[string]bool, len(t.Fields))
	hasPrimaryKey := false
	for _, f := range t.Fields {
		if seen[f.Name] {
			return errors.NewConfigError(errors.CodeDuplicateField,
				"table "+t.Name+": duplicate field name "+f.Name)
		}
		seen[f.Name] = true
		if f.PrimaryKey {
			hasPrimaryKey = true
		}
	}
	if !hasPrimaryKey {
		return errors.NewConfigError(errors.CodeMissingPrimaryKey,
			"table "+t.Name+" declares no primary-key field")
	}
	return nil
}

// Schema builds the table's canonical TableSchema: primary-key fields
// first (in declared order), then non-key fields (in declared order).
func (t TableConfig) Schema() types.TableSchema {
	pk := make([]types.Field, 0, len(t.Fields))
	nonKey := make([]types.Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		field := types.Field{Name: f.Name, Type: f.Type, Format: f.Format, PrimaryKey: f.PrimaryKey}
		if f.PrimaryKey {
			pk = append(pk, field)
		} else {
			nonKey = append(nonKey, field)
		}
	}
	return types.TableSchema{Name: t.Name, Fields: append(pk, nonKey...)}
}

// ResolvedSource returns the table's source path resolved against
// workDir, unless Source is already absolute.
func (t TableConfig) ResolvedSource(workDir string) string {
	if filepath.IsAbs(t.Source) {
		return t.Source
	}
	return filepath.Join(workDir, t.Source)
}

// LoadFromFile reads a YAML or JSON configuration from path, dispatched
// by file extension.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIoError(errors.CodeReadFailed, "read config "+path, err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigError(errors.CodeDuplicateField, "parse YAML config "+path+": "+err.Error())
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigError(errors.CodeDuplicateField, "parse JSON config "+path+": "+err.Error())
		}
	default:
		return nil, errors.NewConfigError(errors.CodeDuplicateField, "unrecognized config extension "+ext)
	}
	return cfg, nil
}

// LoadFromEnv applies LEECH_-prefixed environment variable overrides
// for the fields operators most often override at deploy time: work
// directory, compression, truncation limits, and storage type and
// bucket.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LEECH_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("LEECH_COMPRESSION_ENABLED"); v != "" {
		cfg.Compression.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LEECH_TRUNCATE_MAX_BLOCKS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Truncate.MaxBlocks = n
		}
	}
	if v := os.Getenv("LEECH_TRUNCATE_MAX_AGE"); v != "" {
		cfg.Truncate.MaxAge = v
	}
	if v := os.Getenv("LEECH_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("LEECH_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
}

func parseInt(s string) (int, error) {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0, errors.NewConfigError(errors.CodeInvalidMaxBlocks, "invalid integer "+s)
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
