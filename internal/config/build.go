package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/lut"
)

// DefaultConfigPath is the path to the canonical build defaults file.
const DefaultConfigPath = "config/build.defaults.json"

// BuildConfig holds the settings shared by the LUT tools. Every field is
// optional; the Get* methods supply defaults for omitted values, and
// command-line flags take precedence over both.
type BuildConfig struct {
	// Orchestration
	Workers       *int    `json:"workers,omitempty"`
	OracleTimeout *string `json:"oracle_timeout,omitempty"` // duration string like "5m"
	OracleRetries *int    `json:"oracle_retries,omitempty"`
	RetryBackoff  *string `json:"retry_backoff,omitempty"`

	// Oracle transport: one of oracle_command or oracle_url selects an
	// external model. The built-in synthetic model must be requested
	// explicitly with "oracle": "synthetic".
	Oracle        *string  `json:"oracle,omitempty"`
	OracleCommand *string  `json:"oracle_command,omitempty"`
	OracleArgs    []string `json:"oracle_args,omitempty"`
	OracleURL     *string  `json:"oracle_url,omitempty"`

	// Storage
	DataRoot *string `json:"data_root,omitempty"`

	// GridOverrides replaces built-in axes: mode -> dimension -> value
	// list, either "min:max:step" or "v1,v2,...".
	GridOverrides map[string]map[string]string `json:"grid_overrides,omitempty"`
}

// Oracle kinds selected by the configuration.
const (
	OracleSynthetic = "synthetic"
	OracleCommand   = "command"
	OracleHTTP      = "http"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

// EmptyBuildConfig returns a BuildConfig with every field unset.
func EmptyBuildConfig() *BuildConfig {
	return &BuildConfig{}
}

// LoadBuildConfig loads a BuildConfig from a JSON file.
// The file must have a .json extension and be no larger than 1MB.
// Fields omitted from the JSON file keep their defaults.
func LoadBuildConfig(path string) (*BuildConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBuildConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it is set. An empty path falls back to
// DefaultConfigPath if that file exists, and to an empty configuration
// otherwise.
func LoadOrDefault(path string) (*BuildConfig, error) {
	if path != "" {
		return LoadBuildConfig(path)
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return LoadBuildConfig(DefaultConfigPath)
	}
	return EmptyBuildConfig(), nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *BuildConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/
	}
	for _, path := range candidates {
		if cfg, err := LoadBuildConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *BuildConfig) Validate() error {
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.OracleRetries != nil && *c.OracleRetries < 0 {
		return fmt.Errorf("oracle_retries must be non-negative, got %d", *c.OracleRetries)
	}
	for name, v := range map[string]*string{"oracle_timeout": c.OracleTimeout, "retry_backoff": c.RetryBackoff} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}
	if c.OracleCommand != nil && *c.OracleCommand != "" && c.OracleURL != nil && *c.OracleURL != "" {
		return fmt.Errorf("oracle_command and oracle_url are mutually exclusive")
	}
	if c.OracleCommand == nil && len(c.OracleArgs) > 0 {
		return fmt.Errorf("oracle_args given without oracle_command")
	}
	if c.Oracle != nil {
		if err := c.validateOracleKind(*c.Oracle); err != nil {
			return err
		}
	}
	if _, err := c.GetGridOverrides(); err != nil {
		return err
	}
	return nil
}

// GetWorkers returns the worker pool size, defaulting to the CPU count.
func (c *BuildConfig) GetWorkers() int {
	if c.Workers == nil {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetOracleTimeout returns the per-evaluation timeout. Zero disables it.
func (c *BuildConfig) GetOracleTimeout() time.Duration {
	return parseDurationOr(c.OracleTimeout, 10*time.Minute)
}

// GetRetryBackoff returns the delay before the first retry.
func (c *BuildConfig) GetRetryBackoff() time.Duration {
	return parseDurationOr(c.RetryBackoff, 500*time.Millisecond)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetOracleRetries returns how many times a failed evaluation is retried.
func (c *BuildConfig) GetOracleRetries() int {
	if c.OracleRetries == nil {
		return 2
	}
	return *c.OracleRetries
}

func (c *BuildConfig) validateOracleKind(kind string) error {
	hasCommand := c.OracleCommand != nil && *c.OracleCommand != ""
	hasURL := c.OracleURL != nil && *c.OracleURL != ""
	switch kind {
	case OracleCommand:
		if !hasCommand {
			return fmt.Errorf("oracle %q requires oracle_command", kind)
		}
	case OracleHTTP:
		if !hasURL {
			return fmt.Errorf("oracle %q requires oracle_url", kind)
		}
	case OracleSynthetic:
		if hasCommand || hasURL {
			return fmt.Errorf("oracle %q cannot be combined with oracle_command or oracle_url", kind)
		}
	default:
		return fmt.Errorf("unknown oracle %q (want %s, %s or %s)", kind, OracleCommand, OracleHTTP, OracleSynthetic)
	}
	return nil
}

// GetOracleKind reports which oracle the configuration selects, or "" when
// none is configured.
func (c *BuildConfig) GetOracleKind() string {
	switch {
	case c.Oracle != nil && *c.Oracle != "":
		return *c.Oracle
	case c.OracleCommand != nil && *c.OracleCommand != "":
		return OracleCommand
	case c.OracleURL != nil && *c.OracleURL != "":
		return OracleHTTP
	default:
		return ""
	}
}

// GetOracleCommand returns the external model command and its arguments.
func (c *BuildConfig) GetOracleCommand() (string, []string) {
	if c.OracleCommand == nil {
		return "", nil
	}
	return *c.OracleCommand, append([]string(nil), c.OracleArgs...)
}

// GetOracleURL returns the radiative-transfer service endpoint.
func (c *BuildConfig) GetOracleURL() string {
	if c.OracleURL == nil {
		return ""
	}
	return *c.OracleURL
}

// GetDataRoot returns the directory under which LUTs and iLUTs live.
func (c *BuildConfig) GetDataRoot() string {
	if c.DataRoot == nil || *c.DataRoot == "" {
		return "data"
	}
	return *c.DataRoot
}

// GetGridOverrides parses the grid override table.
func (c *BuildConfig) GetGridOverrides() (grid.Overrides, error) {
	if len(c.GridOverrides) == 0 {
		return nil, nil
	}
	out := make(grid.Overrides, len(c.GridOverrides))

	modes := make([]string, 0, len(c.GridOverrides))
	for m := range c.GridOverrides {
		modes = append(modes, m)
	}
	sort.Strings(modes)

	for _, m := range modes {
		mode, err := lut.ParseMode(m)
		if err != nil {
			return nil, fmt.Errorf("grid_overrides: %w", err)
		}
		dims := make(map[lut.Dimension][]float64, len(c.GridOverrides[m]))
		for name, spec := range c.GridOverrides[m] {
			d, err := lut.ParseDimension(name)
			if err != nil {
				return nil, fmt.Errorf("grid_overrides.%s: %w", m, err)
			}
			vals, err := grid.ParseValueList(spec)
			if err != nil {
				return nil, fmt.Errorf("grid_overrides.%s.%s: %w", m, name, err)
			}
			dims[d] = vals
		}
		out[mode] = dims
	}
	return out, nil
}
