package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// DirName is the name of both the global (~/.lpkunpack) and the
// per-directory (.lpkunpack) configuration directories.
const DirName = ".lpkunpack"

// Report formats.
const (
	ReportMarkdown = "md"
	ReportHTML     = "html"
	ReportNone     = "none"
)

// Config holds application configuration.
type Config struct {
	// OutputDir is where extracted archives are written. Each archive gets
	// a subdirectory named after it. Empty means the working directory.
	OutputDir string `json:"output_dir,omitempty"`

	// SecretsFile overrides the workshop secret document. By default
	// config.json next to each archive is used.
	SecretsFile string `json:"secrets_file,omitempty"`

	// Jobs is the number of archives extracted in parallel.
	Jobs int `json:"jobs,omitempty"`

	// LogLevel is one of debug, info, warn, error. The -v flag overrides it.
	LogLevel string `json:"log_level,omitempty"`

	// LedgerDisabled turns off the run ledger database.
	LedgerDisabled bool `json:"ledger_disabled,omitempty"`

	// ReportFormat selects the per-archive report: md, html or none.
	ReportFormat string `json:"report_format,omitempty"`

	// ExtraVerbatimExts are copied unchanged by the fallback extraction,
	// in addition to .json, .mlve and .txt.
	ExtraVerbatimExts []string `json:"extra_verbatim_exts,omitempty"`

	// StrictVariants rejects unknown container types instead of trying
	// the legacy layout.
	StrictVariants bool `json:"strict_variants,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Jobs:         1,
		LogLevel:     "warn",
		ReportFormat: ReportMarkdown,
	}
}

// Validate checks enumerated and numeric fields.
func (c *Config) Validate() error {
	switch c.ReportFormat {
	case ReportMarkdown, ReportHTML, ReportNone:
	default:
		return fmt.Errorf("report_format must be one of md, html, none (got %q)", c.ReportFormat)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1 (got %d)", c.Jobs)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelWarn, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lpkunpack.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both the global directory and the
// nearest .lpkunpack/config.json found by walking upward from startDir.
// The directory config takes precedence for scalar values; arrays are
// merged (deduplicated). Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .lpkunpack/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
// Comments and trailing commas are accepted.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.OutputDir = firstString(overlay.OutputDir, base.OutputDir)
	result.SecretsFile = firstString(overlay.SecretsFile, base.SecretsFile)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)
	result.ReportFormat = firstString(overlay.ReportFormat, base.ReportFormat)

	result.Jobs = overlay.Jobs
	if result.Jobs == 0 {
		result.Jobs = base.Jobs
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Booleans: overlay wins if true, else base
	result.LedgerDisabled = base.LedgerDisabled || overlay.LedgerDisabled
	result.StrictVariants = base.StrictVariants || overlay.StrictVariants

	// Arrays: merge and deduplicate
	result.ExtraVerbatimExts = mergeStringSlice(base.ExtraVerbatimExts, overlay.ExtraVerbatimExts)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
