// Package config loads kbsync settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"bioknowledge/kbsync/internal/kb/wikibase"
	"bioknowledge/kbsync/internal/reload"
)

// Backends a run can talk to.
const (
	BackendWikibase = "wikibase"
	BackendLocal    = "local"
)

// FileName is the config file looked for when walking up from the working
// directory.
const FileName = "kbsync.yaml"

// Config captures every kbsync setting.
type Config struct {
	Backend     string          `yaml:"backend"`
	LogMode     string          `yaml:"log_mode"`
	MetricsFile string          `yaml:"metrics_file"`
	Wikibase    wikibase.Config `yaml:"wikibase"`
	Local       LocalConfig     `yaml:"local"`
	Neo4j       reload.Config   `yaml:"neo4j"`
	Sync        SyncConfig      `yaml:"sync"`
}

// LocalConfig configures the SQLite knowledge base.
type LocalConfig struct {
	Path                 string `yaml:"path"`
	MaxStatementsPerEdit int    `yaml:"max_statements_per_edit"`
}

// SyncConfig holds run flags that can also be set per invocation.
type SyncConfig struct {
	Force    bool `yaml:"force"`
	Simulate bool `yaml:"simulate"`
	Reload   bool `yaml:"reload"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Backend:  BackendWikibase,
		LogMode:  "dev",
		Wikibase: wikibase.DefaultConfig(),
		Local:    LocalConfig{Path: "kbsync.db"},
		Neo4j: reload.Config{
			URI:       "bolt://localhost:7687",
			User:      "neo4j",
			Wipe:      true,
			BatchSize: reload.DefaultBatchSize,
		},
	}
}

// Load discovers the config file, decodes it over the defaults and applies
// KBSYNC_* environment overrides. It returns the file used, or "" if none.
func Load(flagPath string) (Config, string, error) {
	cfg := Default()
	path, err := Discover(flagPath)
	if err != nil {
		return cfg, "", err
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, path, err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, path, nil
}

// Discover finds the config file using priority: env > flag > walk-up > XDG.
// No file at all is not an error.
func Discover(flagPath string) (string, error) {
	// 1. Environment variable
	if envPath := strings.TrimSpace(os.Getenv("KBSYNC_CONFIG")); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("KBSYNC_CONFIG file %q not found", envPath)
		}
		return envPath, nil
	}

	// 2. CLI flag
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("config not found at --config path: %s", flagPath)
		}
		return flagPath, nil
	}

	// 3. Walk up from CWD
	if dir, err := os.Getwd(); err == nil {
		for {
			candidate := filepath.Join(dir, FileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 4. XDG fallback
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".config")
		}
	}
	if base != "" {
		candidate := filepath.Join(base, "kbsync", FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %q: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	str := map[string]*string{
		"KBSYNC_BACKEND":             &cfg.Backend,
		"KBSYNC_LOG_MODE":            &cfg.LogMode,
		"KBSYNC_METRICS_FILE":        &cfg.MetricsFile,
		"KBSYNC_WIKIBASE_API_URL":    &cfg.Wikibase.APIURL,
		"KBSYNC_WIKIBASE_SPARQL_URL": &cfg.Wikibase.SPARQLURL,
		"KBSYNC_WIKIBASE_CONCEPT":    &cfg.Wikibase.ConceptURI,
		"KBSYNC_WIKIBASE_USER":       &cfg.Wikibase.Username,
		"KBSYNC_WIKIBASE_PASSWORD":   &cfg.Wikibase.Password,
		"KBSYNC_LOCAL_DB":            &cfg.Local.Path,
		"KBSYNC_NEO4J_URI":           &cfg.Neo4j.URI,
		"KBSYNC_NEO4J_USER":          &cfg.Neo4j.User,
		"KBSYNC_NEO4J_PASSWORD":      &cfg.Neo4j.Password,
		"KBSYNC_NEO4J_DATABASE":      &cfg.Neo4j.Database,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("KBSYNC_WIKIBASE_RPS")); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
			cfg.Wikibase.RequestsPerSecond = parsed
		}
	}
}

// Validate checks that the selected backend is fully configured. Writes to
// a Wikibase also need credentials.
func (c Config) Validate(write bool) error {
	var errs []error
	switch c.Backend {
	case BackendWikibase:
		if c.Wikibase.APIURL == "" {
			errs = append(errs, errors.New("wikibase.api_url is required"))
		}
		if c.Wikibase.SPARQLURL == "" {
			errs = append(errs, errors.New("wikibase.sparql_url is required"))
		}
		if c.Wikibase.ConceptURI == "" {
			errs = append(errs, errors.New("wikibase.concept_uri is required"))
		}
		if write && (c.Wikibase.Username == "" || c.Wikibase.Password == "") {
			errs = append(errs, errors.New("wikibase.username and wikibase.password are required to write"))
		}
	case BackendLocal:
		if c.Local.Path == "" {
			errs = append(errs, errors.New("local.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendWikibase, BackendLocal))
	}
	if c.Sync.Reload && c.Neo4j.URI == "" {
		errs = append(errs, errors.New("neo4j.uri is required to reload"))
	}
	return errors.Join(errs...)
}
