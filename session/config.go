package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
)

// Config contains Session configuration
type Config struct {
	// RegistryPath is the connection registry file.
	RegistryPath string `json:"registry"`
	// RestoreActive activates the last active profile when the session
	// starts.
	RestoreActive bool `json:"restore_active"`
	// LargeDocumentWarning is the document size in bytes above which
	// opening a document logs a warning. Zero disables the warning.
	LargeDocumentWarning int64 `json:"large_document_warning"`
	// LargeDocumentLimit is the document size in bytes above which
	// documents are refused. Zero disables the limit.
	LargeDocumentLimit int64 `json:"large_document_limit"`
}

// configFile distinguishes absent fields from zero values.
type configFile struct {
	RegistryPath         *string `json:"registry"`
	RestoreActive        *bool   `json:"restore_active"`
	LargeDocumentWarning *int64  `json:"large_document_warning"`
	LargeDocumentLimit   *int64  `json:"large_document_limit"`
}

var (
	// ErrInvalidConfig is returned for configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultRegistryPath returns the registry file under the user's
// configuration directory, or a file in the working directory if there is
// none.
func DefaultRegistryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "xmlmill-registry.json"
	}
	return filepath.Join(dir, "xmlmill", "registry.json")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RegistryPath:         DefaultRegistryPath(),
		RestoreActive:        true,
		LargeDocumentWarning: 256 << 10,
		LargeDocumentLimit:   512 << 10,
	}
}

// LoadConfig returns the defaults overridden by the fields present in the
// JSONC file at path. An empty path returns the defaults. A relative
// registry path is resolved against the directory holding the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	f, err := parseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	if f.RegistryPath != nil {
		cfg.RegistryPath = *f.RegistryPath
		if cfg.RegistryPath != "" && !filepath.IsAbs(cfg.RegistryPath) {
			cfg.RegistryPath = filepath.Join(filepath.Dir(path), cfg.RegistryPath)
		}
	}
	if f.RestoreActive != nil {
		cfg.RestoreActive = *f.RestoreActive
	}
	if f.LargeDocumentWarning != nil {
		cfg.LargeDocumentWarning = *f.LargeDocumentWarning
	}
	if f.LargeDocumentLimit != nil {
		cfg.LargeDocumentLimit = *f.LargeDocumentLimit
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func parseConfig(data []byte) (configFile, error) {
	var f configFile
	std, err := hujson.Standardize(data)
	if err != nil {
		return f, errors.Wrap(err, "invalid JSONC")
	}
	if err := json.Unmarshal(std, &f); err != nil {
		return f, errors.Wrap(err, "invalid JSON")
	}
	return f, nil
}

// Validate checks c for consistency.
func (c Config) Validate() error {
	switch {
	case c.RegistryPath == "":
		return errors.Wrap(ErrInvalidConfig, "registry path is empty")
	case c.LargeDocumentWarning < 0 || c.LargeDocumentLimit < 0:
		return errors.Wrap(ErrInvalidConfig, "document sizes must not be negative")
	case c.LargeDocumentLimit > 0 && c.LargeDocumentWarning > c.LargeDocumentLimit:
		return errors.Wrap(ErrInvalidConfig, "large document warning exceeds the limit")
	}
	return nil
}
