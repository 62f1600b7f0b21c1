// Package config provides configuration file parsing.
//
// The configuration file is optional. A missing file yields the defaults, and
// keys with the wrong type keep their default and produce a warning. A file
// that exists but cannot be read or is not valid TOML is fatal.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fgeck/btrfs-backup/internal/models"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Defaults applied when the configuration file omits a key.
const (
	DefaultBackupsToKeep    = 5
	DefaultSnapshotsDir     = "~/.snapshots"
	DefaultPrivilegeWrapper = "sudo"
	DefaultBtrfsBinary      = "btrfs"
)

// RelativeConfigPath is the location of the configuration file under the user's home directory.
var RelativeConfigPath = filepath.Join(".config", "btrfs_backup", "config")

var (
	// ErrConfig is returned when the configuration file exists but cannot be used.
	ErrConfig = errors.New("invalid configuration file")
	// ErrPathResolution is returned when a path cannot be made absolute.
	ErrPathResolution = errors.New("cannot resolve path")
)

// Parser handles configuration file parsing.
type Parser struct {
	v        *viper.Viper
	fs       afero.Fs
	warnings []string
}

// NewParser creates a new configuration parser reading from the OS filesystem.
func NewParser() *Parser {
	return NewParserWithFs(afero.NewOsFs())
}

// NewParserWithFs creates a new configuration parser reading from fs (useful for testing).
func NewParserWithFs(fs afero.Fs) *Parser {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("toml")
	return &Parser{v: v, fs: fs}
}

// Path returns the configuration file path for the given home directory,
// or overridePath when it is set.
func Path(home, overridePath string) (string, error) {
	if overridePath != "" {
		return overridePath, nil
	}
	if home == "" {
		return "", fmt.Errorf("%w: home directory is unknown", ErrPathResolution)
	}
	return filepath.Join(home, RelativeConfigPath), nil
}

// Load loads configuration for the user whose home directory is home.
// overridePath replaces the default file location when non-empty.
func (p *Parser) Load(home, overridePath string) (*models.Config, error) {
	path, err := Path(home, overridePath)
	if err != nil {
		return nil, err
	}

	exists, err := afero.Exists(p.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %s: %v", ErrConfig, path, err)
	}
	if !exists {
		return p.parse(home)
	}

	p.v.SetConfigFile(path)
	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrConfig, path, err)
	}

	return p.parse(home)
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content, home string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return p.parse(home)
}

// Warnings returns the problems found in the last loaded file that were
// resolved by falling back to a default.
func (p *Parser) Warnings() []string {
	return p.warnings
}

func (p *Parser) parse(home string) (*models.Config, error) {
	p.warnings = nil

	cfg := &models.Config{
		BackupsToKeep:    p.intKey("backups_to_keep", DefaultBackupsToKeep),
		PrivilegeWrapper: p.stringKey("privilege_wrapper", DefaultPrivilegeWrapper),
		BtrfsBinary:      p.stringKey("btrfs_binary", DefaultBtrfsBinary),
	}

	if cfg.BtrfsBinary == "" {
		p.warn("btrfs_binary is empty, using %q", DefaultBtrfsBinary)
		cfg.BtrfsBinary = DefaultBtrfsBinary
	}

	dir, err := ExpandHome(p.stringKey("snapshots_dir", DefaultSnapshotsDir), home)
	if err != nil {
		return nil, err
	}
	cfg.SnapshotsDir = dir

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: os.ExpandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   os.ExpandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("%w: telegram.bot_token is required when telegram is configured", ErrConfig)
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("%w: telegram.chat_id is required when telegram is configured", ErrConfig)
		}
	}

	return cfg, nil
}

// intKey returns a non-negative integer key, or def when the key is absent or unusable.
func (p *Parser) intKey(key string, def int) int {
	if !p.v.IsSet(key) {
		return def
	}

	var n int64
	switch val := p.v.Get(key).(type) {
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	default:
		p.warn("%s must be an integer, got %T; using default %d", key, val, def)
		return def
	}

	if n < 0 {
		p.warn("%s must not be negative, got %d; using default %d", key, n, def)
		return def
	}
	return int(n)
}

// stringKey returns a string key, or def when the key is absent or not a string.
func (p *Parser) stringKey(key, def string) string {
	if !p.v.IsSet(key) {
		return def
	}

	s, ok := p.v.Get(key).(string)
	if !ok {
		p.warn("%s must be a string, got %T; using default %q", key, p.v.Get(key), def)
		return def
	}
	return s
}

func (p *Parser) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// ExpandHome replaces a leading "~" in path with home and requires the
// result to be absolute.
func ExpandHome(path, home string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home == "" {
			return "", fmt.Errorf("%w: %s: home directory is unknown", ErrPathResolution, path)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	} else if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("%w: %s: only ~ and ~/ are supported", ErrPathResolution, path)
	}

	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s is not an absolute path", ErrPathResolution, path)
	}

	return filepath.Clean(path), nil
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.BackupsToKeep < 0 {
		return fmt.Errorf("backups_to_keep must not be negative")
	}

	if !filepath.IsAbs(cfg.SnapshotsDir) {
		return fmt.Errorf("snapshots_dir must be an absolute path")
	}

	if cfg.BtrfsBinary == "" {
		return fmt.Errorf("btrfs_binary is required")
	}

	return nil
}
