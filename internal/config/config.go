package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 8080
	DefaultTimeout     = 30 * time.Second
	DefaultContentRoot = "/Game/BlenderAssets"
	DefaultExportDir   = "exports"
	DefaultConcurrency = 4
)

// EnvConfigPath overrides the settings file location.
const EnvConfigPath = "MCPBRIDGE_CONFIG"

type Config struct {
	Server   Server   `toml:"server" json:"server" yaml:"server"`
	Blender  Blender  `toml:"blender" json:"blender" yaml:"blender"`
	Unreal   Unreal   `toml:"unreal" json:"unreal" yaml:"unreal"`
	Logging  Logging  `toml:"logging" json:"logging" yaml:"logging"`
	Launcher Launcher `toml:"launcher" json:"launcher" yaml:"launcher"`
	Assets   []Asset  `toml:"assets" json:"assets,omitempty" yaml:"assets"`

	// path the config was read from, empty when defaults were used
	source string
}

type Server struct {
	Host    string `toml:"host" json:"host" yaml:"host"`
	Port    int    `toml:"port" json:"port" yaml:"port"`
	Timeout string `toml:"timeout,omitempty" json:"timeout,omitempty" yaml:"timeout"`
}

type Blender struct {
	Path      string `toml:"path,omitempty" json:"path,omitempty" yaml:"path"`
	ExportDir string `toml:"export_dir,omitempty" json:"export_dir,omitempty" yaml:"export_dir"`
}

type Unreal struct {
	Path        string `toml:"path,omitempty" json:"path,omitempty" yaml:"path"`
	ProjectPath string `toml:"project_path,omitempty" json:"project_path,omitempty" yaml:"project_path"`
	ContentRoot string `toml:"content_root,omitempty" json:"content_root,omitempty" yaml:"content_root"`
}

type Logging struct {
	Level  string `toml:"level,omitempty" json:"level,omitempty" yaml:"level"`
	Format string `toml:"format,omitempty" json:"format,omitempty" yaml:"format"`
}

// Launcher describes how to start the MCP server when it is not reachable.
type Launcher struct {
	Command      []string `toml:"command,omitempty" json:"command,omitempty" yaml:"command"`
	Dir          string   `toml:"dir,omitempty" json:"dir,omitempty" yaml:"dir"`
	ReadyTimeout string   `toml:"ready_timeout,omitempty" json:"ready_timeout,omitempty" yaml:"ready_timeout"`
}

// Asset is one entry of the import manifest.
type Asset struct {
	File        string `toml:"file" json:"file" yaml:"file"`
	Destination string `toml:"destination,omitempty" json:"destination,omitempty" yaml:"destination"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mcpbridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "mcpbridge")
	}
	return filepath.Join(home, ".config", "mcpbridge")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Path resolves the settings file: $MCPBRIDGE_CONFIG, then ./mcp_settings.json,
// then the XDG config.toml.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if _, err := os.Stat("mcp_settings.json"); err == nil {
		return "mcp_settings.json"
	}
	return ConfigPath()
}

// Load reads the resolved settings file once. A missing file yields defaults.
func Load() (*Config, error) {
	path := Path()
	cfg, err := LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) && os.Getenv(EnvConfigPath) == "" {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a settings file, choosing the decoder by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := []byte(expandEnvVars(string(data)))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(expanded, cfg)
	case ".yml", ".yaml":
		err = yaml.Unmarshal(expanded, cfg)
	default:
		_, err = toml.Decode(string(expanded), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}

	cfg.source = path
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, or empty when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) Validate() error {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.ReadyTimeout(); err != nil {
		return err
	}
	for i, a := range c.Assets {
		if a.File == "" {
			return fmt.Errorf("assets[%d].file is required", i)
		}
	}
	return nil
}

func (c *Config) Source() string {
	return c.source
}

// BaseURL is the root of the MCP REST server.
func (c *Config) BaseURL() string {
	return "http://" + net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) Timeout() (time.Duration, error) {
	return parseDuration("server.timeout", c.Server.Timeout, DefaultTimeout)
}

func (c *Config) ReadyTimeout() (time.Duration, error) {
	return parseDuration("launcher.ready_timeout", c.Launcher.ReadyTimeout, 15*time.Second)
}

func (c *Config) ContentRoot() string {
	if c.Unreal.ContentRoot != "" {
		return c.Unreal.ContentRoot
	}
	return DefaultContentRoot
}

func (c *Config) ExportDir() string {
	if c.Blender.ExportDir != "" {
		return c.Blender.ExportDir
	}
	return DefaultExportDir
}

// Manifest returns the configured assets, or the demo shooter's three ships
// and projectile when none are configured.
func (c *Config) Manifest() []Asset {
	if len(c.Assets) > 0 {
		return c.Assets
	}
	root := c.ContentRoot()
	dir := c.ExportDir()
	return []Asset{
		{File: filepath.Join(dir, "PlayerShip.fbx"), Destination: root},
		{File: filepath.Join(dir, "EnemyShip.fbx"), Destination: root},
		{File: filepath.Join(dir, "Projectile.fbx"), Destination: root},
	}
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", field, raw, err)
	}
	return d, nil
}

// Save writes the config as TOML to the XDG config path.
func Save(cfg *Config) error {
	return SaveFile(cfg, ConfigPath())
}

func SaveFile(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

var ErrNotTOML = errors.New("only TOML settings files can be updated")

func isTOML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yml", ".yaml":
		return false
	}
	return true
}

// AddAsset inserts or replaces (by file) a manifest entry in the TOML settings
// file at path. Pass the path Load reads so the entry takes effect.
func AddAsset(path string, asset Asset) error {
	if !isTOML(path) {
		return fmt.Errorf("%s: %w", path, ErrNotTOML)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		cfg = Default()
	}

	found := false
	for i, existing := range cfg.Assets {
		if existing.File == asset.File {
			cfg.Assets[i] = asset
			found = true
			break
		}
	}
	if !found {
		cfg.Assets = append(cfg.Assets, asset)
	}

	return SaveFile(cfg, path)
}
