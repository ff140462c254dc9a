package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func TestAsset_DestinationField_TOML(t *testing.T) {
	tests := []struct {
		name     string
		toml     string
		expected Asset
	}{
		{
			name: "with destination",
			toml: `
file = "exports/PlayerShip.fbx"
destination = "/Game/Ships"
`,
			expected: Asset{
				File:        "exports/PlayerShip.fbx",
				Destination: "/Game/Ships",
			},
		},
		{
			name: "without destination",
			toml: `
file = "exports/Projectile.fbx"
`,
			expected: Asset{
				File: "exports/Projectile.fbx",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var asset Asset
			if err := toml.Unmarshal([]byte(tt.toml), &asset); err != nil {
				t.Fatalf("failed to parse TOML: %v", err)
			}

			if asset.File != tt.expected.File {
				t.Errorf("File: expected %q, got %q", tt.expected.File, asset.File)
			}
			if asset.Destination != tt.expected.Destination {
				t.Errorf("Destination: expected %q, got %q", tt.expected.Destination, asset.Destination)
			}
		})
	}
}

func TestLoadFile_JSONSettings(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "mcp_settings.json")

	settings := `{
  "server": {"host": "10.0.0.5", "port": 8000, "debug": false},
  "ai": {"provider": "openai", "model": "gpt-4.5"},
  "blender": {"enabled": true, "export_dir": "./exports"},
  "unreal": {"enabled": true, "project_path": "./MyProject/MyProject.uproject"}
}`
	if err := os.WriteFile(path, []byte(settings), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}

	if cfg.Server.Host != "10.0.0.5" {
		t.Errorf("expected host %q, got %q", "10.0.0.5", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if cfg.BaseURL() != "http://10.0.0.5:8000" {
		t.Errorf("unexpected base URL %q", cfg.BaseURL())
	}
	if cfg.ExportDir() != "./exports" {
		t.Errorf("expected export dir %q, got %q", "./exports", cfg.ExportDir())
	}
	if cfg.Source() != path {
		t.Errorf("expected source %q, got %q", path, cfg.Source())
	}
}

func TestLoadFile_YAMLWithEnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yml")

	t.Setenv("MCPBRIDGE_TEST_HOST", "mcp.local")

	data := `
server:
  host: "${MCPBRIDGE_TEST_HOST}"
  port: 5000
  timeout: "5s"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Host != "mcp.local" {
		t.Errorf("expected expanded host, got %q", cfg.Server.Host)
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		t.Fatalf("unexpected timeout error: %v", err)
	}
	if timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoadFile_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(path, []byte("[logging]\nformat = \"json\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Host != DefaultHost || cfg.Server.Port != DefaultPort {
		t.Errorf("expected default address, got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	timeout, _ := cfg.Timeout()
	if timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", timeout)
	}
	if cfg.ContentRoot() != DefaultContentRoot {
		t.Errorf("expected default content root, got %q", cfg.ContentRoot())
	}

	manifest := cfg.Manifest()
	if len(manifest) != 3 {
		t.Fatalf("expected 3 default manifest entries, got %d", len(manifest))
	}
	if manifest[0].File != filepath.Join("exports", "PlayerShip.fbx") {
		t.Errorf("unexpected first manifest entry %q", manifest[0].File)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad port", "c.toml", "[server]\nport = 70000\n", "out of range"},
		{"bad timeout", "c.toml", "[server]\ntimeout = \"soon\"\n", "server.timeout"},
		{"asset without file", "c.toml", "[[assets]]\ndestination = \"/Game/X\"\n", "assets[0].file"},
		{"malformed json", "c.json", "{", "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv(EnvConfigPath, "")
	t.Chdir(tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults, got error: %v", err)
	}
	if cfg.BaseURL() != "http://127.0.0.1:8080" {
		t.Errorf("unexpected base URL %q", cfg.BaseURL())
	}
	if cfg.Source() != "" {
		t.Errorf("expected empty source for defaults, got %q", cfg.Source())
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.toml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	original := &Config{
		Server: Server{Host: "127.0.0.1", Port: 8000, Timeout: "10s"},
		Unreal: Unreal{ContentRoot: "/Game/Imported"},
		Assets: []Asset{
			{File: "exports/PlayerShip.fbx", Destination: "/Game/Ships"},
			{File: "exports/Rock.obj"},
		},
	}

	if err := Save(original); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadFile(ConfigPath())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if loaded.Server != original.Server {
		t.Errorf("server: expected %+v, got %+v", original.Server, loaded.Server)
	}
	if loaded.ContentRoot() != "/Game/Imported" {
		t.Errorf("expected content root %q, got %q", "/Game/Imported", loaded.ContentRoot())
	}
	if len(loaded.Assets) != len(original.Assets) {
		t.Fatalf("expected %d assets, got %d", len(original.Assets), len(loaded.Assets))
	}
	for i, expected := range original.Assets {
		if loaded.Assets[i] != expected {
			t.Errorf("assets[%d]: expected %+v, got %+v", i, expected, loaded.Assets[i])
		}
	}
}

func TestConfig_DestinationOmitempty(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := &Config{
		Server: Server{Host: DefaultHost, Port: DefaultPort},
		Assets: []Asset{{File: "exports/Rock.obj"}},
	}

	if err := Save(cfg); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "mcpbridge", "config.toml"))
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	if strings.Contains(string(data), "destination") {
		t.Error("expected destination to be omitted when empty, but it was present in TOML")
	}
}

func TestAddAsset_Update(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if err := AddAsset(ConfigPath(), Asset{File: "exports/EnemyShip.fbx"}); err != nil {
		t.Fatalf("failed to add asset: %v", err)
	}
	if err := AddAsset(ConfigPath(), Asset{File: "exports/EnemyShip.fbx", Destination: "/Game/Enemies"}); err != nil {
		t.Fatalf("failed to update asset: %v", err)
	}

	cfg, err := LoadFile(ConfigPath())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if len(cfg.Assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(cfg.Assets))
	}
	if cfg.Assets[0].Destination != "/Game/Enemies" {
		t.Errorf("expected destination %q, got %q", "/Game/Enemies", cfg.Assets[0].Destination)
	}
}

func TestAddAsset_WritesResolvedFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	settings := filepath.Join(tmpDir, "project.toml")
	t.Setenv(EnvConfigPath, settings)

	if err := AddAsset(Path(), Asset{File: "exports/Station.obj", Destination: "/Game/Props"}); err != nil {
		t.Fatalf("failed to add asset: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Source() != settings {
		t.Errorf("expected source %q, got %q", settings, cfg.Source())
	}
	if len(cfg.Assets) != 1 || cfg.Assets[0].File != "exports/Station.obj" {
		t.Errorf("expected the added asset in the loaded config, got %+v", cfg.Assets)
	}

	if _, err := os.Stat(ConfigPath()); !os.IsNotExist(err) {
		t.Errorf("expected %s to be left alone, stat err: %v", ConfigPath(), err)
	}
}

func TestAddAsset_RefusesNonTOML(t *testing.T) {
	settings := filepath.Join(t.TempDir(), "mcp_settings.json")
	content := `{"server":{"port":9000}}`
	if err := os.WriteFile(settings, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	err := AddAsset(settings, Asset{File: "exports/Rock.obj"})
	if !errors.Is(err, ErrNotTOML) {
		t.Fatalf("expected ErrNotTOML, got %v", err)
	}

	data, err := os.ReadFile(settings)
	if err != nil {
		t.Fatalf("failed to read settings: %v", err)
	}
	if string(data) != content {
		t.Errorf("settings file was modified: %s", data)
	}
}
