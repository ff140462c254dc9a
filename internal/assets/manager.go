// Package assets moves models exported by Blender into an Unreal project
// through the MCP server.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/amarbel-llc/mcpbridge/internal/client"
	"github.com/amarbel-llc/mcpbridge/internal/config"
	"github.com/amarbel-llc/mcpbridge/internal/protocol"
)

const (
	CommandImportAsset = "import_asset"
	CommandExportAsset = "export_asset"

	// FromBlenderRoot is where ImportFromBlender places assets.
	FromBlenderRoot = "/Game/Assets"
)

// ImportResult is the outcome of one import. Optional fields may be empty.
type ImportResult struct {
	Success      bool   `json:"success"`
	AssetPath    string `json:"assetPath"`
	AssetName    string `json:"assetName"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type Manager struct {
	client      *client.Client
	contentRoot string
	logger      *slog.Logger
	statFile    func(string) (os.FileInfo, error)
}

type Option func(*Manager)

func WithContentRoot(root string) Option {
	return func(m *Manager) {
		m.contentRoot = root
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func New(c *client.Client, opts ...Option) *Manager {
	m := &Manager{
		client:      c,
		contentRoot: config.DefaultContentRoot,
		logger:      slog.Default(),
		statFile:    os.Stat,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FromConfig builds a manager and its client from cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := client.New(cfg.BaseURL(), client.WithTimeout(timeout), client.WithLogger(logger))
	return New(c, WithContentRoot(cfg.ContentRoot()), WithLogger(logger)), nil
}

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the process-wide manager, built from the settings file on
// first use.
func Default() (*Manager, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager != nil {
		return defaultManager, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	m, err := FromConfig(cfg, nil)
	if err != nil {
		return nil, err
	}
	defaultManager = m
	return m, nil
}

// SetDefault replaces the process-wide manager.
func SetDefault(m *Manager) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultManager = m
}

func (m *Manager) Client() *client.Client {
	return m.client
}

func (m *Manager) ContentRoot() string {
	return m.contentRoot
}

var ErrNotRunning = errors.New("server not running")

// Ping checks that the server answers GET /status with status "running".
func (m *Manager) Ping(ctx context.Context) (string, error) {
	status, err := m.client.Status(ctx)
	if err != nil {
		return "", err
	}
	if !status.Running() {
		return "", fmt.Errorf("%w: abnormal status: %q", ErrNotRunning, status.Status)
	}
	return status.Status, nil
}

// CheckServerConnection runs Ping in the background and reports once.
func (m *Manager) CheckServerConnection(ctx context.Context, done func(ok bool, message string)) {
	go func() {
		msg, err := m.Ping(ctx)
		if err != nil {
			m.logger.Warn("MCP server unreachable", "url", m.client.BaseURL(), "error", err)
			done(false, err.Error())
			return
		}
		m.logger.Info("connected to MCP server", "url", m.client.BaseURL(), "status", msg)
		done(true, msg)
	}()
}

// Import asks Unreal to import file into destination.
func (m *Manager) Import(ctx context.Context, file, destination string) ImportResult {
	dest := Destination(m.contentRoot, destination)
	name := NameFromFile(file)
	log := m.logger.With("file", file, "destination", dest)

	resp, err := m.client.Command(ctx, protocol.TargetUnreal, CommandImportAsset, map[string]any{
		"path":        file,
		"destination": dest,
	})
	if err != nil {
		log.Warn("import failed", "error", err)
		return ImportResult{AssetName: name, ErrorMessage: err.Error()}
	}
	if !resp.OK() {
		log.Warn("import rejected", "reason", resp.Failure())
		return ImportResult{AssetName: name, ErrorMessage: resp.Failure()}
	}

	// asset_info.path names the destination folder, not the asset
	if res, ok := resp.ResultObject(); ok && res.AssetInfo != nil && res.AssetInfo.Name != "" {
		name = res.AssetInfo.Name
	}
	result := ImportResult{
		Success:   true,
		AssetName: name,
		AssetPath: ObjectPath(dest, name),
	}

	log.Info("asset imported", "asset", result.AssetName, "path", result.AssetPath)
	return result
}

// ImportBlenderModel imports in the background and reports once through done.
func (m *Manager) ImportBlenderModel(ctx context.Context, file, destination string, done func(ImportResult)) {
	go func() {
		done(m.Import(ctx, file, destination))
	}()
}

var ErrExportMissing = errors.New("exported file not found")

// ExportFromBlender asks Blender to export assetName and returns the file path.
func (m *Manager) ExportFromBlender(ctx context.Context, assetName, format string) (string, error) {
	if format == "" {
		format = "fbx"
	}
	resp, err := m.client.Command(ctx, protocol.TargetBlender, CommandExportAsset, map[string]any{
		"asset_name": assetName,
		"format":     format,
	})
	if err != nil {
		return "", fmt.Errorf("exporting %s: %w", assetName, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("exporting %s: %s", assetName, resp.Failure())
	}
	if resp.ExportInfo == nil || resp.ExportInfo.Path == "" {
		return "", fmt.Errorf("exporting %s: %w: no path in response", assetName, ErrExportMissing)
	}
	return resp.ExportInfo.Path, nil
}

// ImportFromBlender exports assetName from Blender, verifies the file exists
// locally, then imports it into /Game/Assets/<assetName>.
func (m *Manager) ImportFromBlender(ctx context.Context, assetName, format string) ImportResult {
	exported, err := m.ExportFromBlender(ctx, assetName, format)
	if err != nil {
		m.logger.Warn("blender export failed", "asset", assetName, "error", err)
		return ImportResult{AssetName: assetName, ErrorMessage: err.Error()}
	}

	if _, err := m.statFile(exported); err != nil {
		m.logger.Warn("exported file missing", "asset", assetName, "path", exported)
		return ImportResult{
			AssetName:    assetName,
			ErrorMessage: fmt.Sprintf("%v: %s", ErrExportMissing, exported),
		}
	}

	return m.Import(ctx, exported, FromBlenderRoot+"/"+assetName)
}
