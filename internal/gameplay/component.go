// Package gameplay is the consumer side of the asset pipeline: it checks the
// MCP server, then pulls a manifest of Blender exports into the game project
// and reports each step to registered listeners.
package gameplay

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/amarbel-llc/mcpbridge/internal/assets"
	"github.com/amarbel-llc/mcpbridge/internal/config"
)

// Importer is the part of the asset manager the component needs.
type Importer interface {
	Ping(ctx context.Context) (string, error)
	Import(ctx context.Context, file, destination string) assets.ImportResult
}

type ConnectionFunc func(ok bool, message string)

type ImportedFunc func(result assets.ImportResult)

type Component struct {
	importer    Importer
	concurrency int
	logger      *slog.Logger

	mu           sync.Mutex
	onConnection []ConnectionFunc
	onImported   []ImportedFunc
}

type Option func(*Component)

// WithConcurrency bounds how many imports run at once. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(c *Component) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Component) {
		c.logger = l
	}
}

func New(importer Importer, opts ...Option) *Component {
	c := &Component{
		importer:    importer,
		concurrency: config.DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnConnection registers a listener for the connection check.
func (c *Component) OnConnection(fn ConnectionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnection = append(c.onConnection, fn)
}

// OnAssetImported registers a listener fired once per manifest entry.
func (c *Component) OnAssetImported(fn ImportedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onImported = append(c.onImported, fn)
}

// CheckConnection pings the server and notifies connection listeners.
func (c *Component) CheckConnection(ctx context.Context) bool {
	msg, err := c.importer.Ping(ctx)
	ok := err == nil
	if !ok {
		msg = err.Error()
		c.logger.Warn("MCP server not reachable, skipping asset load", "error", err)
	}

	c.mu.Lock()
	listeners := append([]ConnectionFunc(nil), c.onConnection...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ok, msg)
	}
	return ok
}

// ImportAsset imports one file and notifies import listeners.
func (c *Component) ImportAsset(ctx context.Context, file, destination string) assets.ImportResult {
	result := c.importer.Import(ctx, file, destination)

	c.mu.Lock()
	listeners := append([]ImportedFunc(nil), c.onImported...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(result)
	}
	return result
}

// LoadBlenderAssets imports every manifest entry once the server answers.
// Nothing is imported when the connection check fails. Results are returned
// in manifest order.
func (c *Component) LoadBlenderAssets(ctx context.Context, manifest []config.Asset) []assets.ImportResult {
	if !c.CheckConnection(ctx) {
		return nil
	}

	results := make([]assets.ImportResult, len(manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, a := range manifest {
		g.Go(func() error {
			results[i] = c.ImportAsset(gctx, a.File, a.Destination)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	c.logger.Info("blender assets loaded", "total", len(results), "failed", failed)

	return results
}
