package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarbel-llc/mcpbridge/internal/assets"
	"github.com/amarbel-llc/mcpbridge/internal/client"
	"github.com/amarbel-llc/mcpbridge/internal/config"
	"github.com/amarbel-llc/mcpbridge/internal/mcptest"
	"github.com/amarbel-llc/mcpbridge/internal/protocol"
)

func connect(t *testing.T, baseURL string, opts ...Option) *sdk.ClientSession {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := assets.New(client.New(baseURL, client.WithTimeout(time.Second), client.WithLogger(logger)), assets.WithLogger(logger))
	srv := New(manager, "test", append([]Option{WithLogger(logger)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	serverT, clientT := sdk.NewInMemoryTransports()

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx, serverT)
	}()

	c := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := c.Connect(ctx, clientT, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		select {
		case <-served:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return session
}

func call(t *testing.T, session *sdk.ClientSession, name string, args map[string]any) *sdk.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func decodeStructured[T any](t *testing.T, content any) T {
	t.Helper()
	data, err := json.Marshal(content)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func errorText(r *sdk.CallToolResult) string {
	for _, c := range r.Content {
		if text, ok := c.(*sdk.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func TestListTools(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	session := connect(t, srv.URL)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"server_status",
		"blender_command",
		"unreal_command",
		"import_blender_model",
		"import_from_blender",
		"generate_content",
		"load_assets",
	}, names)
}

func TestServerStatusTool(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	session := connect(t, srv.URL)

	result := call(t, session, "server_status", map[string]any{})
	require.False(t, result.IsError, errorText(result))

	out := decodeStructured[StatusResult](t, result.StructuredContent)
	assert.Equal(t, "running", out.Status)
	assert.Equal(t, "connected", out.Unreal)
	assert.Equal(t, "mock", out.AIProvider)
	assert.Equal(t, srv.URL, out.URL)
}

func TestServerStatusTool_Unreachable(t *testing.T) {
	srv := mcptest.NewServer()
	url := srv.URL
	srv.Close()
	session := connect(t, url)

	result := call(t, session, "server_status", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, errorText(result), "server unreachable")
}

func TestCommandTools(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	srv.Handle(protocol.TargetBlender, "export_asset", func(cmd protocol.Command) (int, any) {
		return 0, map[string]any{
			"status":      "success",
			"command":     cmd.Command,
			"result":      "exported",
			"export_info": map[string]any{"path": "exports/Rock.fbx"},
		}
	})
	srv.Handle(protocol.TargetUnreal, "delete_level", func(protocol.Command) (int, any) {
		return 0, map[string]any{"status": "error", "error": "level is open"}
	})
	session := connect(t, srv.URL)

	result := call(t, session, "blender_command", map[string]any{
		"command": "export_asset",
		"params":  map[string]any{"asset_name": "Rock"},
	})
	require.False(t, result.IsError, errorText(result))
	out := decodeStructured[CommandResult](t, result.StructuredContent)
	assert.Equal(t, "exported", out.Result)
	assert.Equal(t, "exports/Rock.fbx", out.ExportPath)

	result = call(t, session, "unreal_command", map[string]any{"command": "create_level"})
	require.False(t, result.IsError, errorText(result))

	result = call(t, session, "unreal_command", map[string]any{"command": "delete_level"})
	assert.True(t, result.IsError)
	assert.Contains(t, errorText(result), "level is open")

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "Rock", reqs[0].Command.Params["asset_name"])
	assert.NotNil(t, reqs[1].Command.Params)
}

func TestImportBlenderModelTool(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	session := connect(t, srv.URL)

	result := call(t, session, "import_blender_model", map[string]any{
		"file":        "exports/PlayerShip.fbx",
		"destination": "Ships",
	})
	require.False(t, result.IsError, errorText(result))

	out := decodeStructured[assets.ImportResult](t, result.StructuredContent)
	assert.True(t, out.Success)
	assert.Equal(t, "PlayerShip", out.AssetName)
	assert.Equal(t, "/Game/BlenderAssets/Ships/PlayerShip", out.AssetPath)
}

func TestImportBlenderModelTool_Failure(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	srv.Handle(protocol.TargetUnreal, assets.CommandImportAsset, func(protocol.Command) (int, any) {
		return 500, "boom"
	})
	session := connect(t, srv.URL)

	result := call(t, session, "import_blender_model", map[string]any{"file": "exports/PlayerShip.fbx"})
	assert.True(t, result.IsError)
	assert.Contains(t, errorText(result), "PlayerShip")
}

func TestImportFromBlenderTool_MissingExport(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	session := connect(t, srv.URL)

	// the fake server reports no export_info for export_asset
	result := call(t, session, "import_from_blender", map[string]any{"asset_name": "Tree"})
	assert.True(t, result.IsError)
	assert.Contains(t, errorText(result), "exported file not found")
}

func TestGenerateContentTool(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	session := connect(t, srv.URL)

	result := call(t, session, "generate_content", map[string]any{"prompt": "an enemy spaceship"})
	require.False(t, result.IsError, errorText(result))

	out := decodeStructured[GenerateResult](t, result.StructuredContent)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, "text", out.Type)
	assert.NotNil(t, out.Result)
}

func TestLoadAssetsTool(t *testing.T) {
	srv := mcptest.NewServer()
	defer srv.Close()
	session := connect(t, srv.URL, WithManifest((&config.Config{}).Manifest()))

	result := call(t, session, "load_assets", map[string]any{})
	require.False(t, result.IsError, errorText(result))

	out := decodeStructured[LoadAssetsResult](t, result.StructuredContent)
	assert.Equal(t, 3, out.Imported)
	assert.Zero(t, out.Failed)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "PlayerShip", out.Results[0].AssetName)
	assert.Equal(t, "Projectile", out.Results[2].AssetName)

	result = call(t, session, "load_assets", map[string]any{
		"assets": []map[string]any{{"file": "exports/Station.obj", "destination": "/Game/Props"}},
	})
	require.False(t, result.IsError, errorText(result))
	out = decodeStructured[LoadAssetsResult](t, result.StructuredContent)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Station", out.Results[0].AssetName)
}

func TestLoadAssetsTool_Unreachable(t *testing.T) {
	srv := mcptest.NewServer()
	url := srv.URL
	srv.Close()
	session := connect(t, url, WithManifest((&config.Config{}).Manifest()))

	result := call(t, session, "load_assets", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, errorText(result), "server unreachable")
}
