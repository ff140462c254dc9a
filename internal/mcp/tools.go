package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/amarbel-llc/mcpbridge/internal/assets"
	"github.com/amarbel-llc/mcpbridge/internal/config"
	"github.com/amarbel-llc/mcpbridge/internal/gameplay"
	"github.com/amarbel-llc/mcpbridge/internal/protocol"
)

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "server_status",
		Description: "Report whether the MCP server is running and which integrations are enabled",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "blender_command",
		Description: "Send a command (e.g. add_object, export_asset) with JSON parameters to Blender",
	}, s.commandHandler(protocol.TargetBlender))

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "unreal_command",
		Description: "Send a command (e.g. create_level, import_asset) with JSON parameters to Unreal Engine",
	}, s.commandHandler(protocol.TargetUnreal))

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "import_blender_model",
		Description: "Import an exported model file into the Unreal project",
	}, s.handleImport)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "import_from_blender",
		Description: "Export an asset from Blender and import the result into /Game/Assets/<name>",
	}, s.handleImportFromBlender)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "generate_content",
		Description: "Generate text, code or asset descriptions with the server's AI provider",
	}, s.handleGenerate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "load_assets",
		Description: "Check the server connection, then import every asset of the manifest",
	}, s.handleLoadAssets)
}

type StatusInput struct{}

type StatusResult struct {
	Status     string `json:"status" jsonschema:"server state, running when reachable"`
	Version    string `json:"version,omitempty" jsonschema:"server version"`
	Blender    string `json:"blender,omitempty" jsonschema:"Blender integration status"`
	Unreal     string `json:"unreal,omitempty" jsonschema:"Unreal integration status"`
	AIProvider string `json:"ai_provider,omitempty" jsonschema:"configured AI provider"`
	URL        string `json:"url" jsonschema:"server base URL"`
}

func (s *Server) handleStatus(ctx context.Context, _ *sdk.CallToolRequest, _ StatusInput) (*sdk.CallToolResult, StatusResult, error) {
	status, err := s.manager.Client().Status(ctx)
	if err != nil {
		return nil, StatusResult{}, fmt.Errorf("server unreachable: %w", err)
	}
	return nil, StatusResult{
		Status:     status.Status,
		Version:    status.Version,
		Blender:    appStatus(status.Blender),
		Unreal:     appStatus(status.Unreal),
		AIProvider: status.AI.Provider,
		URL:        s.manager.Client().BaseURL(),
	}, nil
}

func appStatus(a protocol.AppStatus) string {
	if !a.Enabled {
		return "disabled"
	}
	if a.Status == "" {
		return "enabled"
	}
	return a.Status
}

type CommandInput struct {
	Command string         `json:"command" jsonschema:"command name, e.g. add_object or import_asset"`
	Params  map[string]any `json:"params,omitempty" jsonschema:"command parameters, sent verbatim"`
}

type CommandResult struct {
	Status     string `json:"status"`
	Command    string `json:"command,omitempty"`
	Result     any    `json:"result,omitempty" jsonschema:"result reported by the application"`
	ExportPath string `json:"export_path,omitempty" jsonschema:"exported file, set by Blender's export_asset"`
}

func (s *Server) commandHandler(target protocol.Target) sdk.ToolHandlerFor[CommandInput, CommandResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in CommandInput) (*sdk.CallToolResult, CommandResult, error) {
		if in.Command == "" {
			return nil, CommandResult{}, errors.New("command is required")
		}

		resp, err := s.manager.Client().Command(ctx, target, in.Command, in.Params)
		if err != nil {
			return nil, CommandResult{}, fmt.Errorf("%s %s: %w", target, in.Command, err)
		}
		if !resp.OK() {
			return nil, CommandResult{}, fmt.Errorf("%s %s: %s", target, in.Command, resp.Failure())
		}

		out := CommandResult{Status: resp.Status, Command: resp.Command}
		if len(resp.Result) > 0 {
			var result any
			if err := json.Unmarshal(resp.Result, &result); err == nil {
				out.Result = result
			}
		}
		if resp.ExportInfo != nil {
			out.ExportPath = resp.ExportInfo.Path
		}
		return nil, out, nil
	}
}

type ImportInput struct {
	File        string `json:"file" jsonschema:"path of the exported model, e.g. exports/PlayerShip.fbx"`
	Destination string `json:"destination,omitempty" jsonschema:"content folder, /Game/... or a folder below the content root"`
}

func (s *Server) handleImport(ctx context.Context, _ *sdk.CallToolRequest, in ImportInput) (*sdk.CallToolResult, assets.ImportResult, error) {
	if in.File == "" {
		return nil, assets.ImportResult{}, errors.New("file is required")
	}
	return importOutcome(s.manager.Import(ctx, in.File, in.Destination))
}

type ImportFromBlenderInput struct {
	AssetName string `json:"asset_name" jsonschema:"name of the Blender object to export"`
	Format    string `json:"format,omitempty" jsonschema:"export format, fbx when empty"`
}

func (s *Server) handleImportFromBlender(ctx context.Context, _ *sdk.CallToolRequest, in ImportFromBlenderInput) (*sdk.CallToolResult, assets.ImportResult, error) {
	if in.AssetName == "" {
		return nil, assets.ImportResult{}, errors.New("asset_name is required")
	}
	return importOutcome(s.manager.ImportFromBlender(ctx, in.AssetName, in.Format))
}

func importOutcome(r assets.ImportResult) (*sdk.CallToolResult, assets.ImportResult, error) {
	if !r.Success {
		return nil, assets.ImportResult{}, fmt.Errorf("import of %s failed: %s", r.AssetName, r.ErrorMessage)
	}
	return nil, r, nil
}

type GenerateInput struct {
	Prompt string `json:"prompt" jsonschema:"what to generate"`
	Type   string `json:"type,omitempty" jsonschema:"text, code or asset_description; text when empty"`
	Model  string `json:"model,omitempty" jsonschema:"model override"`
}

type GenerateResult struct {
	Status   string `json:"status"`
	Type     string `json:"type,omitempty"`
	Provider string `json:"provider,omitempty"`
	Result   any    `json:"result,omitempty"`
}

func (s *Server) handleGenerate(ctx context.Context, _ *sdk.CallToolRequest, in GenerateInput) (*sdk.CallToolResult, GenerateResult, error) {
	if in.Prompt == "" {
		return nil, GenerateResult{}, errors.New("prompt is required")
	}
	resp, err := s.manager.Client().Generate(ctx, protocol.GenerateRequest{Prompt: in.Prompt, Type: in.Type, Model: in.Model})
	if err != nil {
		return nil, GenerateResult{}, fmt.Errorf("generate: %w", err)
	}
	if resp.Status != protocol.StatusSuccess {
		return nil, GenerateResult{}, fmt.Errorf("generate: %s", resp.Message)
	}
	return nil, GenerateResult{
		Status:   resp.Status,
		Type:     resp.Type,
		Provider: resp.Provider,
		Result:   resp.Result,
	}, nil
}

type LoadAssetsInput struct {
	Assets []config.Asset `json:"assets,omitempty" jsonschema:"files to import; the configured manifest when empty"`
}

type LoadAssetsResult struct {
	Message  string                `json:"message"`
	Imported int                   `json:"imported"`
	Failed   int                   `json:"failed"`
	Results  []assets.ImportResult `json:"results"`
}

func (s *Server) handleLoadAssets(ctx context.Context, _ *sdk.CallToolRequest, in LoadAssetsInput) (*sdk.CallToolResult, LoadAssetsResult, error) {
	manifest := in.Assets
	if len(manifest) == 0 {
		manifest = s.manifest
	}
	if len(manifest) == 0 {
		return nil, LoadAssetsResult{}, errors.New("no assets given and no manifest configured")
	}

	c := gameplay.New(s.manager, gameplay.WithConcurrency(s.concurrency), gameplay.WithLogger(s.logger))

	var connMsg string
	var connected bool
	c.OnConnection(func(ok bool, msg string) {
		connected, connMsg = ok, msg
	})

	results := c.LoadBlenderAssets(ctx, manifest)
	if !connected {
		return nil, LoadAssetsResult{}, fmt.Errorf("server unreachable: %s", connMsg)
	}

	out := LoadAssetsResult{Message: connMsg, Results: results}
	for _, r := range results {
		if r.Success {
			out.Imported++
		} else {
			out.Failed++
		}
	}
	return nil, out, nil
}
