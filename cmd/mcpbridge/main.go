package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/amarbel-llc/mcpbridge/internal/assets"
	"github.com/amarbel-llc/mcpbridge/internal/config"
	"github.com/amarbel-llc/mcpbridge/internal/gameplay"
	"github.com/amarbel-llc/mcpbridge/internal/mcp"
	"github.com/amarbel-llc/mcpbridge/internal/protocol"
	"github.com/amarbel-llc/mcpbridge/internal/subprocess"
	"github.com/amarbel-llc/mcpbridge/pkg/filematch"
)

var version = "dev"

const serverApp = "server"

var (
	configFlag   string
	logLevelFlag string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mcpbridge",
	Short: "mcpbridge: Blender / Unreal Engine bridge for the MCP server",
	Long: `mcpbridge sends commands to Blender and Unreal Engine through the MCP REST
server, moves exported models into an Unreal project and exposes the same
operations to AI agents as Model Context Protocol tools.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevelFlag != "" {
			c.Logging.Level = logLevelFlag
		}
		cfg = c
		logger = setupLogger(cfg.Logging, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configFlag != "" {
		return config.LoadFile(configFlag)
	}
	return config.Load()
}

// settingsPath is the file loadConfig reads.
func settingsPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.Path()
}

// manager builds the process-wide asset manager from the loaded config.
func manager() (*assets.Manager, error) {
	m, err := assets.FromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	assets.SetDefault(m)
	return assets.Default()
}

func launcher(m *assets.Manager) (*subprocess.Pool, error) {
	readyTimeout, err := cfg.ReadyTimeout()
	if err != nil {
		return nil, err
	}

	probe := func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		status, err := m.Client().Status(ctx)
		return err == nil && status.Running()
	}

	pool := subprocess.NewPool(
		subprocess.LocalExecutor{Logger: logger},
		probe,
		subprocess.WithReadyTimeout(readyTimeout),
		subprocess.WithPoolLogger(logger),
	)
	pool.Register(serverApp, cfg.Launcher.Command, cfg.Launcher.Dir)
	return pool, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var stdoutMu sync.Mutex

// importLine renders one result. Listeners run concurrently, so each result
// is written with a single call.
func importLine(r assets.ImportResult) string {
	if r.Success {
		return color.GreenString("✓ ") + fmt.Sprintf("%-20s %s\n", r.AssetName, r.AssetPath)
	}
	return color.RedString("✗ ") + fmt.Sprintf("%-20s %s\n", r.AssetName, r.ErrorMessage)
}

func printImport(r assets.ImportResult) {
	writeImport(os.Stdout, r)
}

func writeImport(w io.Writer, r assets.ImportResult) {
	line := importLine(r)
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	_, _ = io.WriteString(w, line)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the MCP server",
	Long:  `Query GET /status and report whether the server and its integrations are up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager()
		if err != nil {
			return err
		}

		status, err := m.Client().Status(cmd.Context())
		if err != nil {
			color.New(color.FgRed).Print("● ")
			fmt.Printf("%s unreachable\n", m.Client().BaseURL())
			return err
		}

		dot := color.New(color.FgGreen)
		if !status.Running() {
			dot = color.New(color.FgYellow)
		}
		dot.Print("● ")
		fmt.Printf("%s %s", m.Client().BaseURL(), status.Status)
		if status.Version != "" {
			color.New(color.FgHiBlack).Printf(" (v%s)", status.Version)
		}
		fmt.Println()
		fmt.Printf("  blender: %s\n", describeApp(status.Blender))
		fmt.Printf("  unreal:  %s\n", describeApp(status.Unreal))
		if status.AI.Provider != "" {
			fmt.Printf("  ai:      %s %s\n", status.AI.Provider, status.AI.Model)
		}
		return nil
	},
}

func describeApp(a protocol.AppStatus) string {
	switch {
	case !a.Enabled:
		return "disabled"
	case a.Status != "":
		return a.Status
	default:
		return "enabled"
	}
}

var (
	paramsFlag string
	setFlags   []string
)

// commandParams merges --params JSON with --set key=value pairs. A --set
// value that parses as JSON keeps its type.
func commandParams() (map[string]any, error) {
	params := map[string]any{}
	if paramsFlag != "" {
		if err := json.Unmarshal([]byte(paramsFlag), &params); err != nil {
			return nil, fmt.Errorf("parsing --params: %w", err)
		}
	}
	for _, kv := range setFlags {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}

func newCommandCmd(target protocol.Target, example string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     string(target) + " <command>",
		Short:   fmt.Sprintf("Send a command to %s", target),
		Long:    fmt.Sprintf(`POST {command, params} to %s and print the JSON reply.`, target.Path()),
		Example: example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := commandParams()
			if err != nil {
				return err
			}
			m, err := manager()
			if err != nil {
				return err
			}

			resp, err := m.Client().Command(cmd.Context(), target, args[0], params)
			if err != nil {
				return err
			}
			if err := printJSON(resp); err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("%s %s: %s", target, args[0], resp.Failure())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&paramsFlag, "params", "", "command parameters as a JSON object")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "set one parameter, key=value (repeatable)")
	return cmd
}

var (
	destFlag string
	dirFlag  string
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import exported models into Unreal",
	Long: `Import model files into the Unreal project. With --dir every mesh found
below the directory is imported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if dirFlag != "" {
			found, err := filematch.Scan(dirFlag, filematch.DefaultSet(), filematch.KindMesh)
			if err != nil {
				return fmt.Errorf("scanning %s: %w", dirFlag, err)
			}
			for _, f := range found {
				files = append(files, f.Path)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no files to import")
		}

		m, err := manager()
		if err != nil {
			return err
		}

		failed := 0
		for _, f := range files {
			r := m.Import(cmd.Context(), f, destFlag)
			printImport(r)
			if !r.Success {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d imports failed", failed, len(files))
		}
		return nil
	},
}

var formatFlag string

var exportImportCmd = &cobra.Command{
	Use:   "export-import <asset_name>",
	Short: "Export an asset from Blender and import it into Unreal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager()
		if err != nil {
			return err
		}
		r := m.ImportFromBlender(cmd.Context(), args[0], formatFlag)
		printImport(r)
		if !r.Success {
			return fmt.Errorf("import of %s failed", args[0])
		}
		return nil
	},
}

var concurrencyFlag int

var loadAssetsCmd = &cobra.Command{
	Use:   "load-assets",
	Short: "Import every asset of the configured manifest",
	Long: `Check the server connection, then import the configured asset manifest
(or the demo ships and projectile when none is configured).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager()
		if err != nil {
			return err
		}

		c := gameplay.New(m, gameplay.WithConcurrency(concurrencyFlag), gameplay.WithLogger(logger))
		var connErr string
		c.OnConnection(func(ok bool, msg string) {
			if !ok {
				connErr = msg
			}
		})
		c.OnAssetImported(printImport)

		results := c.LoadBlenderAssets(cmd.Context(), cfg.Manifest())
		if connErr != "" {
			return fmt.Errorf("server unreachable: %s", connErr)
		}
		for _, r := range results {
			if !r.Success {
				return fmt.Errorf("some assets failed to import")
			}
		}
		return nil
	},
}

var (
	typeFlag  string
	modelFlag string
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Generate content with the server's AI provider",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager()
		if err != nil {
			return err
		}
		resp, err := m.Client().Generate(cmd.Context(), protocol.GenerateRequest{
			Prompt: strings.Join(args, " "),
			Type:   typeFlag,
			Model:  modelFlag,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var ensureServerFlag bool

var runScriptCmd = &cobra.Command{
	Use:   "run-script <blender|unreal> <script.py>",
	Short: "Run a Python script inside Blender or the Unreal editor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var app subprocess.App
		switch args[0] {
		case subprocess.AppBlender:
			app = subprocess.App{Name: subprocess.AppBlender, Path: cfg.Blender.Path}
		case subprocess.AppUnreal:
			app = subprocess.App{Name: subprocess.AppUnreal, Path: cfg.Unreal.Path, Project: cfg.Unreal.ProjectPath}
		default:
			return fmt.Errorf("unknown application %q, expected blender or unreal", args[0])
		}

		if ensureServerFlag {
			m, err := manager()
			if err != nil {
				return err
			}
			pool, err := launcher(m)
			if err != nil {
				return err
			}
			if _, err := pool.GetOrStart(cmd.Context(), serverApp); err != nil {
				return err
			}
			defer pool.StopAll()
		}

		return subprocess.RunScript(cmd.Context(), subprocess.LocalExecutor{Logger: logger}, app, args[1])
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP tool server",
	Long:  `Serve the bridge's operations as Model Context Protocol tools over stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager()
		if err != nil {
			return err
		}

		if ensureServerFlag {
			pool, err := launcher(m)
			if err != nil {
				return err
			}
			if _, err := pool.GetOrStart(cmd.Context(), serverApp); err != nil {
				return err
			}
			defer pool.StopAll()
		}

		srv := mcp.New(m, version,
			mcp.WithManifest(cfg.Manifest()),
			mcp.WithConcurrency(config.DefaultConcurrency),
			mcp.WithLogger(logger),
		)
		return srv.Run(cmd.Context())
	},
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage the asset manifest",
}

var assetsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add a file to the asset manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if kind := filematch.DefaultSet().Match(args[0]); kind != filematch.KindMesh {
			return fmt.Errorf("%s is not an importable mesh", args[0])
		}
		target := settingsPath()
		if err := config.AddAsset(target, config.Asset{File: args[0], Destination: destFlag}); err != nil {
			return err
		}
		fmt.Printf("Added %s to %s\n", args[0], target)
		return nil
	},
}

var assetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the asset manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, a := range cfg.Manifest() {
			dest := assets.Destination(cfg.ContentRoot(), a.Destination)
			fmt.Printf("%-40s %s\n", a.File, dest)
		}
		if len(cfg.Assets) == 0 {
			color.New(color.FgHiBlack).Println("(default manifest)")
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		source := cfg.Source()
		if source == "" {
			source = "(defaults)"
		}
		fmt.Printf("source:       %s\n", source)
		fmt.Printf("server:       %s\n", cfg.BaseURL())
		fmt.Printf("content root: %s\n", cfg.ContentRoot())
		fmt.Printf("export dir:   %s\n", cfg.ExportDir())
		if len(cfg.Launcher.Command) > 0 {
			fmt.Printf("launcher:     %s\n", strings.Join(cfg.Launcher.Command, " "))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "settings file (.json, .yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")

	importCmd.Flags().StringVar(&destFlag, "dest", "", "content folder, /Game/... or relative to the content root")
	importCmd.Flags().StringVar(&dirFlag, "dir", "", "import every mesh below this directory")
	exportImportCmd.Flags().StringVar(&formatFlag, "format", "fbx", "export format")
	loadAssetsCmd.Flags().IntVar(&concurrencyFlag, "concurrency", config.DefaultConcurrency, "imports to run at once")
	generateCmd.Flags().StringVar(&typeFlag, "type", "text", "content type: text, code or asset_description")
	generateCmd.Flags().StringVar(&modelFlag, "model", "", "model override")
	runScriptCmd.Flags().BoolVar(&ensureServerFlag, "ensure-server", false, "start the MCP server first when it is not running")
	serveCmd.Flags().BoolVar(&ensureServerFlag, "ensure-server", false, "start the MCP server first when it is not running")
	assetsAddCmd.Flags().StringVar(&destFlag, "dest", "", "content folder for the asset")

	assetsCmd.AddCommand(assetsAddCmd)
	assetsCmd.AddCommand(assetsListCmd)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(newCommandCmd(protocol.TargetBlender, `  mcpbridge blender add_object --set type=cube --set 'location=[0,0,0]'`))
	rootCmd.AddCommand(newCommandCmd(protocol.TargetUnreal, `  mcpbridge unreal create_level --params '{"level_name":"Arena"}'`))
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportImportCmd)
	rootCmd.AddCommand(loadAssetsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(runScriptCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
