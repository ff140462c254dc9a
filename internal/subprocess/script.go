package subprocess

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	AppBlender = "blender"
	AppUnreal  = "unreal"
)

// App describes an editor that can run a Python script headlessly.
type App struct {
	Name    string
	Path    string
	Project string
}

// ScriptArgs builds the editor's command line for running script.
func (a App) ScriptArgs(script string) ([]string, error) {
	switch a.Name {
	case AppBlender:
		return []string{"--background", "--python", script}, nil
	case AppUnreal:
		if a.Project == "" {
			return nil, fmt.Errorf("unreal: project path is required")
		}
		return []string{a.Project, "-ExecutePythonScript=" + script}, nil
	default:
		return nil, fmt.Errorf("unknown application %q", a.Name)
	}
}

func (a App) binary() string {
	if a.Name == AppUnreal {
		return "UnrealEditor"
	}
	return a.Name
}

// RunScript runs script inside the editor once and waits for it to exit.
func RunScript(ctx context.Context, executor Executor, app App, script string) error {
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("%s: script is required", app.Name)
	}
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("%s: script %w", app.Name, err)
	}

	args, err := app.ScriptArgs(script)
	if err != nil {
		return err
	}

	path, err := LookPath(app.Path, "", app.binary())
	if err != nil {
		return fmt.Errorf("%s: %w", app.Name, err)
	}

	proc, err := executor.Execute(ctx, app.Name, path, args, "")
	if err != nil {
		return err
	}
	if err := proc.Wait(); err != nil {
		return fmt.Errorf("%s script %s: %w", app.Name, script, err)
	}
	return nil
}
