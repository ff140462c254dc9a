package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// StderrLogger forwards a child's stderr to a logger one line at a time,
// prefixed with "[name]".
type StderrLogger struct {
	name   string
	logger *slog.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func NewStderrLogger(name string, logger *slog.Logger) *StderrLogger {
	return &StderrLogger{
		name:   name,
		logger: logger,
	}
}

func (l *StderrLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// partial line, keep it for the next write
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		l.emit(line)
	}
	return len(p), nil
}

// Flush logs any trailing output that did not end in a newline.
func (l *StderrLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *StderrLogger) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	l.logger.Info("[" + l.name + "] " + line)
}

type Process struct {
	Name string
	cmd  *exec.Cmd

	done chan struct{}
	err  error
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) Wait() error {
	<-p.done
	return p.err
}

func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

type Executor interface {
	Execute(ctx context.Context, name, path string, args []string, dir string) (*Process, error)
}

// LocalExecutor starts processes on this machine.
type LocalExecutor struct {
	Logger *slog.Logger
}

func (e LocalExecutor) Execute(ctx context.Context, name, path string, args []string, dir string) (*Process, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second
	stderr := NewStderrLogger(name, logger)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}
	logger.Debug("process started", "name", name, "path", path, "args", args, "pid", cmd.Process.Pid)

	proc := &Process{Name: name, cmd: cmd, done: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		stderr.Flush()
		close(proc.done)
	}()
	return proc, nil
}

// LookPath resolves an executable: an explicit path wins, then
// <root>/bin/<name>, then $PATH.
func LookPath(explicit, root, name string) (string, error) {
	if explicit != "" {
		if err := checkExecutable(explicit, explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	if root != "" {
		if p, err := findExecutable(root, name); err == nil {
			return p, nil
		}
	}

	if name == "" {
		return "", errors.New("no executable configured")
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found: %w", name, err)
	}
	return p, nil
}

// findExecutable looks in root/bin for binary. An empty binary picks the
// first executable found there.
func findExecutable(root, binary string) (string, error) {
	binDir := filepath.Join(root, "bin")

	if binary == "" {
		entries, err := os.ReadDir(binDir)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", binDir, err)
		}
		for _, e := range entries {
			p := filepath.Join(binDir, e.Name())
			if checkExecutable(e.Name(), p) == nil {
				return p, nil
			}
		}
		return "", fmt.Errorf("no executable in %s", binDir)
	}

	candidate := filepath.Join(root, binary)
	if !strings.Contains(binary, "/") {
		candidate = filepath.Join(binDir, binary)
	}

	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("binary %q escapes %s", binary, root)
	}

	if err := checkExecutable(binary, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

func checkExecutable(name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("binary %q not found: %w", name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("binary %q is a directory", name)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary %q is not executable", name)
	}
	return nil
}
