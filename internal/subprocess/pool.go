package subprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

type AppState int

const (
	AppStateIdle AppState = iota
	AppStateStarting
	AppStateRunning
	AppStateStopping
	AppStateStopped
	AppStateFailed
)

func (s AppState) String() string {
	switch s {
	case AppStateIdle:
		return "idle"
	case AppStateStarting:
		return "starting"
	case AppStateRunning:
		return "running"
	case AppStateStopping:
		return "stopping"
	case AppStateStopped:
		return "stopped"
	case AppStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var ErrNotReady = errors.New("process did not become ready")

// Probe reports whether the application is serving.
type Probe func(ctx context.Context) bool

type Instance struct {
	Name      string
	Command   []string
	Dir       string
	State     AppState
	Process   *Process
	StartedAt time.Time
	Error     error

	// External is set when the probe succeeded before anything was launched.
	External bool

	mu     sync.RWMutex
	cancel context.CancelFunc
}

type Pool struct {
	executor     Executor
	probe        Probe
	readyTimeout time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	instances map[string]*Instance
	mu        sync.RWMutex
}

type PoolOption func(*Pool)

func WithReadyTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.readyTimeout = d
	}
}

func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.pollInterval = d
	}
}

func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

func NewPool(executor Executor, probe Probe, opts ...PoolOption) *Pool {
	p := &Pool{
		executor:     executor,
		probe:        probe,
		readyTimeout: 15 * time.Second,
		pollInterval: 250 * time.Millisecond,
		logger:       slog.Default(),
		instances:    make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Register(name string, command []string, dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.instances[name] = &Instance{
		Name:    name,
		Command: command,
		Dir:     dir,
		State:   AppStateIdle,
	}
}

func (p *Pool) Get(name string) (*Instance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	inst, ok := p.instances[name]
	return inst, ok
}

// GetOrStart returns once the named application answers its probe, launching
// it first when it is not already up.
func (p *Pool) GetOrStart(ctx context.Context, name string) (*Instance, error) {
	p.mu.RLock()
	inst, ok := p.instances[name]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown application: %s", name)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if p.probe(ctx) {
		if inst.State != AppStateRunning {
			p.logger.Info("already running", "name", name)
			inst.State = AppStateRunning
			inst.External = true
			inst.Error = nil
		}
		return inst, nil
	}

	// launched earlier but no longer answering
	if inst.Process != nil {
		p.logger.Warn("not answering, relaunching", "name", name)
		inst.cancel()
		<-inst.Process.Done()
		inst.Process = nil
		inst.cancel = nil
	}

	if len(inst.Command) == 0 {
		inst.State = AppStateFailed
		inst.Error = fmt.Errorf("%s is not running and no launch command is configured", name)
		return nil, inst.Error
	}

	inst.State = AppStateStarting
	inst.External = false

	binPath, err := LookPath("", inst.Dir, inst.Command[0])
	if err != nil {
		return nil, p.fail(inst, fmt.Errorf("locating %s: %w", name, err))
	}

	// the process outlives the caller's context; Stop cancels it
	procCtx, cancel := context.WithCancel(context.Background())
	proc, err := p.executor.Execute(procCtx, name, binPath, inst.Command[1:], inst.Dir)
	if err != nil {
		cancel()
		return nil, p.fail(inst, fmt.Errorf("executing %s: %w", name, err))
	}
	inst.Process = proc
	inst.cancel = cancel
	p.logger.Info("launched", "name", name, "path", binPath, "pid", proc.Pid())

	if err := p.waitReady(ctx, proc); err != nil {
		cancel()
		<-proc.Done()
		inst.Process = nil
		return nil, p.fail(inst, fmt.Errorf("starting %s: %w", name, err))
	}

	inst.State = AppStateRunning
	inst.StartedAt = time.Now()
	inst.Error = nil
	p.logger.Info("ready", "name", name)

	return inst, nil
}

func (p *Pool) waitReady(ctx context.Context, proc *Process) error {
	ctx, cancel := context.WithTimeout(ctx, p.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if p.probe(ctx) {
			return nil
		}
		select {
		case <-proc.Done():
			if err := proc.Wait(); err != nil {
				return fmt.Errorf("exited early: %w", err)
			}
			return errors.New("exited early")
		case <-ctx.Done():
			return fmt.Errorf("%w after %s", ErrNotReady, p.readyTimeout)
		case <-ticker.C:
		}
	}
}

func (p *Pool) fail(inst *Instance, err error) error {
	inst.State = AppStateFailed
	inst.Error = err
	p.logger.Error("launch failed", "name", inst.Name, "error", err)
	return err
}

// Stop terminates a process the pool launched. Applications that were
// already running are only marked stopped.
func (p *Pool) Stop(name string) error {
	p.mu.RLock()
	inst, ok := p.instances[name]
	p.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown application: %s", name)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.State != AppStateRunning {
		return nil
	}

	inst.State = AppStateStopping

	if inst.Process != nil {
		_ = inst.Process.Signal(os.Interrupt)

		select {
		case <-inst.Process.Done():
		case <-time.After(5 * time.Second):
			_ = inst.Process.Kill()
			<-inst.Process.Done()
		}
	}

	if inst.cancel != nil {
		inst.cancel()
		inst.cancel = nil
	}

	inst.State = AppStateStopped
	inst.Process = nil
	inst.External = false

	return nil
}

func (p *Pool) StopAll() {
	p.mu.RLock()
	names := make([]string, 0, len(p.instances))
	for name := range p.instances {
		names = append(names, name)
	}
	p.mu.RUnlock()

	for _, name := range names {
		if err := p.Stop(name); err != nil {
			p.logger.Warn("stop failed", "name", name, "error", err)
		}
	}
}

func (p *Pool) Status() []AppStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var statuses []AppStatus
	for name, inst := range p.instances {
		inst.mu.RLock()
		status := AppStatus{
			Name:      name,
			State:     inst.State.String(),
			External:  inst.External,
			StartedAt: inst.StartedAt,
		}
		if inst.Process != nil {
			status.Pid = inst.Process.Pid()
		}
		if inst.Error != nil {
			status.Error = inst.Error.Error()
		}
		inst.mu.RUnlock()
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

type AppStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Pid       int       `json:"pid,omitempty"`
	External  bool      `json:"external,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (inst *Instance) Running() bool {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.State == AppStateRunning
}
