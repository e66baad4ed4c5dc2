package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// BundlerScript is the bundler entry point relative to the project directory
const BundlerScript = "node_modules/webpack-dev-server/bin/webpack-dev-server.js"

// State is the lifecycle state of the bundler process
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrAlreadyRunning is returned by Start when the bundler is already started
var ErrAlreadyRunning = errors.New("bundler already running")

// SupervisorConfig describes how to launch the bundler
type SupervisorConfig struct {
	// Dir is the project directory holding node_modules and the bundler config
	Dir string
	// Command replaces the node executable and bundler script
	Command []string
	// BundlerConfig is the bundler config file, relative to Dir
	BundlerConfig string
	Port          int
	// Options are custom bundler flags separated by spaces. When set they replace
	// the development defaults.
	Options        string
	Env            map[string]string
	SuccessPattern string
	FailurePattern string
	StartTimeout   time.Duration
}

// Supervisor runs the bundler as a child process and tracks its compilations
type Supervisor struct {
	cfg       SupervisorConfig
	logger    *zap.Logger
	onCompile func(CompileResult)
	state     atomic.Int32

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	tracker  *OutputTracker
	exited   chan struct{}
	stopping bool
}

// NewSupervisor validates the configuration. onCompile is called after every
// compilation, including the first.
func NewSupervisor(cfg SupervisorConfig, logger *zap.Logger, onCompile func(CompileResult)) (*Supervisor, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid bundler port: %d", cfg.Port)
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := NewOutputTracker(cfg.SuccessPattern, cfg.FailurePattern, nil, nil); err != nil {
		return nil, err
	}
	return &Supervisor{cfg: cfg, logger: logger, onCompile: onCompile}, nil
}

// Args returns the bundler command line
func (s *Supervisor) Args() []string {
	dir, err := filepath.Abs(s.cfg.Dir)
	if err != nil {
		dir = s.cfg.Dir
	}

	var args []string
	if len(s.cfg.Command) > 0 {
		args = append(args, s.cfg.Command...)
	} else {
		args = append(args, "node", filepath.Join(dir, BundlerScript))
	}
	args = append(args,
		"--config", filepath.Join(dir, s.cfg.BundlerConfig),
		"--port", strconv.Itoa(s.cfg.Port),
		// the bundler exits when stdin closes, even if its own watchdog fails
		"--watch-options-stdin",
	)

	if options := strings.Fields(s.cfg.Options); len(options) > 0 {
		args = append(args, options...)
	} else {
		args = append(args, "--devtool=eval-source-map", "--mode=development")
	}
	return args
}

// Environ returns the process environment with the configured overrides
func (s *Supervisor) Environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(s.cfg.Env))
	for k := range s.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+s.cfg.Env[k])
	}
	return env
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Start launches the bundler and blocks until its first compilation finishes, the
// process exits, the start timeout elapses or ctx is done.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	tracker, err := NewOutputTracker(s.cfg.SuccessPattern, s.cfg.FailurePattern, s.logger, s.onCompile)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	args := s.Args()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = s.cfg.Dir
	cmd.Env = s.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.WaitDelay = time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open bundler stdin: %w", err)
	}

	s.state.Store(int32(StateStarting))
	s.logger.Info("starting bundler", zap.Strings("command", args))
	if err := cmd.Start(); err != nil {
		s.state.Store(int32(StateFailed))
		s.mu.Unlock()
		return fmt.Errorf("failed to start bundler: %w", err)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.stdin = stdin
	s.tracker = tracker
	s.exited = exited
	s.stopping = false
	s.mu.Unlock()

	go func() {
		if err := tracker.Track(pr); err != nil {
			s.logger.Warn("failed to read bundler output", zap.Error(err))
		}
		io.Copy(io.Discard, pr)
	}()
	go s.wait(cmd, pw, exited)

	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-tracker.FirstCompilation():
		s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
		return nil
	case <-exited:
		return fmt.Errorf("bundler exited before its first compilation")
	case <-timer.C:
		s.Stop()
		s.state.Store(int32(StateFailed))
		return fmt.Errorf("bundler did not compile within %s", s.cfg.StartTimeout)
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}
}

func (s *Supervisor) wait(cmd *exec.Cmd, pw *io.PipeWriter, exited chan struct{}) {
	err := cmd.Wait()
	pw.Close()

	s.mu.Lock()
	stopping := s.stopping
	if s.cmd == cmd {
		s.cmd = nil
		s.stdin = nil
	}
	s.mu.Unlock()

	if stopping {
		s.state.Store(int32(StateStopped))
	} else {
		s.state.Store(int32(StateFailed))
		s.logger.Error("bundler exited", zap.Error(err))
	}
	close(exited)
}

// Stop terminates the bundler process group, forcing a kill after five seconds
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd, stdin, exited := s.cmd, s.stdin, s.exited
	if cmd == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	pid := cmd.Process.Pid
	s.logger.Info("stopping bundler", zap.Int("pid", pid))

	if stdin != nil {
		stdin.Close()
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to signal bundler", zap.Error(err))
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout waiting for bundler to exit, forcing kill")
		syscall.Kill(-pid, syscall.SIGKILL)
		<-exited
	}
	return nil
}

// Tracker returns the output tracker of the current run
func (s *Supervisor) Tracker() *OutputTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker
}
