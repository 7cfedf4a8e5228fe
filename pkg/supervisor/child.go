// Package supervisor runs the nginx and sing-box children and watches them.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/getmockd/reflector/pkg/logging"
)

// DefaultStopGrace is how long Stop waits after the terminate signal before
// killing the child.
const DefaultStopGrace = 500 * time.Millisecond

// State is the lifecycle state of a child.
type State int

// Child states.
const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotRunning is returned when signalling a child that is not running.
var ErrNotRunning = errors.New("child is not running")

// ChildFailureError reports a child that exited while it was expected to run.
type ChildFailureError struct {
	Name     string
	ExitCode int
}

func (e *ChildFailureError) Error() string {
	return fmt.Sprintf("%s exited unexpectedly with code %d", e.Name, e.ExitCode)
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *ChildFailureError) Hint() string {
	return fmt.Sprintf("Check the %s output above; rerun with --debug for the generated configuration paths.", e.Name)
}

// Child is one supervised process.
type Child struct {
	Name   string
	Path   string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer

	log *slog.Logger

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	done     chan int
	exitCode int
}

// New returns a stopped child that runs path with args. Output goes to the
// operator's stdout and stderr.
func New(name, path string, args []string, logger *slog.Logger) *Child {
	return &Child{
		Name:   name,
		Path:   path,
		Args:   args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    logging.Component(logger, "supervisor").With("child", name),
	}
}

// Start spawns the process. A waiter goroutine publishes its exit code.
func (c *Child) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Stopped {
		return fmt.Errorf("%s: start in state %s", c.Name, c.state)
	}
	c.state = Starting

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if err := cmd.Start(); err != nil {
		c.state = Stopped
		return fmt.Errorf("starting %s: %w", c.Name, err)
	}

	done := make(chan int, 1)
	go func() {
		_ = cmd.Wait()
		done <- cmd.ProcessState.ExitCode()
	}()

	c.cmd = cmd
	c.done = done
	c.state = Running
	c.log.Debug("started", "pid", cmd.Process.Pid, "path", c.Path, "args", c.Args)
	return nil
}

// Poll reports, without blocking, whether the child has exited and with
// which code. A signal-terminated child reports -1.
func (c *Child) Poll() (exited bool, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollLocked()
}

func (c *Child) pollLocked() (bool, int) {
	if c.done == nil {
		return c.state == Stopped, c.exitCode
	}
	select {
	case code := <-c.done:
		c.reap(code)
		return true, code
	default:
		return false, 0
	}
}

func (c *Child) reap(code int) {
	c.exitCode = code
	c.done = nil
	c.cmd = nil
	c.state = Stopped
}

// State returns the current state.
func (c *Child) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PID returns the process id, or 0 when not running.
func (c *Child) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Signal delivers sig to a running child.
func (c *Child) Signal(sig os.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running || c.cmd == nil {
		return fmt.Errorf("%s: %w", c.Name, ErrNotRunning)
	}
	return c.cmd.Process.Signal(sig)
}

// Reload asks the child to reread its configuration.
func (c *Child) Reload() error {
	return c.Signal(reloadSignal)
}

// Stop sends the terminate signal, waits up to grace and kills the child if
// it is still alive. Stopping a stopped child is a no-op.
func (c *Child) Stop(grace time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if exited, _ := c.pollLocked(); exited || c.cmd == nil {
		return nil
	}
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	c.state = Stopping
	proc, done := c.cmd.Process, c.done

	if err := proc.Signal(terminateSignal); err != nil {
		c.log.Debug("terminate signal failed", "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case code := <-done:
		c.reap(code)
		c.log.Debug("stopped", "code", code)
		return nil
	case <-timer.C:
	}

	c.log.Warn("did not exit in time, killing", "grace", grace)
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing %s: %w", c.Name, err)
	}
	c.reap(<-done)
	return nil
}
