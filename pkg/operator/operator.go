// Package operator runs the reflector control loop.
//
// Startup compiles the topology once, writes nginx.conf and sing.json into
// the tmp directory, records the operator pid and spawns nginx and sing-box.
// The loop then polls both children, and on SIGHUP recompiles the topology
// into scratch state that replaces the live state only when it is valid.
// A child exiting on its own ends the loop with a
// *supervisor.ChildFailureError.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getmockd/reflector/internal/fsutil"
	"github.com/getmockd/reflector/internal/ports"
	"github.com/getmockd/reflector/pkg/camo"
	"github.com/getmockd/reflector/pkg/certs"
	"github.com/getmockd/reflector/pkg/compiler"
	"github.com/getmockd/reflector/pkg/edge"
	"github.com/getmockd/reflector/pkg/logging"
	"github.com/getmockd/reflector/pkg/metrics"
	"github.com/getmockd/reflector/pkg/pidfile"
	"github.com/getmockd/reflector/pkg/prereq"
	"github.com/getmockd/reflector/pkg/routing"
	"github.com/getmockd/reflector/pkg/supervisor"
	"github.com/getmockd/reflector/pkg/topology"
	"github.com/getmockd/reflector/pkg/tunnel"
)

// Child names.
const (
	EdgeChild   = "nginx"
	TunnelChild = "sing-box"
)

// Operator owns the live topology, both generated configurations and the
// supervised children. All methods must be called from one goroutine.
type Operator struct {
	cfg Config
	log *slog.Logger

	certs     compiler.Certificates
	templates *camo.Store
	ports     *ports.Allocator
	resolver  *routing.Resolver

	group *supervisor.Group
	// children mirrors group for the metrics scrape goroutine.
	children atomic.Pointer[supervisor.Group]

	pidWritten bool

	registry      *metrics.Registry
	metrics       *metrics.Operator
	metricsServer *metrics.Server

	state  State
	spec   *topology.TopologySpec
	edge   *edge.Config
	tunnel *tunnel.Config
}

// New creates an operator. Nothing touches the filesystem until Start.
func New(cfg Config) *Operator {
	cfg.applyDefaults()
	log := logging.Component(cfg.Logger, "operator")

	var certMgr compiler.Certificates = cfg.Certificates
	if certMgr == nil {
		certMgr = certs.New(certs.Config{KeyBits: cfg.CertKeyBits, Logger: cfg.Logger})
	}

	reg := metrics.NewRegistry()
	return &Operator{
		cfg:      cfg,
		log:      log,
		certs:    certMgr,
		ports:    ports.NewWithSnapshot(cfg.PortFirst, cfg.PortLast, cfg.PortSnapshot),
		resolver: routing.New(cfg.Logger),
		registry: reg,
		metrics:  metrics.NewOperator(reg),
		state:    StateRunning,
	}
}

// State returns the reload state.
func (o *Operator) State() State { return o.state }

// Spec returns the live topology.
func (o *Operator) Spec() *topology.TopologySpec { return o.spec }

// Registry returns the metrics registry.
func (o *Operator) Registry() *metrics.Registry { return o.registry }

// Ports returns the bridge ports reserved by the live configuration.
func (o *Operator) Ports() []int { return o.ports.Reserved() }

// EdgePath returns the nginx configuration file path.
func (o *Operator) EdgePath() string { return filepath.Join(o.cfg.TmpDir, compiler.EdgeFile) }

// TunnelPath returns the sing-box configuration file path.
func (o *Operator) TunnelPath() string { return filepath.Join(o.cfg.TmpDir, compiler.TunnelFile) }

// Run starts the operator, supervises until ctx is done, a shutdown signal
// arrives or a child fails, and tears everything down.
func (o *Operator) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	reload := make(chan os.Signal, 1)
	if len(reloadSignals) > 0 {
		signal.Notify(reload, reloadSignals...)
		defer signal.Stop(reload)
	}

	if err := o.Start(ctx); err != nil {
		o.Shutdown()
		return err
	}
	defer o.Shutdown()

	if err := o.wait(ctx, o.cfg.BootGrace); err != nil {
		return nil
	}
	o.log.Info("serving on ports: " + o.listenPorts())

	trigger := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		}
	}()

	err := o.Loop(ctx, trigger)
	if err == nil {
		o.log.Info("shutting down")
	}
	return err
}

// Start checks prerequisites, compiles the topology, writes both files and
// the pid file, and spawns the children.
func (o *Operator) Start(ctx context.Context) error {
	if err := prereq.All(
		func() error { return prereq.File("config", o.cfg.ConfigPath) },
		func() error { return prereq.Binary(o.cfg.EdgeBin) },
		func() error { return prereq.Binary(o.cfg.TunnelBin) },
		func() error { return prereq.Dir("camo template dir", o.cfg.CamoDir) },
	); err != nil {
		return err
	}
	if err := os.MkdirAll(o.cfg.TmpDir, 0o755); err != nil {
		return fmt.Errorf("creating tmp dir: %w", err)
	}

	store, err := camo.Stage(camo.Config{
		Source:  o.cfg.CamoDir,
		WorkDir: o.cfg.TmpDir,
		Owner:   o.cfg.EdgeUser,
		Logger:  o.cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("staging camo templates: %w", err)
	}
	o.templates = store

	gen, err := o.compile(ctx)
	if err != nil {
		return err
	}
	if err := o.commit(gen); err != nil {
		return err
	}
	o.log.Debug("reflector booting")

	if err := pidfile.Write(o.cfg.PIDPath(), os.Getpid()); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	o.pidWritten = true
	o.log.Debug("reflector pid", "pid", os.Getpid(), "path", o.cfg.PIDPath())

	o.group = supervisor.NewGroup(
		supervisor.New(EdgeChild, o.cfg.EdgeBin,
			[]string{"-c", o.EdgePath(), "-e", "/dev/stderr", "-p", o.cfg.TmpDir}, o.cfg.Logger),
		supervisor.New(TunnelChild, o.cfg.TunnelBin,
			[]string{"run", "-c", o.TunnelPath()}, o.cfg.Logger),
	)
	if err := o.group.Start(); err != nil {
		o.group = nil
		return fmt.Errorf("starting children: %w", err)
	}
	o.children.Store(o.group)

	if m := o.spec.Spec.Metrics; m != nil {
		metrics.NewProcessCollector(o.registry, o.childPIDs)
		o.metricsServer = metrics.NewServer(m.Addr(), o.registry, o.cfg.Logger)
		if err := o.metricsServer.Start(); err != nil {
			o.metricsServer = nil
			return err
		}
	}
	return nil
}

// Loop supervises the children until ctx is done or a child exits. Each
// value received on reload triggers one reload attempt.
func (o *Operator) Loop(ctx context.Context, reload <-chan struct{}) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reload:
			_ = o.Reload(ctx)
		case <-ticker.C:
			if err := o.group.Poll(); err != nil {
				var failure *supervisor.ChildFailureError
				if errors.As(err, &failure) {
					o.metrics.ChildExited(failure.Name)
					o.log.Error(failure.Name+" exited", "exit_code", failure.ExitCode)
					o.log.Error("can't operate without " + failure.Name + ", shutting down")
				}
				return err
			}
		}
	}
}

// Shutdown stops the metrics server and the children and removes the pid
// file this operator wrote. It is safe to call more than once.
func (o *Operator) Shutdown() {
	if o.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = o.metricsServer.Stop(ctx)
		cancel()
		o.metricsServer = nil
	}
	o.children.Store(nil)
	if o.group != nil {
		if err := o.group.Stop(o.cfg.StopGrace); err != nil {
			o.log.Warn("stopping children", "error", err)
		}
		o.group = nil
	}
	if o.pidWritten {
		o.removePIDFile()
		o.pidWritten = false
	}
}

// removePIDFile removes the pid file unless another instance has taken it
// over since Start.
func (o *Operator) removePIDFile() {
	path := o.cfg.PIDPath()
	pid, err := pidfile.Read(path)
	if err != nil {
		if !errors.Is(err, pidfile.ErrNotFound) {
			o.log.Warn("reading pid file", "error", err)
		}
		return
	}
	if pid != os.Getpid() {
		o.log.Warn("pid file belongs to another process, leaving it", "pid", pid, "path", path)
		return
	}
	if err := pidfile.Remove(path); err != nil && !errors.Is(err, pidfile.ErrNotFound) {
		o.log.Warn("removing pid file", "error", err)
	}
}

func (o *Operator) childPIDs() map[string]int {
	g := o.children.Load()
	if g == nil {
		return nil
	}
	return g.PIDs()
}

func (o *Operator) listenPorts() string {
	out := make([]string, 0, len(o.spec.Spec.Inbounds))
	for _, in := range o.spec.Spec.Inbounds {
		out = append(out, fmt.Sprint(in.ListenPort))
	}
	return strings.Join(out, ", ")
}

func (o *Operator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func writeFiles(edgePath, tunnelPath string, files compiler.Files) error {
	if err := fsutil.WriteFilesAtomic([]fsutil.File{
		{Path: edgePath, Data: files.Edge},
		{Path: tunnelPath, Data: files.Tunnel},
	}, 0o644); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}
	return nil
}
