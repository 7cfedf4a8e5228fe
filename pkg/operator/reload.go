package operator

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/getmockd/reflector/internal/ports"
	"github.com/getmockd/reflector/pkg/certs"
	"github.com/getmockd/reflector/pkg/compiler"
	"github.com/getmockd/reflector/pkg/edge"
	"github.com/getmockd/reflector/pkg/metrics"
	"github.com/getmockd/reflector/pkg/topology"
	"github.com/getmockd/reflector/pkg/tunnel"
)

// State is the reload state machine's position.
type State int

const (
	StateRunning State = iota
	StateValidating
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateValidating:
		return "validating"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// generation is one compiled topology that has not been made live yet.
type generation struct {
	spec   *topology.TopologySpec
	edge   *edge.Config
	tunnel *tunnel.Config
	files  compiler.Files
	ports  *ports.Allocator
	certs  map[string]string
}

// compile loads the topology file and compiles it against a forked
// allocator. Live state is not touched.
func (o *Operator) compile(ctx context.Context) (*generation, error) {
	start := time.Now()
	defer o.metrics.ObserveCompile(start)

	spec, err := topology.Load(o.cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	fork := o.ports.Fork()
	session := &certSession{inner: o.certs, used: make(map[string]string)}
	edgeCfg, tunnelCfg, err := compiler.Compile(ctx, spec, compiler.Deps{
		Certificates: session,
		Ports:        fork,
		Templates:    o.templates,
		Resolver:     o.resolver,
		EdgeUser:     o.cfg.EdgeUser,
		WorkDir:      o.cfg.TmpDir,
		Debug:        o.cfg.Debug,
		Logger:       o.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	files, err := compiler.Render(edgeCfg, tunnelCfg)
	if err != nil {
		return nil, fmt.Errorf("rendering: %w", err)
	}
	return &generation{
		spec:   spec,
		edge:   edgeCfg,
		tunnel: tunnelCfg,
		files:  files,
		ports:  fork,
		certs:  session.paths(),
	}, nil
}

// commit writes both files and then makes gen live. A failed write leaves
// the files and the live state as they were.
func (o *Operator) commit(gen *generation) error {
	if err := writeFiles(o.EdgePath(), o.TunnelPath(), gen.files); err != nil {
		return err
	}

	o.spec, o.edge, o.tunnel = gen.spec, gen.edge, gen.tunnel
	o.ports.Reset()
	o.ports.Adopt(gen.ports)
	o.metrics.SetPorts(len(o.ports.Reserved()))
	o.publishCertificates(gen.certs)
	return nil
}

// Reload runs one pass of the state machine. A topology that fails to load
// or compile leaves the files, the live state and the children untouched.
// Both children are signalled after every successful reload.
func (o *Operator) Reload(ctx context.Context) error {
	o.state = StateValidating
	defer func() { o.state = StateRunning }()

	gen, err := o.compile(ctx)
	if err != nil {
		o.state = StateInvalid
		o.metrics.Reload(metrics.ResultInvalid)
		o.log.Error("config validation failed", "error", err)
		o.log.Error("reload aborted")
		return err
	}
	o.state = StateValid
	o.log.Debug("config validation succeeded")

	if err := o.commit(gen); err != nil {
		o.metrics.Reload(metrics.ResultInvalid)
		o.log.Error("reload failed", "error", err)
		return err
	}
	if o.group != nil {
		if err := o.group.Reload(); err != nil {
			o.log.Error("signalling children", "error", err)
			return err
		}
	}
	o.metrics.Reload(metrics.ResultValid)
	o.log.Info("sighup reload succeeded")
	return nil
}

func (o *Operator) publishCertificates(paths map[string]string) {
	days := make(map[string]float64, len(paths))
	for domain, path := range paths {
		d, err := certs.DaysRemaining(path)
		if err != nil {
			o.log.Debug("reading certificate", "domain", domain, "error", err)
			continue
		}
		days[domain] = d
	}
	o.metrics.SetCertificates(days)
}

// certSession remembers the certificate a compile used per domain.
type certSession struct {
	inner compiler.Certificates
	mu    sync.Mutex
	used  map[string]string
}

func (s *certSession) Prepare(ctx context.Context, issuer, domain, email string) (certs.Certificate, error) {
	cert, err := s.inner.Prepare(ctx, issuer, domain, email)
	if err != nil {
		return cert, err
	}
	s.mu.Lock()
	s.used[domain] = cert.CertPath
	s.mu.Unlock()
	return cert, nil
}

func (s *certSession) paths() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.used)
}
