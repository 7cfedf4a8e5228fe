// Package compiler turns a topology document into the nginx and sing-box
// configurations that implement it.
//
// Compile is a pure function of the document and of what its collaborators
// return: both trees are built from scratch on every call, so compiling the
// same document against the same collaborator answers yields identical
// output.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/getmockd/reflector/pkg/certs"
	"github.com/getmockd/reflector/pkg/edge"
	"github.com/getmockd/reflector/pkg/logging"
	"github.com/getmockd/reflector/pkg/routing"
	"github.com/getmockd/reflector/pkg/topology"
	"github.com/getmockd/reflector/pkg/tunnel"
)

// Certificates prepares the certificate for a camouflage domain.
type Certificates interface {
	Prepare(ctx context.Context, issuer, domain, email string) (certs.Certificate, error)
}

// Ports hands out loopback bridge ports.
type Ports interface {
	Allocate(ctx context.Context) (int, error)
}

// Templates resolves a camouflage template name to the directory to serve.
type Templates interface {
	Resolve(name string) (string, error)
}

// Resolver computes route allow-lists.
type Resolver interface {
	Resolve(outbounds []topology.OutboundSpec, routes []topology.RouteSpec) *routing.Result
}

// Deps are the collaborators of a compile.
type Deps struct {
	Certificates Certificates
	Ports        Ports
	Templates    Templates
	Resolver     Resolver

	// EdgeUser is the account nginx workers run as.
	EdgeUser string
	// WorkDir holds the generated files; nginx writes its pid file there.
	WorkDir string
	// Debug raises the sing-box log level.
	Debug bool

	Logger *slog.Logger
}

// Error reports the topology item a compile failed on.
type Error struct {
	Kind string // "inbound" or "outbound"
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Compile builds both configurations for spec.
func Compile(ctx context.Context, spec *topology.TopologySpec, deps Deps) (*edge.Config, *tunnel.Config, error) {
	log := logging.Component(deps.Logger, "compiler")
	if deps.Resolver == nil {
		deps.Resolver = routing.New(deps.Logger)
	}
	if deps.EdgeUser == "" {
		deps.EdgeUser = "www-data"
	}

	level := "info"
	if deps.Debug {
		level = "debug"
	}
	edgeCfg := edge.NewConfig(deps.EdgeUser, filepath.Join(deps.WorkDir, "nginx.pid"))
	tunnelCfg := tunnel.NewConfig(level)

	for i := range spec.Spec.Inbounds {
		in := &spec.Spec.Inbounds[i]
		log.Debug("processing inbound", "inbound", in.Name)
		if err := compileInbound(ctx, in, deps, edgeCfg, tunnelCfg); err != nil {
			return nil, nil, &Error{Kind: "inbound", Name: in.Name, Err: err}
		}
	}

	for _, ob := range spec.Spec.Outbounds {
		log.Debug("processing outbound", "outbound", ob.Tag())
		nodes, err := compileOutbound(ob)
		if err != nil {
			return nil, nil, &Error{Kind: "outbound", Name: ob.Tag(), Err: err}
		}
		tunnelCfg.Outbounds = append(tunnelCfg.Outbounds, nodes...)
		if _, ok := ob.(*topology.DirectOutbound); ok && tunnelCfg.Route.Final == "" {
			tunnelCfg.Route.Final = ob.Tag()
		}
	}

	resolved := deps.Resolver.Resolve(spec.Spec.Outbounds, spec.Spec.Routes)
	for _, r := range resolved.Rules {
		tunnelCfg.Route.Rules = append(tunnelCfg.Route.Rules, tunnel.RouteRule{
			AuthUser: append([]string(nil), r.Users...),
			Outbound: r.Outbound,
		})
	}

	return edgeCfg, tunnelCfg, nil
}

func compileInbound(ctx context.Context, in *topology.InboundSpec, deps Deps, edgeCfg *edge.Config, tunnelCfg *tunnel.Config) error {
	port, err := deps.Ports.Allocate(ctx)
	if err != nil {
		return fmt.Errorf("bridge port: %w", err)
	}
	root, err := deps.Templates.Resolve(in.Camo.Template)
	if err != nil {
		return fmt.Errorf("camo template: %w", err)
	}
	cert, err := deps.Certificates.Prepare(ctx, in.Camo.Issuer.Type, in.Camo.FQDN, in.Camo.Issuer.Email)
	if err != nil {
		return fmt.Errorf("certificate: %w", err)
	}

	edgeCfg.HTTP.AddStaticServer(edge.StaticServer{
		ServerName: in.Camo.FQDN,
		Listen:     fmt.Sprintf("127.0.0.1:%d", port),
		Root:       root,
		CertPath:   cert.CertPath,
		KeyPath:    cert.KeyPath,
	})

	listen := in.Listen
	if listen == "" {
		listen = "::"
	}
	users := make([]tunnel.VLESSUser, 0, len(in.Users))
	shortIDs := make([]string, 0, len(in.Users))
	for _, u := range in.Users {
		users = append(users, tunnel.VLESSUser{Name: u.Name, UUID: u.UUID, Flow: u.Flow})
		shortIDs = append(shortIDs, u.ShortID)
	}
	tunnelCfg.Inbounds = append(tunnelCfg.Inbounds, &tunnel.VLESSInbound{
		Name:       in.Name,
		Listen:     listen,
		ListenPort: in.ListenPort,
		Users:      users,
		TLS: &tunnel.InboundTLS{
			Enabled:    true,
			ServerName: in.Camo.FQDN,
			Reality: &tunnel.InboundReality{
				Enabled:    true,
				Handshake:  tunnel.Handshake{Server: "localhost", ServerPort: port},
				PrivateKey: in.PrivateKey,
				ShortID:    shortIDs,
			},
		},
	})
	return nil
}

func compileOutbound(ob topology.OutboundSpec) ([]tunnel.Outbound, error) {
	switch o := ob.(type) {
	case *topology.DirectOutbound:
		return []tunnel.Outbound{&tunnel.DirectOutbound{Name: o.Name}}, nil

	case *topology.RemoteOutbound:
		serverName := o.ServerName
		if serverName == "" {
			serverName = o.Server
		}
		nodes := make([]tunnel.Outbound, 0, len(o.Users))
		for _, u := range o.Users {
			tls := &tunnel.OutboundTLS{
				Enabled:    true,
				ServerName: serverName,
				Reality: &tunnel.OutboundReality{
					Enabled:   true,
					PublicKey: o.PublicKey,
					ShortID:   u.ShortID,
				},
			}
			if o.Fingerprint != "" {
				tls.UTLS = &tunnel.UTLS{Enabled: true, Fingerprint: o.Fingerprint}
			}
			nodes = append(nodes, &tunnel.VLESSOutbound{
				Name:       routing.SynthesizedTag(u.Name, o.Name),
				Server:     o.Server,
				ServerPort: o.ServerPort,
				UUID:       u.UUID,
				Flow:       u.Flow,
				TLS:        tls,
			})
		}
		return nodes, nil

	case *topology.LinkOutbound:
		node, err := tunnel.OutboundFromLink(o.Link, o.Name)
		if err != nil {
			return nil, err
		}
		return []tunnel.Outbound{node}, nil

	default:
		return nil, fmt.Errorf("unsupported outbound type %T", ob)
	}
}
