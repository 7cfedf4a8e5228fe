package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/getmockd/reflector/internal/ports"
	"github.com/getmockd/reflector/pkg/certs"
	"github.com/getmockd/reflector/pkg/prereq"
	"github.com/getmockd/reflector/pkg/topology"
	"github.com/getmockd/reflector/pkg/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCerts struct {
	calls int
	err   error
}

func (f *fakeCerts) Prepare(_ context.Context, issuer, domain, _ string) (certs.Certificate, error) {
	f.calls++
	if f.err != nil {
		return certs.Certificate{}, f.err
	}
	return certs.Certificate{
		CertPath: "/certs/" + issuer + "/" + domain + "/cert.pem",
		KeyPath:  "/certs/" + issuer + "/" + domain + "/key.pem",
	}, nil
}

type fakeTemplates map[string]string

func (f fakeTemplates) Resolve(name string) (string, error) {
	if dir, ok := f[name]; ok {
		return dir, nil
	}
	return "", &prereq.MissingError{What: "template", Path: name}
}

func noSockets(context.Context) (map[int]struct{}, error) { return map[int]struct{}{}, nil }

func newDeps(certMgr Certificates) Deps {
	return Deps{
		Certificates: certMgr,
		Ports:        ports.NewWithSnapshot(42000, 42010, noSockets),
		Templates:    fakeTemplates{"blog": "/srv/templates/blog"},
		WorkDir:      "/tmp/reflector",
	}
}

func singleInbound() *topology.TopologySpec {
	return &topology.TopologySpec{
		APIVersion: topology.APIVersion,
		Kind:       topology.Kind,
		Spec: topology.Spec{
			Inbounds: []topology.InboundSpec{{
				Name:       "main",
				Type:       topology.InboundVLESS,
				ListenPort: 443,
				PrivateKey: "priv",
				Users:      []topology.User{{Name: "u", UUID: "6f1c2a9e-3b4d-4e8f-9a10-2b3c4d5e6f70", ShortID: "s"}},
				Camo: topology.Camo{
					Type:     topology.CamoLocal,
					Template: "blog",
					FQDN:     "d",
					Issuer:   topology.Issuer{Type: topology.IssuerSelfSigned},
				},
			}},
			Outbounds: topology.Outbounds{&topology.DirectOutbound{Name: "out1"}},
			Routes:    []topology.RouteSpec{{User: "u", Outbound: "out1"}},
		},
	}
}

func TestCompile_EndToEnd(t *testing.T) {
	edgeCfg, tunnelCfg, err := Compile(context.Background(), singleInbound(), newDeps(&fakeCerts{}))
	require.NoError(t, err)

	require.Len(t, tunnelCfg.Inbounds, 1)
	in, ok := tunnelCfg.Inbounds[0].(*tunnel.VLESSInbound)
	require.True(t, ok)
	assert.Equal(t, "main", in.Tag())
	assert.Equal(t, "::", in.Listen)
	assert.Equal(t, 443, in.ListenPort)
	require.NotNil(t, in.TLS)
	assert.Equal(t, "d", in.TLS.ServerName)
	require.NotNil(t, in.TLS.Reality)
	assert.True(t, in.TLS.Reality.Enabled)
	assert.Equal(t, []string{"s"}, in.TLS.Reality.ShortID)
	assert.Equal(t, tunnel.Handshake{Server: "localhost", ServerPort: 42000}, in.TLS.Reality.Handshake)
	assert.Equal(t, "priv", in.TLS.Reality.PrivateKey)

	require.Len(t, tunnelCfg.Outbounds, 1)
	assert.Equal(t, "out1", tunnelCfg.Outbounds[0].Tag())
	assert.IsType(t, &tunnel.DirectOutbound{}, tunnelCfg.Outbounds[0])

	require.Len(t, tunnelCfg.Route.Rules, 1)
	assert.Equal(t, tunnel.RouteRule{AuthUser: []string{"u"}, Outbound: "out1"}, tunnelCfg.Route.Rules[0])
	assert.Equal(t, "out1", tunnelCfg.Route.Final)

	require.Len(t, edgeCfg.HTTP.Servers, 1)
	srv := edgeCfg.HTTP.Servers[0]
	assert.Equal(t, "d", srv.ServerName)
	assert.Equal(t, "127.0.0.1:42000", srv.Listen)
	assert.Equal(t, "/srv/templates/blog", srv.Locations[0].Root)
	require.NotNil(t, srv.SSL)
	assert.Equal(t, "/certs/selfsigned/d/cert.pem", srv.SSL.Certificate)
	assert.Equal(t, "/tmp/reflector/nginx.pid", edgeCfg.PIDPath)
}

func TestCompile_Deterministic(t *testing.T) {
	spec := singleInbound()
	spec.Spec.Outbounds = append(spec.Spec.Outbounds,
		&topology.RemoteOutbound{
			Name: "B", Server: "1.2.3.4", ServerPort: 443, PublicKey: "pbk",
			Users: []topology.User{{Name: "u", UUID: "id-u", ShortID: "aa"}, {Name: "v", UUID: "id-v"}},
		},
		&topology.LinkOutbound{Name: "L", Link: "vless://id@h:443?security=reality&sni=s&pbk=k&sid=01"},
	)
	spec.Spec.Routes = append(spec.Spec.Routes, topology.RouteSpec{User: "u", Outbound: "B"})

	render := func() Files {
		e, tu, err := Compile(context.Background(), spec, newDeps(&fakeCerts{}))
		require.NoError(t, err)
		files, err := Render(e, tu)
		require.NoError(t, err)
		return files
	}

	first, second := render(), render()
	assert.Equal(t, first.Edge, second.Edge)
	assert.Equal(t, first.Tunnel, second.Tunnel)
}

func TestCompile_RemoteOutbound(t *testing.T) {
	spec := singleInbound()
	spec.Spec.Outbounds = topology.Outbounds{
		&topology.RemoteOutbound{
			Name: "B", Server: "1.2.3.4", ServerPort: 8443, PublicKey: "pbk", Fingerprint: "chrome",
			Users: []topology.User{
				{Name: "alice", UUID: "id-a", Flow: "xtls-rprx-vision", ShortID: "aa"},
				{Name: "carol", UUID: "id-c", ShortID: "cc"},
			},
		},
		&topology.RemoteOutbound{
			Name: "C", Server: "5.6.7.8", ServerPort: 443, ServerName: "front.example", PublicKey: "pbk2",
			Users: []topology.User{{Name: "alice", UUID: "id-a2"}},
		},
	}
	spec.Spec.Routes = []topology.RouteSpec{
		{User: "bob", Outbound: "B"},
		{User: "alice", Outbound: "B"},
	}

	_, tunnelCfg, err := Compile(context.Background(), spec, newDeps(&fakeCerts{}))
	require.NoError(t, err)

	tags := make([]string, 0, len(tunnelCfg.Outbounds))
	for _, o := range tunnelCfg.Outbounds {
		tags = append(tags, o.Tag())
	}
	assert.Equal(t, []string{"alice@B", "carol@B", "alice@C"}, tags)

	a := tunnelCfg.Outbounds[0].(*tunnel.VLESSOutbound)
	assert.Equal(t, "1.2.3.4", a.Server)
	assert.Equal(t, 8443, a.ServerPort)
	assert.Equal(t, "id-a", a.UUID)
	assert.Equal(t, "xtls-rprx-vision", a.Flow)
	assert.Equal(t, "1.2.3.4", a.TLS.ServerName, "server name falls back to server")
	assert.Equal(t, &tunnel.UTLS{Enabled: true, Fingerprint: "chrome"}, a.TLS.UTLS)
	assert.Equal(t, &tunnel.OutboundReality{Enabled: true, PublicKey: "pbk", ShortID: "aa"}, a.TLS.Reality)

	c := tunnelCfg.Outbounds[2].(*tunnel.VLESSOutbound)
	assert.Equal(t, "front.example", c.TLS.ServerName)
	assert.Nil(t, c.TLS.UTLS)

	assert.Equal(t, []tunnel.RouteRule{{AuthUser: []string{"alice"}, Outbound: "alice@B"}}, tunnelCfg.Route.Rules)
	assert.Empty(t, tunnelCfg.Route.Final)
}

func TestCompile_Errors(t *testing.T) {
	t.Run("missing template", func(t *testing.T) {
		spec := singleInbound()
		spec.Spec.Inbounds[0].Camo.Template = "shop"
		certMgr := &fakeCerts{}

		_, _, err := Compile(context.Background(), spec, newDeps(certMgr))
		require.Error(t, err)
		assert.True(t, prereq.IsMissing(err))
		assert.Zero(t, certMgr.calls)

		var ce *Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "inbound", ce.Kind)
		assert.Equal(t, "main", ce.Name)
	})

	t.Run("certificate failure", func(t *testing.T) {
		issuerErr := &certs.IssuerError{Issuer: certs.LetsEncrypt, Domain: "d", ExitCode: 1}
		_, _, err := Compile(context.Background(), singleInbound(), newDeps(&fakeCerts{err: issuerErr}))
		var ie *certs.IssuerError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, 1, ie.ExitCode)
	})

	t.Run("port exhaustion", func(t *testing.T) {
		deps := newDeps(&fakeCerts{})
		deps.Ports = ports.NewWithSnapshot(42000, 42000, func(context.Context) (map[int]struct{}, error) {
			return map[int]struct{}{42000: {}}, nil
		})
		_, _, err := Compile(context.Background(), singleInbound(), deps)
		assert.ErrorIs(t, err, ports.ErrExhausted)
	})

	t.Run("unsupported link", func(t *testing.T) {
		spec := singleInbound()
		spec.Spec.Outbounds = append(spec.Spec.Outbounds, &topology.LinkOutbound{Name: "ss", Link: "ss://x@h:1"})
		_, _, err := Compile(context.Background(), spec, newDeps(&fakeCerts{}))
		assert.ErrorIs(t, err, tunnel.ErrUnsupportedScheme)

		var ce *Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "outbound", ce.Kind)
	})
}

func TestCompile_LinkOutbound(t *testing.T) {
	spec := singleInbound()
	spec.Spec.Outbounds = topology.Outbounds{
		&topology.LinkOutbound{Name: "L", Link: "vless://id@h:443?security=none"},
	}
	spec.Spec.Routes = []topology.RouteSpec{{User: "anyone", Outbound: "L"}}

	_, tunnelCfg, err := Compile(context.Background(), spec, newDeps(&fakeCerts{}))
	require.NoError(t, err)

	v := tunnelCfg.Outbounds[0].(*tunnel.VLESSOutbound)
	assert.Nil(t, v.TLS)
	assert.Equal(t, []tunnel.RouteRule{{AuthUser: []string{"anyone"}, Outbound: "L"}}, tunnelCfg.Route.Rules)
}
