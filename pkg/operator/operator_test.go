//go:build !windows

package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/getmockd/reflector/pkg/certs"
	"github.com/getmockd/reflector/pkg/prereq"
	"github.com/getmockd/reflector/pkg/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topologyDoc = `
apiVersion: reflector/v1
kind: Topology
spec:
  inbounds:
    - name: main
      type: vless
      listen_port: 8443
      private_key: priv
      users:
        - {name: alice, uuid: 6f1c2a9e-3b4d-4e8f-9a10-2b3c4d5e6f70, flow: xtls-rprx-vision, short_id: "0123abcd"}
      camo:
        type: local
        template: blog
        fqdn: FQDN
        issuer: {type: selfsigned}
  outbounds:
    - {name: out1, type: direct}
  routes:
    - {user: alice, outbound: out1}
`

// Stays alive and records every SIGHUP next to itself.
const childScript = `#!/bin/sh
trap 'echo hup >> "$0.hup"' HUP
while :; do sleep 0.05; done
`

type fakeCerts struct{ dir string }

func (f fakeCerts) Prepare(_ context.Context, _, domain, _ string) (certs.Certificate, error) {
	return certs.Certificate{
		CertPath: filepath.Join(f.dir, domain, "cert.pem"),
		KeyPath:  filepath.Join(f.dir, domain, "key.pem"),
	}, nil
}

func noSockets(context.Context) (map[int]struct{}, error) { return map[int]struct{}{}, nil }

type fixture struct {
	cfg       Config
	root      string
	edgeBin   string
	tunnelBin string
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

func writeTopology(t *testing.T, path, fqdn string) {
	t.Helper()
	doc := strings.Replace(topologyDoc, "FQDN", fqdn, 1)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	camoDir := filepath.Join(root, "camo")
	require.NoError(t, os.MkdirAll(filepath.Join(camoDir, "blog"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(camoDir, "blog", "index.html"), []byte("<h1>hi</h1>"), 0o644))

	f := &fixture{
		root:      root,
		edgeBin:   filepath.Join(root, "nginx"),
		tunnelBin: filepath.Join(root, "sing-box"),
	}
	writeScript(t, f.edgeBin, childScript)
	writeScript(t, f.tunnelBin, childScript)

	configPath := filepath.Join(root, "config.yaml")
	writeTopology(t, configPath, "example.com")

	owner := DefaultEdgeUser
	if u, err := user.Current(); err == nil {
		owner = u.Username
	}

	f.cfg = Config{
		TmpDir:       filepath.Join(root, "tmp"),
		ConfigPath:   configPath,
		PIDFile:      "ops.pid",
		EdgeBin:      f.edgeBin,
		TunnelBin:    f.tunnelBin,
		CamoDir:      camoDir,
		EdgeUser:     owner,
		PollInterval: 10 * time.Millisecond,
		StopGrace:    200 * time.Millisecond,
		PortFirst:    42000,
		PortLast:     42010,
		PortSnapshot: noSockets,
		Certificates: fakeCerts{dir: filepath.Join(root, "certs")},
	}
	return f
}

func (f *fixture) start(t *testing.T) *Operator {
	t.Helper()
	op := New(f.cfg)
	require.NoError(t, op.Start(context.Background()))
	t.Cleanup(op.Shutdown)
	return op
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func counter(t *testing.T, op *Operator, line string) bool {
	t.Helper()
	var b strings.Builder
	_, err := op.Registry().WriteTo(&b)
	require.NoError(t, err)
	return strings.Contains(b.String(), line)
}

func TestStart_WritesFilesAndPID(t *testing.T) {
	f := newFixture(t)
	op := f.start(t)

	edgeConf := readFile(t, op.EdgePath())
	assert.Contains(t, edgeConf, "server_name example.com;")
	assert.Contains(t, edgeConf, "listen 127.0.0.1:42000 ssl;")

	tunnelConf := readFile(t, op.TunnelPath())
	assert.Contains(t, tunnelConf, `"listen_port": 8443`)
	assert.Contains(t, tunnelConf, `"server_port": 42000`)
	assert.Contains(t, tunnelConf, `"final": "out1"`)

	pid := strings.TrimSpace(readFile(t, filepath.Join(f.cfg.TmpDir, "ops.pid")))
	assert.Equal(t, strconv.Itoa(os.Getpid()), pid)
	assert.Equal(t, []int{42000}, op.Ports())
	assert.Equal(t, StateRunning, op.State())

	op.Shutdown()
	assert.NoFileExists(t, filepath.Join(f.cfg.TmpDir, "ops.pid"))
}

func TestStart_MissingPrerequisites(t *testing.T) {
	f := newFixture(t)
	f.cfg.EdgeBin = filepath.Join(f.root, "no-such-nginx")
	f.cfg.CamoDir = filepath.Join(f.root, "no-such-camo")

	op := New(f.cfg)
	err := op.Start(context.Background())
	require.Error(t, err)
	assert.True(t, prereq.IsMissing(err))
	assert.Contains(t, err.Error(), "no-such-nginx")
	assert.Contains(t, err.Error(), "no-such-camo")
	assert.NoFileExists(t, op.EdgePath())
}

func TestShutdown_LeavesForeignPIDFile(t *testing.T) {
	foreign := strconv.Itoa(os.Getppid()) + "\n"

	t.Run("failed start", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.EdgeBin = filepath.Join(f.root, "no-such-nginx")
		pidPath := filepath.Join(f.cfg.TmpDir, "ops.pid")
		require.NoError(t, os.MkdirAll(f.cfg.TmpDir, 0o755))
		require.NoError(t, os.WriteFile(pidPath, []byte(foreign), 0o644))

		op := New(f.cfg)
		require.Error(t, op.Start(context.Background()))
		op.Shutdown()

		assert.Equal(t, foreign, readFile(t, pidPath))
	})

	t.Run("taken over while running", func(t *testing.T) {
		f := newFixture(t)
		op := f.start(t)
		pidPath := filepath.Join(f.cfg.TmpDir, "ops.pid")
		require.NoError(t, os.WriteFile(pidPath, []byte(foreign), 0o644))

		op.Shutdown()

		assert.Equal(t, foreign, readFile(t, pidPath))
	})
}

func TestMetrics_ScrapeAcrossStartAndShutdown(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	doc := strings.Replace(topologyDoc, "FQDN", "example.com", 1) +
		fmt.Sprintf("  metrics: {listen: 127.0.0.1, port: %d}\n", port)
	require.NoError(t, os.WriteFile(f.cfg.ConfigPath, []byte(doc), 0o644))

	op := New(f.cfg)
	stop := make(chan struct{})
	scraped := make(chan struct{})
	go func() {
		defer close(scraped)
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = op.Registry().WriteTo(io.Discard)
			}
		}
	}()

	require.NoError(t, op.Start(context.Background()))

	// The scraper resets the gauges concurrently, so a single response may
	// miss the line.
	assert.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && strings.Contains(string(body), `reflector_child_up{child="nginx"} 1`)
	}, 3*time.Second, 20*time.Millisecond)

	op.Shutdown()
	close(stop)
	<-scraped

	var b strings.Builder
	_, err = op.Registry().WriteTo(&b)
	require.NoError(t, err)
	assert.NotContains(t, b.String(), `reflector_child_up{child="nginx"} 1`)
}

func TestReload_InvalidLeavesEverythingUntouched(t *testing.T) {
	f := newFixture(t)
	op := f.start(t)

	edgeBefore := readFile(t, op.EdgePath())
	tunnelBefore := readFile(t, op.TunnelPath())
	specBefore := op.Spec()

	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "spec: [unclosed"},
		{"schema violation", "apiVersion: reflector/v1\nkind: Topology\nspec: {inbounds: 3}\n"},
		{"missing template", strings.Replace(strings.Replace(topologyDoc, "FQDN", "example.com", 1), "template: blog", "template: shop", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(f.cfg.ConfigPath, []byte(tt.doc), 0o644))

			err := op.Reload(context.Background())
			require.Error(t, err)

			assert.Equal(t, edgeBefore, readFile(t, op.EdgePath()))
			assert.Equal(t, tunnelBefore, readFile(t, op.TunnelPath()))
			assert.Same(t, specBefore, op.Spec())
			assert.Equal(t, []int{42000}, op.Ports())
			assert.Equal(t, StateRunning, op.State())
		})
	}
	assert.True(t, counter(t, op, `reflector_reloads_total{result="invalid"} 3`))
	assert.NoFileExists(t, f.edgeBin+".hup")
	assert.NoFileExists(t, f.tunnelBin+".hup")
}

func TestReload_WriteFailureKeepsLiveState(t *testing.T) {
	f := newFixture(t)
	op := f.start(t)

	edgeBefore := readFile(t, op.EdgePath())
	tunnelBefore := readFile(t, op.TunnelPath())
	specBefore := op.Spec()

	// A directory where the staged sing.json would go makes the write fail.
	blocker := op.TunnelPath() + ".tmp"
	require.NoError(t, os.Mkdir(blocker, 0o755))

	writeTopology(t, f.cfg.ConfigPath, "other.example.com")
	require.Error(t, op.Reload(context.Background()))

	assert.Equal(t, edgeBefore, readFile(t, op.EdgePath()))
	assert.Equal(t, tunnelBefore, readFile(t, op.TunnelPath()))
	assert.NoFileExists(t, op.EdgePath()+".tmp")
	assert.Same(t, specBefore, op.Spec())
	assert.Equal(t, []int{42000}, op.Ports())
	assert.True(t, counter(t, op, `reflector_reloads_total{result="invalid"} 1`))
	assert.NoFileExists(t, f.edgeBin+".hup")

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, op.Reload(context.Background()))
	assert.Contains(t, readFile(t, op.EdgePath()), "server_name other.example.com;")
	assert.Equal(t, "other.example.com", op.Spec().Spec.Inbounds[0].Camo.FQDN)
}

func TestReload_ValidSwapsAndSignalsBothChildren(t *testing.T) {
	f := newFixture(t)
	op := f.start(t)

	writeTopology(t, f.cfg.ConfigPath, "other.example.com")
	require.NoError(t, op.Reload(context.Background()))

	assert.Contains(t, readFile(t, op.EdgePath()), "server_name other.example.com;")
	assert.Equal(t, "other.example.com", op.Spec().Spec.Inbounds[0].Camo.FQDN)
	// The fork starts empty, so the live reservation is replaced, not grown.
	assert.Equal(t, []int{42000}, op.Ports())
	assert.True(t, counter(t, op, `reflector_reloads_total{result="valid"} 1`))

	for _, bin := range []string{f.edgeBin, f.tunnelBin} {
		assert.Eventually(t, func() bool {
			_, err := os.Stat(bin + ".hup")
			return err == nil
		}, 3*time.Second, 20*time.Millisecond, "%s never saw SIGHUP", filepath.Base(bin))
	}
}

func TestLoop_ChildExitIsFatal(t *testing.T) {
	f := newFixture(t)
	writeScript(t, f.tunnelBin, "#!/bin/sh\nsleep 0.2\nexit 3\n")
	op := f.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := op.Loop(ctx, nil)
	var failure *supervisor.ChildFailureError
	require.True(t, errors.As(err, &failure), "got %v", err)
	assert.Equal(t, TunnelChild, failure.Name)
	assert.Equal(t, 3, failure.ExitCode)
	assert.True(t, counter(t, op, `reflector_child_exits_total{child="sing-box"} 1`))
}

func TestLoop_ReloadTriggerAndCancel(t *testing.T) {
	f := newFixture(t)
	op := f.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	trigger := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- op.Loop(ctx, trigger) }()

	writeTopology(t, f.cfg.ConfigPath, "loop.example.com")
	trigger <- struct{}{}

	assert.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(f.cfg.TmpDir, "nginx.conf"))
		return err == nil && strings.Contains(string(b), "loop.example.com")
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not return after cancel")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateRunning, "running"},
		{StateValidating, "validating"},
		{StateValid, "valid"},
		{StateInvalid, "invalid"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestPIDPath(t *testing.T) {
	assert.Equal(t, "/tmp/reflector/ops.pid", PIDPath("/tmp/reflector/", ""))
	assert.Equal(t, "/run/r.pid", PIDPath("/tmp/reflector/", "/run/r.pid"))
	assert.Equal(t, "/x/y.pid", PIDPath("/x", "y.pid"))
}
