package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expose(t *testing.T, r *Registry) string {
	t.Helper()
	var b strings.Builder
	_, err := r.WriteTo(&b)
	require.NoError(t, err)
	return b.String()
}

func TestCounter(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("test_total", "A test counter", "kind")

	c.With("a").Inc()
	c.With("a").Add(2)
	c.With("b").Inc()
	c.With("b").Add(-5)

	assert.Equal(t, 3.0, c.With("a").Get())
	assert.Equal(t, 1.0, c.With("b").Get())

	out := expose(t, r)
	assert.Equal(t, "# HELP test_total A test counter\n"+
		"# TYPE test_total counter\n"+
		"test_total{kind=\"a\"} 3\n"+
		"test_total{kind=\"b\"} 1\n", out)
}

func TestCounter_WrongLabelCountPanics(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("x_total", "x", "a", "b")
	assert.Panics(t, func() { c.With("only-one") })
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("level", "A gauge")

	g.With().Set(4)
	g.With().Add(-1.5)
	assert.Equal(t, 2.5, g.With().Get())
	assert.Contains(t, expose(t, r), "level 2.5\n")

	g.Reset()
	assert.NotContains(t, expose(t, r), "level")
}

func TestHistogram(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("dur_seconds", "Durations", []float64{1, 0.1})

	h.Observe(0.0625)
	h.Observe(0.5)
	h.Observe(3)

	out := expose(t, r)
	assert.Contains(t, out, "# TYPE dur_seconds histogram\n")
	assert.Contains(t, out, "dur_seconds_bucket{le=\"0.1\"} 1\n")
	assert.Contains(t, out, "dur_seconds_bucket{le=\"1\"} 2\n")
	assert.Contains(t, out, "dur_seconds_bucket{le=\"+Inf\"} 3\n")
	assert.Contains(t, out, "dur_seconds_sum 3.5625\n")
	assert.Contains(t, out, "dur_seconds_count 3\n")
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.NewGauge("dup", "first")
	assert.Panics(t, func() { r.NewCounter("dup", "second") })
}

func TestEscaping(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("esc", "line one\nback\\slash", "v")
	g.With("a\"b\\c\nd").Set(1)

	out := expose(t, r)
	assert.Contains(t, out, "# HELP esc line one\\nback\\\\slash\n")
	assert.Contains(t, out, "esc{v=\"a\\\"b\\\\c\\nd\"} 1\n")
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1.5, "1.5"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in))
	}
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("c_total", "c", "w")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.With("x").Inc()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000.0, c.With("x").Get())
}

func TestOperator(t *testing.T) {
	r := NewRegistry()
	m := NewOperator(r)

	m.Reload(ResultValid)
	m.Reload(ResultInvalid)
	m.Reload(ResultInvalid)
	m.ChildExited("nginx")
	m.SetPorts(2)
	m.SetCertificates(map[string]float64{"a.example.com": 30})
	m.SetCertificates(map[string]float64{"b.example.com": 10})
	m.ObserveCompile(time.Now())

	out := expose(t, r)
	assert.Contains(t, out, `reflector_reloads_total{result="invalid"} 2`)
	assert.Contains(t, out, `reflector_reloads_total{result="valid"} 1`)
	assert.Contains(t, out, `reflector_child_exits_total{child="nginx"} 1`)
	assert.Contains(t, out, "reflector_ports_reserved 2\n")
	assert.Contains(t, out, `reflector_certificate_days_remaining{domain="b.example.com"} 10`)
	assert.NotContains(t, out, "a.example.com")
	assert.Contains(t, out, "reflector_compile_duration_seconds_count 1\n")
}

func TestOperator_NilIsNoop(t *testing.T) {
	var m *Operator
	assert.NotPanics(t, func() {
		m.Reload(ResultValid)
		m.ChildExited("x")
		m.SetPorts(1)
		m.SetCertificates(nil)
		m.ObserveCompile(time.Now())
	})
}

func TestProcessCollector(t *testing.T) {
	r := NewRegistry()
	NewProcessCollector(r, func() map[string]int {
		return map[string]int{"self": os.Getpid(), "gone": 0}
	})

	out := expose(t, r)
	assert.Contains(t, out, `reflector_child_up{child="self"} 1`)
	assert.Contains(t, out, `reflector_child_up{child="gone"} 0`)
	assert.Contains(t, out, `reflector_child_resident_bytes{child="self"}`)
	assert.NotContains(t, out, `reflector_child_resident_bytes{child="gone"}`)
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("hits_total", "hits").With().Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "version=0.0.4")
	assert.Contains(t, rec.Body.String(), "hits_total 1\n")
}

func TestServer(t *testing.T) {
	r := NewRegistry()
	r.NewGauge("up", "up").With().Set(1)

	s := NewServer("127.0.0.1:0", r, nil)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "up 1\n")

	health, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
