package operator

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/getmockd/reflector/internal/ports"
	"github.com/getmockd/reflector/pkg/compiler"
)

// Default locations, relative to the working directory unless absolute.
const (
	DefaultTmpDir     = "/tmp/reflector/"
	DefaultConfigPath = "config.yaml"
	DefaultPIDFile    = "ops.pid"
	DefaultEdgeBin    = "serverops/bin/nginx"
	DefaultTunnelBin  = "serverops/bin/sing-box"
	DefaultCamoDir    = "serverops/camo/templates"
	DefaultEdgeUser   = "www-data"
)

// Default timings.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultBootGrace    = time.Second
	DefaultStopGrace    = 500 * time.Millisecond
)

// Config configures an Operator.
type Config struct {
	TmpDir     string
	ConfigPath string
	// PIDFile is resolved inside TmpDir when relative.
	PIDFile   string
	EdgeBin   string
	TunnelBin string
	CamoDir   string
	EdgeUser  string
	Debug     bool

	PollInterval time.Duration
	BootGrace    time.Duration
	StopGrace    time.Duration

	// PortFirst and PortLast bound the bridge port range.
	PortFirst int
	PortLast  int
	// PortSnapshot lists bound sockets. Defaults to the host socket table.
	PortSnapshot ports.SnapshotFunc

	// Certificates overrides the certificate manager.
	Certificates compiler.Certificates
	// CertKeyBits is the RSA size for self-signed certificates.
	CertKeyBits int

	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		TmpDir:       DefaultTmpDir,
		ConfigPath:   DefaultConfigPath,
		PIDFile:      DefaultPIDFile,
		EdgeBin:      DefaultEdgeBin,
		TunnelBin:    DefaultTunnelBin,
		CamoDir:      DefaultCamoDir,
		EdgeUser:     DefaultEdgeUser,
		PollInterval: DefaultPollInterval,
		BootGrace:    DefaultBootGrace,
		StopGrace:    DefaultStopGrace,
		PortFirst:    ports.DefaultFirst,
		PortLast:     ports.DefaultLast,
	}
}

// PIDPath returns the pid file location.
func (c Config) PIDPath() string {
	return PIDPath(c.TmpDir, c.PIDFile)
}

// PIDPath joins a relative pid file name onto the tmp directory.
func PIDPath(tmpDir, pidFile string) string {
	if pidFile == "" {
		pidFile = DefaultPIDFile
	}
	if filepath.IsAbs(pidFile) {
		return pidFile
	}
	return filepath.Join(tmpDir, pidFile)
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.TmpDir == "" {
		c.TmpDir = d.TmpDir
	}
	if c.ConfigPath == "" {
		c.ConfigPath = d.ConfigPath
	}
	if c.PIDFile == "" {
		c.PIDFile = d.PIDFile
	}
	if c.EdgeUser == "" {
		c.EdgeUser = d.EdgeUser
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BootGrace < 0 {
		c.BootGrace = 0
	}
	if c.StopGrace <= 0 {
		c.StopGrace = d.StopGrace
	}
}
