// Package certs obtains the TLS certificates served by the camouflage
// servers, either self-signed or issued by certbot, and caches them on disk.
package certs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/getmockd/reflector/pkg/logging"
)

// Issuer kinds.
const (
	SelfSigned  = "selfsigned"
	LetsEncrypt = "letsencrypt"
)

// Default locations.
const (
	DefaultSelfSignedDir = "/tmp/reflector-certs"
	DefaultLiveDir       = "/etc/letsencrypt/live"
)

// RenewBefore is the remaining validity below which a certificate is
// issued again.
const RenewBefore = 15 * 24 * time.Hour

// Common errors.
var (
	ErrUnknownIssuer = errors.New("unknown certificate issuer")
	ErrEmailRequired = errors.New("email is required for letsencrypt")
)

// IssuerError is returned when an issuance tool exits non-zero.
type IssuerError struct {
	Issuer   string
	Domain   string
	ExitCode int
	Output   string
}

func (e *IssuerError) Error() string {
	return fmt.Sprintf("%s issuance for %s failed with exit code %d", e.Issuer, e.Domain, e.ExitCode)
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *IssuerError) Hint() string {
	if e.Issuer == LetsEncrypt {
		return "certbot runs in standalone mode: port 80 must be free and the domain must resolve to this host."
	}
	return "Check that openssl works and the certificate directory is writable."
}

// Certificate locates a certificate and its key on disk.
type Certificate struct {
	CertPath string
	KeyPath  string
}

// Config configures a Manager.
type Config struct {
	// SelfSignedDir holds one directory per self-signed domain.
	SelfSignedDir string

	// LiveDir is certbot's live directory.
	LiveDir string

	// Runner runs openssl and certbot. Defaults to ExecRunner.
	Runner Runner

	// LookPath reports whether a tool is installed. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)

	// KeyBits is the RSA key size for self-signed certificates.
	KeyBits int

	Logger *slog.Logger
}

// Manager prepares certificates. Issuance blocks until the tool exits.
type Manager struct {
	cfg Config
	log *slog.Logger
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.SelfSignedDir == "" {
		cfg.SelfSignedDir = DefaultSelfSignedDir
	}
	if cfg.LiveDir == "" {
		cfg.LiveDir = DefaultLiveDir
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.KeyBits == 0 {
		cfg.KeyBits = DefaultKeyBits
	}
	return &Manager{cfg: cfg, log: logging.Component(cfg.Logger, "certs")}
}

// Paths returns where the certificate for domain lives for issuer.
func (m *Manager) Paths(issuer, domain string) (Certificate, error) {
	switch issuer {
	case SelfSigned:
		dir := filepath.Join(m.cfg.SelfSignedDir, domain)
		return Certificate{CertPath: filepath.Join(dir, "cert.pem"), KeyPath: filepath.Join(dir, "key.pem")}, nil
	case LetsEncrypt:
		dir := filepath.Join(m.cfg.LiveDir, domain)
		return Certificate{CertPath: filepath.Join(dir, "fullchain.pem"), KeyPath: filepath.Join(dir, "privkey.pem")}, nil
	default:
		return Certificate{}, fmt.Errorf("%w: %q", ErrUnknownIssuer, issuer)
	}
}

// Prepare returns a certificate for domain, issuing a new one when none is
// cached or the cached one expires within RenewBefore.
func (m *Manager) Prepare(ctx context.Context, issuer, domain, email string) (Certificate, error) {
	if issuer == LetsEncrypt && email == "" {
		return Certificate{}, fmt.Errorf("%s: %w", domain, ErrEmailRequired)
	}
	cert, err := m.Paths(issuer, domain)
	if err != nil {
		return Certificate{}, err
	}

	if fresh(cert) {
		return cert, nil
	}
	m.log.Debug("certificate cache miss", "issuer", issuer, "domain", domain, "path", cert.CertPath)

	switch issuer {
	case SelfSigned:
		err = m.issueSelfSigned(ctx, domain, cert)
	case LetsEncrypt:
		err = m.issueLetsEncrypt(ctx, domain, email)
	}
	if err != nil {
		return Certificate{}, err
	}
	m.log.Info("certificate issued", "issuer", issuer, "domain", domain)
	return cert, nil
}

// fresh reports whether both files exist and the certificate stays valid
// for longer than RenewBefore.
func fresh(cert Certificate) bool {
	if _, err := os.Stat(cert.KeyPath); err != nil {
		return false
	}
	c, err := LoadCertificate(cert.CertPath)
	if err != nil {
		return false
	}
	return time.Until(c.NotAfter) > RenewBefore
}

func (m *Manager) issueSelfSigned(ctx context.Context, domain string, cert Certificate) error {
	if err := os.MkdirAll(filepath.Dir(cert.CertPath), 0o755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}

	if _, err := m.cfg.LookPath("openssl"); err != nil {
		m.log.Debug("openssl not found, generating in process", "domain", domain)
		gen, err := GenerateSelfSigned(domain, m.cfg.KeyBits, DefaultValidFor)
		if err != nil {
			return err
		}
		return gen.Save(cert.CertPath, cert.KeyPath)
	}

	return m.run(ctx, SelfSigned, domain, "openssl",
		"req", "-x509",
		"-newkey", fmt.Sprintf("rsa:%d", m.cfg.KeyBits),
		"-keyout", cert.KeyPath,
		"-out", cert.CertPath,
		"-sha256",
		"-days", "3650",
		"-nodes",
		"-subj", subjectArg(domain),
	)
}

func (m *Manager) issueLetsEncrypt(ctx context.Context, domain, email string) error {
	return m.run(ctx, LetsEncrypt, domain, "certbot",
		"certonly", "--standalone",
		"--preferred-challenges", "http",
		"-d", domain,
		"-m", email,
		"--agree-tos",
		"--non-interactive",
		"--keep-until-expiring",
	)
}

func (m *Manager) run(ctx context.Context, issuer, domain, name string, args ...string) error {
	m.log.Debug("running issuer", "command", name+" "+strings.Join(args, " "))
	res, err := m.cfg.Runner.Run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	if res.ExitCode != 0 {
		return &IssuerError{
			Issuer:   issuer,
			Domain:   domain,
			ExitCode: res.ExitCode,
			Output:   strings.TrimSpace(string(res.Output)),
		}
	}
	return nil
}
