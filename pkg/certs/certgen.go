package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// Self-signed certificate parameters.
const (
	DefaultKeyBits  = 4096
	DefaultValidFor = 3650 * 24 * time.Hour
)

// Subject returns the subject written into self-signed certificates for
// domain. It matches the -subj argument given to openssl.
func Subject(domain string) pkix.Name {
	return pkix.Name{
		Country:            []string{"NE"},
		Province:           []string{"StateName"},
		Locality:           []string{"CityName"},
		Organization:       []string{"selfsigner.org"},
		OrganizationalUnit: []string{"sso"},
		CommonName:         domain,
	}
}

func subjectArg(domain string) string {
	return "/C=NE/ST=StateName/L=CityName/O=selfsigner.org/OU=sso/CN=" + domain
}

// GeneratedCertificate contains a generated certificate and its private key
// in PEM form.
type GeneratedCertificate struct {
	Certificate *x509.Certificate
	CertPEM     []byte
	KeyPEM      []byte
}

// GenerateSelfSigned creates an RSA self-signed certificate for domain,
// valid from now for validFor.
func GenerateSelfSigned(domain string, bits int, validFor time.Duration) (*GeneratedCertificate, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if validFor == 0 {
		validFor = DefaultValidFor
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               Subject(domain),
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{domain},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return &GeneratedCertificate{
		Certificate: cert,
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	}, nil
}

// Save writes the certificate and key, the key with owner-only permissions.
func (g *GeneratedCertificate) Save(certPath, keyPath string) error {
	if err := os.MkdirAll(filepath.Dir(certPath), 0o755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := os.WriteFile(certPath, g.CertPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := os.WriteFile(keyPath, g.KeyPEM, 0o600); err != nil {
		_ = os.Remove(certPath)
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadCertificate reads the first certificate of a PEM file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("unexpected PEM block type: %s", block.Type)
	}
	return x509.ParseCertificate(block.Bytes)
}

// DaysRemaining returns how many days the certificate at path stays valid.
// The value is negative for expired certificates.
func DaysRemaining(path string) (float64, error) {
	cert, err := LoadCertificate(path)
	if err != nil {
		return 0, err
	}
	return time.Until(cert.NotAfter).Hours() / 24, nil
}
