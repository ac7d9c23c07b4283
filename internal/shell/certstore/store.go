// Package certstore writes simulator certificates to disk and reads them back.
//
// Layout, per certificate ID:
//
//	<dir>/<id>/cert/<id>.cert.pem
//	<dir>/<id>/cert/<id>-root.cert.pem   (self-signed only)
//	<dir>/<id>/cert/<id>.cert.pfx        (ExportPFX only)
//	<dir>/<id>/private/<id>.key.pem
package certstore

import (
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"

	"github.com/artpar/iotedgehubdev/internal/core/certs"
)

const (
	certSuffix = ".cert.pem"
	pfxSuffix  = ".cert.pfx"
	keySuffix  = ".key.pem"
	rootSuffix = "-root.cert.pem"

	certDir    = "cert"
	privateDir = "private"
)

// ErrCertificateMissing is returned when a requested artifact is not on disk.
var ErrCertificateMissing = errors.New("certificate file missing")

// Store manages certificate artifacts under one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a store rooted at dir.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// CertPath returns the PEM certificate path of id.
func (s *Store) CertPath(id string) string {
	return filepath.Join(s.dir, id, certDir, id+certSuffix)
}

// PFXPath returns the PKCS#12 path of id.
func (s *Store) PFXPath(id string) string {
	return filepath.Join(s.dir, id, certDir, id+pfxSuffix)
}

// KeyPath returns the private key path of id.
func (s *Store) KeyPath(id string) string {
	return filepath.Join(s.dir, id, privateDir, id+keySuffix)
}

// =============================================================================
// Export
// =============================================================================

// Export replaces the artifacts of id with its current certificate and key.
func (s *Store) Export(a *certs.Authority, id string) error {
	entry, err := a.Get(id)
	if err != nil {
		return err
	}
	certPEM, err := a.CertPEM(id)
	if err != nil {
		return err
	}
	keyPEM, err := a.KeyPEM(id)
	if err != nil {
		return err
	}

	base, err := s.resetDir(id)
	if err != nil {
		return err
	}

	priv := filepath.Join(base, privateDir)
	if err := os.MkdirAll(priv, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", priv, err)
	}
	// MkdirAll is subject to umask.
	if err := os.Chmod(priv, 0o700); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", priv, err)
	}
	if err := os.MkdirAll(filepath.Join(base, certDir), 0o755); err != nil {
		return fmt.Errorf("failed to create cert dir for %s: %w", id, err)
	}

	if err := writeFile(s.KeyPath(id), keyPEM, 0o600); err != nil {
		return err
	}
	if err := writeFile(s.CertPath(id), certPEM, 0o644); err != nil {
		return err
	}
	if entry.IsRoot() {
		root := filepath.Join(base, certDir, id+rootSuffix)
		if err := writeFile(root, certPEM, 0o644); err != nil {
			return err
		}
	}

	s.logger.Debug("exported certificate", "cert_id", id, "path", base)
	return nil
}

// ExportPFX writes id as a password-less PKCS#12 archive next to its PEM.
// Export must have run for id first.
func (s *Store) ExportPFX(a *certs.Authority, id string) error {
	data, err := a.PFX(id)
	if err != nil {
		return err
	}
	if err := writeFile(s.PFXPath(id), data, 0o644); err != nil {
		return err
	}
	s.logger.Debug("exported pfx", "cert_id", id)
	return nil
}

// WriteChain concatenates the PEM certificates of ids into the certificate
// file of outID, replacing any previous outID artifacts.
func (s *Store) WriteChain(a *certs.Authority, outID string, ids ...string) error {
	data, err := a.Chain(ids...)
	if err != nil {
		return err
	}
	base, err := s.resetDir(outID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(base, certDir), 0o755); err != nil {
		return fmt.Errorf("failed to create cert dir for %s: %w", outID, err)
	}
	if err := writeFile(s.CertPath(outID), data, 0o644); err != nil {
		return err
	}
	s.logger.Debug("wrote certificate chain", "cert_id", outID, "members", ids)
	return nil
}

// GenerateEdgeCerts creates a fresh edge chain for hostname and writes
// every artifact the simulator mounts into its containers.
func (s *Store) GenerateEdgeCerts(hostname string, opts ...certs.Option) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create certificate dir %s: %w", s.dir, err)
	}

	a, err := certs.NewEdgeChain(hostname, opts...)
	if err != nil {
		return fmt.Errorf("failed to create certificate chain: %w", err)
	}

	for _, id := range []string{certs.DeviceCA, certs.AgentCA, certs.HubServer} {
		if err := s.Export(a, id); err != nil {
			return err
		}
	}
	if err := s.ExportPFX(a, certs.HubServer); err != nil {
		return err
	}
	if err := s.WriteChain(a, certs.ChainCA, certs.ChainMembers...); err != nil {
		return err
	}

	s.logger.Info("generated edge certificates", "hostname", hostname, "dir", s.dir)
	return nil
}

// =============================================================================
// Read
// =============================================================================

// ReadCert returns the PEM certificate file of id.
func (s *Store) ReadCert(id string) ([]byte, error) {
	return readFile(s.CertPath(id))
}

// ReadPFX returns the PKCS#12 file of id.
func (s *Store) ReadPFX(id string) ([]byte, error) {
	return readFile(s.PFXPath(id))
}

// LoadServerPFX decodes the hub server archive and returns its certificate.
func (s *Store) LoadServerPFX() (*x509.Certificate, error) {
	data, err := s.ReadPFX(certs.HubServer)
	if err != nil {
		return nil, err
	}
	_, cert, err := pkcs12.Decode(data, "")
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.PFXPath(certs.HubServer), err)
	}
	return cert, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Store) resetDir(id string) (string, error) {
	base := filepath.Join(s.dir, id)
	if err := os.RemoveAll(base); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", base, err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", base, err)
	}
	return base, nil
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCertificateMissing, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
