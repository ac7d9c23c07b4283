// Package certs builds the simulator's self-signed certificate chain in
// memory. Writing the artifacts to disk is left to internal/shell/certstore.
package certs

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"software.sslmate.com/src/go-pkcs12"
)

// =============================================================================
// Limits
// =============================================================================

const (
	MinValidityDays     = 1
	MaxValidityDays     = 1095
	MinPassphraseLength = 4
	MaxPassphraseLength = 1023
	MinCommonNameLength = 1
	MaxCommonNameLength = 64

	CAKeyBits     = 4096
	ServerKeyBits = 2048
)

// =============================================================================
// Authority
// =============================================================================

// Entry is one certificate held by an Authority.
type Entry struct {
	ID         string
	IssuerID   string
	Cert       *x509.Certificate
	Key        *rsa.PrivateKey
	Passphrase string
}

// IsRoot reports whether the entry is self-signed.
func (e *Entry) IsRoot() bool {
	return e.IssuerID == e.ID
}

// Authority creates and holds a certificate chain keyed by ID.
type Authority struct {
	entries  map[string]*Entry
	caBits   int
	leafBits int
	now      func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithKeyBits overrides the RSA key sizes for CA and leaf certificates.
func WithKeyBits(ca, leaf int) Option {
	return func(a *Authority) {
		a.caBits = ca
		a.leafBits = leaf
	}
}

// WithClock overrides the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// NewAuthority creates an empty authority.
func NewAuthority(opts ...Option) *Authority {
	a := &Authority{
		entries:  map[string]*Entry{},
		caBits:   CAKeyBits,
		leafBits: ServerKeyBits,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Get returns the entry for id.
func (a *Authority) Get(id string) (*Entry, error) {
	e, ok := a.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCertificate, id)
	}
	return e, nil
}

// =============================================================================
// Creation
// =============================================================================

// CreateRootCA creates a self-signed CA. An empty passphrase leaves the
// exported key unencrypted.
func (a *Authority) CreateRootCA(id string, subject Subject, days int, passphrase string) error {
	if err := a.checkNew(id, days, passphrase); err != nil {
		return err
	}
	if err := subject.Validate(); err != nil {
		return err
	}

	key, err := rsa.GenerateKey(rand.Reader, a.caBits)
	if err != nil {
		return fmt.Errorf("failed to generate key for %s: %w", id, err)
	}

	tmpl, err := a.template(subject, days)
	if err != nil {
		return err
	}
	tmpl.IsCA = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature

	return a.sign(id, id, tmpl, key, nil, passphrase)
}

// CreateIntermediateCA creates a CA signed by issuerID. It inherits the
// issuer's subject apart from commonName. With terminal set the CA may
// only sign leaf certificates.
func (a *Authority) CreateIntermediateCA(id, issuerID, commonName string, days int, passphrase string, terminal bool) error {
	if err := a.checkNew(id, days, passphrase); err != nil {
		return err
	}
	issuer, err := a.issuer(issuerID)
	if err != nil {
		return err
	}
	if n := len(commonName); n < MinCommonNameLength || n > MaxCommonNameLength {
		return fmt.Errorf("%w: common name length %d not in [%d, %d]", ErrInvalidSubject, n, MinCommonNameLength, MaxCommonNameLength)
	}
	days, err = a.clampToIssuer(issuer, days)
	if err != nil {
		return err
	}

	key, err := rsa.GenerateKey(rand.Reader, a.caBits)
	if err != nil {
		return fmt.Errorf("failed to generate key for %s: %w", id, err)
	}

	subject := subjectFrom(issuer.Cert.Subject)
	subject.CommonName = commonName
	tmpl, err := a.template(subject, days)
	if err != nil {
		return err
	}
	tmpl.IsCA = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	if terminal {
		tmpl.MaxPathLen = 0
		tmpl.MaxPathLenZero = true
	}

	return a.sign(id, issuerID, tmpl, key, issuer, passphrase)
}

// CreateServerCert creates a TLS server certificate for hostname signed by
// issuerID. The common name is hostname cut to 64 characters; the
// certificate is valid for localhost and hostname.
func (a *Authority) CreateServerCert(id, issuerID, hostname string, days int, passphrase string) error {
	if err := a.checkNew(id, days, passphrase); err != nil {
		return err
	}
	issuer, err := a.issuer(issuerID)
	if err != nil {
		return err
	}
	if hostname == "" {
		return fmt.Errorf("%w: hostname is required", ErrInvalidSubject)
	}
	days, err = a.clampToIssuer(issuer, days)
	if err != nil {
		return err
	}

	key, err := rsa.GenerateKey(rand.Reader, a.leafBits)
	if err != nil {
		return fmt.Errorf("failed to generate key for %s: %w", id, err)
	}

	subject := subjectFrom(issuer.Cert.Subject)
	subject.CommonName = hostname
	if len(hostname) > MaxCommonNameLength {
		subject.CommonName = hostname[:MaxCommonNameLength]
	}
	tmpl, err := a.template(subject, days)
	if err != nil {
		return err
	}
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	tmpl.DNSNames = []string{"localhost"}
	if hostname != "localhost" {
		tmpl.DNSNames = append(tmpl.DNSNames, hostname)
	}

	return a.sign(id, issuerID, tmpl, key, issuer, passphrase)
}

func (a *Authority) checkNew(id string, days int, passphrase string) error {
	if _, ok := a.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if days < MinValidityDays || days > MaxValidityDays {
		return fmt.Errorf("%w: %d days not in [%d, %d]", ErrInvalidValidity, days, MinValidityDays, MaxValidityDays)
	}
	if passphrase != "" && (len(passphrase) < MinPassphraseLength || len(passphrase) > MaxPassphraseLength) {
		return fmt.Errorf("%w: length must be in [%d, %d]", ErrInvalidPassphrase, MinPassphraseLength, MaxPassphraseLength)
	}
	return nil
}

func (a *Authority) issuer(id string) (*Entry, error) {
	e, ok := a.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIssuer, id)
	}
	return e, nil
}

// clampToIssuer keeps a child inside its issuer's remaining lifetime.
func (a *Authority) clampToIssuer(issuer *Entry, days int) (int, error) {
	remaining := int(issuer.Cert.NotAfter.Sub(a.now()).Hours() / 24)
	if remaining <= 0 {
		return 0, fmt.Errorf("%w: issuer %s has expired", ErrInvalidValidity, issuer.ID)
	}
	if remaining < days {
		return remaining, nil
	}
	return days, nil
}

func (a *Authority) template(subject Subject, days int) (*x509.Certificate, error) {
	serial, err := serialNumber()
	if err != nil {
		return nil, err
	}
	now := a.now()
	return &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject.name(),
		NotBefore:             now,
		NotAfter:              now.Add(time.Duration(days) * 24 * time.Hour),
		BasicConstraintsValid: true,
	}, nil
}

func (a *Authority) sign(id, issuerID string, tmpl *x509.Certificate, key *rsa.PrivateKey, issuer *Entry, passphrase string) error {
	parent, signer := tmpl, key
	if issuer != nil {
		parent, signer = issuer.Cert, issuer.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, signer)
	if err != nil {
		return fmt.Errorf("failed to sign certificate %s: %w", id, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("failed to parse certificate %s: %w", id, err)
	}

	a.entries[id] = &Entry{
		ID:         id,
		IssuerID:   issuerID,
		Cert:       cert,
		Key:        key,
		Passphrase: passphrase,
	}
	return nil
}

// serialNumber derives a positive serial from a random UUID.
func serialNumber() (*big.Int, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return new(big.Int).SetBytes(id[:]), nil
}

// =============================================================================
// Export
// =============================================================================

// CertPEM returns the PEM encoded certificate of id.
func (a *Authority) CertPEM(id string) ([]byte, error) {
	e, err := a.Get(id)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: e.Cert.Raw}), nil
}

// KeyPEM returns the PEM encoded private key of id, AES-256 encrypted when
// the entry has a passphrase.
func (a *Authority) KeyPEM(id string) ([]byte, error) {
	e, err := a.Get(id)
	if err != nil {
		return nil, err
	}

	der := x509.MarshalPKCS1PrivateKey(e.Key)
	if e.Passphrase == "" {
		return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}), nil
	}

	//nolint:staticcheck // EncryptPEMBlock is deprecated
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", der, []byte(e.Passphrase), x509.PEMCipherAES256)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key %s: %w", id, err)
	}
	return pem.EncodeToMemory(block), nil
}

// PFX returns the certificate and key of id as a PKCS#12 archive with an
// empty password.
func (a *Authority) PFX(id string) ([]byte, error) {
	e, err := a.Get(id)
	if err != nil {
		return nil, err
	}
	data, err := pkcs12.LegacyDES.Encode(e.Key, e.Cert, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to encode PFX for %s: %w", id, err)
	}
	return data, nil
}

// Chain concatenates the PEM certificates of ids in order.
func (a *Authority) Chain(ids ...string) ([]byte, error) {
	var buf bytes.Buffer
	for _, id := range ids {
		p, err := a.CertPEM(id)
		if err != nil {
			return nil, err
		}
		buf.Write(p)
	}
	return buf.Bytes(), nil
}
