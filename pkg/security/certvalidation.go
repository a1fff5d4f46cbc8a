package security

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCertificateExpired is returned when a certificate has expired
	ErrCertificateExpired = errors.New("certificate has expired")
	// ErrCertificateNotYetValid is returned when a certificate is not yet valid
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")
	// ErrCertificateUntrusted is returned when a certificate does not chain to a trusted root
	ErrCertificateUntrusted = errors.New("certificate is not trusted")
	// ErrInvalidCertificate is returned for other certificate validation failures
	ErrInvalidCertificate = errors.New("certificate validation failed")
)

// CertificateValidator decides whether a bank certificate is trusted at a given time
type CertificateValidator interface {
	// ValidateCertificate validates cert using any intermediates delivered with it
	ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, at time.Time) error
}

// PoolValidator implements traditional PKI validation against a fixed root pool
type PoolValidator struct {
	roots *x509.CertPool
}

// NewPoolValidator creates a validator trusting the given roots
func NewPoolValidator(roots *x509.CertPool) *PoolValidator {
	return &PoolValidator{roots: roots}
}

// ValidateCertificate checks the validity window and the chain to the root pool
func (v *PoolValidator) ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, at time.Time) error {
	if cert == nil {
		return fmt.Errorf("%w: nil certificate", ErrInvalidCertificate)
	}
	if v.roots == nil {
		return fmt.Errorf("%w: no trusted roots configured", ErrCertificateUntrusted)
	}

	if at.IsZero() {
		at = time.Now()
	}
	if at.Before(cert.NotBefore) {
		return ErrCertificateNotYetValid
	}
	if at.After(cert.NotAfter) {
		return ErrCertificateExpired
	}

	opts := x509.VerifyOptions{
		Roots:         v.roots,
		CurrentTime:   at,
		Intermediates: x509.NewCertPool(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	for _, intermediate := range intermediates {
		opts.Intermediates.AddCert(intermediate)
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrCertificateUntrusted, err)
	}
	return nil
}

// ValidateCertificateChain validates chain[0] using the rest as intermediates
func (v *PoolValidator) ValidateCertificateChain(chain []*x509.Certificate, at time.Time) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidCertificate)
	}
	return v.ValidateCertificate(chain[0], chain[1:], at)
}

// ValidateDER parses a DER certificate and validates it
func ValidateDER(v CertificateValidator, der []byte, at time.Time) error {
	if len(der) == 0 {
		return fmt.Errorf("%w: no X.509 certificate", ErrInvalidCertificate)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return v.ValidateCertificate(cert, nil, at)
}
