package certificate

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/keys"
)

// DefaultValidity is used when SubjectInfo.Validity is zero
const DefaultValidity = 365 * 24 * time.Hour

// ErrInvalidCertificate is returned for certificates that cannot be created or parsed
var ErrInvalidCertificate = errors.New("invalid certificate")

// SubjectInfo names the certificate holder
type SubjectInfo struct {
	CommonName   string
	Organization string
	Country      string
	Validity     time.Duration
}

func (s SubjectInfo) name() pkix.Name {
	n := pkix.Name{CommonName: s.CommonName}
	if s.Organization != "" {
		n.Organization = []string{s.Organization}
	}
	if s.Country != "" {
		n.Country = []string{s.Country}
	}
	return n
}

// Certificate binds a public key to a key role.
// Raw holds the DER X.509 certificate when one exists, Request the DER PKCS#10
// request of a certified key that has not been issued yet.
type Certificate struct {
	Role         keys.Role
	PublicKey    *rsa.PublicKey
	Raw          []byte
	Request      []byte
	Subject      pkix.Name
	Issuer       pkix.Name
	SerialNumber *big.Int
	NotBefore    time.Time
	NotAfter     time.Time
}

// FromKeyPair creates the certificate submitted for a participant key pair.
// When certified is false the result is a self-signed X.509 certificate, otherwise
// it carries a PKCS#10 request and is pending.
func FromKeyPair(random io.Reader, kp *keys.KeyPair, certified bool, subject SubjectInfo) (*Certificate, error) {
	if kp == nil {
		return nil, fmt.Errorf("%w: key pair is required", ErrInvalidCertificate)
	}

	validity := subject.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	notBefore := kp.CreatedAt()
	notAfter := notBefore.Add(validity)

	if certified {
		return newRequest(random, kp, subject.name(), notBefore, notAfter)
	}
	return newSelfSigned(random, kp, subject.name(), notBefore, notAfter)
}

func newSelfSigned(random io.Reader, kp *keys.KeyPair, name pkix.Name, notBefore, notAfter time.Time) (*Certificate, error) {
	serial, err := generateSerialNumber(random)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               name,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              keyUsage(kp.Role()),
		BasicConstraintsValid: true,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificate(random, template, template, kp.PublicKey(), kp.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("%w: create %s certificate: %v", ErrInvalidCertificate, kp.Role(), err)
	}

	return FromX509(kp.Role(), der)
}

func newRequest(random io.Reader, kp *keys.KeyPair, name pkix.Name, notBefore, notAfter time.Time) (*Certificate, error) {
	template := &x509.CertificateRequest{
		Subject:            name,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificateRequest(random, template, kp.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("%w: create %s request: %v", ErrInvalidCertificate, kp.Role(), err)
	}

	return &Certificate{
		Role:      kp.Role(),
		PublicKey: kp.PublicKey(),
		Request:   der,
		Subject:   name,
		NotBefore: notBefore,
		NotAfter:  notAfter,
	}, nil
}

// FromPublicKey wraps a bank key delivered as modulus and exponent only
func FromPublicKey(role keys.Role, pub *rsa.PublicKey, at time.Time) (*Certificate, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidCertificate, role)
	}
	if pub == nil || pub.N == nil || pub.N.Sign() <= 0 || pub.E < 3 {
		return nil, fmt.Errorf("%w: invalid RSA public key", ErrInvalidCertificate)
	}
	return &Certificate{
		Role:      role,
		PublicKey: pub,
		NotBefore: at.UTC(),
	}, nil
}

// FromX509 parses a DER encoded X.509 certificate holding an RSA key
func FromX509(role keys.Role, der []byte) (*Certificate, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidCertificate, role)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	pub, ok := parsed.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is %T, not RSA", ErrInvalidCertificate, parsed.PublicKey)
	}

	return &Certificate{
		Role:         role,
		PublicKey:    pub,
		Raw:          parsed.Raw,
		Subject:      parsed.Subject,
		Issuer:       parsed.Issuer,
		SerialNumber: parsed.SerialNumber,
		NotBefore:    parsed.NotBefore,
		NotAfter:     parsed.NotAfter,
	}, nil
}

// Pending reports whether the certificate is a request that has not been issued
func (c *Certificate) Pending() bool {
	return len(c.Raw) == 0 && len(c.Request) > 0
}

// Digest returns the EBICS public key digest
func (c *Certificate) Digest() []byte {
	return keys.PublicKeyDigest(c.PublicKey)
}

// Matches reports whether the certificate holds the public half of kp
func (c *Certificate) Matches(kp *keys.KeyPair) bool {
	if c == nil || kp == nil || c.PublicKey == nil {
		return false
	}
	return c.PublicKey.Equal(kp.PublicKey())
}

// Equal reports whether both certificates carry the same role, key and encodings
func (c *Certificate) Equal(other *Certificate) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Role != other.Role || c.PublicKey == nil || !c.PublicKey.Equal(other.PublicKey) {
		return false
	}
	return bytes.Equal(c.Raw, other.Raw) && bytes.Equal(c.Request, other.Request)
}

func keyUsage(role keys.Role) x509.KeyUsage {
	switch role {
	case keys.RoleSignature:
		return x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment
	case keys.RoleEncryption:
		return x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment
	default:
		return x509.KeyUsageDigitalSignature
	}
}

func generateSerialNumber(random io.Reader) (*big.Int, error) {
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(random, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: serial number: %v", ErrInvalidCertificate, err)
	}
	return serial, nil
}
