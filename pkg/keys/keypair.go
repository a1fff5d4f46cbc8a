package keys

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"time"
)

// Key sizes accepted by GenerateKeyPair
const (
	MinKeySize     = 2048
	MaxKeySize     = 4096
	DefaultKeySize = 2048
)

// Common errors
var (
	ErrKeyGeneration = errors.New("key generation failed")
	ErrCrypto        = errors.New("cryptographic operation failed")
)

// Role identifies what a key pair is used for
type Role string

const (
	RoleSignature      Role = "A"
	RoleEncryption     Role = "E"
	RoleAuthentication Role = "X"
)

// Roles lists the participant roles in submission order
var Roles = []Role{RoleSignature, RoleEncryption, RoleAuthentication}

// Version returns the protocol version tag of the role
func (r Role) Version() string {
	switch r {
	case RoleSignature:
		return "A006"
	case RoleEncryption:
		return "E002"
	case RoleAuthentication:
		return "X002"
	default:
		return ""
	}
}

// IsValid reports whether r is one of the three known roles
func (r Role) IsValid() bool {
	return r.Version() != ""
}

// String returns a human-readable name for the role
func (r Role) String() string {
	switch r {
	case RoleSignature:
		return "signature"
	case RoleEncryption:
		return "encryption"
	case RoleAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// KeyPair is an RSA key pair bound to a single role.
// It is immutable once created.
type KeyPair struct {
	role      Role
	bits      int
	createdAt time.Time
	key       *rsa.PrivateKey
}

// GenerateKeyPair generates a new key pair for role using the given entropy source.
// The creation time is supplied by the caller so that key generation stays deterministic
// with respect to the clock.
func GenerateKeyPair(random io.Reader, role Role, bits int, at time.Time) (*KeyPair, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrKeyGeneration, role)
	}
	if bits < MinKeySize || bits > MaxKeySize {
		return nil, fmt.Errorf("%w: key size %d outside [%d, %d]", ErrKeyGeneration, bits, MinKeySize, MaxKeySize)
	}
	if random == nil {
		return nil, fmt.Errorf("%w: no entropy source", ErrKeyGeneration)
	}

	key, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %s key: %v", ErrKeyGeneration, role, err)
	}

	return &KeyPair{
		role:      role,
		bits:      bits,
		createdAt: at.UTC(),
		key:       key,
	}, nil
}

// NewKeyPair wraps an existing private key, e.g. one restored from storage
func NewKeyPair(role Role, key *rsa.PrivateKey, createdAt time.Time) (*KeyPair, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if key == nil {
		return nil, fmt.Errorf("private key is required")
	}
	return &KeyPair{
		role:      role,
		bits:      key.N.BitLen(),
		createdAt: createdAt.UTC(),
		key:       key,
	}, nil
}

// Role returns the role the key pair was generated for
func (k *KeyPair) Role() Role { return k.role }

// Bits returns the modulus size in bits
func (k *KeyPair) Bits() int { return k.bits }

// CreatedAt returns the creation timestamp
func (k *KeyPair) CreatedAt() time.Time { return k.createdAt }

// PrivateKey returns the RSA private key
func (k *KeyPair) PrivateKey() *rsa.PrivateKey { return k.key }

// PublicKey returns the RSA public key
func (k *KeyPair) PublicKey() *rsa.PublicKey { return &k.key.PublicKey }
