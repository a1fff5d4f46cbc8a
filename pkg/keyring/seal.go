package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
)

const (
	sealVersion     = 1
	sealIterations  = 100000
	sealSaltSize    = 16
	sealKeySize     = 32
	sealAssociation = "go-ebics keyring"
)

// ErrSealedBlob is returned when a sealed ring cannot be opened
var ErrSealedBlob = errors.New("cannot open sealed key ring")

type envelope struct {
	Version    int    `cbor:"1,keyasint"`
	Salt       []byte `cbor:"2,keyasint"`
	Nonce      []byte `cbor:"3,keyasint"`
	Ciphertext []byte `cbor:"4,keyasint"`
}

type payload struct {
	Participant []sealedCredential  `cbor:"1,keyasint"`
	Bank        []sealedCertificate `cbor:"2,keyasint"`
}

type sealedCredential struct {
	PrivateKey  []byte            `cbor:"1,keyasint"`
	CreatedAt   int64             `cbor:"2,keyasint"`
	Certificate sealedCertificate `cbor:"3,keyasint"`
}

type sealedCertificate struct {
	Role      string `cbor:"1,keyasint"`
	PublicKey []byte `cbor:"2,keyasint"`
	Raw       []byte `cbor:"3,keyasint,omitempty"`
	Request   []byte `cbor:"4,keyasint,omitempty"`
	NotBefore int64  `cbor:"5,keyasint"`
	NotAfter  int64  `cbor:"6,keyasint,omitempty"`
}

// Seal serializes the ring into an opaque blob encrypted under the ring passphrase
func (r *KeyRing) Seal() ([]byte, error) {
	r.mu.RLock()
	p, err := r.snapshot()
	passphrase := r.passphrase
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	plaintext, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key ring: %w", err)
	}

	salt := make([]byte, sealSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob, err := cbor.Marshal(envelope{
		Version:    sealVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, []byte(sealAssociation)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return blob, nil
}

// Open restores a ring sealed with Seal. A wrong passphrase or a corrupted blob
// returns an error wrapping ErrSealedBlob.
func Open(blob []byte, passphrase string) (*KeyRing, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: passphrase is empty", ErrSealedBlob)
	}

	var env envelope
	if err := cbor.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedBlob, err)
	}
	if env.Version != sealVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSealedBlob, env.Version)
	}

	aead, err := newAEAD(passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: invalid nonce", ErrSealedBlob)
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(sealAssociation))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedBlob, err)
	}

	var p payload
	if err := cbor.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedBlob, err)
	}

	r := newRing(passphrase)
	if err := r.restore(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedBlob, err)
	}
	return r, nil
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	if len(salt) != sealSaltSize {
		return nil, fmt.Errorf("%w: invalid salt", ErrSealedBlob)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, sealIterations, sealKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (r *KeyRing) snapshot() (payload, error) {
	var p payload
	for _, role := range keys.Roles {
		cred, ok := r.participant[role]
		if !ok {
			continue
		}
		der, err := x509.MarshalPKCS8PrivateKey(cred.KeyPair.PrivateKey())
		if err != nil {
			return p, fmt.Errorf("failed to encode %s private key: %w", role, err)
		}
		sc, err := sealCertificate(cred.Certificate)
		if err != nil {
			return p, err
		}
		p.Participant = append(p.Participant, sealedCredential{
			PrivateKey:  der,
			CreatedAt:   cred.KeyPair.CreatedAt().UnixNano(),
			Certificate: sc,
		})
	}
	for _, role := range bankRoles {
		cert := r.bank[role]
		if cert == nil {
			continue
		}
		sc, err := sealCertificate(cert)
		if err != nil {
			return p, err
		}
		p.Bank = append(p.Bank, sc)
	}
	return p, nil
}

func sealCertificate(cert *certificate.Certificate) (sealedCertificate, error) {
	pub, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return sealedCertificate{}, fmt.Errorf("failed to encode %s public key: %w", cert.Role, err)
	}
	sc := sealedCertificate{
		Role:      string(cert.Role),
		PublicKey: pub,
		Raw:       cert.Raw,
		Request:   cert.Request,
		NotBefore: cert.NotBefore.UnixNano(),
	}
	if !cert.NotAfter.IsZero() {
		sc.NotAfter = cert.NotAfter.UnixNano()
	}
	return sc, nil
}

func (r *KeyRing) restore(p payload) error {
	creds := make(map[keys.Role]Credential, len(p.Participant))
	for _, sc := range p.Participant {
		role := keys.Role(sc.Certificate.Role)
		parsed, err := x509.ParsePKCS8PrivateKey(sc.PrivateKey)
		if err != nil {
			return fmt.Errorf("%s private key: %w", role, err)
		}
		priv, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return fmt.Errorf("%s private key is %T, not RSA", role, parsed)
		}
		kp, err := keys.NewKeyPair(role, priv, time.Unix(0, sc.CreatedAt))
		if err != nil {
			return err
		}
		cert, err := openCertificate(sc.Certificate)
		if err != nil {
			return err
		}
		creds[role] = Credential{KeyPair: kp, Certificate: cert}
	}
	if len(creds) > 0 {
		if err := r.SetParticipants(creds); err != nil {
			return err
		}
	}

	bank := make(map[keys.Role]*certificate.Certificate, len(p.Bank))
	for _, sc := range p.Bank {
		cert, err := openCertificate(sc)
		if err != nil {
			return err
		}
		bank[cert.Role] = cert
	}
	for _, role := range bankRoles {
		if cert, ok := bank[role]; ok {
			if err := r.SetBankCertificate(role, cert); err != nil {
				return err
			}
		}
	}
	return nil
}

func openCertificate(sc sealedCertificate) (*certificate.Certificate, error) {
	role := keys.Role(sc.Role)
	if len(sc.Raw) > 0 {
		return certificate.FromX509(role, sc.Raw)
	}

	parsed, err := x509.ParsePKIXPublicKey(sc.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s public key: %w", role, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s public key is %T, not RSA", role, parsed)
	}
	cert, err := certificate.FromPublicKey(role, pub, time.Unix(0, sc.NotBefore))
	if err != nil {
		return nil, err
	}
	if sc.NotAfter != 0 {
		cert.NotAfter = time.Unix(0, sc.NotAfter).UTC()
	}
	if len(sc.Request) > 0 {
		csr, err := x509.ParseCertificateRequest(sc.Request)
		if err != nil {
			return nil, fmt.Errorf("%s certificate request: %w", role, err)
		}
		cert.Request = sc.Request
		cert.Subject = csr.Subject
	}
	return cert, nil
}
