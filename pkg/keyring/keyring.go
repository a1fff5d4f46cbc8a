package keyring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
)

// ErrInvalidState is returned when an operation is not permitted in the current
// state of the ring, or would overwrite protected key material.
var ErrInvalidState = errors.New("invalid key ring state")

// State is derived from which keys the ring holds
type State int

const (
	// StateEmpty means no participant key has been submitted
	StateEmpty State = iota
	// StateSignaturePending means the signature key has been submitted
	StateSignaturePending
	// StateAuthenticationPending means encryption and authentication keys were
	// submitted before the signature key
	StateAuthenticationPending
	// StateKeysSubmitted means all three participant keys have been submitted
	StateKeysSubmitted
	// StateActive means the bank keys have been retrieved as well
	StateActive
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateSignaturePending:
		return "SignaturePending"
	case StateAuthenticationPending:
		return "AuthenticationPending"
	case StateKeysSubmitted:
		return "KeysSubmitted"
	case StateActive:
		return "Active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// bankRoles are the roles the bank publishes keys for
var bankRoles = []keys.Role{keys.RoleEncryption, keys.RoleAuthentication}

// Credential is a participant key pair together with the certificate sent to the bank
type Credential struct {
	KeyPair     *keys.KeyPair
	Certificate *certificate.Certificate
}

// KeyRing holds the participant's key pairs and the bank's public keys.
// It is safe for concurrent use.
type KeyRing struct {
	mu          sync.RWMutex
	passphrase  string
	participant map[keys.Role]Credential
	bank        map[keys.Role]*certificate.Certificate
}

// New creates an empty key ring. The passphrase protects the ring at rest.
func New(passphrase string) (*KeyRing, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is empty")
	}
	return newRing(passphrase), nil
}

func newRing(passphrase string) *KeyRing {
	return &KeyRing{
		passphrase:  passphrase,
		participant: make(map[keys.Role]Credential),
		bank:        make(map[keys.Role]*certificate.Certificate),
	}
}

// State returns the lifecycle state implied by the ring contents
func (r *KeyRing) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state()
}

func (r *KeyRing) state() State {
	_, a := r.participant[keys.RoleSignature]
	_, e := r.participant[keys.RoleEncryption]
	_, x := r.participant[keys.RoleAuthentication]

	switch {
	case a && e && x && r.hasBankKeys():
		return StateActive
	case a && e && x:
		return StateKeysSubmitted
	case a:
		return StateSignaturePending
	case e && x:
		return StateAuthenticationPending
	default:
		return StateEmpty
	}
}

func (r *KeyRing) hasBankKeys() bool {
	for _, role := range bankRoles {
		if r.bank[role] == nil {
			return false
		}
	}
	return true
}

// SetParticipantCertificate stores a participant key pair and its certificate.
// A role that is already populated is never overwritten.
func (r *KeyRing) SetParticipantCertificate(role keys.Role, kp *keys.KeyPair, cert *certificate.Certificate) error {
	return r.SetParticipants(map[keys.Role]Credential{role: {KeyPair: kp, Certificate: cert}})
}

// SetParticipants stores several credentials keyed by role.
// Either all of them are stored or none.
func (r *KeyRing) SetParticipants(creds map[keys.Role]Credential) error {
	if len(creds) == 0 {
		return fmt.Errorf("%w: no credentials", ErrInvalidState)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for role, cred := range creds {
		if err := r.checkParticipant(role, cred); err != nil {
			return err
		}
	}
	for role, cred := range creds {
		r.participant[role] = cred
	}
	return nil
}

func (r *KeyRing) checkParticipant(role keys.Role, cred Credential) error {
	if !role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidState, role)
	}
	if _, ok := r.participant[role]; ok {
		return fmt.Errorf("%w: participant %s key already set", ErrInvalidState, role)
	}
	if cred.KeyPair == nil || cred.Certificate == nil {
		return fmt.Errorf("%w: %s key pair and certificate are required", ErrInvalidState, role)
	}
	if cred.KeyPair.Role() != role || cred.Certificate.Role != role {
		return fmt.Errorf("%w: credential does not belong to role %s", ErrInvalidState, role)
	}
	if !cred.Certificate.Matches(cred.KeyPair) {
		return fmt.Errorf("%w: %s certificate does not match key pair", ErrInvalidState, role)
	}
	return nil
}

// SetBankCertificate stores one bank public key.
// It requires all participant keys to be present and the role to be unset.
func (r *KeyRing) SetBankCertificate(role keys.Role, cert *certificate.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkBank(role, cert); err != nil {
		return err
	}
	r.bank[role] = cert
	return nil
}

// SetBankCertificates stores the bank encryption and authentication keys atomically
func (r *KeyRing) SetBankCertificates(encryption, authentication *certificate.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkBank(keys.RoleEncryption, encryption); err != nil {
		return err
	}
	if err := r.checkBank(keys.RoleAuthentication, authentication); err != nil {
		return err
	}
	r.bank[keys.RoleEncryption] = encryption
	r.bank[keys.RoleAuthentication] = authentication
	return nil
}

func (r *KeyRing) checkBank(role keys.Role, cert *certificate.Certificate) error {
	if role != keys.RoleEncryption && role != keys.RoleAuthentication {
		return fmt.Errorf("%w: bank has no %s key", ErrInvalidState, role)
	}
	if s := r.state(); s != StateKeysSubmitted && s != StateActive {
		return fmt.Errorf("%w: bank keys require submitted participant keys, ring is %s", ErrInvalidState, s)
	}
	if r.bank[role] != nil {
		return fmt.Errorf("%w: bank %s key already set", ErrInvalidState, role)
	}
	if cert == nil || cert.Role != role || cert.PublicKey == nil {
		return fmt.Errorf("%w: invalid bank %s certificate", ErrInvalidState, role)
	}
	return nil
}

// Participant returns the participant credential for role
func (r *KeyRing) Participant(role keys.Role) (Credential, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.participant[role]
	return cred, ok
}

// ParticipantCertificate returns the participant certificate for role, or nil
func (r *KeyRing) ParticipantCertificate(role keys.Role) *certificate.Certificate {
	cred, ok := r.Participant(role)
	if !ok {
		return nil
	}
	return cred.Certificate
}

// ParticipantKeyPair returns the participant key pair for role, or nil
func (r *KeyRing) ParticipantKeyPair(role keys.Role) *keys.KeyPair {
	cred, ok := r.Participant(role)
	if !ok {
		return nil
	}
	return cred.KeyPair
}

// BankCertificate returns the bank certificate for role, or nil
func (r *KeyRing) BankCertificate(role keys.Role) *certificate.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bank[role]
}
