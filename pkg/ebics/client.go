package ebics

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/response"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// DefaultProduct is sent in the Product header element when none is configured
const DefaultProduct = "go-ebics"

var (
	// ErrSegmentedDownload is returned when the bank splits a download into several segments
	ErrSegmentedDownload = errors.New("segmented downloads are not supported")
	// ErrUntrustedBankKeys is returned when the bank keys delivered by HPB cannot be verified
	ErrUntrustedBankKeys = fmt.Errorf("%w: bank keys could not be verified", keys.ErrCrypto)
	// ErrInvalidConfig is returned by NewClient for incomplete configuration
	ErrInvalidConfig = errors.New("invalid client configuration")
)

// BankKeyDigests pins the expected bank key digests, typically taken from the
// bank's initialisation letter
type BankKeyDigests struct {
	Authentication []byte
	Encryption     []byte
}

// Bank describes the bank host
type Bank struct {
	URL    string
	HostID string
	// Certified banks require CA issued certificates. The client then submits
	// certificate requests instead of self-signed certificates.
	Certified bool
	// IndependentKeySubmission allows HIA to be sent before INI
	IndependentKeySubmission bool
	KeyDigests               *BankKeyDigests
	// CertificateValidator, when set, requires X.509 bank certificates that
	// it accepts before HPB keys are adopted
	CertificateValidator security.CertificateValidator
}

// User identifies the subscriber at the bank
type User struct {
	PartnerID string
	UserID    string
}

// ClientConfig holds client configuration
type ClientConfig struct {
	Bank           Bank
	User           User
	Product        string
	Language       string
	SecurityMedium string
	KeySize        int
	Subject        certificate.SubjectInfo

	// Random is the entropy source for keys, nonces and transaction keys
	Random io.Reader
	// Clock supplies the time used when an operation is called with a zero timestamp
	Clock  func() time.Time
	Logger *slog.Logger

	// MaxOrderDataSize bounds decrypted order data after inflation
	MaxOrderDataSize int64
}

// Client runs EBICS operations against one bank on behalf of one subscriber.
// Handshake operations are serialized; downloads may run concurrently once the
// key ring is active.
type Client struct {
	mu        sync.RWMutex
	cfg       ClientConfig
	ring      *keyring.KeyRing
	transport transport.Transport
	random    io.Reader
	clock     func() time.Time
	logger    *slog.Logger
}

// NewClient creates a client bound to ring and transport
func NewClient(cfg ClientConfig, ring *keyring.KeyRing, t transport.Transport) (*Client, error) {
	if cfg.Bank.URL == "" || cfg.Bank.HostID == "" {
		return nil, fmt.Errorf("%w: bank URL and host ID are required", ErrInvalidConfig)
	}
	if cfg.User.PartnerID == "" || cfg.User.UserID == "" {
		return nil, fmt.Errorf("%w: partner and user IDs are required", ErrInvalidConfig)
	}
	if ring == nil {
		return nil, fmt.Errorf("%w: key ring is required", ErrInvalidConfig)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if cfg.KeySize == 0 {
		cfg.KeySize = keys.DefaultKeySize
	}
	if cfg.Product == "" {
		cfg.Product = DefaultProduct
	}
	if cfg.Subject.CommonName == "" {
		cfg.Subject.CommonName = cfg.User.UserID
	}
	if cfg.MaxOrderDataSize <= 0 {
		cfg.MaxOrderDataSize = compression.DefaultMaxDecompressedSize
	}

	c := &Client{
		cfg:       cfg,
		ring:      ring,
		transport: t,
		random:    cfg.Random,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if c.random == nil {
		c.random = rand.Reader
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// KeyRing returns the key ring the client operates on
func (c *Client) KeyRing() *keyring.KeyRing {
	return c.ring
}

// HostProbe asks the bank which protocol versions it supports. It needs no keys.
func (c *Client) HostProbe(ctx context.Context) (*response.Response, error) {
	req, err := message.BuildHEV(c.cfg.Bank.HostID)
	if err != nil {
		return nil, err
	}
	return c.exchange(ctx, req)
}

// SubmitSignatureKey generates the signature key and submits it with INI.
// The key is stored in the ring only when the bank accepts it.
func (c *Client) SubmitSignatureKey(ctx context.Context, ts time.Time) (*response.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.ring.State()
	allowed := state == keyring.StateEmpty ||
		(c.cfg.Bank.IndependentKeySubmission && state == keyring.StateAuthenticationPending)
	if !allowed {
		return nil, invalidState(message.OrderINI, state)
	}

	ts = c.timestamp(ts)
	cred, err := c.newCredential(keys.RoleSignature, ts)
	if err != nil {
		return nil, err
	}
	orderData, err := orderdata.BuildSignaturePubKeyOrderData(cred.Certificate, c.cfg.User.PartnerID, c.cfg.User.UserID, ts)
	if err != nil {
		return nil, err
	}
	req, err := message.BuildINI(c.params(message.OrderINI, ts, ""), orderData)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, req)
	if err != nil || !resp.OK() {
		return resp, err
	}
	if err := c.ring.SetParticipantCertificate(keys.RoleSignature, cred.KeyPair, cred.Certificate); err != nil {
		return nil, err
	}
	c.logger.Info("signature key submitted", "state", c.ring.State())
	return resp, nil
}

// SubmitEncryptionAuthKeys generates the encryption and authentication keys and
// submits them with HIA. Both keys are stored only when the bank accepts them.
func (c *Client) SubmitEncryptionAuthKeys(ctx context.Context, ts time.Time) (*response.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.ring.State()
	allowed := state == keyring.StateSignaturePending ||
		(c.cfg.Bank.IndependentKeySubmission && state == keyring.StateEmpty)
	if !allowed {
		return nil, invalidState(message.OrderHIA, state)
	}

	ts = c.timestamp(ts)
	enc, err := c.newCredential(keys.RoleEncryption, ts)
	if err != nil {
		return nil, err
	}
	auth, err := c.newCredential(keys.RoleAuthentication, ts)
	if err != nil {
		return nil, err
	}
	orderData, err := orderdata.BuildHIARequestOrderData(enc.Certificate, auth.Certificate, c.cfg.User.PartnerID, c.cfg.User.UserID, ts)
	if err != nil {
		return nil, err
	}
	req, err := message.BuildHIA(c.params(message.OrderHIA, ts, ""), orderData)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, req)
	if err != nil || !resp.OK() {
		return resp, err
	}
	err = c.ring.SetParticipants(map[keys.Role]keyring.Credential{
		keys.RoleEncryption:     enc,
		keys.RoleAuthentication: auth,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("encryption and authentication keys submitted", "state", c.ring.State())
	return resp, nil
}

// RetrieveBankKeys downloads the bank keys with HPB and adopts them once they
// have been verified against the response signature or the pinned digests.
func (c *Client) RetrieveBankKeys(ctx context.Context, ts time.Time) (*response.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state := c.ring.State(); state != keyring.StateKeysSubmitted {
		return nil, invalidState(message.OrderHPB, state)
	}

	ts = c.timestamp(ts)
	nonce, err := message.NewNonce(c.random)
	if err != nil {
		return nil, err
	}
	req, err := message.BuildHPB(c.params(message.OrderHPB, ts, nonce), c.ring.ParticipantKeyPair(keys.RoleAuthentication))
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, req)
	if err != nil || !resp.OK() {
		return resp, err
	}

	plain, err := c.decrypt(resp)
	if err != nil {
		return nil, err
	}
	bank, err := orderdata.ParseHPBResponseOrderData(plain, ts)
	if err != nil {
		return nil, err
	}
	if err := c.verifyBankKeys(resp, bank); err != nil {
		return nil, err
	}
	if err := c.ring.SetBankCertificates(bank.Encryption, bank.Authentication); err != nil {
		return nil, err
	}
	c.attach(resp, message.OrderHPB, plain)

	c.logger.Info("bank keys adopted", "host_id", c.cfg.Bank.HostID, "state", c.ring.State())
	return resp, nil
}

// verifyBankKeys requires at least one trust anchor for the received keys: a
// valid response signature made with the received authentication key, a
// match with the pinned digests, or certificates accepted by the configured
// validator. Every available check must pass.
func (c *Client) verifyBankKeys(resp *response.Response, bank *orderdata.BankKeys) error {
	if bank.HostID != "" && bank.HostID != c.cfg.Bank.HostID {
		return fmt.Errorf("%w: keys belong to host %q", ErrUntrustedBankKeys, bank.HostID)
	}

	checked := false
	if resp.Signed() {
		if err := security.VerifyDocument(resp.Document(), bank.Authentication.PublicKey); err != nil {
			return fmt.Errorf("%w: %v", ErrUntrustedBankKeys, err)
		}
		checked = true
	}
	if pinned := c.cfg.Bank.KeyDigests; pinned != nil {
		if !bytes.Equal(pinned.Authentication, bank.Authentication.Digest()) ||
			!bytes.Equal(pinned.Encryption, bank.Encryption.Digest()) {
			return fmt.Errorf("%w: digests do not match the pinned values", ErrUntrustedBankKeys)
		}
		checked = true
	}
	if v := c.cfg.Bank.CertificateValidator; v != nil {
		at := c.clock()
		for _, cert := range []*certificate.Certificate{bank.Authentication, bank.Encryption} {
			if err := security.ValidateDER(v, cert.Raw, at); err != nil {
				return fmt.Errorf("%w: %s certificate: %v", ErrUntrustedBankKeys, cert.Role, err)
			}
		}
		checked = true
	}
	if !checked {
		return fmt.Errorf("%w: response is unsigned and no digests are pinned", ErrUntrustedBankKeys)
	}
	return nil
}

func (c *Client) newCredential(role keys.Role, ts time.Time) (keyring.Credential, error) {
	kp, err := keys.GenerateKeyPair(c.random, role, c.cfg.KeySize, ts)
	if err != nil {
		return keyring.Credential{}, err
	}
	cert, err := certificate.FromKeyPair(c.random, kp, c.cfg.Bank.Certified, c.cfg.Subject)
	if err != nil {
		return keyring.Credential{}, err
	}
	return keyring.Credential{KeyPair: kp, Certificate: cert}, nil
}

func (c *Client) params(orderType message.OrderType, ts time.Time, nonce string) message.Params {
	return message.Params{
		Identity: message.Identity{
			HostID:         c.cfg.Bank.HostID,
			PartnerID:      c.cfg.User.PartnerID,
			UserID:         c.cfg.User.UserID,
			Product:        c.cfg.Product,
			Language:       c.cfg.Language,
			SecurityMedium: c.cfg.SecurityMedium,
		},
		OrderType: orderType,
		Timestamp: ts,
		Nonce:     nonce,
	}
}

// exchange posts the request and parses the answer. Return codes are logged
// but not turned into errors.
func (c *Client) exchange(ctx context.Context, req *message.Request) (*response.Response, error) {
	body, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s request: %w", req.OrderType, err)
	}

	c.logger.Debug("sending request", "order_type", req.OrderType, "variant", req.Variant, "url", c.cfg.Bank.URL)

	raw, err := c.transport.Post(ctx, c.cfg.Bank.URL, body)
	if err != nil {
		c.logger.Error("request failed", "order_type", req.OrderType, "error", err)
		return nil, err
	}

	resp, err := response.Parse(raw)
	if err != nil {
		c.logger.Error("unreadable response", "order_type", req.OrderType, "error", err)
		return nil, err
	}

	if resp.OK() {
		c.logger.Info("request completed", "order_type", req.OrderType, "return_code", resp.Code())
	} else {
		c.logger.Warn("request rejected", "order_type", req.OrderType,
			"return_code", resp.Code(), "report_text", resp.ReportText)
	}
	return resp, nil
}

func (c *Client) timestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		ts = c.clock()
	}
	return ts.UTC()
}

func invalidState(orderType message.OrderType, state keyring.State) error {
	return fmt.Errorf("%w: %s not permitted in state %s", keyring.ErrInvalidState, orderType, state)
}
