package ebics

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

const (
	testURL     = "https://ebics.example.com/ebicsweb"
	testHostID  = "EBIXHOST"
	testPartner = "PARTNER1"
	testUser    = "USER0001"
)

var testTime = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

var (
	keyOnce  sync.Once
	testKeys map[string]*keys.KeyPair
)

// keyPair returns a cached key pair; generating RSA keys per test is slow
func keyPair(t *testing.T, name string) *keys.KeyPair {
	t.Helper()
	keyOnce.Do(func() {
		testKeys = make(map[string]*keys.KeyPair)
		for name, role := range map[string]keys.Role{
			"participant-a": keys.RoleSignature,
			"participant-e": keys.RoleEncryption,
			"participant-x": keys.RoleAuthentication,
			"bank-e":        keys.RoleEncryption,
			"bank-x":        keys.RoleAuthentication,
			"rogue-x":       keys.RoleAuthentication,
		} {
			kp, err := keys.GenerateKeyPair(rand.Reader, role, keys.DefaultKeySize, testTime)
			if err != nil {
				panic(err)
			}
			testKeys[name] = kp
		}
	})
	kp, ok := testKeys[name]
	require.True(t, ok, name)
	return kp
}

func credential(t *testing.T, name string) keyring.Credential {
	t.Helper()
	kp := keyPair(t, name)
	cert, err := certificate.FromKeyPair(rand.Reader, kp, false, certificate.SubjectInfo{CommonName: testUser})
	require.NoError(t, err)
	return keyring.Credential{KeyPair: kp, Certificate: cert}
}

func bankCertificate(t *testing.T, name string) *certificate.Certificate {
	t.Helper()
	kp := keyPair(t, name)
	cert, err := certificate.FromPublicKey(kp.Role(), kp.PublicKey(), testTime)
	require.NoError(t, err)
	return cert
}

// newRing returns a ring in the requested state, filled with cached keys
func newRing(t *testing.T, state keyring.State) *keyring.KeyRing {
	t.Helper()
	ring, err := keyring.New("secret")
	require.NoError(t, err)

	creds := map[keys.Role]keyring.Credential{}
	switch state {
	case keyring.StateSignaturePending:
		creds[keys.RoleSignature] = credential(t, "participant-a")
	case keyring.StateAuthenticationPending:
		creds[keys.RoleEncryption] = credential(t, "participant-e")
		creds[keys.RoleAuthentication] = credential(t, "participant-x")
	case keyring.StateKeysSubmitted, keyring.StateActive:
		creds[keys.RoleSignature] = credential(t, "participant-a")
		creds[keys.RoleEncryption] = credential(t, "participant-e")
		creds[keys.RoleAuthentication] = credential(t, "participant-x")
	}
	if len(creds) > 0 {
		require.NoError(t, ring.SetParticipants(creds))
	}
	if state == keyring.StateActive {
		require.NoError(t, ring.SetBankCertificates(bankCertificate(t, "bank-e"), bankCertificate(t, "bank-x")))
	}
	require.Equal(t, state, ring.State())
	return ring
}

// fakeBank answers requests from canned handlers keyed by order type
type fakeBank struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]func(req *etree.Document) []byte
	requests [][]byte
	err      error
}

func newFakeBank(t *testing.T) *fakeBank {
	return &fakeBank{t: t, handlers: make(map[string]func(*etree.Document) []byte)}
}

func (b *fakeBank) on(orderType string, handler func(req *etree.Document) []byte) {
	b.handlers[orderType] = handler
}

// Post records the request and runs its handler outside the bank lock so that
// concurrent requests reach their handlers concurrently
func (b *fakeBank) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	b.mu.Lock()
	b.requests = append(b.requests, append([]byte(nil), body...))
	failure := b.err
	b.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if url != testURL {
		return nil, errors.New("unexpected url " + url)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, err
	}
	orderType := "HEV"
	if e := doc.FindElement("//OrderDetails/OrderType"); e != nil {
		orderType = e.Text()
	}
	handler, ok := b.handlers[orderType]
	if !ok {
		return nil, errors.New("no handler for " + orderType)
	}
	return handler(doc), nil
}

func (b *fakeBank) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newClient(t *testing.T, ring *keyring.KeyRing, bank *fakeBank, modify ...func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		Bank: Bank{URL: testURL, HostID: testHostID},
		User: User{PartnerID: testPartner, UserID: testUser},
		Clock: func() time.Time {
			return testTime
		},
	}
	for _, m := range modify {
		m(&cfg)
	}
	client, err := NewClient(cfg, ring, bank)
	require.NoError(t, err)
	return client
}

func envelope(name string) (*etree.Document, *etree.Element, *etree.Element, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(name)
	root.CreateAttr("xmlns", orderdata.NamespaceH004)
	root.CreateAttr("Version", "H004")
	root.CreateAttr("Revision", "1")
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	return doc, root, header.CreateElement("static"), header.CreateElement("mutable")
}

func finishBody(root *etree.Element, code string, enc *orderdata.Encrypted) {
	body := root.CreateElement("body")
	if enc != nil {
		b64 := base64.StdEncoding.EncodeToString
		transfer := body.CreateElement("DataTransfer")
		info := transfer.CreateElement("DataEncryptionInfo")
		info.CreateAttr("authenticate", "true")
		digest := info.CreateElement("EncryptionPubKeyDigest")
		digest.CreateAttr("Version", enc.Version)
		digest.CreateAttr("Algorithm", security.AlgorithmSHA256)
		digest.SetText(b64(enc.PubKeyDigest))
		info.CreateElement("TransactionKey").SetText(b64(enc.TransactionKey))
		transfer.CreateElement("OrderData").SetText(b64(enc.OrderData))
	}
	rc := body.CreateElement("ReturnCode")
	rc.CreateAttr("authenticate", "true")
	rc.SetText(code)
}

func serialize(t *testing.T, doc *etree.Document) []byte {
	t.Helper()
	out, err := doc.WriteToBytes()
	require.NoError(t, err)
	return out
}

// keyManagementResponse answers INI, HIA and HPB. signer may be nil.
func keyManagementResponse(t *testing.T, code string, enc *orderdata.Encrypted, signer *keys.KeyPair) []byte {
	t.Helper()
	doc, root, _, mutable := envelope("ebicsKeyManagementResponse")
	mutable.CreateElement("ReturnCode").SetText(code)
	mutable.CreateElement("ReportText").SetText("[" + code + "]")
	finishBody(root, code, enc)
	if signer != nil {
		require.NoError(t, security.SignDocument(doc, signer))
	}
	return serialize(t, doc)
}

// downloadResponse answers a download initialisation
func downloadResponse(t *testing.T, code string, enc *orderdata.Encrypted, segments int, signer *keys.KeyPair) []byte {
	t.Helper()
	doc, root, static, mutable := envelope("ebicsResponse")
	static.CreateElement("TransactionID").SetText("0123456789ABCDEF0123456789ABCDEF")
	if segments > 0 {
		static.CreateElement("NumSegments").SetText(strconv.Itoa(segments))
	}
	mutable.CreateElement("TransactionPhase").SetText("Initialisation")
	if segments > 0 {
		segment := mutable.CreateElement("SegmentNumber")
		if segments == 1 {
			segment.CreateAttr("lastSegment", "true")
		} else {
			segment.CreateAttr("lastSegment", "false")
		}
		segment.SetText("1")
	}
	mutable.CreateElement("ReturnCode").SetText(code)
	mutable.CreateElement("ReportText").SetText("[" + code + "]")
	finishBody(root, code, enc)
	if signer != nil {
		require.NoError(t, security.SignDocument(doc, signer))
	}
	return serialize(t, doc)
}

// encryptTo encrypts data for the participant encryption key held by ring
func encryptTo(t *testing.T, ring *keyring.KeyRing, data []byte) *orderdata.Encrypted {
	t.Helper()
	cert := ring.ParticipantCertificate(keys.RoleEncryption)
	require.NotNil(t, cert)
	enc, err := orderdata.Encode(rand.Reader, cert, data)
	require.NoError(t, err)
	return enc
}

func hpbOrderData(t *testing.T) []byte {
	t.Helper()
	data, err := orderdata.BuildHPBResponseOrderData(&orderdata.BankKeys{
		HostID:         testHostID,
		Authentication: bankCertificate(t, "bank-x"),
		Encryption:     bankCertificate(t, "bank-e"),
	}, testTime)
	require.NoError(t, err)
	return data
}

// requestOrderData returns the decompressed order data of an unsecured request
func requestOrderData(t *testing.T, req *etree.Document) []byte {
	t.Helper()
	e := req.FindElement("//body/DataTransfer/OrderData")
	require.NotNil(t, e)
	compressed, err := base64.StdEncoding.DecodeString(e.Text())
	require.NoError(t, err)
	data, err := compression.NewCompressor().Decompress(compressed)
	require.NoError(t, err)
	return data
}
