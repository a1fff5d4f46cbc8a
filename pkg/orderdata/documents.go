package orderdata

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
)

// XML namespaces used by key management order data
const (
	NamespaceH004     = "urn:org:ebics:H004"
	NamespaceS001     = "http://www.ebics.org/S001"
	NamespaceXMLDSig  = "http://www.w3.org/2000/09/xmldsig#"
	TimestampLayout   = "2006-01-02T15:04:05Z"
	signatureInfoName = "SignaturePubKeyInfo"
)

// BankKeys are the bank public keys delivered by HPB
type BankKeys struct {
	HostID         string
	Authentication *certificate.Certificate
	Encryption     *certificate.Certificate
}

// BankParameters are the access and protocol parameters delivered by HPD
type BankParameters struct {
	HostID                         string
	Institute                      string
	URLs                           []string
	ProtocolVersions               []string
	AuthenticationVersions         []string
	EncryptionVersions             []string
	SignatureVersions              []string
	RecoverySupported              bool
	PreValidationSupported         bool
	X509DataSupported              bool
	X509DataPersistent             bool
	ClientDataDownloadSupported    bool
	DownloadableOrderDataSupported bool
}

// BuildSignaturePubKeyOrderData builds the INI order data announcing the signature key
func BuildSignaturePubKeyOrderData(cert *certificate.Certificate, partnerID, userID string, ts time.Time) ([]byte, error) {
	if cert == nil || cert.Role != keys.RoleSignature {
		return nil, fmt.Errorf("%w: signature certificate", ErrMissingKey)
	}

	doc := newDocument()
	root := doc.CreateElement("SignaturePubKeyOrderData")
	root.CreateAttr("xmlns", NamespaceS001)
	root.CreateAttr("xmlns:ds", NamespaceXMLDSig)

	addPubKeyInfo(root, signatureInfoName, "SignatureVersion", cert, ts)
	root.CreateElement("PartnerID").SetText(partnerID)
	root.CreateElement("UserID").SetText(userID)

	return doc.WriteToBytes()
}

// BuildHIARequestOrderData builds the HIA order data announcing the authentication
// and encryption keys
func BuildHIARequestOrderData(encryption, authentication *certificate.Certificate, partnerID, userID string, ts time.Time) ([]byte, error) {
	if encryption == nil || encryption.Role != keys.RoleEncryption {
		return nil, fmt.Errorf("%w: encryption certificate", ErrMissingKey)
	}
	if authentication == nil || authentication.Role != keys.RoleAuthentication {
		return nil, fmt.Errorf("%w: authentication certificate", ErrMissingKey)
	}

	doc := newDocument()
	root := doc.CreateElement("HIARequestOrderData")
	root.CreateAttr("xmlns", NamespaceH004)
	root.CreateAttr("xmlns:ds", NamespaceXMLDSig)

	addPubKeyInfo(root, "AuthenticationPubKeyInfo", "AuthenticationVersion", authentication, ts)
	addPubKeyInfo(root, "EncryptionPubKeyInfo", "EncryptionVersion", encryption, ts)
	root.CreateElement("PartnerID").SetText(partnerID)
	root.CreateElement("UserID").SetText(userID)

	return doc.WriteToBytes()
}

// BuildHPBResponseOrderData builds the order data a bank returns for HPB.
// It is the counterpart of ParseHPBResponseOrderData.
func BuildHPBResponseOrderData(bank *BankKeys, ts time.Time) ([]byte, error) {
	if bank == nil || bank.Authentication == nil || bank.Encryption == nil {
		return nil, fmt.Errorf("%w: bank certificates", ErrMissingKey)
	}

	doc := newDocument()
	root := doc.CreateElement("HPBResponseOrderData")
	root.CreateAttr("xmlns", NamespaceH004)
	root.CreateAttr("xmlns:ds", NamespaceXMLDSig)

	addPubKeyInfo(root, "AuthenticationPubKeyInfo", "AuthenticationVersion", bank.Authentication, ts)
	addPubKeyInfo(root, "EncryptionPubKeyInfo", "EncryptionVersion", bank.Encryption, ts)
	root.CreateElement("HostID").SetText(bank.HostID)

	return doc.WriteToBytes()
}

func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

func addPubKeyInfo(parent *etree.Element, name, versionTag string, cert *certificate.Certificate, ts time.Time) {
	info := parent.CreateElement(name)

	if len(cert.Raw) > 0 {
		x509Data := info.CreateElement("ds:X509Data")
		issuerSerial := x509Data.CreateElement("ds:X509IssuerSerial")
		issuerSerial.CreateElement("ds:X509IssuerName").SetText(cert.Issuer.String())
		serial := "0"
		if cert.SerialNumber != nil {
			serial = cert.SerialNumber.String()
		}
		issuerSerial.CreateElement("ds:X509SerialNumber").SetText(serial)
		x509Data.CreateElement("ds:X509Certificate").SetText(base64.StdEncoding.EncodeToString(cert.Raw))
	}

	value := info.CreateElement("PubKeyValue")
	rsaValue := value.CreateElement("ds:RSAKeyValue")
	rsaValue.CreateElement("ds:Modulus").SetText(base64.StdEncoding.EncodeToString(cert.PublicKey.N.Bytes()))
	rsaValue.CreateElement("ds:Exponent").SetText(base64.StdEncoding.EncodeToString(big.NewInt(int64(cert.PublicKey.E)).Bytes()))
	value.CreateElement("TimeStamp").SetText(ts.UTC().Format(TimestampLayout))

	info.CreateElement(versionTag).SetText(cert.Role.Version())
}

// ParseXML parses an XML order data document
func ParseXML(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOrderData, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedOrderData)
	}
	return doc, nil
}

func parseRoot(data []byte, name string) (*etree.Element, error) {
	doc, err := ParseXML(data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if root.Tag != name {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrMalformedOrderData, name, root.Tag)
	}
	return root, nil
}

// ParseSignaturePubKeyOrderData reads the signature certificate from INI order data
func ParseSignaturePubKeyOrderData(data []byte, at time.Time) (*certificate.Certificate, error) {
	root, err := parseRoot(data, "SignaturePubKeyOrderData")
	if err != nil {
		return nil, err
	}
	return parsePubKeyInfo(root, signatureInfoName, "SignatureVersion", keys.RoleSignature, at)
}

// ParseHPBResponseOrderData reads the bank keys from decrypted HPB order data.
// at is used as the key timestamp when the document carries none.
func ParseHPBResponseOrderData(data []byte, at time.Time) (*BankKeys, error) {
	root, err := parseRoot(data, "HPBResponseOrderData")
	if err != nil {
		return nil, err
	}

	auth, err := parsePubKeyInfo(root, "AuthenticationPubKeyInfo", "AuthenticationVersion", keys.RoleAuthentication, at)
	if err != nil {
		return nil, err
	}
	enc, err := parsePubKeyInfo(root, "EncryptionPubKeyInfo", "EncryptionVersion", keys.RoleEncryption, at)
	if err != nil {
		return nil, err
	}

	return &BankKeys{
		HostID:         childText(root, "HostID"),
		Authentication: auth,
		Encryption:     enc,
	}, nil
}

func parsePubKeyInfo(root *etree.Element, name, versionTag string, role keys.Role, at time.Time) (*certificate.Certificate, error) {
	info := root.SelectElement(name)
	if info == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedOrderData, name)
	}
	if v := childText(info, versionTag); v != role.Version() {
		return nil, fmt.Errorf("%w: %s is %q, expected %s", ErrMalformedOrderData, versionTag, v, role.Version())
	}

	pub, ts, err := parsePubKeyValue(info.SelectElement("PubKeyValue"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOrderData, name, err)
	}
	if !ts.IsZero() {
		at = ts
	}

	if der := childText(info, "X509Data/X509Certificate"); der != "" {
		raw, err := base64.StdEncoding.DecodeString(compact(der))
		if err != nil {
			return nil, fmt.Errorf("%w: %s certificate: %v", ErrMalformedOrderData, name, err)
		}
		cert, err := certificate.FromX509(role, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOrderData, name, err)
		}
		if pub != nil && !cert.PublicKey.Equal(pub) {
			return nil, fmt.Errorf("%w: %s certificate does not match key value", ErrMalformedOrderData, name)
		}
		return cert, nil
	}

	if pub == nil {
		return nil, fmt.Errorf("%w: %s carries no key", ErrMalformedOrderData, name)
	}
	cert, err := certificate.FromPublicKey(role, pub, at)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOrderData, name, err)
	}
	return cert, nil
}

func parsePubKeyValue(value *etree.Element) (*rsa.PublicKey, time.Time, error) {
	if value == nil {
		return nil, time.Time{}, nil
	}

	modulus, err := decodeBigInt(childText(value, "RSAKeyValue/Modulus"))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("modulus: %w", err)
	}
	exponent, err := decodeBigInt(childText(value, "RSAKeyValue/Exponent"))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("exponent: %w", err)
	}
	if !exponent.IsInt64() || exponent.Int64() < 3 || exponent.Int64() > 1<<31-1 {
		return nil, time.Time{}, fmt.Errorf("exponent out of range")
	}

	var ts time.Time
	if s := childText(value, "TimeStamp"); s != "" {
		ts, err = parseTimestamp(s)
		if err != nil {
			return nil, time.Time{}, err
		}
	}

	return &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}, ts, nil
}

func decodeBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing value")
	}
	b, err := base64.StdEncoding.DecodeString(compact(s))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	return new(big.Int).SetBytes(b), nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseHPDResponseOrderData reads the bank parameters from HPD order data
func ParseHPDResponseOrderData(data []byte) (*BankParameters, error) {
	root, err := parseRoot(data, "HPDResponseOrderData")
	if err != nil {
		return nil, err
	}

	access := root.SelectElement("AccessParams")
	protocol := root.SelectElement("ProtocolParams")
	if access == nil || protocol == nil {
		return nil, fmt.Errorf("%w: AccessParams and ProtocolParams are required", ErrMalformedOrderData)
	}

	params := &BankParameters{
		HostID:    childText(access, "HostID"),
		Institute: childText(access, "Institute"),
	}
	for _, u := range access.SelectElements("URL") {
		params.URLs = append(params.URLs, strings.TrimSpace(u.Text()))
	}

	if version := protocol.SelectElement("Version"); version != nil {
		params.ProtocolVersions = strings.Fields(childText(version, "Protocol"))
		params.AuthenticationVersions = strings.Fields(childText(version, "Authentication"))
		params.EncryptionVersions = strings.Fields(childText(version, "Encryption"))
		params.SignatureVersions = strings.Fields(childText(version, "Signature"))
	}
	params.RecoverySupported = supported(protocol, "Recovery")
	params.PreValidationSupported = supported(protocol, "PreValidation")
	params.X509DataSupported = supported(protocol, "X509Data")
	params.ClientDataDownloadSupported = supported(protocol, "ClientDataDownload")
	params.DownloadableOrderDataSupported = supported(protocol, "DownloadableOrderData")
	if x := protocol.SelectElement("X509Data"); x != nil {
		params.X509DataPersistent = x.SelectAttrValue("persistent", "false") == "true"
	}

	return params, nil
}

// supported reads the "supported" attribute, which defaults to true when the element is present
func supported(parent *etree.Element, name string) bool {
	e := parent.SelectElement(name)
	if e == nil {
		return false
	}
	return e.SelectAttrValue("supported", "true") == "true"
}

// ParseHAAResponseOrderData returns the order types listed in HAA order data
func ParseHAAResponseOrderData(data []byte) ([]string, error) {
	root, err := parseRoot(data, "HAAResponseOrderData")
	if err != nil {
		return nil, err
	}
	types := root.SelectElement("OrderTypes")
	if types == nil {
		return nil, fmt.Errorf("%w: missing OrderTypes", ErrMalformedOrderData)
	}
	return strings.Fields(types.Text()), nil
}

func childText(e *etree.Element, path string) string {
	child := e.FindElement(path)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

// compact removes whitespace that banks insert into long base64 values
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
