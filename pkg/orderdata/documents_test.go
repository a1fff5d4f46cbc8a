package orderdata

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/certificate"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
)

func selfSigned(t *testing.T, kp *keys.KeyPair) *certificate.Certificate {
	t.Helper()
	cert, err := certificate.FromKeyPair(rand.Reader, kp, false, certificate.SubjectInfo{CommonName: "USER1", Country: "DE"})
	require.NoError(t, err)
	return cert
}

func TestSignaturePubKeyOrderData(t *testing.T) {
	cert := selfSigned(t, keyPair(t, "participant-a"))

	data, err := BuildSignaturePubKeyOrderData(cert, "PARTNER1", "USER1", testTime)
	require.NoError(t, err)

	doc, err := ParseXML(data)
	require.NoError(t, err)
	root := doc.Root()
	assert.Equal(t, "SignaturePubKeyOrderData", root.Tag)
	assert.Equal(t, NamespaceS001, root.SelectAttrValue("xmlns", ""))
	assert.Equal(t, "PARTNER1", childText(root, "PartnerID"))
	assert.Equal(t, "USER1", childText(root, "UserID"))
	assert.Equal(t, "A006", childText(root, "SignaturePubKeyInfo/SignatureVersion"))
	assert.Equal(t, "2024-04-10T14:00:00Z", childText(root, "SignaturePubKeyInfo/PubKeyValue/TimeStamp"))
	assert.NotEmpty(t, childText(root, "SignaturePubKeyInfo/X509Data/X509Certificate"))

	parsed, err := ParseSignaturePubKeyOrderData(data, testTime)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(cert))
}

func TestSignaturePubKeyOrderData_PendingCertificate(t *testing.T) {
	kp := keyPair(t, "participant-a")
	pending, err := certificate.FromKeyPair(rand.Reader, kp, true, certificate.SubjectInfo{CommonName: "USER1"})
	require.NoError(t, err)

	data, err := BuildSignaturePubKeyOrderData(pending, "PARTNER1", "USER1", testTime)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "X509Data")

	parsed, err := ParseSignaturePubKeyOrderData(data, testTime)
	require.NoError(t, err)
	assert.True(t, parsed.Matches(kp))
	assert.Equal(t, testTime, parsed.NotBefore)
}

func TestBuildSignaturePubKeyOrderData_WrongRole(t *testing.T) {
	cert := selfSigned(t, keyPair(t, "participant-x"))
	_, err := BuildSignaturePubKeyOrderData(cert, "PARTNER1", "USER1", testTime)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestHIARequestOrderData(t *testing.T) {
	enc := selfSigned(t, keyPair(t, "participant-e"))
	auth := selfSigned(t, keyPair(t, "participant-x"))

	data, err := BuildHIARequestOrderData(enc, auth, "PARTNER1", "USER1", testTime)
	require.NoError(t, err)

	root, err := parseRoot(data, "HIARequestOrderData")
	require.NoError(t, err)
	assert.Equal(t, NamespaceH004, root.SelectAttrValue("xmlns", ""))
	assert.Equal(t, "X002", childText(root, "AuthenticationPubKeyInfo/AuthenticationVersion"))
	assert.Equal(t, "E002", childText(root, "EncryptionPubKeyInfo/EncryptionVersion"))

	// authentication info precedes encryption info
	children := root.ChildElements()
	require.Len(t, children, 4)
	assert.Equal(t, "AuthenticationPubKeyInfo", children[0].Tag)
	assert.Equal(t, "EncryptionPubKeyInfo", children[1].Tag)

	_, err = BuildHIARequestOrderData(auth, enc, "PARTNER1", "USER1", testTime)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestHPBResponseOrderData_RoundTrip(t *testing.T) {
	bankX := keyPair(t, "bank-x")
	bankE := keyPair(t, "other-e")
	xCert, err := certificate.FromPublicKey(keys.RoleAuthentication, bankX.PublicKey(), testTime)
	require.NoError(t, err)
	eCert := selfSigned(t, bankE)

	data, err := BuildHPBResponseOrderData(&BankKeys{HostID: "EBIXHOST", Authentication: xCert, Encryption: eCert}, testTime)
	require.NoError(t, err)

	bank, err := ParseHPBResponseOrderData(data, testTime)
	require.NoError(t, err)
	assert.Equal(t, "EBIXHOST", bank.HostID)
	assert.True(t, bank.Authentication.PublicKey.Equal(bankX.PublicKey()))
	assert.Equal(t, keys.RoleAuthentication, bank.Authentication.Role)
	assert.True(t, bank.Encryption.Equal(eCert))
}

func TestParseHPBResponseOrderData_Prefixed(t *testing.T) {
	bankX := keyPair(t, "bank-x")
	bankE := keyPair(t, "other-e")
	xCert, err := certificate.FromPublicKey(keys.RoleAuthentication, bankX.PublicKey(), testTime)
	require.NoError(t, err)
	eCert, err := certificate.FromPublicKey(keys.RoleEncryption, bankE.PublicKey(), testTime)
	require.NoError(t, err)

	data, err := BuildHPBResponseOrderData(&BankKeys{HostID: "EBIXHOST", Authentication: xCert, Encryption: eCert}, testTime)
	require.NoError(t, err)

	// banks may bind the H004 namespace to a prefix
	prefixed := strings.NewReplacer(
		`xmlns="urn:org:ebics:H004"`, `xmlns:h="urn:org:ebics:H004"`,
		"<HPBResponseOrderData", "<h:HPBResponseOrderData",
		"</HPBResponseOrderData", "</h:HPBResponseOrderData",
		"<AuthenticationPubKeyInfo", "<h:AuthenticationPubKeyInfo",
		"</AuthenticationPubKeyInfo", "</h:AuthenticationPubKeyInfo",
		"<EncryptionPubKeyInfo", "<h:EncryptionPubKeyInfo",
		"</EncryptionPubKeyInfo", "</h:EncryptionPubKeyInfo",
		"<PubKeyValue", "<h:PubKeyValue",
		"</PubKeyValue", "</h:PubKeyValue",
	).Replace(string(data))

	bank, err := ParseHPBResponseOrderData([]byte(prefixed), testTime)
	require.NoError(t, err)
	assert.True(t, bank.Encryption.PublicKey.Equal(bankE.PublicKey()))
}

func TestParseHPBResponseOrderData_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not xml", "garbage"},
		{"wrong root", `<HIARequestOrderData xmlns="urn:org:ebics:H004"/>`},
		{"missing keys", `<HPBResponseOrderData xmlns="urn:org:ebics:H004"><HostID>H</HostID></HPBResponseOrderData>`},
		{"wrong version", `<HPBResponseOrderData xmlns="urn:org:ebics:H004">
			<AuthenticationPubKeyInfo><PubKeyValue/><AuthenticationVersion>X001</AuthenticationVersion></AuthenticationPubKeyInfo>
		</HPBResponseOrderData>`},
		{"bad modulus", `<HPBResponseOrderData xmlns="urn:org:ebics:H004" xmlns:ds="http://www.w3.org/2000/09/xmldsig#">
			<AuthenticationPubKeyInfo><PubKeyValue><ds:RSAKeyValue><ds:Modulus>!!</ds:Modulus><ds:Exponent>AQAB</ds:Exponent></ds:RSAKeyValue></PubKeyValue><AuthenticationVersion>X002</AuthenticationVersion></AuthenticationPubKeyInfo>
		</HPBResponseOrderData>`},
		{"no key value", `<HPBResponseOrderData xmlns="urn:org:ebics:H004">
			<AuthenticationPubKeyInfo><AuthenticationVersion>X002</AuthenticationVersion></AuthenticationPubKeyInfo>
		</HPBResponseOrderData>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHPBResponseOrderData([]byte(tt.data), testTime)
			assert.ErrorIs(t, err, ErrMalformedOrderData)
		})
	}
}

const hpdFixture = `<?xml version="1.0" encoding="UTF-8"?>
<HPDResponseOrderData xmlns="urn:org:ebics:H004">
  <AccessParams>
    <URL valid_from="2023-01-01T00:00:00Z">https://ebics.example.com/ebics</URL>
    <URL>https://ebics2.example.com/ebics</URL>
    <Institute>Example Bank</Institute>
    <HostID>EBIXHOST</HostID>
  </AccessParams>
  <ProtocolParams>
    <Version>
      <Protocol>H003 H004</Protocol>
      <Authentication>X002</Authentication>
      <Encryption>E002</Encryption>
      <Signature>A005 A006</Signature>
    </Version>
    <Recovery supported="true"/>
    <PreValidation supported="false"/>
    <X509Data supported="true" persistent="true"/>
    <ClientDataDownload/>
  </ProtocolParams>
</HPDResponseOrderData>`

func TestParseHPDResponseOrderData(t *testing.T) {
	params, err := ParseHPDResponseOrderData([]byte(hpdFixture))
	require.NoError(t, err)

	assert.Equal(t, "EBIXHOST", params.HostID)
	assert.Equal(t, "Example Bank", params.Institute)
	assert.Equal(t, []string{"https://ebics.example.com/ebics", "https://ebics2.example.com/ebics"}, params.URLs)
	assert.Equal(t, []string{"H003", "H004"}, params.ProtocolVersions)
	assert.Equal(t, []string{"X002"}, params.AuthenticationVersions)
	assert.Equal(t, []string{"E002"}, params.EncryptionVersions)
	assert.Equal(t, []string{"A005", "A006"}, params.SignatureVersions)
	assert.True(t, params.RecoverySupported)
	assert.False(t, params.PreValidationSupported)
	assert.True(t, params.X509DataSupported)
	assert.True(t, params.X509DataPersistent)
	assert.True(t, params.ClientDataDownloadSupported)
	assert.False(t, params.DownloadableOrderDataSupported)

	_, err = ParseHPDResponseOrderData([]byte(`<HPDResponseOrderData/>`))
	assert.ErrorIs(t, err, ErrMalformedOrderData)
}

func TestParseHAAResponseOrderData(t *testing.T) {
	data := `<HAAResponseOrderData xmlns="urn:org:ebics:H004">
  <OrderTypes>STA VMK
    C53</OrderTypes>
</HAAResponseOrderData>`

	types, err := ParseHAAResponseOrderData([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"STA", "VMK", "C53"}, types)

	_, err = ParseHAAResponseOrderData([]byte(`<HAAResponseOrderData/>`))
	assert.ErrorIs(t, err, ErrMalformedOrderData)
}

func TestParseXML(t *testing.T) {
	doc, err := ParseXML([]byte(`<Document><Stmt/></Document>`))
	require.NoError(t, err)
	assert.Equal(t, "Document", doc.Root().Tag)

	for _, bad := range []string{"", "plain text"} {
		_, err := ParseXML([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformedOrderData, bad)
	}
}
