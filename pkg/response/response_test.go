package response

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hevResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ebicsHEVResponse xmlns="http://www.ebics.org/H000">
  <SystemReturnCode>
    <ReturnCode>000000</ReturnCode>
    <ReportText>[EBICS_OK] OK</ReportText>
  </SystemReturnCode>
  <VersionNumber ProtocolVersion="H003">02.40</VersionNumber>
  <VersionNumber ProtocolVersion="H004">02.50</VersionNumber>
</ebicsHEVResponse>`

func keyManagementResponse(technical, business, transfer string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<ebicsKeyManagementResponse xmlns="urn:org:ebics:H004" Version="H004" Revision="1">
  <header authenticate="true">
    <static/>
    <mutable>
      <ReturnCode>` + technical + `</ReturnCode>
      <ReportText>report</ReportText>
    </mutable>
  </header>
  <body>` + transfer + `
    <ReturnCode authenticate="true">` + business + `</ReturnCode>
  </body>
</ebicsKeyManagementResponse>`
}

func dataTransfer(digest, key, data []byte) string {
	b64 := base64.StdEncoding.EncodeToString
	return `
    <DataTransfer>
      <DataEncryptionInfo authenticate="true">
        <EncryptionPubKeyDigest Version="E002" Algorithm="http://www.w3.org/2001/04/xmlenc#sha256">` + b64(digest) + `</EncryptionPubKeyDigest>
        <TransactionKey>` + b64(key) + `</TransactionKey>
      </DataEncryptionInfo>
      <OrderData>` + b64(data) + `</OrderData>
    </DataTransfer>`
}

const transactionResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ebicsResponse xmlns="urn:org:ebics:H004" xmlns:ds="http://www.w3.org/2000/09/xmldsig#" Version="H004" Revision="1">
  <header authenticate="true">
    <static>
      <TransactionID>0123456789ABCDEF0123456789ABCDEF</TransactionID>
      <NumSegments>1</NumSegments>
    </static>
    <mutable>
      <TransactionPhase>Initialisation</TransactionPhase>
      <SegmentNumber lastSegment="true">1</SegmentNumber>
      <ReturnCode>000000</ReturnCode>
      <ReportText>[EBICS_OK] OK</ReportText>
    </mutable>
  </header>
  <AuthSignature>
    <ds:SignedInfo/>
    <ds:SignatureValue>AAAA</ds:SignatureValue>
  </AuthSignature>
  <body>
    <ReturnCode authenticate="true">000000</ReturnCode>
  </body>
</ebicsResponse>`

func TestParse_HEV(t *testing.T) {
	r, err := Parse([]byte(hevResponse))
	require.NoError(t, err)

	assert.Equal(t, KindHEV, r.Kind)
	assert.True(t, r.OK())
	assert.Equal(t, CodeOK, r.Code())
	assert.Equal(t, "[EBICS_OK] OK", r.ReportText)
	assert.Equal(t, []ProtocolVersion{
		{Protocol: "H003", Version: "02.40"},
		{Protocol: "H004", Version: "02.50"},
	}, r.Versions)
	assert.False(t, r.Signed())
	assert.Nil(t, r.Encrypted())
}

func TestParse_KeyManagement(t *testing.T) {
	r, err := Parse([]byte(keyManagementResponse("000000", "000000", "")))
	require.NoError(t, err)

	assert.Equal(t, KindKeyManagement, r.Kind)
	assert.True(t, r.OK())
	assert.Equal(t, "report", r.ReportText)
	assert.Nil(t, r.Encrypted())
	assert.NotNil(t, r.Document())
}

func TestParse_ReturnCodes(t *testing.T) {
	tests := []struct {
		name      string
		technical string
		business  string
		ok        bool
		code      string
	}{
		{"both ok", "000000", "000000", true, CodeOK},
		{"technical error", "061001", "000000", false, CodeAuthenticationFailed},
		{"business error", "000000", "091002", false, CodeInvalidUserState},
		{"technical wins", "061001", "091002", false, CodeAuthenticationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte(keyManagementResponse(tt.technical, tt.business, "")))
			require.NoError(t, err)
			assert.Equal(t, tt.ok, r.OK())
			assert.Equal(t, tt.code, r.Code())
		})
	}
}

func TestParse_EncryptedOrderData(t *testing.T) {
	digest := []byte("0123456789abcdef0123456789abcdef")
	key := []byte("wrapped transaction key")
	data := []byte("ciphertext")

	r, err := Parse([]byte(keyManagementResponse("000000", "000000", dataTransfer(digest, key, data))))
	require.NoError(t, err)

	enc := r.Encrypted()
	require.NotNil(t, enc)
	assert.Equal(t, "E002", enc.Version)
	assert.Equal(t, digest, enc.PubKeyDigest)
	assert.Equal(t, key, enc.TransactionKey)
	assert.Equal(t, data, enc.OrderData)

	assert.Nil(t, r.OrderData())
	r.SetDecryptedOrderData([]byte("<plain/>"))
	assert.Equal(t, []byte("<plain/>"), r.OrderData())
}

func TestParse_Transaction(t *testing.T) {
	r, err := Parse([]byte(transactionResponse))
	require.NoError(t, err)

	assert.Equal(t, KindTransaction, r.Kind)
	assert.True(t, r.OK())
	assert.True(t, r.Signed())
	assert.Equal(t, "0123456789ABCDEF0123456789ABCDEF", r.TransactionID)
	assert.Equal(t, 1, r.NumSegments)
	assert.Equal(t, 1, r.SegmentNumber)
	assert.True(t, r.LastSegment)
}

func TestTransactions(t *testing.T) {
	r, err := Parse([]byte(transactionResponse))
	require.NoError(t, err)
	assert.Empty(t, r.Transactions())

	r.AddTransaction(Transaction{ID: "1", OrderType: "STA", OrderData: []byte("a")})
	r.AddTransaction(Transaction{ID: "2", OrderType: "STA", OrderData: []byte("b")})

	txs := r.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "1", txs[0].ID)
	assert.Equal(t, "2", txs[1].ID)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not xml", "not xml at all"},
		{"unknown root", `<ebicsUnknown xmlns="urn:org:ebics:H004"/>`},
		{"hev without code", `<ebicsHEVResponse xmlns="http://www.ebics.org/H000"><SystemReturnCode/></ebicsHEVResponse>`},
		{"no header", `<ebicsKeyManagementResponse xmlns="urn:org:ebics:H004"><body/></ebicsKeyManagementResponse>`},
		{"short code", keyManagementResponse("0000", "000000", "")},
		{"alpha code", keyManagementResponse("00000A", "000000", "")},
		{"bad business code", keyManagementResponse("000000", "OK", "")},
		{"order data without info", keyManagementResponse("000000", "000000", `<DataTransfer><OrderData>AAAA</OrderData></DataTransfer>`)},
		{"bad base64", keyManagementResponse("000000", "000000", strings.Replace(dataTransfer([]byte("d"), []byte("k"), []byte("o")), "<OrderData>", "<OrderData>!!", 1))},
		{"bad segment count", strings.Replace(transactionResponse, "<NumSegments>1<", "<NumSegments>x<", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}
