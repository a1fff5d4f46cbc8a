package response

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
)

// CodeOK is the only successful return code
const CodeOK = "000000"

// Return codes with a dedicated meaning for the client
const (
	CodeDownloadPostprocessDone = "011000"
	CodeNoDownloadDataAvailable = "090005"
	CodeAuthenticationFailed    = "061001"
	CodeInvalidUserState        = "091002"
	CodeInvalidOrderType        = "091005"
	CodeBankPubKeyUpdateReq     = "091008"
)

// ErrMalformedResponse is returned when a response does not have the expected structure.
// It is never mapped to a return code.
var ErrMalformedResponse = errors.New("malformed response")

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Response root elements
const (
	KindHEV           = "ebicsHEVResponse"
	KindKeyManagement = "ebicsKeyManagementResponse"
	KindTransaction   = "ebicsResponse"
)

// ProtocolVersion is one protocol version advertised in a HEV response
type ProtocolVersion struct {
	Protocol string
	Version  string
}

// Transaction is one unit of business data extracted from a response
type Transaction struct {
	ID        string
	OrderType string
	// OrderData is the decrypted business document
	OrderData []byte
	// Document is the parsed order data when it is XML
	Document *etree.Document
}

// Response is a parsed bank response
type Response struct {
	// Kind is the root element name
	Kind string
	// ReturnCode is the technical return code
	ReturnCode string
	ReportText string
	// BusinessReturnCode is the body return code, empty when absent
	BusinessReturnCode string
	TransactionID      string
	NumSegments        int
	SegmentNumber      int
	LastSegment        bool
	Versions           []ProtocolVersion

	encrypted    *orderdata.Encrypted
	orderData    []byte
	signed       bool
	doc          *etree.Document
	transactions []Transaction
}

// Parse reads a bank response. Structural problems return errors wrapping
// ErrMalformedResponse; a non-OK return code is not an error.
func Parse(raw []byte) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedResponse)
	}

	r := &Response{Kind: root.Tag, doc: doc}

	var err error
	switch root.Tag {
	case KindHEV:
		err = r.parseHEV(root)
	case KindKeyManagement, KindTransaction:
		err = r.parseEnvelope(root)
	default:
		err = fmt.Errorf("%w: unexpected root element %q", ErrMalformedResponse, root.Tag)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Response) parseHEV(root *etree.Element) error {
	code, err := returnCode(root.FindElement("SystemReturnCode/ReturnCode"), true)
	if err != nil {
		return err
	}
	r.ReturnCode = code
	r.ReportText = text(root.FindElement("SystemReturnCode/ReportText"))

	for _, v := range root.SelectElements("VersionNumber") {
		r.Versions = append(r.Versions, ProtocolVersion{
			Protocol: v.SelectAttrValue("ProtocolVersion", ""),
			Version:  text(v),
		})
	}
	return nil
}

func (r *Response) parseEnvelope(root *etree.Element) error {
	header := root.SelectElement("header")
	if header == nil {
		return fmt.Errorf("%w: header missing", ErrMalformedResponse)
	}

	code, err := returnCode(header.FindElement("mutable/ReturnCode"), true)
	if err != nil {
		return err
	}
	r.ReturnCode = code
	r.ReportText = text(header.FindElement("mutable/ReportText"))
	r.TransactionID = text(header.FindElement("static/TransactionID"))
	r.signed = root.SelectElement("AuthSignature") != nil

	if r.NumSegments, err = optionalInt(header.FindElement("static/NumSegments")); err != nil {
		return err
	}
	if segment := header.FindElement("mutable/SegmentNumber"); segment != nil {
		if r.SegmentNumber, err = optionalInt(segment); err != nil {
			return err
		}
		r.LastSegment = segment.SelectAttrValue("lastSegment", "false") == "true"
	}

	body := root.SelectElement("body")
	if body == nil {
		return nil
	}
	if r.BusinessReturnCode, err = returnCode(body.SelectElement("ReturnCode"), false); err != nil {
		return err
	}
	return r.parseDataTransfer(body.SelectElement("DataTransfer"))
}

func (r *Response) parseDataTransfer(transfer *etree.Element) error {
	if transfer == nil {
		return nil
	}
	info := transfer.SelectElement("DataEncryptionInfo")
	data := transfer.SelectElement("OrderData")
	if data == nil {
		return nil
	}
	if info == nil {
		return fmt.Errorf("%w: order data without encryption info", ErrMalformedResponse)
	}

	digestElem := info.SelectElement("EncryptionPubKeyDigest")
	digest, err := decode(digestElem, "EncryptionPubKeyDigest")
	if err != nil {
		return err
	}
	key, err := decode(info.SelectElement("TransactionKey"), "TransactionKey")
	if err != nil {
		return err
	}
	payload, err := decode(data, "OrderData")
	if err != nil {
		return err
	}

	r.encrypted = &orderdata.Encrypted{
		Version:        digestElem.SelectAttrValue("Version", orderdata.EncryptionVersion),
		PubKeyDigest:   digest,
		TransactionKey: key,
		OrderData:      payload,
	}
	return nil
}

// OK reports whether the technical and, when present, the business return code
// signal success
func (r *Response) OK() bool {
	return r.Code() == CodeOK
}

// Code returns the first non-OK return code, or CodeOK
func (r *Response) Code() string {
	if r.ReturnCode != CodeOK {
		return r.ReturnCode
	}
	if r.BusinessReturnCode != "" && r.BusinessReturnCode != CodeOK {
		return r.BusinessReturnCode
	}
	return CodeOK
}

// Signed reports whether the response carries an AuthSignature
func (r *Response) Signed() bool { return r.signed }

// Document returns the parsed response envelope
func (r *Response) Document() *etree.Document { return r.doc }

// Encrypted returns the encrypted order data block, or nil
func (r *Response) Encrypted() *orderdata.Encrypted { return r.encrypted }

// OrderData returns the decrypted order data, or nil before decryption
func (r *Response) OrderData() []byte { return r.orderData }

// SetDecryptedOrderData records the plaintext of the encrypted block
func (r *Response) SetDecryptedOrderData(data []byte) {
	r.orderData = data
}

// AddTransaction attaches a business transaction to the response
func (r *Response) AddTransaction(tx Transaction) {
	r.transactions = append(r.transactions, tx)
}

// Transactions returns the business transactions in the order they were added
func (r *Response) Transactions() []Transaction {
	return r.transactions
}

func returnCode(e *etree.Element, required bool) (string, error) {
	if e == nil {
		if required {
			return "", fmt.Errorf("%w: return code missing", ErrMalformedResponse)
		}
		return "", nil
	}
	code := text(e)
	if !codePattern.MatchString(code) {
		return "", fmt.Errorf("%w: invalid return code %q", ErrMalformedResponse, code)
	}
	return code, nil
}

func optionalInt(e *etree.Element) (int, error) {
	if e == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(text(e))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrMalformedResponse, e.Tag, text(e))
	}
	return n, nil
}

func decode(e *etree.Element, name string) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: %s missing", ErrMalformedResponse, name)
	}
	b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(e.Text()), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, name, err)
	}
	return b, nil
}

func text(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text())
}
