package message

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
)

// XML namespaces and protocol constants
const (
	NamespaceH000   = "http://www.ebics.org/H000"
	NamespaceH004   = "urn:org:ebics:H004"
	NamespaceDSig   = "http://www.w3.org/2000/09/xmldsig#"
	ProtocolVersion = "H004"
	Revision        = "1"

	// TimestampLayout formats request timestamps in UTC
	TimestampLayout = "2006-01-02T15:04:05Z"
	// DateLayout formats date range boundaries
	DateLayout = "2006-01-02"

	DefaultLanguage       = "de"
	DefaultSecurityMedium = "0000"
)

// ErrInvalidParams is returned when request parameters are incomplete or inconsistent
var ErrInvalidParams = errors.New("invalid request parameters")

// OrderType is an EBICS order type code
type OrderType string

const (
	OrderHEV OrderType = "HEV"
	OrderINI OrderType = "INI"
	OrderHIA OrderType = "HIA"
	OrderHPB OrderType = "HPB"
	OrderHPD OrderType = "HPD"
	OrderHAA OrderType = "HAA"
	OrderSTA OrderType = "STA"
	OrderVMK OrderType = "VMK"
)

// Variant is the structural shape of a request envelope
type Variant int

const (
	// VariantHEV is the bare host probe, without header or signature
	VariantHEV Variant = iota
	// VariantUnsecured carries unencrypted key order data and no signature
	VariantUnsecured
	// VariantNoPubKeyDigests is signed but carries no bank key digests
	VariantNoPubKeyDigests
	// VariantSecured is fully authenticated and names the bank keys it expects
	VariantSecured
)

func (v Variant) String() string {
	switch v {
	case VariantHEV:
		return "ebicsHEVRequest"
	case VariantUnsecured:
		return "ebicsUnsecuredRequest"
	case VariantNoPubKeyDigests:
		return "ebicsNoPubKeyDigestsRequest"
	case VariantSecured:
		return "ebicsRequest"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Variant returns the envelope shape used for the order type
func (o OrderType) Variant() Variant {
	switch o {
	case OrderHEV:
		return VariantHEV
	case OrderINI, OrderHIA:
		return VariantUnsecured
	case OrderHPB:
		return VariantNoPubKeyDigests
	default:
		return VariantSecured
	}
}

// Attribute returns the OrderAttribute value for the order type
func (o OrderType) Attribute() string {
	if o.Variant() == VariantUnsecured {
		return "DZNNN"
	}
	return "DZHNN"
}

// Ranged reports whether the order type accepts a date range
func (o OrderType) Ranged() bool {
	return o == OrderSTA || o == OrderVMK
}

// Identity names the bank host and the subscriber
type Identity struct {
	HostID         string
	PartnerID      string
	UserID         string
	Product        string
	Language       string
	SecurityMedium string
}

// DateRange bounds a statement query. Both dates are required.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks that both dates are set and Start is not after End
func (d *DateRange) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("%w: date range needs both start and end", ErrInvalidParams)
	}
	if d.Start.After(d.End) {
		return fmt.Errorf("%w: date range start %s is after end %s", ErrInvalidParams,
			d.Start.Format(DateLayout), d.End.Format(DateLayout))
	}
	return nil
}

// BankDigests are the digests of the bank keys the client expects to be in use
type BankDigests struct {
	Authentication []byte
	Encryption     []byte
}

// Params are the inputs of a request. Timestamp and Nonce are supplied by the
// caller so that building is deterministic.
type Params struct {
	Identity    Identity
	OrderType   OrderType
	Timestamp   time.Time
	Nonce       string
	DateRange   *DateRange
	BankDigests *BankDigests
	// OrderData is an optional encrypted block carried in the body of a secured request
	OrderData *orderdata.Encrypted
}

// Request is a built request document
type Request struct {
	OrderType OrderType
	Variant   Variant
	doc       *etree.Document
}

// Document returns the request XML tree
func (r *Request) Document() *etree.Document {
	return r.doc
}

// Bytes serializes the request without indentation
func (r *Request) Bytes() ([]byte, error) {
	return r.doc.WriteToBytes()
}

// NewNonce returns a random 128-bit nonce as uppercase hex
func NewNonce(random io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(random)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(id[:])), nil
}
