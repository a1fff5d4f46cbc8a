package message

import (
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

var compressor = compression.NewCompressor()

// BuildHEV builds the host probe listing the protocol versions a bank supports
func BuildHEV(hostID string) (*Request, error) {
	if hostID == "" {
		return nil, fmt.Errorf("%w: host ID is required", ErrInvalidParams)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(VariantHEV.String())
	root.CreateAttr("xmlns", NamespaceH000)
	root.CreateElement("HostID").SetText(hostID)

	return &Request{OrderType: OrderHEV, Variant: VariantHEV, doc: doc}, nil
}

// BuildINI builds the signature key submission. orderData is the serialized
// SignaturePubKeyOrderData document.
func BuildINI(p Params, orderData []byte) (*Request, error) {
	p.OrderType = OrderINI
	return buildUnsecured(p, orderData)
}

// BuildHIA builds the encryption and authentication key submission. orderData is
// the serialized HIARequestOrderData document.
func BuildHIA(p Params, orderData []byte) (*Request, error) {
	p.OrderType = OrderHIA
	return buildUnsecured(p, orderData)
}

// BuildHPB builds the bank key retrieval, signed with the authentication key pair
func BuildHPB(p Params, auth *keys.KeyPair) (*Request, error) {
	p.OrderType = OrderHPB
	if err := validate(p); err != nil {
		return nil, err
	}

	doc, root := newEnvelope(VariantNoPubKeyDigests)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	staticHeader(header.CreateElement("static"), p)
	header.CreateElement("mutable")
	root.CreateElement("body")

	return finish(doc, p, auth)
}

// BuildSecured builds a fully authenticated download request such as HPD, HAA,
// STA or VMK
func BuildSecured(p Params, auth *keys.KeyPair) (*Request, error) {
	if p.OrderType.Variant() != VariantSecured {
		return nil, fmt.Errorf("%w: %s is not a secured order type", ErrInvalidParams, p.OrderType)
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	doc, root := newEnvelope(VariantSecured)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	staticHeader(header.CreateElement("static"), p)
	header.CreateElement("mutable").CreateElement("TransactionPhase").SetText("Initialisation")

	body := root.CreateElement("body")
	if p.OrderData != nil {
		addEncryptedOrderData(body, p.OrderData)
	}

	return finish(doc, p, auth)
}

func buildUnsecured(p Params, orderData []byte) (*Request, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if len(orderData) == 0 {
		return nil, fmt.Errorf("%w: %s needs order data", ErrInvalidParams, p.OrderType)
	}

	compressed, err := compressor.Compress(orderData)
	if err != nil {
		return nil, err
	}

	doc, root := newEnvelope(VariantUnsecured)
	header := root.CreateElement("header")
	header.CreateAttr("authenticate", "true")
	staticHeader(header.CreateElement("static"), p)
	header.CreateElement("mutable")

	root.CreateElement("body").
		CreateElement("DataTransfer").
		CreateElement("OrderData").SetText(base64.StdEncoding.EncodeToString(compressed))

	return &Request{OrderType: p.OrderType, Variant: VariantUnsecured, doc: doc}, nil
}

func validate(p Params) error {
	id := p.Identity
	if id.HostID == "" || id.PartnerID == "" || id.UserID == "" {
		return fmt.Errorf("%w: host, partner and user IDs are required", ErrInvalidParams)
	}
	variant := p.OrderType.Variant()
	if variant == VariantNoPubKeyDigests || variant == VariantSecured {
		if p.Nonce == "" {
			return fmt.Errorf("%w: nonce is required", ErrInvalidParams)
		}
		if p.Timestamp.IsZero() {
			return fmt.Errorf("%w: timestamp is required", ErrInvalidParams)
		}
	}
	if variant == VariantSecured {
		if p.BankDigests == nil || len(p.BankDigests.Authentication) == 0 || len(p.BankDigests.Encryption) == 0 {
			return fmt.Errorf("%w: bank key digests are required", ErrInvalidParams)
		}
	}
	if p.DateRange != nil {
		if !p.OrderType.Ranged() {
			return fmt.Errorf("%w: %s does not take a date range", ErrInvalidParams, p.OrderType)
		}
		if err := p.DateRange.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func newEnvelope(variant Variant) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(variant.String())
	root.CreateAttr("xmlns", NamespaceH004)
	root.CreateAttr("xmlns:ds", NamespaceDSig)
	root.CreateAttr("Version", ProtocolVersion)
	root.CreateAttr("Revision", Revision)
	return doc, root
}

// staticHeader writes the static header fields in schema order
func staticHeader(static *etree.Element, p Params) {
	id := p.Identity
	variant := p.OrderType.Variant()

	static.CreateElement("HostID").SetText(id.HostID)
	if variant != VariantUnsecured {
		static.CreateElement("Nonce").SetText(p.Nonce)
		static.CreateElement("Timestamp").SetText(p.Timestamp.UTC().Format(TimestampLayout))
	}
	static.CreateElement("PartnerID").SetText(id.PartnerID)
	static.CreateElement("UserID").SetText(id.UserID)

	product := static.CreateElement("Product")
	product.CreateAttr("Language", orDefault(id.Language, DefaultLanguage))
	product.SetText(id.Product)

	details := static.CreateElement("OrderDetails")
	details.CreateElement("OrderType").SetText(string(p.OrderType))
	details.CreateElement("OrderAttribute").SetText(p.OrderType.Attribute())
	if variant == VariantSecured {
		params := details.CreateElement("StandardOrderParams")
		if p.DateRange != nil {
			dateRange := params.CreateElement("DateRange")
			dateRange.CreateElement("Start").SetText(p.DateRange.Start.Format(DateLayout))
			dateRange.CreateElement("End").SetText(p.DateRange.End.Format(DateLayout))
		}

		digests := static.CreateElement("BankPubKeyDigests")
		addDigest(digests, "Authentication", keys.RoleAuthentication, p.BankDigests.Authentication)
		addDigest(digests, "Encryption", keys.RoleEncryption, p.BankDigests.Encryption)
	}

	static.CreateElement("SecurityMedium").SetText(orDefault(id.SecurityMedium, DefaultSecurityMedium))
}

func addDigest(parent *etree.Element, name string, role keys.Role, digest []byte) {
	e := parent.CreateElement(name)
	e.CreateAttr("Version", role.Version())
	e.CreateAttr("Algorithm", security.AlgorithmSHA256)
	e.SetText(base64.StdEncoding.EncodeToString(digest))
}

func addEncryptedOrderData(body *etree.Element, enc *orderdata.Encrypted) {
	transfer := body.CreateElement("DataTransfer")

	info := transfer.CreateElement("DataEncryptionInfo")
	info.CreateAttr("authenticate", "true")
	digest := info.CreateElement("EncryptionPubKeyDigest")
	digest.CreateAttr("Version", keys.RoleEncryption.Version())
	digest.CreateAttr("Algorithm", security.AlgorithmSHA256)
	digest.SetText(base64.StdEncoding.EncodeToString(enc.PubKeyDigest))
	info.CreateElement("TransactionKey").SetText(base64.StdEncoding.EncodeToString(enc.TransactionKey))

	transfer.CreateElement("OrderData").SetText(base64.StdEncoding.EncodeToString(enc.OrderData))
}

// finish applies the authentication signature
func finish(doc *etree.Document, p Params, auth *keys.KeyPair) (*Request, error) {
	if auth == nil {
		return nil, fmt.Errorf("%w: authentication key pair is required", ErrInvalidParams)
	}
	if err := security.SignDocument(doc, auth); err != nil {
		return nil, fmt.Errorf("failed to sign %s request: %w", p.OrderType, err)
	}
	return &Request{OrderType: p.OrderType, Variant: p.OrderType.Variant(), doc: doc}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
