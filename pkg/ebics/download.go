package ebics

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/response"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// Product selects the statement format of FetchStatement
type Product string

const (
	// ProductMT940 is the end of day statement (STA)
	ProductMT940 Product = "MT940"
	// ProductMT942 is the interim transaction report (VMK)
	ProductMT942 Product = "MT942"
)

// OrderType returns the download order type for the product
func (p Product) OrderType() (message.OrderType, error) {
	switch p {
	case ProductMT940:
		return message.OrderSTA, nil
	case ProductMT942:
		return message.OrderVMK, nil
	default:
		return "", fmt.Errorf("%w: unknown statement product %q", message.ErrInvalidParams, p)
	}
}

// RetrieveSubscriberInfo downloads the bank parameters with HPD
func (c *Client) RetrieveSubscriberInfo(ctx context.Context, ts time.Time) (*response.Response, error) {
	return c.download(ctx, message.OrderHPD, ts, nil)
}

// ListOrders downloads the order types available to the subscriber with HAA
func (c *Client) ListOrders(ctx context.Context, ts time.Time) (*response.Response, error) {
	return c.download(ctx, message.OrderHAA, ts, nil)
}

// FetchStatement downloads account statements. dateRange may be nil to fetch
// everything the bank has not delivered yet.
func (c *Client) FetchStatement(ctx context.Context, product Product, ts time.Time, dateRange *message.DateRange) (*response.Response, error) {
	orderType, err := product.OrderType()
	if err != nil {
		return nil, err
	}
	return c.download(ctx, orderType, ts, dateRange)
}

func (c *Client) download(ctx context.Context, orderType message.OrderType, ts time.Time, dateRange *message.DateRange) (*response.Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if state := c.ring.State(); state != keyring.StateActive {
		return nil, invalidState(orderType, state)
	}

	bankAuth := c.ring.BankCertificate(keys.RoleAuthentication)
	bankEnc := c.ring.BankCertificate(keys.RoleEncryption)

	ts = c.timestamp(ts)
	nonce, err := message.NewNonce(c.random)
	if err != nil {
		return nil, err
	}
	p := c.params(orderType, ts, nonce)
	p.DateRange = dateRange
	p.BankDigests = &message.BankDigests{
		Authentication: bankAuth.Digest(),
		Encryption:     bankEnc.Digest(),
	}

	req, err := message.BuildSecured(p, c.ring.ParticipantKeyPair(keys.RoleAuthentication))
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, req)
	if err != nil || !resp.OK() {
		return resp, err
	}

	if err := security.VerifyDocument(resp.Document(), bankAuth.PublicKey); err != nil {
		return nil, fmt.Errorf("%s response: %w", orderType, err)
	}
	if resp.NumSegments > 1 || (resp.SegmentNumber > 0 && !resp.LastSegment) {
		return nil, fmt.Errorf("%w: %s response has %d segments", ErrSegmentedDownload, orderType, resp.NumSegments)
	}

	plain, err := c.decrypt(resp)
	if err != nil {
		return nil, err
	}
	if err := checkOrderData(orderType, plain); err != nil {
		c.logger.Warn("order data rejected", "order_type", orderType,
			"transaction_id", resp.TransactionID, "error", err)
		return nil, fmt.Errorf("%s order data: %w", orderType, err)
	}
	c.attach(resp, orderType, plain)

	c.logger.Debug("order data received", "order_type", orderType,
		"transaction_id", resp.TransactionID, "size", len(plain))
	return resp, nil
}

// decrypt opens the order data of a successful response with the participant
// encryption key
func (c *Client) decrypt(resp *response.Response) ([]byte, error) {
	enc := resp.Encrypted()
	if enc == nil {
		return nil, fmt.Errorf("%w: successful response carries no order data", response.ErrMalformedResponse)
	}
	plain, err := orderdata.DecodeWithLimit(c.ring.ParticipantKeyPair(keys.RoleEncryption), enc, c.cfg.MaxOrderDataSize)
	if err != nil {
		return nil, err
	}
	resp.SetDecryptedOrderData(plain)
	return plain, nil
}

// checkOrderData rejects key management documents that do not match the
// schema of their order type. Statements are opaque.
func checkOrderData(orderType message.OrderType, plain []byte) error {
	var err error
	switch orderType {
	case message.OrderHPD:
		_, err = orderdata.ParseHPDResponseOrderData(plain)
	case message.OrderHAA:
		_, err = orderdata.ParseHAAResponseOrderData(plain)
	}
	return err
}

// attach records the order data as a transaction. XML documents are parsed;
// text formats such as MT940 are kept as bytes only.
func (c *Client) attach(resp *response.Response, orderType message.OrderType, plain []byte) {
	tx := response.Transaction{
		ID:        resp.TransactionID,
		OrderType: string(orderType),
		OrderData: plain,
	}
	if bytes.HasPrefix(bytes.TrimSpace(plain), []byte("<")) {
		if doc, err := orderdata.ParseXML(plain); err == nil {
			tx.Document = doc
		} else {
			c.logger.Warn("order data is not well-formed XML", "order_type", orderType, "error", err)
		}
	}
	resp.AddTransaction(tx)
}
