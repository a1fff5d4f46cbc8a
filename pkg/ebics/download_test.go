package ebics

import (
	"bytes"
	"context"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/response"
)

func TestDownload_SchemaViolations(t *testing.T) {
	operations := []struct {
		orderType string
		call      func(*Client) (*response.Response, error)
	}{
		{"HPD", func(c *Client) (*response.Response, error) {
			return c.RetrieveSubscriberInfo(context.Background(), testTime)
		}},
		{"HAA", func(c *Client) (*response.Response, error) {
			return c.ListOrders(context.Background(), testTime)
		}},
	}
	payloads := map[string]string{
		"not xml":    "not xml at all",
		"wrong root": "<Garbage/>",
		"empty":      "",
	}
	// each document is well-formed but misses a required part of its own schema
	incomplete := map[string]string{
		"HPD": `<HPDResponseOrderData xmlns="urn:org:ebics:H004"><AccessParams/></HPDResponseOrderData>`,
		"HAA": `<HAAResponseOrderData xmlns="urn:org:ebics:H004"/>`,
	}

	for _, op := range operations {
		cases := map[string]string{"incomplete document": incomplete[op.orderType]}
		for name, payload := range payloads {
			cases[name] = payload
		}

		for name, payload := range cases {
			t.Run(op.orderType+"/"+name, func(t *testing.T) {
				ring := newRing(t, keyring.StateActive)
				bank := newFakeBank(t)
				bank.on(op.orderType, func(req *etree.Document) []byte {
					return downloadResponse(t, response.CodeOK, encryptTo(t, ring, []byte(payload)), 1, keyPair(t, "bank-x"))
				})
				client := newClient(t, ring, bank)

				resp, err := op.call(client)
				assert.ErrorIs(t, err, orderdata.ErrMalformedOrderData)
				assert.Nil(t, resp)
				assert.Equal(t, 1, bank.count())
				assert.Equal(t, keyring.StateActive, ring.State())
			})
		}
	}
}

func TestFetchStatement_OpaqueOrderData(t *testing.T) {
	ring := newRing(t, keyring.StateActive)
	bank := newFakeBank(t)
	bank.on("STA", func(req *etree.Document) []byte {
		return downloadResponse(t, response.CodeOK, encryptTo(t, ring, []byte("<Garbage/>")), 1, keyPair(t, "bank-x"))
	})
	client := newClient(t, ring, bank)

	resp, err := client.FetchStatement(context.Background(), ProductMT940, testTime, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("<Garbage/>"), resp.OrderData())
}

func TestDownload_OrderDataSizeLimit(t *testing.T) {
	statement := bytes.Repeat([]byte(":61:2405020502D100,00NTRFNONREF\n"), 32<<10)

	tests := []struct {
		name  string
		limit int64
		ok    bool
	}{
		{"above limit", int64(len(statement)) - 1, false},
		{"at limit", int64(len(statement)), true},
		{"default limit", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := newRing(t, keyring.StateActive)
			bank := newFakeBank(t)
			bank.on("STA", func(req *etree.Document) []byte {
				return downloadResponse(t, response.CodeOK, encryptTo(t, ring, statement), 1, keyPair(t, "bank-x"))
			})
			client := newClient(t, ring, bank, func(c *ClientConfig) { c.MaxOrderDataSize = tt.limit })

			resp, err := client.FetchStatement(context.Background(), ProductMT940, testTime, nil)
			if !tt.ok {
				assert.ErrorIs(t, err, orderdata.ErrMalformedOrderData)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, statement, resp.OrderData())
		})
	}
}
