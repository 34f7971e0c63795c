package esewa

import (
	"encoding/base64"
	"testing"
	"time"

	"myshop_back_end/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uatClient() *Client {
	return NewClient(config.EsewaConfig{
		ProductCode: "EPAYTEST",
		SecretKey:   "8gBm/:&EnhH.1/q",
		SuccessURL:  "http://localhost:5173/payment-success",
		FailureURL:  "http://localhost:5173/cart?status=cancel",
	})
}

func TestSign(t *testing.T) {
	c := uatClient()

	// Valeur de référence calculée avec la clé UAT eSewa
	got := c.Sign("total_amount=110,transaction_uuid=ab-1700000000000,product_code=EPAYTEST")
	assert.Equal(t, "OLWs8tjyjwDERwN+7s9IqhNbg+6RFk47KAyXSnomJ48=", got)
}

func TestBuildPaymentData(t *testing.T) {
	c := uatClient()
	now := time.UnixMilli(1700000000000)

	data := c.BuildPaymentData("ab", 110.9, now)

	assert.Equal(t, "110", data.TotalAmount, "montant tronqué à l'entier")
	assert.Equal(t, "110", data.Amount)
	assert.Equal(t, "ab-1700000000000", data.TransactionUUID)
	assert.Equal(t, "EPAYTEST", data.ProductCode)
	assert.Equal(t, "total_amount,transaction_uuid,product_code", data.SignedFieldNames)
	assert.Equal(t, "OLWs8tjyjwDERwN+7s9IqhNbg+6RFk47KAyXSnomJ48=", data.Signature)
	assert.Equal(t, "http://localhost:5173/cart?status=cancel&oid=ab", data.FailureURL)
	assert.Equal(t, "0", data.TaxAmount)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "110", FormatAmount(110.9))
	assert.Equal(t, "0", FormatAmount(0.5))
	assert.Equal(t, "1010", FormatAmount(1010))
}

func TestDecodeCallback(t *testing.T) {
	const encoded = "eyJzdGF0dXMiOiAiQ09NUExFVEUiLCAidHJhbnNhY3Rpb25fdXVpZCI6ICIxMTExMTExMS0yMjIyLTMzMzMtNDQ0NC01NTU1NTU1NTU1NTUtMTcwMDAwMDAwMDAwMCIsICJ0b3RhbF9hbW91bnQiOiAiMSwwMTAuMCIsICJ0cmFuc2FjdGlvbl9jb2RlIjogIjAwMEFCQyIsICJyZWZfaWQiOiAiMDAwMVRYIn0="

	payload, err := DecodeCallback(encoded)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", payload.Status)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555-1700000000000", payload.TransactionUUID)
	assert.Equal(t, "1,010.0", payload.TotalAmount)
	assert.Equal(t, "000ABC", payload.TransactionCode)
	assert.Equal(t, "0001TX", payload.RefID)
}

func TestDecodeCallbackURLSafe(t *testing.T) {
	// Certaines redirections encodent le payload en base64 URL-safe
	raw := `{"status":"COMPLETE","transaction_uuid":"x-1","total_amount":"10"}`
	encoded := base64.URLEncoding.EncodeToString([]byte(raw))

	payload, err := DecodeCallback(encoded)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", payload.Status)
}

func TestDecodeCallbackErrors(t *testing.T) {
	_, err := DecodeCallback("")
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodeCallback("%%%pas-du-base64%%%")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodeCallback(base64.StdEncoding.EncodeToString([]byte("pas du json")))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestOrderIDFromTransactionUUID(t *testing.T) {
	tests := []struct {
		name    string
		txn     string
		want    string
		wantErr bool
	}{
		{"uuid avec tirets", "11111111-2222-3333-4444-555555555555-1700000000000", "11111111-2222-3333-4444-555555555555", false},
		{"id simple", "ab-1700000000000", "ab", false},
		{"sans tiret", "abcdef", "", true},
		{"tiret en tête", "-123", "", true},
		{"vide", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OrderIDFromTransactionUUID(tt.txn)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadTransaction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentQR(t *testing.T) {
	c := uatClient()
	data := c.BuildPaymentData("ab", 110, time.UnixMilli(1700000000000))

	qr, err := PaymentQR(data)
	require.NoError(t, err)

	png, err := base64.StdEncoding.DecodeString(qr)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
