package storekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	body := []byte(`{
		"notificationType": "DID_RENEW",
		"verified": true,
		"transaction": {
			"id": " 2000000200 ",
			"productId": "premium_monthly",
			"appAccountToken": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
			"purchaseDateMs": 1700000000000
		}
	}`)

	n, err := ParseNotification(body)
	require.NoError(t, err)
	assert.Equal(t, "DID_RENEW", n.Type)

	v, ok := n.VerificationResult().(Verified)
	require.True(t, ok)
	assert.Equal(t, "2000000200", v.Transaction.ID)
	assert.Equal(t, "premium_monthly", v.Transaction.ProductID)
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", v.Transaction.AppAccountToken)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), v.Transaction.PurchasedAt)
}

func TestParseNotification_Unverified(t *testing.T) {
	n, err := ParseNotification([]byte(`{"verified":false,"reason":"bad signature","transaction":{"id":"1","productId":"p"}}`))
	require.NoError(t, err)

	u, ok := n.VerificationResult().(Unverified)
	require.True(t, ok)
	require.Error(t, u.Err)
	assert.Equal(t, "bad signature", u.Err.Error())
	assert.True(t, u.Transaction.PurchasedAt.IsZero())

	n, err = ParseNotification([]byte(`{"transaction":{"id":"1","productId":"p"}}`))
	require.NoError(t, err)
	u, ok = n.VerificationResult().(Unverified)
	require.True(t, ok)
	assert.Equal(t, "unverified transaction", u.Err.Error())
}

func TestParseNotification_Invalid(t *testing.T) {
	bodies := map[string]string{
		"not json":           `{`,
		"missing id":         `{"verified":true,"transaction":{"productId":"p"}}`,
		"blank id":           `{"verified":true,"transaction":{"id":"  ","productId":"p"}}`,
		"missing product id": `{"verified":true,"transaction":{"id":"1"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ParseNotification([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidNotification)
		})
	}
}
