package storekit

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func mustOutcomeEnvelope(t *testing.T, outcome Outcome) Envelope {
	t.Helper()
	env, err := OutcomeEnvelope(outcome, "premium_monthly")
	require.NoError(t, err)
	return env
}

func TestEnvelope_Golden(t *testing.T) {
	unlock, err := unlockEnvelope(Transaction{
		ID:              "2000000124",
		ProductID:       "premium_yearly",
		AppAccountToken: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		env  Envelope
	}{
		{"purchase_success", mustOutcomeEnvelope(t, Success{
			TransactionID: "2000000123",
			ProductID:     "premium_monthly",
			ReceiptBase64: "cmVjZWlwdC1ieXRlcw==",
		})},
		{"purchase_success_without_receipt", mustOutcomeEnvelope(t, Success{
			TransactionID: "2000000123",
			ProductID:     "premium_monthly",
		})},
		{"purchase_cancelled", mustOutcomeEnvelope(t, Cancelled{})},
		{"purchase_pending", mustOutcomeEnvelope(t, Pending{})},
		{"purchase_verification_failed", mustOutcomeEnvelope(t, VerificationFailed{Reason: "bad signature"})},
		{"purchase_disabled", mustOutcomeEnvelope(t, failure(ErrPurchasesDisabled))},
		{"purchase_platform_error", mustOutcomeEnvelope(t, platformFailure(errors.New("store unavailable")))},
		{"unlock_product", unlock},
		{"load_receipt", DataEnvelope(EventLoadReceipt, "cmVjZWlwdC1ieXRlcw==")},
		{"load_receipt_missing", ErrorEnvelope(EventLoadReceipt, ErrReceiptNotFound.Error())},
	}

	g := newGoldie(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Encode(tt.env)
			require.NoError(t, err)
			g.Assert(t, tt.name, out)
		})
	}
}

func TestEnvelope_DataOrErrorNeverBoth(t *testing.T) {
	outcomes := []Outcome{
		Success{TransactionID: "1", ProductID: "p"},
		Cancelled{},
		Pending{},
		VerificationFailed{},
		Failure{Message: "boom"},
	}
	for _, outcome := range outcomes {
		env := mustOutcomeEnvelope(t, outcome)
		assert.Equal(t, EventPurchase, env.Event)
		assert.True(t, (env.Data == nil) != (env.Error == nil), "%T", outcome)
	}
}

func TestEnvelope_VerificationFailedWithoutReason(t *testing.T) {
	env := mustOutcomeEnvelope(t, VerificationFailed{})
	require.True(t, env.Failed())
	assert.Equal(t, "Verification failed", *env.Error)
}

func TestEnvelope_SuccessPayloadDecodes(t *testing.T) {
	env := mustOutcomeEnvelope(t, Success{
		TransactionID: "2000000123",
		ProductID:     "premium_monthly",
		ReceiptBase64: "cmVjZWlwdC1ieXRlcw==",
	})
	require.NotNil(t, env.Data)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(*env.Data), &payload))
	assert.Equal(t, map[string]string{
		"status":         "success",
		"receipt-data":   "cmVjZWlwdC1ieXRlcw==",
		"transaction-id": "2000000123",
		"productId":      "premium_monthly",
	}, payload)
}

func TestEncode_Rejects(t *testing.T) {
	_, err := Encode(Envelope{})
	assert.ErrorIs(t, err, ErrUnrepresentable)

	_, err = Encode(DataEnvelope(EventLoadReceipt, "\xc3\x28"))
	assert.ErrorIs(t, err, ErrUnrepresentable)

	_, err = Encode(ErrorEnvelope(EventPurchase, "\xff"))
	assert.ErrorIs(t, err, ErrUnrepresentable)
}

func TestEncode_NullFields(t *testing.T) {
	out, err := Encode(DataEnvelope(EventLoadReceipt, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"LOAD_RECEIPT","data":"","error":null}`, string(out))
}

func TestEncode_RoundTripsDataExactly(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"nested json", `{"status":"success","receipt-data":"cmVj+/==","nested":{"a":[1,"two",null]}}`},
		{"quotes and backslashes", `{"path":"C:\\store\\\"kit\"","raw":"\\u0041"}`},
		{"unicode", `{"title":"Émoji 💎 日本語","rtl":"עברית"}`},
		{"control and html", "line1\nline2\ttab\u0001 <script>&amp;</script> \u2028"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, env := range []Envelope{
				DataEnvelope(EventUnlockProduct, tt.data),
				ErrorEnvelope(EventPurchase, tt.data),
			} {
				payload, err := Encode(env)
				require.NoError(t, err)

				var decoded Envelope
				require.NoError(t, json.Unmarshal(payload, &decoded))
				assert.Equal(t, env.Event, decoded.Event)
				if env.Data != nil {
					require.NotNil(t, decoded.Data)
					assert.Equal(t, []byte(*env.Data), []byte(*decoded.Data))
					assert.Nil(t, decoded.Error)
				} else {
					require.NotNil(t, decoded.Error)
					assert.Equal(t, []byte(*env.Error), []byte(*decoded.Error))
					assert.Nil(t, decoded.Data)
				}
			}
		})
	}
}
