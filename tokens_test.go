package ryepay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validApplePayToken() *ApplePayToken {
	return &ApplePayToken{
		Version:   "EC_v1",
		Data:      "data",
		Signature: "sig",
		Header: ApplePayTokenHeader{
			EphemeralPublicKey: "key",
			PublicKeyHash:      "hash",
			TransactionID:      "txn",
		},
	}
}

func TestPaymentTokenValidate(t *testing.T) {
	tests := []struct {
		name    string
		token   PaymentToken
		wantErr string
	}{
		{
			name:    "empty",
			token:   PaymentToken{},
			wantErr: "required",
		},
		{
			name: "two shapes",
			token: PaymentToken{
				Vault:    "tok_1",
				ApplePay: validApplePayToken(),
			},
			wantErr: "exactly one shape",
		},
		{
			name:  "vault",
			token: PaymentToken{Vault: "tok_1"},
		},
		{
			name:  "apple pay",
			token: PaymentToken{ApplePay: validApplePayToken()},
		},
		{
			name: "apple pay missing header field",
			token: PaymentToken{ApplePay: &ApplePayToken{
				Version:   "EC_v1",
				Data:      "data",
				Signature: "sig",
				Header:    ApplePayTokenHeader{EphemeralPublicKey: "key"},
			}},
			wantErr: "Apple Pay token invalid",
		},
		{
			name: "google pay",
			token: PaymentToken{GooglePay: &GooglePayToken{
				ProtocolVersion: "ECv2",
				Signature:       "sig",
				SignedMessage:   "msg",
			}},
		},
		{
			name: "google pay missing signature",
			token: PaymentToken{GooglePay: &GooglePayToken{
				ProtocolVersion: "ECv2",
				SignedMessage:   "msg",
			}},
			wantErr: "Google Pay token invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.token.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseGooglePayToken(t *testing.T) {
	token, err := ParseGooglePayToken(`{"protocolVersion":"ECv2","signature":"sig","signedMessage":"msg","intermediateSigningKey":{"signedKey":"k","signatures":["s1"]}}`)
	require.NoError(t, err)
	assert.Equal(t, "ECv2", token.ProtocolVersion)
	require.NotNil(t, token.IntermediateSigningKey)
	assert.Equal(t, []string{"s1"}, token.IntermediateSigningKey.Signatures)

	_, err = ParseGooglePayToken("not json")
	assert.Error(t, err)
}
