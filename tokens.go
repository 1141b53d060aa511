package ryepay

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ApplePayTokenHeader is the key material accompanying an Apple Pay token.
type ApplePayTokenHeader struct {
	EphemeralPublicKey string `json:"ephemeralPublicKey"`
	PublicKeyHash      string `json:"publicKeyHash"`
	TransactionID      string `json:"transactionId"`
}

// ApplePayToken is the encrypted payment envelope produced by an Apple Pay
// sheet authorization. It is passed through to the commerce API unopened.
type ApplePayToken struct {
	Version   string              `json:"version"`
	Data      string              `json:"data"`
	Signature string              `json:"signature"`
	Header    ApplePayTokenHeader `json:"header"`
}

// GooglePaySigningKey is the intermediate signing key inside a Google Pay token.
type GooglePaySigningKey struct {
	SignedKey  string   `json:"signedKey"`
	Signatures []string `json:"signatures"`
}

// GooglePayToken is the payment envelope produced by a Google Pay sheet.
// The sheet delivers it as a JSON string; ParseGooglePayToken decodes it.
type GooglePayToken struct {
	ProtocolVersion        string               `json:"protocolVersion"`
	Signature              string               `json:"signature"`
	IntermediateSigningKey *GooglePaySigningKey `json:"intermediateSigningKey,omitempty"`
	SignedMessage          string               `json:"signedMessage"`
}

// ParseGooglePayToken decodes the tokenization payload string handed back by
// the Google Pay sheet.
func ParseGooglePayToken(raw string) (*GooglePayToken, error) {
	var token GooglePayToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("failed to decode Google Pay token: %w", err)
	}
	return &token, nil
}

// PaymentToken is the polymorphic payment credential consumed only by cart
// submission. Exactly one field is populated; the server distinguishes the
// shapes by which field is present.
type PaymentToken struct {
	// Vault is the short-lived token minted by the hosted-field SDK.
	Vault string
	// ApplePay is the Apple Pay token envelope.
	ApplePay *ApplePayToken
	// GooglePay is the Google Pay token envelope.
	GooglePay *GooglePayToken
}

// placeholderVaultToken fills the required token field when a wallet
// envelope carries the actual credential.
const placeholderVaultToken = "payment_token"

var applePayTokenSchema = []byte(`{
	"type": "object",
	"required": ["version", "data", "signature", "header"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"data": {"type": "string", "minLength": 1},
		"signature": {"type": "string", "minLength": 1},
		"header": {
			"type": "object",
			"required": ["ephemeralPublicKey", "publicKeyHash", "transactionId"],
			"properties": {
				"ephemeralPublicKey": {"type": "string", "minLength": 1},
				"publicKeyHash": {"type": "string", "minLength": 1},
				"transactionId": {"type": "string", "minLength": 1}
			}
		}
	}
}`)

var googlePayTokenSchema = []byte(`{
	"type": "object",
	"required": ["protocolVersion", "signature", "signedMessage"],
	"properties": {
		"protocolVersion": {"type": "string", "minLength": 1},
		"signature": {"type": "string", "minLength": 1},
		"signedMessage": {"type": "string", "minLength": 1}
	}
}`)

// Validate checks that exactly one token shape is populated and that wallet
// envelopes carry the fields their scheme requires, before anything is sent
// to the commerce API.
func (t PaymentToken) Validate() error {
	populated := 0
	if t.Vault != "" {
		populated++
	}
	if t.ApplePay != nil {
		populated++
	}
	if t.GooglePay != nil {
		populated++
	}
	if populated == 0 {
		return fmt.Errorf("payment token is required")
	}
	if populated > 1 {
		return fmt.Errorf("payment token must carry exactly one shape, got %d", populated)
	}

	if t.ApplePay != nil {
		return validateEnvelope("Apple Pay token", applePayTokenSchema, t.ApplePay)
	}
	if t.GooglePay != nil {
		return validateEnvelope("Google Pay token", googlePayTokenSchema, t.GooglePay)
	}
	return nil
}

func validateEnvelope(name string, schemaJSON []byte, envelope interface{}) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("%s validation failed: %w", name, err)
	}
	if !result.Valid() {
		desc := result.Errors()[0]
		return fmt.Errorf("%s invalid: %s: %s", name, desc.Context().String(), desc.Description())
	}
	return nil
}
