package ryepay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedRequest records one GraphQL call for assertions.
type capturedRequest struct {
	Header    http.Header
	Query     string
	Variables map[string]interface{}
}

// newCommerceStub spins up a GraphQL endpoint that records every request and
// answers from the responses map, keyed by an operation substring.
func newCommerceStub(t *testing.T, responses map[string]string) (*CommerceClient, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		captured = append(captured, capturedRequest{
			Header:    r.Header.Clone(),
			Query:     req.Query,
			Variables: req.Variables,
		})

		for key, body := range responses {
			if strings.Contains(req.Query, key) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
				return
			}
		}
		http.Error(w, "unexpected operation", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	client := NewCommerceClient(&CommerceConfig{
		Auth:      NewAuthProvider(staticTokenProvider(forgeJWT(t, "staging.graphql.api.rye.com"))),
		Endpoint:  server.URL,
		ShopperIP: "192.0.2.1",
	})
	return client, &captured
}

const singleStoreCartJSON = `{
	"id": "cart_1",
	"cost": {
		"subtotal": {"value": "1000", "displayValue": "$10.00", "currency": "USD"},
		"total": {"value": "1250", "displayValue": "$12.50", "currency": "USD"}
	},
	"stores": [{
		"__typename": "ShopifyStore",
		"store": "store.example.com",
		"cartLines": [{"quantity": 1, "variant": {"id": "variant_1"}}],
		"offer": {
			"subtotal": {"value": "1000", "currency": "USD"},
			"shippingMethods": [
				{"id": "ship_std", "label": "Standard", "price": {"value": "250", "displayValue": "$2.50", "currency": "USD"}, "taxes": {"value": "0"}, "total": {"value": "1250", "currency": "USD"}},
				{"id": "ship_exp", "label": "Express", "price": {"value": "900", "displayValue": "$9.00", "currency": "USD"}, "taxes": {"value": "0"}, "total": {"value": "1900", "currency": "USD"}}
			]
		}
	}]
}`

func TestGetCartDecodesStoreVariants(t *testing.T) {
	client, captured := newCommerceStub(t, map[string]string{
		"getCart": `{"data": {"getCart": {"cart": ` + singleStoreCartJSON + `, "errors": []}}}`,
	})

	resp, err := client.GetCart(context.Background(), "cart_1")
	require.NoError(t, err)
	require.NotNil(t, resp.Cart)
	assert.Equal(t, "cart_1", resp.Cart.ID)
	require.Len(t, resp.Cart.Stores, 1)
	assert.Equal(t, MarketplaceShopify, resp.Cart.Stores[0].Marketplace)
	assert.False(t, resp.Cart.HasMultipleStores())
	assert.Len(t, resp.Cart.Stores[0].Offer.ShippingMethods, 2)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, "192.0.2.1", req.Header.Get("x-rye-shopper-ip"))
	assert.True(t, strings.HasPrefix(req.Header.Get("Authorization"), "Bearer "))
	assert.Equal(t, "cart_1", req.Variables["id"])
}

func TestGetCartSurfacesGraphQLErrors(t *testing.T) {
	client, _ := newCommerceStub(t, map[string]string{
		"getCart": `{"data": null, "errors": [{"message": "cart not found"}]}`,
	})

	resp, err := client.GetCart(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, resp.Cart)
	require.Len(t, resp.GraphQLErrors, 1)
	assert.Equal(t, "cart not found", resp.GraphQLErrors[0].Message)
}

func TestCreateCartBuildsSingleLineInput(t *testing.T) {
	client, captured := newCommerceStub(t, map[string]string{
		"createCart": `{"data": {"createCart": {"cart": ` + singleStoreCartJSON + `, "errors": []}}}`,
	})

	resp, err := client.CreateCart(context.Background(), "variant_1")
	require.NoError(t, err)
	require.NotNil(t, resp.Cart)

	require.Len(t, *captured, 1)
	input := (*captured)[0].Variables["input"].(map[string]interface{})
	items := input["items"].(map[string]interface{})
	lines := items["shopifyCartItemsInput"].([]interface{})
	require.Len(t, lines, 1)
	line := lines[0].(map[string]interface{})
	assert.Equal(t, "variant_1", line["variantId"])
	assert.Equal(t, float64(1), line["quantity"])
}

func TestUpdateBuyerIdentityRedactedContact(t *testing.T) {
	client, captured := newCommerceStub(t, map[string]string{
		"updateCartBuyerIdentity": `{"data": {"updateCartBuyerIdentity": {"cart": ` + singleStoreCartJSON + `}}}`,
	})

	_, err := client.UpdateBuyerIdentity(context.Background(), "cart_1", PartialAddress{
		ProvinceCode: "WA",
		CountryCode:  "US",
		PostalCode:   "98101",
	})
	require.NoError(t, err)

	input := (*captured)[0].Variables["input"].(map[string]interface{})
	identity := input["buyerIdentity"].(map[string]interface{})
	assert.Equal(t, "WA", identity["provinceCode"])
	assert.Equal(t, "US", identity["countryCode"])
	assert.Equal(t, "98101", identity["postalCode"])
	assert.NotContains(t, identity, "firstName")
	assert.NotContains(t, identity, "address1")
	assert.NotContains(t, identity, "email")
}

func TestUpdateBuyerIdentityFullContact(t *testing.T) {
	client, captured := newCommerceStub(t, map[string]string{
		"updateCartBuyerIdentity": `{"data": {"updateCartBuyerIdentity": {"cart": ` + singleStoreCartJSON + `}}}`,
	})

	result, err := client.UpdateBuyerIdentity(context.Background(), "cart_1", PartialAddress{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Phone:        "+12065550100",
		Address1:     "100 Main St",
		City:         "Seattle",
		ProvinceCode: "WA",
		CountryCode:  "US",
		PostalCode:   "98101",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Cart)

	identity := (*captured)[0].Variables["input"].(map[string]interface{})["buyerIdentity"].(map[string]interface{})
	assert.Equal(t, "Ada", identity["firstName"])
	assert.Equal(t, "Lovelace", identity["lastName"])
	assert.Equal(t, "100 Main St", identity["address1"])
	assert.Equal(t, "+12065550100", identity["phone"])
	assert.NotContains(t, identity, "email")
}

func TestUpdateBuyerIdentityRunsPostalCompletion(t *testing.T) {
	client, captured := newCommerceStub(t, map[string]string{
		"updateCartBuyerIdentity": `{"data": {"updateCartBuyerIdentity": {"cart": ` + singleStoreCartJSON + `}}}`,
	})
	client.postalCompleter = PostalCodeCompleterFunc(func(postalCode, countryCode string) string {
		if countryCode == "CA" && len(postalCode) == 3 {
			return postalCode + " 0A0"
		}
		return postalCode
	})

	_, err := client.UpdateBuyerIdentity(context.Background(), "cart_1", PartialAddress{
		CountryCode: "CA",
		PostalCode:  "V6B",
	})
	require.NoError(t, err)

	identity := (*captured)[0].Variables["input"].(map[string]interface{})["buyerIdentity"].(map[string]interface{})
	assert.Equal(t, "V6B 0A0", identity["postalCode"])
}

func TestSubmitCartUsesPlaceholderForWalletTokens(t *testing.T) {
	client, captured := newCommerceStub(t, map[string]string{
		"submitCart": `{"data": {"submitCart": {"cart": {"id": "cart_1", "stores": []}, "errors": []}}}`,
	})

	_, err := client.SubmitCart(context.Background(), SubmitCartParams{
		Token: PaymentToken{ApplePay: &ApplePayToken{
			Version:   "EC_v1",
			Data:      "data",
			Signature: "sig",
			Header: ApplePayTokenHeader{
				EphemeralPublicKey: "key",
				PublicKeyHash:      "hash",
				TransactionID:      "txn",
			},
		}},
		Details: PaymentDetails{Metadata: PaymentMetadata{CartID: "cart_1"}},
	})
	require.NoError(t, err)

	input := (*captured)[0].Variables["input"].(map[string]interface{})
	assert.Equal(t, "payment_token", input["token"])
	assert.NotNil(t, input["applePayToken"])
	// A cart with no shipping selections still submits an empty array, never null.
	options, ok := input["selectedShippingOptions"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, options)
}

func TestSubmitCartDecodesMetadataSelections(t *testing.T) {
	client, captured := newCommerceStub(t, map[string]string{
		"submitCart": `{"data": {"submitCart": {"cart": {"id": "cart_1", "stores": [{"store": {"__typename": "ShopifyStore", "store": "store.example.com"}, "status": "COMPLETED", "requestId": "req_1", "errors": []}]}, "errors": []}}}`,
	})

	resp, err := client.SubmitCart(context.Background(), SubmitCartParams{
		Token: PaymentToken{Vault: "tok_123"},
		Details: PaymentDetails{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Zip:       "98101",
			Country:   "US",
			Metadata: PaymentMetadata{
				CartID:                  "cart_1",
				SelectedShippingOptions: `[{"store":"store.example.com","shippingId":"ship_std"}]`,
				ShopperIP:               "203.0.113.9",
				ExperimentalPromoCodes:  `[{"store":"store.example.com","promoCodes":["SAVE10"]}]`,
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Result.Cart.Stores, 1)
	assert.Equal(t, SubmitStoreCompleted, resp.Result.Cart.Stores[0].Status)
	assert.Equal(t, "req_1", resp.Result.Cart.Stores[0].RequestID)

	req := (*captured)[0]
	assert.Equal(t, "203.0.113.9", req.Header.Get("x-rye-shopper-ip"))
	input := req.Variables["input"].(map[string]interface{})
	assert.Equal(t, "tok_123", input["token"])
	options := input["selectedShippingOptions"].([]interface{})
	require.Len(t, options, 1)
	assert.Equal(t, "ship_std", options[0].(map[string]interface{})["shippingId"])
	promos := input["experimentalPromoCodes"].([]interface{})
	require.Len(t, promos, 1)
	billing := input["billingAddress"].(map[string]interface{})
	assert.Equal(t, "Ada", billing["firstName"])
	assert.Equal(t, "98101", billing["postalCode"])
}

func TestSubmitCartRejectsInvalidToken(t *testing.T) {
	client, captured := newCommerceStub(t, nil)

	_, err := client.SubmitCart(context.Background(), SubmitCartParams{})
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInvalidConfig, coded.Code)
	assert.Empty(t, *captured)
}

func TestEnvironmentToken(t *testing.T) {
	client, _ := newCommerceStub(t, map[string]string{
		"environmentToken": `{"data": {"environmentToken": {"token": "env_key"}}}`,
	})

	token, err := client.EnvironmentToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env_key", token)
}

func TestEnvironmentTokenMissing(t *testing.T) {
	client, _ := newCommerceStub(t, map[string]string{
		"environmentToken": `{"data": null, "errors": [{"message": "unauthorized"}]}`,
	})

	_, err := client.EnvironmentToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}
