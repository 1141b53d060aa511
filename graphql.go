package ryepay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// shopperIPHeader carries the end shopper's IP so the commerce API can apply
// fraud checks against the real buyer rather than the SDK host.
const shopperIPHeader = "x-rye-shopper-ip"

const shippingMethodFields = `id label price { value displayValue currency } taxes { value displayValue currency } total { value displayValue currency }`

var offerFields = fmt.Sprintf(`subtotal { value displayValue currency } margin { value displayValue currency } notAvailableIds selectedShippingMethod { id label price { value displayValue currency } } shippingMethods { %s }`, shippingMethodFields)

var cartStoresFields = fmt.Sprintf(`stores { __typename ... on AmazonStore { errors { code message } store cartLines { quantity product { id } } offer { errors { code message } %[1]s } } ... on ShopifyStore { errors { code message } store cartLines { quantity variant { id } } offer { errors { code message } %[1]s } } }`, offerFields)

var cartFields = fmt.Sprintf(`id cost { subtotal { value displayValue currency } tax { value displayValue currency } shipping { value displayValue currency } total { value displayValue currency } } buyerIdentity { firstName lastName address1 address2 city provinceCode countryCode postalCode email phone } %s`, cartStoresFields)

var (
	getCartQuery = fmt.Sprintf(`query ($id: ID!) { getCart(id: $id) { cart { %s } errors { code message } } }`, cartFields)

	createCartMutation = fmt.Sprintf(`mutation ($input: CartCreateInput!) { createCart(input: $input) { cart { %s } errors { code message } } }`, cartFields)

	updateBuyerIdentityMutation = fmt.Sprintf(`mutation ($input: CartBuyerIdentityUpdateInput!) { updateCartBuyerIdentity(input: $input) { cart { id %s } } }`, cartStoresFields)

	submitCartMutation = fmt.Sprintf(`mutation submitCart($input: CartSubmitInput!) { submitCart(input: $input) { cart { id stores { status requestId store { __typename ... on AmazonStore { store cartLines { quantity product { id } } } ... on ShopifyStore { store cartLines { quantity variant { id } } } } errors { code message } } } errors { code message } } }`)

	environmentTokenQuery = `query { environmentToken { token } }`
)

// graphQLRequest is the POST body for every commerce API call.
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphQLResponse is the standard GraphQL envelope. Data and Errors can both
// be populated at once (partial success); callers must check both.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// doGraphQL resolves auth, posts one GraphQL operation, and decodes the
// envelope. The shopper IP header is attached when available.
func (c *CommerceClient) doGraphQL(ctx context.Context, query string, variables map[string]interface{}, shopperIP string) (*graphQLResponse, error) {
	opts, err := c.auth.ResolveRequest(ctx)
	if err != nil {
		return nil, err
	}
	if c.endpoint != "" {
		opts.Endpoint = c.endpoint
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if shopperIP != "" {
		req.Header.Set(shopperIPHeader, shopperIP)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commerce request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("commerce request failed (%d): %s", resp.StatusCode, string(responseBody))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(responseBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &envelope, nil
}
