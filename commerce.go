package ryepay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// CommerceConfig configures the commerce client.
type CommerceConfig struct {
	// Auth resolves per-request headers and the endpoint (required).
	Auth *AuthProvider

	// Endpoint overrides the audience-derived GraphQL URL. Self-hosted
	// gateways and tests use it; most callers leave it empty.
	Endpoint string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout for requests when no HTTPClient is given (optional, defaults to 30s).
	Timeout time.Duration

	// ShopperIP is forwarded on every request when set.
	ShopperIP string

	// PostalCompleter expands truncated postal codes before buyer-identity
	// updates (optional, defaults to identity).
	PostalCompleter PostalCodeCompleter

	// Logger for request diagnostics (optional, defaults to slog.Default).
	Logger *slog.Logger
}

// CommerceClient is the typed façade over the commerce GraphQL API. It is the
// single source of truth for request construction and response shapes.
type CommerceClient struct {
	auth            *AuthProvider
	endpoint        string
	httpClient      *http.Client
	shopperIP       string
	postalCompleter PostalCodeCompleter
	logger          *slog.Logger
}

// NewCommerceClient creates a commerce client.
func NewCommerceClient(config *CommerceConfig) *CommerceClient {
	if config == nil {
		config = &CommerceConfig{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	postalCompleter := config.PostalCompleter
	if postalCompleter == nil {
		postalCompleter = PostalCodeCompleterFunc(identityPostalCompleter)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CommerceClient{
		auth:            config.Auth,
		endpoint:        config.Endpoint,
		httpClient:      httpClient,
		shopperIP:       config.ShopperIP,
		postalCompleter: postalCompleter,
		logger:          logger,
	}
}

// CartResponse pairs a possibly-partial cart with the operation's embedded
// errors. Both can be populated at once.
type CartResponse struct {
	Cart          *Cart          `json:"cart"`
	Errors        []CartError    `json:"errors"`
	GraphQLErrors []GraphQLError `json:"-"`
}

// GetCart fetches the current server-side state of a cart.
func (c *CommerceClient) GetCart(ctx context.Context, cartID string) (*CartResponse, error) {
	envelope, err := c.doGraphQL(ctx, getCartQuery, map[string]interface{}{"id": cartID}, c.shopperIP)
	if err != nil {
		return nil, err
	}
	return decodeCartPayload(envelope, "getCart")
}

// CreateCart materializes a new single-line cart for the given variant.
func (c *CommerceClient) CreateCart(ctx context.Context, variantID string) (*CartResponse, error) {
	input := map[string]interface{}{
		"items": map[string]interface{}{
			"shopifyCartItemsInput": []map[string]interface{}{
				{"quantity": 1, "variantId": variantID},
			},
		},
	}
	envelope, err := c.doGraphQL(ctx, createCartMutation, map[string]interface{}{"input": input}, c.shopperIP)
	if err != nil {
		return nil, err
	}
	return decodeCartPayload(envelope, "createCart")
}

func decodeCartPayload(envelope *graphQLResponse, operation string) (*CartResponse, error) {
	var data map[string]json.RawMessage
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", operation, err)
		}
	}

	result := &CartResponse{GraphQLErrors: envelope.Errors}
	if raw, ok := data[operation]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, result); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", operation, err)
		}
	}
	return result, nil
}

// BuyerIdentityResult is the response of a buyer-identity update: the cart
// with per-store offers recomputed for the submitted address.
type BuyerIdentityResult struct {
	Cart          *Cart
	GraphQLErrors []GraphQLError
}

// UpdateBuyerIdentity applies a partial address to the cart's buyer identity.
// Only provided fields are sent, so omitted fields are never cleared. The
// server recomputes shipping methods for the (possibly still-incomplete)
// address as a side effect; callers use this both to obtain shipping options
// and to finalize the address.
func (c *CommerceClient) UpdateBuyerIdentity(ctx context.Context, cartID string, address PartialAddress) (*BuyerIdentityResult, error) {
	postalCode := c.postalCompleter.CompletePostalCode(address.PostalCode, address.CountryCode)

	// Country, province, and postal code are always sent; they are what the
	// server needs to price shipping for a redacted pre-authorization contact.
	identity := map[string]interface{}{
		"provinceCode": address.ProvinceCode,
		"countryCode":  address.CountryCode,
		"postalCode":   postalCode,
	}
	if address.HasContact() {
		identity["firstName"] = address.FirstName
		identity["lastName"] = address.LastName
		identity["address1"] = address.Address1
		identity["address2"] = address.Address2
		identity["city"] = address.City
		if address.Phone != "" {
			identity["phone"] = address.Phone
		}
		if address.Email != "" {
			identity["email"] = address.Email
		}
	}

	variables := map[string]interface{}{
		"input": map[string]interface{}{
			"id":            cartID,
			"buyerIdentity": identity,
		},
	}

	envelope, err := c.doGraphQL(ctx, updateBuyerIdentityMutation, variables, c.shopperIP)
	if err != nil {
		return nil, err
	}

	result := &BuyerIdentityResult{GraphQLErrors: envelope.Errors}
	if len(envelope.Data) > 0 {
		var data struct {
			UpdateCartBuyerIdentity struct {
				Cart *Cart `json:"cart"`
			} `json:"updateCartBuyerIdentity"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode updateCartBuyerIdentity payload: %w", err)
		}
		result.Cart = data.UpdateCartBuyerIdentity.Cart
	}
	return result, nil
}

// SubmitCartParams carries one checkout attempt's payment credential plus the
// flat payment details assembled by whichever payment path authorized it.
type SubmitCartParams struct {
	Token   PaymentToken
	Details PaymentDetails
}

// SubmitCartResponse pairs the structural submission outcome with top-level
// GraphQL errors. Per-store failure is reported inside Result, not here.
type SubmitCartResponse struct {
	Result        *SubmitCartResult
	GraphQLErrors []GraphQLError
}

// cartSubmitInput is the submitCart mutation input.
type cartSubmitInput struct {
	ID                         string                   `json:"id"`
	Token                      string                   `json:"token"`
	ApplePayToken              *ApplePayToken           `json:"applePayToken,omitempty"`
	GooglePayPaymentTokenInput *GooglePayToken          `json:"googlePayPaymentTokenInput,omitempty"`
	BillingAddress             BillingAddress           `json:"billingAddress"`
	SelectedShippingOptions    []SelectedShippingOption `json:"selectedShippingOptions"`
	ExperimentalPromoCodes     []StorePromoCodes        `json:"experimentalPromoCodes,omitempty"`
}

// SubmitCart submits the cart for payment. Shipping selections and promo
// codes travel JSON-encoded inside the details metadata; selectedShippingOptions
// is always sent as an array, empty when none apply.
func (c *CommerceClient) SubmitCart(ctx context.Context, params SubmitCartParams) (*SubmitCartResponse, error) {
	if err := params.Token.Validate(); err != nil {
		return nil, WrapError(ErrCodeInvalidConfig, "invalid payment token", err)
	}

	input := cartSubmitInput{
		ID:                         params.Details.Metadata.CartID,
		Token:                      params.Token.Vault,
		ApplePayToken:              params.Token.ApplePay,
		GooglePayPaymentTokenInput: params.Token.GooglePay,
		BillingAddress:             params.Details.BillingAddress(),
		SelectedShippingOptions:    []SelectedShippingOption{},
	}
	if input.Token == "" {
		input.Token = placeholderVaultToken
	}

	if raw := params.Details.Metadata.SelectedShippingOptions; raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.SelectedShippingOptions); err != nil {
			return nil, fmt.Errorf("failed to decode selected shipping options: %w", err)
		}
		if input.SelectedShippingOptions == nil {
			input.SelectedShippingOptions = []SelectedShippingOption{}
		}
	}
	if raw := params.Details.Metadata.ExperimentalPromoCodes; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &input.ExperimentalPromoCodes); err != nil {
			return nil, fmt.Errorf("failed to decode promo codes: %w", err)
		}
	}

	variables := map[string]interface{}{"input": input}
	envelope, err := c.doGraphQL(ctx, submitCartMutation, variables, params.Details.Metadata.ShopperIP)
	if err != nil {
		return nil, err
	}

	response := &SubmitCartResponse{GraphQLErrors: envelope.Errors}
	if len(envelope.Data) > 0 {
		var data struct {
			SubmitCart *SubmitCartResult `json:"submitCart"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode submitCart payload: %w", err)
		}
		response.Result = data.SubmitCart
	}
	return response, nil
}

// EnvironmentToken fetches the hosted-field environment key. It seeds frame
// SDK initialization and doubles as the wallet gateway merchant ID.
func (c *CommerceClient) EnvironmentToken(ctx context.Context) (string, error) {
	envelope, err := c.doGraphQL(ctx, environmentTokenQuery, nil, c.shopperIP)
	if err != nil {
		return "", err
	}

	var data struct {
		EnvironmentToken struct {
			Token string `json:"token"`
		} `json:"environmentToken"`
	}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return "", fmt.Errorf("failed to decode environmentToken payload: %w", err)
		}
	}
	if data.EnvironmentToken.Token == "" {
		if len(envelope.Errors) > 0 {
			return "", fmt.Errorf("environmentToken query failed: %s", envelope.Errors[0].Message)
		}
		return "", fmt.Errorf("environmentToken query returned no token")
	}
	return data.EnvironmentToken.Token, nil
}
