// Package ryepay is the checkout client for the Rye commerce API. It
// orchestrates cart reads, buyer-identity updates, and cart submission over
// GraphQL, with card entry going through hosted frames that keep raw card
// data out of the embedding application, and wallet payments going through
// pluggable Apple Pay and Google Pay adapters.
package ryepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ApplePayParams configures the Apple Pay flow. The flow is skipped when the
// surface has no mount point for the button.
type ApplePayParams struct {
	API                 ApplePayAPI
	MerchantIdentifier  string
	MerchantDisplayName string
	MerchantDomain      string

	// Validator performs merchant validation. When nil, ValidationRelayURL
	// must name a relay that holds the merchant certificate.
	Validator          MerchantValidator
	ValidationRelayURL string
}

// GooglePayParams configures the Google Pay flow. The flow is skipped when
// the surface has no mount point for the button.
type GooglePayParams struct {
	API                 GooglePayAPI
	MerchantDisplayName string
}

// Config carries everything Init needs. GenerateJWT, Frames, and the two
// field element names are required; everything else has a usable default.
type Config struct {
	// GenerateJWT returns the bearer credential for each request. Its
	// audience claim selects the backend environment.
	GenerateJWT TokenProvider `validate:"required"`

	// CartID scopes the wallet flows to one cart. Card-only embedders can
	// leave it empty and pass the cart ID per submission instead.
	CartID string

	// ShopperIP is forwarded to the commerce API for fraud screening.
	ShopperIP string

	// NumberEl and CVVEl name the elements the hosted card fields render into.
	NumberEl string `json:"numberEl" validate:"required"`
	CVVEl    string `json:"cvvEl" validate:"required"`

	// Frames locates or loads the hosted-field SDK.
	Frames FrameProvider `validate:"required"`

	// Surface reports which wallet button mount points the page provides.
	// When nil, no wallet buttons render.
	Surface Surface

	ApplePay  *ApplePayParams
	GooglePay *GooglePayParams

	// OnReady fires when the hosted fields are ready for customization.
	OnReady func()
	// OnErrors receives frame-level and validation errors.
	OnErrors func([]FrameError)
	// OnCartSubmitted fires exactly once per completed checkout attempt,
	// across the card path and both wallet paths.
	OnCartSubmitted CartSubmittedFunc
	// OnFieldChanged mirrors the hosted fields' per-keystroke events.
	OnFieldChanged func(field FrameField, eventType string, activeField FrameField, props FieldProperties)
	// OnValidate receives the fields' validation reports.
	OnValidate func(props FieldProperties)
	// OnIFrameError receives frame console errors.
	OnIFrameError func(err FrameError)

	// Endpoint overrides the audience-derived GraphQL URL. Self-hosted
	// gateways and tests use it; most callers leave it empty.
	Endpoint string

	HTTPClient      *http.Client
	Timeout         time.Duration
	PostalCompleter PostalCodeCompleter
	Logger          *slog.Logger
}

type clientState int

const (
	stateIdle clientState = iota
	stateInitializing
	stateReady
)

// Client is the checkout front door. Construct with NewClient, then call
// Init once; a second Init is a hosted-field reload, and concurrent Init
// calls collapse into the first.
type Client struct {
	config *Config
	logger *slog.Logger

	mu       sync.Mutex
	state    clientState
	commerce *CommerceClient
	bridge   *TokenizationBridge
	flows    []*WalletFlow
}

// NewClient creates an uninitialized client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{config: config, logger: logger}
}

// Init validates the configuration, initializes the hosted card fields, and
// mounts whichever wallet buttons the surface and configuration allow.
//
// Configuration and authorization errors route to OnErrors when the callback
// is set and are returned otherwise. Wallet flow failures never fail Init; a
// broken wallet integration degrades to a missing button.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateInitializing:
		c.mu.Unlock()
		return nil
	case stateReady:
		bridge := c.bridge
		c.mu.Unlock()
		return bridge.Reload()
	}
	c.state = stateInitializing
	c.mu.Unlock()

	err := c.initialize(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = stateIdle
	} else {
		c.state = stateReady
	}
	c.mu.Unlock()

	if err != nil {
		var coded *Error
		if errors.As(err, &coded) && c.config.OnErrors != nil &&
			(coded.Code == ErrCodeInvalidConfig || coded.Code == ErrCodeBadAuthorization) {
			c.config.OnErrors(frameErrors(coded))
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) initialize(ctx context.Context) error {
	if verr := validateStruct(ErrCodeInvalidConfig, c.config); verr != nil {
		return verr
	}

	commerce := NewCommerceClient(&CommerceConfig{
		Auth:            NewAuthProvider(c.config.GenerateJWT),
		Endpoint:        c.config.Endpoint,
		HTTPClient:      c.config.HTTPClient,
		Timeout:         c.config.Timeout,
		ShopperIP:       c.config.ShopperIP,
		PostalCompleter: c.config.PostalCompleter,
		Logger:          c.logger,
	})

	envToken, err := commerce.EnvironmentToken(ctx)
	if err != nil {
		var coded *Error
		if errors.As(err, &coded) && coded.Code == ErrCodeBadAuthorization {
			return err
		}
		return WrapError(ErrCodeLoadFailed, "failed to fetch environment token", err)
	}

	bridge := NewTokenizationBridge(c.config.Frames, c.logger)
	handlers := FrameHandlers{
		Ready:        c.config.OnReady,
		Errors:       c.config.OnErrors,
		FieldEvent:   c.config.OnFieldChanged,
		Validation:   c.config.OnValidate,
		ConsoleError: c.config.OnIFrameError,
		PaymentMethod: func(token string, details PaymentDetails) {
			c.submitTokenized(context.Background(), token, details)
		},
	}
	params := FrameInitParams{NumberEl: c.config.NumberEl, CVVEl: c.config.CVVEl}
	if err := bridge.Init(ctx, envToken, params, handlers); err != nil {
		return err
	}

	c.mu.Lock()
	c.commerce = commerce
	c.bridge = bridge
	c.mu.Unlock()

	c.loadWalletFlows(ctx, commerce, envToken)
	c.logger.Debug("checkout client initialized")
	return nil
}

func (c *Client) loadWalletFlows(ctx context.Context, commerce *CommerceClient, envToken string) {
	var adapters []WalletAdapter
	var validators []MerchantValidator

	if p := c.config.ApplePay; p != nil {
		merchant := MerchantInfo{
			Identifier:  p.MerchantIdentifier,
			DisplayName: p.MerchantDisplayName,
			Domain:      p.MerchantDomain,
		}
		validator := p.Validator
		if validator == nil && p.ValidationRelayURL != "" {
			validator = NewRelayMerchantValidator(p.ValidationRelayURL, c.config.HTTPClient)
		}
		adapters = append(adapters, NewApplePayAdapter(p.API, merchant, c.logger))
		validators = append(validators, validator)
	}
	if p := c.config.GooglePay; p != nil {
		adapters = append(adapters, NewGooglePayAdapter(p.API, envToken, c.logger))
		validators = append(validators, nil)
	}

	var flows []*WalletFlow
	for i, adapter := range adapters {
		if c.config.Surface == nil || !c.config.Surface.HasMount(adapter.MountID()) {
			c.logger.Debug("wallet mount point absent, button not rendered",
				"wallet", string(adapter.Method()), "mountId", adapter.MountID())
			continue
		}
		if c.config.CartID == "" {
			c.logger.Warn("wallet configured without a cart id, button not rendered",
				"wallet", string(adapter.Method()))
			continue
		}

		merchant := MerchantInfo{}
		if a, ok := adapter.(*ApplePayAdapter); ok {
			merchant = a.merchant
		} else if c.config.GooglePay != nil {
			merchant.DisplayName = c.config.GooglePay.MerchantDisplayName
		}

		flow, err := NewWalletFlow(&WalletFlowConfig{
			Adapter:         adapter,
			Commerce:        commerce,
			CartID:          c.config.CartID,
			Merchant:        merchant,
			Validator:       validators[i],
			ShopperIP:       c.config.ShopperIP,
			OnCartSubmitted: c.config.OnCartSubmitted,
			Logger:          c.logger,
		})
		if err != nil {
			c.logger.Error("failed to build wallet flow", "wallet", string(adapter.Method()), "error", err)
			continue
		}
		if err := flow.Load(ctx); err != nil {
			c.logger.Error("failed to load wallet flow", "wallet", string(adapter.Method()), "error", err)
			continue
		}
		flows = append(flows, flow)
	}

	c.mu.Lock()
	c.flows = flows
	c.mu.Unlock()
}

// Initialized reports whether Init has completed.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady
}

// Commerce exposes the underlying commerce client for direct API access.
// It is nil before Init completes.
func (c *Client) Commerce() *CommerceClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commerce
}

// SubmitParams is the card-path submission input: the card holder's billing
// fields plus the checkout's shipping and promo selections. Card number and
// CVV never appear here; the hosted fields hold them.
type SubmitParams struct {
	CartID      string `json:"cartId" validate:"required"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Month       string `json:"month"`
	Year        string `json:"year"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	Country     string `json:"country"`

	ShopperIP               string
	SelectedShippingOptions []SelectedShippingOption
	ExperimentalPromoCodes  []StorePromoCodes
}

// Submit tokenizes the entered card and submits the cart. The flow is
// asynchronous: tokenization completes in the hosted frames, and the outcome
// arrives via OnCartSubmitted.
func (c *Client) Submit(params SubmitParams) error {
	c.mu.Lock()
	bridge, ready := c.bridge, c.state == stateReady
	c.mu.Unlock()
	if !ready {
		return NewError(ErrCodeNotReady, "client is not initialized", nil)
	}
	if verr := validateStruct(ErrCodeInvalidConfig, params); verr != nil {
		return verr
	}

	options := params.SelectedShippingOptions
	if options == nil {
		options = []SelectedShippingOption{}
	}
	encodedOptions, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to encode shipping options: %w", err)
	}

	details := PaymentDetails{
		FirstName:   params.FirstName,
		LastName:    params.LastName,
		PhoneNumber: params.PhoneNumber,
		Month:       params.Month,
		Year:        params.Year,
		Address1:    params.Address1,
		Address2:    params.Address2,
		City:        params.City,
		State:       params.State,
		Zip:         params.Zip,
		Country:     params.Country,
		Metadata: PaymentMetadata{
			CartID:                  params.CartID,
			SelectedShippingOptions: string(encodedOptions),
			ShopperIP:               params.ShopperIP,
		},
	}
	if params.ExperimentalPromoCodes != nil {
		encodedPromos, err := json.Marshal(params.ExperimentalPromoCodes)
		if err != nil {
			return fmt.Errorf("failed to encode promo codes: %w", err)
		}
		details.Metadata.ExperimentalPromoCodes = string(encodedPromos)
	}

	return bridge.Tokenize(details)
}

// submitTokenized is the tokenization callback: the frames produced a vault
// token, so finish the card-path submission and report the outcome.
func (c *Client) submitTokenized(ctx context.Context, token string, details PaymentDetails) {
	c.mu.Lock()
	commerce := c.commerce
	c.mu.Unlock()

	response, err := commerce.SubmitCart(ctx, SubmitCartParams{
		Token:   PaymentToken{Vault: token},
		Details: details,
	})
	if err != nil {
		c.logger.Error("cart submission failed", "error", err)
		if c.config.OnErrors != nil {
			c.config.OnErrors([]FrameError{{Message: err.Error()}})
		}
		return
	}
	if c.config.OnCartSubmitted != nil {
		c.config.OnCartSubmitted(response.Result, response.GraphQLErrors, PaymentMethodCard)
	}
}

// SetPromoCodes replaces the promo codes sent with wallet submissions.
func (c *Client) SetPromoCodes(codes []StorePromoCodes) {
	c.mu.Lock()
	flows := c.flows
	c.mu.Unlock()
	for _, flow := range flows {
		flow.SetPromoCodes(codes)
	}
}

// Hosted-field pass-through. Each call is a no-op with a warning before Init.

// Reload resets the hosted fields and re-subscribes the configured handlers.
func (c *Client) Reload() error {
	c.mu.Lock()
	bridge, ready := c.bridge, c.state == stateReady
	c.mu.Unlock()
	if !ready {
		return NewError(ErrCodeNotReady, "client is not initialized", nil)
	}
	return bridge.Reload()
}

// Validate asks the hosted fields to report their validation status.
func (c *Client) Validate() {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.Validate()
	}
}

// SetStyle styles a hosted field with CSS.
func (c *Client) SetStyle(field FrameField, css string) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.SetStyle(field, css)
	}
}

// SetFieldType sets a hosted field's input type.
func (c *Client) SetFieldType(field FrameField, fieldType FieldType) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.SetFieldType(field, fieldType)
	}
}

// SetLabel sets a hosted field's accessibility label.
func (c *Client) SetLabel(field FrameField, label string) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.SetLabel(field, label)
	}
}

// SetTitle sets a hosted field's title attribute.
func (c *Client) SetTitle(field FrameField, title string) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.SetTitle(field, title)
	}
}

// SetPlaceholder sets a hosted field's placeholder text.
func (c *Client) SetPlaceholder(field FrameField, placeholder string) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.SetPlaceholder(field, placeholder)
	}
}

// SetValue sets a hosted field to a known test value.
func (c *Client) SetValue(field FrameField, value int) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.SetValue(field, value)
	}
}

// SetNumberFormat sets the card number display format.
func (c *Client) SetNumberFormat(format NumberFormat) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.SetNumberFormat(format)
	}
}

// ToggleAutoComplete toggles browser autocomplete on the hosted fields.
func (c *Client) ToggleAutoComplete() {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.ToggleAutoComplete()
	}
}

// TransferFocus moves focus to a hosted field.
func (c *Client) TransferFocus(field FrameField) {
	if bridge := c.readyBridge(); bridge != nil {
		bridge.TransferFocus(field)
	}
}

func (c *Client) readyBridge() *TokenizationBridge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateReady {
		c.logger.Warn("client used before initialization")
		return nil
	}
	return c.bridge
}
