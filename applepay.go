package ryepay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ApplePayMountID is the element ID the Apple Pay button renders into.
const ApplePayMountID = "rye-apple-pay"

var (
	applePaySupportedNetworks    = []string{"visa", "masterCard", "amex", "discover"}
	applePayMerchantCapabilities = []string{"supports3DS"}
	applePayShippingFields       = []string{"email", "name", "phone", "postalAddress"}
)

// AppleContact is the wallet-native contact shape. Fields are redacted to
// province, country, and postal code until payment is authorized.
type AppleContact struct {
	GivenName          string   `json:"givenName,omitempty"`
	FamilyName         string   `json:"familyName,omitempty"`
	EmailAddress       string   `json:"emailAddress,omitempty"`
	PhoneNumber        string   `json:"phoneNumber,omitempty"`
	AddressLines       []string `json:"addressLines,omitempty"`
	Locality           string   `json:"locality,omitempty"`
	AdministrativeArea string   `json:"administrativeArea,omitempty"`
	PostalCode         string   `json:"postalCode,omitempty"`
	CountryCode        string   `json:"countryCode,omitempty"`
}

// PartialAddress normalizes the wallet-native contact.
func (c AppleContact) PartialAddress() PartialAddress {
	addr := PartialAddress{
		FirstName:    c.GivenName,
		LastName:     c.FamilyName,
		Email:        c.EmailAddress,
		Phone:        c.PhoneNumber,
		City:         c.Locality,
		ProvinceCode: c.AdministrativeArea,
		CountryCode:  c.CountryCode,
		PostalCode:   c.PostalCode,
	}
	if len(c.AddressLines) > 0 {
		addr.Address1 = c.AddressLines[0]
	}
	if len(c.AddressLines) > 1 {
		addr.Address2 = c.AddressLines[1]
	}
	return addr
}

// AppleLineItem is a labeled major-unit amount shown on the sheet.
type AppleLineItem struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// AppleShippingMethod is the sheet-native shipping option shape.
type AppleShippingMethod struct {
	Identifier string `json:"identifier"`
	Label      string `json:"label"`
	Detail     string `json:"detail,omitempty"`
	Amount     string `json:"amount"`
}

// ApplePaymentRequest is the sheet configuration passed to the native session.
type ApplePaymentRequest struct {
	CountryCode                   string                `json:"countryCode"`
	CurrencyCode                  string                `json:"currencyCode"`
	SupportedNetworks             []string              `json:"supportedNetworks"`
	MerchantCapabilities          []string              `json:"merchantCapabilities"`
	Total                         AppleLineItem         `json:"total"`
	RequiredShippingContactFields []string              `json:"requiredShippingContactFields,omitempty"`
	ShippingMethods               []AppleShippingMethod `json:"shippingMethods"`
}

// AppleSheetUpdate is the completion payload for an in-sheet selection event.
type AppleSheetUpdate struct {
	NewTotal           AppleLineItem
	NewShippingMethods []AppleShippingMethod
}

// AppleAuthorization is the native payment-authorized payload.
type AppleAuthorization struct {
	Token           ApplePayToken
	ShippingContact AppleContact
	BillingContact  *AppleContact
}

// AppleSessionHandlers are the session event slots the native runtime fires.
// A nil update from a selection handler leaves the sheet unchanged.
type AppleSessionHandlers struct {
	OnValidateMerchant        func(ctx context.Context, validationURL string) (json.RawMessage, error)
	OnShippingContactSelected func(ctx context.Context, contact AppleContact) (*AppleSheetUpdate, error)
	OnShippingMethodSelected  func(ctx context.Context, methodID string) (*AppleSheetUpdate, error)
	OnPaymentAuthorized       func(ctx context.Context, auth AppleAuthorization) error
	OnCancel                  func()
}

// ApplePayAPI is the port over the wallet-native runtime: script loading,
// capability checks, button mounting, and the session lifecycle.
type ApplePayAPI interface {
	Load(ctx context.Context) error
	CanMakePaymentsWithActiveCard(ctx context.Context, merchantIdentifier string) (bool, error)
	MountButton(mountID string, onClick func()) error
	BeginSession(ctx context.Context, req ApplePaymentRequest, handlers AppleSessionHandlers) error
}

// ApplePayAdapter translates between the native sheet session and the wallet
// flow's delegate. It implements [WalletAdapter].
type ApplePayAdapter struct {
	api      ApplePayAPI
	merchant MerchantInfo
	logger   *slog.Logger
}

// NewApplePayAdapter creates an adapter over the given native runtime.
func NewApplePayAdapter(api ApplePayAPI, merchant MerchantInfo, logger *slog.Logger) *ApplePayAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplePayAdapter{api: api, merchant: merchant, logger: logger}
}

func (a *ApplePayAdapter) Method() PaymentMethod { return PaymentMethodApplePay }

func (a *ApplePayAdapter) MountID() string { return ApplePayMountID }

func (a *ApplePayAdapter) Load(ctx context.Context) error { return a.api.Load(ctx) }

func (a *ApplePayAdapter) CanMakePayments(ctx context.Context) (bool, error) {
	return a.api.CanMakePaymentsWithActiveCard(ctx, a.merchant.Identifier)
}

func (a *ApplePayAdapter) MountButton(onClick func()) error {
	return a.api.MountButton(ApplePayMountID, onClick)
}

// OpenSheet presents the payment sheet and routes its events to the delegate.
// Selection failures are logged and leave the sheet on its previous state
// rather than tearing the session down.
func (a *ApplePayAdapter) OpenSheet(ctx context.Context, req SheetRequest, delegate SheetDelegate) error {
	label := req.MerchantDisplayName
	paymentRequest := ApplePaymentRequest{
		CountryCode:          req.CountryCode,
		CurrencyCode:         req.CurrencyCode,
		SupportedNetworks:    applePaySupportedNetworks,
		MerchantCapabilities: applePayMerchantCapabilities,
		Total:                AppleLineItem{Label: label, Amount: majorAmount(req.Total)},
		ShippingMethods:      []AppleShippingMethod{},
	}
	if req.CollectShipping {
		paymentRequest.RequiredShippingContactFields = applePayShippingFields
	}

	handlers := AppleSessionHandlers{
		OnValidateMerchant: func(ctx context.Context, validationURL string) (json.RawMessage, error) {
			session, err := delegate.ValidateMerchant(ctx, validationURL)
			if err != nil {
				a.logger.Error("merchant validation failed", "error", err)
				return nil, err
			}
			return session, nil
		},
		OnShippingContactSelected: func(ctx context.Context, contact AppleContact) (*AppleSheetUpdate, error) {
			update, err := delegate.SelectShippingContact(ctx, contact.PartialAddress())
			if err != nil {
				a.logger.Error("shipping contact selection failed", "error", err)
				return nil, err
			}
			return a.sheetUpdate(label, update), nil
		},
		OnShippingMethodSelected: func(ctx context.Context, methodID string) (*AppleSheetUpdate, error) {
			update, err := delegate.SelectShippingMethod(ctx, methodID)
			if err != nil {
				a.logger.Error("shipping method selection failed", "error", err)
				return nil, err
			}
			return a.sheetUpdate(label, update), nil
		},
		OnPaymentAuthorized: func(ctx context.Context, auth AppleAuthorization) error {
			authorization := SheetAuthorization{
				Token:           PaymentToken{ApplePay: &auth.Token},
				ShippingContact: auth.ShippingContact.PartialAddress(),
			}
			if auth.BillingContact != nil {
				billing := auth.BillingContact.PartialAddress()
				authorization.BillingContact = &billing
			}
			if err := delegate.Authorize(ctx, authorization); err != nil {
				a.logger.Error("payment authorization failed", "error", err)
				return err
			}
			return nil
		},
		OnCancel: delegate.Cancel,
	}

	return a.api.BeginSession(ctx, paymentRequest, handlers)
}

func (a *ApplePayAdapter) sheetUpdate(label string, update *ShippingUpdate) *AppleSheetUpdate {
	if update == nil {
		return nil
	}
	return &AppleSheetUpdate{
		NewTotal:           AppleLineItem{Label: label, Amount: majorAmount(update.Total)},
		NewShippingMethods: appleShippingMethods(update.ShippingMethods),
	}
}

func appleShippingMethods(methods []ShippingMethod) []AppleShippingMethod {
	converted := make([]AppleShippingMethod, 0, len(methods))
	for _, method := range methods {
		currency := method.Price.Currency
		if currency == "" {
			currency = "USD"
		}
		converted = append(converted, AppleShippingMethod{
			Identifier: method.ID,
			Label:      method.Label,
			Detail:     fmt.Sprintf("%s %s", method.Price.DisplayValue, currency),
			Amount:     majorAmount(method.Price),
		})
	}
	return converted
}

// majorAmount renders a minor-unit amount as the major-unit decimal string
// the wallet sheets display.
func majorAmount(m Money) string {
	return strconv.FormatFloat(m.Major(), 'f', 2, 64)
}

// merchantValidationRequest is the relay request body. The relay holds the
// merchant certificate and performs the actual wallet-network call.
type merchantValidationRequest struct {
	AppleValidationURL  string `json:"appleValidationUrl"`
	MerchantDisplayName string `json:"merchantDisplayName"`
	MerchantDomain      string `json:"merchantDomain"`
}

// RelayMerchantValidator validates the merchant through a server-side relay.
// Wallet networks reject validation calls from untrusted origins, so the
// certificate-bearing exchange happens on the relay, not here.
type RelayMerchantValidator struct {
	relayURL   string
	httpClient *http.Client
}

// NewRelayMerchantValidator creates a validator that calls the given relay.
func NewRelayMerchantValidator(relayURL string, httpClient *http.Client) *RelayMerchantValidator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RelayMerchantValidator{relayURL: relayURL, httpClient: httpClient}
}

// ValidateMerchant implements [MerchantValidator]. The returned payload is
// the opaque merchant session the native sheet consumes verbatim.
func (v *RelayMerchantValidator) ValidateMerchant(ctx context.Context, validationURL string, merchant MerchantInfo) (json.RawMessage, error) {
	body, err := json.Marshal(merchantValidationRequest{
		AppleValidationURL:  validationURL,
		MerchantDisplayName: merchant.DisplayName,
		MerchantDomain:      merchant.Domain,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.relayURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, WrapError(ErrCodeInternal, "merchant validation relay unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrCodeInternal,
			fmt.Sprintf("merchant validation relay returned status %d", resp.StatusCode), nil)
	}
	return json.RawMessage(payload), nil
}
