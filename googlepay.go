package ryepay

import (
	"context"
	"fmt"
	"log/slog"
)

// GooglePayMountID is the element ID the Google Pay button renders into.
const GooglePayMountID = "rye-google-pay"

const (
	googleAPIVersion      = 2
	googleAPIVersionMinor = 0

	googleTriggerInitialize      = "INITIALIZE"
	googleTriggerShippingAddress = "SHIPPING_ADDRESS"
	googleTriggerShippingOption  = "SHIPPING_OPTION"
)

var (
	googleAllowedAuthMethods  = []string{"PAN_ONLY", "CRYPTOGRAM_3DS"}
	googleAllowedCardNetworks = []string{"AMEX", "DISCOVER", "JCB", "MASTERCARD", "VISA"}
)

// GoogleAddress is the wallet-native address shape. Name is a single display
// string; the split into first and last name is lossy.
type GoogleAddress struct {
	Name               string `json:"name,omitempty"`
	PhoneNumber        string `json:"phoneNumber,omitempty"`
	Address1           string `json:"address1,omitempty"`
	Address2           string `json:"address2,omitempty"`
	Locality           string `json:"locality,omitempty"`
	AdministrativeArea string `json:"administrativeArea,omitempty"`
	PostalCode         string `json:"postalCode,omitempty"`
	CountryCode        string `json:"countryCode,omitempty"`
}

// PartialAddress normalizes the wallet-native address.
func (a GoogleAddress) PartialAddress() PartialAddress {
	name := ParseFullName(a.Name)
	return PartialAddress{
		FirstName:    name.First,
		LastName:     name.Last,
		Phone:        a.PhoneNumber,
		Address1:     a.Address1,
		Address2:     a.Address2,
		City:         a.Locality,
		ProvinceCode: a.AdministrativeArea,
		CountryCode:  a.CountryCode,
		PostalCode:   a.PostalCode,
	}
}

// GoogleTransactionInfo is the sheet's displayed total.
type GoogleTransactionInfo struct {
	TotalPriceStatus string `json:"totalPriceStatus"`
	TotalPrice       string `json:"totalPrice"`
	CurrencyCode     string `json:"currencyCode"`
}

// GoogleShippingOption is the sheet-native shipping option shape.
type GoogleShippingOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// GoogleShippingOptionParameters lists the offered options plus the default.
type GoogleShippingOptionParameters struct {
	DefaultSelectedOptionID string                 `json:"defaultSelectedOptionId"`
	ShippingOptions         []GoogleShippingOption `json:"shippingOptions"`
}

// GoogleCardParameters constrains the cards the sheet offers.
type GoogleCardParameters struct {
	AllowedAuthMethods  []string `json:"allowedAuthMethods"`
	AllowedCardNetworks []string `json:"allowedCardNetworks"`
}

// GoogleTokenizationSpecification routes tokenization through the gateway
// that vaults cards for the commerce API.
type GoogleTokenizationSpecification struct {
	Type       string            `json:"type"`
	Parameters map[string]string `json:"parameters"`
}

// GoogleAllowedPaymentMethod is one accepted payment method entry.
type GoogleAllowedPaymentMethod struct {
	Type                      string                          `json:"type"`
	Parameters                GoogleCardParameters            `json:"parameters"`
	TokenizationSpecification GoogleTokenizationSpecification `json:"tokenizationSpecification"`
}

// GoogleMerchantInfo identifies the merchant to the wallet network.
type GoogleMerchantInfo struct {
	MerchantID string `json:"merchantId"`
}

// GoogleShippingAddressParameters controls address collection on the sheet.
type GoogleShippingAddressParameters struct {
	PhoneNumberRequired bool `json:"phoneNumberRequired"`
}

// GooglePaymentDataRequest is the sheet configuration.
type GooglePaymentDataRequest struct {
	APIVersion                int                              `json:"apiVersion"`
	APIVersionMinor           int                              `json:"apiVersionMinor"`
	AllowedPaymentMethods     []GoogleAllowedPaymentMethod     `json:"allowedPaymentMethods"`
	TransactionInfo           GoogleTransactionInfo            `json:"transactionInfo"`
	ShippingAddressRequired   bool                             `json:"shippingAddressRequired"`
	ShippingAddressParameters *GoogleShippingAddressParameters `json:"shippingAddressParameters,omitempty"`
	ShippingOptionRequired    bool                             `json:"shippingOptionRequired"`
	MerchantInfo              GoogleMerchantInfo               `json:"merchantInfo"`
	CallbackIntents           []string                         `json:"callbackIntents,omitempty"`
}

// GoogleSelectionData carries the ID of an in-sheet selection.
type GoogleSelectionData struct {
	ID string `json:"id"`
}

// GoogleIntermediatePaymentData is the payload of an in-sheet data change.
type GoogleIntermediatePaymentData struct {
	CallbackTrigger    string               `json:"callbackTrigger"`
	ShippingAddress    *GoogleAddress       `json:"shippingAddress,omitempty"`
	ShippingOptionData *GoogleSelectionData `json:"shippingOptionData,omitempty"`
}

// GooglePaymentDataUpdate answers an in-sheet data change. A zero update
// leaves the sheet unchanged.
type GooglePaymentDataUpdate struct {
	NewShippingOptionParameters *GoogleShippingOptionParameters `json:"newShippingOptionParameters,omitempty"`
	NewTransactionInfo          *GoogleTransactionInfo          `json:"newTransactionInfo,omitempty"`
}

// GoogleTokenizationData wraps the gateway token; Token is a JSON document
// in string form.
type GoogleTokenizationData struct {
	Token string `json:"token"`
}

// GooglePaymentMethodData carries the tokenized payment credential.
type GooglePaymentMethodData struct {
	TokenizationData GoogleTokenizationData `json:"tokenizationData"`
}

// GooglePaymentData is the terminal sheet payload after user approval.
type GooglePaymentData struct {
	PaymentMethodData  GooglePaymentMethodData `json:"paymentMethodData"`
	ShippingAddress    *GoogleAddress          `json:"shippingAddress,omitempty"`
	ShippingOptionData *GoogleSelectionData    `json:"shippingOptionData,omitempty"`
}

// GooglePaymentDataChangedFunc resolves one in-sheet data change.
type GooglePaymentDataChangedFunc func(ctx context.Context, data GoogleIntermediatePaymentData) (*GooglePaymentDataUpdate, error)

// GooglePayAPI is the port over the wallet-native runtime. LoadPaymentData
// blocks for the whole sheet interaction and returns the approved payload;
// onDataChanged is nil when in-sheet negotiation is disabled.
type GooglePayAPI interface {
	Load(ctx context.Context) error
	IsReadyToPay(ctx context.Context) (bool, error)
	MountButton(mountID string, onClick func()) error
	LoadPaymentData(ctx context.Context, req GooglePaymentDataRequest, onDataChanged GooglePaymentDataChangedFunc) (*GooglePaymentData, error)
}

// GooglePayAdapter translates between the native sheet and the wallet flow's
// delegate. It implements [WalletAdapter].
type GooglePayAdapter struct {
	api GooglePayAPI
	// gatewayMerchantID is the hosted-field environment key; the wallet
	// network tokenizes against the same gateway that vaults cards.
	gatewayMerchantID string
	logger            *slog.Logger
}

// NewGooglePayAdapter creates an adapter over the given native runtime.
func NewGooglePayAdapter(api GooglePayAPI, gatewayMerchantID string, logger *slog.Logger) *GooglePayAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GooglePayAdapter{api: api, gatewayMerchantID: gatewayMerchantID, logger: logger}
}

func (g *GooglePayAdapter) Method() PaymentMethod { return PaymentMethodGooglePay }

func (g *GooglePayAdapter) MountID() string { return GooglePayMountID }

func (g *GooglePayAdapter) Load(ctx context.Context) error { return g.api.Load(ctx) }

func (g *GooglePayAdapter) CanMakePayments(ctx context.Context) (bool, error) {
	return g.api.IsReadyToPay(ctx)
}

func (g *GooglePayAdapter) MountButton(onClick func()) error {
	return g.api.MountButton(GooglePayMountID, onClick)
}

// OpenSheet presents the payment sheet. It blocks until the user approves or
// dismisses, then finalizes the authorization through the delegate.
func (g *GooglePayAdapter) OpenSheet(ctx context.Context, req SheetRequest, delegate SheetDelegate) error {
	request := GooglePaymentDataRequest{
		APIVersion:      googleAPIVersion,
		APIVersionMinor: googleAPIVersionMinor,
		AllowedPaymentMethods: []GoogleAllowedPaymentMethod{{
			Type: "CARD",
			Parameters: GoogleCardParameters{
				AllowedAuthMethods:  googleAllowedAuthMethods,
				AllowedCardNetworks: googleAllowedCardNetworks,
			},
			TokenizationSpecification: GoogleTokenizationSpecification{
				Type: "PAYMENT_GATEWAY",
				Parameters: map[string]string{
					"gateway":           "spreedly",
					"gatewayMerchantId": g.gatewayMerchantID,
				},
			},
		}},
		TransactionInfo: GoogleTransactionInfo{
			TotalPriceStatus: "FINAL",
			TotalPrice:       majorAmount(req.Total),
			CurrencyCode:     currencyOrDefault(req.CurrencyCode),
		},
		MerchantInfo: GoogleMerchantInfo{MerchantID: g.gatewayMerchantID},
	}

	var onDataChanged GooglePaymentDataChangedFunc
	if req.CollectShipping {
		request.ShippingAddressRequired = true
		request.ShippingAddressParameters = &GoogleShippingAddressParameters{PhoneNumberRequired: true}
		request.ShippingOptionRequired = true
		request.CallbackIntents = []string{googleTriggerShippingAddress, googleTriggerShippingOption}
		onDataChanged = func(ctx context.Context, data GoogleIntermediatePaymentData) (*GooglePaymentDataUpdate, error) {
			return g.onPaymentDataChanged(ctx, data, delegate)
		}
	}

	paymentData, err := g.api.LoadPaymentData(ctx, request, onDataChanged)
	if err != nil {
		delegate.Cancel()
		return err
	}
	return g.authorize(ctx, paymentData, delegate)
}

func (g *GooglePayAdapter) onPaymentDataChanged(ctx context.Context, data GoogleIntermediatePaymentData, delegate SheetDelegate) (*GooglePaymentDataUpdate, error) {
	switch data.CallbackTrigger {
	case googleTriggerShippingOption:
		if data.ShippingOptionData == nil {
			return &GooglePaymentDataUpdate{}, nil
		}
		update, err := delegate.SelectShippingMethod(ctx, data.ShippingOptionData.ID)
		if err != nil {
			g.logger.Error("shipping option selection failed", "error", err)
			return nil, err
		}
		if update == nil {
			return &GooglePaymentDataUpdate{}, nil
		}
		return &GooglePaymentDataUpdate{NewTransactionInfo: g.transactionInfo(update.Total)}, nil

	case googleTriggerInitialize, googleTriggerShippingAddress:
		if data.ShippingAddress == nil {
			return &GooglePaymentDataUpdate{}, nil
		}
		update, err := delegate.SelectShippingContact(ctx, data.ShippingAddress.PartialAddress())
		if err != nil {
			g.logger.Error("shipping address change failed", "error", err)
			return nil, err
		}
		if update == nil {
			return &GooglePaymentDataUpdate{}, nil
		}
		if len(update.ShippingMethods) == 0 {
			return &GooglePaymentDataUpdate{NewTransactionInfo: g.transactionInfo(update.Total)}, nil
		}

		// The sheet preselects the first offered option; sync the selection
		// so the displayed total includes its shipping cost.
		options := googleShippingOptions(update.ShippingMethods)
		selected, err := delegate.SelectShippingMethod(ctx, options[0].ID)
		if err != nil {
			return nil, err
		}
		total := update.Total
		if selected != nil {
			total = selected.Total
		}
		return &GooglePaymentDataUpdate{
			NewShippingOptionParameters: &GoogleShippingOptionParameters{
				DefaultSelectedOptionID: options[0].ID,
				ShippingOptions:         options,
			},
			NewTransactionInfo: g.transactionInfo(total),
		}, nil
	}

	return &GooglePaymentDataUpdate{}, nil
}

func (g *GooglePayAdapter) authorize(ctx context.Context, paymentData *GooglePaymentData, delegate SheetDelegate) error {
	token, err := ParseGooglePayToken(paymentData.PaymentMethodData.TokenizationData.Token)
	if err != nil {
		return WrapError(ErrCodeInternal, "failed to decode wallet token", err)
	}

	// The sheet reports the final selection only here; sync it before the
	// flow snapshots its shipping options for submission.
	if paymentData.ShippingOptionData != nil && paymentData.ShippingOptionData.ID != "" {
		if _, err := delegate.SelectShippingMethod(ctx, paymentData.ShippingOptionData.ID); err != nil {
			return err
		}
	}

	authorization := SheetAuthorization{Token: PaymentToken{GooglePay: token}}
	if paymentData.ShippingAddress != nil {
		authorization.ShippingContact = paymentData.ShippingAddress.PartialAddress()
	}
	return delegate.Authorize(ctx, authorization)
}

func (g *GooglePayAdapter) transactionInfo(total Money) *GoogleTransactionInfo {
	return &GoogleTransactionInfo{
		TotalPriceStatus: "FINAL",
		TotalPrice:       majorAmount(total),
		CurrencyCode:     currencyOrDefault(total.Currency),
	}
}

func googleShippingOptions(methods []ShippingMethod) []GoogleShippingOption {
	options := make([]GoogleShippingOption, 0, len(methods))
	for _, method := range methods {
		options = append(options, GoogleShippingOption{
			ID:          method.ID,
			Label:       method.Label,
			Description: fmt.Sprintf("%s %s", method.Price.DisplayValue, currencyOrDefault(method.Price.Currency)),
		})
	}
	return options
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "USD"
	}
	return currency
}
