package ryepay

import (
	"encoding/json"
	"strconv"
)

// Marketplace identifies which marketplace variant backs a store.
// The set is fixed by the commerce API and is not extensible by the client.
type Marketplace string

const (
	MarketplaceAmazon  Marketplace = "AMAZON"
	MarketplaceShopify Marketplace = "SHOPIFY"
)

// Money is an amount in minor units plus its currency and a preformatted
// display string coming straight from the commerce API.
type Money struct {
	Value        string `json:"value"`
	DisplayValue string `json:"displayValue,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

// Major returns the amount in major units (e.g. dollars for USD).
// A missing or unparsable value yields 0.
func (m Money) Major() float64 {
	minor, err := strconv.ParseFloat(m.Value, 64)
	if err != nil {
		return 0
	}
	return minor / 100
}

// ShippingMethod is one store-scoped shipping option. Selection is keyed by
// ID. Price is the method's own cost; Total is the order total with this
// method applied.
type ShippingMethod struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Price Money  `json:"price"`
	Taxes Money  `json:"taxes"`
	Total Money  `json:"total"`
}

// OfferError describes a per-offer problem reported by the commerce API.
type OfferError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Offer is a store's priced view of its cart lines.
type Offer struct {
	Errors                 []OfferError     `json:"errors,omitempty"`
	Subtotal               Money            `json:"subtotal"`
	Margin                 Money            `json:"margin,omitempty"`
	NotAvailableIDs        []string         `json:"notAvailableIds,omitempty"`
	SelectedShippingMethod *ShippingMethod  `json:"selectedShippingMethod,omitempty"`
	ShippingMethods        []ShippingMethod `json:"shippingMethods"`
}

// CartLine is one line item. Exactly one of Product (Amazon) or Variant
// (Shopify) is populated, matching the store's marketplace.
type CartLine struct {
	Quantity int             `json:"quantity"`
	Product  *AmazonProduct  `json:"product,omitempty"`
	Variant  *ShopifyVariant `json:"variant,omitempty"`
}

type AmazonProduct struct {
	ID string `json:"id"`
}

type ShopifyVariant struct {
	ID string `json:"id"`
}

// StoreError describes a per-store problem reported by the commerce API.
type StoreError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Store is one marketplace-specific sub-order within a cart.
type Store struct {
	Marketplace Marketplace  `json:"-"`
	Store       string       `json:"store"`
	IsSubmitted bool         `json:"isSubmitted,omitempty"`
	Errors      []StoreError `json:"errors,omitempty"`
	CartLines   []CartLine   `json:"cartLines,omitempty"`
	Offer       Offer        `json:"offer"`
}

// UnmarshalJSON resolves the marketplace variant from the GraphQL __typename.
func (s *Store) UnmarshalJSON(data []byte) error {
	type storeAlias Store
	aux := struct {
		TypeName string `json:"__typename"`
		*storeAlias
	}{storeAlias: (*storeAlias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch aux.TypeName {
	case "AmazonStore":
		s.Marketplace = MarketplaceAmazon
	case "ShopifyStore":
		s.Marketplace = MarketplaceShopify
	}
	return nil
}

// CartCost is the cart-level cost breakdown.
type CartCost struct {
	Subtotal Money `json:"subtotal"`
	Tax      Money `json:"tax"`
	Shipping Money `json:"shipping"`
	Total    Money `json:"total"`
}

// BuyerIdentity is the shipping/contact profile attached to a cart.
// All fields are optional; partial updates only overwrite provided fields.
type BuyerIdentity struct {
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Address1     string `json:"address1,omitempty"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city,omitempty"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	CountryCode  string `json:"countryCode,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// Cart is the server-side aggregate for an in-progress purchase.
// The client never holds authoritative state; every read re-fetches.
type Cart struct {
	ID            string         `json:"id"`
	Cost          CartCost       `json:"cost"`
	BuyerIdentity *BuyerIdentity `json:"buyerIdentity,omitempty"`
	Stores        []Store        `json:"stores"`
}

// HasMultipleStores reports whether this is a multi-store cart. Multi-store
// carts disable in-sheet address and shipping negotiation.
func (c *Cart) HasMultipleStores() bool {
	return len(c.Stores) > 1
}

// StoreMissingShippingMethod returns the first store without a selected
// shipping method, or nil when every store has one.
func (c *Cart) StoreMissingShippingMethod() *Store {
	for i := range c.Stores {
		if c.Stores[i].Offer.SelectedShippingMethod == nil {
			return &c.Stores[i]
		}
	}
	return nil
}

// SelectedShippingOptions returns the per-store {store, shippingId} pairs for
// stores that already carry a selected shipping method.
func (c *Cart) SelectedShippingOptions() []SelectedShippingOption {
	options := []SelectedShippingOption{}
	for _, store := range c.Stores {
		if store.Offer.SelectedShippingMethod != nil {
			options = append(options, SelectedShippingOption{
				Store:      store.Store,
				ShippingID: store.Offer.SelectedShippingMethod.ID,
			})
		}
	}
	return options
}

// SelectedShippingOption pairs a store with its chosen shipping method.
// One entry is required per store in a multi-store cart.
type SelectedShippingOption struct {
	Store      string `json:"store"`
	ShippingID string `json:"shippingId"`
}

// StorePromoCodes carries promo codes scoped to one store.
type StorePromoCodes struct {
	Store      string   `json:"store"`
	PromoCodes []string `json:"promoCodes"`
}

// GraphQLError is a top-level error from the commerce API. Errors travel in a
// parallel array alongside a possibly-partial result; callers must check both.
type GraphQLError struct {
	Message string `json:"message"`
}

// CartError is a cart-level error embedded in a cart operation's payload.
type CartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitStoreStatus is the terminal status of one store's submission.
// Submission is not atomic across stores: some stores in one cart may
// succeed while others fail.
type SubmitStoreStatus string

const (
	SubmitStoreCompleted     SubmitStoreStatus = "COMPLETED"
	SubmitStorePaymentFailed SubmitStoreStatus = "PAYMENT_FAILED"
	SubmitStoreFailed        SubmitStoreStatus = "FAILED"
)

// SubmitStoreError is a per-store submission error.
type SubmitStoreError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Per-store submission error codes.
const (
	SubmitStoreErrSubmitFailed  = "SUBMIT_STORE_FAILED"
	SubmitStoreErrPaymentFailed = "PAYMENT_FAILED"
)

// SubmitStoreResult is one store's outcome within a cart submission.
type SubmitStoreResult struct {
	Store     Store              `json:"store"`
	Status    SubmitStoreStatus  `json:"status"`
	RequestID string             `json:"requestId,omitempty"`
	Errors    []SubmitStoreError `json:"errors"`
}

// SubmitCartError is a cart-level submission error.
type SubmitCartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmittedCart is the cart echo returned by a submission.
type SubmittedCart struct {
	ID     string              `json:"id"`
	Stores []SubmitStoreResult `json:"stores"`
}

// SubmitCartResult is the structural outcome of a cart submission. Partial
// failure is a first-class outcome reported per store, not via the error
// channel.
type SubmitCartResult struct {
	Cart   SubmittedCart     `json:"cart"`
	Errors []SubmitCartError `json:"errors"`
}

// PaymentMethod tags which payment path produced a completed checkout attempt.
type PaymentMethod string

const (
	PaymentMethodCard      PaymentMethod = "CREDIT_CARD"
	PaymentMethodApplePay  PaymentMethod = "APPLE_PAY"
	PaymentMethodGooglePay PaymentMethod = "GOOGLE_PAY"
)

// CartSubmittedFunc is invoked exactly once per completed checkout attempt,
// across all payment paths.
type CartSubmittedFunc func(result *SubmitCartResult, errs []GraphQLError, method PaymentMethod)

// BillingAddress is the billing profile sent with a cart submission.
type BillingAddress struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city"`
	ProvinceCode string `json:"provinceCode"`
	CountryCode  string `json:"countryCode"`
	PostalCode   string `json:"postalCode"`
	Phone        string `json:"phone,omitempty"`
}

// PaymentMetadata rides along with tokenized card fields through the
// hosted-field SDK and back. Slice-valued fields are JSON-encoded strings
// because the SDK only round-trips flat string metadata.
type PaymentMetadata struct {
	CartID                  string `json:"cartId"`
	SelectedShippingOptions string `json:"selectedShippingOptions,omitempty"`
	ShopperIP               string `json:"shopperIp,omitempty"`
	ExperimentalPromoCodes  string `json:"experimentalPromoCodes,omitempty"`
}

// PaymentDetails is the flat field set delivered by the tokenization SDK's
// paymentMethod event, and assembled locally by the wallet flows.
type PaymentDetails struct {
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	PhoneNumber string          `json:"phone_number,omitempty"`
	Month       string          `json:"month"`
	Year        string          `json:"year"`
	Address1    string          `json:"address1"`
	Address2    string          `json:"address2,omitempty"`
	City        string          `json:"city"`
	State       string          `json:"state"`
	Zip         string          `json:"zip"`
	Country     string          `json:"country"`
	Metadata    PaymentMetadata `json:"metadata"`
}

// BillingAddress maps the flat payment-detail fields into the commerce API's
// billing address shape.
func (d PaymentDetails) BillingAddress() BillingAddress {
	return BillingAddress{
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Address1:     d.Address1,
		Address2:     d.Address2,
		City:         d.City,
		ProvinceCode: d.State,
		CountryCode:  d.Country,
		PostalCode:   d.Zip,
		Phone:        d.PhoneNumber,
	}
}
