package ryepay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Surface is the port over the embedding page. Wallet buttons render only
// into mount points the application actually provides.
type Surface interface {
	HasMount(id string) bool
}

// SurfaceFunc lifts bare functions into [Surface].
type SurfaceFunc func(id string) bool

func (f SurfaceFunc) HasMount(id string) bool { return f(id) }

// MerchantInfo identifies the merchant to the wallet networks.
type MerchantInfo struct {
	Identifier  string
	DisplayName string
	Domain      string
}

// MerchantValidator performs wallet merchant validation against a
// wallet-network URL that must be called server-side.
type MerchantValidator interface {
	ValidateMerchant(ctx context.Context, validationURL string, merchant MerchantInfo) (json.RawMessage, error)
}

// ShippingUpdate is the flow's answer to an in-sheet selection event: the new
// order total and, when negotiation is active, the shipping choices to offer.
type ShippingUpdate struct {
	Total           Money
	ShippingMethods []ShippingMethod
}

// SheetRequest describes the payment sheet a wallet adapter should present.
type SheetRequest struct {
	SessionID           string
	CountryCode         string
	CurrencyCode        string
	Total               Money
	MerchantDisplayName string
	// ShippingMethods is nil when shipping negotiation is suppressed; the
	// sheet then neither collects an address nor offers shipping choices.
	ShippingMethods []ShippingMethod
	CollectShipping bool
}

// SheetAuthorization is the terminal sheet event: the user approved payment.
type SheetAuthorization struct {
	Token           PaymentToken
	ShippingContact PartialAddress
	// BillingContact is nil when the sheet did not disclose a separate
	// billing address; the shipping contact then doubles as billing.
	BillingContact *PartialAddress
}

// SheetDelegate receives the sheet's interaction events. The flow implements
// it; adapters call into it from their native sheet callbacks.
type SheetDelegate interface {
	ValidateMerchant(ctx context.Context, validationURL string) (json.RawMessage, error)
	SelectShippingContact(ctx context.Context, contact PartialAddress) (*ShippingUpdate, error)
	SelectShippingMethod(ctx context.Context, methodID string) (*ShippingUpdate, error)
	Authorize(ctx context.Context, auth SheetAuthorization) error
	Cancel()
}

// WalletAdapter is the port over one wallet network's native surface:
// availability, button mounting, and the payment sheet.
type WalletAdapter interface {
	Method() PaymentMethod
	MountID() string
	Load(ctx context.Context) error
	CanMakePayments(ctx context.Context) (bool, error)
	MountButton(onClick func()) error
	OpenSheet(ctx context.Context, req SheetRequest, delegate SheetDelegate) error
}

type walletState int

const (
	walletIdle walletState = iota
	walletCartLoaded
	walletSheetOpen
	walletAuthorized
	walletSubmitted
)

// WalletFlowConfig configures one wallet checkout flow.
type WalletFlowConfig struct {
	Adapter  WalletAdapter
	Commerce *CommerceClient
	CartID   string
	Merchant MerchantInfo

	// Validator is required only by adapters that request merchant validation.
	Validator MerchantValidator

	// ShopperIP is forwarded in submission metadata when set.
	ShopperIP string

	OnCartSubmitted CartSubmittedFunc
	Logger          *slog.Logger
}

// WalletFlow drives one wallet's checkout from button render to cart
// submission. The flow owns all commerce interaction; adapters only translate
// between the native sheet and the delegate calls.
//
// The payment sheet is modal, so delegate events arrive one at a time. The
// mutex guards against a late event racing a Cancel.
type WalletFlow struct {
	adapter         WalletAdapter
	commerce        *CommerceClient
	cartID          string
	merchant        MerchantInfo
	validator       MerchantValidator
	shopperIP       string
	onCartSubmitted CartSubmittedFunc
	logger          *slog.Logger

	mu                sync.Mutex
	state             walletState
	sessionID         string
	storeName         string
	hasMultipleStores bool
	subtotal          Money
	total             Money
	shippingOptions   []ShippingMethod
	selectedMethodID  string
	preselected       []SelectedShippingOption
	promoCodes        []StorePromoCodes
}

// NewWalletFlow creates a wallet flow. The adapter, commerce client, and cart
// ID are required.
func NewWalletFlow(config *WalletFlowConfig) (*WalletFlow, error) {
	if config == nil || config.Adapter == nil || config.Commerce == nil || config.CartID == "" {
		return nil, NewError(ErrCodeInvalidConfig, "wallet flow requires an adapter, a commerce client, and a cart id", nil)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletFlow{
		adapter:         config.Adapter,
		commerce:        config.Commerce,
		cartID:          config.CartID,
		merchant:        config.Merchant,
		validator:       config.Validator,
		shopperIP:       config.ShopperIP,
		onCartSubmitted: config.OnCartSubmitted,
		logger:          logger.With("wallet", string(config.Adapter.Method())),
	}, nil
}

// SetPromoCodes replaces the per-store promo codes sent with the submission.
func (f *WalletFlow) SetPromoCodes(codes []StorePromoCodes) {
	f.mu.Lock()
	f.promoCodes = codes
	f.mu.Unlock()
}

// Load prepares the wallet button: it loads the adapter's native runtime,
// checks payment capability, fetches the cart, and mounts the button.
// Ineligible carts and incapable devices skip the mount without error.
func (f *WalletFlow) Load(ctx context.Context) error {
	if err := f.adapter.Load(ctx); err != nil {
		return WrapError(ErrCodeLoadFailed, fmt.Sprintf("failed to load %s runtime", f.adapter.Method()), err)
	}

	capable, err := f.adapter.CanMakePayments(ctx)
	if err != nil {
		return WrapError(ErrCodeLoadFailed, fmt.Sprintf("%s capability check failed", f.adapter.Method()), err)
	}
	if !capable {
		f.logger.Info("device cannot make wallet payments, button not rendered")
		return nil
	}

	cart, err := f.fetchCart(ctx)
	if err != nil {
		return err
	}
	if cart.HasMultipleStores() {
		if store := cart.StoreMissingShippingMethod(); store != nil {
			f.logger.Warn("multi-store cart has a store without a selected shipping method, button not rendered",
				"store", store.Store)
			return nil
		}
	}

	f.mu.Lock()
	f.captureCartLocked(cart)
	f.state = walletCartLoaded
	f.mu.Unlock()

	return f.adapter.MountButton(func() {
		if err := f.StartSession(context.Background()); err != nil {
			f.logger.Error("failed to open payment sheet", "error", err)
		}
	})
}

// StartSession refreshes the cart and presents the payment sheet. A fresh
// session ID is minted per sheet presentation.
func (f *WalletFlow) StartSession(ctx context.Context) error {
	cart, err := f.fetchCart(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.captureCartLocked(cart)
	f.sessionID = "sess_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	f.state = walletSheetOpen

	req := SheetRequest{
		SessionID:           f.sessionID,
		CountryCode:         f.countryCodeLocked(cart),
		CurrencyCode:        f.total.Currency,
		Total:               f.total,
		MerchantDisplayName: f.merchant.DisplayName,
	}
	if !f.hasMultipleStores {
		req.ShippingMethods = f.shippingOptions
		req.CollectShipping = true
	}
	f.mu.Unlock()

	return f.adapter.OpenSheet(ctx, req, f)
}

// ValidateMerchant implements [SheetDelegate].
func (f *WalletFlow) ValidateMerchant(ctx context.Context, validationURL string) (json.RawMessage, error) {
	if f.validator == nil {
		return nil, NewError(ErrCodeInvalidConfig, "no merchant validator configured", nil)
	}
	return f.validator.ValidateMerchant(ctx, validationURL, f.merchant)
}

// SelectShippingContact implements [SheetDelegate]. The (typically redacted)
// contact is pushed to the cart so the server reprices shipping, and the new
// options plus total come back to the sheet. Multi-store carts skip the
// round trip; their shipping was selected before the sheet opened.
func (f *WalletFlow) SelectShippingContact(ctx context.Context, contact PartialAddress) (*ShippingUpdate, error) {
	f.mu.Lock()
	if f.hasMultipleStores {
		update := &ShippingUpdate{Total: f.total}
		f.mu.Unlock()
		return update, nil
	}
	f.mu.Unlock()

	result, err := f.commerce.UpdateBuyerIdentity(ctx, f.cartID, contact)
	if err != nil {
		return nil, err
	}
	if result.Cart == nil {
		if len(result.GraphQLErrors) > 0 {
			return nil, NewError(ErrCodeInternal, result.GraphQLErrors[0].Message, nil)
		}
		return nil, NewError(ErrCodeInternal, "buyer identity update returned no cart", nil)
	}

	// The update response selects stores but no cost block; totals come from
	// the offered methods. Sheets preselect the first one, so the flow
	// mirrors that default.
	f.mu.Lock()
	f.captureStoresLocked(result.Cart)
	f.total = f.subtotal
	if len(f.shippingOptions) > 0 {
		f.selectedMethodID = f.shippingOptions[0].ID
		f.total = f.shippingOptions[0].Total
	}
	update := &ShippingUpdate{Total: f.total, ShippingMethods: f.shippingOptions}
	f.mu.Unlock()
	return update, nil
}

// SelectShippingMethod implements [SheetDelegate]. An unknown method ID is
// logged and ignored; the sheet keeps its previous total.
func (f *WalletFlow) SelectShippingMethod(ctx context.Context, methodID string) (*ShippingUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var method *ShippingMethod
	for i := range f.shippingOptions {
		if f.shippingOptions[i].ID == methodID {
			method = &f.shippingOptions[i]
			break
		}
	}
	if method == nil {
		f.logger.Warn("sheet selected an unknown shipping method", "methodId", methodID)
		return nil, nil
	}

	f.selectedMethodID = methodID
	f.total = method.Total
	return &ShippingUpdate{Total: f.total, ShippingMethods: f.shippingOptions}, nil
}

// Authorize implements [SheetDelegate]. It finalizes the buyer identity with
// the full contact on single-store carts, submits the cart with the wallet
// token, and reports the outcome through the submission callback exactly once.
func (f *WalletFlow) Authorize(ctx context.Context, auth SheetAuthorization) error {
	f.mu.Lock()
	multiStore := f.hasMultipleStores
	f.mu.Unlock()

	// A multi-store cart's identity was finalized before the sheet opened;
	// the sheet collected no address to write back.
	if !multiStore {
		if _, err := f.commerce.UpdateBuyerIdentity(ctx, f.cartID, auth.ShippingContact); err != nil {
			return err
		}
	}

	billing := auth.ShippingContact
	if auth.BillingContact != nil {
		billing = *auth.BillingContact
	}

	f.mu.Lock()
	options := f.selectedOptionsLocked()
	promos := f.promoCodes
	f.state = walletAuthorized
	f.mu.Unlock()

	encodedOptions, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to encode shipping options: %w", err)
	}
	details := PaymentDetails{
		FirstName:   billing.FirstName,
		LastName:    billing.LastName,
		PhoneNumber: billing.Phone,
		Address1:    billing.Address1,
		Address2:    billing.Address2,
		City:        billing.City,
		State:       billing.ProvinceCode,
		Zip:         billing.PostalCode,
		Country:     billing.CountryCode,
		Metadata: PaymentMetadata{
			CartID:                  f.cartID,
			SelectedShippingOptions: string(encodedOptions),
			ShopperIP:               f.shopperIP,
		},
	}
	if len(promos) > 0 {
		encodedPromos, err := json.Marshal(promos)
		if err != nil {
			return fmt.Errorf("failed to encode promo codes: %w", err)
		}
		details.Metadata.ExperimentalPromoCodes = string(encodedPromos)
	}

	response, err := f.commerce.SubmitCart(ctx, SubmitCartParams{Token: auth.Token, Details: details})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.state = walletSubmitted
	f.mu.Unlock()

	if f.onCartSubmitted != nil {
		f.onCartSubmitted(response.Result, response.GraphQLErrors, f.adapter.Method())
	}
	return nil
}

// Cancel implements [SheetDelegate]. The sheet was dismissed without payment.
func (f *WalletFlow) Cancel() {
	f.mu.Lock()
	f.state = walletCartLoaded
	f.sessionID = ""
	f.selectedMethodID = ""
	f.mu.Unlock()
	f.logger.Info("payment sheet dismissed")
}

func (f *WalletFlow) fetchCart(ctx context.Context) (*Cart, error) {
	resp, err := f.commerce.GetCart(ctx, f.cartID)
	if err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		if len(resp.GraphQLErrors) > 0 {
			return nil, NewError(ErrCodeLoadFailed, resp.GraphQLErrors[0].Message, nil)
		}
		return nil, NewError(ErrCodeLoadFailed, fmt.Sprintf("cart %s not found", f.cartID), nil)
	}
	return resp.Cart, nil
}

func (f *WalletFlow) captureCartLocked(cart *Cart) {
	f.hasMultipleStores = cart.HasMultipleStores()
	f.subtotal = cart.Cost.Subtotal
	f.total = cart.Cost.Total
	if f.total.Value == "" {
		f.total = cart.Cost.Subtotal
	}
	f.captureStoresLocked(cart)
}

// captureStoresLocked refreshes per-store shipping state without touching
// money state, which only full cart reads carry.
func (f *WalletFlow) captureStoresLocked(cart *Cart) {
	f.preselected = cart.SelectedShippingOptions()
	f.shippingOptions = nil
	f.storeName = ""
	f.selectedMethodID = ""
	if !f.hasMultipleStores && len(cart.Stores) == 1 {
		store := cart.Stores[0]
		f.storeName = store.Store
		f.shippingOptions = store.Offer.ShippingMethods
		if store.Offer.SelectedShippingMethod != nil {
			f.selectedMethodID = store.Offer.SelectedShippingMethod.ID
		}
	}
}

func (f *WalletFlow) selectedOptionsLocked() []SelectedShippingOption {
	if f.hasMultipleStores {
		return f.preselected
	}
	if f.selectedMethodID != "" && f.storeName != "" {
		return []SelectedShippingOption{{Store: f.storeName, ShippingID: f.selectedMethodID}}
	}
	return f.preselected
}

func (f *WalletFlow) countryCodeLocked(cart *Cart) string {
	if cart.BuyerIdentity != nil && cart.BuyerIdentity.CountryCode != "" {
		return cart.BuyerIdentity.CountryCode
	}
	return "US"
}
