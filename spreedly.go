package ryepay

import (
	"context"
	"log/slog"
	"sync"
)

// FrameField identifies one of the hosted card-entry fields.
type FrameField string

const (
	FrameFieldNumber FrameField = "number"
	FrameFieldCVV    FrameField = "cvv"
)

// FieldType is the input type of a hosted field.
type FieldType string

const (
	FieldTypeNumber FieldType = "number"
	FieldTypeText   FieldType = "text"
	FieldTypeTel    FieldType = "tel"
)

// NumberFormat controls how the card number renders inside its frame.
type NumberFormat string

const (
	NumberFormatPretty NumberFormat = "prettyFormat"
	NumberFormatMasked NumberFormat = "maskedFormat"
)

// FrameError is an error reported by the hosted-field frames.
type FrameError struct {
	Attribute string `json:"attribute,omitempty"`
	Key       string `json:"key,omitempty"`
	Message   string `json:"message"`
}

// FieldProperties describes the validation state of the hosted fields.
type FieldProperties struct {
	CardType     string `json:"cardType"`
	ValidNumber  bool   `json:"validNumber"`
	ValidCVV     bool   `json:"validCvv"`
	NumberLength int    `json:"numberLength"`
	CVVLength    int    `json:"cvvLength"`
}

// FrameInitParams names the DOM elements the hosted fields render into.
type FrameInitParams struct {
	NumberEl string
	CVVEl    string
}

// FrameHandlers are the callback slots the tokenization SDK fires into.
// Nil handlers are simply not subscribed.
type FrameHandlers struct {
	Ready         func()
	PaymentMethod func(token string, details PaymentDetails)
	Errors        func(errs []FrameError)
	FieldEvent    func(field FrameField, eventType string, activeField FrameField, props FieldProperties)
	Validation    func(props FieldProperties)
	ConsoleError  func(err FrameError)
}

// FrameSDK is the port over the hosted-field tokenization SDK. The real SDK
// is a cross-origin iframe pair that never exposes raw card data; this
// interface covers only the surface the bridge drives.
type FrameSDK interface {
	Init(environmentKey string, params FrameInitParams) error
	TokenizeCreditCard(details PaymentDetails) error
	Subscribe(handlers FrameHandlers)
	RemoveHandlers()
	Reload() error
	Validate()

	SetStyle(field FrameField, css string)
	SetFieldType(field FrameField, fieldType FieldType)
	SetLabel(field FrameField, label string)
	SetTitle(field FrameField, title string)
	SetPlaceholder(field FrameField, placeholder string)
	SetValue(field FrameField, value int)
	SetNumberFormat(format NumberFormat)
	ToggleAutoComplete()
	TransferFocus(field FrameField)
}

// FrameProvider locates or loads the tokenization SDK. The SDK is a global
// singleton in its native environment; Existing reports a handle the
// embedding application already loaded.
type FrameProvider interface {
	// Existing returns the already-loaded SDK handle, if any.
	Existing() (FrameSDK, bool)
	// Load injects the SDK and returns its handle.
	Load(ctx context.Context) (FrameSDK, error)
}

// TokenizationBridge adapts the hosted-field SDK: initialization, event
// subscription, and field customization pass-through.
type TokenizationBridge struct {
	mu       sync.Mutex
	provider FrameProvider
	logger   *slog.Logger

	sdk         FrameSDK
	handlers    FrameHandlers
	initialized bool
	// ownsSDK is false when the embedding application loaded the SDK before
	// this bridge ran. In that case the application owns initialization and
	// event subscription; subscribing again would double-fire paymentMethod
	// and cause duplicate submissions.
	ownsSDK bool
}

// NewTokenizationBridge creates a bridge over the given provider.
func NewTokenizationBridge(provider FrameProvider, logger *slog.Logger) *TokenizationBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenizationBridge{provider: provider, logger: logger}
}

// Init loads the SDK and initializes the hosted fields. Calling Init on an
// already-initialized bridge is a reload: it re-subscribes event handlers
// without re-initializing the frames.
func (b *TokenizationBridge) Init(ctx context.Context, environmentKey string, params FrameInitParams, handlers FrameHandlers) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return b.reloadLocked(handlers)
	}

	if sdk, ok := b.provider.Existing(); ok {
		// Someone else already loaded the SDK; treat them as the owner and
		// skip re-initialization entirely.
		b.logger.Warn("tokenization SDK already present, skipping initialization")
		b.sdk = sdk
		b.initialized = true
		b.ownsSDK = false
		return nil
	}

	sdk, err := b.provider.Load(ctx)
	if err != nil {
		return WrapError(ErrCodeLoadFailed, "failed to load tokenization SDK", err)
	}

	sdk.RemoveHandlers()
	sdk.Subscribe(handlers)
	if err := sdk.Init(environmentKey, params); err != nil {
		return WrapError(ErrCodeLoadFailed, "failed to initialize hosted fields", err)
	}

	b.sdk = sdk
	b.handlers = handlers
	b.initialized = true
	b.ownsSDK = true
	b.logger.Debug("hosted fields initialized")
	return nil
}

func (b *TokenizationBridge) reloadLocked(handlers FrameHandlers) error {
	if !b.ownsSDK {
		return nil
	}
	if err := b.sdk.Reload(); err != nil {
		return WrapError(ErrCodeLoadFailed, "failed to reload hosted fields", err)
	}
	b.sdk.RemoveHandlers()
	b.sdk.Subscribe(handlers)
	b.handlers = handlers
	return nil
}

// Reload resets the hosted fields and re-subscribes the current handlers.
func (b *TokenizationBridge) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return NewError(ErrCodeNotReady, "tokenization bridge is not initialized", nil)
	}
	return b.reloadLocked(b.handlers)
}

// Tokenize asks the SDK to tokenize the entered card against the supplied
// details. The resulting token arrives via the PaymentMethod handler.
func (b *TokenizationBridge) Tokenize(details PaymentDetails) error {
	b.mu.Lock()
	sdk, ready := b.sdk, b.initialized
	b.mu.Unlock()
	if !ready {
		return NewError(ErrCodeNotReady, "tokenization bridge is not initialized", nil)
	}
	return sdk.TokenizeCreditCard(details)
}

// Validate asks the frames to report their validation status.
func (b *TokenizationBridge) Validate() {
	if sdk := b.readySDK(); sdk != nil {
		sdk.Validate()
	}
}

// Field customization pass-through

func (b *TokenizationBridge) SetStyle(field FrameField, css string) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.SetStyle(field, css)
	}
}

func (b *TokenizationBridge) SetFieldType(field FrameField, fieldType FieldType) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.SetFieldType(field, fieldType)
	}
}

func (b *TokenizationBridge) SetLabel(field FrameField, label string) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.SetLabel(field, label)
	}
}

func (b *TokenizationBridge) SetTitle(field FrameField, title string) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.SetTitle(field, title)
	}
}

func (b *TokenizationBridge) SetPlaceholder(field FrameField, placeholder string) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.SetPlaceholder(field, placeholder)
	}
}

func (b *TokenizationBridge) SetValue(field FrameField, value int) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.SetValue(field, value)
	}
}

func (b *TokenizationBridge) SetNumberFormat(format NumberFormat) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.SetNumberFormat(format)
	}
}

func (b *TokenizationBridge) ToggleAutoComplete() {
	if sdk := b.readySDK(); sdk != nil {
		sdk.ToggleAutoComplete()
	}
}

func (b *TokenizationBridge) TransferFocus(field FrameField) {
	if sdk := b.readySDK(); sdk != nil {
		sdk.TransferFocus(field)
	}
}

func (b *TokenizationBridge) readySDK() FrameSDK {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		b.logger.Warn("tokenization bridge used before initialization")
		return nil
	}
	return b.sdk
}
