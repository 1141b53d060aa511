package ryepay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrameSDK struct {
	FrameSDK

	initCalls      int
	initKey        string
	initParams     FrameInitParams
	initErr        error
	reloadCalls    int
	reloadErr      error
	subscribeCalls int
	removeCalls    int
	handlers       FrameHandlers
	tokenized      []PaymentDetails
}

func (f *fakeFrameSDK) Init(environmentKey string, params FrameInitParams) error {
	f.initCalls++
	f.initKey = environmentKey
	f.initParams = params
	return f.initErr
}

func (f *fakeFrameSDK) TokenizeCreditCard(details PaymentDetails) error {
	f.tokenized = append(f.tokenized, details)
	return nil
}

func (f *fakeFrameSDK) Subscribe(handlers FrameHandlers) {
	f.subscribeCalls++
	f.handlers = handlers
}

func (f *fakeFrameSDK) RemoveHandlers() { f.removeCalls++ }

func (f *fakeFrameSDK) Reload() error {
	f.reloadCalls++
	return f.reloadErr
}

type fakeFrameProvider struct {
	existing *fakeFrameSDK
	loaded   *fakeFrameSDK
	loadErr  error
}

func (p *fakeFrameProvider) Existing() (FrameSDK, bool) {
	if p.existing == nil {
		return nil, false
	}
	return p.existing, true
}

func (p *fakeFrameProvider) Load(context.Context) (FrameSDK, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return p.loaded, nil
}

func TestBridgeInitSubscribesThenInitializes(t *testing.T) {
	sdk := &fakeFrameSDK{}
	bridge := NewTokenizationBridge(&fakeFrameProvider{loaded: sdk}, nil)

	var ready bool
	err := bridge.Init(context.Background(), "env_key",
		FrameInitParams{NumberEl: "number", CVVEl: "cvv"},
		FrameHandlers{Ready: func() { ready = true }})
	require.NoError(t, err)

	assert.Equal(t, 1, sdk.initCalls)
	assert.Equal(t, "env_key", sdk.initKey)
	assert.Equal(t, "number", sdk.initParams.NumberEl)
	assert.Equal(t, 1, sdk.subscribeCalls)
	assert.Equal(t, 1, sdk.removeCalls)

	sdk.handlers.Ready()
	assert.True(t, ready)
}

func TestBridgeSecondInitReloads(t *testing.T) {
	sdk := &fakeFrameSDK{}
	bridge := NewTokenizationBridge(&fakeFrameProvider{loaded: sdk}, nil)
	params := FrameInitParams{NumberEl: "number", CVVEl: "cvv"}

	require.NoError(t, bridge.Init(context.Background(), "env_key", params, FrameHandlers{}))
	require.NoError(t, bridge.Init(context.Background(), "env_key", params, FrameHandlers{}))

	assert.Equal(t, 1, sdk.initCalls, "frames initialize once")
	assert.Equal(t, 1, sdk.reloadCalls)
	assert.Equal(t, 2, sdk.subscribeCalls, "handlers re-subscribe on reload")
}

func TestBridgeAdoptsAlreadyLoadedSDK(t *testing.T) {
	existing := &fakeFrameSDK{}
	bridge := NewTokenizationBridge(&fakeFrameProvider{existing: existing}, nil)

	err := bridge.Init(context.Background(), "env_key", FrameInitParams{}, FrameHandlers{})
	require.NoError(t, err)

	assert.Zero(t, existing.initCalls, "embedder-owned SDK is not re-initialized")
	assert.Zero(t, existing.subscribeCalls, "embedder-owned SDK keeps its own handlers")

	// Reload on an adopted SDK is a no-op for the same reason.
	require.NoError(t, bridge.Reload())
	assert.Zero(t, existing.reloadCalls)
}

func TestBridgeLoadFailure(t *testing.T) {
	bridge := NewTokenizationBridge(&fakeFrameProvider{loadErr: errors.New("network down")}, nil)

	err := bridge.Init(context.Background(), "env_key", FrameInitParams{}, FrameHandlers{})
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeLoadFailed, coded.Code)
}

func TestBridgeTokenizeBeforeInit(t *testing.T) {
	bridge := NewTokenizationBridge(&fakeFrameProvider{loaded: &fakeFrameSDK{}}, nil)

	err := bridge.Tokenize(PaymentDetails{})
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeNotReady, coded.Code)
}

func TestBridgeTokenizePassesDetails(t *testing.T) {
	sdk := &fakeFrameSDK{}
	bridge := NewTokenizationBridge(&fakeFrameProvider{loaded: sdk}, nil)
	require.NoError(t, bridge.Init(context.Background(), "env_key", FrameInitParams{}, FrameHandlers{}))

	details := PaymentDetails{FirstName: "Ada", Metadata: PaymentMetadata{CartID: "cart_1"}}
	require.NoError(t, bridge.Tokenize(details))
	require.Len(t, sdk.tokenized, 1)
	assert.Equal(t, "cart_1", sdk.tokenized[0].Metadata.CartID)
}
