package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func postValidation(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/apple-pay/validate-merchant", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerExchangesMerchantSession(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]string
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "merchant.example.shop", req["merchantIdentifier"])
		assert.Equal(t, "Example Shop", req["displayName"])
		assert.Equal(t, "web", req["initiative"])
		assert.Equal(t, "shop.example.com", req["initiativeContext"])
		_, _ = w.Write([]byte(`{"merchantSessionIdentifier": "msi_1"}`))
	}))
	defer upstream.Close()

	upstreamURL, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	router := Router("merchant.example.shop",
		WithHTTPClient(upstream.Client()),
		WithAllowedHostSuffix(upstreamURL.Hostname()))

	w := postValidation(router, `{
		"appleValidationUrl": "`+upstream.URL+`/paymentservices/startSession",
		"merchantDisplayName": "Example Shop",
		"merchantDomain": "shop.example.com"
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"merchantSessionIdentifier": "msi_1"}`, w.Body.String())
}

func TestHandlerPropagatesUpstreamRejection(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad merchant", http.StatusForbidden)
	}))
	defer upstream.Close()

	upstreamURL, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	router := Router("merchant.example.shop",
		WithHTTPClient(upstream.Client()),
		WithAllowedHostSuffix(upstreamURL.Hostname()))

	w := postValidation(router, `{"appleValidationUrl": "`+upstream.URL+`"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandlerRejectsNonWalletHosts(t *testing.T) {
	router := Router("merchant.example.shop")

	w := postValidation(router, `{"appleValidationUrl": "https://evil.example.com/startSession"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRejectsPlainHTTP(t *testing.T) {
	router := Router("merchant.example.shop")

	w := postValidation(router, `{"appleValidationUrl": "http://apple-pay-gateway.apple.com/startSession"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRejectsMissingValidationURL(t *testing.T) {
	router := Router("merchant.example.shop")

	w := postValidation(router, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
