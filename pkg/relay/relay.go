// Package relay implements the server-side half of Apple Pay merchant
// validation. The wallet network only accepts validation calls made with the
// merchant's client certificate, so browser checkouts post the validation URL
// here and the relay performs the certificate-bearing exchange.
package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ValidationRequest is the body browser checkouts post to the relay.
type ValidationRequest struct {
	AppleValidationURL  string `json:"appleValidationUrl" binding:"required"`
	MerchantDisplayName string `json:"merchantDisplayName"`
	MerchantDomain      string `json:"merchantDomain"`
}

// merchantSessionRequest is the payload forwarded to the wallet network.
type merchantSessionRequest struct {
	MerchantIdentifier string `json:"merchantIdentifier"`
	DisplayName        string `json:"displayName"`
	Initiative         string `json:"initiative"`
	InitiativeContext  string `json:"initiativeContext"`
}

// HandlerOptions is the options for the validation Handler.
type HandlerOptions struct {
	// HTTPClient must carry the merchant TLS certificate issued by the
	// wallet network.
	HTTPClient *http.Client
	Logger     *slog.Logger
	// AllowedHostSuffix restricts which validation hosts the relay will
	// call. Validation URLs come from the untrusted browser, so anything
	// outside the wallet network's gateway domain is rejected.
	AllowedHostSuffix string
}

// Option is the type for the options for the validation Handler.
type Option func(*HandlerOptions)

// WithHTTPClient sets the certificate-bearing client used for the exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(options *HandlerOptions) {
		options.HTTPClient = client
	}
}

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(options *HandlerOptions) {
		options.Logger = logger
	}
}

// WithAllowedHostSuffix overrides the accepted validation host suffix.
func WithAllowedHostSuffix(suffix string) Option {
	return func(options *HandlerOptions) {
		options.AllowedHostSuffix = suffix
	}
}

// Handler returns a gin handler that exchanges a validation URL for a
// merchant session on behalf of the given merchant identifier.
func Handler(merchantIdentifier string, opts ...Option) gin.HandlerFunc {
	options := &HandlerOptions{
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		Logger:            slog.Default(),
		AllowedHostSuffix: ".apple.com",
	}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *gin.Context) {
		var req ValidationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		target, err := url.Parse(req.AppleValidationURL)
		if err != nil || target.Scheme != "https" || !strings.HasSuffix(target.Hostname(), options.AllowedHostSuffix) {
			options.Logger.Warn("rejected validation url", "url", req.AppleValidationURL)
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation url is not a wallet network endpoint"})
			return
		}

		body, err := json.Marshal(merchantSessionRequest{
			MerchantIdentifier: merchantIdentifier,
			DisplayName:        req.MerchantDisplayName,
			Initiative:         "web",
			InitiativeContext:  req.MerchantDomain,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		upstream, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, target.String(), bytes.NewReader(body))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		upstream.Header.Set("Content-Type", "application/json")

		resp, err := options.HTTPClient.Do(upstream)
		if err != nil {
			options.Logger.Error("merchant session exchange failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "merchant session exchange failed"})
			return
		}
		defer resp.Body.Close()

		session, err := io.ReadAll(resp.Body)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "merchant session exchange failed"})
			return
		}
		if resp.StatusCode != http.StatusOK {
			options.Logger.Error("merchant session exchange rejected",
				"status", resp.StatusCode, "body", string(session))
			c.JSON(http.StatusBadGateway, gin.H{"error": "merchant session exchange rejected"})
			return
		}

		c.Data(http.StatusOK, "application/json", session)
	}
}

// Router builds a ready-to-run engine exposing the validation endpoint at
// POST /apple-pay/validate-merchant.
func Router(merchantIdentifier string, opts ...Option) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/apple-pay/validate-merchant", Handler(merchantIdentifier, opts...))
	return router
}
