package ryepay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forgeJWT builds an unsigned credential with the given audience. The client
// never verifies signatures, so the encoded segments are all that matters.
func forgeJWT(t *testing.T, audience string) string {
	t.Helper()
	encode := func(v interface{}) string {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	header := encode(map[string]string{"alg": "RS256", "typ": "JWT"})
	claims := encode(map[string]interface{}{"aud": audience, "sub": "test"})
	return fmt.Sprintf("%s.%s.sig", header, claims)
}

func staticTokenProvider(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

func TestResolveRequestRoutesByAudience(t *testing.T) {
	tests := []struct {
		name     string
		audience string
		endpoint string
	}{
		{"local", "dev.api.rye.com", "http://localhost:3000/v1/query"},
		{"staging", "staging.graphql.api.rye.com", "https://staging.graphql.api.rye.com/v1/query"},
		{"production", "graphql.api.rye.com", "https://graphql.api.rye.com/v1/query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := forgeJWT(t, tt.audience)
			auth := NewAuthProvider(staticTokenProvider(token))

			opts, err := auth.ResolveRequest(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, opts.Endpoint)
			assert.Equal(t, "Bearer "+token, opts.Headers["Authorization"])
		})
	}
}

func TestResolveRequestMalformedCredential(t *testing.T) {
	auth := NewAuthProvider(staticTokenProvider("not-a-jwt"))

	_, err := auth.ResolveRequest(context.Background())
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeBadAuthorization, coded.Code)
}

func TestResolveRequestUnknownAudience(t *testing.T) {
	auth := NewAuthProvider(staticTokenProvider(forgeJWT(t, "api.example.com")))

	_, err := auth.ResolveRequest(context.Background())
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeBadAuthorization, coded.Code)
}

func TestResolveRequestMissingAudience(t *testing.T) {
	encode := func(v interface{}) string {
		raw, _ := json.Marshal(v)
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	token := fmt.Sprintf("%s.%s.sig",
		encode(map[string]string{"alg": "RS256", "typ": "JWT"}),
		encode(map[string]interface{}{"sub": "test"}))
	auth := NewAuthProvider(staticTokenProvider(token))

	_, err := auth.ResolveRequest(context.Background())
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeBadAuthorization, coded.Code)
}

func TestResolveRequestGeneratorFailure(t *testing.T) {
	cause := errors.New("backend unavailable")
	auth := NewAuthProvider(func(context.Context) (string, error) {
		return "", cause
	})

	_, err := auth.ResolveRequest(context.Background())
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeBadAuthorization, coded.Code)
	assert.ErrorIs(t, err, cause)
}

func TestResolveRequestNoGenerator(t *testing.T) {
	auth := NewAuthProvider(nil)

	_, err := auth.ResolveRequest(context.Background())
	require.Error(t, err)
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInternal, coded.Code)
}
