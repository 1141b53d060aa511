package ryepay

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Environment identifies which commerce API backend to target.
type Environment string

const (
	EnvironmentLocal      Environment = "local"
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

// environmentConfig binds a credential audience to its GraphQL endpoint.
type environmentConfig struct {
	Audience string
	URL      string
}

// The environment is determined by what the server issued, not by client
// configuration, so a staging credential can never be replayed against
// production.
var environments = map[Environment]environmentConfig{
	EnvironmentLocal: {
		Audience: "dev.api.rye.com",
		URL:      "http://localhost:3000/v1/query",
	},
	EnvironmentStaging: {
		Audience: "staging.graphql.api.rye.com",
		URL:      "https://staging.graphql.api.rye.com/v1/query",
	},
	EnvironmentProduction: {
		Audience: "graphql.api.rye.com",
		URL:      "https://graphql.api.rye.com/v1/query",
	},
}

// TokenProvider is the application-supplied credential generator. It returns
// a bearer credential whose audience claim selects the backend environment.
type TokenProvider func(ctx context.Context) (string, error)

// RequestOptions carries the per-request authentication material resolved
// from the current credential.
type RequestOptions struct {
	Headers  map[string]string
	Endpoint string
}

// AuthProvider turns a credential generator into per-request
// {headers, endpoint} pairs. The credential is decoded without verifying its
// signature; verification is the server's job.
type AuthProvider struct {
	generateToken TokenProvider
}

// NewAuthProvider creates an auth provider backed by the given generator.
func NewAuthProvider(generate TokenProvider) *AuthProvider {
	return &AuthProvider{generateToken: generate}
}

// ResolveRequest invokes the credential generator, resolves the target
// environment from the credential's audience claim, and returns a bearer
// header plus the resolved endpoint.
func (a *AuthProvider) ResolveRequest(ctx context.Context) (RequestOptions, error) {
	if a == nil || a.generateToken == nil {
		return RequestOptions{}, NewError(ErrCodeInternal, "no credential generator registered", nil)
	}

	token, err := a.generateToken(ctx)
	if err != nil {
		return RequestOptions{}, WrapError(ErrCodeBadAuthorization, "credential generator failed", err)
	}

	env, err := resolveEnvironment(token)
	if err != nil {
		return RequestOptions{}, err
	}

	return RequestOptions{
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
		Endpoint: environments[env].URL,
	}, nil
}

// resolveEnvironment decodes the credential and maps its audience claim onto
// the fixed environment table.
func resolveEnvironment(token string) (Environment, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", WrapError(ErrCodeBadAuthorization, "credential is not a well-formed JWT", err)
	}

	audience, err := claims.GetAudience()
	if err != nil || len(audience) == 0 {
		return "", NewError(ErrCodeBadAuthorization, "credential carries no audience claim", nil)
	}

	for env, cfg := range environments {
		for _, aud := range audience {
			if aud == cfg.Audience {
				return env, nil
			}
		}
	}

	return "", NewError(ErrCodeBadAuthorization,
		fmt.Sprintf("audience %q matches no configured environment", audience[0]), nil)
}
