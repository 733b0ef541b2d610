// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the scorer service.
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it with the configured AuthProvider, and stores the
// resulting AuthInfo in the Gin context for downstream handlers.
//
// With NopAuthProvider (the default) every request authenticates as
// "local-user", which lets single-operator deployments and the CLI work
// without any identity infrastructure. Hosted deployments plug in a real
// provider.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authInfoKey is the context key for storing AuthInfo. A package-scoped
// constant prevents collisions with other context values.
const authInfoKey = "lexgate_auth_info"

// AuthInfo describes an authenticated caller.
type AuthInfo struct {
	Subject string
	Roles   []string
}

// AuthProvider validates bearer tokens.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
	// AllowAnonymous reports whether requests without a token pass.
	AllowAnonymous() bool
}

// =============================================================================
// Nop provider
// =============================================================================

// NopAuthProvider authenticates everything as a local admin.
type NopAuthProvider struct{}

func (NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{Subject: "local-user", Roles: []string{"admin"}}, nil
}

func (NopAuthProvider) AllowAnonymous() bool { return true }

// =============================================================================
// Static token provider
// =============================================================================

// StaticTokenProvider accepts one pre-shared token. Enough for small
// team deployments behind a proxy.
type StaticTokenProvider struct {
	Token string
}

func (p StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if token != p.Token {
		return nil, errors.New("invalid token")
	}
	return &AuthInfo{Subject: "token-user", Roles: []string{"reviewer"}}, nil
}

func (p StaticTokenProvider) AllowAnonymous() bool { return false }

// =============================================================================
// Middleware
// =============================================================================

// SetAuthInfo stores the authenticated caller in the Gin context.
func SetAuthInfo(c *gin.Context, info *AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated caller, or nil when the
// request was anonymous.
func GetAuthInfo(c *gin.Context) *AuthInfo {
	value, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, _ := value.(*AuthInfo)
	return info
}

// AuthMiddleware validates the Authorization header with the provider.
func AuthMiddleware(provider AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			if provider.AllowAnonymous() {
				info, _ := provider.Validate(c.Request.Context(), "")
				SetAuthInfo(c, info)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		SetAuthInfo(c, info)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
