package core

import (
	"strings"
	"time"
)

const DefaultRefreshSkew = 120 * time.Second

// TokenState captures the lifecycle flags derived from a stored credential.
type TokenState struct {
	ExpiresAt       time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
	NeedsRefresh    bool
}

// ResolveTokenState evaluates expiry against now with the given skew. A
// token needs refresh once now >= expiresAt - skew.
func ResolveTokenState(now time.Time, credential Credential, skew time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if skew < 0 {
		skew = 0
	}

	state := TokenState{
		HasAccessToken:  strings.TrimSpace(credential.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(credential.RefreshToken) != "",
	}
	if !state.HasAccessToken {
		state.NeedsRefresh = true
		return state
	}
	if credential.AccessTokenExpiresAt.IsZero() {
		return state
	}
	expiresAt := credential.AccessTokenExpiresAt.UTC()
	state.ExpiresAt = expiresAt
	state.IsExpired = !expiresAt.After(now)
	state.NeedsRefresh = !expiresAt.After(now.Add(skew))
	return state
}

// ShouldRefresh reports whether a refresh should run before using credential.
// Credentials without a refresh token are never refreshed here.
func ShouldRefresh(now time.Time, credential Credential, skew time.Duration) bool {
	state := ResolveTokenState(now, credential, skew)
	return state.HasRefreshToken && state.NeedsRefresh
}
