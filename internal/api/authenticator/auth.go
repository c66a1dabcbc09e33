package authenticator

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/curaious/xm/internal/config"
	"golang.org/x/oauth2"
)

const issuer = "xm-workspace-server"

type Authenticator struct {
	oauth2.Config
	provider *oidc.Provider

	jwtSecret   []byte
	tokenTTL    time.Duration
	stateSecret []byte
	redirectURL string
}

// New builds an Authenticator. OIDC login is only enabled when OIDC_ISSUER is set.
func New(ctx context.Context, conf *config.Config) (*Authenticator, error) {
	if conf.JWT_SECRET == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	a := &Authenticator{
		jwtSecret:   []byte(conf.JWT_SECRET),
		tokenTTL:    conf.JWT_TTL,
		stateSecret: []byte(conf.STATE_SECRET),
		redirectURL: conf.OIDC_REDIRECT_URL,
	}
	if len(a.stateSecret) == 0 {
		a.stateSecret = a.jwtSecret
	}

	if conf.OIDC_ISSUER == "" {
		return a, nil
	}

	provider, err := oidc.NewProvider(ctx, conf.OIDC_ISSUER)
	if err != nil {
		return nil, err
	}

	a.provider = provider
	a.Config = oauth2.Config{
		ClientID:     conf.OIDC_CLIENT_ID,
		ClientSecret: conf.OIDC_CLIENT_SECRET,
		RedirectURL:  conf.OIDC_CALLBACK_URL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return a, nil
}

func (a *Authenticator) OIDCEnabled() bool {
	return a.provider != nil
}

// PostLoginRedirect is where the browser lands after a successful OIDC login
func (a *Authenticator) PostLoginRedirect() string {
	return a.redirectURL
}

func (a *Authenticator) TokenTTL() time.Duration {
	return a.tokenTTL
}

// VerifyIDToken verifies that an *oauth2.Token carries a valid *oidc.IDToken.
func (a *Authenticator) VerifyIDToken(ctx context.Context, token *oauth2.Token) (*oidc.IDToken, error) {
	if a.provider == nil {
		return nil, errors.New("oidc login is not configured")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token field in oauth2 token")
	}

	return a.provider.Verifier(&oidc.Config{ClientID: a.ClientID}).Verify(ctx, rawIDToken)
}
