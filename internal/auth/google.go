// Package auth signs users in with Google and keeps them signed in with a
// signed session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"outreach/internal/config"
	"outreach/internal/model"
	"outreach/internal/util"
)

// Scopes requested at sign-in.
var Scopes = []string{"openid", oauth2v2.UserinfoEmailScope, oauth2v2.UserinfoProfileScope}

// GoogleOAuth performs the authorization-code flow and resolves the
// signed-in user's identity.
type GoogleOAuth struct {
	cfg         *oauth2.Config
	httpClient  *http.Client
	apiEndpoint string
}

// GoogleOption configures a GoogleOAuth.
type GoogleOption func(*GoogleOAuth)

// WithEndpoint overrides Google's authorization and token URLs.
func WithEndpoint(ep oauth2.Endpoint) GoogleOption {
	return func(g *GoogleOAuth) { g.cfg.Endpoint = ep }
}

// WithUserinfoEndpoint overrides the base URL of the userinfo API.
func WithUserinfoEndpoint(u string) GoogleOption {
	return func(g *GoogleOAuth) { g.apiEndpoint = u }
}

// WithHTTPClient sets the client used for token exchange and userinfo calls.
func WithHTTPClient(hc *http.Client) GoogleOption {
	return func(g *GoogleOAuth) {
		if hc != nil {
			g.httpClient = hc
		}
	}
}

// NewGoogleOAuth builds the OAuth client from either a downloaded
// client_secret.json (gc.CredentialsFile) or an explicit id and secret.
func NewGoogleOAuth(gc config.GoogleConfig, redirectURL string, opts ...GoogleOption) (*GoogleOAuth, error) {
	var cfg *oauth2.Config
	if gc.CredentialsFile != "" {
		b, err := os.ReadFile(gc.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials at %s: %w", gc.CredentialsFile, err)
		}
		cfg, err = google.ConfigFromJSON(b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse oauth config: %w", err)
		}
	} else {
		if gc.ClientID == "" || gc.ClientSecret == "" {
			return nil, errors.New("google client id and secret are required")
		}
		cfg = &oauth2.Config{
			ClientID:     gc.ClientID,
			ClientSecret: gc.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       Scopes,
		}
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}

	g := &GoogleOAuth{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns a copy of the underlying oauth2 configuration.
func (g *GoogleOAuth) Config() oauth2.Config { return *g.cfg }

// AuthURL is where the browser is sent to sign in.
func (g *GoogleOAuth) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (g *GoogleOAuth) context(ctx context.Context) context.Context {
	if g.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	return ctx
}

// Exchange trades an authorization code for a token and the user behind it.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (model.Identity, *oauth2.Token, error) {
	return g.exchange(ctx, g.cfg, code)
}

func (g *GoogleOAuth) exchange(ctx context.Context, cfg *oauth2.Config, code string) (model.Identity, *oauth2.Token, error) {
	tok, err := cfg.Exchange(g.context(ctx), strings.TrimSpace(code))
	if err != nil {
		return model.Identity{}, nil, fmt.Errorf("token exchange: %w", err)
	}
	id, err := g.identity(ctx, cfg, tok)
	if err != nil {
		return model.Identity{}, nil, err
	}
	return id, tok, nil
}

// Identity resolves tok to the signed-in user.
func (g *GoogleOAuth) Identity(ctx context.Context, tok *oauth2.Token) (model.Identity, error) {
	return g.identity(ctx, g.cfg, tok)
}

func (g *GoogleOAuth) identity(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (model.Identity, error) {
	opts := []option.ClientOption{option.WithHTTPClient(cfg.Client(g.context(ctx), tok))}
	if g.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.apiEndpoint))
	}
	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return model.Identity{}, fmt.Errorf("create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return model.Identity{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	email := util.NormalizeEmail(info.Email)
	if email == "" {
		return model.Identity{}, errors.New("google account has no email address")
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return model.Identity{}, fmt.Errorf("google account email %s is not verified", email)
	}
	return model.Identity{Email: email, Name: info.Name, Picture: info.Picture}, nil
}
