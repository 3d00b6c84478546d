// Package auth exchanges a long-lived refresh token for short-lived access
// tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// GoogleTokenURL is the default token endpoint
const GoogleTokenURL = "https://oauth2.googleapis.com/token"

// Credentials identify the OAuth client and the refresh token it was granted
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenStore persists an operator-rotated refresh token. LoadRefreshToken
// returns an empty token when none has been stored.
type TokenStore interface {
	SaveRefreshToken(ctx context.Context, token string, updatedAt time.Time) error
	LoadRefreshToken(ctx context.Context) (token string, updatedAt time.Time, err error)
}

// Config configures a Provider. Only Credentials are required.
type Config struct {
	Credentials Credentials
	TokenURL    string
	HTTPClient  *http.Client
	Store       TokenStore
}

// Provider fetches a fresh access token on every call; nothing is cached
type Provider struct {
	creds      Credentials
	tokenURL   string
	httpClient *http.Client
	store      TokenStore
}

// NewProvider creates a Provider
func NewProvider(cfg Config) *Provider {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{
		creds:      cfg.Credentials,
		tokenURL:   tokenURL,
		httpClient: httpClient,
		store:      cfg.Store,
	}
}

// AccessToken performs a refresh-token grant
func (p *Provider) AccessToken(ctx context.Context) (*oauth2.Token, error) {
	refreshToken, err := p.refreshToken(ctx)
	if err != nil {
		return nil, err
	}

	if p.creds.ClientID == "" || p.creds.ClientSecret == "" || refreshToken == "" {
		return nil, &Error{Kind: ErrMissingCredential, Cause: missingFields(p.creds.ClientID, p.creds.ClientSecret, refreshToken)}
	}

	conf := &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			slog.Error("Token endpoint rejected refresh", "status", retrieveErr.Response.StatusCode, "error_code", retrieveErr.ErrorCode)
		}
		return nil, &Error{Kind: ErrRefreshRejected, Cause: err}
	}

	slog.Debug("Obtained access token", "expiry", token.Expiry)
	return token, nil
}

// RotateRefreshToken validates and stores a new refresh token. Stored tokens
// take precedence over the configured one.
func (p *Provider) RotateRefreshToken(ctx context.Context, token string, now time.Time) error {
	if p.store == nil {
		return fmt.Errorf("rotating refresh token: no token store configured")
	}
	if err := ValidateRefreshToken(token); err != nil {
		return err
	}
	if err := p.store.SaveRefreshToken(ctx, token, now); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}
	slog.Info("Refresh token rotated")
	return nil
}

// Status reports where the refresh token comes from and how long is left of
// its validity window
func (p *Provider) Status(ctx context.Context, now time.Time) (Status, error) {
	if p.store != nil {
		token, updatedAt, err := p.store.LoadRefreshToken(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("loading refresh token: %w", err)
		}
		if token != "" {
			return newStatus(SourceStore, updatedAt, now), nil
		}
	}
	if p.creds.RefreshToken != "" {
		return Status{Configured: true, Source: SourceConfig}, nil
	}
	return Status{}, nil
}

func (p *Provider) refreshToken(ctx context.Context) (string, error) {
	if p.store != nil {
		token, _, err := p.store.LoadRefreshToken(ctx)
		if err != nil {
			return "", fmt.Errorf("loading refresh token: %w", err)
		}
		if token != "" {
			return token, nil
		}
	}
	return p.creds.RefreshToken, nil
}

func missingFields(clientID, clientSecret, refreshToken string) error {
	var missing []error
	if clientID == "" {
		missing = append(missing, errors.New("client id is empty"))
	}
	if clientSecret == "" {
		missing = append(missing, errors.New("client secret is empty"))
	}
	if refreshToken == "" {
		missing = append(missing, errors.New("refresh token is empty"))
	}
	return errors.Join(missing...)
}
