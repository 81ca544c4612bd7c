package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mirovoy/companion/internal/config"
)

var (
	ErrNotLoggedIn   = errors.New("not logged in, run `companion login` first")
	ErrNotConfigured = errors.New("auth is not configured, set AUTH0_DOMAIN and AUTH0_CLIENT_ID")
)

// Manager owns the credential lifecycle: browser login, cached tokens,
// refresh, and logout. Safe for concurrent use.
type Manager struct {
	cfg        config.AuthConfig
	httpClient *http.Client

	mu    sync.Mutex
	creds *Credentials
}

// NewManager creates a credential manager for the given tenant.
func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a currently valid access token, refreshing the cached
// credentials when they are stale. Returns ErrNotLoggedIn when no
// usable credentials exist.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if !m.cfg.Configured() {
		return "", ErrNotConfigured
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds == nil {
		creds, err := loadCredentials(m.cfg.CredentialsFile)
		if err != nil {
			if os.IsNotExist(err) {
				return "", ErrNotLoggedIn
			}
			return "", err
		}
		m.creds = creds
	}

	if m.creds.Valid(time.Now()) {
		return m.creds.AccessToken, nil
	}

	if m.creds.RefreshToken == "" {
		return "", ErrNotLoggedIn
	}

	refreshed, err := m.refreshGrant(ctx, m.creds.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if err := saveCredentials(m.cfg.CredentialsFile, refreshed); err != nil {
		return "", err
	}
	m.creds = refreshed

	return m.creds.AccessToken, nil
}

// Logout removes stored credentials. Missing credentials are not an
// error.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()

	if err := os.Remove(m.cfg.CredentialsFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}

// Profile describes the logged-in user as claimed by the ID token.
type Profile struct {
	Subject string
	Name    string
	Email   string
	Picture string
}

// Profile reads identity claims from the cached ID token. The claims
// are parsed without signature verification; the backend is the party
// that verifies tokens against the tenant JWKS.
func (m *Manager) Profile() (*Profile, error) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if creds == nil {
		loaded, err := loadCredentials(m.cfg.CredentialsFile)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotLoggedIn
			}
			return nil, err
		}
		creds = loaded

		m.mu.Lock()
		m.creds = creds
		m.mu.Unlock()
	}

	if creds.IDToken == "" {
		return nil, fmt.Errorf("stored credentials carry no ID token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(creds.IDToken, claims); err != nil {
		return nil, fmt.Errorf("parse ID token: %w", err)
	}

	profile := &Profile{}
	if sub, err := claims.GetSubject(); err == nil {
		profile.Subject = sub
	}
	if name, ok := claims["name"].(string); ok {
		profile.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		profile.Email = email
	}
	if picture, ok := claims["picture"].(string); ok {
		profile.Picture = picture
	}
	return profile, nil
}
