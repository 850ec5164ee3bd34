package exchange

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const certLoginURL = "https://identitysso-cert.betfair.com/api/certlogin"

// AuthService handles certificate-based exchange authentication
type AuthService struct {
	client *BetfairClient
	logger *logrus.Logger
}

// LoginResponse represents the response from certificate login
type LoginResponse struct {
	SessionToken string `json:"sessionToken"`
	LoginStatus  string `json:"loginStatus"`
}

// NewAuthService creates a new auth service
func NewAuthService(client *BetfairClient, logger *logrus.Logger) *AuthService {
	return &AuthService{
		client: client,
		logger: logger,
	}
}

// Login performs certificate-based authentication with the exchange
func (a *AuthService) Login(ctx context.Context) error {
	cfg := a.client.GetConfig()

	a.logger.WithField("username", cfg.Username).Info("Attempting certificate login")

	loginResp, err := a.loginInternal(ctx)
	if err != nil {
		return NewAuthenticationError("login request failed", err)
	}

	if loginResp.LoginStatus != "SUCCESS" {
		return NewAuthenticationError(fmt.Sprintf("login failed: %s", loginResp.LoginStatus), nil)
	}

	if loginResp.SessionToken == "" {
		return NewAuthenticationError("no session token in response", nil)
	}

	// Session tokens are valid for roughly 12 hours
	expiry := time.Now().Add(12 * time.Hour)
	a.client.SetSessionToken(loginResp.SessionToken, expiry)

	a.logger.Info("Login successful, session token obtained")
	return nil
}

// RefreshSession refreshes the session token before expiration
func (a *AuthService) RefreshSession(ctx context.Context) error {
	if !a.client.NeedsRefresh() {
		return nil
	}

	a.logger.Info("Refreshing session token")
	return a.Login(ctx)
}

// Logout invalidates the current session
func (a *AuthService) Logout(ctx context.Context) error {
	a.client.SetSessionToken("", time.Time{})
	a.logger.Info("Logged out from exchange")
	return nil
}

// loginInternal performs the actual certificate login request
func (a *AuthService) loginInternal(ctx context.Context) (*LoginResponse, error) {
	cfg := a.client.GetConfig()

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	formData := url.Values{}
	formData.Set("username", cfg.Username)
	formData.Set("password", cfg.Password)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		certLoginURL,
		bytes.NewBufferString(formData.Encode()),
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Application", cfg.AppKey)

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
		Timeout: 30 * time.Second,
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return nil, err
	}

	return &loginResp, nil
}

// KeepAlive runs session refresh on a ticker until the context is cancelled
func (a *AuthService) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RefreshSession(ctx); err != nil {
				a.logger.WithError(err).Error("Session refresh failed")
			}
		}
	}
}
