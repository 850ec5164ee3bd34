package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/config"
	"github.com/yourusername/dutch-better/internal/httpx"
	"github.com/yourusername/dutch-better/internal/metrics"
)

// BetfairClient implements the Client interface against Betfair API-NG
type BetfairClient struct {
	httpClient   *httpx.Client
	config       *config.ExchangeConfig
	bettingURL   string
	accountURL   string
	appKey       string
	sessionToken string
	tokenExpiry  time.Time
	mu           sync.RWMutex
	logger       *logrus.Logger
}

// JSONRPCRequest represents a JSON-RPC request
type JSONRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
	ID      int                    `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC response
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// JSONRPCError represents a JSON-RPC error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// NewBetfairClient creates a new Betfair API client
func NewBetfairClient(
	cfg *config.ExchangeConfig,
	httpClient *httpx.Client,
	logger *logrus.Logger,
) *BetfairClient {
	return &BetfairClient{
		httpClient: httpClient,
		config:     cfg,
		bettingURL: cfg.APIURL,
		// The account API lives on a sibling endpoint of the betting API
		accountURL: strings.Replace(cfg.APIURL, "/betting/", "/account/", 1),
		appKey:     cfg.AppKey,
		logger:     logger,
	}
}

// makeRequest performs a JSON-RPC request against the betting endpoint
func (c *BetfairClient) makeRequest(
	ctx context.Context,
	method string,
	params map[string]interface{},
) (json.RawMessage, error) {
	return c.makeRequestTo(ctx, c.bettingURL, method, params)
}

// makeAccountRequest performs a JSON-RPC request against the account endpoint
func (c *BetfairClient) makeAccountRequest(
	ctx context.Context,
	method string,
	params map[string]interface{},
) (json.RawMessage, error) {
	return c.makeRequestTo(ctx, c.accountURL, method, params)
}

func (c *BetfairClient) makeRequestTo(
	ctx context.Context,
	url string,
	method string,
	params map[string]interface{},
) (json.RawMessage, error) {
	c.mu.RLock()
	sessionToken := c.sessionToken
	c.mu.RUnlock()

	if sessionToken == "" {
		return nil, NewAuthenticationError("no active session token", nil)
	}

	reqBody := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Application", c.appKey)
	req.Header.Set("X-Authentication", sessionToken)

	c.logger.WithField("method", method).Debug("Exchange API request")

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		metrics.ExchangeErrorsTotal.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var jsonResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&jsonResp); err != nil {
		metrics.ExchangeErrorsTotal.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if jsonResp.Error != nil {
		metrics.ExchangeErrorsTotal.WithLabelValues(method).Inc()
		return nil, MapAPIError(jsonResp.Error.Data, jsonResp.Error.Message, c.logger)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ExchangeErrorsTotal.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return jsonResp.Result, nil
}

// SetSessionToken sets the session token for API requests
func (c *BetfairClient) SetSessionToken(token string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = token
	c.tokenExpiry = expiry
}

// GetSessionToken returns the current session token
func (c *BetfairClient) GetSessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

// IsAuthenticated checks if the client has an active session
func (c *BetfairClient) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken != "" && time.Now().Before(c.tokenExpiry)
}

// NeedsRefresh checks if the session token needs refreshing
func (c *BetfairClient) NeedsRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// Refresh if expiry is within 5 minutes
	return time.Now().Add(5 * time.Minute).After(c.tokenExpiry)
}

// GetStreamURL returns the stream API URL
func (c *BetfairClient) GetStreamURL() string {
	return c.config.StreamURL
}

// GetAppKey returns the app key
func (c *BetfairClient) GetAppKey() string {
	return c.appKey
}

// GetConfig returns the exchange configuration
func (c *BetfairClient) GetConfig() *config.ExchangeConfig {
	return c.config
}

// accountFundsResponse is the getAccountFunds result shape
type accountFundsResponse struct {
	AvailableToBetBalance float64 `json:"availableToBetBalance"`
	Exposure              float64 `json:"exposure"`
	RetainedCommission    float64 `json:"retainedCommission"`
	ExposureLimit         float64 `json:"exposureLimit"`
}

// AccountBalance returns the available-to-bet account balance
func (c *BetfairClient) AccountBalance(ctx context.Context) (float64, error) {
	result, err := c.makeAccountRequest(ctx, "getAccountFunds", map[string]interface{}{})
	if err != nil {
		return 0, err
	}

	var funds accountFundsResponse
	if err := json.Unmarshal(result, &funds); err != nil {
		return 0, fmt.Errorf("failed to parse account funds response: %w", err)
	}

	c.logger.WithField("balance", funds.AvailableToBetBalance).Debug("Account funds retrieved")
	return funds.AvailableToBetBalance, nil
}
