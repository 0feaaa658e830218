package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the HTTP endpoint for session negotiation.
const DefaultBaseURL = "https://api.openai.com/v1/realtime"

// DefaultModel is used when the caller does not pick one.
const DefaultModel = "gpt-4o-realtime-preview"

// SessionOptions selects the remote session behavior.
type SessionOptions struct {
	Model        string
	Voice        string
	Instructions string
}

// Config holds the negotiator configuration.
type Config struct {
	APIKey     string
	BaseURL    string // defaults to DefaultBaseURL
	Session    SessionOptions
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client negotiates realtime sessions: it performs the credential exchange and
// the signaling handshake, and hands back a ready-to-use Transport. All
// failures are fatal NegotiationErrors; nothing is retried.
type Client struct {
	apiKey     string
	baseURL    string
	session    SessionOptions
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a session negotiator.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("realtime: API key required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Session.Model == "" {
		cfg.Session.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		session:    cfg.Session,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

// ephemeralTokenResponse is the session creation API response.
type ephemeralTokenResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// ephemeralToken exchanges the API key for a short-lived session token.
func (c *Client) ephemeralToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model": c.session.Model,
		"voice": c.session.Voice,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("session create returned %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp ephemeralTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.ClientSecret.Value == "" {
		return "", fmt.Errorf("session create returned no client secret")
	}

	c.logger.Debug("ephemeral session token obtained", "session_id", tokenResp.ID)
	return tokenResp.ClientSecret.Value, nil
}

// exchangeSDP posts the local SDP offer and returns the remote answer.
func (c *Client) exchangeSDP(ctx context.Context, token, offerSDP string) (string, error) {
	url := fmt.Sprintf("%s?model=%s", c.baseURL, c.session.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offerSDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("SDP exchange returned %d: %s", resp.StatusCode, string(respBody))
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(answer), nil
}

// websocketURL derives the websocket endpoint from the HTTP base URL.
func (c *Client) websocketURL() string {
	url := c.baseURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return fmt.Sprintf("%s?model=%s", url, c.session.Model)
}
