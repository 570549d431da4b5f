// Package client is a typed HTTP wrapper for internal/server's pool
// control surface, used by cmd/poolctl (SPEC_FULL §3 "HTTP client for the
// CLI").
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Client talks to a running poolctl serve instance over HTTP.
type Client struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Logger    *slog.Logger
	TLS       *TLSClientConfig
	Insecure  bool
}

// TLSClientConfig holds TLS configuration for the client transport.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{BaseURL: "http://localhost:8080", Timeout: 10 * time.Second}
}

// New creates a new pool API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL:   config.BaseURL,
		authToken: config.AuthToken,
		logger:    config.Logger,
		client:    &http.Client{Timeout: config.Timeout, Transport: transport},
	}
}

// Status fetches GET /pool/status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/pool/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Inspect fetches GET /pool/info and returns the raw XML snapshot.
func (c *Client) Inspect(ctx context.Context, includeSecrets bool) ([]byte, error) {
	url := c.baseURL + "/pool/info"
	if includeSecrets {
		url += "?secrets=1"
	}
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.errorFromResponse(resp); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return buf.Bytes(), nil
}

// DetachProcess calls POST /pool/detach_process?gupid=....
func (c *Client) DetachProcess(ctx context.Context, gupid string) error {
	url := fmt.Sprintf("%s/pool/detach_process?gupid=%s", c.baseURL, gupid)
	return c.doRequest(ctx, http.MethodPost, url, nil)
}

// DisableProcess calls POST /pool/disable_process?gupid=....
func (c *Client) DisableProcess(ctx context.Context, gupid string) (*DisableResponse, error) {
	var out DisableResponse
	url := fmt.Sprintf("/pool/disable_process?gupid=%s", gupid)
	if err := c.doJSON(ctx, http.MethodPost, url, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetachSupergroupByName calls POST /pool/detach_supergroup?name=....
func (c *Client) DetachSupergroupByName(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/pool/detach_supergroup?name=%s", c.baseURL, name)
	return c.doRequest(ctx, http.MethodPost, url, nil)
}

// DetachSupergroupBySecret calls POST /pool/detach_supergroup?secret=....
func (c *Client) DetachSupergroupBySecret(ctx context.Context, secret string) error {
	url := fmt.Sprintf("%s/pool/detach_supergroup?secret=%s", c.baseURL, secret)
	return c.doRequest(ctx, http.MethodPost, url, nil)
}

// Restart calls POST /pool/restart?app_root=...&scope=....
func (c *Client) Restart(ctx context.Context, appRoot, scope string) error {
	url := fmt.Sprintf("%s/pool/restart?app_root=%s&scope=%s", c.baseURL, appRoot, scope)
	return c.doRequest(ctx, http.MethodPost, url, nil)
}

// SetMax calls POST /pool/set_max with a JSON body.
func (c *Client) SetMax(ctx context.Context, max int) error {
	data, err := json.Marshal(SetMaxRequest{Max: max})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/pool/set_max", data)
}

// --- transport plumbing ---

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body []byte) error {
	resp, err := c.do(ctx, method, url, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return c.errorFromResponse(resp)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.do(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.errorFromResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errResp.Error)
}
