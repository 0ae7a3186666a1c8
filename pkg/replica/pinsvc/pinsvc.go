// Package pinsvc implements the replica port against a hosted pinning
// service with a Pinata-style HTTP API (bearer token, multipart upload to
// pinFileToIPFS, DELETE to unpin).
package pinsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/carbonledger/evidenced/pkg/replica"
)

// Client implements replica.Pinner against a hosted pinning service.
type Client struct {
	apiURL     string
	gatewayURL string
	apiKey     string
	httpClient *http.Client
}

// Config contains configuration for the pinning-service client.
type Config struct {
	// APIURL is the service base URL, e.g. "https://api.pinata.cloud".
	APIURL string

	// APIKey is the bearer token.
	APIKey string

	// GatewayURL is the public gateway base for GatewayURL links.
	// Default: "https://ipfs.io".
	GatewayURL string

	// Timeout bounds each HTTP call. Default: 120s; hosted services
	// replicate before acknowledging.
	Timeout time.Duration
}

// New creates a pinning-service-backed pinner.
func New(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("pinning service URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinning service API key is required")
	}

	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = "https://ipfs.io"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		gatewayURL: strings.TrimRight(gateway, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// pinResponse is the JSON acknowledgement for a pin upload.
type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
	PinSize  int64  `json:"PinSize"`
}

// Pin uploads and pins the payload.
func (c *Client) Pin(ctx context.Context, name string, r io.Reader) (replica.PinResult, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	endpoint := c.apiURL + "/pinning/pinFileToIPFS"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return replica.PinResult{}, fmt.Errorf("failed to build pin request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return replica.PinResult{}, fmt.Errorf("pin upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return replica.PinResult{}, fmt.Errorf("pin upload returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return replica.PinResult{}, fmt.Errorf("failed to decode pin response: %w", err)
	}
	if err := replica.ValidateCID(pinned.IpfsHash); err != nil {
		return replica.PinResult{}, err
	}

	return replica.PinResult{CID: pinned.IpfsHash, Size: pinned.PinSize}, nil
}

// Unpin releases the pin for cidStr. A 404 from the service means the pin
// is already gone and is treated as success.
func (c *Client) Unpin(ctx context.Context, cidStr string) error {
	if err := replica.ValidateCID(cidStr); err != nil {
		return err
	}

	endpoint := c.apiURL + "/pinning/unpin/" + cidStr
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build unpin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unpin failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unpin returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// GatewayURL returns a public gateway link for cidStr.
func (c *Client) GatewayURL(cidStr string) string {
	return c.gatewayURL + "/ipfs/" + cidStr
}
