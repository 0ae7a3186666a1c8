// Package kubo implements the replica port against the Kubo (go-ipfs) RPC
// API. The payload is added with pinning enabled in a single /api/v0/add
// call, so there is no window where the node holds unpinned blocks.
package kubo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carbonledger/evidenced/pkg/replica"
)

// Client implements replica.Pinner against a Kubo node.
type Client struct {
	apiURL     string
	gatewayURL string
	httpClient *http.Client
}

// Config contains configuration for the Kubo client.
type Config struct {
	// APIURL is the node RPC endpoint, e.g. "http://127.0.0.1:5001".
	APIURL string

	// GatewayURL is the public gateway base for GatewayURL links.
	// Default: "https://ipfs.io".
	GatewayURL string

	// Timeout bounds each RPC call. Default: 60s; adds of large payloads
	// can be slow on cold nodes.
	Timeout time.Duration
}

// New creates a Kubo-backed pinner.
func New(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("kubo API URL is required")
	}
	if _, err := url.Parse(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid kubo API URL: %w", err)
	}

	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = "https://ipfs.io"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		gatewayURL: strings.TrimRight(gateway, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// addResponse is the JSON emitted by /api/v0/add.
type addResponse struct {
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Pin adds and pins the payload. CIDv1 is requested so identifiers are
// case-insensitive base32 and safe in URLs.
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

	endpoint := c.apiURL + "/api/v0/add?cid-version=1&pin=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return replica.PinResult{}, fmt.Errorf("failed to build add request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return replica.PinResult{}, fmt.Errorf("ipfs add failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return replica.PinResult{}, fmt.Errorf("ipfs add returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return replica.PinResult{}, fmt.Errorf("failed to decode add response: %w", err)
	}
	if err := replica.ValidateCID(added.Hash); err != nil {
		return replica.PinResult{}, err
	}

	var size int64
	fmt.Sscanf(added.Size, "%d", &size)

	return replica.PinResult{CID: added.Hash, Size: size}, nil
}

// Unpin removes the pin for cidStr. Kubo reports "not pinned" as an
// error; that case is swallowed so Unpin stays idempotent.
func (c *Client) Unpin(ctx context.Context, cidStr string) error {
	if err := replica.ValidateCID(cidStr); err != nil {
		return err
	}

	endpoint := c.apiURL + "/api/v0/pin/rm?arg=" + url.QueryEscape(cidStr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build pin/rm request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ipfs pin/rm failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if strings.Contains(string(body), "not pinned") {
			return nil
		}
		return fmt.Errorf("ipfs pin/rm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// GatewayURL returns a public gateway link for cidStr.
func (c *Client) GatewayURL(cidStr string) string {
	return c.gatewayURL + "/ipfs/" + cidStr
}
