// Package pinning uploads certificate documents to IPFS through a
// Pinata-compatible pinning service and builds gateway links for them.
package pinning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultAPIURL     = "https://api.pinata.cloud"
	DefaultGatewayURL = "https://ipfs.io"
)

var (
	// ErrRejected is returned when the pinning service answered with an error status.
	ErrRejected = errors.New("pinning service rejected the request")
	// ErrTransport is returned when the pinning service could not be reached.
	ErrTransport = errors.New("pinning service unreachable")
	// ErrNotConfigured is returned when no credentials are configured.
	ErrNotConfigured = errors.New("pinning service credentials are not configured")
)

// Config holds pinning service settings. Either JWT or the API key pair
// authenticates requests.
type Config struct {
	APIURL     string
	GatewayURL string
	JWT        string
	APIKey     string
	SecretKey  string
	Timeout    time.Duration
}

// Client talks to the pinning service.
type Client struct {
	http    *resty.Client
	gateway string
	authed  bool
	logger  *zap.Logger
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type pinMetadata struct {
	Name string `json:"name,omitempty"`
}

type pinJSONRequest struct {
	Content  any         `json:"pinataContent"`
	Metadata pinMetadata `json:"pinataMetadata"`
}

// New returns a Client for cfg.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	authed := true
	switch {
	case cfg.JWT != "":
		http.SetAuthToken(cfg.JWT)
	case cfg.APIKey != "" && cfg.SecretKey != "":
		http.SetHeader("pinata_api_key", cfg.APIKey)
		http.SetHeader("pinata_secret_api_key", cfg.SecretKey)
	default:
		authed = false
	}

	return &Client{
		http:    http,
		gateway: strings.TrimRight(cfg.GatewayURL, "/"),
		authed:  authed,
		logger:  logger,
	}
}

// PinJSON pins v as a JSON document named name and returns its CID.
func (c *Client) PinJSON(ctx context.Context, name string, v any) (string, error) {
	if !c.authed {
		return "", ErrNotConfigured
	}
	var out pinResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(pinJSONRequest{Content: v, Metadata: pinMetadata{Name: name}}).
		SetResult(&out).
		Post("/pinning/pinJSONToIPFS")
	return c.result(resp, err, &out, name)
}

// PinFile pins data as a file named name and returns its CID.
func (c *Client) PinFile(ctx context.Context, name string, data []byte) (string, error) {
	if !c.authed {
		return "", ErrNotConfigured
	}
	var out pinResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(data)).
		SetFormData(map[string]string{"pinataMetadata": fmt.Sprintf(`{"name":%q}`, name)}).
		SetResult(&out).
		Post("/pinning/pinFileToIPFS")
	return c.result(resp, err, &out, name)
}

// Ping checks that the service is reachable and accepts the credentials.
func (c *Client) Ping(ctx context.Context) error {
	if !c.authed {
		return ErrNotConfigured
	}
	resp, err := c.http.R().SetContext(ctx).Get("/data/testAuthentication")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Status())
	}
	return nil
}

// GatewayURL returns the public gateway link for cid.
func (c *Client) GatewayURL(cid string) string {
	return c.gateway + "/ipfs/" + cid
}

func (c *Client) result(resp *resty.Response, err error, out *pinResponse, name string) (string, error) {
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.IsError() {
		c.logger.Warn("pin rejected",
			zap.String("name", name),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 512)),
		)
		return "", fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status(), truncate(resp.String(), 200))
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("%w: response carried no IpfsHash", ErrRejected)
	}
	c.logger.Info("document pinned",
		zap.String("name", name),
		zap.String("cid", out.IpfsHash),
		zap.Int64("size", out.PinSize),
	)
	return out.IpfsHash, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
