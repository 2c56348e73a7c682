package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/helix-tools/ledger-go/types"
)

// signingService is the SigV4 service name of the API Gateway in front of ledgerd.
const signingService = "execute-api"

// Client is a typed HTTP client for the ledger API. Requests carry the
// caller identity header and, when AWS credentials are configured, a SigV4 signature.
type Client struct {
	baseURL    string
	httpClient *http.Client
	awsConfig  *aws.Config
	region     string
	identity   string
	now        func() time.Time
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL  string
	Identity string
	Region   string
	// Credentials enables SigV4 signing when both keys are set.
	Credentials Credentials
	HTTPClient  *http.Client
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Body       string
	Message    string
	// Code is the ledger error kind reported by the server, e.g. "not_found".
	Code string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new API client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		region:     cfg.Region,
		identity:   cfg.Identity,
		now:        time.Now,
	}

	if cfg.Credentials.valid() {
		awsCfg, err := NewAWSConfig(ctx, cfg.Credentials, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS config: %w", err)
		}
		c.awsConfig = &awsCfg
	}

	return c, nil
}

// Identity returns the caller identity this client acts as.
func (c *Client) Identity() string {
	return c.identity
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Signed reports whether requests are SigV4-signed.
func (c *Client) Signed() bool {
	return c.awsConfig != nil
}

// Request makes an API request.
func (c *Client) Request(ctx context.Context, method, path string, body, result any) error {
	apiURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid API URL: %w", err)
	}

	var (
		reqBody  io.Reader
		jsonData []byte
	)

	if body != nil {
		jsonData, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity != "" {
		req.Header.Set(CallerHeader, c.identity)
	}

	if c.awsConfig != nil {
		if err := c.sign(ctx, req, jsonData); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}

		var errResp struct {
			types.ErrorResponse
			Message string `json:"message"`
		}

		if json.Unmarshal(respBody, &errResp) == nil {
			apiErr.Code = errResp.Code
			if errResp.Error != "" {
				apiErr.Message = errResp.Error
			} else if errResp.Message != "" {
				apiErr.Message = errResp.Message
			}
		}

		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) sign(ctx context.Context, req *http.Request, payload []byte) error {
	creds, err := c.awsConfig.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve credentials: %w", err)
	}

	payloadHash := types.EmptyPayloadHash
	if payload != nil {
		payloadHash = fmt.Sprintf("%x", sha256.Sum256(payload))
	}

	signer := v4.NewSigner()
	if err := signer.SignHTTP(ctx, creds, req, payloadHash, signingService, c.region, c.now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	return nil
}

// Get makes a GET request.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.Request(ctx, http.MethodGet, path, nil, result)
}

// Post makes a POST request.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Request(ctx, http.MethodPost, path, body, result)
}

// Put makes a PUT request.
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.Request(ctx, http.MethodPut, path, body, result)
}

// Delete makes a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}

	return false
}

// IsNotFoundError checks if an error is a 404 Not Found error.
func IsNotFoundError(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsForbiddenError checks if an error is a 403 Forbidden error.
func IsForbiddenError(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsConflictError checks if an error is a 409 Conflict error, returned for inactive datasets and categories.
func IsConflictError(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsBadRequestError checks if an error is a 400 Bad Request error.
func IsBadRequestError(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// IsPaymentRequiredError checks if an error is a 402 Payment Required error.
func IsPaymentRequiredError(err error) bool {
	return hasStatus(err, http.StatusPaymentRequired)
}

// IsBadGatewayError checks if an error is a 502 Bad Gateway error, returned when a payout failed.
func IsBadGatewayError(err error) bool {
	return hasStatus(err, http.StatusBadGateway)
}
