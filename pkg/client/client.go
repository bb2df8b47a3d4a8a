// Package client provides a Go client for the contradeploy history API and
// for pushing deployments to a Contrafactory registry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is an HTTP API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Deployment is a deployment as served by the history API
type Deployment struct {
	ID              string        `json:"id"`
	Network         string        `json:"network"`
	ChainID         string        `json:"chainId"`
	Contract        string        `json:"contract"`
	Address         string        `json:"address"`
	DeployerAddress string        `json:"deployerAddress,omitempty"`
	TxHash          string        `json:"txHash,omitempty"`
	BlockNumber     int64         `json:"blockNumber"`
	GasUsed         int64         `json:"gasUsed"`
	ConstructorArgs string        `json:"constructorArgs,omitempty"`
	Verification    *Verification `json:"verification,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Verification is the latest verification attempt for a deployment
type Verification struct {
	Status     string     `json:"status"`
	Provider   string     `json:"provider,omitempty"`
	Message    string     `json:"message,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// ListOptions filters a deployment listing
type ListOptions struct {
	Network  string
	ChainID  string
	Contract string
	Verified *bool
	Limit    int
	Cursor   string
}

// ListDeploymentsResponse is the response for listing deployments
type ListDeploymentsResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// RegistryDeployment is the request for recording a deployment in a
// Contrafactory registry
type RegistryDeployment struct {
	Package         string `json:"package"`
	Version         string `json:"version"`
	Contract        string `json:"contract"`
	ChainID         int    `json:"chainId"`
	Address         string `json:"address"`
	TxHash          string `json:"txHash,omitempty"`
	DeployerAddress string `json:"deployerAddress,omitempty"`
	BlockNumber     int64  `json:"blockNumber,omitempty"`
	ConstructorArgs string `json:"constructorArgs,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// ListDeployments lists deployments from a history server
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) (*ListDeploymentsResponse, error) {
	q := url.Values{}
	setIf := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	setIf("network", opts.Network)
	setIf("chain_id", opts.ChainID)
	setIf("contract", opts.Contract)
	setIf("cursor", opts.Cursor)
	if opts.Verified != nil {
		q.Set("verified", strconv.FormatBool(*opts.Verified))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/api/v1/deployments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListDeploymentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeployment gets a deployment by chain ID and address
func (c *Client) GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%s/%s", url.PathEscape(chainID), url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordDeployment records a deployment in a Contrafactory registry
func (c *Client) RecordDeployment(ctx context.Context, req RegistryDeployment) error {
	return c.post(ctx, "/api/v1/deployments", req, nil)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
