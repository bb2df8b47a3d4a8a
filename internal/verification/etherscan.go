package verification

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/contradeploy/internal/validation"
)

// DefaultEtherscanURL is the Etherscan v2 multichain endpoint
const DefaultEtherscanURL = "https://api.etherscan.io/v2/api"

// Explorer status texts
const (
	statusPending         = "Pending in queue"
	statusPass            = "Pass - Verified"
	statusAlreadyVerified = "Already Verified"
)

// Etherscan verifies sources through an Etherscan-compatible explorer API
type Etherscan struct {
	apiURL       string
	apiKey       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	logger       *slog.Logger
}

// EtherscanOption configures an Etherscan client
type EtherscanOption func(*Etherscan)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) EtherscanOption {
	return func(e *Etherscan) {
		e.httpClient = c
	}
}

// WithPollInterval sets how often verification status is checked
func WithPollInterval(d time.Duration) EtherscanOption {
	return func(e *Etherscan) {
		e.pollInterval = d
	}
}

// WithRateLimit caps requests per second to the explorer
func WithRateLimit(rps float64) EtherscanOption {
	return func(e *Etherscan) {
		e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) EtherscanOption {
	return func(e *Etherscan) {
		e.logger = logger
	}
}

// NewEtherscan creates an explorer client. An empty apiURL uses DefaultEtherscanURL.
func NewEtherscan(apiURL, apiKey string, opts ...EtherscanOption) *Etherscan {
	if apiURL == "" {
		apiURL = DefaultEtherscanURL
	}
	e := &Etherscan{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// free tier allows 5 calls per second
		limiter:      rate.NewLimiter(rate.Limit(5), 1),
		pollInterval: 5 * time.Second,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Name returns the service identifier
func (e *Etherscan) Name() string {
	return "etherscan"
}

// etherscanResponse is the envelope every explorer endpoint returns
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *etherscanResponse) ok() bool {
	return r.Status == "1"
}

// resultText returns the result field when it is a plain string
func (r *etherscanResponse) resultText() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return string(r.Result)
	}
	return s
}

type sourceCode struct {
	SourceCode   string `json:"SourceCode"`
	ContractName string `json:"ContractName"`
}

// Verify submits the standard JSON input and waits for the explorer's verdict
func (e *Etherscan) Verify(ctx context.Context, req Request) (*Result, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("%w: no explorer API key", ErrNotConfigured)
	}
	if req.ChainID == nil {
		return nil, fmt.Errorf("%w: missing chain ID", ErrNotConfigured)
	}
	if len(req.StandardJSONInput) == 0 {
		return nil, fmt.Errorf("%w: artifact has no standard JSON input (rebuild with build-info enabled)", ErrRejected)
	}

	verified, err := e.IsVerified(ctx, req.ChainID.Int64(), req.Address.Hex())
	if err != nil {
		return nil, err
	}
	if verified {
		return &Result{Status: StatusAlreadyVerified, Message: "Contract source code already verified"}, nil
	}

	guid, err := e.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if guid == "" {
		return &Result{Status: StatusAlreadyVerified, Message: "Contract source code already verified"}, nil
	}

	e.logger.Info("verification submitted",
		slog.String("address", req.Address.Hex()),
		slog.String("guid", guid),
	)

	return e.poll(ctx, req.ChainID.Int64(), guid)
}

// IsVerified reports whether the explorer already has source for address
func (e *Etherscan) IsVerified(ctx context.Context, chainID int64, address string) (bool, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", address)

	resp, err := e.call(ctx, http.MethodGet, chainID, params)
	if err != nil {
		return false, err
	}
	if !resp.ok() {
		// unverified contracts still come back with status 1; anything else is an API problem
		return false, classify(resp.resultText())
	}

	var sources []sourceCode
	if err := json.Unmarshal(resp.Result, &sources); err != nil {
		return false, fmt.Errorf("%w: decoding source response: %v", ErrUnavailable, err)
	}
	return len(sources) > 0 && sources[0].SourceCode != "", nil
}

func (e *Etherscan) submit(ctx context.Context, req Request) (string, error) {
	compilerVersion := req.CompilerVersion
	if compilerVersion != "" {
		compilerVersion = validation.ExplorerCompilerVersion(compilerVersion)
	}

	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address.Hex())
	form.Set("sourceCode", string(req.StandardJSONInput))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", req.Contract)
	form.Set("compilerversion", compilerVersion)
	// the misspelling is part of the API
	form.Set("constructorArguements", hex.EncodeToString(req.ConstructorArgs))
	if req.License != "" {
		form.Set("licenseType", req.License)
	}

	resp, err := e.call(ctx, http.MethodPost, req.ChainID.Int64(), form)
	if err != nil {
		return "", err
	}

	text := resp.resultText()
	if !resp.ok() {
		if strings.Contains(strings.ToLower(text), "already verified") {
			return "", nil
		}
		return "", classify(text)
	}
	return text, nil
}

func (e *Etherscan) poll(ctx context.Context, chainID int64, guid string) (*Result, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "checkverifystatus")
	params.Set("guid", guid)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		resp, err := e.call(ctx, http.MethodGet, chainID, params)
		if err != nil {
			return nil, err
		}

		text := resp.resultText()
		switch {
		case text == statusPass:
			return &Result{Status: StatusVerified, Message: text, GUID: guid}, nil
		case text == statusAlreadyVerified:
			return &Result{Status: StatusAlreadyVerified, Message: text, GUID: guid}, nil
		case text == statusPending:
			e.logger.Debug("verification pending", slog.String("guid", guid))
		default:
			if !resp.ok() {
				return nil, classify(text)
			}
			return nil, fmt.Errorf("%w: unexpected status %q", ErrRejected, text)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: guid %s: %v", ErrTimeout, guid, ctx.Err())
		case <-ticker.C:
		}
	}
}

// call performs a rate-limited API request. GET sends params in the query,
// POST sends them as a form. chainid always travels in the query.
func (e *Etherscan) call(ctx context.Context, method string, chainID int64, params url.Values) (*etherscanResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	u, err := url.Parse(e.apiURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid explorer URL: %v", ErrNotConfigured, err)
	}
	query := u.Query()
	query.Set("chainid", strconv.FormatInt(chainID, 10))

	var body *strings.Reader
	if method == http.MethodGet {
		for k, v := range params {
			query[k] = v
		}
		query.Set("apikey", e.apiKey)
		body = strings.NewReader("")
	} else {
		params.Set("apikey", e.apiKey)
		body = strings.NewReader(params.Encode())
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	}

	var out etherscanResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	return &out, nil
}

// classify maps an explorer error message onto the verification error taxonomy
func classify(text string) error {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "try again later"):
		return fmt.Errorf("%w: %s", ErrUnavailable, text)
	case strings.Contains(lower, "invalid api key"), strings.Contains(lower, "missing/invalid api key"):
		return fmt.Errorf("%w: %s", ErrNotConfigured, text)
	default:
		return fmt.Errorf("%w: %s", ErrRejected, text)
	}
}
