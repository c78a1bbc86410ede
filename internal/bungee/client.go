package bungee

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/httpx"
	"github.com/ggonzalez94/bungee-cli/internal/registry"
)

const defaultDedicatedBase = "https://dedicated-backend.bungee.exchange"

type Client struct {
	http             *httpx.Client
	baseURL          string
	dedicatedBaseURL string
	apiKey           string
	affiliate        string
	now              func() time.Time
}

func NewClient(httpClient *httpx.Client, baseURL, apiKey, affiliate string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.BackendBaseURL
	}
	return &Client{
		http:             httpClient,
		baseURL:          strings.TrimRight(baseURL, "/"),
		dedicatedBaseURL: defaultDedicatedBase,
		apiKey:           apiKey,
		affiliate:        affiliate,
		now:              time.Now,
	}
}

type QuoteRequest struct {
	UserAddress        string
	ReceiverAddress    string
	OriginChainID      int64
	DestinationChainID int64
	InputToken         string
	OutputToken        string
	InputAmount        string
	FeeTakerAddress    string
	FeeBps             string
}

func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	vals := url.Values{}
	vals.Set("userAddress", req.UserAddress)
	vals.Set("receiverAddress", req.ReceiverAddress)
	vals.Set("originChainId", strconv.FormatInt(req.OriginChainID, 10))
	vals.Set("destinationChainId", strconv.FormatInt(req.DestinationChainID, 10))
	vals.Set("inputToken", req.InputToken)
	vals.Set("outputToken", req.OutputToken)
	vals.Set("inputAmount", req.InputAmount)
	if strings.TrimSpace(req.FeeTakerAddress) != "" {
		vals.Set("feeTakerAddress", req.FeeTakerAddress)
		vals.Set("feeBps", req.FeeBps)
	}

	httpReq, err := c.newGet(ctx, registry.BackendQuotePath, vals)
	if err != nil {
		return Quote{}, err
	}

	var resp quoteEnvelope
	if _, err := c.http.DoJSON(ctx, httpReq, &resp); err != nil {
		return Quote{}, err
	}
	if !resp.Success {
		return Quote{}, clierr.New(clierr.CodeUnavailable, backendError(resp.Error, resp.Message, "quote request failed"))
	}
	return parseQuote(resp)
}

type searchEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   any             `json:"error"`
	Message string          `json:"message"`
}

// SearchTokens queries the free-text token search endpoint. The backend
// answers with either a flat token list or a map keyed by chain id; both
// shapes normalize to a flat slice here.
func (c *Client) SearchTokens(ctx context.Context, query string) ([]Token, error) {
	vals := url.Values{}
	vals.Set("q", query)

	httpReq, err := c.newGet(ctx, registry.BackendSearchPath, vals)
	if err != nil {
		return nil, err
	}

	var resp searchEnvelope
	if _, err := c.http.DoJSON(ctx, httpReq, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, clierr.New(clierr.CodeUnavailable, backendError(resp.Error, resp.Message, "token search failed"))
	}
	return normalizeSearchResult(resp.Result)
}

func normalizeSearchResult(raw json.RawMessage) ([]Token, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var flat []Token
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var grouped map[string][]Token
	if err := json.Unmarshal(raw, &grouped); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode token search result", err)
	}
	out := make([]Token, 0)
	for chainKey, tokens := range grouped {
		chainID, _ := strconv.ParseInt(chainKey, 10, 64)
		for _, token := range tokens {
			if token.ChainID == 0 {
				token.ChainID = chainID
			}
			out = append(out, token)
		}
	}
	return out, nil
}

type submitEnvelope struct {
	Success bool `json:"success"`
	Result  struct {
		RequestHash string `json:"requestHash"`
	} `json:"result"`
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// SubmitSignedRequest posts a signed authorization and returns the
// server-assigned request hash that identifies the settlement.
func (c *Client) SubmitSignedRequest(ctx context.Context, requestType string, witness json.RawMessage, signature, quoteID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"requestType":   requestType,
		"request":       witness,
		"userSignature": signature,
		"quoteId":       quoteID,
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode submit payload", err)
	}

	var resp submitEnvelope
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.requestBase()+registry.BackendSubmitPath, payload, c.authHeaders(), &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", clierr.New(clierr.CodeSubmission, backendError(resp.Error, resp.Message, "settlement service rejected submission"))
	}
	hash := strings.TrimSpace(resp.Result.RequestHash)
	if hash == "" {
		return "", clierr.New(clierr.CodeSubmission, "settlement service returned no request hash")
	}
	return hash, nil
}

type StatusResult struct {
	Code              int
	OriginTxHash      string
	DestinationTxHash string
}

type statusEnvelope struct {
	Success bool `json:"success"`
	Result  []struct {
		BungeeStatusCode int `json:"bungeeStatusCode"`
		OriginData       struct {
			TxHash string `json:"txHash"`
		} `json:"originData"`
		DestinationData struct {
			TxHash string `json:"txHash"`
		} `json:"destinationData"`
	} `json:"result"`
	Error   any    `json:"error"`
	Message string `json:"message"`
}

func (c *Client) GetStatus(ctx context.Context, requestHash string) (StatusResult, error) {
	vals := url.Values{}
	vals.Set("requestHash", requestHash)

	httpReq, err := c.newGet(ctx, registry.BackendStatusPath, vals)
	if err != nil {
		return StatusResult{}, err
	}

	var resp statusEnvelope
	if _, err := c.http.DoJSON(ctx, httpReq, &resp); err != nil {
		return StatusResult{}, err
	}
	if !resp.Success {
		return StatusResult{}, clierr.New(clierr.CodeUnavailable, backendError(resp.Error, resp.Message, "status query failed"))
	}
	if len(resp.Result) == 0 {
		return StatusResult{Code: StatusPending}, nil
	}
	entry := resp.Result[0]
	return StatusResult{
		Code:              entry.BungeeStatusCode,
		OriginTxHash:      strings.TrimSpace(entry.OriginData.TxHash),
		DestinationTxHash: strings.TrimSpace(entry.DestinationData.TxHash),
	}, nil
}

// TrackingURL is the external reference reported alongside a poll timeout so
// the settlement can be followed after the process exits.
func TrackingURL(requestHash string) string {
	return "https://www.bungee.exchange/tx/" + requestHash
}

func (c *Client) newGet(ctx context.Context, path string, vals url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestBase()+path+"?"+vals.Encode(), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build backend request", err)
	}
	for k, v := range c.authHeaders() {
		req.Header.Set(k, v)
	}
	return req, nil
}

// requestBase picks the dedicated backend when both credentials are set,
// unless the base url was overridden (tests and local stubs).
func (c *Client) requestBase() string {
	if c.baseURL != registry.BackendBaseURL {
		return c.baseURL
	}
	if _, _, ok := c.dedicatedAuth(); ok {
		return c.dedicatedBaseURL
	}
	return c.baseURL
}

func (c *Client) authHeaders() map[string]string {
	apiKey, affiliate, ok := c.dedicatedAuth()
	if !ok {
		return nil
	}
	return map[string]string{
		"x-api-key": apiKey,
		"affiliate": affiliate,
	}
}

func (c *Client) dedicatedAuth() (apiKey, affiliate string, ok bool) {
	apiKey = strings.TrimSpace(c.apiKey)
	affiliate = strings.TrimSpace(c.affiliate)
	return apiKey, affiliate, apiKey != "" && affiliate != ""
}

func backendError(v any, message, fallback string) string {
	switch t := v.(type) {
	case string:
		if msg := strings.TrimSpace(t); msg != "" {
			return msg
		}
	case map[string]any:
		if msg, ok := t["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
	}
	if msg := strings.TrimSpace(message); msg != "" {
		return msg
	}
	return fallback
}
