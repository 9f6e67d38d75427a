package eutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ncbimcp/ncbimcp/internal/core"
)

// Client defaults.
const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	DefaultEmail   = "ncbi-mcp@example.com"
	DefaultTool    = "ncbi-mcp-server"

	// PostThreshold is the id count above which requests switch to POST.
	PostThreshold = 200

	defaultMaxBody = 64 << 20
)

// Client sends E-utilities requests over HTTP. It performs exactly one
// exchange per call and leaves admission and retries to the caller.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
	Email      string
	Tool       string
	UserAgent  string

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// Do performs the request and returns whatever the remote answered.
// A non-nil error means no HTTP response was obtained.
func (c *Client) Do(ctx context.Context, req core.OutboundRequest) (*core.RawResponse, error) {
	if c == nil {
		return nil, errors.New("eutils client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Operation == "" {
		return nil, errors.New("operation is required")
	}

	endpoint, err := c.endpoint(req.Operation)
	if err != nil {
		return nil, err
	}

	values := c.values(req)
	var httpReq *http.Request
	if UsePost(req.Operation, values) {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
	}
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody()))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Operation, err)
	}

	return &core.RawResponse{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          body,
		ContentType:   resp.Header.Get("Content-Type"),
		RemoteMessage: ExtractError(body),
	}, nil
}

// Endpoint returns the absolute URL for an operation.
func (c *Client) Endpoint(op core.Operation) string {
	endpoint, err := c.endpoint(op)
	if err != nil {
		return ""
	}
	return endpoint
}

// UsePost reports whether the request must be sent as a form body.
func UsePost(op core.Operation, values url.Values) bool {
	if op == core.OperationPost {
		return true
	}
	ids := values.Get("id")
	if ids == "" {
		return false
	}
	return strings.Count(ids, ",")+1 > PostThreshold
}

func (c *Client) values(req core.OutboundRequest) url.Values {
	values := url.Values{}
	for _, key := range req.ParamKeys() {
		values.Set(key, req.Params[key])
	}
	if req.Database != "" && values.Get("db") == "" {
		values.Set("db", req.Database)
	}
	if session := req.Session; session != nil {
		values.Set("WebEnv", session.WebEnv)
		if session.QueryKey != "" {
			values.Set("query_key", session.QueryKey)
		}
	}

	if c.APIKey != "" {
		values.Set("api_key", c.APIKey)
	}
	email := c.Email
	if email == "" {
		email = DefaultEmail
	}
	values.Set("email", email)
	tool := c.Tool
	if tool == "" {
		tool = DefaultTool
	}
	values.Set("tool", tool)
	return values
}

func (c *Client) endpoint(op core.Operation) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed.ResolveReference(&url.URL{Path: op.Path()}).String(), nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (c *Client) maxBody() int64 {
	if c.MaxBodyBytes > 0 {
		return c.MaxBodyBytes
	}
	return defaultMaxBody
}
