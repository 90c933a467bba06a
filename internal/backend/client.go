package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/policy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/qa"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/metrics"
)

// Generic failures per operation. Callers show the message; the cause is
// wrapped for logs only.
var (
	ErrListPolicies = errors.New("failed to list policies")
	ErrUploadPolicy = errors.New("failed to upload policy")
	ErrAsk          = errors.New("failed to get answer")
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Body)
}

// Client talks to the external policy Q&A backend.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client that prefixes every path with baseURL. An empty
// baseURL issues relative requests and only makes sense behind a proxy.
// httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ListPolicies fetches GET /api/policies.
func (c *Client) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/policies", nil)
	if err != nil {
		return nil, fail(ErrListPolicies, "list", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out []policy.Policy
	if err := c.do(req, &out); err != nil {
		return nil, fail(ErrListPolicies, "list", err)
	}
	if out == nil {
		out = []policy.Policy{}
	}
	return out, nil
}

// UploadPolicy posts the file as multipart field "file" to /api/policies/upload.
func (c *Client) UploadPolicy(ctx context.Context, f policy.File) (policy.Policy, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return policy.Policy{}, fail(ErrUploadPolicy, "upload", err)
	}
	if f.Content != nil {
		if _, err := io.Copy(part, f.Content); err != nil {
			return policy.Policy{}, fail(ErrUploadPolicy, "upload", err)
		}
	}
	if err := mw.Close(); err != nil {
		return policy.Policy{}, fail(ErrUploadPolicy, "upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/policies/upload", &body)
	if err != nil {
		return policy.Policy{}, fail(ErrUploadPolicy, "upload", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out policy.Policy
	if err := c.do(req, &out); err != nil {
		return policy.Policy{}, fail(ErrUploadPolicy, "upload", err)
	}
	metrics.PoliciesUploaded.WithLabelValues("delegated").Inc()
	return out, nil
}

// Ask posts the question to /api/qa.
func (c *Client) Ask(ctx context.Context, question, jurisdiction string, policyIDs []string) (qa.Response, error) {
	if policyIDs == nil {
		policyIDs = []string{}
	}
	payload, err := json.Marshal(qa.Request{Question: question, Jurisdiction: jurisdiction, PolicyIDs: policyIDs})
	if err != nil {
		return qa.Response{}, fail(ErrAsk, "ask", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/qa", bytes.NewReader(payload))
	if err != nil {
		return qa.Response{}, fail(ErrAsk, "ask", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out qa.Response
	if err := c.do(req, &out); err != nil {
		return qa.Response{}, fail(ErrAsk, "ask", err)
	}
	if out.Citations == nil {
		out.Citations = []qa.Citation{}
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func fail(sentinel error, op string, cause error) error {
	metrics.BackendFailures.WithLabelValues(op).Inc()
	logger.Warnf("backend %s failed: %v", op, cause)
	return fmt.Errorf("%w: %w", sentinel, cause)
}
