package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/identity"
	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

const (
	// maxResponseBytes caps JSON responses read from the node.
	maxResponseBytes = 1 << 20
	// maxDownloadBytes caps media downloads.
	maxDownloadBytes = 16 << 20
)

// Client talks to a ledgerd node over HTTP. It implements ledger.Client and
// the Uploader/Fetcher pair used by the registry core.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	token      string
	logger     *zap.Logger
}

var _ ledger.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithToken attaches an account token to every write request.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// Dial creates a Client for the node at baseURL and checks that it answers.
// An unreachable node yields an error matching model.ErrUnavailable.
//
//	c, err := client.Dial(ctx, "http://localhost:8080", client.WithToken(tok))
func Dial(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &model.ValidationError{Field: "ledger_url", Reason: fmt.Sprintf("invalid URL %q", baseURL)}
	}
	c := &Client{
		base:       u,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	var overview struct {
		Entries int    `json:"entries"`
		Root    string `json:"root"`
	}
	if err := c.call(ctx, "ping", http.MethodGet, "/api/v1/ledger", &overview); err != nil {
		return nil, err
	}
	c.logger.Debug("connected to ledger node",
		zap.String("url", u.String()), zap.Int("entries", overview.Entries))
	return c, nil
}

// Close implements ledger.Client. The node is unaffected.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetCapability implements ledger.Client.
func (c *Client) GetCapability(ctx context.Context, actor string) (model.Capability, error) {
	actor, err := model.NormalizeAccount(actor)
	if err != nil {
		return model.CapabilityNone, err
	}
	var resp struct {
		Capability model.Capability `json:"capability"`
	}
	path := "/api/v1/accounts/" + url.PathEscape(actor) + "/capability"
	if err := c.call(ctx, "get capability", http.MethodGet, path, &resp); err != nil {
		return model.CapabilityNone, err
	}
	return resp.Capability, nil
}

// SubmitRecord implements ledger.Client. actor must be the account the
// client's token was issued for (or, against a node without token auth, is
// sent as the X-Account header).
func (c *Client) SubmitRecord(ctx context.Context, actor string, rec *model.LandRecord) (*model.Receipt, error) {
	return c.write(ctx, "submit record", actor, http.MethodPost, "/api/v1/records", rec)
}

// GetRecord implements ledger.Client.
func (c *Client) GetRecord(ctx context.Context, id uint64) (*model.LandRecord, error) {
	var rec model.LandRecord
	if err := c.call(ctx, "get record", http.MethodGet, recordPath(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// HasVoted implements ledger.Client.
func (c *Client) HasVoted(ctx context.Context, id uint64, officer string) (bool, error) {
	officer, err := model.NormalizeAccount(officer)
	if err != nil {
		return false, err
	}
	var resp struct {
		Voted bool `json:"voted"`
	}
	path := recordPath(id) + "/votes/" + url.PathEscape(officer)
	if err := c.call(ctx, "has voted", http.MethodGet, path, &resp); err != nil {
		return false, err
	}
	return resp.Voted, nil
}

// SubmitReview implements ledger.Client.
func (c *Client) SubmitReview(ctx context.Context, actor string, id uint64, decision model.Decision) (*model.Receipt, error) {
	body := map[string]model.Decision{"decision": decision}
	return c.write(ctx, "submit review", actor, http.MethodPost, recordPath(id)+"/reviews", body)
}

// SubmissionEvents implements ledger.Client.
func (c *Client) SubmissionEvents(ctx context.Context, from model.Sequence) ([]model.SubmissionEvent, error) {
	var resp struct {
		Events []model.SubmissionEvent `json:"events"`
	}
	path := "/api/v1/events/submissions?from=" + strconv.FormatUint(uint64(from), 10)
	if err := c.call(ctx, "submission events", http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// ReviewEvents implements ledger.Client.
func (c *Client) ReviewEvents(ctx context.Context, id uint64) ([]model.ReviewEvent, error) {
	var resp struct {
		Votes []model.ReviewEvent `json:"votes"`
	}
	if err := c.call(ctx, "review events", http.MethodGet, recordPath(id)+"/votes", &resp); err != nil {
		return nil, err
	}
	return resp.Votes, nil
}

// GrantOfficer implements ledger.Client.
func (c *Client) GrantOfficer(ctx context.Context, admin, account string) (*model.Receipt, error) {
	return c.write(ctx, "grant officer", admin, http.MethodPost, "/api/v1/roles/officers",
		map[string]string{"account": account})
}

// GrantSubmitter implements ledger.Client.
func (c *Client) GrantSubmitter(ctx context.Context, admin, account string) (*model.Receipt, error) {
	return c.write(ctx, "grant submitter", admin, http.MethodPost, "/api/v1/roles/submitters",
		map[string]string{"account": account})
}

// SetRequiredApprovals implements ledger.Client.
func (c *Client) SetRequiredApprovals(ctx context.Context, admin string, n int) (*model.Receipt, error) {
	return c.write(ctx, "set required approvals", admin, http.MethodPut, "/api/v1/settings/required-approvals",
		map[string]int{"required_approvals": n})
}

// Upload stores data on the node and returns its reference ("/uploads/<name>").
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(req, "upload", &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", model.Unavailable("upload", errors.New("node returned no reference"))
	}
	return resp.URL, nil
}

// Download fetches media by the reference returned from Upload. Absolute
// URLs on other hosts are refused.
func (c *Client) Download(ctx context.Context, reference string) ([]byte, error) {
	ref, err := url.Parse(reference)
	if err != nil {
		return nil, &model.ValidationError{Field: "media_reference", Reason: err.Error()}
	}
	target := c.base.ResolveReference(ref)
	if target.Host != c.base.Host {
		return nil, &model.ValidationError{Field: "media_reference", Reason: "reference points outside the ledger node"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.Unavailable("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("media %s: %w", reference, model.ErrRecordNotFound)
	}
	if resp.StatusCode >= 300 {
		return nil, model.Unavailable("download", fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, model.Unavailable("download", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, model.Unavailable("download", errors.New("media exceeds download limit"))
	}
	return data, nil
}

func recordPath(id uint64) string {
	return "/api/v1/records/" + strconv.FormatUint(id, 10)
}

// write performs an authenticated mutating call and returns its receipt.
func (c *Client) write(ctx context.Context, op, actor, method, path string, body any) (*model.Receipt, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" && c.token == "" {
		return nil, &model.ValidationError{Field: "actor", Reason: "must not be empty"}
	}
	req, err := c.jsonRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	c.authenticate(req, actor)

	var receipt model.Receipt
	if err := c.do(req, op, &receipt); err != nil {
		return nil, err
	}
	if receipt.Sequence == model.GenesisSequence {
		return nil, model.Unavailable(op, errors.New("node returned no receipt"))
	}
	return &receipt, nil
}

// call performs an unauthenticated read and decodes the response into out.
func (c *Client) call(ctx context.Context, op, method, path string, out any) error {
	req, err := c.jsonRequest(ctx, method, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, op, out)
}

// authenticate names actor on the request. With a token the node also checks
// that actor is the token's account, so a write never lands under another name.
func (c *Client) authenticate(req *http.Request, actor string) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if actor != "" {
		req.Header.Set(identity.HeaderAccount, actor)
	}
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// errorBody is the node's error envelope.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field"`
}

// do executes req and decodes a successful JSON response into out. Transport
// failures and 5xx responses become model.ErrUnavailable; other error
// responses are mapped back to their typed errors by code.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return model.Unavailable(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.Unavailable(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		c.logger.Debug("ledger node error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", eb.Code),
			zap.String("request_id", req.Header.Get("X-Request-ID")),
		)
		if resp.StatusCode >= 500 || eb.Code == "" {
			msg := eb.Error
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			return model.Unavailable(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg))
		}
		return fmt.Errorf("%s: %w", op, model.ErrorFromCode(eb.Code, eb.Error, eb.Field))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.Unavailable(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
