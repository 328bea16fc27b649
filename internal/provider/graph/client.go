package graph

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
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/config"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the behaviour of the Graph client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the Graph API.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL sets the base Graph API URL. Useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithClock overrides the clock used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBodyLimit adjusts how many bytes are retained from response bodies.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// RawResponse captures the low-level provider response for one Graph call.
type RawResponse struct {
	Code      int
	Body      string
	Timestamp time.Time
}

// OK reports whether the call returned HTTP 200.
func (r *RawResponse) OK() bool {
	return r != nil && r.Code == http.StatusOK
}

// Client issues requests against the Graph messaging API. The zero value is
// not usable; construct instances with New.
type Client struct {
	logger       zerolog.Logger
	baseURL      string
	apiVersion   string
	httpClient   HTTPClient
	now          func() time.Time
	maxBodyBytes int64
}

// New constructs a Graph API client from provider configuration.
func New(cfg config.ProviderConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("graph client: base URL is required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		return nil, errors.New("graph client: API version is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		logger:       logger,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:   strings.TrimSpace(cfg.APIVersion),
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
		maxBodyBytes: 16 * 1024,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Send posts a message body to the per-endpoint messages path and returns the
// raw status/body pair. The caller interprets non-200 responses; a returned
// error indicates the request never produced an HTTP response.
func (c *Client) Send(ctx context.Context, token, phoneNumberID string, body any) (*RawResponse, error) {
	if strings.TrimSpace(phoneNumberID) == "" {
		return nil, errors.New("graph client: phone number id is required")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("graph client: marshal message: %w", err)
	}

	endpoint := c.endpoint(phoneNumberID, "messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("graph client: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph client: http do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return &RawResponse{Code: resp.StatusCode, Body: raw, Timestamp: c.now()}, nil
}

// TemplateByName looks up template metadata under the business account. A
// missing template yields ErrTemplateNotFound.
func (c *Client) TemplateByName(ctx context.Context, token, wabaID, name string) (map[string]any, error) {
	if strings.TrimSpace(wabaID) == "" {
		return nil, errors.New("graph client: waba id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("graph client: template name is required")
	}

	endpoint := c.endpoint(wabaID, "message_templates") + "?name=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("graph client: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph client: http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph client: template lookup http %d: %s", resp.StatusCode, strings.TrimSpace(body))
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("graph client: decode template response: %w", err)
	}
	for _, tpl := range parsed.Data {
		if tplName, ok := tpl["name"].(string); ok && tplName == name {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// UploadMedia uploads a binary file to the media endpoint and returns the
// provider-assigned media id.
func (c *Client) UploadMedia(ctx context.Context, token, phoneNumberID, filename, contentType string, file io.Reader) (string, error) {
	if strings.TrimSpace(phoneNumberID) == "" {
		return "", errors.New("graph client: phone number id is required")
	}
	if file == nil {
		return "", errors.New("graph client: file reader is required")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("graph client: write form field: %w", err)
	}
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		partHeader.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return "", fmt.Errorf("graph client: create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("graph client: copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("graph client: close multipart writer: %w", err)
	}

	endpoint := c.endpoint(phoneNumberID, "media")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("graph client: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("graph client: http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("graph client: media upload http %d: %s", resp.StatusCode, strings.TrimSpace(body))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", fmt.Errorf("graph client: decode media response: %w", err)
	}
	if parsed.ID == "" {
		return "", errors.New("graph client: media response missing id")
	}
	return parsed.ID, nil
}

// ErrTemplateNotFound signals a template lookup miss as opposed to a failed
// lookup call.
var ErrTemplateNotFound = errors.New("template not found")

func (c *Client) endpoint(objectID, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.baseURL, c.apiVersion, url.PathEscape(objectID), path)
}

func (c *Client) readBody(rc io.ReadCloser) (string, error) {
	if rc == nil {
		return "", nil
	}

	limit := c.maxBodyBytes
	if limit <= 0 {
		limit = 16 * 1024
	}

	reader := io.LimitReader(rc, limit)
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("graph client: read body: %w", err)
	}
	return string(data), nil
}
