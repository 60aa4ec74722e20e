// Package azure talks to the Azure Communication Services Chat REST API.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"azure-communication/internal/domain"
	acs_errors "azure-communication/pkg/errors"
	"azure-communication/pkg/logger"
)

const (
	DefaultAPIVersion = "2021-09-07"
	DefaultPageSize   = 50
	DefaultTimeout    = 30 * time.Second
)

type Options struct {
	APIVersion string
	PageSize   int
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// ResponseError is a non-2xx answer from the service.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("acs: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("acs: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client is a domain.ChatClient backed by the ACS Chat REST API.
type Client struct {
	endpoint   *url.URL
	credential TokenCredential
	apiVersion string
	pageSize   int
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(endpoint string, credential TokenCredential, opts Options) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("acs endpoint is required: %w", acs_errors.ErrInvalidInput)
	}
	if credential == nil {
		return nil, fmt.Errorf("acs credential is required: %w", acs_errors.ErrInvalidInput)
	}
	parsed, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse acs endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("acs endpoint %q must be absolute: %w", endpoint, acs_errors.ErrInvalidInput)
	}

	c := &Client{
		endpoint:   parsed,
		credential: credential,
		apiVersion: opts.APIVersion,
		pageSize:   opts.PageSize,
		httpClient: opts.HTTPClient,
		logger:     logger.OrNop(opts.Logger).Named("acs"),
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return c, nil
}

func (c *Client) ListThreads(ctx context.Context) domain.Pager[domain.Thread] {
	first := c.url([]string{"chat", "threads"}, true)
	return newPager(first, func(ctx context.Context, pageURL string) ([]domain.Thread, string, error) {
		var page chatThreadsCollection
		if err := c.do(ctx, http.MethodGet, pageURL, nil, &page); err != nil {
			return nil, "", err
		}
		threads := make([]domain.Thread, 0, len(page.Value))
		for _, item := range page.Value {
			threads = append(threads, item.toDomain())
		}
		next, err := c.resolve(page.NextLink)
		return threads, next, err
	})
}

// ThreadClient resolves a handle after checking the thread exists, so an
// unknown id fails here rather than on the first message fetch.
func (c *Client) ThreadClient(ctx context.Context, threadID string) (domain.ThreadClient, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, acs_errors.ErrInvalidThread
	}

	var props chatThreadProperties
	err := c.do(ctx, http.MethodGet, c.url([]string{"chat", "threads", threadID}, false), nil, &props)
	if err != nil {
		var respErr *ResponseError
		if errors.As(err, &respErr) && (respErr.StatusCode == http.StatusNotFound || respErr.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("thread %s: %w: %w", threadID, acs_errors.ErrInvalidThread, err)
		}
		return nil, err
	}
	return &threadClient{client: c, threadID: threadID}, nil
}

type threadClient struct {
	client   *Client
	threadID string
}

func (t *threadClient) ThreadID() string {
	return t.threadID
}

func (t *threadClient) ListMessages(ctx context.Context) domain.Pager[domain.Message] {
	first := t.client.url([]string{"chat", "threads", t.threadID, "messages"}, true)
	return newPager(first, func(ctx context.Context, pageURL string) ([]domain.Message, string, error) {
		var page chatMessagesCollection
		if err := t.client.do(ctx, http.MethodGet, pageURL, nil, &page); err != nil {
			return nil, "", err
		}
		msgs := make([]domain.Message, 0, len(page.Value))
		for _, m := range page.Value {
			msgs = append(msgs, m.toDomain(t.threadID))
		}
		next, err := t.client.resolve(page.NextLink)
		return msgs, next, err
	})
}

func (t *threadClient) SendMessage(ctx context.Context, req domain.SendMessageRequest) (string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", fmt.Errorf("empty message content: %w", acs_errors.ErrInvalidInput)
	}
	body := sendChatMessageRequest{
		Content:           req.Content,
		SenderDisplayName: req.SenderDisplayName,
		Type:              string(req.Type),
	}
	var result sendChatMessageResult
	if err := t.client.do(ctx, http.MethodPost, t.client.url([]string{"chat", "threads", t.threadID, "messages"}, false), body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *Client) url(segments []string, paged bool) string {
	u := c.endpoint.JoinPath(segments...)
	q := u.Query()
	q.Set("api-version", c.apiVersion)
	if paged {
		q.Set("maxPageSize", strconv.Itoa(c.pageSize))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// resolve turns a nextLink into an absolute URL on the configured endpoint.
// The host is always the endpoint's so the bearer token never leaves it.
// An empty link means the listing is complete.
func (c *Client) resolve(link string) (string, error) {
	if link == "" {
		return "", nil
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	u = c.endpoint.ResolveReference(u)
	u.Scheme = c.endpoint.Scheme
	u.Host = c.endpoint.Host
	q := u.Query()
	if q.Get("api-version") == "" {
		q.Set("api-version", c.apiVersion)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	token, err := c.credential.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	c.logger.Debugf("%s %s %d %s", method, req.URL.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	respErr := &ResponseError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload communicationErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.Code != "" {
		respErr.Code = payload.Error.Code
		respErr.Message = payload.Error.Message
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", acs_errors.ErrUnauthorized, respErr)
	}
	return respErr
}
