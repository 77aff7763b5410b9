package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jordane95/wqb-hub/internal/metrics"
	"github.com/jordane95/wqb-hub/internal/version"
)

const (
	defaultMaxPolls     = 30
	defaultPollInterval = 2 * time.Second
	maxResponseBytes    = 64 << 20
)

// Options 描述客户端参数，零值字段使用默认值。
type Options struct {
	BaseURL  string
	Email    string
	Password string

	MaxRetries     int
	InitialBackoff time.Duration
	Timeout        time.Duration

	// RequestsPerSecond <= 0 表示不限速。
	RequestsPerSecond float64
	Burst             int

	// PollInterval 与 MaxPolls 控制 record set / 相关性接口在数据未就绪时的轮询。
	PollInterval time.Duration
	MaxPolls     int

	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client 是平台 API 客户端，可被多个 goroutine 共享。
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	email    string
	password string

	maxRetries   int
	backoff      time.Duration
	pollInterval time.Duration
	maxPolls     int
	logger       logrus.FieldLogger

	authMu        sync.Mutex
	authenticated bool
}

// New 构建客户端。
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse platform url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("platform url must be absolute: %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(opts.Timeout)
	}
	limit := rate.Inf
	burst := opts.Burst
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	logger := opts.Logger
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		baseURL:      base,
		http:         httpClient,
		limiter:      rate.NewLimiter(limit, burst),
		email:        opts.Email,
		password:     opts.Password,
		maxRetries:   maxRetries,
		backoff:      backoff,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		logger:       logger,
	}, nil
}

// HasCredentials 表示是否配置了邮箱与密码。
func (c *Client) HasCredentials() bool {
	return c.email != "" && c.password != ""
}

// call 描述一次请求；name 用作指标标签，需保持低基数。
type call struct {
	name   string
	method string
	path   string
	query  url.Values
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do 发送请求并处理认证失效、429、5xx 与传输错误的重试。
func (c *Client) do(ctx context.Context, req call) (*response, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	reauthenticated := false
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.send(ctx, req, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logRetry(req, attempt, 0, err)
			if err := c.sleep(ctx, c.backoffFor(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.status == http.StatusUnauthorized:
			if reauthenticated || !c.HasCredentials() {
				return nil, fmt.Errorf("%s: %w", req.path, ErrUnauthorized)
			}
			reauthenticated = true
			c.resetSession()
			if err := c.Authenticate(ctx); err != nil {
				return nil, err
			}
			// 重新认证不计入重试次数
			attempt--
			continue
		case resp.status == http.StatusTooManyRequests || resp.status >= http.StatusInternalServerError:
			lastErr = newStatusError(req.path, resp.status, resp.body)
			wait := retryAfter(resp.header)
			if wait <= 0 {
				wait = c.backoffFor(attempt)
			}
			c.logRetry(req, attempt, resp.status, lastErr)
			if attempt < c.maxRetries {
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
			continue
		case resp.status >= http.StatusBadRequest:
			return nil, newStatusError(req.path, resp.status, resp.body)
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", req.path, c.maxRetries+1, lastErr)
}

// send 经过限速器发送单次请求并读取完整响应体。
func (c *Client) send(ctx context.Context, req call, prepare func(*http.Request)) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if prepare != nil {
		prepare(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.UpstreamRequest(req.name, "error")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.UpstreamRequest(req.name, "error")
		return nil, fmt.Errorf("read %s: %w", req.path, err)
	}
	metrics.UpstreamRequest(req.name, statusClass(resp.StatusCode))
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// getJSON 发送 GET 并解码 JSON。
func (c *Client) getJSON(ctx context.Context, req call, out any) error {
	req.method = http.MethodGet
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	return decode(req.path, resp.body, out)
}

// poll 处理“尚未就绪”的响应：带 Retry-After 时等待后重试，空响应按 pollInterval 重试。
func (c *Client) poll(ctx context.Context, req call, out any) error {
	req.method = http.MethodGet
	for i := 0; i < c.maxPolls; i++ {
		resp, err := c.do(ctx, req)
		if err != nil {
			return err
		}
		if wait := retryAfter(resp.header); wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if isEmptyBody(resp.body) {
			c.logger.WithFields(logrus.Fields{"action": "platform_poll", "endpoint": req.path}).Debug("empty response, polling again")
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return err
			}
			continue
		}
		return decode(req.path, resp.body, out)
	}
	return fmt.Errorf("%s: not ready after %d polls", req.path, c.maxPolls)
}

func decode(endpoint string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func isEmptyBody(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}"))
}

func (c *Client) backoffFor(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return c.backoff * time.Duration(1<<attempt)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(req call, attempt, status int, err error) {
	fields := logrus.Fields{
		"action":   "platform_retry",
		"endpoint": req.path,
		"attempt":  attempt + 1,
	}
	if status != 0 {
		fields["upstream_status"] = status
	}
	c.logger.WithFields(fields).WithError(err).Warn("platform request failed")
}

// retryAfter 解析 Retry-After 的秒数（允许小数）或 HTTP 日期。
func retryAfter(h http.Header) time.Duration {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
