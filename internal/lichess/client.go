package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

const DefaultBaseURL = "https://lichess.org"

var ErrAPIStatus = errors.New("lichess api error")

type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	stream  *fasthttp.Client
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		// Streams stay open for the whole game; the server sends keep-alive newlines.
		stream:         &fasthttp.Client{StreamResponseBody: true, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Account(ctx context.Context) (*Account, error) {
	var acc Account
	if err := c.do(ctx, fasthttp.MethodGet, "/api/account", nil, &acc, true); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) AcceptChallenge(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(id)+"/accept", nil, nil, true)
}

func (c *Client) DeclineChallenge(ctx context.Context, id string, reason domain.DeclineCode) error {
	form := url.Values{}
	if reason != "" {
		form.Set("reason", string(reason))
	}
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(id)+"/decline", form, nil, true)
}

// MakeMove is not retried: a resent move may land on the opponent's turn.
func (c *Client) MakeMove(ctx context.Context, gameID, move string, offeringDraw bool) error {
	path := "/api/bot/game/" + url.PathEscape(gameID) + "/move/" + url.PathEscape(move) +
		"?offeringDraw=" + strconv.FormatBool(offeringDraw)
	return c.do(ctx, fasthttp.MethodPost, path, nil, nil, false)
}

func (c *Client) AbortGame(ctx context.Context, gameID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/bot/game/"+url.PathEscape(gameID)+"/abort", nil, nil, false)
}

// StreamEvents opens the account event stream.
func (c *Client) StreamEvents(ctx context.Context) (*Stream[Event], error) {
	return openStream[Event](ctx, c, "/api/stream/event")
}

// StreamGame opens the state stream of one game.
func (c *Client) StreamGame(ctx context.Context, gameID string) (*Stream[GameEvent], error) {
	return openStream[GameEvent](ctx, c, "/api/bot/game/stream/"+url.PathEscape(gameID))
}

func (c *Client) authorize(req *fasthttp.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")
	c.authorize(req)
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Encode())
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("%s %s: %w", method, path, err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := fmt.Errorf("%w: %s %s status=%d body=%s", ErrAPIStatus, method, path, status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			c.logger.Debug("lichess_request_retry", zap.String("path", path), zap.Int("status", status), zap.Int("attempt", attempt))
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

// 429 is lichess's rate limit answer; it asks for a pause before retrying.
func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
