package lichess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const maxLineBytes = 1 << 20

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("stream closed")

type streamItem[T any] struct {
	v   T
	err error
}

// Stream delivers decoded NDJSON lines in arrival order. Blank keep-alive
// lines and lines that fail to decode are skipped.
type Stream[T any] struct {
	items chan streamItem[T]
	done  chan struct{}
	once  sync.Once
}

func newStream[T any]() *Stream[T] {
	return &Stream[T]{items: make(chan streamItem[T]), done: make(chan struct{})}
}

// Next blocks for the next item. It returns io.EOF when the server ends the stream.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrStreamClosed
	case it, ok := <-s.items:
		if !ok {
			return zero, io.EOF
		}
		return it.v, it.err
	}
}

// Close stops delivery. The connection is released once its pending read
// returns. Callers must Close every stream they open.
func (s *Stream[T]) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *Stream[T]) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Stream[T]) emit(it streamItem[T]) bool {
	select {
	case s.items <- it:
		return true
	case <-s.done:
		return false
	}
}

// pump decodes r line by line until EOF, a read error, or Close.
func (s *Stream[T]) pump(r io.Reader, logger *zap.Logger) {
	defer close(s.items)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if s.closed() {
			return
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			logger.Warn("lichess_stream_line_skipped", zap.Error(err), zap.String("line", truncate(string(line), 256)))
			continue
		}
		if !s.emit(streamItem[T]{v: v}) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case <-s.done:
		default:
			s.emit(streamItem[T]{err: fmt.Errorf("read stream: %w", err)})
		}
	}
}

func openStream[T any](ctx context.Context, c *Client, path string) (*Stream[T], error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/x-ndjson")
	c.authorize(req)

	if err := ctx.Err(); err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, err
	}
	// No deadline: it would also bound every later read of the body.
	if err := c.stream.Do(req, resp); err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		body := truncate(string(resp.Body()), 512)
		_ = resp.CloseBodyStream()
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("%w: GET %s status=%d body=%s", ErrAPIStatus, path, status, body)
	}

	s := newStream[T]()
	go func() {
		defer func() {
			_ = resp.CloseBodyStream()
			fasthttp.ReleaseResponse(resp)
		}()
		s.pump(resp.BodyStream(), c.logger)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}
