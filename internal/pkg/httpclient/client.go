// internal/pkg/httpclient/client.go

package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StatusError 下游返回了非 2xx 状态码。
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %s", e.URL, e.Status)
}

// Client 是一个可追踪的、可注入的HTTP客户端
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	// Timeout 为单次请求的上限，0 表示完全由调用方 context 控制
	Timeout time.Duration
}

// NewClient 创建一个新的客户端实例
func NewClient(tracer trace.Tracer, timeout time.Duration) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
		Timeout:    timeout,
	}
}

// GetJSON 发起 GET 请求并把 JSON 响应解码到 out。
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL, header, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode response from %s", rawURL)
	}
	return nil
}

// PostForm 以 application/x-www-form-urlencoded 提交表单，只关心状态码。
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) error {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.do(ctx, http.MethodPost, rawURL, header, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, header http.Header, body io.Reader) (resp *http.Response, err error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse url %s", rawURL)
	}
	// 从 URL 中解析出服务名用于 Span
	spanName := fmt.Sprintf("call-%s", parsedURL.Hostname())

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	cancel := context.CancelFunc(func() {})
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	// 响应体读取同样受 timeout 约束，cancel 跟随 body 关闭
	defer func() {
		if err != nil {
			cancel()
			return
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	}()

	req, err := http.NewRequestWithContext(ctx, method, parsedURL.String(), body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", parsedURL.String()),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err = c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrapf(err, "%s %s", method, rawURL)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		err = &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
