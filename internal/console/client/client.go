// Package client 是控制台访问 VectorAdmin API 的请求门面。
// 统一注入令牌、解析 {code,data,message} 信封，并在 401 时清理本地登录态。
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"vectorAdmin/internal/console/storage"
)

// DefaultTimeout 请求超时，不做重试。
const DefaultTimeout = 15 * time.Second

// HeaderRequestID 每个请求携带的追踪 ID，服务端日志与后台任务沿用同一个值。
const HeaderRequestID = "X-Request-ID"

// ErrUnauthorized 与 Code 为 401 的 APIError 匹配。
var ErrUnauthorized = errors.New("unauthorized")

// Envelope 服务端统一响应体。
type Envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// APIError 信封 code 不为 200，或响应无法解析时返回。
type APIError struct {
	Code      int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api error %d", e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == http.StatusUnauthorized
}

// Params 作为 GET 查询参数发送；其他类型的 payload 作为 JSON 请求体。
type Params map[string]string

// Options 构造参数。Handler 非空时为 mock 模式，请求在进程内直接交给 Handler 处理。
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	Storage        storage.Storage
	Handler        http.Handler
	OnUnauthorized func()
}

// Client 基于 resty 的请求门面。
type Client struct {
	http    *resty.Client
	storage storage.Storage

	mu             sync.RWMutex
	onUnauthorized func()
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if opts.Handler != nil && baseURL == "" {
		baseURL = "http://mock.local/api"
	}

	c := &Client{storage: opts.Storage, onUnauthorized: opts.OnUnauthorized}
	c.http = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if opts.Handler != nil {
		c.http.SetTransport(handlerTransport{handler: opts.Handler})
	}
	c.http.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if token, ok := c.storage.Get(storage.KeyToken); ok && token != "" {
			r.SetAuthToken(token)
		}
		if r.Header.Get(HeaderRequestID) == "" {
			r.SetHeader(HeaderRequestID, "console-"+uuid.NewString())
		}
		return nil
	})
	return c
}

// SetOnUnauthorized 设置 401 回调，例如会话过期后跳转登录页。
func (c *Client) SetOnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Storage 返回门面使用的本地存储。
func (c *Client) Storage() storage.Storage {
	return c.storage
}

func (c *Client) Get(ctx context.Context, url string, payload, out any) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, url, payload, out)
}

func (c *Client) Post(ctx context.Context, url string, payload, out any) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, url, payload, out)
}

func (c *Client) Put(ctx context.Context, url string, payload, out any) (*Envelope, error) {
	return c.do(ctx, http.MethodPut, url, payload, out)
}

func (c *Client) Delete(ctx context.Context, url string, payload, out any) (*Envelope, error) {
	return c.do(ctx, http.MethodDelete, url, payload, out)
}

func (c *Client) request(ctx context.Context, payload any) *resty.Request {
	req := c.http.R().SetContext(ctx)
	switch p := payload.(type) {
	case nil:
	case Params:
		req.SetQueryParams(p)
	default:
		req.SetBody(p)
	}
	return req
}

func (c *Client) do(ctx context.Context, method, url string, payload, out any) (*Envelope, error) {
	resp, err := c.request(ctx, payload).Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	env, err := c.decode(resp)
	if err != nil {
		return env, err
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("decode %s %s data: %w", method, url, err)
		}
	}
	return env, nil
}

// decode 解析信封；code 不为 200 时返回 *APIError，401 额外清理登录态并触发回调。
func (c *Client) decode(resp *resty.Response) (*Envelope, error) {
	var env Envelope
	requestID := resp.Header().Get(HeaderRequestID)
	if err := json.Unmarshal(resp.Body(), &env); err != nil || env.Code == 0 {
		env = Envelope{Code: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
		if resp.StatusCode() == http.StatusOK {
			return &env, &APIError{Code: http.StatusOK, Message: "响应格式错误", RequestID: requestID}
		}
	}
	if env.Code == http.StatusOK {
		return &env, nil
	}
	if env.Code == http.StatusUnauthorized {
		c.unauthorized()
	}
	return &env, &APIError{Code: env.Code, Message: env.Message, RequestID: requestID}
}

func (c *Client) unauthorized() {
	_ = c.storage.Remove(storage.KeyToken, storage.KeyUserInfo)
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// File 下载结果。服务端把导出文件转存对象存储时，Data 为包含链接的 JSON，Link 非空。
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Link        string
}

// Download 以 GET 获取原始字节，用于导出。
func (c *Client) Download(ctx context.Context, url string, params Params) (*File, error) {
	resp, err := c.request(ctx, params).Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	contentType := resp.Header().Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		env, err := c.decode(resp)
		if err != nil {
			return nil, err
		}
		var link struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(env.Data, &link)
		return &File{ContentType: contentType, Data: env.Data, Link: link.URL}, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Code: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	}
	return &File{
		Name:        filenameOf(resp.Header().Get("Content-Disposition")),
		ContentType: contentType,
		Data:        resp.Body(),
	}, nil
}

func filenameOf(disposition string) string {
	const marker = "filename="
	i := strings.Index(disposition, marker)
	if i < 0 {
		return ""
	}
	return strings.Trim(disposition[i+len(marker):], `"; `)
}
