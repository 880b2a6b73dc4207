package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Routes served by the remote store API
const (
	userPath    = "/store/users/{user}"
	layoutsPath = "/store/users/{user}/layouts"
	layoutPath  = "/store/users/{user}/layouts/{id}"
	pointerPath = "/store/users/{user}/pointer"
)

// LayoutsPayload is the body of layout list responses
type LayoutsPayload struct {
	Layouts []types.Layout `json:"layouts"`
}

// ErrorPayload is the body of error responses
type ErrorPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ClientConfig configures the remote store client
type ClientConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RetryMax        int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultClientConfig returns client defaults for a store at baseURL
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:         baseURL,
		Timeout:         10 * time.Second,
		RetryMax:        2,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Client is a Backend reached over HTTP. Transient failures are retried by
// the transport; repeated failures open a circuit breaker so an unreachable
// store fails fast.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithClientLogger sets the logger
func WithClientLogger(log *logging.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithClientMetrics reports breaker state to metrics
func WithClientMetrics(m *monitoring.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the store at cfg.BaseURL
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("remote store base URL is required")
	}

	c := &Client{log: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("remote").With(zap.String("base_url", cfg.BaseURL))

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = leveledLogger{c.log.Sugar()}

	c.resty = resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "workspace-remote/1.0").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.ConfigStd.Unmarshal)
	if cfg.Token != "" {
		c.resty.SetAuthToken(cfg.Token)
	}

	c.breaker = resilience.New("remote-store", resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: resilience.ConsecutiveFailures(cfg.BreakerFailures),
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			c.log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			c.metrics.SetBreakerState(name, int(to))
		},
	})

	return c, nil
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Get returns the user's layouts or ErrNotFound
func (c *Client) Get(ctx context.Context, user string) ([]types.Layout, error) {
	var payload LayoutsPayload
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("user", user).SetResult(&payload).Get(userPath)
	})
	if err != nil {
		return nil, err
	}
	return payload.Layouts, nil
}

// List returns the user's layouts, empty for an unknown user
func (c *Client) List(ctx context.Context, user string) ([]types.Layout, error) {
	var payload LayoutsPayload
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("user", user).SetResult(&payload).Get(layoutsPath)
	})
	if err != nil {
		return nil, err
	}
	if payload.Layouts == nil {
		payload.Layouts = []types.Layout{}
	}
	return payload.Layouts, nil
}

// Put stores a layout
func (c *Client) Put(ctx context.Context, user string, layout types.Layout) error {
	return c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParams(map[string]string{"user": user, "id": layout.ID}).
			SetBody(layout).
			Put(layoutPath)
	})
}

// Delete removes a layout
func (c *Client) Delete(ctx context.Context, user, layoutID string) error {
	return c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParams(map[string]string{"user": user, "id": layoutID}).Delete(layoutPath)
	})
}

// GetPointer returns the user's pointer or ErrNotFound
func (c *Client) GetPointer(ctx context.Context, user string) (types.Pointer, error) {
	var pointer types.Pointer
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("user", user).SetResult(&pointer).Get(pointerPath)
	})
	return pointer, err
}

// PutPointer stores the user's pointer
func (c *Client) PutPointer(ctx context.Context, user string, pointer types.Pointer) error {
	return c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("user", user).SetBody(pointer).Put(pointerPath)
	})
}

func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) error {
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := send(c.resty.R().SetContext(ctx).SetError(&ErrorPayload{}))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("remote store request failed: %w", err)
		}
		return statusError(resp)
	})
}

func statusError(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrStale
	default:
		msg := resp.Status()
		if e, ok := resp.Error().(*ErrorPayload); ok && e.Error != "" {
			msg = e.Error
		}
		return fmt.Errorf("remote store returned %d: %s", code, msg)
	}
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
