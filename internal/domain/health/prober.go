package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/go-resty/resty/v2"
)

// Prober issues one liveness request. ctx bounds and aborts it.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, url string) error

// Probe calls f
func (f ProberFunc) Probe(ctx context.Context, url string) error {
	return f(ctx, url)
}

// HTTPProber probes over HTTP, applying the module's auth config
type HTTPProber struct {
	client *resty.Client
	auth   *types.AuthConfig
}

// NewHTTPProber creates a prober. Timeouts come from the probe context.
func NewHTTPProber(auth *types.AuthConfig) *HTTPProber {
	client := resty.New().
		SetHeader("User-Agent", "workspace-health/1.0").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(3))
	return &HTTPProber{client: client, auth: auth}
}

// Probe implements Prober. Any 2xx or 3xx response is healthy.
func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req := p.client.R().SetContext(ctx)
	applyAuth(req, p.auth)

	resp, err := req.Get(url)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode())
	}
	return nil
}

// Close releases idle connections
func (p *HTTPProber) Close() {
	p.client.GetClient().CloseIdleConnections()
}

func applyAuth(req *resty.Request, auth *types.AuthConfig) {
	if auth == nil {
		return
	}
	switch auth.Type {
	case types.AuthBearer:
		req.SetAuthToken(auth.Token)
	case types.AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case types.AuthHeader:
		if auth.Header != "" {
			req.SetHeader(auth.Header, auth.Value)
		}
	}
}
