package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	netproxy "golang.org/x/net/proxy"

	"snpublisher/pkg/errors"
)

// IPInfo is the response shape of the IP-identity endpoint.
type IPInfo struct {
	Query       string `json:"query"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
}

// Prober resolves the egress identity of a proxy by issuing a request
// through it. Implementations must honor the context deadline.
type Prober interface {
	Probe(ctx context.Context, d Descriptor) (*IPInfo, error)
}

// HTTPProber probes through the proxy with a plain GET against an
// IP-identity JSON endpoint.
type HTTPProber struct {
	endpoint string
	timeout  time.Duration
}

// NewHTTPProber creates a prober against the given identity endpoint.
func NewHTTPProber(endpoint string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		endpoint: endpoint,
		timeout:  timeout,
	}
}

// Probe issues a GET through the descriptor's SOCKS5 endpoint and decodes
// the identity response. All failures come back as classified network
// errors so the pool can treat them as a consumed attempt, not a fault.
func (p *HTTPProber) Probe(ctx context.Context, d Descriptor) (*IPInfo, error) {
	dialer, err := netproxy.SOCKS5("tcp",
		net.JoinHostPort(d.Host, d.Port),
		&netproxy.Auth{User: d.Username, Password: d.passwordWithParams()},
		netproxy.Direct,
	)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeNetwork, "failed to create SOCKS5 dialer: %v", err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(netproxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext:       dialContext,
			DisableKeepAlives: true,
		},
		Timeout: p.timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeNetwork, "failed to build probe request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeNetwork, "probe request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("probe returned HTTP %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	var info IPInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.Newf(errors.ErrorTypeNetwork, "malformed probe response: %v", err)
	}
	if info.Query == "" {
		return nil, errors.New(errors.ErrorTypeNetwork, "probe response missing IP")
	}

	return &info, nil
}
