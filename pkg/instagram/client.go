package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	netproxy "golang.org/x/net/proxy"

	"snpublisher/pkg/config"
	"snpublisher/pkg/errors"
	"snpublisher/pkg/logger"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Client is the platform session adapter over Instagram's private web API.
// It implements the capability set the session guard consumes: proxy
// binding, liveness probing, login, and session-artifact persistence.
type Client struct {
	account    config.AccountConfig
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	log        logger.Logger

	proxyURL *url.URL
	state    *SessionState
	sessions *SessionFile
}

// NewClient creates an adapter for one account. An existing session
// artifact is loaded if present; a missing artifact is not an error, the
// guard will drive a login when the first probe reports login_required.
func NewClient(account config.AccountConfig, timeout time.Duration, log logger.Logger) (*Client, error) {
	if account.Username == "" || account.Password == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "instagram credentials not configured")
	}
	if log == nil {
		log = logger.GetLogger()
	}

	userAgent := account.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	c := &Client{
		account: account,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":       userAgent,
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9",
			"X-Requested-With": "XMLHttpRequest",
			"X-IG-App-ID":      "936619743392459",
		},
		baseURL:  BaseURL,
		log:      log,
		sessions: NewSessionFile(account.SessionDir, account.ID),
	}

	state, err := c.sessions.Load()
	if err != nil {
		log.WithError(err).Warn("failed to load stored session, starting clean")
	} else if state != nil {
		c.state = state
		if state.UserAgent != "" {
			c.headers["User-Agent"] = state.UserAgent
		}
		log.InfoWithFields("loaded stored session", map[string]interface{}{
			"username": state.Username,
			"saved_at": state.SavedAt.Format(time.RFC3339),
		})
	}

	return c, nil
}

// BindProxy routes all platform traffic through the given SOCKS5 proxy.
// Rebinding to the same proxy is a no-op.
func (c *Client) BindProxy(proxyURL *url.URL) error {
	if proxyURL == nil {
		return errors.New(errors.ErrorTypeNetwork, "nil proxy URL")
	}
	if c.proxyURL != nil && c.proxyURL.String() == proxyURL.String() {
		return nil
	}

	dialer, err := netproxy.FromURL(proxyURL, netproxy.Direct)
	if err != nil {
		return errors.Newf(errors.ErrorTypeNetwork, "failed to create proxy dialer: %v", err)
	}

	c.httpClient.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(netproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
		DisableKeepAlives: true,
	}
	c.proxyURL = proxyURL

	c.log.InfoWithFields("bound platform transport to proxy", map[string]interface{}{
		"proxy": proxyURL.Host,
	})
	return nil
}

// Probe issues the cheapest read-only authenticated call and classifies
// the outcome into the shared error taxonomy.
func (c *Client) Probe(ctx context.Context) error {
	if c.state == nil || c.state.Cookies["sessionid"] == "" {
		return errors.New(errors.ErrorTypeLoginRequired, "no stored session")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+AccountInfoEndpoint, nil)
	if err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "failed to build probe request: %v", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf(errors.ErrorTypeNetwork, "failed to read probe response: %v", err)
	}

	return c.classify(resp.StatusCode, body)
}

// Login performs a fresh web login with the configured credentials and
// persists the resulting session artifact.
func (c *Client) Login(ctx context.Context) error {
	csrf, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("username", c.account.Username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s",
		time.Now().Unix(), c.account.Password))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+LoginEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "failed to build login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", csrf)
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: csrf})

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf(errors.ErrorTypeNetwork, "failed to read login response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.classify(resp.StatusCode, body)
	}

	var login loginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "malformed login response: %v", err)
	}
	if !login.Authenticated {
		if t := classifyMessage(login.Message); t != errors.ErrorTypeUnknown {
			return errors.Newf(t, "login rejected: %s", login.Message)
		}
		return errors.New(errors.ErrorTypeLoginRequired, "login rejected: bad credentials")
	}

	cookies := make(map[string]string)
	cookies["csrftoken"] = csrf
	for _, cookie := range resp.Cookies() {
		cookies[cookie.Name] = cookie.Value
	}
	c.state = &SessionState{
		Username:  c.account.Username,
		Cookies:   cookies,
		UserAgent: c.headers["User-Agent"],
		SavedAt:   time.Now(),
		Version:   1,
	}

	if err := c.sessions.Save(c.state); err != nil {
		c.log.WithError(err).Warn("failed to persist session artifact")
	}

	c.log.WithField("username", c.account.Username).Info("fresh login succeeded")
	return nil
}

// ClearSession removes the persisted artifact and drops in-memory cookies
// so the next login starts clean.
func (c *Client) ClearSession() error {
	c.state = nil
	return c.sessions.Clear()
}

// fetchCSRFToken grabs the pre-login CSRF token from the shared data
// endpoint.
func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+SharedDataEndpoint, nil)
	if err != nil {
		return "", errors.Newf(errors.ErrorTypeUnknown, "failed to build csrf request: %v", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "csrftoken" && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	var data sharedData
	if err := json.NewDecoder(resp.Body).Decode(&data); err == nil && data.Config.CSRFToken != "" {
		return data.Config.CSRFToken, nil
	}

	return "", errors.New(errors.ErrorTypeNetwork, "no csrf token in shared data response")
}

// do sends the request with session headers and cookies attached.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.state != nil {
		for name, value := range c.state.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.log.WarnWithFields("platform request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.Path,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Newf(errors.ErrorTypeNetwork, "request failed: %v", err)
	}

	c.log.DebugWithFields("platform request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.Path,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// classify maps an HTTP status plus response body onto the error taxonomy.
// The body's message field overrides the bare status code: Instagram
// reports challenges and expired sessions with the same 4xx statuses.
func (c *Client) classify(statusCode int, body []byte) error {
	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err == nil {
		if t := classifyMessage(envelope.Message); t != errors.ErrorTypeUnknown {
			return &errors.Error{
				Type:    t,
				Message: envelope.Message,
				Code:    statusCode,
			}
		}
	}

	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	t := errors.ClassifyStatusCode(statusCode)
	return &errors.Error{
		Type:    t,
		Message: fmt.Sprintf("platform returned HTTP %d", statusCode),
		Code:    statusCode,
	}
}

// classifyMessage maps Instagram's error message categories onto the
// taxonomy. Challenge and feedback signals mean automation detection.
func classifyMessage(message string) errors.ErrorType {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "login_required", "loginrequired":
		return errors.ErrorTypeLoginRequired
	case "challenge_required", "checkpoint_required", "checkpoint_challenge_required":
		return errors.ErrorTypeChallenge
	case "feedback_required":
		return errors.ErrorTypeChallenge
	case "rate_limit_error", "please wait a few minutes before you try again.":
		return errors.ErrorTypeRateLimit
	default:
		return errors.ErrorTypeUnknown
	}
}
