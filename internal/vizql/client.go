package vizql

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Config holds the upstream endpoint and credential settings the client
// needs. These come from process bootstrap configuration and do not change
// while the process runs.
type Config struct {
	// ServerURL is the base URL of the analytics server, without a
	// trailing slash, e.g. "https://example.online.tableau.com".
	ServerURL string
	// APIVersion selects the REST API version for sign-in and catalog
	// endpoints (the VizQL data-service endpoints are always v1).
	APIVersion string
	// Site is the site content URL the credential is scoped to.
	Site string
	// TokenName and TokenSecret form the long-lived credential exchanged
	// for a short-lived session token.
	TokenName   string
	TokenSecret string

	// MaxAttempts bounds how many times one execution is tried in total.
	MaxAttempts uint
	// RetryDelay is the base delay between attempts; backoff doubles it.
	RetryDelay time.Duration
	// SessionTTL is how long a session token is trusted before being
	// proactively re-exchanged.
	SessionTTL time.Duration
	// Timeout applies to each individual HTTP request.
	Timeout time.Duration
}

// withDefaults fills unset knobs.
func (c Config) withDefaults() Config {
	if c.APIVersion == "" {
		c.APIVersion = "3.25"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Client is the execution and catalog client. It owns the process-wide
// session credential: created at first authentication, refreshed only via
// the serialized path behind mu, and never read by other components except
// through the client's request methods.
type Client struct {
	cfg  Config
	http *http.Client
	log  logrus.FieldLogger

	// mu serializes session acquisition so two concurrent executions never
	// race to overwrite the credential.
	mu         sync.Mutex
	token      string
	siteID     string
	acquiredAt time.Time

	// fields caches the field catalog per data source LUID for the process
	// lifetime; invalidated only by explicit refresh.
	fields *cache.Cache
}

// NewClient creates a client from bootstrap configuration.
func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
		fields: cache.New(cache.NoExpiration, 0),
	}
}

// signinRequest is the JSON body of the token exchange.
type signinRequest struct {
	Credentials signinCredentials `json:"credentials"`
}

type signinCredentials struct {
	TokenName   string     `json:"personalAccessTokenName"`
	TokenSecret string     `json:"personalAccessTokenSecret"`
	Site        signinSite `json:"site"`
}

type signinSite struct {
	ContentURL string `json:"contentUrl"`
}

// signinResponse mirrors the XML body returned by the sign-in endpoint.
type signinResponse struct {
	XMLName     xml.Name `xml:"tsResponse"`
	Credentials struct {
		Token string `xml:"token,attr"`
		Site  struct {
			ID         string `xml:"id,attr"`
			ContentURL string `xml:"contentUrl,attr"`
		} `xml:"site"`
	} `xml:"credentials"`
}

// session returns a valid session token and site id, exchanging the
// long-lived credential if none is cached or the cached one is older than
// SessionTTL. Safe for concurrent use.
func (c *Client) session(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.acquiredAt) < c.cfg.SessionTTL {
		return c.token, c.siteID, nil
	}
	if err := c.signInLocked(ctx); err != nil {
		return "", "", err
	}
	return c.token, c.siteID, nil
}

// invalidate drops the cached session token, but only if it is still the
// one the caller saw expire; a token refreshed concurrently by another
// execution is kept.
func (c *Client) invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
	}
}

// signInLocked exchanges the configured credential for a session token.
// Caller must hold mu.
func (c *Client) signInLocked(ctx context.Context) error {
	body, err := json.Marshal(signinRequest{
		Credentials: signinCredentials{
			TokenName:   c.cfg.TokenName,
			TokenSecret: c.cfg.TokenSecret,
			Site:        signinSite{ContentURL: c.cfg.Site},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal signin request: %w", err)
	}

	url := fmt.Sprintf("%s/api/%s/auth/signin", c.cfg.ServerURL, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sign in: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read signin response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", errAuth, resp.StatusCode, string(raw))
	}

	var parsed signinResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: parse signin response: %v", errAuth, err)
	}
	if parsed.Credentials.Token == "" {
		return fmt.Errorf("%w: signin response carried no token", errAuth)
	}

	c.token = parsed.Credentials.Token
	c.siteID = parsed.Credentials.Site.ID
	c.acquiredAt = time.Now()
	c.log.WithField("site", c.siteID).Debug("session credential acquired")
	return nil
}

// SignOut forgets the cached session credential. The upstream token simply
// expires server-side; no revocation call is made.
func (c *Client) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.siteID = ""
}

// post sends an authenticated JSON request to a VizQL data-service
// endpoint and returns the status code and raw body. On a 401 it
// re-authenticates once and replays the request.
func (c *Client) post(ctx context.Context, url string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	token, _, err := c.session(ctx)
	if err != nil {
		return 0, nil, err
	}

	status, raw, err := c.send(ctx, url, body, token)
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusUnauthorized {
		// Session expired mid-flight: refresh once and replay.
		c.log.Debug("session expired, re-authenticating")
		c.invalidate(token)
		token, _, err = c.session(ctx)
		if err != nil {
			return 0, nil, err
		}
		return c.send(ctx, url, body, token)
	}
	return status, raw, nil
}

func (c *Client) send(ctx context.Context, url string, body []byte, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tableau-Auth", token)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// classify turns a non-200 status into the matching error value.
func classify(status int, body []byte) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownDataSource, string(body))
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return &UpstreamError{Status: status, Body: string(body), Transient: true}
	default:
		return &UpstreamError{Status: status, Body: string(body), Transient: false}
	}
}

// vizqlURL builds a VizQL data-service endpoint URL.
func (c *Client) vizqlURL(endpoint string) string {
	return fmt.Sprintf("%s/api/v1/vizql-data-service/%s", c.cfg.ServerURL, endpoint)
}
