// Package wikibase implements kb.Client against a MediaWiki/Wikibase
// installation: the Action API for entity reads and edits, and the query
// service SPARQL endpoint for value indexes.
package wikibase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/logging"
)

// maxResponseSize limits a response body to prevent memory exhaustion.
const maxResponseSize = 64 * 1024 * 1024

// Config holds connection settings.
type Config struct {
	APIURL     string `yaml:"api_url"`     // e.g. http://localhost:8181/w/api.php
	SPARQLURL  string `yaml:"sparql_url"`  // e.g. http://localhost:8282/proxy/wdqs/bigdata/namespace/wdq/sparql
	ConceptURI string `yaml:"concept_uri"` // entity URI base in RDF, e.g. http://wikibase.svc
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Language   string `yaml:"language"`
	UserAgent  string `yaml:"user_agent"`

	RequestsPerSecond float64       `yaml:"requests_per_second"` // zero disables throttling
	MaxRetries        int           `yaml:"max_retries"`         // retries after the first attempt
	RetryInitial      time.Duration `yaml:"retry_initial"`       // first backoff interval
	MaxLag            int           `yaml:"maxlag"`              // seconds; zero omits the maxlag parameter
	Timeout           time.Duration `yaml:"timeout"`
}

// DefaultConfig returns settings for a local wikibase-docker install.
func DefaultConfig() Config {
	return Config{
		APIURL:            "http://localhost:8181/w/api.php",
		SPARQLURL:         "http://localhost:8282/proxy/wdqs/bigdata/namespace/wdq/sparql",
		ConceptURI:        "http://wikibase.svc",
		Language:          "en",
		UserAgent:         "kbsync/1.0",
		RequestsPerSecond: 10,
		MaxRetries:        5,
		RetryInitial:      500 * time.Millisecond,
		MaxLag:            5,
		Timeout:           60 * time.Second,
	}
}

// Client talks to one Wikibase.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logging.Logger

	loggedIn bool
	csrf     string
}

var _ kb.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. It must carry a cookie jar for
// logins to stick.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(client *Client) {
		client.log = l
	}
}

// New creates a client. No request is made until the first call.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("wikibase: api url is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Jar: jar, Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is an error object returned by the Action API.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// transientError marks a failure worth retrying. Once retries run out it
// surfaces as kb.ErrUnavailable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

var authCodes = map[string]bool{
	"permissiondenied": true,
	"assertuserfailed": true,
	"assertbotfailed":  true,
	"notloggedin":      true,
	"readapidenied":    true,
}

// writeError converts an API error from an edit into the kb error taxonomy.
func writeError(err error) error {
	var ae *APIError
	if !errors.As(err, &ae) {
		return err
	}
	if authCodes[ae.Code] {
		return fmt.Errorf("%w: %s", kb.ErrAuth, ae.Info)
	}
	return &kb.WriteError{Code: ae.Code, Info: ae.Info}
}

// api calls the Action API and decodes the response into out. A top-level
// error object is returned as *APIError.
func (c *Client) api(ctx context.Context, post bool, params url.Values, out any) error {
	params.Set("format", "json")
	if c.cfg.MaxLag > 0 {
		params.Set("maxlag", strconv.Itoa(c.cfg.MaxLag))
	}

	var body []byte
	err := c.retry(ctx, func() error {
		var (
			req *http.Request
			err error
		)
		if post {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, strings.NewReader(params.Encode()))
			if err == nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
		} else {
			req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+params.Encode(), nil)
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		b, err := c.send(req)
		if err != nil {
			return err
		}
		var env struct {
			Error *APIError `json:"error"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		if env.Error != nil && env.Error.Code == "maxlag" {
			return &transientError{err: env.Error}
		}
		if env.Error != nil {
			return backoff.Permanent(env.Error)
		}
		body = b
		return nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// send performs one throttled request and classifies the outcome.
func (c *Client) send(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, backoff.Permanent(req.Context().Err())
		}
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, backoff.Permanent(&kb.WriteError{Code: kb.CodePayloadTooLarge, Info: resp.Status})
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", kb.ErrAuth, resp.Status))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &transientError{err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status %s", resp.Status))
	}
	return body, nil
}

// retry runs op with exponential backoff. Transient failures that outlast
// the retry budget become kb.ErrUnavailable.
func (c *Client) retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if c.cfg.RetryInitial > 0 {
		eb.InitialInterval = c.cfg.RetryInitial
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(c.cfg.MaxRetries, 0))), ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		c.log.Debug("Request failed, retrying", "error", err, "backoff", wait)
	})
	var te *transientError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %v", kb.ErrUnavailable, te.err)
	}
	return err
}

// Login authenticates with the configured bot credentials.
func (c *Client) Login(ctx context.Context) error {
	var tok struct {
		Query struct {
			Tokens struct {
				LoginToken string `json:"logintoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	err := c.api(ctx, false, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"login"},
	}, &tok)
	if err != nil {
		return fmt.Errorf("fetching login token: %w", err)
	}

	var res struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	err = c.api(ctx, true, url.Values{
		"action":     {"login"},
		"lgname":     {c.cfg.Username},
		"lgpassword": {c.cfg.Password},
		"lgtoken":    {tok.Query.Tokens.LoginToken},
	}, &res)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if res.Login.Result != "Success" {
		return fmt.Errorf("%w: login %s: %s", kb.ErrAuth, strings.ToLower(res.Login.Result), res.Login.Reason)
	}
	c.loggedIn = true
	c.log.Info("Logged in", "user", c.cfg.Username)
	return nil
}

// token returns the edit token, logging in first when credentials are set.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.csrf != "" {
		return c.csrf, nil
	}
	if c.cfg.Username != "" && !c.loggedIn {
		if err := c.Login(ctx); err != nil {
			return "", err
		}
	}
	var tok struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	err := c.api(ctx, false, url.Values{"action": {"query"}, "meta": {"tokens"}}, &tok)
	if err != nil {
		return "", fmt.Errorf("fetching edit token: %w", err)
	}
	c.csrf = tok.Query.Tokens.CSRFToken
	return c.csrf, nil
}

// edit posts a wbeditentity request. A stale token is refreshed once.
func (c *Client) edit(ctx context.Context, params url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		tok, err := c.token(ctx)
		if err != nil {
			return err
		}
		params.Set("action", "wbeditentity")
		params.Set("token", tok)
		params.Set("bot", "1")
		err = c.api(ctx, true, params, out)
		var ae *APIError
		if attempt == 0 && errors.As(err, &ae) && ae.Code == kb.CodeBadToken {
			c.log.Debug("Edit token expired, refreshing")
			c.csrf = ""
			continue
		}
		return writeError(err)
	}
}
