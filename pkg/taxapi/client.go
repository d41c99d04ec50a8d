// Package taxapi provides a client for the tax backend's auth and api
// services. Credentials travel as cookies, so callers that need a login to
// outlive the process supply a persistent cookie jar.
package taxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/tax-intake/internal/model"
)

// Client defines the backend operations used by this application.
type Client interface {
	DocumentAPI
	AuthAPI
}

// DocumentAPI covers the api service.
type DocumentAPI interface {
	GetConfigurationData(ctx context.Context) (*model.ConfigurationData, error)
	GetFilesInfo(ctx context.Context, customer string) ([]model.Document, error)
	UploadFile(ctx context.Context, req UploadRequest) ([]model.Document, error)
	UpdateForm(ctx context.Context, customer string, doc model.Document) ([]model.Document, error)
	DeleteFile(ctx context.Context, customer, fileID string) error
	DeleteAllFiles(ctx context.Context, customer string) error
	CreateForm(ctx context.Context, req CreateFormRequest) ([]model.Document, error)
	GetResultsInfo(ctx context.Context, customer string) ([]model.ResultDescriptor, error)
	CalculateTax(ctx context.Context, customer, taxYear string) ([]model.TaxResultRow, error)
}

// AuthAPI covers the auth service.
type AuthAPI interface {
	SignInAnonymous(ctx context.Context) error
	SignIn(ctx context.Context, creds Credentials) error
	CreateAccount(ctx context.Context, creds Credentials) error
	ConvertAnonymousAccount(ctx context.Context, creds Credentials) error
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) error
	DeleteAccount(ctx context.Context) error
	OAuthURL(ctx context.Context, redirectURI string) (string, error)
	OAuthCallback(ctx context.Context, code, state string) error
	BasicInfo(ctx context.Context) (*model.BasicInfo, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	RenameCustomer(ctx context.Context, from, to string) error
	DuplicateCustomer(ctx context.Context, from, to string) error
	DeleteCustomer(ctx context.Context, name string) error
}

// Credentials is an email/password pair.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UploadRequest describes one file upload.
type UploadRequest struct {
	Customer       string
	FileName       string
	Content        []byte
	Password       string
	ReplacedFileID string
	ImageHash      string
}

// CreateFormRequest asks the backend to synthesize an empty form.
type CreateFormRequest struct {
	Customer             string `json:"customerDataEntryName"`
	FormType             string `json:"formType"`
	IdentificationNumber string `json:"identificationNumber"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client. Its cookie jar carries the
// session.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithCookieJar replaces the in-memory cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *httpClient) {
		c.http.Jar = jar
	}
}

// WithTimeout bounds each request. The default is no client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit throttles requests to rps per second; zero disables.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithMaxAttempts sets how many times an idempotent GET is tried.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial retry delay.
func WithBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.backoff = d
	}
}

type httpClient struct {
	authBaseURL string
	apiBaseURL  string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

// NewClient creates a backend client for the given service base URLs.
func NewClient(authBaseURL, apiBaseURL string, opts ...Option) Client {
	jar, _ := cookiejar.New(nil)
	c := &httpClient{
		authBaseURL: authBaseURL,
		apiBaseURL:  apiBaseURL,
		http: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:     rate.NewLimiter(5, 5),
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// send executes one request and returns the body of a 2xx response. Any
// other status becomes an *APIError.
func (c *httpClient) send(req *http.Request) ([]byte, int, error) {
	if err := c.wait(req.Context()); err != nil {
		return nil, 0, eris.Wrap(err, "taxapi: rate limit")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "taxapi: %s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "taxapi: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, newAPIError(resp.StatusCode, body)
	}
	return body, resp.StatusCode, nil
}

// get performs an idempotent GET with exponential backoff on transient
// statuses and network errors.
func (c *httpClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "taxapi: create request")
		}
		req.Header.Set("Accept", "application/json")

		body, status, err := c.send(req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if _, isAPI := AsAPIError(err); isAPI && !retryableStatusCode(status) {
			return nil, err
		}
		if ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}

		zap.L().Debug("taxapi: retrying request",
			zap.String("url", req.URL.Path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *httpClient) doJSON(ctx context.Context, method, rawURL string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "taxapi: marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, _, err := c.send(req)
	return respBody, err
}

func decode[T any](body []byte, what string) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return out, eris.Wrapf(err, "taxapi: unmarshal %s", what)
	}
	return out, nil
}

func (c *httpClient) apiURL(path string, query url.Values) string {
	return buildURL(c.apiBaseURL, path, query)
}

func (c *httpClient) authURL(path string, query url.Values) string {
	return buildURL(c.authBaseURL, path, query)
}

func buildURL(base, path string, query url.Values) string {
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func customerQuery(customer string) url.Values {
	return url.Values{"customerDataEntryName": {customer}}
}
