package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.mercadopago.com"

// ErrProviderRead wraps every failed call to the provider: transport errors,
// timeouts, non-2xx answers and undecodable bodies. It is always retryable.
var ErrProviderRead = errors.New("payment provider request failed")

const maxBodyBytes = 1 << 20

// DefaultTokenLifetime applies when a token response carries no expires_in.
const DefaultTokenLifetime = 6 * time.Hour

type Client struct {
	baseURL       string
	platformToken string
	clientID      string
	clientSecret  string
	httpClient    *http.Client
	timeout       time.Duration
}

type Option func(*Client)

// WithOAuthApp sets the marketplace application credentials used to renew
// organizer tokens.
func WithOAuthApp(clientID, clientSecret string) Option {
	return func(c *Client) {
		c.clientID = clientID
		c.clientSecret = clientSecret
	}
}

func NewClient(baseURL, platformToken string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		platformToken: platformToken,
		httpClient:    &http.Client{Timeout: timeout},
		timeout:       timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPayment fetches the authoritative payment record using the platform credential.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: empty payment id", ErrProviderRead)
	}
	var payment Payment
	path := "/v1/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, path, c.platformToken, nil, &payment); err != nil {
		return nil, err
	}
	if payment.ID == "" {
		return nil, fmt.Errorf("%w: payment %s: response without id", ErrProviderRead, paymentID)
	}
	return &payment, nil
}

func (c *Client) GetPreference(ctx context.Context, preferenceID string) (*Preference, error) {
	var pref Preference
	path := "/checkout/preferences/" + url.PathEscape(preferenceID)
	if err := c.do(ctx, http.MethodGet, path, c.platformToken, nil, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// SearchPayments lists every payment attempt recorded for an external reference.
func (c *Client) SearchPayments(ctx context.Context, externalReference string) ([]Payment, error) {
	q := url.Values{}
	q.Set("external_reference", externalReference)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")
	var res paymentSearch
	if err := c.do(ctx, http.MethodGet, "/v1/payments/search?"+q.Encode(), c.platformToken, nil, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// CreatePreference creates a checkout preference on behalf of the organizer
// whose token is given, with the marketplace fee attached.
func (c *Client) CreatePreference(ctx context.Context, sellerToken string, req PreferenceRequest) (*Preference, error) {
	if sellerToken == "" {
		return nil, fmt.Errorf("%w: missing seller credential", ErrProviderRead)
	}
	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", sellerToken, req, &pref); err != nil {
		return nil, err
	}
	if pref.ID == "" {
		return nil, fmt.Errorf("%w: preference response without id", ErrProviderRead)
	}
	return &pref, nil
}

// RefreshToken renews an organizer's access token through the OAuth
// refresh_token grant.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*OAuthToken, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, fmt.Errorf("%w: oauth application credentials not configured", ErrProviderRead)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", ErrProviderRead)
	}
	req := oauthRefreshRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	}
	var token OAuthToken
	if err := c.do(ctx, http.MethodPost, "/oauth/token", "", req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", ErrProviderRead)
	}
	if token.ExpiresIn <= 0 {
		token.ExpiresIn = int64(DefaultTokenLifetime / time.Second)
	}
	return &token, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrProviderRead, err)
		}
		body = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrProviderRead, err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrProviderRead, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrProviderRead, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrProviderRead, method, path, resp.StatusCode, truncate(respBody, 256))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderRead, path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
