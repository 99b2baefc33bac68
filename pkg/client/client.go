package client

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

	"github.com/senseease/senseease/pkg/types"
)

const (
	defaultTimeout = 10 * time.Second
	defaultHeader  = "x-api-key"
	apiPrefix      = "/api/v1"
)

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("senseease: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Permanent reports whether retrying the same request cannot succeed.
// All 4xx statuses except 408 and 429 are permanent.
func (e *APIError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanent reports whether err is an APIError that should not be retried.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Permanent()
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the senseease HTTP API. It is safe for concurrent use.
type Client struct {
	baseURL string
	header  string
	key     string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in header on every request. An empty header uses
// the server default "x-api-key".
func WithAPIKey(header, key string) Option {
	return func(c *Client) {
		if header == "" {
			header = defaultHeader
		}
		c.header = header
		c.key = key
	}
}

// WithHTTPClient replaces the default http.Client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// --- carts ---

// Cart returns the cart id. Unknown carts come back empty.
func (c *Client) Cart(ctx context.Context, id string) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodGet, "/carts/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddItem adds item to the cart, merging with an existing identical line.
func (c *Client) AddItem(ctx context.Context, cartID string, item Item) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/items", item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateItem sets a line's quantity. Zero or less removes the line.
func (c *Client) UpdateItem(ctx context.Context, cartID, lineID string, qty int) (*Cart, error) {
	var out Cart
	body := struct {
		Quantity int `json:"quantity"`
	}{qty}
	path := "/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(lineID)
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveItem removes a line. Removing an absent line is not an error.
func (c *Client) RemoveItem(ctx context.Context, cartID, lineID string) (*Cart, error) {
	var out Cart
	path := "/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(lineID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyCoupon applies a coupon to the cart.
func (c *Client) ApplyCoupon(ctx context.Context, cartID string, cp Coupon) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/coupons", cp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveCoupon removes a coupon by code.
func (c *Client) RemoveCoupon(ctx context.Context, cartID, code string) (*Cart, error) {
	var out Cart
	path := "/carts/" + url.PathEscape(cartID) + "/coupons/" + url.PathEscape(code)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearCart empties the cart's lines and coupons.
func (c *Client) ClearCart(ctx context.Context, cartID string) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodDelete, "/carts/"+url.PathEscape(cartID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Quote prices req without creating a cart.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var out Quote
	if err := c.do(ctx, http.MethodPost, "/quote", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- sessions ---

// RecordEvents appends events to a session's log and returns the updated
// stress view.
func (c *Client) RecordEvents(ctx context.Context, sessionID string, events []types.InteractionEvent) (*RecordResult, error) {
	var out RecordResult
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/events", events, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events returns a session's interaction log, oldest first.
func (c *Client) Events(ctx context.Context, sessionID string) (*Events, error) {
	var out Events
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/events", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetEvents clears a session's log.
func (c *Client) ResetEvents(ctx context.Context, sessionID string) (*Stress, error) {
	var out Stress
	if err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID)+"/events", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stress returns the session's current stress evaluation.
func (c *Client) Stress(ctx context.Context, sessionID string) (*Stress, error) {
	var out Stress
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/stress", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- preferences ---

// Preferences returns a user's preferences, or the defaults if none are saved.
func (c *Client) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	var out Preferences
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/preferences", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePreferences applies patch and returns the stored result.
func (c *Client) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	var out Preferences
	if err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/preferences", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Alerts lists firing and recently resolved calming alerts.
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	if err := c.do(ctx, http.MethodGet, "/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- transport ---

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set(c.header, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
