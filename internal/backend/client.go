// Package backend is the REST client for the storefront backend. Every
// identity-bearing call goes through the same request-shaping function,
// which attaches a fresh bearer token if and only if a user is signed in.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bsms/storefront/internal/auth"
	"github.com/bsms/storefront/internal/catalog"
)

// ErrStatus signals a non-success HTTP status from the backend.
var ErrStatus = errors.New("backend returned non-success status")

// TokenSource hands out bearer tokens for the current identity. It is
// expected to return auth.ErrNoUser when nobody is signed in.
type TokenSource interface {
	Token(ctx context.Context, force bool) (string, error)
}

// Client calls the storefront backend. baseURL points at the v2 API root;
// legacyURL at the pre-v2 root kept as a catalog fallback.
type Client struct {
	http      *http.Client
	baseURL   string
	legacyURL string
	tokens    TokenSource
	logger    *slog.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL, legacyURL string, timeout time.Duration, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		legacyURL: strings.TrimRight(legacyURL, "/"),
		tokens:    tokens,
		logger:    logger.With("component", "backend"),
	}
}

// FetchProducts retrieves the full product list, falling back to the
// legacy endpoint when the v2 endpoint fails.
func (c *Client) FetchProducts(ctx context.Context) ([]catalog.Product, error) {
	products, err := c.fetchProductsFrom(ctx, c.baseURL)
	if err == nil {
		return products, nil
	}
	if c.legacyURL == "" {
		return nil, err
	}
	c.logger.WarnContext(ctx, "v2 product fetch failed, trying legacy endpoint", "error", err)
	products, legacyErr := c.fetchProductsFrom(ctx, c.legacyURL)
	if legacyErr != nil {
		return nil, fmt.Errorf("v2: %w; legacy: %v", err, legacyErr)
	}
	return products, nil
}

func (c *Client) fetchProductsFrom(ctx context.Context, base string) ([]catalog.Product, error) {
	resp, err := c.do(ctx, http.MethodGet, base+"/public/products", nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d fetching products", ErrStatus, resp.StatusCode)
	}
	var products []catalog.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("failed to decode product list: %w", err)
	}
	return products, nil
}

// SyncProfile pushes the signed-in user's profile fields to the backend.
func (c *Client) SyncProfile(ctx context.Context, user *auth.User) error {
	body := map[string]string{
		"uid":         user.UID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"photoUrl":    user.PhotoURL,
	}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/user/profile/sync", body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d syncing profile", ErrStatus, resp.StatusCode)
	}
	return nil
}

// SubmitOrder posts an order and returns the created order.
func (c *Client) SubmitOrder(ctx context.Context, order *OrderRequest) (*OrderResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/user/orders", order)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d submitting order", ErrStatus, resp.StatusCode)
	}
	var created OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return &created, nil
}

// AddWishlist records a wishlist membership on the backend.
func (c *Client) AddWishlist(ctx context.Context, uid string, productID catalog.ID) error {
	return c.wishlist(ctx, http.MethodPost, uid, productID)
}

// RemoveWishlist removes a wishlist membership on the backend.
func (c *Client) RemoveWishlist(ctx context.Context, uid string, productID catalog.ID) error {
	return c.wishlist(ctx, http.MethodDelete, uid, productID)
}

func (c *Client) wishlist(ctx context.Context, method, uid string, productID catalog.ID) error {
	endpoint := fmt.Sprintf("%s/user/wishlist/%s/%s",
		c.baseURL, url.PathEscape(uid), url.PathEscape(string(productID)))
	resp, err := c.do(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d syncing wishlist", ErrStatus, resp.StatusCode)
	}
	return nil
}

// do shapes every outbound request: JSON body, correlation id, and a
// force-refreshed bearer token when a user is signed in. With nobody
// signed in the request goes out unauthenticated.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	token, err := c.tokens.Token(ctx, true)
	switch {
	case err == nil:
		req.Header.Set("Authorization", "Bearer "+token)
	case errors.Is(err, auth.ErrNoUser):
		// Unauthenticated call.
	default:
		c.logger.WarnContext(ctx, "Token fetch failed, proceeding unauthenticated", "error", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	return resp, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
