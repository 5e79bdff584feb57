// Package api implements the starbazaar.Backend contract over the
// marketplace REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	starbazaar "github.com/starbazaar/starbazaar-go"
	"github.com/starbazaar/starbazaar-go/cache"
)

var _ starbazaar.Backend = (*Client)(nil)

// Cache key prefixes. Mutations invalidate these; pollers read the
// uncached endpoints instead.
const (
	prefixWallets      = "wallets"
	prefixBalance      = "balance"
	prefixListings     = "listings"
	prefixUserListings = "userListings"
	prefixOffers       = "offers"
	prefixPayments     = "payments"
	prefixReferrals    = "referrals"
)

// Config configures the API client
type Config struct {
	// BaseURL is the backend root, e.g. "https://api.starbazaar.app"
	BaseURL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s); ignored when
	// HTTPClient is set
	Timeout time.Duration

	// Cache routes idempotent GETs through a TTL cache (optional)
	Cache *cache.Cache

	// Logger (optional)
	Logger *slog.Logger
}

// Client talks to the marketplace backend. Reads go through the cache when
// one is configured; status endpoints used by confirmation pollers always
// hit the network.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	log        *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a new API client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	log := config.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:    config.BaseURL,
		httpClient: httpClient,
		cache:      config.Cache,
		log:        log,
	}
}

// SetToken installs the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token, empty when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Cache returns the cache reads are routed through, nil when the client
// was built without one. starbazaar.NewService adopts it so flow
// invalidations land on the same instance the reads come from.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// ============================================================================
// Auth
// ============================================================================

// Login exchanges Telegram WebApp initData for a bearer token and installs
// it on the client.
func (c *Client) Login(ctx context.Context, initData string) (*starbazaar.AuthResponse, error) {
	var resp starbazaar.AuthResponse
	body := map[string]string{"initData": initData}
	if err := c.postJSON(ctx, "/api/v1/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// ============================================================================
// Wallets
// ============================================================================

// WalletChallenge asks the backend for a registration nonce to sign.
func (c *Client) WalletChallenge(ctx context.Context, address string) (*starbazaar.WalletChallenge, error) {
	var resp starbazaar.WalletChallenge
	body := map[string]string{"address": address}
	if err := c.postJSON(ctx, "/api/v1/wallets/challenge", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterWallet completes wallet registration with a signed challenge.
func (c *Client) RegisterWallet(ctx context.Context, req starbazaar.RegisterWalletRequest) (*starbazaar.Wallet, error) {
	var resp starbazaar.Wallet
	if err := c.postJSON(ctx, "/api/v1/wallets", req, &resp); err != nil {
		return nil, err
	}
	c.invalidate(prefixWallets)
	return &resp, nil
}

// GetWallets lists the user's registered wallets (cached).
func (c *Client) GetWallets(ctx context.Context) ([]starbazaar.Wallet, error) {
	var resp []starbazaar.Wallet
	if err := c.getJSON(ctx, "/api/v1/wallets", prefixWallets, schemaWallets, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetBalance returns one wallet's balance for an asset (cached).
func (c *Client) GetBalance(ctx context.Context, address string, asset starbazaar.Asset) (*starbazaar.Balance, error) {
	var resp starbazaar.Balance
	path := fmt.Sprintf("/api/v1/wallets/%s/balance?asset=%s", url.PathEscape(address), url.QueryEscape(string(asset)))
	key := fmt.Sprintf("%s:%s:%s", prefixBalance, address, asset)
	if err := c.getJSON(ctx, path, key, schemaBalance, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ============================================================================
// Marketplace
// ============================================================================

// GetListings browses the marketplace (cached per filter).
func (c *Client) GetListings(ctx context.Context, filter starbazaar.ListingFilter) ([]starbazaar.Listing, error) {
	query := url.Values{}
	if filter.Collection != "" {
		query.Set("collection", filter.Collection)
	}
	if filter.Seller != "" {
		query.Set("seller", filter.Seller)
	}
	if filter.MaxPrice > 0 {
		query.Set("maxPrice", strconv.FormatInt(filter.MaxPrice, 10))
	}
	if filter.Asset != "" {
		query.Set("asset", string(filter.Asset))
	}

	path := "/api/v1/listings"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	key := prefixListings + ":" + query.Encode()

	var resp []starbazaar.Listing
	if err := c.getJSON(ctx, path, key, schemaListings, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetListing fetches one listing (cached under the listings prefix so a
// mutation drops it together with the browse pages).
func (c *Client) GetListing(ctx context.Context, id string) (*starbazaar.Listing, error) {
	var resp starbazaar.Listing
	path := "/api/v1/listings/" + url.PathEscape(id)
	key := prefixListings + ":id:" + id
	if err := c.getJSON(ctx, path, key, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetUserListings lists the authenticated user's own listings (cached).
func (c *Client) GetUserListings(ctx context.Context) ([]starbazaar.Listing, error) {
	var resp []starbazaar.Listing
	if err := c.getJSON(ctx, "/api/v1/listings/mine", prefixUserListings, schemaListings, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateListing puts an NFT up for sale and invalidates listing caches.
func (c *Client) CreateListing(ctx context.Context, req starbazaar.CreateListingRequest) (*starbazaar.Listing, error) {
	var resp starbazaar.Listing
	if err := c.postJSON(ctx, "/api/v1/listings", req, &resp); err != nil {
		return nil, err
	}
	c.invalidate(prefixListings, prefixUserListings)
	return &resp, nil
}

// CancelListing withdraws a listing and invalidates listing caches.
func (c *Client) CancelListing(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/listings/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	c.invalidate(prefixListings, prefixUserListings)
	return nil
}

// ============================================================================
// Offers
// ============================================================================

// MakeOffer bids on a listing.
func (c *Client) MakeOffer(ctx context.Context, listingID string, price int64, asset starbazaar.Asset) (*starbazaar.Offer, error) {
	var resp starbazaar.Offer
	body := map[string]interface{}{
		"listingId": listingID,
		"price":     price,
		"asset":     asset,
	}
	if err := c.postJSON(ctx, "/api/v1/offers", body, &resp); err != nil {
		return nil, err
	}
	c.invalidate(prefixOffers)
	return &resp, nil
}

// AcceptOffer accepts a bid; funds move to escrow and settle asynchronously.
func (c *Client) AcceptOffer(ctx context.Context, id string) (*starbazaar.Offer, error) {
	var resp starbazaar.Offer
	if err := c.postJSON(ctx, "/api/v1/offers/"+url.PathEscape(id)+"/accept", nil, &resp); err != nil {
		return nil, err
	}
	c.invalidate(prefixOffers, prefixListings)
	return &resp, nil
}

// DeclineOffer rejects a bid.
func (c *Client) DeclineOffer(ctx context.Context, id string) error {
	if err := c.postJSON(ctx, "/api/v1/offers/"+url.PathEscape(id)+"/decline", nil, nil); err != nil {
		return err
	}
	c.invalidate(prefixOffers)
	return nil
}

// GetOffer fetches one offer. Uncached: escrow pollers need fresh state.
func (c *Client) GetOffer(ctx context.Context, id string) (*starbazaar.Offer, error) {
	var resp starbazaar.Offer
	if err := c.getJSON(ctx, "/api/v1/offers/"+url.PathEscape(id), "", "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOffers lists the user's offers (cached).
func (c *Client) GetOffers(ctx context.Context) ([]starbazaar.Offer, error) {
	var resp []starbazaar.Offer
	if err := c.getJSON(ctx, "/api/v1/offers", prefixOffers, "", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ============================================================================
// Minting
// ============================================================================

// MintNFT submits an asynchronous mint; confirm it via the poller.
func (c *Client) MintNFT(ctx context.Context, req starbazaar.MintRequest) (*starbazaar.MintJob, error) {
	var resp starbazaar.MintJob
	if err := c.postJSON(ctx, "/api/v1/nfts/mint", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMintJob fetches a mint job. Uncached: pollers need fresh status.
func (c *Client) GetMintJob(ctx context.Context, id string) (*starbazaar.MintJob, error) {
	var resp starbazaar.MintJob
	if err := c.getJSON(ctx, "/api/v1/nfts/mint/"+url.PathEscape(id), "", "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ============================================================================
// Stars
// ============================================================================

// CreateStarsInvoice asks the backend for a Telegram Stars invoice link.
func (c *Client) CreateStarsInvoice(ctx context.Context, amount int64) (*starbazaar.Invoice, error) {
	var resp starbazaar.Invoice
	body := map[string]int64{"amount": amount}
	if err := c.postJSON(ctx, "/api/v1/stars/invoices", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetInvoice fetches invoice status. Uncached: this is the poll target.
func (c *Client) GetInvoice(ctx context.Context, id string) (*starbazaar.Invoice, error) {
	var resp starbazaar.Invoice
	if err := c.getJSON(ctx, "/api/v1/stars/invoices/"+url.PathEscape(id), "", schemaInvoice, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStarsBalance returns the user's Stars balance. Uncached: the
// balance-delta fallback check reads it in a poll loop.
func (c *Client) GetStarsBalance(ctx context.Context) (int64, error) {
	var resp struct {
		Amount int64 `json:"amount"`
	}
	if err := c.getJSON(ctx, "/api/v1/stars/balance", "", "", &resp); err != nil {
		return 0, err
	}
	return resp.Amount, nil
}

// ============================================================================
// Payments
// ============================================================================

// CreateDeposit starts a deposit. An idempotency key is generated when the
// request carries none, so a retried POST cannot double-deposit.
func (c *Client) CreateDeposit(ctx context.Context, req starbazaar.PaymentRequest) (*starbazaar.Payment, error) {
	return c.createPayment(ctx, "/api/v1/payments/deposits", req)
}

// CreateWithdrawal starts a withdrawal.
func (c *Client) CreateWithdrawal(ctx context.Context, req starbazaar.PaymentRequest) (*starbazaar.Payment, error) {
	return c.createPayment(ctx, "/api/v1/payments/withdrawals", req)
}

func (c *Client) createPayment(ctx context.Context, path string, req starbazaar.PaymentRequest) (*starbazaar.Payment, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	var resp starbazaar.Payment
	if err := c.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	c.invalidate(prefixPayments)
	return &resp, nil
}

// GetPayment fetches a payment's escrow status. Uncached: poll target.
func (c *Client) GetPayment(ctx context.Context, id string) (*starbazaar.Payment, error) {
	var resp starbazaar.Payment
	if err := c.getJSON(ctx, "/api/v1/payments/"+url.PathEscape(id), "", schemaPayment, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPaymentHistory lists past deposits and withdrawals (cached).
func (c *Client) GetPaymentHistory(ctx context.Context) ([]starbazaar.Payment, error) {
	var resp []starbazaar.Payment
	if err := c.getJSON(ctx, "/api/v1/payments", prefixPayments+":history", "", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ============================================================================
// Referrals
// ============================================================================

// GetReferralStats returns the user's referral summary (cached).
func (c *Client) GetReferralStats(ctx context.Context) (*starbazaar.ReferralStats, error) {
	var resp starbazaar.ReferralStats
	if err := c.getJSON(ctx, "/api/v1/referrals/stats", prefixReferrals+":stats", "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApplyReferralCode attributes the account to a referrer.
func (c *Client) ApplyReferralCode(ctx context.Context, code string) error {
	body := map[string]string{"code": code}
	if err := c.postJSON(ctx, "/api/v1/referrals/apply", body, nil); err != nil {
		return err
	}
	c.invalidate(prefixReferrals)
	return nil
}

// ============================================================================
// Transport
// ============================================================================

// getJSON performs a GET, optionally through the cache, validates the raw
// payload against schemaName when given, and decodes into out.
func (c *Client) getJSON(ctx context.Context, path, cacheKey, schemaName string, out interface{}) error {
	loader := func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, http.MethodGet, path, nil)
	}

	var raw []byte
	var err error
	if c.cache != nil && cacheKey != "" {
		raw, err = c.cache.Fetch(ctx, cacheKey, loader)
	} else {
		raw, err = loader(ctx)
	}
	if err != nil {
		return err
	}

	if schemaName != "" {
		if verr := validatePayload(schemaName, raw); verr != nil {
			return fmt.Errorf("response for %s failed validation: %w", path, verr)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

// postJSON performs a POST with a JSON body and decodes into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request for %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	raw, err := c.do(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

// do executes one request and returns the response body. Non-2xx bodies
// are decoded into *starbazaar.APIError when possible.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response for %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr starbazaar.APIError
		if jerr := json.Unmarshal(raw, &apiErr); jerr == nil && apiErr.Code != "" {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}

// invalidate drops cache prefixes after a mutation.
func (c *Client) invalidate(prefixes ...string) {
	if c.cache == nil {
		return
	}
	for _, prefix := range prefixes {
		dropped := c.cache.Invalidate(prefix)
		c.log.Debug("cache invalidated", "prefix", prefix, "dropped", dropped)
	}
}
