package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	starbazaar "github.com/starbazaar/starbazaar-go"
	"github.com/starbazaar/starbazaar-go/cache"
)

type countingHandler struct {
	hits map[string]*int64
	mux  *http.ServeMux
}

func newBackend() *countingHandler {
	return &countingHandler{hits: make(map[string]*int64), mux: http.NewServeMux()}
}

func (b *countingHandler) handle(pattern string, status int, payload interface{}) {
	var count int64
	b.hits[pattern] = &count
	b.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&count, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if payload != nil {
			json.NewEncoder(w).Encode(payload) //nolint:errcheck
		}
	})
}

func (b *countingHandler) hitCount(pattern string) int64 {
	return atomic.LoadInt64(b.hits[pattern])
}

func newTestClient(t *testing.T, backend *countingHandler, opts ...cache.Option) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.mux)
	t.Cleanup(srv.Close)
	return NewClient(&Config{
		BaseURL: srv.URL,
		Cache:   cache.New(opts...),
		Timeout: 5 * time.Second,
	})
}

func TestLogin_InstallsToken(t *testing.T) {
	backend := newBackend()
	backend.handle("POST /api/v1/auth/login", http.StatusOK, starbazaar.AuthResponse{
		Token: "tok-42",
		User:  starbazaar.User{ID: "u1", TelegramID: 7},
	})

	client := newTestClient(t, backend)
	resp, err := client.Login(context.Background(), "init-data-blob")
	require.NoError(t, err)
	assert.Equal(t, "tok-42", resp.Token)
	assert.Equal(t, "tok-42", client.Token())
}

func TestAuthHeaderSent(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/offers/o1", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(starbazaar.Offer{ID: "o1", Status: starbazaar.OfferPending}) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(&Config{BaseURL: srv.URL})
	client.SetToken("secret")
	_, err := client.GetOffer(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestGetWallets_Cached(t *testing.T) {
	backend := newBackend()
	backend.handle("GET /api/v1/wallets", http.StatusOK, []starbazaar.Wallet{{Address: "0xabc"}})

	client := newTestClient(t, backend)
	for i := 0; i < 3; i++ {
		wallets, err := client.GetWallets(context.Background())
		require.NoError(t, err)
		require.Len(t, wallets, 1)
		assert.Equal(t, "0xabc", wallets[0].Address)
	}

	assert.EqualValues(t, 1, backend.hitCount("GET /api/v1/wallets"), "repeat reads served from cache")
}

func TestCreateListing_InvalidatesListings(t *testing.T) {
	backend := newBackend()
	backend.handle("GET /api/v1/listings", http.StatusOK, []starbazaar.Listing{})
	backend.handle("GET /api/v1/wallets", http.StatusOK, []starbazaar.Wallet{})
	backend.handle("POST /api/v1/listings", http.StatusCreated, starbazaar.Listing{ID: "l1", Status: starbazaar.ListingActive})

	client := newTestClient(t, backend)
	ctx := context.Background()

	_, err := client.GetListings(ctx, starbazaar.ListingFilter{})
	require.NoError(t, err)
	_, err = client.GetWallets(ctx)
	require.NoError(t, err)

	_, err = client.CreateListing(ctx, starbazaar.CreateListingRequest{NFTID: "n1", Price: 5, Asset: starbazaar.AssetTON})
	require.NoError(t, err)

	_, err = client.GetListings(ctx, starbazaar.ListingFilter{})
	require.NoError(t, err)
	_, err = client.GetWallets(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, backend.hitCount("GET /api/v1/listings"), "listings refetched after mutation")
	assert.EqualValues(t, 1, backend.hitCount("GET /api/v1/wallets"), "wallets cache untouched")
}

func TestGetInvoice_NeverCached(t *testing.T) {
	backend := newBackend()
	backend.handle("GET /api/v1/stars/invoices/inv1", http.StatusOK, starbazaar.Invoice{
		ID: "inv1", Amount: 100, Status: starbazaar.InvoicePending,
	})

	client := newTestClient(t, backend)
	for i := 0; i < 3; i++ {
		_, err := client.GetInvoice(context.Background(), "inv1")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, backend.hitCount("GET /api/v1/stars/invoices/inv1"), "poll target must stay fresh")
}

func TestAPIErrorDecoded(t *testing.T) {
	backend := newBackend()
	backend.handle("POST /api/v1/payments/withdrawals", http.StatusUnprocessableEntity, starbazaar.APIError{
		Code:    starbazaar.ErrCodeInsufficientFunds,
		Message: "balance too low",
	})

	client := newTestClient(t, backend)
	_, err := client.CreateWithdrawal(context.Background(), starbazaar.PaymentRequest{
		Address: "0xabc", Asset: starbazaar.AssetUSDT, Amount: 1000,
	})

	var apiErr *starbazaar.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, starbazaar.ErrCodeInsufficientFunds, apiErr.Code)
}

func TestCreateDeposit_FillsIdempotencyKey(t *testing.T) {
	var gotKey string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/payments/deposits", func(w http.ResponseWriter, r *http.Request) {
		var req starbazaar.PaymentRequest
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		gotKey = req.IdempotencyKey
		json.NewEncoder(w).Encode(starbazaar.Payment{ //nolint:errcheck
			ID: "p1", Kind: "deposit", Amount: req.Amount, Status: starbazaar.PaymentPending,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(&Config{BaseURL: srv.URL})
	_, err := client.CreateDeposit(context.Background(), starbazaar.PaymentRequest{
		Address: "0xabc", Asset: starbazaar.AssetUSDT, Amount: 10,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, gotKey)
}

func TestInvoiceSchemaRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/stars/invoices/bad", func(w http.ResponseWriter, r *http.Request) {
		// Status outside the invoice enum.
		w.Write([]byte(`{"id":"bad","amount":5,"status":"garbled"}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(&Config{BaseURL: srv.URL})
	_, err := client.GetInvoice(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestCacheValidator_EvictsCorruptEntry(t *testing.T) {
	validator := CacheValidator()

	assert.Error(t, validator("balance:0xabc:USDT", []byte(`{"oops":true}`)))
	assert.NoError(t, validator("balance:0xabc:USDT", []byte(`{"address":"0xabc","asset":"USDT","amount":5}`)))
	// Unknown prefixes pass through unvalidated.
	assert.NoError(t, validator("referrals:stats", []byte(`whatever`)))
}

func TestNetworkErrorSurfaces(t *testing.T) {
	client := NewClient(&Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := client.GetWallets(context.Background())
	require.Error(t, err)

	var apiErr *starbazaar.APIError
	assert.False(t, errors.As(err, &apiErr), "transport errors are not APIErrors")
}
