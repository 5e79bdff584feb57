package devserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	starbazaar "github.com/starbazaar/starbazaar-go"
	"github.com/starbazaar/starbazaar-go/api"
	"github.com/starbazaar/starbazaar-go/cache"
	"github.com/starbazaar/starbazaar-go/devserver"
	"github.com/starbazaar/starbazaar-go/poll"
	"github.com/starbazaar/starbazaar-go/wallet"
)

func newStack(t *testing.T, opts devserver.Options) (*starbazaar.Service, *api.Client) {
	t.Helper()

	ts := httptest.NewServer(devserver.New(opts).Handler())
	t.Cleanup(ts.Close)

	client := api.NewClient(&api.Config{
		BaseURL: ts.URL,
		Cache:   cache.New(cache.WithValidator(api.CacheValidator())),
	})
	svc := starbazaar.NewService(client,
		starbazaar.WithPollDefaults(5*time.Millisecond, 50),
	)
	return svc, client
}

func loginAndRegister(t *testing.T, svc *starbazaar.Service) *starbazaar.Wallet {
	t.Helper()

	_, err := svc.Login(context.Background(), "query_id=dev&user=dev")
	require.NoError(t, err)

	key, err := wallet.Generate()
	require.NoError(t, err)
	registered, err := svc.RegisterLocalWallet(context.Background(), key, "main")
	require.NoError(t, err)
	return registered
}

func TestDepositFlowEndToEnd(t *testing.T) {
	svc, _ := newStack(t, devserver.Options{ConfirmAfter: 2})
	w := loginAndRegister(t, svc)

	ctx := context.Background()

	// Prime the balance cache at zero so the post-confirmation read proves
	// the invalidation happened.
	before, err := svc.Backend().GetBalance(ctx, w.Address, starbazaar.AssetTON)
	require.NoError(t, err)
	assert.Equal(t, int64(0), before.Amount)

	var mu sync.Mutex
	var confirmed []starbazaar.PaymentConfirmedEvent
	svc.Bus().Subscribe(starbazaar.TopicPayments, func(topic string, payload interface{}) {
		if ev, ok := payload.(starbazaar.PaymentConfirmedEvent); ok {
			mu.Lock()
			confirmed = append(confirmed, ev)
			mu.Unlock()
		}
	})

	payment, err := svc.Backend().CreateDeposit(ctx, starbazaar.PaymentRequest{
		Address: w.Address,
		Asset:   starbazaar.AssetTON,
		Amount:  250,
	})
	require.NoError(t, err)
	require.Equal(t, starbazaar.PaymentPending, payment.Status)

	session := svc.ConfirmDeposit(ctx, payment.ID)
	status, err := session.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, poll.StatusSucceeded, status)

	mu.Lock()
	require.Len(t, confirmed, 1)
	assert.Equal(t, payment.ID, confirmed[0].Payment.ID)
	mu.Unlock()

	after, err := svc.Backend().GetBalance(ctx, w.Address, starbazaar.AssetTON)
	require.NoError(t, err)
	assert.Equal(t, int64(250), after.Amount)
}

func TestStarsInvoiceFlow(t *testing.T) {
	svc, _ := newStack(t, devserver.Options{ConfirmAfter: 1, StartingStars: 100})
	loginAndRegister(t, svc)

	ctx := context.Background()

	invoice, err := svc.Backend().CreateStarsInvoice(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, starbazaar.InvoicePending, invoice.Status)
	require.NotEmpty(t, invoice.Link)

	session := svc.ConfirmStarsInvoice(ctx, invoice.ID)
	status, err := session.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, poll.StatusSucceeded, status)

	stars, err := svc.Backend().GetStarsBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), stars)
}

func TestOfferEscrowFlow(t *testing.T) {
	svc, _ := newStack(t, devserver.Options{ConfirmAfter: 2})
	loginAndRegister(t, svc)

	ctx := context.Background()

	listing, err := svc.Backend().CreateListing(ctx, starbazaar.CreateListingRequest{
		NFTID: "nft-1",
		Price: 900,
		Asset: starbazaar.AssetTON,
	})
	require.NoError(t, err)

	offer, err := svc.Backend().MakeOffer(ctx, listing.ID, 850, starbazaar.AssetTON)
	require.NoError(t, err)
	require.Equal(t, starbazaar.OfferPending, offer.Status)

	accepted, err := svc.Backend().AcceptOffer(ctx, offer.ID)
	require.NoError(t, err)
	require.Equal(t, starbazaar.OfferEscrowed, accepted.Status)

	session := svc.AwaitOfferEscrow(ctx, offer.ID)
	status, err := session.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, poll.StatusSucceeded, status)

	sold, err := svc.Backend().GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, starbazaar.ListingSold, sold.Status)
}

func TestMintFlow(t *testing.T) {
	svc, _ := newStack(t, devserver.Options{ConfirmAfter: 1})
	loginAndRegister(t, svc)

	ctx := context.Background()

	job, err := svc.Backend().MintNFT(ctx, starbazaar.MintRequest{Name: "Shiny"})
	require.NoError(t, err)
	require.Equal(t, starbazaar.MintPending, job.Status)

	session := svc.AwaitMint(ctx, job.ID)
	status, err := session.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, poll.StatusSucceeded, status)

	done, err := svc.Backend().GetMintJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, starbazaar.MintCompleted, done.Status)
	assert.NotEmpty(t, done.NFTID)
}

func TestServiceAdoptsClientCache(t *testing.T) {
	svc, client := newStack(t, devserver.Options{})

	require.NotNil(t, client.Cache())
	assert.Same(t, client.Cache(), svc.Cache())

	other := cache.New()
	override := starbazaar.NewService(client, starbazaar.WithCache(other))
	assert.Same(t, other, override.Cache())
}

func TestLogoutClearsClientCache(t *testing.T) {
	handler := devserver.New(devserver.Options{}).Handler()
	var walletReads int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/v1/wallets" {
			atomic.AddInt32(&walletReads, 1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	client := api.NewClient(&api.Config{
		BaseURL: ts.URL,
		Cache:   cache.New(cache.WithValidator(api.CacheValidator())),
	})
	svc := starbazaar.NewService(client)

	ctx := context.Background()
	_, err := svc.Login(ctx, "query_id=dev&user=dev")
	require.NoError(t, err)

	_, err = client.GetWallets(ctx)
	require.NoError(t, err)
	_, err = client.GetWallets(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&walletReads))

	require.NoError(t, svc.Logout())

	_, err = svc.Login(ctx, "query_id=dev&user=dev")
	require.NoError(t, err)
	_, err = client.GetWallets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&walletReads))
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	_, client := newStack(t, devserver.Options{})

	_, err := client.GetWallets(context.Background())
	require.Error(t, err)

	var apiErr *starbazaar.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, starbazaar.ErrCodeUnauthorized, apiErr.Code)
}

func TestDepositIdempotencyKeyReplays(t *testing.T) {
	ts := httptest.NewServer(devserver.New(devserver.Options{}).Handler())
	defer ts.Close()

	token := loginRaw(t, ts.URL)

	body := `{"address":"0xabc","asset":"TON","amount":50,"idempotencyKey":"dup-1"}`
	first := postRaw(t, ts.URL+"/api/v1/payments/deposits", token, body)
	second := postRaw(t, ts.URL+"/api/v1/payments/deposits", token, body)

	assert.Equal(t, first.ID, second.ID)
}

func loginRaw(t *testing.T, baseURL string) string {
	t.Helper()

	resp, err := http.Post(baseURL+"/api/v1/auth/login", "application/json",
		bytes.NewBufferString(`{"initData":"raw"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var auth starbazaar.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&auth))
	return auth.Token
}

func postRaw(t *testing.T, url, token, body string) starbazaar.Payment {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var p starbazaar.Payment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}
