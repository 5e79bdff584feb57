// Package devserver is an in-memory fake of the marketplace backend, used
// by the examples and end-to-end tests. Deposits and invoices confirm
// deterministically after a configurable number of status polls. Not for
// production.
package devserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	starbazaar "github.com/starbazaar/starbazaar-go"
)

// Options configures the dev server.
type Options struct {
	// ConfirmAfter is how many status polls a payment or invoice stays
	// pending before confirming. Zero confirms on the first poll.
	ConfirmAfter int

	// StartingStars seeds the Stars balance for new sessions.
	StartingStars int64

	// Logger (optional)
	Logger *slog.Logger
}

// Server holds the fake marketplace state.
type Server struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	tokens    map[string]bool
	wallets   []starbazaar.Wallet
	balances  map[string]int64 // address+asset
	stars     int64
	listings  map[string]*starbazaar.Listing
	offers    map[string]*starbazaar.Offer
	invoices  map[string]*starbazaar.Invoice
	payments  map[string]*starbazaar.Payment
	mints     map[string]*starbazaar.MintJob
	idemKeys  map[string]string // idempotency key -> payment id
	pollSeen  map[string]int    // status polls per object id
	referrals starbazaar.ReferralStats
}

// New creates a dev server.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		opts:      opts,
		log:       log,
		tokens:    make(map[string]bool),
		balances:  make(map[string]int64),
		stars:     opts.StartingStars,
		listings:  make(map[string]*starbazaar.Listing),
		offers:    make(map[string]*starbazaar.Offer),
		invoices:  make(map[string]*starbazaar.Invoice),
		payments:  make(map[string]*starbazaar.Payment),
		mints:     make(map[string]*starbazaar.MintJob),
		idemKeys:  make(map[string]string),
		pollSeen:  make(map[string]int),
		referrals: starbazaar.ReferralStats{Code: "DEV-REF"},
	}
}

// Handler builds the gin engine serving the fake API.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api/v1/auth/login", s.login)

	auth := r.Group("/api/v1", s.requireAuth)
	{
		auth.POST("/wallets/challenge", s.walletChallenge)
		auth.POST("/wallets", s.registerWallet)
		auth.GET("/wallets", s.getWallets)
		auth.GET("/wallets/:address/balance", s.getBalance)

		auth.GET("/listings", s.getListings)
		auth.GET("/listings/mine", s.getUserListings)
		auth.GET("/listings/:id", s.getListing)
		auth.POST("/listings", s.createListing)
		auth.DELETE("/listings/:id", s.cancelListing)

		auth.POST("/offers", s.makeOffer)
		auth.GET("/offers", s.getOffers)
		auth.GET("/offers/:id", s.getOffer)
		auth.POST("/offers/:id/accept", s.acceptOffer)
		auth.POST("/offers/:id/decline", s.declineOffer)

		auth.POST("/nfts/mint", s.mintNFT)
		auth.GET("/nfts/mint/:id", s.getMintJob)

		auth.POST("/stars/invoices", s.createInvoice)
		auth.GET("/stars/invoices/:id", s.getInvoice)
		auth.GET("/stars/balance", s.getStarsBalance)

		auth.POST("/payments/deposits", s.createDeposit)
		auth.POST("/payments/withdrawals", s.createWithdrawal)
		auth.GET("/payments", s.getPaymentHistory)
		auth.GET("/payments/:id", s.getPayment)

		auth.GET("/referrals/stats", s.getReferralStats)
		auth.POST("/referrals/apply", s.applyReferral)
	}

	return r
}

func apiError(c *gin.Context, status int, code, message string) {
	c.JSON(status, starbazaar.APIError{Code: code, Message: message})
}

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	s.mu.Lock()
	ok := s.tokens[token]
	s.mu.Unlock()
	if header == "" || !ok {
		apiError(c, http.StatusUnauthorized, starbazaar.ErrCodeUnauthorized, "missing or unknown token")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		InitData string `json:"initData"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.InitData == "" {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeUnauthorized, "initData required")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()

	c.JSON(http.StatusOK, starbazaar.AuthResponse{
		Token: token,
		User:  starbazaar.User{ID: "dev-user", TelegramID: 1000, Username: "dev", ReferralCode: "DEV-REF"},
	})
}

func (s *Server) walletChallenge(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Address == "" {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeNotFound, "address required")
		return
	}
	c.JSON(http.StatusOK, starbazaar.WalletChallenge{Address: req.Address, Nonce: uuid.NewString()})
}

func (s *Server) registerWallet(c *gin.Context) {
	var req starbazaar.RegisterWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Address == "" || req.Signature == "" {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeInvalidSignature, "address and signature required")
		return
	}

	w := starbazaar.Wallet{Address: req.Address, Label: req.Label, CreatedAt: time.Now().UTC()}
	s.mu.Lock()
	w.Primary = len(s.wallets) == 0
	s.wallets = append(s.wallets, w)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, w)
}

func (s *Server) getWallets(c *gin.Context) {
	s.mu.Lock()
	wallets := append([]starbazaar.Wallet{}, s.wallets...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, wallets)
}

func (s *Server) getBalance(c *gin.Context) {
	address := c.Param("address")
	asset := starbazaar.Asset(c.DefaultQuery("asset", string(starbazaar.AssetTON)))
	s.mu.Lock()
	amount := s.balances[address+":"+string(asset)]
	s.mu.Unlock()
	c.JSON(http.StatusOK, starbazaar.Balance{Address: address, Asset: asset, Amount: amount})
}

func (s *Server) getListings(c *gin.Context) {
	maxPrice, _ := strconv.ParseInt(c.Query("maxPrice"), 10, 64)
	collection := c.Query("collection")
	seller := c.Query("seller")

	s.mu.Lock()
	listings := make([]starbazaar.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if l.Status != starbazaar.ListingActive {
			continue
		}
		if collection != "" && l.NFT.Collection != collection {
			continue
		}
		if seller != "" && l.Seller != seller {
			continue
		}
		if maxPrice > 0 && l.Price > maxPrice {
			continue
		}
		listings = append(listings, *l)
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, listings)
}

func (s *Server) getUserListings(c *gin.Context) {
	s.mu.Lock()
	listings := make([]starbazaar.Listing, 0)
	for _, l := range s.listings {
		if l.Seller == "dev-user" {
			listings = append(listings, *l)
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, listings)
}

func (s *Server) getListing(c *gin.Context) {
	s.mu.Lock()
	l, ok := s.listings[c.Param("id")]
	var copied starbazaar.Listing
	if ok {
		copied = *l
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "listing not found")
		return
	}
	c.JSON(http.StatusOK, copied)
}

func (s *Server) createListing(c *gin.Context) {
	var req starbazaar.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.NFTID == "" || req.Price <= 0 {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeNotFound, "nftId and positive price required")
		return
	}

	l := &starbazaar.Listing{
		ID:        uuid.NewString(),
		NFT:       starbazaar.NFT{ID: req.NFTID, Name: "NFT " + req.NFTID, Owner: "dev-user"},
		Seller:    "dev-user",
		Price:     req.Price,
		Asset:     req.Asset,
		Status:    starbazaar.ListingActive,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.listings[l.ID] = l
	s.mu.Unlock()

	c.JSON(http.StatusCreated, *l)
}

func (s *Server) cancelListing(c *gin.Context) {
	s.mu.Lock()
	l, ok := s.listings[c.Param("id")]
	if ok {
		l.Status = starbazaar.ListingCancelled
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "listing not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) makeOffer(c *gin.Context) {
	var req struct {
		ListingID string           `json:"listingId"`
		Price     int64            `json:"price"`
		Asset     starbazaar.Asset `json:"asset"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ListingID == "" {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeNotFound, "listingId required")
		return
	}

	s.mu.Lock()
	_, exists := s.listings[req.ListingID]
	var offer *starbazaar.Offer
	if exists {
		offer = &starbazaar.Offer{
			ID:        uuid.NewString(),
			ListingID: req.ListingID,
			Buyer:     "dev-user",
			Price:     req.Price,
			Asset:     req.Asset,
			Status:    starbazaar.OfferPending,
			CreatedAt: time.Now().UTC(),
		}
		s.offers[offer.ID] = offer
	}
	s.mu.Unlock()

	if !exists {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "listing not found")
		return
	}
	c.JSON(http.StatusCreated, *offer)
}

func (s *Server) getOffers(c *gin.Context) {
	s.mu.Lock()
	offers := make([]starbazaar.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		offers = append(offers, *o)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, offers)
}

// getOffer advances escrowed offers toward release so AwaitOfferEscrow has
// something to observe.
func (s *Server) getOffer(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	o, ok := s.offers[id]
	var copied starbazaar.Offer
	if ok {
		if o.Status == starbazaar.OfferEscrowed {
			s.pollSeen[id]++
			if s.pollSeen[id] > s.opts.ConfirmAfter {
				o.Status = starbazaar.OfferReleased
				s.settleOffer(o)
			}
		}
		copied = *o
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "offer not found")
		return
	}
	c.JSON(http.StatusOK, copied)
}

// settleOffer marks the listing sold. Caller holds s.mu.
func (s *Server) settleOffer(o *starbazaar.Offer) {
	if l, ok := s.listings[o.ListingID]; ok {
		l.Status = starbazaar.ListingSold
	}
}

func (s *Server) acceptOffer(c *gin.Context) {
	s.mu.Lock()
	o, ok := s.offers[c.Param("id")]
	var copied starbazaar.Offer
	if ok {
		if o.Status != starbazaar.OfferPending {
			s.mu.Unlock()
			apiError(c, http.StatusConflict, starbazaar.ErrCodeOfferClosed, "offer is not pending")
			return
		}
		o.Status = starbazaar.OfferEscrowed
		copied = *o
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "offer not found")
		return
	}
	c.JSON(http.StatusOK, copied)
}

func (s *Server) declineOffer(c *gin.Context) {
	s.mu.Lock()
	o, ok := s.offers[c.Param("id")]
	if ok {
		o.Status = starbazaar.OfferDeclined
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "offer not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) mintNFT(c *gin.Context) {
	var req starbazaar.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeNotFound, "name required")
		return
	}

	job := &starbazaar.MintJob{ID: uuid.NewString(), Status: starbazaar.MintPending}
	s.mu.Lock()
	s.mints[job.ID] = job
	s.mu.Unlock()

	c.JSON(http.StatusAccepted, *job)
}

func (s *Server) getMintJob(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	job, ok := s.mints[id]
	var copied starbazaar.MintJob
	if ok {
		if job.Status == starbazaar.MintPending {
			s.pollSeen[id]++
			if s.pollSeen[id] > s.opts.ConfirmAfter {
				job.Status = starbazaar.MintCompleted
				job.NFTID = uuid.NewString()
			}
		}
		copied = *job
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "mint job not found")
		return
	}
	c.JSON(http.StatusOK, copied)
}

func (s *Server) createInvoice(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeNotFound, "positive amount required")
		return
	}

	inv := &starbazaar.Invoice{
		ID:        uuid.NewString(),
		Amount:    req.Amount,
		Link:      fmt.Sprintf("https://t.me/invoice/%d", time.Now().UnixNano()),
		Status:    starbazaar.InvoicePending,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.invoices[inv.ID] = inv
	s.mu.Unlock()

	c.JSON(http.StatusCreated, *inv)
}

// getInvoice confirms a pending invoice once it has been polled
// ConfirmAfter times, crediting the Stars balance.
func (s *Server) getInvoice(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	inv, ok := s.invoices[id]
	var copied starbazaar.Invoice
	if ok {
		if inv.Status == starbazaar.InvoicePending {
			s.pollSeen[id]++
			if s.pollSeen[id] > s.opts.ConfirmAfter {
				inv.Status = starbazaar.InvoicePaid
				s.stars += inv.Amount
				s.log.Debug("invoice confirmed", "invoice", id, "amount", inv.Amount)
			}
		}
		copied = *inv
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "invoice not found")
		return
	}
	c.JSON(http.StatusOK, copied)
}

func (s *Server) getStarsBalance(c *gin.Context) {
	s.mu.Lock()
	amount := s.stars
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

func (s *Server) createDeposit(c *gin.Context) {
	s.createPayment(c, "deposit")
}

func (s *Server) createWithdrawal(c *gin.Context) {
	s.createPayment(c, "withdrawal")
}

func (s *Server) createPayment(c *gin.Context, kind string) {
	var req starbazaar.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeNotFound, "positive amount required")
		return
	}

	s.mu.Lock()
	if req.IdempotencyKey != "" {
		if existingID, seen := s.idemKeys[req.IdempotencyKey]; seen {
			copied := *s.payments[existingID]
			s.mu.Unlock()
			c.JSON(http.StatusOK, copied)
			return
		}
	}
	p := &starbazaar.Payment{
		ID:        uuid.NewString(),
		Kind:      kind,
		Address:   req.Address,
		Asset:     req.Asset,
		Amount:    req.Amount,
		Status:    starbazaar.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}
	s.payments[p.ID] = p
	if req.IdempotencyKey != "" {
		s.idemKeys[req.IdempotencyKey] = p.ID
	}
	s.mu.Unlock()

	c.JSON(http.StatusCreated, *p)
}

// getPayment confirms a pending payment once it has been polled
// ConfirmAfter times, adjusting the wallet balance.
func (s *Server) getPayment(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	p, ok := s.payments[id]
	var copied starbazaar.Payment
	if ok {
		if p.Status == starbazaar.PaymentPending {
			s.pollSeen[id]++
			if s.pollSeen[id] > s.opts.ConfirmAfter {
				p.Status = starbazaar.PaymentConfirmed
				key := p.Address + ":" + string(p.Asset)
				if p.Kind == "deposit" {
					s.balances[key] += p.Amount
				} else {
					s.balances[key] -= p.Amount
				}
				s.log.Debug("payment confirmed", "payment", id, "kind", p.Kind, "amount", p.Amount)
			}
		}
		copied = *p
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, starbazaar.ErrCodeNotFound, "payment not found")
		return
	}
	c.JSON(http.StatusOK, copied)
}

func (s *Server) getPaymentHistory(c *gin.Context) {
	s.mu.Lock()
	payments := make([]starbazaar.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		payments = append(payments, *p)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, payments)
}

func (s *Server) getReferralStats(c *gin.Context) {
	s.mu.Lock()
	stats := s.referrals
	s.mu.Unlock()
	c.JSON(http.StatusOK, stats)
}

func (s *Server) applyReferral(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		apiError(c, http.StatusBadRequest, starbazaar.ErrCodeNotFound, "code required")
		return
	}
	s.mu.Lock()
	s.referrals.Referred++
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}
