package starbazaar

import (
	"encoding/json"
	"time"
)

// Asset identifies a balance denomination ("TON", "USDT", "STARS").
type Asset string

const (
	AssetTON   Asset = "TON"
	AssetUSDT  Asset = "USDT"
	AssetStars Asset = "STARS"
)

// User is the authenticated marketplace account, keyed by Telegram user id.
type User struct {
	ID           string `json:"id"`
	TelegramID   int64  `json:"telegramId"`
	Username     string `json:"username,omitempty"`
	ReferralCode string `json:"referralCode,omitempty"`
	ReferredBy   string `json:"referredBy,omitempty"`
}

// AuthResponse is returned by the login endpoint.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Wallet is a backend-registered wallet address. Custody stays with the
// backend; the client only proves address ownership at registration time.
type Wallet struct {
	Address   string    `json:"address"`
	Label     string    `json:"label,omitempty"`
	Primary   bool      `json:"primary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Balance is a single-asset balance snapshot for a wallet.
type Balance struct {
	Address string `json:"address"`
	Asset   Asset  `json:"asset"`
	// Amount is in the asset's minimal units (nanotons, cents, stars).
	Amount int64 `json:"amount"`
}

// NFT is a minted marketplace item.
type NFT struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection,omitempty"`
	Name       string          `json:"name"`
	ImageURL   string          `json:"imageUrl,omitempty"`
	Owner      string          `json:"owner"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// MintJob tracks an asynchronous mint submitted to the backend.
type MintJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	NFTID  string `json:"nftId,omitempty"`
}

// Mint job status values.
const (
	MintPending   = "pending"
	MintCompleted = "completed"
	MintFailed    = "failed"
)

// MintRequest describes an NFT to mint.
type MintRequest struct {
	Name       string          `json:"name"`
	Collection string          `json:"collection,omitempty"`
	ImageURL   string          `json:"imageUrl,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// Listing status values.
const (
	ListingActive    = "active"
	ListingSold      = "sold"
	ListingCancelled = "cancelled"
)

// Listing is an NFT offered for sale.
type Listing struct {
	ID        string    `json:"id"`
	NFT       NFT       `json:"nft"`
	Seller    string    `json:"seller"`
	Price     int64     `json:"price"`
	Asset     Asset     `json:"asset"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListingFilter narrows marketplace browsing. The zero value matches
// everything.
type ListingFilter struct {
	Collection string
	Seller     string
	MaxPrice   int64
	Asset      Asset
}

// CreateListingRequest puts an owned NFT up for sale.
type CreateListingRequest struct {
	NFTID string `json:"nftId"`
	Price int64  `json:"price"`
	Asset Asset  `json:"asset"`
}

// Offer is a bid on a listing. Accepting an offer moves funds into escrow;
// the trade settles asynchronously.
type Offer struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listingId"`
	Buyer     string    `json:"buyer"`
	Price     int64     `json:"price"`
	Asset     Asset     `json:"asset"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Offer status values.
const (
	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferDeclined = "declined"
	OfferEscrowed = "escrowed"
	OfferReleased = "released"
	OfferExpired  = "expired"
)

// Invoice is a backend-issued Telegram Stars payment request.
type Invoice struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Link      string    `json:"link"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invoice status values.
const (
	InvoicePending = "pending"
	InvoicePaid    = "paid"
	InvoiceExpired = "expired"
	InvoiceFailed  = "failed"
)

// Payment is a deposit or withdrawal record with its escrow status.
type Payment struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "deposit" or "withdrawal"
	Address   string    `json:"address"`
	Asset     Asset     `json:"asset"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payment status values. "confirmed" and "released" are terminal positives,
// "rejected" and "expired" terminal negatives; anything else is in flight.
const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
	PaymentReleased  = "released"
	PaymentRejected  = "rejected"
	PaymentExpired   = "expired"
)

// PaymentRequest creates a deposit or withdrawal. IdempotencyKey guards
// against double submission on retry; the client fills it when empty.
type PaymentRequest struct {
	Address        string `json:"address"`
	Asset          Asset  `json:"asset"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// ReferralStats summarizes a user's referral performance.
type ReferralStats struct {
	Code         string `json:"code"`
	Referred     int    `json:"referred"`
	EarnedStars  int64  `json:"earnedStars"`
	PendingStars int64  `json:"pendingStars"`
	ClaimedStars int64  `json:"claimedStars"`
}

// WalletChallenge is the nonce the backend issues before wallet
// registration; the client signs it to prove address ownership.
type WalletChallenge struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
}

// RegisterWalletRequest completes wallet registration.
type RegisterWalletRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Label     string `json:"label,omitempty"`
}
