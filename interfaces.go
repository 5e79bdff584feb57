package starbazaar

import "context"

// Backend is the marketplace REST contract the service is composed with.
// The canonical implementation lives in the api package; tests supply fakes.
type Backend interface {
	// Auth
	Login(ctx context.Context, initData string) (*AuthResponse, error)
	SetToken(token string)
	Token() string

	// Wallets
	WalletChallenge(ctx context.Context, address string) (*WalletChallenge, error)
	RegisterWallet(ctx context.Context, req RegisterWalletRequest) (*Wallet, error)
	GetWallets(ctx context.Context) ([]Wallet, error)
	GetBalance(ctx context.Context, address string, asset Asset) (*Balance, error)

	// Marketplace
	GetListings(ctx context.Context, filter ListingFilter) ([]Listing, error)
	GetListing(ctx context.Context, id string) (*Listing, error)
	GetUserListings(ctx context.Context) ([]Listing, error)
	CreateListing(ctx context.Context, req CreateListingRequest) (*Listing, error)
	CancelListing(ctx context.Context, id string) error

	// Offers
	MakeOffer(ctx context.Context, listingID string, price int64, asset Asset) (*Offer, error)
	AcceptOffer(ctx context.Context, id string) (*Offer, error)
	DeclineOffer(ctx context.Context, id string) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	GetOffers(ctx context.Context) ([]Offer, error)

	// Minting
	MintNFT(ctx context.Context, req MintRequest) (*MintJob, error)
	GetMintJob(ctx context.Context, id string) (*MintJob, error)

	// Stars
	CreateStarsInvoice(ctx context.Context, amount int64) (*Invoice, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	GetStarsBalance(ctx context.Context) (int64, error)

	// Payments
	CreateDeposit(ctx context.Context, req PaymentRequest) (*Payment, error)
	CreateWithdrawal(ctx context.Context, req PaymentRequest) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetPaymentHistory(ctx context.Context) ([]Payment, error)

	// Referrals
	GetReferralStats(ctx context.Context) (*ReferralStats, error)
	ApplyReferralCode(ctx context.Context, code string) error
}
