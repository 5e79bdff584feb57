package starbazaar

// Bus topics published by the service. Subscribe to bus.TopicAll to see
// everything.
const (
	TopicUser     = "user"
	TopicWallets  = "wallets"
	TopicBalance  = "balance"
	TopicListings = "listings"
	TopicOffers   = "offers"
	TopicPayments = "payments"
	TopicInvoices = "invoices"
	TopicMints    = "mints"
)

// LoginEvent is published on TopicUser after a successful login.
type LoginEvent struct {
	User User
}

// LogoutEvent is published on TopicUser when the session is torn down.
type LogoutEvent struct{}

// InvoicePaidEvent is published on TopicInvoices when a Stars invoice
// confirms.
type InvoicePaidEvent struct {
	Invoice Invoice
}

// InvoiceFailedEvent is published on TopicInvoices on a definitive
// negative outcome (expired or failed).
type InvoiceFailedEvent struct {
	InvoiceID string
	Reason    string
}

// InvoiceTimedOutEvent is published on TopicInvoices when polling exhausts
// its budget with no answer. The outcome is unknown, not negative.
type InvoiceTimedOutEvent struct {
	InvoiceID string
}

// PaymentConfirmedEvent is published on TopicPayments when a deposit or
// withdrawal reaches a terminal positive status.
type PaymentConfirmedEvent struct {
	Payment Payment
}

// PaymentFailedEvent is published on TopicPayments on rejection or expiry.
type PaymentFailedEvent struct {
	PaymentID string
	Reason    string
}

// PaymentTimedOutEvent is published on TopicPayments when confirmation
// polling gives up without an answer.
type PaymentTimedOutEvent struct {
	PaymentID string
}

// OfferSettledEvent is published on TopicOffers when an accepted offer's
// escrow releases.
type OfferSettledEvent struct {
	Offer Offer
}

// OfferFailedEvent is published on TopicOffers when escrow settlement
// fails definitively.
type OfferFailedEvent struct {
	OfferID string
	Reason  string
}

// OfferTimedOutEvent is published on TopicOffers when escrow polling gives
// up.
type OfferTimedOutEvent struct {
	OfferID string
}

// MintCompletedEvent is published on TopicMints when an NFT mint job
// finishes.
type MintCompletedEvent struct {
	Job MintJob
}
