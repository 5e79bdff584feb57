package starbazaar

import (
	"context"
	"encoding/json"

	"github.com/starbazaar/starbazaar-go/poll"
)

// Confirmation flows: each starts a poll session against a status endpoint
// and, on the terminal outcome, invalidates the affected cache prefixes
// and publishes an event. Callers observe the outcome through the
// returned session, their own poll callbacks, or the bus; the flows never
// render anything.

// flowOpts front-loads the service defaults so per-call options can
// override interval/budget while callbacks accumulate.
func (s *Service) flowOpts(extra []poll.SessionOption, own ...poll.SessionOption) []poll.SessionOption {
	opts := []poll.SessionOption{
		poll.WithInterval(s.pollInterval),
		poll.WithMaxAttempts(s.pollAttempts),
	}
	opts = append(opts, extra...)
	return append(opts, own...)
}

// ConfirmStarsInvoice polls a Stars invoice until it is paid, definitively
// dead, or the attempt budget runs out. The check keys off the invoice id;
// see BalanceDeltaCheck for the legacy balance heuristic.
func (s *Service) ConfirmStarsInvoice(ctx context.Context, invoiceID string, opts ...poll.SessionOption) *poll.Session {
	check := func(ctx context.Context, targetID string) (poll.Result, error) {
		invoice, err := s.backend.GetInvoice(ctx, targetID)
		if err != nil {
			return poll.Result{}, err
		}
		switch invoice.Status {
		case InvoicePaid:
			payload, merr := json.Marshal(invoice)
			if merr != nil {
				return poll.Result{}, merr
			}
			return poll.Succeeded(payload), nil
		case InvoiceExpired, InvoiceFailed:
			return poll.Failed(invoice.Status), nil
		default:
			return poll.Continue(), nil
		}
	}

	return s.poller.Start(ctx, invoiceID, check, s.flowOpts(opts,
		poll.OnSuccess(func(payload []byte) {
			s.cache.Invalidate("balance")
			s.cache.Invalidate("payments")
			var invoice Invoice
			if err := json.Unmarshal(payload, &invoice); err != nil {
				s.log.Warn("decode invoice payload failed", "invoice", invoiceID, "error", err)
				invoice = Invoice{ID: invoiceID, Status: InvoicePaid}
			}
			s.bus.Publish(TopicInvoices, InvoicePaidEvent{Invoice: invoice})
		}),
		poll.OnFailure(func(reason string) {
			s.bus.Publish(TopicInvoices, InvoiceFailedEvent{InvoiceID: invoiceID, Reason: reason})
		}),
		poll.OnTimeout(func() {
			s.bus.Publish(TopicInvoices, InvoiceTimedOutEvent{InvoiceID: invoiceID})
		}),
	)...)
}

// BalanceDeltaCheck builds the legacy Stars confirmation check for
// backends that cannot report per-invoice status: success once the Stars
// balance rises above initial. Best effort only; an unrelated concurrent
// balance change reads as confirmation, so prefer ConfirmStarsInvoice
// whenever the backend supports invoice lookup.
func (s *Service) BalanceDeltaCheck(initial int64) poll.CheckFunc {
	return func(ctx context.Context, targetID string) (poll.Result, error) {
		current, err := s.backend.GetStarsBalance(ctx)
		if err != nil {
			return poll.Result{}, err
		}
		if current > initial {
			payload, merr := json.Marshal(map[string]int64{"balance": current, "delta": current - initial})
			if merr != nil {
				return poll.Result{}, merr
			}
			return poll.Succeeded(payload), nil
		}
		return poll.Continue(), nil
	}
}

// ConfirmDeposit polls a deposit until its escrow status is terminal.
func (s *Service) ConfirmDeposit(ctx context.Context, paymentID string, opts ...poll.SessionOption) *poll.Session {
	return s.confirmPayment(ctx, paymentID, opts)
}

// ConfirmWithdrawal polls a withdrawal until its escrow status is terminal.
func (s *Service) ConfirmWithdrawal(ctx context.Context, paymentID string, opts ...poll.SessionOption) *poll.Session {
	return s.confirmPayment(ctx, paymentID, opts)
}

func (s *Service) confirmPayment(ctx context.Context, paymentID string, opts []poll.SessionOption) *poll.Session {
	check := func(ctx context.Context, targetID string) (poll.Result, error) {
		payment, err := s.backend.GetPayment(ctx, targetID)
		if err != nil {
			return poll.Result{}, err
		}
		switch payment.Status {
		case PaymentConfirmed, PaymentReleased:
			payload, merr := json.Marshal(payment)
			if merr != nil {
				return poll.Result{}, merr
			}
			return poll.Succeeded(payload), nil
		case PaymentRejected, PaymentExpired:
			return poll.Failed(payment.Status), nil
		default:
			return poll.Continue(), nil
		}
	}

	return s.poller.Start(ctx, paymentID, check, s.flowOpts(opts,
		poll.OnSuccess(func(payload []byte) {
			s.cache.Invalidate("balance")
			s.cache.Invalidate("payments")
			s.cache.Invalidate("wallets")
			var payment Payment
			if err := json.Unmarshal(payload, &payment); err != nil {
				s.log.Warn("decode payment payload failed", "payment", paymentID, "error", err)
				payment = Payment{ID: paymentID, Status: PaymentConfirmed}
			}
			s.bus.Publish(TopicPayments, PaymentConfirmedEvent{Payment: payment})
		}),
		poll.OnFailure(func(reason string) {
			s.bus.Publish(TopicPayments, PaymentFailedEvent{PaymentID: paymentID, Reason: reason})
		}),
		poll.OnTimeout(func() {
			s.bus.Publish(TopicPayments, PaymentTimedOutEvent{PaymentID: paymentID})
		}),
	)...)
}

// AwaitOfferEscrow polls an accepted offer until its escrow releases.
func (s *Service) AwaitOfferEscrow(ctx context.Context, offerID string, opts ...poll.SessionOption) *poll.Session {
	check := func(ctx context.Context, targetID string) (poll.Result, error) {
		offer, err := s.backend.GetOffer(ctx, targetID)
		if err != nil {
			return poll.Result{}, err
		}
		switch offer.Status {
		case OfferReleased:
			payload, merr := json.Marshal(offer)
			if merr != nil {
				return poll.Result{}, merr
			}
			return poll.Succeeded(payload), nil
		case OfferDeclined, OfferExpired:
			return poll.Failed(offer.Status), nil
		default:
			return poll.Continue(), nil
		}
	}

	return s.poller.Start(ctx, offerID, check, s.flowOpts(opts,
		poll.OnSuccess(func(payload []byte) {
			s.cache.Invalidate("offers")
			s.cache.Invalidate("listings")
			s.cache.Invalidate("balance")
			var offer Offer
			if err := json.Unmarshal(payload, &offer); err != nil {
				s.log.Warn("decode offer payload failed", "offer", offerID, "error", err)
				offer = Offer{ID: offerID, Status: OfferReleased}
			}
			s.bus.Publish(TopicOffers, OfferSettledEvent{Offer: offer})
		}),
		poll.OnFailure(func(reason string) {
			s.bus.Publish(TopicOffers, OfferFailedEvent{OfferID: offerID, Reason: reason})
		}),
		poll.OnTimeout(func() {
			s.bus.Publish(TopicOffers, OfferTimedOutEvent{OfferID: offerID})
		}),
	)...)
}

// AwaitMint polls a mint job until it completes.
func (s *Service) AwaitMint(ctx context.Context, jobID string, opts ...poll.SessionOption) *poll.Session {
	check := func(ctx context.Context, targetID string) (poll.Result, error) {
		job, err := s.backend.GetMintJob(ctx, targetID)
		if err != nil {
			return poll.Result{}, err
		}
		switch job.Status {
		case MintCompleted:
			payload, merr := json.Marshal(job)
			if merr != nil {
				return poll.Result{}, merr
			}
			return poll.Succeeded(payload), nil
		case MintFailed:
			return poll.Failed(job.Status), nil
		default:
			return poll.Continue(), nil
		}
	}

	return s.poller.Start(ctx, jobID, check, s.flowOpts(opts,
		poll.OnSuccess(func(payload []byte) {
			s.cache.Invalidate("listings")
			s.cache.Invalidate("userListings")
			var job MintJob
			if err := json.Unmarshal(payload, &job); err != nil {
				s.log.Warn("decode mint payload failed", "job", jobID, "error", err)
				job = MintJob{ID: jobID, Status: MintCompleted}
			}
			s.bus.Publish(TopicMints, MintCompletedEvent{Job: job})
		}),
	)...)
}
