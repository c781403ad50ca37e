package auction

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("Listing not found")
	ErrUnauthenticated      = errors.New("You must be signed in")
	ErrSelfBidRejected      = errors.New("You cannot bid on your own listing")
	ErrSelfPurchaseRejected = errors.New("You cannot buy your own listing")
	ErrInvalidAmount        = errors.New("Bid amount must be a positive number")
	ErrBuyNowUnavailable    = errors.New("Buy now is not available for this listing")
	ErrForbidden            = errors.New("Only the seller can relist this listing")
	ErrNotRelistable        = errors.New("Only ended listings can be relisted")
	ErrInvalidDuration      = errors.New("Duration must be a positive number of hours")
	ErrInvalidListingState  = errors.New("Listing has an invalid starting price")
)

// ClosedReason distinguishes how an auction closed, for user messaging.
type ClosedReason string

const (
	ClosedTimedOut ClosedReason = "timed_out"
	ClosedSold     ClosedReason = "sold"
)

// ClosedError reports a mutation attempted against a closed auction.
type ClosedError struct {
	Reason ClosedReason
}

func (e *ClosedError) Error() string {
	if e.Reason == ClosedSold {
		return "This item has been sold"
	}
	return "The auction has already ended"
}

// BidTooLowError reports a bid under the minimum and carries the amount the
// caller would need to offer.
type BidTooLowError struct {
	MinimumAllowedBid float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("Your bid must be at least %.2f", e.MinimumAllowedBid)
}
