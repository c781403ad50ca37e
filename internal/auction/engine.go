// Package auction holds the bidding and closing rules for marketplace
// listings. Every function here is a pure decision over a listing snapshot,
// the caller's identity, and an explicit clock value: no I/O, no logging, no
// retries. The caller reads current state, asks for a decision, and persists
// the result under a conditional write.
package auction

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Status is the effective open/closed/sold state of a listing.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusSold   Status = "sold"
)

// Snapshot is a validated copy of one listing's pricing and lifecycle state,
// read from storage immediately before a decision.
type Snapshot struct {
	ListingID     uuid.UUID
	SellerID      uuid.UUID
	StartingPrice float64
	CurrentPrice  float64
	MinIncrement  float64
	BuyNowPrice   *float64
	EndsAt        time.Time
	StoredStatus  Status
	BidCount      int64
}

// BidDecision is the state delta produced by an accepted bid: one new bid
// record at NewPrice, and the listing's current price moved to NewPrice.
type BidDecision struct {
	NewPrice float64
}

// BuyNowDecision marks the listing sold at Price to BuyerID. Terminal.
type BuyNowDecision struct {
	Price   float64
	BuyerID uuid.UUID
}

// RelistDecision reopens an ended listing: price back to the starting price
// and a fresh end time. Bid history is superseded, not deleted.
type RelistDecision struct {
	CurrentPrice float64
	EndsAt       time.Time
}

// MaxDurationHours caps listing and relist durations at one year. Beyond
// this the hours-to-Duration conversion can exceed the int64 nanosecond
// range and wrap to an end time in the past.
const MaxDurationHours = 24 * 365

// DeriveStatus computes the effective listing state from the stored flag plus
// the clock. Sold wins unconditionally; otherwise a listing whose end time has
// passed is ended no matter what the stored status says. Expiry is evaluated
// lazily here, at each read or attempted mutation; no scheduler flips rows.
func DeriveStatus(snap *Snapshot, now time.Time) Status {
	if snap.StoredStatus == StatusSold {
		return StatusSold
	}
	if !now.Before(snap.EndsAt) {
		return StatusEnded
	}
	return StatusActive
}

// MinimumAllowedBid is the smallest acceptable next bid: starting price plus
// increment while no bids exist, current price plus increment afterward.
// The two agree as soon as any bid lands.
func MinimumAllowedBid(snap *Snapshot) float64 {
	if snap.BidCount == 0 {
		return snap.StartingPrice + snap.MinIncrement
	}
	return snap.CurrentPrice + snap.MinIncrement
}

// EvaluateBid validates a proposed bid against the snapshot. Precondition
// order is fixed so callers always get the most specific failure: existence,
// open auction, authentication, self-bid, amount sanity, minimum bid.
// Accepting the bid is the only path that moves CurrentPrice upward.
func EvaluateBid(snap *Snapshot, callerID uuid.UUID, amount float64, now time.Time) (*BidDecision, error) {
	if snap == nil {
		return nil, ErrNotFound
	}
	if err := requireActive(snap, now); err != nil {
		return nil, err
	}
	if callerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	if callerID == snap.SellerID {
		return nil, ErrSelfBidRejected
	}
	if !isFinitePositive(amount) {
		return nil, ErrInvalidAmount
	}
	min := MinimumAllowedBid(snap)
	if amount < min {
		return nil, &BidTooLowError{MinimumAllowedBid: min}
	}
	return &BidDecision{NewPrice: amount}, nil
}

// EvaluateBuyNow validates an immediate purchase at the fixed buy-now price.
// Success is terminal: the active-status gate rejects any later bid or
// buy-now attempt.
func EvaluateBuyNow(snap *Snapshot, callerID uuid.UUID, now time.Time) (*BuyNowDecision, error) {
	if snap == nil {
		return nil, ErrNotFound
	}
	if snap.BuyNowPrice == nil {
		return nil, ErrBuyNowUnavailable
	}
	if err := requireActive(snap, now); err != nil {
		return nil, err
	}
	if callerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	if callerID == snap.SellerID {
		return nil, ErrSelfPurchaseRejected
	}
	return &BuyNowDecision{Price: *snap.BuyNowPrice, BuyerID: callerID}, nil
}

// EvaluateRelist validates reopening an ended, unsold listing for another
// durationHours. A sold listing can never be relisted. The starting-price
// check defends against corrupted stored data reaching the price reset.
func EvaluateRelist(snap *Snapshot, callerID uuid.UUID, now time.Time, durationHours float64) (*RelistDecision, error) {
	if snap == nil {
		return nil, ErrNotFound
	}
	if callerID != snap.SellerID {
		return nil, ErrForbidden
	}
	if DeriveStatus(snap, now) != StatusEnded {
		return nil, ErrNotRelistable
	}
	if !isFinitePositive(durationHours) || durationHours > MaxDurationHours {
		return nil, ErrInvalidDuration
	}
	if !isFinitePositive(snap.StartingPrice) {
		return nil, ErrInvalidListingState
	}
	return &RelistDecision{
		CurrentPrice: snap.StartingPrice,
		EndsAt:       now.Add(time.Duration(durationHours * float64(time.Hour))),
	}, nil
}

func requireActive(snap *Snapshot, now time.Time) error {
	switch DeriveStatus(snap, now) {
	case StatusSold:
		return &ClosedError{Reason: ClosedSold}
	case StatusEnded:
		return &ClosedError{Reason: ClosedTimedOut}
	}
	return nil
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
