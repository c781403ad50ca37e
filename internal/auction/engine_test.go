package auction

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sellerID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	bidderID = uuid.MustParse("660e8400-e29b-41d4-a716-446655440000")
	otherID  = uuid.MustParse("770e8400-e29b-41d4-a716-446655440000")
)

func activeSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		ListingID:     uuid.New(),
		SellerID:      sellerID,
		StartingPrice: 100,
		CurrentPrice:  100,
		MinIncrement:  10,
		EndsAt:        now.Add(time.Hour),
		StoredStatus:  StatusActive,
		BidCount:      0,
	}
}

func TestDeriveStatus(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	assert.Equal(t, StatusActive, DeriveStatus(snap, now))

	// Stored flag still says active, but time has passed: treated as ended.
	assert.Equal(t, StatusEnded, DeriveStatus(snap, now.Add(2*time.Hour)))
	assert.Equal(t, StatusEnded, DeriveStatus(snap, snap.EndsAt))

	snap.StoredStatus = StatusSold
	assert.Equal(t, StatusSold, DeriveStatus(snap, now))
	assert.Equal(t, StatusSold, DeriveStatus(snap, now.Add(2*time.Hour)))
}

func TestEvaluateBid_NilListing(t *testing.T) {
	_, err := EvaluateBid(nil, bidderID, 200, time.Now())
	assert.Equal(t, ErrNotFound, err)
}

func TestEvaluateBid_ClosedByTime(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)

	_, err := EvaluateBid(snap, bidderID, 200, now.Add(2*time.Hour))
	var closed *ClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, ClosedTimedOut, closed.Reason)
}

func TestEvaluateBid_ClosedBySale(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	snap.StoredStatus = StatusSold

	_, err := EvaluateBid(snap, bidderID, 200, now)
	var closed *ClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, ClosedSold, closed.Reason)
}

func TestEvaluateBid_Unauthenticated(t *testing.T) {
	now := time.Now()
	_, err := EvaluateBid(activeSnapshot(now), uuid.Nil, 200, now)
	assert.Equal(t, ErrUnauthenticated, err)
}

func TestEvaluateBid_SelfBid(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)

	// Rejected regardless of amount.
	for _, amount := range []float64{115, 1000, 1e9} {
		_, err := EvaluateBid(snap, sellerID, amount, now)
		assert.Equal(t, ErrSelfBidRejected, err)
	}
}

func TestEvaluateBid_InvalidAmount(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)

	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := EvaluateBid(snap, bidderID, amount, now)
		assert.Equal(t, ErrInvalidAmount, err, "amount %v", amount)
	}
}

func TestEvaluateBid_MinimumBoundary(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)

	// No bids yet: minimum is starting price + increment.
	_, err := EvaluateBid(snap, bidderID, 109, now)
	var tooLow *BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	assert.Equal(t, float64(110), tooLow.MinimumAllowedBid)

	// Boundary inclusive: amount == minimum succeeds.
	dec, err := EvaluateBid(snap, bidderID, 110, now)
	require.NoError(t, err)
	assert.Equal(t, float64(110), dec.NewPrice)

	// With a bid on the books, minimum tracks current price.
	snap.CurrentPrice = 110
	snap.BidCount = 1
	_, err = EvaluateBid(snap, otherID, 119, now)
	require.ErrorAs(t, err, &tooLow)
	assert.Equal(t, float64(120), tooLow.MinimumAllowedBid)

	dec, err = EvaluateBid(snap, otherID, 120, now)
	require.NoError(t, err)
	assert.Equal(t, float64(120), dec.NewPrice)
}

func TestEvaluateBid_ZeroBidRuleUsesStartingPrice(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)
	// Corrupt state: current price drifted below starting price. With no bids
	// the minimum still derives from the starting price.
	snap.CurrentPrice = 40

	_, err := EvaluateBid(snap, bidderID, 105, now)
	var tooLow *BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	assert.Equal(t, float64(110), tooLow.MinimumAllowedBid)
}

func TestEvaluateBid_MonotonicSequence(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)

	prev := snap.CurrentPrice
	for _, amount := range []float64{110, 125, 125.5, 200} {
		dec, err := EvaluateBid(snap, bidderID, amount, now)
		require.NoError(t, err, "amount %v", amount)
		assert.Greater(t, dec.NewPrice, prev)
		prev = dec.NewPrice
		snap.CurrentPrice = dec.NewPrice
		snap.BidCount++
	}
	assert.GreaterOrEqual(t, snap.CurrentPrice, snap.StartingPrice)
}

func TestEvaluateBuyNow(t *testing.T) {
	now := time.Now()
	buyNow := float64(350)

	t.Run("unavailable without buy-now price", func(t *testing.T) {
		_, err := EvaluateBuyNow(activeSnapshot(now), bidderID, now)
		assert.Equal(t, ErrBuyNowUnavailable, err)
	})

	t.Run("nil listing", func(t *testing.T) {
		_, err := EvaluateBuyNow(nil, bidderID, now)
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("success records buyer and price", func(t *testing.T) {
		snap := activeSnapshot(now)
		snap.BuyNowPrice = &buyNow
		dec, err := EvaluateBuyNow(snap, bidderID, now)
		require.NoError(t, err)
		assert.Equal(t, buyNow, dec.Price)
		assert.Equal(t, bidderID, dec.BuyerID)
	})

	t.Run("self purchase rejected", func(t *testing.T) {
		snap := activeSnapshot(now)
		snap.BuyNowPrice = &buyNow
		_, err := EvaluateBuyNow(snap, sellerID, now)
		assert.Equal(t, ErrSelfPurchaseRejected, err)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		snap := activeSnapshot(now)
		snap.BuyNowPrice = &buyNow
		_, err := EvaluateBuyNow(snap, uuid.Nil, now)
		assert.Equal(t, ErrUnauthenticated, err)
	})

	t.Run("closed after sale", func(t *testing.T) {
		snap := activeSnapshot(now)
		snap.BuyNowPrice = &buyNow
		snap.StoredStatus = StatusSold
		_, err := EvaluateBuyNow(snap, bidderID, now)
		var closed *ClosedError
		require.ErrorAs(t, err, &closed)
		assert.Equal(t, ClosedSold, closed.Reason)
	})

	t.Run("closed after end time", func(t *testing.T) {
		snap := activeSnapshot(now)
		snap.BuyNowPrice = &buyNow
		_, err := EvaluateBuyNow(snap, bidderID, now.Add(2*time.Hour))
		var closed *ClosedError
		require.ErrorAs(t, err, &closed)
		assert.Equal(t, ClosedTimedOut, closed.Reason)
	})
}

func TestEvaluateRelist(t *testing.T) {
	now := time.Now()

	endedSnapshot := func() *Snapshot {
		snap := activeSnapshot(now)
		snap.EndsAt = now.Add(-time.Hour)
		snap.CurrentPrice = 180
		snap.BidCount = 4
		return snap
	}

	t.Run("resets price and extends end time", func(t *testing.T) {
		dec, err := EvaluateRelist(endedSnapshot(), sellerID, now, 72)
		require.NoError(t, err)
		assert.Equal(t, float64(100), dec.CurrentPrice)
		assert.True(t, dec.EndsAt.After(now))
		assert.Equal(t, now.Add(72*time.Hour), dec.EndsAt)
	})

	t.Run("only the seller", func(t *testing.T) {
		_, err := EvaluateRelist(endedSnapshot(), bidderID, now, 72)
		assert.Equal(t, ErrForbidden, err)
	})

	t.Run("active listing not relistable", func(t *testing.T) {
		_, err := EvaluateRelist(activeSnapshot(now), sellerID, now, 72)
		assert.Equal(t, ErrNotRelistable, err)
	})

	t.Run("sold listing never relistable", func(t *testing.T) {
		snap := endedSnapshot()
		snap.StoredStatus = StatusSold
		_, err := EvaluateRelist(snap, sellerID, now, 72)
		assert.Equal(t, ErrNotRelistable, err)
	})

	t.Run("invalid duration", func(t *testing.T) {
		for _, d := range []float64{0, -24, math.NaN(), math.Inf(1)} {
			_, err := EvaluateRelist(endedSnapshot(), sellerID, now, d)
			assert.Equal(t, ErrInvalidDuration, err, "duration %v", d)
		}
	})

	t.Run("duration cap", func(t *testing.T) {
		// Above the cap the nanosecond conversion can wrap negative and
		// produce an end time in the past; such inputs are rejected.
		for _, d := range []float64{MaxDurationHours + 1, 3e6, math.MaxFloat64} {
			_, err := EvaluateRelist(endedSnapshot(), sellerID, now, d)
			assert.Equal(t, ErrInvalidDuration, err, "duration %v", d)
		}

		dec, err := EvaluateRelist(endedSnapshot(), sellerID, now, MaxDurationHours)
		require.NoError(t, err)
		assert.True(t, dec.EndsAt.After(now))
	})

	t.Run("corrupted starting price", func(t *testing.T) {
		snap := endedSnapshot()
		snap.StartingPrice = 0
		_, err := EvaluateRelist(snap, sellerID, now, 72)
		assert.Equal(t, ErrInvalidListingState, err)

		snap.StartingPrice = math.NaN()
		_, err = EvaluateRelist(snap, sellerID, now, 72)
		assert.Equal(t, ErrInvalidListingState, err)
	})

	t.Run("nil listing", func(t *testing.T) {
		_, err := EvaluateRelist(nil, sellerID, now, 72)
		assert.Equal(t, ErrNotFound, err)
	})
}

// Full walk through the listing scenario: low bid rejected with the advertised
// minimum, boundary bid accepted, seller blocked, late bid rejected by time.
func TestBiddingScenario(t *testing.T) {
	now := time.Now()
	snap := activeSnapshot(now)

	_, err := EvaluateBid(snap, bidderID, 109, now)
	var tooLow *BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	assert.Equal(t, float64(110), tooLow.MinimumAllowedBid)

	dec, err := EvaluateBid(snap, bidderID, 110, now)
	require.NoError(t, err)
	assert.Equal(t, float64(110), dec.NewPrice)
	snap.CurrentPrice = dec.NewPrice
	snap.BidCount++

	_, err = EvaluateBid(snap, sellerID, 115, now)
	assert.Equal(t, ErrSelfBidRejected, err)

	_, err = EvaluateBid(snap, otherID, 200, snap.EndsAt.Add(time.Minute))
	var closed *ClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, ClosedTimedOut, closed.Reason)
}
