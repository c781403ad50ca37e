package bidding

import (
	"context"
	"errors"
	"testing"
	"time"

	"elmzad-backend/internal/auction"
	"elmzad-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupBiddingDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.Bid{}, &domain.ListingEvent{}))
	return db
}

func floatPtr(f float64) *float64 { return &f }

func seedListing(t *testing.T, db *gorm.DB, mutate func(*domain.Listing)) *domain.Listing {
	l := &domain.Listing{
		SellerID:      uuid.New(),
		Title:         "Vintage Camera",
		StartingPrice: 100,
		CurrentBid:    100,
		MinIncrement:  10,
		EndsAt:        time.Now().Add(72 * time.Hour),
		Status:        domain.ListingStatusActive,
	}
	if mutate != nil {
		mutate(l)
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

func TestPlaceBid_Success(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()
	listing := seedListing(t, db, nil)
	bidder := uuid.New()

	res, err := svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: bidder, Amount: 110, Now: now})
	require.NoError(t, err)
	assert.Equal(t, float64(110), res.Bid.Amount)
	assert.Equal(t, float64(110), res.Listing.CurrentBid)
	assert.Equal(t, int64(1), res.Listing.BidCount)

	var stored domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&stored).Error)
	assert.Equal(t, float64(110), stored.CurrentBid)
	assert.Equal(t, int64(1), stored.BidCount)

	var event domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ? AND event_type = ?", listing.ListingID, domain.EventBidPlaced).First(&event).Error)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, bidder, *event.ActorID)

	// Next bid has to clear the new price.
	_, err = svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: 115, Now: now})
	var tooLow *auction.BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	assert.Equal(t, float64(120), tooLow.MinimumAllowedBid)
}

func TestPlaceBid_EngineRejections(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()
	listing := seedListing(t, db, nil)

	_, err := svc.PlaceBid(ctx, PlaceBidInput{ListingID: uuid.New(), BidderID: uuid.New(), Amount: 110, Now: now})
	assert.Equal(t, auction.ErrNotFound, err)

	_, err = svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: uuid.Nil, Amount: 110, Now: now})
	assert.Equal(t, auction.ErrUnauthenticated, err)

	_, err = svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: listing.SellerID, Amount: 110, Now: now})
	assert.Equal(t, auction.ErrSelfBidRejected, err)

	// Rejections leave no bid rows or price movement behind.
	var count int64
	require.NoError(t, db.Model(&domain.Bid{}).Count(&count).Error)
	assert.Zero(t, count)
	var stored domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&stored).Error)
	assert.Equal(t, float64(100), stored.CurrentBid)
}

func TestPlaceBid_ClosedListing(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()

	expired := seedListing(t, db, func(l *domain.Listing) {
		l.EndsAt = now.Add(-time.Hour)
	})
	_, err := svc.PlaceBid(ctx, PlaceBidInput{ListingID: expired.ListingID, BidderID: uuid.New(), Amount: 110, Now: now})
	var closed *auction.ClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, auction.ClosedTimedOut, closed.Reason)

	sold := seedListing(t, db, func(l *domain.Listing) {
		l.Status = domain.ListingStatusSold
	})
	_, err = svc.PlaceBid(ctx, PlaceBidInput{ListingID: sold.ListingID, BidderID: uuid.New(), Amount: 110, Now: now})
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, auction.ClosedSold, closed.Reason)
}

func TestBuyNow_Success(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()
	listing := seedListing(t, db, func(l *domain.Listing) {
		l.BuyNowPrice = floatPtr(500)
	})
	buyer := uuid.New()

	got, err := svc.BuyNow(ctx, BuyNowInput{ListingID: listing.ListingID, BuyerID: buyer, Now: now})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusSold, got.Status)
	assert.Equal(t, float64(500), got.CurrentBid)
	require.NotNil(t, got.BuyerID)
	assert.Equal(t, buyer, *got.BuyerID)

	var event domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ? AND event_type = ?", listing.ListingID, domain.EventListingSold).First(&event).Error)

	// Terminal: any later purchase or bid sees the sale.
	_, err = svc.BuyNow(ctx, BuyNowInput{ListingID: listing.ListingID, BuyerID: uuid.New(), Now: now})
	var closed *auction.ClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, auction.ClosedSold, closed.Reason)

	_, err = svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: 600, Now: now})
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, auction.ClosedSold, closed.Reason)
}

func TestBuyNow_Rejections(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()

	noBuyNow := seedListing(t, db, nil)
	_, err := svc.BuyNow(ctx, BuyNowInput{ListingID: noBuyNow.ListingID, BuyerID: uuid.New(), Now: now})
	assert.Equal(t, auction.ErrBuyNowUnavailable, err)

	listing := seedListing(t, db, func(l *domain.Listing) {
		l.BuyNowPrice = floatPtr(500)
	})
	_, err = svc.BuyNow(ctx, BuyNowInput{ListingID: listing.ListingID, BuyerID: listing.SellerID, Now: now})
	assert.Equal(t, auction.ErrSelfPurchaseRejected, err)

	_, err = svc.BuyNow(ctx, BuyNowInput{ListingID: listing.ListingID, BuyerID: uuid.Nil, Now: now})
	assert.Equal(t, auction.ErrUnauthenticated, err)
}

func TestRelist(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()

	listing := seedListing(t, db, func(l *domain.Listing) {
		l.CurrentBid = 180
		l.BidCount = 4
		l.EndsAt = now.Add(-time.Hour)
	})

	_, err := svc.Relist(ctx, RelistInput{ListingID: listing.ListingID, SellerID: uuid.New(), DurationHours: 72, Now: now})
	assert.Equal(t, auction.ErrForbidden, err)

	got, err := svc.Relist(ctx, RelistInput{ListingID: listing.ListingID, SellerID: listing.SellerID, DurationHours: 72, Now: now})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, got.Status)
	assert.Equal(t, float64(100), got.CurrentBid)
	assert.Equal(t, int64(0), got.BidCount)
	assert.WithinDuration(t, now.Add(72*time.Hour), got.EndsAt, time.Second)

	var event domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ? AND event_type = ?", listing.ListingID, domain.EventListingRelist).First(&event).Error)

	// Already active again, so a second relist is refused.
	_, err = svc.Relist(ctx, RelistInput{ListingID: listing.ListingID, SellerID: listing.SellerID, DurationHours: 72, Now: now})
	assert.Equal(t, auction.ErrNotRelistable, err)

	// First bid after relist starts from the reset price.
	res, err := svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: 110, Now: now})
	require.NoError(t, err)
	assert.Equal(t, float64(110), res.Listing.CurrentBid)
}

func TestRelist_SoldNever(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()

	sold := seedListing(t, db, func(l *domain.Listing) {
		l.Status = domain.ListingStatusSold
		l.EndsAt = now.Add(-time.Hour)
	})
	_, err := svc.Relist(ctx, RelistInput{ListingID: sold.ListingID, SellerID: sold.SellerID, DurationHours: 72, Now: now})
	assert.Equal(t, auction.ErrNotRelistable, err)
}

func TestPlaceBid_RetriesOnStaleRead(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()
	listing := seedListing(t, db, nil)

	// Simulate a rival bid landing between this caller's read and write by
	// moving the stored price out from under the first attempt. The injected
	// write rides the caller's own transaction, so the rollback that follows
	// the failed guard erases it and the retry sees the original state.
	raced := false
	db.Callback().Create().Before("gorm:create").Register("race_once", func(tx *gorm.DB) {
		if raced {
			return
		}
		if _, ok := tx.Statement.Dest.(*domain.Bid); !ok {
			return
		}
		raced = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Model(&domain.Listing{}).
			Where("listing_id = ?", listing.ListingID).
			Updates(map[string]interface{}{"current_bid": 150, "bid_count": 1}).Error)
	})

	res, err := svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: 200, Now: now})
	require.NoError(t, err)
	assert.Equal(t, float64(200), res.Listing.CurrentBid)
	assert.Equal(t, int64(1), res.Listing.BidCount)

	var stored domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&stored).Error)
	assert.Equal(t, float64(200), stored.CurrentBid)
	var bidRows int64
	require.NoError(t, db.Model(&domain.Bid{}).Count(&bidRows).Error)
	assert.Equal(t, int64(1), bidRows)
}

func TestGetBidHistory(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()
	listing := seedListing(t, db, nil)
	bidder := uuid.New()

	_, err := svc.GetBidHistory(ctx, uuid.Nil, 5)
	assert.Equal(t, auction.ErrNotFound, err)

	for i := 0; i < 8; i++ {
		require.NoError(t, db.Create(&domain.Bid{
			ListingID: listing.ListingID,
			BidderID:  bidder,
			Amount:    110 + float64(i)*10,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	bids, err := svc.GetBidHistory(ctx, listing.ListingID, 5)
	require.NoError(t, err)
	require.Len(t, bids, 5)
	assert.Equal(t, float64(180), bids[0].Amount)
	assert.Equal(t, float64(140), bids[4].Amount)
}

func TestGetBidderBids(t *testing.T) {
	db := setupBiddingDB(t)
	svc := &Service{DB: db}
	ctx := context.Background()
	now := time.Now()

	_, err := svc.GetBidderBids(ctx, uuid.Nil, now)
	assert.Equal(t, auction.ErrUnauthenticated, err)

	listing := seedListing(t, db, nil)
	bidder := uuid.New()

	_, err = svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: bidder, Amount: 110, Now: now})
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: 120, Now: now})
	require.NoError(t, err)

	mine, err := svc.GetBidderBids(ctx, bidder, now)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, float64(110), mine[0].Amount)
	require.NotNil(t, mine[0].Listing)
	assert.Equal(t, float64(120), mine[0].Listing.CurrentBid)
	assert.Equal(t, "active", mine[0].DerivedStatus)
	assert.False(t, mine[0].IsLeading)
}

func TestErrConflict_IsPlainError(t *testing.T) {
	assert.False(t, errors.Is(ErrConflict, auction.ErrNotFound))
	assert.NotEmpty(t, ErrConflict.Error())
}
