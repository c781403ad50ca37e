// Package bidding is the storage adapter around the auction engine. Each
// mutation reads a snapshot, asks the engine for a decision, and commits it
// under a compare-and-swap guard on the listing's price and status, so at
// most one mutation lands per version of the listing. A lost race is retried
// once against fresh state before surfacing a conflict.
package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"elmzad-backend/internal/auction"
	"elmzad-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrConflict is returned when a mutation lost the race twice in a row. The
// handler surfaces it as 409 with the fresh current price.
var ErrConflict = errors.New("Listing was updated by someone else, please try again")

// errStaleRead signals internally that the conditional write matched no row:
// the snapshot went stale between read and write.
var errStaleRead = errors.New("stale read")

type Service struct {
	DB *gorm.DB
}

type PlaceBidInput struct {
	ListingID uuid.UUID
	BidderID  uuid.UUID
	Amount    float64
	Now       time.Time
}

type PlaceBidResult struct {
	Bid     *domain.Bid     `json:"bid"`
	Listing *domain.Listing `json:"listing"`
}

// PlaceBid validates and applies one bid. Inserting the bid row and moving
// current_bid commit in one transaction or not at all.
func (s *Service) PlaceBid(ctx context.Context, in PlaceBidInput) (*PlaceBidResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.tryPlaceBid(ctx, in)
		if err == errStaleRead {
			continue
		}
		return res, err
	}
	return nil, ErrConflict
}

func (s *Service) tryPlaceBid(ctx context.Context, in PlaceBidInput) (*PlaceBidResult, error) {
	tx := s.DB.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	listing, snap, err := loadSnapshot(tx, in.ListingID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	decision, err := auction.EvaluateBid(snap, in.BidderID, in.Amount, in.Now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	bid := &domain.Bid{
		ListingID: listing.ListingID,
		BidderID:  in.BidderID,
		Amount:    decision.NewPrice,
		CreatedAt: in.Now,
	}
	if err := tx.Create(bid).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// CAS: only move the price if nobody else has since the snapshot read.
	res := tx.Model(&domain.Listing{}).
		Where("listing_id = ? AND status = ? AND current_bid = ?", listing.ListingID, domain.ListingStatusActive, listing.CurrentBid).
		Updates(map[string]interface{}{
			"current_bid": decision.NewPrice,
			"bid_count":   gorm.Expr("bid_count + 1"),
		})
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, errStaleRead
	}

	if err := createEvent(tx, listing.ListingID, domain.EventBidPlaced, &in.BidderID, map[string]interface{}{
		"amount":       decision.NewPrice,
		"previous_bid": listing.CurrentBid,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	listing.CurrentBid = decision.NewPrice
	listing.BidCount++
	return &PlaceBidResult{Bid: bid, Listing: listing}, nil
}

type BuyNowInput struct {
	ListingID uuid.UUID
	BuyerID   uuid.UUID
	Now       time.Time
}

// BuyNow closes the auction immediately at the fixed buy-now price. Terminal:
// the status guard in the CAS update means a second buyer can never flip an
// already sold row.
func (s *Service) BuyNow(ctx context.Context, in BuyNowInput) (*domain.Listing, error) {
	for attempt := 0; attempt < 2; attempt++ {
		listing, err := s.tryBuyNow(ctx, in)
		if err == errStaleRead {
			continue
		}
		return listing, err
	}
	return nil, ErrConflict
}

func (s *Service) tryBuyNow(ctx context.Context, in BuyNowInput) (*domain.Listing, error) {
	tx := s.DB.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	listing, snap, err := loadSnapshot(tx, in.ListingID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	decision, err := auction.EvaluateBuyNow(snap, in.BuyerID, in.Now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	res := tx.Model(&domain.Listing{}).
		Where("listing_id = ? AND status = ? AND current_bid = ?", listing.ListingID, domain.ListingStatusActive, listing.CurrentBid).
		Updates(map[string]interface{}{
			"status":      domain.ListingStatusSold,
			"current_bid": decision.Price,
			"buyer_id":    decision.BuyerID,
		})
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, errStaleRead
	}

	if err := createEvent(tx, listing.ListingID, domain.EventListingSold, &in.BuyerID, map[string]interface{}{
		"price": decision.Price,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	listing.Status = domain.ListingStatusSold
	listing.CurrentBid = decision.Price
	listing.BuyerID = &decision.BuyerID
	return listing, nil
}

type RelistInput struct {
	ListingID     uuid.UUID
	SellerID      uuid.UUID
	DurationHours float64
	Now           time.Time
}

// Relist reopens an ended, unsold listing: price back to starting, fresh end
// time. Bid history stays in place, superseded going forward.
func (s *Service) Relist(ctx context.Context, in RelistInput) (*domain.Listing, error) {
	for attempt := 0; attempt < 2; attempt++ {
		listing, err := s.tryRelist(ctx, in)
		if err == errStaleRead {
			continue
		}
		return listing, err
	}
	return nil, ErrConflict
}

func (s *Service) tryRelist(ctx context.Context, in RelistInput) (*domain.Listing, error) {
	tx := s.DB.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	listing, snap, err := loadSnapshot(tx, in.ListingID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	decision, err := auction.EvaluateRelist(snap, in.SellerID, in.Now, in.DurationHours)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// Guard against a concurrent buy-now landing between read and write.
	res := tx.Model(&domain.Listing{}).
		Where("listing_id = ? AND seller_id = ? AND status <> ? AND current_bid = ?", listing.ListingID, in.SellerID, domain.ListingStatusSold, listing.CurrentBid).
		Updates(map[string]interface{}{
			"status":      domain.ListingStatusActive,
			"current_bid": decision.CurrentPrice,
			"ends_at":     decision.EndsAt,
			"bid_count":   0,
			"buyer_id":    nil,
		})
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, errStaleRead
	}

	if err := createEvent(tx, listing.ListingID, domain.EventListingRelist, &in.SellerID, map[string]interface{}{
		"current_bid": decision.CurrentPrice,
		"ends_at":     decision.EndsAt,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	listing.Status = domain.ListingStatusActive
	listing.CurrentBid = decision.CurrentPrice
	listing.EndsAt = decision.EndsAt
	listing.BidCount = 0
	listing.BuyerID = nil
	return listing, nil
}

// GetBidHistory returns the most recent bids on a listing, newest first.
func (s *Service) GetBidHistory(ctx context.Context, listingID uuid.UUID, limit int) ([]domain.Bid, error) {
	if listingID == uuid.Nil {
		return nil, auction.ErrNotFound
	}
	if limit <= 0 {
		limit = 5
	}
	var bids []domain.Bid
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).Order("created_at DESC").Limit(limit).Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// BidderBid is one of the caller's bids joined with its listing state, for
// the my-bids page.
type BidderBid struct {
	domain.Bid
	Listing       *domain.Listing `json:"listing"`
	DerivedStatus string          `json:"derived_status"`
	IsLeading     bool            `json:"is_leading"`
}

// GetBidderBids returns all bids by one bidder, newest first, each annotated
// with its listing's derived status and whether the bid still leads.
func (s *Service) GetBidderBids(ctx context.Context, bidderID uuid.UUID, now time.Time) ([]BidderBid, error) {
	if bidderID == uuid.Nil {
		return nil, auction.ErrUnauthenticated
	}
	var bids []domain.Bid
	if err := s.DB.WithContext(ctx).Where("bidder_id = ?", bidderID).Order("created_at DESC").Find(&bids).Error; err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return []BidderBid{}, nil
	}

	ids := make([]uuid.UUID, 0, len(bids))
	seen := make(map[uuid.UUID]bool, len(bids))
	for _, b := range bids {
		if !seen[b.ListingID] {
			seen[b.ListingID] = true
			ids = append(ids, b.ListingID)
		}
	}
	var listings []domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id IN ?", ids).Find(&listings).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.Listing, len(listings))
	for i := range listings {
		byID[listings[i].ListingID] = &listings[i]
	}

	out := make([]BidderBid, 0, len(bids))
	for _, b := range bids {
		entry := BidderBid{Bid: b}
		if l, ok := byID[b.ListingID]; ok {
			entry.Listing = l
			snap := auction.Snapshot{EndsAt: l.EndsAt, StoredStatus: auction.Status(l.Status)}
			entry.DerivedStatus = string(auction.DeriveStatus(&snap, now))
			entry.IsLeading = b.Amount == l.CurrentBid && l.Status != domain.ListingStatusSold
		}
		out = append(out, entry)
	}
	return out, nil
}

func loadSnapshot(tx *gorm.DB, listingID uuid.UUID) (*domain.Listing, *auction.Snapshot, error) {
	if listingID == uuid.Nil {
		return nil, nil, auction.ErrNotFound
	}
	var listing domain.Listing
	if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, auction.ErrNotFound
		}
		return nil, nil, err
	}
	return &listing, &auction.Snapshot{
		ListingID:     listing.ListingID,
		SellerID:      listing.SellerID,
		StartingPrice: listing.StartingPrice,
		CurrentPrice:  listing.CurrentBid,
		MinIncrement:  listing.MinIncrement,
		BuyNowPrice:   listing.BuyNowPrice,
		EndsAt:        listing.EndsAt,
		StoredStatus:  auction.Status(listing.Status),
		BidCount:      listing.BidCount,
	}, nil
}

func createEvent(tx *gorm.DB, listingID uuid.UUID, eventType string, actorID *uuid.UUID, data map[string]interface{}) error {
	b, _ := json.Marshal(data)
	return tx.Create(&domain.ListingEvent{
		ListingID: listingID,
		EventType: eventType,
		ActorID:   actorID,
		EventData: datatypes.JSON(b),
	}).Error
}
