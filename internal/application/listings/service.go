package listings

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"elmzad-backend/internal/auction"
	"elmzad-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

type CreateListingInput struct {
	SellerID      uuid.UUID
	Title         string
	Description   *string
	Category      *string
	Location      *string
	Condition     *string
	StartingPrice float64
	MinIncrement  float64
	BuyNowPrice   *float64
	ImageURL      *string
	DurationHours float64
	Now           time.Time
}

// CreateListing validates input and creates the listing with current_bid
// initialized to the starting price, plus a CREATED event in the same
// transaction.
func (s *Service) CreateListing(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if in.SellerID == uuid.Nil {
		return nil, ErrSellerRequired
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	if !finitePositive(in.StartingPrice) {
		return nil, ErrInvalidStartingPrice
	}
	if !finitePositive(in.MinIncrement) {
		return nil, ErrInvalidMinIncrement
	}
	if in.BuyNowPrice != nil && (!finitePositive(*in.BuyNowPrice) || *in.BuyNowPrice <= in.StartingPrice) {
		return nil, ErrInvalidBuyNowPrice
	}
	if !finitePositive(in.DurationHours) || in.DurationHours > auction.MaxDurationHours {
		return nil, ErrInvalidDuration
	}

	listing := &domain.Listing{
		SellerID:      in.SellerID,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Category:      in.Category,
		Location:      in.Location,
		Condition:     in.Condition,
		StartingPrice: in.StartingPrice,
		CurrentBid:    in.StartingPrice,
		MinIncrement:  in.MinIncrement,
		BuyNowPrice:   in.BuyNowPrice,
		ImageURL:      in.ImageURL,
		EndsAt:        in.Now.Add(time.Duration(in.DurationHours * float64(time.Hour))),
		Status:        domain.ListingStatusActive,
	}

	tx := s.DB.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()
	if err := tx.Create(listing).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("Failed to create listing: %v", err)
	}
	eventDataBytes, _ := json.Marshal(map[string]interface{}{
		"starting_price": listing.StartingPrice,
		"min_increment":  listing.MinIncrement,
		"buy_now_price":  listing.BuyNowPrice,
		"ends_at":        listing.EndsAt,
	})
	if err := tx.Create(&domain.ListingEvent{
		ListingID: listing.ListingID,
		EventType: domain.EventListingCreated,
		ActorID:   &in.SellerID,
		EventData: datatypes.JSON(eventDataBytes),
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("Failed to create listing event: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("Failed to create listing: %v", err)
	}
	return listing, nil
}

// BrowseFilters narrow the marketplace feed. Query matches title,
// description, category and location.
type BrowseFilters struct {
	Category string
	Location string
	Query    string
}

func (s *Service) BrowseListings(ctx context.Context, f BrowseFilters) ([]domain.Listing, error) {
	q := s.DB.WithContext(ctx).Model(&domain.Listing{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Location != "" {
		q = q.Where("location LIKE ?", "%"+f.Location+"%")
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(f.Query)) + "%"
		q = q.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ? OR LOWER(location) LIKE ?",
			like, like, like, like,
		)
	}
	var listings []domain.Listing
	if err := q.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// ListingView is a listing plus its time-derived state, for read paths. The
// stored status can lag behind the clock, so responses always carry the
// derived value.
type ListingView struct {
	domain.Listing
	DerivedStatus string `json:"derived_status"`
	CanRelist     bool   `json:"can_relist"`
}

// ListingDetail is the listing page payload: the listing, its derived state,
// the minimum allowed next bid, and the most recent bids.
type ListingDetail struct {
	ListingView
	MinimumAllowedBid float64      `json:"minimum_allowed_bid"`
	RecentBids        []domain.Bid `json:"recent_bids"`
}

const recentBidLimit = 5

func (s *Service) GetListingByID(ctx context.Context, listingID uuid.UUID, now time.Time) (*ListingDetail, error) {
	if listingID == uuid.Nil {
		return nil, ErrListingNotFound
	}
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	var bids []domain.Bid
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).Order("created_at DESC").Limit(recentBidLimit).Find(&bids).Error; err != nil {
		return nil, err
	}
	view := newListingView(listing, now)
	snap := auction.Snapshot{
		StartingPrice: listing.StartingPrice,
		CurrentPrice:  listing.CurrentBid,
		MinIncrement:  listing.MinIncrement,
		BidCount:      listing.BidCount,
	}
	return &ListingDetail{
		ListingView:       view,
		MinimumAllowedBid: auction.MinimumAllowedBid(&snap),
		RecentBids:        bids,
	}, nil
}

func (s *Service) GetSellerListings(ctx context.Context, sellerID uuid.UUID, now time.Time) ([]ListingView, error) {
	if sellerID == uuid.Nil {
		return nil, ErrSellerRequired
	}
	var listings []domain.Listing
	if err := s.DB.WithContext(ctx).Where("seller_id = ?", sellerID).Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	views := make([]ListingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, newListingView(l, now))
	}
	return views, nil
}

func newListingView(l domain.Listing, now time.Time) ListingView {
	snap := auction.Snapshot{
		EndsAt:       l.EndsAt,
		StoredStatus: auction.Status(l.Status),
	}
	derived := auction.DeriveStatus(&snap, now)
	return ListingView{
		Listing:       l,
		DerivedStatus: string(derived),
		CanRelist:     derived == auction.StatusEnded,
	}
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
