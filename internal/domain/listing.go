package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing statuses as stored in marketplace_listings.status.
// "ended" is normally derived from ends_at rather than written back; a row can
// sit with a stale "active" status after its end time until a read or mutation
// applies the derived state.
const (
	ListingStatusActive = "active"
	ListingStatusEnded  = "ended"
	ListingStatusSold   = "sold"
)

// Listing is an item offered for auction.
// current_bid starts at starting_price and only moves up through accepted bids
// (or back to starting_price on relist). bid_count feeds the zero-bid minimum
// rule and is maintained in the same write as current_bid.
type Listing struct {
	ListingID     uuid.UUID      `gorm:"column:listing_id;type:uuid;primaryKey" json:"listing_id"`
	SellerID      uuid.UUID      `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Description   *string        `gorm:"column:description" json:"description"`
	Category      *string        `gorm:"column:category" json:"category"`
	Location      *string        `gorm:"column:location" json:"location"`
	Condition     *string        `gorm:"column:condition" json:"condition"`
	StartingPrice float64        `gorm:"column:starting_price;type:decimal(18,2);not null" json:"starting_price"`
	CurrentBid    float64        `gorm:"column:current_bid;type:decimal(18,2);not null" json:"current_bid"`
	MinIncrement  float64        `gorm:"column:min_increment;type:decimal(18,2);not null" json:"min_increment"`
	BuyNowPrice   *float64       `gorm:"column:buy_now_price;type:decimal(18,2)" json:"buy_now_price"`
	ImageURL      *string        `gorm:"column:image_url" json:"image_url"`
	EndsAt        time.Time      `gorm:"column:ends_at;not null" json:"ends_at"`
	Status        string         `gorm:"column:status;type:varchar(20);default:'active'" json:"status"`
	BuyerID       *uuid.UUID     `gorm:"column:buyer_id;type:uuid" json:"buyer_id"`
	BidCount      int64          `gorm:"column:bid_count;not null;default:0" json:"bid_count"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Listing) TableName() string {
	return "marketplace_listings"
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	return nil
}
