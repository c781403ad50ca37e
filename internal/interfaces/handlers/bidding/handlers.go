package bidding

import (
	"errors"
	"time"

	bidsvc "elmzad-backend/internal/application/bidding"
	"elmzad-backend/internal/auction"
	"elmzad-backend/internal/middleware"
	"elmzad-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *bidsvc.Service
}

type PlaceBidRequest struct {
	ListingID string  `json:"listing_id"`
	Amount    float64 `json:"amount"`
}

// PlaceBid POST /api/v1/bids/place-bid.
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	var req PlaceBidRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}

	res, err := h.Service.PlaceBid(c.Context(), bidsvc.PlaceBidInput{
		ListingID: listingID,
		BidderID:  middleware.CurrentUserID(c),
		Amount:    req.Amount,
		Now:       time.Now(),
	})
	if err != nil {
		return auctionError(c, err, "place bid")
	}
	return response.SuccessCreated(c, "Bid placed", fiber.Map{
		"bid":     res.Bid,
		"listing": res.Listing,
	}, nil)
}

type BuyNowRequest struct {
	ListingID string `json:"listing_id"`
}

// BuyNow POST /api/v1/bids/buy-now.
func (h *Handlers) BuyNow(c *fiber.Ctx) error {
	var req BuyNowRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}

	listing, err := h.Service.BuyNow(c.Context(), bidsvc.BuyNowInput{
		ListingID: listingID,
		BuyerID:   middleware.CurrentUserID(c),
		Now:       time.Now(),
	})
	if err != nil {
		return auctionError(c, err, "buy now")
	}
	return response.Success(c, "Purchase complete", fiber.Map{"listing": listing}, nil)
}

type RelistRequest struct {
	ListingID     string  `json:"listing_id"`
	DurationHours float64 `json:"duration_hours"`
}

// Relist POST /api/v1/bids/relist.
func (h *Handlers) Relist(c *fiber.Ctx) error {
	var req RelistRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}

	listing, err := h.Service.Relist(c.Context(), bidsvc.RelistInput{
		ListingID:     listingID,
		SellerID:      middleware.CurrentUserID(c),
		DurationHours: req.DurationHours,
		Now:           time.Now(),
	})
	if err != nil {
		return auctionError(c, err, "relist")
	}
	return response.Success(c, "Listing relisted", fiber.Map{"listing": listing}, nil)
}

// History GET /api/v1/bids/history/:listing_id returns recent bids on a listing.
func (h *Handlers) History(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}
	limit := c.QueryInt("limit", 5)

	bids, err := h.Service.GetBidHistory(c.Context(), listingID, limit)
	if err != nil {
		return auctionError(c, err, "bid history")
	}
	return response.Success(c, "Bids retrieved", fiber.Map{"bids": bids}, fiber.Map{"count": len(bids)})
}

// MyBids GET /api/v1/bids/my-bids returns the caller's bids with listing state.
func (h *Handlers) MyBids(c *fiber.Ctx) error {
	bids, err := h.Service.GetBidderBids(c.Context(), middleware.CurrentUserID(c), time.Now())
	if err != nil {
		return auctionError(c, err, "my bids")
	}
	return response.Success(c, "Bids retrieved", fiber.Map{"bids": bids}, fiber.Map{"count": len(bids)})
}

// auctionError maps engine and adapter errors onto HTTP statuses. The engine
// reports the most specific failure, so the order here only groups by kind.
func auctionError(c *fiber.Ctx, err error, op string) error {
	var closed *auction.ClosedError
	var tooLow *auction.BidTooLowError

	switch {
	case errors.Is(err, auction.ErrNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.As(err, &closed):
		return response.Conflict(c, err.Error(), fiber.Map{"reason": closed.Reason})
	case errors.Is(err, auction.ErrUnauthenticated):
		return response.Unauthorized(c, err.Error())
	case errors.Is(err, auction.ErrSelfBidRejected), errors.Is(err, auction.ErrSelfPurchaseRejected), errors.Is(err, auction.ErrForbidden):
		return response.Error(c, err.Error(), fiber.StatusForbidden, nil)
	case errors.As(err, &tooLow):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, fiber.Map{"minimum_allowed_bid": tooLow.MinimumAllowedBid})
	case errors.Is(err, auction.ErrInvalidAmount), errors.Is(err, auction.ErrBuyNowUnavailable),
		errors.Is(err, auction.ErrNotRelistable), errors.Is(err, auction.ErrInvalidDuration):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	case errors.Is(err, auction.ErrInvalidListingState):
		return response.Error(c, err.Error(), fiber.StatusUnprocessableEntity, nil)
	case errors.Is(err, bidsvc.ErrConflict):
		return response.Conflict(c, err.Error(), nil)
	default:
		log.Error().Err(err).Str("op", op).Msg("auction operation failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
}
