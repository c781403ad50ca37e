package listings

import (
	"time"

	listsvc "elmzad-backend/internal/application/listings"
	"elmzad-backend/internal/middleware"
	"elmzad-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *listsvc.Service
}

type CreateListingRequest struct {
	Title         string   `json:"title"`
	Description   *string  `json:"description"`
	Category      *string  `json:"category"`
	Location      *string  `json:"location"`
	Condition     *string  `json:"condition"`
	StartingPrice float64  `json:"starting_price"`
	MinIncrement  float64  `json:"min_increment"`
	BuyNowPrice   *float64 `json:"buy_now_price"`
	ImageURL      *string  `json:"image_url"`
	DurationHours float64  `json:"duration_hours"`
}

// CreateListing POST /api/v1/listings/create-listing returns 201 with the new listing.
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	var req CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	listing, err := h.Service.CreateListing(c.Context(), listsvc.CreateListingInput{
		SellerID:      middleware.CurrentUserID(c),
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Location:      req.Location,
		Condition:     req.Condition,
		StartingPrice: req.StartingPrice,
		MinIncrement:  req.MinIncrement,
		BuyNowPrice:   req.BuyNowPrice,
		ImageURL:      req.ImageURL,
		DurationHours: req.DurationHours,
		Now:           time.Now(),
	})
	if err != nil {
		switch err {
		case listsvc.ErrSellerRequired:
			return response.Unauthorized(c, "Unauthorized")
		case listsvc.ErrTitleRequired, listsvc.ErrInvalidStartingPrice, listsvc.ErrInvalidMinIncrement,
			listsvc.ErrInvalidBuyNowPrice, listsvc.ErrInvalidDuration:
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		default:
			log.Error().Err(err).Msg("create listing failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	return response.SuccessCreated(c, "Listing created", fiber.Map{"listing": listing}, nil)
}

// Browse GET /api/v1/listings/browse returns public marketplace feed with optional
// category, location and q filters.
func (h *Handlers) Browse(c *fiber.Ctx) error {
	listings, err := h.Service.BrowseListings(c.Context(), listsvc.BrowseFilters{
		Category: c.Query("category"),
		Location: c.Query("location"),
		Query:    c.Query("q"),
	})
	if err != nil {
		log.Error().Err(err).Msg("browse listings failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Listings retrieved", fiber.Map{"listings": listings}, fiber.Map{"count": len(listings)})
}

// GetListingByID GET /api/v1/listings/get-listing/:listing_id returns public listing
// detail with derived status, minimum next bid and recent bids.
func (h *Handlers) GetListingByID(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}

	detail, err := h.Service.GetListingByID(c.Context(), listingID, time.Now())
	if err != nil {
		if err == listsvc.ErrListingNotFound {
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		}
		log.Error().Err(err).Msg("get listing failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Listing retrieved", fiber.Map{"listing": detail}, nil)
}

// MyListings GET /api/v1/listings/my-listings returns the caller's listings with
// derived status and relist eligibility.
func (h *Handlers) MyListings(c *fiber.Ctx) error {
	views, err := h.Service.GetSellerListings(c.Context(), middleware.CurrentUserID(c), time.Now())
	if err != nil {
		if err == listsvc.ErrSellerRequired {
			return response.Unauthorized(c, "Unauthorized")
		}
		log.Error().Err(err).Msg("my listings failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Listings retrieved", fiber.Map{"listings": views}, fiber.Map{"count": len(views)})
}
