package listings

import "errors"

var (
	ErrTitleRequired        = errors.New("Title is required")
	ErrInvalidStartingPrice = errors.New("Starting price must be a positive number")
	ErrInvalidMinIncrement  = errors.New("Minimum increment must be a positive number")
	ErrInvalidBuyNowPrice   = errors.New("Buy Now price must be greater than the starting price")
	ErrInvalidDuration      = errors.New("Duration must be a positive number of hours")
	ErrListingNotFound      = errors.New("Listing not found")
	ErrSellerRequired       = errors.New("Seller is required")
)
