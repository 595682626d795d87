package domain

import "errors"

// Error kinds shared across the service. Components wrap them with the
// underlying cause so callers can match either side with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrConfiguration     = errors.New("configuration missing")
	ErrFetch             = errors.New("image fetch failed")
	ErrDecode            = errors.New("image decode failed")
	ErrGeneration        = errors.New("generation failed")
	ErrStorage           = errors.New("storage failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrTransaction       = errors.New("transaction failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
