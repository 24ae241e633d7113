package errors

import (
	"errors"
)

var (
	ErrEmptyAuth          = errors.New("missing authorization")
	ErrEmptySubject       = errors.New("missing subject")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmptyCart          = errors.New("your cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrProductNotFound    = errors.New("product not found")
	ErrCatalogUnavailable = errors.New("catalog is unavailable")
	ErrOrderNotFound      = errors.New("order not found")
	ErrCacheMiss          = errors.New("cache miss")
	ErrEmptySecretKey     = errors.New("missing session secret key")
	ErrCartClosed         = errors.New("cart belongs to a closed session")
)
