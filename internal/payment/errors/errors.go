package errors

import "errors"

var (
	ErrNotFound  = errors.New("payment intent not found")
	ErrInvalidID = errors.New("invalid payment intent ID format")
)
