package credit

import "errors"

var (
	ErrInvalidAmount = errors.New("Payment amount must be a positive number")
)
