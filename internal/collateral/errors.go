package collateral

import "errors"

var (
	ErrInvalidAmount        = errors.New("Amount must be a positive number")
	ErrNoDeposit            = errors.New("No collateral deposit found for this wallet")
	ErrInsufficientBalance  = errors.New("Insufficient withdrawable balance")
	ErrInsufficientCapacity = errors.New("Insufficient collateral capacity")
	ErrCommitmentExists     = errors.New("A commitment already exists for this circle")
	ErrCommitmentNotFound   = errors.New("Commitment not found")
	ErrPriceNotSet          = errors.New("No price recorded for this asset")
	ErrInvalidLTV           = errors.New("LTV ratio must be between 0.50 and 0.90")
)
