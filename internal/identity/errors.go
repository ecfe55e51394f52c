package identity

import "errors"

var (
	ErrIdentityNotFound   = errors.New("Identity not found")
	ErrWalletAlreadyBound = errors.New("Identity already has a confirmed wallet")
	ErrWalletTaken        = errors.New("Wallet is bound to another identity")
	ErrNoWalletToConfirm  = errors.New("No wallet binding to confirm")
	ErrInvalidWallet      = errors.New("Wallet address is required")
)
