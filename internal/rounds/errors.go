package rounds

import "errors"

var (
	ErrCircleNotFound          = errors.New("Circle not found")
	ErrCircleNotActive         = errors.New("Circle is not active")
	ErrNotMember               = errors.New("Not a member of this circle")
	ErrInvalidAmount           = errors.New("Amount does not match the circle contribution")
	ErrAlreadyContributed      = errors.New("Already contributed this round")
	ErrContributionsIncomplete = errors.New("Not all members have contributed this round")
	ErrContributionRequired    = errors.New("Must contribute before bidding this round")
	ErrAlreadyWon              = errors.New("Member has already won a round")
	ErrBidExists               = errors.New("Already placed a bid this round")
	ErrInvalidBid              = errors.New("Bid must be a positive amount")
	ErrPayoutModeMismatch      = errors.New("Operation does not match the circle payout mode")
	ErrInvalidRound            = errors.New("Round does not match the circle current round")
	ErrRoundAlreadySettled     = errors.New("Round has already been settled")
	ErrNotWinner               = errors.New("Member has no winnings to repay")
)
