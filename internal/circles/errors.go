package circles

import "errors"

var (
	ErrInvalidParams      = errors.New("Invalid circle parameters")
	ErrCircleNotFound     = errors.New("Circle not found")
	ErrCircleNotAccepting = errors.New("Circle is not accepting members")
	ErrCircleFull         = errors.New("Circle is already full")
	ErrAlreadyMember      = errors.New("Already a member of this circle")
	ErrInvalidTransition  = errors.New("Invalid circle status transition")
)
