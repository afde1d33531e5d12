package registry

import "errors"

// Validation errors are raised before any state mutation.
var (
	ErrInvalidName    = errors.New("invalid domain name")
	ErrInvalidSuffix  = errors.New("invalid suffix")
	ErrInvalidYears   = errors.New("years must be between 1 and 10")
	ErrInvalidAddress = errors.New("invalid account address")
	ErrInvalidBatch   = errors.New("batch must contain between 2 and 10 items")
)

// Availability and payment conflicts leave no partial effect.
var (
	ErrDomainTaken       = errors.New("domain is not available")
	ErrDomainNotFound    = errors.New("domain not found")
	ErrDomainExpired     = errors.New("domain has expired")
	ErrSuffixPriceNotSet = errors.New("suffix price not set")
	ErrYearsLimit        = errors.New("cumulative purchased years would exceed limit")

	// ErrInsufficientPayment means the payment does not cover the nominal
	// price. ErrInsufficientAfterFee means the payment covered the price but
	// not the price plus the treasury fee; callers need to tell the two
	// apart.
	ErrInsufficientPayment  = errors.New("payment does not cover price")
	ErrInsufficientAfterFee = errors.New("payment does not cover price after fee deduction")
	ErrFeeExceedsPayment    = errors.New("computed fee exceeds payment")
)

// Authorization errors are rejected unconditionally.
var (
	ErrNotOwner      = errors.New("caller is not the domain owner")
	ErrNotAdmin      = errors.New("caller is not the administrator")
	ErrNotTreasury   = errors.New("caller is not the treasury")
	ErrNotFraction   = errors.New("caller is not the fractionalization contract")
	ErrSelfTransfer  = errors.New("cannot transfer domain to current owner")
	ErrZeroNewOwner  = errors.New("new owner must not be the zero address")
	ErrTokenTransfer = errors.New("token transfer failed")
)
