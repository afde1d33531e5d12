// Package fraction defines the fractional-ownership model: per-domain share
// records, holder ledgers, and the default state machine.
package fraction

import (
	"errors"
	"math/big"
	"time"
)

const (
	// MaxHolders bounds the tracked nonzero-holder list per domain so the
	// majority scan stays executable.
	MaxHolders = 1000

	// MajorityScanCap bounds how many holders a single majority scan may
	// inspect.
	MajorityScanCap = 100
)

// TotalSupply is the fixed share supply per fractionalized domain:
// 10 billion units at 18 decimal places.
func TotalSupply() *big.Int {
	supply := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return supply.Mul(supply, big.NewInt(10_000_000_000))
}

// LockedPortion is the half of the supply minted locked to the owner when
// fractionalization is enabled.
func LockedPortion() *big.Int {
	return new(big.Int).Div(TotalSupply(), big.NewInt(2))
}

// MajorityThreshold returns the strict-majority boundary: a holder is a
// majority holder only when its balance exceeds this value.
func MajorityThreshold() *big.Int {
	return new(big.Int).Div(TotalSupply(), big.NewInt(2))
}

// Status tracks the per-domain state machine. There is no transition back to
// StatusUninitialized.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusEnabled       Status = "enabled"
	StatusActive        Status = "active"
	StatusDefaulted     Status = "defaulted"
)

// Record is the fractionalization state for one domain.
type Record struct {
	FullDomain    string
	TokenID       string
	DomainOwner   string
	UnlockTime    time.Time
	Status        Status
	Unlocked      bool
	PricePerShare *big.Int
	PublicSold    *big.Int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone deep-copies the record's big integers.
func (r Record) Clone() Record {
	out := r
	if r.PricePerShare != nil {
		out.PricePerShare = new(big.Int).Set(r.PricePerShare)
	}
	if r.PublicSold != nil {
		out.PublicSold = new(big.Int).Set(r.PublicSold)
	}
	return out
}

// RemainingPublic returns how many shares are still publicly purchasable.
func (r Record) RemainingPublic() *big.Int {
	remaining := LockedPortion()
	if r.PublicSold != nil {
		remaining.Sub(remaining, r.PublicSold)
	}
	return remaining
}

var (
	ErrAlreadyEnabled      = errors.New("fractionalization already enabled")
	ErrNotEnabled          = errors.New("fractionalization not enabled")
	ErrDefaulted           = errors.New("domain ownership already defaulted")
	ErrInvalidPrice        = errors.New("share price must be positive")
	ErrInvalidAmount       = errors.New("share amount must be positive")
	ErrExceedsPublicSupply = errors.New("amount exceeds remaining public supply")
	ErrInsufficientPayment = errors.New("payment does not cover share cost")
	ErrInsufficientShares  = errors.New("share balance insufficient")
	ErrSharesLocked        = errors.New("owner shares are locked until renewal")
	ErrNotUnlockable       = errors.New("domain has not been renewed past the unlock time")
	ErrHolderLimit         = errors.New("holder list is full")
	ErrNotExpired          = errors.New("domain has not expired")
	ErrGracePeriod         = errors.New("grace period has not elapsed")
	ErrNoMajority          = errors.New("no majority holder")
	ErrOwnerMajority       = errors.New("recorded owner still holds the majority")
	ErrNotOwner            = errors.New("caller is not the domain owner")
	ErrDomainExpired       = errors.New("domain has expired")
)
