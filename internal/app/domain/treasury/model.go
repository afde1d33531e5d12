// Package treasury defines the per-domain fee ledger model.
package treasury

import (
	"errors"
	"math/big"
	"time"
)

const (
	// BpsDenominator is the basis-point scale: fees are expressed out of
	// 10000.
	BpsDenominator = 10000

	// MaxFeeBps is the hard ceiling on any fee percentage (10%).
	MaxFeeBps = 1000
)

// Account is the accumulated fee balance for one domain. Balance never goes
// negative; a renewal spend is provisional until the downstream renewal
// succeeds.
type Account struct {
	FullDomain string
	Balance    *big.Int
	FeeBps     int // 0 means "use the global default"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy so stored balances cannot be aliased by callers.
func (a Account) Clone() Account {
	out := a
	if a.Balance != nil {
		out.Balance = new(big.Int).Set(a.Balance)
	}
	return out
}

// Fee computes amount*bps/10000 using the account's own rate when set, else
// the supplied default.
func (a Account) Fee(amount *big.Int, defaultBps int) *big.Int {
	bps := a.FeeBps
	if bps == 0 {
		bps = defaultBps
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(BpsDenominator))
}

var (
	ErrNotRegistry         = errors.New("caller is not the registry")
	ErrNotOwner            = errors.New("caller is not the domain owner")
	ErrZeroDeposit         = errors.New("deposit amount must be positive")
	ErrFeeTooHigh          = errors.New("fee percentage exceeds maximum")
	ErrInsufficientBalance = errors.New("treasury balance insufficient")
	ErrDomainExpired       = errors.New("domain has expired")
)
