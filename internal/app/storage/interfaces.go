// Package storage declares the persistence interfaces for the registry
// layer. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/domainledger/registry_layer/internal/app/domain/fraction"
	"github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/domain/treasury"
)

// RegistryStore persists domain records, the owner index, and the per-suffix
// price table. PutDomain keeps the owner index consistent with the record's
// owner on every write; records are never deleted.
type RegistryStore interface {
	PutDomain(ctx context.Context, rec registry.Record) (registry.Record, error)
	GetDomain(ctx context.Context, fullDomain string) (registry.Record, error)
	// DeleteDomain removes a record and its index entry. It exists solely to
	// unwind a record written earlier in the same failed operation; committed
	// records are never deleted.
	DeleteDomain(ctx context.Context, fullDomain string) error
	ListOwnerDomains(ctx context.Context, owner string) ([]string, error)
	// ListExpiring returns records with ExpiresAt before the given instant.
	// A nil owners slice means all owners.
	ListExpiring(ctx context.Context, owners []string, before time.Time) ([]registry.Record, error)

	SetSuffixPrice(ctx context.Context, suffix string, perYear *big.Int) error
	// GetSuffixPrice returns zero for suffixes with no configured price.
	GetSuffixPrice(ctx context.Context, suffix string) (*big.Int, error)
	ListSuffixPrices(ctx context.Context) (map[string]*big.Int, error)
}

// TreasuryStore persists per-domain fee accounts. GetTreasuryAccount returns
// a zero-balance account for domains that have never received a deposit.
type TreasuryStore interface {
	GetTreasuryAccount(ctx context.Context, fullDomain string) (treasury.Account, error)
	PutTreasuryAccount(ctx context.Context, acct treasury.Account) (treasury.Account, error)
}

// FractionStore persists fractionalization records, share balances, and the
// bounded nonzero-holder list. SetShareBalance maintains the holder list:
// holders are tracked while nonzero and untracked when their balance drops
// to zero; adding a holder beyond fraction.MaxHolders fails with
// fraction.ErrHolderLimit.
type FractionStore interface {
	CreateFraction(ctx context.Context, rec fraction.Record) (fraction.Record, error)
	UpdateFraction(ctx context.Context, rec fraction.Record) (fraction.Record, error)
	GetFraction(ctx context.Context, fullDomain string) (fraction.Record, error)

	GetShareBalance(ctx context.Context, fullDomain, holder string) (*big.Int, error)
	SetShareBalance(ctx context.Context, fullDomain, holder string, amount *big.Int) error
	ListHolders(ctx context.Context, fullDomain string, limit int) ([]string, error)
}

// OracleStore persists the administrator-set fallback exchange rate. A zero
// rate means no fallback is configured.
type OracleStore interface {
	GetFallbackRate(ctx context.Context) (decimal.Decimal, time.Time, error)
	SetFallbackRate(ctx context.Context, rate decimal.Decimal, asOf time.Time) error
}
