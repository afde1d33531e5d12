// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is the default backend for
// tests and local development.
package memory

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/domainledger/registry_layer/internal/app/domain/fraction"
	"github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/domain/treasury"
	"github.com/domainledger/registry_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces.
type Store struct {
	mu sync.RWMutex

	domains      map[string]registry.Record
	ownerIndex   map[string][]string
	suffixPrices map[string]*big.Int

	treasuryAccounts map[string]treasury.Account

	fractions     map[string]fraction.Record
	shareBalances map[string]map[string]*big.Int
	holders       map[string][]string

	fallbackRate decimal.Decimal
	fallbackAsOf time.Time
}

var _ storage.RegistryStore = (*Store)(nil)
var _ storage.TreasuryStore = (*Store)(nil)
var _ storage.FractionStore = (*Store)(nil)
var _ storage.OracleStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		domains:          make(map[string]registry.Record),
		ownerIndex:       make(map[string][]string),
		suffixPrices:     make(map[string]*big.Int),
		treasuryAccounts: make(map[string]treasury.Account),
		fractions:        make(map[string]fraction.Record),
		shareBalances:    make(map[string]map[string]*big.Int),
		holders:          make(map[string][]string),
	}
}

// RegistryStore implementation ------------------------------------------------

func (s *Store) PutDomain(_ context.Context, rec registry.Record) (registry.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.FullDomain()
	now := time.Now().UTC()
	if existing, ok := s.domains[key]; ok {
		rec.CreatedAt = existing.CreatedAt
		if existing.Owner != rec.Owner {
			s.removeFromIndexLocked(existing.Owner, key)
			s.addToIndexLocked(rec.Owner, key)
		}
	} else {
		rec.CreatedAt = now
		s.addToIndexLocked(rec.Owner, key)
	}
	rec.UpdatedAt = now

	s.domains[key] = rec
	return rec, nil
}

func (s *Store) GetDomain(_ context.Context, fullDomain string) (registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.domains[registry.Normalize(fullDomain)]
	if !ok {
		return registry.Record{}, registry.ErrDomainNotFound
	}
	return rec, nil
}

func (s *Store) DeleteDomain(_ context.Context, fullDomain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := registry.Normalize(fullDomain)
	rec, ok := s.domains[key]
	if !ok {
		return registry.ErrDomainNotFound
	}
	s.removeFromIndexLocked(rec.Owner, key)
	delete(s.domains, key)
	return nil
}

func (s *Store) ListOwnerDomains(_ context.Context, owner string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.ownerIndex[owner]
	out := make([]string, len(idx))
	copy(out, idx)
	return out, nil
}

func (s *Store) ListExpiring(_ context.Context, owners []string, before time.Time) ([]registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filter map[string]bool
	if owners != nil {
		filter = make(map[string]bool, len(owners))
		for _, o := range owners {
			filter[o] = true
		}
	}

	var out []registry.Record
	for _, rec := range s.domains {
		if rec.Owner == registry.ZeroAddress {
			continue
		}
		if filter != nil && !filter[rec.Owner] {
			continue
		}
		if rec.ExpiresAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) SetSuffixPrice(_ context.Context, suffix string, perYear *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.suffixPrices[registry.Normalize(suffix)] = new(big.Int).Set(perYear)
	return nil
}

func (s *Store) GetSuffixPrice(_ context.Context, suffix string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.suffixPrices[registry.Normalize(suffix)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(price), nil
}

func (s *Store) ListSuffixPrices(_ context.Context) (map[string]*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*big.Int, len(s.suffixPrices))
	for suffix, price := range s.suffixPrices {
		out[suffix] = new(big.Int).Set(price)
	}
	return out, nil
}

// addToIndexLocked appends the domain to the owner's index. The zero address
// is never indexed.
func (s *Store) addToIndexLocked(owner, fullDomain string) {
	if owner == registry.ZeroAddress {
		return
	}
	s.ownerIndex[owner] = append(s.ownerIndex[owner], fullDomain)
}

// removeFromIndexLocked removes the domain from the owner's index using
// swap-and-pop; order within an index is not meaningful.
func (s *Store) removeFromIndexLocked(owner, fullDomain string) {
	idx := s.ownerIndex[owner]
	for i, d := range idx {
		if d == fullDomain {
			idx[i] = idx[len(idx)-1]
			s.ownerIndex[owner] = idx[:len(idx)-1]
			return
		}
	}
}

// TreasuryStore implementation ------------------------------------------------

func (s *Store) GetTreasuryAccount(_ context.Context, fullDomain string) (treasury.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := registry.Normalize(fullDomain)
	acct, ok := s.treasuryAccounts[key]
	if !ok {
		return treasury.Account{FullDomain: key, Balance: new(big.Int)}, nil
	}
	return acct.Clone(), nil
}

func (s *Store) PutTreasuryAccount(_ context.Context, acct treasury.Account) (treasury.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct.FullDomain = registry.Normalize(acct.FullDomain)
	now := time.Now().UTC()
	if existing, ok := s.treasuryAccounts[acct.FullDomain]; ok {
		acct.CreatedAt = existing.CreatedAt
	} else {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now

	s.treasuryAccounts[acct.FullDomain] = acct.Clone()
	return acct.Clone(), nil
}

// FractionStore implementation ------------------------------------------------

func (s *Store) CreateFraction(_ context.Context, rec fraction.Record) (fraction.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.FullDomain = registry.Normalize(rec.FullDomain)
	if _, exists := s.fractions[rec.FullDomain]; exists {
		return fraction.Record{}, fraction.ErrAlreadyEnabled
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.fractions[rec.FullDomain] = rec.Clone()
	return rec.Clone(), nil
}

func (s *Store) UpdateFraction(_ context.Context, rec fraction.Record) (fraction.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.FullDomain = registry.Normalize(rec.FullDomain)
	existing, ok := s.fractions[rec.FullDomain]
	if !ok {
		return fraction.Record{}, fraction.ErrNotEnabled
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	s.fractions[rec.FullDomain] = rec.Clone()
	return rec.Clone(), nil
}

func (s *Store) GetFraction(_ context.Context, fullDomain string) (fraction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.fractions[registry.Normalize(fullDomain)]
	if !ok {
		return fraction.Record{}, fraction.ErrNotEnabled
	}
	return rec.Clone(), nil
}

func (s *Store) GetShareBalance(_ context.Context, fullDomain, holder string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances := s.shareBalances[registry.Normalize(fullDomain)]
	bal, ok := balances[holder]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

func (s *Store) SetShareBalance(_ context.Context, fullDomain, holder string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := registry.Normalize(fullDomain)
	balances := s.shareBalances[key]
	if balances == nil {
		balances = make(map[string]*big.Int)
		s.shareBalances[key] = balances
	}

	_, tracked := balances[holder]
	if amount.Sign() == 0 {
		if tracked {
			delete(balances, holder)
			s.removeHolderLocked(key, holder)
		}
		return nil
	}

	if !tracked {
		if len(s.holders[key]) >= fraction.MaxHolders {
			return fraction.ErrHolderLimit
		}
		s.holders[key] = append(s.holders[key], holder)
	}
	balances[holder] = new(big.Int).Set(amount)
	return nil
}

func (s *Store) ListHolders(_ context.Context, fullDomain string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.holders[registry.Normalize(fullDomain)]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *Store) removeHolderLocked(fullDomain, holder string) {
	list := s.holders[fullDomain]
	for i, h := range list {
		if h == holder {
			list[i] = list[len(list)-1]
			s.holders[fullDomain] = list[:len(list)-1]
			return
		}
	}
}

// OracleStore implementation --------------------------------------------------

func (s *Store) GetFallbackRate(_ context.Context) (decimal.Decimal, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fallbackRate, s.fallbackAsOf, nil
}

func (s *Store) SetFallbackRate(_ context.Context, rate decimal.Decimal, asOf time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fallbackRate = rate
	s.fallbackAsOf = asOf.UTC()
	return nil
}
