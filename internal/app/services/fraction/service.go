// Package fraction implements domain fractionalization: a fixed-supply
// share token per domain, public share sale, the owner lock, and ownership
// transfer to a majority holder when the owner defaults on renewal.
package fraction

import (
	"context"
	"fmt"
	"math/big"
	"time"

	domain "github.com/domainledger/registry_layer/internal/app/domain/fraction"
	domainregistry "github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/metrics"
	"github.com/domainledger/registry_layer/internal/app/storage"
	"github.com/domainledger/registry_layer/pkg/logger"

	"github.com/google/uuid"
)

// DefaultGracePeriod is how long past expiration a domain must sit before a
// majority holder can claim it.
const DefaultGracePeriod = 7 * 24 * time.Hour

// shareUnit is one whole share at 18 decimal places.
var shareUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// RegistryClient is the registry surface fractionalization depends on.
type RegistryClient interface {
	GetDomain(ctx context.Context, fullDomain string) (domainregistry.Record, error)
	TransferByFractionalization(ctx context.Context, caller, fullDomain, newOwner string) error
}

// Receipt summarizes a completed share purchase.
type Receipt struct {
	FullDomain string
	Holder     string
	Shares     *big.Int
	Cost       *big.Int
	Refund     *big.Int
}

// Service owns the fractionalization records and the share token.
type Service struct {
	store    storage.FractionStore
	token    *ShareToken
	registry RegistryClient
	self     string
	grace    time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a fractionalization service. self is the identity presented
// to the registry on default transfers; grace <= 0 selects the default.
func New(store storage.FractionStore, self string, grace time.Duration, log *logger.Logger) *Service {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if log == nil {
		log = logger.NewDefault("fraction")
	}
	s := &Service{
		store: store,
		token: NewShareToken(store, log),
		self:  self,
		grace: grace,
		log:   log,
		now:   time.Now,
	}
	s.token.AddListener(s)
	return s
}

// SetRegistry wires the registry client.
func (s *Service) SetRegistry(client RegistryClient) {
	s.registry = client
}

// Address returns the service's ledger identity.
func (s *Service) Address() string { return s.self }

// Token exposes the share token for peer transfers and balance reads.
func (s *Service) Token() *ShareToken { return s.token }

// GetFraction returns a domain's fractionalization record.
func (s *Service) GetFraction(ctx context.Context, fullDomain string) (domain.Record, error) {
	return s.store.GetFraction(ctx, fullDomain)
}

// ShareBalance returns a holder's balance for a domain.
func (s *Service) ShareBalance(ctx context.Context, fullDomain, holder string) (*big.Int, error) {
	return s.token.BalanceOf(ctx, fullDomain, holder)
}

// Enable turns on fractionalization for a domain. Only the current registry
// owner may enable, the domain must not be expired, and the price must be
// positive. Half the supply is minted to the owner, locked until the domain
// is renewed past its current expiration.
func (s *Service) Enable(ctx context.Context, caller, fullDomain string, pricePerShare *big.Int) (domain.Record, error) {
	if pricePerShare == nil || pricePerShare.Sign() <= 0 {
		return domain.Record{}, domain.ErrInvalidPrice
	}

	rec, err := s.registry.GetDomain(ctx, fullDomain)
	if err != nil {
		return domain.Record{}, err
	}
	if rec.Owner != caller {
		return domain.Record{}, domain.ErrNotOwner
	}
	if rec.Expired(s.now()) {
		return domain.Record{}, domain.ErrDomainExpired
	}

	frec := domain.Record{
		FullDomain:    rec.FullDomain(),
		TokenID:       uuid.NewString(),
		DomainOwner:   rec.Owner,
		UnlockTime:    rec.ExpiresAt,
		Status:        domain.StatusEnabled,
		PricePerShare: new(big.Int).Set(pricePerShare),
		PublicSold:    new(big.Int),
	}
	frec, err = s.store.CreateFraction(ctx, frec)
	if err != nil {
		return domain.Record{}, err
	}

	if err := s.token.Mint(ctx, frec.FullDomain, rec.Owner, domain.LockedPortion()); err != nil {
		return domain.Record{}, fmt.Errorf("mint locked shares: %w", err)
	}

	s.log.WithField("domain", frec.FullDomain).
		WithField("owner", rec.Owner).
		WithField("price_per_share", pricePerShare.String()).
		Info("fractionalization enabled")
	return frec, nil
}

// PurchasePublicShares sells shares from the public half of the supply.
// The cost rounds up so partial-unit purchases can never underpay; any
// overpayment is returned in the receipt.
func (s *Service) PurchasePublicShares(ctx context.Context, caller, fullDomain string, amount, payment *big.Int) (Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Receipt{}, domain.ErrInvalidAmount
	}
	if payment == nil || payment.Sign() < 0 {
		return Receipt{}, domain.ErrInsufficientPayment
	}

	frec, err := s.store.GetFraction(ctx, fullDomain)
	if err != nil {
		return Receipt{}, err
	}
	if frec.Status == domain.StatusDefaulted {
		return Receipt{}, domain.ErrDefaulted
	}

	remaining, err := s.remainingPublic(ctx, frec)
	if err != nil {
		return Receipt{}, err
	}
	if amount.Cmp(remaining) > 0 {
		return Receipt{}, domain.ErrExceedsPublicSupply
	}

	cost := shareCost(frec.PricePerShare, amount)
	if payment.Cmp(cost) < 0 {
		return Receipt{}, domain.ErrInsufficientPayment
	}

	if err := s.token.Mint(ctx, frec.FullDomain, caller, amount); err != nil {
		return Receipt{}, err
	}

	frec.PublicSold.Add(frec.PublicSold, amount)
	frec.Status = domain.StatusActive
	if _, err := s.store.UpdateFraction(ctx, frec); err != nil {
		if berr := s.token.Burn(ctx, frec.FullDomain, caller, amount); berr != nil {
			s.log.WithError(berr).WithField("domain", frec.FullDomain).Error("share burn failed during purchase rollback")
		}
		return Receipt{}, err
	}

	metrics.RecordSharePurchase()
	s.log.WithField("domain", frec.FullDomain).
		WithField("holder", caller).
		WithField("shares", amount.String()).
		WithField("cost", cost.String()).
		Info("public shares purchased")

	return Receipt{
		FullDomain: frec.FullDomain,
		Holder:     caller,
		Shares:     new(big.Int).Set(amount),
		Cost:       cost,
		Refund:     new(big.Int).Sub(payment, cost),
	}, nil
}

// UnlockOwnerTokens releases the owner's locked half once the domain has
// been renewed past the unlock time recorded at enable. Callable by anyone.
func (s *Service) UnlockOwnerTokens(ctx context.Context, fullDomain string) error {
	frec, err := s.store.GetFraction(ctx, fullDomain)
	if err != nil {
		return err
	}
	if frec.Status == domain.StatusDefaulted {
		return domain.ErrDefaulted
	}
	if frec.Unlocked {
		return nil
	}

	rec, err := s.registry.GetDomain(ctx, fullDomain)
	if err != nil {
		return err
	}
	if !rec.ExpiresAt.After(frec.UnlockTime) {
		return domain.ErrNotUnlockable
	}

	frec.Unlocked = true
	if _, err := s.store.UpdateFraction(ctx, frec); err != nil {
		return err
	}

	s.log.WithField("domain", frec.FullDomain).Info("owner shares unlocked")
	return nil
}

// TriggerDefaultTransfer reassigns an expired, past-grace domain to its
// majority shareholder. Callable by anyone; it only succeeds when a
// majority holder other than the recorded owner exists. The defaulting
// owner's shares are burned before the registry call and re-minted if that
// call fails.
func (s *Service) TriggerDefaultTransfer(ctx context.Context, fullDomain string) error {
	frec, err := s.store.GetFraction(ctx, fullDomain)
	if err != nil {
		return err
	}
	if frec.Status == domain.StatusDefaulted {
		return domain.ErrDefaulted
	}

	rec, err := s.registry.GetDomain(ctx, fullDomain)
	if err != nil {
		return err
	}
	now := s.now()
	if !rec.Expired(now) {
		return domain.ErrNotExpired
	}
	if now.Before(rec.ExpiresAt.Add(s.grace)) {
		return domain.ErrGracePeriod
	}

	majority, err := s.majorityHolder(ctx, frec)
	if err != nil {
		return err
	}
	if majority == domainregistry.ZeroAddress {
		return domain.ErrNoMajority
	}
	if majority == frec.DomainOwner {
		return domain.ErrOwnerMajority
	}

	prev := frec.Clone()
	ownerShares, err := s.token.BalanceOf(ctx, frec.FullDomain, frec.DomainOwner)
	if err != nil {
		return err
	}
	defaulter := frec.DomainOwner
	if ownerShares.Sign() > 0 {
		if err := s.token.Burn(ctx, frec.FullDomain, defaulter, ownerShares); err != nil {
			return err
		}
	}

	frec.DomainOwner = majority
	frec.Status = domain.StatusDefaulted
	if _, err := s.store.UpdateFraction(ctx, frec); err != nil {
		s.restoreDefault(ctx, prev, defaulter, ownerShares, false)
		return err
	}

	if err := s.registry.TransferByFractionalization(ctx, s.self, fullDomain, majority); err != nil {
		s.restoreDefault(ctx, prev, defaulter, ownerShares, true)
		return fmt.Errorf("ownership transfer: %w", err)
	}

	metrics.RecordDefaultTransfer()
	s.log.WithField("domain", frec.FullDomain).
		WithField("previous_owner", defaulter).
		WithField("new_owner", majority).
		Info("defaulted domain transferred to majority holder")
	return nil
}

// GetMajorityOwner returns the holder with a strict majority of the supply,
// or the zero address when none exists. The recorded owner is checked first;
// the remaining scan is bounded by the scan cap.
func (s *Service) GetMajorityOwner(ctx context.Context, fullDomain string) (string, error) {
	frec, err := s.store.GetFraction(ctx, fullDomain)
	if err != nil {
		return domainregistry.ZeroAddress, err
	}
	return s.majorityHolder(ctx, frec)
}

// BeforeShareTransfer enforces the owner lock: while the lock is active the
// recorded owner cannot move shares that would drop its balance below the
// locked portion. Mints and burns are exempt.
func (s *Service) BeforeShareTransfer(ctx context.Context, fullDomain, from, to string, amount *big.Int) error {
	if from == "" || to == "" {
		return nil
	}
	frec, err := s.store.GetFraction(ctx, fullDomain)
	if err != nil {
		return err
	}
	if frec.Unlocked || from != frec.DomainOwner {
		return nil
	}

	bal, err := s.store.GetShareBalance(ctx, fullDomain, from)
	if err != nil {
		return err
	}
	if new(big.Int).Sub(bal, amount).Cmp(domain.LockedPortion()) < 0 {
		return domain.ErrSharesLocked
	}
	return nil
}

func (s *Service) majorityHolder(ctx context.Context, frec domain.Record) (string, error) {
	threshold := domain.MajorityThreshold()

	if frec.DomainOwner != domainregistry.ZeroAddress {
		bal, err := s.store.GetShareBalance(ctx, frec.FullDomain, frec.DomainOwner)
		if err != nil {
			return domainregistry.ZeroAddress, err
		}
		if bal.Cmp(threshold) > 0 {
			return frec.DomainOwner, nil
		}
	}

	holders, err := s.store.ListHolders(ctx, frec.FullDomain, domain.MajorityScanCap)
	if err != nil {
		return domainregistry.ZeroAddress, err
	}
	for _, holder := range holders {
		if holder == frec.DomainOwner {
			continue
		}
		bal, err := s.store.GetShareBalance(ctx, frec.FullDomain, holder)
		if err != nil {
			return domainregistry.ZeroAddress, err
		}
		if bal.Cmp(threshold) > 0 {
			return holder, nil
		}
	}
	return domainregistry.ZeroAddress, nil
}

// remainingPublic is how many shares can still be minted to the public.
// The unsold public half is the usual bound; the fixed supply minus the
// owner's current holding and everything already sold is the second, so
// cumulative minting can never exceed the total supply.
func (s *Service) remainingPublic(ctx context.Context, frec domain.Record) (*big.Int, error) {
	ownerBal, err := s.store.GetShareBalance(ctx, frec.FullDomain, frec.DomainOwner)
	if err != nil {
		return nil, err
	}

	remaining := frec.RemainingPublic()
	byOwner := domain.TotalSupply()
	byOwner.Sub(byOwner, ownerBal)
	if frec.PublicSold != nil {
		byOwner.Sub(byOwner, frec.PublicSold)
	}
	if byOwner.Cmp(remaining) < 0 {
		remaining = byOwner
	}
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return remaining, nil
}

func (s *Service) restoreDefault(ctx context.Context, prev domain.Record, defaulter string, shares *big.Int, recordWritten bool) {
	if recordWritten {
		if _, err := s.store.UpdateFraction(ctx, prev); err != nil {
			s.log.WithError(err).WithField("domain", prev.FullDomain).Error("record restore failed during default rollback")
		}
	}
	if shares.Sign() > 0 {
		if err := s.token.Mint(ctx, prev.FullDomain, defaulter, shares); err != nil {
			s.log.WithError(err).WithField("domain", prev.FullDomain).Error("share re-mint failed during default rollback")
		}
	}
}

// shareCost is ceil(pricePerShare * amount / shareUnit). Rounding up means
// the seller is never shorted by a partial-unit purchase.
func shareCost(pricePerShare, amount *big.Int) *big.Int {
	num := new(big.Int).Mul(pricePerShare, amount)
	q, r := new(big.Int).QuoRem(num, shareUnit, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
