// Package registry implements the domain registry ledger: registration,
// renewal, transfer, and the suffix price table.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	domain "github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/domain/treasury"
	"github.com/domainledger/registry_layer/internal/app/metrics"
	"github.com/domainledger/registry_layer/internal/app/storage"
	"github.com/domainledger/registry_layer/pkg/logger"
)

// FeeCollector is the treasury surface the registry depends on. DepositFee
// and RefundDeposit form a reserve/release pair: a deposit made inside a
// registration that subsequently fails is released during compensation.
type FeeCollector interface {
	CalculateFee(ctx context.Context, fullDomain string, payment *big.Int) (*big.Int, error)
	DepositFee(ctx context.Context, caller, fullDomain string, amount *big.Int) error
	RefundDeposit(ctx context.Context, caller, fullDomain string, amount *big.Int) error
}

// Converter quotes base-currency amounts in the secondary currency.
type Converter interface {
	ConvertBaseToSecondary(ctx context.Context, amountInBase *big.Int) (*big.Int, error)
}

// TokenClient is the standard balance/allowance/transfer surface of the
// secondary-currency token, with the usually-implicit caller identity made
// explicit: TransferFrom spends the caller's allowance granted by from, and
// Transfer moves the caller's own balance.
type TokenClient interface {
	BalanceOf(ctx context.Context, account string) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	TransferFrom(ctx context.Context, caller, from, to string, amount *big.Int) error
	Transfer(ctx context.Context, caller, to string, amount *big.Int) error
}

// Receipt summarises the monetary outcome of a registration or renewal.
// Refund is the portion of the payment beyond price plus fee; settling it
// back to the caller is the transport layer's concern.
type Receipt struct {
	FullDomain string
	Owner      string
	Years      int
	Price      *big.Int
	Fee        *big.Int
	Refund     *big.Int
	ExpiresAt  time.Time
}

// Service owns canonical domain records and the per-suffix price table.
type Service struct {
	store storage.RegistryStore
	admin string
	self  string

	treasury     FeeCollector
	treasuryAddr string
	fractionAddr string

	oracle Converter
	token  TokenClient

	log *logger.Logger
	now func() time.Time
}

// New constructs a registry service. admin is the only identity allowed to
// mutate the price table; self is the identity the registry presents to the
// treasury and the token ledger.
func New(store storage.RegistryStore, admin, self string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Service{
		store: store,
		admin: admin,
		self:  self,
		log:   log,
		now:   time.Now,
	}
}

// SetTreasury wires the fee collector and the identity allowed to call
// RenewFromTreasury.
func (s *Service) SetTreasury(collector FeeCollector, addr string) {
	s.treasury = collector
	s.treasuryAddr = addr
}

// SetFractionAddress wires the identity allowed to call
// TransferByFractionalization.
func (s *Service) SetFractionAddress(addr string) {
	s.fractionAddr = addr
}

// SetOracle wires the price oracle used by the secondary-currency path.
func (s *Service) SetOracle(conv Converter) {
	s.oracle = conv
}

// SetToken wires the secondary-currency token client.
func (s *Service) SetToken(token TokenClient) {
	s.token = token
}

// Address returns the registry's own ledger identity.
func (s *Service) Address() string { return s.self }

// IsAvailable reports whether a full domain can be registered: never
// registered, or registered but lapsed.
func (s *Service) IsAvailable(ctx context.Context, fullDomain string) (bool, error) {
	rec, err := s.store.GetDomain(ctx, fullDomain)
	if errors.Is(err, domain.ErrDomainNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Expired(s.now()), nil
}

// GetDomain returns the record for a full domain.
func (s *Service) GetDomain(ctx context.Context, fullDomain string) (domain.Record, error) {
	return s.store.GetDomain(ctx, fullDomain)
}

// RenewalPrice quotes the base-currency price for registering or renewing a
// suffix for the given number of years.
func (s *Service) RenewalPrice(ctx context.Context, suffix string, years int) (*big.Int, error) {
	if years < domain.MinYears || years > domain.MaxYears {
		return nil, domain.ErrInvalidYears
	}
	suffix = domain.Normalize(suffix)
	if !domain.ValidSuffix(suffix) {
		return nil, domain.ErrInvalidSuffix
	}
	perYear, err := s.store.GetSuffixPrice(ctx, suffix)
	if err != nil {
		return nil, err
	}
	if perYear.Sign() == 0 {
		return nil, domain.ErrSuffixPriceNotSet
	}
	return new(big.Int).Mul(perYear, big.NewInt(int64(years))), nil
}

// Register registers an available domain to the caller for years years,
// paid in the base currency. The treasury fee is deducted from the payment;
// the remainder must still cover the price. Any excess beyond price plus
// fee is returned in the receipt's Refund.
func (s *Service) Register(ctx context.Context, caller, name, suffix string, years int, payment *big.Int) (Receipt, error) {
	name, suffix, err := s.validateNameSuffix(name, suffix)
	if err != nil {
		return Receipt{}, err
	}
	if err := validateCaller(caller); err != nil {
		return Receipt{}, err
	}
	if years < domain.MinYears || years > domain.MaxYears {
		return Receipt{}, domain.ErrInvalidYears
	}
	if payment == nil || payment.Sign() < 0 {
		return Receipt{}, domain.ErrInsufficientPayment
	}

	full := domain.FullDomain(name, suffix)
	price, err := s.RenewalPrice(ctx, suffix, years)
	if err != nil {
		return Receipt{}, err
	}
	if payment.Cmp(price) < 0 {
		return Receipt{}, domain.ErrInsufficientPayment
	}

	now := s.now().UTC()
	prev, err := s.store.GetDomain(ctx, full)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrDomainNotFound) {
		return Receipt{}, err
	}
	if exists && !prev.Expired(now) {
		return Receipt{}, domain.ErrDomainTaken
	}

	fee, err := s.quoteFee(ctx, full, payment)
	if err != nil {
		return Receipt{}, err
	}
	net := new(big.Int).Sub(payment, fee)
	if net.Cmp(price) < 0 {
		return Receipt{}, domain.ErrInsufficientAfterFee
	}

	rec := domain.Record{
		Name:           name,
		Suffix:         suffix,
		Owner:          caller,
		RegisteredAt:   now,
		ExpiresAt:      now.Add(time.Duration(years) * domain.YearDuration),
		YearsPurchased: years,
	}
	if err := s.commit(ctx, rec, prevSnapshot(prev, exists), full, fee); err != nil {
		return Receipt{}, err
	}

	metrics.RecordRegistration("base")
	s.log.WithField("domain", full).
		WithField("owner", caller).
		WithField("years", years).
		Info("domain registered")

	return Receipt{
		FullDomain: full,
		Owner:      caller,
		Years:      years,
		Price:      price,
		Fee:        fee,
		Refund:     new(big.Int).Sub(net, price),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

// RegisterWithToken registers an available domain paid in the secondary
// currency. The base price is quoted through the oracle and the converted
// price plus fee is pulled from the caller's token balance via allowance.
// Any token amount the caller approved beyond that total stays with the
// caller; no refund transfer is made on this path.
func (s *Service) RegisterWithToken(ctx context.Context, caller, name, suffix string, years int) (Receipt, error) {
	if s.oracle == nil || s.token == nil {
		return Receipt{}, fmt.Errorf("secondary-currency path not configured")
	}
	name, suffix, err := s.validateNameSuffix(name, suffix)
	if err != nil {
		return Receipt{}, err
	}
	if err := validateCaller(caller); err != nil {
		return Receipt{}, err
	}
	if years < domain.MinYears || years > domain.MaxYears {
		return Receipt{}, domain.ErrInvalidYears
	}

	full := domain.FullDomain(name, suffix)
	basePrice, err := s.RenewalPrice(ctx, suffix, years)
	if err != nil {
		return Receipt{}, err
	}
	converted, err := s.oracle.ConvertBaseToSecondary(ctx, basePrice)
	if err != nil {
		return Receipt{}, err
	}

	now := s.now().UTC()
	prev, err := s.store.GetDomain(ctx, full)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrDomainNotFound) {
		return Receipt{}, err
	}
	if exists && !prev.Expired(now) {
		return Receipt{}, domain.ErrDomainTaken
	}

	fee, err := s.quoteFee(ctx, full, converted)
	if err != nil {
		return Receipt{}, err
	}
	total := new(big.Int).Add(converted, fee)

	allowance, err := s.token.Allowance(ctx, caller, s.self)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrTokenTransfer, err)
	}
	balance, err := s.token.BalanceOf(ctx, caller)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrTokenTransfer, err)
	}
	if allowance.Cmp(converted) < 0 || balance.Cmp(converted) < 0 {
		return Receipt{}, domain.ErrInsufficientPayment
	}
	if allowance.Cmp(total) < 0 || balance.Cmp(total) < 0 {
		return Receipt{}, domain.ErrInsufficientAfterFee
	}

	if err := s.token.TransferFrom(ctx, s.self, caller, s.self, total); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrTokenTransfer, err)
	}

	rec := domain.Record{
		Name:           name,
		Suffix:         suffix,
		Owner:          caller,
		RegisteredAt:   now,
		ExpiresAt:      now.Add(time.Duration(years) * domain.YearDuration),
		YearsPurchased: years,
	}
	if err := s.commit(ctx, rec, prevSnapshot(prev, exists), full, fee); err != nil {
		// Return the pulled tokens; the registration never happened.
		if terr := s.token.Transfer(ctx, s.self, caller, total); terr != nil {
			s.log.WithError(terr).WithField("domain", full).Error("token return failed during rollback")
		}
		return Receipt{}, err
	}

	metrics.RecordRegistration("token")
	s.log.WithField("domain", full).
		WithField("owner", caller).
		WithField("price_secondary", converted.String()).
		Info("domain registered with secondary currency")

	return Receipt{
		FullDomain: full,
		Owner:      caller,
		Years:      years,
		Price:      converted,
		Fee:        fee,
		Refund:     new(big.Int),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

// Renew extends a non-expired domain by years years from its current
// expiration. Only the current owner may renew; a lapsed domain must be
// re-registered instead.
func (s *Service) Renew(ctx context.Context, caller, name, suffix string, years int, payment *big.Int) (Receipt, error) {
	name, suffix, err := s.validateNameSuffix(name, suffix)
	if err != nil {
		return Receipt{}, err
	}
	if years < domain.MinYears || years > domain.MaxYears {
		return Receipt{}, domain.ErrInvalidYears
	}
	if payment == nil || payment.Sign() < 0 {
		return Receipt{}, domain.ErrInsufficientPayment
	}

	full := domain.FullDomain(name, suffix)
	rec, err := s.store.GetDomain(ctx, full)
	if err != nil {
		return Receipt{}, err
	}
	if rec.Owner != caller {
		return Receipt{}, domain.ErrNotOwner
	}
	if rec.Expired(s.now()) {
		return Receipt{}, domain.ErrDomainExpired
	}
	if rec.YearsPurchased+years > domain.MaxTotalYears {
		return Receipt{}, domain.ErrYearsLimit
	}

	price, err := s.RenewalPrice(ctx, suffix, years)
	if err != nil {
		return Receipt{}, err
	}
	if payment.Cmp(price) < 0 {
		return Receipt{}, domain.ErrInsufficientPayment
	}
	fee, err := s.quoteFee(ctx, full, payment)
	if err != nil {
		return Receipt{}, err
	}
	net := new(big.Int).Sub(payment, fee)
	if net.Cmp(price) < 0 {
		return Receipt{}, domain.ErrInsufficientAfterFee
	}

	prev := rec
	rec.ExpiresAt = rec.ExpiresAt.Add(time.Duration(years) * domain.YearDuration)
	rec.YearsPurchased += years
	if err := s.commit(ctx, rec, &prev, full, fee); err != nil {
		return Receipt{}, err
	}

	metrics.RecordRenewal("owner")
	s.log.WithField("domain", full).
		WithField("years", years).
		WithField("expires_at", rec.ExpiresAt).
		Info("domain renewed")

	return Receipt{
		FullDomain: full,
		Owner:      caller,
		Years:      years,
		Price:      price,
		Fee:        fee,
		Refund:     new(big.Int).Sub(net, price),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

// RenewFromTreasury extends a domain on behalf of its owner. Only the
// configured treasury identity may call it; the treasury has already taken
// payment from the domain's accumulated balance.
func (s *Service) RenewFromTreasury(ctx context.Context, caller, name, suffix string, years int) (Receipt, error) {
	if s.treasuryAddr == "" || caller != s.treasuryAddr {
		return Receipt{}, domain.ErrNotTreasury
	}
	name, suffix, err := s.validateNameSuffix(name, suffix)
	if err != nil {
		return Receipt{}, err
	}
	if years < domain.MinYears || years > domain.MaxYears {
		return Receipt{}, domain.ErrInvalidYears
	}

	full := domain.FullDomain(name, suffix)
	rec, err := s.store.GetDomain(ctx, full)
	if err != nil {
		return Receipt{}, err
	}
	if rec.Expired(s.now()) {
		return Receipt{}, domain.ErrDomainExpired
	}
	if rec.YearsPurchased+years > domain.MaxTotalYears {
		return Receipt{}, domain.ErrYearsLimit
	}

	price, err := s.RenewalPrice(ctx, suffix, years)
	if err != nil {
		return Receipt{}, err
	}

	rec.ExpiresAt = rec.ExpiresAt.Add(time.Duration(years) * domain.YearDuration)
	rec.YearsPurchased += years
	if _, err := s.store.PutDomain(ctx, rec); err != nil {
		return Receipt{}, err
	}

	metrics.RecordRenewal("treasury")
	s.log.WithField("domain", full).
		WithField("years", years).
		Info("domain renewed from treasury")

	return Receipt{
		FullDomain: full,
		Owner:      rec.Owner,
		Years:      years,
		Price:      price,
		Fee:        new(big.Int),
		Refund:     new(big.Int),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

// TransferOwnership moves a non-expired domain to a new owner.
func (s *Service) TransferOwnership(ctx context.Context, caller, fullDomain, newOwner string) error {
	rec, err := s.store.GetDomain(ctx, fullDomain)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return domain.ErrNotOwner
	}
	if newOwner == domain.ZeroAddress {
		return domain.ErrZeroNewOwner
	}
	if newOwner == rec.Owner {
		return domain.ErrSelfTransfer
	}
	if rec.Expired(s.now()) {
		return domain.ErrDomainExpired
	}

	rec.Owner = newOwner
	if _, err := s.store.PutDomain(ctx, rec); err != nil {
		return err
	}

	metrics.RecordTransfer("owner")
	s.log.WithField("domain", rec.FullDomain()).
		WithField("from", caller).
		WithField("to", newOwner).
		Info("domain transferred")
	return nil
}

// TransferByFractionalization reassigns ownership on behalf of the
// fractionalization contract. This path exists for lapsed domains, so the
// usual owner and expiry checks are bypassed.
func (s *Service) TransferByFractionalization(ctx context.Context, caller, fullDomain, newOwner string) error {
	if s.fractionAddr == "" || caller != s.fractionAddr {
		return domain.ErrNotFraction
	}
	if newOwner == domain.ZeroAddress {
		return domain.ErrZeroNewOwner
	}

	rec, err := s.store.GetDomain(ctx, fullDomain)
	if err != nil {
		return err
	}

	prevOwner := rec.Owner
	rec.Owner = newOwner
	if _, err := s.store.PutDomain(ctx, rec); err != nil {
		return err
	}

	metrics.RecordTransfer("fractionalization")
	s.log.WithField("domain", rec.FullDomain()).
		WithField("from", prevOwner).
		WithField("to", newOwner).
		Info("domain ownership reassigned by fractionalization")
	return nil
}

// GetOwnerDomains lists the full domains currently indexed to an owner.
func (s *Service) GetOwnerDomains(ctx context.Context, owner string) ([]string, error) {
	return s.store.ListOwnerDomains(ctx, owner)
}

// GetOwnerDomainsPage returns a slice of the owner's domains for callers
// wary of unbounded list sizes.
func (s *Service) GetOwnerDomainsPage(ctx context.Context, owner string, offset, limit int) ([]string, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("offset must be non-negative and limit positive")
	}
	all, err := s.store.ListOwnerDomains(ctx, owner)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return []string{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// ListExpiring returns records expiring within the window, for the external
// notification job. A nil owners slice means all owners.
func (s *Service) ListExpiring(ctx context.Context, owners []string, within time.Duration) ([]domain.Record, error) {
	if within <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	return s.store.ListExpiring(ctx, owners, s.now().Add(within))
}

// SetSuffixPrice sets the per-year base-currency price for a suffix. Only
// the administrator may call it; a zero price disables registration for the
// suffix.
func (s *Service) SetSuffixPrice(ctx context.Context, caller, suffix string, perYear *big.Int) error {
	if caller != s.admin {
		return domain.ErrNotAdmin
	}
	suffix = domain.Normalize(suffix)
	if !domain.ValidSuffix(suffix) {
		return domain.ErrInvalidSuffix
	}
	if perYear == nil || perYear.Sign() < 0 {
		return fmt.Errorf("price must be non-negative")
	}

	if err := s.store.SetSuffixPrice(ctx, suffix, perYear); err != nil {
		return err
	}
	s.log.WithField("suffix", suffix).
		WithField("per_year", perYear.String()).
		Info("suffix price set")
	return nil
}

// ListSuffixPrices returns the configured price table.
func (s *Service) ListSuffixPrices(ctx context.Context) (map[string]*big.Int, error) {
	return s.store.ListSuffixPrices(ctx)
}

// quoteFee asks the treasury for the fee on a payment and validates it
// against the payment and the system-wide percentage cap.
func (s *Service) quoteFee(ctx context.Context, fullDomain string, payment *big.Int) (*big.Int, error) {
	if s.treasury == nil {
		return new(big.Int), nil
	}
	fee, err := s.treasury.CalculateFee(ctx, fullDomain, payment)
	if err != nil {
		return nil, fmt.Errorf("calculate fee: %w", err)
	}
	if fee.Cmp(payment) > 0 {
		return nil, domain.ErrFeeExceedsPayment
	}
	// fee/payment must not exceed MaxFeeBps/10000.
	lhs := new(big.Int).Mul(fee, big.NewInt(treasury.BpsDenominator))
	rhs := new(big.Int).Mul(payment, big.NewInt(treasury.MaxFeeBps))
	if lhs.Cmp(rhs) > 0 {
		return nil, domain.ErrFeeExceedsPayment
	}
	return fee, nil
}

// commit writes the record and then deposits the fee. The record write is
// the local mutation and happens first; a failed deposit restores the prior
// snapshot so the whole call has no effect.
func (s *Service) commit(ctx context.Context, rec domain.Record, prev *domain.Record, fullDomain string, fee *big.Int) error {
	if _, err := s.store.PutDomain(ctx, rec); err != nil {
		return err
	}
	if s.treasury == nil || fee.Sign() == 0 {
		return nil
	}
	if err := s.treasury.DepositFee(ctx, s.self, fullDomain, fee); err != nil {
		if rerr := s.restore(ctx, fullDomain, prev); rerr != nil {
			s.log.WithError(rerr).WithField("domain", fullDomain).Error("record restore failed during rollback")
		}
		return fmt.Errorf("fee deposit: %w", err)
	}
	return nil
}

// restore undoes a record write during compensation.
func (s *Service) restore(ctx context.Context, fullDomain string, prev *domain.Record) error {
	if prev == nil {
		return s.store.DeleteDomain(ctx, fullDomain)
	}
	_, err := s.store.PutDomain(ctx, *prev)
	return err
}

func (s *Service) validateNameSuffix(name, suffix string) (string, string, error) {
	name = domain.Normalize(name)
	suffix = domain.Normalize(suffix)
	if !domain.ValidName(name) {
		return "", "", domain.ErrInvalidName
	}
	if !domain.ValidSuffix(suffix) {
		return "", "", domain.ErrInvalidSuffix
	}
	return name, suffix, nil
}

func validateCaller(caller string) error {
	if caller == domain.ZeroAddress {
		return domain.ErrInvalidAddress
	}
	return nil
}

func prevSnapshot(rec domain.Record, exists bool) *domain.Record {
	if !exists {
		return nil
	}
	return &rec
}
