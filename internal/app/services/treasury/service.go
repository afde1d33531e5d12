// Package treasury implements the per-domain fee ledger: fee calculation,
// deposits from the registry, owner withdrawals, and treasury-funded
// renewal with provisional-spend rollback.
package treasury

import (
	"context"
	"fmt"
	"math/big"
	"time"

	domainregistry "github.com/domainledger/registry_layer/internal/app/domain/registry"
	domain "github.com/domainledger/registry_layer/internal/app/domain/treasury"
	"github.com/domainledger/registry_layer/internal/app/metrics"
	registrysvc "github.com/domainledger/registry_layer/internal/app/services/registry"
	"github.com/domainledger/registry_layer/internal/app/storage"
	"github.com/domainledger/registry_layer/pkg/logger"
)

// RegistryClient is the registry surface the treasury depends on.
type RegistryClient interface {
	GetDomain(ctx context.Context, fullDomain string) (domainregistry.Record, error)
	RenewalPrice(ctx context.Context, suffix string, years int) (*big.Int, error)
	RenewFromTreasury(ctx context.Context, caller, name, suffix string, years int) (registrysvc.Receipt, error)
}

// PayoutFunc settles a withdrawal to an external account.
type PayoutFunc func(ctx context.Context, to string, amount *big.Int) error

// Service owns the per-domain fee accounts.
type Service struct {
	store         storage.TreasuryStore
	registry      RegistryClient
	registryAddr  string
	self          string
	defaultFeeBps int
	payout        PayoutFunc
	log           *logger.Logger
	now           func() time.Time
}

// New constructs a treasury service. self is the identity the treasury
// presents when calling the registry; defaultFeeBps applies to domains with
// no per-domain rate.
func New(store storage.TreasuryStore, defaultFeeBps int, self string, log *logger.Logger) (*Service, error) {
	if defaultFeeBps < 0 || defaultFeeBps > domain.MaxFeeBps {
		return nil, domain.ErrFeeTooHigh
	}
	if log == nil {
		log = logger.NewDefault("treasury")
	}
	return &Service{
		store:         store,
		defaultFeeBps: defaultFeeBps,
		self:          self,
		log:           log,
		now:           time.Now,
	}, nil
}

// SetRegistry wires the registry client and the identity allowed to deposit
// fees.
func (s *Service) SetRegistry(client RegistryClient, addr string) {
	s.registry = client
	s.registryAddr = addr
}

// SetPayout wires the external settlement hook used by WithdrawExcess.
func (s *Service) SetPayout(payout PayoutFunc) {
	s.payout = payout
}

// Address returns the treasury's ledger identity.
func (s *Service) Address() string { return s.self }

// CalculateFee returns payment*bps/10000 using the domain's configured rate
// or the global default.
func (s *Service) CalculateFee(ctx context.Context, fullDomain string, payment *big.Int) (*big.Int, error) {
	if payment == nil || payment.Sign() < 0 {
		return nil, fmt.Errorf("payment must be non-negative")
	}
	acct, err := s.store.GetTreasuryAccount(ctx, fullDomain)
	if err != nil {
		return nil, err
	}
	return acct.Fee(payment, s.defaultFeeBps), nil
}

// DepositFee adds to a domain's accumulated balance. Only the configured
// registry identity may deposit; zero-value deposits are rejected.
func (s *Service) DepositFee(ctx context.Context, caller, fullDomain string, amount *big.Int) error {
	if s.registryAddr == "" || caller != s.registryAddr {
		return domain.ErrNotRegistry
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroDeposit
	}

	acct, err := s.store.GetTreasuryAccount(ctx, fullDomain)
	if err != nil {
		return err
	}
	acct.Balance.Add(acct.Balance, amount)
	if _, err := s.store.PutTreasuryAccount(ctx, acct); err != nil {
		return err
	}

	metrics.RecordFeeCollected()
	s.log.WithField("domain", acct.FullDomain).
		WithField("amount", amount.String()).
		Info("fee deposited")
	return nil
}

// RefundDeposit releases a deposit made earlier in a failed registry
// operation. Only the registry may call it; the release is bounded by the
// current balance so it can never drive the account negative.
func (s *Service) RefundDeposit(ctx context.Context, caller, fullDomain string, amount *big.Int) error {
	if s.registryAddr == "" || caller != s.registryAddr {
		return domain.ErrNotRegistry
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroDeposit
	}

	acct, err := s.store.GetTreasuryAccount(ctx, fullDomain)
	if err != nil {
		return err
	}
	if amount.Cmp(acct.Balance) > 0 {
		amount = new(big.Int).Set(acct.Balance)
	}
	acct.Balance.Sub(acct.Balance, amount)
	_, err = s.store.PutTreasuryAccount(ctx, acct)
	return err
}

// Balance returns a domain's accumulated fee balance.
func (s *Service) Balance(ctx context.Context, fullDomain string) (*big.Int, error) {
	acct, err := s.store.GetTreasuryAccount(ctx, fullDomain)
	if err != nil {
		return nil, err
	}
	return acct.Balance, nil
}

// SetDomainFeeBps sets a domain-specific fee percentage in basis points.
// Only the current domain owner may set it, only while the domain has not
// expired, and never above the hard maximum. Zero resets to the global
// default.
func (s *Service) SetDomainFeeBps(ctx context.Context, caller, fullDomain string, bps int) error {
	if bps < 0 || bps > domain.MaxFeeBps {
		return domain.ErrFeeTooHigh
	}
	rec, err := s.registry.GetDomain(ctx, fullDomain)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return domain.ErrNotOwner
	}
	if rec.Expired(s.now()) {
		return domain.ErrDomainExpired
	}

	acct, err := s.store.GetTreasuryAccount(ctx, fullDomain)
	if err != nil {
		return err
	}
	acct.FeeBps = bps
	if _, err := s.store.PutTreasuryAccount(ctx, acct); err != nil {
		return err
	}

	s.log.WithField("domain", acct.FullDomain).
		WithField("fee_bps", bps).
		Info("domain fee percentage set")
	return nil
}

// CanAutoRenew reports whether the domain's accumulated balance covers a
// renewal of the given length. Pure read; no state change.
func (s *Service) CanAutoRenew(ctx context.Context, name, suffix string, years int) (bool, error) {
	cost, err := s.registry.RenewalPrice(ctx, suffix, years)
	if err != nil {
		return false, err
	}
	acct, err := s.store.GetTreasuryAccount(ctx, domainregistry.FullDomain(name, suffix))
	if err != nil {
		return false, err
	}
	return acct.Balance.Cmp(cost) >= 0, nil
}

// AutoRenew renews a domain from its accumulated balance. Only the domain
// owner may trigger it. The spend is provisional: the balance is deducted
// before the cross-contract renewal call and restored if that call fails,
// so the ledger is never left inconsistent.
func (s *Service) AutoRenew(ctx context.Context, caller, name, suffix string, years int) error {
	full := domainregistry.FullDomain(name, suffix)
	rec, err := s.registry.GetDomain(ctx, full)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return domain.ErrNotOwner
	}

	cost, err := s.registry.RenewalPrice(ctx, suffix, years)
	if err != nil {
		return err
	}
	acct, err := s.store.GetTreasuryAccount(ctx, full)
	if err != nil {
		return err
	}
	if acct.Balance.Cmp(cost) < 0 {
		return domain.ErrInsufficientBalance
	}

	acct.Balance.Sub(acct.Balance, cost)
	if _, err := s.store.PutTreasuryAccount(ctx, acct); err != nil {
		return err
	}

	if _, err := s.registry.RenewFromTreasury(ctx, s.self, name, suffix, years); err != nil {
		acct.Balance.Add(acct.Balance, cost)
		if _, rerr := s.store.PutTreasuryAccount(ctx, acct); rerr != nil {
			s.log.WithError(rerr).WithField("domain", full).Error("balance restore failed after renewal rollback")
		}
		return fmt.Errorf("renewal: %w", err)
	}

	metrics.RecordAutoRenewal()
	s.log.WithField("domain", full).
		WithField("years", years).
		WithField("cost", cost.String()).
		Info("domain auto-renewed from treasury balance")
	return nil
}

// WithdrawExcess pays out part of a domain's balance to its owner. The
// balance is mutated before the external transfer and restored if the
// transfer fails.
func (s *Service) WithdrawExcess(ctx context.Context, caller, fullDomain string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("withdrawal amount must be positive")
	}
	rec, err := s.registry.GetDomain(ctx, fullDomain)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return domain.ErrNotOwner
	}

	acct, err := s.store.GetTreasuryAccount(ctx, fullDomain)
	if err != nil {
		return err
	}
	if amount.Cmp(acct.Balance) > 0 {
		return domain.ErrInsufficientBalance
	}

	acct.Balance.Sub(acct.Balance, amount)
	if _, err := s.store.PutTreasuryAccount(ctx, acct); err != nil {
		return err
	}

	if s.payout != nil {
		if err := s.payout(ctx, caller, amount); err != nil {
			acct.Balance.Add(acct.Balance, amount)
			if _, rerr := s.store.PutTreasuryAccount(ctx, acct); rerr != nil {
				s.log.WithError(rerr).WithField("domain", fullDomain).Error("balance restore failed after payout rollback")
			}
			return fmt.Errorf("payout: %w", err)
		}
	}

	s.log.WithField("domain", acct.FullDomain).
		WithField("amount", amount.String()).
		WithField("owner", caller).
		Info("excess balance withdrawn")
	return nil
}
