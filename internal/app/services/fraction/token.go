package fraction

import (
	"context"
	"math/big"

	domain "github.com/domainledger/registry_layer/internal/app/domain/fraction"
	"github.com/domainledger/registry_layer/internal/app/storage"
	"github.com/domainledger/registry_layer/pkg/logger"
)

// TransferListener observes share movements before they are applied. A
// listener returning an error vetoes the transfer. Mints pass the zero
// address as from; burns pass it as to.
type TransferListener interface {
	BeforeShareTransfer(ctx context.Context, fullDomain, from, to string, amount *big.Int) error
}

// ShareToken is the fixed-supply ownership-share ledger. Balances and the
// nonzero-holder list live in the fraction store; every movement notifies
// the registered listeners first.
type ShareToken struct {
	store     storage.FractionStore
	listeners []TransferListener
	log       *logger.Logger
}

// NewShareToken creates a token ledger over the given store.
func NewShareToken(store storage.FractionStore, log *logger.Logger) *ShareToken {
	if log == nil {
		log = logger.NewDefault("share-token")
	}
	return &ShareToken{store: store, log: log}
}

// AddListener registers a transfer listener.
func (t *ShareToken) AddListener(l TransferListener) {
	t.listeners = append(t.listeners, l)
}

// BalanceOf returns a holder's share balance for a domain.
func (t *ShareToken) BalanceOf(ctx context.Context, fullDomain, holder string) (*big.Int, error) {
	return t.store.GetShareBalance(ctx, fullDomain, holder)
}

// Mint credits newly issued shares to an account.
func (t *ShareToken) Mint(ctx context.Context, fullDomain, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := t.notify(ctx, fullDomain, "", to, amount); err != nil {
		return err
	}

	bal, err := t.store.GetShareBalance(ctx, fullDomain, to)
	if err != nil {
		return err
	}
	return t.store.SetShareBalance(ctx, fullDomain, to, bal.Add(bal, amount))
}

// Burn destroys shares held by an account.
func (t *ShareToken) Burn(ctx context.Context, fullDomain, from string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := t.notify(ctx, fullDomain, from, "", amount); err != nil {
		return err
	}

	bal, err := t.store.GetShareBalance(ctx, fullDomain, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientShares
	}
	return t.store.SetShareBalance(ctx, fullDomain, from, bal.Sub(bal, amount))
}

// Transfer moves shares between holders. The sender is the caller; listeners
// may veto, which is how the owner-lock rule is enforced.
func (t *ShareToken) Transfer(ctx context.Context, fullDomain, caller, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if to == "" {
		return domain.ErrInvalidAmount
	}
	if err := t.notify(ctx, fullDomain, caller, to, amount); err != nil {
		return err
	}

	fromBal, err := t.store.GetShareBalance(ctx, fullDomain, caller)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return domain.ErrInsufficientShares
	}
	toBal, err := t.store.GetShareBalance(ctx, fullDomain, to)
	if err != nil {
		return err
	}

	// Debit first so a holder-cap failure on the credit can be unwound
	// without ever over-crediting.
	if err := t.store.SetShareBalance(ctx, fullDomain, caller, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := t.store.SetShareBalance(ctx, fullDomain, to, toBal.Add(toBal, amount)); err != nil {
		fromBal.Add(fromBal, amount)
		if rerr := t.store.SetShareBalance(ctx, fullDomain, caller, fromBal); rerr != nil {
			t.log.WithError(rerr).WithField("domain", fullDomain).Error("sender balance restore failed after credit failure")
		}
		return err
	}
	return nil
}

func (t *ShareToken) notify(ctx context.Context, fullDomain, from, to string, amount *big.Int) error {
	for _, l := range t.listeners {
		if err := l.BeforeShareTransfer(ctx, fullDomain, from, to, amount); err != nil {
			return err
		}
	}
	return nil
}
