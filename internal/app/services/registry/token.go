package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// MemoryToken is an in-process implementation of TokenClient with standard
// balance/allowance semantics. It backs tests and single-node deployments
// where the secondary currency is ledgered locally.
type MemoryToken struct {
	mu         sync.Mutex
	balances   map[string]*big.Int
	allowances map[string]map[string]*big.Int
}

var _ TokenClient = (*MemoryToken)(nil)

// NewMemoryToken creates an empty token ledger.
func NewMemoryToken() *MemoryToken {
	return &MemoryToken{
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]map[string]*big.Int),
	}
}

// Mint credits an account. Test and bootstrap helper.
func (t *MemoryToken) Mint(account string, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.creditLocked(account, amount)
}

// Approve sets the allowance from owner to spender.
func (t *MemoryToken) Approve(owner, spender string, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	spenders := t.allowances[owner]
	if spenders == nil {
		spenders = make(map[string]*big.Int)
		t.allowances[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
}

func (t *MemoryToken) BalanceOf(_ context.Context, account string) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if bal, ok := t.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (t *MemoryToken) Allowance(_ context.Context, owner, spender string) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if spenders, ok := t.allowances[owner]; ok {
		if allowed, ok := spenders[spender]; ok {
			return new(big.Int).Set(allowed), nil
		}
	}
	return new(big.Int), nil
}

func (t *MemoryToken) TransferFrom(_ context.Context, caller, from, to string, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[from][caller]
	if allowed == nil || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("allowance exceeded")
	}
	if err := t.debitLocked(from, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	t.creditLocked(to, amount)
	return nil
}

func (t *MemoryToken) Transfer(_ context.Context, caller, to string, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debitLocked(caller, amount); err != nil {
		return err
	}
	t.creditLocked(to, amount)
	return nil
}

func (t *MemoryToken) creditLocked(account string, amount *big.Int) {
	bal := t.balances[account]
	if bal == nil {
		bal = new(big.Int)
		t.balances[account] = bal
	}
	bal.Add(bal, amount)
}

func (t *MemoryToken) debitLocked(account string, amount *big.Int) error {
	bal := t.balances[account]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("balance exceeded")
	}
	bal.Sub(bal, amount)
	return nil
}
