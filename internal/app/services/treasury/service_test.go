package treasury

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	domainregistry "github.com/domainledger/registry_layer/internal/app/domain/registry"
	domain "github.com/domainledger/registry_layer/internal/app/domain/treasury"
	registrysvc "github.com/domainledger/registry_layer/internal/app/services/registry"
	"github.com/domainledger/registry_layer/internal/app/storage/memory"
)

const (
	registryAddr = "registry-contract"
	treasuryAddr = "treasury-contract"
)

// newTestPair wires a real registry and treasury against one memory store,
// the way the application composes them.
func newTestPair(t *testing.T) (*registrysvc.Service, *Service) {
	t.Helper()
	store := memory.New()

	registry := registrysvc.New(store, "admin", registryAddr, nil)
	treasury, err := New(store, 100, treasuryAddr, nil) // 1% default fee
	if err != nil {
		t.Fatalf("new treasury: %v", err)
	}
	treasury.SetRegistry(registry, registryAddr)
	registry.SetTreasury(treasury, treasuryAddr)

	if err := registry.SetSuffixPrice(context.Background(), "admin", "com", big.NewInt(100)); err != nil {
		t.Fatalf("set suffix price: %v", err)
	}
	return registry, treasury
}

func TestRegistrationDepositsFee(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	receipt, err := registry.Register(ctx, "alice", "alice", "com", 2, big.NewInt(220))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if receipt.Fee.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("fee %s, want 2", receipt.Fee)
	}
	if receipt.Refund.Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("refund %s, want 18", receipt.Refund)
	}

	balance, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("treasury balance %s, want 2", balance)
	}
}

func TestDepositFeeAuthorization(t *testing.T) {
	_, treasury := newTestPair(t)
	ctx := context.Background()

	if err := treasury.DepositFee(ctx, "mallory", "alice.com", big.NewInt(5)); !errors.Is(err, domain.ErrNotRegistry) {
		t.Fatalf("expected ErrNotRegistry, got %v", err)
	}
	if err := treasury.DepositFee(ctx, registryAddr, "alice.com", big.NewInt(0)); !errors.Is(err, domain.ErrZeroDeposit) {
		t.Fatalf("expected ErrZeroDeposit, got %v", err)
	}
	if err := treasury.DepositFee(ctx, registryAddr, "alice.com", big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balance, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("balance %s, want 5", balance)
	}
}

func TestCalculateFeeUsesPerDomainRate(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	if _, err := registry.Register(ctx, "alice", "alice", "com", 1, big.NewInt(110)); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Default 1%.
	fee, err := treasury.CalculateFee(ctx, "alice.com", big.NewInt(1000))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if fee.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("default fee %s, want 10", fee)
	}

	// Owner raises the domain rate to 5%.
	if err := treasury.SetDomainFeeBps(ctx, "alice", "alice.com", 500); err != nil {
		t.Fatalf("set fee bps: %v", err)
	}
	fee, err = treasury.CalculateFee(ctx, "alice.com", big.NewInt(1000))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if fee.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("domain fee %s, want 50", fee)
	}
}

func TestSetDomainFeeBpsGuards(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	if _, err := registry.Register(ctx, "alice", "alice", "com", 1, big.NewInt(110)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := treasury.SetDomainFeeBps(ctx, "mallory", "alice.com", 200); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := treasury.SetDomainFeeBps(ctx, "alice", "alice.com", domain.MaxFeeBps+1); !errors.Is(err, domain.ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}

	treasury.now = func() time.Time { return time.Now().Add(2 * domainregistry.YearDuration) }
	if err := treasury.SetDomainFeeBps(ctx, "alice", "alice.com", 200); !errors.Is(err, domain.ErrDomainExpired) {
		t.Fatalf("expected ErrDomainExpired, got %v", err)
	}
}

func TestAutoRenew(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	first, err := registry.Register(ctx, "alice", "alice", "com", 1, big.NewInt(110))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Not enough accumulated yet (balance 1 from the 1% fee).
	ok, err := treasury.CanAutoRenew(ctx, "alice", "com", 1)
	if err != nil {
		t.Fatalf("can auto renew: %v", err)
	}
	if ok {
		t.Fatal("renewal reported affordable with balance 1")
	}
	if err := treasury.AutoRenew(ctx, "alice", "alice", "com", 1); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if err := treasury.DepositFee(ctx, registryAddr, "alice.com", big.NewInt(150)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := treasury.AutoRenew(ctx, "mallory", "alice", "com", 1); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := treasury.AutoRenew(ctx, "alice", "alice", "com", 1); err != nil {
		t.Fatalf("auto renew: %v", err)
	}

	rec, err := registry.GetDomain(ctx, "alice.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := first.ExpiresAt.Add(domainregistry.YearDuration)
	if !rec.ExpiresAt.Equal(want) {
		t.Fatalf("expires %v, want %v", rec.ExpiresAt, want)
	}

	// 1 + 150 accumulated, renewal cost 100 deducted.
	balance, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(51)) != 0 {
		t.Fatalf("balance %s, want 51", balance)
	}
}

func TestAutoRenewRestoresBalanceOnFailure(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	if _, err := registry.Register(ctx, "alice", "alice", "com", 10, big.NewInt(1100)); err != nil {
		t.Fatalf("register: %v", err)
	}
	// 10 years on the books; renewing 10×9 more reaches the cap.
	if err := treasury.DepositFee(ctx, registryAddr, "alice.com", big.NewInt(100000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for i := 0; i < 9; i++ {
		if err := treasury.AutoRenew(ctx, "alice", "alice", "com", 10); err != nil {
			t.Fatalf("auto renew %d: %v", i, err)
		}
	}

	before, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}

	// The registry rejects the renewal past the years cap after the balance
	// was provisionally deducted; the deduction must be restored.
	if err := treasury.AutoRenew(ctx, "alice", "alice", "com", 1); err == nil {
		t.Fatal("expected renewal past cap to fail")
	}
	after, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if after.Cmp(before) != 0 {
		t.Fatalf("balance %s after failed renewal, want %s", after, before)
	}
}

func TestWithdrawExcess(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	if _, err := registry.Register(ctx, "alice", "alice", "com", 1, big.NewInt(110)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := treasury.DepositFee(ctx, registryAddr, "alice.com", big.NewInt(99)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var paidTo string
	var paidAmount *big.Int
	treasury.SetPayout(func(_ context.Context, to string, amount *big.Int) error {
		paidTo = to
		paidAmount = new(big.Int).Set(amount)
		return nil
	})

	if err := treasury.WithdrawExcess(ctx, "mallory", "alice.com", big.NewInt(10)); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := treasury.WithdrawExcess(ctx, "alice", "alice.com", big.NewInt(1000)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := treasury.WithdrawExcess(ctx, "alice", "alice.com", big.NewInt(40)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paidTo != "alice" || paidAmount.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("payout %s to %q", paidAmount, paidTo)
	}

	balance, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance %s, want 60", balance)
	}
}

func TestWithdrawRestoresBalanceOnPayoutFailure(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	if _, err := registry.Register(ctx, "alice", "alice", "com", 1, big.NewInt(110)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := treasury.DepositFee(ctx, registryAddr, "alice.com", big.NewInt(99)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	treasury.SetPayout(func(context.Context, string, *big.Int) error {
		return errors.New("settlement unavailable")
	})

	before, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if err := treasury.WithdrawExcess(ctx, "alice", "alice.com", big.NewInt(40)); err == nil {
		t.Fatal("expected withdrawal to fail")
	}
	after, err := treasury.Balance(ctx, "alice.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if after.Cmp(before) != 0 {
		t.Fatalf("balance %s after failed payout, want %s", after, before)
	}
}

func TestSweep(t *testing.T) {
	registry, treasury := newTestPair(t)
	ctx := context.Background()

	// funded.com can afford its renewal, broke.com cannot.
	if _, err := registry.Register(ctx, "alice", "funded", "com", 1, big.NewInt(110)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Register(ctx, "bob", "broke", "com", 1, big.NewInt(110)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := treasury.DepositFee(ctx, registryAddr, "funded.com", big.NewInt(200)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	sweeper := NewSweeper(treasury, registry, "", 370*24*time.Hour, 1, nil)
	sweeper.Sweep(ctx)

	funded, err := registry.GetDomain(ctx, "funded.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if funded.YearsPurchased != 2 {
		t.Fatalf("funded.com years %d, want 2", funded.YearsPurchased)
	}
	broke, err := registry.GetDomain(ctx, "broke.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if broke.YearsPurchased != 1 {
		t.Fatalf("broke.com years %d, want 1", broke.YearsPurchased)
	}
}
