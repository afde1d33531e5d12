package fraction

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	domain "github.com/domainledger/registry_layer/internal/app/domain/fraction"
	domainregistry "github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/storage/memory"
)

type fakeRegistry struct {
	records     map[string]domainregistry.Record
	transferErr error
	transferred map[string]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		records:     make(map[string]domainregistry.Record),
		transferred: make(map[string]string),
	}
}

func (f *fakeRegistry) GetDomain(_ context.Context, fullDomain string) (domainregistry.Record, error) {
	rec, ok := f.records[domainregistry.Normalize(fullDomain)]
	if !ok {
		return domainregistry.Record{}, domainregistry.ErrDomainNotFound
	}
	return rec, nil
}

func (f *fakeRegistry) TransferByFractionalization(_ context.Context, caller, fullDomain, newOwner string) error {
	if f.transferErr != nil {
		return f.transferErr
	}
	key := domainregistry.Normalize(fullDomain)
	rec := f.records[key]
	rec.Owner = newOwner
	f.records[key] = rec
	f.transferred[key] = newOwner
	return nil
}

func (f *fakeRegistry) put(name, suffix, owner string, expiresAt time.Time) {
	rec := domainregistry.Record{
		Name:      name,
		Suffix:    suffix,
		Owner:     owner,
		ExpiresAt: expiresAt,
	}
	f.records[rec.FullDomain()] = rec
}

func newTestService(t *testing.T) (*Service, *fakeRegistry, *memory.Store) {
	t.Helper()
	store := memory.New()
	reg := newFakeRegistry()
	svc := New(store, "fraction-contract", 7*24*time.Hour, nil)
	svc.SetRegistry(reg)
	return svc, reg, store
}

func shares(n int64) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return unit.Mul(unit, big.NewInt(n))
}

func TestEnable(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()
	expiry := time.Now().Add(365 * 24 * time.Hour).UTC()
	reg.put("alice", "com", "alice", expiry)

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(0)); !errors.Is(err, domain.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := svc.Enable(ctx, "bob", "alice.com", big.NewInt(100)); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	frec, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(100))
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if frec.Status != domain.StatusEnabled {
		t.Fatalf("expected status enabled, got %s", frec.Status)
	}
	if !frec.UnlockTime.Equal(expiry) {
		t.Fatalf("unlock time %v, want %v", frec.UnlockTime, expiry)
	}

	bal, err := svc.ShareBalance(ctx, "alice.com", "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(domain.LockedPortion()) != 0 {
		t.Fatalf("owner balance %s, want locked portion %s", bal, domain.LockedPortion())
	}

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(100)); !errors.Is(err, domain.ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", err)
	}
}

func TestEnableExpiredDomain(t *testing.T) {
	svc, reg, _ := newTestService(t)
	reg.put("alice", "com", "alice", time.Now().Add(-time.Hour).UTC())

	if _, err := svc.Enable(context.Background(), "alice", "alice.com", big.NewInt(100)); !errors.Is(err, domain.ErrDomainExpired) {
		t.Fatalf("expected ErrDomainExpired, got %v", err)
	}
}

func TestPurchasePublicShares(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()
	reg.put("alice", "com", "alice", time.Now().Add(365*24*time.Hour).UTC())

	price := big.NewInt(3)
	if _, err := svc.Enable(ctx, "alice", "alice.com", price); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// One base unit over a whole share: cost must round up, never down.
	amount := new(big.Int).Add(shares(1), big.NewInt(1))
	receipt, err := svc.PurchasePublicShares(ctx, "bob", "alice.com", amount, big.NewInt(10))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if receipt.Cost.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("cost %s, want 4", receipt.Cost)
	}
	if receipt.Refund.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("refund %s, want 6", receipt.Refund)
	}

	bal, err := svc.ShareBalance(ctx, "alice.com", "bob")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(amount) != 0 {
		t.Fatalf("buyer balance %s, want %s", bal, amount)
	}

	frec, err := svc.GetFraction(ctx, "alice.com")
	if err != nil {
		t.Fatalf("get fraction: %v", err)
	}
	if frec.Status != domain.StatusActive {
		t.Fatalf("expected status active, got %s", frec.Status)
	}
}

func TestPurchaseRejectsUnderpaymentAndOverSupply(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()
	reg.put("alice", "com", "alice", time.Now().Add(365*24*time.Hour).UTC())

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(2)); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := svc.PurchasePublicShares(ctx, "bob", "alice.com", shares(1), big.NewInt(1)); !errors.Is(err, domain.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}

	over := new(big.Int).Add(domain.LockedPortion(), big.NewInt(1))
	if _, err := svc.PurchasePublicShares(ctx, "bob", "alice.com", over, shares(100)); !errors.Is(err, domain.ErrExceedsPublicSupply) {
		t.Fatalf("expected ErrExceedsPublicSupply, got %v", err)
	}

	// Buying the entire public half exactly is allowed; one more unit is not.
	if _, err := svc.PurchasePublicShares(ctx, "bob", "alice.com", domain.LockedPortion(), new(big.Int).Mul(big.NewInt(2), domain.LockedPortion())); err != nil {
		t.Fatalf("purchase full public half: %v", err)
	}
	if _, err := svc.PurchasePublicShares(ctx, "carol", "alice.com", big.NewInt(1), big.NewInt(1)); !errors.Is(err, domain.ErrExceedsPublicSupply) {
		t.Fatalf("expected ErrExceedsPublicSupply after sell-out, got %v", err)
	}
}

func TestOwnerSharesLockedUntilRenewal(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()
	expiry := time.Now().Add(30 * 24 * time.Hour).UTC()
	reg.put("alice", "com", "alice", expiry)

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(1)); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if err := svc.Token().Transfer(ctx, "alice.com", "alice", "bob", big.NewInt(1)); !errors.Is(err, domain.ErrSharesLocked) {
		t.Fatalf("expected ErrSharesLocked, got %v", err)
	}

	if err := svc.UnlockOwnerTokens(ctx, "alice.com"); !errors.Is(err, domain.ErrNotUnlockable) {
		t.Fatalf("expected ErrNotUnlockable, got %v", err)
	}

	// Renewal pushes expiration past the stored unlock time.
	reg.put("alice", "com", "alice", expiry.Add(365*24*time.Hour))
	if err := svc.UnlockOwnerTokens(ctx, "alice.com"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := svc.Token().Transfer(ctx, "alice.com", "alice", "bob", big.NewInt(1)); err != nil {
		t.Fatalf("transfer after unlock: %v", err)
	}

	// Unlock is idempotent.
	if err := svc.UnlockOwnerTokens(ctx, "alice.com"); err != nil {
		t.Fatalf("second unlock: %v", err)
	}
}

func TestTriggerDefaultTransfer(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()
	start := time.Now().UTC()
	expiry := start.Add(30 * 24 * time.Hour)
	reg.put("alice", "com", "alice", expiry)

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(1)); err != nil {
		t.Fatalf("enable: %v", err)
	}
	// Bob buys the whole public half, then renewal unlocks the owner shares
	// and alice sells bob enough for a strict majority.
	if _, err := svc.PurchasePublicShares(ctx, "bob", "alice.com", domain.LockedPortion(), domain.LockedPortion()); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	reg.put("alice", "com", "alice", expiry.Add(365*24*time.Hour))
	if err := svc.UnlockOwnerTokens(ctx, "alice.com"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := svc.Token().Transfer(ctx, "alice.com", "alice", "bob", shares(1)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	majority, err := svc.GetMajorityOwner(ctx, "alice.com")
	if err != nil {
		t.Fatalf("majority: %v", err)
	}
	if majority != "bob" {
		t.Fatalf("majority holder %q, want bob", majority)
	}

	// Not yet expired.
	if err := svc.TriggerDefaultTransfer(ctx, "alice.com"); !errors.Is(err, domain.ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired, got %v", err)
	}

	finalExpiry := expiry.Add(365 * 24 * time.Hour)

	// Expired but inside the grace period.
	svc.now = func() time.Time { return finalExpiry.Add(time.Hour) }
	if err := svc.TriggerDefaultTransfer(ctx, "alice.com"); !errors.Is(err, domain.ErrGracePeriod) {
		t.Fatalf("expected ErrGracePeriod, got %v", err)
	}

	svc.now = func() time.Time { return finalExpiry.Add(8 * 24 * time.Hour) }
	if err := svc.TriggerDefaultTransfer(ctx, "alice.com"); err != nil {
		t.Fatalf("default transfer: %v", err)
	}

	if reg.transferred["alice.com"] != "bob" {
		t.Fatalf("registry owner %q, want bob", reg.transferred["alice.com"])
	}
	frec, err := svc.GetFraction(ctx, "alice.com")
	if err != nil {
		t.Fatalf("get fraction: %v", err)
	}
	if frec.Status != domain.StatusDefaulted {
		t.Fatalf("expected status defaulted, got %s", frec.Status)
	}
	if frec.DomainOwner != "bob" {
		t.Fatalf("recorded owner %q, want bob", frec.DomainOwner)
	}
	ownerBal, err := svc.ShareBalance(ctx, "alice.com", "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if ownerBal.Sign() != 0 {
		t.Fatalf("defaulter balance %s, want 0", ownerBal)
	}

	if err := svc.TriggerDefaultTransfer(ctx, "alice.com"); !errors.Is(err, domain.ErrDefaulted) {
		t.Fatalf("expected ErrDefaulted, got %v", err)
	}
}

func TestDefaultTransferRequiresNonOwnerMajority(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour).UTC()
	reg.put("alice", "com", "alice", expiry)

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(1)); err != nil {
		t.Fatalf("enable: %v", err)
	}

	svc.now = func() time.Time { return expiry.Add(8 * 24 * time.Hour) }

	// Owner holds exactly half, nobody else holds anything: no majority.
	if err := svc.TriggerDefaultTransfer(ctx, "alice.com"); !errors.Is(err, domain.ErrNoMajority) {
		t.Fatalf("expected ErrNoMajority, got %v", err)
	}
}

func TestDefaultTransferRollsBackOnRegistryFailure(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()
	start := time.Now().UTC()
	expiry := start.Add(time.Hour)
	reg.put("alice", "com", "alice", expiry)

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(1)); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := svc.PurchasePublicShares(ctx, "bob", "alice.com", domain.LockedPortion(), domain.LockedPortion()); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	reg.put("alice", "com", "alice", expiry.Add(365*24*time.Hour))
	if err := svc.UnlockOwnerTokens(ctx, "alice.com"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := svc.Token().Transfer(ctx, "alice.com", "alice", "bob", shares(1)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	before, err := svc.ShareBalance(ctx, "alice.com", "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}

	reg.transferErr = errors.New("registry unavailable")
	svc.now = func() time.Time { return expiry.Add(400 * 24 * time.Hour) }

	if err := svc.TriggerDefaultTransfer(ctx, "alice.com"); err == nil {
		t.Fatal("expected default transfer to fail")
	}

	after, err := svc.ShareBalance(ctx, "alice.com", "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if after.Cmp(before) != 0 {
		t.Fatalf("owner balance %s after rollback, want %s", after, before)
	}
	frec, err := svc.GetFraction(ctx, "alice.com")
	if err != nil {
		t.Fatalf("get fraction: %v", err)
	}
	if frec.Status == domain.StatusDefaulted {
		t.Fatal("record must not stay defaulted after rollback")
	}
	if frec.DomainOwner != "alice" {
		t.Fatalf("recorded owner %q after rollback, want alice", frec.DomainOwner)
	}
}

func TestGetMajorityOwnerCheapPath(t *testing.T) {
	svc, reg, store := newTestService(t)
	ctx := context.Background()
	reg.put("alice", "com", "alice", time.Now().Add(time.Hour).UTC())

	if _, err := svc.Enable(ctx, "alice", "alice.com", big.NewInt(1)); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// Push the recorded owner over the strict-majority threshold directly.
	over := new(big.Int).Add(domain.MajorityThreshold(), big.NewInt(1))
	if err := store.SetShareBalance(ctx, "alice.com", "alice", over); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	majority, err := svc.GetMajorityOwner(ctx, "alice.com")
	if err != nil {
		t.Fatalf("majority: %v", err)
	}
	if majority != "alice" {
		t.Fatalf("majority holder %q, want alice", majority)
	}
}
