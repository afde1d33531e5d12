package postgres

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/domainledger/registry_layer/internal/app/domain/fraction"
	"github.com/domainledger/registry_layer/internal/app/domain/registry"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestGetDomain(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"name", "suffix", "owner", "registered_at", "expires_at", "years_purchased", "created_at", "updated_at",
	}).AddRow("alpha", "com", "alice", now, now.Add(registry.YearDuration), 1, now, now)
	mock.ExpectQuery("SELECT name, suffix, owner").
		WithArgs("alpha.com").
		WillReturnRows(rows)

	rec, err := store.GetDomain(context.Background(), "Alpha.COM")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Owner != "alice" || rec.FullDomain() != "alpha.com" {
		t.Fatalf("record %+v", rec)
	}
}

func TestGetDomainNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT name, suffix, owner").
		WithArgs("gone.com").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := store.GetDomain(context.Background(), "gone.com"); !errors.Is(err, registry.ErrDomainNotFound) {
		t.Fatalf("expected ErrDomainNotFound, got %v", err)
	}
}

func TestPutDomainUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO domains").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := registry.Record{Name: "Alpha", Suffix: "COM", Owner: "alice", YearsPurchased: 1}
	out, err := store.PutDomain(context.Background(), rec)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if out.Name != "alpha" || out.Suffix != "com" {
		t.Fatalf("record not normalized: %+v", out)
	}
	if out.CreatedAt.IsZero() || out.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not stamped: %+v", out)
	}
}

func TestGetSuffixPriceDefaultsToZero(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT per_year FROM suffix_prices").
		WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"per_year"}))

	price, err := store.GetSuffixPrice(context.Background(), "org")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if price.Sign() != 0 {
		t.Fatalf("price %s, want 0", price)
	}
}

func TestGetSuffixPriceParsesNumeric(t *testing.T) {
	store, mock := newMockStore(t)

	// NUMERIC columns may come back with a decimal point.
	mock.ExpectQuery("SELECT per_year FROM suffix_prices").
		WithArgs("com").
		WillReturnRows(sqlmock.NewRows([]string{"per_year"}).AddRow("100000000000000000000.0"))

	price, err := store.GetSuffixPrice(context.Background(), "com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want, _ := new(big.Int).SetString("100000000000000000000", 10)
	if price.Cmp(want) != 0 {
		t.Fatalf("price %s, want %s", price, want)
	}
}

func TestGetTreasuryAccountDefaultsToZero(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT balance, fee_bps").
		WithArgs("alpha.com").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	acct, err := store.GetTreasuryAccount(context.Background(), "alpha.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acct.Balance.Sign() != 0 || acct.FullDomain != "alpha.com" {
		t.Fatalf("account %+v", acct)
	}
}

func TestCreateFractionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO fractions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := fraction.Record{
		FullDomain:    "alpha.com",
		TokenID:       "tok-1",
		DomainOwner:   "alice",
		Status:        fraction.StatusEnabled,
		PricePerShare: big.NewInt(3),
		PublicSold:    new(big.Int),
	}
	if _, err := store.CreateFraction(context.Background(), rec); !errors.Is(err, fraction.ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", err)
	}
}

func TestUpdateFractionMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE fractions SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := fraction.Record{
		FullDomain:    "alpha.com",
		Status:        fraction.StatusActive,
		PricePerShare: big.NewInt(3),
		PublicSold:    new(big.Int),
	}
	if _, err := store.UpdateFraction(context.Background(), rec); !errors.Is(err, fraction.ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
}

func TestSetShareBalanceZeroDeletes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM share_balances").
		WithArgs("alpha.com", "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetShareBalance(context.Background(), "alpha.com", "bob", new(big.Int)); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestSetShareBalanceEnforcesHolderCap(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("alpha.com", "newcomer").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("alpha.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(fraction.MaxHolders))

	err := store.SetShareBalance(context.Background(), "alpha.com", "newcomer", big.NewInt(1))
	if !errors.Is(err, fraction.ErrHolderLimit) {
		t.Fatalf("expected ErrHolderLimit, got %v", err)
	}
}

func TestSetShareBalanceUpsertsExistingHolder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("alpha.com", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO share_balances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetShareBalance(context.Background(), "alpha.com", "alice", big.NewInt(5)); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestFallbackRateRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	asOf := time.Now().UTC()
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO oracle_fallback").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT rate, as_of FROM oracle_fallback").
		WillReturnRows(sqlmock.NewRows([]string{"rate", "as_of"}).AddRow("2000", asOf))

	if err := store.SetFallbackRate(ctx, decimal.NewFromInt(2000), asOf); err != nil {
		t.Fatalf("set: %v", err)
	}
	rate, got, err := store.GetFallbackRate(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("rate %s, want 2000", rate)
	}
	if !got.Equal(asOf) {
		t.Fatalf("as-of %v, want %v", got, asOf)
	}
}

func TestGetFallbackRateUnsetIsZero(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT rate, as_of FROM oracle_fallback").
		WillReturnRows(sqlmock.NewRows([]string{"rate", "as_of"}))

	rate, asOf, err := store.GetFallbackRate(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rate.IsZero() || !asOf.IsZero() {
		t.Fatalf("rate %s as-of %v, want zeros", rate, asOf)
	}
}
