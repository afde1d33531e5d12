package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/domainledger/registry_layer/internal/app/domain/oracle"
	"github.com/domainledger/registry_layer/internal/app/storage/memory"
)

type fakeFeed struct {
	round domain.RoundData
	err   error
}

func (f *fakeFeed) LatestRound(context.Context) (domain.RoundData, error) {
	return f.round, f.err
}

func freshRound(answer string) domain.RoundData {
	return domain.RoundData{
		RoundID:         7,
		Answer:          decimal.RequireFromString(answer),
		StartedAt:       time.Now().Add(-time.Minute),
		UpdatedAt:       time.Now().Add(-time.Minute),
		AnsweredInRound: 7,
	}
}

func TestCurrentExchangeRateFromFeed(t *testing.T) {
	feed := &fakeFeed{round: freshRound("2500.50")}
	svc := New(memory.New(), feed, "admin", time.Hour, decimal.NewFromInt(100), nil)

	rate, err := svc.CurrentExchangeRate(context.Background())
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.Source != domain.SourceFeed {
		t.Fatalf("source %s, want feed", rate.Source)
	}
	if !rate.Value.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("rate %s, want 2500.50", rate.Value)
	}
}

func TestFeedRejectedFallsBack(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		feed *fakeFeed
	}{
		{"feed error", &fakeFeed{err: errors.New("connection refused")}},
		{"zero answer", &fakeFeed{round: freshRound("0")}},
		{"below floor", &fakeFeed{round: freshRound("99")}},
		{"stale round", &fakeFeed{round: domain.RoundData{
			RoundID:         3,
			Answer:          decimal.NewFromInt(2500),
			UpdatedAt:       time.Now().Add(-2 * time.Hour),
			AnsweredInRound: 3,
		}}},
	}
	for _, tc := range cases {
		store := memory.New()
		svc := New(store, tc.feed, "admin", time.Hour, decimal.NewFromInt(100), nil)

		// No fallback configured: the distinct unavailable error.
		if _, err := svc.CurrentExchangeRate(ctx); !errors.Is(err, domain.ErrPriceUnavailable) {
			t.Fatalf("%s: expected ErrPriceUnavailable, got %v", tc.name, err)
		}

		if err := svc.SetFallbackRate(ctx, "admin", decimal.NewFromInt(2000)); err != nil {
			t.Fatalf("%s: set fallback: %v", tc.name, err)
		}
		rate, err := svc.CurrentExchangeRate(ctx)
		if err != nil {
			t.Fatalf("%s: rate: %v", tc.name, err)
		}
		if rate.Source != domain.SourceFallback {
			t.Fatalf("%s: source %s, want fallback", tc.name, rate.Source)
		}
		if !rate.Value.Equal(decimal.NewFromInt(2000)) {
			t.Fatalf("%s: rate %s, want 2000", tc.name, rate.Value)
		}
	}
}

func TestSetFallbackRateGuards(t *testing.T) {
	svc := New(memory.New(), nil, "admin", time.Hour, decimal.NewFromInt(100), nil)
	ctx := context.Background()

	if err := svc.SetFallbackRate(ctx, "mallory", decimal.NewFromInt(2000)); !errors.Is(err, domain.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.SetFallbackRate(ctx, "admin", decimal.NewFromInt(50)); !errors.Is(err, domain.ErrRateBelowFloor) {
		t.Fatalf("expected ErrRateBelowFloor, got %v", err)
	}
	if err := svc.SetFallbackRate(ctx, "admin", decimal.Zero); err == nil {
		t.Fatal("expected zero rate to be rejected")
	}
}

func TestConvertBaseToSecondary(t *testing.T) {
	feed := &fakeFeed{round: freshRound("2500")}
	svc := New(memory.New(), feed, "admin", time.Hour, decimal.Zero, nil)
	ctx := context.Background()

	// 1.5 base units (18 decimals) at 2500 = 3750 secondary units
	// (6 decimals) = 3_750_000_000.
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	converted, err := svc.ConvertBaseToSecondary(ctx, amount)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := big.NewInt(3_750_000_000)
	if converted.Cmp(want) != 0 {
		t.Fatalf("converted %s, want %s", converted, want)
	}

	// Fractional results truncate toward zero.
	feed.round = freshRound("0.333333")
	one := new(big.Int).SetInt64(1) // 10^-18 base units
	converted, err = svc.ConvertBaseToSecondary(ctx, one)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted.Sign() != 0 {
		t.Fatalf("converted %s, want 0", converted)
	}

	if _, err := svc.ConvertBaseToSecondary(ctx, big.NewInt(-1)); err == nil {
		t.Fatal("expected negative amount to be rejected")
	}
}

func TestConvertPropagatesUnavailability(t *testing.T) {
	svc := New(memory.New(), &fakeFeed{err: errors.New("down")}, "admin", time.Hour, decimal.Zero, nil)

	if _, err := svc.ConvertBaseToSecondary(context.Background(), big.NewInt(1)); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}
