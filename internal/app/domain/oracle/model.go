// Package oracle defines the exchange-rate model consumed by the price
// oracle service.
package oracle

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RoundData is the raw answer from an external price feed. Only Answer and
// UpdatedAt are consumed; the remaining fields are carried for diagnostics.
type RoundData struct {
	RoundID         uint64
	Answer          decimal.Decimal
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// Rate is a validated exchange rate between the base settlement currency and
// the secondary stable currency.
type Rate struct {
	Value  decimal.Decimal
	AsOf   time.Time
	Source string
}

const (
	// SourceFeed marks a rate resolved from the external feed.
	SourceFeed = "feed"
	// SourceFallback marks a rate resolved from the admin fallback.
	SourceFallback = "fallback"
)

var (
	// ErrPriceUnavailable is returned when neither the feed nor the fallback
	// yields a usable rate. Callers must not substitute zero or a stale
	// cached value.
	ErrPriceUnavailable = errors.New("price unavailable")

	ErrRateBelowFloor = errors.New("rate below sanity floor")
	ErrStaleRound     = errors.New("feed round is stale")
	ErrNotAdmin       = errors.New("caller is not the administrator")
)
