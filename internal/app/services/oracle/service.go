package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/domainledger/registry_layer/internal/app/domain/oracle"
	"github.com/domainledger/registry_layer/internal/app/metrics"
	"github.com/domainledger/registry_layer/internal/app/storage"
	"github.com/domainledger/registry_layer/pkg/logger"
)

const (
	// BaseDecimals is the precision of the base settlement currency.
	BaseDecimals = 18
	// SecondaryDecimals is the precision of the secondary stable currency.
	SecondaryDecimals = 6

	// DefaultStaleness is the maximum accepted age of a feed round.
	DefaultStaleness = time.Hour
)

// FeedSource supplies the latest round from an external price feed.
type FeedSource interface {
	LatestRound(ctx context.Context) (oracle.RoundData, error)
}

// Service resolves exchange rates between the base settlement currency and
// the secondary stable currency. A feed answer is accepted only when it is
// positive, fresh, and at or above the sanity floor; otherwise the
// admin-set fallback rate is used, subject to the same floor.
type Service struct {
	store      storage.OracleStore
	feed       FeedSource
	admin      string
	staleAfter time.Duration
	floor      decimal.Decimal
	log        *logger.Logger
	now        func() time.Time
}

// New constructs a price oracle service. The floor guards against a broken
// or malicious feed reporting implausibly low prices.
func New(store storage.OracleStore, feed FeedSource, admin string, staleAfter time.Duration, floor decimal.Decimal, log *logger.Logger) *Service {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleness
	}
	if log == nil {
		log = logger.NewDefault("oracle")
	}
	return &Service{
		store:      store,
		feed:       feed,
		admin:      admin,
		staleAfter: staleAfter,
		floor:      floor,
		log:        log,
		now:        time.Now,
	}
}

// CurrentExchangeRate resolves the active rate: feed first, fallback second.
func (s *Service) CurrentExchangeRate(ctx context.Context) (oracle.Rate, error) {
	if s.feed != nil {
		rate, err := s.feedRate(ctx)
		if err == nil {
			return rate, nil
		}
		metrics.RecordFeedError()
		s.log.WithError(err).Warn("price feed rejected, trying fallback")
	}

	fallback, asOf, err := s.store.GetFallbackRate(ctx)
	if err != nil {
		return oracle.Rate{}, fmt.Errorf("%w: read fallback: %v", oracle.ErrPriceUnavailable, err)
	}
	if fallback.Sign() <= 0 {
		return oracle.Rate{}, fmt.Errorf("%w: no fallback configured", oracle.ErrPriceUnavailable)
	}
	if fallback.Cmp(s.floor) < 0 {
		return oracle.Rate{}, fmt.Errorf("%w: fallback %s below floor %s", oracle.ErrPriceUnavailable, fallback, s.floor)
	}
	return oracle.Rate{Value: fallback, AsOf: asOf, Source: oracle.SourceFallback}, nil
}

func (s *Service) feedRate(ctx context.Context) (oracle.Rate, error) {
	round, err := s.feed.LatestRound(ctx)
	if err != nil {
		return oracle.Rate{}, fmt.Errorf("feed query: %w", err)
	}
	if round.Answer.Sign() <= 0 {
		return oracle.Rate{}, fmt.Errorf("feed answer %s not positive", round.Answer)
	}
	if age := s.now().Sub(round.UpdatedAt); age > s.staleAfter {
		return oracle.Rate{}, fmt.Errorf("%w: updated %s ago", oracle.ErrStaleRound, age.Truncate(time.Second))
	}
	if round.Answer.Cmp(s.floor) < 0 {
		return oracle.Rate{}, fmt.Errorf("%w: answer %s below floor %s", oracle.ErrRateBelowFloor, round.Answer, s.floor)
	}
	return oracle.Rate{Value: round.Answer, AsOf: round.UpdatedAt, Source: oracle.SourceFeed}, nil
}

// ConvertBaseToSecondary converts an amount in base-currency minor units
// (18 decimals) into secondary-currency minor units (6 decimals) at the
// resolved rate. big.Int arithmetic throughout; no silent overflow.
func (s *Service) ConvertBaseToSecondary(ctx context.Context, amountInBase *big.Int) (*big.Int, error) {
	if amountInBase == nil || amountInBase.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}

	rate, err := s.CurrentExchangeRate(ctx)
	if err != nil {
		return nil, err
	}

	converted := decimal.NewFromBigInt(amountInBase, -BaseDecimals).
		Mul(rate.Value).
		Shift(SecondaryDecimals).
		Truncate(0)
	return converted.BigInt(), nil
}

// SetFallbackRate records the administrator fallback rate.
func (s *Service) SetFallbackRate(ctx context.Context, caller string, rate decimal.Decimal) error {
	if caller != s.admin {
		return oracle.ErrNotAdmin
	}
	if rate.Sign() <= 0 {
		return fmt.Errorf("fallback rate must be positive")
	}
	if rate.Cmp(s.floor) < 0 {
		return oracle.ErrRateBelowFloor
	}

	if err := s.store.SetFallbackRate(ctx, rate, s.now().UTC()); err != nil {
		return err
	}
	s.log.WithField("rate", rate.String()).Info("fallback exchange rate updated")
	return nil
}
