package registry

import (
	"context"
	"errors"
	"math/big"
	"time"

	domain "github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/metrics"
)

const (
	minBatchSize = 2
	maxBatchSize = 10
)

// BatchItem is one entry of a batch registration or renewal.
type BatchItem struct {
	Name   string
	Suffix string
	Years  int
}

// BatchReceipt aggregates the monetary outcome of a batch call: one payment
// in, one refund out.
type BatchReceipt struct {
	Receipts   []Receipt
	TotalPrice *big.Int
	TotalFee   *big.Int
	Refund     *big.Int
}

// batchPlan is a fully validated batch item awaiting commit.
type batchPlan struct {
	rec   domain.Record
	prev  *domain.Record
	full  string
	price *big.Int
	fee   *big.Int
}

// BatchRegister registers 2 to 10 domains atomically with one aggregated
// payment. Every item is validated before any state changes; if any item is
// invalid the whole batch fails. A failure while committing unwinds the
// items already written.
func (s *Service) BatchRegister(ctx context.Context, caller string, items []BatchItem, payment *big.Int) (BatchReceipt, error) {
	if err := validateCaller(caller); err != nil {
		return BatchReceipt{}, err
	}
	if len(items) < minBatchSize || len(items) > maxBatchSize {
		return BatchReceipt{}, domain.ErrInvalidBatch
	}
	if payment == nil || payment.Sign() < 0 {
		return BatchReceipt{}, domain.ErrInsufficientPayment
	}

	now := s.now().UTC()
	seen := make(map[string]bool, len(items))
	plans := make([]batchPlan, 0, len(items))
	totalPrice := new(big.Int)
	totalFee := new(big.Int)

	for _, item := range items {
		name, suffix, err := s.validateNameSuffix(item.Name, item.Suffix)
		if err != nil {
			return BatchReceipt{}, err
		}
		if item.Years < domain.MinYears || item.Years > domain.MaxYears {
			return BatchReceipt{}, domain.ErrInvalidYears
		}

		full := domain.FullDomain(name, suffix)
		if seen[full] {
			return BatchReceipt{}, domain.ErrDomainTaken
		}
		seen[full] = true

		price, err := s.RenewalPrice(ctx, suffix, item.Years)
		if err != nil {
			return BatchReceipt{}, err
		}

		prev, err := s.store.GetDomain(ctx, full)
		exists := err == nil
		if err != nil && !errors.Is(err, domain.ErrDomainNotFound) {
			return BatchReceipt{}, err
		}
		if exists && !prev.Expired(now) {
			return BatchReceipt{}, domain.ErrDomainTaken
		}

		fee, err := s.quoteFee(ctx, full, price)
		if err != nil {
			return BatchReceipt{}, err
		}

		totalPrice.Add(totalPrice, price)
		totalFee.Add(totalFee, fee)
		plans = append(plans, batchPlan{
			rec: domain.Record{
				Name:           name,
				Suffix:         suffix,
				Owner:          caller,
				RegisteredAt:   now,
				ExpiresAt:      now.Add(time.Duration(item.Years) * domain.YearDuration),
				YearsPurchased: item.Years,
			},
			prev:  prevSnapshot(prev, exists),
			full:  full,
			price: price,
			fee:   fee,
		})
	}

	receipt, err := s.commitBatch(ctx, plans, payment, totalPrice, totalFee)
	if err != nil {
		return BatchReceipt{}, err
	}
	for range plans {
		metrics.RecordRegistration("batch")
	}
	s.log.WithField("items", len(plans)).
		WithField("owner", caller).
		Info("batch registration committed")
	return receipt, nil
}

// BatchRenew renews 2 to 10 domains atomically with one aggregated payment.
func (s *Service) BatchRenew(ctx context.Context, caller string, items []BatchItem, payment *big.Int) (BatchReceipt, error) {
	if err := validateCaller(caller); err != nil {
		return BatchReceipt{}, err
	}
	if len(items) < minBatchSize || len(items) > maxBatchSize {
		return BatchReceipt{}, domain.ErrInvalidBatch
	}
	if payment == nil || payment.Sign() < 0 {
		return BatchReceipt{}, domain.ErrInsufficientPayment
	}

	now := s.now()
	seen := make(map[string]bool, len(items))
	plans := make([]batchPlan, 0, len(items))
	totalPrice := new(big.Int)
	totalFee := new(big.Int)

	for _, item := range items {
		name, suffix, err := s.validateNameSuffix(item.Name, item.Suffix)
		if err != nil {
			return BatchReceipt{}, err
		}
		if item.Years < domain.MinYears || item.Years > domain.MaxYears {
			return BatchReceipt{}, domain.ErrInvalidYears
		}

		full := domain.FullDomain(name, suffix)
		if seen[full] {
			return BatchReceipt{}, domain.ErrDomainTaken
		}
		seen[full] = true

		rec, err := s.store.GetDomain(ctx, full)
		if err != nil {
			return BatchReceipt{}, err
		}
		if rec.Owner != caller {
			return BatchReceipt{}, domain.ErrNotOwner
		}
		if rec.Expired(now) {
			return BatchReceipt{}, domain.ErrDomainExpired
		}
		if rec.YearsPurchased+item.Years > domain.MaxTotalYears {
			return BatchReceipt{}, domain.ErrYearsLimit
		}

		price, err := s.RenewalPrice(ctx, suffix, item.Years)
		if err != nil {
			return BatchReceipt{}, err
		}
		fee, err := s.quoteFee(ctx, full, price)
		if err != nil {
			return BatchReceipt{}, err
		}

		prev := rec
		rec.ExpiresAt = rec.ExpiresAt.Add(time.Duration(item.Years) * domain.YearDuration)
		rec.YearsPurchased += item.Years

		totalPrice.Add(totalPrice, price)
		totalFee.Add(totalFee, fee)
		plans = append(plans, batchPlan{
			rec:   rec,
			prev:  &prev,
			full:  full,
			price: price,
			fee:   fee,
		})
	}

	receipt, err := s.commitBatch(ctx, plans, payment, totalPrice, totalFee)
	if err != nil {
		return BatchReceipt{}, err
	}
	for range plans {
		metrics.RecordRenewal("batch")
	}
	s.log.WithField("items", len(plans)).
		WithField("owner", caller).
		Info("batch renewal committed")
	return receipt, nil
}

// commitBatch checks the aggregated payment and commits every plan,
// unwinding all earlier items if one fails.
func (s *Service) commitBatch(ctx context.Context, plans []batchPlan, payment, totalPrice, totalFee *big.Int) (BatchReceipt, error) {
	if payment.Cmp(totalPrice) < 0 {
		return BatchReceipt{}, domain.ErrInsufficientPayment
	}
	total := new(big.Int).Add(totalPrice, totalFee)
	if payment.Cmp(total) < 0 {
		return BatchReceipt{}, domain.ErrInsufficientAfterFee
	}

	receipts := make([]Receipt, 0, len(plans))
	for i, plan := range plans {
		if err := s.commit(ctx, plan.rec, plan.prev, plan.full, plan.fee); err != nil {
			s.unwind(ctx, plans[:i])
			return BatchReceipt{}, err
		}
		receipts = append(receipts, Receipt{
			FullDomain: plan.full,
			Owner:      plan.rec.Owner,
			Years:      plan.rec.YearsPurchased,
			Price:      plan.price,
			Fee:        plan.fee,
			Refund:     new(big.Int),
			ExpiresAt:  plan.rec.ExpiresAt,
		})
	}

	return BatchReceipt{
		Receipts:   receipts,
		TotalPrice: totalPrice,
		TotalFee:   totalFee,
		Refund:     new(big.Int).Sub(payment, total),
	}, nil
}

// unwind reverses committed batch items in reverse order: the fee deposit
// is released and the prior record state restored.
func (s *Service) unwind(ctx context.Context, committed []batchPlan) {
	for i := len(committed) - 1; i >= 0; i-- {
		plan := committed[i]
		if s.treasury != nil && plan.fee.Sign() > 0 {
			if err := s.treasury.RefundDeposit(ctx, s.self, plan.full, plan.fee); err != nil {
				s.log.WithError(err).WithField("domain", plan.full).Error("fee refund failed during batch unwind")
			}
		}
		if err := s.restore(ctx, plan.full, plan.prev); err != nil {
			s.log.WithError(err).WithField("domain", plan.full).Error("record restore failed during batch unwind")
		}
	}
}
