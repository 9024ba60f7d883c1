package coupon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	knownCodesMinCapacity = 1024
	knownCodesFPR         = 0.001
)

var _ Validator = (*KnownCodes)(nil)

// KnownCodes short-circuits validation of codes that are certainly not in
// the coupon table. It keeps a bloom filter of active codes; a filter miss
// is a definite miss, a hit falls through to the wrapped Validator.
//
// Until the first successful Refresh every code falls through.
type KnownCodes struct {
	next   Validator
	repo   Repository
	filter atomic.Pointer[bloom.BloomFilter]
}

// NewKnownCodes wraps next with a filter built from repo's active codes.
func NewKnownCodes(next Validator, repo Repository) *KnownCodes {
	return &KnownCodes{next: next, repo: repo}
}

// Refresh rebuilds the filter from the repository.
func (k *KnownCodes) Refresh(ctx context.Context) error {
	codes, err := k.repo.ListActiveCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list active codes")
	}

	capacity := max(uint(len(codes))*2, knownCodesMinCapacity)
	f := bloom.NewWithEstimates(capacity, knownCodesFPR)
	for _, c := range codes {
		f.AddString(NormalizeCode(c))
	}
	k.filter.Store(f)
	return nil
}

// Run refreshes the filter every interval until ctx is cancelled.
func (k *KnownCodes) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.Refresh(ctx); err != nil {
				zctx.From(ctx).Warn("Refresh known coupon codes", zap.Error(err))
			}
		}
	}
}

// Validate rejects codes absent from the filter and delegates the rest.
func (k *KnownCodes) Validate(ctx context.Context, code string, items []Item) (*Discount, error) {
	if f := k.filter.Load(); f != nil && !f.TestString(NormalizeCode(code)) {
		return nil, ErrInvalidCoupon
	}
	return k.next.Validate(ctx, code, items)
}
