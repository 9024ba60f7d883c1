package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule          *Rule
	err           error
	codes         []string
	listErr       error
	lookups       int
	lookupCode    string
	incrementErr  error
	incrementCode string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.lookups++
	m.lookupCode = code
	return m.rule, m.err
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, code string) error {
	m.incrementCode = code
	return m.incrementErr
}

func (m *mockCouponRepo) ListActiveCodes(_ context.Context) ([]string, error) {
	return m.codes, m.listErr
}

func oneItem(price int64) []Item {
	return []Item{{ProductID: "p1", Price: decimal.NewFromInt(price), Quantity: 1}}
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		items      []Item
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name: "valid code returns discount",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "SAVE10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
			}},
			items:      oneItem(100),
			wantAmount: decimal.NewFromInt(10),
		},
		{
			name:    "unknown code returns ErrInvalidCoupon",
			repo:    &mockCouponRepo{err: ErrInvalidCoupon},
			items:   oneItem(50),
			wantErr: ErrInvalidCoupon,
		},
		{
			name: "minimum spend not met",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "MIN500", DiscountType: DiscountFixed, Value: decimal.NewFromInt(50),
				MinSpend: decimal.NewFromInt(500),
			}},
			items:   oneItem(100),
			wantErr: ErrMinimumNotMet,
		},
		{
			name: "expired coupon",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "OLD", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
				ValidUntil: &pastTime,
			}},
			items:   oneItem(100),
			wantErr: ErrCouponExpired,
		},
		{
			name: "coupon not yet valid",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "FUTURE", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
				ValidFrom: &futureTime,
			}},
			items:   oneItem(100),
			wantErr: ErrCouponExpired,
		},
		{
			name: "coupon within valid window succeeds",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "WINDOW", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
				ValidFrom: &pastTime, ValidUntil: &futureTime,
			}},
			items:      oneItem(100),
			wantAmount: decimal.NewFromInt(10),
		},
		{
			name: "usage limit reached",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "LIMITED", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
				MaxUses: 100, Uses: 100,
			}},
			items:   oneItem(100),
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name: "unlimited uses always succeeds",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "UNLIMITED", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5),
				Uses: 9999,
			}},
			items:      oneItem(100),
			wantAmount: decimal.NewFromInt(5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), " code ", tt.items)
			assert.Equal(t, "CODE", tt.repo.lookupCode)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
			assert.Empty(t, tt.repo.incrementCode, "validation must not count a use")
		})
	}
}

func TestRepoValidator_LookupError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("db down")})

	_, err := v.Validate(context.Background(), "X", oneItem(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestRepoValidator_Redeem(t *testing.T) {
	repo := &mockCouponRepo{}
	v := NewRepoValidator(repo)

	require.NoError(t, v.Redeem(context.Background(), "save10"))
	assert.Equal(t, "SAVE10", repo.incrementCode)

	repo.incrementErr = errors.New("db error")
	err := v.Redeem(context.Background(), "save10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment coupon uses")
}
