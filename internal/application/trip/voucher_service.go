package trip

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
)

// ApplyResult is the platform's quote for a price with a voucher
type ApplyResult struct {
	Voucher  trip.Voucher    `json:"voucher"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type applyRequest struct {
	Code  string          `json:"code"`
	Price decimal.Decimal `json:"price"`
}

// VoucherService lists and applies discount codes
type VoucherService struct {
	api API
	now func() time.Time
}

// NewVoucherService creates a new voucher service
func NewVoucherService(api API) *VoucherService {
	return &VoucherService{api: api, now: time.Now}
}

// List returns the vouchers that have not expired
func (s *VoucherService) List(ctx context.Context) ([]trip.Voucher, error) {
	var all []trip.Voucher
	if err := s.api.Get(ctx, PathVouchers, &all); err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]trip.Voucher, 0, len(all))
	for _, v := range all {
		if !v.IsExpired(now) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Apply asks the platform to price a trip with code
func (s *VoucherService) Apply(ctx context.Context, code string, price decimal.Decimal) (*ApplyResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || !price.IsPositive() {
		return nil, shared.ErrInvalidInput
	}
	var out ApplyResult
	if err := s.api.Post(ctx, PathVoucherApply, applyRequest{Code: code, Price: price}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Best picks the voucher giving the largest discount on price, if any gives one
func Best(vouchers []trip.Voucher, price decimal.Decimal, now time.Time) (trip.Voucher, decimal.Decimal, bool) {
	var best trip.Voucher
	bestDiscount := decimal.Zero
	for _, v := range vouchers {
		if v.IsExpired(now) {
			continue
		}
		if d := v.Discount(price); d.GreaterThan(bestDiscount) {
			best, bestDiscount = v, d
		}
	}
	return best, bestDiscount, bestDiscount.IsPositive()
}
