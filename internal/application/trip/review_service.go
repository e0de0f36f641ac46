package trip

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// ReviewService rates drivers after a trip
type ReviewService struct {
	api API
}

// NewReviewService creates a new review service
func NewReviewService(api API) *ReviewService {
	return &ReviewService{api: api}
}

// Submit rates a completed trip
func (s *ReviewService) Submit(ctx context.Context, f form.ReviewForm) (*trip.Review, error) {
	if err := validation.Check(f); err != nil {
		return nil, err
	}
	var out trip.Review
	if err := s.api.Post(ctx, PathReviews, f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListForDriver returns the reviews a driver received
func (s *ReviewService) ListForDriver(ctx context.Context, driverID string) ([]trip.Review, error) {
	if driverID == "" {
		return nil, shared.ErrInvalidInput
	}
	out := make([]trip.Review, 0)
	err := s.api.Get(ctx, PathReviews, &out, httpclient.WithQuery(url.Values{"driverId": {driverID}}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AverageRating returns the mean rating to one decimal place, zero for no reviews
func AverageRating(reviews []trip.Review) decimal.Decimal {
	if len(reviews) == 0 {
		return decimal.Zero
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(reviews)))).Round(1)
}
