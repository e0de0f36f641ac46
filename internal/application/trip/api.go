// Package trip holds the booking, schedule, voucher, review and driver
// location use cases.
package trip

import (
	"context"
	"net/url"

	"github.com/logiride/client/internal/infrastructure/httpclient"
)

// API is the part of the REST client the trip services use
type API interface {
	Get(ctx context.Context, path string, out any, opts ...httpclient.CallOption) error
	Post(ctx context.Context, path string, body, out any, opts ...httpclient.CallOption) error
	Delete(ctx context.Context, path string, out any, opts ...httpclient.CallOption) error
}

var _ API = (*httpclient.Client)(nil)

// Endpoints
const (
	PathBookings       = "/api/tripBookings"
	PathBookingAccept  = "/api/tripBookings/accept"
	PathBookingDecline = "/api/tripBookings/decline"
	PathSchedules      = "/api/schedule"
	PathVouchers       = "/api/voucher"
	PathVoucherApply   = "/api/voucher/apply"
	PathReviews        = "/api/review"
)

func bookingPath(id string, suffix ...string) string {
	p := PathBookings + "/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}
