package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/persistence"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

// fare is the base price plus the price per started kilometre, in VND
type fare struct {
	base  int64
	perKm int64
}

var fares = map[trip.VehicleType]fare{
	trip.VehicleMotorbike: {base: 12000, perKm: 4000},
	trip.VehicleCar4:      {base: 25000, perKm: 10000},
	trip.VehicleCar7:      {base: 30000, perKm: 12000},
	trip.VehicleTruck:     {base: 60000, perKm: 20000},
}

// quote prices a trip, rounded to the thousand
func quote(v trip.VehicleType, distanceKm float64) decimal.Decimal {
	f, ok := fares[v]
	if !ok {
		f = fares[trip.VehicleCar4]
	}
	km := decimal.NewFromFloat(distanceKm).Ceil()
	price := decimal.NewFromInt(f.base).Add(km.Mul(decimal.NewFromInt(f.perKm)))
	return price.Div(decimal.NewFromInt(1000)).Round(0).Mul(decimal.NewFromInt(1000))
}

var errVoucherInvalid = shared.NewDomainError("INVALID_INPUT", "Voucher is not valid")

func (s *Server) createBooking(c *gin.Context) {
	var f form.BookingForm
	if !bind(c, &f) {
		return
	}
	ctx := c.Request.Context()
	vehicle := trip.VehicleType(f.VehicleType)
	price := quote(vehicle, f.Distance)

	voucherCode := ""
	if f.VoucherCode != "" {
		v, err := s.voucher(ctx, f.VoucherCode)
		if err != nil {
			handleError(c, err)
			return
		}
		price = price.Sub(v.Discount(price))
		voucherCode = v.Code
	}

	b := &persistence.BookingModel{
		CustomerID:   accountID(c),
		StartAddress: f.StartAddress,
		EndAddress:   f.EndAddress,
		VehicleType:  string(vehicle),
		Distance:     f.Distance,
		Price:        price,
		VoucherCode:  voucherCode,
		ScheduledAt:  f.ScheduledAt,
	}
	if err := s.store.Bookings.Create(ctx, b); err != nil {
		handleError(c, err)
		return
	}

	offered := s.offer(ctx, b)
	logger.GetGinLogger(c, s.logger).Info("Booking created",
		zap.String("booking_id", b.ID),
		zap.String("price", price.String()),
		zap.Int("drivers_notified", offered),
	)
	created(c, b.ToDomain())
}

// offer pushes the new booking to every connected driver and returns how
// many connections received it
func (s *Server) offer(ctx context.Context, b *persistence.BookingModel) int {
	drivers, err := s.store.Accounts.ListByRole(ctx, string(identity.RoleDriver))
	if err != nil {
		s.logger.Warn("Listing drivers for offer", zap.Error(err))
		return 0
	}
	history, err := s.store.Bookings.ListForAccount(ctx, b.CustomerID)
	if err != nil {
		s.logger.Warn("Counting customer bookings", zap.Error(err))
	}
	points := float64(len(history))
	price := b.Price
	distance := b.Distance

	n := trip.Notification{
		BookingID:                    b.ID,
		CustomerID:                   b.CustomerID,
		CustomerStartLocationAddress: b.StartAddress,
		CustomerEndLocationAddress:   b.EndAddress,
		TotalCustomerPoints:          &points,
		Price:                        &price,
		Distance:                     &distance,
		VehicleType:                  b.VehicleType,
	}
	delivered := 0
	for _, d := range drivers {
		env, err := realtime.NewEnvelope(realtime.EventNotification, d.ID, "", n)
		if err != nil {
			s.logger.Error("Encoding offer", zap.Error(err))
			return delivered
		}
		delivered += s.hub.Publish(d.ID, env)
	}
	return delivered
}

func (s *Server) listBookings(c *gin.Context) {
	rows, err := s.store.Bookings.ListForAccount(c.Request.Context(), accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]trip.Booking, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	success(c, out)
}

func (s *Server) getBooking(c *gin.Context) {
	b, err := s.partyBooking(c.Request.Context(), c.Param("id"), accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, b.ToDomain())
}

// partyBooking loads a booking the account takes part in. Other bookings
// are reported as missing.
func (s *Server) partyBooking(ctx context.Context, id, account string) (*persistence.BookingModel, error) {
	b, err := s.store.Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != account && b.DriverID != account {
		return nil, shared.ErrNotFound
	}
	return b, nil
}

func (s *Server) cancelBooking(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := s.partyBooking(ctx, c.Param("id"), accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	updated, err := s.store.Bookings.Transition(ctx, b.ID,
		[]trip.BookingStatus{trip.BookingPending, trip.BookingAccepted}, trip.BookingCancelled, "")
	if errors.Is(err, shared.ErrInvalidState) {
		handleError(c, trip.ErrBookingNotCancellable)
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, updated.ToDomain())
}

func (s *Server) acceptBooking(c *gin.Context) {
	s.answer(c, trip.BookingAccepted)
}

func (s *Server) declineBooking(c *gin.Context) {
	s.answer(c, trip.BookingDeclined)
}

// answer applies a driver's decision to the booking named by the
// identifying fields of the offer
func (s *Server) answer(c *gin.Context, to trip.BookingStatus) {
	var fields map[string]any
	if !bind(c, &fields) {
		return
	}
	raw, ok := fields["bookingId"]
	if !ok || raw == nil {
		fail(c, http.StatusBadRequest, "bookingId is required")
		return
	}
	bookingID := fmt.Sprint(raw)

	b, err := s.store.Bookings.Transition(c.Request.Context(), bookingID,
		[]trip.BookingStatus{trip.BookingPending}, to, accountID(c))
	if errors.Is(err, shared.ErrInvalidState) {
		fail(c, http.StatusConflict, "Booking is no longer available")
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	logger.GetGinLogger(c, s.logger).Info("Booking answered",
		zap.String("booking_id", b.ID),
		zap.String("status", string(to)),
	)
	success(c, b.ToDomain())
}

func (s *Server) listSchedules(c *gin.Context) {
	rows, err := s.store.Bookings.Schedules(c.Request.Context(), accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]trip.Schedule, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	success(c, out)
}

func (s *Server) createSchedule(c *gin.Context) {
	var f form.ScheduleForm
	if !bind(c, &f) {
		return
	}
	if !f.PickupAt.After(s.now()) {
		fail(c, http.StatusBadRequest, "Pickup time must be in the future")
		return
	}
	m := &persistence.ScheduleModel{
		CustomerID:   accountID(c),
		StartAddress: f.StartAddress,
		EndAddress:   f.EndAddress,
		VehicleType:  f.VehicleType,
		PickupAt:     f.PickupAt,
		Note:         f.Note,
		Price:        quote(trip.VehicleType(f.VehicleType), 0),
	}
	if err := s.store.Bookings.CreateSchedule(c.Request.Context(), m); err != nil {
		handleError(c, err)
		return
	}
	created(c, m.ToDomain())
}

func (s *Server) cancelSchedule(c *gin.Context) {
	if err := s.store.Bookings.CancelSchedule(c.Request.Context(), c.Param("id"), accountID(c)); err != nil {
		handleError(c, err)
		return
	}
	success(c, nil)
}

func (s *Server) listVouchers(c *gin.Context) {
	rows, err := s.store.Content.ActiveVouchers(c.Request.Context(), s.now())
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]trip.Voucher, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	success(c, out)
}

// voucher returns the active voucher with code
func (s *Server) voucher(ctx context.Context, code string) (trip.Voucher, error) {
	m, err := s.store.Content.VoucherByCode(ctx, code)
	if errors.Is(err, shared.ErrNotFound) {
		return trip.Voucher{}, errVoucherInvalid
	}
	if err != nil {
		return trip.Voucher{}, err
	}
	v := m.ToDomain()
	if v.IsExpired(s.now()) {
		return trip.Voucher{}, errVoucherInvalid
	}
	return v, nil
}

type applyVoucherRequest struct {
	Code  string          `json:"code" validate:"required,max=32"`
	Price decimal.Decimal `json:"price"`
}

type applyVoucherResponse struct {
	Voucher  trip.Voucher    `json:"voucher"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

func (s *Server) applyVoucher(c *gin.Context) {
	var req applyVoucherRequest
	if !bind(c, &req) {
		return
	}
	if req.Price.IsNegative() {
		fail(c, http.StatusBadRequest, "price: Must not be negative")
		return
	}
	v, err := s.voucher(c.Request.Context(), req.Code)
	if err != nil {
		handleError(c, err)
		return
	}
	discount := v.Discount(req.Price)
	success(c, applyVoucherResponse{
		Voucher:  v,
		Price:    req.Price,
		Discount: discount,
		Total:    req.Price.Sub(discount),
	})
}

func (s *Server) createReview(c *gin.Context) {
	var f form.ReviewForm
	if !bind(c, &f) {
		return
	}
	ctx := c.Request.Context()
	b, err := s.partyBooking(ctx, f.BookingID, accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	if b.CustomerID != accountID(c) || b.DriverID == "" || b.DriverID != f.DriverID {
		fail(c, http.StatusBadRequest, "driverId does not match the booking")
		return
	}
	status := trip.BookingStatus(b.Status)
	if status != trip.BookingAccepted && status != trip.BookingCompleted {
		handleError(c, shared.ErrInvalidState)
		return
	}

	m := &persistence.ReviewModel{
		BookingID:  b.ID,
		DriverID:   b.DriverID,
		CustomerID: b.CustomerID,
		Rating:     f.Rating,
		Comment:    f.Comment,
	}
	if err := s.store.Content.CreateReview(ctx, m); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			fail(c, http.StatusConflict, "This trip has already been reviewed")
			return
		}
		handleError(c, err)
		return
	}
	created(c, m.ToDomain())
}

func (s *Server) listReviews(c *gin.Context) {
	driverID := c.Query("driverId")
	if driverID == "" {
		fail(c, http.StatusBadRequest, "driverId is required")
		return
	}
	rows, err := s.store.Content.ReviewsForDriver(c.Request.Context(), driverID)
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]trip.Review, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	success(c, out)
}
