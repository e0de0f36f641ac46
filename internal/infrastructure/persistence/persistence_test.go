package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/logiride/client/internal/domain/driver"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(Options{Driver: DriverSQLite, DSN: "file::memory:", LogLevel: "silent", Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func newAccount(t *testing.T, s *Store, phone string, role identity.Role) *AccountModel {
	t.Helper()
	a := &AccountModel{Phone: phone, PasswordHash: "x", FullName: "Nguyen Van A", Role: string(role)}
	require.NoError(t, s.Accounts.Create(context.Background(), a))
	return a
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle"})
	require.Error(t, err)

	_, err = Open(Options{Driver: DriverPostgres})
	require.Error(t, err)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newAccount(t, s, "0901234567", identity.RoleCustomer)
	assert.NotEmpty(t, a.ID)

	t.Run("phone is unique", func(t *testing.T) {
		err := s.Accounts.Create(ctx, &AccountModel{Phone: "0901234567", PasswordHash: "y", FullName: "B", Role: "CUSTOMER"})
		assert.True(t, errors.Is(err, ErrDuplicate))
	})

	t.Run("find", func(t *testing.T) {
		got, err := s.Accounts.FindByPhone(ctx, "0901234567")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, identity.RoleCustomer, got.ToDomain().Role)

		_, err = s.Accounts.FindByID(ctx, "missing")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("update profile", func(t *testing.T) {
		got, err := s.Accounts.UpdateProfile(ctx, a.ID, "Tran Thi B", "b@example.vn", "")
		require.NoError(t, err)
		assert.Equal(t, "Tran Thi B", got.FullName)
		assert.Equal(t, "b@example.vn", got.Email)

		_, err = s.Accounts.UpdateProfile(ctx, "missing", "x", "", "")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("password hash", func(t *testing.T) {
		require.NoError(t, s.Accounts.UpdatePasswordHash(ctx, a.ID, "new-hash"))
		got, err := s.Accounts.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
	})
}

func TestAccountRepository_Post(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newAccount(t, s, "0911111111", identity.RoleDriver)

	entry, err := s.Accounts.Post(ctx, a.ID, ledger.TransactionTypeDeposit, decimal.NewFromInt(500000), "Top up", "")
	require.NoError(t, err)
	assert.True(t, entry.CurrentBalance.Equal(decimal.NewFromInt(500000)))

	_, err = s.Accounts.Post(ctx, a.ID, ledger.TransactionTypeWithdraw, decimal.NewFromInt(-200000), "Cash out", "")
	require.NoError(t, err)

	_, err = s.Accounts.Post(ctx, a.ID, ledger.TransactionTypeWithdraw, decimal.NewFromInt(-1000000), "Too much", "")
	require.Error(t, err)

	got, err := s.Accounts.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(300000)), got.Balance.String())

	history, err := s.Accounts.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	tx := history[0].ToDomain()
	assert.Equal(t, ledger.TransactionTypeWithdraw, tx.Type)
	assert.True(t, tx.IsDebit())
	assert.False(t, tx.When().IsZero())
}

func TestBookingRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	customer := newAccount(t, s, "0900000001", identity.RoleCustomer)
	drv := newAccount(t, s, "0900000002", identity.RoleDriver)

	b := &BookingModel{
		CustomerID:   customer.ID,
		StartAddress: "1 Le Loi",
		EndAddress:   "2 Nguyen Hue",
		Start:        &trip.Location{Latitude: 10.77, Longitude: 106.70},
		VehicleType:  string(trip.VehicleMotorbike),
		Distance:     3.5,
		Price:        decimal.NewFromInt(45000),
	}
	require.NoError(t, s.Bookings.Create(ctx, b))
	assert.Equal(t, string(trip.BookingPending), b.Status)

	accepted, err := s.Bookings.Transition(ctx, b.ID, []trip.BookingStatus{trip.BookingPending}, trip.BookingAccepted, drv.ID)
	require.NoError(t, err)
	assert.Equal(t, drv.ID, accepted.DriverID)
	domain := accepted.ToDomain()
	assert.Equal(t, trip.BookingAccepted, domain.Status)
	require.NotNil(t, domain.Start)
	assert.Equal(t, 10.77, domain.Start.Latitude)

	_, err = s.Bookings.Transition(ctx, b.ID, []trip.BookingStatus{trip.BookingPending}, trip.BookingDeclined, "")
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	_, err = s.Bookings.Transition(ctx, "missing", []trip.BookingStatus{trip.BookingPending}, trip.BookingDeclined, "")
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	forCustomer, err := s.Bookings.ListForAccount(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, forCustomer, 1)
	forDriver, err := s.Bookings.ListForAccount(ctx, drv.ID)
	require.NoError(t, err)
	assert.Len(t, forDriver, 1)
}

func TestBookingRepository_Schedules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pickup := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

	late := &ScheduleModel{CustomerID: "c1", StartAddress: "A", EndAddress: "B", VehicleType: "CAR_4", PickupAt: pickup.Add(time.Hour)}
	early := &ScheduleModel{CustomerID: "c1", StartAddress: "A", EndAddress: "C", VehicleType: "CAR_4", PickupAt: pickup}
	require.NoError(t, s.Bookings.CreateSchedule(ctx, late))
	require.NoError(t, s.Bookings.CreateSchedule(ctx, early))

	list, err := s.Bookings.Schedules(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)

	require.NoError(t, s.Bookings.CancelSchedule(ctx, early.ID, "c1"))
	assert.True(t, errors.Is(s.Bookings.CancelSchedule(ctx, early.ID, "c1"), shared.ErrInvalidState))
	assert.True(t, errors.Is(s.Bookings.CancelSchedule(ctx, late.ID, "someone-else"), shared.ErrNotFound))
}

func TestBookingRepository_DispatchSchedule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

	due := &ScheduleModel{CustomerID: "c1", StartAddress: "A", EndAddress: "B", VehicleType: "CAR_4", PickupAt: now.Add(5 * time.Minute), Price: decimal.NewFromInt(25000)}
	later := &ScheduleModel{CustomerID: "c1", StartAddress: "A", EndAddress: "C", VehicleType: "CAR_4", PickupAt: now.Add(3 * time.Hour), Price: decimal.NewFromInt(25000)}
	require.NoError(t, s.Bookings.CreateSchedule(ctx, due))
	require.NoError(t, s.Bookings.CreateSchedule(ctx, later))

	list, err := s.Bookings.DueSchedules(ctx, now.Add(15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	b, err := s.Bookings.DispatchSchedule(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, string(trip.BookingPending), b.Status)
	assert.Equal(t, "c1", b.CustomerID)
	require.NotNil(t, b.ScheduledAt)
	assert.True(t, b.ScheduledAt.Equal(due.PickupAt))
	assert.True(t, b.Price.Equal(decimal.NewFromInt(25000)))

	_, err = s.Bookings.DispatchSchedule(ctx, due.ID)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	scheds, err := s.Bookings.Schedules(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, trip.ScheduleDispatched, scheds[0].ToDomain().Status)
	assert.Equal(t, b.ID, scheds[0].BookingID)

	list, err = s.Bookings.DueSchedules(ctx, now.Add(15*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestContentRepository_Vouchers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Content.UpsertVoucher(ctx, &VoucherModel{Code: "ride10", DiscountPct: decimal.NewFromInt(10), ExpiresAt: now.Add(24 * time.Hour)}))
	require.NoError(t, s.Content.UpsertVoucher(ctx, &VoucherModel{Code: "OLD", DiscountPct: decimal.NewFromInt(5), ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Content.UpsertVoucher(ctx, &VoucherModel{Code: "RIDE10", DiscountPct: decimal.NewFromInt(15), ExpiresAt: now.Add(24 * time.Hour)}))

	active, err := s.Content.ActiveVouchers(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "RIDE10", active[0].Code)
	assert.True(t, active[0].DiscountPct.Equal(decimal.NewFromInt(15)))

	v, err := s.Content.VoucherByCode(ctx, " ride10 ")
	require.NoError(t, err)
	assert.Equal(t, "RIDE10", v.ToDomain().Code)

	_, err = s.Content.VoucherByCode(ctx, "NOPE")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestContentRepository_ReviewsAndMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Content.CreateReview(ctx, &ReviewModel{BookingID: "b1", DriverID: "d1", CustomerID: "c1", Rating: 5}))
	err := s.Content.CreateReview(ctx, &ReviewModel{BookingID: "b1", DriverID: "d1", CustomerID: "c1", Rating: 1})
	assert.True(t, errors.Is(err, ErrDuplicate))

	reviews, err := s.Content.ReviewsForDriver(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, 5, reviews[0].ToDomain().Rating)

	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Content.AppendMessage(ctx, &ChatMessageModel{BookingID: "b1", SenderID: "c1", Text: "second", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, s.Content.AppendMessage(ctx, &ChatMessageModel{BookingID: "b1", SenderID: "d1", Text: "first", Timestamp: base}))
	require.NoError(t, s.Content.AppendMessage(ctx, &ChatMessageModel{BookingID: "b2", SenderID: "d1", Text: "other"}))

	msgs, err := s.Content.Messages(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].ToDomain().Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestContentRepository_DriverDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.Content.DriverProfile(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, driver.Status{
		IDCard:  driver.StatusNotSubmitted,
		Vehicle: driver.StatusNotSubmitted,
		License: driver.StatusNotSubmitted,
	}, empty.Status())

	card := driver.IDCard{Number: "012345678901", FullName: "Nguyen Van A", Address: "HCMC"}
	_, err = s.Content.SaveIDCard(ctx, "d1", card)
	require.NoError(t, err)
	_, err = s.Content.SaveVehicle(ctx, "d1", driver.Vehicle{PlateNumber: "51F-123.45", Brand: "Honda"})
	require.NoError(t, err)

	got, err := s.Content.DriverProfile(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got.IDCard)
	assert.Equal(t, "012345678901", got.IDCard.Number)
	assert.Equal(t, driver.StatusPending, got.Status().IDCard)
	assert.Equal(t, driver.StatusPending, got.Status().Vehicle)
	assert.Equal(t, driver.StatusNotSubmitted, got.Status().License)

	approved, err := s.Content.SetDocumentStatus(ctx, "d1", driver.StatusApproved, "ok")
	require.NoError(t, err)
	assert.Equal(t, driver.StatusApproved, approved.Status().IDCard)
	assert.Equal(t, driver.StatusNotSubmitted, approved.Status().License)
	assert.Equal(t, "ok", approved.Status().Note)
}

func TestAccountRepository_PostAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newAccount(t, s, "0922222222", identity.RoleCustomer)

	earlier := time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)
	_, err := s.Accounts.PostAt(ctx, a.ID, ledger.TransactionTypeDeposit, decimal.NewFromInt(100000), "Top up", "", earlier)
	require.NoError(t, err)
	_, err = s.Accounts.Post(ctx, a.ID, ledger.TransactionTypeDeposit, decimal.NewFromInt(50000), "Top up", "")
	require.NoError(t, err)

	history, err := s.Accounts.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[1].TransactionDate.Equal(earlier))
	assert.True(t, history[0].CurrentBalance.Equal(decimal.NewFromInt(150000)))
}
