package devserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/persistence"
)

// Demo accounts created by Seed
const (
	DemoCustomerPhone = "0900000001"
	DemoDriverPhone   = "0900000002"
	DemoPassword      = "matkhau123"
)

var (
	familyNames = []string{"Nguyễn", "Trần", "Lê", "Phạm", "Hoàng", "Huỳnh", "Phan", "Vũ", "Võ", "Đặng", "Bùi", "Đỗ"}
	middleNames = []string{"Văn", "Thị", "Minh", "Ngọc", "Đức", "Thanh", "Hữu", "Quốc"}
	givenNames  = []string{"An", "Bình", "Châu", "Dũng", "Giang", "Hà", "Hải", "Hùng", "Lan", "Linh", "Long", "Mai", "Nam", "Phúc", "Quân", "Tâm", "Thảo", "Trang", "Tuấn", "Vy"}
	streets     = []string{"Lê Lợi", "Nguyễn Huệ", "Hai Bà Trưng", "Điện Biên Phủ", "Cách Mạng Tháng Tám", "Võ Văn Tần", "Pasteur", "Lý Tự Trọng"}
	districts   = []string{"Quận 1", "Quận 3", "Quận 5", "Quận 7", "Bình Thạnh", "Phú Nhuận", "Thủ Đức"}
)

// SeedOptions controls the generated demo data
type SeedOptions struct {
	Count int
	Seed  uint64
	Now   time.Time
}

// Seed fills an empty store with demo accounts, balance history, vouchers
// and a booking with a conversation. It does nothing when the demo customer
// already exists.
func Seed(ctx context.Context, store *persistence.Store, opts SeedOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := store.Accounts.FindByPhone(ctx, DemoCustomerPhone); err == nil {
		logger.Debug("Demo data already present")
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}
	s := &seeder{store: store, faker: gofakeit.New(opts.Seed), hash: string(hash), now: opts.Now}

	customer, err := s.account(ctx, DemoCustomerPhone, "Trần Thị Mai", identity.RoleCustomer)
	if err != nil {
		return err
	}
	driver, err := s.account(ctx, DemoDriverPhone, "Nguyễn Văn Hùng", identity.RoleDriver)
	if err != nil {
		return err
	}
	for _, a := range []*persistence.AccountModel{customer, driver} {
		if err := s.history(ctx, a); err != nil {
			return err
		}
	}

	for i := 0; i < opts.Count; i++ {
		role := identity.RoleCustomer
		if i%2 == 1 {
			role = identity.RoleDriver
		}
		a, err := s.account(ctx, s.faker.Numerify("09########"), s.name(), role)
		if errors.Is(err, persistence.ErrDuplicate) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.history(ctx, a); err != nil {
			return err
		}
	}

	if err := s.vouchers(ctx); err != nil {
		return err
	}
	if err := s.trips(ctx, customer, driver); err != nil {
		return err
	}
	logger.Info("Demo data seeded",
		zap.String("customer_phone", DemoCustomerPhone),
		zap.String("driver_phone", DemoDriverPhone),
		zap.Int("extra_accounts", opts.Count),
	)
	return nil
}

type seeder struct {
	store *persistence.Store
	faker *gofakeit.Faker
	hash  string
	now   time.Time
}

func (s *seeder) name() string {
	return s.faker.RandomString(familyNames) + " " + s.faker.RandomString(middleNames) + " " + s.faker.RandomString(givenNames)
}

func (s *seeder) address() string {
	return fmt.Sprintf("%d %s, %s", s.faker.IntRange(1, 300), s.faker.RandomString(streets), s.faker.RandomString(districts))
}

func (s *seeder) account(ctx context.Context, phone, name string, role identity.Role) (*persistence.AccountModel, error) {
	a := &persistence.AccountModel{
		Phone:        phone,
		PasswordHash: s.hash,
		FullName:     name,
		Role:         string(role),
	}
	if err := s.store.Accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// history posts a top-up followed by a few movements spread over the last
// two weeks, oldest first
func (s *seeder) history(ctx context.Context, a *persistence.AccountModel) error {
	at := s.now.Add(-14 * 24 * time.Hour)
	deposit := decimal.NewFromInt(int64(s.faker.IntRange(20, 100)) * 10000)
	if _, err := s.store.Accounts.PostAt(ctx, a.ID, ledger.TransactionTypeDeposit, deposit, "Top up", "", at); err != nil {
		return err
	}

	for i := 0; i < s.faker.IntRange(3, 8); i++ {
		at = at.Add(time.Duration(s.faker.IntRange(6, 40)) * time.Hour)
		if !at.Before(s.now) {
			break
		}
		typ, amount, desc := s.movement(identity.Role(a.Role))
		_, err := s.store.Accounts.PostAt(ctx, a.ID, typ, amount, desc, "", at)
		var de *shared.DomainError
		if errors.As(err, &de) && de.Code == "INSUFFICIENT_BALANCE" {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) movement(role identity.Role) (ledger.TransactionType, decimal.Decimal, string) {
	amount := decimal.NewFromInt(int64(s.faker.IntRange(3, 30)) * 5000)
	switch n := s.faker.IntRange(0, 9); {
	case role == identity.RoleDriver && n < 5:
		return ledger.TransactionTypePaymentReceived, amount, "Trip payment"
	case n < 7:
		return ledger.TransactionTypeDeposit, amount, "Top up"
	default:
		return ledger.TransactionTypeWithdrawRequested, amount.Neg(), "Withdrawal to bank account"
	}
}

func (s *seeder) vouchers(ctx context.Context) error {
	vouchers := []*persistence.VoucherModel{
		{Code: "WELCOME10", Description: "10% off your first trips", DiscountPct: decimal.NewFromInt(10), MaxDiscount: decimal.NewFromInt(20000), ExpiresAt: s.now.AddDate(0, 1, 0)},
		{Code: "LOGI20", Description: "20% off trips over 100.000 ₫", DiscountPct: decimal.NewFromInt(20), MaxDiscount: decimal.NewFromInt(50000), MinTripAmount: decimal.NewFromInt(100000), ExpiresAt: s.now.AddDate(0, 0, 14)},
		{Code: "TET2025", Description: "Lunar new year", DiscountPct: decimal.NewFromInt(30), ExpiresAt: s.now.AddDate(0, 0, -30)},
	}
	for _, v := range vouchers {
		if err := s.store.Content.UpsertVoucher(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// trips creates one accepted booking with a short conversation and one
// reviewed booking between the demo accounts
func (s *seeder) trips(ctx context.Context, customer, driver *persistence.AccountModel) error {
	distance := float64(s.faker.IntRange(2, 15))
	active := &persistence.BookingModel{
		CustomerID:   customer.ID,
		StartAddress: s.address(),
		EndAddress:   s.address(),
		VehicleType:  string(trip.VehicleCar4),
		Distance:     distance,
		Price:        quote(trip.VehicleCar4, distance),
	}
	if err := s.store.Bookings.Create(ctx, active); err != nil {
		return err
	}
	if _, err := s.store.Bookings.Transition(ctx, active.ID, []trip.BookingStatus{trip.BookingPending}, trip.BookingAccepted, driver.ID); err != nil {
		return err
	}

	lines := []struct {
		sender *persistence.AccountModel
		text   string
	}{
		{driver, "Chào chị, em đang tới điểm đón."},
		{customer, "Dạ em đứng trước cổng chính nhé."},
		{driver, "Khoảng 5 phút nữa em tới."},
	}
	at := s.now.Add(-10 * time.Minute)
	for _, l := range lines {
		at = at.Add(time.Minute)
		if err := s.store.Content.AppendMessage(ctx, &persistence.ChatMessageModel{
			BookingID: active.ID,
			SenderID:  l.sender.ID,
			Text:      l.text,
			Timestamp: at,
		}); err != nil {
			return err
		}
	}

	done := &persistence.BookingModel{
		CustomerID:   customer.ID,
		DriverID:     driver.ID,
		StartAddress: s.address(),
		EndAddress:   s.address(),
		VehicleType:  string(trip.VehicleMotorbike),
		Distance:     3,
		Price:        quote(trip.VehicleMotorbike, 3),
		Status:       string(trip.BookingCompleted),
	}
	if err := s.store.Bookings.Create(ctx, done); err != nil {
		return err
	}
	return s.store.Content.CreateReview(ctx, &persistence.ReviewModel{
		BookingID:  done.ID,
		DriverID:   driver.ID,
		CustomerID: customer.ID,
		Rating:     5,
		Comment:    "Tài xế thân thiện, chạy cẩn thận.",
	})
}
