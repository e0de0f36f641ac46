package form

import (
	"sort"
	"time"
)

// Errors maps a JSON field name to the single message shown for it.
// Submission is blocked while it is non-empty.
type Errors map[string]string

// Add records msg for field unless the field already has a message
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Valid reports whether no field failed
func (e Errors) Valid() bool {
	return len(e) == 0
}

// Fields returns the failing field names in sorted order
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for f := range e {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// LoginForm is submitted to /api/auth/login
type LoginForm struct {
	Phone    string `json:"phone" validate:"required,phone"`
	Password string `json:"password" validate:"required,password"`
}

// RegisterForm is submitted to /api/auth/register
type RegisterForm struct {
	FullName        string `json:"fullName" validate:"required,full_name"`
	Phone           string `json:"phone" validate:"required,phone"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,oneof=CUSTOMER DRIVER"`
}

// ProfileForm updates the account profile
type ProfileForm struct {
	FullName string `json:"fullName" validate:"required,full_name"`
	Phone    string `json:"phone" validate:"required,phone"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Avatar   string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// ChangePasswordForm replaces the account password
type ChangePasswordForm struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password,nefield=OldPassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// IDCardForm is the driver's national identity card
type IDCardForm struct {
	Number      string    `json:"idNumber" validate:"required,national_id"`
	FullName    string    `json:"fullName" validate:"required,full_name"`
	DateOfBirth time.Time `json:"dateOfBirth" validate:"required"`
	Gender      string    `json:"gender,omitempty" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	Address     string    `json:"address" validate:"required,max=255"`
	ProvinceID  int       `json:"provinceId" validate:"required,gt=0"`
	DistrictID  int       `json:"districtId" validate:"required,gt=0"`
	WardID      int       `json:"wardId" validate:"required,gt=0"`
	IssueDate   time.Time `json:"issueDate" validate:"required"`
	ExpiryDate  time.Time `json:"expiryDate" validate:"required,date_after=IssueDate"`
}

// VehicleForm registers a driver's vehicle
type VehicleForm struct {
	PlateNumber string `json:"plateNumber" validate:"required,max=12"`
	Brand       string `json:"brand" validate:"required,max=50"`
	Model       string `json:"model" validate:"required,max=50"`
	Color       string `json:"color" validate:"required,max=30"`
	VehicleType string `json:"vehicleType" validate:"required,oneof=MOTORBIKE CAR_4 CAR_7 TRUCK"`
	Year        int    `json:"year,omitempty" validate:"omitempty,gte=1980,lte=2100"`
}

// LicenseForm is a driving license
type LicenseForm struct {
	Number     string    `json:"licenseNumber" validate:"required,numeric,len=12"`
	Class      string    `json:"licenseClass" validate:"required,oneof=A1 A2 B1 B2 C D E"`
	IssueDate  time.Time `json:"issueDate" validate:"required"`
	ExpiryDate time.Time `json:"expiryDate" validate:"required,date_after=IssueDate"`
}

// BookingForm requests a trip
type BookingForm struct {
	StartAddress string     `json:"startAddress" validate:"required,max=255"`
	EndAddress   string     `json:"endAddress" validate:"required,max=255,nefield=StartAddress"`
	VehicleType  string     `json:"vehicleType" validate:"required,oneof=MOTORBIKE CAR_4 CAR_7 TRUCK"`
	Distance     float64    `json:"distance" validate:"gte=0"`
	VoucherCode  string     `json:"voucherCode,omitempty" validate:"omitempty,max=32"`
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
}

// ScheduleForm reserves a future pickup
type ScheduleForm struct {
	StartAddress string    `json:"startAddress" validate:"required,max=255"`
	EndAddress   string    `json:"endAddress" validate:"required,max=255,nefield=StartAddress"`
	VehicleType  string    `json:"vehicleType" validate:"required,oneof=MOTORBIKE CAR_4 CAR_7 TRUCK"`
	PickupAt     time.Time `json:"pickupAt" validate:"required"`
	Note         string    `json:"note,omitempty" validate:"omitempty,max=255"`
}

// ReviewForm rates a completed trip
type ReviewForm struct {
	BookingID string `json:"bookingId" validate:"required"`
	DriverID  string `json:"driverId" validate:"required"`
	Rating    int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment   string `json:"comment,omitempty" validate:"omitempty,max=500"`
}
