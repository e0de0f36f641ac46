// Package driver holds the documents a driver submits for verification.
package driver

import "time"

// VerificationStatus is the review state of a submitted driver document set
type VerificationStatus string

const (
	StatusNotSubmitted VerificationStatus = "NOT_SUBMITTED"
	StatusPending      VerificationStatus = "PENDING"
	StatusApproved     VerificationStatus = "APPROVED"
	StatusRejected     VerificationStatus = "REJECTED"
)

// IDCard is the national identity card of a driver
type IDCard struct {
	Number      string    `json:"idNumber"`
	FullName    string    `json:"fullName"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Gender      string    `json:"gender,omitempty"`
	Address     string    `json:"address"`
	ProvinceID  int       `json:"provinceId,omitempty"`
	DistrictID  int       `json:"districtId,omitempty"`
	WardID      int       `json:"wardId,omitempty"`
	IssueDate   time.Time `json:"issueDate"`
	ExpiryDate  time.Time `json:"expiryDate"`
	FrontImage  string    `json:"frontImage,omitempty"`
	BackImage   string    `json:"backImage,omitempty"`
}

// Vehicle is the vehicle a driver registers
type Vehicle struct {
	PlateNumber string `json:"plateNumber"`
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	Color       string `json:"color"`
	VehicleType string `json:"vehicleType"`
	Year        int    `json:"year,omitempty"`
}

// License is a driving license
type License struct {
	Number     string    `json:"licenseNumber"`
	Class      string    `json:"licenseClass"`
	IssueDate  time.Time `json:"issueDate"`
	ExpiryDate time.Time `json:"expiryDate"`
	Image      string    `json:"image,omitempty"`
}

// Status is the verification state of each document
type Status struct {
	IDCard  VerificationStatus `json:"idCard"`
	Vehicle VerificationStatus `json:"vehicle"`
	License VerificationStatus `json:"license"`
	Note    string             `json:"note,omitempty"`
}

// Complete reports whether every document has been approved
func (s Status) Complete() bool {
	return s.IDCard == StatusApproved && s.Vehicle == StatusApproved && s.License == StatusApproved
}

// OCRResult is what the OCR service extracts from an ID card photo
type OCRResult struct {
	Number      string `json:"id"`
	FullName    string `json:"name"`
	DateOfBirth string `json:"dob"`
	Gender      string `json:"sex,omitempty"`
	Address     string `json:"address"`
	IssueDate   string `json:"issue_date,omitempty"`
	ExpiryDate  string `json:"doe,omitempty"`
	ProvinceID  int    `json:"provinceId,omitempty"`
	DistrictID  int    `json:"districtId,omitempty"`
	WardID      int    `json:"wardId,omitempty"`
}

// ocrDateLayout is the day-first layout printed on Vietnamese ID cards
const ocrDateLayout = "02/01/2006"

// ToIDCard converts extracted fields into a prefilled card. Unparseable dates stay zero.
func (r OCRResult) ToIDCard() IDCard {
	return IDCard{
		Number:      r.Number,
		FullName:    r.FullName,
		DateOfBirth: parseOCRDate(r.DateOfBirth),
		Gender:      r.Gender,
		Address:     r.Address,
		ProvinceID:  r.ProvinceID,
		DistrictID:  r.DistrictID,
		WardID:      r.WardID,
		IssueDate:   parseOCRDate(r.IssueDate),
		ExpiryDate:  parseOCRDate(r.ExpiryDate),
	}
}

func parseOCRDate(s string) time.Time {
	for _, layout := range []string{ocrDateLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
