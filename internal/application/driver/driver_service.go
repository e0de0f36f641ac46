// Package driver holds the driver onboarding use cases: ID card OCR and
// document submission.
package driver

import (
	"context"
	"io"
	"mime"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/driver"
	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// Endpoints
const (
	PathIDCard  = "/api/registerDriver/idCard"
	PathVehicle = "/api/registerDriver/vehicle"
	PathLicense = "/api/registerDriver/license"
	PathStatus  = "/api/registerDriver/status"
)

// ErrNoImage is returned when a scan is requested without image data
var ErrNoImage = shared.NewDomainError("NO_IMAGE", "Please choose a photo of the ID card")

// API is the part of the REST client the driver service uses
type API interface {
	Get(ctx context.Context, path string, out any, opts ...httpclient.CallOption) error
	Post(ctx context.Context, path string, body, out any, opts ...httpclient.CallOption) error
	Upload(ctx context.Context, path string, fields map[string]string, files []httpclient.File, out any, opts ...httpclient.CallOption) error
}

var _ API = (*httpclient.Client)(nil)

// Service submits driver documents for verification
type Service struct {
	api    API
	ocrURL string
	logger *zap.Logger
}

// NewService creates a new driver service. ocrURL may be absolute.
func NewService(api API, ocrURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, ocrURL: ocrURL, logger: logger}
}

// ScanIDCard uploads a photo of the ID card and returns the recognised fields
func (s *Service) ScanIDCard(ctx context.Context, filename string, image io.Reader) (*driver.IDCard, error) {
	if image == nil {
		return nil, ErrNoImage
	}
	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "image/jpeg"
	}

	var result driver.OCRResult
	err := s.api.Upload(ctx, s.ocrURL, nil, []httpclient.File{{
		Field:       "image",
		Name:        filepath.Base(filename),
		ContentType: ct,
		Content:     image,
	}}, &result, httpclient.WithRoute("ocr"))
	if err != nil {
		return nil, err
	}
	card := result.ToIDCard()
	s.logger.Debug("ID card scanned", zap.Bool("has_number", card.Number != ""))
	return &card, nil
}

// SubmitIDCard sends the ID card for verification
func (s *Service) SubmitIDCard(ctx context.Context, f form.IDCardForm) (*driver.Status, error) {
	return s.submit(ctx, PathIDCard, f)
}

// SubmitVehicle sends the vehicle for verification
func (s *Service) SubmitVehicle(ctx context.Context, f form.VehicleForm) (*driver.Status, error) {
	return s.submit(ctx, PathVehicle, f)
}

// SubmitLicense sends the driving license for verification
func (s *Service) SubmitLicense(ctx context.Context, f form.LicenseForm) (*driver.Status, error) {
	return s.submit(ctx, PathLicense, f)
}

// Status returns the verification state of every document
func (s *Service) Status(ctx context.Context) (*driver.Status, error) {
	var st driver.Status
	if err := s.api.Get(ctx, PathStatus, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) submit(ctx context.Context, path string, f any) (*driver.Status, error) {
	if err := validation.Check(f); err != nil {
		return nil, err
	}
	var st driver.Status
	if err := s.api.Post(ctx, path, f, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// IDCardForm prefills the ID card form from a scan. Address ids and any
// field the scan missed are left for the user.
func IDCardForm(card driver.IDCard) form.IDCardForm {
	return form.IDCardForm{
		Number:      card.Number,
		FullName:    card.FullName,
		DateOfBirth: card.DateOfBirth,
		Gender:      card.Gender,
		Address:     card.Address,
		ProvinceID:  card.ProvinceID,
		DistrictID:  card.DistrictID,
		WardID:      card.WardID,
		IssueDate:   card.IssueDate,
		ExpiryDate:  card.ExpiryDate,
	}
}
