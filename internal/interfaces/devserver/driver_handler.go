package devserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/driver"
	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/persistence"
)

// maxOCRImage bounds the uploaded ID card photo
const maxOCRImage = 8 << 20

// sampleCard is what the fake OCR reads from any photo
var sampleCard = driver.OCRResult{
	Number:      "079203001234",
	FullName:    "NGUYỄN VĂN AN",
	DateOfBirth: "15/03/1990",
	Gender:      "MALE",
	Address:     "12 Nguyễn Huệ, Bến Nghé, Quận 1, TP. Hồ Chí Minh",
	IssueDate:   "01/06/2021",
	ExpiryDate:  "15/03/2030",
	ProvinceID:  79,
	DistrictID:  760,
	WardID:      26734,
}

func (s *Server) submitIDCard(c *gin.Context) {
	var f form.IDCardForm
	if !bind(c, &f) {
		return
	}
	card := driver.IDCard{
		Number:      f.Number,
		FullName:    form.NormalizeName(f.FullName),
		DateOfBirth: f.DateOfBirth,
		Gender:      f.Gender,
		Address:     f.Address,
		ProvinceID:  f.ProvinceID,
		DistrictID:  f.DistrictID,
		WardID:      f.WardID,
		IssueDate:   f.IssueDate,
		ExpiryDate:  f.ExpiryDate,
	}
	s.saveDocument(c, "idCard", func() (*persistence.DriverProfileModel, error) {
		return s.store.Content.SaveIDCard(c.Request.Context(), accountID(c), card)
	})
}

func (s *Server) submitVehicle(c *gin.Context) {
	var f form.VehicleForm
	if !bind(c, &f) {
		return
	}
	v := driver.Vehicle{
		PlateNumber: f.PlateNumber,
		Brand:       f.Brand,
		Model:       f.Model,
		Color:       f.Color,
		VehicleType: f.VehicleType,
		Year:        f.Year,
	}
	s.saveDocument(c, "vehicle", func() (*persistence.DriverProfileModel, error) {
		return s.store.Content.SaveVehicle(c.Request.Context(), accountID(c), v)
	})
}

func (s *Server) submitLicense(c *gin.Context) {
	var f form.LicenseForm
	if !bind(c, &f) {
		return
	}
	l := driver.License{
		Number:     f.Number,
		Class:      f.Class,
		IssueDate:  f.IssueDate,
		ExpiryDate: f.ExpiryDate,
	}
	s.saveDocument(c, "license", func() (*persistence.DriverProfileModel, error) {
		return s.store.Content.SaveLicense(c.Request.Context(), accountID(c), l)
	})
}

func (s *Server) saveDocument(c *gin.Context, kind string, save func() (*persistence.DriverProfileModel, error)) {
	m, err := save()
	if err != nil {
		handleError(c, err)
		return
	}
	logger.GetGinLogger(c, s.logger).Info("Driver document submitted", zap.String("document", kind))
	success(c, m.Status())
}

func (s *Server) driverStatus(c *gin.Context) {
	m, err := s.store.Content.DriverProfile(c.Request.Context(), accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, m.Status())
}

func (s *Server) scanIDCard(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxOCRImage)
	file, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, "image is required")
		return
	}
	if file.Size == 0 {
		fail(c, http.StatusBadRequest, "image is empty")
		return
	}
	logger.GetGinLogger(c, s.logger).Debug("Scanning ID card",
		zap.String("filename", file.Filename),
		zap.Int64("bytes", file.Size),
	)
	success(c, sampleCard)
}
