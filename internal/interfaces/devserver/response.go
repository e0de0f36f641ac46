package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/persistence"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// Response is the envelope every REST endpoint answers with
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: http.StatusOK, Message: "success", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

// statusOf maps domain error codes onto HTTP statuses
var statusOf = map[string]int{
	shared.ErrNotFound.Code:       http.StatusNotFound,
	shared.ErrInvalidInput.Code:   http.StatusBadRequest,
	shared.ErrUnauthorized.Code:   http.StatusForbidden,
	shared.ErrInvalidState.Code:   http.StatusConflict,
	persistence.ErrDuplicate.Code: http.StatusConflict,
	"INSUFFICIENT_BALANCE":        http.StatusUnprocessableEntity,
}

// handleError answers err, exposing domain messages and hiding everything else
func handleError(c *gin.Context, err error) {
	var de *shared.DomainError
	if errors.As(err, &de) {
		status, ok := statusOf[de.Code]
		if !ok {
			status = http.StatusUnprocessableEntity
		}
		fail(c, status, de.Message)
		return
	}
	logger.GetGinLogger(c, nil).Error("Request failed", zap.Error(err))
	fail(c, http.StatusInternalServerError, "Internal server error")
}

// bind decodes and validates the JSON body into v. It answers the request
// and returns false when the body is rejected.
func bind(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fail(c, http.StatusBadRequest, "Malformed request body")
		return false
	}
	fields := form.Errors{}
	for _, fe := range verrs {
		fields.Add(fe.Field(), validation.Message(fe))
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields.Fields() {
		parts = append(parts, f+": "+fields[f])
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Code:    http.StatusBadRequest,
		Message: strings.Join(parts, "; "),
		Data:    fields,
	})
	return false
}
