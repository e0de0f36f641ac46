package persistence

import (
	"errors"

	"github.com/logiride/client/internal/domain/shared"
	"gorm.io/gorm"
)

// ErrDuplicate is returned when a unique column already holds the value
var ErrDuplicate = shared.NewDomainError("DUPLICATE", "Record already exists")

// translate maps gorm sentinels onto domain errors
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
