package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Domain errors. Handlers map them to HTTP statuses with errors.Is/As;
// anything else is an internal failure.
var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient green stock")
	ErrInvalidAmount      = errors.New("amount must be a positive number of grams, at most 1000 tonnes")
	ErrInvalidWeight      = errors.New("initial weight must be a positive number of grams, at most 1000 tonnes")
	ErrInvalidScore       = errors.New("cupping score must be between 0 and 100")
	ErrInvalidReading     = errors.New("invalid telemetry reading")
	ErrInvalidFinish      = errors.New("final time must be an elapsed duration like 12:30")
	ErrInvalidCounter     = errors.New("stock type must be green or roasted")
	ErrAlreadyFinished    = errors.New("batch is already finished")
	ErrRoastInProgress    = errors.New("roaster already has a batch in progress")
	ErrUploadFailed       = errors.New("photo upload failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserHasBatches     = errors.New("user has roast batches and cannot be deleted")
)

// InsufficientStockError reports how much green stock was left when a debit
// was refused.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: %d g available, %d g requested", ErrInsufficientStock, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

func notFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// translateNotFound turns gorm.ErrRecordNotFound into a domain NotFound for entity.
func translateNotFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity)
	}
	return err
}
