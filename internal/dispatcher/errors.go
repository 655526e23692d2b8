package dispatcher

import (
	"errors"
	"fmt"

	"github.com/arko-chat/pedometer/internal/models"
	"github.com/arko-chat/pedometer/internal/motion"
)

// Error is a failure that has already been classified for the script side.
type Error struct {
	Code models.ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func unavailable(format string, args ...any) error {
	return &Error{Code: models.CodeUnavailable, Err: fmt.Errorf(format, args...)}
}

func rangeError(format string, args ...any) error {
	return &Error{Code: models.CodeRange, Err: fmt.Errorf(format, args...)}
}

var ErrAlreadyActive = &Error{
	Code: models.CodeAlreadyActive,
	Err:  errors.New("pedometer updates already running"),
}

// classify maps any error to the code the caller will see. Platform
// sentinels from package motion are recognised anywhere in the chain.
func classify(err error) models.ErrorCode {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, motion.ErrUnavailable):
		return models.CodeUnavailable
	case errors.Is(err, motion.ErrPermissionDenied):
		return models.CodePermissionDenied
	default:
		return models.CodePlatform
	}
}

func payload(err error) *models.ErrorPayload {
	return &models.ErrorPayload{Code: classify(err), Message: err.Error()}
}
