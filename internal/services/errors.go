package services

import (
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by store integrations that are not built yet.
var ErrNotImplemented = errors.New("Função não implementada")

// ValidationError carries a message meant to be shown to the visitor as is.
// It is returned before any repository or session store call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
