package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrItemNotFound        = errors.New("certificate item not found")
	ErrEntryNotFound       = errors.New("ledger entry not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidPort         = errors.New("port has no allocated quantity")
	ErrOverdrawn           = errors.New("batch would overdraw a balance")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
