package payments

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrWalletNotOpen   = errors.New("wallet not open")
	ErrInvalidPayment  = errors.New("invalid payment")
)

// InvalidPaymentError names the offending field of a rejected payment.
type InvalidPaymentError struct {
	Field  string
	Reason string
}

func (e *InvalidPaymentError) Error() string {
	return fmt.Sprintf("invalid payment %s: %s", e.Field, e.Reason)
}

func (e *InvalidPaymentError) Unwrap() error { return ErrInvalidPayment }

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPayment)
}

// IsNotFound returns true if the error indicates a missing payment or wallet.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrWalletNotOpen)
}
