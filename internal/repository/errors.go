package repository

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrDuplicateReference = errors.New("external reference already in use")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrTicketNotValid     = errors.New("ticket is not valid for entry")
	ErrEventNotFound      = errors.New("event not found")
	ErrForbidden          = errors.New("forbidden")
	ErrSellerNotLinked    = errors.New("seller has no linked payment account")
	ErrSellerTokenExpired = errors.New("seller payment account session expired")
)
