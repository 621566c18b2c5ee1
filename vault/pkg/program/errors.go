package program

import "errors"

// Error is a terminal transition failure. Only Name and Code are meant to reach callers.
type Error struct {
	Code uint32
	Name string
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

var (
	ErrAlreadyInitialized     = &Error{Code: 6000, Name: "AlreadyInitialized", msg: "vault already initialized"}
	ErrAllocationFailed       = &Error{Code: 6001, Name: "AllocationFailed", msg: "vault allocation failed"}
	ErrTransferFailed         = &Error{Code: 6002, Name: "TransferFailed", msg: "transfer failed"}
	ErrOverflow               = &Error{Code: 6003, Name: "Overflow", msg: "counter overflow"}
	ErrUnauthorizedWithdrawal = &Error{Code: 6004, Name: "UnauthorizedWithdrawal", msg: "unauthorized withdrawal"}
	ErrInsufficientFunds      = &Error{Code: 6005, Name: "InsufficientFunds", msg: "insufficient funds"}
	ErrArithmeticUnderflow    = &Error{Code: 6006, Name: "ArithmeticUnderflow", msg: "arithmetic underflow"}
	ErrInvalidVaultHandle     = &Error{Code: 6007, Name: "InvalidVaultHandle", msg: "invalid vault handle"}
	ErrMissingSignature       = &Error{Code: 6008, Name: "MissingSignature", msg: "missing required signature"}
)

// AsError returns the program error kind wrapped in err, if any.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
