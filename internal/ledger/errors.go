package ledger

import (
	"golang.org/x/xerrors"
)

// MarketError is a business rejection returned by a ledger operation.
// Codes match the deployed contract interface.
type MarketError struct {
	Code    int
	Kind    string
	Message string
}

func (e *MarketError) Error() string {
	return e.Message
}

var (
	ErrNotFound            = &MarketError{Code: 101, Kind: "NotFound", Message: "record not found"}
	ErrUnauthorized        = &MarketError{Code: 102, Kind: "Unauthorized", Message: "caller is not authorized"}
	ErrAlreadyExists       = &MarketError{Code: 103, Kind: "AlreadyExists", Message: "record already exists"}
	ErrInvalidAmount       = &MarketError{Code: 104, Kind: "InvalidAmount", Message: "invalid amount"}
	ErrInsufficientBalance = &MarketError{Code: 105, Kind: "InsufficientBalance", Message: "insufficient balance"}
)

var marketErrors = []*MarketError{
	ErrNotFound,
	ErrUnauthorized,
	ErrAlreadyExists,
	ErrInvalidAmount,
	ErrInsufficientBalance,
}

// Infrastructure errors. These never carry a market code.
var (
	ErrReadOnly = xerrors.New("write attempted in a read-only transaction")
	ErrConflict = xerrors.New("concurrent modification, transaction aborted")
)

// CodeOf returns the market code carried by err, or 0 when err is not a
// business rejection.
func CodeOf(err error) int {
	var me *MarketError
	if xerrors.As(err, &me) {
		return me.Code
	}
	return 0
}

// ErrorByCode maps a market code back to its sentinel. Unknown codes yield nil.
func ErrorByCode(code int) *MarketError {
	for _, e := range marketErrors {
		if e.Code == code {
			return e
		}
	}
	return nil
}
