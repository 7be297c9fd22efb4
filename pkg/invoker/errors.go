package invoker

import "errors"

var (
	ErrCannotExecute   = errors.New("order cannot be executed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidInstance = errors.New("target is not a registered market or vault")
	ErrMalformedAction = errors.New("malformed action")
	ErrStaleNonce      = errors.New("request nonce already used")
	ErrFeeShortfall    = errors.New("interface fees exceed available funds")
)
