package gateway

import "fmt"

// Error is a terminal failure of one gateway call: an HTTP status error,
// a malformed body, or a gateway-level rejection. Transport errors are
// retried inside the client and surface here only once the retry budget
// is spent.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}
