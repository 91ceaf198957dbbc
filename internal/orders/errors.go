package orders

import "fmt"

// FlowError is a domain failure with an HTTP-like status. Handlers map it
// straight onto the response; anything else is a 500 with no detail leaked.
type FlowError struct {
	Status  int
	Message string
}

func (e *FlowError) Error() string { return e.Message }

func Flowf(status int, format string, args ...any) *FlowError {
	return &FlowError{Status: status, Message: fmt.Sprintf(format, args...)}
}
