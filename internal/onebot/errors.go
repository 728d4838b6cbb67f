package onebot

import "fmt"

// TransportError reports a failed action call: transport failure, non-2xx
// status, malformed ack or a gateway-side rejection. The underlying cause is
// preserved so plugins can log or degrade gracefully.
type TransportError struct {
	Action  string
	Status  int // HTTP status, 0 when the request never completed
	RetCode int // gateway retcode, 0 unless the gateway rejected the action
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("onebot action %s: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
