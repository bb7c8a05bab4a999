package sender

import "fmt"

// TransportError wraps one rejected transport attempt.
type TransportError struct {
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DeliveryFailedError is returned once every retry has been used. It
// unwraps to the last TransportError.
type DeliveryFailedError struct {
	MessageID string
	Attempts  int
	Last      *TransportError
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("deliver %s: failed after %d attempts: %v", e.MessageID, e.Attempts, e.Last.Err)
}

func (e *DeliveryFailedError) Unwrap() error { return e.Last }
