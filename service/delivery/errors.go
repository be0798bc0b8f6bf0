package delivery

import "errors"

var ErrInvalidInteraction = errors.New("interaction has neither notification id nor action")

// PermanentError marks a delivery failure that must not be retried.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func NewPermanentError(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
