package domain

import "fmt"

// StoreError reports that the backing store was unavailable while recording
// progress or analytics. It is the only exceptional failure of the delivery
// path; per-recipient failures travel as EmailSendResult values.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }
