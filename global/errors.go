package global

import (
	"fmt"
	"sync"
)

// SystemError carries an internal fault code alongside a human detail.
// The fork engine never lets one of these escape to a caller: local
// faults are always converted to a forwarded SIP response (see
// the Err* codes in package fork).
type SystemError struct {
	Code    int
	Details string
}

func NewError(code int, details string) error {
	return &SystemError{Code: code, Details: details}
}

func (se *SystemError) Error() string {
	return fmt.Sprintf("code: %d - details: %s", se.Code, se.Details)
}

// WtGrp tracks the process's long-running goroutines (UDP loop, CDR
// writer, HTTP server) so main can wait on a clean shutdown.
var WtGrp sync.WaitGroup
