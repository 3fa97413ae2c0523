package camlink

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when no device answers, including after
	// a recovery attempt has run its single re-provision cycle.
	ErrDeviceNotFound = errors.New("camlink: device not found")

	// ErrFlashTimeout is returned when the flash busy flag does not clear
	// within the configured deadline.
	ErrFlashTimeout = errors.New("camlink: flash busy flag did not clear")

	// ErrConfigIncomplete is returned when the FPGA status word reports the
	// DONE bit unset after a full bitstream has been streamed.
	ErrConfigIncomplete = errors.New("camlink: FPGA configuration did not complete")
)

// IdentityMismatchError reports a device that enumerated with the expected
// VID/PID but answered the identification request with the wrong signature.
type IdentityMismatchError struct {
	Got []byte
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("camlink: firmware identity mismatch: got %q, want %q",
		e.Got, FirmwareSignature)
}

// TransportError wraps a failed control transfer. Transport errors are fatal
// for the current operation and are never retried by the engine.
type TransportError struct {
	Op  string
	Req uint8
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("camlink: %s request 0x%02X failed: %v", e.Op, e.Req, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
