package camlink

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

// ControlTransport issues vendor control transfers against one enumerated
// device. It carries no protocol knowledge beyond direction and framing;
// everything else lives in the engine.
type ControlTransport interface {
	// ControlIn issues a device-to-host request and returns at most length
	// bytes.
	ControlIn(req uint8, value, index uint16, length int) ([]byte, error)

	// ControlOut issues a host-to-device request carrying payload.
	ControlOut(req uint8, value, index uint16, payload []byte) error

	Close() error
}

// USBTransport backs ControlTransport with gousb EP0 transfers.
type USBTransport struct {
	ctx *gousb.Context
	dev *gousb.Device
}

// OpenUSB enumerates the device by VID/PID and prepares it for vendor
// control transfers. The bridge firmware answers on EP0, so no interface is
// claimed. A non-positive timeout selects DefaultTransferTimeout. Returns
// ErrDeviceNotFound when nothing matches.
func OpenUSB(vid, pid uint16, timeout time.Duration) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w (VID:0x%04X PID:0x%04X)", ErrDeviceNotFound, vid, pid)
	}

	// Not fatal on all platforms, continue anyway.
	dev.SetAutoDetach(true)

	dev.ControlTimeout = transferTimeout(timeout)

	return &USBTransport{ctx: ctx, dev: dev}, nil
}

// transferTimeout resolves the control-transfer deadline, falling back to
// DefaultTransferTimeout when no positive override is given.
func transferTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return DefaultTransferTimeout
}

func (t *USBTransport) ControlIn(req uint8, value, index uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := t.dev.Control(RequestTypeIn, req, value, index, buf)
	if err != nil {
		return nil, &TransportError{Op: "control-in", Req: req, Err: err}
	}
	return buf[:n], nil
}

func (t *USBTransport) ControlOut(req uint8, value, index uint16, payload []byte) error {
	if _, err := t.dev.Control(RequestTypeOut, req, value, index, payload); err != nil {
		return &TransportError{Op: "control-out", Req: req, Err: err}
	}
	return nil
}

// Close releases the device and USB context.
func (t *USBTransport) Close() error {
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
