package camlink

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProgressFunc receives the cumulative byte count after each transferred
// chunk. Implementations should return quickly; they run on the transfer
// path.
type ProgressFunc func(bytes int)

// Device is the protocol engine for one identified Cam Link. All operations
// are sequences of blocking control transfers; a mutex serializes callers so
// partial flash writes cannot interleave.
type Device struct {
	mu  sync.Mutex
	t   ControlTransport
	log *zap.SugaredLogger

	busyTimeout time.Duration
}

// DeviceOption adjusts engine defaults.
type DeviceOption func(*Device)

// WithBusyTimeout bounds the busy poll after flash mutations.
func WithBusyTimeout(d time.Duration) DeviceOption {
	return func(dev *Device) {
		if d > 0 {
			dev.busyTimeout = d
		}
	}
}

// Open verifies the firmware identity over t and returns a usable engine.
// The identity check is mandatory: no engine is handed out for a device that
// does not answer with the expected signature, so every other method can
// assume it is talking to the bridge firmware.
func Open(t ControlTransport, log *zap.SugaredLogger, opts ...DeviceOption) (*Device, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &Device{
		t:           t,
		log:         log,
		busyTimeout: DefaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.identify(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) identify() error {
	id, err := d.t.ControlIn(ReqFirmwareID, 0, 0, len(FirmwareSignature))
	if err != nil {
		return err
	}
	if !bytes.Equal(id, []byte(FirmwareSignature)) {
		return &IdentityMismatchError{Got: id}
	}
	d.log.Debugw("device identified", "signature", string(id))
	return nil
}

// Close releases the underlying transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t.Close()
}

// IDCode reads the FPGA's 32-bit identification code.
func (d *Device) IDCode(ctx context.Context) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	buf, err := d.t.ControlIn(ReqFpgaIDCode, 0, 0, 4)
	if err != nil {
		return 0, err
	}
	if len(buf) != 4 {
		return 0, fmt.Errorf("camlink: short IDCODE response: %d bytes", len(buf))
	}
	return binary.BigEndian.Uint32(buf), nil
}

// Status reads the raw FPGA status word.
func (d *Device) Status(ctx context.Context) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return d.readStatusWord(ReqFpgaStatus)
}

func (d *Device) readStatusWord(req uint8) (uint32, error) {
	buf, err := d.t.ControlIn(req, 0, 0, 4)
	if err != nil {
		return 0, err
	}
	if len(buf) != 4 {
		return 0, fmt.Errorf("camlink: short status response: %d bytes", len(buf))
	}
	return binary.BigEndian.Uint32(buf), nil
}

// Configure streams a bitstream into FPGA configuration memory. The session
// is start → ordered chunks → stop; it is not resumable, a failure anywhere
// leaves the FPGA in an undefined state and the caller must start over.
// After the stop request the returned status word must report DONE, else
// ErrConfigIncomplete.
func (d *Device) Configure(ctx context.Context, bitstream []byte, progress ProgressFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(bitstream) == 0 {
		return fmt.Errorf("camlink: empty bitstream")
	}

	d.log.Debugw("starting FPGA configuration", "bytes", len(bitstream))
	if err := d.t.ControlOut(ReqConfigStart, 0, 0, nil); err != nil {
		return err
	}

	sent := 0
	for sent < len(bitstream) {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := bitstream[sent:]
		if len(chunk) > ConfigChunk {
			chunk = chunk[:ConfigChunk]
		}
		if err := d.t.ControlOut(ReqConfigData, 0, 0, chunk); err != nil {
			return err
		}
		sent += len(chunk)
		if progress != nil {
			progress(sent)
		}
	}

	status, err := d.readStatusWord(ReqConfigStop)
	if err != nil {
		return err
	}
	d.log.Debugw("FPGA configuration stopped", "status", fmt.Sprintf("0x%08X", status))
	if status&FpgaStatusDone == 0 {
		return fmt.Errorf("%w (status 0x%08X)", ErrConfigIncomplete, status)
	}
	return nil
}

// ReadFlash reads length bytes of SPI flash starting at addr. The range must
// lie inside the declared flash size; the chip pads reads past the physical
// end, and silently returning pad bytes would mask caller bugs. addr must be
// page-aligned: the request's index field cannot express finer granularity.
func (d *Device) ReadFlash(ctx context.Context, addr, length int, progress ProgressFunc) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkFlashAccess(addr, length); err != nil {
		return nil, err
	}

	d.log.Debugw("reading flash", "addr", addr, "len", length)
	out := make([]byte, 0, length)
	for len(out) < length {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := length - len(out)
		if want > FlashChunk {
			want = FlashChunk
		}
		buf, err := d.t.ControlIn(ReqFlashRead, 0, pageIndex(addr), want)
		if err != nil {
			return nil, err
		}
		if len(buf) != want {
			return nil, fmt.Errorf("camlink: short flash read at 0x%06X: got %d, want %d",
				addr, len(buf), want)
		}
		out = append(out, buf...)
		addr += want
		if progress != nil {
			progress(len(out))
		}
	}
	return out, nil
}

// EraseFlash erases every sector covering [addr, addr+length). Each sector in
// the stride is erased exactly once per call; overlapping calls will erase
// shared sectors again.
func (d *Device) EraseFlash(ctx context.Context, addr, length int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eraseRange(ctx, addr, length)
}

func (d *Device) eraseRange(ctx context.Context, addr, length int) error {
	if err := checkFlashRange(addr, length); err != nil {
		return err
	}

	first := addr / FlashSector
	last := (addr + length - 1) / FlashSector
	d.log.Debugw("erasing flash", "first_sector", first, "last_sector", last)
	for sector := first; sector <= last; sector++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.t.ControlOut(ReqFlashErase, EraseConfirm, uint16(sector), nil); err != nil {
			return err
		}
		if err := d.waitFlashIdle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WriteFlash writes data to flash starting at addr, which must be
// page-aligned. The covering sector range is always erased first; this
// protocol has no write-without-erase path. Each chunk is followed by a busy
// wait before the next is sent.
func (d *Device) WriteFlash(ctx context.Context, addr int, data []byte, progress ProgressFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkFlashAccess(addr, len(data)); err != nil {
		return err
	}
	if err := d.eraseRange(ctx, addr, len(data)); err != nil {
		return err
	}
	return d.writeChunks(ctx, addr, data, progress)
}

func (d *Device) writeChunks(ctx context.Context, addr int, data []byte, progress ProgressFunc) error {
	d.log.Debugw("writing flash", "addr", addr, "len", len(data))
	written := 0
	for written < len(data) {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := data[written:]
		if len(chunk) > FlashChunk {
			chunk = chunk[:FlashChunk]
		}
		if err := d.t.ControlOut(ReqFlashWrite, 0, pageIndex(addr), chunk); err != nil {
			return err
		}
		if err := d.waitFlashIdle(ctx); err != nil {
			return err
		}
		addr += len(chunk)
		written += len(chunk)
		if progress != nil {
			progress(written)
		}
	}
	return nil
}

// ClearBootMagic zeroes the two boot-magic bytes at flash offset 0 so the
// firmware takes the fallback boot path on next power-up. The first page is
// read back and rewritten with only those bytes changed, without an erase
// cycle: programming 0 bits into a page is destructive only to the bits
// written, so the rest of the boot page survives. This is the one write that
// bypasses the erase-before-write rule.
func (d *Device) ClearBootMagic(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	page, err := d.t.ControlIn(ReqFlashRead, 0, 0, FlashPage)
	if err != nil {
		return err
	}
	if len(page) != FlashPage {
		return fmt.Errorf("camlink: short boot page read: %d bytes", len(page))
	}
	for i := 0; i < BootMagicSize; i++ {
		page[i] = 0
	}
	if err := d.t.ControlOut(ReqFlashWrite, 0, 0, page); err != nil {
		return err
	}
	return d.waitFlashIdle(ctx)
}

// waitFlashIdle polls the busy flag until it clears. The poll is bounded;
// an unbounded spin would hang the process when hardware fails mid-erase.
func (d *Device) waitFlashIdle(ctx context.Context) error {
	deadline := time.Now().Add(d.busyTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, err := d.t.ControlIn(ReqFlashBusy, 0, 0, 1)
		if err != nil {
			return err
		}
		if len(buf) == 1 && buf[0] == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v", ErrFlashTimeout, d.busyTimeout)
		}
		time.Sleep(busyPollInterval)
	}
}

// pageIndex converts a byte address to the 256-byte page index carried in
// the control request's index field. The address must already be
// page-aligned; the index field cannot carry the remainder.
func pageIndex(addr int) uint16 {
	return uint16(addr / FlashPage)
}

func checkFlashRange(addr, length int) error {
	if addr < 0 || length <= 0 || addr+length > FlashSize {
		return fmt.Errorf("camlink: flash range [0x%X, +%d) out of bounds (flash is %d bytes)",
			addr, length, FlashSize)
	}
	return nil
}

// checkFlashAccess guards read/write addresses: in-bounds and page-aligned.
// An unaligned address would be floored to the containing page by the index
// encoding, silently transferring the wrong bytes.
func checkFlashAccess(addr, length int) error {
	if err := checkFlashRange(addr, length); err != nil {
		return err
	}
	if addr%FlashPage != 0 {
		return fmt.Errorf("camlink: flash address 0x%X is not aligned to the %d-byte page size",
			addr, FlashPage)
	}
	return nil
}
