package fx3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/ranma/camlink-re/pkg/camlink"
)

const (
	// Cypress FX3 USB bootloader identifiers
	VendorIDCypress     = 0x04B4
	ProductIDFX3BootLdr = 0x00F3

	// reqFirmwareTransfer moves data to/from device RAM; a zero-length
	// transfer to an address jumps there.
	reqFirmwareTransfer = 0xA0

	requestTypeOut = 0x40
	requestTypeIn  = 0xC0

	// maxTransfer is the largest payload the boot ROM accepts per control
	// transfer.
	maxTransfer = 4096

	defaultTimeout = 5 * time.Second
)

// ramControl abstracts the bootloader's RAM read/write channel so the
// download logic can be exercised without hardware.
type ramControl interface {
	write(addr uint32, data []byte) error
	read(addr uint32, length int) ([]byte, error)
	jump(addr uint32) error
	Close() error
}

// Bootloader drives the FX3 boot ROM over EP0. It satisfies
// camlink.Bootloader: the orchestrator hands it an opaque image blob and the
// entry point comes out of the image itself.
type Bootloader struct {
	rc    ramControl
	entry uint32
}

// Open enumerates a bootloader-mode FX3 and returns a Bootloader for it.
func Open() (*Bootloader, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(VendorIDCypress), gousb.ID(ProductIDFX3BootLdr))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("fx3: no bootloader-mode device (VID:0x%04X PID:0x%04X)",
			VendorIDCypress, ProductIDFX3BootLdr)
	}
	dev.SetAutoDetach(true)
	dev.ControlTimeout = defaultTimeout

	return &Bootloader{rc: &usbRAMControl{ctx: ctx, dev: dev}}, nil
}

// Program parses image, downloads every section into device RAM with
// read-back verification, and remembers the entry point for RunUserProgram.
func (b *Bootloader) Program(ctx context.Context, image []byte, progress camlink.ProgressFunc) error {
	img, err := ParseImage(image)
	if err != nil {
		return err
	}

	sent := 0
	for _, sec := range img.Sections {
		addr := sec.Address
		data := sec.Data
		for len(data) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk := data
			if len(chunk) > maxTransfer {
				chunk = chunk[:maxTransfer]
			}
			if err := b.rc.write(addr, chunk); err != nil {
				return fmt.Errorf("fx3: write at 0x%08X: %w", addr, err)
			}
			back, err := b.rc.read(addr, len(chunk))
			if err != nil {
				return fmt.Errorf("fx3: verify read at 0x%08X: %w", addr, err)
			}
			if !bytes.Equal(back, chunk) {
				return fmt.Errorf("fx3: verify mismatch at 0x%08X", addr)
			}
			addr += uint32(len(chunk))
			data = data[len(chunk):]
			sent += len(chunk)
			if progress != nil {
				progress(sent)
			}
		}
	}

	b.entry = img.Entry
	return nil
}

// RunUserProgram transfers control to the entry point of the last programmed
// image. The device drops off the bus and re-enumerates under its new
// firmware; the error from the final control transfer is ignored when the
// disconnect races the status stage.
func (b *Bootloader) RunUserProgram(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.entry == 0 {
		return fmt.Errorf("fx3: no image programmed")
	}
	// The boot ROM may reset before completing the transfer.
	_ = b.rc.jump(b.entry)
	return nil
}

func (b *Bootloader) Close() error { return b.rc.Close() }

type usbRAMControl struct {
	ctx *gousb.Context
	dev *gousb.Device
}

func (u *usbRAMControl) write(addr uint32, data []byte) error {
	_, err := u.dev.Control(requestTypeOut, reqFirmwareTransfer,
		uint16(addr), uint16(addr>>16), data)
	return err
}

func (u *usbRAMControl) read(addr uint32, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := u.dev.Control(requestTypeIn, reqFirmwareTransfer,
		uint16(addr), uint16(addr>>16), buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (u *usbRAMControl) jump(addr uint32) error {
	_, err := u.dev.Control(requestTypeOut, reqFirmwareTransfer,
		uint16(addr), uint16(addr>>16), nil)
	return err
}

func (u *usbRAMControl) Close() error {
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		u.ctx.Close()
		u.ctx = nil
	}
	return nil
}
