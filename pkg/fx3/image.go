// Package fx3 talks to the Cypress FX3 USB bootloader: the provisioning
// channel of last resort when the bridge firmware is not answering. It can
// push a firmware image into device RAM and transfer control to it.
package fx3

import (
	"encoding/binary"
	"fmt"
)

// Section is one contiguous load region of a firmware image.
type Section struct {
	Address uint32
	Data    []byte
}

// Image is a parsed FX3 boot image: load sections plus the entry point the
// bootloader jumps to once everything is in RAM.
type Image struct {
	Sections []Section
	Entry    uint32
}

// Total returns the number of payload bytes across all sections.
func (img *Image) Total() int {
	n := 0
	for _, s := range img.Sections {
		n += len(s.Data)
	}
	return n
}

const (
	imageTypeExecutable = 0xB0

	headerLen = 4
)

// ParseImage decodes a Cypress FX3 ".img" boot image: a "CY" header followed
// by (length, address, data) sections, terminated by a zero-length section
// whose address is the entry point, then a 32-bit checksum over all section
// data words.
func ParseImage(raw []byte) (*Image, error) {
	if len(raw) < headerLen {
		return nil, fmt.Errorf("fx3: image too short (%d bytes)", len(raw))
	}
	if raw[0] != 'C' || raw[1] != 'Y' {
		return nil, fmt.Errorf("fx3: bad image magic %q", raw[:2])
	}
	if raw[3] != imageTypeExecutable {
		return nil, fmt.Errorf("fx3: unsupported image type 0x%02X", raw[3])
	}

	img := &Image{}
	var sum uint32
	off := headerLen
	for {
		if off+8 > len(raw) {
			return nil, fmt.Errorf("fx3: truncated section header at offset %d", off)
		}
		words := binary.LittleEndian.Uint32(raw[off:])
		addr := binary.LittleEndian.Uint32(raw[off+4:])
		off += 8

		if words == 0 {
			img.Entry = addr
			break
		}

		size := int(words) * 4
		if off+size > len(raw) {
			return nil, fmt.Errorf("fx3: truncated section at 0x%08X (%d bytes)", addr, size)
		}
		data := raw[off : off+size]
		for i := 0; i < size; i += 4 {
			sum += binary.LittleEndian.Uint32(data[i:])
		}
		img.Sections = append(img.Sections, Section{
			Address: addr,
			Data:    append([]byte(nil), data...),
		})
		off += size
	}

	if off+4 > len(raw) {
		return nil, fmt.Errorf("fx3: missing image checksum")
	}
	if want := binary.LittleEndian.Uint32(raw[off:]); sum != want {
		return nil, fmt.Errorf("fx3: image checksum mismatch: computed 0x%08X, stored 0x%08X", sum, want)
	}
	if len(img.Sections) == 0 {
		return nil, fmt.Errorf("fx3: image has no load sections")
	}
	return img, nil
}
