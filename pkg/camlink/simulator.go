package camlink

import (
	"encoding/binary"
	"fmt"
)

// SimOp records one control transfer seen by the simulator, for inspection
// within tests.
type SimOp struct {
	Dir     string // "in" or "out"
	Req     uint8
	Value   uint16
	Index   uint16
	Payload int // payload or requested length in bytes
}

func (o SimOp) String() string {
	return fmt.Sprintf("%s 0x%02X val=0x%04X idx=0x%04X len=%d",
		o.Dir, o.Req, o.Value, o.Index, o.Payload)
}

// Simulator is an in-memory device model implementing ControlTransport. It
// models the flash array, the busy flag countdown, and the configuration
// session, and records every transfer so tests can assert on ordering.
type Simulator struct {
	// FirmwareID is the identification string the simulator answers with.
	FirmwareID []byte

	// FPGAIDCode is returned for ReqFpgaIDCode.
	FPGAIDCode uint32

	// DoneAfterConfig controls whether the DONE bit is reported once a
	// configuration session has streamed at least one chunk.
	DoneAfterConfig bool

	// BusyPolls is the number of nonzero busy reads reported after each
	// flash mutation before the flag clears.
	BusyPolls int

	// Flash is the simulated flash array, erased to 0xFF.
	Flash []byte

	// ConfigData accumulates streamed bitstream chunks in arrival order.
	ConfigData []byte

	ops        []SimOp
	busyLeft   int
	configOpen bool
	configured bool
}

// NewSimulator returns a simulator answering with the expected firmware
// signature, a blank (all 0xFF) flash, and a single busy poll per mutation.
func NewSimulator() *Simulator {
	flash := make([]byte, FlashSize)
	for i := range flash {
		flash[i] = 0xFF
	}
	return &Simulator{
		FirmwareID:      []byte(FirmwareSignature),
		FPGAIDCode:      0x012BB043, // LFE5U-25 as found on the board
		DoneAfterConfig: true,
		BusyPolls:       1,
		Flash:           flash,
	}
}

// Ops returns a copy of all recorded transfers.
func (s *Simulator) Ops() []SimOp {
	return append([]SimOp(nil), s.ops...)
}

// OpsFor returns recorded transfers matching the given request code.
func (s *Simulator) OpsFor(req uint8) []SimOp {
	var out []SimOp
	for _, op := range s.ops {
		if op.Req == req {
			out = append(out, op)
		}
	}
	return out
}

func (s *Simulator) ControlIn(req uint8, value, index uint16, length int) ([]byte, error) {
	s.ops = append(s.ops, SimOp{Dir: "in", Req: req, Value: value, Index: index, Payload: length})

	switch req {
	case ReqFirmwareID:
		return clip(s.FirmwareID, length), nil

	case ReqFpgaIDCode:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, s.FPGAIDCode)
		return clip(buf, length), nil

	case ReqFpgaStatus:
		return clip(s.statusWord(), length), nil

	case ReqConfigStop:
		if !s.configOpen {
			return nil, fmt.Errorf("sim: config stop without start")
		}
		s.configOpen = false
		s.configured = len(s.ConfigData) > 0
		return clip(s.statusWord(), length), nil

	case ReqFlashRead:
		addr := int(index) * FlashPage
		// The chip pads reads past the physical end with 0xFF.
		buf := make([]byte, length)
		for i := range buf {
			if addr+i < len(s.Flash) {
				buf[i] = s.Flash[addr+i]
			} else {
				buf[i] = 0xFF
			}
		}
		return buf, nil

	case ReqFlashBusy:
		if s.busyLeft > 0 {
			s.busyLeft--
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}

	return nil, fmt.Errorf("sim: unknown IN request 0x%02X", req)
}

func (s *Simulator) ControlOut(req uint8, value, index uint16, payload []byte) error {
	s.ops = append(s.ops, SimOp{Dir: "out", Req: req, Value: value, Index: index, Payload: len(payload)})

	switch req {
	case ReqConfigStart:
		s.configOpen = true
		s.configured = false
		s.ConfigData = nil
		return nil

	case ReqConfigData:
		if !s.configOpen {
			return fmt.Errorf("sim: config data without start")
		}
		s.ConfigData = append(s.ConfigData, payload...)
		return nil

	case ReqFlashErase:
		if value != EraseConfirm {
			return fmt.Errorf("sim: erase without confirm value (got 0x%04X)", value)
		}
		start := int(index) * FlashSector
		if start >= len(s.Flash) {
			return fmt.Errorf("sim: erase of sector %d beyond flash", index)
		}
		for i := start; i < start+FlashSector && i < len(s.Flash); i++ {
			s.Flash[i] = 0xFF
		}
		s.busyLeft = s.BusyPolls
		return nil

	case ReqFlashWrite:
		addr := int(index) * FlashPage
		if addr+len(payload) > len(s.Flash) {
			return fmt.Errorf("sim: write past end of flash at 0x%06X", addr)
		}
		// Programming can only clear bits; model the AND behavior the
		// boot-magic rewrite depends on.
		for i, b := range payload {
			s.Flash[addr+i] &= b
		}
		s.busyLeft = s.BusyPolls
		return nil
	}

	return fmt.Errorf("sim: unknown OUT request 0x%02X", req)
}

func (s *Simulator) Close() error { return nil }

func (s *Simulator) statusWord() []byte {
	var status uint32
	if s.configured && s.DoneAfterConfig {
		status |= FpgaStatusDone
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, status)
	return buf
}

func clip(b []byte, length int) []byte {
	if len(b) > length {
		b = b[:length]
	}
	return append([]byte(nil), b...)
}
