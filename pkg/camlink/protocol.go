package camlink

import "time"

const (
	// Cam Link USB identifiers
	VendorIDElgato   = 0x0FD9
	ProductIDCamLink = 0x0066

	// FirmwareSignature is the identification string returned by a device
	// running the replacement FPGA-bridge firmware. Any other response means
	// the stock firmware (or nothing at all) is answering EP0.
	FirmwareSignature = "CAMFPGA1"
)

// Vendor control request codes handled by the bridge firmware on EP0.
const (
	ReqFirmwareID  = 0xB0 // IN, 8-byte identification string
	ReqFpgaIDCode  = 0xB1 // IN, 4-byte big-endian IDCODE
	ReqFpgaStatus  = 0xB2 // IN, 4-byte big-endian status word
	ReqConfigStart = 0xB3 // OUT, no payload
	ReqConfigData  = 0xB4 // OUT, one bitstream chunk
	ReqConfigStop  = 0xB5 // IN, 4-byte big-endian status word
	ReqFlashWrite  = 0xB8 // OUT, one data chunk, index = address/256
	ReqFlashRead   = 0xB9 // IN, one data chunk, index = address/256
	ReqFlashBusy   = 0xBA // IN, 1-byte busy flag
	ReqFlashErase  = 0xBB // OUT, index = sector number, value = confirm
)

// Request-type bytes for vendor device requests.
const (
	RequestTypeOut = 0x40 // vendor | device | host-to-device
	RequestTypeIn  = 0xC0 // vendor | device | device-to-host
)

// SPI flash geometry. Fixed by the W25Q32 on the board, not negotiated.
const (
	FlashSize   = 4 * 1024 * 1024
	FlashChunk  = 4096
	FlashSector = 64 * 1024
	FlashPage   = 256

	// EraseConfirm guards ReqFlashErase against stray control transfers.
	EraseConfirm = 0x4552
)

// ConfigChunk is the payload size per ReqConfigData transfer.
const ConfigChunk = 4096

// FpgaStatusDone is set in the status word once the FPGA has accepted a
// complete bitstream.
const FpgaStatusDone = 1 << 0

// BootMagicSize is the number of bytes at flash offset 0 that steer the
// firmware's boot path. Clearing them forces the fallback loader.
const BootMagicSize = 2

const (
	// DefaultTransferTimeout bounds a single control transfer.
	DefaultTransferTimeout = 5 * time.Second

	// DefaultBusyTimeout bounds the busy poll after a flash mutation. A
	// sector erase finishes in well under a second on healthy hardware.
	DefaultBusyTimeout = 3 * time.Second

	// busyPollInterval spaces consecutive busy polls so a slow erase does
	// not saturate the bus.
	busyPollInterval = 100 * time.Microsecond
)
