package camlink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Bootloader is the secondary provisioning channel used when the device is
// not answering on the normal transport: a bootloader-mode device that can
// accept a firmware image and jump into it. The image format is opaque here.
type Bootloader interface {
	Program(ctx context.Context, image []byte, progress ProgressFunc) error
	RunUserProgram(ctx context.Context) error
	Close() error
}

// DefaultSettleDelay is how long the orchestrator waits for the device to
// re-enumerate after the bootloader jumps into the freshly loaded firmware.
const DefaultSettleDelay = 3 * time.Second

// Recovery locates the device, re-provisioning it through the bootloader
// channel when it is absent. The retry policy is deliberately asymmetric:
// identify once, recover once, identify once more. Nothing loops, so total
// recovery latency is bounded even when hardware is genuinely missing.
type Recovery struct {
	// OpenDevice attempts identification over the normal transport.
	OpenDevice func() (*Device, error)

	// OpenBootloader opens the bootloader-mode device.
	OpenBootloader func() (Bootloader, error)

	// Image is the known-good secondary firmware image.
	Image []byte

	// Settle overrides DefaultSettleDelay when positive.
	Settle time.Duration

	// Progress, when set, receives byte counts while the image is pushed.
	Progress ProgressFunc

	Log *zap.SugaredLogger
}

type recoveryState int

const (
	stateProbe recoveryState = iota
	stateReprovision
	stateReprobe
	stateReady
	stateUnrecoverable
)

// EnsureDevice returns an identified device handle, running at most one
// re-provision cycle. On failure the returned error wraps ErrDeviceNotFound.
func (r *Recovery) EnsureDevice(ctx context.Context) (*Device, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var (
		dev     *Device
		lastErr error
	)
	for state := stateProbe; ; {
		switch state {
		case stateProbe:
			dev, lastErr = r.OpenDevice()
			if lastErr == nil {
				state = stateReady
				break
			}
			log.Infow("device not reachable, attempting recovery", "error", lastErr)
			state = stateReprovision

		case stateReprovision:
			if lastErr = r.reprovision(ctx, log); lastErr != nil {
				state = stateUnrecoverable
				break
			}
			state = stateReprobe

		case stateReprobe:
			if lastErr = r.settle(ctx); lastErr != nil {
				return nil, lastErr
			}
			dev, lastErr = r.OpenDevice()
			if lastErr == nil {
				state = stateReady
			} else {
				state = stateUnrecoverable
			}

		case stateReady:
			return dev, nil

		case stateUnrecoverable:
			return nil, fmt.Errorf("%w: recovery failed: %v", ErrDeviceNotFound, lastErr)
		}
	}
}

func (r *Recovery) reprovision(ctx context.Context, log *zap.SugaredLogger) error {
	if len(r.Image) == 0 {
		return fmt.Errorf("no recovery firmware image available")
	}

	bl, err := r.OpenBootloader()
	if err != nil {
		return fmt.Errorf("open bootloader: %w", err)
	}
	defer bl.Close()

	log.Infow("loading recovery firmware", "bytes", len(r.Image))
	if err := bl.Program(ctx, r.Image, r.Progress); err != nil {
		return fmt.Errorf("program bootloader image: %w", err)
	}
	if err := bl.RunUserProgram(ctx); err != nil {
		return fmt.Errorf("run user program: %w", err)
	}
	return nil
}

// settle waits for the device to drop off the bus and come back with the new
// firmware before the single re-probe.
func (r *Recovery) settle(ctx context.Context) error {
	delay := r.Settle
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
