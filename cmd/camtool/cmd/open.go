package cmd

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ranma/camlink-re/internal/config"
	"github.com/ranma/camlink-re/pkg/camlink"
	"github.com/ranma/camlink-re/pkg/fx3"
)

// loadConfig resolves the configuration file: an explicit --config path must
// exist, the default path may be absent.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile, true)
	}
	return config.Load(config.DefaultPath, false)
}

// openEngine yields an identified protocol engine, running the recovery
// orchestrator when hardware is selected. With --sim it wraps a fresh
// in-memory simulator instead.
func openEngine(ctx context.Context, log *zap.SugaredLogger) (*camlink.Device, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if useSim {
		log.Debugw("using device simulator")
		return camlink.Open(camlink.NewSimulator(), log, camlink.WithBusyTimeout(cfg.BusyTimeout()))
	}

	openDevice := func() (*camlink.Device, error) {
		t, err := camlink.OpenUSB(camlink.VendorIDElgato, camlink.ProductIDCamLink, cfg.TransferTimeout())
		if err != nil {
			return nil, err
		}
		dev, err := camlink.Open(t, log, camlink.WithBusyTimeout(cfg.BusyTimeout()))
		if err != nil {
			t.Close()
			return nil, err
		}
		return dev, nil
	}

	// A missing image only matters once the recovery path actually runs.
	image, err := os.ReadFile(cfg.RecoveryImage)
	if err != nil {
		log.Debugw("recovery image not loaded", "path", cfg.RecoveryImage, "error", err)
		image = nil
	}

	rec := &camlink.Recovery{
		OpenDevice: openDevice,
		OpenBootloader: func() (camlink.Bootloader, error) {
			return fx3.Open()
		},
		Image:    image,
		Settle:   cfg.SettleDelay(),
		Progress: progressPrinter(len(image), "recovery firmware"),
		Log:      log,
	}
	return rec.EnsureDevice(ctx)
}

// progressPrinter renders a single-line byte counter on stdout.
func progressPrinter(total int, label string) camlink.ProgressFunc {
	if total <= 0 {
		return nil
	}
	return func(n int) {
		fmt.Printf("\r%s: %d/%d bytes (%d%%)", label, n, total, n*100/total)
		if n >= total {
			fmt.Println()
		}
	}
}
