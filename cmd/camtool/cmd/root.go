package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose bool
	cfgFile string
	useSim  bool
)

var rootCmd = &cobra.Command{
	Use:   "camtool",
	Short: "Cam Link FPGA provisioning tool",
	Long: `Provisions a Cam Link running the replacement FPGA-bridge firmware:
streams bitstreams into the FPGA, reads and rewrites the SPI flash, and
re-provisions an unreachable device through the FX3 USB bootloader.

Examples:
  camtool scan                      # Identify the device and read the FPGA IDCODE
  camtool configure top.bit         # Stream a bitstream into the FPGA
  camtool dump flash-backup.bin     # Read the whole SPI flash to a file
  camtool flash image.bin           # Erase and rewrite the SPI flash
  camtool force-recovery            # Clear the boot magic via the recovery path`,
	Version: "0.2.0",
}

// Execute runs the root command with an interrupt-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (default camtool.yaml)")
	rootCmd.PersistentFlags().BoolVar(&useSim, "sim", false, "use the in-memory device simulator instead of hardware")
}

// newLogger builds the tool's logger; --verbose enables debug output.
func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log.Sugar()
}
