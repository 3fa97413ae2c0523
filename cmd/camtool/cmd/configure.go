package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure <bitstream>",
	Short: "Stream a bitstream into FPGA configuration memory",
	Long: `Stream a bitstream file into the FPGA's configuration memory. The
configuration is volatile; use "flash" to make an image persistent.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	bitstream, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read bitstream: %w", err)
	}

	dev, err := openEngine(cmd.Context(), log)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Configure(cmd.Context(), bitstream, progressPrinter(len(bitstream), "configuring")); err != nil {
		return err
	}
	fmt.Printf("FPGA configured (%d bytes)\n", len(bitstream))
	return nil
}
