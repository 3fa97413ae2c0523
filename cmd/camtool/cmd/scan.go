package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ranma/camlink-re/pkg/camlink"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Locate the device and report its state",
	Long: `Locate the device, verify the firmware signature, and report the FPGA
IDCODE and status word. Runs the recovery path when the device is absent.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	dev, err := openEngine(cmd.Context(), log)
	if err != nil {
		return err
	}
	defer dev.Close()

	idcode, err := dev.IDCode(cmd.Context())
	if err != nil {
		return fmt.Errorf("read IDCODE: %w", err)
	}
	status, err := dev.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	fmt.Printf("Firmware:    %s\n", camlink.FirmwareSignature)
	fmt.Printf("FPGA IDCODE: 0x%08X\n", idcode)
	fmt.Printf("FPGA status: 0x%08X", status)
	if status&camlink.FpgaStatusDone != 0 {
		fmt.Printf(" (configured)")
	}
	fmt.Println()
	return nil
}
