package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ranma/camlink-re/pkg/camlink"
)

var flashOffset int

var flashCmd = &cobra.Command{
	Use:   "flash <file>",
	Short: "Erase and rewrite a region of SPI flash",
	Long: `Erase the covering sectors and write the file's contents to SPI flash.
The write offset must be sector-aligned so only the target region is erased.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)

	flashCmd.Flags().IntVar(&flashOffset, "offset", 0, "flash byte offset to write at (sector-aligned)")
}

func runFlash(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	if flashOffset%camlink.FlashSector != 0 {
		return fmt.Errorf("offset 0x%X is not aligned to the %d-byte sector size",
			flashOffset, camlink.FlashSector)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	dev, err := openEngine(cmd.Context(), log)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.WriteFlash(cmd.Context(), flashOffset, data, progressPrinter(len(data), "flashing")); err != nil {
		return err
	}
	fmt.Printf("Flashed %d bytes at 0x%06X\n", len(data), flashOffset)
	return nil
}
