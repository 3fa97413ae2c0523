package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ranma/camlink-re/pkg/camlink"
)

var (
	dumpOffset int
	dumpLength int
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Read SPI flash contents to a file",
	Long: `Read a region of the SPI flash (the whole flash by default) and write
it to the named file.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().IntVar(&dumpOffset, "offset", 0, "flash byte offset to start reading at")
	dumpCmd.Flags().IntVar(&dumpLength, "length", 0, "number of bytes to read (default: to end of flash)")
}

func runDump(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	dev, err := openEngine(cmd.Context(), log)
	if err != nil {
		return err
	}
	defer dev.Close()

	// A zero length means "through the end of flash" so --offset works
	// without an explicit --length.
	length := dumpLength
	if length == 0 {
		length = camlink.FlashSize - dumpOffset
	}

	data, err := dev.ReadFlash(cmd.Context(), dumpOffset, length, progressPrinter(length, "reading"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(data), args[0])
	return nil
}
