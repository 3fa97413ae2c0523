package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "force-recovery",
	Short: "Clear the boot magic so the device boots its fallback loader",
	Long: `Clear the two boot-magic bytes at flash offset 0. On next power-up the
firmware takes the fallback boot path, from which the device can always be
re-provisioned. If the device is currently unreachable, it is first recovered
through the FX3 bootloader like any other operation.`,
	RunE: runForceRecovery,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runForceRecovery(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	dev, err := openEngine(cmd.Context(), log)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.ClearBootMagic(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Boot magic cleared; device will enter the fallback loader on next power-up")
	return nil
}
