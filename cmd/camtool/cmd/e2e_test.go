package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ranma/camlink-re/pkg/camlink"
)

// TestCamtoolE2E runs the subcommands end-to-end against the simulator.
func TestCamtoolE2E(t *testing.T) {
	dir := t.TempDir()

	bitstream := filepath.Join(dir, "top.bit")
	if err := os.WriteFile(bitstream, bytes.Repeat([]byte{0xA5}, 3*camlink.ConfigChunk+100), 0o644); err != nil {
		t.Fatal(err)
	}
	image := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(image, bytes.Repeat([]byte{0x3C}, camlink.FlashChunk+17), 0o644); err != nil {
		t.Fatal(err)
	}
	dump := filepath.Join(dir, "dump.bin")

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "scan",
			args:        []string{"scan", "--sim"},
			wantContain: []string{"Firmware:", "FPGA IDCODE: 0x"},
		},
		{
			name:        "configure",
			args:        []string{"configure", "--sim", bitstream},
			wantContain: []string{"FPGA configured"},
		},
		{
			name:    "configure missing filename",
			args:    []string{"configure", "--sim"},
			wantErr: true,
		},
		{
			name:        "flash",
			args:        []string{"flash", "--sim", image},
			wantContain: []string{"Flashed"},
		},
		{
			name:    "flash unaligned offset",
			args:    []string{"flash", "--sim", "--offset", "4096", image},
			wantErr: true,
		},
		{
			name:        "dump region",
			args:        []string{"dump", "--sim", "--length", "512", dump},
			wantContain: []string{"Wrote 512 bytes"},
		},
		{
			name:        "dump tail with offset only",
			args:        []string{"dump", "--sim", "--offset", "4193280", dump},
			wantContain: []string{"Wrote 1024 bytes"},
		},
		{
			name:    "dump past end of flash",
			args:    []string{"dump", "--sim", "--offset", "4190208", "--length", "8192", dump},
			wantErr: true,
		},
		{
			name:    "dump unaligned offset",
			args:    []string{"dump", "--sim", "--offset", "100", "--length", "16", dump},
			wantErr: true,
		},
		{
			name:        "force recovery",
			args:        []string{"force-recovery", "--sim"},
			wantContain: []string{"Boot magic cleared"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Capture stdout
			old := os.Stdout
			r, w, _ := os.Pipe()
			os.Stdout = w

			var buf bytes.Buffer
			done := make(chan struct{})
			go func() {
				buf.ReadFrom(r)
				close(done)
			}()

			// Reset flags to prevent accumulation between tests
			verbose = false
			cfgFile = ""
			useSim = false
			dumpOffset = 0
			dumpLength = 0
			flashOffset = 0

			rootCmd.SetArgs(tt.args)
			err := rootCmd.Execute()

			w.Close()
			os.Stdout = old
			<-done

			output := buf.String()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v\nOutput: %s", err, output)
				return
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}
