package fx3

import (
	"bytes"
	"context"
	"testing"
)

type fakeRAM struct {
	mem        map[uint32][]byte
	writes     []int // chunk sizes in order
	jumps      []uint32
	corruptAt  uint32
	hasCorrupt bool
}

func newFakeRAM() *fakeRAM {
	return &fakeRAM{mem: make(map[uint32][]byte)}
}

func (f *fakeRAM) write(addr uint32, data []byte) error {
	f.mem[addr] = append([]byte(nil), data...)
	f.writes = append(f.writes, len(data))
	return nil
}

func (f *fakeRAM) read(addr uint32, length int) ([]byte, error) {
	out := append([]byte(nil), f.mem[addr]...)
	if f.hasCorrupt && addr == f.corruptAt && len(out) > 0 {
		out[0] ^= 0xFF
	}
	return out, nil
}

func (f *fakeRAM) jump(addr uint32) error {
	f.jumps = append(f.jumps, addr)
	return nil
}

func (f *fakeRAM) Close() error { return nil }

func TestProgramChunksAndVerifies(t *testing.T) {
	big := make([]byte, maxTransfer+512)
	for i := range big {
		big[i] = byte(i)
	}
	raw := buildImage(t, []Section{
		{Address: 0x40003000, Data: big},
		{Address: 0x40010000, Data: []byte{1, 2, 3, 4}},
	}, 0x40003000)

	ram := newFakeRAM()
	bl := &Bootloader{rc: ram}

	var progress []int
	err := bl.Program(context.Background(), raw, func(n int) { progress = append(progress, n) })
	if err != nil {
		t.Fatalf("Program() error = %v", err)
	}

	wantWrites := []int{maxTransfer, 512, 4}
	if len(ram.writes) != len(wantWrites) {
		t.Fatalf("got %d writes, want %d", len(ram.writes), len(wantWrites))
	}
	for i, n := range ram.writes {
		if n != wantWrites[i] {
			t.Errorf("write %d size = %d, want %d", i, n, wantWrites[i])
		}
	}
	if want := []int{maxTransfer, maxTransfer + 512, maxTransfer + 516}; len(progress) != len(want) {
		t.Errorf("got %d progress reports, want %d", len(progress), len(want))
	} else {
		for i := range want {
			if progress[i] != want[i] {
				t.Errorf("progress %d = %d, want %d", i, progress[i], want[i])
			}
		}
	}

	if !bytes.Equal(ram.mem[0x40003000], big[:maxTransfer]) {
		t.Errorf("first chunk not written at section base")
	}
	if !bytes.Equal(ram.mem[0x40003000+maxTransfer], big[maxTransfer:]) {
		t.Errorf("second chunk not written past first")
	}
}

func TestProgramVerifyMismatch(t *testing.T) {
	raw := buildImage(t, []Section{{Address: 0x200, Data: []byte{1, 2, 3, 4}}}, 0x200)

	ram := newFakeRAM()
	ram.hasCorrupt = true
	ram.corruptAt = 0x200
	bl := &Bootloader{rc: ram}

	if err := bl.Program(context.Background(), raw, nil); err == nil {
		t.Error("Program() succeeded with corrupted read-back, want error")
	}
}

func TestRunUserProgram(t *testing.T) {
	ram := newFakeRAM()
	bl := &Bootloader{rc: ram}

	if err := bl.RunUserProgram(context.Background()); err == nil {
		t.Error("RunUserProgram() before Program() succeeded, want error")
	}

	raw := buildImage(t, []Section{{Address: 0x300, Data: []byte{1, 2, 3, 4}}}, 0x40003000)
	if err := bl.Program(context.Background(), raw, nil); err != nil {
		t.Fatalf("Program() error = %v", err)
	}
	if err := bl.RunUserProgram(context.Background()); err != nil {
		t.Fatalf("RunUserProgram() error = %v", err)
	}
	if len(ram.jumps) != 1 || ram.jumps[0] != 0x40003000 {
		t.Errorf("jumps = %v, want one jump to 0x40003000", ram.jumps)
	}
}

func TestProgramBadImage(t *testing.T) {
	bl := &Bootloader{rc: newFakeRAM()}
	if err := bl.Program(context.Background(), []byte("not an image"), nil); err == nil {
		t.Error("Program() accepted a malformed image")
	}
}
