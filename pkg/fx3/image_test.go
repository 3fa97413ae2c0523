package fx3

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildImage assembles a well-formed FX3 boot image from sections and an
// entry point. Section data lengths must be multiples of 4.
func buildImage(t *testing.T, sections []Section, entry uint32) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write([]byte{'C', 'Y', 0x1C, imageTypeExecutable})

	var sum uint32
	word := make([]byte, 4)
	for _, s := range sections {
		if len(s.Data)%4 != 0 {
			t.Fatalf("section data length %d is not word-aligned", len(s.Data))
		}
		binary.LittleEndian.PutUint32(word, uint32(len(s.Data)/4))
		buf.Write(word)
		binary.LittleEndian.PutUint32(word, s.Address)
		buf.Write(word)
		buf.Write(s.Data)
		for i := 0; i < len(s.Data); i += 4 {
			sum += binary.LittleEndian.Uint32(s.Data[i:])
		}
	}

	binary.LittleEndian.PutUint32(word, 0)
	buf.Write(word)
	binary.LittleEndian.PutUint32(word, entry)
	buf.Write(word)
	binary.LittleEndian.PutUint32(word, sum)
	buf.Write(word)

	return buf.Bytes()
}

func TestParseImage(t *testing.T) {
	sections := []Section{
		{Address: 0x40003000, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Address: 0x40008000, Data: []byte{9, 10, 11, 12}},
	}
	raw := buildImage(t, sections, 0x40003000)

	img, err := ParseImage(raw)
	if err != nil {
		t.Fatalf("ParseImage() error = %v", err)
	}
	if img.Entry != 0x40003000 {
		t.Errorf("Entry = 0x%08X, want 0x40003000", img.Entry)
	}
	if len(img.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(img.Sections))
	}
	for i, s := range img.Sections {
		if s.Address != sections[i].Address {
			t.Errorf("section %d address = 0x%08X, want 0x%08X", i, s.Address, sections[i].Address)
		}
		if !bytes.Equal(s.Data, sections[i].Data) {
			t.Errorf("section %d data mismatch", i)
		}
	}
	if img.Total() != 12 {
		t.Errorf("Total() = %d, want 12", img.Total())
	}
}

func TestParseImageErrors(t *testing.T) {
	good := buildImage(t, []Section{{Address: 0x100, Data: []byte{1, 2, 3, 4}}}, 0x100)

	corruptChecksum := append([]byte(nil), good...)
	corruptChecksum[len(corruptChecksum)-1] ^= 0xFF

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'

	badType := append([]byte(nil), good...)
	badType[3] = 0x01

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short header", []byte{'C', 'Y'}},
		{"bad magic", badMagic},
		{"bad image type", badType},
		{"truncated section header", good[:6]},
		{"truncated section data", good[:14]},
		{"missing checksum", good[:len(good)-2]},
		{"checksum mismatch", corruptChecksum},
		{"no load sections", buildImage(t, nil, 0x100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseImage(tt.raw); err == nil {
				t.Error("ParseImage() succeeded, want error")
			}
		})
	}
}
