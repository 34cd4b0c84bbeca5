package mbr

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
)

type part struct {
	typ   byte
	start uint32
	count uint32
}

func bootSector(parts []part, sig uint16) []byte {
	buf := make([]byte, 512)
	for i, p := range parts {
		off := partitionTableStart + i*partitionEntrySize
		buf[off+0x04] = p.typ
		binary.LittleEndian.PutUint32(buf[off+0x08:], p.start)
		binary.LittleEndian.PutUint32(buf[off+0x0C:], p.count)
	}
	binary.LittleEndian.PutUint16(buf[signatureOffset:], sig)
	return buf
}

func TestParse_Valid(t *testing.T) {
	buf := bootSector([]part{
		{0x0C, 2048, 1000},
		{0x83, 3048, 500},
		{0x00, 0, 0},
		{0x0C, 4000, 96},
	}, BootSignature)

	if buf[510] != 0x55 || buf[511] != 0xAA {
		t.Fatalf("signature bytes = %x %x, want 55 aa", buf[510], buf[511])
	}

	m, err := Parse(buf, 8192)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entries := m.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3 (empty slot excluded)", len(entries))
	}
	if !entries[0].Type.IsFat32() || entries[1].Type.IsFat32() {
		t.Errorf("type classification wrong: %v %v", entries[0].Type, entries[1].Type)
	}
	if entries[1].Type.String() != "Unsupported: 0x83" {
		t.Errorf("Type.String()=%q", entries[1].Type.String())
	}
	if entries[2].LBAStart != 4000 || entries[2].End() != 4096 {
		t.Errorf("entry 3 = %+v", entries[2])
	}
	if m.Signature() != BootSignature || m.DiskSectorCount() != 8192 {
		t.Errorf("signature=%#x sectors=%d", m.Signature(), m.DiskSectorCount())
	}
}

func TestParse_AdjacentPartitionsDoNotOverlap(t *testing.T) {
	buf := bootSector([]part{{0x0C, 100, 100}, {0x0C, 200, 100}}, BootSignature)
	if _, err := Parse(buf, 1000); err != nil {
		t.Fatalf("touching partitions must be accepted: %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		parts []part
		sig   uint16
		want  error
	}{
		{
			name:  "not sorted",
			parts: []part{{0x0C, 3000, 100}, {0x0C, 2048, 100}},
			sig:   BootSignature,
			want:  ErrPartitionTableNotSorted,
		},
		{
			name:  "not sorted wins over bad signature",
			parts: []part{{0x0C, 3000, 100}, {0x0C, 2048, 100}},
			sig:   0x1234,
			want:  ErrPartitionTableNotSorted,
		},
		{
			name:  "overlapping",
			parts: []part{{0x0C, 2048, 1000}, {0x0C, 3047, 100}},
			sig:   BootSignature,
			want:  ErrOverlappingPartitions,
		},
		{
			name:  "overlap wins over bad signature",
			parts: []part{{0x0C, 2048, 1000}, {0x0C, 3047, 100}},
			sig:   0,
			want:  ErrOverlappingPartitions,
		},
		{
			name:  "bad signature",
			parts: []part{{0x0C, 2048, 1000}},
			sig:   0x55AA,
			want:  ErrInvalidSignature,
		},
		{
			name:  "empty slot between entries is ignored for ordering",
			parts: []part{{0x0C, 2048, 10}, {0x0C, 0, 0}, {0x0C, 1000, 10}},
			sig:   BootSignature,
			want:  ErrPartitionTableNotSorted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(bootSector(tt.parts, tt.sig), 10000)
			if m != nil {
				t.Fatal("no MBR may be returned on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_InvalidSignatureCarriesValue(t *testing.T) {
	_, err := Parse(bootSector(nil, 0xBEEF), 10)
	var me *Error
	if !errors.As(err, &me) {
		t.Fatalf("err=%v is not *Error", err)
	}
	if me.Signature != 0xBEEF {
		t.Fatalf("Signature=%#x want 0xbeef", me.Signature)
	}
	if !strings.Contains(err.Error(), "0xBEEF") {
		t.Fatalf("message %q does not name the signature", err.Error())
	}
}

func TestParse_EveryPermutationOfSortedEntries(t *testing.T) {
	base := []part{{0x0C, 100, 50}, {0x0C, 200, 50}, {0x0C, 300, 50}}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, p := range perms {
		parts := []part{base[p[0]], base[p[1]], base[p[2]]}
		_, err := Parse(bootSector(parts, BootSignature), 1000)
		sorted := p[0] == 0 && p[1] == 1 && p[2] == 2
		if sorted && err != nil {
			t.Errorf("perm %v: unexpected error %v", p, err)
		}
		if !sorted && !errors.Is(err, ErrPartitionTableNotSorted) {
			t.Errorf("perm %v: err=%v want not sorted", p, err)
		}
	}
}

func TestParse_ShortBuffer(t *testing.T) {
	_, err := Parse(make([]byte, 100), 0)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err=%v want ErrIO", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v should wrap io.ErrUnexpectedEOF", err)
	}
}

type readerAt []byte

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r)) {
		return 0, io.EOF
	}
	n := copy(p, r[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestRead(t *testing.T) {
	img := make([]byte, 4096)
	copy(img, bootSector([]part{{0x0C, 2, 4}}, BootSignature))

	m, err := Read(readerAt(img), 512, 8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(m.Entries()) != 1 {
		t.Fatalf("entries=%d want 1", len(m.Entries()))
	}

	_, err = Read(readerAt(img[:100]), 512, 8)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("short image: err=%v want ErrIO", err)
	}
}

func TestLayout(t *testing.T) {
	m, err := Parse(bootSector([]part{{0x0C, 2048, 1000}, {0x07, 4000, 100}}, BootSignature), 5000)
	if err != nil {
		t.Fatal(err)
	}
	out := m.Layout(3)

	for _, want := range []string{
		" Master Boot Record Layout ",
		"Disk Size",
		"0xAA55",
		"Part #1",
		"Part #2",
		"LBA FAT32",
		"Unallocated",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("layout missing %q:\n%s", want, out)
		}
	}
	// gaps: [0,2048), [3048,4000), [4100,5000)
	if n := strings.Count(out, "Unallocated"); n != 3 {
		t.Errorf("got %d unallocated rows, want 3:\n%s", n, out)
	}
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if !strings.HasPrefix(line, "   ") {
			t.Errorf("line not indented: %q", line)
		}
	}
}
